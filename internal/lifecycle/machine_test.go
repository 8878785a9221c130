package lifecycle

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"curator/internal/config"
	"curator/internal/events"
	"curator/internal/queue"
	"curator/internal/services"
)

func newTestMachine(t *testing.T) (*Machine, *queue.Store, *events.Hub) {
	t.Helper()
	cfg := config.Default()
	root := t.TempDir()
	cfg.Paths.StagingDir = filepath.Join(root, "staging")
	cfg.Paths.LogDir = filepath.Join(root, "logs")
	cfg.Archive.CredentialsPath = filepath.Join(root, "creds", "archive.enc")
	cfg.Archive.KeyPath = filepath.Join(root, "creds", "archive.key")

	store, err := queue.Open(&cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	hub := events.NewHub(32, nil)
	t.Cleanup(hub.Close)

	return NewMachine(store, hub, 3, nil), store, hub
}

func drainEvent(t *testing.T, sub *events.Subscription) events.Event {
	t.Helper()
	select {
	case evt := <-sub.Events():
		return evt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return events.Event{}
	}
}

func TestTransitionEmitsOneEvent(t *testing.T) {
	machine, store, hub := newTestMachine(t)
	ctx := context.Background()

	sub := hub.Subscribe()
	defer sub.Close()

	job, err := store.NewURLJob(ctx, queue.NewJobParams{SourceURL: "https://example.com/a"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := machine.Transition(ctx, job.ID, queue.StatusDownloading, nil)
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if updated.Status != queue.StatusDownloading {
		t.Fatalf("status = %s", updated.Status)
	}

	evt := drainEvent(t, sub)
	if evt.Type != events.TypeJobUpdated {
		t.Fatalf("event type = %s", evt.Type)
	}
	if evt.PrevStatus != queue.StatusPending || evt.Status != queue.StatusDownloading {
		t.Fatalf("event statuses = %s -> %s", evt.PrevStatus, evt.Status)
	}

	select {
	case extra := <-sub.Events():
		t.Fatalf("unexpected second event: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTransitionRejectsIllegalEdge(t *testing.T) {
	machine, store, _ := newTestMachine(t)
	ctx := context.Background()

	job, _ := store.NewURLJob(ctx, queue.NewJobParams{SourceURL: "https://example.com/a"})
	_, err := machine.Transition(ctx, job.ID, queue.StatusCompleted, nil)
	var invalid *InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}

	fetched, _ := store.GetByID(ctx, job.ID)
	if fetched.Status != queue.StatusPending {
		t.Fatalf("status mutated to %s on rejected transition", fetched.Status)
	}
}

func TestTransitionUnknownJob(t *testing.T) {
	machine, _, _ := newTestMachine(t)
	_, err := machine.Transition(context.Background(), "ghost", queue.StatusDownloading, nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestPauseOnPendingRejected(t *testing.T) {
	machine, store, _ := newTestMachine(t)
	ctx := context.Background()

	job, _ := store.NewURLJob(ctx, queue.NewJobParams{SourceURL: "https://example.com/a"})
	_, err := machine.Pause(ctx, job.ID)
	var invalid *InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
}

func TestPauseLeasedJobRecordsCommand(t *testing.T) {
	machine, store, _ := newTestMachine(t)
	ctx := context.Background()

	job, _ := store.NewURLJob(ctx, queue.NewJobParams{SourceURL: "https://example.com/a"})
	claimed, err := store.ClaimNextPending(ctx, "worker-a")
	if err != nil || claimed == nil {
		t.Fatalf("claim: %v %v", claimed, err)
	}
	claimed.Status = queue.StatusDownloading
	if err := store.Update(ctx, claimed); err != nil {
		t.Fatalf("update: %v", err)
	}

	if _, err := machine.Pause(ctx, job.ID); err != nil {
		t.Fatalf("pause: %v", err)
	}

	fetched, _ := store.GetByID(ctx, job.ID)
	if fetched.Status != queue.StatusDownloading {
		t.Fatalf("leased job paused immediately: %s", fetched.Status)
	}
	if fetched.PendingCommand != string(CommandPause) {
		t.Fatalf("pending command = %q", fetched.PendingCommand)
	}
}

func TestStopPendingJobImmediately(t *testing.T) {
	machine, store, hub := newTestMachine(t)
	ctx := context.Background()

	sub := hub.Subscribe()
	defer sub.Close()

	job, _ := store.NewURLJob(ctx, queue.NewJobParams{SourceURL: "https://example.com/a"})
	stopped, err := machine.Stop(ctx, job.ID)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if stopped.Status != queue.StatusStopped {
		t.Fatalf("status = %s", stopped.Status)
	}
	if stopped.CompletedAt == nil {
		t.Fatal("terminal transition should stamp completed_at")
	}

	evt := drainEvent(t, sub)
	if evt.Status != queue.StatusStopped {
		t.Fatalf("event status = %s", evt.Status)
	}
}

func TestResumeReturnsJobToPending(t *testing.T) {
	machine, store, _ := newTestMachine(t)
	ctx := context.Background()

	job, _ := store.NewURLJob(ctx, queue.NewJobParams{SourceURL: "https://example.com/a"})
	job.Status = queue.StatusPaused
	_ = store.Update(ctx, job)

	resumed, err := machine.Resume(ctx, job.ID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.Status != queue.StatusPending {
		t.Fatalf("status = %s", resumed.Status)
	}
}

func TestRetryIncrementsCountAndClearsError(t *testing.T) {
	machine, store, _ := newTestMachine(t)
	ctx := context.Background()

	job, _ := store.NewURLJob(ctx, queue.NewJobParams{SourceURL: "https://example.com/a"})
	job.SetFailed("tagging service unreachable")
	at := time.Now().UTC()
	job.RetryAt = &at
	_ = store.Update(ctx, job)

	retried, err := machine.Retry(ctx, job.ID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retried.Status != queue.StatusPending {
		t.Fatalf("status = %s", retried.Status)
	}
	if retried.RetryCount != 1 {
		t.Fatalf("retry count = %d", retried.RetryCount)
	}
	if retried.ErrorMessage != "" {
		t.Fatalf("error message not cleared: %q", retried.ErrorMessage)
	}
	if retried.RetryAt != nil {
		t.Fatal("retry_at not cleared")
	}
}

func TestRetryExhaustedRejected(t *testing.T) {
	machine, store, _ := newTestMachine(t)
	ctx := context.Background()

	job, _ := store.NewURLJob(ctx, queue.NewJobParams{SourceURL: "https://example.com/a"})
	job.SetFailed("boom")
	job.RetryCount = 3
	_ = store.Update(ctx, job)

	if _, err := machine.Retry(ctx, job.ID); err == nil {
		t.Fatal("retry beyond cap should fail")
	}
}

func TestDeletePendingJob(t *testing.T) {
	machine, store, hub := newTestMachine(t)
	ctx := context.Background()

	sub := hub.Subscribe()
	defer sub.Close()

	job, _ := store.NewURLJob(ctx, queue.NewJobParams{SourceURL: "https://example.com/a"})
	if err := machine.Delete(ctx, job.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	fetched, _ := store.GetByID(ctx, job.ID)
	if fetched != nil {
		t.Fatal("record survived delete")
	}

	evt := drainEvent(t, sub)
	if evt.Type != events.TypeJobDeleted {
		t.Fatalf("event type = %s", evt.Type)
	}
}

func TestDeleteLeasedJobDefersRemoval(t *testing.T) {
	machine, store, _ := newTestMachine(t)
	ctx := context.Background()

	job, _ := store.NewURLJob(ctx, queue.NewJobParams{SourceURL: "https://example.com/a"})
	claimed, _ := store.ClaimNextPending(ctx, "worker-a")
	claimed.Status = queue.StatusUploading
	_ = store.Update(ctx, claimed)

	if err := machine.Delete(ctx, job.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	fetched, _ := store.GetByID(ctx, job.ID)
	if fetched == nil {
		t.Fatal("leased job removed before lease release")
	}
	if fetched.PendingCommand != string(CommandDelete) {
		t.Fatalf("pending command = %q", fetched.PendingCommand)
	}
}

func TestDeleteCompletedRejected(t *testing.T) {
	machine, store, _ := newTestMachine(t)
	ctx := context.Background()

	job, _ := store.NewURLJob(ctx, queue.NewJobParams{SourceURL: "https://example.com/a"})
	job.Status = queue.StatusCompleted
	_ = store.Update(ctx, job)

	err := machine.Delete(ctx, job.ID)
	var invalid *InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
}

func TestFailSchedulesRetryForRetryableErrors(t *testing.T) {
	machine, store, _ := newTestMachine(t)
	ctx := context.Background()

	job, _ := store.NewURLJob(ctx, queue.NewJobParams{SourceURL: "https://example.com/a"})
	job.Status = queue.StatusDownloading
	_ = store.Update(ctx, job)

	cause := services.Wrap(services.ErrExtraction, "downloading", "fetch", "connection reset", nil)
	failed, err := machine.Fail(ctx, job.ID, cause, 30*time.Second, 900*time.Second, 2.0)
	if err != nil {
		t.Fatalf("fail: %v", err)
	}
	if failed.Status != queue.StatusFailed {
		t.Fatalf("status = %s", failed.Status)
	}
	if failed.RetryAt == nil {
		t.Fatal("retryable failure should schedule retry_at")
	}
	if failed.ErrorMessage == "" {
		t.Fatal("error message missing")
	}
}

func TestFailDoesNotScheduleRetryForValidation(t *testing.T) {
	machine, store, _ := newTestMachine(t)
	ctx := context.Background()

	job, _ := store.NewURLJob(ctx, queue.NewJobParams{SourceURL: "https://example.com/a"})
	job.Status = queue.StatusDownloading
	_ = store.Update(ctx, job)

	cause := services.Wrap(services.ErrConfiguration, "downloading", "credentials", "missing key", nil)
	failed, err := machine.Fail(ctx, job.ID, cause, 30*time.Second, 900*time.Second, 2.0)
	if err != nil {
		t.Fatalf("fail: %v", err)
	}
	if failed.RetryAt != nil {
		t.Fatal("non-retryable failure scheduled a retry")
	}
}

func TestFailAtRetryCapLeavesJobFailed(t *testing.T) {
	machine, store, _ := newTestMachine(t)
	ctx := context.Background()

	job, _ := store.NewURLJob(ctx, queue.NewJobParams{SourceURL: "https://example.com/a"})
	job.Status = queue.StatusDownloading
	job.RetryCount = 3
	_ = store.Update(ctx, job)

	cause := services.Wrap(services.ErrUpload, "uploading", "publish", "503", nil)
	failed, err := machine.Fail(ctx, job.ID, cause, 30*time.Second, 900*time.Second, 2.0)
	if err != nil {
		t.Fatalf("fail: %v", err)
	}
	if failed.RetryAt != nil {
		t.Fatal("exhausted job scheduled a retry")
	}
}
