package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"curator/internal/events"
	"curator/internal/logging"
	"curator/internal/queue"
	"curator/internal/services"
)

// Machine is the single mutation path for job status. Every transition is
// serialized per job id, validated against the transition table, persisted,
// and announced on the event hub exactly once.
type Machine struct {
	store      *queue.Store
	hub        *events.Hub
	logger     *slog.Logger
	maxRetries int

	mu    sync.Mutex
	locks map[string]*jobLock
}

type jobLock struct {
	mu   sync.Mutex
	refs int
}

// NewMachine wires the state machine to its store and event hub.
func NewMachine(store *queue.Store, hub *events.Hub, maxRetries int, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Machine{
		store:      store,
		hub:        hub,
		logger:     logger.With(logging.String(logging.FieldComponent, "lifecycle")),
		maxRetries: maxRetries,
		locks:      make(map[string]*jobLock),
	}
}

func (m *Machine) lockJob(id string) func() {
	m.mu.Lock()
	entry, ok := m.locks[id]
	if !ok {
		entry = &jobLock{}
		m.locks[id] = entry
	}
	entry.refs++
	m.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		m.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(m.locks, id)
		}
		m.mu.Unlock()
	}
}

// ErrNotFound is returned for operations against unknown job ids.
var ErrNotFound = fmt.Errorf("job not found")

// Transition moves a job to a new status through the validated edge table.
// The optional mutate callback adjusts job fields under the per-job lock
// before the change is persisted. One event is published on success.
func (m *Machine) Transition(ctx context.Context, jobID string, to queue.Status, mutate func(*queue.Job)) (*queue.Job, error) {
	unlock := m.lockJob(jobID)
	defer unlock()

	job, err := m.store.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	return m.transitionLocked(ctx, job, to, mutate)
}

func (m *Machine) publishTransition(job *queue.Job, from queue.Status) {
	evt := events.Event{
		Type:       events.TypeForStatus(job.Status),
		JobID:      job.ID,
		PrevStatus: from,
		Status:     job.Status,
	}
	switch job.Status {
	case queue.StatusCompleted, queue.StatusMerged:
		evt.PublishedID = job.PublishedID
		evt.WasMerge = job.WasMerge
		evt.TagsApplied = job.TagsApplied
		evt.RelatedIDs = job.RelatedIDs
	case queue.StatusFailed:
		evt.Error = job.ErrorMessage
	}
	m.hub.Publish(evt)
}

// NotifyCreated announces a freshly enqueued job.
func (m *Machine) NotifyCreated(job *queue.Job) {
	if job == nil {
		return
	}
	m.hub.Publish(events.Event{
		Type:   events.TypeJobCreated,
		JobID:  job.ID,
		Status: job.Status,
	})
}

// Pause requests that an active job stop after its current phase. Leased jobs
// record a pending command honored at the next checkpoint; pausing a job that
// is not inside a phase is rejected.
func (m *Machine) Pause(ctx context.Context, jobID string) (*queue.Job, error) {
	unlock := m.lockJob(jobID)
	defer unlock()

	job, err := m.store.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	if _, err := Apply(job, CommandPause, m.maxRetries); err != nil {
		return nil, err
	}
	if job.Leased() {
		if err := m.store.SetPendingCommand(ctx, jobID, string(CommandPause)); err != nil {
			return nil, err
		}
		m.logger.Info("pause recorded for next checkpoint", logging.String(logging.FieldJobID, jobID))
		return job, nil
	}
	return m.transitionLocked(ctx, job, queue.StatusPaused, clearLease)
}

// Resume returns a paused job to the pending pool.
func (m *Machine) Resume(ctx context.Context, jobID string) (*queue.Job, error) {
	unlock := m.lockJob(jobID)
	defer unlock()

	job, err := m.store.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	target, err := Apply(job, CommandResume, m.maxRetries)
	if err != nil {
		return nil, err
	}
	return m.transitionLocked(ctx, job, target, nil)
}

// Stop cancels a job. Leased jobs record the command for the next checkpoint;
// everything else transitions immediately. Stop is final.
func (m *Machine) Stop(ctx context.Context, jobID string) (*queue.Job, error) {
	unlock := m.lockJob(jobID)
	defer unlock()

	job, err := m.store.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	target, err := Apply(job, CommandStop, m.maxRetries)
	if err != nil {
		return nil, err
	}
	if job.Leased() {
		if err := m.store.SetPendingCommand(ctx, jobID, string(CommandStop)); err != nil {
			return nil, err
		}
		m.logger.Info("stop recorded for next checkpoint", logging.String(logging.FieldJobID, jobID))
		return job, nil
	}
	return m.transitionLocked(ctx, job, target, clearLease)
}

// Retry re-enters a failed job into the pending pool, incrementing its retry
// count. Attempts beyond the configured cap are rejected.
func (m *Machine) Retry(ctx context.Context, jobID string) (*queue.Job, error) {
	unlock := m.lockJob(jobID)
	defer unlock()

	job, err := m.store.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	target, err := Apply(job, CommandRetry, m.maxRetries)
	if err != nil {
		return nil, err
	}
	return m.transitionLocked(ctx, job, target, func(j *queue.Job) {
		j.RetryCount++
		j.ErrorMessage = ""
		j.RetryAt = nil
		clearLease(j)
	})
}

// Delete removes a job record. A leased job is marked for cancellation and
// removed by the worker once the lease is released; anything else must be in
// a deletable status.
func (m *Machine) Delete(ctx context.Context, jobID string) error {
	unlock := m.lockJob(jobID)
	defer unlock()

	job, err := m.store.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	if job.Leased() {
		if err := m.store.SetPendingCommand(ctx, jobID, string(CommandDelete)); err != nil {
			return err
		}
		m.logger.Info("delete recorded for next checkpoint", logging.String(logging.FieldJobID, jobID))
		return nil
	}
	if !Deletable(job.Status) {
		return &InvalidTransitionError{JobID: jobID, From: job.Status, Command: CommandDelete}
	}
	return m.removeLocked(ctx, job)
}

// Remove deletes the record for a job whose lease was already released,
// bypassing the deletable-status check. Used by workers honoring a delete
// command at a checkpoint.
func (m *Machine) Remove(ctx context.Context, jobID string) error {
	unlock := m.lockJob(jobID)
	defer unlock()

	job, err := m.store.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return nil
	}
	return m.removeLocked(ctx, job)
}

func (m *Machine) removeLocked(ctx context.Context, job *queue.Job) error {
	removed, err := m.store.Remove(ctx, job.ID)
	if err != nil {
		return err
	}
	if removed {
		m.hub.Publish(events.Event{
			Type:       events.TypeJobDeleted,
			JobID:      job.ID,
			PrevStatus: job.Status,
		})
		m.logger.Info("job deleted", logging.String(logging.FieldJobID, job.ID))
	}
	return nil
}

func (m *Machine) transitionLocked(ctx context.Context, job *queue.Job, to queue.Status, mutate func(*queue.Job)) (*queue.Job, error) {
	from := job.Status
	if !CanTransition(from, to) {
		return nil, &InvalidTransitionError{JobID: job.ID, From: from, To: to}
	}
	job.Status = to
	if mutate != nil {
		mutate(job)
	}
	if queue.IsTerminal(to) && job.CompletedAt == nil {
		now := time.Now().UTC()
		job.CompletedAt = &now
	}
	if err := m.store.Update(ctx, job); err != nil {
		return nil, err
	}
	m.publishTransition(job, from)
	m.logger.Info("job transitioned",
		logging.String(logging.FieldJobID, job.ID),
		logging.String("from", string(from)),
		logging.String("to", string(to)))
	return job, nil
}

// Fail marks a job failed with the given message and schedules an automatic
// retry when the failure class qualifies and attempts remain. The lease is
// cleared in the same write.
func (m *Machine) Fail(ctx context.Context, jobID string, cause error, retryDelay, retryMaxDelay time.Duration, backoffFactor float64) (*queue.Job, error) {
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	return m.Transition(ctx, jobID, queue.StatusFailed, func(j *queue.Job) {
		j.ErrorMessage = message
		clearLease(j)
		if services.IsRetryable(cause) && (m.maxRetries <= 0 || j.RetryCount < m.maxRetries) {
			at := time.Now().UTC().Add(RetryBackoff(retryDelay, retryMaxDelay, backoffFactor, j.RetryCount))
			j.RetryAt = &at
		} else {
			j.RetryAt = nil
		}
	})
}

// RetryBackoff computes the delay before attempt retryCount+1 using
// exponential backoff capped at maxDelay.
func RetryBackoff(base, maxDelay time.Duration, factor float64, retryCount int) time.Duration {
	if base <= 0 {
		return 0
	}
	if factor < 1 {
		factor = 1
	}
	delay := float64(base)
	for i := 0; i < retryCount; i++ {
		delay *= factor
		if maxDelay > 0 && delay >= float64(maxDelay) {
			return maxDelay
		}
	}
	if maxDelay > 0 && delay > float64(maxDelay) {
		return maxDelay
	}
	return time.Duration(delay)
}

func clearLease(j *queue.Job) {
	j.LeaseOwner = ""
	j.LastHeartbeat = nil
	j.PendingCommand = ""
}

// MaxRetries exposes the configured retry cap.
func (m *Machine) MaxRetries() int {
	return m.maxRetries
}
