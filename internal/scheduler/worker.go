package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"curator/internal/archive"
	"curator/internal/dedup"
	"curator/internal/extraction"
	"curator/internal/lifecycle"
	"curator/internal/logging"
	"curator/internal/queue"
	"curator/internal/services"
	"curator/internal/tagging"
	"curator/internal/tagnorm"
)

// runJob drives one leased job through its phases. The lease is always
// settled before return: released on shutdown, cleared inside the terminal
// transition otherwise.
func (s *Scheduler) runJob(ctx context.Context, job *queue.Job) {
	workerID := job.LeaseOwner
	ctx = services.WithJobID(ctx, job.ID)
	logger := s.logger.With(logging.String(logging.FieldJobID, job.ID))

	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go s.heartbeatLoop(hbCtx, &hbWG, job.ID, workerID, logger)
	defer func() {
		hbCancel()
		hbWG.Wait()
	}()

	start := time.Now()
	logger.Info("job picked up",
		logging.String("job_type", string(job.JobType)),
		logging.Int("retry_count", job.RetryCount))

	// Checkpoint before the first phase: a stop or delete may already be
	// recorded against a job that never left pending.
	if s.checkpoint(ctx, job.ID, workerID, logger) {
		return
	}

	if _, err := s.machine.Transition(ctx, job.ID, queue.StatusDownloading, nil); err != nil {
		logger.Error("failed to enter download phase", logging.Error(err))
		s.releaseLease(ctx, job.ID, workerID, logger)
		return
	}

	files, sourceTags, safety, err := s.runDownload(ctx, job)
	if err != nil {
		s.settleFailure(ctx, job, workerID, err, logger)
		return
	}

	if s.checkpoint(ctx, job.ID, workerID, logger) {
		return
	}

	var aiTags []string
	if job.SkipTagging {
		logger.Info("tagging skipped by request")
	} else {
		if _, err := s.machine.Transition(ctx, job.ID, queue.StatusTagging, func(j *queue.Job) {
			j.TagsFromSource = sourceTags
		}); err != nil {
			logger.Error("failed to enter tagging phase", logging.Error(err))
			s.releaseLease(ctx, job.ID, workerID, logger)
			return
		}
		aiTags, err = s.runTagging(ctx, job, files)
		if err != nil {
			s.settleFailure(ctx, job, workerID, err, logger)
			return
		}
		if s.checkpoint(ctx, job.ID, workerID, logger) {
			return
		}
	}

	if _, err := s.machine.Transition(ctx, job.ID, queue.StatusUploading, func(j *queue.Job) {
		j.TagsFromSource = sourceTags
		j.TagsFromAI = aiTags
	}); err != nil {
		logger.Error("failed to enter upload phase", logging.Error(err))
		s.releaseLease(ctx, job.ID, workerID, logger)
		return
	}

	outcome, err := s.runUpload(ctx, job, files, sourceTags, aiTags, safety)
	if err != nil {
		s.settleFailure(ctx, job, workerID, err, logger)
		return
	}

	final := queue.StatusCompleted
	if outcome.WasMerge {
		final = queue.StatusMerged
	}
	completed, err := s.machine.Transition(ctx, job.ID, final, func(j *queue.Job) {
		if j.PublishedID == 0 {
			j.PublishedID = outcome.PublishedID
		}
		j.RelatedIDs = outcome.RelatedIDs
		j.WasMerge = outcome.WasMerge
		j.TagsApplied = outcome.TagsApplied
		j.Safety = outcome.Safety
		j.LeaseOwner = ""
		j.LastHeartbeat = nil
		j.PendingCommand = ""
	})
	if err != nil {
		logger.Error("failed to finalize job", logging.Error(err))
		s.releaseLease(ctx, job.ID, workerID, logger)
		return
	}

	logger.Info("job finished",
		logging.String("status", string(completed.Status)),
		logging.Int64("published_id", completed.PublishedID),
		logging.Bool("was_merge", completed.WasMerge),
		logging.Duration("duration", time.Since(start)))
	s.notifyOutcome(ctx, completed)
}

func (s *Scheduler) runDownload(ctx context.Context, job *queue.Job) ([]archive.CreateRequest, []string, queue.Safety, error) {
	safety := job.Safety
	if safety == "" {
		safety = queue.SafetySafe
	}

	if job.JobType == queue.JobTypeUpload {
		return []archive.CreateRequest{{FilePath: job.UploadPath}}, nil, safety, nil
	}

	phaseCtx, cancel := s.phaseContext(ctx, s.cfg.DownloadTimeout)
	defer cancel()

	result, err := s.extractor.Extract(phaseCtx, extraction.Request{
		JobID:      job.ID,
		SourceURL:  job.SourceURL,
		Overrides:  job.SourceOverrides,
		StagingDir: s.stagingDir,
	})
	if err != nil {
		return nil, nil, "", phaseError(phaseCtx, "downloading", err)
	}

	files := make([]archive.CreateRequest, 0, len(result.Files))
	for _, f := range result.Files {
		files = append(files, archive.CreateRequest{FilePath: f.Path, ContentType: f.ContentType})
	}
	if !job.SafetyOverride && result.Safety != "" {
		safety = queue.MoreRestrictive(safety, result.Safety)
	}
	return files, tagnorm.NormalizeAll(result.Tags), safety, nil
}

func (s *Scheduler) runTagging(ctx context.Context, job *queue.Job, files []archive.CreateRequest) ([]string, error) {
	phaseCtx, cancel := s.phaseContext(ctx, s.cfg.TagTimeout)
	defer cancel()

	tags, err := s.tagger.Tag(phaseCtx, tagging.Request{JobID: job.ID, Path: files[0].FilePath})
	if err != nil {
		return nil, phaseError(phaseCtx, "tagging", err)
	}
	return tags, nil
}

func (s *Scheduler) runUpload(ctx context.Context, job *queue.Job, files []archive.CreateRequest, sourceTags, aiTags []string, safety queue.Safety) (*dedup.Outcome, error) {
	phaseCtx, cancel := s.phaseContext(ctx, s.cfg.UploadTimeout)
	defer cancel()

	outcome, err := s.engine.Publish(phaseCtx, job.Owner, dedup.PublishRequest{
		Files:          files,
		Tags:           tagnorm.Union(job.InitialTags, sourceTags, aiTags),
		Safety:         safety,
		SafetyOverride: job.SafetyOverride,
	})
	if err != nil {
		return nil, phaseError(phaseCtx, "uploading", err)
	}
	return outcome, nil
}

func (s *Scheduler) phaseContext(ctx context.Context, timeoutSeconds int) (context.Context, context.CancelFunc) {
	timeout := time.Duration(timeoutSeconds) * time.Second
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// phaseError maps a deadline expiry onto the timeout marker so retry
// classification treats it as a phase failure.
func phaseError(ctx context.Context, phase string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, services.ErrTimeout) {
		return services.Wrap(services.ErrTimeout, phase, "deadline", "phase exceeded its deadline", err)
	}
	return err
}

// checkpoint honors any control command recorded for the job. It reports
// true when the command ended this worker's involvement.
func (s *Scheduler) checkpoint(ctx context.Context, jobID, workerID string, logger *slog.Logger) bool {
	command, err := s.store.TakePendingCommand(ctx, jobID)
	if err != nil {
		logger.Warn("failed to read pending command", logging.Error(err))
		return false
	}
	if command == "" {
		return false
	}

	logger.Info("honoring control command at checkpoint", logging.String("command", command))
	switch lifecycle.Command(command) {
	case lifecycle.CommandPause:
		if _, err := s.machine.Transition(ctx, jobID, queue.StatusPaused, clearLeaseFields); err != nil {
			logger.Error("failed to pause at checkpoint", logging.Error(err))
			s.releaseLease(ctx, jobID, workerID, logger)
		}
		return true
	case lifecycle.CommandStop:
		if _, err := s.machine.Transition(ctx, jobID, queue.StatusStopped, clearLeaseFields); err != nil {
			logger.Error("failed to stop at checkpoint", logging.Error(err))
			s.releaseLease(ctx, jobID, workerID, logger)
		}
		return true
	case lifecycle.CommandDelete:
		s.releaseLease(ctx, jobID, workerID, logger)
		if err := s.machine.Remove(ctx, jobID); err != nil {
			logger.Error("failed to delete at checkpoint", logging.Error(err))
		}
		return true
	default:
		logger.Warn("ignoring unknown pending command", logging.String("command", command))
		return false
	}
}

// settleFailure records a phase failure, or releases the lease untouched when
// the daemon is shutting down so the job can be reclaimed later.
func (s *Scheduler) settleFailure(ctx context.Context, job *queue.Job, workerID string, cause error, logger *slog.Logger) {
	if errors.Is(cause, context.Canceled) || ctx.Err() != nil {
		logger.Info("phase interrupted by shutdown")
		s.releaseLease(context.WithoutCancel(ctx), job.ID, workerID, logger)
		return
	}

	retryDelay := time.Duration(s.cfg.RetryDelay) * time.Second
	retryMaxDelay := time.Duration(s.cfg.RetryMaxDelay) * time.Second
	failed, err := s.machine.Fail(ctx, job.ID, cause, retryDelay, retryMaxDelay, s.cfg.BackoffFactor)
	if err != nil {
		logger.Error("failed to record job failure", logging.Error(err))
		s.releaseLease(ctx, job.ID, workerID, logger)
		return
	}

	attrs := []logging.Attr{
		logging.Error(cause),
		logging.Int("retry_count", failed.RetryCount),
	}
	if failed.RetryAt != nil {
		attrs = append(attrs, logging.String("retry_at", failed.RetryAt.Format(time.RFC3339)))
	}
	logger.Warn("job failed", logging.Args(attrs...)...)

	if err := s.notifier.NotifyFailed(ctx, failed.ID, failed.ErrorMessage); err != nil {
		logger.Debug("failure notification not delivered", logging.Error(err))
	}
}

func (s *Scheduler) notifyOutcome(ctx context.Context, job *queue.Job) {
	var err error
	if job.WasMerge {
		err = s.notifier.NotifyMerged(ctx, job.ID, job.PublishedID)
	} else {
		err = s.notifier.NotifyCompleted(ctx, job.ID, job.PublishedID, len(job.TagsApplied))
	}
	if err != nil {
		s.logger.Debug("outcome notification not delivered",
			logging.String(logging.FieldJobID, job.ID),
			logging.Error(err))
	}
}

func (s *Scheduler) releaseLease(ctx context.Context, jobID, workerID string, logger *slog.Logger) {
	if err := s.store.ReleaseLease(ctx, jobID, workerID); err != nil {
		logger.Error("failed to release lease", logging.Error(err))
	}
}

func (s *Scheduler) heartbeatLoop(ctx context.Context, wg *sync.WaitGroup, jobID, workerID string, logger *slog.Logger) {
	defer wg.Done()
	if s.heartbeatPeriod <= 0 {
		return
	}
	ticker := time.NewTicker(s.heartbeatPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			held, err := s.store.UpdateHeartbeat(ctx, jobID, workerID)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				logger.Warn("heartbeat update failed", logging.Error(err))
				continue
			}
			if !held {
				logger.Warn("lease no longer held; stopping heartbeat")
				return
			}
		}
	}
}

func clearLeaseFields(j *queue.Job) {
	j.LeaseOwner = ""
	j.LastHeartbeat = nil
	j.PendingCommand = ""
}
