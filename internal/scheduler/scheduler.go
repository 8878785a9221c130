package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"curator/internal/config"
	"curator/internal/dedup"
	"curator/internal/events"
	"curator/internal/extraction"
	"curator/internal/lifecycle"
	"curator/internal/logging"
	"curator/internal/notifications"
	"curator/internal/queue"
	"curator/internal/tagging"
)

// Scheduler owns the worker pool and the background maintenance loops.
type Scheduler struct {
	cfg       config.Workers
	store     *queue.Store
	machine   *lifecycle.Machine
	hub       *events.Hub
	extractor extraction.Extractor
	tagger    tagging.Tagger
	engine    *dedup.Engine
	notifier  notifications.Service
	logger    *slog.Logger

	stagingDir       string
	busHeartbeat     time.Duration
	pollInterval     time.Duration
	errorRetryPause  time.Duration
	heartbeatPeriod  time.Duration
	heartbeatTimeout time.Duration

	slots chan struct{}
	wake  chan struct{}

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Options bundles the scheduler's collaborators.
type Options struct {
	Config     *config.Config
	Store      *queue.Store
	Machine    *lifecycle.Machine
	Hub        *events.Hub
	Extractor  extraction.Extractor
	Tagger     tagging.Tagger
	Engine     *dedup.Engine
	Notifier   notifications.Service
	Logger     *slog.Logger
}

// New builds a stopped scheduler.
func New(opts Options) *Scheduler {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notifications.NewService(config.Notifications{})
	}
	workers := opts.Config.Workers
	concurrency := workers.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	poll := time.Duration(workers.QueuePollInterval) * time.Second
	if poll <= 0 {
		poll = 2 * time.Second
	}
	errPause := time.Duration(workers.ErrorRetryInterval) * time.Second
	if errPause <= 0 {
		errPause = 10 * time.Second
	}

	return &Scheduler{
		cfg:              workers,
		store:            opts.Store,
		machine:          opts.Machine,
		hub:              opts.Hub,
		extractor:        opts.Extractor,
		tagger:           opts.Tagger,
		engine:           opts.Engine,
		notifier:         notifier,
		logger:           logger.With(logging.String(logging.FieldComponent, "scheduler")),
		stagingDir:       opts.Config.Paths.StagingDir,
		busHeartbeat:     time.Duration(opts.Config.Events.HeartbeatInterval) * time.Second,
		pollInterval:     poll,
		errorRetryPause:  errPause,
		heartbeatPeriod:  time.Duration(workers.HeartbeatInterval) * time.Second,
		heartbeatTimeout: time.Duration(workers.HeartbeatTimeout) * time.Second,
		slots:            make(chan struct{}, concurrency),
		wake:             make(chan struct{}, 1),
	}
}

// Start launches the dispatch and maintenance loops.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("scheduler already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	s.wg.Add(3)
	go s.dispatchLoop(runCtx)
	go s.retryLoop(runCtx)
	go s.reclaimLoop(runCtx)

	if s.busHeartbeat > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.hub.RunHeartbeat(runCtx, s.busHeartbeat)
		}()
	}

	s.logger.Info("scheduler started", logging.Int("concurrency", cap(s.slots)))
	return nil
}

// Stop halts dispatching and waits for in-flight workers to settle.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// Running reports whether the scheduler loops are active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// ActiveWorkers reports how many workers currently hold a slot.
func (s *Scheduler) ActiveWorkers() int {
	return len(s.slots)
}

// Submit nudges the dispatcher to look for pending work immediately instead
// of waiting for the next poll. Safe to call from any goroutine; redundant
// calls coalesce.
func (s *Scheduler) Submit() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) dispatchLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case s.slots <- struct{}{}:
		}

		job, err := s.store.ClaimNextPending(ctx, newWorkerID())
		if err != nil {
			<-s.slots
			if ctx.Err() != nil {
				return
			}
			s.logger.Error("failed to claim pending job",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check queue database access"))
			s.sleep(ctx, s.errorRetryPause)
			continue
		}
		if job == nil {
			<-s.slots
			s.waitForWork(ctx)
			continue
		}

		s.wg.Add(1)
		go func(claimed *queue.Job) {
			defer s.wg.Done()
			defer func() { <-s.slots }()
			s.runJob(ctx, claimed)
		}(job)
	}
}

func (s *Scheduler) waitForWork(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-s.wake:
	case <-time.After(s.pollInterval):
	}
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// retryLoop re-admits failed jobs whose backoff delay has expired.
func (s *Scheduler) retryLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		due, err := s.store.DueRetries(ctx, time.Now().UTC())
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Error("failed to list due retries", logging.Error(err))
			continue
		}
		for _, job := range due {
			if _, err := s.machine.Retry(ctx, job.ID); err != nil {
				s.logger.Warn("automatic retry rejected",
					logging.String(logging.FieldJobID, job.ID),
					logging.Error(err))
				continue
			}
			s.logger.Info("job re-admitted for retry",
				logging.String(logging.FieldJobID, job.ID),
				logging.Int("retry_count", job.RetryCount+1))
			s.Submit()
		}
	}
}

// reclaimLoop returns jobs with stale heartbeats to the pending pool.
func (s *Scheduler) reclaimLoop(ctx context.Context) {
	defer s.wg.Done()
	if s.heartbeatTimeout <= 0 {
		return
	}
	interval := s.heartbeatPeriod
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		cutoff := time.Now().UTC().Add(-s.heartbeatTimeout)
		reclaimed, err := s.store.ReclaimStaleLeases(ctx, cutoff)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Error("failed to reclaim stale leases", logging.Error(err))
			continue
		}
		for _, id := range reclaimed {
			s.logger.Warn("reclaimed stale lease",
				logging.String(logging.FieldJobID, id),
				logging.String(logging.FieldErrorHint, "worker stopped heartbeating"))
		}
		if len(reclaimed) > 0 {
			s.Submit()
		}
	}
}

func newWorkerID() string {
	return "worker-" + uuid.NewString()[:8]
}
