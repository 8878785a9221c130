package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"

	"curator/internal/api"
	"curator/internal/config"
	"curator/internal/events"
	"curator/internal/logging"
	"curator/internal/notifications"
	"curator/internal/queue"
	"curator/internal/scheduler"
)

// Daemon coordinates the scheduler and API surfaces and enforces
// single-instance execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *queue.Store
	scheduler *scheduler.Scheduler
	hub       *events.Hub
	service   *api.JobService

	lockPath string
	lock     *flock.Flock

	apiServer *apiServer

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	PID           int
	QueueDBPath   string
	LockFilePath  string
	ActiveWorkers int
	Subscribers   int
	QueueStats    map[string]int
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, sched *scheduler.Scheduler, hub *events.Hub, service *api.JobService, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || sched == nil || hub == nil || service == nil {
		return nil, errors.New("daemon requires config, store, scheduler, hub, and job service")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "curatord.lock")
	d := &Daemon{
		cfg:       cfg,
		logger:    logger.With(logging.String(logging.FieldComponent, "daemon")),
		store:     store,
		scheduler: sched,
		hub:       hub,
		service:   service,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}
	d.apiServer = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, launches the scheduler, and brings up the
// API server when a bind address is configured.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another curator daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.scheduler.Start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		d.cancel = nil
		return fmt.Errorf("start scheduler: %w", err)
	}
	if err := d.apiServer.start(runCtx); err != nil {
		d.scheduler.Stop()
		_ = d.lock.Unlock()
		cancel()
		d.cancel = nil
		return err
	}

	d.running.Store(true)
	d.logger.Info("curator daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop halts the API server and scheduler and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.apiServer.stop()
	d.scheduler.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("curator daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	d.hub.Close()
	return d.store.Close()
}

// Jobs exposes the shared job service for IPC callers.
func (d *Daemon) Jobs() *api.JobService {
	return d.service
}

// TestNotification triggers a test notification using the current
// configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	notifier := notifications.NewService(d.cfg.Notifications)
	if err := notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:       d.running.Load(),
		PID:           os.Getpid(),
		QueueDBPath:   d.store.Path(),
		LockFilePath:  d.lockPath,
		ActiveWorkers: d.scheduler.ActiveWorkers(),
		Subscribers:   d.hub.SubscriberCount(),
	}
	counts, err := d.store.Stats(ctx)
	if err != nil {
		d.logger.Warn("failed to read queue stats", logging.Error(err))
		return status
	}
	status.QueueStats = make(map[string]int, len(counts))
	for s, n := range counts {
		status.QueueStats[string(s)] = n
	}
	return status
}
