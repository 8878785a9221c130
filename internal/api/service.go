package api

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"curator/internal/events"
	"curator/internal/lifecycle"
	"curator/internal/logging"
	"curator/internal/queue"
	"curator/internal/services"
	"curator/internal/tagnorm"
)

// Dispatcher is the slice of the scheduler the service needs: waking the
// worker pool and reporting liveness.
type Dispatcher interface {
	Submit()
	Running() bool
	ActiveWorkers() int
}

// JobService implements the job operations shared by the HTTP and IPC
// surfaces. All writes flow through the lifecycle machine so every caller
// sees identical validation and events.
type JobService struct {
	store      *queue.Store
	machine    *lifecycle.Machine
	dispatcher Dispatcher
	hub        *events.Hub
	logger     *slog.Logger
}

// NewJobService wires the service over its collaborators. Dispatcher and hub
// may be nil in read-only contexts.
func NewJobService(store *queue.Store, machine *lifecycle.Machine, dispatcher Dispatcher, hub *events.Hub, logger *slog.Logger) *JobService {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &JobService{
		store:      store,
		machine:    machine,
		dispatcher: dispatcher,
		hub:        hub,
		logger:     logger.With(logging.String(logging.FieldComponent, "api")),
	}
}

// Enqueue validates and persists a new job, announces it on the event bus,
// and nudges the worker pool.
func (s *JobService) Enqueue(ctx context.Context, req EnqueueRequest) (*Job, error) {
	params := queue.NewJobParams{
		SourceURL:       strings.TrimSpace(req.SourceURL),
		SourceOverrides: req.SourceOverrides,
		UploadPath:      strings.TrimSpace(req.UploadPath),
		InitialTags:     tagnorm.NormalizeAll(req.InitialTags),
		SafetyOverride:  req.SafetyOverride,
		SkipTagging:     req.SkipTagging,
		Owner:           strings.TrimSpace(req.Owner),
	}

	if req.Safety != "" {
		safety := queue.Safety(strings.ToLower(strings.TrimSpace(req.Safety)))
		switch safety {
		case queue.SafetySafe, queue.SafetyQuestionable, queue.SafetyExplicit:
			params.Safety = safety
		default:
			return nil, services.Wrap(services.ErrValidation, "submission", "enqueue",
				fmt.Sprintf("unknown safety rating %q", req.Safety), nil)
		}
	}

	var (
		job *queue.Job
		err error
	)
	switch strings.ToLower(strings.TrimSpace(req.JobType)) {
	case "", string(queue.JobTypeURL):
		if err := ValidateSourceURL(params.SourceURL); err != nil {
			return nil, err
		}
		job, err = s.store.NewURLJob(ctx, params)
	case string(queue.JobTypeUpload):
		if params.UploadPath == "" {
			return nil, services.Wrap(services.ErrValidation, "submission", "enqueue",
				"upload path is required for upload jobs", nil)
		}
		job, err = s.store.NewUploadJob(ctx, params)
	default:
		return nil, services.Wrap(services.ErrValidation, "submission", "enqueue",
			fmt.Sprintf("unknown job type %q", req.JobType), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	s.machine.NotifyCreated(job)
	if s.dispatcher != nil {
		s.dispatcher.Submit()
	}
	s.logger.Info("job enqueued",
		logging.String(logging.FieldJobID, job.ID),
		logging.String("job_type", string(job.JobType)))

	dto := FromJob(job)
	return &dto, nil
}

// Get returns one job by ID.
func (s *JobService) Get(ctx context.Context, id string) (*Job, error) {
	job, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}
	if job == nil {
		return nil, fmt.Errorf("%w: job %s", lifecycle.ErrNotFound, id)
	}
	dto := FromJob(job)
	return &dto, nil
}

// List returns jobs matching the request's status and owner filters, oldest
// first.
func (s *JobService) List(ctx context.Context, req ListRequest) ([]Job, error) {
	filter := queue.ListFilter{Owner: strings.TrimSpace(req.Owner)}
	for _, raw := range req.Statuses {
		status, ok := queue.ParseStatus(raw)
		if !ok {
			return nil, services.Wrap(services.ErrValidation, "", "list",
				fmt.Sprintf("unknown status %q", raw), nil)
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	jobs, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return FromJobs(jobs), nil
}

// Stats returns job counts keyed by status.
func (s *JobService) Stats(ctx context.Context) (StatsResponse, error) {
	counts, err := s.store.Stats(ctx)
	if err != nil {
		return StatsResponse{}, fmt.Errorf("queue stats: %w", err)
	}
	out := make(map[string]int, len(counts))
	for status, n := range counts {
		out[string(status)] = n
	}
	return StatsResponse{Counts: out}, nil
}

// Health reports daemon liveness alongside queue totals.
func (s *JobService) Health(ctx context.Context) (HealthResponse, error) {
	summary, err := s.store.Health(ctx)
	if err != nil {
		return HealthResponse{}, fmt.Errorf("queue health: %w", err)
	}
	resp := HealthResponse{
		Queue: map[string]int{
			"total":     summary.Total,
			"pending":   summary.Pending,
			"active":    summary.Active,
			"paused":    summary.Paused,
			"failed":    summary.Failed,
			"completed": summary.Completed,
			"merged":    summary.Merged,
			"stopped":   summary.Stopped,
		},
	}
	if s.dispatcher != nil {
		resp.Running = s.dispatcher.Running()
		resp.ActiveWorkers = s.dispatcher.ActiveWorkers()
	}
	if s.hub != nil {
		resp.Subscribers = s.hub.SubscriberCount()
	}
	return resp, nil
}

// Command applies one control verb to one job.
func (s *JobService) Command(ctx context.Context, command, jobID string) error {
	verb, ok := lifecycle.ParseCommand(command)
	if !ok {
		return services.Wrap(services.ErrValidation, "", "command",
			fmt.Sprintf("unknown command %q", command), nil)
	}

	var err error
	switch verb {
	case lifecycle.CommandStart:
		err = s.start(ctx, jobID)
	case lifecycle.CommandPause:
		_, err = s.machine.Pause(ctx, jobID)
	case lifecycle.CommandResume:
		_, err = s.machine.Resume(ctx, jobID)
		if err == nil && s.dispatcher != nil {
			s.dispatcher.Submit()
		}
	case lifecycle.CommandStop:
		_, err = s.machine.Stop(ctx, jobID)
	case lifecycle.CommandRetry:
		_, err = s.machine.Retry(ctx, jobID)
		if err == nil && s.dispatcher != nil {
			s.dispatcher.Submit()
		}
	case lifecycle.CommandDelete:
		err = s.machine.Delete(ctx, jobID)
	}
	return err
}

// start marks a pending job for immediate pickup. The worker pool performs
// the actual transition when it claims the job.
func (s *JobService) start(ctx context.Context, jobID string) error {
	job, err := s.store.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	if job == nil {
		return fmt.Errorf("%w: job %s", lifecycle.ErrNotFound, jobID)
	}
	if job.Status != queue.StatusPending {
		return &lifecycle.InvalidTransitionError{JobID: jobID, From: job.Status, Command: lifecycle.CommandStart}
	}
	if s.dispatcher != nil {
		s.dispatcher.Submit()
	}
	return nil
}

// Bulk applies one command to many jobs. Each job is evaluated independently;
// a failure never aborts the remainder of the batch.
func (s *JobService) Bulk(ctx context.Context, command string, jobIDs []string) []BulkResult {
	results := make([]BulkResult, 0, len(jobIDs))
	for _, id := range jobIDs {
		result := BulkResult{JobID: id, OK: true}
		if err := s.Command(ctx, command, id); err != nil {
			result.OK = false
			result.Error = err.Error()
		}
		results = append(results, result)
	}
	return results
}
