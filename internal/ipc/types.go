package ipc

import "curator/internal/api"

// Job mirrors the HTTP API job DTO for internal IPC callers.
type Job = api.Job

// StopRequest stops the daemon.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon and queue status information.
type StatusResponse struct {
	Running       bool           `json:"running"`
	PID           int            `json:"pid"`
	QueueDBPath   string         `json:"queue_db_path"`
	LockPath      string         `json:"lock_path"`
	ActiveWorkers int            `json:"active_workers"`
	Subscribers   int            `json:"subscribers"`
	QueueStats    map[string]int `json:"queue_stats"`
}

// JobEnqueueRequest creates a new job.
type JobEnqueueRequest struct {
	Job api.EnqueueRequest `json:"job"`
}

// JobEnqueueResponse returns the created job.
type JobEnqueueResponse struct {
	Job Job `json:"job"`
}

// JobListRequest filters job listing by status and owner.
type JobListRequest struct {
	Statuses []string `json:"statuses"`
	Owner    string   `json:"owner"`
}

// JobListResponse contains queue entries.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// JobDescribeRequest fetches a single job by id.
type JobDescribeRequest struct {
	ID string `json:"id"`
}

// JobDescribeResponse contains a single job.
type JobDescribeResponse struct {
	Job Job `json:"job"`
}

// JobCommandRequest applies a control verb to one or more jobs.
type JobCommandRequest struct {
	Command string   `json:"command"`
	IDs     []string `json:"ids"`
}

// JobCommandResponse reports per-job outcomes.
type JobCommandResponse struct {
	Results []api.BulkResult `json:"results"`
}

// HealthRequest fetches aggregate diagnostics.
type HealthRequest struct{}

// HealthResponse reports queue and daemon health information.
type HealthResponse struct {
	Running       bool           `json:"running"`
	ActiveWorkers int            `json:"active_workers"`
	Subscribers   int            `json:"subscribers"`
	Queue         map[string]int `json:"queue"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
