package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Job describes a queue record in a transport-friendly format.
type Job struct {
	ID              string   `json:"id"`
	Status          string   `json:"status"`
	JobType         string   `json:"jobType"`
	SourceURL       string   `json:"sourceUrl,omitempty"`
	SourceOverrides []string `json:"sourceOverrides,omitempty"`
	UploadPath      string   `json:"uploadPath,omitempty"`
	InitialTags     []string `json:"initialTags,omitempty"`
	TagsFromSource  []string `json:"tagsFromSource,omitempty"`
	TagsFromAI      []string `json:"tagsFromAi,omitempty"`
	TagsApplied     []string `json:"tagsApplied,omitempty"`
	Safety          string   `json:"safety,omitempty"`
	SafetyOverride  bool     `json:"safetyOverride,omitempty"`
	SkipTagging     bool     `json:"skipTagging,omitempty"`
	PublishedID     int64    `json:"publishedId,omitempty"`
	RelatedIDs      []int64  `json:"relatedIds,omitempty"`
	WasMerge        bool     `json:"wasMerge,omitempty"`
	RetryCount      int      `json:"retryCount"`
	ErrorMessage    string   `json:"errorMessage,omitempty"`
	Owner           string   `json:"owner,omitempty"`
	CreatedAt       string   `json:"createdAt,omitempty"`
	UpdatedAt       string   `json:"updatedAt,omitempty"`
	CompletedAt     string   `json:"completedAt,omitempty"`
	RetryAt         string   `json:"retryAt,omitempty"`
}

// EnqueueRequest creates a new job.
type EnqueueRequest struct {
	JobType         string   `json:"jobType"`
	SourceURL       string   `json:"sourceUrl,omitempty"`
	SourceOverrides []string `json:"sourceOverrides,omitempty"`
	UploadPath      string   `json:"uploadPath,omitempty"`
	InitialTags     []string `json:"initialTags,omitempty"`
	Safety          string   `json:"safety,omitempty"`
	SafetyOverride  bool     `json:"safetyOverride,omitempty"`
	SkipTagging     bool     `json:"skipTagging,omitempty"`
	Owner           string   `json:"owner,omitempty"`
}

// ListRequest filters job listings.
type ListRequest struct {
	Statuses []string `json:"statuses,omitempty"`
	Owner    string   `json:"owner,omitempty"`
}

// BulkResult reports one job's outcome within a bulk command.
type BulkResult struct {
	JobID string `json:"jobId"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// BulkRequest applies one command to many jobs.
type BulkRequest struct {
	Command string   `json:"command"`
	JobIDs  []string `json:"jobIds"`
}

// BulkResponse carries per-job outcomes for a bulk command.
type BulkResponse struct {
	Results []BulkResult `json:"results"`
}

// JobListResponse wraps a collection of jobs.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job Job `json:"job"`
}

// StatsResponse provides job counts keyed by status.
type StatsResponse struct {
	Counts map[string]int `json:"counts"`
}

// DaemonStatus represents daemon runtime information.
type DaemonStatus struct {
	Running       bool           `json:"running"`
	PID           int            `json:"pid"`
	QueueDBPath   string         `json:"queueDbPath"`
	LockFilePath  string         `json:"lockFilePath"`
	ActiveWorkers int            `json:"activeWorkers"`
	Subscribers   int            `json:"subscribers"`
	QueueStats    map[string]int `json:"queueStats"`
}

// HealthResponse summarizes daemon and queue health.
type HealthResponse struct {
	Running       bool           `json:"running"`
	ActiveWorkers int            `json:"activeWorkers"`
	Subscribers   int            `json:"subscribers"`
	Queue         map[string]int `json:"queue"`
}
