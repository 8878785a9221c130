package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a job.
type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusTagging     Status = "tagging"
	StatusUploading   Status = "uploading"
	StatusPaused      Status = "paused"
	StatusStopped     Status = "stopped"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusMerged      Status = "merged"
)

// JobType distinguishes fetch-from-source jobs from caller-supplied uploads.
type JobType string

const (
	JobTypeURL    JobType = "url"
	JobTypeUpload JobType = "upload"
)

// Safety is the content-sensitivity rating attached to published items,
// ordered from least to most restrictive.
type Safety string

const (
	SafetySafe         Safety = "safe"
	SafetyQuestionable Safety = "questionable"
	SafetyExplicit     Safety = "explicit"
)

var safetyRank = map[Safety]int{
	SafetySafe:         0,
	SafetyQuestionable: 1,
	SafetyExplicit:     2,
}

// MoreRestrictive returns the stricter of two safety ratings. Unknown ratings
// lose to known ones.
func MoreRestrictive(a, b Safety) Safety {
	ra, okA := safetyRank[a]
	rb, okB := safetyRank[b]
	switch {
	case !okA && !okB:
		return a
	case !okA:
		return b
	case !okB:
		return a
	case rb > ra:
		return b
	default:
		return a
	}
}

var allStatuses = []Status{
	StatusPending,
	StatusDownloading,
	StatusTagging,
	StatusUploading,
	StatusPaused,
	StatusStopped,
	StatusCompleted,
	StatusFailed,
	StatusMerged,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var activeStatuses = map[Status]struct{}{
	StatusDownloading: {},
	StatusTagging:     {},
	StatusUploading:   {},
}

var terminalStatuses = map[Status]struct{}{
	StatusCompleted: {},
	StatusMerged:    {},
	StatusStopped:   {},
}

// Job is one request to acquire, tag, and publish a piece of content.
type Job struct {
	ID              string
	Status          Status
	JobType         JobType
	SourceURL       string
	SourceOverrides []string
	UploadPath      string
	InitialTags     []string
	TagsFromSource  []string
	TagsFromAI      []string
	TagsApplied     []string
	Safety          Safety
	SafetyOverride  bool
	SkipTagging     bool
	PublishedID     int64
	RelatedIDs      []int64
	WasMerge        bool
	RetryCount      int
	ErrorMessage    string
	Owner           string
	PendingCommand  string
	LeaseOwner      string
	LastHeartbeat   *time.Time
	RetryAt         *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
}

// HealthSummary describes aggregated job counts per key lifecycle states.
type HealthSummary struct {
	Total     int
	Pending   int
	Active    int
	Paused    int
	Failed    int
	Completed int
	Merged    int
	Stopped   int
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsActive reports whether a status reflects an in-flight pipeline phase.
func IsActive(status Status) bool {
	_, ok := activeStatuses[status]
	return ok
}

// IsTerminal reports whether a status admits no further transitions.
func IsTerminal(status Status) bool {
	_, ok := terminalStatuses[status]
	return ok
}

// IsActive reports whether the job is currently inside a pipeline phase.
func (j *Job) IsActive() bool {
	return IsActive(j.Status)
}

// Leased reports whether a worker currently holds this job.
func (j *Job) Leased() bool {
	return j.LeaseOwner != ""
}

// SetFailed marks the job as failed with the given error message and clears
// lease bookkeeping.
func (j *Job) SetFailed(message string) {
	j.Status = StatusFailed
	j.ErrorMessage = message
	j.LeaseOwner = ""
	j.LastHeartbeat = nil
}
