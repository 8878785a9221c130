package events

import (
	"time"

	"curator/internal/queue"
)

// Type identifies the kind of bus event.
type Type string

const (
	TypeJobCreated   Type = "job_created"
	TypeJobUpdated   Type = "job_updated"
	TypeJobCompleted Type = "job_completed"
	TypeJobMerged    Type = "job_merged"
	TypeJobFailed    Type = "job_failed"
	TypeJobDeleted   Type = "job_deleted"
	TypeHeartbeat    Type = "heartbeat"
)

// Event is one bus message. Sequence is assigned by the hub at publish time.
// Transition events carry both the old and new status plus the job fields that
// changed with the transition.
type Event struct {
	Sequence    uint64       `json:"seq"`
	Type        Type         `json:"type"`
	Timestamp   time.Time    `json:"ts"`
	JobID       string       `json:"job_id,omitempty"`
	PrevStatus  queue.Status `json:"prev_status,omitempty"`
	Status      queue.Status `json:"status,omitempty"`
	Phase       string       `json:"phase,omitempty"`
	PublishedID int64        `json:"published_id,omitempty"`
	WasMerge    bool         `json:"was_merge,omitempty"`
	TagsApplied []string     `json:"tags_applied,omitempty"`
	RelatedIDs  []int64      `json:"related_ids,omitempty"`
	Error       string       `json:"error,omitempty"`
	Detail      string       `json:"detail,omitempty"`
}

// TypeForStatus picks the event type that describes a transition into status.
func TypeForStatus(status queue.Status) Type {
	switch status {
	case queue.StatusCompleted:
		return TypeJobCompleted
	case queue.StatusMerged:
		return TypeJobMerged
	case queue.StatusFailed:
		return TypeJobFailed
	default:
		return TypeJobUpdated
	}
}
