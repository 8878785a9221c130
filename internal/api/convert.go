package api

import (
	"time"

	"curator/internal/queue"
)

// FromJob converts a queue record into its API representation.
func FromJob(job *queue.Job) Job {
	out := Job{
		ID:              job.ID,
		Status:          string(job.Status),
		JobType:         string(job.JobType),
		SourceURL:       job.SourceURL,
		SourceOverrides: job.SourceOverrides,
		UploadPath:      job.UploadPath,
		InitialTags:     job.InitialTags,
		TagsFromSource:  job.TagsFromSource,
		TagsFromAI:      job.TagsFromAI,
		TagsApplied:     job.TagsApplied,
		Safety:          string(job.Safety),
		SafetyOverride:  job.SafetyOverride,
		SkipTagging:     job.SkipTagging,
		PublishedID:     job.PublishedID,
		RelatedIDs:      job.RelatedIDs,
		WasMerge:        job.WasMerge,
		RetryCount:      job.RetryCount,
		ErrorMessage:    job.ErrorMessage,
		Owner:           job.Owner,
		CreatedAt:       formatTime(job.CreatedAt),
		UpdatedAt:       formatTime(job.UpdatedAt),
	}
	if job.CompletedAt != nil {
		out.CompletedAt = formatTime(*job.CompletedAt)
	}
	if job.RetryAt != nil {
		out.RetryAt = formatTime(*job.RetryAt)
	}
	return out
}

// FromJobs converts a slice of queue records.
func FromJobs(jobs []*queue.Job) []Job {
	out := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, FromJob(job))
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateTimeFormat)
}
