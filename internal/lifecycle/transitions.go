package lifecycle

import (
	"fmt"

	"curator/internal/queue"
	"curator/internal/services"
)

// Command is a control verb accepted against a job.
type Command string

const (
	CommandStart  Command = "start"
	CommandPause  Command = "pause"
	CommandResume Command = "resume"
	CommandStop   Command = "stop"
	CommandRetry  Command = "retry"
	CommandDelete Command = "delete"
)

// ParseCommand converts a string into a known Command.
func ParseCommand(value string) (Command, bool) {
	switch Command(value) {
	case CommandStart, CommandPause, CommandResume, CommandStop, CommandRetry, CommandDelete:
		return Command(value), true
	default:
		return "", false
	}
}

// transitions enumerates every legal status edge. Anything absent is invalid.
var transitions = map[queue.Status]map[queue.Status]struct{}{
	queue.StatusPending: {
		queue.StatusDownloading: {},
		queue.StatusStopped:     {},
	},
	queue.StatusDownloading: {
		queue.StatusTagging:   {},
		queue.StatusUploading: {},
		queue.StatusPaused:    {},
		queue.StatusStopped:   {},
		queue.StatusFailed:    {},
	},
	queue.StatusTagging: {
		queue.StatusUploading: {},
		queue.StatusPaused:    {},
		queue.StatusStopped:   {},
		queue.StatusFailed:    {},
	},
	queue.StatusUploading: {
		queue.StatusCompleted: {},
		queue.StatusMerged:    {},
		queue.StatusPaused:    {},
		queue.StatusStopped:   {},
		queue.StatusFailed:    {},
	},
	queue.StatusPaused: {
		queue.StatusPending: {},
		queue.StatusStopped: {},
	},
	queue.StatusFailed: {
		queue.StatusPending: {},
		queue.StatusStopped: {},
	},
}

// CanTransition reports whether the edge from one status to another is legal.
func CanTransition(from, to queue.Status) bool {
	targets, ok := transitions[from]
	if !ok {
		return false
	}
	_, ok = targets[to]
	return ok
}

// deletable statuses may have their record removed outright. Leased jobs are
// handled separately: delete marks them for cancellation first.
var deletable = map[queue.Status]struct{}{
	queue.StatusPending: {},
	queue.StatusPaused:  {},
	queue.StatusStopped: {},
	queue.StatusFailed:  {},
}

// Deletable reports whether a job in the given status may be removed directly.
func Deletable(status queue.Status) bool {
	_, ok := deletable[status]
	return ok
}

// InvalidTransitionError names the rejected (status, target) pair. It never
// silently no-ops: callers asking for an illegal edge always see this error.
type InvalidTransitionError struct {
	JobID   string
	From    queue.Status
	To      queue.Status
	Command Command
}

func (e *InvalidTransitionError) Error() string {
	if e.Command != "" {
		return fmt.Sprintf("invalid transition: command %q not allowed for job %s in status %s", e.Command, e.JobID, e.From)
	}
	return fmt.Sprintf("invalid transition: job %s cannot move from %s to %s", e.JobID, e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error {
	return services.ErrValidation
}

// Apply resolves a control command against the job's current status and
// returns the target status. Start, pause, resume, stop, and retry map to
// status edges; delete is resolved by the caller through Deletable. Retry
// enforces the configured attempt cap.
func Apply(job *queue.Job, command Command, maxRetries int) (queue.Status, error) {
	if job == nil {
		return "", services.Wrap(services.ErrValidation, "", "apply", "job is nil", nil)
	}
	reject := func() (queue.Status, error) {
		return "", &InvalidTransitionError{JobID: job.ID, From: job.Status, Command: command}
	}
	switch command {
	case CommandStart:
		if job.Status != queue.StatusPending {
			return reject()
		}
		return queue.StatusDownloading, nil
	case CommandPause:
		if !queue.IsActive(job.Status) {
			return reject()
		}
		return queue.StatusPaused, nil
	case CommandResume:
		if job.Status != queue.StatusPaused {
			return reject()
		}
		return queue.StatusPending, nil
	case CommandStop:
		if queue.IsTerminal(job.Status) {
			return reject()
		}
		return queue.StatusStopped, nil
	case CommandRetry:
		if job.Status != queue.StatusFailed {
			return reject()
		}
		if maxRetries > 0 && job.RetryCount >= maxRetries {
			return "", services.Wrap(services.ErrValidation, "", "retry",
				fmt.Sprintf("job %s exhausted %d retry attempts", job.ID, job.RetryCount), nil)
		}
		return queue.StatusPending, nil
	case CommandDelete:
		return "", services.Wrap(services.ErrValidation, "", "apply", "delete is not a status transition", nil)
	default:
		return "", services.Wrap(services.ErrValidation, "", "apply",
			fmt.Sprintf("unknown command %q", command), nil)
	}
}
