package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks requests rejected before a job is ever created.
	ErrValidation = errors.New("validation error")
	// ErrExtraction marks failures while resolving or fetching source media.
	ErrExtraction = errors.New("extraction error")
	// ErrTagging marks failures from the tagging service.
	ErrTagging = errors.New("tagging error")
	// ErrUpload marks failures while talking to the archive.
	ErrUpload = errors.New("upload error")
	// ErrTimeout marks a phase that exceeded its configured deadline.
	ErrTimeout = errors.New("timeout")
	// ErrCancelled marks a job stopped mid-phase; it is not a fault.
	ErrCancelled = errors.New("cancelled")
	// ErrConfiguration marks unusable configuration or credentials.
	ErrConfiguration = errors.New("configuration error")
)

// Wrap builds an error message that includes phase context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, phase, operation, message string, err error) error {
	detail := buildDetail(phase, operation, message)
	if marker == nil {
		marker = ErrUpload
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsRetryable reports whether a phase failure qualifies for automatic retry.
// Validation and configuration problems do not resolve themselves; everything
// that depends on a remote service might.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConfiguration), errors.Is(err, ErrCancelled):
		return false
	case errors.Is(err, ErrExtraction), errors.Is(err, ErrTagging), errors.Is(err, ErrUpload), errors.Is(err, ErrTimeout):
		return true
	default:
		return false
	}
}

func buildDetail(phase, operation, message string) string {
	parts := make([]string, 0, 3)
	if phase = strings.TrimSpace(phase); phase != "" {
		parts = append(parts, phase)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
