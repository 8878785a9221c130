// Package logging builds the slog loggers used across curator and defines
// the shared structured-field vocabulary (job_id, phase, event_type, ...).
package logging
