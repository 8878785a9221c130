// Package services defines shared utilities consumed by the job pipeline
// phases and external adapters.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, phase names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that classify adapter
//     failures into retryable and terminal outcomes.
//
// Use these helpers when wiring new phase logic so operational behaviour
// (error handling, observability, retries) stays uniform across the pipeline.
package services
