// Package queue persists jobs and their lifecycle state in SQLite.
//
// The store is the single source of truth for job fields. Status strings are
// defined here so every other package shares one vocabulary; the transition
// rules that constrain them live in internal/lifecycle. Worker mutual
// exclusion is enforced through lease columns: ClaimNextPending flips the
// lease atomically so exactly one worker ever holds a job.
package queue
