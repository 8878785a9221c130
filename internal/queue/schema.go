package queue

import (
	"context"
	"fmt"
)

const createJobsTable = `
CREATE TABLE IF NOT EXISTS jobs (
    id               TEXT PRIMARY KEY,
    status           TEXT NOT NULL,
    job_type         TEXT NOT NULL,
    source_url       TEXT,
    source_overrides TEXT,
    upload_path      TEXT,
    initial_tags     TEXT,
    tags_from_source TEXT,
    tags_from_ai     TEXT,
    tags_applied     TEXT,
    safety           TEXT,
    safety_override  INTEGER NOT NULL DEFAULT 0,
    skip_tagging     INTEGER NOT NULL DEFAULT 0,
    published_id     INTEGER NOT NULL DEFAULT 0,
    related_ids      TEXT,
    was_merge        INTEGER NOT NULL DEFAULT 0,
    retry_count      INTEGER NOT NULL DEFAULT 0,
    error_message    TEXT,
    owner            TEXT,
    pending_command  TEXT,
    lease_owner      TEXT,
    last_heartbeat   TEXT,
    retry_at         TEXT,
    created_at       TEXT NOT NULL,
    updated_at       TEXT NOT NULL,
    completed_at     TEXT
)`

var schemaIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_jobs_status_created ON jobs (status, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_owner ON jobs (owner)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_retry_at ON jobs (retry_at) WHERE retry_at IS NOT NULL`,
}

func (s *Store) initSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createJobsTable); err != nil {
		return fmt.Errorf("create jobs table: %w", err)
	}
	for _, stmt := range schemaIndexes {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}
