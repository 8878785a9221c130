package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ClaimNextPending leases the oldest pending job for the given worker. It
// returns (nil, nil) when no pending job is available. The claim is a
// compare-and-swap: the UPDATE only succeeds while the job is still pending
// and unleased, so two workers can never hold the same job.
func (s *Store) ClaimNextPending(ctx context.Context, workerID string) (*Job, error) {
	if workerID == "" {
		return nil, errors.New("worker id is required")
	}
	ctx = ensureContext(ctx)

	for {
		row := s.db.QueryRowContext(ctx,
			`SELECT id FROM jobs WHERE status = ? AND (lease_owner IS NULL OR lease_owner = '')
             ORDER BY created_at LIMIT 1`, StatusPending)
		var id string
		if err := row.Scan(&id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}
			return nil, fmt.Errorf("select pending job: %w", err)
		}

		now := time.Now().UTC().Format(time.RFC3339Nano)
		res, err := s.execWithRetry(ctx,
			`UPDATE jobs SET lease_owner = ?, last_heartbeat = ?, updated_at = ?
             WHERE id = ? AND status = ? AND (lease_owner IS NULL OR lease_owner = '')`,
			workerID, now, now, id, StatusPending)
		if err != nil {
			return nil, fmt.Errorf("claim job: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			// Lost the race to another worker; try the next candidate.
			continue
		}
		return s.GetByID(ctx, id)
	}
}

// ReleaseLease clears lease bookkeeping for a job held by workerID.
func (s *Store) ReleaseLease(ctx context.Context, jobID, workerID string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.execWithRetry(ensureContext(ctx),
		`UPDATE jobs SET lease_owner = '', last_heartbeat = NULL, updated_at = ?
         WHERE id = ? AND lease_owner = ?`,
		now, jobID, workerID)
	if err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}

// UpdateHeartbeat refreshes the lease heartbeat for a held job. It reports
// false when the worker no longer holds the lease.
func (s *Store) UpdateHeartbeat(ctx context.Context, jobID, workerID string) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(ensureContext(ctx),
		`UPDATE jobs SET last_heartbeat = ?, updated_at = ?
         WHERE id = ? AND lease_owner = ?`,
		now, now, jobID, workerID)
	if err != nil {
		return false, fmt.Errorf("update heartbeat: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ReclaimStaleLeases returns leased in-flight jobs whose heartbeat is older
// than the cutoff to pending so another worker can pick them up. It returns
// the identifiers of the reclaimed jobs.
func (s *Store) ReclaimStaleLeases(ctx context.Context, cutoff time.Time) ([]string, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM jobs
         WHERE lease_owner IS NOT NULL AND lease_owner != ''
           AND status IN (?, ?, ?)
           AND (last_heartbeat IS NULL OR last_heartbeat < ?)`,
		StatusDownloading, StatusTagging, StatusUploading,
		cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("select stale leases: %w", err)
	}
	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		stale = append(stale, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	var reclaimed []string
	for _, id := range stale {
		res, err := s.execWithRetry(ctx,
			`UPDATE jobs SET status = ?, lease_owner = '', last_heartbeat = NULL, updated_at = ?
             WHERE id = ? AND status IN (?, ?, ?)
               AND (last_heartbeat IS NULL OR last_heartbeat < ?)`,
			StatusPending, now, id,
			StatusDownloading, StatusTagging, StatusUploading,
			cutoff.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return reclaimed, fmt.Errorf("reclaim lease for %s: %w", id, err)
		}
		if affected, err := res.RowsAffected(); err == nil && affected > 0 {
			reclaimed = append(reclaimed, id)
		}
	}
	return reclaimed, nil
}

// DueRetries returns failed jobs whose retry deadline has passed.
func (s *Store) DueRetries(ctx context.Context, now time.Time) ([]*Job, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+jobColumns+` FROM jobs
         WHERE status = ? AND retry_at IS NOT NULL AND retry_at <= ?
         ORDER BY retry_at`,
		StatusFailed, now.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("select due retries: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// SetPendingCommand records a control command for an in-flight job. The
// worker observes the command at its next phase boundary.
func (s *Store) SetPendingCommand(ctx context.Context, jobID, command string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(ensureContext(ctx),
		`UPDATE jobs SET pending_command = ?, updated_at = ? WHERE id = ?`,
		command, now, jobID)
	if err != nil {
		return fmt.Errorf("set pending command: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("job %s not found", jobID)
	}
	return nil
}

// TakePendingCommand atomically reads and clears a job's pending command.
// It returns the empty string when no command is queued.
func (s *Store) TakePendingCommand(ctx context.Context, jobID string) (string, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		`SELECT pending_command FROM jobs WHERE id = ?`, jobID)
	var command sql.NullString
	if err := row.Scan(&command); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("read pending command: %w", err)
	}
	if !command.Valid || command.String == "" {
		return "", nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET pending_command = NULL, updated_at = ?
         WHERE id = ? AND pending_command = ?`,
		now, jobID, command.String)
	if err != nil {
		return "", fmt.Errorf("clear pending command: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		// Command changed under us; let the next boundary pick it up.
		return "", nil
	}
	return command.String, nil
}
