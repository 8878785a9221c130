package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"curator/internal/config"
)

// Store manages job persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Open initializes or connects to the job database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.LogDir, "jobs.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the location of the backing database file.
func (s *Store) Path() string {
	return s.path
}

// NewJobParams carries caller-supplied fields for job creation.
type NewJobParams struct {
	SourceURL       string
	SourceOverrides []string
	UploadPath      string
	InitialTags     []string
	Safety          Safety
	SafetyOverride  bool
	SkipTagging     bool
	Owner           string
}

// NewURLJob enqueues a job that fetches content from a source URL.
func (s *Store) NewURLJob(ctx context.Context, params NewJobParams) (*Job, error) {
	if strings.TrimSpace(params.SourceURL) == "" {
		return nil, errors.New("source url is required")
	}
	return s.insertJob(ctx, JobTypeURL, params)
}

// NewUploadJob enqueues a job whose content bytes were already staged by the caller.
func (s *Store) NewUploadJob(ctx context.Context, params NewJobParams) (*Job, error) {
	if strings.TrimSpace(params.UploadPath) == "" {
		return nil, errors.New("upload path is required")
	}
	return s.insertJob(ctx, JobTypeUpload, params)
}

func (s *Store) insertJob(ctx context.Context, jobType JobType, params NewJobParams) (*Job, error) {
	id := uuid.NewString()
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO jobs (
            id, status, job_type, source_url, source_overrides, upload_path,
            initial_tags, safety, safety_override, skip_tagging, owner,
            created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		StatusPending,
		jobType,
		nullableString(params.SourceURL),
		nullableJSONStrings(params.SourceOverrides),
		nullableString(params.UploadPath),
		nullableJSONStrings(params.InitialTags),
		nullableString(string(params.Safety)),
		boolToInt(params.SafetyOverride),
		boolToInt(params.SkipTagging),
		nullableString(params.Owner),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a job by identifier. A missing job returns (nil, nil).
func (s *Store) GetByID(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListFilter narrows List results.
type ListFilter struct {
	Statuses []Status
	Owner    string
}

// List returns jobs matching the filter ordered by creation time.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	var (
		clauses []string
		args    []any
	)
	if len(filter.Statuses) > 0 {
		placeholders := makePlaceholders(len(filter.Statuses))
		clauses = append(clauses, `status IN (`+placeholders+`)`)
		for _, status := range filter.Statuses {
			args = append(args, status)
		}
	}
	if strings.TrimSpace(filter.Owner) != "" {
		clauses = append(clauses, `owner = ?`)
		args = append(args, filter.Owner)
	}
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, ` AND `)
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
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

// Update persists changes to an existing job.
func (s *Store) Update(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	job.UpdatedAt = time.Now().UTC()
	_, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET status = ?, source_url = ?, source_overrides = ?, upload_path = ?,
             initial_tags = ?, tags_from_source = ?, tags_from_ai = ?, tags_applied = ?,
             safety = ?, safety_override = ?, skip_tagging = ?,
             published_id = ?, related_ids = ?, was_merge = ?,
             retry_count = ?, error_message = ?, owner = ?, pending_command = ?,
             lease_owner = ?, last_heartbeat = ?, retry_at = ?,
             updated_at = ?, completed_at = ?
         WHERE id = ?`,
		job.Status,
		nullableString(job.SourceURL),
		nullableJSONStrings(job.SourceOverrides),
		nullableString(job.UploadPath),
		nullableJSONStrings(job.InitialTags),
		nullableJSONStrings(job.TagsFromSource),
		nullableJSONStrings(job.TagsFromAI),
		nullableJSONStrings(job.TagsApplied),
		nullableString(string(job.Safety)),
		boolToInt(job.SafetyOverride),
		boolToInt(job.SkipTagging),
		job.PublishedID,
		nullableJSONInt64s(job.RelatedIDs),
		boolToInt(job.WasMerge),
		job.RetryCount,
		nullableString(job.ErrorMessage),
		nullableString(job.Owner),
		nullableString(job.PendingCommand),
		nullableString(job.LeaseOwner),
		nullableTime(job.LastHeartbeat),
		nullableTime(job.RetryAt),
		job.UpdatedAt.Format(time.RFC3339Nano),
		nullableTime(job.CompletedAt),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

// Remove deletes a job by identifier.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates job state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusPending:
			health.Pending += count
		case StatusPaused:
			health.Paused += count
		case StatusFailed:
			health.Failed += count
		case StatusCompleted:
			health.Completed += count
		case StatusMerged:
			health.Merged += count
		case StatusStopped:
			health.Stopped += count
		default:
			if IsActive(status) {
				health.Active += count
			}
		}
	}
	return health, nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == 5 {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

const jobColumns = "id, status, job_type, source_url, source_overrides, upload_path, " +
	"initial_tags, tags_from_source, tags_from_ai, tags_applied, " +
	"safety, safety_override, skip_tagging, published_id, related_ids, was_merge, " +
	"retry_count, error_message, owner, pending_command, lease_owner, last_heartbeat, retry_at, " +
	"created_at, updated_at, completed_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id              string
		statusStr       string
		jobTypeStr      string
		sourceURL       sql.NullString
		sourceOverrides sql.NullString
		uploadPath      sql.NullString
		initialTags     sql.NullString
		tagsFromSource  sql.NullString
		tagsFromAI      sql.NullString
		tagsApplied     sql.NullString
		safety          sql.NullString
		safetyOverride  sql.NullInt64
		skipTagging     sql.NullInt64
		publishedID     sql.NullInt64
		relatedIDs      sql.NullString
		wasMerge        sql.NullInt64
		retryCount      sql.NullInt64
		errorMessage    sql.NullString
		owner           sql.NullString
		pendingCommand  sql.NullString
		leaseOwner      sql.NullString
		heartbeatRaw    sql.NullString
		retryAtRaw      sql.NullString
		createdRaw      sql.NullString
		updatedRaw      sql.NullString
		completedRaw    sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&statusStr,
		&jobTypeStr,
		&sourceURL,
		&sourceOverrides,
		&uploadPath,
		&initialTags,
		&tagsFromSource,
		&tagsFromAI,
		&tagsApplied,
		&safety,
		&safetyOverride,
		&skipTagging,
		&publishedID,
		&relatedIDs,
		&wasMerge,
		&retryCount,
		&errorMessage,
		&owner,
		&pendingCommand,
		&leaseOwner,
		&heartbeatRaw,
		&retryAtRaw,
		&createdRaw,
		&updatedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:              id,
		Status:          Status(statusStr),
		JobType:         JobType(jobTypeStr),
		SourceURL:       sourceURL.String,
		SourceOverrides: decodeStrings(sourceOverrides.String),
		UploadPath:      uploadPath.String,
		InitialTags:     decodeStrings(initialTags.String),
		TagsFromSource:  decodeStrings(tagsFromSource.String),
		TagsFromAI:      decodeStrings(tagsFromAI.String),
		TagsApplied:     decodeStrings(tagsApplied.String),
		Safety:          Safety(safety.String),
		SafetyOverride:  safetyOverride.Int64 != 0,
		SkipTagging:     skipTagging.Int64 != 0,
		PublishedID:     publishedID.Int64,
		RelatedIDs:      decodeInt64s(relatedIDs.String),
		WasMerge:        wasMerge.Int64 != 0,
		RetryCount:      int(retryCount.Int64),
		ErrorMessage:    errorMessage.String,
		Owner:           owner.String,
		PendingCommand:  pendingCommand.String,
		LeaseOwner:      leaseOwner.String,
	}

	if t, err := parseTimeString(heartbeatRaw.String); err == nil {
		job.LastHeartbeat = &t
	}
	if t, err := parseTimeString(retryAtRaw.String); err == nil {
		job.RetryAt = &t
	}
	if t, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = t
	}
	if t, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = t
	}
	if t, err := parseTimeString(completedRaw.String); err == nil {
		job.CompletedAt = &t
	}
	return job, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func nullableJSONStrings(values []string) any {
	if len(values) == 0 {
		return nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil
	}
	return string(data)
}

func nullableJSONInt64s(values []int64) any {
	if len(values) == 0 {
		return nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil
	}
	return string(data)
}

func decodeStrings(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

func decodeInt64s(raw string) []int64 {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []int64
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
