// Package events also provides the PostgreSQL-backed JobStore used by the
// sync engine to persist sync-run history across restarts.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PostgresJobStore implements JobStore using PostgreSQL.
type PostgresJobStore struct {
	db *sql.DB
}

// NewPostgresJobStore creates a new PostgreSQL job store.
func NewPostgresJobStore(db *sql.DB) *PostgresJobStore {
	return &PostgresJobStore{db: db}
}

// EnsureSchema creates the required tables if they don't exist.
func (s *PostgresJobStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS sync_jobs (
			id TEXT PRIMARY KEY,
			entity_kind TEXT NOT NULL,
			connector TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			payload JSONB,
			result JSONB,
			error TEXT,
			metadata JSONB,
			attempts INTEGER DEFAULT 0,
			max_attempts INTEGER DEFAULT 3,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			completed_at TIMESTAMPTZ
		);

		CREATE INDEX IF NOT EXISTS idx_sync_jobs_entity_kind ON sync_jobs(entity_kind);
		CREATE INDEX IF NOT EXISTS idx_sync_jobs_status ON sync_jobs(status);
		CREATE INDEX IF NOT EXISTS idx_sync_jobs_connector ON sync_jobs(connector);
		CREATE INDEX IF NOT EXISTS idx_sync_jobs_created_at ON sync_jobs(created_at);
	`)
	return err
}

// Create stores a new job.
func (s *PostgresJobStore) Create(ctx context.Context, job *Job) error {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	metadata, err := json.Marshal(job.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sync_jobs (
			id, entity_kind, connector, status, payload,
			metadata, attempts, max_attempts, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10
		)
	`,
		job.ID, job.EntityKind, job.Connector, job.Status, payload,
		metadata, job.Attempts, job.MaxAttempts, job.CreatedAt, job.UpdatedAt,
	)
	return err
}

// Get retrieves a job by ID.
func (s *PostgresJobStore) Get(ctx context.Context, id string) (*Job, error) {
	return s.scanJob(ctx, `
		SELECT id, entity_kind, connector, status, payload, result, error,
			metadata, attempts, max_attempts, created_at, updated_at, completed_at
		FROM sync_jobs
		WHERE id = $1
	`, id)
}

// Update updates an existing job.
func (s *PostgresJobStore) Update(ctx context.Context, job *Job) error {
	result, err := json.Marshal(job.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	metadata, err := json.Marshal(job.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	var completedAt sql.NullTime
	if job.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *job.CompletedAt, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE sync_jobs SET
			status = $2,
			result = $3,
			error = $4,
			metadata = $5,
			attempts = $6,
			updated_at = $7,
			completed_at = $8
		WHERE id = $1
	`,
		job.ID, job.Status, result, nullString(job.Error),
		metadata, job.Attempts, job.UpdatedAt, completedAt,
	)
	return err
}

// List retrieves jobs with filters.
func (s *PostgresJobStore) List(ctx context.Context, entityKind string, connector ConnectorKind, status JobStatus, limit int) ([]*Job, error) {
	query := `
		SELECT id, entity_kind, connector, status, payload, result, error,
			metadata, attempts, max_attempts, created_at, updated_at, completed_at
		FROM sync_jobs
		WHERE 1=1
	`
	args := []any{}
	argNum := 1

	if entityKind != "" {
		query += fmt.Sprintf(" AND entity_kind = $%d", argNum)
		args = append(args, entityKind)
		argNum++
	}

	if connector != "" {
		query += fmt.Sprintf(" AND connector = $%d", argNum)
		args = append(args, connector)
		argNum++
	}

	if status != "" {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, status)
		argNum++
	}

	query += " ORDER BY created_at DESC"

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, limit)
	}

	return s.scanJobs(ctx, query, args...)
}

// ListPending retrieves pending jobs for a connector.
func (s *PostgresJobStore) ListPending(ctx context.Context, connector ConnectorKind, limit int) ([]*Job, error) {
	query := `
		SELECT id, entity_kind, connector, status, payload, result, error,
			metadata, attempts, max_attempts, created_at, updated_at, completed_at
		FROM sync_jobs
		WHERE status = 'pending'
	`
	args := []any{}
	argNum := 1

	if connector != "" {
		query += fmt.Sprintf(" AND connector = $%d", argNum)
		args = append(args, connector)
		argNum++
	}

	query += " ORDER BY created_at ASC"

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, limit)
	}

	return s.scanJobs(ctx, query, args...)
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

// scanJob scans a single job from a query.
func (s *PostgresJobStore) scanJob(ctx context.Context, query string, args ...any) (*Job, error) {
	row := s.db.QueryRowContext(ctx, query, args...)

	var job Job
	var errorStr sql.NullString
	var payload, result, metadata []byte
	var completedAt sql.NullTime

	err := row.Scan(
		&job.ID, &job.EntityKind, &job.Connector, &job.Status, &payload, &result, &errorStr,
		&metadata, &job.Attempts, &job.MaxAttempts, &job.CreatedAt, &job.UpdatedAt, &completedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	job.Error = errorStr.String

	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}

	if len(payload) > 0 {
		json.Unmarshal(payload, &job.Payload)
	}
	if len(result) > 0 {
		json.Unmarshal(result, &job.Result)
	}
	if len(metadata) > 0 {
		json.Unmarshal(metadata, &job.Metadata)
	}

	return &job, nil
}

// scanJobs scans multiple jobs from a query.
func (s *PostgresJobStore) scanJobs(ctx context.Context, query string, args ...any) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		var job Job
		var errorStr sql.NullString
		var payload, result, metadata []byte
		var completedAt sql.NullTime

		err := rows.Scan(
			&job.ID, &job.EntityKind, &job.Connector, &job.Status, &payload, &result, &errorStr,
			&metadata, &job.Attempts, &job.MaxAttempts, &job.CreatedAt, &job.UpdatedAt, &completedAt,
		)
		if err != nil {
			return nil, err
		}

		job.Error = errorStr.String

		if completedAt.Valid {
			job.CompletedAt = &completedAt.Time
		}

		if len(payload) > 0 {
			json.Unmarshal(payload, &job.Payload)
		}
		if len(result) > 0 {
			json.Unmarshal(result, &job.Result)
		}
		if len(metadata) > 0 {
			json.Unmarshal(metadata, &job.Metadata)
		}

		jobs = append(jobs, &job)
	}

	return jobs, rows.Err()
}

// Compile-time interface check
var _ JobStore = (*PostgresJobStore)(nil)
