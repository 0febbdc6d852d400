package postgresql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"place-discovery-service/internal/entity"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition is returned when a conditional status update
	// finds the job in a state that does not allow it.
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrSnapshotExists    = errors.New("snapshot already stored")
)

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

func (r *JobRepository) Create(ctx context.Context, ownerID string, params entity.SearchParams) (uuid.UUID, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal params: %w", err)
	}

	const q = `
INSERT INTO jobs (name, status, progress, params, owner_id)
VALUES ($1, 'queued', 0, $2, $3)
RETURNING id;
`
	var id uuid.UUID
	if err := r.pool.QueryRow(ctx, q, params.Name, raw, ownerID).Scan(&id); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	const q = `
SELECT id, name, status, progress, error, params, snapshot, owner_id, created_at, updated_at
FROM jobs
WHERE id = $1;
`
	var (
		job        entity.Job
		statusText string
		paramBytes []byte
	)
	if err := r.pool.QueryRow(ctx, q, id).Scan(
		&job.ID,
		&job.Name,
		&statusText,
		&job.Progress,
		&job.Error,    // NULL => nil
		&paramBytes,
		&job.Snapshot, // NULL => nil
		&job.OwnerID,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	job.Status = entity.JobStatus(statusText)
	if err := json.Unmarshal(paramBytes, &job.Params); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}
	return &job, nil
}

// List returns the newest jobs first, without snapshots.
func (r *JobRepository) List(ctx context.Context, limit int) ([]entity.JobSummary, error) {
	const q = `
SELECT id, name, status, progress, error, created_at
FROM jobs
ORDER BY created_at DESC, id
LIMIT $1;
`
	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]entity.JobSummary, 0, limit)
	for rows.Next() {
		var (
			s          entity.JobSummary
			statusText string
		)
		if err := rows.Scan(&s.ID, &s.Name, &statusText, &s.Progress, &s.Error, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.Status = entity.JobStatus(statusText)
		out = append(out, s)
	}
	return out, rows.Err()
}

// MarkRunning moves a queued job to running. Any other current status
// yields ErrInvalidTransition, so a job is started at most once.
func (r *JobRepository) MarkRunning(ctx context.Context, id uuid.UUID, progress int) error {
	const q = `
UPDATE jobs
SET status = 'running', progress = GREATEST(progress, $2), updated_at = now()
WHERE id = $1 AND status = 'queued';
`
	return r.conditional(ctx, id, ErrInvalidTransition, q, id, progress)
}

// UpdateProgress raises progress of a running job; it never lowers it.
func (r *JobRepository) UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error {
	const q = `
UPDATE jobs
SET progress = GREATEST(progress, $2), updated_at = now()
WHERE id = $1 AND status = 'running';
`
	return r.conditional(ctx, id, ErrInvalidTransition, q, id, progress)
}

// SaveSnapshot stores the snapshot once, while the job is running.
func (r *JobRepository) SaveSnapshot(ctx context.Context, id uuid.UUID, snapshot string) error {
	const q = `
UPDATE jobs
SET snapshot = $2, updated_at = now()
WHERE id = $1 AND status = 'running' AND snapshot IS NULL;
`
	return r.conditional(ctx, id, ErrSnapshotExists, q, id, snapshot)
}

// Complete finishes a running job. derivedName replaces the name only
// when the caller did not supply one.
func (r *JobRepository) Complete(ctx context.Context, id uuid.UUID, derivedName string) error {
	const q = `
UPDATE jobs
SET status = 'completed',
    progress = 100,
    error = NULL,
    name = CASE WHEN name = '' THEN $2 ELSE name END,
    updated_at = now()
WHERE id = $1 AND status = 'running';
`
	return r.conditional(ctx, id, ErrInvalidTransition, q, id, derivedName)
}

// Fail records errText on a job that has not reached a terminal state.
func (r *JobRepository) Fail(ctx context.Context, id uuid.UUID, errText string) error {
	const q = `
UPDATE jobs
SET status = 'failed', error = $2, updated_at = now()
WHERE id = $1 AND status IN ('queued', 'running');
`
	return r.conditional(ctx, id, ErrInvalidTransition, q, id, errText)
}

func (r *JobRepository) conditional(ctx context.Context, id uuid.UUID, mismatch error, q string, args ...any) error {
	tag, err := r.pool.Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM jobs WHERE id = $1);`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return mismatch
}
