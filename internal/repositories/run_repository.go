package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sublym/backend/internal/db"
	"github.com/sublym/backend/internal/models"
)

// PostgresRunRepository provides PostgreSQL-backed persistence for generation runs.
type PostgresRunRepository struct {
	pool db.Pool
}

// NewPostgresRunRepository constructs a run repository backed by PostgreSQL.
func NewPostgresRunRepository(pool db.Pool) *PostgresRunRepository {
	return &PostgresRunRepository{pool: pool}
}

// Create persists a new run record.
func (r *PostgresRunRepository) Create(ctx context.Context, run models.GenerationRun) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO runs (id, trace_id, user_id, dream_id, status, progress, current_step, video_url, teaser_url, keyframes_urls, error, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
    `, run.ID, run.TraceID, run.UserID, run.DreamID, run.Status, run.Progress, run.CurrentStep,
		run.VideoURL, run.TeaserURL, run.KeyframesURLs, run.Error, run.CreatedAt, run.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	return nil
}

// FindByTraceID fetches a run by its polling handle.
func (r *PostgresRunRepository) FindByTraceID(ctx context.Context, traceID string) (models.GenerationRun, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.GenerationRun{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, trace_id, user_id, dream_id, status, progress, current_step, video_url, teaser_url, keyframes_urls, error, created_at, updated_at
        FROM runs
        WHERE trace_id = $1
    `, traceID)

	return scanRun(row)
}

// UpdateProgress records a pipeline step transition.
func (r *PostgresRunRepository) UpdateProgress(ctx context.Context, traceID, status string, progress int, currentStep string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE runs
        SET status = $2, progress = $3, current_step = $4, updated_at = $5
        WHERE trace_id = $1 AND status NOT IN ('completed', 'failed', 'cancelled')
    `, traceID, status, progress, currentStep, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update run progress: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// MarkCompleted records the rendered assets and finishes the run.
func (r *PostgresRunRepository) MarkCompleted(ctx context.Context, traceID, videoURL, teaserURL string, keyframesURLs []string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE runs
        SET status = 'completed', progress = 100, current_step = 'Completed',
            video_url = $2, teaser_url = $3, keyframes_urls = $4, updated_at = $5
        WHERE trace_id = $1 AND status NOT IN ('completed', 'failed', 'cancelled')
    `, traceID, videoURL, teaserURL, keyframesURLs, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark run completed: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// MarkFailed finishes the run with an error message.
func (r *PostgresRunRepository) MarkFailed(ctx context.Context, traceID, message string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE runs
        SET status = 'failed', progress = 100, current_step = 'Failed', error = $2, updated_at = $3
        WHERE trace_id = $1 AND status NOT IN ('completed', 'failed', 'cancelled')
    `, traceID, message, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark run failed: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// MarkCancelled finishes the run on behalf of a user cancel request. The
// status guard makes cancellation win over any late pipeline update.
func (r *PostgresRunRepository) MarkCancelled(ctx context.Context, traceID string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE runs
        SET status = 'cancelled', current_step = 'Cancelled', updated_at = $2
        WHERE trace_id = $1 AND status NOT IN ('completed', 'failed', 'cancelled')
    `, traceID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark run cancelled: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func scanRun(row pgx.Row) (models.GenerationRun, error) {
	var run models.GenerationRun
	if err := row.Scan(&run.ID, &run.TraceID, &run.UserID, &run.DreamID, &run.Status, &run.Progress, &run.CurrentStep,
		&run.VideoURL, &run.TeaserURL, &run.KeyframesURLs, &run.Error, &run.CreatedAt, &run.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.GenerationRun{}, ErrNotFound
		}
		return models.GenerationRun{}, fmt.Errorf("select run: %w", err)
	}
	return run, nil
}
