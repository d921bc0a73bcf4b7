package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sublym/backend/internal/db"
	"github.com/sublym/backend/internal/models"
)

// PostgresDreamRepository provides PostgreSQL-backed persistence for dreams.
type PostgresDreamRepository struct {
	pool db.Pool
}

// NewPostgresDreamRepository constructs a dream repository backed by PostgreSQL.
func NewPostgresDreamRepository(pool db.Pool) *PostgresDreamRepository {
	return &PostgresDreamRepository{pool: pool}
}

// Create persists a new dream record.
func (r *PostgresDreamRepository) Create(ctx context.Context, dream models.Dream) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO dreams (id, user_id, description, reject, style, photo_ids, status, last_run_id, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `, dream.ID, dream.UserID, dream.Description, dream.Reject, dream.Style, dream.PhotoIDs, dream.Status, nullable(dream.LastRunID), dream.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert dream: %w", err)
	}

	return nil
}

// Find fetches a dream owned by the user.
func (r *PostgresDreamRepository) Find(ctx context.Context, dreamID, userID string) (models.Dream, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Dream{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, user_id, description, reject, style, photo_ids, status, COALESCE(last_run_id, ''), created_at
        FROM dreams
        WHERE id = $1 AND user_id = $2
    `, dreamID, userID)

	return scanDream(row)
}

// ListForUser returns the user's dreams, newest first.
func (r *PostgresDreamRepository) ListForUser(ctx context.Context, userID string) ([]models.Dream, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT id, user_id, description, reject, style, photo_ids, status, COALESCE(last_run_id, ''), created_at
        FROM dreams
        WHERE user_id = $1
        ORDER BY created_at DESC
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("select dreams: %w", err)
	}
	defer rows.Close()

	var dreams []models.Dream
	for rows.Next() {
		dream, err := scanDream(rows)
		if err != nil {
			return nil, err
		}
		dreams = append(dreams, dream)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dreams: %w", err)
	}

	return dreams, nil
}

// MarkCompleted records a finished generation against the dream.
func (r *PostgresDreamRepository) MarkCompleted(ctx context.Context, dreamID, runID string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE dreams
        SET status = $2, last_run_id = $3
        WHERE id = $1
    `, dreamID, models.DreamStatusCompleted, runID)
	if err != nil {
		return fmt.Errorf("mark dream completed: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// Delete removes a dream owned by the user.
func (r *PostgresDreamRepository) Delete(ctx context.Context, dreamID, userID string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        DELETE FROM dreams
        WHERE id = $1 AND user_id = $2
    `, dreamID, userID)
	if err != nil {
		return fmt.Errorf("delete dream: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func scanDream(row pgx.Row) (models.Dream, error) {
	var dream models.Dream
	if err := row.Scan(&dream.ID, &dream.UserID, &dream.Description, &dream.Reject, &dream.Style, &dream.PhotoIDs, &dream.Status, &dream.LastRunID, &dream.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Dream{}, ErrNotFound
		}
		return models.Dream{}, fmt.Errorf("select dream: %w", err)
	}
	return dream, nil
}

// nullable maps the empty string onto SQL NULL for optional references.
func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}
