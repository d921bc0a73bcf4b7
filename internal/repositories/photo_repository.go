package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sublym/backend/internal/db"
	"github.com/sublym/backend/internal/models"
)

// PostgresPhotoRepository provides PostgreSQL-backed persistence for photos.
type PostgresPhotoRepository struct {
	pool db.Pool
}

// NewPostgresPhotoRepository constructs a photo repository backed by PostgreSQL.
func NewPostgresPhotoRepository(pool db.Pool) *PostgresPhotoRepository {
	return &PostgresPhotoRepository{pool: pool}
}

// Create persists a new photo record.
func (r *PostgresPhotoRepository) Create(ctx context.Context, photo models.Photo) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO photos (id, user_id, location, source, consent, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, photo.ID, photo.UserID, photo.Location, photo.Source, photo.Consent, photo.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert photo: %w", err)
	}

	return nil
}

// ListForUser returns the user's photos ordered by upload time.
func (r *PostgresPhotoRepository) ListForUser(ctx context.Context, userID string) ([]models.Photo, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT id, user_id, location, source, consent, created_at
        FROM photos
        WHERE user_id = $1
        ORDER BY created_at
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("select photos: %w", err)
	}
	defer rows.Close()

	var photos []models.Photo
	for rows.Next() {
		var photo models.Photo
		if err := rows.Scan(&photo.ID, &photo.UserID, &photo.Location, &photo.Source, &photo.Consent, &photo.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan photo: %w", err)
		}
		photos = append(photos, photo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate photos: %w", err)
	}

	return photos, nil
}

// Delete removes a photo owned by the user.
func (r *PostgresPhotoRepository) Delete(ctx context.Context, photoID, userID string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        DELETE FROM photos
        WHERE id = $1 AND user_id = $2
    `, photoID, userID)
	if err != nil {
		return fmt.Errorf("delete photo: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// scanOne is shared by the single-row photo lookups.
func scanPhoto(row pgx.Row) (models.Photo, error) {
	var photo models.Photo
	if err := row.Scan(&photo.ID, &photo.UserID, &photo.Location, &photo.Source, &photo.Consent, &photo.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Photo{}, ErrNotFound
		}
		return models.Photo{}, fmt.Errorf("select photo: %w", err)
	}
	return photo, nil
}

// Find fetches a photo by id.
func (r *PostgresPhotoRepository) Find(ctx context.Context, photoID string) (models.Photo, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Photo{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, user_id, location, source, consent, created_at
        FROM photos
        WHERE id = $1
    `, photoID)

	return scanPhoto(row)
}
