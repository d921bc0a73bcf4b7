package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sublym/backend/internal/auth"
	"github.com/sublym/backend/internal/db"
)

// PostgresSessionStore persists issued tokens to PostgreSQL.
type PostgresSessionStore struct {
	pool db.Pool
}

// NewPostgresSessionStore constructs a session store backed by PostgreSQL.
func NewPostgresSessionStore(pool db.Pool) *PostgresSessionStore {
	return &PostgresSessionStore{pool: pool}
}

// Save stores or updates a session record.
func (s *PostgresSessionStore) Save(ctx context.Context, session auth.Session) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO sessions (refresh_token, access_token, user_id, access_expires_at, expires_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (refresh_token)
        DO UPDATE SET access_token = EXCLUDED.access_token, user_id = EXCLUDED.user_id,
                      access_expires_at = EXCLUDED.access_expires_at, expires_at = EXCLUDED.expires_at
    `, session.RefreshToken, session.AccessToken, session.UserID, session.AccessExpiresAt.UTC(), session.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	return nil
}

// Find loads a session by its refresh token.
func (s *PostgresSessionStore) Find(ctx context.Context, refreshToken string) (auth.Session, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return auth.Session{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT refresh_token, access_token, user_id, access_expires_at, expires_at
        FROM sessions
        WHERE refresh_token = $1
    `, refreshToken)

	return scanSession(row)
}

// FindByAccessToken loads a session by its access token.
func (s *PostgresSessionStore) FindByAccessToken(ctx context.Context, accessToken string) (auth.Session, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return auth.Session{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT refresh_token, access_token, user_id, access_expires_at, expires_at
        FROM sessions
        WHERE access_token = $1
    `, accessToken)

	return scanSession(row)
}

// Delete removes a session by its refresh token.
func (s *PostgresSessionStore) Delete(ctx context.Context, refreshToken string) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        DELETE FROM sessions
        WHERE refresh_token = $1
    `, refreshToken)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return auth.ErrSessionNotFound
	}

	return nil
}

func scanSession(row pgx.Row) (auth.Session, error) {
	var session auth.Session
	var accessExpiresAt, expiresAt time.Time
	if err := row.Scan(&session.RefreshToken, &session.AccessToken, &session.UserID, &accessExpiresAt, &expiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return auth.Session{}, auth.ErrSessionNotFound
		}
		return auth.Session{}, fmt.Errorf("select session: %w", err)
	}

	session.AccessExpiresAt = accessExpiresAt.UTC()
	session.ExpiresAt = expiresAt.UTC()
	return session, nil
}
