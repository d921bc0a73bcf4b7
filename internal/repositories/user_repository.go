package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sublym/backend/internal/db"
	"github.com/sublym/backend/internal/models"
)

// PostgresUserRepository provides PostgreSQL-backed persistence for users.
type PostgresUserRepository struct {
	pool db.Pool
}

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(pool db.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// Create persists a new user record.
func (r *PostgresUserRepository) Create(ctx context.Context, user models.User) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO users (id, email, password_hash, subscription_level, billing_period, smile_expires_at, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `, user.ID, user.Email, user.Password, user.SubscriptionLevel, user.BillingPeriod, user.SmileExpiresAt, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// FindByEmail fetches a user by their email address.
func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, email, password_hash, subscription_level, billing_period, smile_expires_at, created_at, updated_at
        FROM users
        WHERE email = $1
    `, email)

	return scanUser(row)
}

// FindByID fetches a user by id.
func (r *PostgresUserRepository) FindByID(ctx context.Context, id string) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, email, password_hash, subscription_level, billing_period, smile_expires_at, created_at, updated_at
        FROM users
        WHERE id = $1
    `, id)

	return scanUser(row)
}

// UpdateSubscription records the user's plan and billing period, e.g. after
// checkout completes or the no-cost offer is activated.
func (r *PostgresUserRepository) UpdateSubscription(ctx context.Context, user models.User) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE users
        SET subscription_level = $2, billing_period = $3, smile_expires_at = $4, updated_at = $5
        WHERE id = $1
    `, user.ID, user.SubscriptionLevel, user.BillingPeriod, user.SmileExpiresAt, user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	if err := row.Scan(&user.ID, &user.Email, &user.Password, &user.SubscriptionLevel, &user.BillingPeriod, &user.SmileExpiresAt, &user.CreatedAt, &user.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("select user: %w", err)
	}
	return user, nil
}
