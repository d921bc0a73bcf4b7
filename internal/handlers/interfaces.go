package handlers

import (
	"context"
	"io"

	"github.com/sublym/backend/internal/models"
	"github.com/sublym/backend/internal/payment"
)

// UserStore captures the persistence operations required by the auth and
// payment handlers.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByID(ctx context.Context, id string) (models.User, error)
	UpdateSubscription(ctx context.Context, user models.User) error
}

// SessionManager issues, refreshes and resolves authentication tokens.
type SessionManager interface {
	Issue(ctx context.Context, userID string) (models.SessionTokens, error)
	Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error)
	Authenticate(ctx context.Context, accessToken string) (string, error)
}

// PhotoStore captures persistence for uploaded source photos.
type PhotoStore interface {
	Create(ctx context.Context, photo models.Photo) error
	ListForUser(ctx context.Context, userID string) ([]models.Photo, error)
	Delete(ctx context.Context, photoID, userID string) error
}

// DreamStore captures persistence for dream creation requests.
type DreamStore interface {
	Create(ctx context.Context, dream models.Dream) error
	Find(ctx context.Context, dreamID, userID string) (models.Dream, error)
	ListForUser(ctx context.Context, userID string) ([]models.Dream, error)
	Delete(ctx context.Context, dreamID, userID string) error
}

// RunStore captures persistence for generation runs.
type RunStore interface {
	Create(ctx context.Context, run models.GenerationRun) error
	FindByTraceID(ctx context.Context, traceID string) (models.GenerationRun, error)
	MarkCancelled(ctx context.Context, traceID string) error
}

// AssetStorage persists uploaded photo bytes.
type AssetStorage interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
}

// GenerationEnqueuer schedules background rendering of a dream.
type GenerationEnqueuer interface {
	Enqueue(ctx context.Context, run models.GenerationRun, dream models.Dream) error
}

// CheckoutProvider opens hosted checkout sessions with the payment service.
type CheckoutProvider interface {
	CreateSession(ctx context.Context, req payment.SessionRequest) (string, error)
}
