package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/sublym/backend/internal/auth"
	"github.com/sublym/backend/internal/config"
	"github.com/sublym/backend/internal/db"
	"github.com/sublym/backend/internal/handlers"
	"github.com/sublym/backend/internal/middleware"
	"github.com/sublym/backend/internal/payment"
	"github.com/sublym/backend/internal/pipeline"
	"github.com/sublym/backend/internal/repositories"
	"github.com/sublym/backend/internal/storage"
)

const localAssetDir = "data/assets"

// buildDependencies wires together concrete implementations used by the HTTP
// handlers, and returns the pipeline engine so serve can drain it on shutdown.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config, logger *slog.Logger) (handlers.Dependencies, *pipeline.Engine, error) {
	sessionStore := repositories.NewPostgresSessionStore(pool)
	runRepo := repositories.NewPostgresRunRepository(pool)
	dreamRepo := repositories.NewPostgresDreamRepository(pool)

	assets, err := buildAssetStorage(ctx, cfg, logger)
	if err != nil {
		return handlers.Dependencies{}, nil, err
	}

	engine := pipeline.NewEngine(pipeline.DryRunRenderer{}, assets, runRepo, dreamRepo, pipeline.EngineConfig{
		QueueSize:     cfg.PipelineQueueSize,
		Workers:       cfg.PipelineWorkers,
		SceneCount:    cfg.SceneCount,
		SceneDuration: cfg.SceneDuration,
	}, logger)

	deps := handlers.Dependencies{
		Users:    repositories.NewPostgresUserRepository(pool),
		Sessions: auth.NewManager(15*time.Minute, 24*time.Hour, sessionStore),
		Photos:   repositories.NewPostgresPhotoRepository(pool),
		Dreams:   dreamRepo,
		Runs:     runRepo,
		Storage:  assets,
		Pipeline: engine,
		Checkout: buildCheckoutProvider(cfg, logger),
		Limiter:  middleware.NewIPRateLimiter(10, time.Minute, 5, 10*time.Minute),
	}

	return deps, engine, nil
}

func buildAssetStorage(ctx context.Context, cfg config.Config, logger *slog.Logger) (pipeline.AssetStorage, error) {
	if cfg.ObjectStore.Bucket != "" {
		return storage.NewS3Storage(ctx, cfg.ObjectStore)
	}
	logger.Warn("no object store configured, storing assets on local disk", "dir", localAssetDir)
	return storage.NewLocalStorage(localAssetDir), nil
}

func buildCheckoutProvider(cfg config.Config, logger *slog.Logger) handlers.CheckoutProvider {
	if cfg.PaymentEndpoint != "" {
		return payment.NewHTTPProvider(cfg.PaymentEndpoint, cfg.PaymentTimeout)
	}
	logger.Warn("no payment endpoint configured, using stub checkout provider")
	return payment.StubProvider{}
}
