package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/C0sCube/selenium-scrape/api/schemas"
	"github.com/C0sCube/selenium-scrape/internal/browser"
	"github.com/C0sCube/selenium-scrape/internal/browser/static"
	"github.com/C0sCube/selenium-scrape/internal/config"
	"github.com/C0sCube/selenium-scrape/internal/store"
)

// storeProvider defines an interface for components that can create a data store
// (schemas.Store). This abstraction allows tests to inject a mock store instead
// of a live database connection.
type storeProvider interface {
	// Create initializes and returns a schemas.Store, a cleanup function to release
	// resources, and an error if the creation fails.
	Create(ctx context.Context, cfg *config.Config, logger *zap.Logger) (schemas.Store, func(), error)
}

type defaultStoreProvider struct{}

func NewStoreProvider() storeProvider {
	return &defaultStoreProvider{}
}

// Create connects to PostgreSQL, makes sure the run tables exist and returns
// the store along with a cleanup that closes the pool.
func (p *defaultStoreProvider) Create(ctx context.Context, cfg *config.Config, logger *zap.Logger) (schemas.Store, func(), error) {
	if cfg.Database.URL == "" {
		return nil, nil, fmt.Errorf("database URL is not configured (SITEEXTRACT_DATABASE_URL)")
	}

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	storeService, err := store.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to initialize store service: %w", err)
	}
	if err := storeService.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	cleanup := func() {
		pool.Close()
		logger.Debug("Database connection pool closed.")
	}
	return storeService, cleanup, nil
}

// sessionProvider creates the session factory selected by browser.mode.
type sessionProvider interface {
	Create(ctx context.Context, cfg *config.Config, logger *zap.Logger) (schemas.SessionFactory, func(), error)
}

type defaultSessionProvider struct{}

func NewSessionProvider() sessionProvider {
	return &defaultSessionProvider{}
}

// Create returns a Chrome manager, whose cleanup shuts every browser down, or
// a static HTTP factory.
func (p *defaultSessionProvider) Create(ctx context.Context, cfg *config.Config, logger *zap.Logger) (schemas.SessionFactory, func(), error) {
	switch cfg.Browser.Mode {
	case "static":
		return static.NewFactory(cfg.Network, logger), func() {}, nil
	case "chrome", "":
		manager := browser.NewManager(ctx, cfg, logger)
		cleanup := func() {
			// The run context may already be cancelled; shutdown gets its own.
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := manager.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Browser manager shutdown incomplete.", zap.Error(err))
			}
		}
		return manager, cleanup, nil
	default:
		return nil, nil, fmt.Errorf("unknown browser mode %q", cfg.Browser.Mode)
	}
}
