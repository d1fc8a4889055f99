// Package infrastructure provides core service initialization for application startup.
// It assembles common dependencies (logging, database, storage, crowd client)
// that the engine and domain systems require.
package infrastructure

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/crowdocs/crowdocs/internal/config"
	"github.com/crowdocs/crowdocs/internal/crowd"
	"github.com/crowdocs/crowdocs/pkg/database"
	"github.com/crowdocs/crowdocs/pkg/lifecycle"
	"github.com/crowdocs/crowdocs/pkg/storage"
)

// Infrastructure holds the core systems required by all domain modules.
// It provides a single point of initialization for lifecycle coordination,
// logging, database access, blob storage, and the crowd platform client.
type Infrastructure struct {
	Lifecycle *lifecycle.Coordinator
	Logger    *slog.Logger
	Database  database.System
	Storage   storage.System
	Crowd     crowd.Provider
}

// New creates an Infrastructure from the application configuration.
// It initializes all systems but does not start them; call Start separately.
func New(cfg *config.Config) (*Infrastructure, error) {
	lc := lifecycle.New()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	db, err := database.New(&cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("database init failed: %w", err)
	}

	store, err := storage.New(&cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("storage init failed: %w", err)
	}

	provider := crowd.NewClient(&cfg.Crowd, logger)

	return &Infrastructure{
		Lifecycle: lc,
		Logger:    logger,
		Database:  db,
		Storage:   store,
		Crowd:     provider,
	}, nil
}

// Start registers all infrastructure systems with the lifecycle coordinator.
// Database and storage hooks are registered for startup and shutdown coordination.
func (i *Infrastructure) Start() error {
	if err := i.Database.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("database start failed: %w", err)
	}
	if err := i.Storage.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("storage start failed: %w", err)
	}
	return nil
}
