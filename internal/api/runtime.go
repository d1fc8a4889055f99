package api

import (
	"github.com/crowdocs/crowdocs/internal/config"
	"github.com/crowdocs/crowdocs/internal/infrastructure"
	"github.com/crowdocs/crowdocs/pkg/pagination"
)

// Runtime extends Infrastructure with module-scoped configuration.
type Runtime struct {
	*infrastructure.Infrastructure
	Pagination pagination.Config
}

// NewRuntime creates an admin runtime with a module-scoped logger.
func NewRuntime(cfg *config.Config, infra *infrastructure.Infrastructure) *Runtime {
	return &Runtime{
		Infrastructure: &infrastructure.Infrastructure{
			Lifecycle: infra.Lifecycle,
			Logger:    infra.Logger.With("module", "admin"),
			Database:  infra.Database,
			Storage:   infra.Storage,
			Crowd:     infra.Crowd,
		},
		Pagination: cfg.Pagination,
	}
}
