// Package api assembles the admin HTTP module: work unit registration
// plus work unit and dedup document listings for operators watching the
// pipeline.
package api

import (
	"net/http"

	"github.com/crowdocs/crowdocs/internal/config"
	"github.com/crowdocs/crowdocs/internal/infrastructure"
	"github.com/crowdocs/crowdocs/internal/workflows"
	"github.com/crowdocs/crowdocs/pkg/middleware"
	"github.com/crowdocs/crowdocs/pkg/module"
)

// NewModule creates the admin module with all handlers and middleware.
func NewModule(cfg *config.Config, infra *infrastructure.Infrastructure, registry *workflows.Registry) *module.Module {
	runtime := NewRuntime(cfg, infra)
	domain := NewDomain(runtime, registry)

	mux := http.NewServeMux()
	registerRoutes(mux, domain, runtime)

	m := module.New("/admin", mux)
	m.Use(middleware.Recover(runtime.Logger))
	m.Use(middleware.RequestID())
	m.Use(middleware.Logger(runtime.Logger))

	return m
}
