package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/crowdocs/crowdocs/internal/api"
	"github.com/crowdocs/crowdocs/internal/config"
	"github.com/crowdocs/crowdocs/internal/documents"
	"github.com/crowdocs/crowdocs/internal/engine"
	"github.com/crowdocs/crowdocs/internal/infrastructure"
	"github.com/crowdocs/crowdocs/internal/workflows"
	"github.com/crowdocs/crowdocs/internal/workunits"
	"github.com/crowdocs/crowdocs/pkg/module"
)

type Server struct {
	infra   *infrastructure.Infrastructure
	drivers *engine.Drivers
	http    *httpServer
}

func NewServer(cfg *config.Config) (*Server, error) {
	infra, err := infrastructure.New(cfg)
	if err != nil {
		return nil, err
	}

	registry, err := workflows.LoadDir(cfg.Engine.TemplateDir)
	if err != nil {
		return nil, fmt.Errorf("load workflow templates: %w", err)
	}

	units := workunits.New(infra.Database.Connection(), infra.Logger, cfg.Pagination)
	docs := documents.New(infra.Database.Connection(), infra.Logger, cfg.Pagination)

	eng := engine.New(units, docs, infra.Crowd, infra.Storage, registry, infra.Logger)
	drivers := engine.NewDrivers(eng, &cfg.Engine)

	router := buildRouter(infra)
	router.Mount(api.NewModule(cfg, infra, registry))

	infra.Logger.Info(
		"engine initialized",
		"addr", cfg.Server.Addr(),
		"version", cfg.Version,
		"workflows", registry.Names(),
	)

	return &Server{
		infra:   infra,
		drivers: drivers,
		http:    newHTTPServer(&cfg.Server, router, infra.Logger),
	}, nil
}

func (s *Server) Start() error {
	s.infra.Logger.Info("starting service")

	if err := s.infra.Start(); err != nil {
		return err
	}

	if err := s.http.Start(s.infra.Lifecycle); err != nil {
		return err
	}

	go func() {
		s.infra.Lifecycle.WaitForStartup()
		s.infra.Logger.Info("all subsystems ready")
		s.drivers.Start(s.infra.Lifecycle)
	}()

	return nil
}

func (s *Server) Shutdown(timeout time.Duration) error {
	s.infra.Logger.Info("initiating shutdown")
	return s.infra.Lifecycle.Shutdown(timeout)
}

func buildRouter(infra *infrastructure.Infrastructure) *module.Router {
	router := module.NewRouter()

	router.HandleNative("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	router.HandleNative("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !infra.Lifecycle.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "not ready"})
			return
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	})

	return router
}
