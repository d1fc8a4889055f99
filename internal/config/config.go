package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/crowdocs/crowdocs/internal/crowd"
	"github.com/crowdocs/crowdocs/internal/engine"
	"github.com/crowdocs/crowdocs/pkg/database"
	"github.com/crowdocs/crowdocs/pkg/pagination"
	"github.com/crowdocs/crowdocs/pkg/storage"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvCrowdocsEnv             = "CROWDOCS_ENV"
	EnvCrowdocsShutdownTimeout = "CROWDOCS_SHUTDOWN_TIMEOUT"
	EnvCrowdocsVersion         = "CROWDOCS_VERSION"
)

var databaseEnv = &database.Env{
	Host:            "CROWDOCS_DB_HOST",
	Port:            "CROWDOCS_DB_PORT",
	Name:            "CROWDOCS_DB_NAME",
	User:            "CROWDOCS_DB_USER",
	Password:        "CROWDOCS_DB_PASSWORD",
	SSLMode:         "CROWDOCS_DB_SSL_MODE",
	MaxOpenConns:    "CROWDOCS_DB_MAX_OPEN_CONNS",
	MaxIdleConns:    "CROWDOCS_DB_MAX_IDLE_CONNS",
	ConnMaxLifetime: "CROWDOCS_DB_CONN_MAX_LIFETIME",
	ConnTimeout:     "CROWDOCS_DB_CONN_TIMEOUT",
}

var storageEnv = &storage.Env{
	ContainerName:    "CROWDOCS_STORAGE_CONTAINER_NAME",
	ConnectionString: "CROWDOCS_STORAGE_CONNECTION_STRING",
}

var crowdEnv = &crowd.Env{
	BaseURL:        "CROWDOCS_CROWD_BASE_URL",
	APIKey:         "CROWDOCS_CROWD_API_KEY",
	RequestTimeout: "CROWDOCS_CROWD_REQUEST_TIMEOUT",
	RatePerSecond:  "CROWDOCS_CROWD_RATE_PER_SECOND",
	RateBurst:      "CROWDOCS_CROWD_RATE_BURST",
	JobCacheTTL:    "CROWDOCS_CROWD_JOB_CACHE_TTL",
	MaxRetries:     "CROWDOCS_CROWD_MAX_RETRIES",
}

var engineEnv = &engine.Env{
	PhaseInterval:   "CROWDOCS_ENGINE_PHASE_INTERVAL",
	CollectInterval: "CROWDOCS_ENGINE_COLLECT_INTERVAL",
	PageSize:        "CROWDOCS_ENGINE_PAGE_SIZE",
	Workers:         "CROWDOCS_ENGINE_WORKERS",
	TemplateDir:     "CROWDOCS_ENGINE_TEMPLATE_DIR",
}

var paginationEnv = &pagination.Env{
	DefaultPageSize: "CROWDOCS_PAGINATION_DEFAULT_PAGE_SIZE",
	MaxPageSize:     "CROWDOCS_PAGINATION_MAX_PAGE_SIZE",
}

// Config is the root configuration for the crowdocs engine.
type Config struct {
	Server          ServerConfig      `toml:"server"`
	Database        database.Config   `toml:"database"`
	Storage         storage.Config    `toml:"storage"`
	Crowd           crowd.Config      `toml:"crowd"`
	Engine          engine.Config     `toml:"engine"`
	Pagination      pagination.Config `toml:"pagination"`
	ShutdownTimeout string            `toml:"shutdown_timeout"`
	Version         string            `toml:"version"`
}

// Env returns the CROWDOCS_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvCrowdocsEnv); env != "" {
		return env
	}
	return "local"
}

// ShutdownTimeoutDuration returns ShutdownTimeout as a time.Duration.
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

// Load reads the base config (if present), applies any environment overlay,
// and finalizes all values. If no config.toml exists, defaults and environment
// variables provide all configuration.
func Load() (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(BaseConfigFile); err == nil {
		loaded, err := load(BaseConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if path := overlayPath(); path != "" {
		overlay, err := load(path)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", path, err)
		}
		cfg.Merge(overlay)
	}

	if err := cfg.finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}

	return cfg, nil
}

// Merge overwrites non-zero fields from overlay across all sub-configs.
func (c *Config) Merge(overlay *Config) {
	if overlay.ShutdownTimeout != "" {
		c.ShutdownTimeout = overlay.ShutdownTimeout
	}
	if overlay.Version != "" {
		c.Version = overlay.Version
	}
	c.Server.Merge(&overlay.Server)
	c.Database.Merge(&overlay.Database)
	c.Storage.Merge(&overlay.Storage)
	c.Crowd.Merge(&overlay.Crowd)
	c.Engine.Merge(&overlay.Engine)
	c.Pagination.Merge(&overlay.Pagination)
}

func (c *Config) finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}
	if err := c.Server.Finalize(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Database.Finalize(databaseEnv); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := c.Storage.Finalize(storageEnv); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.Crowd.Finalize(crowdEnv); err != nil {
		return fmt.Errorf("crowd: %w", err)
	}
	if err := c.Engine.Finalize(engineEnv); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if err := c.Pagination.Finalize(paginationEnv); err != nil {
		return fmt.Errorf("pagination: %w", err)
	}
	return nil
}

func (c *Config) loadDefaults() {
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "30s"
	}
	if c.Version == "" {
		c.Version = "0.1.0"
	}
}

func (c *Config) loadEnv() {
	if v := os.Getenv(EnvCrowdocsShutdownTimeout); v != "" {
		c.ShutdownTimeout = v
	}
	if v := os.Getenv(EnvCrowdocsVersion); v != "" {
		c.Version = v
	}
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid shutdown_timeout: %w", err)
	}
	return nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

func overlayPath() string {
	if env := os.Getenv(EnvCrowdocsEnv); env != "" {
		path := fmt.Sprintf(OverlayConfigPattern, env)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
