package engine

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the driver scheduling knobs.
type Config struct {
	PhaseInterval   string `toml:"phase_interval"`
	CollectInterval string `toml:"collect_interval"`
	PageSize        int    `toml:"page_size"`
	Workers         int    `toml:"workers"`
	TemplateDir     string `toml:"template_dir"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	PhaseInterval   string
	CollectInterval string
	PageSize        string
	Workers         string
	TemplateDir     string
}

// PhaseIntervalDuration returns PhaseInterval as a time.Duration.
func (c *Config) PhaseIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.PhaseInterval)
	return d
}

// CollectIntervalDuration returns CollectInterval as a time.Duration.
func (c *Config) CollectIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.CollectInterval)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.PhaseInterval != "" {
		c.PhaseInterval = overlay.PhaseInterval
	}
	if overlay.CollectInterval != "" {
		c.CollectInterval = overlay.CollectInterval
	}
	if overlay.PageSize != 0 {
		c.PageSize = overlay.PageSize
	}
	if overlay.Workers != 0 {
		c.Workers = overlay.Workers
	}
	if overlay.TemplateDir != "" {
		c.TemplateDir = overlay.TemplateDir
	}
}

func (c *Config) loadDefaults() {
	if c.PhaseInterval == "" {
		c.PhaseInterval = "30s"
	}
	if c.CollectInterval == "" {
		c.CollectInterval = "15s"
	}
	if c.PageSize == 0 {
		c.PageSize = 50
	}
	if c.Workers == 0 {
		c.Workers = 4
	}
	if c.TemplateDir == "" {
		c.TemplateDir = "workflows"
	}
}

func (c *Config) loadEnv(env *Env) {
	setString := func(name string, dst *string) {
		if name == "" {
			return
		}
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		if name == "" {
			return
		}
		if v := os.Getenv(name); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	setString(env.PhaseInterval, &c.PhaseInterval)
	setString(env.CollectInterval, &c.CollectInterval)
	setInt(env.PageSize, &c.PageSize)
	setInt(env.Workers, &c.Workers)
	setString(env.TemplateDir, &c.TemplateDir)
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.PhaseInterval); err != nil {
		return fmt.Errorf("invalid phase_interval: %w", err)
	}
	if _, err := time.ParseDuration(c.CollectInterval); err != nil {
		return fmt.Errorf("invalid collect_interval: %w", err)
	}
	if c.PageSize < 1 {
		return fmt.Errorf("page_size must be positive")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be positive")
	}
	return nil
}
