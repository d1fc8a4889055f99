package crowd

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds crowd platform connection parameters.
type Config struct {
	BaseURL        string  `toml:"base_url"`
	APIKey         string  `toml:"api_key"`
	RequestTimeout string  `toml:"request_timeout"`
	RatePerSecond  float64 `toml:"rate_per_second"`
	RateBurst      int     `toml:"rate_burst"`
	JobCacheTTL    string  `toml:"job_cache_ttl"`
	MaxRetries     int     `toml:"max_retries"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	BaseURL        string
	APIKey         string
	RequestTimeout string
	RatePerSecond  string
	RateBurst      string
	JobCacheTTL    string
	MaxRetries     string
}

// RequestTimeoutDuration returns RequestTimeout as a time.Duration.
func (c *Config) RequestTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.RequestTimeout)
	return d
}

// JobCacheTTLDuration returns JobCacheTTL as a time.Duration.
func (c *Config) JobCacheTTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.JobCacheTTL)
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
	if overlay.BaseURL != "" {
		c.BaseURL = overlay.BaseURL
	}
	if overlay.APIKey != "" {
		c.APIKey = overlay.APIKey
	}
	if overlay.RequestTimeout != "" {
		c.RequestTimeout = overlay.RequestTimeout
	}
	if overlay.RatePerSecond != 0 {
		c.RatePerSecond = overlay.RatePerSecond
	}
	if overlay.RateBurst != 0 {
		c.RateBurst = overlay.RateBurst
	}
	if overlay.JobCacheTTL != "" {
		c.JobCacheTTL = overlay.JobCacheTTL
	}
	if overlay.MaxRetries != 0 {
		c.MaxRetries = overlay.MaxRetries
	}
}

func (c *Config) loadDefaults() {
	if c.RequestTimeout == "" {
		c.RequestTimeout = "30s"
	}
	if c.RatePerSecond == 0 {
		c.RatePerSecond = 5
	}
	if c.RateBurst == 0 {
		c.RateBurst = 10
	}
	if c.JobCacheTTL == "" {
		c.JobCacheTTL = "10m"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 5
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
	setFloat := func(name string, dst *float64) {
		if name == "" {
			return
		}
		if v := os.Getenv(name); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}

	setString(env.BaseURL, &c.BaseURL)
	setString(env.APIKey, &c.APIKey)
	setString(env.RequestTimeout, &c.RequestTimeout)
	setFloat(env.RatePerSecond, &c.RatePerSecond)
	setInt(env.RateBurst, &c.RateBurst)
	setString(env.JobCacheTTL, &c.JobCacheTTL)
	setInt(env.MaxRetries, &c.MaxRetries)
}

func (c *Config) validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url required")
	}
	if _, err := time.ParseDuration(c.RequestTimeout); err != nil {
		return fmt.Errorf("invalid request_timeout: %w", err)
	}
	if _, err := time.ParseDuration(c.JobCacheTTL); err != nil {
		return fmt.Errorf("invalid job_cache_ttl: %w", err)
	}
	return nil
}
