package crowd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Client is the HTTP Provider implementation. All requests share a
// token bucket so concurrent phase workers stay inside the platform's
// request quota, and 429 responses back off before retrying.
type Client struct {
	base       string
	apiKey     string
	http       *http.Client
	limiter    *rate.Limiter
	maxRetries int
	backoff    func() time.Duration
	logger     *slog.Logger

	jobTTL   time.Duration
	jobMu    sync.Mutex
	jobCache map[string]jobEntry
}

type jobEntry struct {
	fetched time.Time
	err     error
}

func NewClient(config *Config, logger *slog.Logger) *Client {
	return &Client{
		base:       strings.TrimRight(config.BaseURL, "/"),
		apiKey:     config.APIKey,
		http:       &http.Client{Timeout: config.RequestTimeoutDuration()},
		limiter:    rate.NewLimiter(rate.Limit(config.RatePerSecond), config.RateBurst),
		maxRetries: config.MaxRetries,
		backoff:    backoffDelay,
		logger:     logger.With("system", "crowd"),
		jobTTL:     config.JobCacheTTLDuration(),
		jobCache:   make(map[string]jobEntry),
	}
}

func (c *Client) CreateUnit(ctx context.Context, jobID, sourceURL string, inputs map[string]string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"source_url": sourceURL,
		"inputs":     inputs,
	})
	if err != nil {
		return "", fmt.Errorf("encode unit inputs: %w", err)
	}

	var out struct {
		ID string `json:"id"`
	}

	url := fmt.Sprintf("%s/jobs/%s/units", c.base, jobID)
	if err := c.do(ctx, http.MethodPost, url, body, &out); err != nil {
		return "", fmt.Errorf("create unit for job %s: %w", jobID, err)
	}

	return out.ID, nil
}

func (c *Client) UnitResult(ctx context.Context, jobID, unitID string) (*Result, error) {
	var out Result

	url := fmt.Sprintf("%s/jobs/%s/units/%s", c.base, jobID, unitID)
	if err := c.do(ctx, http.MethodGet, url, nil, &out); err != nil {
		return nil, fmt.Errorf("unit %s result for job %s: %w", unitID, jobID, err)
	}

	return &out, nil
}

func (c *Client) CancelUnit(ctx context.Context, jobID, unitID string) error {
	url := fmt.Sprintf("%s/jobs/%s/units/%s/cancel", c.base, jobID, unitID)
	err := c.do(ctx, http.MethodPost, url, nil, nil)
	if errors.Is(err, ErrUnitNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cancel unit %s for job %s: %w", unitID, jobID, err)
	}
	return nil
}

// JobPing checks that a job exists. Lookups are cached so registering a
// batch of units against the same workflow does not hammer the platform.
func (c *Client) JobPing(ctx context.Context, jobID string) error {
	c.jobMu.Lock()
	if entry, ok := c.jobCache[jobID]; ok && time.Since(entry.fetched) < c.jobTTL {
		c.jobMu.Unlock()
		return entry.err
	}
	c.jobMu.Unlock()

	url := fmt.Sprintf("%s/jobs/%s", c.base, jobID)
	err := c.do(ctx, http.MethodGet, url, nil, nil)
	if errors.Is(err, ErrUnitNotFound) {
		err = fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	// Transient failures are not cached; only definitive answers are.
	if err == nil || errors.Is(err, ErrJobNotFound) {
		c.jobMu.Lock()
		c.jobCache[jobID] = jobEntry{fetched: time.Now(), err: err}
		c.jobMu.Unlock()
	}

	return err
}

func (c *Client) do(ctx context.Context, method, url string, body []byte, out any) error {
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		status, data, err := c.roundTrip(ctx, method, url, body)
		if err != nil {
			return err
		}

		switch {
		case status == http.StatusTooManyRequests:
			if attempt >= c.maxRetries {
				return ErrRateLimited
			}
			delay := c.backoff()
			c.logger.Warn("crowd rate limited", "url", url, "attempt", attempt+1, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		case status == http.StatusNotFound:
			return ErrUnitNotFound
		case status >= 400:
			return fmt.Errorf("crowd responded %d: %s", status, strings.TrimSpace(string(data)))
		default:
			if out == nil {
				return nil
			}
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("decode crowd response: %w", err)
			}
			return nil
		}
	}
}

func (c *Client) roundTrip(ctx context.Context, method, url string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, err
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return 0, nil, err
	}

	return res.StatusCode, data, nil
}

// backoffDelay spreads retries between two and seven seconds so workers
// rate limited together do not retry together.
func backoffDelay() time.Duration {
	return 2*time.Second + time.Duration(rand.Int64N(int64(5*time.Second)))
}
