package tablestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cohort-hub/student-dashboard/internal/domain/leaderboard"
	"github.com/cohort-hub/student-dashboard/pkg/circuitbreaker"
	"github.com/cohort-hub/student-dashboard/pkg/retry"
)

// DefaultTable is the XP table queried per batch.
const DefaultTable = "xp_leaderboard"

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the table store client.
type ClientConfig struct {
	// BaseURL is the store instance URL, e.g. "https://xyz.example.co".
	BaseURL string

	// APIKey authenticates every request (apikey header + Bearer token).
	APIKey string

	// Table is the XP table name. Defaults to DefaultTable.
	Table string

	// Timeout is the HTTP request timeout.
	Timeout time.Duration

	// RateLimiterConfig for client-side rate limiting.
	RateLimiterConfig RateLimiterConfig

	// CircuitBreakerConfig for fault tolerance.
	CircuitBreakerConfig circuitbreaker.Config

	// RetryConfig for transient-failure retries. Note the aggregator never
	// retries a failed aggregation; retries here smooth over individual
	// network blips within one query.
	RetryConfig retry.Config

	// Logger for structured logging.
	Logger *slog.Logger

	// Debug enables request logging.
	Debug bool
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL, apiKey string) ClientConfig {
	return ClientConfig{
		BaseURL:              baseURL,
		APIKey:               apiKey,
		Table:                DefaultTable,
		Timeout:              30 * time.Second,
		RateLimiterConfig:    DefaultRateLimiterConfig(),
		CircuitBreakerConfig: circuitbreaker.DefaultConfig("tablestore"),
		RetryConfig:          retry.DefaultConfig(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client queries the remote table store. It implements
// leaderboard.BatchSource.
type Client struct {
	config      ClientConfig
	httpClient  *http.Client
	logger      *slog.Logger
	rateLimiter *RateLimiter
	breaker     *circuitbreaker.CircuitBreaker
	retrier     *retry.Retrier
	mapper      *Mapper
}

// NewClient creates a new table store client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Table == "" {
		config.Table = DefaultTable
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger:      config.Logger,
		rateLimiter: NewRateLimiter(config.RateLimiterConfig),
		breaker:     circuitbreaker.New(config.CircuitBreakerConfig),
		retrier:     retry.New(config.RetryConfig),
		mapper:      NewMapper(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// BATCH OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// FetchBatch returns every XP row whose cohort_type and cohort_number both
// equal the key's components.
func (c *Client) FetchBatch(ctx context.Context, key leaderboard.BatchKey) ([]leaderboard.XPRecord, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("select", "*")
	params.Set("cohort_type", "eq."+key.CohortType)
	params.Set("cohort_number", "eq."+key.CohortNumber)

	path := "/rest/v1/" + url.PathEscape(c.config.Table) + "?" + params.Encode()

	var rows []XPRowDTO
	if err := c.doRequest(ctx, http.MethodGet, path, &rows); err != nil {
		return nil, fmt.Errorf("fetch batch %s: %w", key, err)
	}

	return c.mapper.RecordsFromRows(rows), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// doRequest performs an HTTP request with rate limiting, circuit breaking,
// and retries.
func (c *Client) doRequest(ctx context.Context, method, path string, result interface{}) error {
	if err := c.breaker.Allow(); err != nil {
		return fmt.Errorf("circuit breaker: %w", err)
	}

	err := c.retrier.Do(ctx, func(ctx context.Context) error {
		if err := c.rateLimiter.Allow(ctx); err != nil {
			return retry.Permanent(fmt.Errorf("rate limiter: %w", err))
		}
		return c.doSingleRequest(ctx, method, path, result)
	})

	if err != nil {
		c.breaker.RecordFailure()
		return err
	}

	c.breaker.RecordSuccess()
	return nil
}

// doSingleRequest performs a single HTTP request. Client errors (4xx except
// 429) are wrapped as permanent so the retrier surfaces them immediately.
func (c *Client) doSingleRequest(ctx context.Context, method, path string, result interface{}) error {
	fullURL := c.config.BaseURL + path

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return retry.Permanent(fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("apikey", c.config.APIKey)
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	if c.config.Debug {
		c.logger.Debug("table store request", "method", method, "path", path)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := 10 * time.Second
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return &RateLimitError{
			RetryAfter: retryAfter,
			Message:    "table store rate limit exceeded",
		}
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIErrorDTO{Status: resp.StatusCode}
		if jsonErr := json.Unmarshal(respBody, apiErr); jsonErr != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		if resp.StatusCode < 500 {
			return retry.Permanent(apiErr)
		}
		return apiErr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return retry.Permanent(fmt.Errorf("unmarshal response: %w", err))
		}
	}

	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH AND STATUS
// ══════════════════════════════════════════════════════════════════════════════

// IsHealthy checks if the table store is reachable.
func (c *Client) IsHealthy(ctx context.Context) bool {
	err := c.doSingleRequest(ctx, http.MethodHead, "/rest/v1/", nil)
	if err == nil {
		return true
	}
	var apiErr *APIErrorDTO
	// PostgREST answers the bare root with 4xx; reachable is healthy enough.
	if errors.As(err, &apiErr) {
		return apiErr.Status < 500
	}
	return false
}

// ClientStatus is a point-in-time snapshot of the client internals.
type ClientStatus struct {
	RateLimiter    RateLimiterStatus
	CircuitBreaker circuitbreaker.Status
}

// Status returns the current status of the client.
func (c *Client) Status() ClientStatus {
	return ClientStatus{
		RateLimiter:    c.rateLimiter.Status(),
		CircuitBreaker: c.breaker.Status(),
	}
}

// Reset resets the rate limiter and circuit breaker.
func (c *Client) Reset() {
	c.rateLimiter.Reset()
	c.breaker.Reset()
}
