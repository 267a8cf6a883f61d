package resilience

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned when the circuit breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ClientConfig holds configuration for the resilient HTTP client.
type ClientConfig struct {
	// Name identifies this client for circuit breaker naming and health.
	Name string

	// Policy is the retry envelope used by GetJSON.
	Policy Policy

	// CircuitBreaker is the circuit breaker configuration.
	// If nil, uses DefaultCircuitBreakerConfig.
	CircuitBreaker *CircuitBreakerConfig

	// Clock drives backoff waits (optional, defaults to the real clock).
	Clock clockwork.Clock

	// Transport overrides the HTTP transport (optional).
	Transport http.RoundTripper

	// Registry receives success/failure reports (optional).
	Registry *Registry
}

// DefaultClientConfig returns the defaults used for weather upstreams.
func DefaultClientConfig(name string) ClientConfig {
	cbConfig := DefaultCircuitBreakerConfig(name)
	return ClientConfig{
		Name:           name,
		Policy:         DefaultPolicy(),
		CircuitBreaker: &cbConfig,
	}
}

// Client is an HTTP client that executes single attempts through a circuit
// breaker and retries them according to its Policy.
type Client struct {
	name           string
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker[*http.Response]
	policy         Policy
	clock          clockwork.Clock
	registry       *Registry
}

// NewClient creates a new resilient HTTP client.
func NewClient(cfg ClientConfig) *Client {
	cbConfig := DefaultCircuitBreakerConfig(cfg.Name)
	if cfg.CircuitBreaker != nil {
		cbConfig = *cfg.CircuitBreaker
	}

	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	c := &Client{
		name: cfg.Name,
		// Attempt timeouts come from the request context.
		httpClient:     &http.Client{Transport: cfg.Transport},
		circuitBreaker: NewCircuitBreaker[*http.Response](cbConfig), //nolint:bodyclose // type param, not response
		policy:         cfg.Policy.withDefaults(),
		clock:          clock,
		registry:       cfg.Registry,
	}

	if c.registry != nil {
		c.registry.Register(cfg.Name, c)
	}

	return c
}

// Name returns the client name.
func (c *Client) Name() string {
	return c.name
}

// Do executes a single HTTP attempt through the circuit breaker.
// 5xx responses are returned as *ServerError and 429 as *RateLimitError;
// their bodies are closed. Other responses are returned to the caller,
// which owns the body.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	resp, err := c.circuitBreaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // caller is responsible for closing
		r, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}

		switch {
		case r.StatusCode == http.StatusTooManyRequests:
			drain(r)
			return nil, &RateLimitError{RetryAfter: parseRetryAfter(r.Header.Get("Retry-After"))}
		case r.StatusCode >= 500:
			drain(r)
			return nil, &ServerError{StatusCode: r.StatusCode}
		}

		return r, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrCircuitOpen
		}
		return nil, err
	}

	return resp, nil
}

// GetJSON performs a GET with retries and decodes a 2xx JSON body into dst.
// Non-2xx statuses other than 429 and 5xx fail without retrying, as do
// undecodable bodies. notify may be nil.
func (c *Client) GetJSON(ctx context.Context, url string, header http.Header, dst any, notify func(attempt int, err error, wait time.Duration)) error {
	_, err := Retry(ctx, c.policy, Options{Clock: c.clock, Notify: notify}, func(ctx context.Context, _ int) (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
		if err != nil {
			return struct{}{}, backoff.Permanent(fmt.Errorf("creating request: %w", err))
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		resp, err := c.Do(req)
		if err != nil {
			return struct{}{}, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return struct{}{}, &StatusError{StatusCode: resp.StatusCode}
		}

		if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
			return struct{}{}, backoff.Permanent(fmt.Errorf("decoding response: %w", err))
		}
		return struct{}{}, nil
	})

	// A caller giving up says nothing about the upstream.
	if c.registry != nil && !errors.Is(err, context.Canceled) {
		c.registry.Record(c.name, c.clock.Now(), err)
	}

	return err
}

// ServerError represents an HTTP 5xx server error.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return "server error: " + http.StatusText(e.StatusCode)
}

// RateLimitError represents an HTTP 429 response.
type RateLimitError struct {
	// RetryAfter is the upstream hint, zero when absent.
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return "rate limited, retry after " + e.RetryAfter.String()
	}
	return "rate limited"
}

// StatusError represents a non-retryable, non-2xx response.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.StatusCode)
}

// CircuitBreakerState returns the current state of the circuit breaker.
func (c *Client) CircuitBreakerState() gobreaker.State {
	return c.circuitBreaker.State()
}

// CircuitBreakerCounts returns the current counts of the circuit breaker.
func (c *Client) CircuitBreakerCounts() gobreaker.Counts {
	return c.circuitBreaker.Counts()
}

func drain(r *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r.Body, 64<<10))
	_ = r.Body.Close()
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
