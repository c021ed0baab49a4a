package searchsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/Aman-CERP/amanrag/internal/errors"
)

// Config configures a search service client.
type Config struct {
	// Endpoint is the service base URL.
	Endpoint string
	// APIKey is sent in the api-key header (admin key for mutations,
	// query key for read paths).
	APIKey string
	// APIVersion is sent as the api-version query parameter.
	APIVersion string
	// Index is the default index for document operations.
	Index string
	// Timeout bounds each call when the caller's context has no deadline.
	Timeout time.Duration
	// Retry overrides the default retry policy.
	Retry *errors.RetryConfig
}

// Client is a typed wrapper over the search service REST API.
// Safe for concurrent use; the underlying http.Client is shared.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *errors.CircuitBreaker
	retry   errors.RetryConfig
	logger  *slog.Logger
}

// NewClient creates a client for the given service.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("search service endpoint is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("search service api key is required")
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2024-07-01"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	retry := errors.DefaultRetryConfig()
	if cfg.Retry != nil {
		retry = *cfg.Retry
	}

	transport := &http.Transport{
		MaxIdleConns:        16,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     90 * time.Second,
	}

	// No http.Client.Timeout: it would override per-request context
	// deadlines. Deadlines are applied in do().
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Transport: transport},
		breaker: errors.NewCircuitBreaker("searchsvc:" + cfg.Endpoint),
		retry:   retry,
		logger:  slog.Default(),
	}, nil
}

// Index returns the default index name configured for this client.
func (c *Client) Index() string {
	return c.cfg.Index
}

// buildURL joins the endpoint, path, and api-version.
func (c *Client) buildURL(path string, query url.Values) string {
	if query == nil {
		query = url.Values{}
	}
	query.Set("api-version", c.cfg.APIVersion)
	return c.cfg.Endpoint + path + "?" + query.Encode()
}

// do executes one HTTP call with retry (idempotent transient failures only)
// and circuit breaking, decoding a JSON response into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any, idempotent bool) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	attempt := func() error {
		if !c.breaker.Allow() {
			return errors.Dependency("search service", errors.ErrCircuitOpen)
		}

		callCtx := ctx
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
			defer cancel()
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(callCtx, method, c.buildURL(path, nil), reader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("api-key", c.cfg.APIKey)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			c.breaker.RecordFailure()
			if callCtx.Err() == context.DeadlineExceeded {
				return errors.Wrap(errors.KindTimeout, "search service call timed out", err)
			}
			return errors.Dependency("search service", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode >= 400 {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			err := statusToError(resp.StatusCode, string(data))
			if errors.IsRetryable(err) {
				c.breaker.RecordFailure()
			}
			return err
		}
		c.breaker.RecordSuccess()

		if out == nil || resp.StatusCode == http.StatusNoContent {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}

	if !idempotent {
		return attempt()
	}
	return errors.Retry(ctx, c.retry, attempt)
}

// statusToError classifies an HTTP error status.
// 429 and 5xx are transient; other 4xx surface unmodified semantics.
func statusToError(status int, body string) error {
	msg := fmt.Sprintf("search service returned %d", status)
	if body != "" {
		msg += ": " + truncate(body, 200)
	}

	switch {
	case status == http.StatusNotFound:
		return errors.New(errors.KindNotFound, msg)
	case status == http.StatusUnauthorized:
		return errors.New(errors.KindUnauthorized, msg)
	case status == http.StatusForbidden:
		return errors.New(errors.KindForbidden, msg)
	case status == http.StatusConflict || status == http.StatusPreconditionFailed:
		return errors.New(errors.KindConflict, msg)
	case status == http.StatusTooManyRequests || status >= 500:
		return errors.New(errors.KindDependencyUnavailable, msg)
	default:
		return errors.New(errors.KindValidation, msg)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
