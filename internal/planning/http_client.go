package planning

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/patrickmn/go-cache"
)

const (
	maxAttempts        = 3
	defaultBackoffStep = 2 * time.Second // attempt n waits (n-1)*step
	healthCacheKey     = "planner_health"
	healthCacheTTL     = 30 * time.Second
	maxErrorBodySize   = 4096
)

// RequestError represents a failed call to the planning service.
type RequestError struct {
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("planning request failed: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable returns true for server errors (5xx). Client errors (4xx)
// are considered permanent and are never retried.
func (e *RequestError) IsRetryable() bool {
	return e.StatusCode >= 500
}

// Category buckets a planning failure for user-facing messages:
// "no-connectivity", "timeout", "server-error" or "client-error".
func Category(err error) string {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		if reqErr.StatusCode >= 500 {
			return "server-error"
		}
		return "client-error"
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return "timeout"
	}
	return "no-connectivity"
}

// HTTPClient is the production planning client. Transient failures are
// retried a bounded number of times with linearly increasing backoff;
// health probe results are cached briefly to keep repeated pipeline
// invocations cheap.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
	health     *cache.Cache

	backoffStep time.Duration
}

func NewHTTPClient(baseURL, token string, timeout time.Duration, logger *slog.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger:      logger,
		health:      cache.New(healthCacheTTL, time.Minute),
		backoffStep: defaultBackoffStep,
	}
}

func (c *HTTPClient) CheckHealth(ctx context.Context) error {
	if v, ok := c.health.Get(healthCacheKey); ok {
		if healthy, _ := v.(bool); healthy {
			return nil
		}
	}

	var resp healthResponse
	if err := c.doJSON(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return err
	}
	if resp.Status != "ok" && resp.Status != "healthy" {
		return fmt.Errorf("planning service unhealthy: status %q", resp.Status)
	}

	c.health.Set(healthCacheKey, true, cache.DefaultExpiration)
	return nil
}

func (c *HTTPClient) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResponse, error) {
	var resp AnalyzeResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/analyze", req, &resp); err != nil {
		return nil, err
	}

	if c.logger != nil {
		c.logger.Info("plan received",
			"segments", len(resp.FinalEdit),
			"edit_mode", req.EditMode,
			"videos", len(req.PerVideo),
		)
	}
	return &resp, nil
}

// doJSON issues one JSON request with bounded retries. Network errors
// and 5xx responses retry; 4xx responses fail immediately.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, payload, out any) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal planning payload: %w", err)
		}
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			wait := time.Duration(attempt-1) * c.backoffStep
			if c.logger != nil {
				c.logger.Warn("retrying planning request",
					"path", path,
					"attempt", attempt,
					"wait", wait.String(),
					"error", lastErr,
				)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		err := c.doOnce(ctx, method, path, body, out)
		if err == nil {
			return nil
		}
		lastErr = err

		var reqErr *RequestError
		if errors.As(err, &reqErr) && !reqErr.IsRetryable() {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return lastErr
}

func (c *HTTPClient) doOnce(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Clipforge-Request-Id", generateRequestID())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return fmt.Errorf("parse planning response: %w", err)
			}
		}
		return nil
	}

	// Error bodies are kept short; they only feed log lines.
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	return &RequestError{StatusCode: resp.StatusCode, Body: string(respBody)}
}

func generateRequestID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:])
}

var _ Client = (*HTTPClient)(nil)
