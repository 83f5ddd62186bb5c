package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/crewdeckhq/crewdeck/internal/ratelimit"
	"github.com/crewdeckhq/crewdeck/pkg/metrics"
)

const defaultCallTimeout = 10 * time.Second

// restClient is the shared HTTP plumbing for the provider clients: base URL,
// bearer auth, per-system rate limiting, latency metrics, and status
// classification.
type restClient struct {
	system  string
	baseURL string
	token   string
	http    *http.Client
	limiter *ratelimit.Limiter
	log     *zap.Logger
}

func newRESTClient(system, baseURL, token string, limiter *ratelimit.Limiter, log *zap.Logger) *restClient {
	if log == nil {
		log = zap.NewNop()
	}
	return &restClient{
		system:  system,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: defaultCallTimeout},
		limiter: limiter,
		log:     log,
	}
}

// doJSON issues a JSON request and decodes the response into out (when
// non-nil). Every call is a suspension point: it honours ctx, takes a rate
// limiter token first, and returns a classified *CallError on failure.
func (c *restClient) doJSON(ctx context.Context, method, operation, path string, payload, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Acquire(ctx, c.system); err != nil {
			return NewCallError(c.system, operation, err)
		}
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return &CallError{System: c.system, Operation: operation, Err: err}
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &CallError{System: c.system, Operation: operation, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ExternalCallLatency.WithLabelValues(c.system, operation, "error").Observe(time.Since(start).Seconds())
		return NewCallError(c.system, operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.ExternalCallLatency.WithLabelValues(c.system, operation, "error").Observe(time.Since(start).Seconds())
		call := FromStatus(c.system, operation, resp.StatusCode, resp.Header.Get("Retry-After"))
		if raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 2048)); readErr == nil && len(raw) > 0 {
			call.Err = fmt.Errorf("%s", strings.TrimSpace(string(raw)))
		}
		c.log.Warn("external call failed",
			zap.String("operation", operation),
			zap.Int("status", resp.StatusCode),
			zap.Bool("retryable", call.Retryable))
		return call
	}

	metrics.ExternalCallLatency.WithLabelValues(c.system, operation, "ok").Observe(time.Since(start).Seconds())

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &CallError{System: c.system, Operation: operation, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
