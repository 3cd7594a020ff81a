// Package fetcher executes HTTP requests against source endpoints with
// retry, backoff, and rate-limit handling, following the deterministic
// retry policy.
package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// NetworkError is returned once the retry budget is exhausted or a
// non-retryable HTTP status is received.
type NetworkError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetcher: %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetcher: %s: unexpected status %d", e.URL, e.StatusCode)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Metrics tracks request counters for one run.
type Metrics struct {
	Requests int
	Errors   int
	Retries  int
}

// Config holds the Fetcher's retry/timeout policy, threaded explicitly
// rather than read from a process-global settings object.
type Config struct {
	MaxRetries     int
	RetryDelay     time.Duration
	RequestTimeout time.Duration
	Headers        map[string]string
}

// Fetcher executes GET/POST requests with bounded retry/backoff.
type Fetcher struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger

	metrics Metrics
}

// New constructs a Fetcher bound to cfg.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	return &Fetcher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
		logger: logger,
	}
}

// Request describes one HTTP call. Body is url.Values for a form POST, or
// nil for a GET with no body.
type Request struct {
	Method  string
	URL     string
	Body    url.Values
	Headers map[string]string
}

// Do executes req, retrying until it succeeds, the retry
// budget is exhausted, or ctx is cancelled.
func (f *Fetcher) Do(ctx context.Context, req Request) ([]byte, error) {
	var lastErr error

retryLoop:
	for attempt := 0; attempt <= f.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		f.metrics.Requests++
		body, status, headers, err := f.doOnce(ctx, req)
		if err == nil && status == http.StatusOK {
			return body, nil
		}

		if err != nil {
			// Connection/timeout error: retry with backoff.
			lastErr = err
			if attempt == f.cfg.MaxRetries {
				break retryLoop
			}
			f.metrics.Retries++
			f.logger.Warn("fetcher: request error, retrying",
				zap.String("url", req.URL), zap.Error(err), zap.Int("attempt", attempt+1))
			if !f.sleep(ctx, f.cfg.RetryDelay) {
				return nil, ctx.Err()
			}
			continue
		}

		switch {
		case status == http.StatusTooManyRequests:
			delay := f.cfg.RetryDelay
			if ra := headers.Get("Retry-After"); ra != "" {
				if secs, convErr := strconv.Atoi(ra); convErr == nil {
					delay = time.Duration(secs) * time.Second
				}
			}
			lastErr = &NetworkError{URL: req.URL, StatusCode: status}
			if attempt == f.cfg.MaxRetries {
				break retryLoop
			}
			f.metrics.Retries++
			f.logger.Warn("fetcher: rate limited, retrying",
				zap.String("url", req.URL), zap.Duration("delay", delay))
			if !f.sleep(ctx, delay) {
				return nil, ctx.Err()
			}
			continue

		case status >= 500:
			lastErr = &NetworkError{URL: req.URL, StatusCode: status}
			if attempt == f.cfg.MaxRetries {
				break retryLoop
			}
			f.metrics.Retries++
			f.logger.Warn("fetcher: server error, retrying",
				zap.String("url", req.URL), zap.Int("status", status))
			if !f.sleep(ctx, f.cfg.RetryDelay) {
				return nil, ctx.Err()
			}
			continue

		default:
			// 400..499 except 429: non-retryable, fail immediately.
			f.metrics.Errors++
			return nil, &NetworkError{URL: req.URL, StatusCode: status}
		}
	}

	f.metrics.Errors++
	if ne, ok := lastErr.(*NetworkError); ok {
		return nil, ne
	}
	return nil, &NetworkError{URL: req.URL, Err: lastErr}
}

func (f *Fetcher) doOnce(ctx context.Context, req Request) ([]byte, int, http.Header, error) {
	var httpReq *http.Request
	var err error

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	if method == http.MethodPost && req.Body != nil {
		httpReq, err = http.NewRequestWithContext(ctx, method, req.URL, bytes.NewBufferString(req.Body.Encode()))
		if err == nil {
			httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		httpReq, err = http.NewRequestWithContext(ctx, method, req.URL, nil)
	}
	if err != nil {
		return nil, 0, nil, fmt.Errorf("build request: %w", err)
	}

	for k, v := range f.cfg.Headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, resp.Header, fmt.Errorf("read body: %w", err)
	}
	return raw, resp.StatusCode, resp.Header, nil
}

func (f *Fetcher) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// GetMetrics returns a copy of the fetcher's request counters.
func (f *Fetcher) GetMetrics() Metrics { return f.metrics }
