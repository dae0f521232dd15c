// Package http is the outbound HTTP client used for feed uploads and webhooks.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kosarica/feed-service/internal/http/ratelimit"
)

const userAgent = "Kosarica-FeedService/1.0"

// Request describes one outbound call. Body is reopened on every attempt so
// large files can be streamed again after a retryable failure.
type Request struct {
	Method        string
	URL           string
	Header        http.Header
	Body          func() (io.ReadCloser, error)
	ContentLength int64
}

// Client is an HTTP client with rate limiting and retry logic
type Client struct {
	httpClient  *http.Client
	rateLimiter *ratelimit.RateLimiter
	config      ratelimit.Config
}

// NewClient creates a new HTTP client with rate limiting
func NewClient(config ratelimit.Config, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		rateLimiter: ratelimit.NewRateLimiter(config),
		config:      config,
	}
}

// NewClientDefault creates a new HTTP client with default rate limiting
func NewClientDefault() *Client {
	return NewClient(ratelimit.DefaultConfig(), 0)
}

// Config returns the client's rate limit config
func (c *Client) Config() ratelimit.Config {
	return c.config
}

// Do sends req, retrying network errors and retryable statuses with backoff.
// A 2xx response is returned with its body open; anything else becomes a
// *ratelimit.RetryError.
func (c *Client) Do(ctx context.Context, req Request) (*http.Response, error) {
	var lastStatus int
	var lastErr error

	fail := func(attempt int) error {
		return &ratelimit.RetryError{URL: req.URL, Attempts: attempt + 1, LastStatus: lastStatus, LastError: lastErr}
	}

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if err := c.rateLimiter.Throttle(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter error: %w", err)
		}

		httpReq, err := c.newRequest(ctx, req)
		if err != nil {
			// a request that cannot be built will not build on retry
			lastErr = err
			return nil, fail(attempt)
		}

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if attempt < c.config.MaxRetries {
				if err := ratelimit.Sleep(ctx, ratelimit.CalculateBackoff(attempt, c.config)); err != nil {
					return nil, err
				}
				continue
			}
			return nil, fail(attempt)
		}

		lastStatus = resp.StatusCode
		lastErr = nil
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		if len(snippet) > 0 {
			lastErr = fmt.Errorf("%s", bytes.TrimSpace(snippet))
		}

		if !ratelimit.IsRetryableStatus(resp.StatusCode) || attempt == c.config.MaxRetries {
			return nil, fail(attempt)
		}

		var wait time.Duration
		if resp.StatusCode == http.StatusTooManyRequests {
			wait = ratelimit.CalculateRateLimitBackoff(attempt, c.config, resp.Header.Get("Retry-After"))
		} else {
			wait = ratelimit.CalculateBackoff(attempt, c.config)
		}
		if err := ratelimit.Sleep(ctx, wait); err != nil {
			return nil, err
		}
	}

	return nil, fail(c.config.MaxRetries)
}

func (c *Client) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	var body io.ReadCloser
	if req.Body != nil {
		b, err := req.Body()
		if err != nil {
			return nil, fmt.Errorf("failed to open request body: %w", err)
		}
		body = b
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		if body != nil {
			body.Close()
		}
		return nil, err
	}
	for k, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(k, v)
		}
	}
	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", userAgent)
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "*/*")
	}
	if req.ContentLength > 0 {
		httpReq.ContentLength = req.ContentLength
	}
	return httpReq, nil
}

// PostJSON marshals v and posts it to url, discarding the response body
func (c *Client) PostJSON(ctx context.Context, url string, v any, header http.Header) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	h := header.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set("Content-Type", "application/json")

	resp, err := c.Do(ctx, Request{
		Method: http.MethodPost,
		URL:    url,
		Header: h,
		Body: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(payload)), nil
		},
		ContentLength: int64(len(payload)),
	})
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}
