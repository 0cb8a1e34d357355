// Package topcoder is the HTTP client for the V5 challenge and
// submission APIs.
package topcoder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/topcoder-platform/marathon-rating-processor/internal/auth"
)

const (
	requestTimeout = 10 * time.Second
	maxRetries     = 2
	retryBackoff   = 500 * time.Millisecond
)

// Client calls the V5 API with bearer auth, client-side rate limiting,
// a circuit breaker, and bounded retries on transient failures.
type Client struct {
	baseURL string
	httpc   *http.Client
	tokens  *auth.TokenSource
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

// NewClient creates a V5 API client. A nil http client falls back to a
// default with the request timeout applied.
func NewClient(baseURL string, tokens *auth.TokenSource, httpc *http.Client) *Client {
	if httpc == nil {
		httpc = &http.Client{Timeout: requestTimeout}
	}

	st := gobreaker.Settings{Name: "v5-api"}
	st.Interval = 60 * time.Second
	st.Timeout = 60 * time.Second
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= 5
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   httpc,
		tokens:  tokens,
		breaker: gobreaker.NewCircuitBreaker(st),
		limiter: rate.NewLimiter(rate.Limit(10), 20),
	}
}

// getJSON performs an authenticated GET, decodes the body into out, and
// returns the response headers (submission pagination reads them).
func (c *Client) getJSON(ctx context.Context, url string, out interface{}) (http.Header, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doWithRetry(ctx, url)
	})
	if err != nil {
		return nil, err
	}

	resp := res.(*fetched)
	if err := json.Unmarshal(resp.body, out); err != nil {
		return nil, fmt.Errorf("failed to decode response from %s: %w", url, err)
	}

	return resp.header, nil
}

type fetched struct {
	header http.Header
	body   []byte
}

func (c *Client) doWithRetry(ctx context.Context, url string) (*fetched, error) {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(retryBackoff * time.Duration(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		res, err := c.doOnce(ctx, url)
		if err == nil {
			return res, nil
		}
		lastErr = err

		// Context errors and 4xx responses will not succeed on retry.
		if ctx.Err() != nil || !isTransient(err) {
			break
		}
	}

	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, url string) (*fetched, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain m2m token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", url, err)
	}

	if resp.StatusCode >= 400 {
		return nil, &statusError{URL: url, Code: resp.StatusCode}
	}

	return &fetched{header: resp.Header, body: body}, nil
}

type statusError struct {
	URL  string
	Code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.URL, e.Code)
}

func isTransient(err error) bool {
	if se, ok := err.(*statusError); ok {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests
	}
	// Network-level failures are worth one more try.
	return true
}
