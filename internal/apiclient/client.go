package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"flowbridge/pkg/logging"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaxBackoff     = 8 * time.Second

	// maxErrorBodyBytes bounds how much of an error response body is kept
	// for diagnostics.
	maxErrorBodyBytes = 2048
)

// Response is the decoded outcome of a successful (2xx) API call.
// Data holds the raw JSON body; callers unmarshal into their own types.
type Response struct {
	Status     int
	StatusText string
	Data       json.RawMessage
}

// Client is an authenticated JSON client for the Hublead API.
//
// It retries network errors and 5xx responses with exponential backoff and
// never retries 4xx responses. All methods honor context cancellation,
// including during backoff waits.
type Client struct {
	baseURL        *url.URL
	apiKey         string
	httpClient     *http.Client
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	userAgent      string
}

// Option customizes client construction.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client (used by tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetryAttempts sets how many times a retryable failure is retried.
// 0 disables retries entirely.
func WithRetryAttempts(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.retryAttempts = n
		}
	}
}

// WithBackoff overrides the retry backoff window.
func WithBackoff(initial, max time.Duration) Option {
	return func(c *Client) {
		if initial > 0 {
			c.initialBackoff = initial
		}
		if max > 0 {
			c.maxBackoff = max
		}
	}
}

// New creates a client for the API rooted at baseURL, authenticating every
// request with apiKey.
func New(baseURL, apiKey string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", baseURL)
	}

	c := &Client{
		baseURL:        u,
		apiKey:         apiKey,
		httpClient:     &http.Client{Timeout: defaultRequestTimeout},
		retryAttempts:  3,
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
		userAgent:      "flowbridge",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get performs a GET request against path with optional query parameters.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, query, nil)
}

// Post performs a POST request against path with a JSON-encoded body.
func (c *Client) Post(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.do(ctx, http.MethodPost, path, nil, body)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body interface{}) (*Response, error) {
	var encoded []byte
	if body != nil {
		var err error
		encoded, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.retryAttempts; attempt++ {
		if attempt > 0 {
			if err := c.wait(ctx, c.calculateBackoff(attempt)); err != nil {
				return nil, err
			}
			logging.Debug("APIClient", "Retrying %s %s (attempt %d/%d)", method, path, attempt, c.retryAttempts)
		}

		resp, err := c.doOnce(ctx, method, path, query, encoded)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !retryable(err) || ctx.Err() != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, method, path string, query url.Values, body []byte) (*Response, error) {
	u := c.baseURL.JoinPath(path)
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: method + " " + path, Err: err}
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &NetworkError{Op: "read " + method + " " + path, Err: err}
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, &APIError{
			Status:     httpResp.StatusCode,
			StatusText: http.StatusText(httpResp.StatusCode),
			Body:       truncateBody(data),
		}
	}

	return &Response{
		Status:     httpResp.StatusCode,
		StatusText: http.StatusText(httpResp.StatusCode),
		Data:       data,
	}, nil
}

// calculateBackoff computes exponential backoff: initial * 2^(attempt-1),
// capped at maxBackoff.
func (c *Client) calculateBackoff(attempt int) time.Duration {
	backoff := c.initialBackoff * time.Duration(1<<uint(attempt-1))
	if backoff > c.maxBackoff {
		backoff = c.maxBackoff
	}
	return backoff
}

func (c *Client) wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func retryable(err error) bool {
	switch e := err.(type) {
	case *NetworkError:
		return true
	case *APIError:
		return e.Retryable()
	default:
		return false
	}
}

func truncateBody(data []byte) string {
	s := strings.TrimSpace(string(data))
	if len(s) > maxErrorBodyBytes {
		return s[:maxErrorBodyBytes]
	}
	return s
}
