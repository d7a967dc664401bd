package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/redinc23/hathor-red/internal/config"
)

const defaultRequestTimeout = 30 * time.Second

// APIError is a non-2xx response from the GitHub API.
type APIError struct {
	StatusCode int
	Path       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github %s returned %d: %s", e.Path, e.StatusCode, e.Message)
}

// Retryable reports whether redelivering the triggering event may
// succeed: rate limiting and server errors are transient, everything
// else is not.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsRetryable reports whether err represents a transient failure, either
// a retryable API status or a network timeout.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Client is the production Port adapter over the GitHub REST API. Every
// call is rate limited and bounded by the HTTP client timeout; there is
// no internal retry loop, callers rely on upstream redelivery.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	limiter *rate.Limiter
}

var _ Port = (*Client)(nil)

// NewClient builds the production adapter. App authentication is used
// when an App ID is configured, otherwise the personal access token.
func NewClient(cfg *config.GitHubConfig) (*Client, error) {
	timeout := cfg.RequestTimeoutDuration
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	httpClient := &http.Client{Timeout: timeout}

	var tokens TokenSource
	if cfg.AppID != 0 {
		source, err := NewAppTokenSource(cfg.AppID, cfg.PrivateKey(), cfg.BaseURL, httpClient)
		if err != nil {
			return nil, fmt.Errorf("configuring app auth: %w", err)
		}
		tokens = source
	} else {
		tokens = NewStaticTokenSource(cfg.Token())
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		http:    httpClient,
		tokens:  tokens,
		limiter: rate.NewLimiter(rate.Limit(rps), max(int(rps), 1)),
	}, nil
}

// apiRequest performs one authenticated JSON call. A non-nil body is
// marshaled as the request payload; a non-nil out receives the decoded
// response.
func (c *Client) apiRequest(ctx context.Context, method, owner, repo, path string, body, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for rate limiter: %w", err)
	}

	var payload io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		payload = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	token, err := c.tokens.Token(ctx, owner, repo)
	if err != nil {
		return fmt.Errorf("resolving token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling GitHub: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{
			StatusCode: resp.StatusCode,
			Path:       path,
			Message:    strings.TrimSpace(string(msg)),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// rawRequest performs one authenticated call and returns the raw body,
// capped at limit bytes. Used for log archives.
func (c *Client) rawRequest(ctx context.Context, owner, repo, path string, limit int64) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	token, err := c.tokens.Token(ctx, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("resolving token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling GitHub: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Path:       path,
			Message:    strings.TrimSpace(string(msg)),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return data, nil
}

func isNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

func isUnprocessable(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnprocessableEntity
}
