// Package httpclient is the outbound HTTP client used by external lookups
// (geocoding, tax registries).
package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
)

const (
	DefaultTimeout = 10 * time.Second

	// MaxResponseSize is the maximum response body size (2MB)
	MaxResponseSize = 2 * 1024 * 1024
)

// Config holds HTTP client configuration
type Config struct {
	Timeout         time.Duration
	MaxIdleConns    int
	IdleConnTimeout time.Duration
	UserAgent       string
}

// Response is a fully read HTTP response
type Response struct {
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// StatusError is returned by GetJSON for non-2xx responses
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s returned status %d", e.URL, e.StatusCode)
}

// Client wraps net/http with logging, a size limit and a default user agent
type Client struct {
	client    *http.Client
	userAgent string
	logger    ectologger.Logger
}

// NewClient creates a new HTTP client
func NewClient(cfg Config, logger ectologger.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 50
	}
	if cfg.IdleConnTimeout == 0 {
		cfg.IdleConnTimeout = 90 * time.Second
	}

	return &Client{
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:           http.ProxyFromEnvironment,
				MaxIdleConns:    cfg.MaxIdleConns,
				IdleConnTimeout: cfg.IdleConnTimeout,
			},
			Timeout: cfg.Timeout,
		},
		userAgent: cfg.UserAgent,
		logger:    logger,
	}
}

// Do executes the request and reads the body up to MaxResponseSize
func (c *Client) Do(ctx context.Context, req *http.Request) (*Response, error) {
	start := time.Now()
	if c.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req.WithContext(ctx))
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).Warnf("HTTP request failed: %s %s", req.Method, req.URL.Redacted())
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(body) > MaxResponseSize {
		return nil, fmt.Errorf("response body too large: more than %d bytes", MaxResponseSize)
	}

	duration := time.Since(start)
	c.logger.WithContext(ctx).Debugf("HTTP %s %s -> %d (%s)", req.Method, req.URL.Redacted(), resp.StatusCode, duration)

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       body,
		Duration:   duration,
	}, nil
}

// GetJSON performs a GET and decodes a 2xx JSON body into dest
func (c *Client) GetJSON(ctx context.Context, url string, headers map[string]string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode, URL: req.URL.Redacted()}
	}
	if err := json.Unmarshal(resp.Body, dest); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
