// Package httputil provides the shared HTTP client and input sanitization utilities.
package httputil

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"

	"anistream/internal/media"
)

// DefaultUserAgent mimics a desktop browser; several sources refuse anything else.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"

// ClientConfig holds configuration for the HTTP client.
type ClientConfig struct {
	Timeout    time.Duration
	MaxRetries int // transport-level retries on 5xx/429/network errors
	UserAgent  string
	Debug      bool
	Logger     *slog.Logger
	// AllowHTTP permits plain-http URLs. Only local fixtures need it.
	AllowHTTP bool
	Transport http.RoundTripper
}

// DefaultClientConfig returns sensible defaults for the HTTP client.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:    30 * time.Second,
		MaxRetries: 2,
		UserAgent:  DefaultUserAgent,
	}
}

// Client wraps resty with browser-like defaults and error kinds from package media.
type Client struct {
	resty     *resty.Client
	userAgent string
	allowHTTP bool
	logger    *slog.Logger
}

// Response is a fully read HTTP response. URL is the final URL after redirects.
type Response struct {
	Status int
	URL    string
	Body   []byte
	Header http.Header
}

// String returns the body as a string.
func (r *Response) String() string {
	return string(r.Body)
}

// NewClient creates a client from cfg, filling zero values with defaults.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	r := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(3*time.Second).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8").
		SetHeader("Accept-Language", "en-US,en;q=0.5")
	if cfg.Transport != nil {
		r.SetTransport(cfg.Transport)
	}

	r.AddRetryCondition(func(resp *resty.Response, err error) bool {
		if err != nil {
			return true
		}
		return resp.StatusCode() >= 500 || resp.StatusCode() == http.StatusTooManyRequests
	})

	c := &Client{
		resty:     r,
		userAgent: cfg.UserAgent,
		allowHTTP: cfg.AllowHTTP,
		logger:    cfg.Logger,
	}

	if cfg.Debug {
		r.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			c.logger.Debug("http request", "method", req.Method, "url", req.URL)
			return nil
		})
		r.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
			c.logger.Debug("http response",
				"status", resp.StatusCode(),
				"url", resp.Request.URL,
				"time", resp.Time(),
				"bytes", len(resp.Body()),
			)
			return nil
		})
	}

	return c
}

// UserAgent returns the User-Agent sent with every request.
func (c *Client) UserAgent() string {
	return c.userAgent
}

func (c *Client) validate(rawURL string) error {
	if c.allowHTTP {
		u, err := url.Parse(rawURL)
		if err != nil {
			return fmt.Errorf("malformed URL: %w", err)
		}
		if u.Scheme == "http" && u.Host != "" {
			return nil
		}
	}
	return ValidateURL(rawURL)
}

// Get performs a GET request. Statuses >= 400 are returned as errors wrapping
// media.ErrNetwork.
func (c *Client) Get(ctx context.Context, rawURL string, headers map[string]string) (*Response, error) {
	return c.do(ctx, http.MethodGet, rawURL, headers, nil)
}

// GetString performs a GET request and returns the body as a string.
func (c *Client) GetString(ctx context.Context, rawURL string, headers map[string]string) (string, error) {
	resp, err := c.Get(ctx, rawURL, headers)
	if err != nil {
		return "", err
	}
	return resp.String(), nil
}

// GetJSON performs a GET request and decodes the JSON body into v. A body
// that isn't valid JSON for v is reported as media.ErrParse.
func (c *Client) GetJSON(ctx context.Context, rawURL string, headers map[string]string, v any) error {
	h := map[string]string{"Accept": "application/json, text/plain, */*"}
	for k, val := range headers {
		h[k] = val
	}
	resp, err := c.Get(ctx, rawURL, h)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return fmt.Errorf("decoding %s: %w: %w", rawURL, media.ErrParse, err)
	}
	return nil
}

// PostForm performs a urlencoded POST request.
func (c *Client) PostForm(ctx context.Context, rawURL string, form map[string]string, headers map[string]string) (*Response, error) {
	return c.do(ctx, http.MethodPost, rawURL, headers, func(r *resty.Request) {
		r.SetFormData(form)
	})
}

func (c *Client) do(ctx context.Context, method, rawURL string, headers map[string]string, prepare func(*resty.Request)) (*Response, error) {
	if err := c.validate(rawURL); err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	req := c.resty.R().SetContext(ctx).SetHeaders(headers)
	if prepare != nil {
		prepare(req)
	}

	resp, err := req.Execute(method, rawURL)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w: %w", method, rawURL, media.ErrNetwork, err)
	}
	if resp.StatusCode() >= 400 {
		return nil, fmt.Errorf("%s %s: %w: status %d", method, rawURL, media.ErrNetwork, resp.StatusCode())
	}

	final := rawURL
	if raw := resp.RawResponse; raw != nil && raw.Request != nil && raw.Request.URL != nil {
		final = raw.Request.URL.String()
	}

	return &Response{
		Status: resp.StatusCode(),
		URL:    final,
		Body:   resp.Body(),
		Header: resp.Header(),
	}, nil
}
