// Package openhumans is a client for the parts of the Open Humans API that
// loggather uses: the data-management access-log endpoints, the
// direct-sharing upload protocol, member exchange and OAuth2 tokens.
package openhumans

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

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/openhumans/loggather/config"
)

// APIError represents a non-2xx HTTP response.
type APIError struct {
	StatusCode int
	Body       string // first 512 bytes
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// Client talks to one Open Humans site. Access tokens are passed per call
// because every member has their own.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	redirectURI  string
	httpClient   *http.Client
	pageLimiter  *rate.Limiter
	logger       *zap.Logger
}

// Option configures Client behavior.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithPageRate paces log page requests to perSecond; 0 or less disables pacing.
func WithPageRate(perSecond float64) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.pageLimiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		c.pageLimiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// New creates a Client from the Open Humans configuration.
func New(cfg config.OpenHumansConfig, logger *zap.Logger, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		redirectURI:  cfg.RedirectURI(),
		httpClient:   &http.Client{Timeout: timeout},
		logger:       logger.Named("openhumans"),
	}
	WithPageRate(cfg.PageRate)(c)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// endpoint builds an absolute URL for an API path with the access token
// and any extra query parameters.
func (c *Client) endpoint(path, accessToken string, extra url.Values) string {
	q := url.Values{}
	if accessToken != "" {
		q.Set("access_token", accessToken)
	}
	for k, vs := range extra {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

// do sends req and decodes a 2xx JSON body into dest (when non-nil).
// Anything else becomes an *APIError.
func (c *Client) do(req *http.Request, dest any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyStr := string(body)
		if len(bodyStr) > 512 {
			bodyStr = bodyStr[:512]
		}
		return &APIError{StatusCode: resp.StatusCode, Body: bodyStr}
	}

	if dest == nil || len(body) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	return dec.Decode(dest)
}

func (c *Client) getJSON(ctx context.Context, rawURL string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	return c.do(req, dest)
}

func (c *Client) postForm(ctx context.Context, rawURL string, form url.Values, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, dest)
}

// redact strips the access token from a URL before it is logged.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	if q.Has("access_token") {
		q.Set("access_token", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
