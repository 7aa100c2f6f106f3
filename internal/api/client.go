package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rembon2016/cts-merchant-sub001/pkg/formenc"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// Error is a non-2xx answer from the backend. Message holds the backend's own
// message when it sent one.
type Error struct {
	Status  int
	Message string
	Errors  map[string][]string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("HTTP error! status: %d", e.Status)
}

// IsStatus reports whether err is a backend error with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// Envelope is the common response wrapper of the backend.
type Envelope struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Data    json.RawMessage     `json:"data"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client

	// UseMethodOverrideForMultipart sends PUT/PATCH multipart bodies as POST with
	// a _method field, since the backend does not parse multipart on PUT.
	UseMethodOverrideForMultipart bool
}

// Client talks to the merchant REST backend with the bearer token found in the context.
type Client struct {
	baseURL        *url.URL
	httpClient     *http.Client
	methodOverride bool
	logger         *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid backend base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid backend base url %q", cfg.BaseURL)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	return &Client{
		baseURL:        base,
		httpClient:     httpClient,
		methodOverride: cfg.UseMethodOverrideForMultipart,
		logger:         logger,
	}, nil
}

// HTTPClient exposes the underlying client so the fetch layer shares the transport.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// URL resolves a backend path with optional query parameters.
func (c *Client) URL(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = u.Path + "/" + strings.TrimPrefix(path, "/")
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// Headers returns the default headers for a request made on behalf of ctx.
func (c *Client) Headers(ctx context.Context) map[string]string {
	h := map[string]string{"Accept": "application/json"}
	if token := TokenFrom(ctx); token != "" {
		h["Authorization"] = "Bearer " + token
	}
	return h
}

// NewRequest encodes body as JSON, or as multipart when it contains a formenc.File.
func (c *Client) NewRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	var (
		reader      io.Reader
		contentType string
	)

	if body != nil {
		var extra []formenc.Field
		override := c.methodOverride && (method == http.MethodPut || method == http.MethodPatch)
		if override {
			extra = append(extra, formenc.Field{Key: "_method", Value: method})
		}
		encoded, err := formenc.Encode(body, extra...)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		if encoded.Multipart && override {
			method = http.MethodPost
		}
		reader = encoded.Reader
		contentType = encoded.ContentType
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL(path, query), reader)
	if err != nil {
		return nil, err
	}
	for k, v := range c.Headers(ctx) {
		req.Header.Set(k, v)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

// Do sends req and decodes the envelope's data field into out (when non-nil).
func (c *Client) Do(req *http.Request, out any) (*Envelope, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var env Envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode < 300 {
			return nil, fmt.Errorf("decode %s %s: %w", req.Method, req.URL.Path, err)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("backend request failed",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Int("status", resp.StatusCode),
			zap.String("message", env.Message),
		)
		return &env, &Error{Status: resp.StatusCode, Message: env.Message, Errors: env.Errors}
	}

	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return &env, fmt.Errorf("decode %s %s data: %w", req.Method, req.URL.Path, err)
		}
	}
	return &env, nil
}

// Send builds and performs a request in one step.
func (c *Client) Send(ctx context.Context, method, path string, body, out any) (*Envelope, error) {
	req, err := c.NewRequest(ctx, method, path, nil, body)
	if err != nil {
		return nil, err
	}
	return c.Do(req, out)
}

func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) (*Envelope, error) {
	req, err := c.NewRequest(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any) (*Envelope, error) {
	return c.Send(ctx, http.MethodPost, path, body, out)
}

func (c *Client) Put(ctx context.Context, path string, body, out any) (*Envelope, error) {
	return c.Send(ctx, http.MethodPut, path, body, out)
}

func (c *Client) Delete(ctx context.Context, path string, out any) (*Envelope, error) {
	return c.Send(ctx, http.MethodDelete, path, nil, out)
}
