// Package api is the single seam between reconchain and the backend's
// JSON resource surface. Every response is decoded through the
// {ok, data, error} envelope here so consumers never guess at shapes.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hexlane/reconchain/pkg/schema"
)

// TokenRefresher is the single auth hook point the core depends on.
// Implemented by the embedding application's session layer.
type TokenRefresher interface {
	// Refresh attempts to renew the session credential. A nil return
	// means subsequent requests may be retried.
	Refresh(ctx context.Context) error
}

// Config configures a Client.
type Config struct {
	// BaseURL is the origin serving /tools/api, e.g. "https://host".
	BaseURL string
	// AuthHeader, when non-nil, returns the Authorization header value
	// attached to every request.
	AuthHeader func() string
	// HTTPClient overrides the default client (10s timeout).
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client issues JSON requests against the backend resource surface.
type Client struct {
	base       string
	authHeader func() string
	http       *http.Client
	logger     *slog.Logger
}

// NewClient creates a Client from the given Config.
func NewClient(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		base:       strings.TrimRight(cfg.BaseURL, "/"),
		authHeader: cfg.AuthHeader,
		http:       hc,
		logger:     logger,
	}
}

// BaseURL returns the configured origin.
func (c *Client) BaseURL() string { return c.base }

// NewRequest builds an *http.Request with auth and JSON headers applied.
// Exposed for the event-channel transport, which manages its own response
// lifetime and must not go through DoJSON.
func (c *Client) NewRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeTransport, "encode request body: %s", err).WithCause(err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeTransport, "build request: %s", err).WithCause(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.authHeader != nil {
		if v := c.authHeader(); v != "" {
			req.Header.Set("Authorization", v)
		}
	}
	return req, nil
}

// DoJSON performs a request and decodes the enveloped response into out
// (which may be nil when no payload is expected).
//
// Failure mapping: network errors and non-2xx statuses become
// TRANSPORT_ERROR (401 becomes AUTH_REQUIRED); ok:false becomes
// REMOTE_ERROR carrying the server-provided message.
func (c *Client) DoJSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	req, err := c.NewRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeTransport, "%s %s: %s", method, path, err).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return schema.NewError(schema.ErrCodeAuthRequired, "authentication required")
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeTransport, "read response: %s", err).WithCause(err)
	}

	env, envErr := decodeEnvelope(raw)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Prefer the enveloped message when the server sent one.
		if envErr == nil && env.Error != nil && env.Error.Message != "" {
			return schema.NewError(schema.ErrCodeRemote, env.Error.Message).
				WithDetails(map[string]any{"status": resp.StatusCode})
		}
		return schema.NewErrorf(schema.ErrCodeTransport, "%s %s: unexpected status %d", method, path, resp.StatusCode).
			WithDetails(map[string]any{"status": resp.StatusCode})
	}

	if envErr != nil {
		return envErr
	}

	if !env.OK {
		msg := "request failed"
		if env.Error != nil && env.Error.Message != "" {
			msg = env.Error.Message
		}
		return schema.NewError(schema.ErrCodeRemote, msg)
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return schema.NewErrorf(schema.ErrCodeTransport, "decode %s payload: %s", path, err).WithCause(err)
	}
	return nil
}

// Get is shorthand for DoJSON with GET and no body.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.DoJSON(ctx, http.MethodGet, path, query, nil, out)
}

// Post is shorthand for DoJSON with POST.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.DoJSON(ctx, http.MethodPost, path, nil, body, out)
}

// Put is shorthand for DoJSON with PUT.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.DoJSON(ctx, http.MethodPut, path, nil, body, out)
}

// Delete is shorthand for DoJSON with DELETE and no body.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.DoJSON(ctx, http.MethodDelete, path, nil, nil, nil)
}

const maxResponseBytes = 8 << 20
