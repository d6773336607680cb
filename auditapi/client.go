// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package auditapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/bureau-foundation/auditdesk/lib/netutil"
)

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// BaseURL is the audit service root (e.g., "http://localhost:5000").
	BaseURL string

	// Jar holds the session cookie. If nil, a fresh in-memory jar is
	// created; the CLI seeds it from the session file with SetCookies.
	Jar http.CookieJar

	// Transport is the HTTP transport. If nil, http.DefaultTransport
	// is used.
	Transport http.RoundTripper

	// RequestTimeout bounds each API request. Zero means no bound
	// beyond the caller's context.
	RequestTimeout time.Duration

	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Client talks to the audit service's HTTP API. The session lives in
// the cookie jar, which the event stream shares through StreamHTTPClient.
type Client struct {
	baseURL    *url.URL
	base       string
	jar        http.CookieJar
	httpClient *http.Client
	stream     *http.Client
	logger     *slog.Logger
}

// NewClient creates a client for the service at config.BaseURL.
func NewClient(config ClientConfig) (*Client, error) {
	if config.BaseURL == "" {
		return nil, errors.New("auditapi: BaseURL is required")
	}
	parsed, err := url.Parse(strings.TrimRight(config.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("auditapi: invalid BaseURL %q: %w", config.BaseURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("auditapi: BaseURL %q must be http or https", config.BaseURL)
	}

	jar := config.Jar
	if jar == nil {
		jar, err = cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("auditapi: creating cookie jar: %w", err)
		}
	}

	transport := config.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL: parsed,
		base:    parsed.String(),
		jar:     jar,
		httpClient: &http.Client{
			Transport: transport,
			Jar:       jar,
			Timeout:   config.RequestTimeout,
			// An anonymous request to a protected route may be
			// redirected to the login page. The redirect itself is
			// the answer; following it would turn it into a 405.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		stream: &http.Client{Transport: transport, Jar: jar},
		logger: logger,
	}, nil
}

// BaseURL returns a copy of the service root.
func (c *Client) BaseURL() *url.URL {
	copied := *c.baseURL
	return &copied
}

// StreamHTTPClient returns an HTTP client sharing the session jar and
// transport but without the per-request timeout, for the long-lived
// WebSocket upgrade.
func (c *Client) StreamHTTPClient() *http.Client {
	return c.stream
}

// CloseIdleConnections drops pooled connections, forcing the next
// request onto a fresh one.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

// do sends one request and returns the body of a 2xx response. Other
// outcomes become errors: *APIError for 3xx and 4xx, *TransientError
// wrapping either the transport error or an *APIError for 5xx. When
// ctx itself ended, the context error is returned unwrapped by the
// transient type so callers do not retry it.
func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader) ([]byte, error) {
	request, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, fmt.Errorf("auditapi: creating request: %w", err)
	}
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}
	request.Header.Set("Accept", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("auditapi: %s %s: %w", method, path, ctx.Err())
		}
		return nil, &TransientError{Op: method + " " + path, Err: err}
	}
	defer response.Body.Close()

	responseBody, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return nil, &TransientError{Op: method + " " + path, Err: fmt.Errorf("reading response body: %w", err)}
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, nil
	}

	apiErr := &APIError{
		Method:     method,
		Path:       path,
		StatusCode: response.StatusCode,
		Message:    netutil.MessageFromBody(responseBody),
	}
	if response.StatusCode >= 300 && response.StatusCode < 400 {
		apiErr.StatusCode = http.StatusUnauthorized
		apiErr.Message = fmt.Sprintf("redirected to %s", response.Header.Get("Location"))
	}
	c.logger.Debug("audit service error response",
		"method", method,
		"path", path,
		"status", response.StatusCode,
		"message", apiErr.Message,
	)
	if response.StatusCode >= 500 {
		return nil, &TransientError{Op: method + " " + path, Err: apiErr}
	}
	return nil, apiErr
}
