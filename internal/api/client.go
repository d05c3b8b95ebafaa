// Package api wraps the BREATHE HTTP API: a thin client that attaches auth
// headers, serializes bodies, and normalizes failures, plus the auth and chat
// endpoint services built on top of it.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"breathechat/internal/storage"
)

// ErrNoToken is returned by authenticated entry points when no access token is
// available, before any network call is made.
var ErrNoToken = errors.New("no access token")

// HTTPError is a normalized non-2xx response. Message prefers the server's
// detail/message field and falls back to the HTTP status text.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	return e.Message
}

// errorBody is the shape servers use for failure payloads.
type errorBody struct {
	Detail  string `json:"detail"`
	Message string `json:"message"`
}

// Client performs requests against the API base URL. It is stateless between
// calls; tokens are threaded per request or read from the local store.
type Client struct {
	baseURL string
	http    *http.Client
	store   storage.Store
	logger  *slog.Logger
}

// NewClient builds a client for the given base URL. The store is consulted
// only by the DoAuthed entry point.
func NewClient(baseURL string, timeout time.Duration, store storage.Store, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		store:   store,
		logger:  logger,
	}
}

// Do performs a request. A url.Values body is sent form-encoded (the login
// endpoint takes credentials that way); any other non-nil body is serialized
// to JSON. A non-empty token becomes a bearer Authorization header. On a
// non-2xx status the response is converted to *HTTPError. On success the raw
// body bytes are returned.
func (c *Client) Do(ctx context.Context, method, path string, body any, token string) ([]byte, error) {
	data, _, err := c.do(ctx, method, path, body, token)
	return data, err
}

// do is Do plus the response content type, which DoJSON uses to decide whether
// the body is decodable.
func (c *Client) do(ctx context.Context, method, path string, body any, token string) ([]byte, string, error) {
	var reader io.Reader
	contentType := ""
	switch b := body.(type) {
	case nil:
	case url.Values:
		reader = strings.NewReader(b.Encode())
		contentType = "application/x-www-form-urlencoded"
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("API request failed", "method", method, "path", path, "status", resp.StatusCode)
		return nil, "", &HTTPError{Status: resp.StatusCode, Message: errorMessage(resp, data)}
	}

	return data, resp.Header.Get("Content-Type"), nil
}

// DoJSON performs a request and decodes a JSON response into out. A non-JSON
// success body is ignored (out is left untouched), matching call sites that
// only care about the status.
func (c *Client) DoJSON(ctx context.Context, method, path string, body any, token string, out any) error {
	data, contentType, err := c.do(ctx, method, path, body, token)
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if !strings.Contains(contentType, "application/json") {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// DoAuthed is the entry point for call sites that do not thread a token
// explicitly: it reads the stored access token itself and fails fast with
// ErrNoToken when none is present.
func (c *Client) DoAuthed(ctx context.Context, method, path string, body any, out any) error {
	token, ok, err := c.store.Get(storage.KeyAccessToken)
	if err != nil {
		return fmt.Errorf("failed to read stored token: %w", err)
	}
	if !ok || len(token) == 0 {
		return ErrNoToken
	}
	return c.DoJSON(ctx, method, path, body, string(token), out)
}

// errorMessage extracts a human-readable message from a failure response.
func errorMessage(resp *http.Response, data []byte) string {
	var eb errorBody
	if err := json.Unmarshal(data, &eb); err == nil {
		if eb.Detail != "" {
			return eb.Detail
		}
		if eb.Message != "" {
			return eb.Message
		}
	}
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return fmt.Sprintf("HTTP %d", resp.StatusCode)
}
