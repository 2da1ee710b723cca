package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

const userAgent = "vidqueue-go/0.1"

// maxErrorBody caps how much of an error response body is read for the
// user-facing message.
const maxErrorBody = 64 * 1024

// TokenSource provides bearer tokens for authenticated calls. Defined
// at the consumer per Go convention "accept interfaces, return structs".
// The session package provides the real implementation.
type TokenSource interface {
	Token() (string, error)
}

// Client is an HTTP client for the vidqueue processing service.
// It handles request construction, bearer authentication, and error
// classification. It deliberately does not retry: unauthorized is a
// session invalidation, validation failures are user errors, and
// connection failures are surfaced for the user to re-trigger.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      TokenSource
	logger     *slog.Logger
}

// NewClient creates a service client. baseURL is the server root,
// e.g. "https://vidqueue.example.com". token may be nil for clients
// that only call the unauthenticated endpoints (login, register).
func NewClient(baseURL string, httpClient *http.Client, token TokenSource, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		token:      token,
		logger:     logger,
	}
}

// do executes a request against the service. When authenticated is set,
// a bearer token is attached; a missing token surfaces as
// ErrUnauthorized before any network attempt.
// The caller is responsible for closing the response body on success.
func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, authenticated bool) (*http.Response, error) {
	url := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("api: creating request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	if authenticated {
		tok, tokErr := c.token.Token()
		if tokErr != nil {
			return nil, fmt.Errorf("api: obtaining token: %w", tokErr)
		}

		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Context cancellation is not a connection failure.
		if ctx.Err() != nil {
			return nil, fmt.Errorf("api: request canceled: %w", ctx.Err())
		}

		c.logger.Error("request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)

		return nil, fmt.Errorf("%w: %s %s: %v", ErrConnection, method, path, err)
	}

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		c.logger.Debug("request succeeded",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
		)

		return resp, nil
	}

	return nil, c.errorFromResponse(method, path, resp)
}

// errorFromResponse reads and closes an error response body and builds
// the classified APIError. The service reports errors as
// {"message": "..."}; a bare body is used as-is.
func (c *Client) errorFromResponse(method, path string, resp *http.Response) error {
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if readErr != nil {
		raw = nil
	}

	message := serverMessage(raw)

	c.logger.Warn("request failed",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
	)

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Err:        classifyStatus(resp.StatusCode),
	}
}

// serverMessage extracts the "message" field from a JSON error body,
// falling back to the trimmed raw body.
func serverMessage(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}

	var parsed struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Message != "" {
		return parsed.Message
	}

	return string(raw)
}
