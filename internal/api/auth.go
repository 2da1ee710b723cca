package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login exchanges a username and password for a bearer token.
// A 401 from this endpoint means bad credentials, not an expired
// session, so it maps to ErrInvalidCredentials rather than
// ErrUnauthorized.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	c.logger.Info("login", slog.String("username", username))

	body, err := json.Marshal(loginRequest{Username: username, Password: password})
	if err != nil {
		return "", fmt.Errorf("api: marshaling login request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/login", "application/json", bytes.NewReader(body), false)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrValidation) {
			return "", credentialError(err)
		}

		return "", err
	}
	defer resp.Body.Close()

	var lr loginResponse
	if decErr := json.NewDecoder(resp.Body).Decode(&lr); decErr != nil {
		return "", fmt.Errorf("api: decoding login response: %w", decErr)
	}

	if lr.Token == "" {
		return "", fmt.Errorf("api: login response missing token")
	}

	return lr.Token, nil
}

// Register creates a new account. The server's confirmation or
// validation message is returned for display.
func (c *Client) Register(ctx context.Context, username, email, password string) (string, error) {
	c.logger.Info("register", slog.String("username", username))

	body, err := json.Marshal(registerRequest{Username: username, Email: email, Password: password})
	if err != nil {
		return "", fmt.Errorf("api: marshaling register request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/register", "application/json", bytes.NewReader(body), false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var parsed struct {
		Message string `json:"message"`
	}
	if decErr := json.NewDecoder(resp.Body).Decode(&parsed); decErr != nil {
		// Some deployments return an empty 201 body.
		return "", nil //nolint:nilerr // empty confirmation is fine
	}

	return parsed.Message, nil
}

// credentialError rewraps a login rejection as ErrInvalidCredentials
// while preserving the server message.
func credentialError(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return &APIError{
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Message,
			Err:        ErrInvalidCredentials,
		}
	}

	return fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
}
