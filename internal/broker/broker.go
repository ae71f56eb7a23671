// Package broker exchanges a long-lived refresh token for a short-lived
// Graph access token. Every call performs one round trip to the token
// endpoint — the relay deliberately holds no token state between
// requests, trading latency for statelessness at its low request volume.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// DefaultTokenEndpoint is the Microsoft identity platform token endpoint
// for the common (multi-tenant + personal) authority.
const DefaultTokenEndpoint = "https://login.microsoftonline.com/common/oauth2/v2.0/token"

// graphScope is the delegated scope requested for every access token.
const graphScope = "https://graph.microsoft.com/Files.ReadWrite.All offline_access"

// ErrAuth is the sentinel for rejected credential exchanges.
// Use errors.Is(err, broker.ErrAuth) to check.
var ErrAuth = errors.New("broker: credential exchange rejected")

// AuthError carries the token endpoint's status and response body.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("broker: token endpoint returned HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *AuthError) Unwrap() error { return ErrAuth }

// Broker implements graph.TokenSource against an OAuth2 token endpoint
// using the refresh_token grant.
type Broker struct {
	endpoint     string
	clientID     string
	clientSecret string
	refreshToken string
	httpClient   *http.Client
	logger       *slog.Logger
}

// New creates a Broker. endpoint is typically DefaultTokenEndpoint.
func New(endpoint, clientID, clientSecret, refreshToken string, httpClient *http.Client, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Broker{
		endpoint:     endpoint,
		clientID:     clientID,
		clientSecret: clientSecret,
		refreshToken: refreshToken,
		httpClient:   httpClient,
		logger:       logger,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// Token fetches a fresh access token. Canceling ctx aborts the
// in-flight exchange. A non-2xx response from the token endpoint
// (expired or revoked refresh token, wrong client config) surfaces as
// an AuthError.
func (b *Broker) Token(ctx context.Context) (string, error) {
	form := url.Values{
		"client_id":     {b.clientID},
		"client_secret": {b.clientSecret},
		"refresh_token": {b.refreshToken},
		"grant_type":    {"refresh_token"},
		"scope":         {graphScope},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("broker: creating token request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("broker: token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body) //nolint:errcheck // best-effort read for error message
		b.logger.Error("token refresh failed",
			slog.Int("status", resp.StatusCode),
		)

		return "", &AuthError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	var tr tokenResponse
	if decErr := json.NewDecoder(resp.Body).Decode(&tr); decErr != nil {
		return "", fmt.Errorf("broker: decoding token response: %w", decErr)
	}

	if tr.AccessToken == "" {
		return "", fmt.Errorf("broker: token response missing access_token")
	}

	b.logger.Debug("access token obtained",
		slog.Int("expires_in", tr.ExpiresIn),
	)

	return tr.AccessToken, nil
}
