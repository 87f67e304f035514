// Package backend provides HTTP clients for the runtime's external
// collaborators: the credential service, the chat persistence service and the
// OCR service. Defensive dual-casing reads of backend payloads live here, at
// the boundary, so the rest of the codebase sees one shape.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lianxi-ai/tutorcore/llmclient"
)

// AuthClient talks to the credential service. It implements
// llmclient.TokenProvider.
type AuthClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewAuthClient creates a credential service client.
func NewAuthClient(baseURL string, timeout time.Duration) *AuthClient {
	return &AuthClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

var _ llmclient.TokenProvider = (*AuthClient)(nil)

// GetSession fetches the current bearer credential.
func (c *AuthClient) GetSession(ctx context.Context) (*llmclient.Credentials, error) {
	return c.fetch(ctx, http.MethodGet, "/v1/auth/session")
}

// RefreshSession forces issuance of a fresh credential.
func (c *AuthClient) RefreshSession(ctx context.Context) (*llmclient.Credentials, error) {
	return c.fetch(ctx, http.MethodPost, "/v1/auth/refresh")
}

func (c *AuthClient) fetch(ctx context.Context, method, path string) (*llmclient.Credentials, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach credential service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read credential response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("credential service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload credentialsPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode credentials: %w", err)
	}
	creds := payload.normalize()
	if creds.AccessToken == "" {
		return nil, fmt.Errorf("credential service returned no access token")
	}
	return creds, nil
}

// credentialsPayload accepts both naming conventions the service has shipped.
type credentialsPayload struct {
	AccessToken      string     `json:"access_token"`
	AccessTokenCamel string     `json:"accessToken"`
	ExpiresAt        *time.Time `json:"expires_at"`
	ExpiresAtCamel   *time.Time `json:"expiresAt"`
}

func (p credentialsPayload) normalize() *llmclient.Credentials {
	creds := &llmclient.Credentials{AccessToken: p.AccessToken}
	if creds.AccessToken == "" {
		creds.AccessToken = p.AccessTokenCamel
	}
	switch {
	case p.ExpiresAt != nil:
		creds.ExpiresAt = *p.ExpiresAt
	case p.ExpiresAtCamel != nil:
		creds.ExpiresAt = *p.ExpiresAtCamel
	}
	return creds
}
