package strata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenManager handles bearer token acquisition and refresh.
// It is safe for concurrent use.
type tokenManager struct {
	baseURL   string
	workspace string
	apiKey    string
	client    *http.Client
	margin    time.Duration

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func newTokenManager(baseURL, workspace, apiKey string, client *http.Client) *tokenManager {
	return &tokenManager{
		baseURL:   baseURL,
		workspace: workspace,
		apiKey:    apiKey,
		client:    client,
		margin:    30 * time.Second,
	}
}

func (tm *tokenManager) getToken(ctx context.Context) (string, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.token != "" && time.Now().Before(tm.expiresAt.Add(-tm.margin)) {
		return tm.token, nil
	}

	if err := tm.refresh(ctx); err != nil {
		return "", err
	}
	return tm.token, nil
}

type authRequest struct {
	Workspace string `json:"workspace"`
	APIKey    string `json:"api_key"`
}

type authResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (tm *tokenManager) refresh(ctx context.Context) error {
	body, err := json.Marshal(authRequest{Workspace: tm.workspace, APIKey: tm.apiKey})
	if err != nil {
		return fmt.Errorf("strata: marshal auth request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tm.baseURL+"/auth/token", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("strata: create auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := tm.client.Do(req)
	if err != nil {
		return fmt.Errorf("strata: auth request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("strata: auth failed with status %d", resp.StatusCode)
	}

	var parsed authResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("strata: decode auth response: %w", err)
	}

	tm.token = parsed.AccessToken
	tm.expiresAt = tokenExpiry(parsed)
	return nil
}

// tokenExpiry prefers the exp claim carried by the token itself; the claim is
// read without signature verification since the client only schedules its own
// refresh with it. Falls back to expires_in, then to a conservative default.
func tokenExpiry(resp authResponse) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(resp.AccessToken, &claims); err == nil {
		if claims.ExpiresAt != nil {
			return claims.ExpiresAt.Time
		}
	}
	if resp.ExpiresIn > 0 {
		return time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	return time.Now().Add(5 * time.Minute)
}
