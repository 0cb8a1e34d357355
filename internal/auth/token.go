// Package auth mints and caches the machine-to-machine bearer token used
// for V5 API calls.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Config holds the Auth0 client-credentials settings.
type Config struct {
	URL          string
	Audience     string
	ClientID     string
	ClientSecret string
	// CacheTime bounds how long a minted token is reused.
	CacheTime time.Duration
}

// TokenSource is the single process-wide capability for obtaining a
// valid bearer token. The cached (token, deadline) pair is never exposed
// directly.
type TokenSource struct {
	cfg   Config
	httpc *http.Client
	now   func() time.Time

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// NewTokenSource creates a token source. A nil client falls back to a
// default with a bounded timeout.
func NewTokenSource(cfg Config, httpc *http.Client) *TokenSource {
	if httpc == nil {
		httpc = &http.Client{Timeout: 10 * time.Second}
	}
	return &TokenSource{cfg: cfg, httpc: httpc, now: time.Now}
}

// Token returns a valid bearer token, minting a fresh one when the
// cached token has expired. Concurrent callers may race to a duplicate
// fetch; the endpoint is idempotent so the last writer wins.
func (t *TokenSource) Token(ctx context.Context) (string, error) {
	t.mu.Lock()
	if t.token != "" && t.now().Before(t.expiry) {
		token := t.token
		t.mu.Unlock()
		return token, nil
	}
	t.mu.Unlock()

	token, err := t.fetch(ctx)
	if err != nil {
		return "", err
	}

	t.mu.Lock()
	t.token = token
	t.expiry = t.now().Add(t.cfg.CacheTime)
	t.mu.Unlock()

	return token, nil
}

func (t *TokenSource) fetch(ctx context.Context) (string, error) {
	body, err := json.Marshal(map[string]string{
		"grant_type":    "client_credentials",
		"client_id":     t.cfg.ClientID,
		"client_secret": t.cfg.ClientSecret,
		"audience":      t.cfg.Audience,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, payload)
	}

	var decoded struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if decoded.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned empty access_token")
	}

	return decoded.AccessToken, nil
}
