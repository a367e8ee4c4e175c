package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"catalogstage/internal/catalog"

	"golang.org/x/sync/singleflight"
)

const (
	authURL = "https://accounts.spotify.com/api/token"

	// Tokens are valid for an hour; refresh a little early so an
	// in-flight request never carries a token that expires mid-call.
	expirySlack = 60 * time.Second
)

// TokenSource exchanges client credentials for a bearer token and
// caches it until expiry. Safe for concurrent use: readers take the
// cached token under a mutex, and callers that observe an expired
// token share a single in-flight exchange.
type TokenSource struct {
	clientID     string
	clientSecret string
	authURL      string
	httpClient   *http.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time

	group singleflight.Group
}

func NewTokenSource(clientID, clientSecret string) *TokenSource {
	return &TokenSource{
		clientID:     clientID,
		clientSecret: clientSecret,
		authURL:      authURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Token returns the cached access token, exchanging credentials first
// if no unexpired token is held. Exchange failures surface as
// *catalog.AuthError.
func (t *TokenSource) Token(ctx context.Context) (string, error) {
	t.mu.Lock()
	if t.token != "" && time.Now().Before(t.expiresAt) {
		tok := t.token
		t.mu.Unlock()
		return tok, nil
	}
	t.mu.Unlock()

	v, err, _ := t.group.Do("token", func() (any, error) {
		// A waiter that queued behind a finished refresh sees the
		// fresh token here and skips the exchange.
		t.mu.Lock()
		if t.token != "" && time.Now().Before(t.expiresAt) {
			tok := t.token
			t.mu.Unlock()
			return tok, nil
		}
		t.mu.Unlock()

		tok, expiresIn, err := t.exchange(ctx)
		if err != nil {
			return "", err
		}

		t.mu.Lock()
		t.token = tok
		t.expiresAt = time.Now().Add(time.Duration(expiresIn)*time.Second - expirySlack)
		t.mu.Unlock()
		return tok, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached token if it is still tok, so a rejected
// call cannot discard a token refreshed after it was issued.
func (t *TokenSource) Invalidate(tok string) {
	t.mu.Lock()
	if t.token == tok {
		t.token = ""
		t.expiresAt = time.Time{}
	}
	t.mu.Unlock()
}

func (t *TokenSource) exchange(ctx context.Context) (string, int, error) {
	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, &catalog.AuthError{Err: err}
	}
	req.SetBasicAuth(t.clientID, t.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", 0, &catalog.AuthError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", 0, &catalog.AuthError{
			Err: fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", 0, &catalog.AuthError{Err: err}
	}
	if payload.AccessToken == "" {
		return "", 0, &catalog.AuthError{Err: errors.New("token endpoint returned no access_token")}
	}
	return payload.AccessToken, payload.ExpiresIn, nil
}
