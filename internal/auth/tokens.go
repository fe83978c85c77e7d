package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/arakabCL/TheNotch/internal/logger"
	"github.com/arakabCL/TheNotch/internal/secrets"
)

// Secret store keys for the persisted token record.
const (
	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"
	keyTokenExpiry  = "token_expiry"
	keyUserEmail    = "user_email"
)

// refreshLeeway is how long before expiry a token is refreshed proactively.
const refreshLeeway = 300 * time.Second

// TokenManager owns the stored token record. It is the sole writer of the
// token keys in the secret store; every other component reads through it.
type TokenManager struct {
	store        secrets.Store
	clientID     string
	clientSecret string

	// TokenURL is the OAuth token endpoint. Defaults to Google's;
	// overridable for tests.
	TokenURL string

	httpClient *http.Client

	// mu serializes refresh exchanges so two refreshes are never in flight
	// concurrently; a second caller blocks until the first completes.
	mu  sync.Mutex
	now func() time.Time
}

// NewTokenManager creates a token manager backed by the given secret store.
func NewTokenManager(store secrets.Store, clientID, clientSecret string) *TokenManager {
	return &TokenManager{
		store:        store,
		clientID:     clientID,
		clientSecret: clientSecret,
		TokenURL:     google.Endpoint.TokenURL,
		httpClient:   &http.Client{},
		now:          time.Now,
	}
}

// IsSignedIn reports whether a token record is present.
func (m *TokenManager) IsSignedIn() bool {
	_, ok := m.store.Get(keyAccessToken)
	return ok
}

// UserEmail returns the signed-in account's email, if known.
func (m *TokenManager) UserEmail() string {
	email, _ := m.store.Get(keyUserEmail)
	return email
}

// StoreToken persists a freshly exchanged token record.
func (m *TokenManager) StoreToken(tok *oauth2.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Put(keyAccessToken, tok.AccessToken); err != nil {
		return fmt.Errorf("failed to store access token: %w", err)
	}
	if tok.RefreshToken != "" {
		if err := m.store.Put(keyRefreshToken, tok.RefreshToken); err != nil {
			return fmt.Errorf("failed to store refresh token: %w", err)
		}
	}
	if err := m.store.Put(keyTokenExpiry, tok.Expiry.Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to store token expiry: %w", err)
	}
	return nil
}

// StoreUserEmail persists the account email fetched after sign-in.
func (m *TokenManager) StoreUserEmail(email string) error {
	return m.store.Put(keyUserEmail, email)
}

// GetValidAccessToken returns an access token with at least refreshLeeway of
// validity remaining, refreshing first when necessary. Concurrent callers
// during a refresh wait for it rather than issuing a second exchange.
func (m *TokenManager) GetValidAccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	access, ok := m.store.Get(keyAccessToken)
	if !ok || access == "" {
		return "", ErrNotSignedIn
	}

	if expiryStr, ok := m.store.Get(keyTokenExpiry); ok {
		if expiry, err := time.Parse(time.RFC3339, expiryStr); err == nil {
			if expiry.Sub(m.now()) > refreshLeeway {
				return access, nil
			}
		}
	}

	if err := m.refreshLocked(ctx); err != nil {
		return "", err
	}

	access, ok = m.store.Get(keyAccessToken)
	if !ok {
		return "", ErrNotSignedIn
	}
	return access, nil
}

// ForceRefresh performs a refresh exchange regardless of remaining validity.
// Used after the calendar API rejects a token with 401.
func (m *TokenManager) ForceRefresh(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.store.Get(keyAccessToken); !ok {
		return ErrNotSignedIn
	}
	return m.refreshLocked(ctx)
}

// refreshLocked runs one refresh-token exchange. Caller holds m.mu.
//
// Transport-level failures preserve the stored tokens; a definitive non-2xx
// response clears them.
func (m *TokenManager) refreshLocked(ctx context.Context) error {
	refresh, ok := m.store.Get(keyRefreshToken)
	if !ok || refresh == "" {
		m.clearLocked()
		return ErrNoRefreshToken
	}

	params := url.Values{
		"client_id":     {m.clientID},
		"client_secret": {m.clientSecret},
		"refresh_token": {refresh},
		"grant_type":    {"refresh_token"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.TokenURL, strings.NewReader(params.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTokenRefreshFailed, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Warn("failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		logger.Warn("token refresh rejected, clearing stored tokens",
			"status", resp.StatusCode, "error", errResp.Error)

		m.clearLocked()
		if errResp.Error != "" {
			return fmt.Errorf("%w: %s - %s", ErrTokenRefreshFailed, errResp.Error, errResp.ErrorDescription)
		}
		return fmt.Errorf("%w: status %d", ErrTokenRefreshFailed, resp.StatusCode)
	}

	var tokenResp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
		TokenType    string `json:"token_type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", ErrTokenRefreshFailed, err)
	}
	if tokenResp.AccessToken == "" || tokenResp.ExpiresIn <= 0 {
		return fmt.Errorf("%w: missing required fields in response", ErrTokenRefreshFailed)
	}

	if err := m.store.Put(keyAccessToken, tokenResp.AccessToken); err != nil {
		return fmt.Errorf("failed to store refreshed access token: %w", err)
	}
	expiry := m.now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	if err := m.store.Put(keyTokenExpiry, expiry.Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to store refreshed token expiry: %w", err)
	}
	// Refresh token is preserved unless the provider issued a new one.
	if tokenResp.RefreshToken != "" {
		if err := m.store.Put(keyRefreshToken, tokenResp.RefreshToken); err != nil {
			return fmt.Errorf("failed to store rotated refresh token: %w", err)
		}
	}

	logger.Info("access token refreshed", "expiry", expiry.Format(time.RFC3339))
	return nil
}

// SignOut clears the persisted token record. Idempotent.
func (m *TokenManager) SignOut() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearLocked()
	return nil
}

func (m *TokenManager) clearLocked() {
	for _, key := range []string{keyAccessToken, keyRefreshToken, keyTokenExpiry, keyUserEmail} {
		if err := m.store.Delete(key); err != nil {
			logger.Warn("failed to delete stored secret", "key", key, "error", err)
		}
	}
}
