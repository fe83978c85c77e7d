package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/browser"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/arakabCL/TheNotch/internal/logger"
)

// CalendarScopes are the OAuth scopes requested at sign-in.
var CalendarScopes = []string{
	"https://www.googleapis.com/auth/calendar",
	"https://www.googleapis.com/auth/userinfo.email",
}

const defaultUserinfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// Authenticator runs one complete interactive PKCE sign-in: it opens the
// authorization URL in the system browser, catches the redirect on a
// loopback callback server, and exchanges the code for tokens.
type Authenticator struct {
	tokens *TokenManager
	oauth  oauth2.Config

	callbackPort int
	callbackPath string
	waitTimeout  time.Duration

	// openURL hands the authorization URL to the external browser;
	// replaceable in tests.
	openURL     func(string) error
	userinfoURL string
	httpClient  *http.Client

	mu             sync.Mutex
	authenticating bool
}

// NewAuthenticator creates an authenticator for the given client credentials
// and loopback callback address.
func NewAuthenticator(tokens *TokenManager, clientID, clientSecret string, callbackPort int, callbackPath string) *Authenticator {
	return &Authenticator{
		tokens: tokens,
		oauth: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			RedirectURL:  fmt.Sprintf("http://127.0.0.1:%d%s", callbackPort, callbackPath),
			Scopes:       CalendarScopes,
		},
		callbackPort: callbackPort,
		callbackPath: callbackPath,
		waitTimeout:  DefaultCallbackTimeout,
		openURL:      browser.OpenURL,
		userinfoURL:  defaultUserinfoURL,
		httpClient:   &http.Client{},
	}
}

// IsAuthenticating reports whether a sign-in attempt is in flight.
func (a *Authenticator) IsAuthenticating() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.authenticating
}

// SignIn runs the full interactive authorization round trip. A call while
// another sign-in is in flight is a no-op. Every exit path stops the
// callback server and discards the transient session.
func (a *Authenticator) SignIn(ctx context.Context) error {
	a.mu.Lock()
	if a.authenticating {
		a.mu.Unlock()
		logger.Warn("sign-in already in progress, ignoring request")
		return nil
	}
	a.authenticating = true
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.authenticating = false
		a.mu.Unlock()
	}()

	if a.oauth.ClientID == "" {
		return fmt.Errorf("%w: missing client id", ErrInvalidAuthURL)
	}

	pkce, err := GeneratePKCE()
	if err != nil {
		return err
	}
	state := uuid.NewString()

	authURL := a.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.SetAuthURLParam("code_challenge", pkce.CodeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
	if _, err := url.Parse(authURL); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAuthURL, err)
	}

	srv := NewCallbackServer(a.callbackPort, a.callbackPath)
	if err := srv.Start(state); err != nil {
		return err
	}
	defer func() {
		if stopErr := srv.Stop(context.Background()); stopErr != nil {
			logger.Warn("failed to stop callback server", "error", stopErr)
		}
	}()

	if err := a.openURL(authURL); err != nil {
		logger.Warn("failed to open browser", "error", err)
		fmt.Printf("Open this URL in your browser to sign in:\n%s\n", authURL)
	}

	code, err := srv.WaitForCode(ctx, a.waitTimeout)
	if err != nil {
		return err
	}

	tok, err := a.oauth.Exchange(ctx, code,
		oauth2.SetAuthURLParam("code_verifier", pkce.CodeVerifier))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTokenExchangeFailed, err)
	}

	if err := a.tokens.StoreToken(tok); err != nil {
		return err
	}

	// Best effort; sign-in succeeds even if the profile fetch fails.
	if email, err := a.fetchUserEmail(ctx, tok.AccessToken); err != nil {
		logger.Warn("failed to fetch account email", "error", err)
	} else if err := a.tokens.StoreUserEmail(email); err != nil {
		logger.Warn("failed to store account email", "error", err)
	}

	logger.Info("sign-in complete", "email", a.tokens.UserEmail())
	return nil
}

func (a *Authenticator) fetchUserEmail(ctx context.Context, accessToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.userinfoURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("userinfo request failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Warn("failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("userinfo request failed with status %d", resp.StatusCode)
	}

	var info struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", fmt.Errorf("failed to decode userinfo response: %w", err)
	}
	return info.Email, nil
}
