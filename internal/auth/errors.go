package auth

import "errors"

// Sentinel errors for the authentication subsystem. Callers match with
// errors.Is; wrapped variants carry the underlying cause.
var (
	ErrPKCEGeneration      = errors.New("pkce generation failed")
	ErrInvalidAuthURL      = errors.New("invalid authorization url")
	ErrServerNotStarted    = errors.New("callback server not started")
	ErrTokenExchangeFailed = errors.New("token exchange failed")
	ErrTokenRefreshFailed  = errors.New("token refresh failed")
	ErrNoRefreshToken      = errors.New("no refresh token available")
	ErrNotSignedIn         = errors.New("not signed in")
	ErrStateMismatch       = errors.New("authorization state mismatch")
	ErrCallbackTimeout     = errors.New("timed out waiting for authorization callback")
)
