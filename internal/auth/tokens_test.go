package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arakabCL/TheNotch/internal/secrets"
)

func seedTokens(t *testing.T, store secrets.Store, access, refresh string, expiry time.Time) {
	t.Helper()
	if err := store.Put(keyAccessToken, access); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(keyRefreshToken, refresh); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(keyTokenExpiry, expiry.Format(time.RFC3339)); err != nil {
		t.Fatal(err)
	}
}

func TestGetValidAccessToken_FreshTokenSkipsRefresh(t *testing.T) {
	var refreshCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
	}))
	defer srv.Close()

	store := secrets.NewMemoryStore()
	seedTokens(t, store, "fresh-token", "refresh", time.Now().Add(301*time.Second))

	m := NewTokenManager(store, "cid", "secret")
	m.TokenURL = srv.URL

	token, err := m.GetValidAccessToken(context.Background())
	if err != nil {
		t.Fatalf("GetValidAccessToken() error = %v", err)
	}
	if token != "fresh-token" {
		t.Errorf("token = %q, want %q", token, "fresh-token")
	}
	if n := refreshCalls.Load(); n != 0 {
		t.Errorf("refresh calls = %d, want 0", n)
	}
}

func TestGetValidAccessToken_NearExpiryRefreshesOnce(t *testing.T) {
	var refreshCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("failed to parse form: %v", err)
		}
		if got := r.Form.Get("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q, want refresh_token", got)
		}
		if got := r.Form.Get("refresh_token"); got != "refresh" {
			t.Errorf("refresh_token = %q, want refresh", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "rotated-access",
			"expires_in":   3600,
			"token_type":   "Bearer",
		})
	}))
	defer srv.Close()

	store := secrets.NewMemoryStore()
	seedTokens(t, store, "stale-token", "refresh", time.Now().Add(100*time.Second))

	m := NewTokenManager(store, "cid", "secret")
	m.TokenURL = srv.URL

	token, err := m.GetValidAccessToken(context.Background())
	if err != nil {
		t.Fatalf("GetValidAccessToken() error = %v", err)
	}
	if token != "rotated-access" {
		t.Errorf("token = %q, want %q", token, "rotated-access")
	}
	if n := refreshCalls.Load(); n != 1 {
		t.Errorf("refresh calls = %d, want 1", n)
	}

	// Refresh token preserved when the response does not rotate it.
	if refresh, _ := store.Get(keyRefreshToken); refresh != "refresh" {
		t.Errorf("stored refresh token = %q, want preserved %q", refresh, "refresh")
	}
}

func TestGetValidAccessToken_NotSignedIn(t *testing.T) {
	m := NewTokenManager(secrets.NewMemoryStore(), "cid", "secret")

	if _, err := m.GetValidAccessToken(context.Background()); !errors.Is(err, ErrNotSignedIn) {
		t.Errorf("GetValidAccessToken() error = %v, want ErrNotSignedIn", err)
	}
}

func TestRefresh_RejectedResponseClearsTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":             "invalid_grant",
			"error_description": "Token has been revoked.",
		})
	}))
	defer srv.Close()

	store := secrets.NewMemoryStore()
	seedTokens(t, store, "stale-token", "revoked-refresh", time.Now().Add(10*time.Second))

	m := NewTokenManager(store, "cid", "secret")
	m.TokenURL = srv.URL

	if _, err := m.GetValidAccessToken(context.Background()); !errors.Is(err, ErrTokenRefreshFailed) {
		t.Fatalf("GetValidAccessToken() error = %v, want ErrTokenRefreshFailed", err)
	}

	// Definitive rejection forces a future NotSignedIn.
	if _, err := m.GetValidAccessToken(context.Background()); !errors.Is(err, ErrNotSignedIn) {
		t.Errorf("after rejected refresh, error = %v, want ErrNotSignedIn", err)
	}
}

func TestRefresh_TransportFailurePreservesTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	store := secrets.NewMemoryStore()
	seedTokens(t, store, "stale-token", "refresh", time.Now().Add(10*time.Second))

	m := NewTokenManager(store, "cid", "secret")
	m.TokenURL = srv.URL

	if _, err := m.GetValidAccessToken(context.Background()); !errors.Is(err, ErrTokenRefreshFailed) {
		t.Fatalf("GetValidAccessToken() error = %v, want ErrTokenRefreshFailed", err)
	}

	// Transient connectivity loss must not sign the user out.
	if access, ok := store.Get(keyAccessToken); !ok || access != "stale-token" {
		t.Errorf("access token = %q (present=%v), want preserved", access, ok)
	}
	if refresh, ok := store.Get(keyRefreshToken); !ok || refresh != "refresh" {
		t.Errorf("refresh token = %q (present=%v), want preserved", refresh, ok)
	}
}

func TestRefresh_NoRefreshToken(t *testing.T) {
	store := secrets.NewMemoryStore()
	if err := store.Put(keyAccessToken, "access"); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(keyTokenExpiry, time.Now().Add(10*time.Second).Format(time.RFC3339)); err != nil {
		t.Fatal(err)
	}

	m := NewTokenManager(store, "cid", "secret")

	if _, err := m.GetValidAccessToken(context.Background()); !errors.Is(err, ErrNoRefreshToken) {
		t.Errorf("GetValidAccessToken() error = %v, want ErrNoRefreshToken", err)
	}
}

func TestSignOut_Idempotent(t *testing.T) {
	store := secrets.NewMemoryStore()
	seedTokens(t, store, "access", "refresh", time.Now().Add(time.Hour))
	if err := store.Put(keyUserEmail, "user@example.com"); err != nil {
		t.Fatal(err)
	}

	m := NewTokenManager(store, "cid", "secret")

	if err := m.SignOut(); err != nil {
		t.Fatalf("first SignOut() error = %v", err)
	}
	if err := m.SignOut(); err != nil {
		t.Fatalf("second SignOut() error = %v", err)
	}

	for _, key := range []string{keyAccessToken, keyRefreshToken, keyTokenExpiry, keyUserEmail} {
		if v, ok := store.Get(key); ok {
			t.Errorf("key %q still present after sign-out: %q", key, v)
		}
	}
	if m.IsSignedIn() {
		t.Error("IsSignedIn() = true after sign-out")
	}
}
