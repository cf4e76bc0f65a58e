package tokenstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"clipbot/internal/models"
)

func newTestStore(t *testing.T, tokenURL string) *Store {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg := oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		Endpoint:     oauth2.Endpoint{TokenURL: tokenURL},
	}
	s, err := New("test-passphrase", cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t, "http://unused.invalid")
	bundle := models.TokenBundle{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(time.Hour),
		UserID:       "123",
	}
	if err := s.Save(bundle); err != nil {
		t.Fatalf("Save: %v", err)
	}

	s.cached = nil // force re-read from disk
	got, err := s.load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got == nil || got.AccessToken != bundle.AccessToken {
		t.Fatalf("got %+v, want %+v", got, bundle)
	}
}

func TestHasValidTokensNoFile(t *testing.T) {
	s := newTestStore(t, "http://unused.invalid")
	ok, err := s.HasValidTokens(context.Background())
	if err != nil {
		t.Fatalf("HasValidTokens: %v", err)
	}
	if ok {
		t.Fatal("expected no valid tokens before any Save")
	}
}

func TestGetRefreshesExpiredToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "refreshed-access",
			"refresh_token": "refreshed-refresh",
			"expires_in":    3600,
			"token_type":    "bearer",
		})
	}))
	defer srv.Close()

	s := newTestStore(t, srv.URL)
	expired := models.TokenBundle{
		AccessToken:  "stale",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(-time.Hour),
		UserID:       "123",
	}
	if err := s.Save(expired); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.AccessToken != "refreshed-access" {
		t.Fatalf("got access token %q, want refreshed-access", got.AccessToken)
	}
}
