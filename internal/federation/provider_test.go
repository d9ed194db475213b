package federation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"stepup-auth/internal/config"
)

func newTestProvider(t *testing.T, handler http.Handler) *HTTPProvider {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewHTTPProvider(&config.Config{
		Federation: config.FederationConfig{
			TokenURL:     srv.URL + "/token",
			ProfileURL:   srv.URL + "/profile",
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			RedirectURL:  "https://app.example.com/callback",
		},
	})
}

func TestExchangeCode(t *testing.T) {
	provider := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/token" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm: %v", err)
		}
		if got := r.PostForm.Get("code"); got != "auth-code-1" {
			t.Errorf("code = %q, want auth-code-1", got)
		}
		if got := r.PostForm.Get("grant_type"); got != "authorization_code" {
			t.Errorf("grant_type = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]string{
			"access_token": "upstream-token",
			"token_type":   "bearer",
		})
	}))

	token, err := provider.ExchangeCode(context.Background(), "auth-code-1")
	if err != nil {
		t.Fatalf("ExchangeCode: %v", err)
	}
	if token != "upstream-token" {
		t.Errorf("token = %q, want upstream-token", token)
	}
}

func TestExchangeCodeRejected(t *testing.T) {
	provider := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))

	if _, err := provider.ExchangeCode(context.Background(), "bad-code"); !errors.Is(err, ErrExchangeRejected) {
		t.Errorf("expected ErrExchangeRejected, got %v", err)
	}
}

func TestExchangeCodeProviderDown(t *testing.T) {
	provider := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	if _, err := provider.ExchangeCode(context.Background(), "any"); !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestFetchProfile(t *testing.T) {
	provider := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer upstream-token" {
			t.Errorf("authorization = %q", got)
		}
		json.NewEncoder(w).Encode(Profile{
			Subject: "upstream-sub",
			Email:   "john.doe@example.com",
			Name:    "John Doe",
		})
	}))

	profile, err := provider.FetchProfile(context.Background(), "upstream-token")
	if err != nil {
		t.Fatalf("FetchProfile: %v", err)
	}
	if profile.Email != "john.doe@example.com" {
		t.Errorf("email = %q", profile.Email)
	}
}

func TestFetchProfileMissingEmail(t *testing.T) {
	provider := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Profile{Subject: "upstream-sub"})
	}))

	if _, err := provider.FetchProfile(context.Background(), "upstream-token"); !errors.Is(err, ErrProfileIncomplete) {
		t.Errorf("expected ErrProfileIncomplete, got %v", err)
	}
}
