package federation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"stepup-auth/internal/config"
	"stepup-auth/internal/util"
)

var (
	// ErrExchangeRejected covers provider-side refusals: bad codes, revoked
	// grants, expired authorizations.
	ErrExchangeRejected = errors.New("federated code exchange rejected")
	// ErrProviderUnavailable covers transport failures and 5xx responses.
	ErrProviderUnavailable = errors.New("federated provider unavailable")
	ErrProfileIncomplete   = errors.New("federated profile missing email")
)

// Profile is the subset of the upstream profile the step-up flow needs. A
// federated login never bypasses verification, so email is mandatory.
type Profile struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
}

// Provider exchanges an authorization code for an upstream access token and
// resolves the profile behind it.
type Provider interface {
	ExchangeCode(ctx context.Context, code string) (string, error)
	FetchProfile(ctx context.Context, accessToken string) (*Profile, error)
}

// HTTPProvider talks to an OAuth2-style provider over plain HTTP endpoints
// configured at startup.
type HTTPProvider struct {
	cfg        config.FederationConfig
	httpClient *http.Client
}

func NewHTTPProvider(cfg *config.Config) *HTTPProvider {
	return &HTTPProvider{
		cfg: cfg.Federation,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (p *HTTPProvider) ExchangeCode(ctx context.Context, code string) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", p.cfg.ClientID)
	form.Set("client_secret", p.cfg.ClientSecret)
	form.Set("redirect_uri", p.cfg.RedirectURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		util.Warn("Federated token endpoint failed",
			zap.Int("status", resp.StatusCode))
		return "", fmt.Errorf("%w: token endpoint returned %d", ErrProviderUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return "", fmt.Errorf("%w: token endpoint returned %d", ErrExchangeRejected, resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: malformed token response: %v", ErrProviderUnavailable, err)
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrExchangeRejected)
	}

	return body.AccessToken, nil
}

func (p *HTTPProvider) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.ProfileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: profile endpoint returned %d", ErrProviderUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: profile endpoint returned %d", ErrExchangeRejected, resp.StatusCode)
	}

	profile := &Profile{}
	if err := json.NewDecoder(resp.Body).Decode(profile); err != nil {
		return nil, fmt.Errorf("%w: malformed profile response: %v", ErrProviderUnavailable, err)
	}
	if profile.Email == "" {
		return nil, ErrProfileIncomplete
	}

	return profile, nil
}
