package token

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"stepup-auth/internal/config"
	"stepup-auth/internal/util"
)

const (
	AudienceAccess  = "auth:access"
	AudienceRefresh = "auth:refresh"
)

var (
	// ErrSigningKeyUnavailable aborts the whole operation; a verified OTP
	// without a token is a failed flow, never a partial success.
	ErrSigningKeyUnavailable = errors.New("signing key unavailable")
	ErrInvalidToken          = errors.New("invalid token")
)

// Pair is the terminal product of a successful flow: a short-lived access
// token and a long-lived refresh token, both bound to the subject.
type Pair struct {
	AccessToken   string    `json:"access_token"`
	RefreshToken  string    `json:"refresh_token"`
	AccessExpiry  time.Time `json:"access_expiry"`
	RefreshExpiry time.Time `json:"refresh_expiry"`
}

// Claims for both token audiences.
type Claims struct {
	jwt.RegisteredClaims
	Scopes []string `json:"scopes,omitempty"`
}

// Issuer mints ES256-signed token pairs.
type Issuer struct {
	signKey *ecdsa.PrivateKey
	issuer  string
	access  time.Duration
	refresh time.Duration
}

// NewIssuer loads the signing key from the configured PEM path. Without a
// path it generates an ephemeral P-256 key, which is refused in production.
func NewIssuer(cfg *config.Config) (*Issuer, error) {
	var key *ecdsa.PrivateKey

	if path := cfg.JWT.PrivateKeyPath; path != "" {
		loaded, err := loadPrivateKey(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSigningKeyUnavailable, err)
		}
		key = loaded
		util.Info("JWT signing key loaded", zap.String("path", path))
	} else {
		if cfg.IsProduction() {
			return nil, fmt.Errorf("%w: no signing key configured", ErrSigningKeyUnavailable)
		}
		generated, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSigningKeyUnavailable, err)
		}
		key = generated
		util.Warn("Using ephemeral JWT signing key - tokens will not survive a restart")
	}

	return &Issuer{
		signKey: key,
		issuer:  cfg.JWT.Issuer,
		access:  cfg.JWT.AccessTTL,
		refresh: cfg.JWT.RefreshTTL,
	}, nil
}

func loadPrivateKey(path string) (*ecdsa.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, errors.New("no PEM block in key file")
	}

	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	ecKey, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, errors.New("signing key is not an ECDSA key")
	}
	return ecKey, nil
}

// Issue mints an access/refresh pair for a verified subject.
func (i *Issuer) Issue(subjectID string, scopes []string) (*Pair, error) {
	now := time.Now().UTC()
	accessExpiry := now.Add(i.access)
	refreshExpiry := now.Add(i.refresh)

	accessToken, err := i.sign(Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   subjectID,
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(accessExpiry),
			Audience:  jwt.ClaimStrings{AudienceAccess},
		},
		Scopes: scopes,
	})
	if err != nil {
		return nil, err
	}

	refreshToken, err := i.sign(Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   subjectID,
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(refreshExpiry),
			Audience:  jwt.ClaimStrings{AudienceRefresh},
		},
	})
	if err != nil {
		return nil, err
	}

	return &Pair{
		AccessToken:   accessToken,
		RefreshToken:  refreshToken,
		AccessExpiry:  accessExpiry,
		RefreshExpiry: refreshExpiry,
	}, nil
}

func (i *Issuer) sign(claims Claims) (string, error) {
	if i.signKey == nil {
		return "", ErrSigningKeyUnavailable
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	signed, err := token.SignedString(i.signKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigningKeyUnavailable, err)
	}
	return signed, nil
}

// Parse validates a token against the expected audience and returns its
// claims.
func (i *Issuer) Parse(tokenStr, audience string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return &i.signKey.PublicKey, nil
	}, jwt.WithAudience(audience), jwt.WithIssuer(i.issuer))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
