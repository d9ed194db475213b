package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"stepup-auth/internal/encryption"
	"stepup-auth/internal/hashing"
)

// Status of an identity. Registration creates a pending identity; the first
// successful verification activates it.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusActive  Status = "ACTIVE"
)

var (
	ErrIdentityNotFound = errors.New("identity not found")
	ErrIdentityExists   = errors.New("identity already exists")
	ErrStoreUnavailable = errors.New("identity store unavailable")
)

// Identity is a registered subject. Contact destinations are stored
// encrypted; lookups go through a keyed hash so raw values never become
// partition keys.
type Identity struct {
	ID             uuid.UUID                 `json:"id"`
	EmailHash      string                    `json:"email_hash"`
	EmailEncrypted *encryption.EncryptedData `json:"email_encrypted,omitempty"`
	PhoneHash      string                    `json:"phone_hash,omitempty"`
	PhoneEncrypted *encryption.EncryptedData `json:"phone_encrypted,omitempty"`
	PasswordHash   *hashing.Result           `json:"password_hash,omitempty"`
	Status         Status                    `json:"status"`
	Federated      bool                      `json:"federated"`
	CreatedAt      time.Time                 `json:"created_at"`
	UpdatedAt      time.Time                 `json:"updated_at"`
	LastLoginAt    *time.Time                `json:"last_login_at,omitempty"`
}

// Store persists identities and their lookup mappings.
type Store interface {
	Create(ctx context.Context, ident *Identity) error
	GetByID(ctx context.Context, id uuid.UUID) (*Identity, error)
	FindByEmail(ctx context.Context, email string) (*Identity, error)
	FindByPhone(ctx context.Context, phone string) (*Identity, error)
	Activate(ctx context.Context, id uuid.UUID) error
	RecordLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

// LookupHash derives the stable lookup key for a contact destination. Email
// addresses are case-folded first so lookups are case-insensitive.
func LookupHash(identifier string) string {
	normalized := identifier
	if strings.ContainsRune(identifier, '@') {
		normalized = strings.ToLower(strings.TrimSpace(identifier))
	}
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
