package session

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"stepup-auth/internal/channel"
	"stepup-auth/internal/encryption"
	"stepup-auth/internal/hashing"
)

// Status is the verification session lifecycle state. Verified, Expired and
// Locked are terminal.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusVerified Status = "VERIFIED"
	StatusExpired  Status = "EXPIRED"
	StatusLocked   Status = "LOCKED"
)

func (s Status) Terminal() bool {
	return s == StatusVerified || s == StatusExpired || s == StatusLocked
}

// ChannelState tracks one delivery path within a session. Exactly one code
// hash is live per channel; issuing a new code replaces the previous one.
type ChannelState struct {
	Kind              channel.Kind              `json:"kind"`
	Destination       *encryption.EncryptedData `json:"destination"`
	CodeHash          *hashing.Result           `json:"code_hash"`
	DeliveredAt       time.Time                 `json:"delivered_at"`
	ConsumedAt        *time.Time                `json:"consumed_at,omitempty"`
	ResendAvailableAt time.Time                 `json:"resend_available_at"`
}

// Session is a step-up verification session. The subject may verify via any
// one of its channels; the first successful channel wins the terminal
// transition and voids the rest.
type Session struct {
	ID          string         `json:"id"`
	SubjectID   string         `json:"subject_id"`
	Channels    []ChannelState `json:"channels"`
	Status      Status         `json:"status"`
	VerifiedVia channel.Kind   `json:"verified_via,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	ExpiresAt   time.Time      `json:"expires_at"`
}

// Channel returns the state for a kind, or nil if the session has no such
// channel.
func (s *Session) Channel(kind channel.Kind) *ChannelState {
	for i := range s.Channels {
		if s.Channels[i].Kind == kind {
			return &s.Channels[i]
		}
	}
	return nil
}

// ChannelKinds lists the kinds available on this session, in order.
func (s *Session) ChannelKinds() []channel.Kind {
	kinds := make([]channel.Kind, 0, len(s.Channels))
	for i := range s.Channels {
		kinds = append(kinds, s.Channels[i].Kind)
	}
	return kinds
}

// ExpiredAt reports whether the session has passively expired at the given
// instant. ExpiresAt is fixed at creation and never extended by resend.
func (s *Session) ExpiredAt(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

const sessionIDBytes = 32 // 256 bits of entropy

// NewSessionID produces an opaque unguessable session identifier.
func NewSessionID() (string, error) {
	raw := make([]byte, sessionIDBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
