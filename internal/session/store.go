package session

import (
	"context"
	"errors"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	// ErrSessionTerminal is returned when a mutation targets a session that
	// already reached a terminal state. A caller losing a concurrent verify
	// race observes exactly this error.
	ErrSessionTerminal = errors.New("session already terminal")
	ErrSessionExists   = errors.New("session already exists")
)

// Mutation is applied to a copy of the session under the store's
// per-session exclusion discipline; the store persists only when it returns
// nil, so an abandoned call never partially applies a transition.
type Mutation func(*Session) error

// Store owns verification session lifecycle. Implementations enforce the
// single-terminal-transition invariant: once a session is terminal no
// further mutation is persisted. Expiry is evaluated lazily on access; a
// passively expired session is flipped to EXPIRED and reported as such.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Update(ctx context.Context, id string, fn Mutation) (*Session, error)
	Delete(ctx context.Context, id string) error
}
