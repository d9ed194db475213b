package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps identities in process memory. Used in development and
// tests when scylla is disabled.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]*Identity
	byEmail map[string]uuid.UUID
	byPhone map[string]uuid.UUID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[uuid.UUID]*Identity),
		byEmail: make(map[string]uuid.UUID),
		byPhone: make(map[string]uuid.UUID),
	}
}

func (m *MemoryStore) Create(ctx context.Context, ident *Identity) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[ident.ID]; ok {
		return ErrIdentityExists
	}
	if ident.EmailHash != "" {
		if _, ok := m.byEmail[ident.EmailHash]; ok {
			return ErrIdentityExists
		}
	}
	if ident.PhoneHash != "" {
		if _, ok := m.byPhone[ident.PhoneHash]; ok {
			return ErrIdentityExists
		}
	}

	stored, err := cloneIdentity(ident)
	if err != nil {
		return err
	}

	m.byID[ident.ID] = stored
	if ident.EmailHash != "" {
		m.byEmail[ident.EmailHash] = ident.ID
	}
	if ident.PhoneHash != "" {
		m.byPhone[ident.PhoneHash] = ident.ID
	}
	return nil
}

func (m *MemoryStore) GetByID(ctx context.Context, id uuid.UUID) (*Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	ident, ok := m.byID[id]
	if !ok {
		return nil, ErrIdentityNotFound
	}
	return cloneIdentity(ident)
}

func (m *MemoryStore) FindByEmail(ctx context.Context, email string) (*Identity, error) {
	return m.findByHash(ctx, m.byEmail, LookupHash(email))
}

func (m *MemoryStore) FindByPhone(ctx context.Context, phone string) (*Identity, error) {
	return m.findByHash(ctx, m.byPhone, LookupHash(phone))
}

func (m *MemoryStore) findByHash(ctx context.Context, index map[string]uuid.UUID, hash string) (*Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := index[hash]
	if !ok {
		return nil, ErrIdentityNotFound
	}
	ident, ok := m.byID[id]
	if !ok {
		return nil, ErrIdentityNotFound
	}
	return cloneIdentity(ident)
}

func (m *MemoryStore) Activate(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ident, ok := m.byID[id]
	if !ok {
		return ErrIdentityNotFound
	}
	ident.Status = StatusActive
	ident.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) RecordLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ident, ok := m.byID[id]
	if !ok {
		return ErrIdentityNotFound
	}
	loginAt := at.UTC()
	ident.LastLoginAt = &loginAt
	ident.UpdatedAt = loginAt
	return nil
}

func cloneIdentity(ident *Identity) (*Identity, error) {
	raw, err := json.Marshal(ident)
	if err != nil {
		return nil, fmt.Errorf("failed to clone identity: %w", err)
	}
	clone := &Identity{}
	if err := json.Unmarshal(raw, clone); err != nil {
		return nil, fmt.Errorf("failed to clone identity: %w", err)
	}
	return clone, nil
}
