package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory under a single mutex. Used
// in development and tests; the redis store is the deployed adapter.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source, used by tests to drive expiry.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func cloneSession(s *Session) *Session {
	// Sessions round-trip through JSON in the redis adapter; cloning the
	// same way keeps the two adapters behaviorally identical.
	raw, err := json.Marshal(s)
	if err != nil {
		panic("session not serializable: " + err.Error())
	}
	var out Session
	if err := json.Unmarshal(raw, &out); err != nil {
		panic("session not deserializable: " + err.Error())
	}
	return &out
}

func (m *MemoryStore) Create(ctx context.Context, s *Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[s.ID]; ok {
		return ErrSessionExists
	}
	m.sessions[s.ID] = cloneSession(s)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}

	if s.Status == StatusPending && s.ExpiredAt(m.now()) {
		s.Status = StatusExpired
		return nil, ErrSessionExpired
	}
	if s.Status == StatusExpired {
		return nil, ErrSessionExpired
	}

	return cloneSession(s), nil
}

func (m *MemoryStore) Update(ctx context.Context, id string, fn Mutation) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}

	if current.Status == StatusPending && current.ExpiredAt(m.now()) {
		current.Status = StatusExpired
		return nil, ErrSessionExpired
	}
	if current.Status.Terminal() {
		if current.Status == StatusExpired {
			return nil, ErrSessionExpired
		}
		return nil, ErrSessionTerminal
	}

	candidate := cloneSession(current)
	if err := fn(candidate); err != nil {
		return nil, err
	}

	m.sessions[id] = candidate
	return cloneSession(candidate), nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// Sweep removes sessions whose expiry has passed. Advisory only; expiry is
// already enforced lazily on access.
func (m *MemoryStore) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for id, s := range m.sessions {
		if s.ExpiredAt(now) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}
