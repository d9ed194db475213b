package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"stepup-auth/internal/channel"
	"stepup-auth/internal/client"
	"stepup-auth/internal/hashing"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testSession(t *testing.T, id string, now time.Time) *Session {
	t.Helper()

	return &Session{
		ID:        id,
		SubjectID: "subject-1",
		Status:    StatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(10 * time.Minute),
		Channels: []ChannelState{
			{
				Kind:              channel.KindEmail,
				CodeHash:          &hashing.Result{Hash: "h", Salt: "s", PepperVersion: 1, Algorithm: "argon2id-v1"},
				DeliveredAt:       now,
				ResendAvailableAt: now.Add(time.Minute),
			},
		},
	}
}

// storeFixture exercises both adapters through the same scenarios.
type storeFixture struct {
	name  string
	build func(t *testing.T) (Store, *clock, func())
}

func fixtures() []storeFixture {
	return []storeFixture{
		{
			name: "memory",
			build: func(t *testing.T) (Store, *clock, func()) {
				c := &clock{now: time.Now().UTC()}
				store := NewMemoryStore()
				store.SetClock(c.Now)
				return store, c, func() {}
			},
		},
		{
			name: "redis",
			build: func(t *testing.T) (Store, *clock, func()) {
				mr, err := miniredis.Run()
				if err != nil {
					t.Fatalf("miniredis run failed: %v", err)
				}
				rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				store := NewRedisStore(client.NewRedisClientFromUniversal(rdb), zap.NewNop())
				c := &clock{now: time.Now().UTC()}
				store.SetClock(c.Now)
				return store, c, func() {
					_ = rdb.Close()
					mr.Close()
				}
			},
		},
	}
}

func TestCreateAndGet(t *testing.T) {
	for _, fx := range fixtures() {
		t.Run(fx.name, func(t *testing.T) {
			store, c, done := fx.build(t)
			defer done()

			ctx := context.Background()
			s := testSession(t, "sess-1", c.Now())

			if err := store.Create(ctx, s); err != nil {
				t.Fatalf("Create failed: %v", err)
			}

			got, err := store.Get(ctx, "sess-1")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if got.SubjectID != "subject-1" || got.Status != StatusPending {
				t.Fatalf("unexpected session %+v", got)
			}
			if got.Channel(channel.KindEmail) == nil {
				t.Fatal("expected email channel state")
			}

			if err := store.Create(ctx, s); !errors.Is(err, ErrSessionExists) {
				t.Fatalf("expected ErrSessionExists, got %v", err)
			}
		})
	}
}

func TestGetUnknownSession(t *testing.T) {
	for _, fx := range fixtures() {
		t.Run(fx.name, func(t *testing.T) {
			store, _, done := fx.build(t)
			defer done()

			if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, ErrSessionNotFound) {
				t.Fatalf("expected ErrSessionNotFound, got %v", err)
			}
		})
	}
}

func TestLazyExpiry(t *testing.T) {
	for _, fx := range fixtures() {
		t.Run(fx.name, func(t *testing.T) {
			store, c, done := fx.build(t)
			defer done()

			ctx := context.Background()
			if err := store.Create(ctx, testSession(t, "sess-1", c.Now())); err != nil {
				t.Fatalf("Create failed: %v", err)
			}

			c.Advance(10*time.Minute + time.Second)

			if _, err := store.Get(ctx, "sess-1"); !errors.Is(err, ErrSessionExpired) {
				t.Fatalf("expected ErrSessionExpired, got %v", err)
			}

			_, err := store.Update(ctx, "sess-1", func(s *Session) error {
				s.Status = StatusVerified
				return nil
			})
			if !errors.Is(err, ErrSessionExpired) {
				t.Fatalf("expected ErrSessionExpired on update, got %v", err)
			}
		})
	}
}

func TestUpdateAppliesMutation(t *testing.T) {
	for _, fx := range fixtures() {
		t.Run(fx.name, func(t *testing.T) {
			store, c, done := fx.build(t)
			defer done()

			ctx := context.Background()
			if err := store.Create(ctx, testSession(t, "sess-1", c.Now())); err != nil {
				t.Fatalf("Create failed: %v", err)
			}

			updated, err := store.Update(ctx, "sess-1", func(s *Session) error {
				s.Channel(channel.KindEmail).CodeHash = &hashing.Result{Hash: "h2", Salt: "s2", PepperVersion: 1, Algorithm: "argon2id-v1"}
				return nil
			})
			if err != nil {
				t.Fatalf("Update failed: %v", err)
			}
			if updated.Channel(channel.KindEmail).CodeHash.Hash != "h2" {
				t.Fatal("mutation not applied")
			}

			got, _ := store.Get(ctx, "sess-1")
			if got.Channel(channel.KindEmail).CodeHash.Hash != "h2" {
				t.Fatal("mutation not persisted")
			}
		})
	}
}

func TestUpdateFailedMutationNotPersisted(t *testing.T) {
	for _, fx := range fixtures() {
		t.Run(fx.name, func(t *testing.T) {
			store, c, done := fx.build(t)
			defer done()

			ctx := context.Background()
			if err := store.Create(ctx, testSession(t, "sess-1", c.Now())); err != nil {
				t.Fatalf("Create failed: %v", err)
			}

			boom := errors.New("boom")
			_, err := store.Update(ctx, "sess-1", func(s *Session) error {
				s.Status = StatusVerified
				return boom
			})
			if !errors.Is(err, boom) {
				t.Fatalf("expected mutation error, got %v", err)
			}

			got, err := store.Get(ctx, "sess-1")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if got.Status != StatusPending {
				t.Fatal("failed mutation must not be persisted")
			}
		})
	}
}

func TestTerminalSessionRejectsMutation(t *testing.T) {
	for _, fx := range fixtures() {
		t.Run(fx.name, func(t *testing.T) {
			store, c, done := fx.build(t)
			defer done()

			ctx := context.Background()
			if err := store.Create(ctx, testSession(t, "sess-1", c.Now())); err != nil {
				t.Fatalf("Create failed: %v", err)
			}

			if _, err := store.Update(ctx, "sess-1", func(s *Session) error {
				s.Status = StatusVerified
				return nil
			}); err != nil {
				t.Fatalf("Update failed: %v", err)
			}

			_, err := store.Update(ctx, "sess-1", func(s *Session) error {
				s.Status = StatusLocked
				return nil
			})
			if !errors.Is(err, ErrSessionTerminal) {
				t.Fatalf("expected ErrSessionTerminal, got %v", err)
			}
		})
	}
}

func TestConcurrentTerminalTransitionOneWinner(t *testing.T) {
	for _, fx := range fixtures() {
		t.Run(fx.name, func(t *testing.T) {
			store, c, done := fx.build(t)
			defer done()

			ctx := context.Background()
			if err := store.Create(ctx, testSession(t, "sess-1", c.Now())); err != nil {
				t.Fatalf("Create failed: %v", err)
			}

			const writers = 8
			errs := make(chan error, writers)
			var wg sync.WaitGroup
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := store.Update(ctx, "sess-1", func(s *Session) error {
						s.Status = StatusVerified
						s.VerifiedVia = channel.KindEmail
						return nil
					})
					errs <- err
				}()
			}
			wg.Wait()
			close(errs)

			var wins, losses int
			for err := range errs {
				switch {
				case err == nil:
					wins++
				case errors.Is(err, ErrSessionTerminal):
					losses++
				default:
					t.Fatalf("unexpected error: %v", err)
				}
			}
			if wins != 1 {
				t.Fatalf("expected exactly one winner, got %d (losses %d)", wins, losses)
			}
		})
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	for _, fx := range fixtures() {
		t.Run(fx.name, func(t *testing.T) {
			store, c, done := fx.build(t)
			defer done()

			ctx := context.Background()
			if err := store.Create(ctx, testSession(t, "sess-1", c.Now())); err != nil {
				t.Fatalf("Create failed: %v", err)
			}

			if err := store.Delete(ctx, "sess-1"); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
			if err := store.Delete(ctx, "sess-1"); err != nil {
				t.Fatalf("second Delete failed: %v", err)
			}
			if _, err := store.Get(ctx, "sess-1"); !errors.Is(err, ErrSessionNotFound) {
				t.Fatalf("expected ErrSessionNotFound, got %v", err)
			}
		})
	}
}

func TestNewSessionIDEntropy(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := NewSessionID()
		if err != nil {
			t.Fatalf("NewSessionID failed: %v", err)
		}
		// 32 bytes base64url-encoded without padding.
		if len(id) != 43 {
			t.Fatalf("unexpected id length %d", len(id))
		}
		if seen[id] {
			t.Fatal("duplicate session id")
		}
		seen[id] = true
	}
}
