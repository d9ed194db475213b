package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"stepup-auth/internal/client"
	"stepup-auth/internal/util"
)

const (
	sessionKeyPrefix = "vs:"

	// Expired documents are kept around briefly so lookups can distinguish
	// "expired" from "never existed" before redis reclaims the key.
	expiredRetention = time.Hour

	casMaxRetries = 5
)

// RedisStore persists sessions as JSON documents with optimistic
// WATCH-based mutations: of two concurrent writers one commits, the other
// retries and then observes the terminal state.
type RedisStore struct {
	redis  *client.RedisClient
	logger *zap.Logger
	now    func() time.Time
}

func NewRedisStore(redisClient *client.RedisClient, logger *zap.Logger) *RedisStore {
	return &RedisStore{
		redis:  redisClient,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source, used by tests to drive expiry.
func (r *RedisStore) SetClock(now func() time.Time) {
	r.now = now
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

func (r *RedisStore) keyTTL(s *Session) time.Duration {
	ttl := s.ExpiresAt.Sub(r.now()) + expiredRetention
	if ttl <= 0 {
		ttl = expiredRetention
	}
	return ttl
}

func (r *RedisStore) Create(ctx context.Context, s *Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	ok, err := r.redis.SetNX(ctx, sessionKey(s.ID), raw, r.keyTTL(s))
	if err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	if !ok {
		return ErrSessionExists
	}
	return nil
}

func decodeSession(raw string) (*Session, error) {
	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &s, nil
}

func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	raw, err := r.redis.Client.Get(ctx, sessionKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	s, err := decodeSession(raw)
	if err != nil {
		return nil, err
	}

	if s.Status == StatusPending && s.ExpiredAt(r.now()) {
		// Lazy expiry; losing this write is harmless since every reader
		// re-derives the same state.
		s.Status = StatusExpired
		if encoded, err := json.Marshal(s); err == nil {
			_ = r.redis.Set(ctx, sessionKey(id), encoded, expiredRetention)
		}
		return nil, ErrSessionExpired
	}
	if s.Status == StatusExpired {
		return nil, ErrSessionExpired
	}

	return s, nil
}

func (r *RedisStore) Update(ctx context.Context, id string, fn Mutation) (*Session, error) {
	key := sessionKey(id)

	var updated *Session

	txn := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrSessionNotFound
			}
			return fmt.Errorf("failed to load session: %w", err)
		}

		s, err := decodeSession(raw)
		if err != nil {
			return err
		}

		if s.Status == StatusPending && s.ExpiredAt(r.now()) {
			s.Status = StatusExpired
			encoded, encErr := json.Marshal(s)
			if encErr == nil {
				_, _ = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, key, encoded, expiredRetention)
					return nil
				})
			}
			return ErrSessionExpired
		}
		if s.Status.Terminal() {
			if s.Status == StatusExpired {
				return ErrSessionExpired
			}
			return ErrSessionTerminal
		}

		if err := fn(s); err != nil {
			return err
		}

		encoded, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("failed to encode session: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, r.keyTTL(s))
			return nil
		})
		if err != nil {
			return err
		}

		updated = s
		return nil
	}

	for attempt := 0; attempt < casMaxRetries; attempt++ {
		err := r.redis.Watch(ctx, txn, key)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			// Lost the race; reload and retry so the loser of a terminal
			// transition observes ErrSessionTerminal on the next pass.
			continue
		}
		return nil, err
	}

	return nil, fmt.Errorf("session update contention on %s", id)
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.redis.Del(ctx, sessionKey(id)); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// HealthCheck pings the underlying redis connection.
func (r *RedisStore) HealthCheck(ctx context.Context) error {
	if err := r.redis.HealthCheck(ctx); err != nil {
		util.Error("Session store health check failed", zap.Error(err))
		return err
	}
	return nil
}
