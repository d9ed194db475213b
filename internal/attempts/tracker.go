package attempts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"stepup-auth/internal/client"
	"stepup-auth/internal/util"
)

const (
	otpAttemptPrefix = "vs_attempts:"
	otpLockPrefix    = "vs_lock:"
	loginFailPrefix  = "login_fail:"
	loginLockPrefix  = "login_lock:"
)

// ErrTrackerUnavailable indicates the counting backend is unreachable.
var ErrTrackerUnavailable = errors.New("attempt tracker backend unavailable")

// Config carries the lockout policy. OTP attempts are counted per session;
// login failures per identity, in a rolling window. The two are keyed
// independently so a guessed session cannot lock an account's login path
// and a credential-stuffing run cannot be mistaken for OTP typos.
type Config struct {
	MaxOTPAttempts  int
	OTPAttemptTTL   time.Duration
	LoginThreshold  int
	LoginWindow     time.Duration
	LockoutDuration time.Duration
}

type Tracker struct {
	redis  *client.RedisClient
	config Config
	logger *zap.Logger
}

func NewTracker(redisClient *client.RedisClient, cfg Config, logger *zap.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		config: cfg,
		logger: logger,
	}
}

// identityKey hashes the login identifier so raw emails/phones never appear
// as redis keys.
func identityKey(identifier string) string {
	sum := sha256.Sum256([]byte(identifier))
	return hex.EncodeToString(sum[:])
}

// RecordOTPFailure increments the per-session failure counter. Returns true
// once the count reaches the maximum; the caller must then transition the
// session to its locked state.
func (t *Tracker) RecordOTPFailure(ctx context.Context, sessionID string) (bool, error) {
	key := otpAttemptPrefix + sessionID

	count, err := t.redis.IncrWithExpire(ctx, key, t.config.OTPAttemptTTL)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrTrackerUnavailable, err)
	}

	blocked := count >= int64(t.config.MaxOTPAttempts)
	if blocked {
		if _, err := t.redis.SetNX(ctx, otpLockPrefix+sessionID, "locked", t.config.OTPAttemptTTL); err != nil {
			return true, fmt.Errorf("%w: %v", ErrTrackerUnavailable, err)
		}
		t.logger.Warn("OTP attempt limit reached",
			util.String("session_id", sessionID),
			util.Int64("failed_count", count),
		)
	}

	return blocked, nil
}

// IsOTPBlocked reports whether the session has exhausted its attempts.
func (t *Tracker) IsOTPBlocked(ctx context.Context, sessionID string) (bool, error) {
	exists, err := t.redis.Exists(ctx, otpLockPrefix+sessionID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrTrackerUnavailable, err)
	}
	return exists, nil
}

// OTPFailureCount returns the current per-session failure count.
func (t *Tracker) OTPFailureCount(ctx context.Context, sessionID string) (int, error) {
	val, err := t.redis.Client.Get(ctx, otpAttemptPrefix+sessionID).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrTrackerUnavailable, err)
	}
	return int(val), nil
}

// ResetOTP clears session counters after a successful verification.
func (t *Tracker) ResetOTP(ctx context.Context, sessionID string) error {
	if err := t.redis.Del(ctx, otpAttemptPrefix+sessionID, otpLockPrefix+sessionID); err != nil {
		return fmt.Errorf("%w: %v", ErrTrackerUnavailable, err)
	}
	return nil
}

// RecordLoginFailure increments the identity's rolling-window counter and
// locks the identity once the threshold is crossed.
func (t *Tracker) RecordLoginFailure(ctx context.Context, identifier string) error {
	key := loginFailPrefix + identityKey(identifier)

	count, err := t.redis.IncrWindowed(ctx, key, t.config.LoginWindow)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTrackerUnavailable, err)
	}

	if count >= int64(t.config.LoginThreshold) {
		lockKey := loginLockPrefix + identityKey(identifier)
		if err := t.redis.Set(ctx, lockKey, time.Now().UTC().Format(time.RFC3339), t.config.LockoutDuration); err != nil {
			return fmt.Errorf("%w: %v", ErrTrackerUnavailable, err)
		}
		t.logger.Warn("Login lockout triggered",
			util.String("identity_hash", identityKey(identifier)[:12]),
			util.Int64("failed_count", count),
		)
	}

	return nil
}

// IsLoginLocked reports whether the identity is inside a lockout period.
func (t *Tracker) IsLoginLocked(ctx context.Context, identifier string) (bool, error) {
	exists, err := t.redis.Exists(ctx, loginLockPrefix+identityKey(identifier))
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrTrackerUnavailable, err)
	}
	return exists, nil
}

// ResetLogin clears failure state after a successful login.
func (t *Tracker) ResetLogin(ctx context.Context, identifier string) error {
	hashed := identityKey(identifier)
	if err := t.redis.Del(ctx, loginFailPrefix+hashed, loginLockPrefix+hashed); err != nil {
		return fmt.Errorf("%w: %v", ErrTrackerUnavailable, err)
	}
	return nil
}
