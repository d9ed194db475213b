package attempts

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"stepup-auth/internal/client"
)

func newTestTracker(t *testing.T) (*Tracker, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	tracker := NewTracker(client.NewRedisClientFromUniversal(rdb), Config{
		MaxOTPAttempts:  5,
		OTPAttemptTTL:   10 * time.Minute,
		LoginThreshold:  5,
		LoginWindow:     15 * time.Minute,
		LockoutDuration: 15 * time.Minute,
	}, zap.NewNop())

	return tracker, mr, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func TestOTPFailureCountsStrictlyIncrease(t *testing.T) {
	tracker, _, done := newTestTracker(t)
	defer done()

	ctx := context.Background()
	for i := 1; i <= 4; i++ {
		blocked, err := tracker.RecordOTPFailure(ctx, "s1")
		if err != nil {
			t.Fatalf("RecordOTPFailure failed: %v", err)
		}
		if blocked {
			t.Fatalf("unexpected block at attempt %d", i)
		}
		count, err := tracker.OTPFailureCount(ctx, "s1")
		if err != nil {
			t.Fatalf("OTPFailureCount failed: %v", err)
		}
		if count != i {
			t.Fatalf("expected count %d, got %d", i, count)
		}
	}
}

func TestOTPBlockedOnFifthFailure(t *testing.T) {
	tracker, _, done := newTestTracker(t)
	defer done()

	ctx := context.Background()
	var blocked bool
	for i := 0; i < 5; i++ {
		var err error
		blocked, err = tracker.RecordOTPFailure(ctx, "s1")
		if err != nil {
			t.Fatalf("RecordOTPFailure failed: %v", err)
		}
	}
	if !blocked {
		t.Fatal("expected fifth failure to block")
	}

	isBlocked, err := tracker.IsOTPBlocked(ctx, "s1")
	if err != nil {
		t.Fatalf("IsOTPBlocked failed: %v", err)
	}
	if !isBlocked {
		t.Fatal("expected session to be blocked")
	}

	// Independent session is unaffected.
	other, err := tracker.IsOTPBlocked(ctx, "s2")
	if err != nil {
		t.Fatalf("IsOTPBlocked failed: %v", err)
	}
	if other {
		t.Fatal("unrelated session must not be blocked")
	}
}

func TestResetOTPClearsState(t *testing.T) {
	tracker, _, done := newTestTracker(t)
	defer done()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, _ = tracker.RecordOTPFailure(ctx, "s1")
	}

	if err := tracker.ResetOTP(ctx, "s1"); err != nil {
		t.Fatalf("ResetOTP failed: %v", err)
	}

	blocked, _ := tracker.IsOTPBlocked(ctx, "s1")
	if blocked {
		t.Fatal("expected block to clear")
	}
	count, _ := tracker.OTPFailureCount(ctx, "s1")
	if count != 0 {
		t.Fatalf("expected count 0, got %d", count)
	}
}

func TestLoginLockoutThreshold(t *testing.T) {
	tracker, _, done := newTestTracker(t)
	defer done()

	ctx := context.Background()
	const identity = "john.doe@example.com"

	for i := 0; i < 4; i++ {
		if err := tracker.RecordLoginFailure(ctx, identity); err != nil {
			t.Fatalf("RecordLoginFailure failed: %v", err)
		}
		locked, _ := tracker.IsLoginLocked(ctx, identity)
		if locked {
			t.Fatalf("unexpected lock at failure %d", i+1)
		}
	}

	if err := tracker.RecordLoginFailure(ctx, identity); err != nil {
		t.Fatalf("RecordLoginFailure failed: %v", err)
	}
	locked, err := tracker.IsLoginLocked(ctx, identity)
	if err != nil {
		t.Fatalf("IsLoginLocked failed: %v", err)
	}
	if !locked {
		t.Fatal("expected identity to be locked after threshold")
	}
}

func TestLoginLockoutExpires(t *testing.T) {
	tracker, mr, done := newTestTracker(t)
	defer done()

	ctx := context.Background()
	const identity = "6285800650661"

	for i := 0; i < 5; i++ {
		_ = tracker.RecordLoginFailure(ctx, identity)
	}
	locked, _ := tracker.IsLoginLocked(ctx, identity)
	if !locked {
		t.Fatal("expected lock")
	}

	mr.FastForward(16 * time.Minute)

	locked, err := tracker.IsLoginLocked(ctx, identity)
	if err != nil {
		t.Fatalf("IsLoginLocked failed: %v", err)
	}
	if locked {
		t.Fatal("expected lock to expire with its TTL")
	}
}

func TestLoginWindowRolls(t *testing.T) {
	tracker, mr, done := newTestTracker(t)
	defer done()

	ctx := context.Background()
	const identity = "6285800650661"

	for i := 0; i < 4; i++ {
		_ = tracker.RecordLoginFailure(ctx, identity)
	}

	// Window elapses; the stale failures no longer count.
	mr.FastForward(16 * time.Minute)

	_ = tracker.RecordLoginFailure(ctx, identity)
	locked, _ := tracker.IsLoginLocked(ctx, identity)
	if locked {
		t.Fatal("failures outside the window must not trigger a lock")
	}
}

func TestResetLoginClearsLock(t *testing.T) {
	tracker, _, done := newTestTracker(t)
	defer done()

	ctx := context.Background()
	const identity = "a@example.com"

	for i := 0; i < 5; i++ {
		_ = tracker.RecordLoginFailure(ctx, identity)
	}
	if err := tracker.ResetLogin(ctx, identity); err != nil {
		t.Fatalf("ResetLogin failed: %v", err)
	}

	locked, _ := tracker.IsLoginLocked(ctx, identity)
	if locked {
		t.Fatal("expected reset to clear the lock")
	}
}
