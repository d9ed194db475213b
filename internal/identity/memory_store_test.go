package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newIdentity(email, phone string) *Identity {
	now := time.Now().UTC()
	ident := &Identity{
		ID:        uuid.New(),
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if email != "" {
		ident.EmailHash = LookupHash(email)
	}
	if phone != "" {
		ident.PhoneHash = LookupHash(phone)
	}
	return ident
}

func TestCreateAndFind(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	ident := newIdentity("john.doe@example.com", "6285800650661")
	if err := store.Create(ctx, ident); err != nil {
		t.Fatalf("Create: %v", err)
	}

	byEmail, err := store.FindByEmail(ctx, "John.Doe@Example.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if byEmail.ID != ident.ID {
		t.Errorf("FindByEmail returned wrong identity: %s", byEmail.ID)
	}

	byPhone, err := store.FindByPhone(ctx, "6285800650661")
	if err != nil {
		t.Fatalf("FindByPhone: %v", err)
	}
	if byPhone.ID != ident.ID {
		t.Errorf("FindByPhone returned wrong identity: %s", byPhone.ID)
	}
}

func TestCreateDuplicateEmail(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, newIdentity("dup@example.com", "")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Create(ctx, newIdentity("dup@example.com", "")); !errors.Is(err, ErrIdentityExists) {
		t.Errorf("expected ErrIdentityExists, got %v", err)
	}
}

func TestFindUnknown(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.FindByEmail(ctx, "nobody@example.com"); !errors.Is(err, ErrIdentityNotFound) {
		t.Errorf("expected ErrIdentityNotFound, got %v", err)
	}
	if _, err := store.GetByID(ctx, uuid.New()); !errors.Is(err, ErrIdentityNotFound) {
		t.Errorf("expected ErrIdentityNotFound, got %v", err)
	}
}

func TestActivate(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	ident := newIdentity("activate@example.com", "")
	if err := store.Create(ctx, ident); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := store.Activate(ctx, ident.ID); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	got, err := store.GetByID(ctx, ident.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != StatusActive {
		t.Errorf("status = %s, want %s", got.Status, StatusActive)
	}
}

func TestRecordLogin(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	ident := newIdentity("login@example.com", "")
	if err := store.Create(ctx, ident); err != nil {
		t.Fatalf("Create: %v", err)
	}

	at := time.Now().UTC().Truncate(time.Second)
	if err := store.RecordLogin(ctx, ident.ID, at); err != nil {
		t.Fatalf("RecordLogin: %v", err)
	}

	got, err := store.GetByID(ctx, ident.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.LastLoginAt == nil || !got.LastLoginAt.Equal(at) {
		t.Errorf("last login = %v, want %v", got.LastLoginAt, at)
	}
}

func TestClonesAreIsolated(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	ident := newIdentity("isolated@example.com", "")
	if err := store.Create(ctx, ident); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := store.GetByID(ctx, ident.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	got.Status = StatusActive

	again, err := store.GetByID(ctx, ident.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if again.Status != StatusPending {
		t.Error("mutating a returned identity must not affect the store")
	}
}

func TestLookupHashNormalizesEmailOnly(t *testing.T) {
	if LookupHash("A@B.com") != LookupHash(" a@b.com ") {
		t.Error("email lookup must be case and whitespace insensitive")
	}
	if LookupHash("6285800650661") == LookupHash("6285800650662") {
		t.Error("distinct phones must not collide")
	}
}
