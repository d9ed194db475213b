package encryption

import (
	"context"
	"testing"

	"stepup-auth/internal/config"
)

func newLocalManager() *Manager {
	cfg := &config.Config{Environment: "development"}
	return NewManager(cfg, nil)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	m := newLocalManager()

	data, err := m.EncryptField(context.Background(), "john.doe@example.com")
	if err != nil {
		t.Fatalf("EncryptField failed: %v", err)
	}
	if data.EncryptedValue == "john.doe@example.com" || data.EncryptedValue == "" {
		t.Fatal("expected ciphertext distinct from plaintext")
	}

	plain, err := m.DecryptField(context.Background(), data)
	if err != nil {
		t.Fatalf("DecryptField failed: %v", err)
	}
	if plain != "john.doe@example.com" {
		t.Fatalf("round trip mismatch: %q", plain)
	}
}

func TestDecryptAfterCacheClear(t *testing.T) {
	m := newLocalManager()

	data, err := m.EncryptField(context.Background(), "6285800650661")
	if err != nil {
		t.Fatalf("EncryptField failed: %v", err)
	}

	m.ClearCache()

	plain, err := m.DecryptField(context.Background(), data)
	if err != nil {
		t.Fatalf("DecryptField failed: %v", err)
	}
	if plain != "6285800650661" {
		t.Fatalf("round trip mismatch: %q", plain)
	}
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	m := newLocalManager()

	data, err := m.EncryptField(context.Background(), "secret")
	if err != nil {
		t.Fatalf("EncryptField failed: %v", err)
	}

	data.EncryptedValue = "AAAA" + data.EncryptedValue[4:]
	m.ClearCache()

	if _, err := m.DecryptField(context.Background(), data); err == nil {
		t.Fatal("expected decryption of tampered ciphertext to fail")
	}
}
