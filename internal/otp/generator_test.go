package otp

import (
	"context"
	"strconv"
	"testing"
)

func TestGenerateSixDigitRange(t *testing.T) {
	gen, err := NewGenerator(6)
	if err != nil {
		t.Fatalf("NewGenerator failed: %v", err)
	}

	for i := 0; i < 200; i++ {
		code, err := gen.Generate(context.Background())
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("expected 6 digits, got %q", code)
		}
		n, err := strconv.Atoi(code)
		if err != nil {
			t.Fatalf("non-numeric code %q: %v", code, err)
		}
		if n < 100000 || n > 999999 {
			t.Fatalf("code %d out of range", n)
		}
	}
}

func TestGenerateRespectsDigitBounds(t *testing.T) {
	if _, err := NewGenerator(5); err == nil {
		t.Fatal("expected error for 5 digits")
	}
	if _, err := NewGenerator(11); err == nil {
		t.Fatal("expected error for 11 digits")
	}

	gen, err := NewGenerator(8)
	if err != nil {
		t.Fatalf("NewGenerator failed: %v", err)
	}
	code, err := gen.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(code) != 8 {
		t.Fatalf("expected 8 digits, got %q", code)
	}
}

func TestGenerateHonorsCancelledContext(t *testing.T) {
	gen, _ := NewGenerator(6)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := gen.Generate(ctx); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
