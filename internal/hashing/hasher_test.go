package hashing

import "testing"

func testParams() Argon2Params {
	// Minimal cost so the suite stays fast.
	return Argon2Params{
		Memory:      8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func TestHashAndVerifyOTP(t *testing.T) {
	h := NewHasher(testParams())

	res, err := h.HashOTP("483920")
	if err != nil {
		t.Fatalf("HashOTP failed: %v", err)
	}
	if res.Hash == "" || res.Salt == "" {
		t.Fatal("expected non-empty hash and salt")
	}

	ok, err := h.VerifyOTP("483920", res)
	if err != nil {
		t.Fatalf("VerifyOTP failed: %v", err)
	}
	if !ok {
		t.Fatal("expected matching code to verify")
	}

	ok, err = h.VerifyOTP("483921", res)
	if err != nil {
		t.Fatalf("VerifyOTP failed: %v", err)
	}
	if ok {
		t.Fatal("expected mismatched code to fail")
	}
}

func TestHashesAreSalted(t *testing.T) {
	h := NewHasher(testParams())

	a, err := h.HashOTP("123456")
	if err != nil {
		t.Fatalf("HashOTP failed: %v", err)
	}
	b, err := h.HashOTP("123456")
	if err != nil {
		t.Fatalf("HashOTP failed: %v", err)
	}

	if a.Hash == b.Hash {
		t.Fatal("expected distinct hashes for the same input")
	}
}

func TestPurposesDoNotCrossVerify(t *testing.T) {
	h := NewHasher(testParams())

	res, err := h.HashPassword("123456")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	ok, err := h.VerifyOTP("123456", res)
	if err != nil {
		t.Fatalf("VerifyOTP failed: %v", err)
	}
	if ok {
		t.Fatal("password hash must not verify as an OTP hash")
	}
}

func TestOldPepperStillVerifiesAfterRotation(t *testing.T) {
	h := NewHasher(testParams())

	res, err := h.HashOTP("654321")
	if err != nil {
		t.Fatalf("HashOTP failed: %v", err)
	}

	h.rotatePepper()

	ok, err := h.VerifyOTP("654321", res)
	if err != nil {
		t.Fatalf("VerifyOTP after rotation failed: %v", err)
	}
	if !ok {
		t.Fatal("expected hash from previous pepper version to verify")
	}
}

func TestVerifyRejectsUnknownAlgorithm(t *testing.T) {
	h := NewHasher(testParams())

	res, _ := h.HashOTP("111111")
	res.Algorithm = "md5"

	if _, err := h.VerifyOTP("111111", res); err != ErrUnknownAlgorithm {
		t.Fatalf("expected ErrUnknownAlgorithm, got %v", err)
	}
}
