package hashing

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/argon2"

	"stepup-auth/internal/util"
)

var (
	ErrInvalidHash        = errors.New("invalid hash format")
	ErrUnknownPepper      = errors.New("pepper version not found")
	ErrUnknownAlgorithm   = errors.New("unknown hash algorithm")
	supportedAlgorithmTag = "argon2id-v1"
)

type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams are sized for interactive verification of short-lived
// secrets (OTP codes, passwords at login).
func DefaultParams() Argon2Params {
	return Argon2Params{
		Memory:      19 * 1024,
		Iterations:  2,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

type pepper struct {
	value     string
	createdAt time.Time
	version   int
}

// Hasher produces peppered argon2id hashes for OTP codes and passwords.
// The context string keys each purpose so a hash is never valid across
// purposes.
type Hasher struct {
	params        Argon2Params
	currentPepper *pepper
	oldPeppers    []*pepper
	mu            sync.RWMutex
}

// Result is the stored shape of a hash; it never contains the input.
type Result struct {
	Hash          string `json:"hash"`
	Salt          string `json:"salt"`
	PepperVersion int    `json:"pepper_version"`
	Algorithm     string `json:"algorithm"`
}

func NewHasher(params Argon2Params) *Hasher {
	h := &Hasher{params: params}
	h.rotatePepper()
	return h
}

func (h *Hasher) rotatePepper() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.currentPepper != nil {
		h.oldPeppers = append(h.oldPeppers, h.currentPepper)
	}

	pepperBytes := make([]byte, 32)
	if _, err := rand.Read(pepperBytes); err != nil {
		util.Fatal("Failed to generate pepper", zap.Error(err))
	}

	h.currentPepper = &pepper{
		value:     base64.RawURLEncoding.EncodeToString(pepperBytes),
		createdAt: time.Now(),
		version:   len(h.oldPeppers) + 1,
	}

	util.Info("Pepper rotated", zap.Int("version", h.currentPepper.version))
}

// StartPepperRotation rotates the pepper in the background. Old peppers are
// kept so hashes issued before a rotation still verify; only the last two
// versions are retained, which outlives any session TTL by a wide margin.
func (h *Hasher) StartPepperRotation(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				h.rotatePepper()

				h.mu.Lock()
				if len(h.oldPeppers) > 2 {
					h.oldPeppers = h.oldPeppers[len(h.oldPeppers)-2:]
				}
				h.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

func (h *Hasher) HashOTP(code string) (*Result, error) {
	return h.hashWithPepper(code, "otp")
}

func (h *Hasher) VerifyOTP(code string, stored *Result) (bool, error) {
	return h.verifyWithPepper(code, stored, "otp")
}

func (h *Hasher) HashPassword(password string) (*Result, error) {
	return h.hashWithPepper(password, "password")
}

func (h *Hasher) VerifyPassword(password string, stored *Result) (bool, error) {
	return h.verifyWithPepper(password, stored, "password")
}

func (h *Hasher) hashWithPepper(data, context string) (*Result, error) {
	h.mu.RLock()
	p := h.currentPepper
	h.mu.RUnlock()

	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	contextualData := data + p.value + context

	hash := argon2.IDKey(
		[]byte(contextualData),
		salt,
		h.params.Iterations,
		h.params.Memory,
		h.params.Parallelism,
		h.params.KeyLength,
	)

	return &Result{
		Hash:          base64.RawURLEncoding.EncodeToString(hash),
		Salt:          base64.RawURLEncoding.EncodeToString(salt),
		PepperVersion: p.version,
		Algorithm:     supportedAlgorithmTag,
	}, nil
}

func (h *Hasher) verifyWithPepper(data string, stored *Result, context string) (bool, error) {
	if stored == nil {
		return false, ErrInvalidHash
	}
	if stored.Algorithm != supportedAlgorithmTag {
		return false, ErrUnknownAlgorithm
	}

	pepperValue, err := h.getPepper(stored.PepperVersion)
	if err != nil {
		return false, err
	}

	salt, err := base64.RawURLEncoding.DecodeString(stored.Salt)
	if err != nil {
		return false, ErrInvalidHash
	}

	expectedHash, err := base64.RawURLEncoding.DecodeString(stored.Hash)
	if err != nil {
		return false, ErrInvalidHash
	}

	contextualData := data + pepperValue + context

	computedHash := argon2.IDKey(
		[]byte(contextualData),
		salt,
		h.params.Iterations,
		h.params.Memory,
		h.params.Parallelism,
		uint32(len(expectedHash)),
	)

	// Constant time comparison to prevent timing attacks
	return subtle.ConstantTimeCompare(computedHash, expectedHash) == 1, nil
}

func (h *Hasher) getPepper(version int) (string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.currentPepper != nil && h.currentPepper.version == version {
		return h.currentPepper.value, nil
	}

	for _, p := range h.oldPeppers {
		if p.version == version {
			return p.value, nil
		}
	}

	return "", ErrUnknownPepper
}
