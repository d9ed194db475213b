package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
)

// ErrEntropyUnavailable indicates the secure random source could not be
// read. Fatal for the calling operation; generation is never degraded to a
// weaker source.
var ErrEntropyUnavailable = errors.New("entropy source unavailable")

const (
	minDigits = 6
	maxDigits = 10
)

// Generator produces cryptographically unpredictable numeric codes with no
// leading zeros, uniform over [10^(digits-1), 10^digits - 1].
type Generator struct {
	digits int
}

func NewGenerator(digits int) (*Generator, error) {
	if digits < minDigits || digits > maxDigits {
		return nil, fmt.Errorf("otp digits must be between %d and %d, got %d", minDigits, maxDigits, digits)
	}
	return &Generator{digits: digits}, nil
}

func (g *Generator) Digits() int {
	return g.digits
}

// Generate returns a fresh numeric code. Pure generation; the caller hashes
// before storage.
func (g *Generator) Generate(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	low := int64(1)
	for i := 1; i < g.digits; i++ {
		low *= 10
	}
	span := low * 9 // [low, 10*low-1]

	n, err := rand.Int(rand.Reader, big.NewInt(span))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEntropyUnavailable, err)
	}

	return fmt.Sprintf("%d", low+n.Int64()), nil
}
