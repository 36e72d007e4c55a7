// Package otp issues and verifies short-lived numeric one-time codes.
//
// Codes are 6 ASCII digits drawn uniformly from crypto/rand and are
// stored only as slow hashes (the same Argon2id primitive used for
// passwords), so a leaked account record never reveals a live code.
package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/medforge/authcore/password"
)

const (
	// CodeLength is the fixed number of digits in a code.
	CodeLength = 6

	// DefaultTTL is how long an issued code stays valid.
	DefaultTTL = 10 * time.Minute

	// MaxAttempts bounds verification tries per issued code.
	MaxAttempts = 5

	// ResendCooldown is the minimum gap between code dispatches for one
	// account.
	ResendCooldown = 30 * time.Second
)

var codeSpace = big.NewInt(1_000_000)

// Engine generates, hashes, and checks one-time codes.
type Engine struct {
	hasher *password.Hasher
	ttl    time.Duration
}

// NewEngine builds an Engine around the shared credential hasher. A
// non-positive ttl falls back to DefaultTTL.
func NewEngine(hasher *password.Hasher, ttl time.Duration) *Engine {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Engine{hasher: hasher, ttl: ttl}
}

// Generate returns a zero-padded 6-digit code drawn uniformly from
// 000000–999999.
func (e *Engine) Generate() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("otp: code generation: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// Hash derives the storable hash of a code.
func (e *Engine) Hash(code string) (string, error) {
	return e.hasher.Hash(code)
}

// Verify reports whether code matches the stored hash. Malformed stored
// hashes count as mismatches.
func (e *Engine) Verify(code, hash string) bool {
	ok, err := e.hasher.Verify(code, hash)
	return err == nil && ok
}

// ExpiresAt returns the expiry for a code issued at now.
func (e *Engine) ExpiresAt(now time.Time) time.Time {
	return now.Add(e.ttl)
}

// TTL returns the configured code lifetime.
func (e *Engine) TTL() time.Duration {
	return e.ttl
}

// IsExpired reports whether an issued code has expired at now. A missing
// or zero expiry fails open to expired: malformed persisted state must
// never be treated as a valid challenge.
func IsExpired(expiresAt *time.Time, now time.Time) bool {
	if expiresAt == nil || expiresAt.IsZero() {
		return true
	}
	return now.After(*expiresAt)
}

// ValidCode reports whether s has the exact shape of a code: 6 ASCII
// digits, nothing else.
func ValidCode(s string) bool {
	if len(s) != CodeLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
