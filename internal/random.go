package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

const resetSecretSize = 32

// NewResetToken returns a password-reset token as the pair (raw, hash).
// The raw form is handed to the account holder; only the hash is ever
// persisted, so a leaked datastore cannot be replayed into a reset.
func NewResetToken() (raw string, hash string, err error) {
	var secret [resetSecretSize]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return "", "", fmt.Errorf("reset token generation: %w", err)
	}
	raw = base64.RawURLEncoding.EncodeToString(secret[:])
	return raw, HashResetToken(raw), nil
}

// HashResetToken derives the storable lookup hash of a raw reset token.
func HashResetToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// NewOpaqueHex returns n random bytes hex-encoded. Used to replace
// lookup hashes on anonymized accounts so the slot can never collide
// with a real address again.
func NewOpaqueHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("opaque id generation: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
