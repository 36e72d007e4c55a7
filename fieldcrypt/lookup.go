package fieldcrypt

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// MinPepperSize is the smallest accepted pepper length in bytes.
const MinPepperSize = 16

// LookupHasher produces deterministic, peppered digests of normalized
// values for equality search over encrypted columns.
//
// The pepper is a server-side secret, distinct from per-record salts:
// without it the stored digests cannot be brute-forced offline from a
// leaked database, yet the digest stays deterministic for indexing.
type LookupHasher struct {
	pepper []byte
}

// NewLookupHasher builds a LookupHasher from a server-side pepper.
func NewLookupHasher(pepper []byte) (*LookupHasher, error) {
	if len(pepper) < MinPepperSize {
		return nil, fmt.Errorf("fieldcrypt: pepper must be at least %d bytes, got %d", MinPepperSize, len(pepper))
	}

	p := make([]byte, len(pepper))
	copy(p, pepper)
	return &LookupHasher{pepper: p}, nil
}

// Hash returns the hex digest of HMAC-SHA256(pepper, normalize(value)).
//
// Normalization lowercases and trims surrounding whitespace so that
// "A@B.com" and " a@b.com " produce the same digest.
func (h *LookupHasher) Hash(value string) string {
	mac := hmac.New(sha256.New, h.pepper)
	mac.Write([]byte(Normalize(value)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Normalize applies the canonical form used by Hash: lowercase, trimmed.
func Normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
