package fieldcrypt

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeySize)
	for i := range key {
		key[i] = byte(i * 7)
	}
	return key
}

func newTestCipher(t *testing.T) *Cipher {
	t.Helper()
	c, err := NewCipher(testKey(t))
	if err != nil {
		t.Fatalf("NewCipher failed: %v", err)
	}
	return c
}

func TestCipherRejectsBadKeySize(t *testing.T) {
	for _, size := range []int{0, 16, 31, 33, 64} {
		if _, err := NewCipher(make([]byte, size)); err == nil {
			t.Fatalf("expected error for key size %d", size)
		}
	}
}

func TestCipherRoundTrip(t *testing.T) {
	c := newTestCipher(t)

	inputs := []string{
		"a",
		"pat@example.com",
		"Type 2 diabetes mellitus, well controlled",
		strings.Repeat("long clinical note ", 200),
		"unicode: žluťoučký kůň 漢字",
	}

	for _, in := range inputs {
		env, err := c.Encrypt(in)
		if err != nil {
			t.Fatalf("encrypt %q: %v", in, err)
		}
		if env == in {
			t.Fatalf("envelope equals plaintext for %q", in)
		}
		out, err := c.Decrypt(env)
		if err != nil {
			t.Fatalf("decrypt %q: %v", in, err)
		}
		if out != in {
			t.Fatalf("round trip mismatch: got %q want %q", out, in)
		}
	}
}

func TestCipherEmptyStringPassesThrough(t *testing.T) {
	c := newTestCipher(t)

	env, err := c.Encrypt("")
	if err != nil {
		t.Fatalf("encrypt empty: %v", err)
	}
	if env != "" {
		t.Fatalf("expected empty envelope, got %q", env)
	}

	out, err := c.Decrypt("")
	if err != nil {
		t.Fatalf("decrypt empty: %v", err)
	}
	if out != "" {
		t.Fatalf("expected empty plaintext, got %q", out)
	}
}

func TestCipherNonDeterministic(t *testing.T) {
	c := newTestCipher(t)

	a, err := c.Encrypt("same value")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	b, err := c.Encrypt("same value")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if a == b {
		t.Fatal("two encryptions of the same value produced identical envelopes")
	}
}

func TestCipherEnvelopeHasThreeSegments(t *testing.T) {
	c := newTestCipher(t)

	env, err := c.Encrypt("segmented")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	parts := strings.Split(env, ":")
	if len(parts) != 3 {
		t.Fatalf("expected 3 segments, got %d (%q)", len(parts), env)
	}
	for i, p := range parts {
		if _, err := base64.StdEncoding.DecodeString(p); err != nil {
			t.Fatalf("segment %d is not base64: %v", i, err)
		}
	}
}

// flipByteInSegment decodes one segment, flips a byte, and re-encodes.
func flipByteInSegment(t *testing.T, envelope string, segment int) string {
	t.Helper()

	parts := strings.Split(envelope, ":")
	raw, err := base64.StdEncoding.DecodeString(parts[segment])
	if err != nil {
		t.Fatalf("decode segment %d: %v", segment, err)
	}
	raw[len(raw)/2] ^= 0x01
	parts[segment] = base64.StdEncoding.EncodeToString(raw)
	return strings.Join(parts, ":")
}

func TestCipherTamperDetection(t *testing.T) {
	c := newTestCipher(t)

	env, err := c.Encrypt("diagnosis: hypertension")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	for segment := 0; segment < 3; segment++ {
		tampered := flipByteInSegment(t, env, segment)
		out, err := c.Decrypt(tampered)
		if !errors.Is(err, ErrCrypto) {
			t.Fatalf("segment %d: expected ErrCrypto, got err=%v out=%q", segment, err, out)
		}
		if out != "" {
			t.Fatalf("segment %d: tampered decrypt leaked %q", segment, out)
		}
	}
}

func TestCipherMalformedEnvelopes(t *testing.T) {
	c := newTestCipher(t)

	cases := []string{
		"not-an-envelope",
		"a:b",
		"a:b:c:d",
		"!!!:!!!:!!!",
		"AAAA:AAAA:AAAA", // wrong nonce/tag sizes
	}
	for _, env := range cases {
		if _, err := c.Decrypt(env); !errors.Is(err, ErrCrypto) {
			t.Fatalf("envelope %q: expected ErrCrypto, got %v", env, err)
		}
	}
}

func TestCipherWrongKeyFails(t *testing.T) {
	c := newTestCipher(t)

	otherKey := testKey(t)
	otherKey[0] ^= 0xFF
	other, err := NewCipher(otherKey)
	if err != nil {
		t.Fatalf("NewCipher failed: %v", err)
	}

	env, err := c.Encrypt("cross-key")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := other.Decrypt(env); !errors.Is(err, ErrCrypto) {
		t.Fatalf("expected ErrCrypto with wrong key, got %v", err)
	}
}
