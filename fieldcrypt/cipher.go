package fieldcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// KeySize is the required symmetric key length in bytes (AES-256).
const KeySize = 32

// ErrCrypto is returned whenever an envelope cannot be authenticated or
// parsed. Callers must treat it as a terminal decryption failure and never
// surface its detail to end users.
var ErrCrypto = errors.New("fieldcrypt: decryption failed")

// envelopeSegments is the current number of ':'-separated segments.
// The separator layout leaves room for a leading key-id segment when key
// rotation lands; parsers must keep rejecting anything that is not exactly
// the current segment count until then.
const envelopeSegments = 3

// Cipher encrypts and decrypts single text fields with AES-256-GCM.
//
// The envelope format is base64(nonce):base64(tag):base64(ciphertext).
// A fresh random nonce is drawn per call, so encrypting the same value
// twice yields different envelopes.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a Cipher from a 32-byte key.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("fieldcrypt: key must be %d bytes, got %d", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("fieldcrypt: cipher init: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("fieldcrypt: gcm init: %w", err)
	}

	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext into an envelope string.
//
// The empty string passes through unchanged: optional fields round-trip
// without producing a fixed-size envelope that would reveal emptiness.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("fieldcrypt: nonce generation: %w", err)
	}

	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)

	// Seal appends the auth tag to the ciphertext; split them so the
	// envelope carries nonce, tag, ciphertext as distinct segments.
	tagStart := len(sealed) - c.aead.Overhead()
	ciphertext, tag := sealed[:tagStart], sealed[tagStart:]

	return base64.StdEncoding.EncodeToString(nonce) + ":" +
		base64.StdEncoding.EncodeToString(tag) + ":" +
		base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt opens an envelope produced by Encrypt.
//
// Any structural defect or authentication failure yields ErrCrypto; no
// partially decrypted data is ever returned. The empty envelope decrypts
// to the empty string, mirroring Encrypt.
func (c *Cipher) Decrypt(envelope string) (string, error) {
	if envelope == "" {
		return "", nil
	}

	parts := strings.Split(envelope, ":")
	if len(parts) != envelopeSegments {
		return "", fmt.Errorf("%w: malformed envelope", ErrCrypto)
	}

	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil || len(nonce) != c.aead.NonceSize() {
		return "", fmt.Errorf("%w: malformed nonce segment", ErrCrypto)
	}
	tag, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil || len(tag) != c.aead.Overhead() {
		return "", fmt.Errorf("%w: malformed tag segment", ErrCrypto)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("%w: malformed ciphertext segment", ErrCrypto)
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", ErrCrypto)
	}

	return string(plaintext), nil
}
