package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	algorithmID           = "argon2id"

	dummySecretSize = 32
)

// Config holds the Argon2id cost parameters.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultConfig returns parameters tuned toward ~100ms per hash on
// commodity server hardware.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Hasher hashes and verifies secrets with Argon2id. Instances are
// immutable after construction and safe for concurrent use.
type Hasher struct {
	config    Config
	dummyHash string
}

// NewHasher validates cfg and precomputes the dummy hash.
func NewHasher(cfg Config) (*Hasher, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	h := &Hasher{config: cfg}

	// The dummy hash is derived from a throwaway random secret. Verifying
	// any supplied password against it costs the same as a real mismatch,
	// and it can never match an attacker-chosen input.
	secret := make([]byte, dummySecretSize)
	if _, err := io.ReadFull(rand.Reader, secret); err != nil {
		return nil, fmt.Errorf("password: dummy secret generation: %w", err)
	}
	dummy, err := h.Hash(base64.StdEncoding.EncodeToString(secret))
	if err != nil {
		return nil, err
	}
	h.dummyHash = dummy

	return h, nil
}

// Hash derives a PHC-encoded Argon2id hash with a fresh random salt.
func (h *Hasher) Hash(secret string) (string, error) {
	salt := make([]byte, h.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("password: salt generation: %w", err)
	}

	derived := argon2.IDKey(
		[]byte(secret),
		salt,
		h.config.Time,
		h.config.Memory,
		h.config.Parallelism,
		h.config.KeyLength,
	)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		h.config.Memory,
		h.config.Time,
		h.config.Parallelism,
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(derived),
	), nil
}

// Verify reports whether secret matches the PHC-encoded hash. The final
// comparison is constant-time. A malformed stored hash returns an error;
// callers on authentication paths should treat it as a mismatch after
// burning the dummy-verification cost.
func (h *Hasher) Verify(secret, encodedHash string) (bool, error) {
	parsed, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey(
		[]byte(secret),
		parsed.salt,
		parsed.time,
		parsed.memory,
		parsed.parallelism,
		uint32(len(parsed.hash)),
	)

	return subtle.ConstantTimeCompare(computed, parsed.hash) == 1, nil
}

// DummyHash returns the precomputed hash used to equalize verification
// cost when no account matches a credential lookup.
func (h *Hasher) DummyHash() string {
	return h.dummyHash
}

type parsedPHC struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	hash        []byte
}

func parsePHC(encodedHash string) (*parsedPHC, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, errors.New("password: invalid PHC format")
	}
	if parts[1] != algorithmID {
		return nil, errors.New("password: unsupported algorithm")
	}

	if !strings.HasPrefix(parts[2], "v=") {
		return nil, errors.New("password: missing argon2 version")
	}
	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if err != nil || version != argon2.Version {
		return nil, errors.New("password: unsupported argon2 version")
	}

	var out parsedPHC
	for _, pair := range strings.Split(parts[3], ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return nil, errors.New("password: invalid parameter entry")
		}
		switch kv[0] {
		case "m":
			v, err := strconv.ParseUint(kv[1], 10, 32)
			if err != nil || v < uint64(minMemoryKB) {
				return nil, errors.New("password: invalid memory parameter")
			}
			out.memory = uint32(v)
		case "t":
			v, err := strconv.ParseUint(kv[1], 10, 32)
			if err != nil || v < uint64(minTimeCost) {
				return nil, errors.New("password: invalid time parameter")
			}
			out.time = uint32(v)
		case "p":
			v, err := strconv.ParseUint(kv[1], 10, 8)
			if err != nil || v < uint64(minParallelism) {
				return nil, errors.New("password: invalid parallelism parameter")
			}
			out.parallelism = uint8(v)
		default:
			return nil, errors.New("password: unknown parameter")
		}
	}
	if out.memory == 0 || out.time == 0 || out.parallelism == 0 {
		return nil, errors.New("password: incomplete parameters")
	}

	out.salt, err = base64.StdEncoding.DecodeString(parts[4])
	if err != nil || len(out.salt) < int(minSaltLength) {
		return nil, errors.New("password: invalid salt")
	}
	out.hash, err = base64.StdEncoding.DecodeString(parts[5])
	if err != nil || len(out.hash) < int(minKeyLength) {
		return nil, errors.New("password: invalid hash")
	}

	return &out, nil
}

func validateConfig(cfg Config) error {
	switch {
	case cfg.Memory < minMemoryKB:
		return errors.New("password: memory below minimum")
	case cfg.Time < minTimeCost:
		return errors.New("password: time cost below minimum")
	case cfg.Parallelism < minParallelism:
		return errors.New("password: parallelism below minimum")
	case cfg.SaltLength < minSaltLength:
		return errors.New("password: salt length below minimum")
	case cfg.KeyLength < minKeyLength:
		return errors.New("password: key length below minimum")
	}
	return nil
}
