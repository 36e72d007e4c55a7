package authcore

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ConfigFromEnv builds a Config from environment variables, loading a
// .env file first if one is present. Secrets are base64-encoded in the
// environment:
//
//	AUTHCORE_FIELD_KEY      base64, decodes to 32 bytes
//	AUTHCORE_LOOKUP_PEPPER  base64, decodes to >= 16 bytes
//	AUTHCORE_TOKEN_SECRET   base64, decodes to >= 32 bytes
//
// Optional overrides:
//
//	AUTHCORE_TOKEN_ISSUER   token issuer string
//	AUTHCORE_TOKEN_TTL      Go duration, e.g. "1h"
//	AUTHCORE_OTP_TTL        Go duration, e.g. "10m"
//	AUTHCORE_LOCKOUT_WINDOW Go duration, e.g. "15m"
//	AUTHCORE_AUDIT_ENABLED  "true" to enable the audit dispatcher
//
// Everything else keeps its default. The returned Config still goes
// through Validate inside the builder.
func ConfigFromEnv() (Config, error) {
	_ = godotenv.Load()

	cfg := defaultConfig()

	var err error
	if cfg.Crypto.FieldKey, err = secretFromEnv("AUTHCORE_FIELD_KEY"); err != nil {
		return Config{}, err
	}
	if cfg.Crypto.LookupPepper, err = secretFromEnv("AUTHCORE_LOOKUP_PEPPER"); err != nil {
		return Config{}, err
	}
	if cfg.Token.Secret, err = secretFromEnv("AUTHCORE_TOKEN_SECRET"); err != nil {
		return Config{}, err
	}

	if v := os.Getenv("AUTHCORE_TOKEN_ISSUER"); v != "" {
		cfg.Token.Issuer = v
	}
	if cfg.Token.TTL, err = durationFromEnv("AUTHCORE_TOKEN_TTL", cfg.Token.TTL); err != nil {
		return Config{}, err
	}
	if cfg.OTP.TTL, err = durationFromEnv("AUTHCORE_OTP_TTL", cfg.OTP.TTL); err != nil {
		return Config{}, err
	}
	if cfg.Lockout.Window, err = durationFromEnv("AUTHCORE_LOCKOUT_WINDOW", cfg.Lockout.Window); err != nil {
		return Config{}, err
	}
	if v := os.Getenv("AUTHCORE_AUDIT_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("AUTHCORE_AUDIT_ENABLED: %w", err)
		}
		cfg.Audit.Enabled = enabled
	}

	return cfg, nil
}

func secretFromEnv(name string) ([]byte, error) {
	v := os.Getenv(name)
	if v == "" {
		return nil, fmt.Errorf("%s is not set", name)
	}
	raw, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return nil, fmt.Errorf("%s is not valid base64: %w", name, err)
	}
	return raw, nil
}

func durationFromEnv(name string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return d, nil
}
