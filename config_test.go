package authcore

import (
	"encoding/base64"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	base := testConfig()
	if err := base.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	mutations := map[string]func(*Config){
		"short field key":   func(c *Config) { c.Crypto.FieldKey = []byte("short") },
		"short pepper":      func(c *Config) { c.Crypto.LookupPepper = []byte("tiny") },
		"short secret":      func(c *Config) { c.Token.Secret = []byte("short") },
		"zero otp ttl":      func(c *Config) { c.OTP.TTL = 0 },
		"zero max attempts": func(c *Config) { c.OTP.MaxAttempts = 0 },
		"zero threshold":    func(c *Config) { c.Lockout.Threshold = 0 },
		"zero lock window":  func(c *Config) { c.Lockout.Window = 0 },
		"zero reset ttl":    func(c *Config) { c.Reset.TokenTTL = 0 },
		"zero mail timeout": func(c *Config) { c.Mailer.Timeout = 0 },
		"weak password mem": func(c *Config) { c.Password.Memory = 1024 },
	}
	for name, mutate := range mutations {
		cfg := testConfig()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: config accepted", name)
		}
	}
}

func TestDefaultConfigConstants(t *testing.T) {
	cfg := defaultConfig()
	if cfg.OTP.TTL != 10*time.Minute {
		t.Fatalf("OTP TTL = %v", cfg.OTP.TTL)
	}
	if cfg.OTP.MaxAttempts != 5 {
		t.Fatalf("OTP MaxAttempts = %d", cfg.OTP.MaxAttempts)
	}
	if cfg.OTP.ResendCooldown != 30*time.Second {
		t.Fatalf("OTP ResendCooldown = %v", cfg.OTP.ResendCooldown)
	}
	if cfg.Lockout.Threshold != 5 || cfg.Lockout.Window != 15*time.Minute {
		t.Fatalf("Lockout = %+v", cfg.Lockout)
	}
	if cfg.Token.TTL != time.Hour {
		t.Fatalf("Token TTL = %v", cfg.Token.TTL)
	}
	if cfg.Reset.TokenTTL != time.Hour {
		t.Fatalf("Reset TokenTTL = %v", cfg.Reset.TokenTTL)
	}
}

func TestCloneConfigDetachesSecrets(t *testing.T) {
	cfg := testConfig()
	clone := cloneConfig(cfg)
	clone.Crypto.FieldKey[0] ^= 0xff
	if cfg.Crypto.FieldKey[0] == clone.Crypto.FieldKey[0] {
		t.Fatal("clone shares the field key backing array")
	}
}

func TestConfigFromEnv(t *testing.T) {
	key := base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))
	pepper := base64.StdEncoding.EncodeToString([]byte("pepper-0123456789"))
	secret := base64.StdEncoding.EncodeToString([]byte("token-secret-0123456789abcdefghi"))

	t.Setenv("AUTHCORE_FIELD_KEY", key)
	t.Setenv("AUTHCORE_LOOKUP_PEPPER", pepper)
	t.Setenv("AUTHCORE_TOKEN_SECRET", secret)
	t.Setenv("AUTHCORE_TOKEN_ISSUER", "medforge-test")
	t.Setenv("AUTHCORE_OTP_TTL", "5m")

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv: %v", err)
	}
	if cfg.Token.Issuer != "medforge-test" {
		t.Fatalf("issuer = %q", cfg.Token.Issuer)
	}
	if cfg.OTP.TTL != 5*time.Minute {
		t.Fatalf("otp ttl = %v", cfg.OTP.TTL)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("env config invalid: %v", err)
	}
}

func TestConfigFromEnvMissingSecret(t *testing.T) {
	t.Setenv("AUTHCORE_FIELD_KEY", "")
	if _, err := ConfigFromEnv(); err == nil {
		t.Fatal("missing key accepted")
	}
}

func TestBuilderRequiresDependencies(t *testing.T) {
	if _, err := New().WithConfig(testConfig()).Build(); err == nil {
		t.Fatal("build without store accepted")
	}
	if _, err := New().WithConfig(testConfig()).WithMailer(&mockMailer{}).Build(); err == nil {
		t.Fatal("build without store accepted")
	}
}
