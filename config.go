package authcore

import (
	"errors"
	"time"

	"github.com/medforge/authcore/fieldcrypt"
	"github.com/medforge/authcore/otp"
	"github.com/medforge/authcore/password"
	"github.com/medforge/authcore/token"
)

// Config assembles every tunable of the auth core. Zero values are
// filled from defaultConfig by the builder; Validate runs before any
// service is constructed.
type Config struct {
	Crypto   CryptoConfig
	Password password.Config
	OTP      OTPConfig
	Token    TokenConfig
	Lockout  LockoutConfig
	Reset    ResetConfig
	Mailer   MailerConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

// CryptoConfig holds the process-wide field-encryption key and the
// lookup-hash pepper. Both are secrets loaded at startup.
type CryptoConfig struct {
	FieldKey     []byte
	LookupPepper []byte
}

// OTPConfig tunes the one-time-code challenge.
type OTPConfig struct {
	TTL            time.Duration
	MaxAttempts    int
	ResendCooldown time.Duration
}

// TokenConfig tunes session token signing.
type TokenConfig struct {
	Secret []byte
	TTL    time.Duration
	Issuer string
}

// LockoutConfig tunes the consecutive-failure lock.
type LockoutConfig struct {
	Threshold int
	Window    time.Duration
}

// ResetConfig tunes the password-reset token.
type ResetConfig struct {
	TokenTTL time.Duration
}

// MailerConfig bounds mail dispatch. Delivery is best effort: the state
// change is already durable when the mailer runs, so a miss is resolved
// by a resend, never a rollback.
type MailerConfig struct {
	Timeout time.Duration
}

// AuditConfig tunes the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig tunes the in-process counter set.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

func defaultConfig() Config {
	return Config{
		Password: password.DefaultConfig(),
		OTP: OTPConfig{
			TTL:            otp.DefaultTTL,
			MaxAttempts:    otp.MaxAttempts,
			ResendCooldown: otp.ResendCooldown,
		},
		Token: TokenConfig{
			TTL:    token.DefaultTTL,
			Issuer: "authcore",
		},
		Lockout: LockoutConfig{
			Threshold: 5,
			Window:    15 * time.Minute,
		},
		Reset: ResetConfig{
			TokenTTL: time.Hour,
		},
		Mailer: MailerConfig{
			Timeout: 5 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

// Validate checks the assembled configuration before the service is
// built.
func (c *Config) Validate() error {
	if len(c.Crypto.FieldKey) != fieldcrypt.KeySize {
		return errors.New("Crypto FieldKey must be exactly 32 bytes")
	}
	if len(c.Crypto.LookupPepper) < fieldcrypt.MinPepperSize {
		return errors.New("Crypto LookupPepper must be >= 16 bytes")
	}

	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}

	if c.OTP.TTL <= 0 {
		return errors.New("OTP TTL must be > 0")
	}
	if c.OTP.MaxAttempts < 1 {
		return errors.New("OTP MaxAttempts must be >= 1")
	}
	if c.OTP.ResendCooldown < 0 {
		return errors.New("OTP ResendCooldown must be >= 0")
	}

	if len(c.Token.Secret) < token.MinSecretSize {
		return errors.New("Token Secret must be >= 32 bytes")
	}
	if c.Token.TTL <= 0 {
		return errors.New("Token TTL must be > 0")
	}

	if c.Lockout.Threshold < 1 {
		return errors.New("Lockout Threshold must be >= 1")
	}
	if c.Lockout.Window <= 0 {
		return errors.New("Lockout Window must be > 0")
	}

	if c.Reset.TokenTTL <= 0 {
		return errors.New("Reset TokenTTL must be > 0")
	}

	if c.Mailer.Timeout <= 0 {
		return errors.New("Mailer Timeout must be > 0")
	}

	if c.Audit.Enabled && c.Audit.BufferSize < 1 {
		return errors.New("Audit BufferSize must be >= 1 when enabled")
	}

	return nil
}

// applyDefaults fills zero-valued sections from defaultConfig so
// callers only have to supply secrets and deliberate overrides.
func applyDefaults(cfg Config) Config {
	def := defaultConfig()

	if cfg.Password == (password.Config{}) {
		cfg.Password = def.Password
	}
	if cfg.OTP.TTL == 0 {
		cfg.OTP.TTL = def.OTP.TTL
	}
	if cfg.OTP.MaxAttempts == 0 {
		cfg.OTP.MaxAttempts = def.OTP.MaxAttempts
	}
	if cfg.OTP.ResendCooldown == 0 {
		cfg.OTP.ResendCooldown = def.OTP.ResendCooldown
	}
	if cfg.Token.TTL == 0 {
		cfg.Token.TTL = def.Token.TTL
	}
	if cfg.Token.Issuer == "" {
		cfg.Token.Issuer = def.Token.Issuer
	}
	if cfg.Lockout.Threshold == 0 {
		cfg.Lockout.Threshold = def.Lockout.Threshold
	}
	if cfg.Lockout.Window == 0 {
		cfg.Lockout.Window = def.Lockout.Window
	}
	if cfg.Reset.TokenTTL == 0 {
		cfg.Reset.TokenTTL = def.Reset.TokenTTL
	}
	if cfg.Mailer.Timeout == 0 {
		cfg.Mailer.Timeout = def.Mailer.Timeout
	}
	if cfg.Audit.BufferSize == 0 {
		cfg.Audit.BufferSize = def.Audit.BufferSize
	}

	return cfg
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Crypto.FieldKey = append([]byte(nil), cfg.Crypto.FieldKey...)
	out.Crypto.LookupPepper = append([]byte(nil), cfg.Crypto.LookupPepper...)
	out.Token.Secret = append([]byte(nil), cfg.Token.Secret...)
	return out
}
