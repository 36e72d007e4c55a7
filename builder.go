package authcore

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/medforge/authcore/account"
	"github.com/medforge/authcore/fieldcrypt"
	"github.com/medforge/authcore/otp"
	"github.com/medforge/authcore/password"
	"github.com/medforge/authcore/token"
)

// Builder assembles a Service. All dependencies are injected here; the
// built Service holds no ambient singletons.
type Builder struct {
	config Config
	store  account.Store
	mailer Mailer

	auditSink AuditSink
	logger    *logrus.Logger
	clock     func() time.Time

	built bool
}

// New returns a Builder preloaded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the account persistence adapter.
func (b *Builder) WithStore(store account.Store) *Builder {
	b.store = store
	return b
}

// WithMailer sets the outbound mail collaborator.
func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

// WithAuditSink sets the audit event receiver and enables auditing.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	b.config.Audit.Enabled = sink != nil
	return b
}

// WithLogger sets the structured logger. Without one, a default logger
// writing to stderr is used.
func (b *Builder) WithLogger(log *logrus.Logger) *Builder {
	b.logger = log
	return b
}

// WithClock overrides the time source. Intended for tests.
func (b *Builder) WithClock(clock func() time.Time) *Builder {
	b.clock = clock
	return b
}

// WithMetricsEnabled toggles the counter set.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration, constructs every primitive, and
// returns the ready Service. A Builder builds at most once.
func (b *Builder) Build() (*Service, error) {
	if b.built {
		return nil, errors.New("authcore: builder already used")
	}
	if b.store == nil {
		return nil, errors.New("authcore: store is required")
	}
	if b.mailer == nil {
		return nil, errors.New("authcore: mailer is required")
	}
	b.config = applyDefaults(b.config)
	if err := b.config.Validate(); err != nil {
		return nil, err
	}

	cipher, err := fieldcrypt.NewCipher(b.config.Crypto.FieldKey)
	if err != nil {
		return nil, err
	}
	lookup, err := fieldcrypt.NewLookupHasher(b.config.Crypto.LookupPepper)
	if err != nil {
		return nil, err
	}
	hasher, err := password.NewHasher(b.config.Password)
	if err != nil {
		return nil, err
	}
	tokens, err := token.NewService(token.Config{
		Secret: b.config.Token.Secret,
		TTL:    b.config.Token.TTL,
		Issuer: b.config.Token.Issuer,
	})
	if err != nil {
		return nil, err
	}

	log := b.logger
	if log == nil {
		log = logrus.New()
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	b.built = true
	return &Service{
		cfg:     b.config,
		store:   b.store,
		mailer:  b.mailer,
		cipher:  cipher,
		lookup:  lookup,
		hasher:  hasher,
		otp:     otp.NewEngine(hasher, b.config.OTP.TTL),
		tokens:  tokens,
		audit:   newAuditDispatcher(b.config.Audit, b.auditSink),
		metrics: NewMetrics(b.config.Metrics),
		log:     log,
		now:     clock,
	}, nil
}
