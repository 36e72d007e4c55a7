// Package token mints and verifies HS256 session tokens.
//
// Verification is deliberately binary: any failure, whether a bad
// signature, an expired token, a wrong algorithm, or a malformed claim
// set, yields nil claims with no detail. Callers must not branch on the
// reason a token was rejected.
package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// MinSecretSize is the minimum HMAC secret length in bytes.
	MinSecretSize = 32

	// DefaultTTL is the session token lifetime when none is configured.
	DefaultTTL = time.Hour

	// notBeforeSkew backdates nbf so a token minted on one host is
	// immediately usable on a peer with a slightly slower clock.
	notBeforeSkew = 2 * time.Second
)

// Claims is the payload carried by a session token.
type Claims struct {
	AccountID string `json:"sub"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// Config holds signing parameters for a Service.
type Config struct {
	Secret []byte
	TTL    time.Duration
	Issuer string
}

// Service signs and verifies session tokens with a single shared secret.
type Service struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewService validates cfg and returns a Service. A non-positive TTL
// falls back to DefaultTTL.
func NewService(cfg Config) (*Service, error) {
	if len(cfg.Secret) < MinSecretSize {
		return nil, errors.New("token: secret must be at least 32 bytes")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		secret: cfg.Secret,
		ttl:    ttl,
		issuer: cfg.Issuer,
		now:    time.Now,
	}, nil
}

// Sign mints a token for the given account and role.
func (s *Service) Sign(accountID, role string) (string, error) {
	if strings.TrimSpace(accountID) == "" {
		return "", errors.New("token: empty account id")
	}
	now := s.now()
	claims := Claims{
		AccountID: accountID,
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-notBeforeSkew)),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			Issuer:    s.issuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify parses and validates a token string. It returns the claims on
// success and nil on any failure at all.
func (s *Service) Verify(tokenStr string) *Claims {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		options = append(options, jwt.WithIssuer(s.issuer))
	}

	parsed, err := jwt.NewParser(options...).ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil
	}
	if strings.TrimSpace(claims.AccountID) == "" {
		return nil
	}
	return claims
}

// TTL returns the configured token lifetime.
func (s *Service) TTL() time.Duration {
	return s.ttl
}
