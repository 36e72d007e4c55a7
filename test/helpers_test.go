//go:build integration
// +build integration

package test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	authcore "github.com/medforge/authcore"
	"github.com/medforge/authcore/accountstore/redisstore"
	"github.com/medforge/authcore/password"
)

func newIntegrationStore(t *testing.T) (*redisstore.Store, *redis.Client, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := redisstore.New(rdb, "it")

	return store, rdb, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

// captureMailer records every delivery so tests can read issued codes
// and reset tokens back out.
type captureMailer struct {
	mu     sync.Mutex
	codes  []string
	tokens []string
}

func (m *captureMailer) SendOTPCode(_ context.Context, _ string, code string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes = append(m.codes, code)
	return nil
}

func (m *captureMailer) SendPasswordResetLink(_ context.Context, _ string, rawToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = append(m.tokens, rawToken)
	return nil
}

func (m *captureMailer) lastCode(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.codes) == 0 {
		t.Fatal("no code was mailed")
	}
	return m.codes[len(m.codes)-1]
}

func (m *captureMailer) lastToken(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.tokens) == 0 {
		t.Fatal("no reset token was mailed")
	}
	return m.tokens[len(m.tokens)-1]
}

func newIntegrationService(t *testing.T) (*authcore.Service, *captureMailer, func()) {
	t.Helper()

	store, _, cleanup := newIntegrationStore(t)
	mail := &captureMailer{}

	cfg := authcore.Config{
		Crypto: authcore.CryptoConfig{
			FieldKey:     []byte("0123456789abcdef0123456789abcdef"),
			LookupPepper: []byte("integration-pepper-01"),
		},
		Password: password.Config{
			Memory:      8 * 1024,
			Time:        1,
			Parallelism: 1,
			SaltLength:  16,
			KeyLength:   32,
		},
		Token: authcore.TokenConfig{
			Secret: []byte("integration-token-secret-32-byte"),
			TTL:    time.Hour,
			Issuer: "authcore",
		},
	}

	svc, err := authcore.New().
		WithConfig(cfg).
		WithStore(store).
		WithMailer(mail).
		Build()
	if err != nil {
		cleanup()
		t.Fatalf("Build failed: %v", err)
	}

	return svc, mail, func() {
		svc.Close()
		cleanup()
	}
}
