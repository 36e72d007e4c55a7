package pgstore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medforge/authcore/account"
)

// Integration tests run only when AUTHCORE_POSTGRES_DSN points at a
// disposable database.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("AUTHCORE_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("AUTHCORE_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	t.Cleanup(pool.Close)
	if _, err := pool.Exec(ctx, Schema); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE accounts`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return New(pool)
}

func seedAccount(t *testing.T, s *Store, id, lookupHash string) {
	t.Helper()
	now := time.Now()
	err := s.Insert(context.Background(), &account.Account{
		ID:              id,
		EmailCiphertext: "enc:" + id,
		EmailLookupHash: lookupHash,
		NameCiphertext:  "enc-name:" + id,
		PasswordHash:    "hash:" + id,
		Role:            account.RolePatient,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
}

func TestInsertAndLookup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedAccount(t, s, "a1", "lh1")

	got, err := s.FindByLookupHash(ctx, "lh1")
	if err != nil {
		t.Fatalf("FindByLookupHash: %v", err)
	}
	if got.ID != "a1" {
		t.Fatalf("id = %q", got.ID)
	}

	if err := s.Insert(ctx, &account.Account{ID: "a2", EmailLookupHash: "lh1"}); !errors.Is(err, account.ErrDuplicateLookupHash) {
		t.Fatalf("duplicate insert: %v", err)
	}
	if _, err := s.FindByID(ctx, "ghost"); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("missing id: %v", err)
	}
}

func TestConditionalOTPOps(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedAccount(t, s, "a1", "lh1")

	now := time.Now()
	if err := s.SetOTPChallenge(ctx, "a1", account.OTPChallenge{
		Hash: "otp-1", ExpiresAt: now.Add(10 * time.Minute), SentAt: now,
	}); err != nil {
		t.Fatalf("SetOTPChallenge: %v", err)
	}

	const max = 5
	for i := 0; i < max; i++ {
		applied, err := s.IncrementOTPAttempts(ctx, "a1", max)
		if err != nil || !applied {
			t.Fatalf("increment %d: applied=%v err=%v", i, applied, err)
		}
	}
	if applied, err := s.IncrementOTPAttempts(ctx, "a1", max); err != nil || applied {
		t.Fatalf("increment at bound: applied=%v err=%v", applied, err)
	}

	if consumed, err := s.ConsumeOTPChallenge(ctx, "a1", "stale"); err != nil || consumed {
		t.Fatalf("stale consume: consumed=%v err=%v", consumed, err)
	}
	if consumed, err := s.ConsumeOTPChallenge(ctx, "a1", "otp-1"); err != nil || !consumed {
		t.Fatalf("consume: consumed=%v err=%v", consumed, err)
	}
	got, _ := s.FindByID(ctx, "a1")
	if got.HasActiveOTP() || got.OTPAttempts != 0 {
		t.Fatalf("sub-state survived consume: %+v", got)
	}
}

func TestLockoutAndReset(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedAccount(t, s, "a1", "lh1")

	now := time.Now()
	const threshold = 5
	var d account.LockoutDecision
	var err error
	for i := 0; i < threshold; i++ {
		d, err = s.RecordLoginFailure(ctx, "a1", threshold, 15*time.Minute, now)
		if err != nil {
			t.Fatalf("RecordLoginFailure: %v", err)
		}
	}
	if !d.Locked {
		t.Fatalf("decision = %+v", d)
	}
	if err := s.RecordLoginSuccess(ctx, "a1"); err != nil {
		t.Fatalf("RecordLoginSuccess: %v", err)
	}

	exp := now.Add(time.Hour)
	if err := s.SetResetToken(ctx, "a1", account.ResetToken{Hash: "rt-1", ExpiresAt: exp}); err != nil {
		t.Fatalf("SetResetToken: %v", err)
	}
	if applied, err := s.UpdatePasswordAndClearReset(ctx, "a1", "new-pass", "wrong"); err != nil || applied {
		t.Fatalf("stale reset: applied=%v err=%v", applied, err)
	}
	if applied, err := s.UpdatePasswordAndClearReset(ctx, "a1", "new-pass", "rt-1"); err != nil || !applied {
		t.Fatalf("reset: applied=%v err=%v", applied, err)
	}
	got, _ := s.FindByID(ctx, "a1")
	if got.PasswordHash != "new-pass" || got.ResetTokenHash != nil {
		t.Fatalf("after reset: %+v", got)
	}
}

func TestAnonymize(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedAccount(t, s, "a1", "lh1")

	err := s.Anonymize(ctx, "a1", account.AnonymizedFields{EmailLookupHash: "opaque"})
	if err != nil {
		t.Fatalf("Anonymize: %v", err)
	}
	got, err := s.FindByID(ctx, "a1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if !got.Anonymized() || got.Role != account.DefaultRole || got.EmailLookupHash != "opaque" {
		t.Fatalf("after anonymize: %+v", got)
	}
	if _, err := s.FindByLookupHash(ctx, "lh1"); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("old lookup hash still resolves: %v", err)
	}
}
