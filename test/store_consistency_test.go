//go:build integration
// +build integration

package test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/medforge/authcore/account"
)

func seedAccount(t *testing.T, store account.Store, id, lookupHash string) {
	t.Helper()

	now := time.Now().UTC()
	err := store.Insert(context.Background(), &account.Account{
		ID:              id,
		EmailCiphertext: "ct-email",
		EmailLookupHash: lookupHash,
		NameCiphertext:  "ct-name",
		PasswordHash:    "pw-hash",
		Role:            account.RolePatient,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
}

func TestStoreConsistencyDuplicateInsert(t *testing.T) {
	ctx := context.Background()
	store, _, cleanup := newIntegrationStore(t)
	defer cleanup()

	seedAccount(t, store, "a1", "lh-1")

	err := store.Insert(ctx, &account.Account{
		ID:              "a2",
		EmailLookupHash: "lh-1",
		PasswordHash:    "pw-hash",
		Role:            account.RolePatient,
	})
	if !errors.Is(err, account.ErrDuplicateLookupHash) {
		t.Fatalf("duplicate Insert err = %v", err)
	}

	// The losing insert must not have clobbered the index.
	got, err := store.FindByLookupHash(ctx, "lh-1")
	if err != nil {
		t.Fatalf("FindByLookupHash failed: %v", err)
	}
	if got.ID != "a1" {
		t.Fatalf("index points at %q, want a1", got.ID)
	}
}

func TestStoreConsistencyAttemptBoundUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	store, _, cleanup := newIntegrationStore(t)
	defer cleanup()

	seedAccount(t, store, "a1", "lh-1")
	err := store.SetOTPChallenge(ctx, "a1", account.OTPChallenge{
		Hash:      "otp-hash",
		ExpiresAt: time.Now().Add(10 * time.Minute),
		SentAt:    time.Now(),
	})
	if err != nil {
		t.Fatalf("SetOTPChallenge failed: %v", err)
	}

	const workers = 32
	const max = 5

	var applied int64
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			ok, err := store.IncrementOTPAttempts(ctx, "a1", max)
			if err != nil {
				t.Errorf("IncrementOTPAttempts failed: %v", err)
				return
			}
			if ok {
				atomic.AddInt64(&applied, 1)
			}
		}()
	}
	wg.Wait()

	if applied != max {
		t.Fatalf("applied = %d, want %d", applied, max)
	}

	acct, err := store.FindByID(ctx, "a1")
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if acct.OTPAttempts != max {
		t.Fatalf("OTPAttempts = %d, want %d", acct.OTPAttempts, max)
	}
}

func TestStoreConsistencySingleConsume(t *testing.T) {
	ctx := context.Background()
	store, _, cleanup := newIntegrationStore(t)
	defer cleanup()

	seedAccount(t, store, "a1", "lh-1")
	err := store.SetOTPChallenge(ctx, "a1", account.OTPChallenge{
		Hash:      "otp-hash",
		ExpiresAt: time.Now().Add(10 * time.Minute),
		SentAt:    time.Now(),
	})
	if err != nil {
		t.Fatalf("SetOTPChallenge failed: %v", err)
	}

	const workers = 16

	var consumed int64
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			ok, err := store.ConsumeOTPChallenge(ctx, "a1", "otp-hash")
			if err != nil {
				t.Errorf("ConsumeOTPChallenge failed: %v", err)
				return
			}
			if ok {
				atomic.AddInt64(&consumed, 1)
			}
		}()
	}
	wg.Wait()

	if consumed != 1 {
		t.Fatalf("consumed = %d, want exactly 1", consumed)
	}
}

func TestStoreConsistencySingleUseResetToken(t *testing.T) {
	ctx := context.Background()
	store, _, cleanup := newIntegrationStore(t)
	defer cleanup()

	seedAccount(t, store, "a1", "lh-1")
	err := store.SetResetToken(ctx, "a1", account.ResetToken{
		Hash:      "reset-hash",
		ExpiresAt: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("SetResetToken failed: %v", err)
	}

	const workers = 16

	var applied int64
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(n int) {
			defer wg.Done()
			ok, err := store.UpdatePasswordAndClearReset(ctx, "a1", "new-pw-hash", "reset-hash")
			if err != nil {
				t.Errorf("UpdatePasswordAndClearReset failed: %v", err)
				return
			}
			if ok {
				atomic.AddInt64(&applied, 1)
			}
		}(i)
	}
	wg.Wait()

	if applied != 1 {
		t.Fatalf("applied = %d, want exactly 1", applied)
	}

	// The reset index must be gone once the token is spent.
	if _, err := store.FindByResetTokenHash(ctx, "reset-hash"); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("FindByResetTokenHash err = %v, want ErrNotFound", err)
	}
}

func TestStoreConsistencyAnonymizeReindexes(t *testing.T) {
	ctx := context.Background()
	store, _, cleanup := newIntegrationStore(t)
	defer cleanup()

	seedAccount(t, store, "a1", "lh-1")

	err := store.Anonymize(ctx, "a1", account.AnonymizedFields{
		EmailCiphertext: "anon-email",
		EmailLookupHash: "anon-lh",
		NameCiphertext:  "anon-name",
	})
	if err != nil {
		t.Fatalf("Anonymize failed: %v", err)
	}

	if _, err := store.FindByLookupHash(ctx, "lh-1"); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("old lookup hash still resolves: %v", err)
	}

	acct, err := store.FindByID(ctx, "a1")
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if !acct.Anonymized() {
		t.Fatal("account not anonymized")
	}

	// The freed address can be taken by a fresh registration.
	seedAccount(t, store, "a2", "lh-1")
}
