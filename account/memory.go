package account

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and single-process
// deployments. All operations run under one mutex, which the contract's
// conditional updates need anyway; the slow hashing work always happens
// outside the store, so the critical sections are short.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[string]*Account
	byLookup map[string]string // lookup hash -> account id
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*Account),
		byLookup: make(map[string]string),
	}
}

func (s *MemoryStore) FindByID(ctx context.Context, id string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return acct.Clone(), nil
}

func (s *MemoryStore) FindByLookupHash(ctx context.Context, lookupHash string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byLookup[lookupHash]
	if !ok {
		return nil, ErrNotFound
	}
	return s.accounts[id].Clone(), nil
}

func (s *MemoryStore) FindByResetTokenHash(ctx context.Context, tokenHash string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acct := range s.accounts {
		if acct.ResetTokenHash != nil && *acct.ResetTokenHash == tokenHash {
			return acct.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) Insert(ctx context.Context, acct *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byLookup[acct.EmailLookupHash]; taken {
		return ErrDuplicateLookupHash
	}
	cp := acct.Clone()
	s.accounts[cp.ID] = cp
	s.byLookup[cp.EmailLookupHash] = cp.ID
	return nil
}

func (s *MemoryStore) SetOTPChallenge(ctx context.Context, id string, ch OTPChallenge) error {
	return s.update(id, func(a *Account) {
		hash := ch.Hash
		exp := ch.ExpiresAt
		sent := ch.SentAt
		a.OTPHash = &hash
		a.OTPExpiresAt = &exp
		a.OTPLastSentAt = &sent
		a.OTPAttempts = 0
	})
}

func (s *MemoryStore) IncrementOTPAttempts(ctx context.Context, id string, max int) (bool, error) {
	applied := false
	err := s.update(id, func(a *Account) {
		if a.OTPAttempts < max {
			a.OTPAttempts++
			applied = true
		}
	})
	return applied, err
}

func (s *MemoryStore) ConsumeOTPChallenge(ctx context.Context, id string, otpHash string) (bool, error) {
	consumed := false
	err := s.update(id, func(a *Account) {
		if a.OTPHash != nil && *a.OTPHash == otpHash {
			clearOTP(a)
			consumed = true
		}
	})
	return consumed, err
}

func (s *MemoryStore) ClearOTPChallenge(ctx context.Context, id string) error {
	return s.update(id, clearOTP)
}

func (s *MemoryStore) MarkEmailVerified(ctx context.Context, id string, at time.Time) error {
	return s.update(id, func(a *Account) {
		if a.EmailVerifiedAt == nil {
			a.EmailVerifiedAt = &at
		}
	})
}

func (s *MemoryStore) SetPendingPassword(ctx context.Context, id string, pp PendingPassword) error {
	return s.update(id, func(a *Account) {
		hash := pp.Hash
		exp := pp.ExpiresAt
		a.PendingPasswordHash = &hash
		a.PendingPasswordExpiresAt = &exp
	})
}

func (s *MemoryStore) CommitPendingPassword(ctx context.Context, id string, pendingHash string) (bool, error) {
	committed := false
	err := s.update(id, func(a *Account) {
		if a.PendingPasswordHash != nil && *a.PendingPasswordHash == pendingHash {
			a.PasswordHash = pendingHash
			clearPending(a)
			committed = true
		}
	})
	return committed, err
}

func (s *MemoryStore) ClearPendingPassword(ctx context.Context, id string) error {
	return s.update(id, clearPending)
}

func (s *MemoryStore) UpdatePasswordHash(ctx context.Context, id string, hash string) error {
	return s.update(id, func(a *Account) {
		a.PasswordHash = hash
	})
}

func (s *MemoryStore) SetResetToken(ctx context.Context, id string, rt ResetToken) error {
	return s.update(id, func(a *Account) {
		hash := rt.Hash
		exp := rt.ExpiresAt
		a.ResetTokenHash = &hash
		a.ResetTokenExpiresAt = &exp
	})
}

func (s *MemoryStore) UpdatePasswordAndClearReset(ctx context.Context, id string, passwordHash, tokenHash string) (bool, error) {
	applied := false
	err := s.update(id, func(a *Account) {
		if a.ResetTokenHash != nil && *a.ResetTokenHash == tokenHash {
			a.PasswordHash = passwordHash
			a.ResetTokenHash = nil
			a.ResetTokenExpiresAt = nil
			applied = true
		}
	})
	return applied, err
}

func (s *MemoryStore) RecordLoginFailure(ctx context.Context, id string, threshold int, lockFor time.Duration, now time.Time) (LockoutDecision, error) {
	var decision LockoutDecision
	err := s.update(id, func(a *Account) {
		a.LoginAttempts++
		decision.Attempts = a.LoginAttempts
		if a.LoginAttempts >= threshold {
			until := now.Add(lockFor)
			a.LoginLockedUntil = &until
			decision.Locked = true
			decision.LockedUntil = until
		}
	})
	return decision, err
}

func (s *MemoryStore) RecordLoginSuccess(ctx context.Context, id string) error {
	return s.update(id, func(a *Account) {
		a.LoginAttempts = 0
		a.LoginLockedUntil = nil
	})
}

func (s *MemoryStore) Anonymize(ctx context.Context, id string, fields AnonymizedFields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.byLookup, a.EmailLookupHash)
	a.EmailCiphertext = fields.EmailCiphertext
	a.EmailLookupHash = fields.EmailLookupHash
	a.NameCiphertext = fields.NameCiphertext
	a.PasswordHash = ""
	a.Role = DefaultRole
	a.EmailVerifiedAt = nil
	clearOTP(a)
	clearPending(a)
	a.ResetTokenHash = nil
	a.ResetTokenExpiresAt = nil
	a.LoginAttempts = 0
	a.LoginLockedUntil = nil
	a.UpdatedAt = time.Now()
	s.byLookup[a.EmailLookupHash] = a.ID
	return nil
}

func (s *MemoryStore) update(id string, fn func(*Account)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return ErrNotFound
	}
	fn(a)
	a.UpdatedAt = time.Now()
	return nil
}

func clearOTP(a *Account) {
	a.OTPHash = nil
	a.OTPExpiresAt = nil
	a.OTPLastSentAt = nil
	a.OTPAttempts = 0
}

func clearPending(a *Account) {
	a.PendingPasswordHash = nil
	a.PendingPasswordExpiresAt = nil
}
