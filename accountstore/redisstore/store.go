// Package redisstore implements account.Store on Redis.
//
// Each account lives at one JSON-encoded key; email and reset-token
// lookups go through index keys. Every conditional update runs inside
// WATCH on the account key with bounded optimistic retries, so a
// superseded challenge or an at-bound counter is never blindly
// overwritten by a racing request.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/medforge/authcore/account"
)

const (
	recordVersionV1 = 1
	maxTxRetries    = 4
)

// ErrUnavailable wraps transport-level Redis failures so callers can
// distinguish an outage from a semantic miss.
var ErrUnavailable = errors.New("redisstore: redis unavailable")

// Store is an account.Store backed by Redis.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// New returns a Store. An empty prefix defaults to "ac".
func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "ac"
	}
	return &Store{redis: client, prefix: prefix}
}

func (s *Store) acctKey(id string) string { return s.prefix + ":acct:" + id }
func (s *Store) emailKey(h string) string { return s.prefix + ":email:" + h }
func (s *Store) resetKey(h string) string { return s.prefix + ":reset:" + h }

type record struct {
	Version         int        `json:"v"`
	ID              string     `json:"id"`
	EmailCiphertext string     `json:"email_ct"`
	EmailLookupHash string     `json:"email_lh"`
	NameCiphertext  string     `json:"name_ct"`
	PasswordHash    string     `json:"pw_hash"`
	Role            string     `json:"role"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`

	OTPHash       *string    `json:"otp_hash,omitempty"`
	OTPExpiresAt  *time.Time `json:"otp_exp,omitempty"`
	OTPLastSentAt *time.Time `json:"otp_sent,omitempty"`
	OTPAttempts   int        `json:"otp_attempts"`

	PendingPasswordHash      *string    `json:"pending_pw_hash,omitempty"`
	PendingPasswordExpiresAt *time.Time `json:"pending_pw_exp,omitempty"`

	ResetTokenHash      *string    `json:"reset_hash,omitempty"`
	ResetTokenExpiresAt *time.Time `json:"reset_exp,omitempty"`

	LoginAttempts    int        `json:"login_attempts"`
	LoginLockedUntil *time.Time `json:"login_locked_until,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func encodeAccount(a *account.Account) ([]byte, error) {
	return json.Marshal(record{
		Version:                  recordVersionV1,
		ID:                       a.ID,
		EmailCiphertext:          a.EmailCiphertext,
		EmailLookupHash:          a.EmailLookupHash,
		NameCiphertext:           a.NameCiphertext,
		PasswordHash:             a.PasswordHash,
		Role:                     string(a.Role),
		EmailVerifiedAt:          a.EmailVerifiedAt,
		OTPHash:                  a.OTPHash,
		OTPExpiresAt:             a.OTPExpiresAt,
		OTPLastSentAt:            a.OTPLastSentAt,
		OTPAttempts:              a.OTPAttempts,
		PendingPasswordHash:      a.PendingPasswordHash,
		PendingPasswordExpiresAt: a.PendingPasswordExpiresAt,
		ResetTokenHash:           a.ResetTokenHash,
		ResetTokenExpiresAt:      a.ResetTokenExpiresAt,
		LoginAttempts:            a.LoginAttempts,
		LoginLockedUntil:         a.LoginLockedUntil,
		CreatedAt:                a.CreatedAt,
		UpdatedAt:                a.UpdatedAt,
	})
}

func decodeAccount(data []byte) (*account.Account, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("redisstore: corrupt account record: %w", err)
	}
	if r.Version != recordVersionV1 {
		return nil, fmt.Errorf("redisstore: unsupported record version %d", r.Version)
	}
	return &account.Account{
		ID:                       r.ID,
		EmailCiphertext:          r.EmailCiphertext,
		EmailLookupHash:          r.EmailLookupHash,
		NameCiphertext:           r.NameCiphertext,
		PasswordHash:             r.PasswordHash,
		Role:                     account.Role(r.Role),
		EmailVerifiedAt:          r.EmailVerifiedAt,
		OTPHash:                  r.OTPHash,
		OTPExpiresAt:             r.OTPExpiresAt,
		OTPLastSentAt:            r.OTPLastSentAt,
		OTPAttempts:              r.OTPAttempts,
		PendingPasswordHash:      r.PendingPasswordHash,
		PendingPasswordExpiresAt: r.PendingPasswordExpiresAt,
		ResetTokenHash:           r.ResetTokenHash,
		ResetTokenExpiresAt:      r.ResetTokenExpiresAt,
		LoginAttempts:            r.LoginAttempts,
		LoginLockedUntil:         r.LoginLockedUntil,
		CreatedAt:                r.CreatedAt,
		UpdatedAt:                r.UpdatedAt,
	}, nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*account.Account, error) {
	data, err := s.redis.Get(ctx, s.acctKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, account.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return decodeAccount(data)
}

func (s *Store) FindByLookupHash(ctx context.Context, lookupHash string) (*account.Account, error) {
	id, err := s.redis.Get(ctx, s.emailKey(lookupHash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, account.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return s.FindByID(ctx, id)
}

func (s *Store) FindByResetTokenHash(ctx context.Context, tokenHash string) (*account.Account, error) {
	id, err := s.redis.Get(ctx, s.resetKey(tokenHash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, account.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	acct, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	// The index key can outlive a superseded token; trust only the row.
	if acct.ResetTokenHash == nil || *acct.ResetTokenHash != tokenHash {
		return nil, account.ErrNotFound
	}
	return acct, nil
}

func (s *Store) Insert(ctx context.Context, acct *account.Account) error {
	data, err := encodeAccount(acct)
	if err != nil {
		return err
	}
	claimed, err := s.redis.SetNX(ctx, s.emailKey(acct.EmailLookupHash), acct.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !claimed {
		return account.ErrDuplicateLookupHash
	}
	if err := s.redis.Set(ctx, s.acctKey(acct.ID), data, 0).Err(); err != nil {
		// Roll the index claim back so the address is not burned.
		s.redis.Del(ctx, s.emailKey(acct.EmailLookupHash))
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// mutate runs fn against the watched account row and writes the result
// back transactionally. fn returns whether the guarded transition
// applied; index keys for lookup hash and reset hash are kept in step
// with whatever fn changed.
func (s *Store) mutate(ctx context.Context, id string, fn func(a *account.Account) (bool, error)) (bool, error) {
	key := s.acctKey(id)

	for i := 0; i < maxTxRetries; i++ {
		var applied bool

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			acct, err := decodeAccount(data)
			if err != nil {
				return err
			}

			oldLookup := acct.EmailLookupHash
			oldReset := ""
			if acct.ResetTokenHash != nil {
				oldReset = *acct.ResetTokenHash
			}

			applied, err = fn(acct)
			if err != nil {
				return err
			}
			acct.UpdatedAt = time.Now()

			newReset := ""
			if acct.ResetTokenHash != nil {
				newReset = *acct.ResetTokenHash
			}

			updated, err := encodeAccount(acct)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, 0)
				if acct.EmailLookupHash != oldLookup {
					pipe.Del(ctx, s.emailKey(oldLookup))
					pipe.Set(ctx, s.emailKey(acct.EmailLookupHash), acct.ID, 0)
				}
				if newReset != oldReset {
					if oldReset != "" {
						pipe.Del(ctx, s.resetKey(oldReset))
					}
					if newReset != "" {
						pipe.Set(ctx, s.resetKey(newReset), acct.ID, 0)
					}
				}
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return false, account.ErrNotFound
			}
			return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return applied, nil
	}
	return false, fmt.Errorf("%w: transaction contention on account %s", ErrUnavailable, id)
}

func (s *Store) SetOTPChallenge(ctx context.Context, id string, ch account.OTPChallenge) error {
	_, err := s.mutate(ctx, id, func(a *account.Account) (bool, error) {
		hash, exp, sent := ch.Hash, ch.ExpiresAt, ch.SentAt
		a.OTPHash = &hash
		a.OTPExpiresAt = &exp
		a.OTPLastSentAt = &sent
		a.OTPAttempts = 0
		return true, nil
	})
	return err
}

func (s *Store) IncrementOTPAttempts(ctx context.Context, id string, max int) (bool, error) {
	return s.mutate(ctx, id, func(a *account.Account) (bool, error) {
		if a.OTPAttempts >= max {
			return false, nil
		}
		a.OTPAttempts++
		return true, nil
	})
}

func (s *Store) ConsumeOTPChallenge(ctx context.Context, id string, otpHash string) (bool, error) {
	return s.mutate(ctx, id, func(a *account.Account) (bool, error) {
		if a.OTPHash == nil || *a.OTPHash != otpHash {
			return false, nil
		}
		clearOTP(a)
		return true, nil
	})
}

func (s *Store) ClearOTPChallenge(ctx context.Context, id string) error {
	_, err := s.mutate(ctx, id, func(a *account.Account) (bool, error) {
		clearOTP(a)
		return true, nil
	})
	return err
}

func (s *Store) MarkEmailVerified(ctx context.Context, id string, at time.Time) error {
	_, err := s.mutate(ctx, id, func(a *account.Account) (bool, error) {
		if a.EmailVerifiedAt == nil {
			a.EmailVerifiedAt = &at
		}
		return true, nil
	})
	return err
}

func (s *Store) SetPendingPassword(ctx context.Context, id string, pp account.PendingPassword) error {
	_, err := s.mutate(ctx, id, func(a *account.Account) (bool, error) {
		hash, exp := pp.Hash, pp.ExpiresAt
		a.PendingPasswordHash = &hash
		a.PendingPasswordExpiresAt = &exp
		return true, nil
	})
	return err
}

func (s *Store) CommitPendingPassword(ctx context.Context, id string, pendingHash string) (bool, error) {
	return s.mutate(ctx, id, func(a *account.Account) (bool, error) {
		if a.PendingPasswordHash == nil || *a.PendingPasswordHash != pendingHash {
			return false, nil
		}
		a.PasswordHash = pendingHash
		clearPending(a)
		return true, nil
	})
}

func (s *Store) ClearPendingPassword(ctx context.Context, id string) error {
	_, err := s.mutate(ctx, id, func(a *account.Account) (bool, error) {
		clearPending(a)
		return true, nil
	})
	return err
}

func (s *Store) UpdatePasswordHash(ctx context.Context, id string, hash string) error {
	_, err := s.mutate(ctx, id, func(a *account.Account) (bool, error) {
		a.PasswordHash = hash
		return true, nil
	})
	return err
}

func (s *Store) SetResetToken(ctx context.Context, id string, rt account.ResetToken) error {
	_, err := s.mutate(ctx, id, func(a *account.Account) (bool, error) {
		hash, exp := rt.Hash, rt.ExpiresAt
		a.ResetTokenHash = &hash
		a.ResetTokenExpiresAt = &exp
		return true, nil
	})
	return err
}

func (s *Store) UpdatePasswordAndClearReset(ctx context.Context, id string, passwordHash, tokenHash string) (bool, error) {
	return s.mutate(ctx, id, func(a *account.Account) (bool, error) {
		if a.ResetTokenHash == nil || *a.ResetTokenHash != tokenHash {
			return false, nil
		}
		a.PasswordHash = passwordHash
		a.ResetTokenHash = nil
		a.ResetTokenExpiresAt = nil
		return true, nil
	})
}

func (s *Store) RecordLoginFailure(ctx context.Context, id string, threshold int, lockFor time.Duration, now time.Time) (account.LockoutDecision, error) {
	var decision account.LockoutDecision
	_, err := s.mutate(ctx, id, func(a *account.Account) (bool, error) {
		a.LoginAttempts++
		decision.Attempts = a.LoginAttempts
		if a.LoginAttempts >= threshold {
			until := now.Add(lockFor)
			a.LoginLockedUntil = &until
			decision.Locked = true
			decision.LockedUntil = until
		}
		return true, nil
	})
	return decision, err
}

func (s *Store) RecordLoginSuccess(ctx context.Context, id string) error {
	_, err := s.mutate(ctx, id, func(a *account.Account) (bool, error) {
		a.LoginAttempts = 0
		a.LoginLockedUntil = nil
		return true, nil
	})
	return err
}

func (s *Store) Anonymize(ctx context.Context, id string, fields account.AnonymizedFields) error {
	_, err := s.mutate(ctx, id, func(a *account.Account) (bool, error) {
		a.EmailCiphertext = fields.EmailCiphertext
		a.EmailLookupHash = fields.EmailLookupHash
		a.NameCiphertext = fields.NameCiphertext
		a.PasswordHash = ""
		a.Role = account.DefaultRole
		a.EmailVerifiedAt = nil
		clearOTP(a)
		clearPending(a)
		a.ResetTokenHash = nil
		a.ResetTokenExpiresAt = nil
		a.LoginAttempts = 0
		a.LoginLockedUntil = nil
		return true, nil
	})
	return err
}

func clearOTP(a *account.Account) {
	a.OTPHash = nil
	a.OTPExpiresAt = nil
	a.OTPLastSentAt = nil
	a.OTPAttempts = 0
}

func clearPending(a *account.Account) {
	a.PendingPasswordHash = nil
	a.PendingPasswordExpiresAt = nil
}
