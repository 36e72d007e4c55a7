package account

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no account matches the lookup key.
	ErrNotFound = errors.New("account: not found")

	// ErrDuplicateLookupHash is returned by Insert when the email lookup
	// hash is already taken.
	ErrDuplicateLookupHash = errors.New("account: duplicate lookup hash")
)

// OTPChallenge is the state written when a fresh code is issued.
// Assigning a challenge resets the attempt counter to zero and stamps
// the resend cooldown clock.
type OTPChallenge struct {
	Hash      string
	ExpiresAt time.Time
	SentAt    time.Time
}

// PendingPassword holds a hashed replacement password awaiting OTP
// confirmation.
type PendingPassword struct {
	Hash      string
	ExpiresAt time.Time
}

// ResetToken is the stored form of a password-reset token.
type ResetToken struct {
	Hash      string
	ExpiresAt time.Time
}

// LockoutDecision reports the outcome of recording a login failure.
type LockoutDecision struct {
	Attempts    int
	Locked      bool
	LockedUntil time.Time
}

// AnonymizedFields carries the irreversible placeholder values written
// over an account's PII during erasure.
type AnonymizedFields struct {
	EmailCiphertext string
	EmailLookupHash string
	NameCiphertext  string
}

// Store is the persistence contract the auth flows depend on.
//
// The conditional operations (IncrementOTPAttempts, ConsumeOTPChallenge,
// CommitPendingPassword, UpdatePasswordAndClearReset) must be applied
// atomically against the store's current state and report whether they
// took effect. Two concurrent callers racing one of these must never
// both observe applied=true for the same guarded transition, and a
// read-modify-write in application memory is not an acceptable
// implementation.
type Store interface {
	FindByID(ctx context.Context, id string) (*Account, error)
	FindByLookupHash(ctx context.Context, lookupHash string) (*Account, error)
	FindByResetTokenHash(ctx context.Context, tokenHash string) (*Account, error)

	// Insert persists a new account. Returns ErrDuplicateLookupHash if
	// the email lookup hash is already indexed.
	Insert(ctx context.Context, acct *Account) error

	// SetOTPChallenge assigns a fresh challenge, overwriting any prior
	// one and zeroing the attempt counter.
	SetOTPChallenge(ctx context.Context, id string, ch OTPChallenge) error

	// IncrementOTPAttempts adds one to the attempt counter only while it
	// is below max. applied=false means the counter was already at the
	// bound and the caller must reject the attempt.
	IncrementOTPAttempts(ctx context.Context, id string, max int) (applied bool, err error)

	// ConsumeOTPChallenge clears the OTP sub-state only if the stored
	// hash still equals otpHash. consumed=false means the challenge was
	// superseded or already consumed by a racing request.
	ConsumeOTPChallenge(ctx context.Context, id string, otpHash string) (consumed bool, err error)

	// ClearOTPChallenge unconditionally drops the OTP sub-state.
	ClearOTPChallenge(ctx context.Context, id string) error

	// MarkEmailVerified sets emailVerifiedAt if it is still null.
	MarkEmailVerified(ctx context.Context, id string, at time.Time) error

	// SetPendingPassword stages a password change awaiting confirmation,
	// superseding any prior pending change.
	SetPendingPassword(ctx context.Context, id string, pp PendingPassword) error

	// CommitPendingPassword promotes the staged hash into passwordHash
	// only if the staged hash still equals pendingHash, clearing the
	// pending sub-state. committed=false means the staged change was
	// superseded or already applied.
	CommitPendingPassword(ctx context.Context, id string, pendingHash string) (committed bool, err error)

	// ClearPendingPassword drops the staged change without applying it.
	ClearPendingPassword(ctx context.Context, id string) error

	// UpdatePasswordHash replaces the credential directly. Used by the
	// reset flow and administrative paths, not the two-phase change.
	UpdatePasswordHash(ctx context.Context, id string, hash string) error

	// SetResetToken stores a reset token hash and expiry, replacing any
	// prior one.
	SetResetToken(ctx context.Context, id string, rt ResetToken) error

	// UpdatePasswordAndClearReset applies a new password hash and clears
	// the reset sub-state only if the stored reset hash still equals
	// tokenHash.
	UpdatePasswordAndClearReset(ctx context.Context, id string, passwordHash, tokenHash string) (applied bool, err error)

	// RecordLoginFailure atomically increments the failure counter and,
	// at threshold, opens a lock window ending at now+lockFor.
	RecordLoginFailure(ctx context.Context, id string, threshold int, lockFor time.Duration, now time.Time) (LockoutDecision, error)

	// RecordLoginSuccess zeroes the failure counter and clears any lock.
	RecordLoginSuccess(ctx context.Context, id string) error

	// Anonymize irreversibly overwrites PII with placeholders, clears
	// every secret and sub-state, and demotes the role to the lowest
	// privilege. The row itself survives for referential integrity.
	Anonymize(ctx context.Context, id string, fields AnonymizedFields) error
}
