// Package pgstore implements account.Store on PostgreSQL via pgx.
//
// The contract's conditional updates map directly onto guarded UPDATE
// statements: the WHERE clause carries the expected current state and
// RowsAffected reports whether the transition applied, so the database
// itself enforces the compare-and-set and no per-account locking is
// needed in process.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medforge/authcore/account"
)

const pgUniqueViolation = "23505"

// Schema is the DDL the store expects. Exposed so deployments can feed
// it to their migration tooling.
const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
    id                   TEXT PRIMARY KEY,
    email_ciphertext     TEXT NOT NULL,
    email_lookup_hash    TEXT NOT NULL UNIQUE,
    name_ciphertext      TEXT NOT NULL,
    password_hash        TEXT NOT NULL,
    role                 TEXT NOT NULL,
    email_verified_at    TIMESTAMPTZ,
    otp_hash             TEXT,
    otp_expires_at       TIMESTAMPTZ,
    otp_last_sent_at     TIMESTAMPTZ,
    otp_attempts         INT NOT NULL DEFAULT 0,
    pending_pw_hash      TEXT,
    pending_pw_expires_at TIMESTAMPTZ,
    reset_token_hash     TEXT,
    reset_token_expires_at TIMESTAMPTZ,
    login_attempts       INT NOT NULL DEFAULT 0,
    login_locked_until   TIMESTAMPTZ,
    created_at           TIMESTAMPTZ NOT NULL,
    updated_at           TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS accounts_reset_token_hash_idx
    ON accounts (reset_token_hash) WHERE reset_token_hash IS NOT NULL;
`

const accountColumns = `
	id, email_ciphertext, email_lookup_hash, name_ciphertext, password_hash,
	role, email_verified_at,
	otp_hash, otp_expires_at, otp_last_sent_at, otp_attempts,
	pending_pw_hash, pending_pw_expires_at,
	reset_token_hash, reset_token_expires_at,
	login_attempts, login_locked_until,
	created_at, updated_at`

// Store is an account.Store backed by a pgx connection pool.
type Store struct {
	db *pgxpool.Pool
}

// New returns a Store over the given pool.
func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func scanAccount(row pgx.Row) (*account.Account, error) {
	var a account.Account
	var role string
	err := row.Scan(
		&a.ID, &a.EmailCiphertext, &a.EmailLookupHash, &a.NameCiphertext, &a.PasswordHash,
		&role, &a.EmailVerifiedAt,
		&a.OTPHash, &a.OTPExpiresAt, &a.OTPLastSentAt, &a.OTPAttempts,
		&a.PendingPasswordHash, &a.PendingPasswordExpiresAt,
		&a.ResetTokenHash, &a.ResetTokenExpiresAt,
		&a.LoginAttempts, &a.LoginLockedUntil,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, account.ErrNotFound
		}
		return nil, fmt.Errorf("pgstore: scan account: %w", err)
	}
	a.Role = account.Role(role)
	return &a, nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*account.Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(s.db.QueryRow(ctx, q, id))
}

func (s *Store) FindByLookupHash(ctx context.Context, lookupHash string) (*account.Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE email_lookup_hash = $1`
	return scanAccount(s.db.QueryRow(ctx, q, lookupHash))
}

func (s *Store) FindByResetTokenHash(ctx context.Context, tokenHash string) (*account.Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE reset_token_hash = $1`
	return scanAccount(s.db.QueryRow(ctx, q, tokenHash))
}

func (s *Store) Insert(ctx context.Context, a *account.Account) error {
	q := `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`
	_, err := s.db.Exec(ctx, q,
		a.ID, a.EmailCiphertext, a.EmailLookupHash, a.NameCiphertext, a.PasswordHash,
		string(a.Role), a.EmailVerifiedAt,
		a.OTPHash, a.OTPExpiresAt, a.OTPLastSentAt, a.OTPAttempts,
		a.PendingPasswordHash, a.PendingPasswordExpiresAt,
		a.ResetTokenHash, a.ResetTokenExpiresAt,
		a.LoginAttempts, a.LoginLockedUntil,
		a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return account.ErrDuplicateLookupHash
		}
		return fmt.Errorf("pgstore: insert account: %w", err)
	}
	return nil
}

// exec runs a statement and maps "no row touched" onto ErrNotFound.
func (s *Store) exec(ctx context.Context, q string, args ...any) error {
	tag, err := s.db.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("pgstore: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return account.ErrNotFound
	}
	return nil
}

// conditional runs a guarded statement whose WHERE clause includes both
// the id and the expected current state. It distinguishes "account
// missing" from "guard did not hold".
func (s *Store) conditional(ctx context.Context, id, q string, args ...any) (bool, error) {
	tag, err := s.db.Exec(ctx, q, args...)
	if err != nil {
		return false, fmt.Errorf("pgstore: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("pgstore: %w", err)
	}
	if !exists {
		return false, account.ErrNotFound
	}
	return false, nil
}

func (s *Store) SetOTPChallenge(ctx context.Context, id string, ch account.OTPChallenge) error {
	q := `
		UPDATE accounts
		SET otp_hash = $2, otp_expires_at = $3, otp_last_sent_at = $4,
		    otp_attempts = 0, updated_at = NOW()
		WHERE id = $1`
	return s.exec(ctx, q, id, ch.Hash, ch.ExpiresAt, ch.SentAt)
}

func (s *Store) IncrementOTPAttempts(ctx context.Context, id string, max int) (bool, error) {
	q := `
		UPDATE accounts
		SET otp_attempts = otp_attempts + 1, updated_at = NOW()
		WHERE id = $1 AND otp_attempts < $2`
	return s.conditional(ctx, id, q, id, max)
}

func (s *Store) ConsumeOTPChallenge(ctx context.Context, id string, otpHash string) (bool, error) {
	q := `
		UPDATE accounts
		SET otp_hash = NULL, otp_expires_at = NULL, otp_last_sent_at = NULL,
		    otp_attempts = 0, updated_at = NOW()
		WHERE id = $1 AND otp_hash = $2`
	return s.conditional(ctx, id, q, id, otpHash)
}

func (s *Store) ClearOTPChallenge(ctx context.Context, id string) error {
	q := `
		UPDATE accounts
		SET otp_hash = NULL, otp_expires_at = NULL, otp_last_sent_at = NULL,
		    otp_attempts = 0, updated_at = NOW()
		WHERE id = $1`
	return s.exec(ctx, q, id)
}

func (s *Store) MarkEmailVerified(ctx context.Context, id string, at time.Time) error {
	q := `
		UPDATE accounts
		SET email_verified_at = COALESCE(email_verified_at, $2), updated_at = NOW()
		WHERE id = $1`
	return s.exec(ctx, q, id, at)
}

func (s *Store) SetPendingPassword(ctx context.Context, id string, pp account.PendingPassword) error {
	q := `
		UPDATE accounts
		SET pending_pw_hash = $2, pending_pw_expires_at = $3, updated_at = NOW()
		WHERE id = $1`
	return s.exec(ctx, q, id, pp.Hash, pp.ExpiresAt)
}

func (s *Store) CommitPendingPassword(ctx context.Context, id string, pendingHash string) (bool, error) {
	q := `
		UPDATE accounts
		SET password_hash = pending_pw_hash,
		    pending_pw_hash = NULL, pending_pw_expires_at = NULL,
		    updated_at = NOW()
		WHERE id = $1 AND pending_pw_hash = $2`
	return s.conditional(ctx, id, q, id, pendingHash)
}

func (s *Store) ClearPendingPassword(ctx context.Context, id string) error {
	q := `
		UPDATE accounts
		SET pending_pw_hash = NULL, pending_pw_expires_at = NULL, updated_at = NOW()
		WHERE id = $1`
	return s.exec(ctx, q, id)
}

func (s *Store) UpdatePasswordHash(ctx context.Context, id string, hash string) error {
	q := `UPDATE accounts SET password_hash = $2, updated_at = NOW() WHERE id = $1`
	return s.exec(ctx, q, id, hash)
}

func (s *Store) SetResetToken(ctx context.Context, id string, rt account.ResetToken) error {
	q := `
		UPDATE accounts
		SET reset_token_hash = $2, reset_token_expires_at = $3, updated_at = NOW()
		WHERE id = $1`
	return s.exec(ctx, q, id, rt.Hash, rt.ExpiresAt)
}

func (s *Store) UpdatePasswordAndClearReset(ctx context.Context, id string, passwordHash, tokenHash string) (bool, error) {
	q := `
		UPDATE accounts
		SET password_hash = $2,
		    reset_token_hash = NULL, reset_token_expires_at = NULL,
		    updated_at = NOW()
		WHERE id = $1 AND reset_token_hash = $3`
	return s.conditional(ctx, id, q, id, passwordHash, tokenHash)
}

func (s *Store) RecordLoginFailure(ctx context.Context, id string, threshold int, lockFor time.Duration, now time.Time) (account.LockoutDecision, error) {
	q := `
		UPDATE accounts
		SET login_attempts = login_attempts + 1,
		    login_locked_until = CASE WHEN login_attempts + 1 >= $2 THEN $3::timestamptz ELSE login_locked_until END,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING login_attempts, login_locked_until`
	var decision account.LockoutDecision
	var lockedUntil *time.Time
	err := s.db.QueryRow(ctx, q, id, threshold, now.Add(lockFor)).Scan(&decision.Attempts, &lockedUntil)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decision, account.ErrNotFound
		}
		return decision, fmt.Errorf("pgstore: %w", err)
	}
	if decision.Attempts >= threshold && lockedUntil != nil {
		decision.Locked = true
		decision.LockedUntil = *lockedUntil
	}
	return decision, nil
}

func (s *Store) RecordLoginSuccess(ctx context.Context, id string) error {
	q := `
		UPDATE accounts
		SET login_attempts = 0, login_locked_until = NULL, updated_at = NOW()
		WHERE id = $1`
	return s.exec(ctx, q, id)
}

func (s *Store) Anonymize(ctx context.Context, id string, fields account.AnonymizedFields) error {
	q := `
		UPDATE accounts
		SET email_ciphertext = $2, email_lookup_hash = $3, name_ciphertext = $4,
		    password_hash = '', role = $5, email_verified_at = NULL,
		    otp_hash = NULL, otp_expires_at = NULL, otp_last_sent_at = NULL, otp_attempts = 0,
		    pending_pw_hash = NULL, pending_pw_expires_at = NULL,
		    reset_token_hash = NULL, reset_token_expires_at = NULL,
		    login_attempts = 0, login_locked_until = NULL,
		    updated_at = NOW()
		WHERE id = $1`
	return s.exec(ctx, q, id,
		fields.EmailCiphertext, fields.EmailLookupHash, fields.NameCiphertext,
		string(account.DefaultRole))
}
