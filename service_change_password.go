package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/medforge/authcore/account"
	"github.com/medforge/authcore/otp"
)

// RequestPasswordChange starts the two-phase password change for an
// authenticated account. The new password is hashed and staged, never
// applied; ConfirmPasswordChange applies it after the mailed OTP is
// answered. The staged change and the OTP share one expiry.
//
// Equal old and new passwords are rejected before any hashing runs.
func (s *Service) RequestPasswordChange(ctx context.Context, req ChangePasswordRequest) (*ChallengeResult, error) {
	if req.AccountID == "" {
		return nil, fmt.Errorf("%w: account id is required", ErrMalformedInput)
	}
	if req.OldPassword == "" {
		return nil, fmt.Errorf("%w: current password is required", ErrMalformedInput)
	}
	if req.OldPassword == req.NewPassword {
		return nil, ErrSamePassword
	}
	if err := validatePassword(req.NewPassword); err != nil {
		return nil, err
	}

	acct, err := s.store.FindByID(ctx, req.AccountID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, s.internalError("change password: lookup", err)
	}
	if acct.Anonymized() {
		return nil, ErrInvalidCredentials
	}

	ok, verr := s.hasher.Verify(req.OldPassword, acct.PasswordHash)
	if verr != nil || !ok {
		if verr != nil {
			s.log.WithError(verr).WithField("account_id", acct.ID).Error("stored password hash unreadable")
		}
		return nil, ErrInvalidCredentials
	}

	newHash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return nil, s.internalError("change password: hash", err)
	}
	pp := account.PendingPassword{
		Hash:      newHash,
		ExpiresAt: s.otp.ExpiresAt(s.now()),
	}
	if err := s.store.SetPendingPassword(ctx, acct.ID, pp); err != nil {
		return nil, s.internalError("change password: stage", err)
	}

	email, err := s.decryptField(acct.EmailCiphertext, acct.ID, "email")
	if err != nil {
		return nil, err
	}
	if err := s.issueOTP(ctx, acct.ID, email); err != nil {
		return nil, err
	}

	s.metrics.Inc(MetricPasswordChangeRequested)
	return &ChallengeResult{OTPRequired: true, Email: email}, nil
}

// ConfirmPasswordChange answers the OTP and commits the staged
// password. It never issues a session token; existing sessions are
// unaffected by design.
func (s *Service) ConfirmPasswordChange(ctx context.Context, req ConfirmPasswordChangeRequest) error {
	if req.AccountID == "" {
		return fmt.Errorf("%w: account id is required", ErrMalformedInput)
	}
	if err := validateCode(req.Code); err != nil {
		return err
	}

	acct, err := s.store.FindByID(ctx, req.AccountID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return ErrNoPendingPasswordChange
		}
		return s.internalError("confirm password change: lookup", err)
	}

	if acct.PendingPasswordHash == nil {
		return ErrNoPendingPasswordChange
	}
	now := s.now()
	if otp.IsExpired(acct.PendingPasswordExpiresAt, now) {
		// Detecting the expiry clears the whole staged transaction.
		if err := s.store.ClearPendingPassword(ctx, acct.ID); err != nil {
			return s.internalError("confirm password change: clear stale", err)
		}
		if err := s.store.ClearOTPChallenge(ctx, acct.ID); err != nil {
			return s.internalError("confirm password change: clear stale otp", err)
		}
		return ErrNoPendingPasswordChange
	}

	if !acct.HasActiveOTP() || otp.IsExpired(acct.OTPExpiresAt, now) {
		return ErrInvalidOTP
	}

	applied, err := s.store.IncrementOTPAttempts(ctx, acct.ID, s.cfg.OTP.MaxAttempts)
	if err != nil {
		return s.internalError("confirm password change: count attempt", err)
	}
	if !applied {
		s.metrics.Inc(MetricOTPAttemptsExceeded)
		s.auditEvent(ctx, AuditOTPExhausted, acct.ID, false, "attempt bound reached", nil)
		return ErrTooManyOTPAttempts
	}

	if !s.otp.Verify(req.Code, *acct.OTPHash) {
		s.metrics.Inc(MetricOTPFailure)
		return ErrInvalidOTP
	}

	consumed, err := s.store.ConsumeOTPChallenge(ctx, acct.ID, *acct.OTPHash)
	if err != nil {
		return s.internalError("confirm password change: consume otp", err)
	}
	if !consumed {
		return ErrInvalidOTP
	}

	committed, err := s.store.CommitPendingPassword(ctx, acct.ID, *acct.PendingPasswordHash)
	if err != nil {
		return s.internalError("confirm password change: commit", err)
	}
	if !committed {
		// A newer change request superseded the staged hash between our
		// read and the commit.
		return ErrNoPendingPasswordChange
	}

	s.metrics.Inc(MetricPasswordChangeCommitted)
	s.auditEvent(ctx, AuditPasswordChanged, acct.ID, true, "", nil)
	return nil
}
