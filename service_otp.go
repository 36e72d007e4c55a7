package authcore

import (
	"context"
	"errors"

	"github.com/medforge/authcore/account"
	"github.com/medforge/authcore/otp"
)

// VerifyOTP checks a challenge answer and, on success, mints the
// session token. This is the only path that authenticates a login or
// registration.
//
// The attempt counter is consumed before the code is compared, through
// a conditional increment that refuses past the bound, so brute force
// against one issued code is capped at the configured attempts even
// under concurrent requests.
func (s *Service) VerifyOTP(ctx context.Context, req VerifyOTPRequest) (*SessionResult, error) {
	if err := validateEmail(req.Email); err != nil {
		return nil, err
	}
	if err := validateCode(req.Code); err != nil {
		return nil, err
	}

	acct, err := s.store.FindByLookupHash(ctx, s.lookup.Hash(req.Email))
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil, ErrInvalidOTP
		}
		return nil, s.internalError("verify otp: lookup", err)
	}
	if acct.Anonymized() || !acct.HasActiveOTP() {
		return nil, ErrInvalidOTP
	}

	now := s.now()
	if otp.IsExpired(acct.OTPExpiresAt, now) {
		if err := s.store.ClearOTPChallenge(ctx, acct.ID); err != nil {
			return nil, s.internalError("verify otp: clear expired", err)
		}
		return nil, ErrInvalidOTP
	}

	applied, err := s.store.IncrementOTPAttempts(ctx, acct.ID, s.cfg.OTP.MaxAttempts)
	if err != nil {
		return nil, s.internalError("verify otp: count attempt", err)
	}
	if !applied {
		s.metrics.Inc(MetricOTPAttemptsExceeded)
		s.auditEvent(ctx, AuditOTPExhausted, acct.ID, false, "attempt bound reached", nil)
		return nil, ErrTooManyOTPAttempts
	}

	if !s.otp.Verify(req.Code, *acct.OTPHash) {
		s.metrics.Inc(MetricOTPFailure)
		return nil, ErrInvalidOTP
	}

	consumed, err := s.store.ConsumeOTPChallenge(ctx, acct.ID, *acct.OTPHash)
	if err != nil {
		return nil, s.internalError("verify otp: consume", err)
	}
	if !consumed {
		// The challenge was superseded by a racing resend. The code the
		// caller holds no longer corresponds to the stored hash.
		return nil, ErrInvalidOTP
	}

	if acct.EmailVerifiedAt == nil {
		if err := s.store.MarkEmailVerified(ctx, acct.ID, now); err != nil {
			return nil, s.internalError("verify otp: mark verified", err)
		}
	}

	signed, err := s.tokens.Sign(acct.ID, string(acct.Role))
	if err != nil {
		return nil, s.internalError("verify otp: sign token", err)
	}

	s.metrics.Inc(MetricOTPVerified)
	s.auditEvent(ctx, AuditOTPVerified, acct.ID, true, "", nil)
	return &SessionResult{
		AccountID: acct.ID,
		Role:      string(acct.Role),
		Token:     signed,
	}, nil
}

// ResendOTP issues a fresh challenge, invalidating any outstanding
// code. It reports success for unknown addresses so the operation
// carries no enumeration signal; the only error an existing account can
// see is the resend cooldown.
func (s *Service) ResendOTP(ctx context.Context, email string) error {
	if err := validateEmail(email); err != nil {
		return err
	}

	acct, err := s.store.FindByLookupHash(ctx, s.lookup.Hash(email))
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil
		}
		return s.internalError("resend otp: lookup", err)
	}
	if acct.Anonymized() {
		return nil
	}

	now := s.now()
	if acct.OTPLastSentAt != nil {
		elapsed := now.Sub(*acct.OTPLastSentAt)
		if elapsed < s.cfg.OTP.ResendCooldown {
			s.metrics.Inc(MetricOTPResendCooldown)
			return &CooldownError{RetryAfter: s.cfg.OTP.ResendCooldown - elapsed}
		}
	}

	plainEmail, err := s.decryptField(acct.EmailCiphertext, acct.ID, "email")
	if err != nil {
		return err
	}
	if err := s.issueOTP(ctx, acct.ID, plainEmail); err != nil {
		return err
	}
	s.metrics.Inc(MetricOTPResend)
	return nil
}
