package authcore

import (
	"context"
	"errors"

	"github.com/medforge/authcore/account"
	"github.com/medforge/authcore/internal"
	"github.com/medforge/authcore/otp"
)

// ForgotPassword starts the reset flow. It succeeds silently whether or
// not the address is registered; when it is, a high-entropy token is
// generated, only its hash is persisted, and the raw token is mailed as
// a reset link after the store write commits.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	if err := validateEmail(email); err != nil {
		return err
	}

	acct, err := s.store.FindByLookupHash(ctx, s.lookup.Hash(email))
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil
		}
		return s.internalError("forgot password: lookup", err)
	}
	if acct.Anonymized() {
		return nil
	}

	raw, hash, err := internal.NewResetToken()
	if err != nil {
		return s.internalError("forgot password: token", err)
	}
	rt := account.ResetToken{
		Hash:      hash,
		ExpiresAt: s.now().Add(s.cfg.Reset.TokenTTL),
	}
	if err := s.store.SetResetToken(ctx, acct.ID, rt); err != nil {
		return s.internalError("forgot password: persist token", err)
	}

	s.metrics.Inc(MetricPasswordResetRequested)

	plainEmail, err := s.decryptField(acct.EmailCiphertext, acct.ID, "email")
	if err != nil {
		return err
	}
	mailCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Mailer.Timeout)
	defer cancel()
	if merr := s.mailer.SendPasswordResetLink(mailCtx, plainEmail, raw); merr != nil {
		s.metrics.Inc(MetricMailerFailure)
		s.log.WithError(merr).WithField("account_id", acct.ID).Warn("reset mail dispatch failed")
	}
	return nil
}

// ResetPassword redeems a raw reset token. A wrong token and an expired
// token fail with the same error so neither case is distinguishable
// from outside.
func (s *Service) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	if req.Token == "" {
		return ErrInvalidResetToken
	}
	if err := validatePassword(req.NewPassword); err != nil {
		return err
	}

	hash := internal.HashResetToken(req.Token)
	acct, err := s.store.FindByResetTokenHash(ctx, hash)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return ErrInvalidResetToken
		}
		return s.internalError("reset password: lookup", err)
	}
	if otp.IsExpired(acct.ResetTokenExpiresAt, s.now()) {
		return ErrInvalidResetToken
	}

	newHash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return s.internalError("reset password: hash", err)
	}

	applied, err := s.store.UpdatePasswordAndClearReset(ctx, acct.ID, newHash, hash)
	if err != nil {
		return s.internalError("reset password: apply", err)
	}
	if !applied {
		// The token was consumed or superseded since the read.
		return ErrInvalidResetToken
	}

	s.metrics.Inc(MetricPasswordResetCompleted)
	s.auditEvent(ctx, AuditPasswordReset, acct.ID, true, "", nil)
	return nil
}
