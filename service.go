// Package authcore is the authentication and data-protection core of a
// multi-role healthcare record system.
//
// It turns a credential exchange into a verified session through an OTP
// challenge, protects PII fields at rest with authenticated encryption
// plus a peppered lookup index, and enforces strict attempt, expiry,
// and lockout bounds on every sensitive flow. Persistence and mail
// delivery are injected collaborators; construct a Service through the
// Builder.
package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/medforge/authcore/account"
	"github.com/medforge/authcore/fieldcrypt"
	"github.com/medforge/authcore/otp"
	"github.com/medforge/authcore/password"
	"github.com/medforge/authcore/token"
)

// Service orchestrates the auth flows. Safe for concurrent use; all
// mutable account state lives behind the injected store.
type Service struct {
	cfg     Config
	store   account.Store
	mailer  Mailer
	cipher  *fieldcrypt.Cipher
	lookup  *fieldcrypt.LookupHasher
	hasher  *password.Hasher
	otp     *otp.Engine
	tokens  *token.Service
	audit   *auditDispatcher
	metrics *Metrics
	log     *logrus.Logger
	now     func() time.Time
}

// Login validates a credential pair. It never authenticates by itself:
// on success a fresh OTP challenge is issued and mailed, and the caller
// must complete VerifyOTP to obtain a session token.
//
// Failure shape is identical whether the account exists or not: when no
// account matches, the password is still run through a dummy hash so
// response timing does not betray account existence.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*ChallengeResult, error) {
	start := s.now()
	if err := validateEmail(req.Email); err != nil {
		return nil, err
	}
	if req.Password == "" {
		return nil, fmt.Errorf("%w: password is required", ErrMalformedInput)
	}

	acct, err := s.store.FindByLookupHash(ctx, s.lookup.Hash(req.Email))
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			s.burnDummyVerify(req.Password)
			s.metrics.Inc(MetricLoginFailure)
			s.auditEvent(ctx, AuditLoginFailure, "", false, "unknown account", nil)
			return nil, ErrInvalidCredentials
		}
		return nil, s.internalError("login: lookup", err)
	}
	if acct.Anonymized() {
		s.burnDummyVerify(req.Password)
		s.metrics.Inc(MetricLoginFailure)
		s.auditEvent(ctx, AuditLoginFailure, acct.ID, false, "anonymized account", nil)
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	if acct.Locked(now) {
		s.metrics.Inc(MetricLoginLocked)
		s.auditEvent(ctx, AuditLoginLocked, acct.ID, false, "lock window active", nil)
		return nil, &LockoutError{
			LockedUntil: *acct.LoginLockedUntil,
			Retry:       acct.LoginLockedUntil.Sub(now),
		}
	}

	ok, verr := s.hasher.Verify(req.Password, acct.PasswordHash)
	if verr != nil {
		// Corrupt stored hash. Burn the dummy cost so the failure is not
		// timing-distinguishable, then treat it as a mismatch.
		s.log.WithError(verr).WithField("account_id", acct.ID).Error("stored password hash unreadable")
		s.burnDummyVerify(req.Password)
		ok = false
	}
	if !ok {
		decision, derr := s.store.RecordLoginFailure(ctx, acct.ID, s.cfg.Lockout.Threshold, s.cfg.Lockout.Window, now)
		if derr != nil {
			return nil, s.internalError("login: record failure", derr)
		}
		s.metrics.Inc(MetricLoginFailure)
		if decision.Locked {
			s.metrics.Inc(MetricLoginLocked)
			s.auditEvent(ctx, AuditLoginLocked, acct.ID, false, "lockout threshold reached", nil)
			return nil, &LockoutError{
				LockedUntil: decision.LockedUntil,
				Retry:       decision.LockedUntil.Sub(now),
			}
		}
		s.auditEvent(ctx, AuditLoginFailure, acct.ID, false, "wrong password", nil)
		return nil, ErrInvalidCredentials
	}

	if err := s.store.RecordLoginSuccess(ctx, acct.ID); err != nil {
		return nil, s.internalError("login: clear counters", err)
	}

	email, err := s.decryptField(acct.EmailCiphertext, acct.ID, "email")
	if err != nil {
		return nil, err
	}
	if err := s.issueOTP(ctx, acct.ID, email); err != nil {
		return nil, err
	}

	s.metrics.Inc(MetricLoginSuccess)
	s.metrics.Observe(MetricLoginLatency, s.now().Sub(start))
	return &ChallengeResult{OTPRequired: true, Email: email}, nil
}

// issueOTP generates, persists, and mails a fresh challenge. The mail
// runs after the store write so a delivery failure leaves a resendable
// challenge rather than a half-applied one.
func (s *Service) issueOTP(ctx context.Context, accountID, email string) error {
	code, err := s.otp.Generate()
	if err != nil {
		return s.internalError("otp: generate", err)
	}
	hash, err := s.otp.Hash(code)
	if err != nil {
		return s.internalError("otp: hash", err)
	}

	now := s.now()
	ch := account.OTPChallenge{
		Hash:      hash,
		ExpiresAt: s.otp.ExpiresAt(now),
		SentAt:    now,
	}
	if err := s.store.SetOTPChallenge(ctx, accountID, ch); err != nil {
		return s.internalError("otp: persist challenge", err)
	}

	s.metrics.Inc(MetricOTPIssued)
	s.auditEvent(ctx, AuditOTPIssued, accountID, true, "", nil)
	s.sendOTPMail(ctx, accountID, email, code)
	return nil
}

// sendOTPMail dispatches the code with a bounded timeout. Best effort:
// the challenge is already durable, so a miss only costs a resend.
func (s *Service) sendOTPMail(ctx context.Context, accountID, email, code string) {
	mailCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Mailer.Timeout)
	defer cancel()
	if err := s.mailer.SendOTPCode(mailCtx, email, code, s.otp.TTL()); err != nil {
		s.metrics.Inc(MetricMailerFailure)
		s.log.WithError(err).WithField("account_id", accountID).Warn("otp mail dispatch failed")
	}
}

func (s *Service) burnDummyVerify(pw string) {
	_, _ = s.hasher.Verify(pw, s.hasher.DummyHash())
}

// decryptField decrypts one stored PII field. A failure means key
// mismatch or data corruption: it is logged and alarmed through the
// crypto-failure counter and surfaces only as ErrInternal.
func (s *Service) decryptField(envelope, accountID, field string) (string, error) {
	plain, err := s.cipher.Decrypt(envelope)
	if err != nil {
		s.metrics.Inc(MetricCryptoFailure)
		s.log.WithError(err).WithFields(logrus.Fields{
			"account_id": accountID,
			"field":      field,
		}).Error("field decryption failed")
		return "", ErrInternal
	}
	return plain, nil
}

func (s *Service) internalError(op string, err error) error {
	s.log.WithError(err).WithField("op", op).Error("internal failure")
	return ErrInternal
}

func (s *Service) auditEvent(ctx context.Context, eventType, accountID string, success bool, errMsg string, metadata map[string]string) {
	if s.audit == nil {
		return
	}
	s.audit.Emit(ctx, AuditEvent{
		Timestamp: s.now(),
		EventType: eventType,
		AccountID: accountID,
		ActorID:   actorIDFromContext(ctx),
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Error:     errMsg,
		Metadata:  metadata,
	})
}

// EncryptField exposes the field cipher for other record types that
// protect PII with the same key, such as appointment notes and
// medication text.
func (s *Service) EncryptField(plaintext string) (string, error) {
	out, err := s.cipher.Encrypt(plaintext)
	if err != nil {
		return "", s.internalError("encrypt field", err)
	}
	return out, nil
}

// DecryptField is the inverse of EncryptField.
func (s *Service) DecryptField(envelope string) (string, error) {
	return s.decryptField(envelope, "", "external")
}

// HashLookup exposes the lookup hasher for external equality indexes.
func (s *Service) HashLookup(value string) string {
	return s.lookup.Hash(value)
}

// VerifyToken validates a session token. Nil claims mean
// unauthenticated; callers must not branch on why.
func (s *Service) VerifyToken(tokenStr string) *token.Claims {
	return s.tokens.Verify(tokenStr)
}

// MetricsSnapshot returns a copy of all counters.
func (s *Service) MetricsSnapshot() MetricsSnapshot {
	return s.metrics.Snapshot()
}

// AuditDropped reports how many audit events were shed under load.
func (s *Service) AuditDropped() uint64 {
	return s.audit.Dropped()
}

// Close flushes the audit dispatcher. The Service must not be used
// afterwards.
func (s *Service) Close() {
	s.audit.Close()
}
