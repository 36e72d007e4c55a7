package authcore

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/medforge/authcore/account"
)

// Register creates an account and issues the first OTP challenge. The
// role is fixed to the lowest privilege; privileged roles are assigned
// only through administrative tooling outside this flow.
//
// A taken address fails with ErrEmailExists. That is a deliberate
// enumeration leak, kept as a product decision; every other flow in
// this package is enumeration-safe.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*ChallengeResult, error) {
	if err := validateEmail(req.Email); err != nil {
		return nil, err
	}
	if err := validateName(req.Name); err != nil {
		return nil, err
	}
	if err := validatePassword(req.Password); err != nil {
		return nil, err
	}

	email := strings.TrimSpace(req.Email)
	emailCT, err := s.cipher.Encrypt(email)
	if err != nil {
		return nil, s.internalError("register: encrypt email", err)
	}
	nameCT, err := s.cipher.Encrypt(strings.TrimSpace(req.Name))
	if err != nil {
		return nil, s.internalError("register: encrypt name", err)
	}
	pwHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, s.internalError("register: hash password", err)
	}

	now := s.now()
	acct := &account.Account{
		ID:              uuid.NewString(),
		EmailCiphertext: emailCT,
		EmailLookupHash: s.lookup.Hash(email),
		NameCiphertext:  nameCT,
		PasswordHash:    pwHash,
		Role:            account.DefaultRole,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.Insert(ctx, acct); err != nil {
		if errors.Is(err, account.ErrDuplicateLookupHash) {
			s.metrics.Inc(MetricRegisterDuplicate)
			return nil, ErrEmailExists
		}
		return nil, s.internalError("register: insert", err)
	}

	s.metrics.Inc(MetricRegisterSuccess)
	s.auditEvent(ctx, AuditRegister, acct.ID, true, "", map[string]string{
		"role": string(acct.Role),
	})

	if err := s.issueOTP(ctx, acct.ID, email); err != nil {
		return nil, err
	}
	return &ChallengeResult{OTPRequired: true, Email: email}, nil
}
