package authcore

import (
	"context"
	"errors"

	"github.com/medforge/authcore/account"
	"github.com/medforge/authcore/internal"
	"github.com/medforge/authcore/token"
)

// anonymizedLookupBytes sizes the random placeholder written over an
// anonymized account's lookup hash.
const anonymizedLookupBytes = 32

func canReadOther(role account.Role) bool {
	switch role {
	case account.RoleAdmin, account.RoleDoctor, account.RoleNurse:
		return true
	}
	return false
}

// ReadProtectedProfile decrypts an account's PII for an authorized
// caller. Accounts always read their own profile; clinical and admin
// roles read others, and every such cross-account read emits a PHI
// access audit event.
func (s *Service) ReadProtectedProfile(ctx context.Context, actor *token.Claims, targetAccountID string) (*Profile, error) {
	if actor == nil {
		return nil, ErrPermissionDenied
	}
	if actor.AccountID != targetAccountID && !canReadOther(account.Role(actor.Role)) {
		return nil, ErrPermissionDenied
	}

	acct, err := s.store.FindByID(ctx, targetAccountID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil, ErrPermissionDenied
		}
		return nil, s.internalError("read profile: lookup", err)
	}

	email, err := s.decryptField(acct.EmailCiphertext, acct.ID, "email")
	if err != nil {
		return nil, err
	}
	name, err := s.decryptField(acct.NameCiphertext, acct.ID, "name")
	if err != nil {
		return nil, err
	}

	if actor.AccountID != targetAccountID {
		s.metrics.Inc(MetricPHIAccess)
		s.auditEvent(WithActorID(ctx, actor.AccountID), AuditPHIAccess, targetAccountID, true, "", map[string]string{
			"actor_role": actor.Role,
		})
	}

	return &Profile{
		AccountID:     acct.ID,
		Email:         email,
		Name:          name,
		Role:          string(acct.Role),
		EmailVerified: acct.EmailVerifiedAt != nil,
		CreatedAt:     acct.CreatedAt,
	}, nil
}

// AnonymizeAccount irreversibly erases an account's PII while keeping
// the row for referential integrity with historical records. The
// account can never authenticate again. Accounts may erase themselves;
// otherwise the actor must be an admin.
func (s *Service) AnonymizeAccount(ctx context.Context, actor *token.Claims, targetAccountID string) error {
	if actor == nil {
		return ErrPermissionDenied
	}
	if actor.AccountID != targetAccountID && account.Role(actor.Role) != account.RoleAdmin {
		return ErrPermissionDenied
	}

	if _, err := s.store.FindByID(ctx, targetAccountID); err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return ErrPermissionDenied
		}
		return s.internalError("anonymize: lookup", err)
	}

	// The placeholder is random so the freed slot can never collide
	// with a real address.
	opaque, err := internal.NewOpaqueHex(anonymizedLookupBytes)
	if err != nil {
		return s.internalError("anonymize: placeholder", err)
	}
	fields := account.AnonymizedFields{
		EmailCiphertext: "",
		EmailLookupHash: opaque,
		NameCiphertext:  "",
	}
	if err := s.store.Anonymize(ctx, targetAccountID, fields); err != nil {
		return s.internalError("anonymize: apply", err)
	}

	s.metrics.Inc(MetricAccountAnonymized)
	s.auditEvent(WithActorID(ctx, actor.AccountID), AuditAccountAnonymize, targetAccountID, true, "", map[string]string{
		"actor_role": actor.Role,
	})
	return nil
}

// ExportAccountData produces a portable decrypted copy of everything
// the core stores about one account. Secrets and hashes are excluded.
// Accounts export themselves; admins may export any account, and every
// export emits an audit event.
func (s *Service) ExportAccountData(ctx context.Context, actor *token.Claims, targetAccountID string) (*Export, error) {
	if actor == nil {
		return nil, ErrPermissionDenied
	}
	if actor.AccountID != targetAccountID && account.Role(actor.Role) != account.RoleAdmin {
		return nil, ErrPermissionDenied
	}

	acct, err := s.store.FindByID(ctx, targetAccountID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil, ErrPermissionDenied
		}
		return nil, s.internalError("export: lookup", err)
	}

	email, err := s.decryptField(acct.EmailCiphertext, acct.ID, "email")
	if err != nil {
		return nil, err
	}
	name, err := s.decryptField(acct.NameCiphertext, acct.ID, "name")
	if err != nil {
		return nil, err
	}

	s.metrics.Inc(MetricAccountExported)
	s.auditEvent(WithActorID(ctx, actor.AccountID), AuditAccountExport, targetAccountID, true, "", nil)

	return &Export{
		AccountID:     acct.ID,
		Email:         email,
		Name:          name,
		Role:          string(acct.Role),
		EmailVerified: acct.EmailVerifiedAt != nil,
		CreatedAt:     acct.CreatedAt,
		UpdatedAt:     acct.UpdatedAt,
	}, nil
}
