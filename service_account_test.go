package authcore

import (
	"context"
	"errors"
	"testing"

	"github.com/medforge/authcore/account"
	"github.com/medforge/authcore/token"
)

func claimsFor(accountID, role string) *token.Claims {
	return &token.Claims{AccountID: accountID, Role: role}
}

func TestReadProtectedProfileSelf(t *testing.T) {
	svc, _, mail, _ := newTestService(t)
	ctx := context.Background()
	accountID := registerVerified(t, svc, mail)

	profile, err := svc.ReadProtectedProfile(ctx, claimsFor(accountID, "patient"), accountID)
	if err != nil {
		t.Fatalf("ReadProtectedProfile: %v", err)
	}
	if profile.Email != testEmail || profile.Name != testName {
		t.Fatalf("profile = %+v", profile)
	}
	if !profile.EmailVerified {
		t.Fatal("verified account reported unverified")
	}
}

func TestReadProtectedProfileRoleGate(t *testing.T) {
	svc, _, mail, _ := newTestService(t)
	ctx := context.Background()
	accountID := registerVerified(t, svc, mail)

	// A patient cannot read someone else's PII.
	_, err := svc.ReadProtectedProfile(ctx, claimsFor("other-patient", "patient"), accountID)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("patient cross-read: err = %v, want ErrPermissionDenied", err)
	}

	// Clinical roles can, and the read is audited.
	sink := NewChannelSink(8)
	svc2, mail2 := rebuildWithAudit(t, sink)
	accountID2 := registerVerified(t, svc2, mail2)

	if _, err := svc2.ReadProtectedProfile(ctx, claimsFor("dr-1", "doctor"), accountID2); err != nil {
		t.Fatalf("doctor cross-read: %v", err)
	}
	svc2.Close()

	found := false
drain:
	for {
		select {
		case ev := <-sink.Events():
			if ev.EventType == AuditPHIAccess && ev.AccountID == accountID2 && ev.ActorID == "dr-1" {
				found = true
			}
		default:
			break drain
		}
	}
	if !found {
		t.Fatal("cross-account read emitted no PHI access event")
	}
}

func TestReadProtectedProfileNilClaims(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	_, err := svc.ReadProtectedProfile(context.Background(), nil, "any")
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("err = %v, want ErrPermissionDenied", err)
	}
}

func TestAnonymizeAccount(t *testing.T) {
	svc, store, mail, _ := newTestService(t)
	ctx := context.Background()
	accountID := registerVerified(t, svc, mail)

	// A non-admin stranger may not erase the account.
	err := svc.AnonymizeAccount(ctx, claimsFor("stranger", "nurse"), accountID)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("nurse anonymize: err = %v, want ErrPermissionDenied", err)
	}

	// Self-erasure is allowed.
	if err := svc.AnonymizeAccount(ctx, claimsFor(accountID, "patient"), accountID); err != nil {
		t.Fatalf("AnonymizeAccount: %v", err)
	}

	acct, err := store.FindByID(ctx, accountID)
	if err != nil {
		t.Fatalf("row must survive anonymization: %v", err)
	}
	if !acct.Anonymized() {
		t.Fatal("account not anonymized")
	}

	// The erased account can never authenticate again, and the response
	// shape matches an unknown address.
	_, err = svc.Login(ctx, LoginRequest{Email: testEmail, Password: testPassword})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("login after erasure: err = %v, want ErrInvalidCredentials", err)
	}
	if err := svc.ResendOTP(ctx, testEmail); err != nil {
		t.Fatalf("resend after erasure: %v, want silent success", err)
	}

	// The freed address can be registered again.
	if _, err := svc.Register(ctx, RegisterRequest{Email: testEmail, Name: "New Person", Password: "Another!Pass1"}); err != nil {
		t.Fatalf("re-register freed address: %v", err)
	}
}

func TestExportAccountData(t *testing.T) {
	svc, _, mail, _ := newTestService(t)
	ctx := context.Background()
	accountID := registerVerified(t, svc, mail)

	export, err := svc.ExportAccountData(ctx, claimsFor(accountID, "patient"), accountID)
	if err != nil {
		t.Fatalf("ExportAccountData: %v", err)
	}
	if export.Email != testEmail || export.Name != testName || export.Role != "patient" {
		t.Fatalf("export = %+v", export)
	}

	// Doctors are not data controllers; only admins export others.
	_, err = svc.ExportAccountData(ctx, claimsFor("dr-1", "doctor"), accountID)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("doctor export: err = %v, want ErrPermissionDenied", err)
	}
	if _, err := svc.ExportAccountData(ctx, claimsFor("admin-1", "admin"), accountID); err != nil {
		t.Fatalf("admin export: %v", err)
	}
}

// rebuildWithAudit constructs a second service wired to an audit sink.
func rebuildWithAudit(t *testing.T, sink AuditSink) (*Service, *mockMailer) {
	t.Helper()
	mail := &mockMailer{}
	clock := newFakeClock()
	svc, err := New().
		WithConfig(testConfig()).
		WithStore(account.NewMemoryStore()).
		WithMailer(mail).
		WithAuditSink(sink).
		WithLogger(quietLogger()).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return svc, mail
}
