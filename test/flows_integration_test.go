//go:build integration
// +build integration

package test

import (
	"context"
	"errors"
	"testing"

	authcore "github.com/medforge/authcore"
)

func TestFullLifecycleAgainstRedis(t *testing.T) {
	ctx := context.Background()
	svc, mail, cleanup := newIntegrationService(t)
	defer cleanup()

	const email = "ada@example.com"
	const pass = "Str0ng!Pass"

	// Register and verify.
	if _, err := svc.Register(ctx, authcore.RegisterRequest{
		Email:    email,
		Name:     "Ada Lovelace",
		Password: pass,
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	session, err := svc.VerifyOTP(ctx, authcore.VerifyOTPRequest{
		Email: email,
		Code:  mail.lastCode(t),
	})
	if err != nil {
		t.Fatalf("VerifyOTP failed: %v", err)
	}
	if svc.VerifyToken(session.Token) == nil {
		t.Fatal("issued token does not verify")
	}

	// Login issues a fresh challenge.
	res, err := svc.Login(ctx, authcore.LoginRequest{Email: email, Password: pass})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !res.OTPRequired {
		t.Fatal("login did not require a code")
	}

	session, err = svc.VerifyOTP(ctx, authcore.VerifyOTPRequest{
		Email: email,
		Code:  mail.lastCode(t),
	})
	if err != nil {
		t.Fatalf("VerifyOTP after login failed: %v", err)
	}

	// Two-phase password change.
	const changed = "N3w!Password"
	if _, err := svc.RequestPasswordChange(ctx, authcore.ChangePasswordRequest{
		AccountID:   session.AccountID,
		OldPassword: pass,
		NewPassword: changed,
	}); err != nil {
		t.Fatalf("RequestPasswordChange failed: %v", err)
	}
	if err := svc.ConfirmPasswordChange(ctx, authcore.ConfirmPasswordChangeRequest{
		AccountID: session.AccountID,
		Code:      mail.lastCode(t),
	}); err != nil {
		t.Fatalf("ConfirmPasswordChange failed: %v", err)
	}

	// The old password is dead, the new one works.
	if _, err := svc.Login(ctx, authcore.LoginRequest{Email: email, Password: pass}); !errors.Is(err, authcore.ErrInvalidCredentials) {
		t.Fatalf("login with old password err = %v", err)
	}
	if _, err := svc.Login(ctx, authcore.LoginRequest{Email: email, Password: changed}); err != nil {
		t.Fatalf("login with changed password failed: %v", err)
	}

	// Reset by mail.
	if err := svc.ForgotPassword(ctx, email); err != nil {
		t.Fatalf("ForgotPassword failed: %v", err)
	}
	const reset = "R3set!Password"
	if err := svc.ResetPassword(ctx, authcore.ResetPasswordRequest{
		Token:       mail.lastToken(t),
		NewPassword: reset,
	}); err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}
	if _, err := svc.Login(ctx, authcore.LoginRequest{Email: email, Password: reset}); err != nil {
		t.Fatalf("login after reset failed: %v", err)
	}

	// The reset token is single use.
	err = svc.ResetPassword(ctx, authcore.ResetPasswordRequest{
		Token:       mail.lastToken(t),
		NewPassword: "An0ther!Pass",
	})
	if !errors.Is(err, authcore.ErrInvalidResetToken) {
		t.Fatalf("second reset err = %v", err)
	}
}

func TestLockoutAgainstRedis(t *testing.T) {
	ctx := context.Background()
	svc, mail, cleanup := newIntegrationService(t)
	defer cleanup()

	const email = "bob@example.com"
	const pass = "Str0ng!Pass"

	if _, err := svc.Register(ctx, authcore.RegisterRequest{
		Email:    email,
		Name:     "Bob Stone",
		Password: pass,
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, err := svc.VerifyOTP(ctx, authcore.VerifyOTPRequest{
		Email: email,
		Code:  mail.lastCode(t),
	}); err != nil {
		t.Fatalf("VerifyOTP failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		_, err := svc.Login(ctx, authcore.LoginRequest{Email: email, Password: "wrong-pass"})
		if err == nil {
			t.Fatal("wrong password accepted")
		}
	}

	// Locked now, even with the right password.
	if _, err := svc.Login(ctx, authcore.LoginRequest{Email: email, Password: pass}); !errors.Is(err, authcore.ErrAccountLocked) {
		t.Fatalf("login during lockout err = %v", err)
	}
}
