package authcore

import (
	"context"
	"time"
)

// Mailer is the outbound mail collaborator. Implementations are called
// after the triggering state change is durably committed; a delivery
// failure is logged and never rolls the state change back.
type Mailer interface {
	SendOTPCode(ctx context.Context, to, code string, ttl time.Duration) error
	SendPasswordResetLink(ctx context.Context, to, rawToken string) error
}

// LoginRequest carries a credential pair.
type LoginRequest struct {
	Email    string
	Password string
}

// RegisterRequest carries a new account's details.
type RegisterRequest struct {
	Email    string
	Name     string
	Password string
}

// VerifyOTPRequest carries a challenge answer.
type VerifyOTPRequest struct {
	Email string
	Code  string
}

// ChangePasswordRequest starts the two-phase password change.
type ChangePasswordRequest struct {
	AccountID   string
	OldPassword string
	NewPassword string
}

// ConfirmPasswordChangeRequest completes the two-phase password change.
type ConfirmPasswordChangeRequest struct {
	AccountID string
	Code      string
}

// ResetPasswordRequest redeems a reset token.
type ResetPasswordRequest struct {
	Token       string
	NewPassword string
}

// ChallengeResult is returned by every operation that leaves an OTP
// challenge outstanding. Email is the plaintext address the code was
// sent to, decrypted for the caller's confirmation UI.
type ChallengeResult struct {
	OTPRequired bool
	Email       string
}

/// SessionResult is returned by the one path that authenticates: a
// successful OTP verification.
type SessionResult struct {
	AccountID string
	Role      string
	Token     string
}

// Profile is the decrypted view of an account's protected fields.
type Profile struct {
	AccountID     string
	Email         string
	Name          string
	Role          string
	EmailVerified bool
	CreatedAt     time.Time
}

// Export is the portable copy of everything the core stores about one
// account, decrypted where reversible. Produced for data-portability
// requests; hashes and secrets are deliberately absent.
type Export struct {
	AccountID     string    `json:"account_id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	Role          string    `json:"role"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
