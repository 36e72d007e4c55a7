package authcore

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials is the generic login failure. It is returned
	// both when no account matches the email and when the password is
	// wrong, so the two cases are externally indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmailExists is returned by Register when the address is taken.
	ErrEmailExists = errors.New("email already exists")
	// ErrAccountLocked is returned while a lockout window is active.
	ErrAccountLocked = errors.New("account locked")
	// ErrInvalidOTP covers absent, expired, and mismatched codes alike.
	ErrInvalidOTP = errors.New("invalid code")
	// ErrTooManyOTPAttempts is returned once the per-code attempt bound
	// is exhausted.
	ErrTooManyOTPAttempts = errors.New("too many attempts")
	// ErrResendCooldown is returned when a resend arrives inside the
	// cooldown window.
	ErrResendCooldown = errors.New("resend cooldown active")
	// ErrNoPendingPasswordChange is returned by the confirm phase when
	// no change is staged or the staged change has expired.
	ErrNoPendingPasswordChange = errors.New("no pending password change")
	// ErrSamePassword rejects a password change where old and new match.
	ErrSamePassword = errors.New("new password must differ from current password")
	// ErrWeakPassword rejects passwords failing the policy.
	ErrWeakPassword = errors.New("password does not meet policy")
	// ErrInvalidResetToken covers wrong and expired reset tokens with one
	// message.
	ErrInvalidResetToken = errors.New("invalid or expired token")
	// ErrMalformedInput is returned for structurally invalid requests.
	ErrMalformedInput = errors.New("malformed input")
	// ErrPermissionDenied is returned when the caller's role does not
	// allow the operation. No detail on the required role is exposed.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrInternal replaces crypto and storage failures at the boundary.
	// The underlying cause is logged, never surfaced.
	ErrInternal = errors.New("internal error")
)

// LockoutError carries the retry hint for an active lockout window. It
// matches ErrAccountLocked under errors.Is.
type LockoutError struct {
	LockedUntil time.Time
	Retry       time.Duration
}

func (e *LockoutError) Error() string {
	minutes := int(e.Retry.Minutes())
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("account locked, retry after %d minutes", minutes)
}

func (e *LockoutError) Is(target error) bool {
	return target == ErrAccountLocked
}

// CooldownError carries the retry hint for the resend cooldown. It
// matches ErrResendCooldown under errors.Is.
type CooldownError struct {
	RetryAfter time.Duration
}

func (e *CooldownError) Error() string {
	secs := int(e.RetryAfter.Seconds())
	if secs < 1 {
		secs = 1
	}
	return fmt.Sprintf("please wait %d seconds before requesting a new code", secs)
}

func (e *CooldownError) Is(target error) bool {
	return target == ErrResendCooldown
}

// ErrorClass partitions errors for the request boundary: each class maps
// onto one transport-level response shape.
type ErrorClass int

const (
	ClassUnknown ErrorClass = iota
	// ClassValidation covers malformed input; the message is safe to show.
	ClassValidation
	// ClassAuthentication covers credential, OTP, and reset failures;
	// messages are deliberately generic.
	ClassAuthentication
	// ClassAuthorization covers role failures.
	ClassAuthorization
	// ClassRateLimit covers cooldowns, attempt bounds, and lockouts;
	// errors in this class may carry a retry hint.
	ClassRateLimit
	// ClassInternal covers crypto and storage faults. Never expose the
	// underlying message.
	ClassInternal
)

// ClassOf maps an error from any Service operation onto its class.
func ClassOf(err error) ErrorClass {
	switch {
	case err == nil:
		return ClassUnknown
	case errors.Is(err, ErrMalformedInput), errors.Is(err, ErrWeakPassword), errors.Is(err, ErrSamePassword):
		return ClassValidation
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrInvalidOTP),
		errors.Is(err, ErrInvalidResetToken), errors.Is(err, ErrEmailExists),
		errors.Is(err, ErrNoPendingPasswordChange):
		return ClassAuthentication
	case errors.Is(err, ErrPermissionDenied):
		return ClassAuthorization
	case errors.Is(err, ErrAccountLocked), errors.Is(err, ErrResendCooldown),
		errors.Is(err, ErrTooManyOTPAttempts):
		return ClassRateLimit
	case errors.Is(err, ErrInternal):
		return ClassInternal
	default:
		return ClassUnknown
	}
}
