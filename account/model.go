// Package account defines the protected account entity and the storage
// contract the auth flows run against.
//
// PII fields are held only in encrypted or hashed form. The email
// address itself is never stored in the clear: equality search runs
// against the peppered lookup hash and the ciphertext is decrypted only
// for authorized reads and mail dispatch.
package account

import "time"

// Role is an account's privilege tier.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleDoctor  Role = "doctor"
	RoleNurse   Role = "nurse"
	RolePatient Role = "patient"
)

// DefaultRole is the lowest-privilege role, assigned on self-service
// registration.
const DefaultRole = RolePatient

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDoctor, RoleNurse, RolePatient:
		return true
	}
	return false
}

// Account is the persisted entity. Nullable columns are pointers; a nil
// pointer means the column is null.
type Account struct {
	ID              string
	EmailCiphertext string
	EmailLookupHash string
	NameCiphertext  string
	PasswordHash    string
	Role            Role
	EmailVerifiedAt *time.Time

	// OTP challenge sub-state. OTPHash and OTPExpiresAt are both nil or
	// both set; OTPAttempts resets to zero whenever a new code is issued.
	OTPHash       *string
	OTPExpiresAt  *time.Time
	OTPLastSentAt *time.Time
	OTPAttempts   int

	// Pending password-change sub-state, outstanding only while an OTP
	// confirmation for a password change is in flight.
	PendingPasswordHash      *string
	PendingPasswordExpiresAt *time.Time

	// Password-reset sub-state. Only the token's one-way hash is stored.
	ResetTokenHash      *string
	ResetTokenExpiresAt *time.Time

	// Lockout sub-state.
	LoginAttempts    int
	LoginLockedUntil *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasActiveOTP reports whether an OTP challenge is currently assigned.
// Expiry is checked separately by the caller.
func (a *Account) HasActiveOTP() bool {
	return a.OTPHash != nil && a.OTPExpiresAt != nil
}

// Locked reports whether the account is inside an active lockout window.
func (a *Account) Locked(now time.Time) bool {
	return a.LoginLockedUntil != nil && now.Before(*a.LoginLockedUntil)
}

// Anonymized reports whether the account has been irreversibly wiped.
// An anonymized account keeps its row for referential integrity but can
// never authenticate again.
func (a *Account) Anonymized() bool {
	return a.PasswordHash == ""
}

// Clone returns a deep copy. Stores hand out clones so callers can
// never mutate shared state through a returned record.
func (a *Account) Clone() *Account {
	cp := *a
	cp.EmailVerifiedAt = cloneTime(a.EmailVerifiedAt)
	cp.OTPHash = cloneString(a.OTPHash)
	cp.OTPExpiresAt = cloneTime(a.OTPExpiresAt)
	cp.OTPLastSentAt = cloneTime(a.OTPLastSentAt)
	cp.PendingPasswordHash = cloneString(a.PendingPasswordHash)
	cp.PendingPasswordExpiresAt = cloneTime(a.PendingPasswordExpiresAt)
	cp.ResetTokenHash = cloneString(a.ResetTokenHash)
	cp.ResetTokenExpiresAt = cloneTime(a.ResetTokenExpiresAt)
	cp.LoginLockedUntil = cloneTime(a.LoginLockedUntil)
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}
