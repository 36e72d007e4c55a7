package internaldefs

import (
	authcore "github.com/medforge/authcore"
)

// CounterDef binds one core counter to its exported metric name.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef binds one core histogram to its exported metric name.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: authcore.MetricLoginSuccess, Name: "authcore_login_success_total", Help: "Successful login password checks."},
	{ID: authcore.MetricLoginFailure, Name: "authcore_login_failure_total", Help: "Failed login attempts."},
	{ID: authcore.MetricLoginLocked, Name: "authcore_login_locked_total", Help: "Login attempts rejected by account lockout."},
	{ID: authcore.MetricRegisterSuccess, Name: "authcore_register_success_total", Help: "Successful registrations."},
	{ID: authcore.MetricRegisterDuplicate, Name: "authcore_register_duplicate_total", Help: "Registration attempts rejected as duplicate."},
	{ID: authcore.MetricOTPIssued, Name: "authcore_otp_issued_total", Help: "One-time codes issued."},
	{ID: authcore.MetricOTPVerified, Name: "authcore_otp_verified_total", Help: "Successful one-time code verifications."},
	{ID: authcore.MetricOTPFailure, Name: "authcore_otp_failure_total", Help: "Failed one-time code verifications."},
	{ID: authcore.MetricOTPAttemptsExceeded, Name: "authcore_otp_attempts_exceeded_total", Help: "Challenges invalidated by the attempt cap."},
	{ID: authcore.MetricOTPResend, Name: "authcore_otp_resend_total", Help: "One-time code resends."},
	{ID: authcore.MetricOTPResendCooldown, Name: "authcore_otp_resend_cooldown_total", Help: "Resend requests rejected by the cooldown."},
	{ID: authcore.MetricPasswordChangeRequested, Name: "authcore_password_change_requested_total", Help: "Password change requests."},
	{ID: authcore.MetricPasswordChangeCommitted, Name: "authcore_password_change_committed_total", Help: "Committed password changes."},
	{ID: authcore.MetricPasswordResetRequested, Name: "authcore_password_reset_requested_total", Help: "Password reset requests."},
	{ID: authcore.MetricPasswordResetCompleted, Name: "authcore_password_reset_completed_total", Help: "Completed password resets."},
	{ID: authcore.MetricPHIAccess, Name: "authcore_phi_access_total", Help: "Cross-account protected profile reads."},
	{ID: authcore.MetricAccountAnonymized, Name: "authcore_account_anonymized_total", Help: "Account anonymizations."},
	{ID: authcore.MetricAccountExported, Name: "authcore_account_exported_total", Help: "Account data exports."},
	{ID: authcore.MetricMailerFailure, Name: "authcore_mailer_failure_total", Help: "Failed mail deliveries."},
	{ID: authcore.MetricCryptoFailure, Name: "authcore_crypto_failure_total", Help: "Field decryption failures."},
}

var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricLoginLatency, Name: "authcore_login_latency_seconds", Help: "Login latency histogram."},
}

var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw bucket slice to the fixed
// bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to the cumulative form
// both exposition formats expect.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
