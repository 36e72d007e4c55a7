// Package middleware exposes HTTP middleware adapters for bearer-token
// authentication and role-based route guards built on top of
// authcore.Service token verification.
//
// # Guards
//
//   - [Guard] — verifies the Authorization bearer token and injects the
//     session claims into the request context.
//   - [RequireRole] — layered on Guard, rejects callers whose role is
//     not in the allowed set.
//
// Each guard reads the Authorization header, calls Service.VerifyToken,
// and injects the validated claims plus the caller's IP and user agent
// into the request context for audit attribution.
//
// # What this package must NOT do
//
//   - Parse or create session tokens directly (delegates to Service).
//   - Touch the account store.
//   - Make authorization decisions beyond the configured role set.
package middleware
