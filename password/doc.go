// Package password implements slow credential hashing and verification
// with Argon2id defaults.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password policy
// (length, equality with the previous password) belongs to the caller's
// validation layer, because the same primitive also hashes short numeric
// one-time codes.
//
// The [Hasher] additionally exposes a precomputed [Hasher.DummyHash] so
// login paths can burn an equivalent verification cost when no account
// matches, keeping failure latency independent of account existence.
package password
