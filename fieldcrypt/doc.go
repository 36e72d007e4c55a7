// Package fieldcrypt protects individual record fields at rest.
//
// It provides two primitives shared by every record type that carries
// personally identifiable or health information:
//
//   - Cipher: authenticated AES-256-GCM encryption of a single text
//     field, producing a self-contained envelope string.
//   - LookupHasher: a deterministic, peppered one-way hash of a
//     normalized value, used as an equality-searchable index for columns
//     whose plaintext is stored only in encrypted form.
//
// Ciphertext is non-deterministic (fresh nonce per call), so encrypted
// columns cannot be searched directly; the lookup hash is the only value
// ever used in equality queries.
package fieldcrypt
