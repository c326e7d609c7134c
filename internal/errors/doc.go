// Package errors provides typed error values for rimu.
//
// Using sentinel errors allows callers to handle specific error conditions
// programmatically with errors.Is() rather than string matching.
//
// # Error Categories
//
//   - Key errors: weak work factors, malformed salts, wiped handles (ErrKeyDerivation, ErrKeyWiped)
//   - Verification errors: AEAD and signature failures (ErrAuthentication, ErrIntegrity)
//   - Trust errors: unknown or revoked signers (ErrTrust, ErrNotAncestor)
//   - Storage errors: missing objects and transient backend failures (ErrNotFound, ErrTransient)
//   - Repository errors: configuration and initialization state (ErrNotInitialized)
//
// Verification failures are never retried: retrying cannot change the outcome
// of a deterministic check. Only ErrTransient is eligible for retry.
//
// # Usage
//
// Wrap sentinels with the identifier of the offending object, never with
// plaintext or key material:
//
//	return &errors.ChunkError{ID: id.String(), Err: errors.ErrAuthentication}
//
// Handle errors in the CLI layer:
//
//	if errors.Is(err, kerrors.ErrTrust) {
//	    // skip this manifest, keep processing the others
//	}
package errors
