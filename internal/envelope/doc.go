// Package envelope seals and opens individual chunks with authenticated
// encryption.
//
// Two algorithms are supported and selected by the format byte stored in
// each envelope, so older envelopes stay readable after a migration:
//
//   - Format 1: XChaCha20-Poly1305, 24-byte nonce (software optimized)
//   - Format 2: AES-256-GCM, 12-byte nonce (hardware accelerated)
//
// # Nonce Modes
//
// Seal derives the nonce from the key's derivation label and the associated
// data (the chunk content ID). Re-sealing identical plaintext under the same
// key yields a byte-identical envelope, which is what makes content-addressed
// deduplication work. The cost is that anyone holding two envelopes can tell
// whether the underlying chunks are equal. Callers that must hide content
// equality use SealRandom, whose keys come from a separate label.
//
// # Wire Format
//
//	[format:1][nonce:N][ciphertext:var][tag:16][associated_data:var][ad_len:2]
//
// The tag authenticates the format byte together with the associated data.
package envelope
