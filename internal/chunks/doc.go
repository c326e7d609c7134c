// Package chunks turns file contents into encrypted, content-addressed chunks.
//
// Files are split with content-defined chunking, so an edit only changes the
// chunks next to it. Each chunk is identified by a keyed BLAKE3 digest of its
// plaintext and sealed into an envelope whose key and nonce are both derived
// from that digest. Identical chunks therefore produce identical envelopes and
// are stored once, across files and across devices of the same user.
//
// Chunks that must not reveal content equality are stored with PutPrivate:
// random nonce, a key from a separate label, and an address computed from the
// ciphertext instead of the plaintext.
//
// IDs render as CIDv1 strings (raw codec, BLAKE3 multihash), for example
// "bafkr4i...". The backend key of a chunk is "chunks/<cid>".
package chunks
