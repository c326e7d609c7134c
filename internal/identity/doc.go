// Package identity manages hierarchical deterministic signing identities.
//
// Every identity is an ed25519 key pair derived with SLIP-10 from a seed that
// comes out of the key hierarchy. A user root lives at m/7411'/u' and each of
// its devices at m/7411'/u'/d', so a lost device key can be re-derived from
// the passphrase and the device index.
//
// Trust is modelled as an explicit Tree of public keys. A user root is a
// trust anchor, devices join through an Enrollment signed by their parent,
// and a RevocationRecord signed by a strict ancestor marks a device revoked
// from a point in time onwards. Revocation is terminal.
package identity
