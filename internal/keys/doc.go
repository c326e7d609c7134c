// Package keys derives and manages all secret material for a rimu repository.
//
// A single RootSecret is stretched from the user's passphrase with Argon2id.
// Every other key is derived from it (or from an intermediate key) with
// HKDF-SHA512 under a fixed, versioned label, so two uses of key material
// never share a key even though they share a root.
//
// # Handles
//
// RootSecret and DerivedKey values live in memguard locked buffers. They are
// exposed to other packages only through the Secret interface and must be
// released with Destroy (or Wipe) on every exit path:
//
//	root, err := keys.DeriveRoot(ctx, passphrase, salt, params, keys.MinParams)
//	if err != nil {
//	    return err
//	}
//	session := keys.NewSession(root)
//	defer session.Close()
//
// A Session owns the root and the per-label master keys for the duration of a
// sync run and wipes all of them in Close.
package keys
