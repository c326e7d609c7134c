// Package configs manages repository configuration for rimu.
//
// Configuration is stored in TOML format inside the repository's .rimu
// directory:
//
//   - .rimu/config.toml: device identity, work factor, storage, chunking,
//     cipher and sync settings
//   - .rimu/keyring.toml: salt, work factor and passphrase verifier, written
//     by the keys package through SaveTOML
//
// # Device Section
//
// Every checkout is one device. The device has a human-readable name, a UUID
// that names its manifests in storage, and a derivation index below the user
// root. Two devices of the same user must not share an index.
//
// # Validation
//
// Validate checks documented ranges and reports ErrInvalidConfig. The work
// factor floor is enforced by the keys package when the root is derived.
//
// # Settings
//
// RepoRimuSettings holds the paths of the current repository. Call
// InitRepoSettings() before accessing it; it walks up the directory tree to
// find the nearest .rimu directory.
package configs
