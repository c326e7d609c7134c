// Package workflows provides high-level orchestration for rimu commands.
//
// Workflows coordinate the key hierarchy, chunk store, identity tree and
// manifest packages to implement complete user-facing features. Each
// workflow handles a single command's logic, independent of CLI concerns
// like flag parsing, spinners and output formatting.
//
// # Design Philosophy
//
// The cmd/ package should be a thin layer that:
//   - Parses command-line flags and arguments
//   - Reads the passphrase
//   - Calls the appropriate workflow function
//   - Formats the result for display
//
// Workflows handle everything else:
//   - Locating the repository and loading its config
//   - Unlocking the keyring and wiping keys afterwards
//   - Performing the core operation
//   - Recording journal entries
//
// # Available Workflows
//
//   - Init: creates a repository, joining an existing store when it has a keyring
//   - Push: chunks changed files and publishes a signed manifest
//   - Pull: merges every trusted manifest into the working tree
//   - Sync: Push followed by Pull
//   - Restore and History: read files back from any retained manifest
//   - Enroll, Revoke and Devices: manage the device trust tree
//   - GC: prunes old manifests and unreferenced chunks
//   - Status and Log: inspect local state without the passphrase
//
// # Error Handling
//
// Workflows return typed errors from the internal/errors package so the CLI
// can choose a message without string matching:
//
//	result, err := workflows.Pull(ctx, opts)
//	if errors.Is(err, kerrors.ErrAuthentication) {
//	    // wrong passphrase
//	}
package workflows
