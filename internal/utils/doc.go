// Package utils provides shared helpers used across rimu's packages.
//
// # Filesystem Utilities
//
//   - FindRepoRoot: walks up directories to find the nearest .rimu
//   - FormatPaths: formats file paths for human-readable output
//
// # System Utilities
//
//   - SanitizeDeviceName, UniqueDeviceName
//   - GenerateDeviceName: derives an unused device name from the hostname
//   - IsValidDeviceName
//
// # Terminal and I/O Utilities
//
//   - ReadPassphrase: hidden passphrase input from the terminal
//   - ReadStdin, ReadSecretLine: read a piped passphrase
//   - IsTerminal
package utils
