// Package audit keeps the per-repository journal of rimu operations.
//
// Every push, pull, restore, enroll, revoke and gc is recorded so a user can
// see what a device did to the repository and when.
//
// # Log Format
//
// The journal is stored as JSON Lines at:
//
//	.rimu/journal.jsonl
//
// Each entry carries a UTC timestamp with microseconds, the device name and
// UUID, the operation name and operation-specific details such as manifest
// IDs, chunk counts, conflict paths or revoked fingerprints.
//
// # Usage
//
//	entry := audit.LogWithDevice("push", config)
//	entry.Manifest = manifestID
//	audit.Log(root, entry)
//
// # Failure Handling
//
// Journaling is best-effort. If the write fails the operation continues.
package audit
