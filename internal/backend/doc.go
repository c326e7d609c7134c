// Package backend persists opaque encrypted blobs by key.
//
// The sync core only needs put, get, list and delete over string keys, so the
// same code runs over a local directory, a SQLite file or an in-memory map.
// Every operation is idempotent: putting the same key twice stores the same
// bytes, deleting a missing key succeeds. That makes all calls safe to retry,
// which Retrying does for errors marked transient.
//
// Keys are slash-separated, for example "chunks/bafkr..." or
// "manifests/<device>/00000001".
package backend
