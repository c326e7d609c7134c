package errors

import (
	"errors"
	"fmt"
)

// Key errors indicate problems deriving or using secret material.
var (
	// ErrKeyDerivation indicates a weak work factor, a malformed salt or an unknown label.
	ErrKeyDerivation = errors.New("key derivation failed")

	// ErrKeyWiped indicates a key handle was used after it was destroyed.
	ErrKeyWiped = errors.New("key material has been wiped")
)

// Verification errors indicate a cryptographic check did not pass.
var (
	// ErrAuthentication indicates an AEAD tag, content hash or passphrase check failed.
	ErrAuthentication = errors.New("authentication failed")

	// ErrIntegrity indicates a manifest signature mismatch or a malformed signed document.
	ErrIntegrity = errors.New("integrity check failed")

	// ErrUnsupportedFormat indicates an unknown envelope or manifest format version.
	ErrUnsupportedFormat = errors.New("unsupported format version")
)

// Trust errors indicate the signer of a document cannot be trusted.
var (
	// ErrTrust indicates an unknown or revoked signer.
	ErrTrust = errors.New("signer is not trusted")

	// ErrNotAncestor indicates a revoker is not a strict ancestor of its target.
	ErrNotAncestor = fmt.Errorf("%w: revoker is not an ancestor of the target identity", ErrTrust)
)

// Storage errors indicate issues with the blob backend.
var (
	// ErrNotFound indicates a chunk, manifest or backend object does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrTransient indicates a backend failure that may succeed on retry.
	ErrTransient = errors.New("transient backend failure")
)

// Repository errors indicate issues with local repository state.
var (
	// ErrNotInitialized indicates the directory has not been set up with rimu.
	ErrNotInitialized = errors.New("repository has not been initialized")

	// ErrAlreadyInitialized indicates the directory already contains a rimu repository.
	ErrAlreadyInitialized = errors.New("repository has already been initialized")

	// ErrInvalidConfig indicates the configuration is malformed or out of range.
	ErrInvalidConfig = errors.New("configuration is invalid")

	// ErrInvalidDeviceName indicates the device name contains unsupported characters.
	ErrInvalidDeviceName = errors.New("invalid device name")

	// ErrDeviceNotFound indicates no enrolled device matches the given name, fingerprint or path.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrDeviceIndexTaken indicates another device is already enrolled at the requested index.
	ErrDeviceIndexTaken = errors.New("device index is already enrolled")

	// ErrUnreadableHistory indicates a published manifest could not be opened, so
	// reachability cannot be computed safely.
	ErrUnreadableHistory = errors.New("manifest history is not fully readable")

	// ErrInvalidDateFormat indicates a journal date filter is not YYYY-MM-DD.
	ErrInvalidDateFormat = errors.New("invalid date format")
)

// ChunkError identifies the chunk an operation failed on.
type ChunkError struct {
	ID  string
	Err error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %s: %v", e.ID, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }

// ManifestError identifies the manifest an operation failed on.
type ManifestError struct {
	ID     string
	Device string
	Err    error
}

func (e *ManifestError) Error() string {
	if e.Device != "" {
		return fmt.Sprintf("manifest %s from device %s: %v", e.ID, e.Device, e.Err)
	}
	return fmt.Sprintf("manifest %s: %v", e.ID, e.Err)
}

func (e *ManifestError) Unwrap() error { return e.Err }

// Transient marks err as retryable while keeping it matchable with errors.Is.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// IsRetryable reports whether err may succeed if the operation is repeated.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAuthentication) || errors.Is(err, ErrIntegrity) || errors.Is(err, ErrTrust) {
		return false
	}
	return errors.Is(err, ErrTransient)
}
