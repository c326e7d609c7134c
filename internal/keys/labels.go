package keys

import "strings"

// Label names a derived-key use case. Labels are versioned so that adding a
// new use case never collides with an existing one.
type Label string

const labelNamespace = "rimu/v1/"

const (
	// LabelChunkEncryption is the master key for deduplicated chunk envelopes.
	LabelChunkEncryption Label = labelNamespace + "chunk-encryption"

	// LabelChunkPrivate is the master key for randomized-nonce chunk envelopes.
	LabelChunkPrivate Label = labelNamespace + "chunk-private"

	// LabelContentID keys the content hash so storage observers cannot confirm plaintext guesses.
	LabelContentID Label = labelNamespace + "content-id"

	// LabelChunkNonce is the domain for deterministic nonce derivation.
	LabelChunkNonce Label = labelNamespace + "chunk-nonce"

	// LabelChunkerPolynomial seeds the rolling-hash polynomial for chunk boundaries.
	LabelChunkerPolynomial Label = labelNamespace + "chunker-polynomial"

	// LabelIdentitySeed seeds the hierarchical signing keys.
	LabelIdentitySeed Label = labelNamespace + "identity-seed"

	// LabelManifestEncryption encrypts manifests at rest with randomized nonces.
	LabelManifestEncryption Label = labelNamespace + "manifest-encryption"

	// LabelKeyringVerifier checks a passphrase before any chunk is touched.
	LabelKeyringVerifier Label = labelNamespace + "keyring-verifier"
)

var registeredLabels = map[Label]struct{}{
	LabelChunkEncryption:    {},
	LabelChunkPrivate:       {},
	LabelContentID:          {},
	LabelChunkNonce:         {},
	LabelChunkerPolynomial:  {},
	LabelIdentitySeed:       {},
	LabelManifestEncryption: {},
	LabelKeyringVerifier:    {},
}

// Valid reports whether l is a registered label.
func (l Label) Valid() bool {
	if strings.ContainsRune(string(l), 0) {
		return false
	}
	_, ok := registeredLabels[l]
	return ok
}

func (l Label) String() string {
	return string(l)
}

// Labels returns every registered label.
func Labels() []Label {
	out := make([]Label, 0, len(registeredLabels))
	for l := range registeredLabels {
		out = append(out, l)
	}
	return out
}
