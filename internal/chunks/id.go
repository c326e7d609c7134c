package chunks

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// IDSize is the length of a chunk digest.
const IDSize = 32

const keyPrefix = "chunks/"

// ID is the content hash of a chunk.
type ID [IDSize]byte

// String renders id as a CIDv1 with the raw codec and a BLAKE3 multihash.
func (id ID) String() string {
	mh, err := multihash.Encode(id[:], multihash.BLAKE3)
	if err != nil {
		// Encoding a fixed-size digest with a registered code cannot fail.
		return hex.EncodeToString(id[:])
	}
	return cid.NewCidV1(cid.Raw, mh).String()
}

// Short returns a prefix of the hex digest for log lines.
func (id ID) Short() string {
	return hex.EncodeToString(id[:6])
}

// Key returns the backend key of the chunk.
func (id ID) Key() string {
	return keyPrefix + id.String()
}

func (id ID) IsZero() bool {
	return id == ID{}
}

// ParseID parses the output of ID.String.
func ParseID(s string) (ID, error) {
	var id ID

	c, err := cid.Decode(s)
	if err != nil {
		return id, fmt.Errorf("parsing chunk id %q: %w", s, err)
	}
	if c.Type() != cid.Raw {
		return id, fmt.Errorf("parsing chunk id %q: unexpected codec %d", s, c.Type())
	}

	dh, err := multihash.Decode(c.Hash())
	if err != nil {
		return id, fmt.Errorf("parsing chunk id %q: %w", s, err)
	}
	if dh.Code != multihash.BLAKE3 || len(dh.Digest) != IDSize {
		return id, fmt.Errorf("parsing chunk id %q: not a %d-byte blake3 digest", s, IDSize)
	}

	copy(id[:], dh.Digest)
	return id, nil
}

// IDFromKey extracts the chunk ID from a backend key.
func IDFromKey(key string) (ID, error) {
	if !strings.HasPrefix(key, keyPrefix) {
		return ID{}, fmt.Errorf("not a chunk key: %q", key)
	}
	return ParseID(strings.TrimPrefix(key, keyPrefix))
}

const privatePrefix = "private:"

// Ref is what a manifest records for one chunk of a file.
type Ref struct {
	ID ID

	// Private marks a chunk stored without deduplication.
	Private bool
}

func (r Ref) String() string {
	if r.Private {
		return privatePrefix + r.ID.String()
	}
	return r.ID.String()
}

func (r Ref) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Ref) UnmarshalText(text []byte) error {
	s := string(text)
	private := strings.HasPrefix(s, privatePrefix)
	id, err := ParseID(strings.TrimPrefix(s, privatePrefix))
	if err != nil {
		return err
	}
	*r = Ref{ID: id, Private: private}
	return nil
}
