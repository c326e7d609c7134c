package identity

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/PolarWolf314/rimu/internal/keys"
)

// Hardened is added to every index. ed25519 only supports hardened children.
const Hardened uint32 = 1 << 31

// MaxIndex is the largest index a path component may carry.
const MaxIndex = Hardened - 1

// Purpose is the first path component of every rimu identity.
const Purpose uint32 = 7411

var masterHMACKey = []byte("ed25519 seed")

// Path is a derivation path. Components are stored without the hardened
// offset and always derived hardened.
type Path []uint32

// UserPath returns m/7411'/user'.
func UserPath(user uint32) Path {
	return Path{Purpose, user}
}

// DevicePath returns m/7411'/user'/device'.
func DevicePath(user, device uint32) Path {
	return Path{Purpose, user, device}
}

func (p Path) String() string {
	var b strings.Builder
	b.WriteString("m")
	for _, i := range p {
		b.WriteString("/")
		b.WriteString(strconv.FormatUint(uint64(i), 10))
		b.WriteString("'")
	}
	return b.String()
}

// ParsePath parses the output of Path.String.
func ParsePath(s string) (Path, error) {
	parts := strings.Split(s, "/")
	if parts[0] != "m" {
		return nil, fmt.Errorf("derivation path %q must start with m", s)
	}

	p := make(Path, 0, len(parts)-1)
	for _, part := range parts[1:] {
		if !strings.HasSuffix(part, "'") {
			return nil, fmt.Errorf("derivation path %q: component %q is not hardened", s, part)
		}
		n, err := strconv.ParseUint(strings.TrimSuffix(part, "'"), 10, 32)
		if err != nil || uint32(n) > MaxIndex {
			return nil, fmt.Errorf("derivation path %q: invalid component %q", s, part)
		}
		p = append(p, uint32(n))
	}
	return p, nil
}

func (p Path) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Path) UnmarshalText(text []byte) error {
	parsed, err := ParsePath(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Equal reports whether p and q name the same node.
func (p Path) Equal(q Path) bool {
	if len(p) != len(q) {
		return false
	}
	for i := range p {
		if p[i] != q[i] {
			return false
		}
	}
	return true
}

// IsStrictPrefixOf reports whether p is a proper ancestor of q.
func (p Path) IsStrictPrefixOf(q Path) bool {
	return len(p) < len(q) && p.Equal(q[:len(p)])
}

// Parent returns the path one level up, or nil for the master node.
func (p Path) Parent() Path {
	if len(p) == 0 {
		return nil
	}
	return append(Path(nil), p[:len(p)-1]...)
}

func (p Path) validate() error {
	for _, i := range p {
		if i > MaxIndex {
			return fmt.Errorf("derivation index %d exceeds %d", i, MaxIndex)
		}
	}
	return nil
}

// node is an extended private key: 32 bytes of key followed by 32 bytes of
// chain code.
type node [64]byte

func (n *node) key() []byte   { return n[:32] }
func (n *node) chain() []byte { return n[32:] }

func (n *node) wipe() {
	keys.WipeBytes(n[:])
}

func masterNode(seed []byte) *node {
	mac := hmac.New(sha512.New, masterHMACKey)
	mac.Write(seed)

	var n node
	mac.Sum(n[:0])
	return &n
}

func (n *node) child(index uint32) *node {
	var data [1 + 32 + 4]byte
	copy(data[1:], n.key())
	binary.BigEndian.PutUint32(data[33:], index+Hardened)

	mac := hmac.New(sha512.New, n.chain())
	mac.Write(data[:])
	keys.WipeBytes(data[:])

	var c node
	mac.Sum(c[:0])
	return &c
}

// deriveFrom walks rest starting at n. Intermediate nodes are wiped.
func deriveFrom(n *node, rest Path) *node {
	cur := &node{}
	*cur = *n
	for _, i := range rest {
		next := cur.child(i)
		cur.wipe()
		cur = next
	}
	return cur
}
