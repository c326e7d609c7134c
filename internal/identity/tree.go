package identity

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	kerrors "github.com/PolarWolf314/rimu/internal/errors"
)

// Node is one identity in a Tree.
type Node struct {
	Public ed25519.PublicKey
	Parent ed25519.PublicKey
	Path   Path
	Name   string

	// RevokedAt is the earliest revocation applied to the node, if any.
	RevokedAt *time.Time
}

// Anchor reports whether the node is a trusted root rather than enrolled.
func (n Node) Anchor() bool {
	return n.Parent == nil
}

// RevokedBy reports whether the node is revoked at time at.
func (n Node) RevokedBy(at time.Time) bool {
	return n.RevokedAt != nil && !at.Before(*n.RevokedAt)
}

// Tree is the set of identities a device trusts. Every lookup walks the
// ancestor chain, so a revocation takes effect on the next check.
type Tree struct {
	mu          sync.RWMutex
	nodes       map[string]*Node
	revocations []RevocationRecord
}

func NewTree() *Tree {
	return &Tree{nodes: make(map[string]*Node)}
}

func nodeKey(pub ed25519.PublicKey) string {
	return hex.EncodeToString(pub)
}

// AddAnchor trusts root unconditionally. Anchors are user roots derived
// locally from the passphrase.
func (t *Tree) AddAnchor(root *Identity, name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := nodeKey(root.public)
	if _, ok := t.nodes[k]; ok {
		return
	}
	t.nodes[k] = &Node{Public: root.PublicKey(), Path: root.Path(), Name: name}
}

// Enroll adds the child named by e. The parent must already be in the tree
// and must not have been revoked when it signed.
func (t *Tree) Enroll(e *Enrollment) error {
	if err := e.Verify(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	parent, ok := t.nodes[nodeKey(e.Parent)]
	if !ok {
		return fmt.Errorf("%w: enrollment of %s by unknown parent %s", kerrors.ErrTrust, Fingerprint(e.Public), Fingerprint(e.Parent))
	}
	if !parent.Path.Equal(e.Path.Parent()) {
		return fmt.Errorf("%w: %s is not the parent of %s", kerrors.ErrNotAncestor, parent.Path, e.Path)
	}
	if err := t.checkChainLocked(parent, e.EnrolledAt); err != nil {
		return err
	}

	k := nodeKey(e.Public)
	if existing, ok := t.nodes[k]; ok {
		if !existing.Path.Equal(e.Path) || !bytes.Equal(existing.Parent, e.Parent) {
			return fmt.Errorf("%w: %s is already enrolled at %s", kerrors.ErrTrust, Fingerprint(e.Public), existing.Path)
		}
		if existing.Name == "" {
			existing.Name = e.Name
		}
		return nil
	}

	t.nodes[k] = &Node{
		Public: append(ed25519.PublicKey(nil), e.Public...),
		Parent: append(ed25519.PublicKey(nil), e.Parent...),
		Path:   append(Path(nil), e.Path...),
		Name:   e.Name,
	}
	return nil
}

// ApplyRevocation verifies r and marks its target revoked. Revocation is
// monotone: a later record never moves an existing revocation time forward,
// and nothing un-revokes a node.
func (t *Tree) ApplyRevocation(r *RevocationRecord) error {
	if err := r.Verify(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	target, ok := t.nodes[nodeKey(r.Target)]
	if !ok {
		return fmt.Errorf("%w: revocation of unknown identity %s", kerrors.ErrTrust, Fingerprint(r.Target))
	}
	if !target.Path.Equal(r.TargetPath) {
		return fmt.Errorf("%w: revocation names %s at %s, tree has %s", kerrors.ErrTrust, Fingerprint(r.Target), r.TargetPath, target.Path)
	}
	if !t.isAncestorLocked(r.Revoker, target) {
		return fmt.Errorf("%w: %s is not an ancestor of %s", kerrors.ErrNotAncestor, Fingerprint(r.Revoker), Fingerprint(r.Target))
	}
	revoker := t.nodes[nodeKey(r.Revoker)]
	if err := t.checkChainLocked(revoker, r.RevokedAt); err != nil {
		return err
	}

	at := r.RevokedAt
	if target.RevokedAt == nil || at.Before(*target.RevokedAt) {
		target.RevokedAt = &at
	}
	t.revocations = append(t.revocations, *r)
	return nil
}

// CheckSigner returns nil if pub is a known identity whose chain up to an
// anchor was not revoked at time at.
func (t *Tree) CheckSigner(pub ed25519.PublicKey, at time.Time) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n, ok := t.nodes[nodeKey(pub)]
	if !ok {
		return fmt.Errorf("%w: unknown signer %s", kerrors.ErrTrust, Fingerprint(pub))
	}
	return t.checkChainLocked(n, at)
}

// checkChainLocked walks from n to its anchor. The walk is bounded by the
// path depth.
func (t *Tree) checkChainLocked(n *Node, at time.Time) error {
	for depth := 0; depth <= len(n.Path); depth++ {
		if n.RevokedBy(at) {
			return fmt.Errorf("%w: %s was revoked at %s", kerrors.ErrTrust, Fingerprint(n.Public), n.RevokedAt.Format(time.RFC3339))
		}
		if n.Anchor() {
			return nil
		}
		parent, ok := t.nodes[nodeKey(n.Parent)]
		if !ok {
			return fmt.Errorf("%w: %s has no trusted parent", kerrors.ErrTrust, Fingerprint(n.Public))
		}
		n = parent
	}
	return fmt.Errorf("%w: ancestor chain of %s does not end at an anchor", kerrors.ErrTrust, Fingerprint(n.Public))
}

func (t *Tree) isAncestorLocked(pub ed25519.PublicKey, n *Node) bool {
	for depth := 0; depth <= len(n.Path) && !n.Anchor(); depth++ {
		if bytes.Equal(n.Parent, pub) {
			return true
		}
		parent, ok := t.nodes[nodeKey(n.Parent)]
		if !ok {
			return false
		}
		n = parent
	}
	return false
}

// Lookup returns the node for pub.
func (t *Tree) Lookup(pub ed25519.PublicKey) (Node, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n, ok := t.nodes[nodeKey(pub)]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// LookupPath returns the node at path.
func (t *Tree) LookupPath(path Path) (Node, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, n := range t.nodes {
		if n.Path.Equal(path) {
			return *n, true
		}
	}
	return Node{}, false
}

// Nodes returns every node ordered by path.
func (t *Tree) Nodes() []Node {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Node, 0, len(t.nodes))
	for _, n := range t.nodes {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Path.String() < out[j].Path.String()
	})
	return out
}

// Revocations returns every applied revocation record.
func (t *Tree) Revocations() []RevocationRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]RevocationRecord(nil), t.revocations...)
}
