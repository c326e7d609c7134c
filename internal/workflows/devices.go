package workflows

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/PolarWolf314/rimu/internal/audit"
	kerrors "github.com/PolarWolf314/rimu/internal/errors"
	"github.com/PolarWolf314/rimu/internal/identity"
	"github.com/PolarWolf314/rimu/internal/utils"
)

// Device describes an identity in the trust tree.
type Device struct {
	Name        string
	Fingerprint string
	Path        string
	RevokedAt   *time.Time
	Anchor      bool

	// Current is true for the device running the workflow.
	Current bool
}

// EnrollOptions configures the enroll workflow.
type EnrollOptions struct {
	RepoOptions

	// Name is the human-readable name of the new device.
	Name string

	// Index pins the derivation index. Nil picks the lowest free index.
	Index *uint32
}

// Enroll derives a device identity below the user root and publishes its
// enrollment, so manifests it signs are trusted by every other device.
//
// Returns ErrDeviceIndexTaken if Index is already enrolled.
func Enroll(ctx context.Context, opts EnrollOptions) (*Device, error) {
	if !utils.IsValidDeviceName(opts.Name) {
		return nil, fmt.Errorf("%w: %q", kerrors.ErrInvalidDeviceName, opts.Name)
	}

	r, err := openRepo(ctx, opts.RepoOptions)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	tree, err := r.trust(ctx)
	if err != nil {
		return nil, err
	}
	index, err := pickDeviceIndex(tree, r.config.Device.UserIndex, opts.Index)
	if err != nil {
		return nil, err
	}

	child, err := r.ids.DeriveDeviceIdentity(r.user, index)
	if err != nil {
		return nil, err
	}
	defer child.Destroy()

	e, err := identity.Enroll(r.user, child, opts.Name, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := identity.PublishEnrollment(ctx, r.backend, e); err != nil {
		return nil, fmt.Errorf("publishing enrollment: %w", err)
	}

	entry := audit.LogWithDevice("enroll", r.config)
	entry.Target = child.Fingerprint()
	entry.TargetPath = child.Path().String()
	audit.Log(r.root, entry)

	return &Device{Name: opts.Name, Fingerprint: child.Fingerprint(), Path: child.Path().String()}, nil
}

// RevokeOptions configures the revoke workflow.
type RevokeOptions struct {
	RepoOptions

	// Target is a device name, fingerprint or derivation path.
	Target string

	Reason string

	// At is when the revocation takes effect. Manifests the device created
	// at or after At are rejected. Zero means now.
	At time.Time
}

// Revoke publishes a revocation of an enrolled device signed by the user
// root. Revocation is permanent.
//
// Returns ErrDeviceNotFound if Target matches no enrolled device.
func Revoke(ctx context.Context, opts RevokeOptions) (*Device, error) {
	r, err := openRepo(ctx, opts.RepoOptions)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	tree, err := r.trust(ctx)
	if err != nil {
		return nil, err
	}
	node, err := findDevice(tree, opts.Target)
	if err != nil {
		return nil, err
	}
	if node.Anchor() {
		return nil, fmt.Errorf("%w: the user root cannot be revoked", kerrors.ErrNotAncestor)
	}

	at := opts.At
	if at.IsZero() {
		at = time.Now()
	}
	rec, err := identity.Revoke(r.user, node.Public, node.Path, at, opts.Reason)
	if err != nil {
		return nil, err
	}
	if err := identity.PublishRevocation(ctx, r.backend, rec); err != nil {
		return nil, fmt.Errorf("publishing revocation: %w", err)
	}
	if bytes.Equal(node.Public, r.device.PublicKey()) {
		r.log.Warnf("This device revoked itself; its future manifests will be rejected")
	}

	entry := audit.LogWithDevice("revoke", r.config)
	entry.Target = identity.Fingerprint(node.Public)
	entry.TargetPath = node.Path.String()
	entry.Reason = opts.Reason
	audit.Log(r.root, entry)

	revokedAt := rec.RevokedAt
	return &Device{
		Name:        node.Name,
		Fingerprint: identity.Fingerprint(node.Public),
		Path:        node.Path.String(),
		RevokedAt:   &revokedAt,
	}, nil
}

// findDevice matches target against fingerprints, paths and names, in that order.
func findDevice(tree *identity.Tree, target string) (identity.Node, error) {
	nodes := tree.Nodes()
	for _, n := range nodes {
		if identity.Fingerprint(n.Public) == target {
			return n, nil
		}
	}
	if p, err := identity.ParsePath(target); err == nil {
		if n, ok := tree.LookupPath(p); ok {
			return n, nil
		}
	}

	var matches []identity.Node
	for _, n := range nodes {
		if n.Name == target {
			matches = append(matches, n)
		}
	}
	switch len(matches) {
	case 0:
		return identity.Node{}, fmt.Errorf("%w: %s", kerrors.ErrDeviceNotFound, target)
	case 1:
		return matches[0], nil
	}
	return identity.Node{}, fmt.Errorf("%w: %q names %d devices, use a fingerprint", kerrors.ErrDeviceNotFound, target, len(matches))
}

// DevicesOptions configures the devices workflow.
type DevicesOptions struct {
	RepoOptions
}

// Devices lists the trust tree, anchors first and then by derivation path.
func Devices(ctx context.Context, opts DevicesOptions) ([]Device, error) {
	r, err := openRepo(ctx, opts.RepoOptions)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	tree, err := r.trust(ctx)
	if err != nil {
		return nil, err
	}

	nodes := tree.Nodes()
	sort.Slice(nodes, func(i, j int) bool {
		if len(nodes[i].Path) != len(nodes[j].Path) {
			return len(nodes[i].Path) < len(nodes[j].Path)
		}
		return slices.Compare(nodes[i].Path, nodes[j].Path) < 0
	})

	out := make([]Device, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, Device{
			Name:        n.Name,
			Fingerprint: identity.Fingerprint(n.Public),
			Path:        n.Path.String(),
			RevokedAt:   n.RevokedAt,
			Anchor:      n.Anchor(),
			Current:     bytes.Equal(n.Public, r.device.PublicKey()),
		})
	}
	return out, nil
}
