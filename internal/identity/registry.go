package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/PolarWolf314/rimu/internal/backend"
	logger "github.com/PolarWolf314/rimu/internal/logging"
)

// Backend prefixes for identity documents. They hold public keys and
// signatures only.
const (
	EnrollmentPrefix = "identity/enrollments/"
	RevocationPrefix = "identity/revocations/"
)

// PublishEnrollment stores e in b. Publishing the same enrollment twice is a no-op.
func PublishEnrollment(ctx context.Context, b backend.Backend, e *Enrollment) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding enrollment: %w", err)
	}
	return b.Put(ctx, EnrollmentPrefix+Fingerprint(e.Public)+".json", data)
}

// PublishRevocation stores r in b.
func PublishRevocation(ctx context.Context, b backend.Backend, r *RevocationRecord) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding revocation: %w", err)
	}
	key := RevocationPrefix + Fingerprint(r.Target) + "-" + Fingerprint(r.Revoker) + "-" +
		strconv.FormatInt(r.RevokedAt.UnixNano(), 10) + ".json"
	return b.Put(ctx, key, data)
}

// LoadTree rebuilds the trust tree from anchors and every identity document
// in b. Documents that fail verification are skipped and returned as
// problems; they never make the tree more trusting.
func LoadTree(ctx context.Context, b backend.Backend, anchors []*Identity, log logger.Logger) (*Tree, []error, error) {
	tree := NewTree()
	for _, a := range anchors {
		tree.AddAnchor(a, "user root")
	}

	var problems []error

	enrollKeys, err := b.List(ctx, EnrollmentPrefix)
	if err != nil {
		return nil, nil, err
	}
	var enrollments []*Enrollment
	for _, k := range enrollKeys {
		var e Enrollment
		if err := readJSON(ctx, b, k, &e); err != nil {
			problems = append(problems, err)
			continue
		}
		enrollments = append(enrollments, &e)
	}

	// Parents before children.
	sort.SliceStable(enrollments, func(i, j int) bool {
		return len(enrollments[i].Path) < len(enrollments[j].Path)
	})
	for _, e := range enrollments {
		if err := tree.Enroll(e); err != nil {
			log.Debugf("skipping enrollment of %s: %v", Fingerprint(e.Public), err)
			problems = append(problems, err)
		}
	}

	revocationKeys, err := b.List(ctx, RevocationPrefix)
	if err != nil {
		return nil, nil, err
	}
	for _, k := range revocationKeys {
		var r RevocationRecord
		if err := readJSON(ctx, b, k, &r); err != nil {
			problems = append(problems, err)
			continue
		}
		if err := tree.ApplyRevocation(&r); err != nil {
			log.Warnf("ignoring revocation %s: %v", k, err)
			problems = append(problems, err)
		}
	}

	return tree, problems, nil
}

func readJSON(ctx context.Context, b backend.Backend, key string, v any) error {
	data, err := b.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	return nil
}
