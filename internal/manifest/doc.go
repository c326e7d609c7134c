// Package manifest records which chunks make up which files, and merges
// the records of many devices into one view.
//
// A Manifest lists one Entry per path with a per-path version counter.
// Builder produces the next manifest of a device from a snapshot of its
// tree; Sign and Verify bind a manifest to a device identity; Reconcile
// merges manifests from any number of devices.
//
// Reconciliation keeps, for every path, the set of variants with the highest
// version. A single variant is the merged entry. Several variants with the
// same version are a conflict: every variant is kept under a synthetic path
// "<path>.conflict-<digest>" and nothing is discarded. Because the result
// depends only on the union of variants seen, merging is commutative,
// associative and idempotent, and devices converge regardless of the order
// in which manifests arrive.
package manifest
