// Package l2frames owns Layer 2 (Frames) of the sentry data model.
//
// Responsibilities: mapping sample indices to scan angles and projecting
// decoded range samples into per-index distances.
// Key types: Distances, Rounding.
//
// Dependency rule: L2 may depend on L1, but never on L3+.
package l2frames
