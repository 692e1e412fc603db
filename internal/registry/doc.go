// Package registry maintains the graph of registered providers and serves
// immutable, versioned snapshots of it.
//
// Registration indexes every provider's features under the unit types they
// are exposed for: dimensions and measures only where the provider holds
// the unit uniquely, partitions everywhere, and relationship keys in both
// the forward and reverse direction. Lookups walk the unit type lattice
// from the most specific matching entry down, so features of "person" serve
// requests for "person:seller" and resolve with a mask.
//
// Key design constraints:
//   - Register validates against a rebuilt graph and commits atomically;
//     a failed registration leaves the registry untouched
//   - Snapshots are immutable and carry a monotonic version; planners pin
//     one snapshot for a whole resolution
//   - All snapshot accessors return copies in deterministic order
package registry
