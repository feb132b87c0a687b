// Package util provides utility components shared by the storage layers.
//
// The package contains:
//   - functions: FNV-1a hash functions (HashString, HashBytes) and seed generation.
//     The client partitioner uses HashString with seed 0, so the hash must never change.
//   - statistics: DistributionStats for rating how evenly keys spread over partitions,
//     and a lock-free SizeHistogram for tracking value sizes written to a store.
package util
