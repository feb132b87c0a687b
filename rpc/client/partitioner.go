package client

import (
	"github.com/ValentinKolb/dvkv/lib/db/util"
)

// Partitioner maps keys onto a fixed number of shards.
// The mapping is the 64-bit FNV-1a hash of the key modulo the shard count,
// so every client computes the same shard for a key.
type Partitioner struct {
	shards uint64
}

// NewPartitioner creates a partitioner for shards shards (at least 1)
func NewPartitioner(shards int) Partitioner {
	return Partitioner{shards: uint64(max(shards, 1))}
}

// Shards returns the number of shards
func (p Partitioner) Shards() int {
	return int(p.shards)
}

// Partition returns the shard index of key in [0, Shards())
func (p Partitioner) Partition(key []byte) int {
	return int(uint64(util.HashBytes(key, 0)) % p.shards)
}

// Distribution reports how keys spread over the shards
func (p Partitioner) Distribution(keys [][]byte) util.DistributionStats {
	counts := make([]int, p.shards)
	for _, key := range keys {
		counts[p.Partition(key)]++
	}
	return util.NewDistributionStats(counts)
}
