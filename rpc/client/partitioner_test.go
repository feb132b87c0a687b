package client

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPartitionDeterministic(t *testing.T) {
	p := NewPartitioner(4)
	key := []byte("user:42")

	first := p.Partition(key)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, p.Partition(key))
	}

	// a second partitioner with the same shard count agrees
	assert.Equal(t, first, NewPartitioner(4).Partition(key))
}

func TestPartitionRange(t *testing.T) {
	for _, shards := range []int{1, 2, 3, 7, 16} {
		p := NewPartitioner(shards)
		for i := 0; i < 1000; i++ {
			s := p.Partition([]byte(fmt.Sprintf("key-%d", i)))
			assert.GreaterOrEqual(t, s, 0)
			assert.Less(t, s, shards)
		}
	}
}

func TestPartitionerMinimumOneShard(t *testing.T) {
	p := NewPartitioner(0)
	assert.Equal(t, 1, p.Shards())
	assert.Equal(t, 0, p.Partition([]byte("k")))
}

func TestPartitionEmptyKey(t *testing.T) {
	p := NewPartitioner(5)
	assert.Equal(t, p.Partition(nil), p.Partition([]byte{}))
}

func TestDistribution(t *testing.T) {
	p := NewPartitioner(4)
	keys := make([][]byte, 10_000)
	for i := range keys {
		keys[i] = []byte(fmt.Sprintf("user:%d", i))
	}

	stats := p.Distribution(keys)
	assert.Len(t, stats.Counts, 4)

	total := 0
	for _, c := range stats.Counts {
		assert.Greater(t, c, 0)
		total += c
	}
	assert.Equal(t, len(keys), total)
	assert.Greater(t, stats.DistributionQuality, 0.8)
}
