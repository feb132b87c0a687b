package lstore

import (
	"math/rand"
	"sync/atomic"

	"github.com/ValentinKolb/dvkv/lib/db/util"
)

// bloomFilter answers "definitely absent" for storage keys.
// Bits are only ever set, never cleared, so adds and tests need no lock.
type bloomFilter struct {
	bits  []uint64
	m     uint64
	k     int
	seed  uint64
	masks []uint64
}

func newBloomFilter(m uint64, k int) *bloomFilter {
	m = (m + 63) / 64 * 64
	if m == 0 {
		m = 64
	}
	if k < 1 {
		k = 1
	}
	masks := make([]uint64, k)
	for i := 0; i < k; i++ {
		masks[i] = rand.Uint64()
	}
	return &bloomFilter{
		bits:  make([]uint64, m/64),
		m:     m,
		k:     k,
		seed:  util.GenerateSeed(),
		masks: masks,
	}
}

func (b *bloomFilter) add(key []byte) {
	b.distribute(key, func(index int, bit uint64) bool {
		if atomic.LoadUint64(&b.bits[index])&bit == 0 {
			atomic.OrUint64(&b.bits[index], bit)
		}
		return true
	})
}

// test returns false if key was never added
func (b *bloomFilter) test(key []byte) bool {
	return b.distribute(key, func(index int, bit uint64) bool {
		return atomic.LoadUint64(&b.bits[index])&bit == bit
	})
}

func (b *bloomFilter) distribute(key []byte, cb func(index int, bit uint64) bool) bool {
	h64 := uint64(util.HashBytes(key, b.seed))

	for i := 0; i < b.k; i++ {
		loc := mix64(h64^b.masks[i]) % b.m
		bit := uint64(1) << (loc % 64)
		if !cb(int(loc/64), bit) {
			return false
		}
	}
	return true
}

// mix64 is the splitmix64 finalizer
func mix64(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}
