package util

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// --------------------------------------------------------------------------
// General Utility Functions
// --------------------------------------------------------------------------

// GenerateSeed creates a random seed for in-process hash functions.
// Never use it for hashes that have to agree across processes.
func GenerateSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint64(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint64(b[:])
}

// --------------------------------------------------------------------------
// Hash Functions
// --------------------------------------------------------------------------

// UintKey is the 64-bit hash of a key
type UintKey uint64

const (
	offset64 = 14695981039346656037
	prime64  = 1099511628211
)

// HashString generates a FNV-1a hash value for a string with a seed.
// With seed 0 the result is the plain 64-bit FNV-1a hash and is stable across processes.
func HashString(s string, seed uint64) UintKey {
	hash := uint64(offset64) ^ seed
	for i := 0; i < len(s); i++ {
		hash ^= uint64(s[i])
		hash *= prime64
	}
	return UintKey(hash)
}

// HashBytes is HashString for byte slices (no allocation)
func HashBytes(b []byte, seed uint64) UintKey {
	hash := uint64(offset64) ^ seed
	for i := 0; i < len(b); i++ {
		hash ^= uint64(b[i])
		hash *= prime64
	}
	return UintKey(hash)
}
