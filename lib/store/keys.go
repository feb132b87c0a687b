package store

import "encoding/binary"

// --------------------------------------------------------------------------
// Storage Key Encoding
// --------------------------------------------------------------------------

// Storage layout in the byte-store:
//
//	"V" + key                    -> be64(current version)
//	"D" + key + be64(version)    -> value at version
//
// The existence slot of IExPolicyStore is the data entry of version 0, a slot write
// on an absent key also sets the version pointer to 0.

const (
	PrefixVersion byte = 'V'
	PrefixData    byte = 'D'
)

// EncodeVersion encodes a version as 8 byte big endian
func EncodeVersion(version int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(version))
	return b[:]
}

// DecodeVersion decodes an 8 byte big endian version. ok is false for any other length.
func DecodeVersion(b []byte) (version int64, ok bool) {
	if len(b) != 8 {
		return VersionNone, false
	}
	return int64(binary.BigEndian.Uint64(b)), true
}

// EncodeVersionKey returns the storage key of the version pointer of key
func EncodeVersionKey(key []byte) []byte {
	out := make([]byte, 1+len(key))
	out[0] = PrefixVersion
	copy(out[1:], key)
	return out
}

// EncodeDataKey returns the storage key of the value of key at version
func EncodeDataKey(key []byte, version int64) []byte {
	out := make([]byte, 1+len(key)+8)
	out[0] = PrefixData
	copy(out[1:], key)
	binary.BigEndian.PutUint64(out[1+len(key):], uint64(version))
	return out
}

// EncodeExKey returns the storage key of the existence slot of key
func EncodeExKey(key []byte) []byte {
	return EncodeDataKey(key, 0)
}
