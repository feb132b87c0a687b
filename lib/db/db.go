package db

import "errors"

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplLevelDB   Implementation = "leveldb"
	ImplPebble    Implementation = "pebble"
	ImplMemory    Implementation = "memory"
	ImplPebbleMem Implementation = "pebble-memory"
)

// ErrClosed is returned by operations on a database that was already closed
var ErrClosed = errors.New("db: database closed")

type DatabaseInfo struct {
	DbType   Implementation `json:"db_type"`
	Path     string         `json:"path"`
	Metadata interface{}    `json:"metadata"`
}

// IterateFunc is called for every key/value pair visited by KVDB.Iterate.
// Key and value are only valid during the call. Returning false stops the iteration.
type IterateFunc func(key, value []byte) bool

// --------------------------------------------------------------------------
// Batch
// --------------------------------------------------------------------------

type batchOp struct {
	key    []byte
	value  []byte
	delete bool
}

// Batch collects write operations that are applied atomically by KVDB.Write.
// A Batch is not safe for concurrent use.
type Batch struct {
	ops  []batchOp
	last map[string]int // index of the last operation per key
}

// NewBatch creates an empty batch
func NewBatch() *Batch {
	return &Batch{last: make(map[string]int)}
}

// Put stages a write. Key and value are copied.
func (b *Batch) Put(key, value []byte) {
	b.add(batchOp{key: clone(key), value: clone(value)})
}

// Delete stages a removal. The key is copied.
func (b *Batch) Delete(key []byte) {
	b.add(batchOp{key: clone(key), delete: true})
}

func (b *Batch) add(op batchOp) {
	if b.last == nil {
		b.last = make(map[string]int)
	}
	b.last[string(op.key)] = len(b.ops)
	b.ops = append(b.ops, op)
}

// Len returns the number of staged operations
func (b *Batch) Len() int {
	return len(b.ops)
}

// Reset drops all staged operations
func (b *Batch) Reset() {
	b.ops = b.ops[:0]
	clear(b.last)
}

// Replay calls put or del for every staged operation in insertion order
func (b *Batch) Replay(put func(key, value []byte), del func(key []byte)) {
	for _, op := range b.ops {
		if op.delete {
			del(op.key)
		} else {
			put(op.key, op.value)
		}
	}
}

// Lookup returns the last staged operation for key.
// staged reports whether the batch touches key at all, deleted whether the last operation was a removal.
func (b *Batch) Lookup(key []byte) (value []byte, deleted bool, staged bool) {
	i, ok := b.last[string(key)]
	if !ok {
		return nil, false, false
	}
	return b.ops[i].value, b.ops[i].delete, true
}

func clone(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}

// --------------------------------------------------------------------------
// Database Interface
// --------------------------------------------------------------------------

// KVDB defines the embedded ordered byte-store the storage engine is built on.
// Keys are ordered lexicographically. All methods must be safe for concurrent use.
type KVDB interface {

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// Get retrieves the value for an exact key.
	// The boolean return value indicates whether a value for the key was found.
	// The returned slice is owned by the caller.
	Get(key []byte) (value []byte, found bool, err error)

	// Has checks whether a key exists in the database.
	Has(key []byte) (found bool, err error)

	// Iterate visits all entries whose key starts with prefix in ascending key order.
	Iterate(prefix []byte, fn IterateFunc) (err error)

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Put inserts or overwrites the value for key.
	Put(key, value []byte) (err error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(key []byte) (err error)

	// Write applies all operations of the batch atomically.
	Write(batch *Batch) (err error)

	// --------------------------------------------------------------------------
	// Misc
	// --------------------------------------------------------------------------

	// GetInfo returns information about the database.
	GetInfo() (info DatabaseInfo)

	// Close closes the database.
	Close() (err error)
}
