// Package lstore implements the versioned storage engine of a single database on
// top of a local db.KVDB byte-store.
//
// Key Components:
//
//   - Engine: One per open database, shared by every session using it. It owns the
//     byte-store, the read cache, the bloom filter, 256 striped key locks and the
//     engine statistics (rcrowley/go-metrics counters plus a value size histogram).
//
//   - handle: The store.IStore a session works on, created with Engine.NewHandle.
//     It owns the session's open batch. While a batch is open all writes are staged
//     in it and become visible with one atomic byte-store write on commit. The commit
//     assigns the versions of the staged writes from the versions stored by then.
//
//   - archive: The store.IArchiveStore returned by Engine.Archive. It reads and
//     writes single versions and never touches the version pointer.
//
// Read Path:
//
//	cache -> bloom filter ("definitely absent") -> byte-store -> cache
//
// Version pointers are cached decoded in a golang-lru cache, values in a byte bounded
// freecache. Cache misses lock the key's stripe while reading the byte-store, so a
// slow reader can never put an older version into the cache than a concurrent writer.
//
// Write Path:
//
// Writers lock the stripes of all keys they write. Storage keys are added to the bloom
// filter before the byte-store write and to the cache after it. Put and PutAll read the
// current version under the same lock, so concurrent writers never skip or reuse a
// version, and so does a batch commit. Set outside a batch takes the expected version
// from the caller and does not check it. SetExisting checks the existence of the key
// under the lock of the key.
//
// Bloom Filter:
//
// The filter is kept in memory only. NewEngine rebuilds it by iterating all version and
// data keys of the byte-store, so the negative shortcut is sound for existing data.
// Bits are set with atomic OR and never cleared (archive removals keep their bits).
package lstore
