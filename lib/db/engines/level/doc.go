// Package level implements the db.KVDB interface on top of goleveldb
// (github.com/syndtr/goleveldb).
//
// Two constructors are provided:
//
//   - NewLevelDB opens a file backed database. The sstable bloom filter, block cache
//     and write buffer are configured through DBOptions. If the database on disk is
//     corrupted, it is recovered with leveldb.RecoverFile before use.
//
//   - NewMemoryDB opens a database on goleveldb's in-memory storage. It behaves exactly
//     like the file backed variant but loses all data on Close. It is used for the
//     "memory" engine and in tests.
//
// db.Batch values are translated into a single leveldb.Batch and written atomically.
// Iterate uses util.BytesPrefix to restrict the iterator to a key prefix.
package level
