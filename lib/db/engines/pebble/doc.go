// Package pebble implements the db.KVDB interface on top of cockroachdb/pebble.
//
// NewPebbleDB opens a file backed database, NewMemoryDB opens one on pebble's
// in-memory vfs. Values returned by Get are copied out of pebble's buffers, so
// callers own them. Prefix iteration is implemented with lower and upper iterator
// bounds. Pebble panics when a closed database is used, so the wrapper tracks the
// closed state itself and returns db.ErrClosed instead.
package pebble
