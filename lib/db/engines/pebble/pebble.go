package pebble

import (
	"errors"
	"sync/atomic"

	"github.com/ValentinKolb/dvkv/lib/db"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

var _ db.KVDB = (*pebbleImpl)(nil)

// DBOptions configures the pebble instance
type DBOptions struct {
	CacheSizeMB int  // Block cache size in MiB (0 = pebble default)
	Sync        bool // fsync every write
}

// DefaultOptions returns the default options
func DefaultOptions() *DBOptions {
	return &DBOptions{
		CacheSizeMB: 8,
		Sync:        false,
	}
}

type pebbleImpl struct {
	db       *pebble.DB
	path     string
	impl     db.Implementation
	writeOpt *pebble.WriteOptions
	closed   atomic.Bool // pebble panics on use after close
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewPebbleDB opens (or creates) a file backed pebble database at path
func NewPebbleDB(path string, opts *DBOptions) (db.KVDB, error) {
	return open(path, opts, nil, db.ImplPebble)
}

// NewMemoryDB opens a pebble database on an in-memory filesystem
func NewMemoryDB() (db.KVDB, error) {
	return open("", nil, vfs.NewMem(), db.ImplPebbleMem)
}

func open(path string, opts *DBOptions, fs vfs.FS, impl db.Implementation) (db.KVDB, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	options := &pebble.Options{FS: fs}
	if opts.CacheSizeMB > 0 {
		cache := pebble.NewCache(int64(opts.CacheSizeMB) << 20)
		defer cache.Unref()
		options.Cache = cache
	}

	pdb, err := pebble.Open(path, options.EnsureDefaults())
	if err != nil {
		return nil, err
	}

	writeOpt := pebble.NoSync
	if opts.Sync {
		writeOpt = pebble.Sync
	}

	if path == "" {
		path = ":memory:"
	}
	return &pebbleImpl{db: pdb, path: path, impl: impl, writeOpt: writeOpt}, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see db.KVDB)
// --------------------------------------------------------------------------

func (p *pebbleImpl) Get(key []byte) ([]byte, bool, error) {
	if p.closed.Load() {
		return nil, false, db.ErrClosed
	}

	val, closer, err := p.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()

	// the returned slice is only valid until closer is closed
	out := make([]byte, len(val))
	copy(out, val)
	return out, true, nil
}

func (p *pebbleImpl) Has(key []byte) (bool, error) {
	if p.closed.Load() {
		return false, db.ErrClosed
	}

	_, closer, err := p.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	closer.Close()
	return true, nil
}

func (p *pebbleImpl) Iterate(prefix []byte, fn db.IterateFunc) error {
	if p.closed.Load() {
		return db.ErrClosed
	}

	it := p.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})

	for it.First(); it.Valid(); it.Next() {
		if !fn(it.Key(), it.Value()) {
			break
		}
	}

	err := it.Error()
	if closeErr := it.Close(); err == nil {
		err = closeErr
	}
	return err
}

func (p *pebbleImpl) Put(key, value []byte) error {
	if p.closed.Load() {
		return db.ErrClosed
	}
	return p.db.Set(key, value, p.writeOpt)
}

func (p *pebbleImpl) Delete(key []byte) error {
	if p.closed.Load() {
		return db.ErrClosed
	}
	return p.db.Delete(key, p.writeOpt)
}

func (p *pebbleImpl) Write(batch *db.Batch) error {
	if p.closed.Load() {
		return db.ErrClosed
	}
	if batch == nil || batch.Len() == 0 {
		return nil
	}

	b := p.db.NewBatch()
	defer b.Close()

	var err error
	batch.Replay(
		func(key, value []byte) {
			if err == nil {
				err = b.Set(key, value, nil)
			}
		},
		func(key []byte) {
			if err == nil {
				err = b.Delete(key, nil)
			}
		},
	)
	if err != nil {
		return err
	}
	return b.Commit(p.writeOpt)
}

func (p *pebbleImpl) GetInfo() db.DatabaseInfo {
	info := db.DatabaseInfo{DbType: p.impl, Path: p.path}
	if p.closed.Load() {
		return info
	}

	m := p.db.Metrics()
	info.Metadata = map[string]interface{}{
		"flush_count":   m.Flush.Count,
		"compact_count": m.Compact.Count,
	}
	return info
}

func (p *pebbleImpl) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return db.ErrClosed
	}
	return p.db.Close()
}

// --------------------------------------------------------------------------
// Helper Functions
// --------------------------------------------------------------------------

// prefixUpperBound returns the smallest key greater than every key with the given prefix.
// nil means no upper bound.
func prefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
