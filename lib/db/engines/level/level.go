package level

import (
	"errors"

	"github.com/ValentinKolb/dvkv/lib/db"
	"github.com/syndtr/goleveldb/leveldb"
	dberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

var (
	writeOpt = opt.WriteOptions{}
	readOpt  = opt.ReadOptions{}

	_ db.KVDB = (*levelImpl)(nil)
)

// DBOptions configures the goleveldb instance
type DBOptions struct {
	CacheSizeMB         int // Block cache + write buffer size in MiB (min 16)
	OpenFilesCacheLimit int // Number of cached file descriptors (min 16)
	BloomBitsPerKey     int // Bits per key of the on-disk sstable filter (0 = disabled)
}

// DefaultOptions returns the default options
func DefaultOptions() *DBOptions {
	return &DBOptions{
		CacheSizeMB:         16,
		OpenFilesCacheLimit: 16,
		BloomBitsPerKey:     10,
	}
}

type levelImpl struct {
	db   *leveldb.DB
	path string
	impl db.Implementation
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewLevelDB opens (or creates) a file backed goleveldb database at path.
// A corrupted database is recovered automatically.
func NewLevelDB(path string, opts *DBOptions) (db.KVDB, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	cacheSize := max(opts.CacheSizeMB, 16)
	fileDescriptorCache := max(opts.OpenFilesCacheLimit, 16)

	options := &opt.Options{
		OpenFilesCacheCapacity: fileDescriptorCache,
		BlockCacheCapacity:     cacheSize / 2 * opt.MiB,
		WriteBuffer:            cacheSize / 4 * opt.MiB, // Two of these are used internally
	}
	if opts.BloomBitsPerKey > 0 {
		options.Filter = filter.NewBloomFilter(opts.BloomBitsPerKey)
	}

	ldb, err := leveldb.OpenFile(path, options)

	var corrupted *dberrors.ErrCorrupted
	if errors.As(err, &corrupted) {
		ldb, err = leveldb.RecoverFile(path, options)
	}

	if err != nil {
		return nil, err
	}

	return &levelImpl{db: ldb, path: path, impl: db.ImplLevelDB}, nil
}

// NewMemoryDB creates a goleveldb database on in-memory storage.
// All data is lost on Close.
func NewMemoryDB() (db.KVDB, error) {
	ldb, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &levelImpl{db: ldb, path: ":memory:", impl: db.ImplMemory}, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see db.KVDB)
// --------------------------------------------------------------------------

func (l *levelImpl) Get(key []byte) ([]byte, bool, error) {
	val, err := l.db.Get(key, &readOpt)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, mapErr(err)
	}
	return val, true, nil
}

func (l *levelImpl) Has(key []byte) (bool, error) {
	ok, err := l.db.Has(key, &readOpt)
	return ok, mapErr(err)
}

func (l *levelImpl) Iterate(prefix []byte, fn db.IterateFunc) error {
	it := l.db.NewIterator(util.BytesPrefix(prefix), &readOpt)
	defer it.Release()

	for it.Next() {
		if !fn(it.Key(), it.Value()) {
			break
		}
	}
	return mapErr(it.Error())
}

func (l *levelImpl) Put(key, value []byte) error {
	return mapErr(l.db.Put(key, value, &writeOpt))
}

func (l *levelImpl) Delete(key []byte) error {
	return mapErr(l.db.Delete(key, &writeOpt))
}

func (l *levelImpl) Write(batch *db.Batch) error {
	if batch == nil || batch.Len() == 0 {
		return nil
	}
	b := new(leveldb.Batch)
	batch.Replay(b.Put, b.Delete)
	return mapErr(l.db.Write(b, &writeOpt))
}

func (l *levelImpl) GetInfo() db.DatabaseInfo {
	info := db.DatabaseInfo{DbType: l.impl, Path: l.path}

	if stats, err := l.db.GetProperty("leveldb.stats"); err == nil {
		info.Metadata = map[string]interface{}{
			"stats": stats,
		}
	}
	return info
}

func (l *levelImpl) Close() error {
	return mapErr(l.db.Close())
}

// --------------------------------------------------------------------------
// Helper Functions
// --------------------------------------------------------------------------

func mapErr(err error) error {
	if errors.Is(err, leveldb.ErrClosed) {
		return db.ErrClosed
	}
	return err
}
