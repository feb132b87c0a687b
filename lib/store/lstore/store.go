package lstore

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ValentinKolb/dvkv/lib/db"
	"github.com/ValentinKolb/dvkv/lib/db/util"
	"github.com/ValentinKolb/dvkv/lib/store"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/rcrowley/go-metrics"
)

var Logger = logger.GetLogger("store")

// lockStripes is the number of per-key write locks (keys are hashed onto stripes)
const lockStripes = 256

// Options configures an Engine
type Options struct {
	CacheEntries int              // Max cached version pointers (0 = disabled)
	CacheSizeMB  int              // Size of the value cache in MiB (0 = disabled)
	BloomBits    uint64           // Size of the bloom filter in bits (0 = disabled)
	BloomHashes  int              // Number of bloom hash functions
	Registry     metrics.Registry // Registry for engine statistics (nil = private registry)
}

// DefaultOptions returns the default engine options
func DefaultOptions() *Options {
	return &Options{
		CacheEntries: 100_000,
		CacheSizeMB:  32,
		BloomBits:    1 << 24,
		BloomHashes:  4,
	}
}

func (o Options) String() string {
	return fmt.Sprintf("cache: %d entries / %d MiB, bloom: %d bits / %d hashes",
		o.CacheEntries, o.CacheSizeMB, o.BloomBits, o.BloomHashes)
}

// Info reports the state of an Engine
type Info struct {
	Name           string                 `json:"name"`
	DB             db.DatabaseInfo        `json:"db"`
	CacheHits      int64                  `json:"cache_hits"`
	CacheMisses    int64                  `json:"cache_misses"`
	BloomNegatives int64                  `json:"bloom_negatives"`
	DBReads        int64                  `json:"db_reads"`
	Writes         int64                  `json:"writes"`
	CachedVersions int                    `json:"cached_versions"`
	CachedValues   int64                  `json:"cached_values"`
	ValueSizes     util.HistogramSnapshot `json:"value_sizes"`
}

type engineStats struct {
	cacheHits      metrics.Counter
	cacheMisses    metrics.Counter
	bloomNegatives metrics.Counter
	dbReads        metrics.Counter
	writes         metrics.Counter
	commits        metrics.Timer
}

func newEngineStats(name string, r metrics.Registry) *engineStats {
	prefix := "store." + name + "."
	return &engineStats{
		cacheHits:      metrics.GetOrRegisterCounter(prefix+"cache.hits", r),
		cacheMisses:    metrics.GetOrRegisterCounter(prefix+"cache.misses", r),
		bloomNegatives: metrics.GetOrRegisterCounter(prefix+"bloom.negatives", r),
		dbReads:        metrics.GetOrRegisterCounter(prefix+"db.reads", r),
		writes:         metrics.GetOrRegisterCounter(prefix+"writes", r),
		commits:        metrics.GetOrRegisterTimer(prefix+"commits", r),
	}
}

// --------------------------------------------------------------------------
// Engine
// --------------------------------------------------------------------------

// Engine is the versioned storage engine of one database.
// It is shared by all sessions using the database, each session works on its own Handle.
type Engine struct {
	name  string
	db    db.KVDB
	cache *valueCache  // nil if disabled
	bloom *bloomFilter // nil if disabled
	locks [lockStripes]sync.Mutex
	stats *engineStats
	sizes *util.SizeHistogram
}

// NewEngine creates an engine on top of database. The engine takes ownership of database.
// If a bloom filter is configured, it is filled with every key already stored.
func NewEngine(name string, database db.KVDB, opts *Options) (*Engine, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	registry := opts.Registry
	if registry == nil {
		registry = metrics.NewRegistry()
	}

	cache, err := newValueCache(opts.CacheEntries, opts.CacheSizeMB)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	e := &Engine{
		name:  name,
		db:    database,
		cache: cache,
		stats: newEngineStats(name, registry),
		sizes: util.NewSizeHistogram(),
	}

	if opts.BloomBits > 0 {
		e.bloom = newBloomFilter(opts.BloomBits, opts.BloomHashes)
		if err := e.fillBloom(); err != nil {
			return nil, err
		}
	}

	Logger.Infof("opened engine %q on %s (%s)", name, database.GetInfo().DbType, opts)
	return e, nil
}

// fillBloom adds all stored keys to the bloom filter
func (e *Engine) fillBloom() error {
	start := time.Now()
	count := 0
	for _, prefix := range []byte{store.PrefixVersion, store.PrefixData} {
		err := e.db.Iterate([]byte{prefix}, func(key, _ []byte) bool {
			e.bloom.add(key)
			count++
			return true
		})
		if err != nil {
			return store.WrapStorage(err, "failed to fill bloom filter of %q", e.name)
		}
	}
	Logger.Debugf("filled bloom filter of %q with %d keys in %s", e.name, count, time.Since(start))
	return nil
}

// Name returns the database name of the engine
func (e *Engine) Name() string {
	return e.name
}

// NewHandle creates a handle for one session
func (e *Engine) NewHandle() store.IStore {
	return &handle{e: e}
}

// Archive returns direct access to individual versions
func (e *Engine) Archive() store.IArchiveStore {
	return archive{e: e}
}

// Info returns statistics about the engine
func (e *Engine) Info() Info {
	info := Info{
		Name:           e.name,
		DB:             e.db.GetInfo(),
		CacheHits:      e.stats.cacheHits.Count(),
		CacheMisses:    e.stats.cacheMisses.Count(),
		BloomNegatives: e.stats.bloomNegatives.Count(),
		DBReads:        e.stats.dbReads.Count(),
		Writes:         e.stats.writes.Count(),
		ValueSizes:     e.sizes.Snapshot(),
	}
	if e.cache != nil {
		info.CachedVersions, info.CachedValues = e.cache.len()
	}
	return info
}

// Close closes the underlying byte-store
func (e *Engine) Close() error {
	Logger.Infof("closing engine %q", e.name)
	return e.db.Close()
}

// --------------------------------------------------------------------------
// Locking
// --------------------------------------------------------------------------

func stripeOf(key []byte) int {
	return int(uint64(util.HashBytes(key, 0)) % lockStripes)
}

// lockAll locks the given stripes in ascending order and returns the unlock function
func (e *Engine) lockAll(stripes []int) func() {
	sort.Ints(stripes)
	for i, s := range stripes {
		if i > 0 && stripes[i-1] == s {
			continue
		}
		e.locks[s].Lock()
	}
	return func() {
		for i := len(stripes) - 1; i >= 0; i-- {
			if i > 0 && stripes[i-1] == stripes[i] {
				continue
			}
			e.locks[stripes[i]].Unlock()
		}
	}
}

// --------------------------------------------------------------------------
// Read Path
// --------------------------------------------------------------------------

// readVersion returns the current version of key.
// On a cache miss the stripe of key is locked so a stale byte-store read can not
// overwrite a newer cached version. Pass locked=true if the caller holds the stripe.
func (e *Engine) readVersion(key []byte, locked bool) (int64, error) {
	if e.cache != nil {
		if v, ok := e.cache.getVersion(key); ok {
			e.stats.cacheHits.Inc(1)
			return v, nil
		}
		e.stats.cacheMisses.Inc(1)
	}

	storageKey := store.EncodeVersionKey(key)
	if e.bloom != nil && !e.bloom.test(storageKey) {
		e.stats.bloomNegatives.Inc(1)
		return store.VersionNone, nil
	}

	if !locked {
		s := &e.locks[stripeOf(key)]
		s.Lock()
		defer s.Unlock()
	}

	e.stats.dbReads.Inc(1)
	raw, found, err := e.db.Get(storageKey)
	if err != nil {
		return store.VersionNone, store.WrapStorage(err, "failed to read version of %q", key)
	}
	if !found {
		return store.VersionNone, nil
	}

	version, ok := store.DecodeVersion(raw)
	if !ok {
		return store.VersionNone, store.Errorf(store.RetCStorageError, "corrupt version pointer for %q", key)
	}
	if e.cache != nil {
		e.cache.addVersion(key, version)
	}
	return version, nil
}

// readData returns the value stored under a data storage key of key
func (e *Engine) readData(key, storageKey []byte) ([]byte, bool, error) {
	if e.cache != nil {
		if v, ok := e.cache.getData(storageKey); ok {
			e.stats.cacheHits.Inc(1)
			return v, true, nil
		}
		e.stats.cacheMisses.Inc(1)
	}

	if e.bloom != nil && !e.bloom.test(storageKey) {
		e.stats.bloomNegatives.Inc(1)
		return nil, false, nil
	}

	s := &e.locks[stripeOf(key)]
	s.Lock()
	defer s.Unlock()

	e.stats.dbReads.Inc(1)
	value, found, err := e.db.Get(storageKey)
	if err != nil {
		return nil, false, store.WrapStorage(err, "failed to read %q", key)
	}
	if found && e.cache != nil {
		e.cache.addData(storageKey, value)
	}
	return value, found, nil
}

// hasData reports whether a data storage key of key exists without loading uncached values
func (e *Engine) hasData(key, storageKey []byte) (bool, error) {
	if e.cache != nil {
		if _, ok := e.cache.getData(storageKey); ok {
			e.stats.cacheHits.Inc(1)
			return true, nil
		}
		e.stats.cacheMisses.Inc(1)
	}

	if e.bloom != nil && !e.bloom.test(storageKey) {
		e.stats.bloomNegatives.Inc(1)
		return false, nil
	}

	e.stats.dbReads.Inc(1)
	found, err := e.db.Has(storageKey)
	if err != nil {
		return false, store.WrapStorage(err, "failed to check %q", key)
	}
	return found, nil
}

// --------------------------------------------------------------------------
// Write Path
// --------------------------------------------------------------------------

// apply locks the stripes of all keys, assigns the versions and writes everything
// with one byte-store write. It returns the version of every write.
func (e *Engine) apply(writes []write) ([]int64, error) {
	stripes := make([]int, len(writes))
	for i, w := range writes {
		stripes[i] = stripeOf(w.key)
	}
	unlock := e.lockAll(stripes)
	defer unlock()

	b, versions, err := e.resolve(writes)
	if err != nil {
		return nil, err
	}
	if err := e.write(b); err != nil {
		return nil, err
	}
	return versions, nil
}

// resolve turns writes into storage entries. Every versioned write gets the next
// version after the stored one, a key may appear more than once. A slot write
// rewrites the entry of version 0 and creates version 0 for an absent key.
// The caller must hold the stripes of all keys.
func (e *Engine) resolve(writes []write) (*db.Batch, []int64, error) {
	current := make(map[string]int64, len(writes))
	versions := make([]int64, len(writes))
	b := db.NewBatch()

	for i, w := range writes {
		version, ok := current[string(w.key)]
		if !ok {
			var err error
			if version, err = e.readVersion(w.key, true); err != nil {
				return nil, nil, err
			}
		}

		if w.slot {
			b.Put(store.EncodeExKey(w.key), w.value)
			if version == store.VersionNone {
				version = 0
				b.Put(store.EncodeVersionKey(w.key), store.EncodeVersion(version))
			}
		} else {
			version++
			putVersion(b, w.key, w.value, version)
		}

		current[string(w.key)] = version
		versions[i] = version
	}
	return b, versions, nil
}

// write applies batch to the byte-store. The caller must hold the stripes of all
// keys in the batch.
// Keys are added to the bloom filter before the write so no reader can get a false
// negative for a written key, the cache is populated after the write succeeded.
func (e *Engine) write(batch *db.Batch) error {
	if e.bloom != nil {
		batch.Replay(func(k, _ []byte) { e.bloom.add(k) }, func([]byte) {})
	}

	start := time.Now()
	if err := e.db.Write(batch); err != nil {
		return store.WrapStorage(err, "failed to write batch of %d operations", batch.Len())
	}
	e.stats.commits.UpdateSince(start)
	e.stats.writes.Inc(int64(batch.Len()))

	batch.Replay(e.applied, e.removed)
	return nil
}

// applied updates cache and statistics for a written storage key
func (e *Engine) applied(storageKey, value []byte) {
	switch storageKey[0] {
	case store.PrefixVersion:
		if version, ok := store.DecodeVersion(value); ok && e.cache != nil {
			e.cache.addVersion(storageKey[1:], version)
		}
	case store.PrefixData:
		e.sizes.AddSample(len(value))
		if e.cache != nil {
			e.cache.addData(storageKey, value)
		}
	}
}

// removed updates the cache for a deleted storage key
func (e *Engine) removed(storageKey []byte) {
	if e.cache != nil && storageKey[0] == store.PrefixData {
		e.cache.removeData(storageKey)
	}
}
