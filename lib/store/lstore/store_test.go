package lstore

import (
	"fmt"
	"sync"
	"testing"

	"github.com/ValentinKolb/dvkv/lib/db/engines/level"
	"github.com/ValentinKolb/dvkv/lib/store"
	"github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func newTestEngine(t *testing.T, opts *Options) *Engine {
	t.Helper()
	database, err := level.NewMemoryDB()
	require.NoError(t, err)

	e, err := NewEngine("test", database, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

// engineVariants runs fn with cache + bloom, bloom only and no overlay at all
func engineVariants(t *testing.T, fn func(t *testing.T, e *Engine)) {
	variants := map[string]*Options{
		"default":    DefaultOptions(),
		"bloomOnly":  {BloomBits: 4096, BloomHashes: 3},
		"cacheOnly":  {CacheEntries: 128, CacheSizeMB: 1},
		"noOverlays": {},
	}
	for name, opts := range variants {
		t.Run(name, func(t *testing.T) {
			fn(t, newTestEngine(t, opts))
		})
	}
}

// --------------------------------------------------------------------------
// Versioned store
// --------------------------------------------------------------------------

func TestVersionMonotonicity(t *testing.T) {
	engineVariants(t, func(t *testing.T, e *Engine) {
		h := e.NewHandle()
		key := []byte("counter")

		v, err := h.GetVersion(key)
		require.NoError(t, err)
		assert.Equal(t, store.VersionNone, v)

		for i := int64(0); i < 5; i++ {
			v, err := h.Put(key, []byte(fmt.Sprintf("value-%d", i)))
			require.NoError(t, err)
			assert.Equal(t, i, v)
		}

		v, err = h.GetVersion(key)
		require.NoError(t, err)
		assert.Equal(t, int64(4), v)

		// every version stays readable
		for i := int64(0); i < 5; i++ {
			val, found, err := h.Get(key, i)
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, fmt.Sprintf("value-%d", i), string(val))
		}
	})
}

func TestLatestEqualsExplicit(t *testing.T) {
	engineVariants(t, func(t *testing.T, e *Engine) {
		h := e.NewHandle()
		key := []byte("k")

		_, _ = h.Put(key, []byte("a"))
		v, _ := h.Put(key, []byte("b"))

		latest, found, err := h.Get(key, store.VersionLatest)
		require.NoError(t, err)
		require.True(t, found)

		explicit, _, err := h.Get(key, v)
		require.NoError(t, err)
		assert.Equal(t, explicit, latest)
		assert.Equal(t, "b", string(latest))

		_, found, err = h.Get([]byte("missing"), store.VersionLatest)
		require.NoError(t, err)
		assert.False(t, found)

		_, found, err = h.Get(key, 99)
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestSetUsesExpectedVersion(t *testing.T) {
	e := newTestEngine(t, nil)
	h := e.NewHandle()
	key := []byte("k")

	v, err := h.Set(key, []byte("first"), store.VersionNone)
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)

	// no optimistic concurrency check
	v, err = h.Set(key, []byte("jump"), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(6), v)

	current, _ := h.GetVersion(key)
	assert.Equal(t, int64(6), current)
}

func TestExists(t *testing.T) {
	engineVariants(t, func(t *testing.T, e *Engine) {
		h := e.NewHandle()

		ok, err := h.Exists([]byte("k"))
		require.NoError(t, err)
		assert.False(t, ok)

		_, _ = h.Put([]byte("k"), []byte("v"))

		ok, err = h.Exists([]byte("k"))
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestEmptyValue(t *testing.T) {
	engineVariants(t, func(t *testing.T, e *Engine) {
		h := e.NewHandle()

		_, err := h.Put([]byte("empty"), []byte{})
		require.NoError(t, err)

		val, found, err := h.Get([]byte("empty"), store.VersionLatest)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Len(t, val, 0)
	})
}

func TestConcurrentPutIsGapless(t *testing.T) {
	e := newTestEngine(t, nil)
	key := []byte("hot")

	const workers = 8
	const perWorker = 50

	var mu sync.Mutex
	seen := make(map[int64]bool)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h := e.NewHandle()
			for i := 0; i < perWorker; i++ {
				v, err := h.Put(key, []byte("x"))
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				assert.False(t, seen[v], "version %d assigned twice", v)
				seen[v] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
	v, _ := e.NewHandle().GetVersion(key)
	assert.Equal(t, int64(workers*perWorker-1), v)
}

func TestPutAll(t *testing.T) {
	e := newTestEngine(t, nil)
	h := e.NewHandle()

	_, _ = h.Put([]byte("b"), []byte("old"))

	versions, err := h.PutAll(
		[][]byte{[]byte("a"), []byte("b"), []byte("a")},
		[][]byte{[]byte("a0"), []byte("b1"), []byte("a1")},
	)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1, 1}, versions)

	val, _, _ := h.Get([]byte("a"), store.VersionLatest)
	assert.Equal(t, "a1", string(val))
	val, _, _ = h.Get([]byte("a"), 0)
	assert.Equal(t, "a0", string(val))

	_, err = h.PutAll([][]byte{[]byte("a")}, nil)
	assert.ErrorIs(t, err, store.ErrMalformedRequest)
}

// --------------------------------------------------------------------------
// Existence policy store
// --------------------------------------------------------------------------

func TestExPolicyGuard(t *testing.T) {
	engineVariants(t, func(t *testing.T, e *Engine) {
		h := e.NewHandle()
		key := []byte("slot")

		written, err := h.SetExisting(key, []byte("v1"), store.EXISTING)
		require.NoError(t, err)
		assert.False(t, written, "EXISTING must not write a missing slot")

		written, err = h.SetExisting(key, []byte("v1"), store.NOT_EXISTING)
		require.NoError(t, err)
		assert.True(t, written)

		written, err = h.SetExisting(key, []byte("v2"), store.NOT_EXISTING)
		require.NoError(t, err)
		assert.False(t, written, "NOT_EXISTING must not overwrite")

		val, found, err := h.GetEx(key)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "v1", string(val))

		written, err = h.SetExisting(key, []byte("v3"), store.EXISTING)
		require.NoError(t, err)
		assert.True(t, written)

		val, _, _ = h.GetEx(key)
		assert.Equal(t, "v3", string(val))

		ok, err := h.HasEx([]byte("other"))
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestExPolicySharesVersionChain(t *testing.T) {
	engineVariants(t, func(t *testing.T, e *Engine) {
		h := e.NewHandle()
		key := []byte("x")

		written, err := h.SetExisting(key, []byte("w"), store.NOT_EXISTING)
		require.NoError(t, err)
		require.True(t, written)

		// a slot write creates version 0
		ok, err := h.Exists(key)
		require.NoError(t, err)
		assert.True(t, ok)
		v, _ := h.GetVersion(key)
		assert.Equal(t, int64(0), v)

		written, err = h.SetExisting(key, []byte("again"), store.NOT_EXISTING)
		require.NoError(t, err)
		assert.False(t, written, "NOT_EXISTING must fail once the key exists")

		// a later put continues the chain instead of overwriting the slot
		v, err = h.Put(key, []byte("p"))
		require.NoError(t, err)
		assert.Equal(t, int64(1), v)
		val, _, _ := h.GetEx(key)
		assert.Equal(t, "w", string(val))

		// EXISTING rewrites the version 0 entry and keeps the version pointer
		written, err = h.SetExisting(key, []byte("w2"), store.EXISTING)
		require.NoError(t, err)
		assert.True(t, written)
		v, _ = h.GetVersion(key)
		assert.Equal(t, int64(1), v)
		val, _, _ = h.Get(key, 0)
		assert.Equal(t, "w2", string(val))
		val, _, _ = h.Get(key, store.VersionLatest)
		assert.Equal(t, "p", string(val))

		// keys written by put exist for the policy guard
		_, _ = h.Put([]byte("y"), []byte("p"))
		written, err = h.SetExisting([]byte("y"), []byte("w"), store.NOT_EXISTING)
		require.NoError(t, err)
		assert.False(t, written)

		_, err = h.SetExisting(key, nil, store.ExPolicy(9))
		assert.ErrorIs(t, err, store.ErrMalformedRequest)
	})
}

// --------------------------------------------------------------------------
// Batches
// --------------------------------------------------------------------------

func TestBatchIsolation(t *testing.T) {
	engineVariants(t, func(t *testing.T, e *Engine) {
		s1 := e.NewHandle()
		s2 := e.NewHandle()

		require.NoError(t, s1.BatchBegin())
		assert.True(t, s1.InBatch())
		assert.False(t, s2.InBatch())

		v, err := s1.Set([]byte("x"), []byte("1"), store.VersionNone)
		require.NoError(t, err)
		assert.Equal(t, int64(0), v)
		require.NoError(t, s1.SetEx([]byte("slot"), []byte("s")))
		assert.Equal(t, 4, s1.Pending().Len(), "data entry and version pointer per key")

		// staged writes are invisible to everyone, including the engine view of s1
		for _, h := range []store.IStore{s1, s2} {
			_, found, err := h.Get([]byte("x"), store.VersionLatest)
			require.NoError(t, err)
			assert.False(t, found)
			ok, _ := h.HasEx([]byte("slot"))
			assert.False(t, ok)
		}

		require.NoError(t, s1.BatchCommit())
		assert.False(t, s1.InBatch())
		assert.Nil(t, s1.Pending())

		val, found, err := s2.Get([]byte("x"), store.VersionLatest)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "1", string(val))
		ok, _ := s2.HasEx([]byte("slot"))
		assert.True(t, ok)
		ok, _ = s2.Exists([]byte("slot"))
		assert.True(t, ok)
	})
}

func TestBatchCommitAfterConcurrentPuts(t *testing.T) {
	engineVariants(t, func(t *testing.T, e *Engine) {
		s1 := e.NewHandle()
		s2 := e.NewHandle()
		key := []byte("k")

		require.NoError(t, s1.BatchBegin())
		v, err := s1.Set(key, []byte("batched-0"), store.VersionNone)
		require.NoError(t, err)
		assert.Equal(t, int64(0), v)
		v, err = s1.Set(key, []byte("batched-1"), v)
		require.NoError(t, err)
		assert.Equal(t, int64(1), v)

		// other sessions keep writing while the batch is open
		for i := int64(0); i < 3; i++ {
			v, err := s2.Put(key, []byte(fmt.Sprintf("s2-%d", i)))
			require.NoError(t, err)
			assert.Equal(t, i, v)
		}

		require.NoError(t, s1.BatchCommit())

		v, err = s2.GetVersion(key)
		require.NoError(t, err)
		assert.Equal(t, int64(4), v, "committed writes follow the stored version")

		expected := []string{"s2-0", "s2-1", "s2-2", "batched-0", "batched-1"}
		for i, want := range expected {
			val, found, err := s2.Get(key, int64(i))
			require.NoError(t, err)
			require.True(t, found, "version %d", i)
			assert.Equal(t, want, string(val), "version %d", i)
		}
	})
}

func TestConcurrentBatchesAreGapless(t *testing.T) {
	e := newTestEngine(t, nil)
	key := []byte("hot")

	const workers = 6
	const rounds = 20

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			h := e.NewHandle()
			for i := 0; i < rounds; i++ {
				if w%2 == 0 {
					_, err := h.Put(key, []byte("put"))
					assert.NoError(t, err)
					continue
				}

				if !assert.NoError(t, h.BatchBegin()) {
					return
				}
				current, err := h.GetVersion(key)
				assert.NoError(t, err)
				v, err := h.Set(key, []byte("batch"), current)
				assert.NoError(t, err)
				_, err = h.Set(key, []byte("batch"), v)
				assert.NoError(t, err)
				assert.NoError(t, h.BatchCommit())
			}
		}(w)
	}
	wg.Wait()

	// even workers write once per round, odd workers twice
	total := int64(workers/2*rounds + workers/2*rounds*2)
	h := e.NewHandle()
	v, err := h.GetVersion(key)
	require.NoError(t, err)
	assert.Equal(t, total-1, v)

	for i := int64(0); i < total; i++ {
		_, found, err := h.Get(key, i)
		require.NoError(t, err)
		assert.True(t, found, "version %d is missing", i)
	}
}

func TestBatchAbort(t *testing.T) {
	e := newTestEngine(t, nil)
	h := e.NewHandle()

	require.NoError(t, h.BatchBegin())
	_, _ = h.Set([]byte("x"), []byte("1"), store.VersionNone)
	require.NoError(t, h.BatchAbort())

	_, found, _ := h.Get([]byte("x"), store.VersionLatest)
	assert.False(t, found)
}

func TestBatchStateErrors(t *testing.T) {
	e := newTestEngine(t, nil)
	h := e.NewHandle()

	assert.ErrorIs(t, h.BatchCommit(), store.ErrNotInBatchMode)
	assert.ErrorIs(t, h.BatchAbort(), store.ErrNotInBatchMode)

	require.NoError(t, h.BatchBegin())
	assert.ErrorIs(t, h.BatchBegin(), store.ErrBatchInProgress)

	_, err := h.Put([]byte("k"), []byte("v"))
	assert.ErrorIs(t, err, store.ErrBatchInProgress)
	_, err = h.PutAll([][]byte{[]byte("k")}, [][]byte{[]byte("v")})
	assert.ErrorIs(t, err, store.ErrBatchInProgress)

	// empty commit is fine
	require.NoError(t, h.BatchCommit())
}

// --------------------------------------------------------------------------
// Archive
// --------------------------------------------------------------------------

func TestArchiveBypassesVersionPointer(t *testing.T) {
	engineVariants(t, func(t *testing.T, e *Engine) {
		h := e.NewHandle()
		a := e.Archive()
		key := []byte("archived")

		require.NoError(t, a.ArchiveSet(key, 7, []byte("seven")))

		val, found, err := a.ArchiveGet(key, 7)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "seven", string(val))

		v, _ := h.GetVersion(key)
		assert.Equal(t, store.VersionNone, v, "archive writes must not move the version pointer")

		// explicit reads through the versioned store see archived versions
		val, found, _ = h.Get(key, 7)
		assert.True(t, found)
		assert.Equal(t, "seven", string(val))

		require.NoError(t, a.ArchiveRemove(key, 7))
		_, found, err = a.ArchiveGet(key, 7)
		require.NoError(t, err)
		assert.False(t, found, "removed version must not be served from cache")

		assert.ErrorIs(t, a.ArchiveSet(key, -1, nil), store.ErrMalformedRequest)
	})
}

// --------------------------------------------------------------------------
// Overlays and persistence
// --------------------------------------------------------------------------

func TestBloomFilterIsRebuiltOnOpen(t *testing.T) {
	dir := t.TempDir()
	opts := &Options{BloomBits: 1 << 12, BloomHashes: 3}

	database, err := level.NewLevelDB(dir, nil)
	require.NoError(t, err)
	e, err := NewEngine("persist", database, opts)
	require.NoError(t, err)

	_, err = e.NewHandle().Put([]byte("k"), []byte("v"))
	require.NoError(t, err)
	require.NoError(t, e.Close())

	database, err = level.NewLevelDB(dir, nil)
	require.NoError(t, err)
	e, err = NewEngine("persist", database, opts)
	require.NoError(t, err)
	defer e.Close()

	h := e.NewHandle()
	val, found, err := h.Get([]byte("k"), store.VersionLatest)
	require.NoError(t, err)
	assert.True(t, found, "existing key must pass the rebuilt bloom filter")
	assert.Equal(t, "v", string(val))

	_, found, _ = h.Get([]byte("never-written"), store.VersionLatest)
	assert.False(t, found)
	assert.Positive(t, e.Info().BloomNegatives)
}

func TestCacheServesRepeatedReads(t *testing.T) {
	e := newTestEngine(t, DefaultOptions())
	h := e.NewHandle()

	_, _ = h.Put([]byte("k"), []byte("v"))
	reads := e.Info().DBReads

	for i := 0; i < 10; i++ {
		_, found, err := h.Get([]byte("k"), store.VersionLatest)
		require.NoError(t, err)
		require.True(t, found)
	}

	info := e.Info()
	assert.Equal(t, reads, info.DBReads, "write populated cache must serve all reads")
	assert.GreaterOrEqual(t, info.CacheHits, int64(20))
	assert.Equal(t, int64(1), info.ValueSizes.Count)
	assert.Equal(t, 1, info.CachedVersions)
}

func TestStorageErrorsAreWrapped(t *testing.T) {
	database, err := level.NewMemoryDB()
	require.NoError(t, err)
	e, err := NewEngine("broken", database, &Options{BloomBits: 1024, BloomHashes: 3})
	require.NoError(t, err)

	h := e.NewHandle()
	_, err = h.Put([]byte("k"), []byte("v"))
	require.NoError(t, err)
	require.NoError(t, e.Close())

	_, _, err = h.Get([]byte("k"), store.VersionLatest)
	assert.ErrorIs(t, err, store.ErrStorage)
	assert.Equal(t, store.RetCStorageError, store.CodeOf(err))

	_, err = h.Put([]byte("k"), []byte("v"))
	assert.ErrorIs(t, err, store.ErrStorage)
}

func TestStatisticsUseRegistry(t *testing.T) {
	registry := metrics.NewRegistry()
	opts := DefaultOptions()
	opts.Registry = registry

	e := newTestEngine(t, opts)
	_, _ = e.NewHandle().Put([]byte("k"), []byte("v"))

	writes, ok := registry.Get("store.test.writes").(metrics.Counter)
	require.True(t, ok)
	assert.Equal(t, int64(2), writes.Count())
}
