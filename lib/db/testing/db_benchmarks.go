package testing

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/dvkv/lib/db"
)

// RunKVDBBenchmarks runs the access patterns of the versioned store against a KVDB implementation.
func RunKVDBBenchmarks(b *testing.B, name string, factory DBFactory) {
	benchmarks := []struct {
		name string
		fn   func(b *testing.B, database db.KVDB)
	}{
		{"AppendVersion", benchmarkAppendVersion},
		{"Get", benchmarkGet},
		{"Has(not)", benchmarkHasNot},
		{"IterateChain", benchmarkIterateChain},
		{"BatchCommit", benchmarkBatchCommit},
		{"MixedUsage", benchmarkMixedUsage},
	}

	for _, bm := range benchmarks {
		b.Run(bm.name, func(b *testing.B) {
			database := factory(b)
			b.Cleanup(func() { _ = database.Close() })
			bm.fn(b, database)
		})
	}
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

// chainKey returns the key of one version of a chain, versions sort in ascending order
func chainKey(chain int, version uint64) []byte {
	key := []byte(fmt.Sprintf("chain-%d/", chain))
	return binary.BigEndian.AppendUint64(key, version)
}

// prefill writes n keys with a small value and returns them
func prefill(b *testing.B, database db.KVDB, n int) [][]byte {
	keys := make([][]byte, n)
	batch := db.NewBatch()
	for i := range keys {
		keys[i] = []byte(fmt.Sprintf("test-key-%d", i))
		batch.Put(keys[i], []byte(fmt.Sprintf("test-value-%d", i)))
	}
	if err := database.Write(batch); err != nil {
		b.Fatalf("prefill failed: %v", err)
	}
	return keys
}

// every writer appends new versions to its own chain
func benchmarkAppendVersion(b *testing.B, database db.KVDB) {
	var writers int64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		chain := int(atomic.AddInt64(&writers, 1))
		var version uint64
		for pb.Next() {
			version++
			_ = database.Put(chainKey(chain, version), []byte("value"))
		}
	})
}

func benchmarkGet(b *testing.B, database db.KVDB) {
	keys := prefill(b, database, 10000)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			_, _, _ = database.Get(keys[counter%len(keys)])
			counter++
		}
	})
}

func benchmarkHasNot(b *testing.B, database db.KVDB) {
	key := []byte("missing-key")

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _ = database.Has(key)
		}
	})
}

// scans a chain of 64 versions by prefix
func benchmarkIterateChain(b *testing.B, database db.KVDB) {
	batch := db.NewBatch()
	for v := uint64(1); v <= 64; v++ {
		batch.Put(chainKey(0, v), []byte("value"))
	}
	if err := database.Write(batch); err != nil {
		b.Fatalf("prefill failed: %v", err)
	}
	prefix := []byte("chain-0/")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		count := 0
		_ = database.Iterate(prefix, func(_, _ []byte) bool {
			count++
			return true
		})
		if count != 64 {
			b.Fatalf("expected 64 versions, got %d", count)
		}
	}
}

// commits batches of 100 writes, like a client batch with a version pointer per key
func benchmarkBatchCommit(b *testing.B, database db.KVDB) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		batch := db.NewBatch()
		for j := 0; j < 50; j++ {
			batch.Put(chainKey(j, uint64(i+1)), []byte("value"))
			batch.Put([]byte(fmt.Sprintf("pointer-%d", j)), binary.BigEndian.AppendUint64(nil, uint64(i+1)))
		}
		_ = database.Write(batch)
	}
}

func benchmarkMixedUsage(b *testing.B, database db.KVDB) {
	keys := prefill(b, database, min(b.N, 100000))

	var counter int64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		localCounter := 0

		for pb.Next() {
			key := keys[int(atomic.AddInt64(&counter, 1)-1)%len(keys)]

			// every 10th operation misses
			if localCounter%10 == 0 {
				key = []byte(fmt.Sprintf("new-key-%d", localCounter))
			}

			switch localCounter % 3 {
			case 0:
				_, _, _ = database.Get(key)
			case 1:
				_ = database.Put(key, []byte(fmt.Sprintf("mixed-value-%d", localCounter)))
			case 2:
				_, _ = database.Has(key)
			}

			localCounter++
		}
	})
}
