package level

import (
	"testing"

	"github.com/ValentinKolb/dvkv/lib/db"
	dbtesting "github.com/ValentinKolb/dvkv/lib/db/testing"
)

func Test(t *testing.T) {
	dbtesting.RunKVDBTests(t, "LevelDB(memory)", func(t testing.TB) db.KVDB {
		database, err := NewMemoryDB()
		if err != nil {
			t.Fatalf("failed to open memory db: %v", err)
		}
		return database
	})

	dbtesting.RunKVDBTests(t, "LevelDB(file)", func(t testing.TB) db.KVDB {
		database, err := NewLevelDB(t.TempDir(), nil)
		if err != nil {
			t.Fatalf("failed to open file db: %v", err)
		}
		return database
	})
}

func TestReopen(t *testing.T) {
	dir := t.TempDir()

	database, err := NewLevelDB(dir, nil)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := database.Put([]byte("persisted"), []byte("value")); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := database.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	database, err = NewLevelDB(dir, nil)
	if err != nil {
		t.Fatalf("failed to reopen db: %v", err)
	}
	defer database.Close()

	val, found, err := database.Get([]byte("persisted"))
	if err != nil || !found || string(val) != "value" {
		t.Errorf("Expected persisted value after reopen, got %q found=%v err=%v", val, found, err)
	}
}

func TestOptions(t *testing.T) {
	// sizes below the minimum are raised, a zero filter size disables the sstable filter
	database, err := NewLevelDB(t.TempDir(), &DBOptions{CacheSizeMB: 1, OpenFilesCacheLimit: 1, BloomBitsPerKey: 0})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	defer database.Close()

	if err := database.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	val, found, err := database.Get([]byte("k"))
	if err != nil || !found || string(val) != "v" {
		t.Errorf("Expected stored value, got %q found=%v err=%v", val, found, err)
	}
	if info := database.GetInfo(); info.DbType != db.ImplLevelDB {
		t.Errorf("Expected db type %s, got %s", db.ImplLevelDB, info.DbType)
	}
}

func Benchmark(b *testing.B) {
	dbtesting.RunKVDBBenchmarks(b, "LevelDB(memory)", func(t testing.TB) db.KVDB {
		database, err := NewMemoryDB()
		if err != nil {
			t.Fatalf("failed to open memory db: %v", err)
		}
		return database
	})
}
