package testing

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/ValentinKolb/dvkv/lib/db"
)

// DBFactory is a function that creates a new, empty instance of a KVDB implementation.
// It may use t for temporary directories and to fail the test on setup errors.
type DBFactory func(t testing.TB) db.KVDB

// RunKVDBTests runs a comprehensive test suite for a KVDB implementation.
func RunKVDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Put&Get", func(t *testing.T) {
			testPutGet(t, factory(t))
		})

		t.Run("Has", func(t *testing.T) {
			testHas(t, factory(t))
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory(t))
		})

		t.Run("Batch", func(t *testing.T) {
			testBatch(t, factory(t))
		})

		t.Run("Iterate", func(t *testing.T) {
			testIterate(t, factory(t))
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, factory(t))
		})

		t.Run("Concurrent", func(t *testing.T) {
			testConcurrent(t, factory(t))
		})

		t.Run("Info", func(t *testing.T) {
			testInfo(t, factory(t))
		})
	})
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testPutGet(t *testing.T, database db.KVDB) {
	defer database.Close()

	testKey := []byte("test-key")
	testValue1 := []byte("test-value1")
	testValue2 := []byte("test-value2")

	if err := database.Put(testKey, testValue1); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	result, found, err := database.Get(testKey)
	if err != nil || !found {
		t.Fatalf("Expected key %s to exist after Put (err=%v)", testKey, err)
	}
	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}

	if err := database.Put(testKey, testValue2); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	result, found, _ = database.Get(testKey)
	if !found || !bytes.Equal(result, testValue2) {
		t.Errorf("Expected overwritten value %s, got %s", testValue2, result)
	}

	_, found, err = database.Get([]byte("nonexistent-key"))
	if err != nil {
		t.Errorf("Get of missing key should not fail: %v", err)
	}
	if found {
		t.Errorf("Expected nonexistent key to return found=false")
	}

	// Get must return a copy
	retrievedValue, _, _ := database.Get(testKey)
	retrievedValue[0] = 'X'

	originalValue, _, _ := database.Get(testKey)
	if bytes.Equal(retrievedValue, originalValue) {
		t.Errorf("Get should return a copy, not a reference to the stored value")
	}
}

func testHas(t *testing.T, database db.KVDB) {
	defer database.Close()

	if ok, _ := database.Has([]byte("k")); ok {
		t.Errorf("Has should return false for missing key")
	}

	_ = database.Put([]byte("k"), []byte("v"))

	if ok, err := database.Has([]byte("k")); !ok || err != nil {
		t.Errorf("Has should return true after Put (err=%v)", err)
	}

	// prefix of an existing key is not the key
	if ok, _ := database.Has([]byte("")); ok {
		t.Errorf("Has should return false for empty key")
	}
}

func testDelete(t *testing.T, database db.KVDB) {
	defer database.Close()

	key := []byte("delete-key")
	_ = database.Put(key, []byte("v"))

	if err := database.Delete(key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, found, _ := database.Get(key); found {
		t.Errorf("Key should not exist after Delete")
	}

	if err := database.Delete([]byte("never-existed")); err != nil {
		t.Errorf("Deleting a missing key should not fail: %v", err)
	}
}

func testBatch(t *testing.T, database db.KVDB) {
	defer database.Close()

	_ = database.Put([]byte("to-delete"), []byte("x"))

	batch := db.NewBatch()
	batch.Put([]byte("a"), []byte("1"))
	batch.Put([]byte("b"), []byte("2"))
	batch.Put([]byte("a"), []byte("3")) // last write wins
	batch.Delete([]byte("to-delete"))

	if batch.Len() != 4 {
		t.Errorf("Expected batch length 4, got %d", batch.Len())
	}

	// nothing visible before Write
	if _, found, _ := database.Get([]byte("a")); found {
		t.Errorf("Batch writes must not be visible before Write")
	}

	if err := database.Write(batch); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if v, _, _ := database.Get([]byte("a")); string(v) != "3" {
		t.Errorf("Expected a=3, got %q", v)
	}
	if v, _, _ := database.Get([]byte("b")); string(v) != "2" {
		t.Errorf("Expected b=2, got %q", v)
	}
	if _, found, _ := database.Get([]byte("to-delete")); found {
		t.Errorf("Expected to-delete to be removed by batch")
	}

	// empty and nil batches are no-ops
	if err := database.Write(db.NewBatch()); err != nil {
		t.Errorf("Writing an empty batch should not fail: %v", err)
	}
	if err := database.Write(nil); err != nil {
		t.Errorf("Writing a nil batch should not fail: %v", err)
	}
}

func testIterate(t *testing.T, database db.KVDB) {
	defer database.Close()

	for _, k := range []string{"p/3", "p/1", "q/1", "p/2", "o/9"} {
		_ = database.Put([]byte(k), []byte("v"+k))
	}

	var keys []string
	err := database.Iterate([]byte("p/"), func(key, value []byte) bool {
		if !bytes.Equal(value, []byte("v"+string(key))) {
			t.Errorf("Unexpected value %q for key %q", value, key)
		}
		keys = append(keys, string(key))
		return true
	})
	if err != nil {
		t.Fatalf("Iterate failed: %v", err)
	}

	expected := []string{"p/1", "p/2", "p/3"}
	if fmt.Sprint(keys) != fmt.Sprint(expected) {
		t.Errorf("Expected keys %v in order, got %v", expected, keys)
	}

	// early stop
	count := 0
	_ = database.Iterate([]byte("p/"), func(key, value []byte) bool {
		count++
		return false
	})
	if count != 1 {
		t.Errorf("Expected iteration to stop after first entry, visited %d", count)
	}

	// empty prefix visits everything
	count = 0
	_ = database.Iterate(nil, func(key, value []byte) bool {
		count++
		return true
	})
	if count != 5 {
		t.Errorf("Expected 5 entries for empty prefix, got %d", count)
	}
}

func testEdgeCases(t *testing.T, database db.KVDB) {
	defer database.Close()

	// empty value is distinct from a missing key
	_ = database.Put([]byte("empty"), []byte{})
	v, found, err := database.Get([]byte("empty"))
	if err != nil || !found {
		t.Errorf("Expected empty value to be found (err=%v)", err)
	}
	if len(v) != 0 {
		t.Errorf("Expected empty value, got %q", v)
	}

	// binary keys with zero bytes
	binKey := []byte{0x00, 0x01, 0x00, 0xff}
	_ = database.Put(binKey, []byte("bin"))
	if v, _, _ := database.Get(binKey); string(v) != "bin" {
		t.Errorf("Expected binary key to round trip, got %q", v)
	}
	if _, found, _ := database.Get(binKey[:3]); found {
		t.Errorf("Prefix of binary key should not be found")
	}

	// large value
	large := bytes.Repeat([]byte("x"), 1<<20)
	_ = database.Put([]byte("large"), large)
	if v, _, _ := database.Get([]byte("large")); !bytes.Equal(v, large) {
		t.Errorf("Large value did not round trip")
	}
}

func testConcurrent(t *testing.T, database db.KVDB) {
	defer database.Close()

	const workers = 8
	const perWorker = 200

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				key := []byte(fmt.Sprintf("w%d-k%d", w, i))
				if err := database.Put(key, key); err != nil {
					t.Errorf("concurrent Put failed: %v", err)
					return
				}
				if v, found, err := database.Get(key); err != nil || !found || !bytes.Equal(v, key) {
					t.Errorf("concurrent Get mismatch for %s", key)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	count := 0
	_ = database.Iterate([]byte("w"), func(key, value []byte) bool {
		count++
		return true
	})
	if count != workers*perWorker {
		t.Errorf("Expected %d entries, got %d", workers*perWorker, count)
	}
}

func testInfo(t *testing.T, database db.KVDB) {
	defer database.Close()

	info := database.GetInfo()
	if info.DbType == "" {
		t.Errorf("Expected implementation name in info")
	}
}
