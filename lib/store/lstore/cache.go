package lstore

import (
	"github.com/ValentinKolb/dvkv/lib/store"
	"github.com/coocood/freecache"
	lru "github.com/hashicorp/golang-lru"
)

// valueCache is the positive read cache of an engine.
// Version pointers are small and hot, so they live in an entry bounded LRU as decoded
// int64. Values live in a byte bounded freecache which copies on Get.
// Both are populated by writes and by read misses, entries are never invalidated by writes.
type valueCache struct {
	versions *lru.Cache       // user key -> int64
	data     *freecache.Cache // data storage key -> value
}

func newValueCache(entries int, dataMB int) (*valueCache, error) {
	c := &valueCache{}
	if entries > 0 {
		versions, err := lru.New(entries)
		if err != nil {
			return nil, err
		}
		c.versions = versions
	}
	if dataMB > 0 {
		c.data = freecache.NewCache(dataMB * 1024 * 1024)
	}
	if c.versions == nil && c.data == nil {
		return nil, nil
	}
	return c, nil
}

func (c *valueCache) getVersion(key []byte) (int64, bool) {
	if c.versions == nil {
		return store.VersionNone, false
	}
	v, ok := c.versions.Get(string(key))
	if !ok {
		return store.VersionNone, false
	}
	return v.(int64), true
}

func (c *valueCache) addVersion(key []byte, version int64) {
	if c.versions != nil {
		c.versions.Add(string(key), version)
	}
}

func (c *valueCache) getData(storageKey []byte) ([]byte, bool) {
	if c.data == nil {
		return nil, false
	}
	v, err := c.data.Get(storageKey)
	if err != nil {
		return nil, false
	}
	if v == nil {
		v = []byte{}
	}
	return v, true
}

func (c *valueCache) addData(storageKey, value []byte) {
	if c.data != nil {
		// entries larger than 1/1024 of the cache are rejected, they are simply not cached
		_ = c.data.Set(storageKey, value, 0)
	}
}

func (c *valueCache) removeData(storageKey []byte) {
	if c.data != nil {
		c.data.Del(storageKey)
	}
}

func (c *valueCache) len() (versions int, data int64) {
	if c.versions != nil {
		versions = c.versions.Len()
	}
	if c.data != nil {
		data = c.data.EntryCount()
	}
	return versions, data
}
