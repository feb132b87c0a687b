package lstore

import (
	"github.com/ValentinKolb/dvkv/lib/db"
	"github.com/ValentinKolb/dvkv/lib/store"
)

// archive implements store.IArchiveStore on an Engine
type archive struct {
	e *Engine
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store.IArchiveStore)
// --------------------------------------------------------------------------

func (a archive) ArchiveGet(key []byte, version int64) ([]byte, bool, error) {
	if version < 0 {
		return nil, false, store.Errorf(store.RetCMalformedRequest, "invalid archive version %d", version)
	}
	return a.e.readData(key, store.EncodeDataKey(key, version))
}

func (a archive) ArchiveSet(key []byte, version int64, value []byte) error {
	if version < 0 {
		return store.Errorf(store.RetCMalformedRequest, "invalid archive version %d", version)
	}

	unlock := a.e.lockAll([]int{stripeOf(key)})
	defer unlock()

	b := db.NewBatch()
	b.Put(store.EncodeDataKey(key, version), value)
	return a.e.write(b)
}

func (a archive) ArchiveRemove(key []byte, version int64) error {
	if version < 0 {
		return store.Errorf(store.RetCMalformedRequest, "invalid archive version %d", version)
	}

	unlock := a.e.lockAll([]int{stripeOf(key)})
	defer unlock()

	b := db.NewBatch()
	b.Delete(store.EncodeDataKey(key, version))
	return a.e.write(b)
}
