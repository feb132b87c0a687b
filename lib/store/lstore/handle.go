package lstore

import (
	"github.com/ValentinKolb/dvkv/lib/db"
	"github.com/ValentinKolb/dvkv/lib/store"
)

// write is one logical write of a handle. Its version is assigned when it is applied.
type write struct {
	key   []byte
	value []byte
	slot  bool // existence slot write
}

// handle is the per-session view on an Engine. It owns the session's open batch.
// A handle is used by one session at a time and is not safe for concurrent use.
type handle struct {
	e       *Engine
	batch  *db.Batch // storage entries as seen by the session, nil if no batch is open
	writes []write   // writes of the open batch in staging order, versions are assigned at commit
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store.IStore)
// --------------------------------------------------------------------------

func (h *handle) Get(key []byte, version int64) ([]byte, bool, error) {
	if version < 0 {
		latest, err := h.e.readVersion(key, false)
		if err != nil {
			return nil, false, err
		}
		if latest == store.VersionNone {
			return nil, false, nil
		}
		version = latest
	}
	return h.e.readData(key, store.EncodeDataKey(key, version))
}

func (h *handle) GetVersion(key []byte) (int64, error) {
	return h.e.readVersion(key, false)
}

func (h *handle) Set(key, value []byte, expectedVersion int64) (int64, error) {
	newVersion := expectedVersion + 1

	if h.batch != nil {
		putVersion(h.batch, key, value, newVersion)
		h.stage(write{key: key, value: value})
		return newVersion, nil
	}

	unlock := h.e.lockAll([]int{stripeOf(key)})
	defer unlock()

	b := db.NewBatch()
	putVersion(b, key, value, newVersion)
	if err := h.e.write(b); err != nil {
		return store.VersionNone, err
	}
	return newVersion, nil
}

func (h *handle) Exists(key []byte) (bool, error) {
	version, err := h.e.readVersion(key, false)
	return version != store.VersionNone, err
}

func (h *handle) Put(key, value []byte) (int64, error) {
	if h.batch != nil {
		return store.VersionNone, store.ErrBatchInProgress
	}

	versions, err := h.e.apply([]write{{key: key, value: value}})
	if err != nil {
		return store.VersionNone, err
	}
	return versions[0], nil
}

func (h *handle) PutAll(keys, values [][]byte) ([]int64, error) {
	if h.batch != nil {
		return nil, store.ErrBatchInProgress
	}
	if len(keys) != len(values) {
		return nil, store.Errorf(store.RetCMalformedRequest, "got %d keys but %d values", len(keys), len(values))
	}
	if len(keys) == 0 {
		return []int64{}, nil
	}

	writes := make([]write, len(keys))
	for i := range keys {
		writes[i] = write{key: keys[i], value: values[i]}
	}
	return h.e.apply(writes)
}

func (h *handle) GetEx(key []byte) ([]byte, bool, error) {
	return h.e.readData(key, store.EncodeExKey(key))
}

func (h *handle) HasEx(key []byte) (bool, error) {
	return h.e.hasData(key, store.EncodeExKey(key))
}

func (h *handle) SetExisting(key, value []byte, policy store.ExPolicy) (bool, error) {
	if policy != store.EXISTING && policy != store.NOT_EXISTING {
		return false, store.Errorf(store.RetCMalformedRequest, "unknown policy %s", policy)
	}
	if h.batch != nil {
		return false, store.ErrBatchInProgress
	}

	unlock := h.e.lockAll([]int{stripeOf(key)})
	defer unlock()

	current, err := h.e.readVersion(key, true)
	if err != nil {
		return false, err
	}
	if (policy == store.EXISTING) != (current != store.VersionNone) {
		return false, nil
	}

	b, _, err := h.e.resolve([]write{{key: key, value: value, slot: true}})
	if err != nil {
		return false, err
	}
	if err := h.e.write(b); err != nil {
		return false, err
	}
	return true, nil
}

func (h *handle) SetEx(key, value []byte) error {
	if h.batch != nil {
		current, err := h.stagedVersion(key)
		if err != nil {
			return err
		}
		h.batch.Put(store.EncodeExKey(key), value)
		if current == store.VersionNone {
			h.batch.Put(store.EncodeVersionKey(key), store.EncodeVersion(0))
		}
		h.stage(write{key: key, value: value, slot: true})
		return nil
	}

	_, err := h.e.apply([]write{{key: key, value: value, slot: true}})
	return err
}

func (h *handle) BatchBegin() error {
	if h.batch != nil {
		return store.ErrBatchInProgress
	}
	h.batch = db.NewBatch()
	h.writes = nil
	return nil
}

func (h *handle) BatchAbort() error {
	if h.batch == nil {
		return store.ErrNotInBatchMode
	}
	h.reset()
	return nil
}

func (h *handle) BatchCommit() error {
	if h.batch == nil {
		return store.ErrNotInBatchMode
	}

	// the batch is gone after commit, also if the write fails
	writes := h.writes
	h.reset()

	if len(writes) == 0 {
		return nil
	}
	_, err := h.e.apply(writes)
	return err
}

func (h *handle) InBatch() bool {
	return h.batch != nil
}

func (h *handle) Pending() *db.Batch {
	return h.batch
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (h *handle) stage(w write) {
	w.key = clone(w.key)
	w.value = clone(w.value)
	h.writes = append(h.writes, w)
}

func (h *handle) reset() {
	h.batch = nil
	h.writes = nil
}

// stagedVersion returns the version of key as seen by the open batch
func (h *handle) stagedVersion(key []byte) (int64, error) {
	if raw, deleted, staged := h.batch.Lookup(store.EncodeVersionKey(key)); staged && !deleted {
		if version, ok := store.DecodeVersion(raw); ok {
			return version, nil
		}
	}
	return h.e.readVersion(key, false)
}

// putVersion stages the data entry and the version pointer of one write
func putVersion(b *db.Batch, key, value []byte, version int64) {
	b.Put(store.EncodeDataKey(key, version), value)
	b.Put(store.EncodeVersionKey(key), store.EncodeVersion(version))
}

func clone(b []byte) []byte {
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
