package server

import (
	"github.com/ValentinKolb/dvkv/lib/catalog"
	"github.com/ValentinKolb/dvkv/lib/store"
	"github.com/ValentinKolb/dvkv/lib/store/lstore"
	"github.com/gofrs/uuid/v5"
)

// ICatalog is the part of the database catalog the server needs
type ICatalog interface {
	catalog.IRegistry

	// Open returns the shared engine of an enabled database
	Open(name string) (*lstore.Engine, error)
	// Create registers a new database
	Create(info catalog.DatabaseInfo) error
	// Enable enables a database
	Enable(name string) error
	// Disable disables a database
	Disable(name string) error
	// Drop removes a database and its data
	Drop(name string) error
	// List returns all databases
	List() []catalog.DatabaseInfo
	// Clusters returns all cluster topologies
	Clusters() map[string][]string
}

// --------------------------------------------------------------------------
// Session
// --------------------------------------------------------------------------

// Session is the server side state of one client connection.
//
//	NO_DB --use--> BOUND --batchBegin--> BATCHING --batchAbort/batchCommit--> BOUND
//
// A session is used by one connection and is not safe for concurrent use.
type Session struct {
	ID     uuid.UUID
	ConnID uint64

	catalog  ICatalog
	database string       // name of the bound database
	handle   store.IStore // nil until use
}

// NewSession creates an unbound session for a connection
func NewSession(connID uint64, catalog ICatalog) *Session {
	return &Session{
		ID:      uuid.Must(uuid.NewV4()),
		ConnID:  connID,
		catalog: catalog,
	}
}

// Database returns the name of the bound database, "" if unbound
func (s *Session) Database() string {
	return s.database
}

// Bound reports whether the session is bound to a database
func (s *Session) Bound() bool {
	return s.handle != nil
}

// InBatch reports whether the session has an open batch
func (s *Session) InBatch() bool {
	return s.handle != nil && s.handle.InBatch()
}

// Close discards the open batch of the session
func (s *Session) Close() {
	if s.InBatch() {
		Logger.Infof("session %s closed with an open batch of %d operations, discarding it",
			s.ID, s.handle.Pending().Len())
		_ = s.handle.BatchAbort()
	}
	s.unbind()
}

func (s *Session) bind(database string, handle store.IStore) {
	s.database = database
	s.handle = handle
}

func (s *Session) unbind() {
	s.database = ""
	s.handle = nil
}

// store returns the handle of the bound database.
// It fails with DatabaseNotFound once the database was disabled or dropped, the binding is kept.
func (s *Session) store() (store.IStore, error) {
	h, err := s.boundStore()
	if err != nil {
		return nil, err
	}
	if info, ok := s.catalog.GetDatabase(s.database); !ok || !info.Enabled {
		return nil, store.Errorf(store.RetCDatabaseNotFound, "database %q is disabled or was dropped", s.database)
	}
	return h, nil
}

// boundStore returns the handle of the bound database regardless of its state
func (s *Session) boundStore() (store.IStore, error) {
	if s.handle == nil {
		return nil, store.ErrNoDatabaseSelected
	}
	return s.handle, nil
}

// --------------------------------------------------------------------------
// Reads (see the own open batch)
// --------------------------------------------------------------------------

// version returns the current version of key, staged versions of the open batch first
func (s *Session) version(key []byte) (int64, error) {
	h, err := s.store()
	if err != nil {
		return store.VersionNone, err
	}

	if pending := h.Pending(); pending != nil {
		if raw, deleted, staged := pending.Lookup(store.EncodeVersionKey(key)); staged && !deleted {
			if version, ok := store.DecodeVersion(raw); ok {
				return version, nil
			}
		}
	}
	return h.GetVersion(key)
}

// get returns the value of key at version (store.VersionLatest for the current one)
func (s *Session) get(key []byte, version int64) ([]byte, bool, error) {
	h, err := s.store()
	if err != nil {
		return nil, false, err
	}

	pending := h.Pending()
	if pending == nil {
		return h.Get(key, version)
	}

	if version < 0 {
		if version, err = s.version(key); err != nil {
			return nil, false, err
		}
		if version == store.VersionNone {
			return nil, false, nil
		}
	}

	if value, deleted, staged := pending.Lookup(store.EncodeDataKey(key, version)); staged {
		return value, !deleted, nil
	}
	return h.Get(key, version)
}

// exists reports whether key has at least one version
func (s *Session) exists(key []byte) (bool, error) {
	version, err := s.version(key)
	return version != store.VersionNone, err
}

// getEx returns the existence slot of key
func (s *Session) getEx(key []byte) ([]byte, bool, error) {
	h, err := s.store()
	if err != nil {
		return nil, false, err
	}

	if pending := h.Pending(); pending != nil {
		if value, deleted, staged := pending.Lookup(store.EncodeExKey(key)); staged {
			return value, !deleted, nil
		}
	}
	return h.GetEx(key)
}

// --------------------------------------------------------------------------
// Writes
// --------------------------------------------------------------------------

// put writes all pairs and returns the new versions.
// Without a batch all pairs are written with a single byte-store write.
// While batching the versions are those of the session view, the commit appends the
// staged writes to the versions stored by then.
func (s *Session) put(keys, values [][]byte) ([]int64, error) {
	h, err := s.store()
	if err != nil {
		return nil, err
	}

	if !h.InBatch() {
		if len(keys) == 1 {
			version, err := h.Put(keys[0], values[0])
			if err != nil {
				return nil, err
			}
			return []int64{version}, nil
		}
		return h.PutAll(keys, values)
	}

	versions := make([]int64, len(keys))
	for i := range keys {
		current, err := s.version(keys[i])
		if err != nil {
			return nil, err
		}
		if versions[i], err = h.Set(keys[i], values[i], current); err != nil {
			return nil, err
		}
	}
	return versions, nil
}

// putEx writes the existence slot of key if the existence of key matches policy
func (s *Session) putEx(key, value []byte, policy store.ExPolicy) (bool, error) {
	h, err := s.store()
	if err != nil {
		return false, err
	}

	if !h.InBatch() {
		return h.SetExisting(key, value, policy)
	}

	if policy != store.EXISTING && policy != store.NOT_EXISTING {
		return false, store.Errorf(store.RetCMalformedRequest, "unknown policy %s", policy)
	}
	found, err := s.exists(key)
	if err != nil {
		return false, err
	}
	if (policy == store.EXISTING) != found {
		return false, nil
	}
	return true, h.SetEx(key, value)
}
