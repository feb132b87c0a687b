package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ValentinKolb/dvkv/lib/db"
	"github.com/ValentinKolb/dvkv/lib/db/engines/level"
	"github.com/ValentinKolb/dvkv/lib/db/engines/pebble"
	"github.com/ValentinKolb/dvkv/lib/store"
	"github.com/ValentinKolb/dvkv/lib/store/lstore"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("catalog")

// registrationPrefix is the key prefix of database registrations in the catalog store
const registrationPrefix = "db/"

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// DatabaseInfo is the registration of one database
type DatabaseInfo struct {
	Name       string `json:"name"`
	RootDir    string `json:"root_dir"`
	Partitions int    `json:"partitions"`
	Enabled    bool   `json:"enabled"`
}

func (i DatabaseInfo) String() string {
	state := "enabled"
	if !i.Enabled {
		state = "disabled"
	}
	return fmt.Sprintf("%s (%s, partitions=%d, dir=%s)", i.Name, state, i.Partitions, i.RootDir)
}

// IRegistry is the read-only view on the database catalog used to serve sessions
type IRegistry interface {
	// GetDatabase returns the registration of name.
	GetDatabase(name string) (info DatabaseInfo, ok bool)
	// GetClusterTopology returns the ordered shard URIs of a cluster-mode database.
	GetClusterTopology(name string) (shards []string, ok bool)
}

// Config configures a Manager
type Config struct {
	DataDir       string              // Directory for the catalog and default database dirs ("" = in memory)
	Engine        db.Implementation   // Byte-store used for new databases
	EngineOptions *lstore.Options     // Options of every opened engine
	Databases     []DatabaseInfo      // Databases registered at startup if missing
	Clusters      map[string][]string // Cluster topologies (cluster name -> shard URIs)
}

// Manager owns the database catalog and the open engines.
// All methods are safe for concurrent use.
type Manager struct {
	config   Config
	catalog  db.KVDB
	mu       sync.Mutex // serializes lifecycle changes
	infos    *xsync.MapOf[string, DatabaseInfo]
	engines  *xsync.MapOf[string, *lstore.Engine]
	clusters map[string][]string
}

var _ IRegistry = (*Manager)(nil)

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewManager opens the catalog, loads all persisted registrations and registers
// the configured startup databases that are not known yet.
func NewManager(config Config) (*Manager, error) {
	if config.Engine == "" {
		config.Engine = db.ImplLevelDB
	}
	if config.DataDir == "" && (config.Engine == db.ImplLevelDB || config.Engine == db.ImplPebble) {
		return nil, fmt.Errorf("engine %s requires a data directory", config.Engine)
	}

	clusters := make(map[string][]string, len(config.Clusters))
	for name, shards := range config.Clusters {
		if len(shards) < 2 {
			return nil, fmt.Errorf("cluster %q needs at least 2 shards, got %d", name, len(shards))
		}
		clusters[name] = append([]string(nil), shards...)
	}

	catalogDB, err := openCatalog(config.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	m := &Manager{
		config:   config,
		catalog:  catalogDB,
		infos:    xsync.NewMapOf[string, DatabaseInfo](),
		engines:  xsync.NewMapOf[string, *lstore.Engine](),
		clusters: clusters,
	}

	if err := m.load(); err != nil {
		_ = catalogDB.Close()
		return nil, err
	}

	for _, info := range config.Databases {
		if _, ok := m.infos.Load(info.Name); ok {
			continue
		}
		if err := m.Create(info); err != nil {
			_ = catalogDB.Close()
			return nil, fmt.Errorf("failed to register database %q: %w", info.Name, err)
		}
	}

	// a cluster with a local registration must agree on the partition count
	for name, shards := range clusters {
		if info, ok := m.infos.Load(name); ok && info.Partitions != len(shards) {
			_ = catalogDB.Close()
			return nil, fmt.Errorf("cluster %q has %d shards but database has %d partitions", name, len(shards), info.Partitions)
		}
	}

	Logger.Infof("catalog ready with %d databases and %d clusters", m.infos.Size(), len(clusters))
	return m, nil
}

func openCatalog(dataDir string) (db.KVDB, error) {
	if dataDir == "" {
		return level.NewMemoryDB()
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	return level.NewLevelDB(filepath.Join(dataDir, "catalog"), nil)
}

// load reads all persisted registrations
func (m *Manager) load() error {
	var decodeErr error
	err := m.catalog.Iterate([]byte(registrationPrefix), func(key, value []byte) bool {
		var info DatabaseInfo
		if err := json.Unmarshal(value, &info); err != nil {
			decodeErr = fmt.Errorf("corrupt registration %q: %w", key, err)
			return false
		}
		m.infos.Store(info.Name, info)
		return true
	})
	if err != nil {
		return store.WrapStorage(err, "failed to read catalog")
	}
	return decodeErr
}

// --------------------------------------------------------------------------
// Interface Methods (docu see IRegistry)
// --------------------------------------------------------------------------

func (m *Manager) GetDatabase(name string) (DatabaseInfo, bool) {
	return m.infos.Load(name)
}

func (m *Manager) GetClusterTopology(name string) ([]string, bool) {
	shards, ok := m.clusters[name]
	if !ok {
		return nil, false
	}
	return append([]string(nil), shards...), true
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// Create registers a new, enabled database.
// A partition count of 0 means 1, an empty root directory means <data-dir>/db/<name>.
func (m *Manager) Create(info DatabaseInfo) error {
	info.Name = strings.TrimSpace(info.Name)
	if info.Name == "" {
		return store.NewError(store.RetCMalformedRequest, "database name must not be empty")
	}
	if strings.ContainsAny(info.Name, "/\\") {
		return store.Errorf(store.RetCMalformedRequest, "database name %q must not contain path separators", info.Name)
	}
	if info.Partitions < 0 {
		return store.Errorf(store.RetCMalformedRequest, "negative partition count %d", info.Partitions)
	}
	if info.Partitions == 0 {
		info.Partitions = 1
	}
	if info.RootDir == "" && m.config.DataDir != "" {
		info.RootDir = filepath.Join(m.config.DataDir, "db", info.Name)
	}
	info.Enabled = true

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.infos.Load(info.Name); exists {
		return store.Errorf(store.RetCDatabaseExists, "database %q already exists", info.Name)
	}
	if err := m.persist(info); err != nil {
		return err
	}
	m.infos.Store(info.Name, info)

	Logger.Infof("created database %s", info)
	return nil
}

// Enable makes a database serviceable again
func (m *Manager) Enable(name string) error {
	return m.setEnabled(name, true)
}

// Disable makes use of a database fail with DatabaseNotFound. Data is kept. Sessions already
// bound to the database stay bound, but their data commands fail with DatabaseNotFound until
// the database is enabled again.
func (m *Manager) Disable(name string) error {
	return m.setEnabled(name, false)
}

func (m *Manager) setEnabled(name string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, ok := m.infos.Load(name)
	if !ok {
		return store.Errorf(store.RetCDatabaseNotFound, "database %q not found", name)
	}
	if info.Enabled == enabled {
		return nil
	}

	info.Enabled = enabled
	if err := m.persist(info); err != nil {
		return err
	}
	m.infos.Store(name, info)

	Logger.Infof("changed database %s", info)
	return nil
}

// Drop closes the engine of a database and removes its registration and all its data.
// This can not be undone.
func (m *Manager) Drop(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, ok := m.infos.Load(name)
	if !ok {
		return store.Errorf(store.RetCDatabaseNotFound, "database %q not found", name)
	}

	if engine, loaded := m.engines.LoadAndDelete(name); loaded {
		if err := engine.Close(); err != nil {
			Logger.Warningf("failed to close engine of %q: %v", name, err)
		}
	}

	if err := m.catalog.Delete([]byte(registrationPrefix + name)); err != nil {
		return store.WrapStorage(err, "failed to remove registration of %q", name)
	}
	m.infos.Delete(name)

	if info.RootDir != "" {
		if err := os.RemoveAll(info.RootDir); err != nil {
			return store.WrapStorage(err, "failed to remove data of %q", name)
		}
	}

	Logger.Infof("dropped database %s", info)
	return nil
}

// List returns all registrations sorted by name
func (m *Manager) List() []DatabaseInfo {
	infos := make([]DatabaseInfo, 0, m.infos.Size())
	m.infos.Range(func(_ string, info DatabaseInfo) bool {
		infos = append(infos, info)
		return true
	})
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Clusters returns a copy of all cluster topologies
func (m *Manager) Clusters() map[string][]string {
	out := make(map[string][]string, len(m.clusters))
	for name, shards := range m.clusters {
		out[name] = append([]string(nil), shards...)
	}
	return out
}

// Open returns the engine of an enabled database, opening it on first use.
// The engine is shared by all callers.
func (m *Manager) Open(name string) (*lstore.Engine, error) {
	info, ok := m.infos.Load(name)
	if !ok || !info.Enabled {
		return nil, store.Errorf(store.RetCDatabaseNotFound, "database %q not found", name)
	}

	var openErr error
	engine, _ := m.engines.Compute(name, func(old *lstore.Engine, loaded bool) (*lstore.Engine, bool) {
		if loaded {
			return old, false
		}
		engine, err := m.openEngine(info)
		if err != nil {
			openErr = err
			return nil, true
		}
		return engine, false
	})
	if openErr != nil {
		return nil, openErr
	}
	return engine, nil
}

func (m *Manager) openEngine(info DatabaseInfo) (*lstore.Engine, error) {
	database, err := OpenDB(m.config.Engine, info.RootDir)
	if err != nil {
		return nil, store.WrapStorage(err, "failed to open database %q", info.Name)
	}
	engine, err := lstore.NewEngine(info.Name, database, m.config.EngineOptions)
	if err != nil {
		_ = database.Close()
		return nil, err
	}
	return engine, nil
}

// Info returns the statistics of all open engines
func (m *Manager) Info() []lstore.Info {
	var infos []lstore.Info
	m.engines.Range(func(_ string, engine *lstore.Engine) bool {
		infos = append(infos, engine.Info())
		return true
	})
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Close closes all open engines and the catalog
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.engines.Range(func(name string, engine *lstore.Engine) bool {
		if err := engine.Close(); err != nil {
			Logger.Warningf("failed to close engine of %q: %v", name, err)
		}
		m.engines.Delete(name)
		return true
	})
	return m.catalog.Close()
}

// --------------------------------------------------------------------------
// Helper Functions
// --------------------------------------------------------------------------

func (m *Manager) persist(info DatabaseInfo) error {
	raw, err := json.Marshal(info)
	if err != nil {
		return store.Errorf(store.RetCInternalError, "failed to encode registration: %v", err)
	}
	if err := m.catalog.Put([]byte(registrationPrefix+info.Name), raw); err != nil {
		return store.WrapStorage(err, "failed to persist registration of %q", info.Name)
	}
	return nil
}

// OpenDB opens a byte-store of the given implementation. File backed
// implementations store their data in dir.
func OpenDB(impl db.Implementation, dir string) (db.KVDB, error) {
	switch impl {
	case db.ImplLevelDB:
		return level.NewLevelDB(dir, nil)
	case db.ImplPebble:
		return pebble.NewPebbleDB(dir, nil)
	case db.ImplMemory:
		return level.NewMemoryDB()
	case db.ImplPebbleMem:
		return pebble.NewMemoryDB()
	default:
		return nil, fmt.Errorf("unknown engine %q", impl)
	}
}
