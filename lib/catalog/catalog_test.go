package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/dvkv/lib/db"
	"github.com/ValentinKolb/dvkv/lib/store"
	"github.com/ValentinKolb/dvkv/lib/store/lstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallEngines() *lstore.Options {
	return &lstore.Options{CacheEntries: 128, CacheSizeMB: 1, BloomBits: 1 << 12, BloomHashes: 3}
}

func newTestManager(t *testing.T, config Config) *Manager {
	t.Helper()
	if config.EngineOptions == nil {
		config.EngineOptions = smallEngines()
	}
	m, err := NewManager(config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestCreateValidation(t *testing.T) {
	m := newTestManager(t, Config{Engine: db.ImplMemory})

	err := m.Create(DatabaseInfo{Name: ""})
	assert.True(t, errors.Is(err, store.ErrMalformedRequest))

	err = m.Create(DatabaseInfo{Name: "a/b"})
	assert.True(t, errors.Is(err, store.ErrMalformedRequest))

	err = m.Create(DatabaseInfo{Name: "neg", Partitions: -1})
	assert.True(t, errors.Is(err, store.ErrMalformedRequest))

	require.NoError(t, m.Create(DatabaseInfo{Name: "users"}))
	err = m.Create(DatabaseInfo{Name: "users", Partitions: 3})
	assert.True(t, errors.Is(err, store.ErrDatabaseExists))

	info, ok := m.GetDatabase("users")
	require.True(t, ok)
	assert.Equal(t, 1, info.Partitions, "0 partitions should default to 1")
	assert.True(t, info.Enabled)
}

func TestEnableDisable(t *testing.T) {
	m := newTestManager(t, Config{Engine: db.ImplMemory})
	require.NoError(t, m.Create(DatabaseInfo{Name: "users"}))

	_, err := m.Open("users")
	require.NoError(t, err)

	require.NoError(t, m.Disable("users"))
	_, err = m.Open("users")
	assert.True(t, errors.Is(err, store.ErrDatabaseNotFound), "disabled databases can not be opened")

	info, ok := m.GetDatabase("users")
	require.True(t, ok)
	assert.False(t, info.Enabled)

	require.NoError(t, m.Enable("users"))
	_, err = m.Open("users")
	assert.NoError(t, err)

	assert.True(t, errors.Is(m.Enable("missing"), store.ErrDatabaseNotFound))
}

func TestOpenSharesEngine(t *testing.T) {
	m := newTestManager(t, Config{Engine: db.ImplMemory})
	require.NoError(t, m.Create(DatabaseInfo{Name: "users"}))

	first, err := m.Open("users")
	require.NoError(t, err)
	second, err := m.Open("users")
	require.NoError(t, err)
	assert.Same(t, first, second)

	h := first.NewHandle()
	_, err = h.Put([]byte("k"), []byte("v"))
	require.NoError(t, err)

	value, found, err := second.NewHandle().Get([]byte("k"), store.VersionLatest)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v"), value)

	_, err = m.Open("missing")
	assert.True(t, errors.Is(err, store.ErrDatabaseNotFound))

	assert.Len(t, m.Info(), 1)
}

func TestRegistrationsSurviveRestart(t *testing.T) {
	dir := t.TempDir()
	config := Config{DataDir: dir, Engine: db.ImplLevelDB, EngineOptions: smallEngines()}

	m, err := NewManager(config)
	require.NoError(t, err)
	require.NoError(t, m.Create(DatabaseInfo{Name: "users", Partitions: 3}))
	require.NoError(t, m.Create(DatabaseInfo{Name: "orders"}))
	require.NoError(t, m.Disable("orders"))

	engine, err := m.Open("users")
	require.NoError(t, err)
	_, err = engine.NewHandle().Put([]byte("k"), []byte("v"))
	require.NoError(t, err)
	require.NoError(t, m.Close())

	m, err = NewManager(config)
	require.NoError(t, err)
	defer m.Close()

	infos := m.List()
	require.Len(t, infos, 2)
	assert.Equal(t, "orders", infos[0].Name)
	assert.False(t, infos[0].Enabled)
	assert.Equal(t, "users", infos[1].Name)
	assert.Equal(t, 3, infos[1].Partitions)
	assert.Equal(t, filepath.Join(dir, "db", "users"), infos[1].RootDir)

	engine, err = m.Open("users")
	require.NoError(t, err)
	version, err := engine.NewHandle().GetVersion([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), version)
}

func TestDropRemovesData(t *testing.T) {
	dir := t.TempDir()
	m := newTestManager(t, Config{DataDir: dir, Engine: db.ImplPebble})

	require.NoError(t, m.Create(DatabaseInfo{Name: "users"}))
	engine, err := m.Open("users")
	require.NoError(t, err)
	_, err = engine.NewHandle().Put([]byte("k"), []byte("v"))
	require.NoError(t, err)

	root := filepath.Join(dir, "db", "users")
	_, err = os.Stat(root)
	require.NoError(t, err)

	require.NoError(t, m.Drop("users"))
	_, err = os.Stat(root)
	assert.True(t, os.IsNotExist(err), "root directory should be removed")

	_, ok := m.GetDatabase("users")
	assert.False(t, ok)
	assert.True(t, errors.Is(m.Drop("users"), store.ErrDatabaseNotFound))

	// the name can be reused and starts empty
	require.NoError(t, m.Create(DatabaseInfo{Name: "users"}))
	engine, err = m.Open("users")
	require.NoError(t, err)
	exists, err := engine.NewHandle().Exists([]byte("k"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStartupDatabasesAndClusters(t *testing.T) {
	m := newTestManager(t, Config{
		Engine:    db.ImplMemory,
		Databases: []DatabaseInfo{{Name: "users", Partitions: 2}},
		Clusters:  map[string][]string{"users": {"tcp://a:1/users", "tcp://b:1/users"}},
	})

	info, ok := m.GetDatabase("users")
	require.True(t, ok)
	assert.Equal(t, 2, info.Partitions)

	shards, ok := m.GetClusterTopology("users")
	require.True(t, ok)
	assert.Equal(t, []string{"tcp://a:1/users", "tcp://b:1/users"}, shards)

	// returned topologies are copies
	shards[0] = "changed"
	shards, _ = m.GetClusterTopology("users")
	assert.Equal(t, "tcp://a:1/users", shards[0])

	_, ok = m.GetClusterTopology("orders")
	assert.False(t, ok)
	assert.Len(t, m.Clusters(), 1)
}

func TestInvalidConfig(t *testing.T) {
	_, err := NewManager(Config{Engine: db.ImplLevelDB})
	assert.Error(t, err, "file backed engines need a data directory")

	_, err = NewManager(Config{
		Engine:   db.ImplMemory,
		Clusters: map[string][]string{"users": {"tcp://a:1/users"}},
	})
	assert.Error(t, err, "clusters need at least two shards")

	_, err = NewManager(Config{
		Engine:    db.ImplMemory,
		Databases: []DatabaseInfo{{Name: "users", Partitions: 3}},
		Clusters:  map[string][]string{"users": {"tcp://a:1/users", "tcp://b:1/users"}},
	})
	assert.Error(t, err, "partition count must match the shard count")
}

func TestOpenDB(t *testing.T) {
	for _, impl := range []db.Implementation{db.ImplMemory, db.ImplPebbleMem} {
		database, err := OpenDB(impl, "")
		require.NoError(t, err, impl)
		require.NoError(t, database.Close())
	}

	_, err := OpenDB("unknown", "")
	assert.Error(t, err)
}
