package server

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/dvkv/lib/catalog"
	"github.com/ValentinKolb/dvkv/lib/store"
	"github.com/ValentinKolb/dvkv/rpc/common"
)

// Executor executes one command for a session.
// args are the request parameters, results the response results.
type Executor func(s *Session, args [][]byte) (results [][]byte, err error)

// --------------------------------------------------------------------------
// Registry
// --------------------------------------------------------------------------

// Registry maps commands to executors
type Registry struct {
	executors map[common.MessageType]Executor
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{executors: make(map[common.MessageType]Executor)}
}

// DefaultRegistry creates a registry with executors for all commands
func DefaultRegistry() *Registry {
	r := NewRegistry()

	// session
	r.Register(common.MsgTUse, execUse)

	// data
	r.Register(common.MsgTGet, execGet)
	r.Register(common.MsgTGetAt, execGetAt)
	r.Register(common.MsgTVersion, execVersion)
	r.Register(common.MsgTPut, execPut)
	r.Register(common.MsgTExists, execExists)
	r.Register(common.MsgTPutEx, execPutEx)
	r.Register(common.MsgTGetEx, execGetEx)

	// batches
	r.Register(common.MsgTBatchBegin, execBatchBegin)
	r.Register(common.MsgTBatchAbort, execBatchAbort)
	r.Register(common.MsgTBatchCommit, execBatchCommit)

	// admin
	r.Register(common.MsgTCreateDatabase, execCreateDatabase)
	r.Register(common.MsgTEnableDatabase, execEnableDatabase)
	r.Register(common.MsgTDisableDatabase, execDisableDatabase)
	r.Register(common.MsgTDropDatabase, execDropDatabase)
	r.Register(common.MsgTShowDatabases, execShowDatabases)
	r.Register(common.MsgTClusterInfo, execClusterInfo)

	return r
}

// Register sets the executor of a command, replacing an existing one
func (r *Registry) Register(command common.MessageType, executor Executor) {
	r.executors[command] = executor
}

// Execute runs the executor of the request's command and builds the response
func (r *Registry) Execute(s *Session, req *common.Message) *common.Message {
	executor, ok := r.executors[req.MsgType]
	if !ok {
		return common.NewErrorResponse(req.MsgType,
			store.Errorf(store.RetCMalformedRequest, "unsupported command %s", req.MsgType))
	}

	results, err := executor(s, req.Args)
	if err != nil {
		return common.NewErrorResponse(req.MsgType, err)
	}
	return common.NewResponse(req.MsgType, results...)
}

// --------------------------------------------------------------------------
// Parameter Validation
// --------------------------------------------------------------------------

func expectArgs(args [][]byte, n int) error {
	if len(args) != n {
		return store.Errorf(store.RetCMalformedRequest, "expected %d parameters, got %d", n, len(args))
	}
	return nil
}

func expectKeys(args [][]byte) error {
	if len(args) == 0 {
		return store.NewError(store.RetCMalformedRequest, "expected at least one key")
	}
	return nil
}

// --------------------------------------------------------------------------
// Session Executors
// --------------------------------------------------------------------------

// execUse binds the session to a local database or returns the topology of a cluster:
// results = [be64 partitions, shard URIs...]
func execUse(s *Session, args [][]byte) ([][]byte, error) {
	if err := expectArgs(args, 1); err != nil {
		return nil, err
	}
	if s.InBatch() {
		return nil, store.NewError(store.RetCBatchInProgress, "can not change the database while a batch is open")
	}
	name := string(args[0])

	if shards, ok := s.catalog.GetClusterTopology(name); ok {
		s.unbind()
		results := make([][]byte, 0, 1+len(shards))
		results = append(results, common.EncodeInt64(int64(len(shards))))
		for _, shard := range shards {
			results = append(results, []byte(shard))
		}
		Logger.Debugf("session %s: %s is a cluster of %d shards", s.ID, name, len(shards))
		return results, nil
	}

	info, ok := s.catalog.GetDatabase(name)
	if !ok || !info.Enabled {
		return nil, store.Errorf(store.RetCDatabaseNotFound, "database %q not found", name)
	}

	engine, err := s.catalog.Open(name)
	if err != nil {
		return nil, err
	}
	s.bind(name, engine.NewHandle())

	Logger.Debugf("session %s: using %s", s.ID, name)
	return [][]byte{common.EncodeInt64(int64(info.Partitions))}, nil
}

// --------------------------------------------------------------------------
// Data Executors
// --------------------------------------------------------------------------

func execGet(s *Session, args [][]byte) ([][]byte, error) {
	if err := expectKeys(args); err != nil {
		return nil, err
	}
	results := make([][]byte, len(args))
	for i, key := range args {
		value, found, err := s.get(key, store.VersionLatest)
		if err != nil {
			return nil, err
		}
		results[i] = common.EncodeCell(value, found)
	}
	return results, nil
}

func execGetAt(s *Session, args [][]byte) ([][]byte, error) {
	if err := expectArgs(args, 2); err != nil {
		return nil, err
	}
	version, err := common.DecodeInt64(args[1])
	if err != nil {
		return nil, err
	}
	value, found, err := s.get(args[0], version)
	if err != nil {
		return nil, err
	}
	return [][]byte{common.EncodeCell(value, found)}, nil
}

func execVersion(s *Session, args [][]byte) ([][]byte, error) {
	if err := expectKeys(args); err != nil {
		return nil, err
	}
	results := make([][]byte, len(args))
	for i, key := range args {
		version, err := s.version(key)
		if err != nil {
			return nil, err
		}
		results[i] = common.EncodeInt64(version)
	}
	return results, nil
}

func execExists(s *Session, args [][]byte) ([][]byte, error) {
	if err := expectKeys(args); err != nil {
		return nil, err
	}
	results := make([][]byte, len(args))
	for i, key := range args {
		exists, err := s.exists(key)
		if err != nil {
			return nil, err
		}
		results[i] = common.EncodeBool(exists)
	}
	return results, nil
}

// execPut writes key/value pairs: args = [key, value, key, value, ...]
func execPut(s *Session, args [][]byte) ([][]byte, error) {
	if len(args) == 0 || len(args)%2 != 0 {
		return nil, store.Errorf(store.RetCMalformedRequest, "expected key/value pairs, got %d parameters", len(args))
	}

	keys := make([][]byte, 0, len(args)/2)
	values := make([][]byte, 0, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		keys = append(keys, args[i])
		values = append(values, args[i+1])
	}

	versions, err := s.put(keys, values)
	if err != nil {
		return nil, err
	}

	results := make([][]byte, len(versions))
	for i, v := range versions {
		results[i] = common.EncodeInt64(v)
	}
	return results, nil
}

// execPutEx writes an existence slot: args = [policy, key, value]
func execPutEx(s *Session, args [][]byte) ([][]byte, error) {
	if err := expectArgs(args, 3); err != nil {
		return nil, err
	}
	if len(args[0]) != 1 || store.ExPolicy(args[0][0]) > store.NOT_EXISTING {
		return nil, store.NewError(store.RetCMalformedRequest, "invalid existence policy")
	}

	written, err := s.putEx(args[1], args[2], store.ExPolicy(args[0][0]))
	if err != nil {
		return nil, err
	}
	return [][]byte{common.EncodeBool(written)}, nil
}

func execGetEx(s *Session, args [][]byte) ([][]byte, error) {
	if err := expectKeys(args); err != nil {
		return nil, err
	}
	results := make([][]byte, len(args))
	for i, key := range args {
		value, found, err := s.getEx(key)
		if err != nil {
			return nil, err
		}
		results[i] = common.EncodeCell(value, found)
	}
	return results, nil
}

// --------------------------------------------------------------------------
// Batch Executors
// --------------------------------------------------------------------------

func execBatchBegin(s *Session, args [][]byte) ([][]byte, error) {
	if err := expectArgs(args, 0); err != nil {
		return nil, err
	}
	h, err := s.store()
	if err != nil {
		return nil, err
	}
	return nil, h.BatchBegin()
}

func execBatchAbort(s *Session, args [][]byte) ([][]byte, error) {
	if err := expectArgs(args, 0); err != nil {
		return nil, err
	}
	h, err := s.boundStore()
	if err != nil {
		return nil, err
	}
	if err := h.BatchAbort(); err != nil {
		return nil, err
	}
	batchAborts.Inc()
	return nil, nil
}

func execBatchCommit(s *Session, args [][]byte) ([][]byte, error) {
	if err := expectArgs(args, 0); err != nil {
		return nil, err
	}
	h, err := s.store()
	if err != nil {
		return nil, err
	}
	if err := h.BatchCommit(); err != nil {
		return nil, err
	}
	batchCommits.Inc()
	return nil, nil
}

// --------------------------------------------------------------------------
// Admin Executors
// --------------------------------------------------------------------------

// execCreateDatabase registers a database: args = [JSON catalog.DatabaseInfo]
func execCreateDatabase(s *Session, args [][]byte) ([][]byte, error) {
	if err := expectArgs(args, 1); err != nil {
		return nil, err
	}
	var info catalog.DatabaseInfo
	if err := json.Unmarshal(args[0], &info); err != nil {
		return nil, store.Errorf(store.RetCMalformedRequest, "invalid database info: %v", err)
	}
	return nil, s.catalog.Create(info)
}

func execEnableDatabase(s *Session, args [][]byte) ([][]byte, error) {
	if err := expectArgs(args, 1); err != nil {
		return nil, err
	}
	return nil, s.catalog.Enable(string(args[0]))
}

func execDisableDatabase(s *Session, args [][]byte) ([][]byte, error) {
	if err := expectArgs(args, 1); err != nil {
		return nil, err
	}
	return nil, s.catalog.Disable(string(args[0]))
}

func execDropDatabase(s *Session, args [][]byte) ([][]byte, error) {
	if err := expectArgs(args, 1); err != nil {
		return nil, err
	}
	name := string(args[0])
	if s.Database() == name {
		if s.InBatch() {
			return nil, store.NewError(store.RetCBatchInProgress, "can not drop the database of an open batch")
		}
		s.unbind()
	}
	return nil, s.catalog.Drop(name)
}

// execShowDatabases returns one JSON catalog.DatabaseInfo per database
func execShowDatabases(s *Session, args [][]byte) ([][]byte, error) {
	if err := expectArgs(args, 0); err != nil {
		return nil, err
	}
	infos := s.catalog.List()
	results := make([][]byte, len(infos))
	for i, info := range infos {
		raw, err := json.Marshal(info)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", info.Name, err)
		}
		results[i] = raw
	}
	return results, nil
}

// execClusterInfo returns the cluster topologies as one JSON object
func execClusterInfo(s *Session, args [][]byte) ([][]byte, error) {
	if err := expectArgs(args, 0); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(s.catalog.Clusters())
	if err != nil {
		return nil, fmt.Errorf("failed to encode clusters: %w", err)
	}
	return [][]byte{raw}, nil
}
