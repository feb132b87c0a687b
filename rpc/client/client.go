package client

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ValentinKolb/dvkv/lib/catalog"
	"github.com/ValentinKolb/dvkv/lib/store"
	"github.com/ValentinKolb/dvkv/rpc/common"
	"github.com/ValentinKolb/dvkv/rpc/serializer"
	"github.com/ValentinKolb/dvkv/rpc/transport"
	"github.com/puzpuzpuz/xsync/v3"
)

// Client is a dvkv client. It keeps one connection per server endpoint and routes
// data commands through the operator installed by Use.
// All methods are safe for concurrent use, but a batch belongs to the server
// sessions of the client, so only one goroutine should drive a batch at a time.
type Client struct {
	uri        common.URI
	config     common.ClientConfig
	serializer serializer.IRPCSerializer
	transports map[string]transport.ClientFactory
	pool       *xsync.MapOf[string, *conn]
	primary    *conn

	mu       sync.RWMutex
	database string
	operator IOperator
}

var _ IOperator = (*Client)(nil)

// NewClient connects to the server of uri (scheme://address/database).
// transports maps the uri schemes to client transport factories.
// If uri names a database, Use is called for it.
//
// Usage:
//
//	c, err := client.NewClient(
//		"tcp://localhost:8080/users",
//		common.ClientConfig{TimeoutSecond: 5, RetryCount: 3},
//		serializer.NewBinarySerializer(),
//		map[string]transport.ClientFactory{common.SchemeTCP: tcp.NewTCPClientTransport},
//	)
func NewClient(
	uri string,
	config common.ClientConfig,
	serializer serializer.IRPCSerializer,
	transports map[string]transport.ClientFactory,
) (*Client, error) {
	parsed, err := common.ParseURI(uri)
	if err != nil {
		return nil, err
	}

	c := &Client{
		uri:        parsed,
		config:     config,
		serializer: serializer,
		transports: transports,
		pool:       xsync.NewMapOf[string, *conn](),
	}

	if c.primary, err = c.connect(parsed); err != nil {
		return nil, err
	}

	if parsed.Database != "" {
		if err := c.Use(parsed.Database); err != nil {
			_ = c.Close()
			return nil, err
		}
	}
	return c, nil
}

// Use selects the database for all data commands.
// For a cluster database a connection to every shard is opened (or reused) and
// bound to the shard's database. If any shard fails, no operator is installed.
func (c *Client) Use(database string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	results, err := c.primary.use(database)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return store.NewError(store.RetCInternalError, "use returned no partition count")
	}
	partitions, err := common.DecodeInt64(results[0])
	if err != nil {
		return err
	}

	shardURIs := results[1:]
	if len(shardURIs) == 0 {
		c.database = database
		c.operator = newSingleOperator(c.primary)
		Logger.Debugf("using %s on %s", database, c.primary.endpoint)
		return nil
	}

	// the primary session is no longer bound to the previous database
	c.database = ""
	c.operator = nil

	if int(partitions) != len(shardURIs) {
		return store.Errorf(store.RetCInternalError, "cluster %s has %d partitions but %d shards", database, partitions, len(shardURIs))
	}

	uris := make([]common.URI, len(shardURIs))
	endpoints := make(map[string]struct{}, len(shardURIs))
	for i, raw := range shardURIs {
		u, err := common.ParseURI(string(raw))
		if err != nil {
			return store.Errorf(store.RetCMalformedRequest, "invalid shard %d of %s: %v", i, database, err)
		}
		if _, dup := endpoints[u.Endpoint()]; dup {
			return store.Errorf(store.RetCMalformedRequest, "shards of %s share the endpoint %s", database, u.Endpoint())
		}
		endpoints[u.Endpoint()] = struct{}{}
		uris[i] = u
	}

	shards := make([]IOperator, len(uris))
	for i, u := range uris {
		sc, err := c.connect(u)
		if err != nil {
			return err
		}
		results, err := sc.use(u.Database)
		if err != nil {
			return fmt.Errorf("failed to use shard %d (%s): %w", i, u, err)
		}
		if len(results) != 1 {
			return store.Errorf(store.RetCMalformedRequest, "shard %d (%s) is a cluster itself", i, u)
		}
		shards[i] = newSingleOperator(sc)
	}

	c.database = database
	c.operator = newClusterOperator(shards, c.config)
	Logger.Debugf("using cluster %s with %d shards", database, len(shards))
	return nil
}

// Database returns the selected database, "" before Use
func (c *Client) Database() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.database
}

// Operator returns the installed operator
func (c *Client) Operator() (IOperator, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.operator == nil {
		return nil, store.ErrNoDatabaseSelected
	}
	return c.operator, nil
}

// Close closes all connections
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.operator = nil
	c.database = ""

	var firstErr error
	c.pool.Range(func(endpoint string, pc *conn) bool {
		if err := pc.transport.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		c.pool.Delete(endpoint)
		return true
	})
	return firstErr
}

// connect returns the pooled connection of the endpoint of uri
func (c *Client) connect(uri common.URI) (*conn, error) {
	factory, ok := c.transports[uri.Scheme]
	if !ok {
		return nil, fmt.Errorf("no transport for scheme %q", uri.Scheme)
	}

	var dialErr error
	pc, _ := c.pool.Compute(uri.Endpoint(), func(old *conn, loaded bool) (*conn, bool) {
		if loaded {
			return old, false
		}
		pc, err := dial(uri, c.config, c.serializer, factory)
		if err != nil {
			dialErr = err
			return nil, true
		}
		return pc, false
	})
	if dialErr != nil {
		return nil, dialErr
	}
	return pc, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see IOperator)
// --------------------------------------------------------------------------

func (c *Client) Get(keys ...[]byte) ([]Value, error) {
	o, err := c.Operator()
	if err != nil {
		return nil, err
	}
	return o.Get(keys...)
}

func (c *Client) GetAt(key []byte, version int64) (Value, error) {
	o, err := c.Operator()
	if err != nil {
		return Value{}, err
	}
	return o.GetAt(key, version)
}

func (c *Client) Version(keys ...[]byte) ([]int64, error) {
	o, err := c.Operator()
	if err != nil {
		return nil, err
	}
	return o.Version(keys...)
}

func (c *Client) Put(key, value []byte) (int64, error) {
	o, err := c.Operator()
	if err != nil {
		return store.VersionNone, err
	}
	return o.Put(key, value)
}

func (c *Client) PutAll(keys, values [][]byte) ([]int64, error) {
	o, err := c.Operator()
	if err != nil {
		return nil, err
	}
	return o.PutAll(keys, values)
}

func (c *Client) Exists(keys ...[]byte) ([]bool, error) {
	o, err := c.Operator()
	if err != nil {
		return nil, err
	}
	return o.Exists(keys...)
}

func (c *Client) PutEx(policy store.ExPolicy, key, value []byte) (bool, error) {
	o, err := c.Operator()
	if err != nil {
		return false, err
	}
	return o.PutEx(policy, key, value)
}

func (c *Client) GetEx(keys ...[]byte) ([]Value, error) {
	o, err := c.Operator()
	if err != nil {
		return nil, err
	}
	return o.GetEx(keys...)
}

func (c *Client) BatchBegin() error {
	o, err := c.Operator()
	if err != nil {
		return err
	}
	return o.BatchBegin()
}

func (c *Client) BatchAbort() error {
	o, err := c.Operator()
	if err != nil {
		return err
	}
	return o.BatchAbort()
}

func (c *Client) BatchCommit() error {
	o, err := c.Operator()
	if err != nil {
		return err
	}
	return o.BatchCommit()
}

// Shards returns the shard count of the selected database, 0 before Use
func (c *Client) Shards() int {
	o, err := c.Operator()
	if err != nil {
		return 0
	}
	return o.Shards()
}

// --------------------------------------------------------------------------
// Database Administration (primary connection only)
// --------------------------------------------------------------------------

// CreateDatabase registers a new database on the primary server
func (c *Client) CreateDatabase(info catalog.DatabaseInfo) error {
	raw, err := json.Marshal(info)
	if err != nil {
		return store.Errorf(store.RetCMalformedRequest, "invalid database info: %v", err)
	}
	_, err = c.primary.call(common.MsgTCreateDatabase, raw)
	return err
}

// EnableDatabase enables a database on the primary server
func (c *Client) EnableDatabase(name string) error {
	_, err := c.primary.call(common.MsgTEnableDatabase, []byte(name))
	return err
}

// DisableDatabase disables a database on the primary server
func (c *Client) DisableDatabase(name string) error {
	_, err := c.primary.call(common.MsgTDisableDatabase, []byte(name))
	return err
}

// DropDatabase removes a database and all its data from the primary server
func (c *Client) DropDatabase(name string) error {
	_, err := c.primary.call(common.MsgTDropDatabase, []byte(name))
	if err != nil {
		return err
	}
	if c.primary.boundDatabase() == name {
		c.primary.setDatabase("")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.database == name {
		if _, single := c.operator.(*singleOperator); single {
			c.database = ""
			c.operator = nil
		}
	}
	return nil
}

// ShowDatabases lists the databases of the primary server
func (c *Client) ShowDatabases() ([]catalog.DatabaseInfo, error) {
	results, err := c.primary.call(common.MsgTShowDatabases)
	if err != nil {
		return nil, err
	}
	infos := make([]catalog.DatabaseInfo, len(results))
	for i, raw := range results {
		if err := json.Unmarshal(raw, &infos[i]); err != nil {
			return nil, store.Errorf(store.RetCInternalError, "invalid database info: %v", err)
		}
	}
	return infos, nil
}

// ClusterInfo returns the cluster topologies known to the primary server
func (c *Client) ClusterInfo() (map[string][]string, error) {
	results, err := c.primary.call(common.MsgTClusterInfo)
	if err != nil {
		return nil, err
	}
	if err := expectResults(results, 1); err != nil {
		return nil, err
	}
	var clusters map[string][]string
	if err := json.Unmarshal(results[0], &clusters); err != nil {
		return nil, store.Errorf(store.RetCInternalError, "invalid cluster info: %v", err)
	}
	return clusters, nil
}
