// Package client implements the dvkv client. It binds to a database with use and
// routes data commands either to a single server or, for cluster databases, to
// the shard of every key.
//
// The package focuses on:
//   - One pooled connection per server endpoint, shared by all databases of a client
//   - Deterministic key partitioning (FNV-1a of the key modulo the shard count)
//   - Parallel fan-out of batch commands to all shards with a bounded wait
//   - Restoring the session binding after the transport reconnected
//
// Key Components:
//
//   - Client: Created with NewClient for a URI like tcp://localhost:8080/users.
//     Use issues use on the primary connection. A local database installs a
//     single operator, a cluster database returns its shard URIs, the client
//     then connects to every shard and binds it to the shard's database.
//     Administration (CreateDatabase, DropDatabase, ShowDatabases, ...) always
//     runs on the primary connection.
//
//   - IOperator: The data commands (Get, GetAt, Version, Put, PutAll, Exists,
//     PutEx, GetEx, BatchBegin, BatchAbort, BatchCommit). The Client delegates
//     to the operator installed by Use, before Use every call fails with
//     store.ErrNoDatabaseSelected.
//
//   - Partitioner: Maps a key to a shard index. The mapping only depends on the
//     key bytes and the shard count.
//
// Cluster Batches:
//
// Batch commands are sent to all shards in parallel. There is no atomicity across
// shards: every shard commits its own part. common.ClientConfig.FanOut selects
// how shard errors are handled:
//
//	best-effort  shard errors are logged, the call succeeds (default)
//	strict       shard errors are returned joined, errors.Is works per kind
//
// FanOutTimeoutSecond bounds the wait for all shards (RetCTimeout when expired).
// Shard calls still running when the wait expires are not cancelled.
//
// Usage Example:
//
//	c, err := client.NewClient(
//		"tcp://localhost:8080/users",
//		common.ClientConfig{TimeoutSecond: 5, RetryCount: 3},
//		serializer.NewBinarySerializer(),
//		map[string]transport.ClientFactory{common.SchemeTCP: tcp.NewTCPClientTransport},
//	)
//	if err != nil {
//		panic(err)
//	}
//	defer c.Close()
//
//	version, _ := c.Put([]byte("alice"), []byte("admin"))
//	values, _ := c.Get([]byte("alice"))
//
//	_ = c.BatchBegin()
//	_, _ = c.Put([]byte("bob"), []byte("user"))
//	_ = c.BatchCommit()
//
// Thread Safety:
//
//	All methods are safe for concurrent use. The connections and the server sessions
//	are shared by all goroutines of a client, so a batch opened by one goroutine
//	contains the writes of all goroutines until it is committed.
package client
