// Package server implements the dvkv RPC server: sessions, command executors
// and the request loop on top of a server transport.
//
// The package focuses on:
//   - One Session per transport connection, created on open and closed on close
//   - Executing commands with the executors of an explicit Registry
//   - Reading the own open batch (read-your-writes inside a batch)
//   - Request metrics exported via github.com/VictoriaMetrics/metrics
//
// Key Components:
//
//   - Session: The state of one connection. It starts unbound, use binds it to a
//     database handle (store.IStore). While a batch is open, get, getAt, version,
//     exists and getEx look into the staged batch first so the session sees its own
//     writes, other sessions see them only after batchCommit. Closing a session
//     discards its open batch.
//
//   - Registry: Maps every common.MessageType to an Executor. DefaultRegistry
//     registers all commands, custom registries can replace or add executors.
//
//   - RPCServer: Glues transport, serializer, catalog and registry together.
//     Requests of one connection are executed serially in arrival order.
//
// Commands:
//
//	use <db>                      -> be64 partitions, shard URIs... (cluster) or none (local)
//	get <key>...                  -> value cell per key
//	getAt <key> <be64 version>    -> value cell
//	version <key>...              -> be64 version per key (-1 if absent)
//	put <key> <value>...          -> be64 new version per pair
//	exists <key>...               -> bool byte per key
//	putEx <policy> <key> <value>  -> bool byte (written)
//	getEx <key>...                -> value cell per key
//	batchBegin | batchAbort | batchCommit
//	createDatabase <json>, enableDatabase | disableDatabase | dropDatabase <name>
//	showDatabases                 -> json per database
//	clusterInfo                   -> json object cluster -> shard URIs
//
// Data commands before use fail with NoDatabaseSelected. A use of a cluster name
// returns the topology and leaves the session unbound, the client connects to
// the shards itself.
//
// Metrics:
//
//	dvkv_requests_total{command}             requests per command
//	dvkv_request_errors_total{command,code}  failed requests per command and error kind
//	dvkv_request_duration_seconds{command}   latency histogram per command
//	dvkv_sessions_opened_total, dvkv_sessions_closed_total
//	dvkv_batch_commits_total, dvkv_batch_aborts_total
//	dvkv_malformed_requests_total            requests that could not be decoded
package server
