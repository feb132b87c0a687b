// Package rpc is the communication layer of dvkv. It carries the commands of
// a client session to the server that owns the selected database.
//
// The package is organized into several subpackages:
//
//   - common: The Message protocol with its command types, the value codecs,
//     database URIs, client and server configuration, and logging.
//
//   - transport: Framed, request id multiplexed connections with pluggable
//     implementations (TCP, Unix sockets) and the HTTP monitoring server.
//
//   - serializer: Message serialization with multiple format options (Binary, JSON, GOB)
//     for converting between Message objects and byte arrays.
//
//   - client: The Client with its operators. A single operator talks to one
//     database, the cluster operator routes keys to the shards of a
//     partitioned database and fans batch commands out to all of them.
//
//   - server: The RPC server. Every connection gets a session that binds a
//     database and may hold an open batch, commands are run by a registry of executors.
package rpc
