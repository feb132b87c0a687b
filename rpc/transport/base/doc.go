// Package base provides a foundation for the connection based transports of dvkv,
// implementing core functionality for RPC communication independent of the specific
// network protocol (TCP, Unix sockets). It serves as a base layer that can be
// extended with protocol-specific connectors.
//
// The package focuses on:
//   - Protocol-agnostic client and server transport implementations
//   - Frame-based message protocol with requestID tracking
//   - Connection lifecycle events for per-connection server state
//   - Lazy reconnection with a reconnect notification
//
// Key Components:
//
//   - IClientConnector/IServerConnector: Interfaces for protocol-specific operations
//     that allow extending the base transport with different network protocols.
//
//   - clientTransport: Holds one connection to one server. Requests of concurrent
//     callers are multiplexed over the connection and correlated by request ID.
//     A broken connection is re-established by the next Send, afterwards the
//     registered ReconnectFunc is called. Other requests wait until the ReconnectFunc
//     returned, so it can restore the connection state first. Requests are only retried
//     if they could not be written, a request that reached the server is never repeated.
//
//   - serverTransport: Accepts connections and handles the requests of each connection
//     serially in arrival order, which gives every connection a consistent session.
//     The IConnHandler is notified when a connection is opened and closed.
//
// Frame format:
//
//	8 bytes requestID (uint64, big endian)
//	4 bytes data length (uint32, big endian)
//	N bytes data
//
// Thread Safety:
//
//	All public methods are thread-safe. The server creates a dedicated goroutine
//	for each connection, the client one reader goroutine per connection.
package base
