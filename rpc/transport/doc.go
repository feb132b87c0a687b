// Package transport defines the interfaces for the connection based RPC
// communication of dvkv. It provides a common contract that all transport
// implementations must fulfill, enabling protocol-agnostic communication.
//
// The package focuses on:
//   - Defining clear interfaces for client and server transport layers
//   - Connection lifecycle hooks, so the server can keep one session per connection
//   - Reconnect notification, so the client can restore the session state
//
// Key Components:
//
//   - IRPCClientTransport: Interface for client-side transports holding one connection
//     to one server. Handles request sending and lazy reconnection.
//
//   - IRPCServerTransport: Interface for server-side transports that accept
//     connections and pass their requests to an IConnHandler.
//
//   - IConnHandler: Receives the open, request and close events of every connection.
//
// Implementations (tcp and unix) are built on the base package. The http package
// serves the monitoring endpoints of a server.
package transport
