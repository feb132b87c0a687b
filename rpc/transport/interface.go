package transport

import (
	"github.com/ValentinKolb/dvkv/rpc/common"
)

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// IConnHandler handles the connections of a server transport.
// Requests of one connection are passed to Handle serially in arrival order,
// requests of different connections concurrently.
type IConnHandler interface {
	// Open is called when a new connection was accepted
	Open(connID uint64)
	// Handle processes one request of the connection and returns the response.
	// req is only valid during the call.
	Handle(connID uint64, req []byte) (resp []byte)
	// Close is called once the connection is gone, no further Handle call follows
	Close(connID uint64)
}

// IRPCServerTransport is the interface for the RPC server transport layer
type IRPCServerTransport interface {
	// RegisterHandler registers the handler for all connections.
	// It must be called before Listen.
	RegisterHandler(handler IConnHandler)
	// Listen binds the configured endpoint and serves connections in the background
	Listen(config common.ServerConfig) error
	// Addr returns the bound address, empty before Listen
	Addr() string
	// Close stops accepting connections and closes all open connections
	Close() error
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// ReconnectFunc is called by a client transport after a lost connection was re-established.
// send writes a request on the new connection. Requests of all other callers are held
// until the function returned.
type ReconnectFunc func(send func(req []byte) (resp []byte, err error))

// IRPCClientTransport is the interface for the RPC client transport.
// A client transport holds a single connection to one server and is safe for concurrent use.
type IRPCClientTransport interface {
	// Connect connects to address (host:port for tcp, the socket path for unix)
	Connect(address string, config common.ClientConfig) error
	// Send sends a request to the server and returns the response.
	// A lost connection is re-established before the request is sent.
	Send(req []byte) (resp []byte, err error)
	// OnReconnect registers fn to be called after the connection was re-established
	OnReconnect(fn ReconnectFunc)
	// Close closes the transport connection
	Close() error
}

// ClientFactory creates a new, unconnected client transport
type ClientFactory func() IRPCClientTransport
