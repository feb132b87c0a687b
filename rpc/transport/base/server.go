package base

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dvkv/rpc/common"
	"github.com/ValentinKolb/dvkv/rpc/transport"
	"github.com/puzpuzpuz/xsync/v3"
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IServerConnector defines the interface for transport-specific server operations
type IServerConnector interface {
	// Listen creates a listener on the endpoint and returns it
	Listen(endpoint string) (net.Listener, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an accepted connection
	UpgradeConnection(conn net.Conn) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// serverTransport implements the core server transport functionality
type serverTransport struct {
	connector  IServerConnector
	handler    transport.IConnHandler
	config     common.ServerConfig
	listener   net.Listener
	bufferSize int

	conns      *xsync.MapOf[uint64, net.Conn]
	nextConnID atomic.Uint64
	closed     atomic.Bool
	wg         sync.WaitGroup
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseServerTransport creates a new base server transport.
// bufferSize is the initial read buffer size of each connection.
func NewBaseServerTransport(connector IServerConnector, bufferSize int) transport.IRPCServerTransport {
	return &serverTransport{
		connector:  connector,
		bufferSize: max(bufferSize, frameHeaderSize),
		conns:      xsync.NewMapOf[uint64, net.Conn](),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *serverTransport) RegisterHandler(handler transport.IConnHandler) {
	t.handler = handler
}

func (t *serverTransport) Listen(config common.ServerConfig) error {
	if t.handler == nil {
		return fmt.Errorf("no handler registered")
	}
	t.config = config

	// Create listener using the connector
	listener, err := t.connector.Listen(config.Endpoint)
	if err != nil {
		return fmt.Errorf("failed to create listener: %v", err)
	}
	t.listener = listener

	Logger.Infof("Starting %s server on %s", t.connector.GetName(), listener.Addr())

	t.wg.Add(1)
	go t.acceptLoop()
	return nil
}

func (t *serverTransport) Addr() string {
	if t.listener == nil {
		return ""
	}
	return t.listener.Addr().String()
}

func (t *serverTransport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}

	var err error
	if t.listener != nil {
		err = t.listener.Close()
	}

	// unblock all connection readers
	t.conns.Range(func(_ uint64, conn net.Conn) bool {
		_ = conn.Close()
		return true
	})

	t.wg.Wait()
	Logger.Infof("Stopped %s server", t.connector.GetName())
	return err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// acceptLoop accepts connections until the listener is closed
func (t *serverTransport) acceptLoop() {
	defer t.wg.Done()

	for {
		conn, err := t.listener.Accept()
		if err != nil {
			if t.closed.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			Logger.Errorf("Accept error: %v", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}

		if err := t.connector.UpgradeConnection(conn); err != nil {
			Logger.Warningf("Failed to upgrade connection from %s: %v", conn.RemoteAddr(), err)
		}

		t.wg.Add(1)
		go t.handleConnection(conn)
	}
}

// handleConnection handles all requests of one connection serially
func (t *serverTransport) handleConnection(conn net.Conn) {
	defer t.wg.Done()

	connID := t.nextConnID.Add(1)
	t.conns.Store(connID, conn)

	// the transport may have been closed between accept and store
	if t.closed.Load() {
		_ = conn.Close()
	}

	t.handler.Open(connID)
	Logger.Debugf("Connection %d opened from %s", connID, conn.RemoteAddr())

	defer func() {
		t.conns.Delete(connID)
		_ = conn.Close()
		t.handler.Close(connID)
		Logger.Debugf("Connection %d closed", connID)
	}()

	timeout := time.Duration(t.config.TimeoutSecond) * time.Second
	buf := make([]byte, t.bufferSize)

	for {
		requestID, data, err := readFrame(conn, buf)
		if err != nil {
			// Case EOF or shutdown: connection closed regularly
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || t.closed.Load() {
				return
			}
			Logger.Errorf("Error reading request on connection %d: %v", connID, err)
			return
		}

		// keep a grown buffer for the next request
		if cap(data) > cap(buf) {
			buf = data[:cap(data)]
		}

		start := time.Now()
		resp := t.handler.Handle(connID, data)
		Logger.Debugf("Processed request %d on connection %d in %s", requestID, connID, time.Since(start))

		if timeout > 0 {
			if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
				Logger.Errorf("Failed to set write deadline: %v", err)
				return
			}
		}

		// Write the response with the same requestID
		if err := writeFrame(conn, requestID, resp); err != nil {
			Logger.Errorf("Failed to write response on connection %d: %v", connID, err)
			return
		}
	}
}
