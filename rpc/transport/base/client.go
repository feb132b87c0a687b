package base

import (
	"fmt"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dvkv/lib/store"
	"github.com/ValentinKolb/dvkv/rpc/common"
	"github.com/ValentinKolb/dvkv/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("transport/rpc")

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection to the address
	Connect(address string) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.ClientConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// clientConnection represents a single net connection and its response reader
type clientConnection struct {
	conn    net.Conn
	writeMu sync.Mutex // Serializes frame writes
	pending *xsync.MapOf[uint64, chan []byte]
	done    chan struct{} // Closed when the connection is broken
	ready   chan struct{} // Closed when the connection can be used by all callers
	err     error         // Reason of the break, set before done is closed
	once    sync.Once
}

// clientTransport implements the core client transport functionality
// independent of the specific transport medium (unix, tcp, etc.)
type clientTransport struct {
	connector     IClientConnector
	config        common.ClientConfig
	address       string
	mu            sync.Mutex // Protects conn and serializes reconnects
	conn          *clientConnection
	closed        bool
	nextRequestID atomic.Uint64
	onReconnect   transport.ReconnectFunc
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseClientTransport creates a new base client transport with the specified connector
func NewBaseClientTransport(connector IClientConnector) transport.IRPCClientTransport {
	return &clientTransport{
		connector: connector,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) Connect(address string, config common.ClientConfig) error {
	if address == "" {
		return fmt.Errorf("no address provided")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.address = address
	t.config = config
	t.closed = false

	if t.conn != nil {
		t.conn.fail(fmt.Errorf("replaced by new connection"))
		t.conn = nil
	}

	conn, err := t.dial()
	if err != nil {
		return err
	}
	close(conn.ready)
	t.conn = conn

	Logger.Infof("Connected to %s using %s transport", address, t.connector.GetName())
	return nil
}

func (t *clientTransport) Send(req []byte) ([]byte, error) {
	// Generate a unique request ID
	requestID := t.nextRequestID.Add(1)

	// We always try at least once
	maxRetries := max(t.config.RetryCount, 1)

	// Initial backoff duration in milliseconds
	backoffMs := 50

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		if i > 0 {
			// Exponential backoff with a small random jitter (+-10%)
			jitter := float64(backoffMs) * (0.9 + 0.2*rand.Float64())
			time.Sleep(time.Duration(jitter) * time.Millisecond)
			backoffMs *= 2
		}

		conn, reconnected, err := t.connection()
		if err != nil {
			lastErr = err
			Logger.Debugf("Request attempt %d/%d failed: %v", i+1, maxRetries, err)
			continue
		}

		if reconnected {
			t.restore(conn)
		} else if !conn.wait() {
			lastErr = fmt.Errorf("connection lost: %v", conn.err)
			Logger.Debugf("Request attempt %d/%d failed: %v", i+1, maxRetries, lastErr)
			continue
		}

		data, sent, err := t.roundTrip(conn, requestID, req)
		if err == nil {
			return data, nil
		}

		// requests that reached the server are never repeated
		if sent {
			return nil, err
		}

		conn.fail(err)
		lastErr = err
		Logger.Debugf("Request attempt %d/%d failed: %v", i+1, maxRetries, err)
	}

	// All attempts failed
	return nil, fmt.Errorf("failed to send request after %d attempts: %w", maxRetries, lastErr)
}

func (t *clientTransport) OnReconnect(fn transport.ReconnectFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onReconnect = fn
}

func (t *clientTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	if t.conn != nil {
		t.conn.fail(fmt.Errorf("transport closed"))
		t.conn = nil
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// connection returns a healthy connection, re-establishing a broken one.
// reconnected is true if a new connection was created, the caller must restore it.
func (t *clientTransport) connection() (conn *clientConnection, reconnected bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, false, fmt.Errorf("transport is closed")
	}
	if t.address == "" {
		return nil, false, fmt.Errorf("transport is not connected")
	}

	if t.conn != nil && !t.conn.broken() {
		return t.conn, false, nil
	}

	conn, err = t.dial()
	if err != nil {
		return nil, false, err
	}
	t.conn = conn

	Logger.Infof("Reconnected to %s", t.address)
	return conn, true, nil
}

// restore calls the reconnect handler on a new connection and releases the
// requests waiting for it afterwards
func (t *clientTransport) restore(c *clientConnection) {
	defer close(c.ready)

	t.mu.Lock()
	fn := t.onReconnect
	t.mu.Unlock()

	if fn == nil {
		return
	}
	fn(func(req []byte) ([]byte, error) {
		data, _, err := t.roundTrip(c, t.nextRequestID.Add(1), req)
		return data, err
	})
}

// dial establishes a new connection and starts its response reader
func (t *clientTransport) dial() (*clientConnection, error) {
	conn, err := t.connector.Connect(t.address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %v", t.address, err)
	}

	// Upgrade the connection with protocol-specific settings
	if err := t.connector.UpgradeConnection(conn, t.config); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to upgrade connection to %s: %v", t.address, err)
	}

	c := &clientConnection{
		conn:    conn,
		pending: xsync.NewMapOf[uint64, chan []byte](),
		done:    make(chan struct{}),
		ready:   make(chan struct{}),
	}
	go c.readResponses()
	return c, nil
}

// roundTrip sends one request and waits for its response.
// sent reports whether the request was completely written.
func (t *clientTransport) roundTrip(c *clientConnection, requestID uint64, req []byte) (data []byte, sent bool, err error) {
	timeout := time.Duration(t.config.TimeoutSecond) * time.Second

	// Register the request
	respCh := make(chan []byte, 1)
	c.pending.Store(requestID, respCh)
	defer c.pending.Delete(requestID)

	// Lock the connection only for writing
	c.writeMu.Lock()
	if timeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	err = writeFrame(c.conn, requestID, req)
	c.writeMu.Unlock()

	if err != nil {
		return nil, false, err
	}

	// Wait for response or timeout
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case data := <-respCh:
		return data, true, nil
	case <-c.done:
		// the response may have arrived right before the connection broke
		select {
		case data := <-respCh:
			return data, true, nil
		default:
		}
		return nil, true, fmt.Errorf("connection lost: %v", c.err)
	case <-timeoutCh:
		return nil, true, store.Errorf(store.RetCTimeout, "request %d timed out after %s", requestID, timeout)
	}
}

// readResponses reads responses in a loop and distributes them to waiting requests
func (c *clientConnection) readResponses() {
	for {
		requestID, data, err := readFrame(c.conn, nil)
		if err != nil {
			c.fail(fmt.Errorf("error reading response: %v", err))
			return
		}

		if respCh, found := c.pending.Load(requestID); found {
			respCh <- data
		} else {
			// the request already timed out
			Logger.Debugf("Received response for unknown request ID %d", requestID)
		}
	}
}

// fail marks the connection as broken and closes it
func (c *clientConnection) fail(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.done)
		_ = c.conn.Close()
	})
}

// wait blocks until the connection is restored. It returns false if it broke before.
func (c *clientConnection) wait() bool {
	select {
	case <-c.ready:
		return true
	case <-c.done:
		return false
	}
}

// broken reports whether the connection failed
func (c *clientConnection) broken() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
