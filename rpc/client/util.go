package client

import (
	"fmt"
	"sync"

	"github.com/ValentinKolb/dvkv/lib/store"
	"github.com/ValentinKolb/dvkv/rpc/common"
	"github.com/ValentinKolb/dvkv/rpc/serializer"
	"github.com/ValentinKolb/dvkv/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("client")
)

// conn is one pooled server connection. The server keeps one session per connection,
// conn remembers the database of that session to restore it after a reconnect.
type conn struct {
	endpoint   string
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer

	mu       sync.Mutex
	database string // database bound on the server session, "" if none
}

// dial connects a new transport to the endpoint of uri
func dial(
	uri common.URI,
	config common.ClientConfig,
	serializer serializer.IRPCSerializer,
	factory transport.ClientFactory,
) (*conn, error) {
	t := factory()
	if err := t.Connect(uri.Address, config); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", uri.Endpoint(), err)
	}

	c := &conn{
		endpoint:   uri.Endpoint(),
		transport:  t,
		serializer: serializer,
	}
	t.OnReconnect(c.reuse)
	return c, nil
}

// call sends one request and returns the results of the response.
// Error responses are returned as *store.Error.
func (c *conn) call(command common.MessageType, args ...[]byte) ([][]byte, error) {
	return c.callVia(c.transport.Send, command, args...)
}

// callVia is call with an explicit send function
func (c *conn) callVia(send func([]byte) ([]byte, error), command common.MessageType, args ...[]byte) ([][]byte, error) {
	// Serialize the request
	reqBytes, err := c.serializer.Serialize(*common.NewRequest(command, args...))
	if err != nil {
		return nil, store.Errorf(store.RetCInternalError, "failed to serialize %s request: %v", command, err)
	}

	// Send the request
	respBytes, err := send(reqBytes)
	if err != nil {
		if store.CodeOf(err) == store.RetCTimeout {
			return nil, err
		}
		return nil, fmt.Errorf("%s %s: %w", c.endpoint, command, err)
	}

	// Deserialize the response
	resp := &common.Message{}
	if err := c.serializer.Deserialize(respBytes, resp); err != nil {
		return nil, store.Errorf(store.RetCInternalError, "failed to deserialize %s response: %v", command, err)
	}

	// Check if the response is an error response
	if err := resp.Err(); err != nil {
		return nil, err
	}

	// Check if the type of the response is the expected type
	if resp.MsgType != command {
		return nil, store.Errorf(store.RetCInternalError, "unexpected response type %s, expected %s", resp.MsgType, command)
	}
	return resp.Args, nil
}

// use binds the server session to database and returns the use results
func (c *conn) use(database string) ([][]byte, error) {
	results, err := c.call(common.MsgTUse, []byte(database))
	if err != nil {
		return nil, err
	}
	c.setDatabase(database)
	if len(results) > 1 {
		// a cluster name leaves the session unbound
		c.setDatabase("")
	}
	return results, nil
}

// reuse restores the session binding after the transport reconnected
func (c *conn) reuse(send func([]byte) ([]byte, error)) {
	database := c.boundDatabase()
	if database == "" {
		return
	}
	if _, err := c.callVia(send, common.MsgTUse, []byte(database)); err != nil {
		Logger.Warningf("failed to restore database %s on %s after reconnect: %v", database, c.endpoint, err)
		return
	}
	Logger.Infof("restored database %s on %s after reconnect", database, c.endpoint)
}

func (c *conn) setDatabase(database string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.database = database
}

func (c *conn) boundDatabase() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.database
}

// --------------------------------------------------------------------------
// Result Decoding
// --------------------------------------------------------------------------

func expectResults(results [][]byte, n int) error {
	if len(results) != n {
		return store.Errorf(store.RetCInternalError, "expected %d results, got %d", n, len(results))
	}
	return nil
}

func decodeValues(results [][]byte) ([]Value, error) {
	values := make([]Value, len(results))
	for i, raw := range results {
		data, found, err := common.DecodeCell(raw)
		if err != nil {
			return nil, err
		}
		values[i] = Value{Data: data, Found: found}
	}
	return values, nil
}

func decodeInt64s(results [][]byte) ([]int64, error) {
	out := make([]int64, len(results))
	for i, raw := range results {
		v, err := common.DecodeInt64(raw)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func decodeBools(results [][]byte) ([]bool, error) {
	out := make([]bool, len(results))
	for i, raw := range results {
		v, err := common.DecodeBool(raw)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
