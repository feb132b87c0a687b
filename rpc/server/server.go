package server

import (
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/ValentinKolb/dvkv/lib/store"
	"github.com/ValentinKolb/dvkv/rpc/common"
	"github.com/ValentinKolb/dvkv/rpc/serializer"
	"github.com/ValentinKolb/dvkv/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("rpc")

// RPCServer serves the dvkv protocol. It keeps one Session per transport connection
// and executes the requests of each connection with the executors of its Registry.
type RPCServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	catalog    ICatalog
	registry   *Registry
	sessions   *xsync.MapOf[uint64, *Session]
}

// NewRPCServer creates a new RPC server.
// A nil registry means DefaultRegistry.
//
// Usage:
//
//	s := server.NewRPCServer(
//		config,
//		tcp.NewTCPServerTransport(),
//		serializer.NewBinarySerializer(),
//		manager,
//		nil,
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
	catalog ICatalog,
	registry *Registry,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	if registry == nil {
		registry = DefaultRegistry()
	}

	s := &RPCServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		catalog:    catalog,
		registry:   registry,
		sessions:   xsync.NewMapOf[uint64, *Session](),
	}
	transport.RegisterHandler(connHandler{s})

	Logger.Infof("Created RPC Server")
	return s
}

// Serve starts the transport. It returns once the endpoint is bound, connections
// are served in the background until Close.
func (s *RPCServer) Serve() error {
	return s.transport.Listen(s.config)
}

// Addr returns the bound address of the transport
func (s *RPCServer) Addr() string {
	return s.transport.Addr()
}

// Sessions returns the number of open sessions
func (s *RPCServer) Sessions() int {
	return s.sessions.Size()
}

// Close stops the transport. All sessions are closed and their open batches discarded.
func (s *RPCServer) Close() error {
	return s.transport.Close()
}

// --------------------------------------------------------------------------
// Connection Handling (docu see transport.IConnHandler)
// --------------------------------------------------------------------------

// connHandler keeps the transport callbacks off the public API of RPCServer
type connHandler struct {
	s *RPCServer
}

func (h connHandler) Open(connID uint64) {
	session := NewSession(connID, h.s.catalog)
	h.s.sessions.Store(connID, session)
	sessionsOpened.Inc()
	Logger.Debugf("session %s opened for connection %d", session.ID, connID)
}

func (h connHandler) Close(connID uint64) {
	session, ok := h.s.sessions.LoadAndDelete(connID)
	if !ok {
		return
	}
	session.Close()
	sessionsClosed.Inc()
	Logger.Debugf("session %s closed", session.ID)
}

func (h connHandler) Handle(connID uint64, req []byte) []byte {
	var msg common.Message
	var resp *common.Message

	start := time.Now()

	if err := h.s.serializer.Deserialize(req, &msg); err != nil {
		malformedFrames.Inc()
		resp = common.NewErrorResponse(common.MsgTUnknown,
			store.Errorf(store.RetCMalformedRequest, "failed to deserialize request: %v", err))
	} else if session, ok := h.s.sessions.Load(connID); !ok {
		resp = common.NewErrorResponse(msg.MsgType,
			store.Errorf(store.RetCInternalError, "no session for connection %d", connID))
	} else {
		resp = h.s.registry.Execute(session, &msg)
		observe(msg.MsgType, start, resp)
	}

	if resp.Status == common.StatusError {
		Logger.Debugf("connection %d: %s failed: %v", connID, msg.MsgType, resp.Err())
	}

	data, err := h.s.serializer.Serialize(*resp)
	if err != nil {
		Logger.Errorf("failed to serialize response: %v", err)
		data, _ = h.s.serializer.Serialize(*common.NewErrorResponse(msg.MsgType,
			store.Errorf(store.RetCInternalError, "failed to serialize response: %v", err)))
	}
	return data
}
