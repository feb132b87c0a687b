package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("monitoring")

// HealthFunc reports whether the server is healthy
type HealthFunc func() error

// InfoFunc returns a JSON encodable snapshot of the server state
type InfoFunc func() any

// MonitoringServer serves the monitoring endpoints of a dvkv server:
//
//	GET /metrics  metrics in Prometheus text format
//	GET /healthz  200 if healthy, 503 otherwise
//	GET /info     JSON state (databases, engines, clusters)
type MonitoringServer struct {
	health   HealthFunc
	info     InfoFunc
	debug    bool
	server   *http.Server
	listener net.Listener
}

// NewMonitoringServer creates a monitoring server. health and info may be nil.
// In debug mode every request is logged.
func NewMonitoringServer(health HealthFunc, info InfoFunc, debug bool) *MonitoringServer {
	return &MonitoringServer{health: health, info: info, debug: debug}
}

// Listen binds endpoint and serves in the background
func (s *MonitoringServer) Listen(endpoint string) error {
	mux := http.NewServeMux()

	handle := func(pattern string, h http.HandlerFunc) {
		if s.debug {
			h = loggerMiddleware(h)
		}
		mux.HandleFunc(pattern, h)
	}
	handle("GET /metrics", s.handleMetrics)
	handle("GET /healthz", s.handleHealth)
	handle("GET /info", s.handleInfo)

	listener, err := net.Listen("tcp", endpoint)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %v", endpoint, err)
	}
	s.listener = listener
	s.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	Logger.Infof("Starting monitoring server on %s", listener.Addr())

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			Logger.Errorf("Monitoring server failed: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound address, empty before Listen
func (s *MonitoringServer) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close stops the server
func (s *MonitoringServer) Close() error {
	if s.server == nil {
		return nil
	}
	return s.server.Close()
}

// --------------------------------------------------------------------------
// Handlers
// --------------------------------------------------------------------------

func (s *MonitoringServer) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	metrics.WritePrometheus(w, true)
}

func (s *MonitoringServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if s.health != nil {
		if err := s.health(); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	_, _ = w.Write([]byte("ok\n"))
}

func (s *MonitoringServer) handleInfo(w http.ResponseWriter, _ *http.Request) {
	var info any = struct{}{}
	if s.info != nil {
		info = s.info()
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(info); err != nil {
		Logger.Errorf("Failed to encode info: %v", err)
	}
}

// --------------------------------------------------------------------------
// Middleware (logging)
// --------------------------------------------------------------------------

// responseWriter is a custom ResponseWriter that captures status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code before writing it
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// loggerMiddleware is a middleware that logs HTTP requests
func loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create custom response writer to capture status code
		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		// Process request
		next.ServeHTTP(rw, r)

		// Log the request
		duration := time.Since(start)
		Logger.Debugf("%s %s => %d took %s", r.Method, r.URL.Path, rw.statusCode, duration)
	}
}
