// Package http serves the monitoring endpoints of a dvkv server over HTTP.
// It is not an RPC transport, clients always talk to the server over the
// tcp or unix transports.
//
// Endpoints:
//
//   - GET /metrics: all metrics registered with github.com/VictoriaMetrics/metrics
//     (request counters, error counters, latency histograms, process metrics) in
//     Prometheus text format.
//
//   - GET /healthz: "ok" or 503 with the error of the HealthFunc.
//
//   - GET /info: JSON snapshot returned by the InfoFunc.
//
// In debug mode a logging middleware logs method, path, status and duration of
// every request.
package http
