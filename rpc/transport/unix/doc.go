// Package unix implements a transport layer for the dvkv RPC system using Unix
// domain sockets. It provides optimized communication for processes running on
// the same machine.
//
// This package extends the base transport layer with Unix socket-specific connectors
// while inheriting framing, request correlation and reconnection from the base package.
//
// Key Components:
//
//   - clientConnector: Establishes connections using Unix domain sockets
//
//   - serverConnector: Creates Unix socket listeners, removing a stale socket file first
package unix
