// Package tcp implements the TCP socket transport of the dvkv RPC system. It provides
// the TCP specific connectors for the base package, which implements framing,
// request correlation and reconnection.
//
// Key Components:
//
//   - clientConnector: Dials TCP connections with a connect timeout
//
//   - serverConnector: Creates TCP listeners
//
// Every connection has Nagle's algorithm disabled and keep-alive enabled.
package tcp
