// Package cmd implements the command-line interface of the dvkv distributed
// versioned key-value store. It provides a hierarchical command structure with
// operations for running the server and interacting with it as a client.
//
// The package is organized into several subpackages:
//
//   - serve: Starts and configures the dvkv server
//   - kv: Data commands (get, get-at, version, put, exists, put-ex, get-ex, batch, perf)
//   - db: Database administration (create, enable, disable, drop, list, cluster-info)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set as environment variable DVKV_<FLAG> (e.g. DVKV_DATA_DIR),
// .env and .env.local in the working directory are loaded on start.
//
// See dvkv -help for a list of all commands.
package cmd
