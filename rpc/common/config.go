package common

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ValentinKolb/dvkv/lib/catalog"
	"github.com/ValentinKolb/dvkv/lib/db"
)

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// ServerConfig holds all configuration parameters of a dvkv server.
type ServerConfig struct {
	// Transport settings
	Transport     string // "tcp" or "unix"
	Endpoint      string // host:port or socket path
	TimeoutSecond int64  // read/write deadline per request (0 = none)

	// Storage settings
	DataDir      string
	Engine       db.Implementation
	CacheEntries int
	CacheSizeMB  int
	BloomBits    uint64
	BloomHashes  int

	// Databases registered at startup and cluster topologies
	Databases []catalog.DatabaseInfo
	Clusters  map[string][]string

	// Monitoring
	MetricsEndpoint      string // "" = disabled
	StatsIntervalSeconds int    // interval of the storage statistics log (0 = disabled)

	// Logging configuration
	LogLevel string
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// RPC settings
	addSection("RPC Server")
	addField("Transport", c.Transport)
	addField("Endpoint", c.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))

	// Storage
	addSection("Storage")
	addField("Data Directory", c.DataDir)
	addField("Engine", string(c.Engine))
	addField("Cache", fmt.Sprintf("%d entries / %d MiB", c.CacheEntries, c.CacheSizeMB))
	addField("Bloom Filter", fmt.Sprintf("%d bits / %d hashes", c.BloomBits, c.BloomHashes))

	// Databases
	if len(c.Databases) > 0 {
		addSection("Databases")
		for _, info := range c.Databases {
			addField(info.Name, fmt.Sprintf("partitions=%d dir=%s", info.Partitions, info.RootDir))
		}
	}

	// Clusters (sorted for consistent output)
	if len(c.Clusters) > 0 {
		addSection("Clusters")
		names := make([]string, 0, len(c.Clusters))
		for name := range c.Clusters {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			addField(name, strings.Join(c.Clusters[name], ", "))
		}
	}

	// Monitoring
	addSection("Monitoring")
	if c.MetricsEndpoint == "" {
		addField("Metrics Endpoint", "disabled")
	} else {
		addField("Metrics Endpoint", c.MetricsEndpoint)
	}
	addField("Stats Interval", fmt.Sprintf("%d sec", c.StatsIntervalSeconds))

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

// FanOutMode controls how errors of batch fan-outs to all shards are handled
type FanOutMode string

const (
	// FanOutBestEffort logs shard errors and reports success
	FanOutBestEffort FanOutMode = "best-effort"
	// FanOutStrict returns the aggregated shard errors
	FanOutStrict FanOutMode = "strict"
)

// ParseFanOutMode parses a fan-out mode, "" means FanOutBestEffort
func ParseFanOutMode(s string) (FanOutMode, error) {
	switch FanOutMode(strings.ToLower(s)) {
	case "", FanOutBestEffort:
		return FanOutBestEffort, nil
	case FanOutStrict:
		return FanOutStrict, nil
	default:
		return "", fmt.Errorf("invalid fan-out mode %q, must be one of %s, %s", s, FanOutBestEffort, FanOutStrict)
	}
}

// ClientConfig holds the configuration of a dvkv client
type ClientConfig struct {
	TimeoutSecond int // per request timeout (0 = none)
	RetryCount    int // send attempts on connection failures (min 1)

	FanOut              FanOutMode // error handling of batch fan-outs
	FanOutTimeoutSecond int        // bounds the wait for all shards (0 = unbounded)
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(max(1, c.RetryCount)))

	// Cluster Settings
	addSection("Cluster")
	fanOut := c.FanOut
	if fanOut == "" {
		fanOut = FanOutBestEffort
	}
	addField("Fan-Out Mode", string(fanOut))
	if c.FanOutTimeoutSecond > 0 {
		addField("Fan-Out Timeout", fmt.Sprintf("%d sec", c.FanOutTimeoutSecond))
	} else {
		addField("Fan-Out Timeout", "unbounded")
	}

	return sb.String()
}
