package util

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ValentinKolb/dvkv/lib/catalog"
	"github.com/ValentinKolb/dvkv/rpc/client"
	"github.com/ValentinKolb/dvkv/rpc/common"
	"github.com/ValentinKolb/dvkv/rpc/serializer"
	"github.com/ValentinKolb/dvkv/rpc/transport"
	"github.com/ValentinKolb/dvkv/rpc/transport/tcp"
	"github.com/ValentinKolb/dvkv/rpc/transport/unix"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	// EnvPrefix is the prefix of all environment variables (DVKV_<FLAG>)
	EnvPrefix = "dvkv"
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// InitConfig loads .env files and binds environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	if err := viper.BindPFlags(cmd.InheritedFlags()); err != nil {
		return err
	}
	return viper.BindPFlags(cmd.Flags())
}

// --------------------------------------------------------------------------
// Client
// --------------------------------------------------------------------------

// SetupRPCClientFlags adds common RPC connection flags to a command
func SetupRPCClientFlags(cmd *cobra.Command) {
	key := "uri"
	cmd.PersistentFlags().String(key, "tcp://localhost:8080/", WrapString("URI of the server and database (tcp://host:port/database or unix:///path/to/socket/database)"))

	key = "timeout"
	cmd.PersistentFlags().Int(key, 10, WrapString("The timeout in seconds of a request"))

	key = "retries"
	cmd.PersistentFlags().Int(key, 3, WrapString("How many times to try a request that could not be sent"))

	key = "fanout"
	cmd.PersistentFlags().String(key, string(common.FanOutBestEffort), WrapString("Error handling of batch commands on cluster databases (best-effort, strict)"))

	key = "fanout-timeout"
	cmd.PersistentFlags().Int(key, 0, WrapString("Seconds to wait for all shards of a cluster batch command (0 = no limit)"))
}

// GetClientConfig reads the client configuration from viper
func GetClientConfig() (*common.ClientConfig, error) {
	mode, err := common.ParseFanOutMode(viper.GetString("fanout"))
	if err != nil {
		return nil, err
	}
	return &common.ClientConfig{
		TimeoutSecond:       viper.GetInt("timeout"),
		RetryCount:          viper.GetInt("retries"),
		FanOut:              mode,
		FanOutTimeoutSecond: viper.GetInt("fanout-timeout"),
	}, nil
}

// GetSerializer creates the serializer selected by configuration
func GetSerializer() (serializer.IRPCSerializer, error) {
	return serializer.ByName(viper.GetString("serializer"))
}

// ClientTransports returns the client transport factory of every supported scheme
func ClientTransports() map[string]transport.ClientFactory {
	return map[string]transport.ClientFactory{
		common.SchemeTCP:  tcp.NewTCPClientTransport,
		common.SchemeUnix: unix.NewUnixClientTransport,
	}
}

// NewClient creates a client from the configured flags
func NewClient() (*client.Client, error) {
	config, err := GetClientConfig()
	if err != nil {
		return nil, err
	}
	s, err := GetSerializer()
	if err != nil {
		return nil, err
	}
	return client.NewClient(viper.GetString("uri"), *config, s, ClientTransports())
}

// --------------------------------------------------------------------------
// Server Flag Parsing
// --------------------------------------------------------------------------

// ParseDatabases parses a comma separated list of startup databases.
// Format of an entry: name[=rootDir][:partitions], e.g. "users", "users=:4", "users=/data/users:4".
func ParseDatabases(s string) ([]catalog.DatabaseInfo, error) {
	var infos []catalog.DatabaseInfo
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		name, rest, _ := strings.Cut(entry, "=")
		info := catalog.DatabaseInfo{Name: strings.TrimSpace(name), Enabled: true}
		if info.Name == "" {
			return nil, fmt.Errorf("invalid database %q: missing name", entry)
		}

		// the partition count is the suffix after the last ':'
		if i := strings.LastIndex(rest, ":"); i >= 0 {
			partitions, err := strconv.Atoi(rest[i+1:])
			if err != nil || partitions < 1 {
				return nil, fmt.Errorf("invalid database %q: partitions must be a positive number", entry)
			}
			info.Partitions = partitions
			rest = rest[:i]
		}
		info.RootDir = strings.TrimSpace(rest)
		infos = append(infos, info)
	}
	return infos, nil
}

// ParseClusters parses a comma separated list of cluster topologies.
// Format of an entry: name=uri|uri|..., e.g. "events=tcp://a:8080/events|tcp://b:8080/events".
func ParseClusters(s string) (map[string][]string, error) {
	clusters := make(map[string][]string)
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		name, rest, ok := strings.Cut(entry, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid cluster %q: expected name=uri|uri", entry)
		}
		if _, dup := clusters[name]; dup {
			return nil, fmt.Errorf("cluster %q is defined twice", name)
		}

		var shards []string
		for _, raw := range strings.Split(rest, "|") {
			raw = strings.TrimSpace(raw)
			if _, err := common.ParseURI(raw); err != nil {
				return nil, fmt.Errorf("invalid cluster %q: %w", name, err)
			}
			shards = append(shards, raw)
		}
		clusters[name] = shards
	}
	return clusters, nil
}
