package serve

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	cmdUtil "github.com/ValentinKolb/dvkv/cmd/util"
	"github.com/ValentinKolb/dvkv/lib/catalog"
	"github.com/ValentinKolb/dvkv/lib/db"
	"github.com/ValentinKolb/dvkv/lib/store/lstore"
	"github.com/ValentinKolb/dvkv/rpc/common"
	"github.com/ValentinKolb/dvkv/rpc/server"
	"github.com/ValentinKolb/dvkv/rpc/transport"
	"github.com/ValentinKolb/dvkv/rpc/transport/http"
	"github.com/ValentinKolb/dvkv/rpc/transport/tcp"
	"github.com/ValentinKolb/dvkv/rpc/transport/unix"
	"github.com/lni/dragonboat/v4/logger"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	Logger = logger.GetLogger("rpc")

	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the dvkv server",
		Long:    `Start the dvkv server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is DVKV_<flag> (e.g. DVKV_DATA_DIR=/var/lib/dvkv)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// add flags
	key := "transport"
	ServeCmd.Flags().String(key, common.SchemeTCP, cmdUtil.WrapString("Transport to serve (tcp, unix)"))

	key = "endpoint"
	ServeCmd.Flags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the server will listen (host:port for tcp, the socket path for unix)"))

	key = "timeout"
	ServeCmd.Flags().Int64(key, 5, cmdUtil.WrapString("Timeout in seconds for writing a response"))

	key = "data-dir"
	ServeCmd.Flags().String(key, "data", cmdUtil.WrapString("Directory of the database catalog and of all databases without own root directory"))

	key = "engine"
	ServeCmd.Flags().String(key, string(db.ImplLevelDB), cmdUtil.WrapString("Byte-store of the databases (leveldb, pebble, memory, pebble-memory). The memory engines lose all data on shutdown"))

	key = "cache-entries"
	ServeCmd.Flags().Int(key, 100_000, cmdUtil.WrapString("Number of version pointers cached per database (0 = disabled)"))

	key = "cache-size"
	ServeCmd.Flags().Int(key, 32, cmdUtil.WrapString("Size of the value cache per database in MiB (0 = disabled)"))

	key = "bloom-bits"
	ServeCmd.Flags().Uint64(key, 1<<24, cmdUtil.WrapString("Size of the bloom filter per database in bits (0 = disabled)"))

	key = "bloom-hashes"
	ServeCmd.Flags().Int(key, 4, cmdUtil.WrapString("Number of hash functions of the bloom filter"))

	key = "databases"
	ServeCmd.Flags().String(key, "", cmdUtil.WrapString("Comma-separated list of databases registered on start if missing. Format: name[=rootDir][:partitions] (e.g. users,orders=/mnt/orders:4)"))

	key = "clusters"
	ServeCmd.Flags().String(key, "", cmdUtil.WrapString("Comma-separated list of cluster databases. Format: name=uri|uri|... with one uri per shard (e.g. events=tcp://a:8080/events|tcp://b:8080/events)"))

	key = "metrics-endpoint"
	ServeCmd.Flags().String(key, "", cmdUtil.WrapString("Address of the monitoring server with /metrics, /healthz and /info (e.g. localhost:9090, empty = disabled)"))

	key = "stats-interval"
	ServeCmd.Flags().Int(key, 0, cmdUtil.WrapString("Interval in seconds at which storage statistics are logged (0 = disabled)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}

	serveCmdConfig.Transport = viper.GetString("transport")
	if serveCmdConfig.Transport != common.SchemeTCP && serveCmdConfig.Transport != common.SchemeUnix {
		return fmt.Errorf("invalid transport %s (expected tcp or unix)", serveCmdConfig.Transport)
	}
	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")

	serveCmdConfig.DataDir = viper.GetString("data-dir")
	serveCmdConfig.Engine = db.Implementation(viper.GetString("engine"))
	switch serveCmdConfig.Engine {
	case db.ImplLevelDB, db.ImplPebble, db.ImplMemory, db.ImplPebbleMem:
	default:
		return fmt.Errorf("invalid engine %s (expected one of leveldb, pebble, memory, pebble-memory)", serveCmdConfig.Engine)
	}
	serveCmdConfig.CacheEntries = viper.GetInt("cache-entries")
	serveCmdConfig.CacheSizeMB = viper.GetInt("cache-size")
	serveCmdConfig.BloomBits = viper.GetUint64("bloom-bits")
	serveCmdConfig.BloomHashes = viper.GetInt("bloom-hashes")

	// parse databases and clusters
	var err error
	if serveCmdConfig.Databases, err = cmdUtil.ParseDatabases(viper.GetString("databases")); err != nil {
		return err
	}
	if serveCmdConfig.Clusters, err = cmdUtil.ParseClusters(viper.GetString("clusters")); err != nil {
		return err
	}

	serveCmdConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")
	serveCmdConfig.StatsIntervalSeconds = viper.GetInt("stats-interval")

	serveCmdConfig.LogLevel = viper.GetString("log-level")
	if serveCmdConfig.LogLevel == "" {
		serveCmdConfig.LogLevel = "info"
	}
	return nil
}

// run starts the dvkv server and blocks until SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {
	if err := common.InitLoggers(serveCmdConfig.LogLevel); err != nil {
		return err
	}
	Logger.Infof("Starting dvkv server with configuration:\n%s", serveCmdConfig.String())

	// open the catalog, engine statistics of all databases share one registry
	registry := gometrics.NewRegistry()
	manager, err := catalog.NewManager(catalog.Config{
		DataDir: serveCmdConfig.DataDir,
		Engine:  serveCmdConfig.Engine,
		EngineOptions: &lstore.Options{
			CacheEntries: serveCmdConfig.CacheEntries,
			CacheSizeMB:  serveCmdConfig.CacheSizeMB,
			BloomBits:    serveCmdConfig.BloomBits,
			BloomHashes:  serveCmdConfig.BloomHashes,
			Registry:     registry,
		},
		Databases: serveCmdConfig.Databases,
		Clusters:  serveCmdConfig.Clusters,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := manager.Close(); err != nil {
			Logger.Errorf("failed to close catalog: %v", err)
		}
	}()

	// parse the serializer
	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}

	// Parse the transport
	var t transport.IRPCServerTransport
	switch serveCmdConfig.Transport {
	case common.SchemeTCP:
		t = tcp.NewTCPServerTransport()
	case common.SchemeUnix:
		t = unix.NewUnixDefaultServerTransport()
	}

	serv := server.NewRPCServer(*serveCmdConfig, t, s, manager, nil)
	if err := serv.Serve(); err != nil {
		return err
	}
	Logger.Infof("Serving %s://%s with %s serializer", serveCmdConfig.Transport, serv.Addr(), s.Name())
	defer func() { _ = serv.Close() }()

	// monitoring
	if serveCmdConfig.MetricsEndpoint != "" {
		monitor := http.NewMonitoringServer(
			func() error {
				if serv.Addr() == "" {
					return fmt.Errorf("rpc server is not listening")
				}
				return nil
			},
			func() any {
				return map[string]any{
					"databases": manager.List(),
					"engines":   manager.Info(),
					"clusters":  manager.Clusters(),
					"sessions":  serv.Sessions(),
				}
			},
			serveCmdConfig.LogLevel == "debug",
		)
		if err := monitor.Listen(serveCmdConfig.MetricsEndpoint); err != nil {
			return err
		}
		defer func() { _ = monitor.Close() }()
	}

	if serveCmdConfig.StatsIntervalSeconds > 0 {
		interval := time.Duration(serveCmdConfig.StatsIntervalSeconds) * time.Second
		go gometrics.Log(registry, interval, log.New(os.Stderr, "stats: ", log.Ldate|log.Ltime))
	}

	// wait for a shutdown signal
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	Logger.Infof("Received %s, shutting down", sig)
	return nil
}
