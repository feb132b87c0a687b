package kv

import (
	"github.com/ValentinKolb/dvkv/cmd/util"
	"github.com/ValentinKolb/dvkv/rpc/client"
	"github.com/ValentinKolb/dvkv/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	kvClient *client.Client

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:   "kv",
		Short: "Perform key-value store operations",
		Long: `Perform key-value store operations on the database of --uri.
If the database is a cluster, every key is routed to its shard.`,
		PersistentPreRunE:  setupKVClient,
		PersistentPostRunE: closeKVClient,
	}
)

func init() {
	// Add common RPC flags to the KV command
	util.SetupRPCClientFlags(KeyValueCommands)

	// Add subcommands
	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(getAtCmd)
	KeyValueCommands.AddCommand(versionCmd)
	KeyValueCommands.AddCommand(putCmd)
	KeyValueCommands.AddCommand(existsCmd)
	KeyValueCommands.AddCommand(putExCmd)
	KeyValueCommands.AddCommand(getExCmd)
	KeyValueCommands.AddCommand(batchCmd)
	KeyValueCommands.AddCommand(perfTestCmd)
}

// setupKVClient connects the client and selects the database of the uri
func setupKVClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	level := viper.GetString("log-level")
	if level == "" {
		level = "warn"
	}
	if err := common.InitLoggers(level); err != nil {
		return err
	}

	var err error
	kvClient, err = util.NewClient()
	return err
}

func closeKVClient(_ *cobra.Command, _ []string) error {
	if kvClient == nil {
		return nil
	}
	return kvClient.Close()
}
