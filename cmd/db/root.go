package db

import (
	"github.com/ValentinKolb/dvkv/cmd/util"
	"github.com/ValentinKolb/dvkv/rpc/client"
	"github.com/ValentinKolb/dvkv/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	adminClient *client.Client

	// DatabaseCommands represents the database administration command group
	DatabaseCommands = &cobra.Command{
		Use:   "db",
		Short: "Manage the databases of a server",
		Long: `Manage the databases of the server of --uri.
The database part of the uri is ignored by these commands.`,
		PersistentPreRunE:  setupAdminClient,
		PersistentPostRunE: closeAdminClient,
	}
)

func init() {
	util.SetupRPCClientFlags(DatabaseCommands)

	DatabaseCommands.AddCommand(createCmd)
	DatabaseCommands.AddCommand(enableCmd)
	DatabaseCommands.AddCommand(disableCmd)
	DatabaseCommands.AddCommand(dropCmd)
	DatabaseCommands.AddCommand(listCmd)
	DatabaseCommands.AddCommand(clusterInfoCmd)
}

// setupAdminClient connects to the server without selecting a database
func setupAdminClient(cmd *cobra.Command, _ []string) error {
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

	uri, err := common.ParseURI(viper.GetString("uri"))
	if err != nil {
		return err
	}
	viper.Set("uri", uri.WithDatabase("").String())

	adminClient, err = util.NewClient()
	return err
}

func closeAdminClient(_ *cobra.Command, _ []string) error {
	if adminClient == nil {
		return nil
	}
	return adminClient.Close()
}
