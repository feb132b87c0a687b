package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/dvkv/cmd/db"
	"github.com/ValentinKolb/dvkv/cmd/kv"
	"github.com/ValentinKolb/dvkv/cmd/serve"
	"github.com/ValentinKolb/dvkv/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dvkv",
		Short: "distributed versioned key-value store",
		Long: fmt.Sprintf(`dvkv (v%s)

A distributed, versioned key-value store written in Go.
Every write of a key creates a new version, databases can be
partitioned over several servers by key hash.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dvkv",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dvkv v%s\n", Version)
		},
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(db.DatabaseCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "binary", util.WrapString("serializer to use (binary, json, gob)"))
	key = "log-level"
	RootCmd.PersistentFlags().String(key, "", util.WrapString("level at which logs are written (debug, info, warn, error), defaults to info for serve and warn for all other commands"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
