package db

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/ValentinKolb/dvkv/lib/catalog"
	"github.com/spf13/cobra"
)

var (
	createCmd = &cobra.Command{
		Use:   "create [name]",
		Short: "Creates a new enabled database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rootDir, _ := cmd.Flags().GetString("root-dir")
			partitions, _ := cmd.Flags().GetInt("partitions")
			info := catalog.DatabaseInfo{
				Name:       args[0],
				RootDir:    rootDir,
				Partitions: partitions,
				Enabled:    true,
			}
			if err := adminClient.CreateDatabase(info); err != nil {
				return err
			}
			fmt.Printf("created %s\n", info)
			return nil
		},
	}
	enableCmd = &cobra.Command{
		Use:   "enable [name]",
		Short: "Enables a database, sessions can select it again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := adminClient.EnableDatabase(args[0]); err != nil {
				return err
			}
			fmt.Printf("enabled %s\n", args[0])
			return nil
		},
	}
	disableCmd = &cobra.Command{
		Use:   "disable [name]",
		Short: "Disables a database, it can no longer be selected",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := adminClient.DisableDatabase(args[0]); err != nil {
				return err
			}
			fmt.Printf("disabled %s\n", args[0])
			return nil
		},
	}
	dropCmd = &cobra.Command{
		Use:   "drop [name]",
		Short: "Removes a database and deletes all of its data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := adminClient.DropDatabase(args[0]); err != nil {
				return err
			}
			fmt.Printf("dropped %s\n", args[0])
			return nil
		},
	}
	listCmd = &cobra.Command{
		Use:   "list",
		Short: "Lists all databases of the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			infos, err := adminClient.ShowDatabases()
			if err != nil {
				return err
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return printJSON(infos)
			}
			for _, info := range infos {
				fmt.Println(info)
			}
			return nil
		},
	}
	clusterInfoCmd = &cobra.Command{
		Use:   "cluster-info",
		Short: "Lists the cluster databases of the server with their shard uris",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			clusters, err := adminClient.ClusterInfo()
			if err != nil {
				return err
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return printJSON(clusters)
			}
			names := make([]string, 0, len(clusters))
			for name := range clusters {
				names = append(names, name)
			}
			slices.Sort(names)
			for _, name := range names {
				fmt.Printf("%s: %s\n", name, strings.Join(clusters[name], " | "))
			}
			return nil
		},
	}
)

func init() {
	createCmd.Flags().String("root-dir", "", "directory of the database (default: <data-dir>/<name>)")
	createCmd.Flags().Int("partitions", 0, "number of shards if the name is a cluster")
	listCmd.Flags().Bool("json", false, "print as json")
	clusterInfoCmd.Flags().Bool("json", false, "print as json")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
