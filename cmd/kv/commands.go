package kv

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ValentinKolb/dvkv/lib/store"
	"github.com/spf13/cobra"
)

var (
	getCmd = &cobra.Command{
		Use:   "get [key...]",
		Short: "Reads the latest value of one or more keys",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := kvClient.Get(toKeys(args)...)
			if err != nil {
				return err
			}
			for i, v := range values {
				fmt.Printf("key=%s, found=%t, value=%s\n", args[i], v.Found, v.Data)
			}
			return nil
		},
	}
	getAtCmd = &cobra.Command{
		Use:   "get-at [key] [version]",
		Short: "Reads the value of a key at a specific version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("version must be a number: %w", err)
			}
			v, err := kvClient.GetAt([]byte(args[0]), version)
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, version=%d, found=%t, value=%s\n", args[0], version, v.Found, v.Data)
			return nil
		},
	}
	versionCmd = &cobra.Command{
		Use:   "version [key...]",
		Short: "Reads the latest version of one or more keys (-1 if the key was never written)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			versions, err := kvClient.Version(toKeys(args)...)
			if err != nil {
				return err
			}
			for i, v := range versions {
				fmt.Printf("key=%s, version=%d\n", args[i], v)
			}
			return nil
		},
	}
	putCmd = &cobra.Command{
		Use:   "put [key] [value]",
		Short: "Writes a new version of a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := kvClient.Put([]byte(args[0]), []byte(args[1]))
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, version=%d\n", args[0], version)
			return nil
		},
	}
	existsCmd = &cobra.Command{
		Use:   "exists [key...]",
		Short: "Checks if one or more keys hold a value",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			found, err := kvClient.Exists(toKeys(args)...)
			if err != nil {
				return err
			}
			for i, f := range found {
				fmt.Printf("key=%s, found=%t\n", args[i], f)
			}
			return nil
		},
	}
	putExCmd = &cobra.Command{
		Use:   "put-ex [existing|not-existing] [key] [value]",
		Short: "Writes the single value slot of a key if the existence condition holds",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := parsePolicy(args[0])
			if err != nil {
				return err
			}
			written, err := kvClient.PutEx(policy, []byte(args[1]), []byte(args[2]))
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, policy=%s, written=%t\n", args[1], policy, written)
			return nil
		},
	}
	getExCmd = &cobra.Command{
		Use:   "get-ex [key...]",
		Short: "Reads the single value slot of one or more keys written with put-ex",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := kvClient.GetEx(toKeys(args)...)
			if err != nil {
				return err
			}
			for i, v := range values {
				fmt.Printf("key=%s, found=%t, value=%s\n", args[i], v.Found, v.Data)
			}
			return nil
		},
	}
	batchCmd = &cobra.Command{
		Use:   "batch [key=value...]",
		Short: "Writes all pairs in one batch, either all or none become visible",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys := make([][]byte, 0, len(args))
			values := make([][]byte, 0, len(args))
			for _, arg := range args {
				k, v, ok := strings.Cut(arg, "=")
				if !ok || k == "" {
					return fmt.Errorf("invalid pair %q (expected key=value)", arg)
				}
				keys = append(keys, []byte(k))
				values = append(values, []byte(v))
			}

			if err := kvClient.BatchBegin(); err != nil {
				return err
			}
			versions, err := kvClient.PutAll(keys, values)
			if err != nil {
				return errors.Join(err, kvClient.BatchAbort())
			}
			if err := kvClient.BatchCommit(); err != nil {
				return err
			}
			for i, v := range versions {
				fmt.Printf("key=%s, version=%d\n", keys[i], v)
			}
			return nil
		},
	}
)

func toKeys(args []string) [][]byte {
	keys := make([][]byte, len(args))
	for i, arg := range args {
		keys[i] = []byte(arg)
	}
	return keys
}

func parsePolicy(s string) (store.ExPolicy, error) {
	switch strings.ToLower(strings.ReplaceAll(s, "_", "-")) {
	case "existing":
		return store.EXISTING, nil
	case "not-existing":
		return store.NOT_EXISTING, nil
	default:
		return 0, fmt.Errorf("invalid policy %s (expected existing or not-existing)", s)
	}
}
