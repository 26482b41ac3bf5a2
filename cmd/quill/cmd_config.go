package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"quill/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and change project settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showConfig()
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := config.NewHandler(projectDir, logger).Get(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%v\n", v)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one setting",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.NewHandler(projectDir, logger).Set(args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("%s updated\n", args[0])
		return nil
	},
}

var configResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restore default settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.NewHandler(projectDir, logger).Reset(); err != nil {
			return err
		}
		fmt.Println("settings reset to defaults")
		return nil
	},
}

func init() {
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configResetCmd)
}

func showConfig() error {
	cfg, err := config.NewHandler(projectDir, logger).Load()
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(cfg))
	for k := range cfg {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%s = %v\n", k, cfg[k])
	}
	return nil
}
