package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kagan-sh/kagan-sub004/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or scaffold kagan's configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config.yaml if one doesn't already exist",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.WriteDefaultConfig()
		if err != nil {
			return fmt.Errorf("config init: %w", err)
		}
		if path == "" {
			fmt.Printf("config already exists at %s, left untouched\n", config.GetConfigPath())
			return nil
		}
		fmt.Printf("wrote default config to %s\n", path)
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the resolved config.yaml path",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(config.GetConfigPath())
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}
