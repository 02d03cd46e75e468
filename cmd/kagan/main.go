// Command kagan is the local multi-client orchestration daemon: it
// persists projects/tasks/workspaces, schedules AUTO-mode agent
// iterations across git worktrees, and serves every client (CLI, TUI,
// MCP front door) over one local IPC transport.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kagan-sh/kagan-sub004/internal/config"
	"github.com/kagan-sh/kagan-sub004/internal/version"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:     "kagan",
	Short:   "Local orchestration daemon for AI coding agents across git worktrees",
	Version: version.String(),
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/kagan/config.yaml)")

	rootCmd.AddCommand(coreCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "kagan: %v\n", err)
		os.Exit(1)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the kagan version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(version.String())
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Remove the local database, worktrees, and runtime state",
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		return runReset(force)
	},
}

func init() {
	resetCmd.Flags().Bool("force", false, "skip the confirmation prompt")
}

func runReset(force bool) error {
	if !force {
		fmt.Print("This deletes the kagan database, worktrees, and runtime state. Continue? [y/N] ")
		var answer string
		fmt.Scanln(&answer)
		if answer != "y" && answer != "Y" {
			fmt.Println("aborted")
			return nil
		}
	}

	for _, dir := range []string{config.GetDataDir(), config.GetRuntimeDir(), config.GetWorktreeBase()} {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("reset: remove %s: %w", dir, err)
		}
	}
	fmt.Println("kagan state reset")
	return nil
}
