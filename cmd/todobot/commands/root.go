// Package commands implements the TodoBot CLI commands using cobra.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command with all subcommands registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "todobot",
		Short: "TodoBot - WhatsApp to-do assistant",
		Long: `TodoBot is a personal task manager reachable over WhatsApp chat
and a small web UI, with AI-generated task breakdowns.

Examples:
  todobot serve
  todobot chat
  todobot setup
  todobot health`,
		Version: version,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newChatCmd(),
		newSetupCmd(),
		newHealthCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	return rootCmd
}
