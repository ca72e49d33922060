package cmd

import (
	"github.com/spf13/cobra"

	"github.com/nesall/ragd/pkg/version"
)

// configPath is the --config flag shared by every subcommand.
var configPath string

// NewRootCmd creates the root command for the ragd CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ragd",
		Short: "Local retrieval-augmented-generation service",
		Long: `ragd indexes a configured corpus of files and URLs, embeds it into a
local hybrid vector store, and answers retrieval and chat requests over
HTTP or directly from the command line.`,
		Version: version.Version,
	}
	cmd.SetVersionTemplate("ragd version {{.Version}}\n")
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the configuration file (default: discovered)")

	cmd.AddCommand(newEmbedCmd())
	cmd.AddCommand(newUpdateCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newClearCmd())
	cmd.AddCommand(newCompactCmd())
	cmd.AddCommand(newChatCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newResetPasswordCmd())
	cmd.AddCommand(newResetPasswordInteractiveCmd())
	cmd.AddCommand(newPasswordStatusCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
