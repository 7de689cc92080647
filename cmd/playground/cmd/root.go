package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewRootCommand creates the root command for the playground binary
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "playground",
		Short: "Analytics playground - drive the analytics module over HTTP",
		Long: `Analytics playground runs the analytics module with its demo extensions
behind a small HTTP API, and inspects project settings on the CDN.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	cmd.AddCommand(NewServeCommand())
	cmd.AddCommand(NewSettingsCommand())
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), PrintVersion())
		},
	}
}

// Version information
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// PrintVersion prints version information
func PrintVersion() string {
	return fmt.Sprintf("Analytics playground v%s (commit: %s, built on: %s)", Version, Commit, Date)
}
