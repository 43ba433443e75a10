// Package app provides the entry point for the dockhand command-line
// application.
package app

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dockhand-sh/dockhand/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:               "dockhand",
	DisableAutoGenTag: true,
	Short:             "Editor tool server over the MCP streamable HTTP transport",
	Long: `Dockhand hosts an editor-side tool server for MCP (Model Context Protocol)
clients. It exposes workspace file operations and shell command execution
as MCP tools over a streamable HTTP endpoint, with a user approval gate in
front of every destructive operation.

Running servers register themselves in a discovery file that editor
clients read to connect.`,
	Run: func(cmd *cobra.Command, _ []string) {
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.Initialize()
	},
}

// NewRootCmd creates the root command for the dockhand CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("Error binding debug flag: %v", err)
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.SilenceUsage = true

	return rootCmd
}

// Version is set at build time via ldflags.
var Version = "dev"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the dockhand version",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("dockhand %s\n", Version)
		},
	}
}
