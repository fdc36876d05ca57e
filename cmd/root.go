// Package cmd wires the CLI surface: the MCP stdio server plus standalone
// auth and config management commands.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "grounded-search-mcp",
	Short: "Google-grounded web search as an MCP server",
	Long: `grounded-search-mcp exposes Google-grounded web search through the
Model Context Protocol, using the Gemini CLI and Antigravity backends.

It can run as:
  - An MCP stdio server for AI assistants (default)
  - A standalone CLI for authentication and configuration`,
	SilenceUsage: true,
}

var version = "dev"

// SetVersion sets the version reported by the root command.
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "grounded-search-mcp version %s\n" .Version}}`)

	// With no subcommand, run the MCP server.
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newLogoutCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newConfigCmd())
}
