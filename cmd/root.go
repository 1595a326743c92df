package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the flowbridge application.
var rootCmd = &cobra.Command{
	Use:   "flowbridge",
	Short: "Expose Hublead workflows as MCP tools",
	Long: `flowbridge is an MCP server that bridges AI assistants to the Hublead
workflow platform. It discovers the workflows available to your account,
exposes each one as an MCP tool with a typed input schema, and executes
them asynchronously with status polling.

Static social media tools are always available; workflow tools appear and
disappear as the remote catalog changes.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors
	// that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command. Called from the main
// package to inject the build version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "flowbridge version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
}
