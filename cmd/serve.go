package cmd

import (
	"flowbridge/internal/app"

	"github.com/spf13/cobra"
)

// serveConfigPath specifies a custom configuration file path. When empty the
// default location (~/.config/flowbridge/config.yaml) is used.
var serveConfigPath string

// serveCmd starts the MCP server on stdio. This is the command an AI
// assistant configuration points at.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the flowbridge MCP server on stdio",
	Long: `Starts the MCP server using stdio transport.

The server registers the static social tools, discovers the workflows
available to your Hublead account and exposes each as an MCP tool. The
workflow catalog is refreshed periodically; tools are added, updated and
removed live via MCP tool-list-changed notifications.

All logs go to stderr: stdout is reserved for the MCP protocol.

Configuration is read from ~/.config/flowbridge/config.yaml (override with
--config-path). The HUBLEAD_API_KEY environment variable is required unless
apiKey is set in the file.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveConfigPath, "config-path", "", "Path to the configuration file")
}

func runServe(cmd *cobra.Command, args []string) error {
	application, err := app.NewApplication(serveConfigPath)
	if err != nil {
		return err
	}
	return application.Run(cmd.Context())
}
