package cmd

import (
	"fmt"

	"flowbridge/internal/app"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

var checkConfigPath string

// checkCmd verifies that flowbridge is ready to serve: configuration loads,
// the API key is present, and the Hublead workflow catalog is reachable.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check configuration and Hublead API connectivity",
	Long: `Loads the configuration and probes the Hublead workflow catalog endpoint.

Exits non-zero when configuration is invalid or the API is unreachable, so
the command can be used as a readiness probe in scripts.`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringVar(&checkConfigPath, "config-path", "", "Path to the configuration file")
}

func runCheck(cmd *cobra.Command, args []string) error {
	application, err := app.NewApplication(checkConfigPath)
	if err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "%s configuration: %v\n", text.FgRed.Sprint("✗"), err)
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s configuration loaded (base URL: %s)\n",
		text.FgGreen.Sprint("✓"), application.Config().BaseURL)

	if !application.Discovery().TestConnection(cmd.Context()) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s Hublead API is not reachable\n", text.FgRed.Sprint("✗"))
		return fmt.Errorf("hublead API connection check failed")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Hublead API reachable\n", text.FgGreen.Sprint("✓"))

	workflows := application.Discovery().ListWorkflows(cmd.Context())
	fmt.Fprintf(cmd.OutOrStdout(), "%s %d workflows discovered\n", text.FgGreen.Sprint("✓"), len(workflows))
	return nil
}
