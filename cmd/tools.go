package cmd

import (
	"fmt"

	"flowbridge/internal/app"
	"flowbridge/internal/registry"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

var (
	toolsConfigPath   string
	toolsOutputFormat string
)

// toolsCmd lists every tool flowbridge would serve: the static catalog plus
// the workflows discovered from the remote API at invocation time.
var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools flowbridge would expose",
	Long: `Discovers the workflow catalog once and prints the resulting tool set,
static social tools included. Useful to verify filter patterns and
generated tool names before wiring flowbridge into an assistant.

Output formats:
  table - rendered table (default)
  docs  - markdown documentation with per-tool argument listings`,
	RunE: runTools,
}

func init() {
	rootCmd.AddCommand(toolsCmd)

	toolsCmd.Flags().StringVar(&toolsConfigPath, "config-path", "", "Path to the configuration file")
	toolsCmd.Flags().StringVarP(&toolsOutputFormat, "output", "o", "table", "Output format (table, docs)")
}

func runTools(cmd *cobra.Command, args []string) error {
	application, err := app.NewApplication(toolsConfigPath)
	if err != nil {
		return err
	}

	summary := application.Manager().TriggerManualRefresh(cmd.Context())
	if len(summary.Errors) > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: workflow discovery reported %d errors; listing may be incomplete\n", len(summary.Errors))
	}

	switch toolsOutputFormat {
	case "docs":
		fmt.Fprint(cmd.OutOrStdout(), application.Registry().GenerateDocumentation())
		return nil
	case "table":
		renderToolsTable(cmd, application.Registry().Tools())
		return nil
	default:
		return fmt.Errorf("unknown output format %q (expected table or docs)", toolsOutputFormat)
	}
}

func renderToolsTable(cmd *cobra.Command, defs []registry.ToolDefinition) {
	if len(defs) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n", text.FgYellow.Sprint("No tools available"))
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{
		text.FgHiCyan.Sprint("NAME"),
		text.FgHiCyan.Sprint("CATEGORY"),
		text.FgHiCyan.Sprint("DESCRIPTION"),
	})

	for _, def := range defs {
		description := def.Description
		if len(description) > 80 {
			description = description[:77] + "..."
		}
		t.AppendRow(table.Row{def.Name, def.Category, description})
	}

	t.Render()
	fmt.Fprintf(cmd.OutOrStdout(), "%d tools\n", len(defs))
}
