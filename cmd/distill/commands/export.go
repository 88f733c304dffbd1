// ABOUTME: CLI command to export lessons to Markdown, YAML or JSON
// ABOUTME: Reads from the SQLite store; --chunks dumps one lesson's vectors
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harper/distill/internal/storage/sqlite"
)

var (
	exportType   string
	exportOutput string
	exportChunks string
	exportAll    bool
)

// NewExportCmd creates the export command
func NewExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [lesson-id...]",
		Short: "Export lessons to Markdown, YAML or JSON",
		Long: `Export lessons to Markdown, YAML or JSON.

Without lesson ids every lesson of the current user is exported. Output
goes to stdout unless --output is given. Export reads the SQLite store.

Examples:
  distill export > lessons.md
  distill export --type yaml --output backup/lessons.yaml
  distill export 3f2a... --type json
  distill export --chunks 3f2a... --output chunks.json`,
		RunE: runExport,
	}

	cmd.Flags().StringVarP(&exportType, "type", "t", "markdown", "Export format: markdown, yaml, json")
	cmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Write to this file instead of stdout")
	cmd.Flags().StringVar(&exportChunks, "chunks", "", "Export the chunks and vectors of one lesson as JSON")
	cmd.Flags().BoolVar(&exportAll, "all-users", false, "Export lessons of every user")

	return cmd
}

func runExport(cmd *cobra.Command, args []string) error {
	format, err := sqlite.NormalizeFormat(exportType)
	if err != nil {
		return err
	}
	if exportChunks != "" && exportOutput == "" {
		return fmt.Errorf("--chunks requires --output")
	}

	a, err := newApp(cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	if a.sqlite == nil {
		return fmt.Errorf("export requires the sqlite store, current store is %s", a.cfg.Store)
	}
	ctx := cmd.Context()

	if exportChunks != "" {
		if err := a.sqlite.ExportChunksToJSON(ctx, exportChunks, exportOutput); err != nil {
			return err
		}
		if !quiet {
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported chunks of %s to %s\n", exportChunks, exportOutput)
		}
		return nil
	}

	owner := userID
	if exportAll {
		owner = ""
	}

	if exportOutput != "" {
		if err := a.sqlite.ExportToFile(ctx, owner, format, exportOutput, args...); err != nil {
			return err
		}
		if !quiet {
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported to %s\n", exportOutput)
		}
		return nil
	}

	data, err := a.sqlite.Export(ctx, owner, args...)
	if err != nil {
		return err
	}
	return sqlite.Write(cmd.OutOrStdout(), data, format)
}
