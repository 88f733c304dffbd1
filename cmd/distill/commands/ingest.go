// ABOUTME: CLI command to ingest documents into lessons
// ABOUTME: Accepts files or stdin and prints the resulting lesson summary
package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/harper/distill/internal/core"
	"github.com/harper/distill/internal/storage"
)

var (
	ingestTitle string
)

// NewIngestCmd creates the ingest command
func NewIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Turn documents into lessons",
		Long: `Turn documents into lessons.

Each document is chunked, embedded and summarized. The lesson keeps a
summary, flashcards, a quiz and a concept map. Ingesting the same text
twice returns the existing lesson.

Use "-" to read a document from stdin.

Examples:
  distill ingest notes/docker.md
  distill ingest --title "K8s Pods" pods.txt
  cat README.md | distill ingest -`,
		Args: cobra.MinimumNArgs(1),
		RunE: runIngest,
	}

	cmd.Flags().StringVar(&ingestTitle, "title", "", "Lesson title (single document only)")

	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestTitle != "" && len(args) > 1 {
		return fmt.Errorf("--title can only be used with a single document")
	}

	a, err := newApp(cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	results := make([]*core.IngestResult, 0, len(args))
	for _, path := range args {
		res, err := a.ingestPath(cmd.Context(), cmd.InOrStdin(), path, ingestTitle)
		if err != nil {
			return fmt.Errorf("ingesting %s: %w", path, err)
		}
		results = append(results, res)
	}

	if jsonOutput() {
		out := make([]map[string]any, 0, len(results))
		for _, res := range results {
			out = append(out, map[string]any{
				"id":           res.ID,
				"deduplicated": res.Deduplicated,
				"lesson":       storage.InfoFor(res.Lesson),
				"bullets":      res.Lesson.Bullets,
			})
		}
		return printJSON(cmd.OutOrStdout(), out)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tTITLE\tFRAMEWORK\tMINUTES\tSTATUS\n")
	fmt.Fprintf(w, "--\t-----\t---------\t-------\t------\n")
	for _, res := range results {
		info := storage.InfoFor(res.Lesson)
		status := "new"
		if res.Deduplicated {
			status = "existing"
		}
		if info.Fallback {
			status += " (offline)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			res.ID, truncate(info.Title, 40), info.Framework, info.ReadingMinutes, status)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if len(results) == 1 && !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n", core.JoinBullets(results[0].Lesson.Bullets))
	}
	return nil
}
