// ABOUTME: CLI command to generate study content from a stored lesson
// ABOUTME: Routes a free-text topic to a content kind unless --kind is given
package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harper/distill/internal/core"
)

var (
	queryKind string
)

// NewQueryCmd creates the query command
func NewQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <lesson-id> [topic...]",
		Short: "Generate study content from a lesson",
		Long: `Generate study content from a lesson.

The topic is routed to a content kind (summary, flashcards, quiz,
workflow or explanation) and answered from the lesson chunks most
similar to it. Use --kind to pick the content kind directly.

Examples:
  distill query 3f2a... "explain volumes"
  distill query 3f2a... --kind flashcards
  distill query 3f2a... --kind concept_map --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: runQuery,
	}

	cmd.Flags().StringVarP(&queryKind, "kind", "k", "", "Content kind: summary, flashcards, quiz, concept_map, workflow, explanation")

	return cmd
}

func runQuery(cmd *cobra.Command, args []string) error {
	req := core.QueryRequest{
		LessonID: args[0],
		Topic:    strings.Join(args[1:], " "),
		Level:    levelValue(),
	}
	if queryKind != "" {
		kind, ok := core.KindForAction(queryKind)
		if !ok {
			return fmt.Errorf("unknown kind %q", queryKind)
		}
		req.Kind = kind
	}

	a, err := newApp(cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	content, err := a.orch.Query(cmd.Context(), req)
	if errors.Is(err, core.ErrLessonNotFound) {
		return fmt.Errorf("lesson %s not found", req.LessonID)
	}
	if err != nil {
		return err
	}

	if jsonOutput() {
		return printJSON(cmd.OutOrStdout(), content)
	}
	fmt.Fprintln(cmd.OutOrStdout(), core.RenderText(content))
	if verbose {
		for _, src := range content.Sources {
			fmt.Fprintf(cmd.ErrOrStderr(), "  [chunk %d, score %.2f]\n", src.Chunk.Index, src.Score)
		}
	}
	return nil
}
