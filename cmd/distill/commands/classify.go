// ABOUTME: CLI command to show how a chat message would be routed
// ABOUTME: Runs the keyword router only; no model or store is touched
package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harper/distill/internal/config"
	"github.com/harper/distill/internal/core"
	"github.com/harper/distill/internal/models"
)

var (
	classifyWithDocument bool
)

// NewClassifyCmd creates the classify command
func NewClassifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify <message...>",
		Short: "Show the intent and plan for a chat message",
		Long: `Show the intent and plan for a chat message.

Classification is deterministic keyword matching. Messages that match
no intent strongly enough are labeled "clarify" with suggestions.

Examples:
  distill classify "make me some flashcards"
  distill classify --document "quiz me on this"`,
		Args: cobra.MinimumNArgs(1),
		RunE: runClassify,
	}

	cmd.Flags().BoolVar(&classifyWithDocument, "document", false, "Classify as if a document were attached")

	return cmd
}

func runClassify(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	router := core.NewIntentRouter(cfg.IntentThreshold)

	msg := strings.Join(args, " ")
	cls := router.Classify(msg, models.RouteContext{DocumentAttached: classifyWithDocument})
	plan := router.Plan(cls.Label)

	if jsonOutput() {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"intent": cls,
			"plan":   plan,
		})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Intent:     %s\n", cls.Label)
	fmt.Fprintf(out, "Confidence: %.2f\n", cls.Confidence)
	fmt.Fprintf(out, "Action:     %s\n", plan.Action)
	if plan.Description != "" && !quiet {
		fmt.Fprintf(out, "            %s\n", plan.Description)
	}
	if len(cls.Suggestions) > 0 {
		fmt.Fprintf(out, "Try:        %s\n", strings.Join(cls.Suggestions, ", "))
	}
	return nil
}
