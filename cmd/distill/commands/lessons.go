// ABOUTME: CLI commands to browse and manage stored lessons
// ABOUTME: list, show and delete work on any store; sync needs the Charm backend
package commands

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/harper/distill/internal/core"
	"github.com/harper/distill/internal/models"
	"github.com/harper/distill/internal/storage"
)

// NewLessonsCmd creates the lessons command group
func NewLessonsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lessons",
		Short: "Browse and manage stored lessons",
		Long: `Browse and manage stored lessons.

Lessons are kept in the configured store: a local SQLite database by
default, or Charm cloud KV with DISTILL_STORE=charm.`,
	}

	cmd.AddCommand(newLessonsListCmd())
	cmd.AddCommand(newLessonsShowCmd())
	cmd.AddCommand(newLessonsDeleteCmd())
	cmd.AddCommand(newLessonsSyncCmd())

	return cmd
}

func newLessonsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your lessons, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			lessons, err := a.catalog.ListLessons(cmd.Context(), userID)
			if err != nil {
				return fmt.Errorf("listing lessons: %w", err)
			}

			if jsonOutput() {
				if lessons == nil {
					lessons = []storage.LessonInfo{}
				}
				return printJSON(cmd.OutOrStdout(), lessons)
			}

			if len(lessons) == 0 {
				if !quiet {
					fmt.Fprintf(cmd.OutOrStdout(), "No lessons found\n")
				}
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "TITLE\tFRAMEWORK\tLEVEL\tMINUTES\tCREATED\tID\n")
			fmt.Fprintf(w, "-----\t---------\t-----\t-------\t-------\t--\n")
			for _, l := range lessons {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
					truncate(l.Title, 40), l.Framework, l.Level, l.ReadingMinutes, formatTime(l.CreatedAt), l.ID)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if !quiet {
				fmt.Fprintf(cmd.OutOrStdout(), "\nTotal: %d lessons\n", len(lessons))
			}
			return nil
		},
	}
}

func newLessonsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a lesson's summary and study material",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			rec, err := a.orch.Lesson(cmd.Context(), args[0])
			if errors.Is(err, core.ErrLessonNotFound) {
				return fmt.Errorf("lesson %s not found", args[0])
			}
			if err != nil {
				return err
			}

			if jsonOutput() {
				return printJSON(cmd.OutOrStdout(), rec.Content())
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n", rec.Title)
			fmt.Fprintf(out, "Framework: %s  Level: %s  Reading time: %d min\n\n", rec.Framework, rec.Level, rec.ReadingMinutes)
			fmt.Fprintf(out, "%s\n", core.JoinBullets(rec.Bullets))
			if len(rec.Flashcards) > 0 {
				cards := &models.GeneratedContent{Kind: models.KindFlashcards, Flashcards: rec.Flashcards}
				fmt.Fprintf(out, "\n%s\n", core.RenderText(cards))
			}
			if !rec.ConceptMap.IsEmpty() {
				fmt.Fprintf(out, "\n%s\n", core.RenderConceptMap(rec.ConceptMap))
			}
			return nil
		},
	}
}

func newLessonsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete lessons",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			for _, id := range args {
				if err := a.catalog.DeleteLesson(cmd.Context(), id); err != nil {
					if errors.Is(err, storage.ErrNotFound) {
						return fmt.Errorf("lesson %s not found", id)
					}
					return fmt.Errorf("deleting %s: %w", id, err)
				}
				a.cache.Invalidate(id)
				if !quiet {
					fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
				}
			}
			return nil
		},
	}
}

func newLessonsSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Force immediate sync with Charm cloud",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			if a.charm == nil {
				return fmt.Errorf("sync requires the charm store (DISTILL_STORE=charm), current store is %s", a.cfg.Store)
			}
			if !quiet {
				fmt.Fprintln(cmd.OutOrStdout(), "Syncing...")
			}
			if err := a.charm.Sync(); err != nil {
				return fmt.Errorf("sync failed: %w", err)
			}
			if !quiet {
				fmt.Fprintln(cmd.OutOrStdout(), "Sync complete")
			}
			return nil
		},
	}
}
