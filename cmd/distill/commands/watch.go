// ABOUTME: CLI command that ingests documents dropped into a directory
// ABOUTME: Runs the cache janitor while watching and stops on SIGINT or SIGTERM
package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/harper/distill/internal/watch"
)

var (
	watchScan     bool
	watchDebounce time.Duration
)

// NewWatchCmd creates the watch command
func NewWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Ingest documents as they appear in a directory",
		Long: `Ingest documents as they appear in a directory.

New and changed .txt, .md, .markdown and .rst files become lessons once
they stop changing for the debounce interval. Identical content is
deduplicated, so saving a file twice costs nothing.

Examples:
  distill watch ~/notes
  distill watch --scan --debounce 2s ~/notes`,
		Args: cobra.ExactArgs(1),
		RunE: runWatch,
	}

	cmd.Flags().BoolVar(&watchScan, "scan", false, "Ingest existing documents before watching")
	cmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "Quiet period before a changed file is ingested")

	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, appOptions{janitor: true})
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	report := func(r watch.Result) {
		if r.Err != nil {
			return
		}
		status := "new"
		if r.Lesson.Deduplicated {
			status = "existing"
		}
		if jsonOutput() {
			_ = printJSON(out, map[string]any{"path": r.Path, "id": r.Lesson.ID, "status": status})
			return
		}
		fmt.Fprintf(out, "%s\t%s\t%s\n", status, r.Lesson.ID, r.Path)
	}

	w := watch.New(args[0], a.orch,
		watch.WithUser(userID),
		watch.WithLevel(levelValue()),
		watch.WithDebounce(watchDebounce),
		watch.WithLogger(a.logger),
		watch.OnResult(report),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if watchScan {
		if _, err := w.ScanExisting(ctx); err != nil {
			return fmt.Errorf("scanning %s: %w", args[0], err)
		}
	}

	a.logger.Info("watching for documents", "dir", args[0], "debounce", watchDebounce)
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.logger.Info("watch stopped")
	return nil
}
