// ABOUTME: Directory watcher that ingests new or modified text documents
// ABOUTME: fsnotify events are debounced per file before extraction and ingest
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/harper/distill/internal/core"
	"github.com/harper/distill/internal/extract"
	"github.com/harper/distill/internal/models"
)

// DefaultDebounce is how long a file must stay quiet before it is ingested
const DefaultDebounce = 500 * time.Millisecond

// Ingester is the pipeline entry point the watcher feeds
type Ingester interface {
	Ingest(ctx context.Context, req core.IngestRequest) (*core.IngestResult, error)
}

// Result reports the outcome for one file
type Result struct {
	Path   string
	Lesson *core.IngestResult
	Err    error
}

// Option configures a Watcher
type Option func(*Watcher)

// WithUser sets the owner of ingested lessons
func WithUser(userID string) Option {
	return func(w *Watcher) { w.userID = userID }
}

// WithLevel sets the explanation level of ingested lessons
func WithLevel(level models.ExplanationLevel) Option {
	return func(w *Watcher) { w.level = level }
}

// WithDebounce sets the quiet period before a changed file is ingested
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *log.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// OnResult registers a callback invoked after every ingest attempt
func OnResult(fn func(Result)) Option {
	return func(w *Watcher) { w.onResult = fn }
}

// Watcher ingests text files dropped into a directory
type Watcher struct {
	dir      string
	ingester Ingester
	userID   string
	level    models.ExplanationLevel
	debounce time.Duration
	logger   *log.Logger
	onResult func(Result)

	mu      sync.Mutex
	pending map[string]time.Time
}

// New creates a watcher for dir
func New(dir string, ingester Ingester, opts ...Option) *Watcher {
	w := &Watcher{
		dir:      dir,
		ingester: ingester,
		debounce: DefaultDebounce,
		logger:   log.Default(),
		pending:  make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Watched reports whether a path is a candidate for ingest
func Watched(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return false
	}
	return extract.Supported(path)
}

// IngestFile extracts and ingests one file
func (w *Watcher) IngestFile(ctx context.Context, path string) Result {
	res := Result{Path: path}
	text, err := extract.File(ctx, path)
	if err != nil {
		res.Err = err
	} else {
		res.Lesson, res.Err = w.ingester.Ingest(ctx, core.IngestRequest{
			Text:   text,
			UserID: w.userID,
			Source: filepath.Base(path),
			Level:  w.level,
		})
	}

	switch {
	case res.Err != nil:
		w.logger.Warn("ingest failed", "path", path, "err", res.Err)
	case res.Lesson.Deduplicated:
		w.logger.Info("already ingested", "path", path, "lesson", res.Lesson.ID)
	default:
		w.logger.Info("ingested", "path", path, "lesson", res.Lesson.ID, "title", res.Lesson.Lesson.Title)
	}
	if w.onResult != nil {
		w.onResult(res)
	}
	return res
}

// ScanExisting ingests every watched file already in the directory, in
// name order
func (w *Watcher) ScanExisting(ctx context.Context) ([]Result, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", w.dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && Watched(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	results := make([]Result, 0, len(names))
	for _, name := range names {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		results = append(results, w.IngestFile(ctx, filepath.Join(w.dir, name)))
	}
	return results, nil
}

// Run watches the directory until ctx is cancelled
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = fsw.Close() }()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	w.logger.Info("watching for documents", "dir", w.dir, "debounce", w.debounce)

	tick := time.NewTicker(w.debounce / 2)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 || !Watched(event.Name) {
				continue
			}
			w.mark(event.Name, time.Now())
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.logger.Warn("watch events dropped, rescanning", "dir", w.dir)
				if _, err := w.ScanExisting(ctx); err != nil {
					w.logger.Error("rescan failed", "err", err)
				}
				continue
			}
			w.logger.Error("watch error", "err", err)
		case now := <-tick.C:
			for _, path := range w.due(now) {
				w.IngestFile(ctx, path)
			}
		}
	}
}

func (w *Watcher) mark(path string, at time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[path] = at
}

// due removes and returns the paths quiet for at least the debounce period
func (w *Watcher) due(now time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var ready []string
	for path, at := range w.pending {
		if now.Sub(at) >= w.debounce {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	sort.Strings(ready)
	return ready
}
