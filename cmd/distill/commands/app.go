// ABOUTME: Builds the pipeline shared by every command from config and flags
// ABOUTME: Chooses the durable store, the model transports and the cache janitor
package commands

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/harper/distill/internal/charm"
	"github.com/harper/distill/internal/config"
	"github.com/harper/distill/internal/core"
	"github.com/harper/distill/internal/extract"
	"github.com/harper/distill/internal/llm"
	"github.com/harper/distill/internal/storage"
	"github.com/harper/distill/internal/storage/sqlite"
)

// app is a fully wired pipeline plus whatever needs closing afterwards
type app struct {
	cfg     *config.Config
	logger  *log.Logger
	orch    *core.Orchestrator
	cache   *storage.ContentCache
	lessons *storage.ResilientStore
	catalog storage.LessonCatalog
	sqlite  *sqlite.Storage
	charm   *charm.Client
	janitor *storage.Janitor
	model   *llm.ModelClient
}

type appOptions struct {
	// janitor starts the scheduled cache sweep for long-running commands
	janitor bool
}

// newLogger builds the CLI logger on stderr so stdout stays parseable
func newLogger(cmd *cobra.Command, cfg *config.Config) *log.Logger {
	level := cfg.Level()
	switch {
	case verbose:
		level = log.DebugLevel
	case quiet:
		level = log.ErrorLevel
	}
	return log.NewWithOptions(cmd.ErrOrStderr(), log.Options{
		Level:           level,
		Prefix:          "distill",
		ReportTimestamp: true,
	})
}

// newApp loads configuration and wires the orchestrator
func newApp(cmd *cobra.Command, opts appOptions) (*app, error) {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logger := newLogger(cmd, cfg)

	a := &app{cfg: cfg, logger: logger}
	inner, err := a.openStore()
	if err != nil {
		return nil, err
	}
	a.lessons = storage.NewResilientStore(inner, cfg.MaxRetries, logger)

	a.cache = storage.NewContentCache(
		storage.WithCapacity(cfg.CacheCapacity),
		storage.WithTTL(cfg.CacheTTL),
		storage.WithCacheLogger(logger),
	)

	deps := core.Deps{
		Chunker:       core.NewChunkEngine(cfg.ChunkWords, cfg.ChunkOverlap),
		Prompts:       core.NewPromptBuilder(core.DefaultContextTokens),
		Router:        core.NewIntentRouter(cfg.IntentThreshold),
		Cache:         a.cache,
		Lessons:       a.lessons,
		Conversations: storage.NewConversationStore(),
		TopK:          cfg.TopK,
		Logger:        logger,
	}

	lc := cfg.LLM()
	if cfg.Offline() {
		logger.Warn("OPENAI_API_KEY not set, running offline with fallback summaries and embeddings")
		deps.Embedder = llm.NewEmbedder(nil, lc, logger)
	} else {
		client, err := llm.NewOpenAIClient(lc)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("initializing model client: %w", err)
		}
		a.model = llm.NewModelClient(client, lc, logger)
		deps.Generator = a.model
		deps.Embedder = llm.NewEmbedder(client, lc, logger)
		logger.Debug("model client ready", "chat_model", lc.ChatModel, "embedding_model", lc.EmbeddingModel)
	}
	a.orch = core.NewOrchestrator(deps)

	if opts.janitor {
		j, err := storage.NewJanitor(a.cache, cfg.CacheSweep, cfg.CachePruneDedup, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		j.Start()
		a.janitor = j
	}
	return a, nil
}

// openStore opens the configured durable backend. A nil store keeps
// lessons in memory only.
func (a *app) openStore() (storage.LessonStore, error) {
	switch a.cfg.Store {
	case config.StoreSQLite:
		path := a.cfg.DBPath
		if path == "" {
			path = sqlite.DefaultDBPath()
		}
		s, err := sqlite.NewStorageWithPath(path)
		if err != nil {
			return nil, fmt.Errorf("initializing storage: %w", err)
		}
		a.logger.Debug("using sqlite store", "path", path)
		a.sqlite = s
		a.catalog = s
		return s, nil
	case config.StoreCharm:
		client, err := charm.NewClient(&charm.Config{
			Host:     a.cfg.CharmHost,
			DBName:   a.cfg.CharmDBName,
			AutoSync: a.cfg.AutoSync,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Charm: %w", err)
		}
		a.logger.Debug("using charm store", "host", a.cfg.CharmHost, "db", a.cfg.CharmDBName)
		a.charm = client
		ls := charm.NewLessonStore(client)
		a.catalog = ls
		return ls, nil
	default:
		a.logger.Debug("no durable store, lessons live for this process only")
		mem := storage.NewMemoryLessonStore()
		a.catalog = mem
		return mem, nil
	}
}

// Close stops the janitor and closes the durable store
func (a *app) Close() {
	if a.janitor != nil {
		a.janitor.Stop()
	}
	if a.sqlite != nil {
		if err := a.sqlite.Close(); err != nil {
			a.logger.Warn("error closing storage", "err", err)
		}
	}
	if a.charm != nil {
		if err := a.charm.Close(); err != nil {
			a.logger.Warn("error closing charm", "err", err)
		}
	}
}

// ingestPath reads a document from disk, or from in for "-", and ingests it
func (a *app) ingestPath(ctx context.Context, in io.Reader, path, title string) (*core.IngestResult, error) {
	req := core.IngestRequest{UserID: userID, Title: title, Level: levelValue()}
	if path == "-" {
		data, err := io.ReadAll(in)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		req.Text = string(data)
		req.Source = "stdin"
	} else {
		text, err := extract.File(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("failed to read document: %w", err)
		}
		req.Text = text
		req.Source = filepath.Base(path)
	}
	return a.orch.Ingest(ctx, req)
}
