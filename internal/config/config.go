// ABOUTME: Centralized configuration for the distill pipeline
// ABOUTME: Defaults, then an optional YAML file, then environment variables, then validation
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	openai "github.com/sashabaranov/go-openai"
	"gopkg.in/yaml.v3"

	"github.com/harper/distill/internal/llm"
)

// Durable store backends
const (
	StoreSQLite = "sqlite"
	StoreCharm  = "charm"
	StoreNone   = "none"
)

// Config holds all configuration for the pipeline
type Config struct {
	// Model settings
	OpenAIKey      string        `yaml:"openai_api_key"`
	BaseURL        string        `yaml:"base_url"`
	ChatModel      string        `yaml:"chat_model"`
	EmbeddingModel string        `yaml:"embedding_model"`
	EmbeddingBatch int           `yaml:"embedding_batch"`
	Timeout        time.Duration `yaml:"timeout"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	MaxConcurrent  int           `yaml:"max_concurrent"`
	MaxRetries     int           `yaml:"max_retries"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	MaxRetryDelay  time.Duration `yaml:"max_retry_delay"`

	// Pipeline settings
	ChunkWords      int     `yaml:"chunk_words"`
	ChunkOverlap    int     `yaml:"chunk_overlap"`
	TopK            int     `yaml:"top_k"`
	IntentThreshold float64 `yaml:"intent_threshold"`

	// Cache settings
	CacheCapacity   int           `yaml:"cache_capacity"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	CacheSweep      string        `yaml:"cache_sweep"`
	CachePruneDedup bool          `yaml:"cache_prune_dedup"`

	// Durable storage
	Store       string `yaml:"store"`
	DBPath      string `yaml:"db_path"`
	CharmHost   string `yaml:"charm_host"`
	CharmDBName string `yaml:"charm_db"`
	AutoSync    bool   `yaml:"charm_auto_sync"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		ChatModel:       "gpt-4o-mini",
		EmbeddingModel:  "text-embedding-3-small",
		EmbeddingBatch:  32,
		Timeout:         90 * time.Second,
		AttemptTimeout:  30 * time.Second,
		MaxConcurrent:   2,
		MaxRetries:      1,
		RetryDelay:      2 * time.Second,
		MaxRetryDelay:   20 * time.Second,
		ChunkWords:      400,
		ChunkOverlap:    50,
		TopK:            6,
		IntentThreshold: 0.15,
		CacheCapacity:   50,
		CacheTTL:        2 * time.Hour,
		CacheSweep:      "@every 10m",
		Store:           StoreSQLite,
		CharmHost:       "cloud.charm.sh",
		CharmDBName:     "distill",
		AutoSync:        true,
		LogLevel:        "info",
	}
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile reads an optional YAML file, then applies environment overrides
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() {
	c.OpenAIKey = getEnv("OPENAI_API_KEY", c.OpenAIKey)
	c.BaseURL = getEnv("DISTILL_BASE_URL", c.BaseURL)
	c.ChatModel = getEnv("DISTILL_CHAT_MODEL", c.ChatModel)
	c.EmbeddingModel = getEnv("DISTILL_EMBEDDING_MODEL", c.EmbeddingModel)
	c.EmbeddingBatch = getEnvInt("DISTILL_EMBEDDING_BATCH", c.EmbeddingBatch)
	c.Timeout = getEnvDuration("DISTILL_TIMEOUT", c.Timeout)
	c.AttemptTimeout = getEnvDuration("DISTILL_ATTEMPT_TIMEOUT", c.AttemptTimeout)
	c.MaxConcurrent = getEnvInt("DISTILL_MAX_CONCURRENT", c.MaxConcurrent)
	c.MaxRetries = getEnvInt("DISTILL_MAX_RETRIES", c.MaxRetries)
	c.RetryDelay = getEnvDuration("DISTILL_RETRY_DELAY", c.RetryDelay)
	c.MaxRetryDelay = getEnvDuration("DISTILL_MAX_RETRY_DELAY", c.MaxRetryDelay)
	c.ChunkWords = getEnvInt("DISTILL_CHUNK_WORDS", c.ChunkWords)
	c.ChunkOverlap = getEnvInt("DISTILL_CHUNK_OVERLAP", c.ChunkOverlap)
	c.TopK = getEnvInt("DISTILL_TOP_K", c.TopK)
	c.IntentThreshold = getEnvFloat("DISTILL_INTENT_THRESHOLD", c.IntentThreshold)
	c.CacheCapacity = getEnvInt("DISTILL_CACHE_CAPACITY", c.CacheCapacity)
	c.CacheTTL = getEnvDuration("DISTILL_CACHE_TTL", c.CacheTTL)
	c.CacheSweep = getEnv("DISTILL_CACHE_SWEEP", c.CacheSweep)
	c.CachePruneDedup = getEnvBool("DISTILL_CACHE_PRUNE_DEDUP", c.CachePruneDedup)
	c.Store = strings.ToLower(getEnv("DISTILL_STORE", c.Store))
	c.DBPath = getEnv("DISTILL_DB_PATH", c.DBPath)
	c.CharmHost = getEnv("CHARM_HOST", c.CharmHost)
	c.CharmDBName = getEnv("DISTILL_CHARM_DB", c.CharmDBName)
	c.AutoSync = getEnvBool("CHARM_AUTO_SYNC", c.AutoSync)
	c.LogLevel = getEnv("DISTILL_LOG_LEVEL", c.LogLevel)
}

func (c *Config) Validate() error {
	if c.IntentThreshold < 0 || c.IntentThreshold > 1 {
		return fmt.Errorf("DISTILL_INTENT_THRESHOLD must be 0-1, got %f", c.IntentThreshold)
	}
	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return fmt.Errorf("DISTILL_MAX_RETRIES must be 0-10, got %d", c.MaxRetries)
	}
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("DISTILL_MAX_CONCURRENT must be at least 1, got %d", c.MaxConcurrent)
	}
	if c.TopK < 4 || c.TopK > 8 {
		return fmt.Errorf("DISTILL_TOP_K must be 4-8, got %d", c.TopK)
	}
	if c.ChunkWords < 1 {
		return fmt.Errorf("DISTILL_CHUNK_WORDS must be positive, got %d", c.ChunkWords)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkWords {
		return fmt.Errorf("DISTILL_CHUNK_OVERLAP must be 0-%d, got %d", c.ChunkWords-1, c.ChunkOverlap)
	}
	if c.CacheCapacity < 1 {
		return fmt.Errorf("DISTILL_CACHE_CAPACITY must be at least 1, got %d", c.CacheCapacity)
	}
	switch c.Store {
	case StoreSQLite, StoreCharm, StoreNone:
	default:
		return fmt.Errorf("DISTILL_STORE must be sqlite, charm or none, got %q", c.Store)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("DISTILL_LOG_LEVEL: %w", err)
	}
	return nil
}

// Offline reports whether no model credentials are configured
func (c *Config) Offline() bool {
	return c.OpenAIKey == ""
}

// Level returns the parsed log level, defaulting to info
func (c *Config) Level() log.Level {
	lvl, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// LLM returns the model client configuration
func (c *Config) LLM() *llm.ClientConfig {
	lc := llm.DefaultConfig(c.OpenAIKey)
	lc.BaseURL = c.BaseURL
	lc.ChatModel = c.ChatModel
	lc.EmbeddingModel = openai.EmbeddingModel(c.EmbeddingModel)
	lc.EmbeddingBatch = c.EmbeddingBatch
	lc.Timeout = c.Timeout
	lc.AttemptTimeout = c.AttemptTimeout
	lc.MaxConcurrent = c.MaxConcurrent
	lc.MaxRetries = c.MaxRetries
	lc.RetryDelay = c.RetryDelay
	lc.MaxRetryDelay = c.MaxRetryDelay
	return lc
}

// Helper functions
func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v == "true" || v == "1"
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
