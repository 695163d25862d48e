package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/complylabs/verdict/internal/llm"
	"github.com/complylabs/verdict/internal/store"
)

// expandPath expands a leading tilde and environment variables.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	return os.ExpandEnv(path)
}

// initOpener builds the store backend from configuration. The returned
// close function releases backend resources (a no-op for most backends).
func initOpener() (store.Opener, func() error, error) {
	noop := func() error { return nil }

	backend := viper.GetString("store.backend")
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "sqlite":
		dbPath := viper.GetString("store.path")
		if dbPath == "" {
			dbPath = "$HOME/.local/share/verdict/verdict.db"
		}
		opener, err := store.NewSQLiteOpener(expandPath(dbPath))
		if err != nil {
			return nil, nil, err
		}
		return opener, opener.Close, nil

	case "filesystem":
		root := viper.GetString("store.path")
		if root == "" {
			root = "$HOME/.local/share/verdict/runs"
		}
		opener, err := store.NewFilesystemOpener(expandPath(root))
		if err != nil {
			return nil, nil, err
		}
		return opener, noop, nil

	case "remote":
		opener, err := store.NewRemoteOpener(viper.GetString("store.url"))
		if err != nil {
			return nil, nil, err
		}
		return opener, noop, nil

	case "memory":
		// Useful only for exercising commands in tests.
		return store.NewMemoryOpener(), noop, nil

	default:
		return nil, nil, fmt.Errorf("unsupported store backend: %s", backend)
	}
}

// providerConfig assembles the LLM provider configuration.
func providerConfig() llm.Config {
	return llm.Config{
		Provider:      viper.GetString("llm.provider"),
		APIKey:        viper.GetString("llm.api_key"),
		Model:         viper.GetString("llm.model"),
		ContextWindow: viper.GetInt("llm.context_window"),
		MaxTokens:     viper.GetInt("llm.max_tokens"),
		Temperature:   viper.GetFloat64("llm.temperature"),
		MaxRetries:    viper.GetInt("llm.max_retries"),
		RetryDelay:    viper.GetDuration("llm.retry_delay"),
		RateLimit:     viper.GetInt("llm.rate_limit"),
	}
}

// initBatchProvider builds the provider and requires batch capability.
func initBatchProvider() (llm.BatchProvider, llm.Config, error) {
	cfg := providerConfig()
	if cfg.Provider == "" {
		return nil, cfg, fmt.Errorf("llm.provider is not configured")
	}

	provider, err := llm.NewProvider(cfg)
	if err != nil {
		return nil, cfg, fmt.Errorf("failed to create LLM provider: %w", err)
	}

	batchProvider, ok := provider.(llm.BatchProvider)
	if !ok {
		return nil, cfg, fmt.Errorf("provider %q does not support batch polling", cfg.Provider)
	}
	return batchProvider, cfg, nil
}

// watchInterval returns the configured poll interval for --watch.
func watchInterval() time.Duration {
	interval := viper.GetDuration("poll.interval")
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return interval
}
