// Package app wires configuration into a ready pipeline for the binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/esgcompare/internal/cache"
	"github.com/dgallion1/esgcompare/internal/chunker"
	"github.com/dgallion1/esgcompare/internal/config"
	"github.com/dgallion1/esgcompare/internal/extract"
	"github.com/dgallion1/esgcompare/internal/pipeline"
)

// Engine holds the long-lived components built from configuration.
type Engine struct {
	Pipeline *pipeline.Pipeline
	Client   *extract.Throttled
	Cache    *cache.Cache

	closers []func() error
}

// New builds the extraction client, opens the cache and assembles the
// pipeline. Close releases everything it opened.
func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*Engine, error) {
	schema, err := cfg.Schema()
	if err != nil {
		return nil, err
	}

	e := &Engine{}
	inner, closeClient, err := newClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, closeClient)
	e.Client = extract.NewThrottled(inner, cfg.ExtractRatePerMinute, cfg.ExtractBurst, extract.NewLLMStats(time.Hour))

	store, err := cache.Open(ctx, cache.Options{
		Backend:         cfg.CacheBackend,
		Dir:             cfg.CacheDir,
		DatabaseURL:     cfg.CacheDatabaseURL,
		Bucket:          cfg.CacheBucket,
		ProjectID:       cfg.GCPProject,
		Collection:      cfg.CacheCollection,
		PathstoreURL:    cfg.PathstoreURL,
		PathstoreAPIKey: cfg.PathstoreAPIKey,
		TTL:             cfg.CacheTTL,
	})
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("open %s cache: %w", cfg.CacheBackend, err)
	}
	e.Cache = cache.New(store, cfg.CachePrefix)
	e.closers = append(e.closers, e.Cache.Close)

	e.Pipeline = pipeline.New(e.Client, e.Cache, schema, pipeline.Options{
		MaxConcurrent:  cfg.MaxConcurrentDocuments,
		FuzzyThreshold: cfg.FuzzyThreshold,
		Chunking: chunker.Config{
			PagesPerPart: cfg.PagesPerPart,
			MaxTokens:    cfg.MaxPartTokens,
		},
		Retry: pipeline.RetryPolicy{
			MaxAttempts: cfg.MaxAttempts,
			Timeout:     cfg.ExtractTimeout,
		},
	}, log)

	log.Info("engine ready",
		"provider", cfg.ExtractProvider,
		"model", e.Client.Model(),
		"cache", cfg.CacheBackend,
		"categories", schema.IDs(),
		"fuzzy_threshold", cfg.FuzzyThreshold,
	)
	return e, nil
}

func newClient(ctx context.Context, cfg config.Config) (extract.Client, func() error, error) {
	switch cfg.ExtractProvider {
	case "claude":
		c := extract.NewClaudeClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
		return c, c.Close, nil
	case "gemini":
		c, err := extract.NewGeminiClient(ctx, cfg.GCPProject, cfg.GCPRegion, cfg.GeminiModel)
		if err != nil {
			return nil, nil, err
		}
		return c, c.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown extraction provider %q", cfg.ExtractProvider)
	}
}

// Close releases the cache and client, in reverse order of opening.
func (e *Engine) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}
