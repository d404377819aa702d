// Package core wires the coaching service from a config.Config carried in the
// context and exposes the operations the outer layers call.
package core

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/chirino/coaching-service/internal/analytics"
	"github.com/chirino/coaching-service/internal/coaching"
	"github.com/chirino/coaching-service/internal/config"
	"github.com/chirino/coaching-service/internal/gateway"
	"github.com/chirino/coaching-service/internal/memory"
	"github.com/chirino/coaching-service/internal/metrics"
	"github.com/chirino/coaching-service/internal/model"
	storemetrics "github.com/chirino/coaching-service/internal/plugin/store/metrics"
	registryarchive "github.com/chirino/coaching-service/internal/registry/archive"
	registrycache "github.com/chirino/coaching-service/internal/registry/cache"
	registryembed "github.com/chirino/coaching-service/internal/registry/embed"
	registrymigrate "github.com/chirino/coaching-service/internal/registry/migrate"
	registryprovider "github.com/chirino/coaching-service/internal/registry/provider"
	registrystore "github.com/chirino/coaching-service/internal/registry/store"
	registryvector "github.com/chirino/coaching-service/internal/registry/vector"
	"github.com/chirino/coaching-service/internal/retry"
	"github.com/chirino/coaching-service/internal/service"
	"github.com/google/uuid"
)

// Core is the assembled coaching service.
type Core struct {
	Config    *config.Config
	Store     registrystore.RecordStore
	Gateway   *gateway.Gateway
	Memory    *memory.Store
	Coach     *coaching.Coach
	Analytics *analytics.Pipeline
	Tasks     *service.TaskProcessor

	closers []func() error
}

// Build selects and loads every plugin named by the config in ctx. On error the
// resources opened so far are released.
func Build(ctx context.Context) (_ *Core, err error) {
	cfg := config.FromContext(ctx)
	if cfg == nil {
		return nil, fmt.Errorf("core: missing config in context")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	c := &Core{Config: cfg}
	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()

	labels, err := metrics.ParseMetricsLabels(cfg.MetricsLabels)
	if err != nil {
		return nil, fmt.Errorf("invalid metrics labels: %w", err)
	}
	metrics.InitMetrics(labels)

	if err := registrymigrate.RunAll(ctx); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	cacheLoader, err := registrycache.Select(cfg.CacheType)
	if err != nil {
		return nil, err
	}
	embeddingCache, err := cacheLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load cache: %w", err)
	}
	c.track(embeddingCache)

	storeLoader, err := registrystore.Select(cfg.DatastoreType)
	if err != nil {
		return nil, err
	}
	store, err := storeLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load store: %w", err)
	}
	c.track(store)
	c.Store = storemetrics.Wrap(store)

	embedLoader, err := registryembed.Select(cfg.EmbedType)
	if err != nil {
		return nil, err
	}
	embedder, err := embedLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load embedder: %w", err)
	}
	if err := registryembed.VerifyDimension(embedder, cfg.EmbeddingDimensions); err != nil {
		return nil, err
	}

	vectorLoader, err := registryvector.Select(cfg.VectorType)
	if err != nil {
		return nil, err
	}
	index, err := vectorLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load vector store: %w", err)
	}
	c.track(index)

	providers := loadProviders(ctx, cfg.ProviderNames())

	c.Gateway = gateway.New(providers, embedder, gateway.Settings{
		Timeout:      cfg.ProviderTimeout,
		EmbedTimeout: cfg.EmbeddingTimeout,
		Retry: retry.Policy{
			MaxAttempts: cfg.ProviderMaxAttempts,
			BaseDelay:   cfg.ProviderRetryBaseDelay,
			MaxDelay:    cfg.ProviderRetryMaxDelay,
			Jitter:      0.25,
		},
	})

	archiveLoader, err := registryarchive.Select(cfg.ArchiveType)
	if err != nil {
		return nil, err
	}
	archiver, err := archiveLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load archive: %w", err)
	}

	c.Memory = memory.New(c.Store, index, c.Gateway, memory.Options{
		Cache:        embeddingCache,
		CacheTTL:     cfg.CacheTTL,
		ExcerptRunes: cfg.MemoryExcerptRunes,
	})
	c.Tasks = service.NewTaskProcessor(c.Store, c.Memory, service.TaskSettings{
		Interval:    cfg.TaskPollInterval,
		BatchSize:   cfg.TaskBatchSize,
		MaxAttempts: cfg.TaskMaxAttempts,
		RetryDelay:  cfg.TaskRetryDelay,
		MaxDelay:    cfg.TaskMaxDelay,
	})
	c.Coach = coaching.New(c.Store, c.Gateway, c.Memory, c.Tasks, coaching.Settings{
		DefaultModel:  cfg.DefaultModel,
		RecencyWindow: cfg.RecencyWindow,
		MemoryTopK:    cfg.MemoryTopK,
		TurnTimeout:   cfg.TurnTimeout,
		Temperature:   cfg.CoachTemperature,
		MaxTokens:     cfg.CoachMaxTokens,
	})
	c.Analytics = analytics.New(c.Store, c.Gateway, archiver, analytics.Settings{
		Model:         cfg.AnalyticsModel,
		Temperature:   cfg.AnalyticsTemperature,
		MaxTokens:     cfg.AnalyticsMaxTokens,
		MaxWindowDays: cfg.ReportMaxWindowDays,
	})

	log.Info("Coaching core ready",
		"store", cfg.DatastoreType,
		"vector", index.Name(),
		"embedder", embedder.ModelName(),
		"cache", cfg.CacheType,
		"archive", archiver.Name(),
		"models", c.Gateway.Models())
	return c, nil
}

// loadProviders loads every named provider. A provider that fails to load (most
// often a missing API key) is skipped; turns that ask for it fail as unsupported.
func loadProviders(ctx context.Context, names []string) []registryprovider.Provider {
	var providers []registryprovider.Provider
	for _, name := range names {
		loader, err := registryprovider.Select(name)
		if err != nil {
			log.Warn("Unknown provider", "provider", name, "err", err)
			continue
		}
		p, err := loader(ctx)
		if err != nil {
			log.Warn("Provider not loaded", "provider", name, "err", err)
			continue
		}
		providers = append(providers, p)
	}
	if len(providers) == 0 {
		log.Warn("No completion providers loaded")
	}
	return providers
}

func (c *Core) track(v any) {
	switch closer := v.(type) {
	case io.Closer:
		c.closers = append(c.closers, closer.Close)
	case interface{ Close() }:
		c.closers = append(c.closers, func() error { closer.Close(); return nil })
	}
}

// HandleTurn answers a user message in an active session.
func (c *Core) HandleTurn(ctx context.Context, sessionID uuid.UUID, userID, message, modelID string) (*coaching.TurnResult, error) {
	return c.Coach.HandleTurn(ctx, sessionID, userID, message, modelID)
}

// GenerateReport builds and stores a progress report over the last windowDays days.
func (c *Core) GenerateReport(ctx context.Context, userID string, windowDays int) (*model.ProgressReport, error) {
	return c.Analytics.GenerateReport(ctx, userID, windowDays)
}

// ListReports returns up to limit of userID's reports, newest first.
func (c *Core) ListReports(ctx context.Context, userID string, limit int) ([]model.ProgressReport, error) {
	return c.Analytics.ListReports(ctx, userID, limit)
}

// GetReport returns one of userID's stored reports.
func (c *Core) GetReport(ctx context.Context, userID string, reportID uuid.UUID) (*model.ProgressReport, error) {
	return c.Analytics.GetReport(ctx, userID, reportID)
}

// QueryMemory returns userID's k most relevant memories for text.
func (c *Core) QueryMemory(ctx context.Context, userID, text string, k int) ([]memory.Match, error) {
	return c.Memory.Query(ctx, userID, text, k)
}

// SearchMemory is QueryMemory with optional session scoping.
func (c *Core) SearchMemory(ctx context.Context, req memory.SearchRequest) ([]memory.Match, error) {
	return c.Memory.Search(ctx, req)
}

// Close releases the loaded plugins in reverse load order.
func (c *Core) Close() error {
	var first error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	c.closers = nil
	return first
}
