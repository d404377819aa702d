// Package flags binds config.Config fields to command line flags shared by the
// sub-commands.
package flags

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/chirino/coaching-service/internal/config"
	registryarchive "github.com/chirino/coaching-service/internal/registry/archive"
	registrycache "github.com/chirino/coaching-service/internal/registry/cache"
	registryembed "github.com/chirino/coaching-service/internal/registry/embed"
	registryprovider "github.com/chirino/coaching-service/internal/registry/provider"
	registrystore "github.com/chirino/coaching-service/internal/registry/store"
	registryvector "github.com/chirino/coaching-service/internal/registry/vector"
	"github.com/urfave/cli/v3"
)

func env(names ...string) cli.ValueSourceChain {
	return cli.EnvVars(names...)
}

// Prepare applies the log level, validates cfg and stores it in ctx.
func Prepare(ctx context.Context, cfg *config.Config) (context.Context, error) {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid --log-level: %w", err)
	}
	log.SetLevel(level)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return config.WithContext(ctx, cfg), nil
}

// Common returns the flags every command that builds the core accepts.
func Common(cfg *config.Config) []cli.Flag {
	var all []cli.Flag
	all = append(all, Logging(cfg)...)
	all = append(all, Database(cfg)...)
	all = append(all, Cache(cfg)...)
	all = append(all, Vector(cfg)...)
	all = append(all, Embedding(cfg)...)
	all = append(all, Providers(cfg)...)
	all = append(all, Coaching(cfg)...)
	all = append(all, Analytics(cfg)...)
	all = append(all, Tasks(cfg)...)
	all = append(all, Archive(cfg)...)
	all = append(all, Monitoring(cfg)...)
	return all
}

func Logging(cfg *config.Config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Category:    "Logging:",
			Sources:     env("COACHING_SERVICE_LOG_LEVEL"),
			Destination: &cfg.LogLevel,
			Value:       cfg.LogLevel,
			Usage:       "Log level (debug|info|warn|error)",
		},
	}
}

func Database(cfg *config.Config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "db-kind",
			Category:    "Database:",
			Sources:     env("COACHING_SERVICE_DB_KIND"),
			Destination: &cfg.DatastoreType,
			Value:       cfg.DatastoreType,
			Usage:       "Record store (" + strings.Join(registrystore.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "db-url",
			Category:    "Database:",
			Sources:     env("COACHING_SERVICE_DB_URL", "DATABASE_URL"),
			Destination: &cfg.DBURL,
			Usage:       "Database connection URL (a file: DSN for sqlite)",
			Required:    true,
		},
		&cli.BoolFlag{
			Name:        "db-migrate-at-start",
			Category:    "Database:",
			Sources:     env("COACHING_SERVICE_DB_MIGRATE_AT_START"),
			Destination: &cfg.DatastoreMigrateAtStart,
			Value:       cfg.DatastoreMigrateAtStart,
			Usage:       "Run record store migrations before starting",
		},
		&cli.IntFlag{
			Name:        "db-max-open-conns",
			Category:    "Database:",
			Sources:     env("COACHING_SERVICE_DB_MAX_OPEN_CONNS"),
			Destination: &cfg.DBMaxOpenConns,
			Value:       cfg.DBMaxOpenConns,
			Usage:       "Maximum number of open database connections",
		},
		&cli.IntFlag{
			Name:        "db-max-idle-conns",
			Category:    "Database:",
			Sources:     env("COACHING_SERVICE_DB_MAX_IDLE_CONNS"),
			Destination: &cfg.DBMaxIdleConns,
			Value:       cfg.DBMaxIdleConns,
			Usage:       "Maximum number of idle database connections",
		},
	}
}

func Cache(cfg *config.Config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "cache-kind",
			Category:    "Embedding Cache:",
			Sources:     env("COACHING_SERVICE_CACHE_KIND"),
			Destination: &cfg.CacheType,
			Value:       cfg.CacheType,
			Usage:       "Embedding cache (" + strings.Join(registrycache.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "redis-url",
			Category:    "Embedding Cache:",
			Sources:     env("COACHING_SERVICE_REDIS_URL", "REDIS_URL"),
			Destination: &cfg.RedisURL,
			Usage:       "Redis connection URL",
		},
		&cli.DurationFlag{
			Name:        "cache-ttl",
			Category:    "Embedding Cache:",
			Sources:     env("COACHING_SERVICE_CACHE_TTL"),
			Destination: &cfg.CacheTTL,
			Value:       cfg.CacheTTL,
			Usage:       "How long a cached embedding is kept",
		},
		&cli.Int64Flag{
			Name:        "cache-max-cost",
			Category:    "Embedding Cache:",
			Sources:     env("COACHING_SERVICE_CACHE_MAX_COST"),
			Destination: &cfg.CacheMaxCost,
			Value:       cfg.CacheMaxCost,
			Usage:       "Size bound in bytes of the in-process cache",
		},
	}
}

func Vector(cfg *config.Config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "vector-kind",
			Category:    "Vector Index:",
			Sources:     env("COACHING_SERVICE_VECTOR_KIND"),
			Destination: &cfg.VectorType,
			Value:       cfg.VectorType,
			Usage:       "Vector index (" + strings.Join(registryvector.Names(), "|") + ")",
		},
		&cli.BoolFlag{
			Name:        "vector-migrate-at-start",
			Category:    "Vector Index:",
			Sources:     env("COACHING_SERVICE_VECTOR_MIGRATE_AT_START"),
			Destination: &cfg.VectorMigrateAtStart,
			Value:       cfg.VectorMigrateAtStart,
			Usage:       "Create the vector table or collection before starting",
		},
		&cli.StringFlag{
			Name:        "vector-chromem-path",
			Category:    "Vector Index:",
			Sources:     env("COACHING_SERVICE_VECTOR_CHROMEM_PATH"),
			Destination: &cfg.ChromemPath,
			Usage:       "Directory persisting the embedded index; empty keeps it in memory",
		},
		&cli.StringFlag{
			Name:        "vector-qdrant-host",
			Category:    "Vector Index:",
			Sources:     env("COACHING_SERVICE_VECTOR_QDRANT_HOST"),
			Destination: &cfg.QdrantHost,
			Value:       cfg.QdrantHost,
			Usage:       "Qdrant host",
		},
		&cli.IntFlag{
			Name:        "vector-qdrant-port",
			Category:    "Vector Index:",
			Sources:     env("COACHING_SERVICE_VECTOR_QDRANT_PORT"),
			Destination: &cfg.QdrantPort,
			Value:       cfg.QdrantPort,
			Usage:       "Qdrant gRPC port",
		},
		&cli.StringFlag{
			Name:        "vector-qdrant-collection-prefix",
			Category:    "Vector Index:",
			Sources:     env("COACHING_SERVICE_VECTOR_QDRANT_COLLECTION_PREFIX"),
			Destination: &cfg.QdrantCollectionPrefix,
			Value:       cfg.QdrantCollectionPrefix,
			Usage:       "Prefix of the derived collection name",
		},
		&cli.StringFlag{
			Name:        "vector-qdrant-collection-name",
			Category:    "Vector Index:",
			Sources:     env("COACHING_SERVICE_VECTOR_QDRANT_COLLECTION_NAME"),
			Destination: &cfg.QdrantCollectionName,
			Usage:       "Explicit collection name; overrides the derived name",
		},
		&cli.StringFlag{
			Name:        "vector-qdrant-api-key",
			Category:    "Vector Index:",
			Sources:     env("COACHING_SERVICE_VECTOR_QDRANT_API_KEY"),
			Destination: &cfg.QdrantAPIKey,
			Usage:       "Qdrant API key",
		},
		&cli.BoolFlag{
			Name:        "vector-qdrant-use-tls",
			Category:    "Vector Index:",
			Sources:     env("COACHING_SERVICE_VECTOR_QDRANT_USE_TLS"),
			Destination: &cfg.QdrantUseTLS,
			Usage:       "Connect to Qdrant over TLS",
		},
		&cli.DurationFlag{
			Name:        "vector-qdrant-startup-timeout",
			Category:    "Vector Index:",
			Sources:     env("COACHING_SERVICE_VECTOR_QDRANT_STARTUP_TIMEOUT"),
			Destination: &cfg.QdrantStartupTimeout,
			Value:       cfg.QdrantStartupTimeout,
			Usage:       "Bound on the collection migration",
		},
	}
}

func Embedding(cfg *config.Config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "embedding-kind",
			Category:    "Embedding:",
			Sources:     env("COACHING_SERVICE_EMBEDDING_KIND"),
			Destination: &cfg.EmbedType,
			Value:       cfg.EmbedType,
			Usage:       "Embedder (" + strings.Join(registryembed.Names(), "|") + ")",
		},
		&cli.IntFlag{
			Name:        "embedding-dimensions",
			Category:    "Embedding:",
			Sources:     env("COACHING_SERVICE_EMBEDDING_DIMENSIONS"),
			Destination: &cfg.EmbeddingDimensions,
			Value:       cfg.EmbeddingDimensions,
			Usage:       "Dimension of the embedding space",
		},
		&cli.StringFlag{
			Name:        "embedding-openai-model",
			Category:    "Embedding:",
			Sources:     env("COACHING_SERVICE_EMBEDDING_OPENAI_MODEL"),
			Destination: &cfg.OpenAIEmbeddingModel,
			Value:       cfg.OpenAIEmbeddingModel,
			Usage:       "OpenAI embedding model",
		},
		&cli.DurationFlag{
			Name:        "embedding-timeout",
			Category:    "Embedding:",
			Sources:     env("COACHING_SERVICE_EMBEDDING_TIMEOUT"),
			Destination: &cfg.EmbeddingTimeout,
			Value:       cfg.EmbeddingTimeout,
			Usage:       "Bound on a single embedding attempt",
		},
	}
}

func Providers(cfg *config.Config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "providers",
			Category:    "Providers:",
			Sources:     env("COACHING_SERVICE_PROVIDERS"),
			Destination: &cfg.Providers,
			Value:       cfg.Providers,
			Usage:       "Comma-separated completion providers to load (" + strings.Join(registryprovider.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "openai-api-key",
			Category:    "Providers:",
			Sources:     env("COACHING_SERVICE_OPENAI_API_KEY", "OPENAI_API_KEY"),
			Destination: &cfg.OpenAIAPIKey,
			Usage:       "OpenAI API key (completions and embeddings)",
		},
		&cli.StringFlag{
			Name:        "openai-base-url",
			Category:    "Providers:",
			Sources:     env("COACHING_SERVICE_OPENAI_BASE_URL"),
			Destination: &cfg.OpenAIBaseURL,
			Value:       cfg.OpenAIBaseURL,
			Usage:       "OpenAI API base URL",
		},
		&cli.StringFlag{
			Name:        "openai-model",
			Category:    "Providers:",
			Sources:     env("COACHING_SERVICE_OPENAI_MODEL"),
			Destination: &cfg.OpenAIChatModel,
			Value:       cfg.OpenAIChatModel,
			Usage:       "OpenAI chat model",
		},
		&cli.StringFlag{
			Name:        "anthropic-api-key",
			Category:    "Providers:",
			Sources:     env("COACHING_SERVICE_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY"),
			Destination: &cfg.AnthropicAPIKey,
			Usage:       "Anthropic API key",
		},
		&cli.StringFlag{
			Name:        "anthropic-base-url",
			Category:    "Providers:",
			Sources:     env("COACHING_SERVICE_ANTHROPIC_BASE_URL"),
			Destination: &cfg.AnthropicBaseURL,
			Usage:       "Anthropic API base URL; empty uses the SDK default",
		},
		&cli.StringFlag{
			Name:        "anthropic-model",
			Category:    "Providers:",
			Sources:     env("COACHING_SERVICE_ANTHROPIC_MODEL"),
			Destination: &cfg.AnthropicModel,
			Value:       cfg.AnthropicModel,
			Usage:       "Anthropic model",
		},
		&cli.StringFlag{
			Name:        "deepseek-api-key",
			Category:    "Providers:",
			Sources:     env("COACHING_SERVICE_DEEPSEEK_API_KEY", "DEEPSEEK_API_KEY"),
			Destination: &cfg.DeepSeekAPIKey,
			Usage:       "DeepSeek API key",
		},
		&cli.StringFlag{
			Name:        "deepseek-base-url",
			Category:    "Providers:",
			Sources:     env("COACHING_SERVICE_DEEPSEEK_BASE_URL"),
			Destination: &cfg.DeepSeekBaseURL,
			Value:       cfg.DeepSeekBaseURL,
			Usage:       "DeepSeek API base URL",
		},
		&cli.StringFlag{
			Name:        "deepseek-model",
			Category:    "Providers:",
			Sources:     env("COACHING_SERVICE_DEEPSEEK_MODEL"),
			Destination: &cfg.DeepSeekModel,
			Value:       cfg.DeepSeekModel,
			Usage:       "DeepSeek model",
		},
		&cli.DurationFlag{
			Name:        "provider-timeout",
			Category:    "Providers:",
			Sources:     env("COACHING_SERVICE_PROVIDER_TIMEOUT"),
			Destination: &cfg.ProviderTimeout,
			Value:       cfg.ProviderTimeout,
			Usage:       "Bound on a single completion attempt",
		},
		&cli.IntFlag{
			Name:        "provider-max-attempts",
			Category:    "Providers:",
			Sources:     env("COACHING_SERVICE_PROVIDER_MAX_ATTEMPTS"),
			Destination: &cfg.ProviderMaxAttempts,
			Value:       cfg.ProviderMaxAttempts,
			Usage:       "Attempts per call, including the first",
		},
		&cli.DurationFlag{
			Name:        "provider-retry-base-delay",
			Category:    "Providers:",
			Sources:     env("COACHING_SERVICE_PROVIDER_RETRY_BASE_DELAY"),
			Destination: &cfg.ProviderRetryBaseDelay,
			Value:       cfg.ProviderRetryBaseDelay,
			Usage:       "Backoff after the first transient failure",
		},
		&cli.DurationFlag{
			Name:        "provider-retry-max-delay",
			Category:    "Providers:",
			Sources:     env("COACHING_SERVICE_PROVIDER_RETRY_MAX_DELAY"),
			Destination: &cfg.ProviderRetryMaxDelay,
			Value:       cfg.ProviderRetryMaxDelay,
			Usage:       "Backoff cap",
		},
	}
}

func Coaching(cfg *config.Config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "default-model",
			Category:    "Coaching:",
			Sources:     env("COACHING_SERVICE_DEFAULT_MODEL"),
			Destination: &cfg.DefaultModel,
			Value:       cfg.DefaultModel,
			Usage:       "Provider used when neither the turn nor the session names one",
		},
		&cli.DurationFlag{
			Name:        "turn-timeout",
			Category:    "Coaching:",
			Sources:     env("COACHING_SERVICE_TURN_TIMEOUT"),
			Destination: &cfg.TurnTimeout,
			Value:       cfg.TurnTimeout,
			Usage:       "Bound on the provider call of a turn, retries included",
		},
		&cli.IntFlag{
			Name:        "recency-window",
			Category:    "Coaching:",
			Sources:     env("COACHING_SERVICE_RECENCY_WINDOW"),
			Destination: &cfg.RecencyWindow,
			Value:       cfg.RecencyWindow,
			Usage:       "Latest turns of the session included verbatim in the prompt",
		},
		&cli.IntFlag{
			Name:        "memory-top-k",
			Category:    "Coaching:",
			Sources:     env("COACHING_SERVICE_MEMORY_TOP_K"),
			Destination: &cfg.MemoryTopK,
			Value:       cfg.MemoryTopK,
			Usage:       "Memories recalled into the prompt",
		},
		&cli.IntFlag{
			Name:        "memory-excerpt-runes",
			Category:    "Coaching:",
			Sources:     env("COACHING_SERVICE_MEMORY_EXCERPT_RUNES"),
			Destination: &cfg.MemoryExcerptRunes,
			Value:       cfg.MemoryExcerptRunes,
			Usage:       "Characters of a turn kept in its memory record",
		},
		&cli.FloatFlag{
			Name:        "coach-temperature",
			Category:    "Coaching:",
			Sources:     env("COACHING_SERVICE_COACH_TEMPERATURE"),
			Destination: &cfg.CoachTemperature,
			Value:       cfg.CoachTemperature,
			Usage:       "Sampling temperature of coaching replies",
		},
		&cli.Int64Flag{
			Name:        "coach-max-tokens",
			Category:    "Coaching:",
			Sources:     env("COACHING_SERVICE_COACH_MAX_TOKENS"),
			Destination: &cfg.CoachMaxTokens,
			Value:       cfg.CoachMaxTokens,
			Usage:       "Token limit of coaching replies",
		},
	}
}

func Analytics(cfg *config.Config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "analytics-model",
			Category:    "Analytics:",
			Sources:     env("COACHING_SERVICE_ANALYTICS_MODEL"),
			Destination: &cfg.AnalyticsModel,
			Value:       cfg.AnalyticsModel,
			Usage:       "Provider that writes report narratives",
		},
		&cli.FloatFlag{
			Name:        "analytics-temperature",
			Category:    "Analytics:",
			Sources:     env("COACHING_SERVICE_ANALYTICS_TEMPERATURE"),
			Destination: &cfg.AnalyticsTemperature,
			Value:       cfg.AnalyticsTemperature,
			Usage:       "Sampling temperature of report narratives",
		},
		&cli.Int64Flag{
			Name:        "analytics-max-tokens",
			Category:    "Analytics:",
			Sources:     env("COACHING_SERVICE_ANALYTICS_MAX_TOKENS"),
			Destination: &cfg.AnalyticsMaxTokens,
			Value:       cfg.AnalyticsMaxTokens,
			Usage:       "Token limit of report narratives",
		},
		&cli.IntFlag{
			Name:        "report-max-window-days",
			Category:    "Analytics:",
			Sources:     env("COACHING_SERVICE_REPORT_MAX_WINDOW_DAYS"),
			Destination: &cfg.ReportMaxWindowDays,
			Value:       cfg.ReportMaxWindowDays,
			Usage:       "Longest report window accepted",
		},
	}
}

func Tasks(cfg *config.Config) []cli.Flag {
	return []cli.Flag{
		&cli.DurationFlag{
			Name:        "task-poll-interval",
			Category:    "Background Tasks:",
			Sources:     env("COACHING_SERVICE_TASK_POLL_INTERVAL"),
			Destination: &cfg.TaskPollInterval,
			Value:       cfg.TaskPollInterval,
			Usage:       "How often due tasks are claimed",
		},
		&cli.IntFlag{
			Name:        "task-batch-size",
			Category:    "Background Tasks:",
			Sources:     env("COACHING_SERVICE_TASK_BATCH_SIZE"),
			Destination: &cfg.TaskBatchSize,
			Value:       cfg.TaskBatchSize,
			Usage:       "Tasks claimed per poll",
		},
		&cli.IntFlag{
			Name:        "task-max-attempts",
			Category:    "Background Tasks:",
			Sources:     env("COACHING_SERVICE_TASK_MAX_ATTEMPTS"),
			Destination: &cfg.TaskMaxAttempts,
			Value:       cfg.TaskMaxAttempts,
			Usage:       "Attempts before a task is dropped",
		},
		&cli.DurationFlag{
			Name:        "task-retry-delay",
			Category:    "Background Tasks:",
			Sources:     env("COACHING_SERVICE_TASK_RETRY_DELAY"),
			Destination: &cfg.TaskRetryDelay,
			Value:       cfg.TaskRetryDelay,
			Usage:       "Delay after the first failure, doubled per attempt",
		},
		&cli.DurationFlag{
			Name:        "task-max-delay",
			Category:    "Background Tasks:",
			Sources:     env("COACHING_SERVICE_TASK_MAX_DELAY"),
			Destination: &cfg.TaskMaxDelay,
			Value:       cfg.TaskMaxDelay,
			Usage:       "Retry delay cap",
		},
	}
}

func Archive(cfg *config.Config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "archive-kind",
			Category:    "Report Archive:",
			Sources:     env("COACHING_SERVICE_ARCHIVE_KIND"),
			Destination: &cfg.ArchiveType,
			Value:       cfg.ArchiveType,
			Usage:       "Report archive (" + strings.Join(registryarchive.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "archive-s3-bucket",
			Category:    "Report Archive:",
			Sources:     env("COACHING_SERVICE_ARCHIVE_S3_BUCKET", "COACHING_SERVICE_S3_BUCKET"),
			Destination: &cfg.S3Bucket,
			Usage:       "S3 bucket receiving report documents",
		},
		&cli.StringFlag{
			Name:        "archive-s3-prefix",
			Category:    "Report Archive:",
			Sources:     env("COACHING_SERVICE_ARCHIVE_S3_PREFIX"),
			Destination: &cfg.S3Prefix,
			Usage:       "Key prefix inside the bucket",
		},
		&cli.BoolFlag{
			Name:        "archive-s3-use-path-style",
			Category:    "Report Archive:",
			Sources:     env("COACHING_SERVICE_ARCHIVE_S3_USE_PATH_STYLE"),
			Destination: &cfg.S3UsePathStyle,
			Usage:       "Use path-style S3 addressing (required for LocalStack/MinIO)",
		},
	}
}

func Monitoring(cfg *config.Config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "metrics-labels",
			Category:    "Monitoring:",
			Sources:     env("COACHING_SERVICE_METRICS_LABELS"),
			Destination: &cfg.MetricsLabels,
			Value:       cfg.MetricsLabels,
			Usage:       "Comma-separated key=value pairs added as constant labels to all Prometheus metrics. Supports ${VAR} expansion.",
		},
	}
}
