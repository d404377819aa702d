package config

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ListenerConfig holds the network/TLS settings for the management listener.
type ListenerConfig struct {
	Port              int
	EnablePlainText   bool
	EnableTLS         bool
	TLSCertFile       string
	TLSKeyFile        string
	ReadHeaderTimeout time.Duration
}

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

// Config holds all configuration for the coaching service.
type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string

	// Database
	DBURL string

	// Datastore backend type: "postgres" or "sqlite".
	DatastoreType string

	// Run datastore migrations on startup.
	DatastoreMigrateAtStart bool

	// DB pool
	DBMaxOpenConns int
	DBMaxIdleConns int

	// Redis
	RedisURL string

	// Embedding cache backend type: "none", "redis" or "ristretto".
	CacheType string
	CacheTTL  time.Duration
	// CacheMaxCost bounds the in-process ristretto cache, in bytes.
	CacheMaxCost int64

	// Vector index type: "chromem", "pgvector" or "qdrant".
	VectorType string

	// Run vector migrations on startup.
	VectorMigrateAtStart bool

	// ChromemPath persists the embedded vector index. Empty keeps it in memory.
	ChromemPath string

	// Qdrant
	QdrantHost             string
	QdrantPort             int
	QdrantCollectionPrefix string
	QdrantCollectionName   string
	QdrantAPIKey           string
	QdrantUseTLS           bool
	QdrantStartupTimeout   time.Duration

	// Embedding type: "none", "local" or "openai".
	EmbedType string

	// Embedding dimension of the configured embedding space.
	EmbeddingDimensions int

	// OpenAI (completions and embeddings share the key and base URL).
	OpenAIAPIKey         string
	OpenAIBaseURL        string
	OpenAIChatModel      string
	OpenAIEmbeddingModel string

	// Anthropic
	AnthropicAPIKey  string
	AnthropicBaseURL string
	AnthropicModel   string

	// DeepSeek (OpenAI-compatible API)
	DeepSeekAPIKey  string
	DeepSeekBaseURL string
	DeepSeekModel   string

	// Providers is a comma-separated list of provider ids to load.
	Providers string

	// Provider call policy.
	ProviderTimeout        time.Duration
	ProviderMaxAttempts    int
	ProviderRetryBaseDelay time.Duration
	ProviderRetryMaxDelay  time.Duration
	EmbeddingTimeout       time.Duration

	// Coaching turn settings.
	DefaultModel       string
	TurnTimeout        time.Duration
	RecencyWindow      int
	MemoryTopK         int
	CoachTemperature   float64
	CoachMaxTokens     int64
	MemoryExcerptRunes int

	// Analytics settings.
	AnalyticsModel       string
	AnalyticsTemperature float64
	AnalyticsMaxTokens   int64
	ReportMaxWindowDays  int

	// Background task processing.
	TaskPollInterval time.Duration
	TaskBatchSize    int
	TaskMaxAttempts  int
	TaskRetryDelay   time.Duration
	TaskMaxDelay     time.Duration

	// Report archive type: "none" or "s3".
	ArchiveType string

	// S3
	S3Bucket       string
	S3Prefix       string
	S3UsePathStyle bool

	// MetricsLabels is a comma-separated list of key=value pairs added as
	// constant labels to all Prometheus metrics. Values support ${VAR} expansion.
	// Defaults to "service=coaching-service".
	MetricsLabels string

	// Management server (health, readiness, metrics).
	ManagementListener ListenerConfig
	// ManagementAccessLog enables HTTP access logging for management endpoints.
	ManagementAccessLog bool

	// Graceful shutdown drain timeout (seconds)
	DrainTimeout int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		LogLevel:                "info",
		DatastoreType:           "postgres",
		DatastoreMigrateAtStart: true,
		DBMaxOpenConns:          25,
		DBMaxIdleConns:          5,
		CacheType:               "none",
		CacheTTL:                24 * time.Hour,
		CacheMaxCost:            64 * 1024 * 1024,
		VectorType:              "chromem",
		VectorMigrateAtStart:    true,
		QdrantHost:              "localhost",
		QdrantPort:              6334,
		QdrantCollectionPrefix:  "coaching-service",
		QdrantStartupTimeout:    30 * time.Second,
		EmbedType:               "local",
		EmbeddingDimensions:     384,
		OpenAIBaseURL:           "https://api.openai.com/v1",
		OpenAIChatModel:         "gpt-4-turbo-preview",
		OpenAIEmbeddingModel:    "text-embedding-3-small",
		AnthropicModel:          "claude-3-5-sonnet-20241022",
		DeepSeekBaseURL:         "https://api.deepseek.com/v1",
		DeepSeekModel:           "deepseek-chat",
		Providers:               "openai,anthropic,deepseek",
		ProviderTimeout:         60 * time.Second,
		ProviderMaxAttempts:     3,
		ProviderRetryBaseDelay:  500 * time.Millisecond,
		ProviderRetryMaxDelay:   8 * time.Second,
		EmbeddingTimeout:        30 * time.Second,
		DefaultModel:            "openai",
		TurnTimeout:             3 * time.Minute,
		RecencyWindow:           10,
		MemoryTopK:              4,
		CoachTemperature:        0.7,
		CoachMaxTokens:          2000,
		MemoryExcerptRunes:      500,
		AnalyticsModel:          "anthropic",
		AnalyticsTemperature:    0.3,
		AnalyticsMaxTokens:      1500,
		ReportMaxWindowDays:     90,
		TaskPollInterval:        5 * time.Second,
		TaskBatchSize:           50,
		TaskMaxAttempts:         5,
		TaskRetryDelay:          10 * time.Second,
		TaskMaxDelay:            10 * time.Minute,
		ArchiveType:             "none",
		MetricsLabels:           "service=coaching-service",
		ManagementListener: ListenerConfig{
			Port:              9090,
			EnablePlainText:   true,
			ReadHeaderTimeout: 5 * time.Second,
		},
		DrainTimeout: 30,
	}
}

// ProviderNames returns the configured provider ids, trimmed and de-duplicated.
func (c *Config) ProviderNames() []string {
	var names []string
	seen := map[string]bool{}
	for _, name := range strings.Split(c.Providers, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.EmbeddingDimensions <= 0:
		return fmt.Errorf("embedding dimensions must be positive, got %d", c.EmbeddingDimensions)
	case c.ProviderMaxAttempts < 1:
		return fmt.Errorf("provider max attempts must be at least 1, got %d", c.ProviderMaxAttempts)
	case c.ProviderTimeout <= 0:
		return fmt.Errorf("provider timeout must be positive")
	case c.TurnTimeout <= 0:
		return fmt.Errorf("turn timeout must be positive")
	case c.RecencyWindow < 0:
		return fmt.Errorf("recency window must not be negative, got %d", c.RecencyWindow)
	case c.MemoryTopK < 0:
		return fmt.Errorf("memory top-k must not be negative, got %d", c.MemoryTopK)
	case c.CoachTemperature < 0 || c.CoachTemperature > 2:
		return fmt.Errorf("coach temperature must be within [0,2], got %v", c.CoachTemperature)
	case c.AnalyticsTemperature < 0 || c.AnalyticsTemperature > 2:
		return fmt.Errorf("analytics temperature must be within [0,2], got %v", c.AnalyticsTemperature)
	case c.ReportMaxWindowDays < 1:
		return fmt.Errorf("report max window days must be at least 1, got %d", c.ReportMaxWindowDays)
	case c.TaskMaxAttempts < 1:
		return fmt.Errorf("task max attempts must be at least 1, got %d", c.TaskMaxAttempts)
	}
	if err := oneOf("datastore", c.DatastoreType, "postgres", "sqlite"); err != nil {
		return err
	}
	if err := oneOf("vector", c.VectorType, "chromem", "pgvector", "qdrant"); err != nil {
		return err
	}
	if err := oneOf("cache", c.CacheType, "none", "redis", "ristretto"); err != nil {
		return err
	}
	if err := oneOf("embed", c.EmbedType, "none", "local", "openai"); err != nil {
		return err
	}
	return oneOf("archive", c.ArchiveType, "none", "s3")
}

func oneOf(kind, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("unknown %s type %q (valid: %s)", kind, value, strings.Join(allowed, ", "))
}

// QdrantAddress returns the host:port of the Qdrant gRPC endpoint.
func (c *Config) QdrantAddress() string {
	return fmt.Sprintf("%s:%d", c.QdrantHost, c.QdrantPort)
}
