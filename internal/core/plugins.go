package core

// Plugins register themselves with the registries from init().
import (
	_ "github.com/chirino/coaching-service/internal/plugin/archive/none"
	_ "github.com/chirino/coaching-service/internal/plugin/archive/s3"
	_ "github.com/chirino/coaching-service/internal/plugin/cache/noop"
	_ "github.com/chirino/coaching-service/internal/plugin/cache/redis"
	_ "github.com/chirino/coaching-service/internal/plugin/cache/ristretto"
	_ "github.com/chirino/coaching-service/internal/plugin/embed/disabled"
	_ "github.com/chirino/coaching-service/internal/plugin/embed/local"
	_ "github.com/chirino/coaching-service/internal/plugin/embed/openai"
	_ "github.com/chirino/coaching-service/internal/plugin/provider/anthropic"
	_ "github.com/chirino/coaching-service/internal/plugin/provider/deepseek"
	_ "github.com/chirino/coaching-service/internal/plugin/provider/openai"
	_ "github.com/chirino/coaching-service/internal/plugin/store/postgres"
	_ "github.com/chirino/coaching-service/internal/plugin/store/sqlite"
	_ "github.com/chirino/coaching-service/internal/plugin/vector/chromem"
	_ "github.com/chirino/coaching-service/internal/plugin/vector/pgvector"
	_ "github.com/chirino/coaching-service/internal/plugin/vector/qdrant"
)
