package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chirino/coaching-service/internal/config"
	registryembed "github.com/chirino/coaching-service/internal/registry/embed"
	"github.com/chirino/coaching-service/internal/retry"
	goopenai "github.com/sashabaranov/go-openai"
)

func init() {
	registryembed.Register(registryembed.Plugin{
		Name:   "openai",
		Loader: load,
	})
}

func load(ctx context.Context) (registryembed.Embedder, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("openai embedder: OPENAI_API_KEY is required")
	}
	return New(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIEmbeddingModel, cfg.EmbeddingDimensions), nil
}

// Embedder calls the OpenAI embeddings endpoint (or any compatible server).
type Embedder struct {
	client     *goopenai.Client
	model      string
	dimensions int
}

// New returns an Embedder. The request asks the server to shorten vectors to
// dimensions so they match the configured embedding space.
func New(apiKey, baseURL, model string, dimensions int) *Embedder {
	clientCfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &Embedder{
		client:     goopenai.NewClientWithConfig(clientCfg),
		model:      model,
		dimensions: dimensions,
	}
}

func (e *Embedder) ModelName() string { return e.model }
func (e *Embedder) Dimension() int    { return e.dimensions }

func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequestStrings{
		Input:      texts,
		Model:      goopenai.EmbeddingModel(e.model),
		Dimensions: e.dimensions,
	})
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, retry.Transient(fmt.Errorf("openai embed: expected %d embeddings, got %d", len(texts), len(resp.Data)))
	}

	// The API may return results in any order; sort by index.
	embeddings := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("openai embed: index %d out of range", d.Index)
		}
		embeddings[d.Index] = d.Embedding
	}
	return embeddings, nil
}

func classify(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) && retry.IsRetryableHTTPStatus(apiErr.HTTPStatusCode) {
		return retry.Transient(fmt.Errorf("openai embed: %w", err))
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) && retry.IsRetryableHTTPStatus(reqErr.HTTPStatusCode) {
		return retry.Transient(fmt.Errorf("openai embed: %w", err))
	}
	return fmt.Errorf("openai embed: %w", err)
}

var _ registryembed.Embedder = (*Embedder)(nil)
