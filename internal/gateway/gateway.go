// Package gateway is the transport and reliability boundary in front of the
// completion providers and the embedder. It knows nothing about coaching.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/coaching-service/internal/metrics"
	registryembed "github.com/chirino/coaching-service/internal/registry/embed"
	registryprovider "github.com/chirino/coaching-service/internal/registry/provider"
	"github.com/chirino/coaching-service/internal/retry"
)

var errEmptyCompletion = errors.New("provider returned an empty completion")

// Settings configure timeouts and retries.
type Settings struct {
	// Timeout bounds a single completion attempt.
	Timeout time.Duration
	// EmbedTimeout bounds a single embedding attempt.
	EmbedTimeout time.Duration
	Retry        retry.Policy
}

// Options tune one Complete call. A zero Timeout uses Settings.Timeout.
type Options struct {
	Temperature float64
	MaxTokens   int64
	Timeout     time.Duration
}

// Result is the provider-independent shape of a completion.
type Result struct {
	Text         string
	FinishReason string
	ModelID      string
	Model        string
	TokensUsed   int
	Attempts     int
}

// Gateway dispatches to named providers and the configured embedder.
type Gateway struct {
	providers map[string]registryprovider.Provider
	embedder  registryembed.Embedder
	settings  Settings
}

// New builds a Gateway over providers keyed by their Name().
func New(providers []registryprovider.Provider, embedder registryembed.Embedder, settings Settings) *Gateway {
	g := &Gateway{
		providers: make(map[string]registryprovider.Provider, len(providers)),
		embedder:  embedder,
		settings:  settings,
	}
	for _, p := range providers {
		g.providers[p.Name()] = p
	}
	if g.settings.Retry.MaxAttempts < 1 {
		g.settings.Retry.MaxAttempts = 1
	}
	return g
}

// Models returns the ids of the loaded providers, sorted.
func (g *Gateway) Models() []string {
	ids := make([]string, 0, len(g.providers))
	for id := range g.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Supports reports whether modelID is served by a loaded provider.
func (g *Gateway) Supports(modelID string) bool {
	_, ok := g.providers[modelID]
	return ok
}

// EmbeddingModel names the embedding model.
func (g *Gateway) EmbeddingModel() string {
	if g.embedder == nil {
		return ""
	}
	return g.embedder.ModelName()
}

// EmbeddingDimension is the length of every vector Embed returns.
func (g *Gateway) EmbeddingDimension() int {
	if g.embedder == nil {
		return 0
	}
	return g.embedder.Dimension()
}

// Complete runs prompt against the provider named modelID. It never returns an
// empty text with a nil error.
func (g *Gateway) Complete(ctx context.Context, prompt registryprovider.Prompt, modelID string, opts Options) (*Result, error) {
	p, ok := g.providers[modelID]
	if !ok {
		return nil, &UnsupportedProviderError{ModelID: modelID, Supported: g.Models()}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = g.settings.Timeout
	}

	var out *registryprovider.Completion
	attempts, err := g.do(ctx, modelID, timeout, func(callCtx context.Context) error {
		c, err := p.Complete(callCtx, prompt, registryprovider.Options{
			Temperature: opts.Temperature,
			MaxTokens:   opts.MaxTokens,
		})
		if err != nil {
			return err
		}
		if c == nil || strings.TrimSpace(c.Text) == "" {
			return retry.Transient(errEmptyCompletion)
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	model := out.Model
	if model == "" {
		model = p.Model()
	}
	return &Result{
		Text:         out.Text,
		FinishReason: out.FinishReason,
		ModelID:      modelID,
		Model:        model,
		TokensUsed:   out.TokensUsed,
		Attempts:     attempts,
	}, nil
}

// Embed returns the embedding of text in the configured embedding space.
func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	if g.embedder == nil {
		return nil, registryembed.ErrDisabled
	}
	name := "embed:" + g.embedder.ModelName()

	var vector []float32
	_, err := g.do(ctx, name, g.settings.EmbedTimeout, func(callCtx context.Context) error {
		vecs, err := g.embedder.EmbedTexts(callCtx, []string{text})
		if err != nil {
			return err
		}
		if len(vecs) != 1 {
			return retry.Transient(fmt.Errorf("embedder returned %d vectors for one input", len(vecs)))
		}
		if err := registryembed.CheckDimension(g.embedder, vecs[0]); err != nil {
			return err
		}
		vector = vecs[0]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vector, nil
}

// do runs fn up to MaxAttempts times, each under its own timeout, backing off
// between transient failures. Caller cancellation stops immediately.
func (g *Gateway) do(ctx context.Context, name string, timeout time.Duration, fn func(context.Context) error) (int, error) {
	policy := g.settings.Retry
	var lastErr error
	attempt := 0
	for attempt < policy.MaxAttempts {
		if err := ctx.Err(); err != nil {
			return attempt, &ProviderUnavailableError{ModelID: name, Attempts: attempt, Cause: err}
		}
		attempt++
		if attempt > 1 {
			metrics.IncProviderRetry(name)
			if err := retry.Sleep(ctx, policy.Delay(attempt-1)); err != nil {
				return attempt - 1, &ProviderUnavailableError{ModelID: name, Attempts: attempt - 1, Cause: err}
			}
		}

		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		start := time.Now()
		err := fn(callCtx)
		cancel()
		if err == nil {
			metrics.ObserveProvider(name, "ok", time.Since(start))
			return attempt, nil
		}
		metrics.ObserveProvider(name, "error", time.Since(start))
		lastErr = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			return attempt, &ProviderUnavailableError{ModelID: name, Attempts: attempt, Cause: ctxErr}
		}
		if !retry.IsTransient(err) {
			break
		}
		log.Warn("Provider attempt failed", "provider", name, "attempt", attempt, "of", policy.MaxAttempts, "err", err)
	}
	return attempt, &ProviderUnavailableError{ModelID: name, Attempts: attempt, Cause: lastErr}
}
