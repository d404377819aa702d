package gateway

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chirino/coaching-service/internal/plugin/embed/local"
	registryembed "github.com/chirino/coaching-service/internal/registry/embed"
	registryprovider "github.com/chirino/coaching-service/internal/registry/provider"
	"github.com/chirino/coaching-service/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedProvider replays one step per call; the last step repeats.
type scriptedProvider struct {
	name  string
	steps []func(ctx context.Context) (*registryprovider.Completion, error)
	calls atomic.Int32
}

func (p *scriptedProvider) Name() string  { return p.name }
func (p *scriptedProvider) Model() string { return p.name + "-model" }
func (p *scriptedProvider) Complete(ctx context.Context, _ registryprovider.Prompt, _ registryprovider.Options) (*registryprovider.Completion, error) {
	i := int(p.calls.Add(1)) - 1
	if i >= len(p.steps) {
		i = len(p.steps) - 1
	}
	return p.steps[i](ctx)
}

func reply(text string) func(context.Context) (*registryprovider.Completion, error) {
	return func(context.Context) (*registryprovider.Completion, error) {
		return &registryprovider.Completion{Text: text, FinishReason: "stop"}, nil
	}
}

func fail(err error) func(context.Context) (*registryprovider.Completion, error) {
	return func(context.Context) (*registryprovider.Completion, error) { return nil, err }
}

func hang(ctx context.Context) (*registryprovider.Completion, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func testSettings() Settings {
	return Settings{
		Timeout:      time.Second,
		EmbedTimeout: time.Second,
		Retry:        retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
	}
}

var prompt = registryprovider.Prompt{Messages: []registryprovider.Message{{Role: registryprovider.RoleUser, Content: "hello"}}}

func TestComplete_UnknownModel(t *testing.T) {
	p := &scriptedProvider{name: "modelA", steps: []func(context.Context) (*registryprovider.Completion, error){reply("hi")}}
	g := New([]registryprovider.Provider{p}, nil, testSettings())

	_, err := g.Complete(context.Background(), prompt, "gpt-7", Options{})
	var unsupported *UnsupportedProviderError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, []string{"modelA"}, unsupported.Supported)
	assert.Equal(t, int32(0), p.calls.Load())
}

func TestComplete_RetriesTransientThenSucceeds(t *testing.T) {
	p := &scriptedProvider{name: "modelA", steps: []func(context.Context) (*registryprovider.Completion, error){
		fail(retry.Transient(errors.New("429"))),
		fail(retry.Transient(errors.New("503"))),
		reply("hi there"),
	}}
	g := New([]registryprovider.Provider{p}, nil, testSettings())

	res, err := g.Complete(context.Background(), prompt, "modelA", Options{})
	require.NoError(t, err)
	assert.Equal(t, "hi there", res.Text)
	assert.Equal(t, "stop", res.FinishReason)
	assert.Equal(t, "modelA-model", res.Model)
	assert.Equal(t, 3, res.Attempts)
}

func TestComplete_TimeoutOnEveryAttempt(t *testing.T) {
	p := &scriptedProvider{name: "modelA", steps: []func(context.Context) (*registryprovider.Completion, error){hang}}
	g := New([]registryprovider.Provider{p}, nil, testSettings())

	_, err := g.Complete(context.Background(), prompt, "modelA", Options{Timeout: 10 * time.Millisecond})
	var unavailable *ProviderUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, 3, unavailable.Attempts)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(3), p.calls.Load())
}

func TestComplete_PermanentErrorIsNotRetried(t *testing.T) {
	p := &scriptedProvider{name: "modelA", steps: []func(context.Context) (*registryprovider.Completion, error){
		fail(errors.New("401 invalid api key")),
	}}
	g := New([]registryprovider.Provider{p}, nil, testSettings())

	_, err := g.Complete(context.Background(), prompt, "modelA", Options{})
	var unavailable *ProviderUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, 1, unavailable.Attempts)
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestComplete_EmptyTextIsNeverReturned(t *testing.T) {
	p := &scriptedProvider{name: "modelA", steps: []func(context.Context) (*registryprovider.Completion, error){reply("  ")}}
	g := New([]registryprovider.Provider{p}, nil, testSettings())

	res, err := g.Complete(context.Background(), prompt, "modelA", Options{})
	require.Nil(t, res)
	require.ErrorIs(t, err, errEmptyCompletion)
	assert.Equal(t, int32(3), p.calls.Load())
}

func TestComplete_CallerCancellationStopsRetrying(t *testing.T) {
	p := &scriptedProvider{name: "modelA", steps: []func(context.Context) (*registryprovider.Completion, error){hang}}
	g := New([]registryprovider.Provider{p}, nil, testSettings())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := g.Complete(ctx, prompt, "modelA", Options{Timeout: time.Minute})
	var unavailable *ProviderUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestComplete_AlreadyCancelledMakesNoCall(t *testing.T) {
	p := &scriptedProvider{name: "modelA", steps: []func(context.Context) (*registryprovider.Completion, error){hang}}
	g := New([]registryprovider.Provider{p}, nil, testSettings())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Complete(ctx, prompt, "modelA", Options{})
	var unavailable *ProviderUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, unavailable.Attempts)
	assert.Zero(t, p.calls.Load())
}

func TestEmbed_ChecksDimension(t *testing.T) {
	g := New(nil, local.New(32), testSettings())
	vec, err := g.Embed(context.Background(), "objection handling")
	require.NoError(t, err)
	assert.Len(t, vec, 32)
	assert.Equal(t, 32, g.EmbeddingDimension())

	g = New(nil, &wrongDimEmbedder{}, testSettings())
	_, err = g.Embed(context.Background(), "x")
	require.ErrorContains(t, err, "configured space has 8")
	var mismatch *registryembed.DimensionMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 4, mismatch.Got)
}

func TestEmbed_DisabledIsNotRetried(t *testing.T) {
	g := New(nil, nil, testSettings())
	_, err := g.Embed(context.Background(), "x")
	require.ErrorIs(t, err, registryembed.ErrDisabled)
}

type wrongDimEmbedder struct{}

func (wrongDimEmbedder) ModelName() string { return "wrong" }
func (wrongDimEmbedder) Dimension() int    { return 8 }
func (wrongDimEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = make([]float32, 4)
	}
	return out, nil
}
