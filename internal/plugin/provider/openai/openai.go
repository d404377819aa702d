package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/chirino/coaching-service/internal/config"
	registryprovider "github.com/chirino/coaching-service/internal/registry/provider"
	"github.com/chirino/coaching-service/internal/retry"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

func init() {
	registryprovider.Register(registryprovider.Plugin{
		Name: "openai",
		Loader: func(ctx context.Context) (registryprovider.Provider, error) {
			cfg := config.FromContext(ctx)
			if cfg == nil || cfg.OpenAIAPIKey == "" {
				return nil, fmt.Errorf("openai provider: OPENAI_API_KEY is required")
			}
			return New(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIChatModel), nil
		},
	})
}

// Provider calls the OpenAI chat completions API.
type Provider struct {
	client openai.Client
	model  string
}

// New returns a Provider for model. SDK retries are disabled; the gateway owns retry.
func New(apiKey, baseURL, model string) *Provider {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Provider{client: openai.NewClient(opts...), model: model}
}

func (p *Provider) Name() string  { return "openai" }
func (p *Provider) Model() string { return p.model }

func (p *Provider) Complete(ctx context.Context, prompt registryprovider.Prompt, opts registryprovider.Options) (*registryprovider.Completion, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(prompt.Messages)+1)
	if prompt.System != "" {
		messages = append(messages, openai.SystemMessage(prompt.System))
	}
	for _, m := range prompt.Messages {
		switch m.Role {
		case registryprovider.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:       p.model,
		Messages:    messages,
		Temperature: openai.Float(opts.Temperature),
	}
	if opts.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(opts.MaxTokens)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, retry.Transient(fmt.Errorf("openai: no choices returned"))
	}
	choice := resp.Choices[0]
	return &registryprovider.Completion{
		Text:         choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Model:        resp.Model,
		TokensUsed:   int(resp.Usage.TotalTokens),
	}, nil
}

func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && retry.IsRetryableHTTPStatus(apiErr.StatusCode) {
		return retry.Transient(fmt.Errorf("openai api error: %w", err))
	}
	return fmt.Errorf("openai api error: %w", err)
}

var _ registryprovider.Provider = (*Provider)(nil)
