// Package deepseek talks to DeepSeek through its OpenAI-compatible chat API.
package deepseek

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chirino/coaching-service/internal/config"
	registryprovider "github.com/chirino/coaching-service/internal/registry/provider"
	"github.com/chirino/coaching-service/internal/retry"
	goopenai "github.com/sashabaranov/go-openai"
)

func init() {
	registryprovider.Register(registryprovider.Plugin{
		Name: "deepseek",
		Loader: func(ctx context.Context) (registryprovider.Provider, error) {
			cfg := config.FromContext(ctx)
			if cfg == nil || cfg.DeepSeekAPIKey == "" {
				return nil, fmt.Errorf("deepseek provider: DEEPSEEK_API_KEY is required")
			}
			return New(cfg.DeepSeekAPIKey, cfg.DeepSeekBaseURL, cfg.DeepSeekModel), nil
		},
	})
}

// Provider calls an OpenAI-compatible chat completions endpoint.
type Provider struct {
	client *goopenai.Client
	model  string
}

// New returns a Provider for model served at baseURL.
func New(apiKey, baseURL, model string) *Provider {
	clientCfg := goopenai.DefaultConfig(apiKey)
	clientCfg.BaseURL = strings.TrimRight(baseURL, "/")
	return &Provider{client: goopenai.NewClientWithConfig(clientCfg), model: model}
}

func (p *Provider) Name() string  { return "deepseek" }
func (p *Provider) Model() string { return p.model }

func (p *Provider) Complete(ctx context.Context, prompt registryprovider.Prompt, opts registryprovider.Options) (*registryprovider.Completion, error) {
	messages := make([]goopenai.ChatCompletionMessage, 0, len(prompt.Messages)+1)
	if prompt.System != "" {
		messages = append(messages, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleSystem, Content: prompt.System})
	}
	for _, m := range prompt.Messages {
		role := goopenai.ChatMessageRoleUser
		if m.Role == registryprovider.RoleAssistant {
			role = goopenai.ChatMessageRoleAssistant
		}
		messages = append(messages, goopenai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	resp, err := p.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    messages,
		Temperature: float32(opts.Temperature),
		MaxTokens:   int(opts.MaxTokens),
	})
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, retry.Transient(fmt.Errorf("deepseek: no choices returned"))
	}
	return &registryprovider.Completion{
		Text:         resp.Choices[0].Message.Content,
		FinishReason: string(resp.Choices[0].FinishReason),
		Model:        resp.Model,
		TokensUsed:   resp.Usage.TotalTokens,
	}, nil
}

func classify(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) && retry.IsRetryableHTTPStatus(apiErr.HTTPStatusCode) {
		return retry.Transient(fmt.Errorf("deepseek api error: %w", err))
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) && retry.IsRetryableHTTPStatus(reqErr.HTTPStatusCode) {
		return retry.Transient(fmt.Errorf("deepseek api error: %w", err))
	}
	return fmt.Errorf("deepseek api error: %w", err)
}

var _ registryprovider.Provider = (*Provider)(nil)
