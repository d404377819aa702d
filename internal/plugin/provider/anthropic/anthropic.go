package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/chirino/coaching-service/internal/config"
	registryprovider "github.com/chirino/coaching-service/internal/registry/provider"
	"github.com/chirino/coaching-service/internal/retry"
)

const defaultMaxTokens = 1024

func init() {
	registryprovider.Register(registryprovider.Plugin{
		Name: "anthropic",
		Loader: func(ctx context.Context) (registryprovider.Provider, error) {
			cfg := config.FromContext(ctx)
			if cfg == nil || cfg.AnthropicAPIKey == "" {
				return nil, fmt.Errorf("anthropic provider: ANTHROPIC_API_KEY is required")
			}
			return New(cfg.AnthropicAPIKey, cfg.AnthropicBaseURL, cfg.AnthropicModel), nil
		},
	})
}

// Provider calls the Anthropic messages API.
type Provider struct {
	client anthropic.Client
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
	return &Provider{client: anthropic.NewClient(opts...), model: model}
}

func (p *Provider) Name() string  { return "anthropic" }
func (p *Provider) Model() string { return p.model }

func (p *Provider) Complete(ctx context.Context, prompt registryprovider.Prompt, opts registryprovider.Options) (*registryprovider.Completion, error) {
	messages := buildMessages(prompt.Messages)
	if len(messages) == 0 {
		return nil, fmt.Errorf("anthropic: prompt has no user message")
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(opts.Temperature),
	}
	if prompt.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: prompt.System}}
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classify(err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}
	return &registryprovider.Completion{
		Text:         text.String(),
		FinishReason: string(resp.StopReason),
		Model:        string(resp.Model),
		TokensUsed:   int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
	}, nil
}

// buildMessages folds the prompt into the strictly alternating, user-first
// sequence the messages API accepts: leading assistant turns are dropped and
// consecutive same-role messages are merged.
func buildMessages(in []registryprovider.Message) []anthropic.MessageParam {
	type merged struct {
		role registryprovider.Role
		text []string
	}
	var folded []merged
	for _, m := range in {
		role := m.Role
		if role != registryprovider.RoleAssistant {
			role = registryprovider.RoleUser
		}
		if len(folded) == 0 && role == registryprovider.RoleAssistant {
			continue
		}
		if n := len(folded); n > 0 && folded[n-1].role == role {
			folded[n-1].text = append(folded[n-1].text, m.Content)
			continue
		}
		folded = append(folded, merged{role: role, text: []string{m.Content}})
	}

	out := make([]anthropic.MessageParam, 0, len(folded))
	for _, m := range folded {
		block := anthropic.NewTextBlock(strings.Join(m.text, "\n\n"))
		if m.role == registryprovider.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out
}

func classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && (retry.IsRetryableHTTPStatus(apiErr.StatusCode) || apiErr.StatusCode == 529) {
		return retry.Transient(fmt.Errorf("anthropic api error: %w", err))
	}
	return fmt.Errorf("anthropic api error: %w", err)
}

var _ registryprovider.Provider = (*Provider)(nil)
