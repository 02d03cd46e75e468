package plan

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/kagan-sh/kagan-sub004/internal/config"
)

// defaultAnthropicModel mirrors config.setDefaults' ai.model default so a
// provider built without an explicit cfg.Model still has somewhere to send
// requests.
const defaultAnthropicModel anthropic.Model = "claude-sonnet-4-5"

type anthropicProvider struct {
	client anthropic.Client
	model  anthropic.Model
}

func newAnthropicProvider(cfg config.AIConfig) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("plan: ai.api_key is required for provider %q", "anthropic")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := defaultAnthropicModel
	if cfg.Model != "" {
		model = anthropic.Model(cfg.Model)
	}

	return &anthropicProvider{
		client: anthropic.NewClient(opts...),
		model:  model,
	}, nil
}

func (p *anthropicProvider) Complete(ctx context.Context, prompt string) (string, error) {
	message, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: 2048,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic completion: %w", err)
	}

	var sb strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}
