package plan

import (
	"context"
	"fmt"

	"github.com/kagan-sh/kagan-sub004/internal/config"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const defaultOpenAIModel = openai.ChatModelGPT4o

type openAIProvider struct {
	client openai.Client
	model  string
}

func newOpenAIProvider(cfg config.AIConfig) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("plan: ai.api_key is required for provider %q", "openai")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := defaultOpenAIModel
	if cfg.Model != "" {
		model = cfg.Model
	}

	return &openAIProvider{
		client: openai.NewClient(opts...),
		model:  model,
	}, nil
}

func (p *openAIProvider) Complete(ctx context.Context, prompt string) (string, error) {
	completion, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: p.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("openai completion returned no choices")
	}
	return completion.Choices[0].Message.Content, nil
}
