package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/careline-tw/careline/pkg/config"
)

// CompletionClient is the minimal capability the gateway needs from a
// provider: one prompt in, assistant text out.
type CompletionClient interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, jsonMode bool) (string, error)
}

// langchainClient adapts a langchaingo model to CompletionClient. The
// model holds the provider's pooled HTTP client, shared process-wide.
type langchainClient struct {
	model llms.Model
}

// NewClient builds the provider selected by configuration. Exactly one
// provider is active per process.
func NewClient(ctx context.Context, cfg *config.LLMConfig) (CompletionClient, error) {
	model, err := createModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("llm: create %s client: %w", cfg.Provider, err)
	}
	return &langchainClient{model: model}, nil
}

func createModel(ctx context.Context, cfg *config.LLMConfig) (llms.Model, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return openai.New(
			openai.WithToken(cfg.APIKey()),
			openai.WithModel(cfg.DefaultModel()),
		)
	case config.ProviderAnthropic:
		return anthropic.New(
			anthropic.WithToken(cfg.APIKey()),
			anthropic.WithModel(cfg.DefaultModel()),
		)
	case config.ProviderGemini:
		return googleai.New(ctx,
			googleai.WithAPIKey(cfg.APIKey()),
			googleai.WithDefaultModel(cfg.DefaultModel()),
		)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

func (c *langchainClient) Complete(
	ctx context.Context,
	systemPrompt, userPrompt string,
	jsonMode bool,
) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}
	var options []llms.CallOption
	if jsonMode {
		options = append(options, llms.WithJSONMode())
	}
	response, err := c.model.GenerateContent(ctx, messages, options...)
	if err != nil {
		return "", err
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("empty completion response")
	}
	return response.Choices[0].Content, nil
}
