package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/careline-tw/careline/pkg/config"
)

// NewEmbedder builds the query embedder for the embedding retriever
// variant. Only providers with an embedding endpoint are supported.
func NewEmbedder(ctx context.Context, cfg *config.LLMConfig) (embeddings.Embedder, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		client, err := openai.New(openai.WithToken(cfg.APIKey()))
		if err != nil {
			return nil, fmt.Errorf("llm: openai embedding client: %w", err)
		}
		return embeddings.NewEmbedder(client)
	case config.ProviderGemini:
		client, err := googleai.New(ctx, googleai.WithAPIKey(cfg.APIKey()))
		if err != nil {
			return nil, fmt.Errorf("llm: gemini embedding client: %w", err)
		}
		return embeddings.NewEmbedder(client)
	default:
		return nil, fmt.Errorf("llm: provider %s has no embedding endpoint", cfg.Provider)
	}
}
