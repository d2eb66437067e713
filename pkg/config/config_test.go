package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CHANNEL_ACCESS_TOKEN", "token")
	t.Setenv("CHANNEL_SECRET", "secret")
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("LLM_API_KEY_OPENAI", "sk-test")
	t.Setenv("DETAIL_BASE_URL", "https://liff.example.com")
}

func TestLoad(t *testing.T) {
	t.Run("Should apply defaults under env overrides", func(t *testing.T) {
		setRequiredEnv(t)
		cfg, err := Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 25*time.Second, cfg.Server.RequestDeadline())
		assert.Equal(t, 1000, cfg.Server.MaxInputLength)
		assert.Equal(t, 15*time.Second, cfg.LLM.Timeout())
		assert.Equal(t, RetrieverKeyword, cfg.Retriever.Variant)
		assert.Equal(t, 5, cfg.Retriever.TopK)
	})
	t.Run("Should override from environment", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("LLM_TIMEOUT_SECONDS", "30")
		t.Setenv("RETRIEVER_VARIANT", "embedding")
		t.Setenv("TOP_K", "3")
		t.Setenv("MAX_INPUT_LENGTH", "500")
		cfg, err := Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 30*time.Second, cfg.LLM.Timeout())
		assert.Equal(t, RetrieverEmbedding, cfg.Retriever.Variant)
		assert.Equal(t, 3, cfg.Retriever.TopK)
		assert.Equal(t, 500, cfg.Server.MaxInputLength)
	})
	t.Run("Should fail without channel credentials", func(t *testing.T) {
		t.Setenv("CHANNEL_ACCESS_TOKEN", "")
		t.Setenv("CHANNEL_SECRET", "")
		t.Setenv("LLM_PROVIDER", "openai")
		t.Setenv("LLM_API_KEY_OPENAI", "sk-test")
		t.Setenv("DETAIL_BASE_URL", "https://liff.example.com")
		_, err := Load(context.Background())
		require.Error(t, err)
	})
	t.Run("Should fail when selected provider has no key", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("LLM_PROVIDER", "anthropic")
		_, err := Load(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "anthropic")
	})
	t.Run("Should reject unknown provider", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("LLM_PROVIDER", "cohere")
		_, err := Load(context.Background())
		require.Error(t, err)
	})
	t.Run("Should enforce input length hard cap", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("MAX_INPUT_LENGTH", "5000")
		_, err := Load(context.Background())
		require.Error(t, err)
	})
}

func TestLLMConfig_APIKey(t *testing.T) {
	t.Run("Should select key by provider", func(t *testing.T) {
		cfg := LLMConfig{
			Provider:        ProviderGemini,
			APIKeyOpenAI:    "a",
			APIKeyAnthropic: "b",
			APIKeyGemini:    "c",
		}
		assert.Equal(t, "c", cfg.APIKey())
	})
	t.Run("Should pick provider default model", func(t *testing.T) {
		cfg := LLMConfig{Provider: ProviderAnthropic}
		assert.Contains(t, cfg.DefaultModel(), "claude")
		cfg.Model = "custom-model"
		assert.Equal(t, "custom-model", cfg.DefaultModel())
	})
}
