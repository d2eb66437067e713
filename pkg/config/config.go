package config

import (
	"fmt"
	"time"
)

// Provider identifiers accepted by LLM_PROVIDER.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// Retriever variants accepted by RETRIEVER_VARIANT.
const (
	RetrieverKeyword   = "keyword"
	RetrieverEmbedding = "embedding"
)

// Config is the process-wide configuration, loaded once at startup from
// the environment. It is never mutated afterwards.
type Config struct {
	Server    ServerConfig    `koanf:"server"    validate:"required"`
	Line      LineConfig      `koanf:"line"      validate:"required"`
	LLM       LLMConfig       `koanf:"llm"       validate:"required"`
	Retriever RetrieverConfig `koanf:"retriever" validate:"required"`
	Knowledge KnowledgeConfig `koanf:"knowledge" validate:"required"`
	Detail    DetailConfig    `koanf:"detail"`
	Log       LogConfig       `koanf:"log"`
}

type ServerConfig struct {
	Host                   string `koanf:"host"`
	Port                   int    `koanf:"port"                     validate:"min=1,max=65535"`
	RequestDeadlineSeconds int    `koanf:"request_deadline_seconds" validate:"min=1"`
	MaxInputLength         int    `koanf:"max_input_length"         validate:"min=1,max=2000"`
}

func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *ServerConfig) RequestDeadline() time.Duration {
	return time.Duration(c.RequestDeadlineSeconds) * time.Second
}

// LineConfig holds the messaging platform credentials.
type LineConfig struct {
	ChannelAccessToken string `koanf:"channel_access_token" validate:"required"`
	ChannelSecret      string `koanf:"channel_secret"       validate:"required"`
	// APIBaseURL allows pointing the reply client at a stub in tests.
	APIBaseURL string `koanf:"api_base_url" validate:"required,url"`
}

type LLMConfig struct {
	Provider        string `koanf:"provider"          validate:"required,oneof=openai anthropic gemini"`
	Model           string `koanf:"model"`
	APIKeyOpenAI    string `koanf:"api_key_openai"`
	APIKeyAnthropic string `koanf:"api_key_anthropic"`
	APIKeyGemini    string `koanf:"api_key_gemini"`
	TimeoutSeconds  int    `koanf:"timeout_seconds" validate:"min=1"`
}

func (c *LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// APIKey returns the key for the selected provider; empty means the
// startup validation must abort.
func (c *LLMConfig) APIKey() string {
	switch c.Provider {
	case ProviderOpenAI:
		return c.APIKeyOpenAI
	case ProviderAnthropic:
		return c.APIKeyAnthropic
	case ProviderGemini:
		return c.APIKeyGemini
	default:
		return ""
	}
}

// DefaultModel returns the provider's default chat model when LLM_MODEL
// is not set.
func (c *LLMConfig) DefaultModel() string {
	if c.Model != "" {
		return c.Model
	}
	switch c.Provider {
	case ProviderAnthropic:
		return "claude-3-5-haiku-latest"
	case ProviderGemini:
		return "gemini-1.5-flash"
	default:
		return "gpt-4o-mini"
	}
}

type RetrieverConfig struct {
	Variant string `koanf:"variant" validate:"required,oneof=keyword embedding"`
	TopK    int    `koanf:"top_k"   validate:"min=1"`
}

type KnowledgeConfig struct {
	CorpusPath   string `koanf:"corpus_path"   validate:"required"`
	TriggersPath string `koanf:"triggers_path" validate:"required"`
}

// DetailConfig points the card's deep link at the analysis detail page.
// An empty BaseURL switches the card to a postback action instead.
type DetailConfig struct {
	BaseURL string `koanf:"base_url" validate:"omitempty,url"`
}

type LogConfig struct {
	Level string `koanf:"level" validate:"omitempty,oneof=debug info warn error"`
	JSON  bool   `koanf:"json"`
}

// Default returns the configuration defaults applied before environment
// overrides.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:                   "0.0.0.0",
			Port:                   8080,
			RequestDeadlineSeconds: 25,
			MaxInputLength:         1000,
		},
		Line: LineConfig{
			APIBaseURL: "https://api.line.me",
		},
		LLM: LLMConfig{
			Provider:       ProviderOpenAI,
			TimeoutSeconds: 15,
		},
		Retriever: RetrieverConfig{
			Variant: RetrieverKeyword,
			TopK:    5,
		},
		Knowledge: KnowledgeConfig{
			CorpusPath:   "data/corpus.jsonl",
			TriggersPath: "data/triggers.json",
		},
		Detail: DetailConfig{
			BaseURL: "",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
