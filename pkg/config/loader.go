package config

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// envMappings binds the public environment surface to config paths. The
// names are part of the deployment contract and never derived.
var envMappings = map[string]string{
	"PORT":                     "server.port",
	"HOST":                     "server.host",
	"REQUEST_DEADLINE_SECONDS": "server.request_deadline_seconds",
	"MAX_INPUT_LENGTH":         "server.max_input_length",
	"CHANNEL_ACCESS_TOKEN":     "line.channel_access_token",
	"CHANNEL_SECRET":           "line.channel_secret",
	"LINE_API_BASE_URL":        "line.api_base_url",
	"LLM_PROVIDER":             "llm.provider",
	"LLM_MODEL":                "llm.model",
	"LLM_API_KEY_OPENAI":       "llm.api_key_openai",
	"LLM_API_KEY_ANTHROPIC":    "llm.api_key_anthropic",
	"LLM_API_KEY_GEMINI":       "llm.api_key_gemini",
	"LLM_TIMEOUT_SECONDS":      "llm.timeout_seconds",
	"RETRIEVER_VARIANT":        "retriever.variant",
	"TOP_K":                    "retriever.top_k",
	"CORPUS_PATH":              "knowledge.corpus_path",
	"TRIGGERS_PATH":            "knowledge.triggers_path",
	"DETAIL_BASE_URL":          "detail.base_url",
	"LOG_LEVEL":                "log.level",
	"LOG_JSON":                 "log.json",
}

// Load builds the effective configuration from defaults plus environment
// overrides and validates it. A validation failure is a startup error.
func Load(_ context.Context) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: failed to load defaults: %w", err)
	}
	if err := k.Load(env.Provider(".", env.Opt{
		TransformFunc: func(key, value string) (string, any) {
			if path, ok := envMappings[key]; ok {
				return path, value
			}
			return "", nil
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("config: failed to load environment: %w", err)
	}
	cfg := &Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces struct constraints plus the cross-field rules the
// tags cannot express.
func Validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("config: validation failed: %w", err)
	}
	if cfg.LLM.APIKey() == "" {
		return fmt.Errorf("config: missing API key for provider %q", cfg.LLM.Provider)
	}
	return nil
}
