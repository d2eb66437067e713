package llm

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/kaptinlin/jsonschema"

	"github.com/careline-tw/careline/engine/schema"
	"github.com/careline-tw/careline/pkg/logger"
)

// DefaultTimeout bounds a single completion call.
const DefaultTimeout = 15 * time.Second

// Request is one completion call. A non-nil Schema makes the gateway
// enforce JSON output conformant to it.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	Schema       *jsonschema.Schema
}

// Gateway is the single interface over the configured completion
// provider. It enforces the wall-clock timeout and schema conformance;
// retry policy belongs to callers.
type Gateway struct {
	client   CompletionClient
	provider string
	timeout  time.Duration
}

func NewGateway(client CompletionClient, provider string, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Gateway{client: client, provider: provider, timeout: timeout}
}

// Complete runs one completion within the gateway timeout and returns
// the raw JSON payload. Any error is a *Failure.
func (g *Gateway) Complete(ctx context.Context, req Request) (json.RawMessage, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	start := time.Now()
	content, err := g.client.Complete(callCtx, req.SystemPrompt, req.UserPrompt, req.Schema != nil)
	if err != nil {
		// Prefer the deadline classification when the call context expired,
		// regardless of how the provider wrapped the error.
		if callCtx.Err() != nil {
			err = callCtx.Err()
		}
		failure := classify(err, g.provider)
		logger.FromContext(ctx).Warn("completion failed",
			"provider", g.provider, "kind", failure.Kind, "duration", time.Since(start))
		return nil, failure
	}
	payload := extractJSON(content)
	if req.Schema == nil {
		return json.RawMessage(payload), nil
	}
	var value any
	if err := json.Unmarshal([]byte(payload), &value); err != nil {
		return nil, &Failure{Kind: KindSchemaViolation, Provider: g.provider, Err: err}
	}
	if err := schema.Validate(req.Schema, value); err != nil {
		return nil, &Failure{Kind: KindSchemaViolation, Provider: g.provider, Err: err}
	}
	logger.FromContext(ctx).Debug("completion succeeded",
		"provider", g.provider, "duration", time.Since(start))
	return json.RawMessage(payload), nil
}

// extractJSON strips the markdown fences some models wrap JSON output
// in even under JSON mode.
func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	if after, ok := strings.CutPrefix(content, "```json"); ok {
		content = after
	} else if after, ok := strings.CutPrefix(content, "```"); ok {
		content = after
	}
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}
