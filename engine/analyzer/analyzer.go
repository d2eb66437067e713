package analyzer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kaptinlin/jsonschema"

	"github.com/careline-tw/careline/engine/core"
	"github.com/careline-tw/careline/engine/knowledge"
	"github.com/careline-tw/careline/engine/llm"
	"github.com/careline-tw/careline/pkg/logger"
)

// Failure is the analyzer's terminal error: the module that failed and
// why. It never escapes as a panic or a provider error.
type Failure struct {
	ModuleID core.ModuleID
	Reason   string
	Err      error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("analysis failed for %s: %s", f.ModuleID, f.Reason)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Gateway is the completion capability an analyzer needs; satisfied by
// *llm.Gateway.
type Gateway interface {
	Complete(ctx context.Context, req llm.Request) (json.RawMessage, error)
}

// Analyzer runs one module's classification: prompt, completion, schema
// validation, normalization. One instance per module, reused across
// requests.
type Analyzer struct {
	moduleID core.ModuleID
	gateway  Gateway
	store    *knowledge.Store
	schema   *jsonschema.Schema
	system   string
}

// New builds the analyzer for moduleID, compiling its response schema
// once.
func New(moduleID core.ModuleID, gateway Gateway, store *knowledge.Store) (*Analyzer, error) {
	raw := moduleSchema(moduleID)
	if raw == nil {
		return nil, fmt.Errorf("analyzer: no schema for module %s", moduleID)
	}
	compiled, err := raw.Compile()
	if err != nil {
		return nil, fmt.Errorf("analyzer: compile schema for %s: %w", moduleID, err)
	}
	return &Analyzer{
		moduleID: moduleID,
		gateway:  gateway,
		store:    store,
		schema:   compiled,
		system:   systemInstructions[moduleID],
	}, nil
}

func (a *Analyzer) ModuleID() core.ModuleID {
	return a.moduleID
}

// Analyze classifies the utterance against this module. Cancellation is
// cooperative: the context is checked between pipeline steps, and the
// completion call itself is context-bound.
func (a *Analyzer) Analyze(
	ctx context.Context,
	utterance core.Utterance,
	retrieved []knowledge.RetrievedChunk,
) (*core.ModuleAnalysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Failure{ModuleID: a.moduleID, Reason: "cancelled", Err: err}
	}
	prompt := buildUserPrompt(utterance, retrieved)
	raw, err := a.gateway.Complete(ctx, llm.Request{
		SystemPrompt: a.system,
		UserPrompt:   prompt,
		Schema:       a.schema,
	})
	if err != nil {
		reason := "completion failed"
		if failure, ok := llm.AsFailure(err); ok {
			reason = string(failure.Kind)
		}
		return nil, &Failure{ModuleID: a.moduleID, Reason: reason, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, &Failure{ModuleID: a.moduleID, Reason: "cancelled", Err: err}
	}
	analysis, err := a.normalize(raw, retrieved)
	if err != nil {
		return nil, &Failure{ModuleID: a.moduleID, Reason: "normalization failed", Err: err}
	}
	logger.FromContext(ctx).Debug("module analysis complete",
		"module", a.moduleID, "matches", len(analysis.MatchedItems), "confidence", analysis.OverallConfidence)
	return analysis, nil
}
