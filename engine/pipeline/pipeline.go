// Package pipeline wires routing, retrieval, per-module analysis and
// composition into the single request path behind the webhook.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/careline-tw/careline/engine/analyzer"
	"github.com/careline-tw/careline/engine/composer"
	"github.com/careline-tw/careline/engine/core"
	"github.com/careline-tw/careline/engine/flex"
	"github.com/careline-tw/careline/engine/knowledge/retriever"
	"github.com/careline-tw/careline/engine/router"
	"github.com/careline-tw/careline/pkg/logger"
)

// Pipeline owns one analyzer per module and is safe for concurrent
// requests.
type Pipeline struct {
	router    *router.Router
	retriever *retriever.Service
	analyzers map[core.ModuleID]*analyzer.Analyzer
	builder   *flex.Builder
	now       func() time.Time
}

func New(
	rt *router.Router,
	rtr *retriever.Service,
	analyzers map[core.ModuleID]*analyzer.Analyzer,
	builder *flex.Builder,
) (*Pipeline, error) {
	if rt == nil || rtr == nil || builder == nil {
		return nil, fmt.Errorf("pipeline: router, retriever and builder are required")
	}
	for _, id := range core.AllModules {
		if analyzers[id] == nil {
			return nil, fmt.Errorf("pipeline: missing analyzer for %s", id)
		}
	}
	return &Pipeline{
		router:    rt,
		retriever: rtr,
		analyzers: analyzers,
		builder:   builder,
		now:       time.Now,
	}, nil
}

// Analyze runs the full classification for one utterance. Module
// failures degrade the result instead of failing it; the returned
// analysis is always usable.
func (p *Pipeline) Analyze(ctx context.Context, utterance core.Utterance) *core.ComprehensiveAnalysis {
	log := logger.FromContext(ctx)
	route := p.router.Route(utterance.Text)
	log.Info("utterance routed",
		"modules", route.Modules, "low_signal", route.LowSignal, "truncated", utterance.Truncated)

	var mu sync.Mutex
	analyses := make(map[core.ModuleID]*core.ModuleAnalysis, len(route.Modules))
	group, groupCtx := errgroup.WithContext(ctx)
	for _, id := range route.Modules {
		group.Go(func() error {
			analysis, err := p.analyzeModule(groupCtx, id, utterance)
			if err != nil {
				// One module failing must not sink the others.
				log.Warn("module analysis failed", "module", id, "error", err)
				return nil
			}
			mu.Lock()
			analyses[id] = analysis
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait()

	result := composer.Compose(route, analyses, p.now())
	log.Info("analysis composed",
		"used", result.ModulesUsed,
		"primary", result.PrimaryModule,
		"confidence", result.OverallConfidence,
		"low_signal", result.LowSignal)
	return result
}

// Respond produces the flex card for one utterance.
func (p *Pipeline) Respond(ctx context.Context, utterance core.Utterance) (*flex.Message, error) {
	result := p.Analyze(ctx, utterance)
	msg, err := p.builder.Build(result)
	if err != nil {
		return nil, fmt.Errorf("pipeline: build card: %w", err)
	}
	return msg, nil
}

func (p *Pipeline) analyzeModule(
	ctx context.Context,
	id core.ModuleID,
	utterance core.Utterance,
) (*core.ModuleAnalysis, error) {
	retrieved, err := p.retriever.Retrieve(ctx, utterance.Text, []core.ModuleID{id}, 0)
	if err != nil {
		return nil, fmt.Errorf("retrieve for %s: %w", id, err)
	}
	return p.analyzers[id].Analyze(ctx, utterance, retrieved)
}
