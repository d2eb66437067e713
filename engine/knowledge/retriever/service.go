package retriever

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/careline-tw/careline/engine/core"
	"github.com/careline-tw/careline/engine/knowledge"
	"github.com/careline-tw/careline/pkg/logger"
)

// DefaultTopK bounds the number of returned chunks when the caller does
// not override it.
const DefaultTopK = 5

// MinScore is the relevance floor; lower matches are noise.
const MinScore = 0.1

// Scorer assigns a similarity in [0,1] to every candidate chunk. Both
// the keyword and the embedding variants implement it; callers never see
// the difference.
type Scorer interface {
	Score(ctx context.Context, query string, candidates []*knowledge.Chunk) ([]knowledge.RetrievedChunk, error)
}

// Service retrieves the top-k scored chunks for an utterance across a
// module set.
type Service struct {
	store  *knowledge.Store
	scorer Scorer
	topK   int
}

func NewService(store *knowledge.Store, scorer Scorer, topK int) (*Service, error) {
	if store == nil {
		return nil, errors.New("retriever: knowledge store is required")
	}
	if scorer == nil {
		return nil, errors.New("retriever: scorer is required")
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Service{store: store, scorer: scorer, topK: topK}, nil
}

// Retrieve returns up to k chunks with similarity >= MinScore, ordered
// by (score desc, chunk_id asc) for determinism. k <= 0 uses the service
// default.
func (s *Service) Retrieve(
	ctx context.Context,
	query string,
	moduleIDs []core.ModuleID,
	k int,
) ([]knowledge.RetrievedChunk, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("retriever: query is required")
	}
	if k <= 0 {
		k = s.topK
	}
	candidates := s.candidates(moduleIDs)
	if len(candidates) == 0 {
		return nil, nil
	}
	scored, err := s.scorer.Score(ctx, query, candidates)
	if err != nil {
		return nil, err
	}
	qualified := scored[:0]
	for _, rc := range scored {
		if rc.SimilarityScore >= MinScore {
			qualified = append(qualified, rc)
		}
	}
	sort.SliceStable(qualified, func(i, j int) bool {
		if qualified[i].SimilarityScore == qualified[j].SimilarityScore {
			return qualified[i].Chunk.ChunkID < qualified[j].Chunk.ChunkID
		}
		return qualified[i].SimilarityScore > qualified[j].SimilarityScore
	})
	if len(qualified) > k {
		qualified = qualified[:k]
	}
	logger.FromContext(ctx).Debug("retrieval executed",
		"modules", moduleIDs, "candidates", len(candidates), "results", len(qualified))
	if len(qualified) == 0 {
		return nil, nil
	}
	return qualified, nil
}

func (s *Service) candidates(moduleIDs []core.ModuleID) []*knowledge.Chunk {
	seen := make(map[core.ModuleID]struct{}, len(moduleIDs))
	var candidates []*knowledge.Chunk
	for _, id := range moduleIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		candidates = append(candidates, s.store.AllForModule(id)...)
	}
	return candidates
}
