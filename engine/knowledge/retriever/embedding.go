package retriever

import (
	"context"
	"fmt"
	"math"

	"github.com/tmc/langchaingo/embeddings"

	"github.com/careline-tw/careline/engine/knowledge"
)

// EmbeddingScorer scores chunks by cosine similarity between the query
// embedding and the chunks' precomputed vectors. The query embedding
// call is the only suspension point in retrieval.
type EmbeddingScorer struct {
	embedder embeddings.Embedder
}

func NewEmbeddingScorer(embedder embeddings.Embedder) (*EmbeddingScorer, error) {
	if embedder == nil {
		return nil, fmt.Errorf("retriever: embedder is required")
	}
	return &EmbeddingScorer{embedder: embedder}, nil
}

// IndexEmbeddings fills in vectors for every chunk that lacks one. The
// bundled corpus ships without vectors, so the embedding variant must
// run this once at startup before serving traffic.
func IndexEmbeddings(ctx context.Context, embedder embeddings.Embedder, store *knowledge.Store) error {
	if embedder == nil {
		return fmt.Errorf("retriever: embedder is required")
	}
	missing := make([]*knowledge.Chunk, 0, store.Len())
	texts := make([]string, 0, store.Len())
	for _, chunk := range store.All() {
		if len(chunk.Embedding) > 0 {
			continue
		}
		missing = append(missing, chunk)
		texts = append(texts, chunk.Title+"。"+chunk.Content)
	}
	if len(missing) == 0 {
		return nil
	}
	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("retriever: embed corpus: %w", err)
	}
	if len(vectors) != len(missing) {
		return fmt.Errorf("retriever: embed corpus: got %d vectors for %d chunks", len(vectors), len(missing))
	}
	for i, chunk := range missing {
		chunk.Embedding = vectors[i]
	}
	return nil
}

// Score implements Scorer. Chunks without a precomputed embedding score
// zero rather than failing the whole retrieval.
func (s *EmbeddingScorer) Score(
	ctx context.Context,
	query string,
	candidates []*knowledge.Chunk,
) ([]knowledge.RetrievedChunk, error) {
	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retriever: embed query: %w", err)
	}
	results := make([]knowledge.RetrievedChunk, 0, len(candidates))
	for _, chunk := range candidates {
		score := 0.0
		if len(chunk.Embedding) > 0 {
			score = cosineSimilarity(vector, chunk.Embedding)
		}
		results = append(results, knowledge.RetrievedChunk{
			Chunk:           chunk,
			SimilarityScore: score,
		})
	}
	return results, nil
}

// cosineSimilarity clamps into [0,1]; anti-correlated vectors are as
// irrelevant as orthogonal ones for retrieval purposes.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}
