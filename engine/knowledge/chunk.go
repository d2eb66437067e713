package knowledge

import (
	"errors"
	"fmt"
	"strings"

	"github.com/careline-tw/careline/engine/core"
)

// Chunk is one immutable knowledge unit from the curated corpus. Chunks
// are owned by the Store and shared by id; callers must not mutate them.
type Chunk struct {
	ChunkID         string        `json:"chunk_id"`
	ModuleID        core.ModuleID `json:"module_id"`
	ChunkType       string        `json:"chunk_type"`
	Title           string        `json:"title"`
	Content         string        `json:"content"`
	Keywords        []string      `json:"keywords"`
	ConfidenceScore float64       `json:"confidence_score"`
	Source          string        `json:"source"`
	// NormalAging and DementiaWarning carry the M1 comparison copy; empty
	// for other modules.
	NormalAging     string `json:"normal_aging,omitempty"`
	DementiaWarning string `json:"dementia_warning,omitempty"`
	// Embedding is the optional precomputed vector for the embedding
	// retriever variant.
	Embedding []float32 `json:"embedding,omitempty"`
}

// Validate enforces the corpus invariants; any violation makes the whole
// corpus invalid at startup.
func (c *Chunk) Validate() error {
	if strings.TrimSpace(c.ChunkID) == "" {
		return errors.New("chunk_id is required")
	}
	if !c.ModuleID.IsValid() {
		return fmt.Errorf("chunk %s: module_id %q is not in the enumerated set", c.ChunkID, c.ModuleID)
	}
	if strings.TrimSpace(c.Title) == "" {
		return fmt.Errorf("chunk %s: title is required", c.ChunkID)
	}
	if strings.TrimSpace(c.Content) == "" {
		return fmt.Errorf("chunk %s: content is required", c.ChunkID)
	}
	if len(c.Keywords) == 0 {
		return fmt.Errorf("chunk %s: keywords must be non-empty", c.ChunkID)
	}
	if c.ConfidenceScore < 0 || c.ConfidenceScore > 1 {
		return fmt.Errorf("chunk %s: confidence_score %.2f out of [0,1]", c.ChunkID, c.ConfidenceScore)
	}
	return nil
}

// RetrievedChunk is a corpus chunk plus its runtime similarity against
// one query. Value object owned by the request that produced it.
type RetrievedChunk struct {
	Chunk           *Chunk
	SimilarityScore float64
	QueryTerms      []string
}
