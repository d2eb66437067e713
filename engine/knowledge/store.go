package knowledge

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/careline-tw/careline/engine/core"
)

// ErrNotFound is returned by Get for unknown chunk ids.
var ErrNotFound = errors.New("knowledge: chunk not found")

// ErrCorpusInvalid wraps any corpus invariant violation found at load
// time. Startup must abort on it.
var ErrCorpusInvalid = errors.New("knowledge: corpus invalid")

// Store holds the loaded corpus. It is populated once at startup and
// read-only afterwards, so concurrent readers need no synchronization.
type Store struct {
	byID     map[string]*Chunk
	byModule map[core.ModuleID][]*Chunk
}

// LoadStore reads a line-delimited JSON corpus from path and validates
// every chunk before the store becomes visible.
func LoadStore(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrCorpusInvalid, path, err)
	}
	defer f.Close()
	return ReadStore(f)
}

// ReadStore parses one chunk per line from r.
func ReadStore(r io.Reader) (*Store, error) {
	store := &Store{
		byID:     make(map[string]*Chunk),
		byModule: make(map[core.ModuleID][]*Chunk),
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		chunk := &Chunk{}
		if err := json.Unmarshal([]byte(line), chunk); err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrCorpusInvalid, lineNo, err)
		}
		if err := chunk.Validate(); err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrCorpusInvalid, lineNo, err)
		}
		if _, exists := store.byID[chunk.ChunkID]; exists {
			return nil, fmt.Errorf("%w: line %d: duplicate chunk_id %q", ErrCorpusInvalid, lineNo, chunk.ChunkID)
		}
		store.byID[chunk.ChunkID] = chunk
		store.byModule[chunk.ModuleID] = append(store.byModule[chunk.ModuleID], chunk)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorpusInvalid, err)
	}
	if len(store.byID) == 0 {
		return nil, fmt.Errorf("%w: corpus is empty", ErrCorpusInvalid)
	}
	for _, chunks := range store.byModule {
		sort.Slice(chunks, func(i, j int) bool { return chunks[i].ChunkID < chunks[j].ChunkID })
	}
	return store, nil
}

// Get returns the chunk with the given id or ErrNotFound.
func (s *Store) Get(chunkID string) (*Chunk, error) {
	chunk, ok := s.byID[chunkID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, chunkID)
	}
	return chunk, nil
}

// Has reports whether the id exists in the corpus.
func (s *Store) Has(chunkID string) bool {
	_, ok := s.byID[chunkID]
	return ok
}

// AllForModule returns the module's chunks in chunk-id order.
func (s *Store) AllForModule(moduleID core.ModuleID) []*Chunk {
	return s.byModule[moduleID]
}

// All returns every chunk in chunk-id order.
func (s *Store) All() []*Chunk {
	all := make([]*Chunk, 0, len(s.byID))
	for _, chunk := range s.byID {
		all = append(all, chunk)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ChunkID < all[j].ChunkID })
	return all
}

// Len returns the total number of chunks.
func (s *Store) Len() int {
	return len(s.byID)
}

// ModuleCounts reports how many chunks each module carries; used by the
// health endpoint.
func (s *Store) ModuleCounts() map[core.ModuleID]int {
	counts := make(map[core.ModuleID]int, len(s.byModule))
	for id, chunks := range s.byModule {
		counts[id] = len(chunks)
	}
	return counts
}
