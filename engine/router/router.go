package router

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/careline-tw/careline/engine/core"
)

// MaxModules caps how many modules one utterance may fan out to.
const MaxModules = 3

// Vocabulary maps each module to its curated trigger terms. It is data,
// loaded from a config file next to the corpus, so that the routing
// surface can evolve without code changes.
type Vocabulary map[core.ModuleID][]string

// LoadVocabulary reads the trigger vocabulary from a JSON file and
// validates that every module key is known and non-empty.
func LoadVocabulary(path string) (Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("router: read vocabulary %s: %w", path, err)
	}
	return ParseVocabulary(data)
}

// ParseVocabulary decodes and validates vocabulary JSON.
func ParseVocabulary(data []byte) (Vocabulary, error) {
	raw := map[string][]string{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("router: parse vocabulary: %w", err)
	}
	vocab := make(Vocabulary, len(raw))
	for key, terms := range raw {
		id := core.ModuleID(key)
		if !id.IsValid() {
			return nil, fmt.Errorf("router: vocabulary has unknown module %q", key)
		}
		if len(terms) == 0 {
			return nil, fmt.Errorf("router: vocabulary for %s is empty", key)
		}
		lowered := make([]string, len(terms))
		for i, term := range terms {
			lowered[i] = strings.ToLower(term)
		}
		vocab[id] = lowered
	}
	for _, id := range core.AllModules {
		if _, ok := vocab[id]; !ok {
			return nil, fmt.Errorf("router: vocabulary missing module %s", id)
		}
	}
	return vocab, nil
}

// Result is the routing outcome for one utterance.
type Result struct {
	Modules   []core.ModuleID
	Scores    map[core.ModuleID]int
	LowSignal bool
}

// Router maps an utterance to its target module set. It is stateless and
// pure: identical input always yields identical output.
type Router struct {
	vocab Vocabulary
}

func New(vocab Vocabulary) *Router {
	return &Router{vocab: vocab}
}

// Route scans the lowercased utterance for trigger hits. Each module
// scores the number of distinct matched terms; all scoring modules are
// selected, ordered by (score desc, module priority), capped at
// MaxModules. No hits defaults to {M1} marked low-signal.
func (r *Router) Route(text string) Result {
	lowered := strings.ToLower(text)
	scores := make(map[core.ModuleID]int, len(r.vocab))
	for id, terms := range r.vocab {
		hits := 0
		for _, term := range terms {
			if strings.Contains(lowered, term) {
				hits++
			}
		}
		if hits > 0 {
			scores[id] = hits
		}
	}
	if len(scores) == 0 {
		return Result{
			Modules:   []core.ModuleID{core.ModuleWarningSigns},
			Scores:    scores,
			LowSignal: true,
		}
	}
	selected := make([]core.ModuleID, 0, len(scores))
	for id := range scores {
		selected = append(selected, id)
	}
	sort.Slice(selected, func(i, j int) bool {
		if scores[selected[i]] == scores[selected[j]] {
			return selected[i].PriorityRank() < selected[j].PriorityRank()
		}
		return scores[selected[i]] > scores[selected[j]]
	})
	if len(selected) > MaxModules {
		selected = selected[:MaxModules]
	}
	return Result{Modules: selected, Scores: scores}
}
