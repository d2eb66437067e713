package analyzer

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/careline-tw/careline/engine/core"
	"github.com/careline-tw/careline/engine/knowledge"
)

type rawMatchedItem struct {
	ChunkID         string   `json:"chunk_id"`
	MatchConfidence *float64 `json:"match_confidence"`
	Rationale       string   `json:"rationale"`
}

type rawWarningSign struct {
	WarningID       int      `json:"warning_id"`
	WarningName     string   `json:"warning_name"`
	MatchConfidence *float64 `json:"match_confidence"`
	Rationale       string   `json:"rationale"`
}

type rawWarningSigns struct {
	MatchedSigns    []rawWarningSign `json:"matched_signs"`
	RiskLevel       string           `json:"risk_level"`
	Recommendations []string         `json:"recommendations"`
}

type rawStages struct {
	Stage             string           `json:"stage"`
	EvidenceFragments []string         `json:"evidence_fragments"`
	CareFocus         []string         `json:"care_focus"`
	MatchedItems      []rawMatchedItem `json:"matched_items"`
}

type rawBPSD struct {
	Category      string           `json:"bpsd_category"`
	Severity      string           `json:"severity"`
	Interventions []string         `json:"interventions"`
	MatchedItems  []rawMatchedItem `json:"matched_items"`
}

type rawCareTasks struct {
	TaskCategory string           `json:"task_category"`
	PriorityRank int              `json:"priority_rank"`
	Resources    []string         `json:"resources"`
	MatchedItems []rawMatchedItem `json:"matched_items"`
}

func (a *Analyzer) normalize(raw json.RawMessage, retrieved []knowledge.RetrievedChunk) (*core.ModuleAnalysis, error) {
	switch a.moduleID {
	case core.ModuleWarningSigns:
		return a.normalizeWarningSigns(raw, retrieved)
	case core.ModuleStages:
		return a.normalizeStages(raw, retrieved)
	case core.ModuleBPSD:
		return a.normalizeBPSD(raw, retrieved)
	case core.ModuleCareTasks:
		return a.normalizeCareTasks(raw, retrieved)
	default:
		return nil, fmt.Errorf("unknown module %s", a.moduleID)
	}
}

func (a *Analyzer) normalizeWarningSigns(raw json.RawMessage, retrieved []knowledge.RetrievedChunk) (*core.ModuleAnalysis, error) {
	var out rawWarningSigns
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	similarity := similarityByChunk(retrieved)
	items := make([]core.MatchedItem, 0, len(out.MatchedSigns))
	for _, sign := range out.MatchedSigns {
		chunkID := fmt.Sprintf("M1-%02d", sign.WarningID)
		chunk, err := a.store.Get(chunkID)
		if err != nil {
			// The model may hallucinate sign ids outside the corpus; drop them.
			continue
		}
		items = append(items, core.MatchedItem{
			ChunkID:           chunkID,
			Title:             chunk.Title,
			MatchConfidence:   resolveConfidence(sign.MatchConfidence, similarity[chunkID]),
			RationaleFragment: sign.Rationale,
			NormalAging:       chunk.NormalAging,
			DementiaWarning:   chunk.DementiaWarning,
		})
	}
	items = dedupeByChunk(items)
	analysis := &core.ModuleAnalysis{
		ModuleID:          core.ModuleWarningSigns,
		MatchedItems:      items,
		OverallConfidence: meanConfidence(items),
		Recommendations:   out.Recommendations,
		SourceChunks:      sourceChunks(retrieved),
	}
	analysis.RiskLevel = reconcileRisk(core.RiskLevel(out.RiskLevel), analysis.OverallConfidence, len(items))
	return analysis, nil
}

func (a *Analyzer) normalizeStages(raw json.RawMessage, retrieved []knowledge.RetrievedChunk) (*core.ModuleAnalysis, error) {
	var out rawStages
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	stage := core.Stage(out.Stage)
	if !stage.IsValid() {
		return nil, fmt.Errorf("missing or invalid stage %q", out.Stage)
	}
	items := a.itemsFromRaw(out.MatchedItems, retrieved)
	if len(items) == 0 {
		items = itemsFromRetrieved(retrieved, out.EvidenceFragments)
	}
	return &core.ModuleAnalysis{
		ModuleID:          core.ModuleStages,
		MatchedItems:      items,
		OverallConfidence: meanConfidence(items),
		RiskLevel:         core.RiskNA,
		Recommendations:   out.CareFocus,
		Stage:             stage,
		SourceChunks:      sourceChunks(retrieved),
	}, nil
}

func (a *Analyzer) normalizeBPSD(raw json.RawMessage, retrieved []knowledge.RetrievedChunk) (*core.ModuleAnalysis, error) {
	var out rawBPSD
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	if !core.IsBPSDCategory(out.Category) {
		return nil, fmt.Errorf("missing or invalid bpsd_category %q", out.Category)
	}
	items := a.itemsFromRaw(out.MatchedItems, retrieved)
	if len(items) == 0 {
		items = itemsFromRetrieved(retrieved, nil)
	}
	analysis := &core.ModuleAnalysis{
		ModuleID:          core.ModuleBPSD,
		MatchedItems:      items,
		OverallConfidence: meanConfidence(items),
		Recommendations:   out.Interventions,
		BPSDCategory:      out.Category,
		SourceChunks:      sourceChunks(retrieved),
	}
	analysis.RiskLevel = riskFromSeverity(out.Severity)
	return analysis, nil
}

func (a *Analyzer) normalizeCareTasks(raw json.RawMessage, retrieved []knowledge.RetrievedChunk) (*core.ModuleAnalysis, error) {
	var out rawCareTasks
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	if out.TaskCategory == "" {
		return nil, fmt.Errorf("missing task_category")
	}
	items := a.itemsFromRaw(out.MatchedItems, retrieved)
	if len(items) == 0 {
		items = itemsFromRetrieved(retrieved, nil)
	}
	return &core.ModuleAnalysis{
		ModuleID:          core.ModuleCareTasks,
		MatchedItems:      items,
		OverallConfidence: meanConfidence(items),
		RiskLevel:         core.RiskNA,
		Recommendations:   out.Resources,
		SourceChunks:      sourceChunks(retrieved),
	}, nil
}

// itemsFromRaw resolves model-reported matches against the corpus,
// defaulting missing confidences to the retrieval similarity and
// dropping ids that do not exist.
func (a *Analyzer) itemsFromRaw(rawItems []rawMatchedItem, retrieved []knowledge.RetrievedChunk) []core.MatchedItem {
	similarity := similarityByChunk(retrieved)
	items := make([]core.MatchedItem, 0, len(rawItems))
	for _, ri := range rawItems {
		chunk, err := a.store.Get(ri.ChunkID)
		if err != nil {
			continue
		}
		items = append(items, core.MatchedItem{
			ChunkID:           ri.ChunkID,
			Title:             chunk.Title,
			MatchConfidence:   resolveConfidence(ri.MatchConfidence, similarity[ri.ChunkID]),
			RationaleFragment: ri.Rationale,
		})
	}
	return dedupeByChunk(items)
}

// itemsFromRetrieved falls back to the retrieval result when the model
// reported no explicit matches.
func itemsFromRetrieved(retrieved []knowledge.RetrievedChunk, rationales []string) []core.MatchedItem {
	items := make([]core.MatchedItem, 0, len(retrieved))
	for i, rc := range retrieved {
		rationale := ""
		if i < len(rationales) {
			rationale = rationales[i]
		}
		items = append(items, core.MatchedItem{
			ChunkID:           rc.Chunk.ChunkID,
			Title:             rc.Chunk.Title,
			MatchConfidence:   core.Clamp01(rc.SimilarityScore),
			RationaleFragment: rationale,
		})
	}
	return items
}

func similarityByChunk(retrieved []knowledge.RetrievedChunk) map[string]float64 {
	m := make(map[string]float64, len(retrieved))
	for _, rc := range retrieved {
		m[rc.Chunk.ChunkID] = rc.SimilarityScore
	}
	return m
}

func resolveConfidence(reported *float64, similarity float64) float64 {
	if reported != nil {
		return core.Clamp01(*reported)
	}
	return core.Clamp01(similarity)
}

// dedupeByChunk keeps the highest confidence per chunk id, preserving
// first-seen order.
func dedupeByChunk(items []core.MatchedItem) []core.MatchedItem {
	best := make(map[string]int, len(items))
	deduped := make([]core.MatchedItem, 0, len(items))
	for _, item := range items {
		if idx, seen := best[item.ChunkID]; seen {
			if item.MatchConfidence > deduped[idx].MatchConfidence {
				deduped[idx] = item
			}
			continue
		}
		best[item.ChunkID] = len(deduped)
		deduped = append(deduped, item)
	}
	return deduped
}

func meanConfidence(items []core.MatchedItem) float64 {
	if len(items) == 0 {
		return 0
	}
	sum := 0.0
	for _, item := range items {
		sum += item.MatchConfidence
	}
	return core.Clamp01(sum / float64(len(items)))
}

func sourceChunks(retrieved []knowledge.RetrievedChunk) []string {
	ids := make([]string, 0, len(retrieved))
	for _, rc := range retrieved {
		ids = append(ids, rc.Chunk.ChunkID)
	}
	sort.Strings(ids)
	return ids
}
