package core

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Utterance is one inbound caregiver message, trimmed and length-bounded
// before it enters the pipeline.
type Utterance struct {
	Text       string    `json:"text"`
	UserRef    string    `json:"user_ref"`
	ReceivedAt time.Time `json:"received_at"`
	Truncated  bool      `json:"truncated,omitempty"`
}

// NewUtterance trims and bounds the raw text. Overlong input is truncated
// rather than rejected; the flag is recorded for logging.
func NewUtterance(text, userRef string, maxLen int, now time.Time) Utterance {
	text = strings.TrimSpace(text)
	truncated := false
	if maxLen > 0 && utf8.RuneCountInString(text) > maxLen {
		runes := []rune(text)
		text = string(runes[:maxLen])
		truncated = true
	}
	return Utterance{Text: text, UserRef: userRef, ReceivedAt: now, Truncated: truncated}
}

// MatchedItem is one taxonomy hit inside a module analysis. Chunks are
// referenced by id only; analyses never embed chunk objects.
type MatchedItem struct {
	ChunkID           string  `json:"chunk_id"`
	Title             string  `json:"title,omitempty"`
	MatchConfidence   float64 `json:"match_confidence"`
	RationaleFragment string  `json:"rationale_fragment,omitempty"`
	// NormalAging and DementiaWarning carry the warning-sign comparison
	// copy; set on M1 matches only.
	NormalAging     string `json:"normal_aging,omitempty"`
	DementiaWarning string `json:"dementia_warning,omitempty"`
}

// ModuleAnalysis is the per-module classification result.
type ModuleAnalysis struct {
	ModuleID          ModuleID      `json:"module_id"`
	MatchedItems      []MatchedItem `json:"matched_items"`
	OverallConfidence float64       `json:"overall_confidence"`
	RiskLevel         RiskLevel     `json:"risk_level,omitempty"`
	Recommendations   []string      `json:"recommendations,omitempty"`
	Stage             Stage         `json:"stage,omitempty"`
	BPSDCategory      string        `json:"bpsd_category,omitempty"`
	SourceChunks      []string      `json:"source_chunks,omitempty"`
}

// ComprehensiveAnalysis is the top-level result carried onto the deep
// link; field names are part of the detail-page contract.
type ComprehensiveAnalysis struct {
	ModulesUsed       []ModuleID                   `json:"modules_used"`
	PrimaryModule     ModuleID                     `json:"primary_module"`
	PerModule         map[ModuleID]*ModuleAnalysis `json:"per_module"`
	Summary           string                       `json:"summary"`
	SymptomTitles     []string                     `json:"symptom_titles"`
	ActionSuggestions []string                     `json:"action_suggestions"`
	OverallConfidence float64                      `json:"overall_confidence"`
	GeneratedAt       time.Time                    `json:"generated_at"`
	LowSignal         bool                         `json:"low_signal,omitempty"`
}

// Clamp01 bounds a confidence value to [0, 1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
