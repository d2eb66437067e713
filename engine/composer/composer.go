package composer

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/careline-tw/careline/engine/core"
	"github.com/careline-tw/careline/engine/router"
)

// MaxSuggestions caps how many action suggestions the comprehensive
// result carries onto the card.
const MaxSuggestions = 5

// MaxTitles caps how many symptom titles the comprehensive result
// carries onto the card.
const MaxTitles = 5

// FallbackRecommendation is the single recommendation shown when every
// module failed or nothing matched.
const FallbackRecommendation = "建議諮詢專業醫療人員"

const fallbackSummary = "目前無法完成分析，請稍後再試，或直接諮詢專業醫療人員。"

// Compose merges the per-module outcomes into one comprehensive result.
// Failed modules are dropped; when every routed module failed the result
// degrades to a safe fallback instead of an error.
func Compose(
	route router.Result,
	analyses map[core.ModuleID]*core.ModuleAnalysis,
	now time.Time,
) *core.ComprehensiveAnalysis {
	succeeded := make([]core.ModuleID, 0, len(route.Modules))
	perModule := make(map[core.ModuleID]*core.ModuleAnalysis, len(analyses))
	for _, id := range route.Modules {
		analysis, ok := analyses[id]
		if !ok || analysis == nil {
			continue
		}
		succeeded = append(succeeded, id)
		perModule[id] = analysis
	}
	if len(succeeded) == 0 {
		return Fallback(now)
	}

	primary := pickPrimary(succeeded, perModule)
	overall := 0.0
	for _, analysis := range perModule {
		if analysis.OverallConfidence > overall {
			overall = analysis.OverallConfidence
		}
	}
	ordered := orderByPriority(succeeded)
	suggestions := collectSuggestions(ordered, perModule)
	result := &core.ComprehensiveAnalysis{
		ModulesUsed:       ordered,
		PrimaryModule:     primary,
		PerModule:         perModule,
		Summary:           buildSummary(ordered, perModule, primary, suggestions, route.LowSignal),
		SymptomTitles:     collectTitles(ordered, perModule),
		ActionSuggestions: suggestions,
		OverallConfidence: core.Clamp01(overall),
		GeneratedAt:       now.UTC(),
		LowSignal:         route.LowSignal,
	}
	return result
}

// Fallback is the safe degraded result: M1 primary, no matches, one
// generic recommendation.
func Fallback(now time.Time) *core.ComprehensiveAnalysis {
	return &core.ComprehensiveAnalysis{
		ModulesUsed:   []core.ModuleID{core.ModuleWarningSigns},
		PrimaryModule: core.ModuleWarningSigns,
		PerModule: map[core.ModuleID]*core.ModuleAnalysis{
			core.ModuleWarningSigns: {
				ModuleID:        core.ModuleWarningSigns,
				MatchedItems:    []core.MatchedItem{},
				Recommendations: []string{FallbackRecommendation},
				RiskLevel:       core.RiskNA,
			},
		},
		Summary:           fallbackSummary,
		SymptomTitles:     []string{},
		ActionSuggestions: []string{FallbackRecommendation},
		GeneratedAt:       now.UTC(),
		LowSignal:         true,
	}
}

// pickPrimary selects the module with the highest confidence, breaking
// ties by module priority.
func pickPrimary(ids []core.ModuleID, perModule map[core.ModuleID]*core.ModuleAnalysis) core.ModuleID {
	primary := ids[0]
	for _, id := range ids[1:] {
		cur, best := perModule[id], perModule[primary]
		if cur.OverallConfidence > best.OverallConfidence {
			primary = id
			continue
		}
		if cur.OverallConfidence == best.OverallConfidence && id.PriorityRank() < primary.PriorityRank() {
			primary = id
		}
	}
	return primary
}

func orderByPriority(ids []core.ModuleID) []core.ModuleID {
	ordered := make([]core.ModuleID, len(ids))
	copy(ordered, ids)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].PriorityRank() < ordered[j].PriorityRank()
	})
	return ordered
}

// collectTitles gathers matched-item titles across modules in priority
// order, within each module by confidence descending, deduplicated and
// capped.
func collectTitles(ordered []core.ModuleID, perModule map[core.ModuleID]*core.ModuleAnalysis) []string {
	titles := make([]string, 0, MaxTitles)
	seen := make(map[string]struct{})
	for _, id := range ordered {
		items := make([]core.MatchedItem, len(perModule[id].MatchedItems))
		copy(items, perModule[id].MatchedItems)
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].MatchConfidence > items[j].MatchConfidence
		})
		for _, item := range items {
			key := normalizeKey(item.Title)
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			titles = append(titles, item.Title)
			if len(titles) == MaxTitles {
				return titles
			}
		}
	}
	return titles
}

// collectSuggestions merges recommendations across modules in priority
// order, deduplicated and capped.
func collectSuggestions(ordered []core.ModuleID, perModule map[core.ModuleID]*core.ModuleAnalysis) []string {
	suggestions := make([]string, 0, MaxSuggestions)
	seen := make(map[string]struct{})
	for _, id := range ordered {
		for _, rec := range perModule[id].Recommendations {
			rec = strings.TrimSpace(rec)
			key := normalizeKey(rec)
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			suggestions = append(suggestions, rec)
			if len(suggestions) == MaxSuggestions {
				return suggestions
			}
		}
	}
	if len(suggestions) == 0 {
		suggestions = append(suggestions, FallbackRecommendation)
	}
	return suggestions
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// buildSummary always carries the match count, the primary concern,
// and the suggested next step.
func buildSummary(
	ordered []core.ModuleID,
	perModule map[core.ModuleID]*core.ModuleAnalysis,
	primary core.ModuleID,
	suggestions []string,
	lowSignal bool,
) string {
	matches := 0
	for _, id := range ordered {
		matches += len(perModule[id].MatchedItems)
	}
	if matches == 0 || lowSignal {
		return "描述中未發現明確的失智症相關徵兆，若仍有疑慮建議諮詢專業醫療人員。"
	}
	nextStep := FallbackRecommendation
	if len(suggestions) > 0 {
		nextStep = suggestions[0]
	}
	return fmt.Sprintf("依據您的描述，共發現 %d 項相關徵兆，主要關注「%s」，建議下一步：%s。",
		matches, primaryConcern(primary, perModule), nextStep)
}

// primaryConcern names what the card should lead with: the primary
// module's strongest matched title, its behavioral category, or the
// module name itself when neither exists.
func primaryConcern(primary core.ModuleID, perModule map[core.ModuleID]*core.ModuleAnalysis) string {
	analysis := perModule[primary]
	best := ""
	bestConf := -1.0
	for _, item := range analysis.MatchedItems {
		if item.Title != "" && item.MatchConfidence > bestConf {
			best = item.Title
			bestConf = item.MatchConfidence
		}
	}
	if best != "" {
		return best
	}
	if analysis.BPSDCategory != "" {
		return analysis.BPSDCategory
	}
	return primary.DisplayName()
}
