package analyzer

import (
	"strings"

	"github.com/careline-tw/careline/engine/core"
	"github.com/careline-tw/careline/engine/knowledge"
)

// contentPreviewRunes bounds how much of each chunk body reaches the
// prompt; titles carry the taxonomy, the body is supporting context.
const contentPreviewRunes = 120

var systemInstructions = map[core.ModuleID]string{
	core.ModuleWarningSigns: "你是失智症早期警訊分析助手。根據照顧者描述與提供的十大警訊知識，" +
		"找出描述中符合的警訊項目。只回傳 JSON，欄位：matched_signs（warning_id 1-10、warning_name、" +
		"match_confidence 0-1、rationale）、risk_level（low/moderate/high/urgent）、recommendations（字串陣列）。" +
		"只列出有明確依據的警訊，不要臆測。",
	core.ModuleStages: "你是失智症病程階段分析助手。根據照顧者描述與提供的階段知識，" +
		"判斷患者最可能的病程階段。只回傳 JSON，欄位：stage（mild/moderate/severe）、" +
		"evidence_fragments（描述中支持判斷的片段）、care_focus（照護重點建議）、" +
		"matched_items（引用提供知識的 chunk_id 與 match_confidence）。",
	core.ModuleBPSD: "你是失智症行為心理症狀（BPSD）分類助手。根據照顧者描述與提供的症狀知識，" +
		"判斷最主要的 BPSD 類別。只回傳 JSON，欄位：bpsd_category（delusion、hallucination、" +
		"agitation/aggression、depression/anxiety、wandering/repetition、sleep、eating、apathy、disinhibition）、" +
		"severity（mild/moderate/severe）、interventions（處理建議）、matched_items（chunk_id 與 match_confidence）。",
	core.ModuleCareTasks: "你是失智症照護任務導航助手。根據照顧者描述與提供的照護知識，" +
		"判斷任務類別與可用資源。只回傳 JSON，欄位：task_category（emergency/important/routine）、" +
		"priority_rank（1 為最優先）、resources（資源或行動建議）、matched_items（chunk_id 與 match_confidence）。",
}

// buildUserPrompt renders the utterance verbatim plus a compact listing
// of the retrieved chunks.
func buildUserPrompt(utterance core.Utterance, retrieved []knowledge.RetrievedChunk) string {
	var b strings.Builder
	b.WriteString("照顧者描述：\n")
	b.WriteString(utterance.Text)
	b.WriteString("\n\n參考知識：\n")
	if len(retrieved) == 0 {
		b.WriteString("（無相關知識片段）\n")
		return b.String()
	}
	for _, rc := range retrieved {
		b.WriteString("- [")
		b.WriteString(rc.Chunk.ChunkID)
		b.WriteString("] ")
		b.WriteString(rc.Chunk.Title)
		b.WriteString("：")
		b.WriteString(trimRunes(rc.Chunk.Content, contentPreviewRunes))
		b.WriteString("\n")
	}
	return b.String()
}

func trimRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…"
}
