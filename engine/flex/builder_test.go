package flex

import (
	"encoding/json"
	"net/url"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careline-tw/careline/engine/composer"
	"github.com/careline-tw/careline/engine/core"
)

func sampleResult() *core.ComprehensiveAnalysis {
	return &core.ComprehensiveAnalysis{
		ModulesUsed:   []core.ModuleID{core.ModuleWarningSigns, core.ModuleBPSD},
		PrimaryModule: core.ModuleWarningSigns,
		PerModule: map[core.ModuleID]*core.ModuleAnalysis{
			core.ModuleWarningSigns: {
				ModuleID: core.ModuleWarningSigns,
				MatchedItems: []core.MatchedItem{
					{ChunkID: "M1-01", Title: "記憶力減退影響生活", MatchConfidence: 0.9},
					{ChunkID: "M1-03", Title: "無法勝任原本熟悉的事務", MatchConfidence: 0.7},
				},
				OverallConfidence: 0.8,
				RiskLevel:         core.RiskHigh,
				Recommendations:   []string{"盡早就醫評估"},
			},
			core.ModuleBPSD: {
				ModuleID: core.ModuleBPSD,
				MatchedItems: []core.MatchedItem{
					{ChunkID: "M3-03", Title: "激動與攻擊行為", MatchConfidence: 0.75},
				},
				OverallConfidence: 0.75,
				RiskLevel:         core.RiskModerate,
				BPSDCategory:      "agitation/aggression",
			},
		},
		Summary:           "依據您的描述，發現 3 項相關徵兆。",
		SymptomTitles:     []string{"記憶力減退影響生活", "無法勝任原本熟悉的事務", "激動與攻擊行為"},
		ActionSuggestions: []string{"盡早就醫評估"},
		OverallConfidence: 0.8,
		GeneratedAt:       time.Date(2026, 3, 10, 8, 30, 0, 0, time.UTC),
	}
}

func TestBuilder(t *testing.T) {
	t.Run("Should render a bubble with the primary module accent", func(t *testing.T) {
		msg, err := NewBuilder("https://liff.example.com").Build(sampleResult())
		require.NoError(t, err)
		assert.Equal(t, "flex", msg.Type)
		assert.Equal(t, "bubble", msg.Contents.Type)
		assert.Equal(t, "#FF6B6B", msg.Contents.Header.BackgroundColor)
		assert.Contains(t, msg.AltText, "失智症十大警訊")
		assert.LessOrEqual(t, utf8.RuneCountInString(msg.AltText), MaxAltTextRunes)
	})

	t.Run("Should carry the full analysis JSON on the deep link", func(t *testing.T) {
		result := sampleResult()
		msg, err := NewBuilder("https://liff.example.com").Build(result)
		require.NoError(t, err)
		button, ok := msg.Contents.Footer.Contents[0].(*Button)
		require.True(t, ok)
		assert.Equal(t, "uri", button.Action.Type)

		parsed, err := url.Parse(button.Action.URI)
		require.NoError(t, err)
		assert.Equal(t, "/index.html", parsed.Path)

		var decoded core.ComprehensiveAnalysis
		require.NoError(t, json.Unmarshal([]byte(parsed.Query().Get("analysis")), &decoded))
		assert.Equal(t, result.PrimaryModule, decoded.PrimaryModule)
		assert.Equal(t, result.SymptomTitles, decoded.SymptomTitles)
		assert.InDelta(t, result.OverallConfidence, decoded.OverallConfidence, 1e-9)
	})

	t.Run("Should percent-encode spaces on the deep link", func(t *testing.T) {
		result := sampleResult()
		result.ActionSuggestions = []string{"長照 2.0 申請"}
		msg, err := NewBuilder("https://liff.example.com").Build(result)
		require.NoError(t, err)
		button, ok := msg.Contents.Footer.Contents[0].(*Button)
		require.True(t, ok)

		parsed, err := url.Parse(button.Action.URI)
		require.NoError(t, err)
		raw := strings.TrimPrefix(parsed.RawQuery, "analysis=")
		assert.NotContains(t, raw, "+")

		decoded, err := url.PathUnescape(raw)
		require.NoError(t, err)
		var roundTripped core.ComprehensiveAnalysis
		require.NoError(t, json.Unmarshal([]byte(decoded), &roundTripped))
		assert.Equal(t, []string{"長照 2.0 申請"}, roundTripped.ActionSuggestions)
	})

	t.Run("Should degrade to a postback when the deep link overflows the card", func(t *testing.T) {
		result := sampleResult()
		var long strings.Builder
		for range 400 {
			long.WriteString("照顧者描述了非常多的細節內容，")
		}
		items := make([]core.MatchedItem, 0, 10)
		for range 10 {
			items = append(items, core.MatchedItem{
				ChunkID:           "M1-01",
				Title:             "記憶力減退影響生活",
				MatchConfidence:   0.5,
				RationaleFragment: long.String(),
			})
		}
		result.PerModule[core.ModuleWarningSigns].MatchedItems = items
		msg, err := NewBuilder("https://liff.example.com").Build(result)
		require.NoError(t, err)
		button, ok := msg.Contents.Footer.Contents[0].(*Button)
		require.True(t, ok)
		assert.Equal(t, "postback", button.Action.Type)
		encoded, err := json.Marshal(msg)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(encoded), MaxPayloadBytes)
	})

	t.Run("Should fall back to a postback action without a detail URL", func(t *testing.T) {
		msg, err := NewBuilder("").Build(sampleResult())
		require.NoError(t, err)
		button, ok := msg.Contents.Footer.Contents[0].(*Button)
		require.True(t, ok)
		assert.Equal(t, "postback", button.Action.Type)
		assert.Contains(t, button.Action.Data, "primary=M1")
		assert.Empty(t, button.Action.URI)
	})

	t.Run("Should keep the serialized card under the payload ceiling", func(t *testing.T) {
		result := sampleResult()
		var long strings.Builder
		for range 400 {
			long.WriteString("照顧者描述了非常多的細節內容，")
		}
		items := make([]core.MatchedItem, 0, 40)
		for range 40 {
			items = append(items, core.MatchedItem{
				ChunkID:           "M1-01",
				Title:             long.String(),
				MatchConfidence:   0.5,
				RationaleFragment: long.String(),
			})
		}
		result.PerModule[core.ModuleWarningSigns].MatchedItems = items
		msg, err := NewBuilder("").Build(result)
		require.NoError(t, err)
		encoded, err := json.Marshal(msg)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(encoded), MaxPayloadBytes)
	})

	t.Run("Should render the safe fallback card", func(t *testing.T) {
		result := composer.Fallback(time.Now())
		msg, err := NewBuilder("https://liff.example.com").Build(result)
		require.NoError(t, err)
		assert.Equal(t, "#FFA07A", msg.Contents.Header.BackgroundColor)
		encoded, err := json.Marshal(msg)
		require.NoError(t, err)
		assert.Contains(t, string(encoded), composer.FallbackRecommendation)
	})

	t.Run("Should contrast normal aging when a single sign dominates", func(t *testing.T) {
		result := sampleResult()
		result.ModulesUsed = []core.ModuleID{core.ModuleWarningSigns}
		delete(result.PerModule, core.ModuleBPSD)
		result.PerModule[core.ModuleWarningSigns].MatchedItems = []core.MatchedItem{{
			ChunkID:         "M1-01",
			Title:           "記憶力減退影響生活",
			MatchConfidence: 0.9,
			NormalAging:     "偶爾忘記約會但事後會想起來",
			DementiaWarning: "忘記剛發生的事、重複問同樣問題",
		}}
		msg, err := NewBuilder("").Build(result)
		require.NoError(t, err)
		encoded, err := json.Marshal(msg)
		require.NoError(t, err)
		assert.Contains(t, string(encoded), "正常老化：偶爾忘記約會但事後會想起來")
		assert.Contains(t, string(encoded), "失智警訊：忘記剛發生的事、重複問同樣問題")
	})

	t.Run("Should omit the comparison when several signs match", func(t *testing.T) {
		result := sampleResult()
		for i := range result.PerModule[core.ModuleWarningSigns].MatchedItems {
			result.PerModule[core.ModuleWarningSigns].MatchedItems[i].NormalAging = "偶爾忘記"
			result.PerModule[core.ModuleWarningSigns].MatchedItems[i].DementiaWarning = "完全忘記"
		}
		msg, err := NewBuilder("").Build(result)
		require.NoError(t, err)
		encoded, err := json.Marshal(msg)
		require.NoError(t, err)
		assert.NotContains(t, string(encoded), "正常老化 vs 失智警訊")
	})

	t.Run("Should include the disclaimer in the footer", func(t *testing.T) {
		msg, err := NewBuilder("").Build(sampleResult())
		require.NoError(t, err)
		text, ok := msg.Contents.Footer.Contents[1].(*Text)
		require.True(t, ok)
		assert.Contains(t, text.Text, "僅供參考")
	})
}
