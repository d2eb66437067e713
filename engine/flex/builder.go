package flex

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/careline-tw/careline/engine/core"
)

const (
	// MaxPayloadBytes is the serialized-card ceiling accepted by the
	// messaging API.
	MaxPayloadBytes = 25000
	// MaxAltTextRunes bounds the notification fallback text.
	MaxAltTextRunes = 400

	maxItemsPerModule = 5
	detailLabel       = "查看詳細分析"
	disclaimer        = "此分析僅供參考，無法取代專業醫療診斷。"
)

// accentColors keys the card header color by the primary module.
var accentColors = map[core.ModuleID]string{
	core.ModuleWarningSigns: "#FF6B6B",
	core.ModuleStages:       "#4ECDC4",
	core.ModuleBPSD:         "#45B7D1",
	core.ModuleCareTasks:    "#96CEB4",
}

const fallbackAccent = "#FFA07A"

// Builder renders comprehensive analyses into flex cards. An empty
// detail base URL switches the footer action from a deep link to a
// postback.
type Builder struct {
	detailBaseURL string
}

func NewBuilder(detailBaseURL string) *Builder {
	return &Builder{detailBaseURL: detailBaseURL}
}

// Build renders the card. The serialized payload never exceeds
// MaxPayloadBytes: per-module sections are dropped lowest priority
// first, and when the deep link alone is what pushes the card over
// the ceiling the footer degrades to the bounded postback action.
func (b *Builder) Build(result *core.ComprehensiveAnalysis) (*Message, error) {
	if result == nil {
		return nil, fmt.Errorf("flex: nil analysis")
	}
	action, err := b.footerAction(result)
	if err != nil {
		return nil, err
	}
	msg, err := b.fit(result, action)
	if err == nil || action.Type != "uri" {
		return msg, err
	}
	return b.fit(result, postbackAction(result))
}

// fit tries progressively smaller bodies, ending with no module
// sections at all.
func (b *Builder) fit(result *core.ComprehensiveAnalysis, action *Action) (*Message, error) {
	for sections := len(result.ModulesUsed); sections >= 0; sections-- {
		msg := b.render(result, action, sections)
		encoded, err := json.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("flex: marshal card: %w", err)
		}
		if len(encoded) <= MaxPayloadBytes {
			return msg, nil
		}
	}
	return nil, fmt.Errorf("flex: card exceeds %d bytes after trimming", MaxPayloadBytes)
}

func (b *Builder) render(result *core.ComprehensiveAnalysis, action *Action, sections int) *Message {
	accent := accentColors[result.PrimaryModule]
	if accent == "" || result.LowSignal {
		accent = fallbackAccent
	}

	header := newBox("vertical",
		&Text{Type: "text", Text: "失智症照護分析", Weight: "bold", Size: "lg", Color: "#FFFFFF"},
		&Text{Type: "text", Text: result.PrimaryModule.DisplayName(), Size: "sm", Color: "#FFFFFF"},
	)
	header.BackgroundColor = accent
	header.PaddingAll = "16px"

	body := newBox("vertical", summaryText(result.Summary))
	body.Spacing = "md"
	body.PaddingAll = "16px"
	for i, id := range result.ModulesUsed {
		if i >= sections {
			break
		}
		analysis := result.PerModule[id]
		if analysis == nil {
			continue
		}
		body.Contents = append(body.Contents, &Separator{Type: "separator", Margin: "md"})
		body.Contents = append(body.Contents, moduleSection(analysis)...)
	}
	if sections > 0 {
		if cmp := comparisonSection(result); cmp != nil {
			body.Contents = append(body.Contents, &Separator{Type: "separator", Margin: "md"})
			body.Contents = append(body.Contents, cmp...)
		}
	}
	if len(result.ActionSuggestions) > 0 {
		body.Contents = append(body.Contents, &Separator{Type: "separator", Margin: "md"})
		body.Contents = append(body.Contents, suggestionSection(result.ActionSuggestions)...)
	}

	footer := newBox("vertical",
		&Button{Type: "button", Style: "primary", Color: accent, Height: "sm", Action: action},
		&Text{Type: "text", Text: disclaimer, Size: "xxs", Color: "#999999", Wrap: true, Margin: "sm"},
	)
	footer.Spacing = "sm"
	footer.PaddingAll = "12px"

	return &Message{
		Type:    "flex",
		AltText: altText(result),
		Contents: &Bubble{
			Type:   "bubble",
			Size:   "mega",
			Header: header,
			Body:   body,
			Footer: footer,
		},
	}
}

func moduleSection(analysis *core.ModuleAnalysis) []Node {
	nodes := []Node{
		&Text{Type: "text", Text: analysis.ModuleID.DisplayName(), Weight: "bold", Size: "sm", Color: "#555555"},
	}
	items := analysis.MatchedItems
	if len(items) > maxItemsPerModule {
		items = items[:maxItemsPerModule]
	}
	for _, item := range items {
		line := fmt.Sprintf("・%s（%.0f%%）", item.Title, item.MatchConfidence*100)
		nodes = append(nodes, &Text{Type: "text", Text: line, Size: "sm", Wrap: true, MaxLines: 2})
	}
	if analysis.Stage != "" {
		nodes = append(nodes, &Text{
			Type: "text", Text: "推估階段：" + stageLabel(analysis.Stage), Size: "sm", Color: "#555555",
		})
	}
	if analysis.RiskLevel != "" && analysis.RiskLevel != core.RiskNA {
		nodes = append(nodes, &Text{
			Type: "text", Text: "風險程度：" + riskLabel(analysis.RiskLevel), Size: "sm", Color: "#555555",
		})
	}
	return nodes
}

// comparisonSection contrasts normal aging with the matched warning
// sign. Rendered only when a single sign carries the whole result, so
// the copy cannot be attributed to the wrong sign.
func comparisonSection(result *core.ComprehensiveAnalysis) []Node {
	if result.PrimaryModule != core.ModuleWarningSigns {
		return nil
	}
	analysis := result.PerModule[core.ModuleWarningSigns]
	if analysis == nil || len(analysis.MatchedItems) != 1 {
		return nil
	}
	item := analysis.MatchedItems[0]
	if item.NormalAging == "" || item.DementiaWarning == "" {
		return nil
	}
	return []Node{
		&Text{Type: "text", Text: "正常老化 vs 失智警訊", Weight: "bold", Size: "sm", Color: "#555555"},
		&Text{Type: "text", Text: "正常老化：" + item.NormalAging, Size: "xs", Color: "#888888", Wrap: true, MaxLines: 3},
		&Text{Type: "text", Text: "失智警訊：" + item.DementiaWarning, Size: "xs", Color: "#C0392B", Wrap: true, MaxLines: 3},
	}
}

func suggestionSection(suggestions []string) []Node {
	nodes := []Node{
		&Text{Type: "text", Text: "建議行動", Weight: "bold", Size: "sm", Color: "#555555"},
	}
	for _, s := range suggestions {
		nodes = append(nodes, &Text{Type: "text", Text: "・" + s, Size: "sm", Wrap: true, MaxLines: 3})
	}
	return nodes
}

func summaryText(summary string) *Text {
	t := newText(summary)
	t.Size = "sm"
	return t
}

func altText(result *core.ComprehensiveAnalysis) string {
	alt := "失智症分析結果：" + result.PrimaryModule.DisplayName()
	if utf8.RuneCountInString(alt) > MaxAltTextRunes {
		runes := []rune(alt)
		alt = string(runes[:MaxAltTextRunes-1]) + "…"
	}
	return alt
}

// footerAction builds the deep link carrying the full analysis JSON, or
// a bounded postback when no detail page is configured.
func (b *Builder) footerAction(result *core.ComprehensiveAnalysis) (*Action, error) {
	if b.detailBaseURL == "" {
		return postbackAction(result), nil
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("flex: marshal analysis for deep link: %w", err)
	}
	uri := b.detailBaseURL + "/index.html?analysis=" + escapeQueryValue(string(payload))
	return &Action{Type: "uri", Label: detailLabel, URI: uri}, nil
}

func postbackAction(result *core.ComprehensiveAnalysis) *Action {
	return &Action{
		Type:        "postback",
		Label:       detailLabel,
		Data:        "action=detail&primary=" + string(result.PrimaryModule),
		DisplayText: detailLabel,
	}
}

// escapeQueryValue percent-encodes strictly. QueryEscape alone would
// form-encode spaces as "+", which a percent-decoding detail page
// cannot reverse.
func escapeQueryValue(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func stageLabel(stage core.Stage) string {
	switch stage {
	case core.StageMild:
		return "輕度"
	case core.StageModerate:
		return "中度"
	case core.StageSevere:
		return "重度"
	default:
		return string(stage)
	}
}

func riskLabel(risk core.RiskLevel) string {
	switch risk {
	case core.RiskLow:
		return "低"
	case core.RiskModerate:
		return "中"
	case core.RiskHigh:
		return "高"
	case core.RiskUrgent:
		return "緊急"
	default:
		return string(risk)
	}
}
