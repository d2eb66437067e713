package analyzer

import (
	"github.com/careline-tw/careline/engine/core"
	"github.com/careline-tw/careline/engine/schema"
)

// matchedItemsProperty is shared by every module schema: items reference
// chunks from the provided context by id.
var matchedItemsProperty = map[string]any{
	"type": "array",
	"items": map[string]any{
		"type":     "object",
		"required": []string{"chunk_id"},
		"properties": map[string]any{
			"chunk_id":         map[string]any{"type": "string"},
			"match_confidence": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
			"rationale":        map[string]any{"type": "string"},
		},
	},
}

var warningSignsSchema = schema.Schema{
	"type":     "object",
	"required": []string{"matched_signs", "risk_level", "recommendations"},
	"properties": map[string]any{
		"matched_signs": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []string{"warning_id", "warning_name"},
				"properties": map[string]any{
					"warning_id":       map[string]any{"type": "integer", "minimum": 1, "maximum": 10},
					"warning_name":     map[string]any{"type": "string"},
					"match_confidence": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
					"rationale":        map[string]any{"type": "string"},
				},
			},
		},
		"risk_level": map[string]any{
			"type": "string",
			"enum": []string{"low", "moderate", "high", "urgent"},
		},
		"recommendations": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
	},
}

var stagesSchema = schema.Schema{
	"type":     "object",
	"required": []string{"stage", "care_focus"},
	"properties": map[string]any{
		"stage": map[string]any{
			"type": "string",
			"enum": []string{"mild", "moderate", "severe"},
		},
		"evidence_fragments": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
		"care_focus": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
		"matched_items": matchedItemsProperty,
	},
}

var bpsdSchema = schema.Schema{
	"type":     "object",
	"required": []string{"bpsd_category", "severity", "interventions"},
	"properties": map[string]any{
		"bpsd_category": map[string]any{
			"type": "string",
			"enum": core.BPSDCategories,
		},
		"severity": map[string]any{
			"type": "string",
			"enum": []string{"mild", "moderate", "severe"},
		},
		"interventions": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
		"matched_items": matchedItemsProperty,
	},
}

var careTasksSchema = schema.Schema{
	"type":     "object",
	"required": []string{"task_category", "resources"},
	"properties": map[string]any{
		"task_category": map[string]any{
			"type": "string",
			"enum": []string{"emergency", "important", "routine"},
		},
		"priority_rank": map[string]any{"type": "integer", "minimum": 1},
		"resources": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
		"matched_items": matchedItemsProperty,
	},
}

func moduleSchema(moduleID core.ModuleID) schema.Schema {
	switch moduleID {
	case core.ModuleWarningSigns:
		return warningSignsSchema
	case core.ModuleStages:
		return stagesSchema
	case core.ModuleBPSD:
		return bpsdSchema
	case core.ModuleCareTasks:
		return careTasksSchema
	default:
		return nil
	}
}
