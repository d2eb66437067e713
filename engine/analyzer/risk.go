package analyzer

import "github.com/careline-tw/careline/engine/core"

// riskFromConfidence maps aggregate match strength onto a risk level.
// Thresholds mirror the corpus confidence scale: urgent needs both a
// very strong match and broad coverage across signs.
func riskFromConfidence(confidence float64, matchCount int) core.RiskLevel {
	switch {
	case matchCount == 0:
		return core.RiskNA
	case confidence >= 0.85 && matchCount >= 3:
		return core.RiskUrgent
	case confidence >= 0.65:
		return core.RiskHigh
	case confidence >= 0.4 || matchCount >= 2:
		return core.RiskModerate
	default:
		return core.RiskLow
	}
}

// reconcileRisk trusts the model's assessment when it is a known level,
// falling back to the confidence-derived mapping otherwise.
func reconcileRisk(reported core.RiskLevel, confidence float64, matchCount int) core.RiskLevel {
	switch reported {
	case core.RiskLow, core.RiskModerate, core.RiskHigh, core.RiskUrgent:
		if matchCount == 0 {
			return core.RiskNA
		}
		return reported
	default:
		return riskFromConfidence(confidence, matchCount)
	}
}

func riskFromSeverity(severity string) core.RiskLevel {
	switch severity {
	case "mild":
		return core.RiskLow
	case "moderate":
		return core.RiskModerate
	case "severe":
		return core.RiskHigh
	default:
		return core.RiskNA
	}
}
