package core

// ModuleID identifies one of the four analysis modules.
type ModuleID string

const (
	ModuleWarningSigns ModuleID = "M1"
	ModuleStages       ModuleID = "M2"
	ModuleBPSD         ModuleID = "M3"
	ModuleCareTasks    ModuleID = "M4"
)

// ModulePriority is the fixed tie-break order used by routing and by the
// composer when confidences are equal. Warning-sign triage is the usual
// entry path, so M1 leads.
var ModulePriority = []ModuleID{ModuleWarningSigns, ModuleBPSD, ModuleStages, ModuleCareTasks}

// AllModules lists the modules in id order.
var AllModules = []ModuleID{ModuleWarningSigns, ModuleStages, ModuleBPSD, ModuleCareTasks}

var moduleNames = map[ModuleID]string{
	ModuleWarningSigns: "失智症十大警訊",
	ModuleStages:       "病程階段分析",
	ModuleBPSD:         "行為心理症狀",
	ModuleCareTasks:    "照護任務導航",
}

var moduleRank = map[ModuleID]int{
	ModuleWarningSigns: 0,
	ModuleBPSD:         1,
	ModuleStages:       2,
	ModuleCareTasks:    3,
}

// IsValid reports whether the id belongs to the enumerated module set.
func (m ModuleID) IsValid() bool {
	_, ok := moduleNames[m]
	return ok
}

// DisplayName returns the module's localized display title.
func (m ModuleID) DisplayName() string {
	if name, ok := moduleNames[m]; ok {
		return name
	}
	return string(m)
}

// PriorityRank returns the tie-break rank; lower wins.
func (m ModuleID) PriorityRank() int {
	if rank, ok := moduleRank[m]; ok {
		return rank
	}
	return len(moduleRank)
}

// RiskLevel buckets M1/M3 analysis severity.
type RiskLevel string

const (
	RiskNA       RiskLevel = "n/a"
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
	RiskUrgent   RiskLevel = "urgent"
)

// Stage is the coarse M2 severity bucket.
type Stage string

const (
	StageMild     Stage = "mild"
	StageModerate Stage = "moderate"
	StageSevere   Stage = "severe"
)

// IsValid reports whether the stage is one of the enumerated buckets.
func (s Stage) IsValid() bool {
	switch s {
	case StageMild, StageModerate, StageSevere:
		return true
	}
	return false
}

// BPSDCategories is the curated M3 category set.
var BPSDCategories = []string{
	"delusion",
	"hallucination",
	"agitation/aggression",
	"depression/anxiety",
	"wandering/repetition",
	"sleep",
	"eating",
	"apathy",
	"disinhibition",
}

// IsBPSDCategory reports whether the category belongs to the curated set.
func IsBPSDCategory(category string) bool {
	for _, c := range BPSDCategories {
		if c == category {
			return true
		}
	}
	return false
}
