package schemas

import "time"

// RiskLevel buckets groups by priority score for reporting.
type RiskLevel string

const (
	RiskHigh   RiskLevel = "high_risk"
	RiskMedium RiskLevel = "medium_risk"
	RiskLow    RiskLevel = "low_risk"
)

// RiskLevels lists the buckets from most to least urgent.
var RiskLevels = []RiskLevel{RiskHigh, RiskMedium, RiskLow}

// CorrelationGroup is one underlying issue and every finding that reported it.
type CorrelationGroup struct {
	CanonicalID string `json:"canonical_id"`
	GroupKey    string `json:"group_key"`
	// Fingerprint is a stable hash of GroupKey, suitable for SARIF
	// partialFingerprints and cross-run comparison.
	Fingerprint string `json:"fingerprint"`

	Category         Category `json:"category"`
	Title            string   `json:"title"`
	PackageName      string   `json:"package_name,omitempty"`
	InstalledVersion string   `json:"installed_version,omitempty"`
	RecommendedFix   string   `json:"recommended_fix,omitempty"`

	NormalizedSeverity Severity  `json:"normalized_severity"`
	CVSSScore          *float64  `json:"cvss_score,omitempty"`
	PriorityScore      float64   `json:"priority_score"`
	RiskLevel          RiskLevel `json:"risk_level"`

	// Tools holds each distinct source tool once, in discovery order.
	Tools   []SourceTool           `json:"tools"`
	Members []VulnerabilityFinding `json:"members"`
}

// ToolCount is the number of distinct tools corroborating the group.
func (g *CorrelationGroup) ToolCount() int { return len(g.Tools) }

// CorrelationMetadata describes the run that produced a set of groups.
type CorrelationMetadata struct {
	RunID            string            `json:"run_id"`
	ScanTimestamp    time.Time         `json:"scan_timestamp"`
	GeneratorVersion string            `json:"generator_version"`
	ToolVersions     map[string]string `json:"tool_versions"`
	TotalRawFindings int               `json:"total_raw_findings"`
	InputsRead       []string          `json:"inputs_read"`
	InputsSkipped    []SkippedInput    `json:"inputs_skipped"`
	SeverityFallback int               `json:"severity_fallbacks"`
	DockerRepository string            `json:"docker_repository,omitempty"`
	AdvancedMode     bool              `json:"advanced_mode"`
}

// SkippedInput records an input file that contributed nothing and why.
type SkippedInput struct {
	Path   string     `json:"path"`
	Tool   SourceTool `json:"tool"`
	Reason string     `json:"reason"`
}

// CorrelationMetrics summarizes how much deduplication a run achieved.
type CorrelationMetrics struct {
	TotalGroups              int     `json:"total_groups"`
	DuplicateFindingsRemoved int     `json:"duplicate_findings_removed"`
	DedupRatio               float64 `json:"dedup_ratio"`
	// CorrelationAccuracy is 1 - removed/raw, and 1 for an empty run.
	CorrelationAccuracy float64 `json:"correlation_accuracy"`
	MultiToolGroups     int     `json:"multi_tool_groups"`
}

// CorrelationReport is the complete output of a correlation run.
type CorrelationReport struct {
	Metadata CorrelationMetadata `json:"correlation_metadata"`
	Metrics  CorrelationMetrics  `json:"correlation_metrics"`
	Groups   []CorrelationGroup  `json:"correlation_groups"`
}

// SeverityCounts tallies groups per normalized severity.
func (r *CorrelationReport) SeverityCounts() map[Severity]int {
	counts := make(map[Severity]int, len(Severities))
	for _, s := range Severities {
		counts[s] = 0
	}
	for i := range r.Groups {
		counts[r.Groups[i].NormalizedSeverity]++
	}
	return counts
}

// RiskCounts tallies groups per risk bucket.
func (r *CorrelationReport) RiskCounts() map[RiskLevel]int {
	counts := make(map[RiskLevel]int, len(RiskLevels))
	for _, l := range RiskLevels {
		counts[l] = 0
	}
	for i := range r.Groups {
		counts[r.Groups[i].RiskLevel]++
	}
	return counts
}

// CategoryCounts tallies groups per category.
func (r *CorrelationReport) CategoryCounts() map[Category]int {
	counts := make(map[Category]int, len(Categories))
	for _, c := range Categories {
		counts[c] = 0
	}
	for i := range r.Groups {
		counts[r.Groups[i].Category]++
	}
	return counts
}

// ToolInventory returns every tool that contributed to the report mapped to
// its recorded version, or "" when none is known. Tools that appear only as
// group members are included.
func (r *CorrelationReport) ToolInventory() map[string]string {
	tools := make(map[string]string, len(r.Metadata.ToolVersions))
	for tool, version := range r.Metadata.ToolVersions {
		tools[tool] = version
	}
	for i := range r.Groups {
		for _, t := range r.Groups[i].Tools {
			if _, ok := tools[string(t)]; !ok {
				tools[string(t)] = ""
			}
		}
	}
	return tools
}

// TopGroups returns at most n groups in their current (priority) order.
func (r *CorrelationReport) TopGroups(n int) []CorrelationGroup {
	if n < 0 || n >= len(r.Groups) {
		return r.Groups
	}
	return r.Groups[:n]
}
