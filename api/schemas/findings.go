package schemas

import "strings"

// -- Severity --

// Severity is the normalized five-level severity scale every finding is
// mapped onto, regardless of the vocabulary its source tool uses.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityInfo     Severity = "INFO"
)

// Severities lists the scale from most to least severe.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo}

// Rank orders severities; higher is worse. Unknown values rank below INFO.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 5
	case SeverityHigh:
		return 4
	case SeverityMedium:
		return 3
	case SeverityLow:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// Valid reports whether s is one of the five normalized levels.
func (s Severity) Valid() bool { return s.Rank() > 0 }

// AtLeast reports whether s is as severe as or more severe than other.
func (s Severity) AtLeast(other Severity) bool { return s.Rank() >= other.Rank() }

// ParseSeverity accepts one of the normalized level names in any case.
// It does not understand tool vocabularies; use the results normalizer for that.
func ParseSeverity(s string) (Severity, bool) {
	sev := Severity(strings.ToUpper(strings.TrimSpace(s)))
	return sev, sev.Valid()
}

// MaxSeverity returns the more severe of a and b.
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// -- Source tools and categories --

// SourceTool names the scanner that produced a finding. Tools that only
// contribute native SARIF carry their SARIF driver name.
type SourceTool string

const (
	ToolTrivy    SourceTool = "trivy"
	ToolGrype    SourceTool = "grype"
	ToolSafety   SourceTool = "safety"
	ToolPipAudit SourceTool = "pip-audit"
	ToolHadolint SourceTool = "hadolint"
	ToolBandit   SourceTool = "bandit"
)

// KnownTools lists the tools with a dedicated JSON extractor.
var KnownTools = []SourceTool{ToolTrivy, ToolGrype, ToolSafety, ToolPipAudit, ToolHadolint, ToolBandit}

// Category separates dependency vulnerabilities from configuration lint and
// source code issues so that reports can bucket package-less findings.
type Category string

const (
	CategoryVulnerability Category = "vulnerability"
	CategoryConfiguration Category = "configuration/lint"
	CategoryCode          Category = "code"
)

// Categories lists every category in report order.
var Categories = []Category{CategoryVulnerability, CategoryConfiguration, CategoryCode}

// -- Findings --

// Location points at a file and, optionally, a 1-based line within it.
type Location struct {
	Path string `json:"path"`
	Line int    `json:"line,omitempty"`
}

// VulnerabilityFinding is a single tool-reported issue after extraction.
// ID is only unique within its source tool.
type VulnerabilityFinding struct {
	ID         string     `json:"id"`
	SourceTool SourceTool `json:"source_tool"`
	Category   Category   `json:"category"`

	PackageName      string `json:"package_name,omitempty"`
	InstalledVersion string `json:"installed_version,omitempty"`
	FixedVersion     string `json:"fixed_version,omitempty"`

	// RawSeverity is the verbatim tool value; it may be empty.
	RawSeverity        string   `json:"raw_severity"`
	NormalizedSeverity Severity `json:"normalized_severity"`

	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Location    *Location `json:"location,omitempty"`

	// CVSSScore is nil when the tool reported no score; a reported 0.0 is kept.
	CVSSScore *float64 `json:"cvss_score,omitempty"`

	Aliases    []string `json:"aliases,omitempty"`
	CWE        []string `json:"cwe,omitempty"`
	References []string `json:"references,omitempty"`

	// SourceFile is the scanner output file the finding was read from.
	SourceFile string `json:"source_file,omitempty"`
}

// Float64 returns a pointer to v, for populating optional scores.
func Float64(v float64) *float64 { return &v }
