package reporting

import (
	"errors"
	"fmt"
	"io"
	"time"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/vulncorr/api/schemas"
)

// encoding matches encoding/json output, including sorted map keys.
var encoding = json.ConfigCompatibleWithStandardLibrary

var errNoReport = errors.New("no correlation report to render")

func encodeJSON(w io.Writer, v interface{}) error {
	enc := encoding.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON output: %w", err)
	}
	return nil
}

// CorrelationJSON writes the full correlation report.
type CorrelationJSON struct{}

func (CorrelationJSON) Name() string { return "correlation-json" }
func (CorrelationJSON) Path() string { return "correlation/vulnerability-correlation-report.json" }
func (CorrelationJSON) Core() bool   { return true }

func (CorrelationJSON) Generate(w io.Writer, in *Input) error {
	if in == nil || in.Report == nil {
		return errNoReport
	}
	return encodeJSON(w, in.Report)
}

// groupSummary is the compact form of a group used by the smaller JSON reports.
type groupSummary struct {
	Fingerprint      string               `json:"fingerprint"`
	CanonicalID      string               `json:"canonical_id"`
	Title            string               `json:"title"`
	Category         schemas.Category     `json:"category"`
	Severity         schemas.Severity     `json:"severity"`
	PriorityScore    float64              `json:"priority_score"`
	RiskLevel        schemas.RiskLevel    `json:"risk_level"`
	Tools            []schemas.SourceTool `json:"tools"`
	PackageName      string               `json:"package_name,omitempty"`
	InstalledVersion string               `json:"installed_version,omitempty"`
	RecommendedFix   string               `json:"recommended_fix,omitempty"`
	Findings         int                  `json:"findings"`
}

func summarize(groups []schemas.CorrelationGroup) []groupSummary {
	out := make([]groupSummary, 0, len(groups))
	for i := range groups {
		g := &groups[i]
		out = append(out, groupSummary{
			Fingerprint:      g.Fingerprint,
			CanonicalID:      g.CanonicalID,
			Title:            g.Title,
			Category:         g.Category,
			Severity:         g.NormalizedSeverity,
			PriorityScore:    g.PriorityScore,
			RiskLevel:        g.RiskLevel,
			Tools:            g.Tools,
			PackageName:      g.PackageName,
			InstalledVersion: g.InstalledVersion,
			RecommendedFix:   g.RecommendedFix,
			Findings:         len(g.Members),
		})
	}
	return out
}

// RiskSummary writes risk bucket counts and the top groups.
type RiskSummary struct{}

type riskSummaryDoc struct {
	RunID          string                    `json:"run_id"`
	ScanTimestamp  time.Time                 `json:"scan_timestamp"`
	TotalGroups    int                       `json:"total_groups"`
	RiskCounts     map[schemas.RiskLevel]int `json:"risk_counts"`
	SeverityCounts map[schemas.Severity]int  `json:"severity_counts"`
	TopRisks       []groupSummary            `json:"top_risks"`
}

func (RiskSummary) Name() string { return "risk-summary" }
func (RiskSummary) Path() string { return "correlation/reports/risk-summary.json" }
func (RiskSummary) Core() bool   { return false }

func (RiskSummary) Generate(w io.Writer, in *Input) error {
	if in == nil || in.Report == nil {
		return errNoReport
	}
	r := in.Report
	return encodeJSON(w, riskSummaryDoc{
		RunID:          r.Metadata.RunID,
		ScanTimestamp:  r.Metadata.ScanTimestamp,
		TotalGroups:    len(r.Groups),
		RiskCounts:     r.RiskCounts(),
		SeverityCounts: r.SeverityCounts(),
		TopRisks:       summarize(r.TopGroups(in.topN())),
	})
}

// APIResponse writes a compact document for dashboards and other consumers
// that poll a single JSON file.
type APIResponse struct{}

const (
	StatusClean          = "clean"
	StatusActionRequired = "action_required"
)

type apiSummary struct {
	TotalRawFindings         int                      `json:"total_raw_findings"`
	TotalGroups              int                      `json:"total_groups"`
	DuplicateFindingsRemoved int                      `json:"duplicate_findings_removed"`
	DedupRatio               float64                  `json:"dedup_ratio"`
	CorrelationAccuracy      float64                  `json:"correlation_accuracy"`
	MultiToolGroups          int                      `json:"multi_tool_groups"`
	SeverityCounts           map[schemas.Severity]int `json:"severity_counts"`
	Categories               map[schemas.Category]int `json:"categories"`
	ToolVersions             map[string]string        `json:"tool_versions"`
	ScanTimestamp            time.Time                `json:"scan_timestamp"`
	RunID                    string                   `json:"run_id"`
}

type apiDoc struct {
	Status  string                    `json:"status"`
	Summary apiSummary                `json:"summary"`
	Risk    map[schemas.RiskLevel]int `json:"risk"`
	Groups  []groupSummary            `json:"groups"`
}

func (APIResponse) Name() string { return "api-json" }
func (APIResponse) Path() string { return "reports/json/security-api-response.json" }
func (APIResponse) Core() bool   { return false }

func (APIResponse) Generate(w io.Writer, in *Input) error {
	if in == nil || in.Report == nil {
		return errNoReport
	}
	r := in.Report
	risk := r.RiskCounts()

	status := StatusClean
	if risk[schemas.RiskHigh] > 0 {
		status = StatusActionRequired
	}

	return encodeJSON(w, apiDoc{
		Status: status,
		Summary: apiSummary{
			TotalRawFindings:         r.Metadata.TotalRawFindings,
			TotalGroups:              r.Metrics.TotalGroups,
			DuplicateFindingsRemoved: r.Metrics.DuplicateFindingsRemoved,
			DedupRatio:               r.Metrics.DedupRatio,
			CorrelationAccuracy:      r.Metrics.CorrelationAccuracy,
			MultiToolGroups:          r.Metrics.MultiToolGroups,
			SeverityCounts:           r.SeverityCounts(),
			Categories:               r.CategoryCounts(),
			ToolVersions:             r.Metadata.ToolVersions,
			ScanTimestamp:            r.Metadata.ScanTimestamp,
			RunID:                    r.Metadata.RunID,
		},
		Risk:   risk,
		Groups: summarize(r.Groups),
	})
}
