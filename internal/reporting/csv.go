package reporting

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xkilldash9x/vulncorr/api/schemas"
)

// CSVReport writes one row per raw finding, annotated with its group.
type CSVReport struct{}

func (CSVReport) Name() string { return "csv" }
func (CSVReport) Path() string { return "reports/csv/security-findings.csv" }
func (CSVReport) Core() bool   { return false }

var csvHeader = []string{
	"group_fingerprint",
	"canonical_id",
	"priority_score",
	"risk_level",
	"group_severity",
	"source_tool",
	"finding_id",
	"normalized_severity",
	"raw_severity",
	"cvss_score",
	"category",
	"package_name",
	"installed_version",
	"fixed_version",
	"location",
	"title",
}

func (CSVReport) Generate(w io.Writer, in *Input) error {
	if in == nil || in.Report == nil {
		return errNoReport
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for i := range in.Report.Groups {
		g := &in.Report.Groups[i]
		for j := range g.Members {
			if err := cw.Write(csvRow(g, &g.Members[j])); err != nil {
				return fmt.Errorf("failed to write CSV row: %w", err)
			}
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV output: %w", err)
	}
	return nil
}

func csvRow(g *schemas.CorrelationGroup, f *schemas.VulnerabilityFinding) []string {
	var cvss, location string
	if f.CVSSScore != nil {
		cvss = strconv.FormatFloat(*f.CVSSScore, 'f', -1, 64)
	}
	if f.Location != nil {
		location = f.Location.Path
		if f.Location.Line > 0 {
			location += ":" + strconv.Itoa(f.Location.Line)
		}
	}
	return []string{
		g.Fingerprint,
		cell(g.CanonicalID),
		strconv.FormatFloat(g.PriorityScore, 'f', 2, 64),
		string(g.RiskLevel),
		string(g.NormalizedSeverity),
		cell(string(f.SourceTool)),
		cell(f.ID),
		string(f.NormalizedSeverity),
		cell(f.RawSeverity),
		cvss,
		cell(string(f.Category)),
		cell(f.PackageName),
		cell(f.InstalledVersion),
		cell(f.FixedVersion),
		cell(location),
		cell(f.Title),
	}
}

// cell keeps spreadsheet applications from evaluating scanner-supplied text
// as a formula. Every column carrying scanner text goes through it.
func cell(s string) string {
	if s != "" && strings.ContainsRune("=+-@\t\r", rune(s[0])) {
		return "'" + s
	}
	return s
}
