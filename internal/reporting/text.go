package reporting

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"

	"github.com/xkilldash9x/vulncorr/api/schemas"
)

// CorrelationSummary writes a plain text overview of the correlation run.
type CorrelationSummary struct{}

func (CorrelationSummary) Name() string { return "correlation-summary" }
func (CorrelationSummary) Path() string { return "correlation/reports/correlation-summary.txt" }
func (CorrelationSummary) Core() bool   { return true }

func (CorrelationSummary) Generate(w io.Writer, in *Input) error {
	if in == nil || in.Report == nil {
		return errNoReport
	}
	r := in.Report
	md := r.Metadata
	m := r.Metrics

	p := &printer{w: w}
	p.printf("Vulnerability Correlation Summary\n")
	p.printf("=================================\n\n")
	p.printf("Run ID:                  %s\n", md.RunID)
	p.printf("Scan timestamp:          %s\n", md.ScanTimestamp.UTC().Format(time.RFC3339))
	if md.DockerRepository != "" {
		p.printf("Docker repository:       %s\n", md.DockerRepository)
	}
	p.printf("Advanced mode:           %t\n\n", md.AdvancedMode)

	p.printf("Raw findings:            %d\n", md.TotalRawFindings)
	p.printf("Correlated groups:       %d\n", m.TotalGroups)
	p.printf("Duplicates removed:      %d\n", m.DuplicateFindingsRemoved)
	p.printf("Dedup ratio:             %s\n", percent(m.DedupRatio))
	p.printf("Correlation accuracy:    %s\n", percent(m.CorrelationAccuracy))
	p.printf("Multi-tool groups:       %d\n", m.MultiToolGroups)
	p.printf("Severity fallbacks:      %d\n\n", md.SeverityFallback)
	if p.err != nil {
		return p.err
	}

	if err := renderTable(w, []string{"Tool", "Version"}, toolRows(r.ToolInventory())); err != nil {
		return err
	}
	if len(md.InputsSkipped) > 0 {
		p.printf("\nSkipped inputs:\n")
		for _, s := range md.InputsSkipped {
			p.printf("  - %s (%s): %s\n", s.Path, s.Tool, s.Reason)
		}
	}

	p.printf("\nGroups by priority:\n")
	if p.err != nil {
		return p.err
	}
	return renderTable(w, groupHeader, groupRows(r.TopGroups(in.topN())))
}

// ExecutiveSummary writes a Markdown summary aimed at people who will not
// read the full report.
type ExecutiveSummary struct{}

func (ExecutiveSummary) Name() string { return "executive-summary" }
func (ExecutiveSummary) Path() string { return "reports/security-executive-summary.txt" }
func (ExecutiveSummary) Core() bool   { return false }

func (ExecutiveSummary) Generate(w io.Writer, in *Input) error {
	if in == nil || in.Report == nil {
		return errNoReport
	}
	r := in.Report
	risk := r.RiskCounts()

	p := &printer{w: w}
	p.printf("# Security Executive Summary\n\n")
	p.printf("Generated %s", r.Metadata.ScanTimestamp.UTC().Format(time.RFC3339))
	if r.Metadata.DockerRepository != "" {
		p.printf(" for `%s`", r.Metadata.DockerRepository)
	}
	p.printf(".\n\n")

	p.printf("## Overview\n\n")
	p.printf("- **%d** raw findings from %d tools were correlated into **%d** unique issues.\n",
		r.Metadata.TotalRawFindings, len(r.ToolInventory()), r.Metrics.TotalGroups)
	p.printf("- %d duplicate findings were removed (%s).\n",
		r.Metrics.DuplicateFindingsRemoved, percent(r.Metrics.DedupRatio))
	p.printf("- %d issues were confirmed by more than one tool.\n", r.Metrics.MultiToolGroups)
	p.printf("- Risk: **%d** high, %d medium, %d low.\n\n",
		risk[schemas.RiskHigh], risk[schemas.RiskMedium], risk[schemas.RiskLow])
	if risk[schemas.RiskHigh] > 0 {
		p.printf("> **Action required:** %d high-risk issues need remediation.\n\n", risk[schemas.RiskHigh])
	}

	p.printf("## Severity Breakdown\n\n")
	if p.err != nil {
		return p.err
	}
	sev := r.SeverityCounts()
	rows := make([][]string, 0, len(schemas.Severities))
	for _, s := range schemas.Severities {
		rows = append(rows, []string{string(s), strconv.Itoa(sev[s])})
	}
	if err := renderMarkdown(w, []string{"Severity", "Issues"}, rows); err != nil {
		return err
	}

	p.printf("\n## Findings by Category\n\n")
	if p.err != nil {
		return p.err
	}
	cat := r.CategoryCounts()
	rows = rows[:0]
	for _, c := range schemas.Categories {
		rows = append(rows, []string{string(c), strconv.Itoa(cat[c])})
	}
	if err := renderMarkdown(w, []string{"Category", "Issues"}, rows); err != nil {
		return err
	}

	top := r.TopGroups(in.topN())
	p.printf("\n## Top %d Issues by Priority\n\n", len(top))
	if p.err != nil {
		return p.err
	}
	if len(top) == 0 {
		p.printf("No issues found.\n")
		return p.err
	}
	return renderMarkdown(w, groupHeader, groupRows(top))
}

var groupHeader = []string{"#", "ID", "Severity", "Score", "Risk", "Tools", "Package", "Fix"}

func groupRows(groups []schemas.CorrelationGroup) [][]string {
	rows := make([][]string, 0, len(groups))
	for i := range groups {
		g := &groups[i]
		pkg := g.PackageName
		if pkg != "" && g.InstalledVersion != "" {
			pkg += "@" + g.InstalledVersion
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			g.CanonicalID,
			string(g.NormalizedSeverity),
			strconv.FormatFloat(g.PriorityScore, 'f', 2, 64),
			string(g.RiskLevel),
			joinTools(g.Tools),
			pkg,
			g.RecommendedFix,
		})
	}
	return rows
}

func toolRows(versions map[string]string) [][]string {
	rows := make([][]string, 0, len(versions))
	for _, tool := range sortedKeys(versions) {
		v := versions[tool]
		if v == "" {
			v = "unknown"
		}
		rows = append(rows, []string{tool, v})
	}
	return rows
}

func joinTools(tools []schemas.SourceTool) string {
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

func percent(ratio float64) string {
	return strconv.FormatFloat(ratio*100, 'f', 1, 64) + "%"
}

func renderTable(w io.Writer, header []string, rows [][]string) error {
	return render(tablewriter.NewTable(w), header, rows)
}

func renderMarkdown(w io.Writer, header []string, rows [][]string) error {
	return render(tablewriter.NewTable(w, tablewriter.WithRenderer(renderer.NewMarkdown())), header, rows)
}

func render(table *tablewriter.Table, header []string, rows [][]string) error {
	cells := make([]any, len(header))
	for i, h := range header {
		cells[i] = h
	}
	table.Header(cells...)
	if err := table.Bulk(rows); err != nil {
		return fmt.Errorf("failed to add table rows: %w", err)
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	return nil
}

// printer remembers the first write error so that long runs of output need
// a single check.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...interface{}) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}
