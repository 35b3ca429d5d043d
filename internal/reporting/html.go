package reporting

import (
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/xkilldash9x/vulncorr/api/schemas"
)

// HTMLReport writes a single self-contained page with the run summary and
// the full group table.
type HTMLReport struct{}

func (HTMLReport) Name() string { return "html" }
func (HTMLReport) Path() string { return "reports/unified-security-report.html" }
func (HTMLReport) Core() bool   { return false }

type htmlCount struct {
	Label string
	Class string
	Count int
}

type htmlView struct {
	Report     *schemas.CorrelationReport
	Generated  string
	Severities []htmlCount
	Risks      []htmlCount
	Categories []htmlCount
	Tools      [][]string
}

func (HTMLReport) Generate(w io.Writer, in *Input) error {
	if in == nil || in.Report == nil {
		return errNoReport
	}
	r := in.Report

	view := htmlView{
		Report:    r,
		Generated: r.Metadata.ScanTimestamp.UTC().Format(time.RFC1123),
		Tools:     toolRows(r.ToolInventory()),
	}
	sev := r.SeverityCounts()
	for _, s := range schemas.Severities {
		view.Severities = append(view.Severities, htmlCount{Label: string(s), Class: severityClass(s), Count: sev[s]})
	}
	risk := r.RiskCounts()
	for _, l := range schemas.RiskLevels {
		view.Risks = append(view.Risks, htmlCount{Label: riskLabel(l), Class: string(l), Count: risk[l]})
	}
	cat := r.CategoryCounts()
	for _, c := range schemas.Categories {
		view.Categories = append(view.Categories, htmlCount{Label: string(c), Count: cat[c]})
	}

	if err := htmlTemplate.Execute(w, view); err != nil {
		return fmt.Errorf("failed to render HTML report: %w", err)
	}
	return nil
}

func severityClass(s schemas.Severity) string {
	return "sev-" + strings.ToLower(string(s))
}

func riskLabel(l schemas.RiskLevel) string {
	return strings.ReplaceAll(string(l), "_", " ")
}

var htmlTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"sevClass":  severityClass,
	"riskLabel": riskLabel,
	"tools":     joinTools,
	"percent":   percent,
	"score":     func(f float64) string { return fmt.Sprintf("%.2f", f) },
}).Parse(htmlSource))

const htmlSource = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Unified Security Report</title>
<style>
body { font-family: -apple-system, "Segoe UI", Helvetica, Arial, sans-serif; margin: 2rem; color: #1f2328; }
h1 { margin-bottom: 0.2rem; }
.meta { color: #59636e; margin-bottom: 1.5rem; }
.cards { display: flex; flex-wrap: wrap; gap: 0.75rem; margin-bottom: 1.5rem; }
.card { border: 1px solid #d1d9e0; border-radius: 6px; padding: 0.6rem 1rem; min-width: 7rem; }
.card .n { font-size: 1.6rem; font-weight: 600; }
table { border-collapse: collapse; width: 100%; margin-bottom: 1.5rem; }
th, td { border: 1px solid #d1d9e0; padding: 0.35rem 0.6rem; text-align: left; vertical-align: top; }
th { background: #f6f8fa; }
.sev-critical { color: #fff; background: #8b0000; }
.sev-high { color: #fff; background: #d1242f; }
.sev-medium { background: #fb8f44; }
.sev-low { background: #fff8c5; }
.sev-info { background: #ddf4ff; }
.high_risk { border-left: 4px solid #d1242f; }
.medium_risk { border-left: 4px solid #fb8f44; }
.low_risk { border-left: 4px solid #1f883d; }
details summary { cursor: pointer; }
</style>
</head>
<body>
<h1>Unified Security Report</h1>
<div class="meta">
Generated {{.Generated}}{{with .Report.Metadata.DockerRepository}} for <code>{{.}}</code>{{end}}
&middot; run <code>{{.Report.Metadata.RunID}}</code>
</div>

<h2>Summary</h2>
<div class="cards">
<div class="card"><div class="n">{{.Report.Metadata.TotalRawFindings}}</div>raw findings</div>
<div class="card"><div class="n">{{.Report.Metrics.TotalGroups}}</div>unique issues</div>
<div class="card"><div class="n">{{.Report.Metrics.DuplicateFindingsRemoved}}</div>duplicates removed ({{percent .Report.Metrics.DedupRatio}})</div>
<div class="card"><div class="n">{{.Report.Metrics.MultiToolGroups}}</div>multi-tool issues</div>
{{range .Risks}}<div class="card {{.Class}}"><div class="n">{{.Count}}</div>{{.Label}}</div>
{{end}}</div>

<table>
<tr>{{range .Severities}}<th class="{{.Class}}">{{.Label}}</th>{{end}}</tr>
<tr>{{range .Severities}}<td>{{.Count}}</td>{{end}}</tr>
</table>

<table>
<tr><th>Category</th><th>Issues</th></tr>
{{range .Categories}}<tr><td>{{.Label}}</td><td>{{.Count}}</td></tr>
{{end}}</table>

{{if .Tools}}<table>
<tr><th>Tool</th><th>Version</th></tr>
{{range .Tools}}<tr><td>{{index . 0}}</td><td>{{index . 1}}</td></tr>
{{end}}</table>
{{end}}
<h2>Issues</h2>
{{if not .Report.Groups}}<p>No issues found.</p>
{{else}}<table>
<tr><th>ID</th><th>Severity</th><th>Score</th><th>Risk</th><th>Tools</th><th>Package</th><th>Fix</th><th>Details</th></tr>
{{range .Report.Groups}}<tr class="{{.RiskLevel}}">
<td><code>{{.CanonicalID}}</code></td>
<td class="{{sevClass .NormalizedSeverity}}">{{.NormalizedSeverity}}</td>
<td>{{score .PriorityScore}}</td>
<td>{{riskLabel .RiskLevel}}</td>
<td>{{tools .Tools}}</td>
<td>{{.PackageName}}{{with .InstalledVersion}} {{.}}{{end}}</td>
<td>{{.RecommendedFix}}</td>
<td><details><summary>{{.Title}}</summary><ul>
{{range .Members}}<li>{{.SourceTool}}: <code>{{.ID}}</code> ({{.RawSeverity}}){{with .Location}} at {{.Path}}{{if .Line}}:{{.Line}}{{end}}{{end}}</li>
{{end}}</ul></details></td>
</tr>
{{end}}</table>
{{end}}</body>
</html>
`
