// internal/reporting/sarif_reporter.go
package reporting

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xkilldash9x/vulncorr/api/schemas"
	"github.com/xkilldash9x/vulncorr/internal/extract"
	"github.com/xkilldash9x/vulncorr/internal/reporting/sarif"
)

// Constants for identifying this tool in synthesized SARIF runs.
const (
	ToolName    = "vulncorr"
	ToolInfoURI = "https://github.com/xkilldash9x/vulncorr"

	// FingerprintKey is the partialFingerprints entry carrying the group fingerprint.
	FingerprintKey = "vulncorrGroup/v1"
)

// SARIFReporter writes the unified SARIF report: every native SARIF run found
// among the scanner outputs, merged by driver name, plus one synthesized run
// for each source tool that produced findings but no SARIF of its own.
type SARIFReporter struct {
	version string
}

// NewSARIFReporter creates the unified SARIF generator. version is recorded
// on synthesized runs.
func NewSARIFReporter(version string) *SARIFReporter {
	return &SARIFReporter{version: version}
}

func (r *SARIFReporter) Name() string { return "sarif" }
func (r *SARIFReporter) Path() string { return "sarif/unified-security-report.sarif" }
func (r *SARIFReporter) Core() bool   { return false }

func (r *SARIFReporter) Generate(w io.Writer, in *Input) error {
	if in == nil || in.Report == nil {
		return errNoReport
	}
	return sarif.Encode(w, r.Build(in))
}

// Build assembles the unified log. The result holds exactly one run per
// distinct tool.
func (r *SARIFReporter) Build(in *Input) *sarif.Log {
	log := sarif.Merge(in.NativeSARIF...)

	native := make(map[schemas.SourceTool]bool, len(log.Runs))
	for _, run := range log.Runs {
		native[extract.ToolFromDriver(run.DriverName())] = true
	}

	var (
		order []schemas.SourceTool
		runs  = make(map[schemas.SourceTool]*runBuilder)
	)
	for i := range in.Report.Groups {
		g := &in.Report.Groups[i]
		for j := range g.Members {
			f := &g.Members[j]
			if native[f.SourceTool] {
				continue
			}
			b, ok := runs[f.SourceTool]
			if !ok {
				b = r.newRunBuilder(f.SourceTool, in.Report.Metadata.ToolVersions[string(f.SourceTool)])
				runs[f.SourceTool] = b
				order = append(order, f.SourceTool)
			}
			b.add(g, f)
		}
	}

	for _, tool := range order {
		log.Runs = append(log.Runs, runs[tool].run)
	}
	return log
}

// runBuilder accumulates results and rule definitions for one synthesized run.
type runBuilder struct {
	run       *sarif.Run
	ruleIndex map[string]int
}

func (r *SARIFReporter) newRunBuilder(tool schemas.SourceTool, version string) *runBuilder {
	run := sarif.NewRun(string(tool), version, "")
	run.Tool.Driver.Rules = []*sarif.ReportingDescriptor{}
	run.Properties = sarif.PropertyBag{
		"convertedBy":      ToolName,
		"converterVersion": r.version,
		"converterUri":     ToolInfoURI,
	}
	return &runBuilder{run: run, ruleIndex: make(map[string]int)}
}

func (b *runBuilder) add(g *schemas.CorrelationGroup, f *schemas.VulnerabilityFinding) {
	ruleID := sanitizeRuleID(f.ID)
	idx := b.ensureRule(ruleID, f)

	props := sarif.PropertyBag{
		"canonicalId":        g.CanonicalID,
		"normalizedSeverity": string(f.NormalizedSeverity),
		"groupSeverity":      string(g.NormalizedSeverity),
		"priorityScore":      g.PriorityScore,
		"riskLevel":          string(g.RiskLevel),
		"category":           string(f.Category),
		"correlatedTools":    g.Tools,
	}
	if f.RawSeverity != "" {
		props["rawSeverity"] = f.RawSeverity
	}
	if f.PackageName != "" {
		props["packageName"] = f.PackageName
		props["installedVersion"] = f.InstalledVersion
	}
	if f.FixedVersion != "" {
		props["fixedVersion"] = f.FixedVersion
	}
	if f.CVSSScore != nil {
		props["cvssScore"] = *f.CVSSScore
	}

	b.run.Results = append(b.run.Results, &sarif.Result{
		RuleID:              ruleID,
		RuleIndex:           sarif.Int(idx),
		Message:             &sarif.Message{Text: sarif.String(resultMessage(f))},
		Level:               mapSeverityToSARIFLevel(f.NormalizedSeverity),
		Locations:           createLocations(f),
		PartialFingerprints: map[string]string{FingerprintKey: g.Fingerprint},
		Properties:          props,
	})
}

// ensureRule registers a rule for ruleID on first use and returns its index.
func (b *runBuilder) ensureRule(ruleID string, f *schemas.VulnerabilityFinding) int {
	if idx, ok := b.ruleIndex[ruleID]; ok {
		return idx
	}

	title := firstNonEmpty(f.Title, f.ID)
	description := firstNonEmpty(f.Description, title)
	markdownHelp := fmt.Sprintf("**%s**\n\n%s", title, f.Description)
	if f.FixedVersion != "" {
		markdownHelp += fmt.Sprintf("\n\n**Fixed in:** %s", f.FixedVersion)
	}

	props := sarif.PropertyBag{
		"tags": []string{"security", string(f.Category)},
	}
	if len(f.CWE) > 0 {
		props["cwe"] = f.CWE
	}
	if f.CVSSScore != nil {
		// GitHub code scanning ranks alerts by this property.
		props["security-severity"] = strconv.FormatFloat(*f.CVSSScore, 'f', 1, 64)
	}

	rule := &sarif.ReportingDescriptor{
		ID:                   ruleID,
		Name:                 sarif.String(title),
		ShortDescription:     &sarif.MultiformatMessageString{Text: sarif.String(title)},
		FullDescription:      &sarif.MultiformatMessageString{Text: sarif.String(description)},
		Help:                 &sarif.MultiformatMessageString{Text: sarif.String(description), Markdown: sarif.String(markdownHelp)},
		DefaultConfiguration: &sarif.Configuration{Level: mapSeverityToSARIFLevel(f.NormalizedSeverity)},
		Properties:           props,
	}
	if len(f.References) > 0 {
		rule.HelpURI = sarif.String(f.References[0])
	}

	driver := b.run.Tool.Driver
	driver.Rules = append(driver.Rules, rule)
	idx := len(driver.Rules) - 1
	b.ruleIndex[ruleID] = idx
	return idx
}

func resultMessage(f *schemas.VulnerabilityFinding) string {
	msg := firstNonEmpty(f.Title, f.Description, f.ID)
	if f.PackageName == "" {
		return msg
	}
	pkg := f.PackageName
	if f.InstalledVersion != "" {
		pkg += " " + f.InstalledVersion
	}
	return fmt.Sprintf("%s (%s)", msg, pkg)
}

// createLocations points at the finding's file, or at the scanner output it
// came from when the finding has no location of its own.
func createLocations(f *schemas.VulnerabilityFinding) []*sarif.Location {
	uri := f.SourceFile
	var region *sarif.Region
	if f.Location != nil && f.Location.Path != "" {
		uri = f.Location.Path
		if f.Location.Line > 0 {
			region = &sarif.Region{StartLine: sarif.Int(f.Location.Line)}
		}
	}
	if uri == "" {
		return nil
	}
	return []*sarif.Location{{
		PhysicalLocation: &sarif.PhysicalLocation{
			ArtifactLocation: &sarif.ArtifactLocation{URI: sarif.String(uri)},
			Region:           region,
		},
	}}
}

// sanitizeRuleID replaces whitespace so that tool IDs are usable as rule IDs.
func sanitizeRuleID(id string) string {
	id = strings.Join(strings.Fields(id), "-")
	if id == "" {
		return "UNNAMED-FINDING"
	}
	return id
}

// mapSeverityToSARIFLevel converts a normalized severity to a SARIF level.
func mapSeverityToSARIFLevel(severity schemas.Severity) sarif.Level {
	switch severity {
	case schemas.SeverityCritical, schemas.SeverityHigh:
		return sarif.LevelError
	case schemas.SeverityMedium:
		return sarif.LevelWarning
	case schemas.SeverityLow:
		return sarif.LevelNote
	default:
		return sarif.LevelNone
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
