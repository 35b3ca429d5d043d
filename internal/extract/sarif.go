package extract

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xkilldash9x/vulncorr/api/schemas"
	"github.com/xkilldash9x/vulncorr/internal/reporting/sarif"
)

// ToolFromDriver maps a SARIF driver name onto a SourceTool: the first word
// of the name, lower-cased ("Semgrep OSS" -> semgrep, "Trivy" -> trivy).
func ToolFromDriver(name string) schemas.SourceTool {
	fields := strings.Fields(strings.ToLower(name))
	if len(fields) == 0 {
		return ""
	}
	return schemas.SourceTool(fields[0])
}

// ExtractSARIF decodes a native SARIF document and converts every run into
// a Result. The decoded log is returned as well so that it can be merged
// into the unified SARIF report untouched.
func ExtractSARIF(data []byte, source string) (*sarif.Log, []*Result, error) {
	log, err := sarif.Decode(data)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}

	results := make([]*Result, 0, len(log.Runs))
	for _, run := range log.Runs {
		tool := ToolFromDriver(run.DriverName())
		res := &Result{
			Tool:     tool,
			Version:  nonEmpty(sarif.Deref(run.Tool.Driver.Version), sarif.Deref(run.Tool.Driver.SemanticVersion)),
			Source:   source,
			Findings: make([]schemas.VulnerabilityFinding, 0, len(run.Results)),
		}
		for _, r := range run.Results {
			if r == nil {
				continue
			}
			res.Findings = append(res.Findings, sarifFinding(run, r, tool, source))
		}
		results = append(results, res)
	}
	return log, results, nil
}

func sarifFinding(run *sarif.Run, r *sarif.Result, tool schemas.SourceTool, source string) schemas.VulnerabilityFinding {
	rule := run.RuleFor(r)
	ruleID := r.RuleID
	if ruleID == "" && rule != nil {
		ruleID = rule.ID
	}

	level := r.Level
	if level == "" && rule != nil && rule.DefaultConfiguration != nil {
		level = rule.DefaultConfiguration.Level
	}
	if level == "" {
		// SARIF 2.1.0 §3.27.10: absent level means warning.
		level = sarif.LevelWarning
	}

	var message string
	if r.Message != nil {
		message = sarif.Deref(r.Message.Text)
	}

	f := schemas.VulnerabilityFinding{
		ID:          ruleID,
		SourceTool:  tool,
		RawSeverity: string(level),
		Description: message,
		SourceFile:  source,
	}

	var ruleTitle string
	if rule != nil {
		if rule.ShortDescription != nil {
			ruleTitle = sarif.Deref(rule.ShortDescription.Text)
		}
		f.CVSSScore = securitySeverity(rule.Properties)
		f.References = appendUnique(f.References, sarif.Deref(rule.HelpURI))
	}
	if f.CVSSScore == nil {
		f.CVSSScore = securitySeverity(r.Properties)
	}
	f.Title = summarize(nonEmpty(ruleTitle, message, ruleID), maxTitleLen)

	for _, loc := range r.Locations {
		if loc == nil || loc.PhysicalLocation == nil || loc.PhysicalLocation.ArtifactLocation == nil {
			continue
		}
		l := &schemas.Location{Path: sarif.Deref(loc.PhysicalLocation.ArtifactLocation.URI)}
		if region := loc.PhysicalLocation.Region; region != nil && region.StartLine != nil {
			l.Line = *region.StartLine
		}
		if l.Path != "" {
			f.Location = l
			break
		}
	}
	return f
}

// securitySeverity reads the GitHub "security-severity" property, a CVSS-like
// score that may be encoded as a string or a number.
func securitySeverity(props sarif.PropertyBag) *float64 {
	raw, ok := props["security-severity"]
	if !ok {
		return nil
	}
	var score float64
	switch v := raw.(type) {
	case float64:
		score = v
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil
		}
		score = parsed
	default:
		return nil
	}
	if score < 0 || score > 10 {
		return nil
	}
	return schemas.Float64(score)
}
