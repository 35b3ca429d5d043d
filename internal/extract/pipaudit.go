package extract

import (
	"strings"

	"github.com/xkilldash9x/vulncorr/api/schemas"
)

// -- pip-audit JSON schema (pip-audit -f json) --

type pipAuditReport struct {
	Dependencies []pipAuditDependency `json:"dependencies"`
}

type pipAuditDependency struct {
	Name       string         `json:"name"`
	Version    string         `json:"version"`
	SkipReason string         `json:"skip_reason"`
	Vulns      []pipAuditVuln `json:"vulns"`
}

type pipAuditVuln struct {
	ID          string   `json:"id"`
	FixVersions []string `json:"fix_versions"`
	Aliases     []string `json:"aliases"`
	Description string   `json:"description"`
}

// PipAuditExtractor reads pip-audit JSON. pip-audit reports no severity, so
// every finding carries an empty raw severity.
type PipAuditExtractor struct{}

func (PipAuditExtractor) Tool() schemas.SourceTool { return schemas.ToolPipAudit }

func (PipAuditExtractor) Extract(data []byte, source string) (*Result, error) {
	res := &Result{Tool: schemas.ToolPipAudit, Source: source, Findings: []schemas.VulnerabilityFinding{}}
	if isBlank(data) {
		return res, nil
	}

	var report pipAuditReport
	if firstByte(data) == '[' {
		// Releases before 2.0 emitted the dependency list at the top level.
		if err := decode(data, &report.Dependencies); err != nil {
			return nil, err
		}
	} else if err := decode(data, &report); err != nil {
		return nil, err
	}

	for _, dep := range report.Dependencies {
		for _, v := range dep.Vulns {
			f := schemas.VulnerabilityFinding{
				ID:               v.ID,
				SourceTool:       schemas.ToolPipAudit,
				Category:         schemas.CategoryVulnerability,
				PackageName:      dep.Name,
				InstalledVersion: dep.Version,
				FixedVersion:     strings.Join(v.FixVersions, ", "),
				Title:            summarize(nonEmpty(v.Description, v.ID), maxTitleLen),
				Description:      v.Description,
				Aliases:          appendUnique(nil, v.Aliases...),
				SourceFile:       source,
			}
			res.Findings = append(res.Findings, f)
		}
	}
	return res, nil
}
