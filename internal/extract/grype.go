package extract

import (
	"strings"

	"github.com/xkilldash9x/vulncorr/api/schemas"
)

// -- Grype JSON schema (grype -o json) --

type grypeDocument struct {
	Matches    []grypeMatch    `json:"matches"`
	Descriptor grypeDescriptor `json:"descriptor"`
}

type grypeDescriptor struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type grypeMatch struct {
	Vulnerability          grypeVulnerability `json:"vulnerability"`
	RelatedVulnerabilities []grypeRelated     `json:"relatedVulnerabilities"`
	Artifact               grypeArtifact      `json:"artifact"`
}

type grypeVulnerability struct {
	ID          string      `json:"id"`
	DataSource  string      `json:"dataSource"`
	Namespace   string      `json:"namespace"`
	Severity    string      `json:"severity"`
	URLs        []string    `json:"urls"`
	Description string      `json:"description"`
	CVSS        []grypeCVSS `json:"cvss"`
	Fix         grypeFix    `json:"fix"`
}

type grypeRelated struct {
	ID          string      `json:"id"`
	Description string      `json:"description"`
	CVSS        []grypeCVSS `json:"cvss"`
}

type grypeCVSS struct {
	Version string `json:"version"`
	Metrics struct {
		BaseScore float64 `json:"baseScore"`
	} `json:"metrics"`
}

type grypeFix struct {
	Versions []string `json:"versions"`
	State    string   `json:"state"`
}

type grypeArtifact struct {
	Name      string          `json:"name"`
	Version   string          `json:"version"`
	Type      string          `json:"type"`
	Locations []grypeLocation `json:"locations"`
}

type grypeLocation struct {
	Path string `json:"path"`
}

// GrypeExtractor reads Grype JSON documents. Related vulnerabilities become
// aliases, which is how a GHSA match is tied back to its CVE.
type GrypeExtractor struct{}

func (GrypeExtractor) Tool() schemas.SourceTool { return schemas.ToolGrype }

func (GrypeExtractor) Extract(data []byte, source string) (*Result, error) {
	res := &Result{Tool: schemas.ToolGrype, Source: source, Findings: []schemas.VulnerabilityFinding{}}
	if isBlank(data) {
		return res, nil
	}

	var doc grypeDocument
	if err := decode(data, &doc); err != nil {
		return nil, err
	}
	res.Version = doc.Descriptor.Version

	for _, m := range doc.Matches {
		v := m.Vulnerability
		f := schemas.VulnerabilityFinding{
			ID:               v.ID,
			SourceTool:       schemas.ToolGrype,
			Category:         schemas.CategoryVulnerability,
			PackageName:      m.Artifact.Name,
			InstalledVersion: m.Artifact.Version,
			RawSeverity:      v.Severity,
			Description:      v.Description,
			CVSSScore:        grypeScore(v.CVSS),
			References:       appendUnique(nil, append([]string{v.DataSource}, v.URLs...)...),
			SourceFile:       source,
		}

		for _, rel := range m.RelatedVulnerabilities {
			if rel.ID != v.ID {
				f.Aliases = appendUnique(f.Aliases, rel.ID)
			}
			if f.CVSSScore == nil {
				f.CVSSScore = grypeScore(rel.CVSS)
			}
			if f.Description == "" {
				f.Description = rel.Description
			}
		}

		if v.Fix.State == "fixed" && len(v.Fix.Versions) > 0 {
			f.FixedVersion = strings.Join(v.Fix.Versions, ", ")
		}
		f.Title = summarize(nonEmpty(f.Description, v.ID), maxTitleLen)
		if len(m.Artifact.Locations) > 0 && m.Artifact.Locations[0].Path != "" {
			f.Location = &schemas.Location{Path: m.Artifact.Locations[0].Path}
		}
		res.Findings = append(res.Findings, f)
	}
	return res, nil
}

// grypeScore returns the highest base score, preferring CVSS v3 entries.
func grypeScore(entries []grypeCVSS) *float64 {
	var bestV3, bestOther float64
	for _, c := range entries {
		if strings.HasPrefix(c.Version, "3") {
			if c.Metrics.BaseScore > bestV3 {
				bestV3 = c.Metrics.BaseScore
			}
		} else if c.Metrics.BaseScore > bestOther {
			bestOther = c.Metrics.BaseScore
		}
	}
	switch {
	case bestV3 > 0:
		return schemas.Float64(bestV3)
	case bestOther > 0:
		return schemas.Float64(bestOther)
	default:
		return nil
	}
}
