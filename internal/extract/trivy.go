package extract

import (
	"github.com/xkilldash9x/vulncorr/api/schemas"
)

// -- Trivy JSON schema (trivy image|fs --format json) --

type trivyReport struct {
	SchemaVersion int           `json:"SchemaVersion"`
	ArtifactName  string        `json:"ArtifactName"`
	Trivy         *trivyVersion `json:"Trivy"`
	Results       []trivyResult `json:"Results"`
}

type trivyVersion struct {
	Version string `json:"Version"`
}

type trivyResult struct {
	Target            string                  `json:"Target"`
	Class             string                  `json:"Class"`
	Type              string                  `json:"Type"`
	Vulnerabilities   []trivyVulnerability    `json:"Vulnerabilities"`
	Misconfigurations []trivyMisconfiguration `json:"Misconfigurations"`
}

type trivyVulnerability struct {
	VulnerabilityID  string               `json:"VulnerabilityID"`
	PkgName          string               `json:"PkgName"`
	PkgPath          string               `json:"PkgPath"`
	InstalledVersion string               `json:"InstalledVersion"`
	FixedVersion     string               `json:"FixedVersion"`
	Severity         string               `json:"Severity"`
	Title            string               `json:"Title"`
	Description      string               `json:"Description"`
	PrimaryURL       string               `json:"PrimaryURL"`
	References       []string             `json:"References"`
	CweIDs           []string             `json:"CweIDs"`
	CVSS             map[string]trivyCVSS `json:"CVSS"`
}

type trivyCVSS struct {
	V2Score float64 `json:"V2Score"`
	V3Score float64 `json:"V3Score"`
}

type trivyMisconfiguration struct {
	Type          string             `json:"Type"`
	ID            string             `json:"ID"`
	AVDID         string             `json:"AVDID"`
	Title         string             `json:"Title"`
	Description   string             `json:"Description"`
	Message       string             `json:"Message"`
	Resolution    string             `json:"Resolution"`
	Severity      string             `json:"Severity"`
	PrimaryURL    string             `json:"PrimaryURL"`
	References    []string           `json:"References"`
	Status        string             `json:"Status"`
	CauseMetadata trivyCauseMetadata `json:"CauseMetadata"`
}

type trivyCauseMetadata struct {
	Resource  string `json:"Resource"`
	StartLine int    `json:"StartLine"`
}

// TrivyExtractor reads Trivy JSON reports. Both the current object form and
// the pre-0.20 bare array of results are accepted. Misconfigurations with a
// PASS status are not findings and are skipped.
type TrivyExtractor struct{}

func (TrivyExtractor) Tool() schemas.SourceTool { return schemas.ToolTrivy }

func (TrivyExtractor) Extract(data []byte, source string) (*Result, error) {
	res := &Result{Tool: schemas.ToolTrivy, Source: source, Findings: []schemas.VulnerabilityFinding{}}
	if isBlank(data) {
		return res, nil
	}

	var report trivyReport
	if firstByte(data) == '[' {
		if err := decode(data, &report.Results); err != nil {
			return nil, err
		}
	} else if err := decode(data, &report); err != nil {
		return nil, err
	}
	if report.Trivy != nil {
		res.Version = report.Trivy.Version
	}

	for _, r := range report.Results {
		for _, v := range r.Vulnerabilities {
			res.Findings = append(res.Findings, trivyVulnerabilityFinding(r, v, source))
		}
		for _, m := range r.Misconfigurations {
			if m.Status == "PASS" {
				continue
			}
			res.Findings = append(res.Findings, trivyMisconfigFinding(r, m, source))
		}
	}
	return res, nil
}

func trivyVulnerabilityFinding(r trivyResult, v trivyVulnerability, source string) schemas.VulnerabilityFinding {
	f := schemas.VulnerabilityFinding{
		ID:               v.VulnerabilityID,
		SourceTool:       schemas.ToolTrivy,
		Category:         schemas.CategoryVulnerability,
		PackageName:      v.PkgName,
		InstalledVersion: v.InstalledVersion,
		FixedVersion:     v.FixedVersion,
		RawSeverity:      v.Severity,
		Title:            summarize(nonEmpty(v.Title, v.Description, v.VulnerabilityID), maxTitleLen),
		Description:      v.Description,
		CVSSScore:        trivyScore(v.CVSS),
		CWE:              v.CweIDs,
		References:       appendUnique(nil, append([]string{v.PrimaryURL}, v.References...)...),
		SourceFile:       source,
	}
	if path := nonEmpty(v.PkgPath, r.Target); path != "" {
		f.Location = &schemas.Location{Path: path}
	}
	return f
}

func trivyMisconfigFinding(r trivyResult, m trivyMisconfiguration, source string) schemas.VulnerabilityFinding {
	f := schemas.VulnerabilityFinding{
		ID:          nonEmpty(m.ID, m.AVDID),
		SourceTool:  schemas.ToolTrivy,
		Category:    schemas.CategoryConfiguration,
		RawSeverity: m.Severity,
		Title:       summarize(nonEmpty(m.Title, m.Message, m.ID), maxTitleLen),
		Description: nonEmpty(m.Message, m.Description),
		References:  appendUnique(nil, append([]string{m.PrimaryURL}, m.References...)...),
		SourceFile:  source,
	}
	if r.Target != "" {
		f.Location = &schemas.Location{Path: r.Target, Line: m.CauseMetadata.StartLine}
	}
	return f
}

// trivyScore prefers the NVD v3 score and otherwise takes the highest v3
// score of any vendor, then the highest v2 score.
func trivyScore(scores map[string]trivyCVSS) *float64 {
	if nvd, ok := scores["nvd"]; ok && nvd.V3Score > 0 {
		return schemas.Float64(nvd.V3Score)
	}
	var bestV3, bestV2 float64
	for _, s := range scores {
		if s.V3Score > bestV3 {
			bestV3 = s.V3Score
		}
		if s.V2Score > bestV2 {
			bestV2 = s.V2Score
		}
	}
	switch {
	case bestV3 > 0:
		return schemas.Float64(bestV3)
	case bestV2 > 0:
		return schemas.Float64(bestV2)
	default:
		return nil
	}
}
