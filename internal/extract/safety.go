package extract

import (
	"fmt"
	"strings"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/vulncorr/api/schemas"
)

// -- Safety JSON schemas --
//
// safety 2.x:   {"report_meta": {...}, "vulnerabilities": [{...}]}
// flat form:    [{"vulnerability_id": ..., "package": ...}]
// safety 1.x:   [["name", "spec", "version", "advisory", "id"]]

type safetyReport struct {
	ReportMeta      safetyReportMeta      `json:"report_meta"`
	Vulnerabilities []safetyVulnerability `json:"vulnerabilities"`
}

type safetyReportMeta struct {
	SafetyVersion string `json:"safety_version"`
}

type safetyVulnerability struct {
	VulnerabilityID  string          `json:"vulnerability_id"`
	PackageName      string          `json:"package_name"`
	Package          string          `json:"package"`
	AnalyzedVersion  string          `json:"analyzed_version"`
	InstalledVersion string          `json:"installed_version"`
	Version          string          `json:"version"`
	Advisory         string          `json:"advisory"`
	CVE              string          `json:"CVE"`
	MoreInfoURL      string          `json:"more_info_url"`
	FixedVersions    []string        `json:"fixed_versions"`
	Severity         json.RawMessage `json:"severity"`
}

type safetySeverityObject struct {
	CVSSv3 *safetyCVSS `json:"cvssv3"`
	CVSSv2 *safetyCVSS `json:"cvssv2"`
}

type safetyCVSS struct {
	BaseScore    float64 `json:"base_score"`
	BaseSeverity string  `json:"base_severity"`
}

// SafetyExtractor reads the JSON output of `safety check --json` in all
// three shapes Safety has produced over time.
type SafetyExtractor struct{}

func (SafetyExtractor) Tool() schemas.SourceTool { return schemas.ToolSafety }

func (SafetyExtractor) Extract(data []byte, source string) (*Result, error) {
	res := &Result{Tool: schemas.ToolSafety, Source: source, Findings: []schemas.VulnerabilityFinding{}}
	if isBlank(data) {
		return res, nil
	}

	var vulns []safetyVulnerability
	switch firstByte(data) {
	case '{':
		var report safetyReport
		if err := decode(data, &report); err != nil {
			return nil, err
		}
		res.Version = report.ReportMeta.SafetyVersion
		vulns = report.Vulnerabilities
	case '[':
		var entries []json.RawMessage
		if err := decode(data, &entries); err != nil {
			return nil, err
		}
		for i, raw := range entries {
			v, err := decodeSafetyEntry(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: entry %d: %v", ErrMalformedInput, i, err)
			}
			vulns = append(vulns, v)
		}
	default:
		return nil, fmt.Errorf("%w: expected a JSON object or array", ErrMalformedInput)
	}

	for _, v := range vulns {
		rawSeverity, score := parseSafetySeverity(v.Severity)
		f := schemas.VulnerabilityFinding{
			ID:               v.VulnerabilityID,
			SourceTool:       schemas.ToolSafety,
			Category:         schemas.CategoryVulnerability,
			PackageName:      nonEmpty(v.PackageName, v.Package),
			InstalledVersion: nonEmpty(v.AnalyzedVersion, v.InstalledVersion, v.Version),
			RawSeverity:      rawSeverity,
			Title:            summarize(nonEmpty(v.Advisory, v.VulnerabilityID), maxTitleLen),
			Description:      v.Advisory,
			CVSSScore:        score,
			Aliases:          appendUnique(nil, splitList(v.CVE)...),
			References:       appendUnique(nil, v.MoreInfoURL),
			SourceFile:       source,
		}
		if len(v.FixedVersions) > 0 {
			f.FixedVersion = strings.Join(v.FixedVersions, ", ")
		}
		res.Findings = append(res.Findings, f)
	}
	return res, nil
}

// decodeSafetyEntry decodes one element of a top-level array, which is an
// object in the flat form and a positional list in the 1.x form.
func decodeSafetyEntry(raw json.RawMessage) (safetyVulnerability, error) {
	var v safetyVulnerability
	switch firstByte(raw) {
	case '{':
		err := json.Unmarshal(raw, &v)
		return v, err
	case '[':
		var fields []interface{}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return v, err
		}
		if len(fields) < 5 {
			return v, fmt.Errorf("legacy entry has %d fields, want 5", len(fields))
		}
		v.Package = fieldString(fields[0])
		v.Version = fieldString(fields[2])
		v.Advisory = fieldString(fields[3])
		v.VulnerabilityID = fieldString(fields[4])
		return v, nil
	default:
		return v, fmt.Errorf("unexpected entry %q", string(raw))
	}
}

func fieldString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return fmt.Sprintf("%.0f", t)
	default:
		return fmt.Sprint(t)
	}
}

// parseSafetySeverity handles a severity that is absent, null, a plain
// string, or an object carrying CVSS data.
func parseSafetySeverity(raw json.RawMessage) (string, *float64) {
	switch firstByte(raw) {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s, nil
		}
	case '{':
		var obj safetySeverityObject
		if err := json.Unmarshal(raw, &obj); err != nil {
			return "", nil
		}
		for _, c := range []*safetyCVSS{obj.CVSSv3, obj.CVSSv2} {
			if c == nil {
				continue
			}
			var score *float64
			if c.BaseScore > 0 {
				score = schemas.Float64(c.BaseScore)
			}
			return c.BaseSeverity, score
		}
	}
	return "", nil
}
