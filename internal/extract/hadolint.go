package extract

import (
	"github.com/xkilldash9x/vulncorr/api/schemas"
)

// hadolintIssue is one element of `hadolint -f json` output.
type hadolintIssue struct {
	Code    string `json:"code"`
	Column  int    `json:"column"`
	File    string `json:"file"`
	Level   string `json:"level"`
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// HadolintExtractor reads Hadolint JSON. Findings are Dockerfile lint: the
// rule code is the ID and there is no package.
type HadolintExtractor struct{}

func (HadolintExtractor) Tool() schemas.SourceTool { return schemas.ToolHadolint }

func (HadolintExtractor) Extract(data []byte, source string) (*Result, error) {
	res := &Result{Tool: schemas.ToolHadolint, Source: source, Findings: []schemas.VulnerabilityFinding{}}
	if isBlank(data) {
		return res, nil
	}

	var issues []hadolintIssue
	if err := decode(data, &issues); err != nil {
		return nil, err
	}

	for _, issue := range issues {
		f := schemas.VulnerabilityFinding{
			ID:          issue.Code,
			SourceTool:  schemas.ToolHadolint,
			Category:    schemas.CategoryConfiguration,
			RawSeverity: issue.Level,
			Title:       summarize(nonEmpty(issue.Message, issue.Code), maxTitleLen),
			Description: issue.Message,
			References:  appendUnique(nil, hadolintRuleURL(issue.Code)),
			SourceFile:  source,
		}
		if issue.File != "" {
			f.Location = &schemas.Location{Path: issue.File, Line: issue.Line}
		}
		res.Findings = append(res.Findings, f)
	}
	return res, nil
}

// hadolintRuleURL links DL rules to the Hadolint wiki. ShellCheck (SC) rules
// live elsewhere and get no link.
func hadolintRuleURL(code string) string {
	if len(code) > 2 && code[:2] == "DL" {
		return "https://github.com/hadolint/hadolint/wiki/" + code
	}
	return ""
}
