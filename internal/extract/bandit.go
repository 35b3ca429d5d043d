package extract

import (
	"fmt"

	"github.com/xkilldash9x/vulncorr/api/schemas"
)

// -- Bandit JSON schema (bandit -f json) --

type banditReport struct {
	Results []banditResult `json:"results"`
}

type banditResult struct {
	Filename        string     `json:"filename"`
	LineNumber      int        `json:"line_number"`
	IssueSeverity   string     `json:"issue_severity"`
	IssueConfidence string     `json:"issue_confidence"`
	IssueText       string     `json:"issue_text"`
	IssueCWE        *banditCWE `json:"issue_cwe"`
	TestID          string     `json:"test_id"`
	TestName        string     `json:"test_name"`
	MoreInfo        string     `json:"more_info"`
}

type banditCWE struct {
	ID   int    `json:"id"`
	Link string `json:"link"`
}

// BanditExtractor reads Bandit JSON. Findings are Python source code issues
// keyed by test id.
type BanditExtractor struct{}

func (BanditExtractor) Tool() schemas.SourceTool { return schemas.ToolBandit }

func (BanditExtractor) Extract(data []byte, source string) (*Result, error) {
	res := &Result{Tool: schemas.ToolBandit, Source: source, Findings: []schemas.VulnerabilityFinding{}}
	if isBlank(data) {
		return res, nil
	}

	var report banditReport
	if err := decode(data, &report); err != nil {
		return nil, err
	}

	for _, r := range report.Results {
		f := schemas.VulnerabilityFinding{
			ID:          r.TestID,
			SourceTool:  schemas.ToolBandit,
			Category:    schemas.CategoryCode,
			RawSeverity: r.IssueSeverity,
			Title:       summarize(nonEmpty(r.IssueText, r.TestName, r.TestID), maxTitleLen),
			Description: r.IssueText,
			References:  appendUnique(nil, r.MoreInfo),
			SourceFile:  source,
		}
		if r.IssueCWE != nil && r.IssueCWE.ID > 0 {
			f.CWE = []string{fmt.Sprintf("CWE-%d", r.IssueCWE.ID)}
		}
		if r.Filename != "" {
			f.Location = &schemas.Location{Path: r.Filename, Line: r.LineNumber}
		}
		res.Findings = append(res.Findings, f)
	}
	return res, nil
}
