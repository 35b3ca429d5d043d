package schemas

import (
	"testing"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeverityRankOrdering(t *testing.T) {
	for i := 0; i < len(Severities)-1; i++ {
		assert.Greater(t, Severities[i].Rank(), Severities[i+1].Rank(),
			"%s must rank above %s", Severities[i], Severities[i+1])
	}
	assert.Equal(t, 0, Severity("URGENT").Rank())
	assert.False(t, Severity("").Valid())
}

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		in   string
		want Severity
		ok   bool
	}{
		{"critical", SeverityCritical, true},
		{" High ", SeverityHigh, true},
		{"INFO", SeverityInfo, true},
		{"moderate", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseSeverity(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestMaxSeverityAndAtLeast(t *testing.T) {
	assert.Equal(t, SeverityCritical, MaxSeverity(SeverityLow, SeverityCritical))
	assert.Equal(t, SeverityHigh, MaxSeverity(SeverityHigh, SeverityMedium))
	assert.True(t, SeverityHigh.AtLeast(SeverityHigh))
	assert.True(t, SeverityCritical.AtLeast(SeverityHigh))
	assert.False(t, SeverityMedium.AtLeast(SeverityHigh))
}

func TestFindingJSONTags(t *testing.T) {
	f := VulnerabilityFinding{
		ID:                 "DL3008",
		SourceTool:         ToolHadolint,
		Category:           CategoryConfiguration,
		RawSeverity:        "warning",
		NormalizedSeverity: SeverityMedium,
		Title:              "Pin versions in apt get install",
		Location:           &Location{Path: "Dockerfile", Line: 12},
	}
	data, err := json.Marshal(f)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "hadolint", raw["source_tool"])
	assert.Equal(t, "configuration/lint", raw["category"])
	assert.NotContains(t, raw, "package_name", "empty package must be omitted")
	assert.NotContains(t, raw, "cvss_score", "absent score must be omitted")

	scored := f
	scored.CVSSScore = Float64(0)
	data, err = json.Marshal(scored)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"cvss_score":0`, "a reported zero score must survive")
}

func TestCorrelationReportCounts(t *testing.T) {
	r := &CorrelationReport{Groups: []CorrelationGroup{
		{NormalizedSeverity: SeverityCritical, RiskLevel: RiskHigh, Category: CategoryVulnerability},
		{NormalizedSeverity: SeverityCritical, RiskLevel: RiskHigh, Category: CategoryVulnerability},
		{NormalizedSeverity: SeverityMedium, RiskLevel: RiskMedium, Category: CategoryConfiguration},
	}}

	sev := r.SeverityCounts()
	assert.Equal(t, 2, sev[SeverityCritical])
	assert.Equal(t, 1, sev[SeverityMedium])
	assert.Equal(t, 0, sev[SeverityInfo])
	assert.Len(t, sev, len(Severities))

	risk := r.RiskCounts()
	assert.Equal(t, 2, risk[RiskHigh])
	assert.Equal(t, 0, risk[RiskLow])

	cat := r.CategoryCounts()
	assert.Equal(t, 1, cat[CategoryConfiguration])
	assert.Equal(t, 0, cat[CategoryCode])

	assert.Len(t, r.TopGroups(2), 2)
	assert.Len(t, r.TopGroups(10), 3)
	assert.Len(t, r.TopGroups(-1), 3)
}

func TestToolInventory(t *testing.T) {
	r := &CorrelationReport{
		Metadata: CorrelationMetadata{ToolVersions: map[string]string{"trivy": "0.50.1", "bandit": ""}},
		Groups: []CorrelationGroup{
			{Tools: []SourceTool{ToolTrivy, ToolHadolint}},
			{Tools: []SourceTool{ToolBandit}},
		},
	}
	assert.Equal(t, map[string]string{"trivy": "0.50.1", "bandit": "", "hadolint": ""}, r.ToolInventory())
	assert.Empty(t, (&CorrelationReport{}).ToolInventory())
}
