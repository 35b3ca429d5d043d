package results

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/vulncorr/api/schemas"
	"github.com/xkilldash9x/vulncorr/internal/config"
	"github.com/xkilldash9x/vulncorr/internal/extract"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// Verifies the in-memory orchestration:
// Normalization -> Enrichment (Mocked) -> Correlation -> Prioritization.
func TestRunPipeline_EndToEnd(t *testing.T) {
	ctx := context.Background()
	mockProvider := new(MockCWEProvider)

	raw := []schemas.VulnerabilityFinding{
		{ID: "B105", SourceTool: schemas.ToolBandit, RawSeverity: "LOW", CWE: []string{"CWE-259"}, Location: &schemas.Location{Path: "a.py", Line: 3}},
		{ID: "CVE-2021-44228", SourceTool: schemas.ToolTrivy, PackageName: "log4j-core", RawSeverity: "CRITICAL"},
		{ID: "CVE-2021-44228", SourceTool: schemas.ToolGrype, PackageName: "log4j-core", RawSeverity: "Critical"},
		{ID: "39611", SourceTool: schemas.ToolSafety, PackageName: "jinja2", InstalledVersion: "2.10"},
	}
	mockProvider.On("GetFullName", ctx, "CWE-259").Return("Use of Hard-coded Password", true).Once()

	corr, err := RunPipeline(ctx, raw, PipelineConfig{ScoreConfig: DefaultScoreConfig(), CWEProvider: mockProvider})
	require.NoError(t, err)
	mockProvider.AssertExpectations(t)

	require.Len(t, corr.Groups, 3)
	assert.Equal(t, "CVE-2021-44228", corr.Groups[0].CanonicalID)
	assert.Equal(t, 11.0, corr.Groups[0].PriorityScore)
	assert.Equal(t, "39611", corr.Groups[1].CanonicalID)
	assert.Equal(t, schemas.SeverityMedium, corr.Groups[1].NormalizedSeverity)
	assert.Equal(t, "B105", corr.Groups[2].CanonicalID)
	assert.Equal(t, "Use of Hard-coded Password", corr.Groups[2].Members[0].Description)
	assert.Equal(t, schemas.CategoryCode, corr.Groups[2].Category)

	assert.Equal(t, 1, corr.Fallbacks)
	assert.Equal(t, 1, corr.Metrics.DuplicateFindingsRemoved)
	assert.Equal(t, 0.75, corr.Metrics.CorrelationAccuracy)
}

func TestRunPipeline_Cancellation_Normalization(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	corr, err := RunPipeline(ctx, []schemas.VulnerabilityFinding{{ID: "F1", RawSeverity: "HIGH"}}, PipelineConfig{ScoreConfig: DefaultScoreConfig()})
	require.Error(t, err)
	assert.Nil(t, corr)
	assert.Contains(t, err.Error(), "pipeline cancelled during normalization")
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRunPipeline_Cancellation_Enrichment(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	mockProvider := new(MockCWEProvider)

	raw := []schemas.VulnerabilityFinding{
		{ID: "F1", RawSeverity: "HIGH", CWE: []string{"CWE-79"}},
		{ID: "F2", RawSeverity: "HIGH", CWE: []string{"CWE-89"}},
	}
	mockProvider.On("GetFullName", mock.Anything, "CWE-79").Return("XSS", true).Once().Run(func(args mock.Arguments) {
		cancel()
	})

	corr, err := RunPipeline(ctx, raw, PipelineConfig{ScoreConfig: DefaultScoreConfig(), CWEProvider: mockProvider})
	require.Error(t, err)
	assert.Nil(t, corr)
	assert.Contains(t, err.Error(), "error enriching findings")
	assert.ErrorIs(t, err, context.Canceled)
}

// copyFixtures lays out extractor fixtures as a CI results directory.
func copyFixtures(t *testing.T, layout map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for dst, src := range layout {
		data, err := os.ReadFile(filepath.Join("..", "extract", "testdata", src))
		require.NoError(t, err)
		path := filepath.Join(root, filepath.FromSlash(dst))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, data, 0o644))
	}
	return root
}

func fullLayout() map[string]string {
	return map[string]string{
		"trivy-results.json":               "trivy-results.json",
		"grype-results.json":               "grype-results.json",
		"python/safety-results.json":       "safety-results.json",
		"python/pip-audit-results.json":    "pip-audit-results.json",
		"dockerfile/hadolint-results.json": "hadolint-results.json",
		"sast/bandit-results.json":         "bandit-results.json",
		"sast/semgrep.sarif":               "semgrep.sarif",
	}
}

func newTestPipeline(t *testing.T, resultsDir string) *Pipeline {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.SetScanResultsDir(resultsDir)
	cfg.ScanCfg.DockerRepository = "ghcr.io/acme/esp32-builder"

	p := NewPipeline(cfg, "1.2.3", zaptest.NewLogger(t))
	p.now = func() time.Time { return time.Date(2024, 3, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600)) }
	return p
}

func findGroup(t *testing.T, groups []schemas.CorrelationGroup, canonicalID string) schemas.CorrelationGroup {
	t.Helper()
	for _, g := range groups {
		if g.CanonicalID == canonicalID {
			return g
		}
	}
	t.Fatalf("group %q not found", canonicalID)
	return schemas.CorrelationGroup{}
}

func TestPipeline_Run(t *testing.T) {
	root := copyFixtures(t, fullLayout())
	outcome, err := newTestPipeline(t, root).Run(context.Background())
	require.NoError(t, err)

	report := outcome.Report
	meta := report.Metadata
	assert.NotEmpty(t, meta.RunID)
	assert.Equal(t, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), meta.ScanTimestamp)
	assert.Equal(t, "1.2.3", meta.GeneratorVersion)
	assert.Equal(t, "ghcr.io/acme/esp32-builder", meta.DockerRepository)
	assert.Equal(t, map[string]string{
		"trivy":     "0.50.1",
		"grype":     "0.74.0",
		"safety":    "2.3.5",
		"pip-audit": "",
		"hadolint":  "",
		"bandit":    "",
		"semgrep":   "1.50.0",
	}, meta.ToolVersions, "tools whose output has no version are still recorded")
	assert.Len(t, meta.InputsRead, 7)
	assert.Empty(t, meta.InputsSkipped)
	assert.Equal(t, 16, meta.TotalRawFindings)
	assert.Equal(t, 2, meta.SeverityFallback, "safety 39611 and the pip-audit advisory carry no severity")

	assert.Equal(t, schemas.CorrelationMetrics{
		TotalGroups:              14,
		DuplicateFindingsRemoved: 2,
		DedupRatio:               0.125,
		CorrelationAccuracy:      0.875,
		MultiToolGroups:          2,
	}, report.Metrics)

	require.Len(t, outcome.NativeSARIF, 1)

	// Trivy and Grype both report log4shell.
	log4j := report.Groups[0]
	assert.Equal(t, "CVE-2021-44228", log4j.CanonicalID)
	assert.Len(t, log4j.Members, 2)
	assert.Equal(t, []schemas.SourceTool{schemas.ToolTrivy, schemas.ToolGrype}, log4j.Tools)
	assert.Equal(t, 11.0, log4j.PriorityScore)
	assert.Equal(t, "2.15.0", log4j.RecommendedFix)

	// Safety 39611 has no severity and no score: MEDIUM, and still reported.
	jinja := findGroup(t, report.Groups, "CVE-2019-10906")
	require.Len(t, jinja.Members, 2)
	assert.Equal(t, "39611", jinja.Members[0].ID)
	assert.Equal(t, schemas.SeverityMedium, jinja.Members[0].NormalizedSeverity)
	assert.Equal(t, []schemas.SourceTool{schemas.ToolSafety, schemas.ToolPipAudit}, jinja.Tools)

	// Hadolint DL3008 has no package and lands under configuration/lint.
	dl3008 := findGroup(t, report.Groups, "DL3008")
	assert.Empty(t, dl3008.PackageName)
	assert.Equal(t, schemas.CategoryConfiguration, dl3008.Category)
	assert.Equal(t, schemas.SeverityMedium, dl3008.NormalizedSeverity)

	// A GHSA advisory is joined to its CVE and escalated by its CVSS score.
	urllib3 := findGroup(t, report.Groups, "CVE-2023-43804")
	assert.Equal(t, schemas.SeverityHigh, urllib3.NormalizedSeverity)

	// SARIF-only findings are correlated with a code category.
	semgrep := findGroup(t, report.Groups, "python.lang.security.audit.eval-detected")
	assert.Equal(t, schemas.CategoryCode, semgrep.Category)

	for i := 1; i < len(report.Groups); i++ {
		assert.GreaterOrEqual(t, report.Groups[i-1].PriorityScore, report.Groups[i].PriorityScore)
	}
	counts := report.CategoryCounts()
	assert.Equal(t, 4, counts[schemas.CategoryConfiguration], "three hadolint rules and one trivy misconfiguration")
	assert.Equal(t, 6, counts[schemas.CategoryVulnerability])
	assert.Equal(t, 4, counts[schemas.CategoryCode])
}

func TestPipeline_Run_SARIFDuplicatesJSON(t *testing.T) {
	layout := fullLayout()
	root := copyFixtures(t, layout)
	// A Trivy SARIF next to the Trivy JSON feeds only the SARIF merge.
	trivySARIF := `{"version":"2.1.0","runs":[{"tool":{"driver":{"name":"Trivy","version":"0.50.1"}},
		"results":[{"ruleId":"CVE-2021-44228","level":"error","message":{"text":"log4shell"}}]}]}`
	require.NoError(t, os.WriteFile(filepath.Join(root, "trivy.sarif"), []byte(trivySARIF), 0o644))

	outcome, err := newTestPipeline(t, root).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 16, outcome.Report.Metadata.TotalRawFindings)
	assert.Len(t, outcome.NativeSARIF, 2)
}

func TestPipeline_Run_MissingAndMalformedInputs(t *testing.T) {
	root := copyFixtures(t, map[string]string{
		"trivy-results.json":  "malformed.json",
		"grype-results.json":  "grype-results.json",
		"safety-results.json": "empty.json",
	})

	outcome, err := newTestPipeline(t, root).Run(context.Background())
	require.NoError(t, err, "unusable inputs never fail the run")

	meta := outcome.Report.Metadata
	assert.Equal(t, []string{"grype-results.json", "safety-results.json"}, meta.InputsRead)

	skipped := map[schemas.SourceTool]string{}
	for _, s := range meta.InputsSkipped {
		skipped[s.Tool] = s.Reason
	}
	assert.Contains(t, skipped[schemas.ToolTrivy], "malformed")
	assert.Contains(t, skipped, schemas.ToolPipAudit)
	assert.Contains(t, skipped, schemas.ToolHadolint)
	assert.Contains(t, skipped, schemas.ToolBandit)
	assert.Equal(t, 3, meta.TotalRawFindings)
}

func TestPipeline_Run_RecordsVersionlessTools(t *testing.T) {
	root := copyFixtures(t, map[string]string{
		"trivy-results.json":    "trivy-results.json",
		"hadolint-results.json": "hadolint-results.json",
		"bandit-results.json":   "bandit-results.json",
	})

	outcome, err := newTestPipeline(t, root).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"trivy": "0.50.1", "hadolint": "", "bandit": ""}, outcome.Report.Metadata.ToolVersions)
	assert.Len(t, outcome.Report.ToolInventory(), 3)
}

func TestPipeline_Run_SkipsOwnOutputsInOutputDir(t *testing.T) {
	root := copyFixtures(t, map[string]string{
		"hadolint-results.json":                   "hadolint-results.json",
		"out/sarif/unified-security-report.sarif": "semgrep.sarif",
		"out/correlation/trivy-results.json":      "trivy-results.json",
	})

	p := newTestPipeline(t, root)
	p.cfg.SetReportOutputDir(filepath.Join(root, "out"))
	outcome, err := p.Run(context.Background())
	require.NoError(t, err)

	meta := outcome.Report.Metadata
	assert.Equal(t, []string{"hadolint-results.json"}, meta.InputsRead, "a previous run's reports are not read back")
	assert.Empty(t, outcome.NativeSARIF)
	assert.NotContains(t, meta.ToolVersions, "semgrep")
	assert.NotContains(t, meta.ToolVersions, "trivy")
}

func TestPipeline_Run_MissingResultsDir(t *testing.T) {
	p := newTestPipeline(t, filepath.Join(t.TempDir(), "does-not-exist"))
	outcome, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, outcome)
	assert.ErrorIs(t, err, extract.ErrResultsDir)
}

func TestPipeline_Run_Cancelled(t *testing.T) {
	root := copyFixtures(t, fullLayout())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestPipeline(t, root).Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
