// internal/reporting/sarif_reporter_test.go
package reporting_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/vulncorr/api/schemas"
	"github.com/xkilldash9x/vulncorr/internal/reporting"
	"github.com/xkilldash9x/vulncorr/internal/reporting/sarif"
)

func driverNames(log *sarif.Log) []string {
	names := make([]string, 0, len(log.Runs))
	for _, run := range log.Runs {
		names = append(names, run.DriverName())
	}
	return names
}

func runFor(t *testing.T, log *sarif.Log, driver string) *sarif.Run {
	t.Helper()
	for _, run := range log.Runs {
		if run.DriverName() == driver {
			return run
		}
	}
	t.Fatalf("no run for driver %q in %v", driver, driverNames(log))
	return nil
}

// TestSARIFReporter_OneRunPerTool verifies that native runs are kept and only
// tools without one get a synthesized run.
func TestSARIFReporter_OneRunPerTool(t *testing.T) {
	log := reporting.NewSARIFReporter("v1.2.3-test").Build(testInput())

	assert.Equal(t, []string{"Semgrep OSS", "trivy", "grype", "hadolint"}, driverNames(log))

	semgrep := runFor(t, log, "Semgrep OSS")
	require.Len(t, semgrep.Results, 1, "native results are not duplicated by a synthesized run")
	assert.Equal(t, "1.50.0", sarif.Deref(semgrep.Tool.Driver.Version))
	assert.Nil(t, semgrep.Properties, "native runs are passed through")
}

func TestSARIFReporter_SynthesizedRun(t *testing.T) {
	log := reporting.NewSARIFReporter("v1.2.3-test").Build(testInput())

	trivy := runFor(t, log, "trivy")
	assert.Equal(t, "0.48.3", sarif.Deref(trivy.Tool.Driver.Version))
	assert.Equal(t, reporting.ToolName, trivy.Properties["convertedBy"])
	assert.Equal(t, "v1.2.3-test", trivy.Properties["converterVersion"])

	require.Len(t, trivy.Results, 1)
	res := trivy.Results[0]
	assert.Equal(t, "CVE-2021-44228", res.RuleID)
	require.NotNil(t, res.RuleIndex)
	assert.Equal(t, 0, *res.RuleIndex)
	assert.Equal(t, sarif.LevelError, res.Level)
	assert.Equal(t, log4jFingerprint, res.PartialFingerprints[reporting.FingerprintKey])
	assert.Equal(t, "log4j-core: Remote code injection in Log4j (org.apache.logging.log4j:log4j-core 2.14.1)", sarif.Deref(res.Message.Text))
	assert.Equal(t, "CVE-2021-44228", res.Properties["canonicalId"])
	assert.Equal(t, 11.0, res.Properties["priorityScore"])
	assert.Equal(t, "high_risk", res.Properties["riskLevel"])
	assert.Equal(t, "2.15.0", res.Properties["fixedVersion"])

	require.Len(t, res.Locations, 1)
	assert.Equal(t, "trivy-results.json", sarif.Deref(res.Locations[0].PhysicalLocation.ArtifactLocation.URI),
		"package findings point at the scanner output")
	assert.Nil(t, res.Locations[0].PhysicalLocation.Region)

	rule := trivy.RuleByID("CVE-2021-44228")
	require.NotNil(t, rule)
	assert.Equal(t, "https://avd.aquasec.com/nvd/cve-2021-44228", sarif.Deref(rule.HelpURI))
	assert.Equal(t, "10.0", rule.Properties["security-severity"])
	assert.Equal(t, []string{"CWE-502"}, rule.Properties["cwe"])
	assert.Contains(t, sarif.Deref(rule.Help.Markdown), "**Fixed in:** 2.15.0")

	// The grype member of the same group carries the same fingerprint.
	grype := runFor(t, log, "grype")
	require.Len(t, grype.Results, 1)
	assert.Equal(t, log4jFingerprint, grype.Results[0].PartialFingerprints[reporting.FingerprintKey])

	hadolint := runFor(t, log, "hadolint")
	require.Len(t, hadolint.Results, 1)
	lint := hadolint.Results[0]
	assert.Equal(t, sarif.LevelWarning, lint.Level)
	assert.Equal(t, "Dockerfile", sarif.Deref(lint.Locations[0].PhysicalLocation.ArtifactLocation.URI))
	require.NotNil(t, lint.Locations[0].PhysicalLocation.Region)
	assert.Equal(t, 12, *lint.Locations[0].PhysicalLocation.Region.StartLine)
	assert.Equal(t, "", sarif.Deref(hadolint.Tool.Driver.Version), "tools without a version have none recorded")
}

func TestSARIFReporter_RulesAreShared(t *testing.T) {
	in := testInput()
	second := in.Report.Groups[1]
	second.GroupKey = "rule:DL3008|Dockerfile|30"
	second.Members = []schemas.VulnerabilityFinding{second.Members[0]}
	second.Members[0].Location = &schemas.Location{Path: "Dockerfile", Line: 30}
	in.Report.Groups = append(in.Report.Groups, second)

	hadolint := runFor(t, reporting.NewSARIFReporter("").Build(in), "hadolint")
	require.Len(t, hadolint.Results, 2)
	require.Len(t, hadolint.Tool.Driver.Rules, 1, "both hits reference one rule")
	assert.Equal(t, 0, *hadolint.Results[1].RuleIndex)
	assert.Equal(t, 30, *hadolint.Results[1].Locations[0].PhysicalLocation.Region.StartLine)
}

func TestSARIFReporter_MergesNativeRuns(t *testing.T) {
	in := testInput()
	in.NativeSARIF = append(in.NativeSARIF, nativeSemgrep("second", "third"), nil)

	log := reporting.NewSARIFReporter("").Build(in)
	semgrep := runFor(t, log, "Semgrep OSS")
	assert.Len(t, semgrep.Results, 3)
	assert.Len(t, semgrep.Tool.Driver.Rules, 1, "rules are unioned by id")
	assert.Len(t, log.Runs, 4)
}

func TestSARIFReporter_KeepsNativeMembers(t *testing.T) {
	native, err := sarif.Decode([]byte(`{"version": "2.1.0", "runs": [{
	  "tool": {"driver": {"name": "CodeQL", "rules": [{"id": "js/sql-injection"}, {"id": "js/xss"}]}},
	  "originalUriBaseIds": {"%SRCROOT%": {"uri": "file:///src/"}},
	  "results": [{
	    "ruleIndex": 1,
	    "message": {"text": "xss"},
	    "fingerprints": {"primary": "abc123"},
	    "codeFlows": [{"threadFlows": [{"locations": []}]}],
	    "locations": [{"physicalLocation": {
	      "artifactLocation": {"uri": "app.js", "uriBaseId": "%SRCROOT%"},
	      "region": {"startLine": 3, "endColumn": 20}}}]
	  }]
	}]}`))
	require.NoError(t, err)

	in := testInput()
	in.NativeSARIF = append(in.NativeSARIF, native)

	var buf bytes.Buffer
	require.NoError(t, reporting.NewSARIFReporter("").Generate(&buf, in))
	out := buf.String()
	for _, want := range []string{
		`"ruleId": "js/xss"`,
		`"ruleIndex": 1`,
		`"fingerprints"`,
		`"codeFlows"`,
		`"uriBaseId": "%SRCROOT%"`,
		`"originalUriBaseIds"`,
		`"endColumn": 20`,
	} {
		assert.Contains(t, out, want)
	}

	log, err := sarif.Decode(buf.Bytes())
	require.NoError(t, err)
	codeql := runFor(t, log, "CodeQL")
	require.Len(t, codeql.Results, 1)
	assert.Equal(t, "abc123", codeql.Results[0].Fingerprints["primary"])
}

func TestSARIFReporter_NoNativeSARIF(t *testing.T) {
	in := testInput()
	in.NativeSARIF = nil

	log := reporting.NewSARIFReporter("").Build(in)
	assert.Equal(t, []string{"trivy", "grype", "hadolint", "semgrep"}, driverNames(log),
		"a SARIF-only tool whose document is gone is synthesized from its findings")
}

func TestSARIFReporter_EmptyReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, reporting.NewSARIFReporter("").Generate(&buf, &reporting.Input{Report: &schemas.CorrelationReport{}}))

	log, err := sarif.Decode(buf.Bytes())
	require.NoError(t, err)
	require.NotNil(t, log.Runs)
	assert.Empty(t, log.Runs)
	assert.Contains(t, buf.String(), `"runs": []`)
}

// TestSARIFReporter_RoundTrip checks that the written document is valid SARIF
// with one run per distinct driver.
func TestSARIFReporter_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, reporting.NewSARIFReporter("v1.2.3-test").Generate(&buf, testInput()))

	log, err := sarif.Decode(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, sarif.Version, log.Version)

	seen := make(map[string]bool)
	for _, name := range driverNames(log) {
		key := strings.ToLower(name)
		assert.False(t, seen[key], "driver %s appears twice", name)
		seen[key] = true
	}
	assert.Len(t, seen, 4)

	total := 0
	for _, run := range log.Runs {
		total += len(run.Results)
	}
	assert.Equal(t, 4, total, "one result per raw finding")
}
