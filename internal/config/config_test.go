// File: internal/config/config_test.go
package config

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearCIEnv makes sure the ambient CI variables of the machine running the
// tests do not leak into the config under test.
func clearCIEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"SCAN_RESULTS_DIR", "VULNCORR_SCAN_RESULTS_DIR",
		"ADVANCED_MODE", "VULNCORR_SCAN_ADVANCED_MODE",
		"DOCKER_REPOSITORY", "VULNCORR_SCAN_DOCKER_REPOSITORY",
		"SEVERITY_THRESHOLD", "VULNCORR_CORRELATION_SEVERITY_THRESHOLD",
	} {
		t.Setenv(name, "")
	}
}

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "vulncorr", cfg.Logger().ServiceName)
	assert.Equal(t, "security-results", cfg.Scan().ResultsDir)
	assert.False(t, cfg.Scan().AdvancedMode)
	assert.Equal(t, "high", cfg.Correlation().SeverityThreshold)
	assert.True(t, cfg.Correlation().FailOnHighRisk)
	assert.Equal(t, 10.0, cfg.Correlation().SeverityWeights["critical"])
	assert.Equal(t, 0.0, cfg.Correlation().SeverityWeights["info"])
	assert.Equal(t, 0.1, cfg.Correlation().CorroborationBonus)
	assert.Equal(t, 5, cfg.Correlation().CorroborationCap)
	assert.Equal(t, 10, cfg.Report().TopN)
	assert.Len(t, cfg.Report().Formats, 8)
	assert.Equal(t, []string{"**/trivy-results.json"}, cfg.Extract().Patterns["trivy"])
	assert.Equal(t, []string{"**/pip-audit-results.json"}, cfg.Extract().Patterns["pip-audit"])
	assert.Equal(t, []string{"**/*.sarif"}, cfg.Extract().SARIFPatterns)

	assert.NoError(t, cfg.Validate(), "defaults must always validate")
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Core Validation", func(t *testing.T) {
		cfg := NewDefaultConfig()
		assert.NoError(t, cfg.Validate())

		noResults := *cfg
		noResults.ScanCfg.ResultsDir = ""
		err := noResults.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "scan.results_dir is a required configuration field")

		badTopN := *cfg
		badTopN.ReportCfg.TopN = 0
		err = badTopN.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "report.top_n must be a positive integer")

		noFormats := *cfg
		noFormats.ReportCfg.Formats = nil
		err = noFormats.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "report.formats must name at least one format")

		badFormat := *cfg
		badFormat.ReportCfg.Formats = []string{"sarif", "pdf"}
		err = badFormat.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown format "pdf"`)
	})

	t.Run("Correlation Validation", func(t *testing.T) {
		base := NewDefaultConfig().CorrelationCfg

		tests := []struct {
			name    string
			mutate  func(c *CorrelationConfig)
			wantErr string
		}{
			{"valid upper-case threshold", func(c *CorrelationConfig) { c.SeverityThreshold = "CRITICAL" }, ""},
			{"unknown threshold", func(c *CorrelationConfig) { c.SeverityThreshold = "severe" }, "severity_threshold \"severe\""},
			{"negative weight", func(c *CorrelationConfig) {
				c.SeverityWeights = map[string]float64{"high": -1}
			}, "severity_weights.high must not be negative"},
			{"unknown weight", func(c *CorrelationConfig) {
				c.SeverityWeights = map[string]float64{"urgent": 3}
			}, "unknown severity \"urgent\""},
			{"negative bonus", func(c *CorrelationConfig) { c.CorroborationBonus = -0.1 }, "corroboration_bonus"},
			{"negative cap", func(c *CorrelationConfig) { c.CorroborationCap = -1 }, "corroboration_cap"},
			{"inverted risk buckets", func(c *CorrelationConfig) { c.MediumRiskScore = 8 }, "medium_risk_score"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				c := base
				tt.mutate(&c)
				err := c.Validate()
				if tt.wantErr == "" {
					assert.NoError(t, err)
					return
				}
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			})
		}
	})
}

// -- Factory Function Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Successful Load from YAML", func(t *testing.T) {
		clearCIEnv(t)
		yamlBytes := []byte(`
scan:
  results_dir: /tmp/ci-results
  docker_repository: ghcr.io/acme/builder
report:
  top_n: 3
  formats: [correlation-json, sarif]
correlation:
  severity_threshold: critical
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlBytes)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, "/tmp/ci-results", cfg.Scan().ResultsDir)
		assert.Equal(t, "ghcr.io/acme/builder", cfg.Scan().DockerRepository)
		assert.Equal(t, 3, cfg.Report().TopN)
		assert.Equal(t, []string{"correlation-json", "sarif"}, cfg.Report().Formats)
		assert.Equal(t, "critical", cfg.Correlation().SeverityThreshold)
		// output_dir falls back to the results dir.
		assert.Equal(t, "/tmp/ci-results", cfg.Report().OutputDir)
		// Defaults are still present.
		assert.Equal(t, "info", cfg.Logger().Level)
	})

	t.Run("Validation Failure", func(t *testing.T) {
		clearCIEnv(t)
		v := viper.New()
		SetDefaults(v)
		v.Set("report.top_n", 0)

		cfg, err := NewConfigFromViper(v)
		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid configuration")
		assert.Contains(t, err.Error(), "report.top_n must be a positive integer")
	})

	t.Run("CI Environment Variable Binding", func(t *testing.T) {
		clearCIEnv(t)
		v := viper.New()
		SetDefaults(v)

		yamlConfig := []byte(`
scan:
  results_dir: from-config-file
`)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlConfig)))

		t.Setenv("SCAN_RESULTS_DIR", "/env/results")
		t.Setenv("ADVANCED_MODE", "true")
		t.Setenv("DOCKER_REPOSITORY", "acme/esp32-builder")
		t.Setenv("SEVERITY_THRESHOLD", "MEDIUM")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, "/env/results", cfg.Scan().ResultsDir, "env must override the config file")
		assert.True(t, cfg.Scan().AdvancedMode)
		assert.Equal(t, "acme/esp32-builder", cfg.Scan().DockerRepository)
		assert.Equal(t, "MEDIUM", cfg.Correlation().SeverityThreshold)
	})

	t.Run("Prefixed Variable Wins", func(t *testing.T) {
		clearCIEnv(t)
		v := viper.New()
		SetDefaults(v)

		t.Setenv("SCAN_RESULTS_DIR", "/plain")
		t.Setenv("VULNCORR_SCAN_RESULTS_DIR", "/prefixed")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "/prefixed", cfg.Scan().ResultsDir)
	})

	t.Run("Invalid Threshold From Env", func(t *testing.T) {
		clearCIEnv(t)
		v := viper.New()
		SetDefaults(v)
		t.Setenv("SEVERITY_THRESHOLD", "bogus")

		_, err := NewConfigFromViper(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "correlation configuration invalid")
	})
}

func TestExpandPaths(t *testing.T) {
	home, err := homedir.Dir()
	require.NoError(t, err)

	cfg := NewDefaultConfig()
	cfg.ScanCfg.ResultsDir = "~/results"
	cfg.ReportCfg.OutputDir = ""
	cfg.LoggerCfg.LogFile = "~/logs/vulncorr.log"

	require.NoError(t, cfg.ExpandPaths())
	assert.Equal(t, filepath.Join(home, "results"), cfg.Scan().ResultsDir)
	assert.Equal(t, filepath.Join(home, "results"), cfg.Report().OutputDir)
	assert.Equal(t, filepath.Join(home, "logs", "vulncorr.log"), cfg.Logger().LogFile)
}

func TestSetters(t *testing.T) {
	var cfg Interface = NewDefaultConfig()

	cfg.SetScanResultsDir("/a")
	cfg.SetReportOutputDir("/b")
	cfg.SetReportTopN(7)
	cfg.SetReportFormats([]string{"csv"})
	cfg.SetCorrelationSeverityThreshold("low")
	cfg.SetCorrelationFailOnHighRisk(false)

	assert.Equal(t, "/a", cfg.Scan().ResultsDir)
	assert.Equal(t, "/b", cfg.Report().OutputDir)
	assert.Equal(t, 7, cfg.Report().TopN)
	assert.Equal(t, []string{"csv"}, cfg.Report().Formats)
	assert.Equal(t, "low", cfg.Correlation().SeverityThreshold)
	assert.False(t, cfg.Correlation().FailOnHighRisk)
}

// -- Struct and Mapping Tests --

func TestConfigStructureMapping(t *testing.T) {
	yamlInput := `
logger:
  level: debug
  log_file: /var/log/vulncorr.log
extract:
  patterns:
    trivy: ["image/**/trivy*.json", "fs/trivy-results.json"]
  exclude: ["archive/**"]
correlation:
  severity_weights:
    critical: 12
`
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewBufferString(yamlInput)))

	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))

	assert.Equal(t, "debug", cfg.Logger().Level)
	assert.Equal(t, "/var/log/vulncorr.log", cfg.Logger().LogFile)
	assert.Equal(t, []string{"image/**/trivy*.json", "fs/trivy-results.json"}, cfg.Extract().Patterns["trivy"])
	assert.Equal(t, []string{"archive/**"}, cfg.Extract().Exclude)
	assert.Equal(t, 12.0, cfg.Correlation().SeverityWeights["critical"])
}
