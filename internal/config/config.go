// File: internal/config/config.go
package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Scan() ScanConfig
	Extract() ExtractConfig
	Correlation() CorrelationConfig
	Report() ReportConfig

	// Setters used by CLI flags that override file/env values after load.
	SetScanResultsDir(dir string)
	SetReportOutputDir(dir string)
	SetReportTopN(n int)
	SetReportFormats(formats []string)
	SetCorrelationSeverityThreshold(sev string)
	SetCorrelationFailOnHighRisk(b bool)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	ScanCfg        ScanConfig        `mapstructure:"scan" yaml:"scan"`
	ExtractCfg     ExtractConfig     `mapstructure:"extract" yaml:"extract"`
	CorrelationCfg CorrelationConfig `mapstructure:"correlation" yaml:"correlation"`
	ReportCfg      ReportConfig      `mapstructure:"report" yaml:"report"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig           { return c.LoggerCfg }
func (c *Config) Scan() ScanConfig               { return c.ScanCfg }
func (c *Config) Extract() ExtractConfig         { return c.ExtractCfg }
func (c *Config) Correlation() CorrelationConfig { return c.CorrelationCfg }
func (c *Config) Report() ReportConfig           { return c.ReportCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetScanResultsDir(dir string)        { c.ScanCfg.ResultsDir = dir }
func (c *Config) SetReportOutputDir(dir string)       { c.ReportCfg.OutputDir = dir }
func (c *Config) SetReportTopN(n int)                 { c.ReportCfg.TopN = n }
func (c *Config) SetReportFormats(formats []string)   { c.ReportCfg.Formats = formats }
func (c *Config) SetCorrelationFailOnHighRisk(b bool) { c.CorrelationCfg.FailOnHighRisk = b }
func (c *Config) SetCorrelationSeverityThreshold(sev string) {
	c.CorrelationCfg.SeverityThreshold = sev
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// ScanConfig describes the CI scan run whose output is being correlated.
// ResultsDir, AdvancedMode and DockerRepository are fed by the CI
// environment (SCAN_RESULTS_DIR, ADVANCED_MODE, DOCKER_REPOSITORY).
type ScanConfig struct {
	ResultsDir       string `mapstructure:"results_dir" yaml:"results_dir"`
	AdvancedMode     bool   `mapstructure:"advanced_mode" yaml:"advanced_mode"`
	DockerRepository string `mapstructure:"docker_repository" yaml:"docker_repository"`
}

// ExtractConfig controls input discovery. Patterns are doublestar globs
// relative to the results directory, keyed by source tool name.
// GeneratedOutputs matches, relative to the report output directory, every
// file the report generators write.
var GeneratedOutputs = []string{"correlation/**", "sarif/unified-security-report.sarif", "reports/**"}

type ExtractConfig struct {
	Patterns      map[string][]string `mapstructure:"patterns" yaml:"patterns"`
	SARIFPatterns []string            `mapstructure:"sarif_patterns" yaml:"sarif_patterns"`
	Exclude       []string            `mapstructure:"exclude" yaml:"exclude"`
}

// CorrelationConfig tunes grouping, scoring and escalation.
type CorrelationConfig struct {
	// SeverityThreshold is the lowest group severity that may escalate the
	// exit code when the group is also high risk.
	SeverityThreshold  string             `mapstructure:"severity_threshold" yaml:"severity_threshold"`
	FailOnHighRisk     bool               `mapstructure:"fail_on_high_risk" yaml:"fail_on_high_risk"`
	SeverityWeights    map[string]float64 `mapstructure:"severity_weights" yaml:"severity_weights"`
	CorroborationBonus float64            `mapstructure:"corroboration_bonus" yaml:"corroboration_bonus"`
	CorroborationCap   int                `mapstructure:"corroboration_cap" yaml:"corroboration_cap"`
	HighRiskScore      float64            `mapstructure:"high_risk_score" yaml:"high_risk_score"`
	MediumRiskScore    float64            `mapstructure:"medium_risk_score" yaml:"medium_risk_score"`
}

// ReportConfig controls which reports are produced and where.
type ReportConfig struct {
	// OutputDir defaults to the scan results directory when empty.
	OutputDir string   `mapstructure:"output_dir" yaml:"output_dir"`
	TopN      int      `mapstructure:"top_n" yaml:"top_n"`
	Formats   []string `mapstructure:"formats" yaml:"formats"`
}

// severityNames lists the accepted normalized severity names, lower-cased.
var severityNames = map[string]bool{
	"critical": true,
	"high":     true,
	"medium":   true,
	"low":      true,
	"info":     true,
}

// ReportFormats names every report the tool can produce, in generation order.
var ReportFormats = []string{
	"correlation-json",
	"correlation-summary",
	"risk-summary",
	"sarif",
	"html",
	"executive-summary",
	"api-json",
	"csv",
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "vulncorr")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Scan --
	v.SetDefault("scan.results_dir", "security-results")
	v.SetDefault("scan.advanced_mode", false)
	v.SetDefault("scan.docker_repository", "")

	// -- Extract --
	v.SetDefault("extract.patterns", map[string][]string{
		"trivy":     {"**/trivy-results.json"},
		"grype":     {"**/grype-results.json"},
		"safety":    {"**/safety-results.json"},
		"pip-audit": {"**/pip-audit-results.json"},
		"hadolint":  {"**/hadolint-results.json"},
		"bandit":    {"**/bandit-results.json"},
	})
	v.SetDefault("extract.sarif_patterns", []string{"**/*.sarif"})
	// Generated reports are excluded relative to the output directory at run time.
	v.SetDefault("extract.exclude", []string{})

	// -- Correlation --
	v.SetDefault("correlation.severity_threshold", "high")
	v.SetDefault("correlation.fail_on_high_risk", true)
	v.SetDefault("correlation.severity_weights", map[string]float64{
		"critical": 10,
		"high":     7,
		"medium":   4,
		"low":      1,
		"info":     0,
	})
	v.SetDefault("correlation.corroboration_bonus", 0.1)
	v.SetDefault("correlation.corroboration_cap", 5)
	v.SetDefault("correlation.high_risk_score", 7.0)
	v.SetDefault("correlation.medium_risk_score", 3.0)

	// -- Report --
	v.SetDefault("report.output_dir", "")
	v.SetDefault("report.top_n", 10)
	v.SetDefault("report.formats", append([]string(nil), ReportFormats...))
}

// BindEnv wires the plain CI environment variables onto their config keys.
// The prefixed form (VULNCORR_SCAN_RESULTS_DIR) takes precedence.
func BindEnv(v *viper.Viper) {
	_ = v.BindEnv("scan.results_dir", "VULNCORR_SCAN_RESULTS_DIR", "SCAN_RESULTS_DIR")
	_ = v.BindEnv("scan.advanced_mode", "VULNCORR_SCAN_ADVANCED_MODE", "ADVANCED_MODE")
	_ = v.BindEnv("scan.docker_repository", "VULNCORR_SCAN_DOCKER_REPOSITORY", "DOCKER_REPOSITORY")
	_ = v.BindEnv("correlation.severity_threshold", "VULNCORR_CORRELATION_SEVERITY_THRESHOLD", "SEVERITY_THRESHOLD")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	BindEnv(v)

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.ExpandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// ExpandPaths resolves a leading ~ in every path-valued setting and applies
// the output_dir fallback.
func (c *Config) ExpandPaths() error {
	var err error
	if c.ScanCfg.ResultsDir, err = homedir.Expand(c.ScanCfg.ResultsDir); err != nil {
		return fmt.Errorf("failed to expand scan.results_dir: %w", err)
	}
	if c.ReportCfg.OutputDir, err = homedir.Expand(c.ReportCfg.OutputDir); err != nil {
		return fmt.Errorf("failed to expand report.output_dir: %w", err)
	}
	if c.LoggerCfg.LogFile, err = homedir.Expand(c.LoggerCfg.LogFile); err != nil {
		return fmt.Errorf("failed to expand logger.log_file: %w", err)
	}
	if c.ReportCfg.OutputDir == "" {
		c.ReportCfg.OutputDir = c.ScanCfg.ResultsDir
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.ScanCfg.ResultsDir == "" {
		return fmt.Errorf("scan.results_dir is a required configuration field")
	}
	if err := c.CorrelationCfg.Validate(); err != nil {
		return fmt.Errorf("correlation configuration invalid: %w", err)
	}
	if c.ReportCfg.TopN <= 0 {
		return fmt.Errorf("report.top_n must be a positive integer")
	}
	if len(c.ReportCfg.Formats) == 0 {
		return fmt.Errorf("report.formats must name at least one format")
	}
	for _, f := range c.ReportCfg.Formats {
		if !slices.Contains(ReportFormats, f) {
			return fmt.Errorf("report.formats has unknown format %q", f)
		}
	}
	return nil
}

// Validate checks the CorrelationConfig settings.
func (cc *CorrelationConfig) Validate() error {
	if !severityNames[strings.ToLower(strings.TrimSpace(cc.SeverityThreshold))] {
		return fmt.Errorf("severity_threshold %q is not one of critical, high, medium, low, info", cc.SeverityThreshold)
	}
	for name, w := range cc.SeverityWeights {
		if !severityNames[strings.ToLower(name)] {
			return fmt.Errorf("severity_weights has unknown severity %q", name)
		}
		if w < 0 {
			return fmt.Errorf("severity_weights.%s must not be negative", name)
		}
	}
	if cc.CorroborationBonus < 0 {
		return fmt.Errorf("corroboration_bonus must not be negative")
	}
	if cc.CorroborationCap < 0 {
		return fmt.Errorf("corroboration_cap must not be negative")
	}
	if cc.MediumRiskScore > cc.HighRiskScore {
		return fmt.Errorf("medium_risk_score must not exceed high_risk_score")
	}
	return nil
}
