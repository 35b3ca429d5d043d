package results

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/vulncorr/api/schemas"
	"github.com/xkilldash9x/vulncorr/internal/config"
)

// ScoreConfig defines the parameters for the prioritization process.
type ScoreConfig struct {
	// Keys are lower-cased severity names ("critical", "high", ...).
	SeverityWeights map[string]float64
	// CorroborationBonus is the score multiplier added per extra tool, up to
	// CorroborationCap extra tools.
	CorroborationBonus float64
	CorroborationCap   int
	HighRiskScore      float64
	MediumRiskScore    float64
}

// NewScoreConfig derives the scoring parameters from configuration.
func NewScoreConfig(cfg config.CorrelationConfig) ScoreConfig {
	weights := make(map[string]float64, len(cfg.SeverityWeights))
	for k, v := range cfg.SeverityWeights {
		weights[strings.ToLower(k)] = v
	}
	return ScoreConfig{
		SeverityWeights:    weights,
		CorroborationBonus: cfg.CorroborationBonus,
		CorroborationCap:   cfg.CorroborationCap,
		HighRiskScore:      cfg.HighRiskScore,
		MediumRiskScore:    cfg.MediumRiskScore,
	}
}

// DefaultScoreConfig returns the scoring parameters of the default configuration.
func DefaultScoreConfig() ScoreConfig {
	return NewScoreConfig(config.NewDefaultConfig().Correlation())
}

// CWEProvider defines an interface for CWE data retrieval.
type CWEProvider interface {
	GetFullName(ctx context.Context, cweID string) (string, bool)
}

// PipelineConfig holds everything RunPipeline needs.
type PipelineConfig struct {
	ScoreConfig ScoreConfig
	// CWEProvider is optional. If nil, CWE enrichment is skipped.
	CWEProvider CWEProvider
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// Correlation is the in-memory outcome of RunPipeline.
type Correlation struct {
	Groups  []schemas.CorrelationGroup
	Metrics schemas.CorrelationMetrics
	// Fallbacks counts findings whose severity could not be mapped.
	Fallbacks int
}
