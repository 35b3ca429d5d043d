package results

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/xkilldash9x/vulncorr/api/schemas"
)

// toolVocabulary holds the words whose meaning depends on the tool that
// used them. It is consulted before commonVocabulary.
var toolVocabulary = map[schemas.SourceTool]map[string]schemas.Severity{
	schemas.ToolHadolint: {
		"error":   schemas.SeverityHigh,
		"warning": schemas.SeverityMedium,
		"info":    schemas.SeverityLow,
		"style":   schemas.SeverityInfo,
		"ignore":  schemas.SeverityInfo,
	},
	schemas.ToolGrype: {
		"negligible": schemas.SeverityInfo,
	},
	schemas.ToolBandit: {
		"undefined": schemas.SeverityLow,
	},
}

// commonVocabulary covers the qualitative levels shared by most scanners,
// including the SARIF result levels.
var commonVocabulary = map[string]schemas.Severity{
	"critical":      schemas.SeverityCritical,
	"fatal":         schemas.SeverityCritical,
	"high":          schemas.SeverityHigh,
	"important":     schemas.SeverityHigh,
	"error":         schemas.SeverityHigh,
	"medium":        schemas.SeverityMedium,
	"moderate":      schemas.SeverityMedium,
	"warning":       schemas.SeverityMedium,
	"low":           schemas.SeverityLow,
	"note":          schemas.SeverityLow,
	"info":          schemas.SeverityInfo,
	"informational": schemas.SeverityInfo,
	"negligible":    schemas.SeverityInfo,
	"none":          schemas.SeverityInfo,
}

// FallbackSeverity is assigned when neither the raw severity nor a CVSS
// score can be mapped.
const FallbackSeverity = schemas.SeverityMedium

// CVSSBucket maps a CVSS base score onto the five-level scale.
func CVSSBucket(score float64) schemas.Severity {
	switch {
	case score >= 9.0:
		return schemas.SeverityCritical
	case score >= 7.0:
		return schemas.SeverityHigh
	case score >= 4.0:
		return schemas.SeverityMedium
	case score > 0:
		return schemas.SeverityLow
	default:
		return schemas.SeverityInfo
	}
}

func validScore(score float64) bool {
	return score >= 0 && score <= 10
}

// lookupSeverity resolves a raw severity string without considering CVSS.
func lookupSeverity(tool schemas.SourceTool, raw string) (schemas.Severity, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return "", false
	}
	if sev, ok := toolVocabulary[tool][key]; ok {
		return sev, true
	}
	if sev, ok := commonVocabulary[key]; ok {
		return sev, true
	}
	if score, err := strconv.ParseFloat(key, 64); err == nil && validScore(score) {
		return CVSSBucket(score), true
	}
	return "", false
}

// Classify maps a raw severity and optional CVSS score onto the normalized
// scale. When both are usable and disagree the more severe level wins. The
// boolean result reports that neither was usable and FallbackSeverity was
// returned. Classify is pure.
func Classify(tool schemas.SourceTool, raw string, cvss *float64) (schemas.Severity, bool) {
	qualitative, known := lookupSeverity(tool, raw)
	hasScore := cvss != nil && validScore(*cvss)

	switch {
	case known && hasScore:
		return schemas.MaxSeverity(qualitative, CVSSBucket(*cvss)), false
	case known:
		return qualitative, false
	case hasScore:
		return CVSSBucket(*cvss), false
	default:
		return FallbackSeverity, true
	}
}

// Normalizer assigns NormalizedSeverity to findings and keeps count of
// how many needed the fallback.
type Normalizer struct {
	logger    *zap.Logger
	fallbacks atomic.Int64
}

// NewNormalizer creates a Normalizer.
func NewNormalizer(logger *zap.Logger) *Normalizer {
	return &Normalizer{logger: logger.Named("normalizer")}
}

// Normalize sets f.NormalizedSeverity.
func (n *Normalizer) Normalize(f *schemas.VulnerabilityFinding) {
	sev, fallback := Classify(f.SourceTool, f.RawSeverity, f.CVSSScore)
	f.NormalizedSeverity = sev
	if fallback {
		n.fallbacks.Add(1)
		n.logger.Info("Unmapped severity; defaulting to MEDIUM.",
			zap.String("tool", string(f.SourceTool)),
			zap.String("id", f.ID),
			zap.String("raw_severity", f.RawSeverity))
	}
}

// NormalizeAll normalizes findings in place. It stops early if ctx is cancelled.
func (n *Normalizer) NormalizeAll(ctx context.Context, findings []schemas.VulnerabilityFinding) error {
	for i := range findings {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("normalization cancelled: %w", err)
		}
		n.Normalize(&findings[i])
	}
	return nil
}

// Fallbacks returns the number of findings that received FallbackSeverity.
func (n *Normalizer) Fallbacks() int {
	return int(n.fallbacks.Load())
}
