package results

import (
	"github.com/xkilldash9x/vulncorr/api/schemas"
)

// GenerateReport combines run metadata with a correlation outcome. The
// metadata's raw finding total and fallback count are taken from corr.
func GenerateReport(meta schemas.CorrelationMetadata, totalRaw int, corr *Correlation) *schemas.CorrelationReport {
	meta.TotalRawFindings = totalRaw
	meta.SeverityFallback = corr.Fallbacks
	if meta.ToolVersions == nil {
		meta.ToolVersions = map[string]string{}
	}
	if meta.InputsRead == nil {
		meta.InputsRead = []string{}
	}
	if meta.InputsSkipped == nil {
		meta.InputsSkipped = []schemas.SkippedInput{}
	}

	groups := corr.Groups
	if groups == nil {
		groups = []schemas.CorrelationGroup{}
	}
	return &schemas.CorrelationReport{
		Metadata: meta,
		Metrics:  corr.Metrics,
		Groups:   groups,
	}
}
