package results

import (
	"math"
	"sort"
	"strings"

	"github.com/xkilldash9x/vulncorr/api/schemas"
)

// Score computes a group's priority:
//
//	weight(severity) * (1 + bonus * min(tools-1, cap))
//
// Severities without a configured weight score 0. The result is rounded to
// two decimals so that equal inputs always compare equal.
func Score(sev schemas.Severity, tools int, config ScoreConfig) float64 {
	weight := config.SeverityWeights[strings.ToLower(string(sev))]
	extra := tools - 1
	if extra > config.CorroborationCap {
		extra = config.CorroborationCap
	}
	if extra < 0 {
		extra = 0
	}
	score := weight * (1 + config.CorroborationBonus*float64(extra))
	return math.Round(score*100) / 100
}

// Risk buckets a priority score.
func Risk(score float64, config ScoreConfig) schemas.RiskLevel {
	switch {
	case score >= config.HighRiskScore:
		return schemas.RiskHigh
	case score >= config.MediumRiskScore:
		return schemas.RiskMedium
	default:
		return schemas.RiskLow
	}
}

// Prioritize scores every group and sorts the slice in place: priority
// descending, then canonical ID, then group key. The sort is stable.
func Prioritize(groups []schemas.CorrelationGroup, config ScoreConfig) []schemas.CorrelationGroup {
	for i := range groups {
		groups[i].PriorityScore = Score(groups[i].NormalizedSeverity, groups[i].ToolCount(), config)
		groups[i].RiskLevel = Risk(groups[i].PriorityScore, config)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		a, b := &groups[i], &groups[j]
		if a.PriorityScore != b.PriorityScore {
			return a.PriorityScore > b.PriorityScore
		}
		if a.CanonicalID != b.CanonicalID {
			return a.CanonicalID < b.CanonicalID
		}
		return a.GroupKey < b.GroupKey
	})
	return groups
}

// Escalations returns the high-risk groups whose severity is at least
// threshold. A non-empty result makes a CI run fail.
func Escalations(groups []schemas.CorrelationGroup, threshold schemas.Severity) []schemas.CorrelationGroup {
	var out []schemas.CorrelationGroup
	for _, g := range groups {
		if g.RiskLevel == schemas.RiskHigh && g.NormalizedSeverity.AtLeast(threshold) {
			out = append(out, g)
		}
	}
	return out
}

// ComputeMetrics derives the deduplication metrics for a run.
func ComputeMetrics(totalRaw int, groups []schemas.CorrelationGroup) schemas.CorrelationMetrics {
	m := schemas.CorrelationMetrics{
		TotalGroups:         len(groups),
		CorrelationAccuracy: 1,
	}
	for i := range groups {
		if groups[i].ToolCount() > 1 {
			m.MultiToolGroups++
		}
	}
	if totalRaw == 0 {
		return m
	}
	m.DuplicateFindingsRemoved = totalRaw - len(groups)
	ratio := float64(m.DuplicateFindingsRemoved) / float64(totalRaw)
	m.DedupRatio = round4(ratio)
	m.CorrelationAccuracy = round4(1 - ratio)
	return m
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
