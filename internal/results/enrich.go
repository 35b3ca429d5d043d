package results

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/vulncorr/api/schemas"
	"github.com/xkilldash9x/vulncorr/internal/results/providers"
)

// minDescriptionLen is the length below which a description is considered
// too thin to stand on its own and is prefixed with the CWE name.
const minDescriptionLen = 20

// Category defaults for findings that arrive without one, mostly from
// SARIF-only tools. Unlisted tools are treated as code scanners.
var (
	configurationTools = map[schemas.SourceTool]bool{
		schemas.ToolHadolint: true,
		"checkov":            true,
		"tfsec":              true,
		"kics":               true,
		"terrascan":          true,
		"dockle":             true,
	}
	vulnerabilityTools = map[schemas.SourceTool]bool{
		schemas.ToolTrivy:    true,
		schemas.ToolGrype:    true,
		schemas.ToolSafety:   true,
		schemas.ToolPipAudit: true,
		"osv-scanner":        true,
	}
)

// DefaultCategory returns the category assumed for findings of tool that
// did not set one.
func DefaultCategory(tool schemas.SourceTool) schemas.Category {
	switch {
	case configurationTools[tool]:
		return schemas.CategoryConfiguration
	case vulnerabilityTools[tool]:
		return schemas.CategoryVulnerability
	default:
		return schemas.CategoryCode
	}
}

// Enricher is responsible for enhancing findings with additional context.
type Enricher struct {
	cweProvider CWEProvider
	logger      *zap.Logger
}

// NewEnricher creates a new Enricher. cweProvider may be nil.
func NewEnricher(cweProvider CWEProvider, logger *zap.Logger) *Enricher {
	return &Enricher{
		cweProvider: cweProvider,
		logger:      logger.Named("enricher"),
	}
}

// EnrichFinding enhances a single finding.
func (e *Enricher) EnrichFinding(ctx context.Context, finding *schemas.VulnerabilityFinding) {
	if finding.Category == "" {
		finding.Category = DefaultCategory(finding.SourceTool)
	}
	finding.CWE = normalizeCWEs(finding.CWE)
	e.enrichCWE(ctx, finding)
}

func (e *Enricher) enrichCWE(ctx context.Context, finding *schemas.VulnerabilityFinding) {
	if len(finding.CWE) == 0 || e.cweProvider == nil {
		return
	}
	if len(strings.TrimSpace(finding.Description)) >= minDescriptionLen {
		return
	}

	// Only the first CWE is used.
	cweID := finding.CWE[0]
	name, ok := e.cweProvider.GetFullName(ctx, cweID)
	if !ok {
		e.logger.Debug("CWE not in catalogue", zap.String("cwe_id", cweID))
		return
	}

	desc := strings.TrimSpace(finding.Description)
	if desc == "" {
		finding.Description = name
		return
	}
	finding.Description = fmt.Sprintf("[%s] %s", name, desc)
}

// normalizeCWEs rewrites CWE identifiers to the "CWE-N" form and drops
// entries that carry no number, such as "NVD-CWE-Other".
func normalizeCWEs(ids []string) []string {
	if len(ids) == 0 {
		return ids
	}
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		n := providers.NormalizeID(id)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// Enrich applies EnrichFinding to every finding in place.
func Enrich(ctx context.Context, findings []schemas.VulnerabilityFinding, cweProvider CWEProvider, logger *zap.Logger) error {
	enricher := NewEnricher(cweProvider, logger)
	for i := range findings {
		select {
		case <-ctx.Done():
			return fmt.Errorf("enrichment cancelled: %w", ctx.Err())
		default:
		}
		enricher.EnrichFinding(ctx, &findings[i])
	}
	return nil
}
