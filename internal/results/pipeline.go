package results

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/vulncorr/api/schemas"
	"github.com/xkilldash9x/vulncorr/internal/config"
	"github.com/xkilldash9x/vulncorr/internal/extract"
	"github.com/xkilldash9x/vulncorr/internal/reporting/sarif"
	"github.com/xkilldash9x/vulncorr/internal/results/providers"
)

// RunPipeline normalizes, enriches, correlates and prioritizes findings.
// Findings are normalized and enriched in place.
func RunPipeline(ctx context.Context, findings []schemas.VulnerabilityFinding, cfg PipelineConfig) (*Correlation, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	normalizer := NewNormalizer(logger)
	if err := normalizer.NormalizeAll(ctx, findings); err != nil {
		return nil, fmt.Errorf("pipeline cancelled during normalization: %w", err)
	}

	if err := Enrich(ctx, findings, cfg.CWEProvider, logger); err != nil {
		return nil, fmt.Errorf("error enriching findings: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("pipeline cancelled during correlation: %w", err)
	}
	groups := Prioritize(Correlate(findings), cfg.ScoreConfig)

	return &Correlation{
		Groups:    groups,
		Metrics:   ComputeMetrics(len(findings), groups),
		Fallbacks: normalizer.Fallbacks(),
	}, nil
}

// Outcome is everything a correlation run produces for the report generators.
type Outcome struct {
	Report *schemas.CorrelationReport
	// NativeSARIF holds the SARIF documents found in the results directory,
	// unmodified, for merging into the unified SARIF report.
	NativeSARIF []*sarif.Log
}

// Pipeline reads scanner output from the results directory and correlates it.
type Pipeline struct {
	cfg     config.Interface
	loader  *extract.Loader
	cwe     CWEProvider
	version string
	logger  *zap.Logger
	now     func() time.Time
}

// NewPipeline creates a new results processing pipeline. version is
// recorded as the generator version in the report metadata.
func NewPipeline(cfg config.Interface, version string, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		loader:  extract.NewLoader(nil, logger),
		cwe:     providers.NewInMemoryCWEProvider(),
		version: version,
		logger:  logger.Named("results_pipeline"),
		now:     time.Now,
	}
}

// Run discovers and loads every input, then correlates the findings. Only a
// missing results directory, invalid discovery patterns, or cancellation
// fail the run; unreadable inputs are recorded as skipped.
func (p *Pipeline) Run(ctx context.Context) (*Outcome, error) {
	scan := p.cfg.Scan()
	p.logger.Info("Starting correlation run", zap.String("results_dir", scan.ResultsDir))

	// Reports from earlier runs must never be read back as scanner output.
	extractCfg := p.cfg.Extract()
	extractCfg.Exclude = append(slices.Clone(extractCfg.Exclude),
		extract.OutputExcludes(scan.ResultsDir, p.cfg.Report().OutputDir, config.GeneratedOutputs)...)

	inv, err := extract.Discover(scan.ResultsDir, extractCfg, p.loader.Tools())
	if err != nil {
		return nil, fmt.Errorf("failed to discover scanner outputs: %w", err)
	}

	meta := schemas.CorrelationMetadata{
		RunID:            uuid.NewString(),
		ScanTimestamp:    p.now().UTC(),
		GeneratorVersion: p.version,
		ToolVersions:     make(map[string]string),
		DockerRepository: scan.DockerRepository,
		AdvancedMode:     scan.AdvancedMode,
	}

	for _, tool := range inv.Missing {
		patterns := strings.Join(p.cfg.Extract().Patterns[string(tool)], ",")
		p.logger.Warn("No scanner output found; treating as zero findings.",
			zap.String("tool", string(tool)), zap.String("patterns", patterns))
		meta.InputsSkipped = append(meta.InputsSkipped, schemas.SkippedInput{
			Path:   patterns,
			Tool:   tool,
			Reason: "no matching output file",
		})
	}

	var (
		findings []schemas.VulnerabilityFinding
		native   []*sarif.Log
		covered  = make(map[schemas.SourceTool]bool)
	)

	// Every tool read is recorded; those whose output embeds no version
	// keep an empty one until an input that does is read.
	record := func(res *extract.Result) {
		if meta.ToolVersions[string(res.Tool)] == "" {
			meta.ToolVersions[string(res.Tool)] = res.Version
		}
		findings = append(findings, res.Findings...)
	}

	for _, in := range inv.Inputs {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("pipeline cancelled during extraction: %w", err)
		}
		if in.SARIF {
			continue
		}
		res, err := p.loader.LoadFile(in.Path, in.Tool)
		if err != nil {
			meta.InputsSkipped = append(meta.InputsSkipped, schemas.SkippedInput{Path: in.Rel, Tool: in.Tool, Reason: err.Error()})
			continue
		}
		meta.InputsRead = append(meta.InputsRead, in.Rel)
		covered[in.Tool] = true
		record(res)
	}

	// SARIF runs from tools already read through their JSON extractor only
	// feed the SARIF merge; their findings would otherwise be counted twice.
	for _, in := range inv.Inputs {
		if !in.SARIF {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("pipeline cancelled during extraction: %w", err)
		}
		log, runs, err := p.loader.LoadSARIF(in.Path)
		if err != nil {
			meta.InputsSkipped = append(meta.InputsSkipped, schemas.SkippedInput{Path: in.Rel, Reason: err.Error()})
			continue
		}
		meta.InputsRead = append(meta.InputsRead, in.Rel)
		native = append(native, log)
		for _, res := range runs {
			if covered[res.Tool] {
				p.logger.Debug("SARIF run duplicates a JSON input; not correlated.",
					zap.String("file", in.Rel), zap.String("tool", string(res.Tool)))
				continue
			}
			record(res)
		}
	}

	corr, err := RunPipeline(ctx, findings, PipelineConfig{
		ScoreConfig: NewScoreConfig(p.cfg.Correlation()),
		CWEProvider: p.cwe,
		Logger:      p.logger,
	})
	if err != nil {
		return nil, err
	}

	report := GenerateReport(meta, len(findings), corr)
	p.logger.Info("Correlation complete",
		zap.String("run_id", meta.RunID),
		zap.Int("inputs_read", len(report.Metadata.InputsRead)),
		zap.Int("inputs_skipped", len(report.Metadata.InputsSkipped)),
		zap.Int("raw_findings", report.Metadata.TotalRawFindings),
		zap.Int("groups", report.Metrics.TotalGroups),
		zap.Int("multi_tool_groups", report.Metrics.MultiToolGroups),
		zap.Int("severity_fallbacks", report.Metadata.SeverityFallback))

	return &Outcome{Report: report, NativeSARIF: native}, nil
}
