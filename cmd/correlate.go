// -- cmd/correlate.go --
package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/vulncorr/api/schemas"
	"github.com/xkilldash9x/vulncorr/internal/config"
	"github.com/xkilldash9x/vulncorr/internal/observability"
	"github.com/xkilldash9x/vulncorr/internal/reporting"
	"github.com/xkilldash9x/vulncorr/internal/results"
)

// Process exit codes.
const (
	ExitOK         = 0
	ExitEscalation = 1
	ExitFatal      = 2
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

func fatal(err error) error {
	return &ExitError{Code: ExitFatal, Err: err}
}

func newCorrelateCmd() *cobra.Command {
	var noFail bool

	correlateCmd := &cobra.Command{
		Use:   "correlate",
		Short: "Correlates scanner output and writes every configured report",
		Long: `Reads scanner output from the results directory, normalizes severities,
merges findings that describe the same issue, scores each group, and writes the
configured reports. Exits with status 1 when high-risk groups at or above the
severity threshold are found.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if noFail {
				cfg.SetCorrelationFailOnHighRisk(false)
			}
			logger := observability.Component("correlate")
			return runCorrelate(ctx, logger, cfg, cmd.OutOrStdout())
		},
	}

	correlateCmd.Flags().String("results-dir", "", "directory holding scanner output (overrides SCAN_RESULTS_DIR)")
	correlateCmd.Flags().String("output-dir", "", "directory for generated reports (default is the results directory)")
	correlateCmd.Flags().Int("top", 0, "number of groups listed in summaries")
	correlateCmd.Flags().StringSlice("formats", nil, "reports to generate: "+strings.Join(config.ReportFormats, ", "))
	correlateCmd.Flags().String("severity-threshold", "", "lowest severity that escalates the exit code (overrides SEVERITY_THRESHOLD)")
	correlateCmd.Flags().BoolVar(&noFail, "no-fail", false, "always exit 0 when the run succeeds")

	return correlateCmd
}

// runCorrelate contains the testable logic of the correlate command.
func runCorrelate(ctx context.Context, logger *zap.Logger, cfg config.Interface, out io.Writer) error {
	outcome, err := results.NewPipeline(cfg, Version, logger).Run(ctx)
	if err != nil {
		return fatal(fmt.Errorf("correlation failed: %w", err))
	}

	in := &reporting.Input{
		Report:      outcome.Report,
		NativeSARIF: outcome.NativeSARIF,
		TopN:        cfg.Report().TopN,
	}
	outcomes, err := reporting.DefaultRegistry(Version).GenerateAll(cfg.Report().OutputDir, cfg.Report().Formats, in, logger)
	if err != nil {
		return fatal(fmt.Errorf("report generation failed: %w", err))
	}

	printSummary(out, outcome.Report, outcomes)

	threshold, ok := schemas.ParseSeverity(cfg.Correlation().SeverityThreshold)
	if !ok {
		return fatal(fmt.Errorf("unknown severity threshold %q", cfg.Correlation().SeverityThreshold))
	}
	escalations := results.Escalations(outcome.Report.Groups, threshold)
	if len(escalations) == 0 {
		return nil
	}

	ids := make([]string, 0, len(escalations))
	for _, g := range escalations {
		ids = append(ids, g.CanonicalID)
	}
	logger.Warn("High-risk findings at or above the severity threshold.",
		zap.String("threshold", string(threshold)),
		zap.Int("groups", len(escalations)),
		zap.Strings("ids", ids))

	if !cfg.Correlation().FailOnHighRisk {
		return nil
	}
	return &ExitError{
		Code: ExitEscalation,
		Err:  fmt.Errorf("%d high-risk groups at or above %s", len(escalations), threshold),
	}
}

func printSummary(out io.Writer, r *schemas.CorrelationReport, outcomes []reporting.Outcome) {
	risk := r.RiskCounts()
	fmt.Fprintf(out, "Correlated %d raw findings into %d groups (%d duplicates removed).\n",
		r.Metadata.TotalRawFindings, r.Metrics.TotalGroups, r.Metrics.DuplicateFindingsRemoved)
	fmt.Fprintf(out, "Risk: %d high, %d medium, %d low.\n",
		risk[schemas.RiskHigh], risk[schemas.RiskMedium], risk[schemas.RiskLow])
	for _, o := range outcomes {
		if o.Err != nil {
			fmt.Fprintf(out, "  %-20s FAILED: %v\n", o.Format, o.Err)
			continue
		}
		fmt.Fprintf(out, "  %-20s %s\n", o.Format, o.Path)
	}
}
