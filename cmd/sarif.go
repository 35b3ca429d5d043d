// -- cmd/sarif.go --
package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/vulncorr/internal/config"
	"github.com/xkilldash9x/vulncorr/internal/observability"
	"github.com/xkilldash9x/vulncorr/internal/reporting"
	"github.com/xkilldash9x/vulncorr/internal/results"
)

func newSARIFCmd() *cobra.Command {
	var output string

	sarifCmd := &cobra.Command{
		Use:   "sarif",
		Short: "Writes only the unified SARIF report",
		Long: `Merges the SARIF documents found in the results directory and converts the
findings of tools without native SARIF output into additional runs. The
severity threshold is not applied; the command exits 0 whenever the file
is written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			logger := observability.Component("sarif")
			return runSARIF(ctx, logger, cfg, output, cmd.OutOrStdout())
		},
	}

	sarifCmd.Flags().String("results-dir", "", "directory holding scanner output (overrides SCAN_RESULTS_DIR)")
	sarifCmd.Flags().StringVarP(&output, "output", "o", "", "output file (default is <output-dir>/sarif/unified-security-report.sarif)")

	return sarifCmd
}

// runSARIF contains the testable logic of the sarif command.
func runSARIF(ctx context.Context, logger *zap.Logger, cfg config.Interface, output string, out io.Writer) error {
	outcome, err := results.NewPipeline(cfg, Version, logger).Run(ctx)
	if err != nil {
		return fatal(fmt.Errorf("correlation failed: %w", err))
	}

	gen := reporting.NewSARIFReporter(Version)
	if output == "" {
		output = filepath.Join(cfg.Report().OutputDir, filepath.FromSlash(gen.Path()))
	}

	in := &reporting.Input{Report: outcome.Report, NativeSARIF: outcome.NativeSARIF}
	if err := reporting.WriteReport(output, gen, in); err != nil {
		return fatal(fmt.Errorf("failed to write SARIF report: %w", err))
	}

	logger.Info("SARIF report written.", zap.String("path", output), zap.Int("groups", len(outcome.Report.Groups)))
	fmt.Fprintln(out, output)
	return nil
}
