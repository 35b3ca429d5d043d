package reporting

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/vulncorr/api/schemas"
	"github.com/xkilldash9x/vulncorr/internal/reporting/sarif"
)

var (
	// ErrOutputDir is returned when an output directory cannot be created.
	ErrOutputDir = errors.New("cannot create output directory")
	// ErrCoreReport is returned when a core report could not be written.
	ErrCoreReport = errors.New("core report not produced")
	// ErrUnknownFormat is returned for a format name with no generator.
	ErrUnknownFormat = errors.New("unsupported output format")
)

// Input is everything a generator may render.
type Input struct {
	Report *schemas.CorrelationReport
	// NativeSARIF holds SARIF documents found among the scanner outputs.
	NativeSARIF []*sarif.Log
	// TopN bounds the "top groups" sections of the summaries.
	TopN int
}

// Generator renders one report format.
type Generator interface {
	// Name is the format name used in configuration.
	Name() string
	// Path is the report location relative to the output directory.
	Path() string
	// Core reports whether a failure of this generator fails the run.
	Core() bool
	// Generate writes the report to w.
	Generate(w io.Writer, in *Input) error
}

// Outcome records what happened to one requested format.
type Outcome struct {
	Format   string
	Path     string
	Core     bool
	Err      error
	Duration time.Duration
}

// Registry maps format names to generators, keeping registration order.
type Registry struct {
	generators []Generator
}

// NewRegistry returns a registry holding the given generators.
func NewRegistry(generators ...Generator) *Registry {
	r := &Registry{}
	for _, g := range generators {
		r.Register(g)
	}
	return r
}

// DefaultRegistry holds every built-in report format. version is recorded
// in synthesized SARIF runs.
func DefaultRegistry(version string) *Registry {
	return NewRegistry(
		CorrelationJSON{},
		CorrelationSummary{},
		RiskSummary{},
		NewSARIFReporter(version),
		HTMLReport{},
		ExecutiveSummary{},
		APIResponse{},
		CSVReport{},
	)
}

// Register adds g, replacing any generator with the same name.
func (r *Registry) Register(g Generator) {
	for i, existing := range r.generators {
		if existing.Name() == g.Name() {
			r.generators[i] = g
			return
		}
	}
	r.generators = append(r.generators, g)
}

// Lookup returns the generator for format.
func (r *Registry) Lookup(format string) (Generator, error) {
	for _, g := range r.generators {
		if g.Name() == format {
			return g, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
}

// Names lists the registered formats in registration order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.generators))
	for _, g := range r.generators {
		names = append(names, g.Name())
	}
	return names
}

// GenerateAll writes every requested format below outputDir. Formats are
// produced in registration order whatever order they are requested in.
// A failing generator is logged and recorded in its Outcome without stopping
// the others; the returned error is non-nil only when a directory cannot be
// created or a core report fails.
func (r *Registry) GenerateAll(outputDir string, formats []string, in *Input, logger *zap.Logger) ([]Outcome, error) {
	logger = logger.Named("reporting")

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrOutputDir, outputDir, err)
	}

	for _, f := range formats {
		if _, err := r.Lookup(f); err != nil {
			return nil, err
		}
	}

	var (
		outcomes []Outcome
		errs     []error
	)
	for _, g := range r.generators {
		if !slices.Contains(formats, g.Name()) {
			continue
		}

		start := time.Now()
		path := filepath.Join(outputDir, filepath.FromSlash(g.Path()))
		err := WriteReport(path, g, in)
		outcome := Outcome{Format: g.Name(), Path: path, Core: g.Core(), Err: err, Duration: time.Since(start)}
		outcomes = append(outcomes, outcome)

		switch {
		case err == nil:
			logger.Info("Report written.", zap.String("format", g.Name()), zap.String("path", path))
		case errors.Is(err, ErrOutputDir):
			logger.Error("Failed to create report directory.", zap.String("format", g.Name()), zap.Error(err))
			errs = append(errs, err)
		case g.Core():
			logger.Error("Failed to write core report.", zap.String("format", g.Name()), zap.Error(err))
			errs = append(errs, fmt.Errorf("%w: %s: %v", ErrCoreReport, g.Name(), err))
		default:
			logger.Warn("Failed to write report; continuing.", zap.String("format", g.Name()), zap.Error(err))
		}
	}

	return outcomes, errors.Join(errs...)
}

// WriteReport renders g into memory first so that a failing generator never
// leaves a truncated file behind.
func WriteReport(path string, g Generator, in *Input) error {
	var buf bytes.Buffer
	if err := g.Generate(&buf, in); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w %s: %v", ErrOutputDir, filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to create output file %s: %w", path, err)
	}
	return nil
}

// topN resolves the configured limit, treating non-positive as "all".
func (in *Input) topN() int {
	if in.TopN <= 0 {
		return -1
	}
	return in.TopN
}

func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}
