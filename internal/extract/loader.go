package extract

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"go.uber.org/zap"

	"github.com/xkilldash9x/vulncorr/api/schemas"
	"github.com/xkilldash9x/vulncorr/internal/reporting/sarif"
)

// Loader reads scanner output files through a Registry, absorbing per-file
// failures.
type Loader struct {
	registry *Registry
	logger   *zap.Logger
}

// NewLoader creates a Loader. A nil registry means DefaultRegistry.
func NewLoader(registry *Registry, logger *zap.Logger) *Loader {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Loader{registry: registry, logger: logger.Named("extract")}
}

// Tools lists the tools the loader has extractors for.
func (l *Loader) Tools() []schemas.SourceTool {
	return l.registry.Tools()
}

// LoadFile extracts findings from path using the extractor for tool.
//
// The returned Result is never nil. When the file is missing or cannot be
// decoded the Result is empty, a warning is logged, and the error wraps
// ErrMissingInput or ErrMalformedInput so callers can record why the input
// was skipped. Such errors must not fail the run.
func (l *Loader) LoadFile(path string, tool schemas.SourceTool) (*Result, error) {
	empty := &Result{Tool: tool, Source: path, Findings: []schemas.VulnerabilityFinding{}}

	extractor, ok := l.registry.Get(tool)
	if !ok {
		err := fmt.Errorf("%w: %s", ErrUnknownTool, tool)
		l.logger.Warn("Skipping input for unsupported tool.", zap.String("file", path), zap.String("tool", string(tool)))
		return empty, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			l.logger.Warn("Scanner output not found; treating as zero findings.",
				zap.String("file", path), zap.String("tool", string(tool)))
			return empty, fmt.Errorf("%w: %s", ErrMissingInput, path)
		}
		l.logger.Warn("Failed to read scanner output; treating as zero findings.",
			zap.String("file", path), zap.String("tool", string(tool)), zap.Error(err))
		return empty, fmt.Errorf("%w: %v", ErrMissingInput, err)
	}

	res, err := extractor.Extract(data, path)
	if err != nil {
		l.logger.Warn("Skipping malformed scanner output.",
			zap.String("file", path), zap.String("tool", string(tool)), zap.Error(err))
		if !errors.Is(err, ErrMalformedInput) {
			err = fmt.Errorf("%w: %v", ErrMalformedInput, err)
		}
		return empty, err
	}

	l.logger.Debug("Extracted findings.",
		zap.String("file", path),
		zap.String("tool", string(tool)),
		zap.Int("count", len(res.Findings)),
		zap.String("tool_version", res.Version))
	return res, nil
}

// LoadSARIF reads a native SARIF document. Like LoadFile it never fails the
// run: on error it logs a warning and returns a nil log with an error
// wrapping ErrMissingInput or ErrMalformedInput.
func (l *Loader) LoadSARIF(path string) (*sarif.Log, []*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		l.logger.Warn("Failed to read SARIF input; skipping.", zap.String("file", path), zap.Error(err))
		return nil, nil, fmt.Errorf("%w: %v", ErrMissingInput, err)
	}
	if isBlank(data) {
		l.logger.Warn("Skipping empty SARIF input.", zap.String("file", path))
		return nil, nil, fmt.Errorf("%w: %s is empty", ErrMalformedInput, path)
	}

	log, results, err := ExtractSARIF(data, path)
	if err != nil {
		l.logger.Warn("Skipping malformed SARIF input.", zap.String("file", path), zap.Error(err))
		return nil, nil, err
	}

	l.logger.Debug("Read SARIF input.", zap.String("file", path), zap.Int("runs", len(log.Runs)))
	return log, results, nil
}
