package extract

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/xkilldash9x/vulncorr/api/schemas"
	"github.com/xkilldash9x/vulncorr/internal/config"
)

// ErrResultsDir is returned when the results directory is missing or is not a directory.
var ErrResultsDir = errors.New("results directory unavailable")

// Input is a scanner output file found under the results directory.
type Input struct {
	// Path is the full path on disk; Rel is slash-separated and relative to the results dir.
	Path string
	Rel  string
	Tool schemas.SourceTool
	// SARIF inputs are native SARIF documents; Tool is empty for them.
	SARIF bool
}

// Inventory is the outcome of discovery.
type Inventory struct {
	Inputs []Input
	// Missing lists tools whose patterns matched no file.
	Missing []schemas.SourceTool
}

// Discover walks root and classifies files using the doublestar patterns in
// cfg. Tools are matched in the given order and a file is claimed by the
// first tool that matches it; unclaimed files matching cfg.SARIFPatterns
// become SARIF inputs. Inputs are ordered by tool, then path.
func Discover(root string, cfg config.ExtractConfig, tools []schemas.SourceTool) (*Inventory, error) {
	if err := validatePatterns(cfg, tools); err != nil {
		return nil, err
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResultsDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrResultsDir, root)
	}

	var files []string
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped rather than failing discovery.
			if d != nil && d.IsDir() && path != root {
				return fs.SkipDir
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if matchAny(cfg.Exclude, rel) {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrResultsDir, walkErr)
	}

	inv := &Inventory{}
	claimed := make(map[string]bool, len(files))
	for _, tool := range tools {
		found := false
		for _, rel := range files {
			if claimed[rel] || !matchAny(cfg.Patterns[string(tool)], rel) {
				continue
			}
			claimed[rel] = true
			found = true
			inv.Inputs = append(inv.Inputs, Input{Path: filepath.Join(root, filepath.FromSlash(rel)), Rel: rel, Tool: tool})
		}
		if !found {
			inv.Missing = append(inv.Missing, tool)
		}
	}

	for _, rel := range files {
		if claimed[rel] || !matchAny(cfg.SARIFPatterns, rel) {
			continue
		}
		inv.Inputs = append(inv.Inputs, Input{Path: filepath.Join(root, filepath.FromSlash(rel)), Rel: rel, SARIF: true})
	}
	return inv, nil
}

func validatePatterns(cfg config.ExtractConfig, tools []schemas.SourceTool) error {
	check := func(patterns []string) error {
		for _, p := range patterns {
			if !doublestar.ValidatePattern(p) {
				return fmt.Errorf("invalid glob pattern %q", p)
			}
		}
		return nil
	}
	for _, tool := range tools {
		if err := check(cfg.Patterns[string(tool)]); err != nil {
			return fmt.Errorf("extract.patterns.%s: %w", tool, err)
		}
	}
	if err := check(cfg.SARIFPatterns); err != nil {
		return fmt.Errorf("extract.sarif_patterns: %w", err)
	}
	if err := check(cfg.Exclude); err != nil {
		return fmt.Errorf("extract.exclude: %w", err)
	}
	return nil
}

func matchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// OutputExcludes rewrites outputs, patterns relative to outputDir, into
// patterns relative to resultsDir. An empty outputDir means resultsDir.
// Nothing is returned when outputDir lies outside resultsDir.
func OutputExcludes(resultsDir, outputDir string, outputs []string) []string {
	if outputDir == "" {
		outputDir = resultsDir
	}
	absResults, err := filepath.Abs(resultsDir)
	if err != nil {
		return nil
	}
	absOutput, err := filepath.Abs(outputDir)
	if err != nil {
		return nil
	}
	rel, err := filepath.Rel(absResults, absOutput)
	if err != nil {
		return nil
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return nil
	}

	prefix := globEscaper.Replace(rel)
	patterns := make([]string, 0, len(outputs))
	for _, p := range outputs {
		patterns = append(patterns, path.Join(prefix, p))
	}
	return patterns
}

var globEscaper = strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`, "]", `\]`, "{", `\{`, "}", `\}`)
