// Package extract turns raw scanner output files into VulnerabilityFindings.
// Each supported tool has a typed schema and an Extractor; malformed or
// missing files never abort a run.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/vulncorr/api/schemas"
)

var (
	// ErrMissingInput is returned (and logged) when an expected scanner output file does not exist.
	ErrMissingInput = errors.New("scanner output not found")
	// ErrMalformedInput is returned (and logged) when a file cannot be decoded as the tool's schema.
	ErrMalformedInput = errors.New("malformed scanner output")
	// ErrUnknownTool is returned when no extractor is registered for a tool.
	ErrUnknownTool = errors.New("no extractor registered for tool")
)

// Result is the output of extracting a single file.
type Result struct {
	Tool schemas.SourceTool
	// Version is the scanner version when the output embeds one.
	Version  string
	Source   string
	Findings []schemas.VulnerabilityFinding
}

// Extractor produces findings from one tool's JSON output.
type Extractor interface {
	Tool() schemas.SourceTool
	// Extract decodes data. source is recorded on every finding.
	Extract(data []byte, source string) (*Result, error)
}

// Registry maps source tools to their extractors.
type Registry struct {
	extractors map[schemas.SourceTool]Extractor
	order      []schemas.SourceTool
}

// NewRegistry builds a registry from the given extractors. A later
// extractor for the same tool replaces an earlier one.
func NewRegistry(extractors ...Extractor) *Registry {
	r := &Registry{extractors: make(map[schemas.SourceTool]Extractor)}
	for _, e := range extractors {
		r.Register(e)
	}
	return r
}

// DefaultRegistry returns a registry with every built-in extractor.
func DefaultRegistry() *Registry {
	return NewRegistry(
		TrivyExtractor{},
		GrypeExtractor{},
		SafetyExtractor{},
		PipAuditExtractor{},
		HadolintExtractor{},
		BanditExtractor{},
	)
}

// Register adds or replaces the extractor for e.Tool().
func (r *Registry) Register(e Extractor) {
	if _, exists := r.extractors[e.Tool()]; !exists {
		r.order = append(r.order, e.Tool())
	}
	r.extractors[e.Tool()] = e
}

// Get returns the extractor for tool.
func (r *Registry) Get(tool schemas.SourceTool) (Extractor, bool) {
	e, ok := r.extractors[tool]
	return e, ok
}

// Tools lists registered tools in registration order.
func (r *Registry) Tools() []schemas.SourceTool {
	out := make([]schemas.SourceTool, len(r.order))
	copy(out, r.order)
	return out
}

// -- decoding helpers shared by the per-tool extractors --

// isBlank reports whether data holds nothing but whitespace. Scanners that
// find nothing sometimes write an empty file instead of an empty document.
func isBlank(data []byte) bool {
	return len(bytes.TrimSpace(data)) == 0
}

// firstByte returns the first non-whitespace byte, or 0.
func firstByte(data []byte) byte {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}

func decode(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	return nil
}

// summarize returns the first line of s, cut to max runes.
func summarize(s string, max int) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	runes := []rune(s)
	if len(runes) > max {
		return string(runes[:max-3]) + "..."
	}
	return s
}

// nonEmpty returns the first argument that is not blank.
func nonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// appendUnique appends values not already present in dst, skipping blanks.
func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		found := false
		for _, existing := range dst {
			if existing == v {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, v)
		}
	}
	return dst
}

// splitList splits a comma separated value and trims each element.
func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

const maxTitleLen = 120
