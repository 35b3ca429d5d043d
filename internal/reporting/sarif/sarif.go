package sarif

import (
	"bytes"
	stdjson "encoding/json"
	"fmt"
	"maps"
	"io"
	"strings"

	json "github.com/json-iterator/go"
)

// This file defines the Go structs for the SARIF 2.1.0 standard.
// Pointers are used for optional fields. Required fields use value types.
// Members not modelled here are kept in each object's Extras and written back
// out unchanged.

const (
	Version = "2.1.0"
	Schema  = "https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json"
)

type Log struct {
	Version string `json:"version"`
	Schema  string `json:"$schema"`
	Runs    []*Run `json:"runs"`
	Extras  Extras `json:"-"`
}

type Run struct {
	Tool               *Tool                        `json:"tool"`
	Results            []*Result                    `json:"results"`
	OriginalURIBaseIDs map[string]*ArtifactLocation `json:"originalUriBaseIds,omitempty"`
	Properties         PropertyBag                  `json:"properties,omitempty"`
	Extras             Extras                       `json:"-"`
}

type Tool struct {
	Driver *ToolComponent `json:"driver"`
	Extras Extras         `json:"-"`
}

// ToolComponent describes the tool that produced the results. Pointers are used for optional bits.
type ToolComponent struct {
	Name            string                 `json:"name"`
	Version         *string                `json:"version,omitempty"`
	SemanticVersion *string                `json:"semanticVersion,omitempty"`
	InformationURI  *string                `json:"informationUri,omitempty"`
	Rules           []*ReportingDescriptor `json:"rules,omitempty"`
	Extras          Extras                 `json:"-"`
}

type ReportingDescriptor struct {
	ID                   string                    `json:"id"` // Required
	Name                 *string                   `json:"name,omitempty"`
	ShortDescription     *MultiformatMessageString `json:"shortDescription,omitempty"`
	FullDescription      *MultiformatMessageString `json:"fullDescription,omitempty"`
	Help                 *MultiformatMessageString `json:"help,omitempty"`
	HelpURI              *string                   `json:"helpUri,omitempty"`
	DefaultConfiguration *Configuration            `json:"defaultConfiguration,omitempty"`
	Properties           PropertyBag               `json:"properties,omitempty"`
	Extras               Extras                    `json:"-"`
}

type Configuration struct {
	Level Level `json:"level,omitempty"`
}

type Result struct {
	RuleID              string            `json:"ruleId"` // Required
	RuleIndex           *int              `json:"ruleIndex,omitempty"`
	Message             *Message          `json:"message"`
	Level               Level             `json:"level,omitempty"`
	Locations           []*Location       `json:"locations,omitempty"`
	Fingerprints        map[string]string `json:"fingerprints,omitempty"`
	PartialFingerprints map[string]string `json:"partialFingerprints,omitempty"`
	Properties          PropertyBag       `json:"properties,omitempty"`
	Extras              Extras            `json:"-"`
}

type Location struct {
	PhysicalLocation *PhysicalLocation `json:"physicalLocation,omitempty"`
	Message          *Message          `json:"message,omitempty"`
	Extras           Extras            `json:"-"`
}

type PhysicalLocation struct {
	ArtifactLocation *ArtifactLocation `json:"artifactLocation,omitempty"`
	Region           *Region           `json:"region,omitempty"`
	Extras           Extras            `json:"-"`
}

type ArtifactLocation struct {
	URI       *string `json:"uri,omitempty"`
	URIBaseID *string `json:"uriBaseId,omitempty"`
	Extras    Extras  `json:"-"`
}

type Region struct {
	StartLine   *int   `json:"startLine,omitempty"`
	StartColumn *int   `json:"startColumn,omitempty"`
	EndLine     *int   `json:"endLine,omitempty"`
	EndColumn   *int   `json:"endColumn,omitempty"`
	Extras      Extras `json:"-"`
}

type Message struct {
	Text   *string `json:"text,omitempty"`
	Extras Extras  `json:"-"`
}

type MultiformatMessageString struct {
	Text     *string `json:"text"`
	Markdown *string `json:"markdown,omitempty"`
}

type PropertyBag map[string]interface{}

type Level string

const (
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelNote    Level = "note"
	LevelNone    Level = "none"
)

// String returns a pointer to s, for the optional string fields above.
func String(s string) *string { return &s }

// Int returns a pointer to i.
func Int(i int) *int { return &i }

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// New returns an empty 2.1.0 log.
func New() *Log {
	return &Log{Version: Version, Schema: Schema, Runs: []*Run{}}
}

// NewRun returns a run for the named driver with no results.
func NewRun(driver, version, informationURI string) *Run {
	tc := &ToolComponent{Name: driver}
	if version != "" {
		tc.Version = String(version)
	}
	if informationURI != "" {
		tc.InformationURI = String(informationURI)
	}
	return &Run{Tool: &Tool{Driver: tc}, Results: []*Result{}}
}

// DriverName returns the run's tool.driver.name, or "" for a malformed run.
func (r *Run) DriverName() string {
	if r == nil || r.Tool == nil || r.Tool.Driver == nil {
		return ""
	}
	return r.Tool.Driver.Name
}

// RuleByID returns the driver rule with the given id, if present.
func (r *Run) RuleByID(id string) *ReportingDescriptor {
	if r.Tool == nil || r.Tool.Driver == nil {
		return nil
	}
	for _, rule := range r.Tool.Driver.Rules {
		if rule != nil && rule.ID == id {
			return rule
		}
	}
	return nil
}

// RuleFor returns the driver rule a result refers to. A ruleIndex in range
// wins when the result carries no ruleId or the ids agree; otherwise the rule
// is looked up by id.
func (r *Run) RuleFor(res *Result) *ReportingDescriptor {
	if r.Tool == nil || r.Tool.Driver == nil || res == nil {
		return nil
	}
	rules := r.Tool.Driver.Rules
	if i := res.RuleIndex; i != nil && *i >= 0 && *i < len(rules) {
		if rule := rules[*i]; rule != nil && (res.RuleID == "" || rule.ID == res.RuleID) {
			return rule
		}
	}
	if res.RuleID == "" {
		return nil
	}
	return r.RuleByID(res.RuleID)
}

// ruleIndex returns the position of the rule with the given id.
func (r *Run) ruleIndex(id string) (int, bool) {
	for i, rule := range r.Tool.Driver.Rules {
		if rule != nil && rule.ID == id {
			return i, true
		}
	}
	return 0, false
}

// Decode parses a SARIF document. Only version 2.1.0 is accepted, and every
// run must name its driver.
func Decode(data []byte) (*Log, error) {
	var log Log
	if err := json.Unmarshal(data, &log); err != nil {
		return nil, fmt.Errorf("failed to decode SARIF: %w", err)
	}
	if log.Version != Version {
		return nil, fmt.Errorf("unsupported SARIF version %q", log.Version)
	}
	for i, run := range log.Runs {
		if run.DriverName() == "" {
			return nil, fmt.Errorf("SARIF run %d has no tool.driver.name", i)
		}
	}
	return &log, nil
}

// encoding sorts map keys so that property bags are written deterministically.
var encoding = json.ConfigCompatibleWithStandardLibrary

// Encode writes log as indented JSON.
func Encode(w io.Writer, log *Log) error {
	data, err := encoding.Marshal(log)
	if err != nil {
		return fmt.Errorf("failed to encode SARIF: %w", err)
	}
	// The model types marshal themselves, so indentation is applied once here.
	var buf bytes.Buffer
	if err := stdjson.Indent(&buf, data, "", "  "); err != nil {
		return fmt.Errorf("failed to encode SARIF: %w", err)
	}
	buf.WriteByte('\n')
	if _, err := io.Copy(w, &buf); err != nil {
		return fmt.Errorf("failed to write SARIF: %w", err)
	}
	return nil
}

// Merge combines the runs of every log into a single log holding exactly one
// run per distinct driver name (compared case-insensitively). Results of runs
// sharing a driver are concatenated and their rule sets unioned by id.
// Runs keep the order in which their driver first appears. Inputs are not
// modified.
func Merge(logs ...*Log) *Log {
	merged := New()
	byDriver := make(map[string]*Run)

	for _, log := range logs {
		if log == nil {
			continue
		}
		for _, run := range log.Runs {
			name := run.DriverName()
			if name == "" {
				continue
			}
			key := strings.ToLower(name)
			target, ok := byDriver[key]
			if !ok {
				target = cloneRunShell(run)
				byDriver[key] = target
				merged.Runs = append(merged.Runs, target)
			}
			appendRun(target, run)
		}
	}
	return merged
}

// cloneRunShell copies the driver metadata of run without rules or results.
func cloneRunShell(run *Run) *Run {
	d := run.Tool.Driver
	return &Run{
		Tool: &Tool{
			Driver: &ToolComponent{
				Name:            d.Name,
				Version:         d.Version,
				SemanticVersion: d.SemanticVersion,
				InformationURI:  d.InformationURI,
				Extras:          maps.Clone(d.Extras),
			},
			Extras: maps.Clone(run.Tool.Extras),
		},
		Results:            []*Result{},
		OriginalURIBaseIDs: maps.Clone(run.OriginalURIBaseIDs),
		Properties:         run.Properties,
		Extras:             maps.Clone(run.Extras),
	}
}

func appendRun(target, src *Run) {
	driver := target.Tool.Driver
	if driver.Version == nil {
		driver.Version = src.Tool.Driver.Version
	}
	if driver.InformationURI == nil {
		driver.InformationURI = src.Tool.Driver.InformationURI
	}
	for id, base := range src.OriginalURIBaseIDs {
		if _, ok := target.OriginalURIBaseIDs[id]; ok {
			continue
		}
		if target.OriginalURIBaseIDs == nil {
			target.OriginalURIBaseIDs = make(map[string]*ArtifactLocation)
		}
		target.OriginalURIBaseIDs[id] = base
	}

	for _, rule := range src.Tool.Driver.Rules {
		if rule == nil || target.RuleByID(rule.ID) != nil {
			continue
		}
		driver.Rules = append(driver.Rules, rule)
	}

	for _, res := range src.Results {
		if res == nil {
			continue
		}
		copied := *res
		if copied.RuleID == "" {
			if rule := src.RuleFor(res); rule != nil {
				copied.RuleID = rule.ID
			}
		}
		// Indices point into the source run's rules, which are re-ordered here.
		copied.RuleIndex = nil
		if i, ok := target.ruleIndex(copied.RuleID); ok && copied.RuleID != "" {
			copied.RuleIndex = Int(i)
		}
		target.Results = append(target.Results, &copied)
	}
}
