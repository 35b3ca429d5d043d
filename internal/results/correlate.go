package results

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/blang/semver/v4"
	"github.com/cespare/xxhash/v2"

	"github.com/xkilldash9x/vulncorr/api/schemas"
)

var cvePattern = regexp.MustCompile(`(?i)\bCVE-\d{4}-\d{4,}\b`)

// ExtractCVE returns the first CVE identifier found in the finding's ID or,
// failing that, its aliases. The result is upper-cased; "" means no CVE.
func ExtractCVE(f *schemas.VulnerabilityFinding) string {
	if m := cvePattern.FindString(f.ID); m != "" {
		return strings.ToUpper(m)
	}
	for _, alias := range f.Aliases {
		if m := cvePattern.FindString(alias); m != "" {
			return strings.ToUpper(m)
		}
	}
	return ""
}

// GroupKey computes the deterministic correlation key of a normalized finding:
//
//	cve:<CVE>|<package>                       when a CVE is known
//	pkg:<package>|<version>|<severity>        when only a package is known
//	rule:<id>|<path>|<line>                   otherwise
//
// Package identity is always part of a CVE key, so one CVE in two packages
// yields two groups.
func GroupKey(f *schemas.VulnerabilityFinding) string {
	pkg := PackageIdentity(f.PackageName)
	if cve := ExtractCVE(f); cve != "" {
		return "cve:" + cve + "|" + pkg
	}
	if pkg != "" {
		return "pkg:" + pkg + "|" + strings.TrimSpace(f.InstalledVersion) + "|" + string(f.NormalizedSeverity)
	}
	var loc, line string
	if f.Location != nil {
		loc = cleanPath(f.Location.Path)
		if f.Location.Line > 0 {
			line = strconv.Itoa(f.Location.Line)
		}
	}
	return "rule:" + f.ID + "|" + loc + "|" + line
}

// PackageIdentity reduces a package name to the form used in group keys:
// lower-cased, and for Maven coordinates ("org.apache.logging.log4j:log4j-core")
// only the artifact, which is how Grype and Safety name the same package.
func PackageIdentity(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if i := strings.LastIndex(name, ":"); i >= 0 && i < len(name)-1 {
		name = name[i+1:]
	}
	return name
}

// cleanPath makes "./scripts/a.py" and "scripts/a.py" compare equal.
func cleanPath(p string) string {
	if p == "" {
		return ""
	}
	p = path.Clean(strings.ReplaceAll(p, "\\", "/"))
	return strings.TrimPrefix(p, "./")
}

// Fingerprint is the hex xxhash64 of a group key.
func Fingerprint(groupKey string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(groupKey))
}

// Correlate groups normalized findings by GroupKey. Groups are returned in
// order of first appearance and members keep discovery order; scores are
// left for Prioritize. The input slice is not modified.
func Correlate(findings []schemas.VulnerabilityFinding) []schemas.CorrelationGroup {
	index := make(map[string]int)
	groups := make([]schemas.CorrelationGroup, 0)

	for i := range findings {
		key := GroupKey(&findings[i])
		pos, ok := index[key]
		if !ok {
			pos = len(groups)
			index[key] = pos
			groups = append(groups, schemas.CorrelationGroup{GroupKey: key, Fingerprint: Fingerprint(key)})
		}
		groups[pos].Members = append(groups[pos].Members, findings[i])
	}

	for i := range groups {
		summarizeGroup(&groups[i])
	}
	return groups
}

// summarizeGroup derives the group-level fields from its members.
func summarizeGroup(g *schemas.CorrelationGroup) {
	first := &g.Members[0]
	g.CanonicalID = first.ID
	g.Category = first.Category
	g.InstalledVersion = first.InstalledVersion

	var fixes []string
	seenTools := make(map[schemas.SourceTool]bool)
	for i := range g.Members {
		m := &g.Members[i]
		if !seenTools[m.SourceTool] {
			seenTools[m.SourceTool] = true
			g.Tools = append(g.Tools, m.SourceTool)
		}
		g.NormalizedSeverity = schemas.MaxSeverity(g.NormalizedSeverity, m.NormalizedSeverity)
		if m.CVSSScore != nil && (g.CVSSScore == nil || *m.CVSSScore > *g.CVSSScore) {
			g.CVSSScore = schemas.Float64(*m.CVSSScore)
		}
		if g.PackageName == "" {
			g.PackageName = m.PackageName
		}
		if g.Title == "" {
			g.Title = m.Title
		}
		fixes = append(fixes, splitVersions(m.FixedVersion)...)
	}

	if strings.HasPrefix(g.GroupKey, "cve:") {
		for i := range g.Members {
			if cve := ExtractCVE(&g.Members[i]); cve != "" {
				g.CanonicalID = cve
				break
			}
		}
	}
	g.RecommendedFix = HighestVersion(fixes)
}

func splitVersions(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// HighestVersion picks the highest of the given versions. Versions that
// parse as (tolerant) semver are compared semantically and win over ones
// that do not; if none parse, the first non-empty value is returned.
func HighestVersion(versions []string) string {
	var (
		best       string
		bestParsed *semver.Version
		fallback   string
	)
	for _, v := range versions {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if fallback == "" {
			fallback = v
		}
		parsed, err := semver.ParseTolerant(v)
		if err != nil {
			continue
		}
		if bestParsed == nil || parsed.GT(*bestParsed) {
			p := parsed
			bestParsed = &p
			best = v
		}
	}
	if best != "" {
		return best
	}
	return fallback
}
