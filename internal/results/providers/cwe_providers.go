package providers

import (
	"context"
	"fmt"
)

// builtinCWEs covers the weaknesses the supported scanners report most often.
var builtinCWEs = []CWEEntry{
	{ID: "CWE-20", Name: "Improper Input Validation"},
	{ID: "CWE-22", Name: "Improper Limitation of a Pathname to a Restricted Directory ('Path Traversal')"},
	{ID: "CWE-78", Name: "Improper Neutralization of Special Elements used in an OS Command ('OS Command Injection')"},
	{ID: "CWE-79", Name: "Improper Neutralization of Input During Web Page Generation ('Cross-site Scripting')"},
	{ID: "CWE-89", Name: "Improper Neutralization of Special Elements used in an SQL Command ('SQL Injection')"},
	{ID: "CWE-94", Name: "Improper Control of Generation of Code ('Code Injection')"},
	{ID: "CWE-95", Name: "Improper Neutralization of Directives in Dynamically Evaluated Code ('Eval Injection')"},
	{ID: "CWE-119", Name: "Improper Restriction of Operations within the Bounds of a Memory Buffer"},
	{ID: "CWE-120", Name: "Buffer Copy without Checking Size of Input ('Classic Buffer Overflow')"},
	{ID: "CWE-122", Name: "Heap-based Buffer Overflow"},
	{ID: "CWE-125", Name: "Out-of-bounds Read"},
	{ID: "CWE-190", Name: "Integer Overflow or Wraparound"},
	{ID: "CWE-200", Name: "Exposure of Sensitive Information to an Unauthorized Actor"},
	{ID: "CWE-250", Name: "Execution with Unnecessary Privileges"},
	{ID: "CWE-259", Name: "Use of Hard-coded Password"},
	{ID: "CWE-295", Name: "Improper Certificate Validation"},
	{ID: "CWE-319", Name: "Cleartext Transmission of Sensitive Information"},
	{ID: "CWE-327", Name: "Use of a Broken or Risky Cryptographic Algorithm"},
	{ID: "CWE-330", Name: "Use of Insufficiently Random Values"},
	{ID: "CWE-352", Name: "Cross-Site Request Forgery (CSRF)"},
	{ID: "CWE-377", Name: "Insecure Temporary File"},
	{ID: "CWE-400", Name: "Uncontrolled Resource Consumption"},
	{ID: "CWE-416", Name: "Use After Free"},
	{ID: "CWE-476", Name: "NULL Pointer Dereference"},
	{ID: "CWE-502", Name: "Deserialization of Untrusted Data"},
	{ID: "CWE-611", Name: "Improper Restriction of XML External Entity Reference"},
	{ID: "CWE-703", Name: "Improper Check or Handling of Exceptional Conditions"},
	{ID: "CWE-732", Name: "Incorrect Permission Assignment for Critical Resource"},
	{ID: "CWE-787", Name: "Out-of-bounds Write"},
	{ID: "CWE-798", Name: "Use of Hard-coded Credentials"},
	{ID: "CWE-918", Name: "Server-Side Request Forgery (SSRF)"},
	{ID: "CWE-1104", Name: "Use of Unmaintained Third Party Components"},
}

// InMemoryCWEProvider answers CWE lookups from a preloaded Store.
type InMemoryCWEProvider struct {
	*Store
}

// NewInMemoryCWEProvider creates a provider preloaded with the built-in catalogue.
func NewInMemoryCWEProvider() *InMemoryCWEProvider {
	store := NewStore()
	for _, e := range builtinCWEs {
		if err := store.Add(e); err != nil {
			panic(fmt.Sprintf("invalid built-in CWE entry %q: %v", e.ID, err))
		}
	}
	return &InMemoryCWEProvider{Store: store}
}

// GetCWE retrieves CWE details by ID.
func (p *InMemoryCWEProvider) GetCWE(id string) (*CWEEntry, error) {
	entry, err := p.Get(id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", id, err)
	}
	return &entry, nil
}

// GetFullName returns the CWE's name, or false when it is not catalogued.
func (p *InMemoryCWEProvider) GetFullName(ctx context.Context, cweID string) (string, bool) {
	if ctx.Err() != nil {
		return "", false
	}
	entry, err := p.Get(cweID)
	if err != nil {
		return "", false
	}
	return entry.Name, true
}
