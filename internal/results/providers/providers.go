package providers

import (
	"errors"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// CWEEntry holds details about a specific CWE.
type CWEEntry struct {
	ID          string
	Name        string
	Description string
}

// Define sentinel errors for better error handling by the caller.
var (
	ErrNotFound      = errors.New("cwe not found")
	ErrAlreadyExists = errors.New("cwe already exists")
	ErrInvalidInput  = errors.New("cwe ID and Name cannot be empty")
)

var cweIDPattern = regexp.MustCompile(`(?i)^\s*(?:cwe[-_ ]?)?(\d+)\b`)

// NormalizeID turns "cwe-79", "79" and "CWE-79: Cross-site Scripting" into
// "CWE-79". It returns "" when s does not start with a CWE number.
func NormalizeID(s string) string {
	m := cweIDPattern.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	n := strings.TrimLeft(m[1], "0")
	if n == "" {
		return ""
	}
	return "CWE-" + n
}

// Store manages a collection of CWE entries in memory.
type Store struct {
	// RWMutex allows multiple concurrent readers or a single exclusive writer.
	mu      sync.RWMutex
	entries map[string]CWEEntry
}

// NewStore creates a new, empty store.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]CWEEntry),
	}
}

// Add adds a new entry. The ID is normalized before it is stored.
func (s *Store) Add(e CWEEntry) error {
	id := NormalizeID(e.ID)
	if id == "" || e.Name == "" {
		return ErrInvalidInput
	}
	e.ID = id

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[id]; exists {
		return ErrAlreadyExists
	}
	s.entries[id] = e
	return nil
}

// Get retrieves an entry by any form NormalizeID accepts.
func (s *Store) Get(id string) (CWEEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, exists := s.entries[NormalizeID(id)]
	if !exists {
		return CWEEntry{}, ErrNotFound
	}
	return entry, nil
}

// List returns all entries sorted by CWE number.
func (s *Store) List() []CWEEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]CWEEntry, 0, len(s.entries))
	for _, e := range s.entries {
		list = append(list, e)
	}
	sort.Slice(list, func(i, j int) bool {
		if len(list[i].ID) != len(list[j].ID) {
			return len(list[i].ID) < len(list[j].ID)
		}
		return list[i].ID < list[j].ID
	})
	return list
}

// Len reports how many entries the store holds.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
