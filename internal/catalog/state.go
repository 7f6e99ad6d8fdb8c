package catalog

import (
	"sort"
	"sync"
)

// State is the single shared point of truth: the current package
// catalog, entitlement map, and credential map.
//
// Each map is refreshed independently by exactly one synchronizer and
// read by any number of request handlers. Writers never modify a map
// in place; they build a complete replacement off to the side and swap
// it in under the write lock, so readers observe either the fully-old
// or the fully-new map, never a partial one. No transactionality is
// provided across the three maps.
type State struct {
	mu           sync.RWMutex
	packages     Catalog
	entitlements map[string]map[string]struct{}
	credentials  map[string]string
}

// NewState creates an empty State. All maps start empty and are
// populated by the first pass of each synchronizer.
func NewState() *State {
	return &State{
		packages:     make(Catalog),
		entitlements: make(map[string]map[string]struct{}),
		credentials:  make(map[string]string),
	}
}

// ReplaceCatalog installs a new package catalog wholesale.
func (s *State) ReplaceCatalog(c Catalog) {
	s.mu.Lock()
	s.packages = c
	s.mu.Unlock()
}

// ReplaceEntitlements installs a new customer entitlement map
// wholesale.
func (s *State) ReplaceEntitlements(m map[string]map[string]struct{}) {
	s.mu.Lock()
	s.entitlements = m
	s.mu.Unlock()
}

// ReplaceCredentials installs a new credential map wholesale.
func (s *State) ReplaceCredentials(m map[string]string) {
	s.mu.Lock()
	s.credentials = m
	s.mu.Unlock()
}

// Lookup returns the package with the given name.
func (s *State) Lookup(name string) (*Package, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.packages[name]
	return p, ok
}

// PackageNames returns the sorted names of all cataloged packages.
func (s *State) PackageNames() []string {
	s.mu.RLock()
	names := make([]string, 0, len(s.packages))
	for name := range s.packages {
		names = append(names, name)
	}
	s.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Entitled reports whether the customer may see the named package. A
// customer with no entitlement entry sees nothing; that is not an
// error.
func (s *State) Entitled(customer, pkg string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.entitlements[customer]
	if !ok {
		return false
	}
	_, ok = set[pkg]
	return ok
}

// Credential returns the stored secret for a customer name.
func (s *State) Credential(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	secret, ok := s.credentials[name]
	return secret, ok
}
