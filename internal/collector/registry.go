package collector

import (
	"slices"
	"strings"
	"sync"

	amerrors "github.com/Aman-CERP/amanindex/internal/errors"
)

// Registry maps scope names to collectors. Lookups ignore case.
type Registry struct {
	mu         sync.RWMutex
	collectors map[string]Collector
}

// NewRegistry returns a registry holding collectors.
func NewRegistry(collectors ...Collector) (*Registry, error) {
	r := &Registry{collectors: make(map[string]Collector)}
	for _, c := range collectors {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds c. A second collector for the same scope name, in any
// case, is rejected.
func (r *Registry) Register(c Collector) error {
	name := strings.TrimSpace(c.Name())
	if name == "" {
		return amerrors.New(amerrors.ErrCodeInvalidScope, "collector has an empty scope name", nil)
	}
	key := registryKey(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.collectors[key]; ok {
		return amerrors.New(amerrors.ErrCodeDuplicateCollector,
			"scope "+name+" is already registered as "+existing.Name(), nil).
			WithDetail("scope", name)
	}
	r.collectors[key] = c
	return nil
}

// Lookup returns the collector for scope.
func (r *Registry) Lookup(scope string) (Collector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.collectors[registryKey(scope)]
	return c, ok
}

// registryKey folds case and surrounding space so Register and Lookup
// agree on which names collide.
func registryKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Scopes returns the registered scope names, sorted case-insensitively.
func (r *Registry) Scopes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.collectors))
	for _, c := range r.collectors {
		names = append(names, c.Name())
	}
	slices.SortFunc(names, func(a, b string) int {
		return strings.Compare(strings.ToLower(a), strings.ToLower(b))
	})
	return names
}

// Len returns the number of registered collectors.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.collectors)
}
