// Package adapter defines the source adapter contract and the registry of
// configured external data providers.
package adapter

import (
	"context"
	"sort"
	"sync"

	"github.com/fundflow/fundflow/internal/model"
)

// Adapter normalizes one external provider's responses into the common
// candidate-record shape.
//
// Contract: "not found" is not an error. Fetch returns an empty
// CandidateRecord and a nil error (or resilience.ErrNotFoundUpstream, which
// callers treat identically). Transient failures (timeout, rate limit, 5xx)
// are returned wrapped in resilience.TransientError so the fan-out
// coordinator can distinguish them from negative results.
type Adapter interface {
	// Name returns the stable adapter identifier used in provenance.
	Name() string
	// TrustWeight returns the source's static trust weight in [0, 1].
	TrustWeight() float64
	// Coverage returns the field keys this adapter can ever populate.
	Coverage() []string
	// CanProvide checks whether the adapter covers a specific field.
	CanProvide(key string) bool
	// Fetch retrieves and normalizes data for one project slug.
	Fetch(ctx context.Context, slug string) (*model.CandidateRecord, error)
}

// Registry holds the set of configured adapters. It is the single place new
// adapters are wired in; the fan-out coordinator never hardcodes identities.
// Trust weights are injected at construction and never mutated at runtime.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter. A later registration with the same name replaces
// the earlier one.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

// Get returns an adapter by name, or nil.
func (r *Registry) Get(name string) Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapters[name]
}

// All returns every registered adapter in stable name order, so that fan-out
// and reconciliation iterate deterministically.
func (r *Registry) All() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Names returns the registered adapter names in stable order.
func (r *Registry) Names() []string {
	all := r.All()
	names := make([]string, len(all))
	for i, a := range all {
		names[i] = a.Name()
	}
	return names
}

// Len returns the number of registered adapters.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.adapters)
}

// TrustOf returns the trust weight for a source name, with weight 0 for
// sources the registry does not know. The reconciliation engine consults this
// when weighing candidate provenance.
func (r *Registry) TrustOf(name string) float64 {
	if a := r.Get(name); a != nil {
		return a.TrustWeight()
	}
	return 0
}

// Covers reports whether the named source declares coverage of a field key.
// Unknown sources cover nothing.
func (r *Registry) Covers(source, fieldKey string) bool {
	if a := r.Get(source); a != nil {
		return a.CanProvide(fieldKey)
	}
	return false
}

// coverage is a small helper embedded by concrete adapters to implement the
// Coverage/CanProvide half of the contract.
type coverage struct {
	keys []string
	set  map[string]struct{}
}

func newCoverage(keys ...string) coverage {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return coverage{keys: keys, set: set}
}

func (c coverage) Coverage() []string { return append([]string(nil), c.keys...) }

func (c coverage) CanProvide(key string) bool {
	_, ok := c.set[key]
	return ok
}
