package collector

import (
	"fmt"
	"sort"
)

// Registry keeps a mapping from source ids to their collectors. It is built
// once at process start and passed by value reference into the manager; no
// ambient global state.
type Registry struct {
	collectors map[string]*Collector
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{collectors: map[string]*Collector{}}
}

// Register adds or replaces a collector.
func (r *Registry) Register(col *Collector) {
	if r.collectors == nil {
		r.collectors = map[string]*Collector{}
	}
	r.collectors[col.SourceID()] = col
}

// Resolve returns a collector by source id or an error if it is absent.
func (r *Registry) Resolve(sourceID string) (*Collector, error) {
	if col, ok := r.collectors[sourceID]; ok {
		return col, nil
	}
	return nil, fmt.Errorf("source %s is not registered", sourceID)
}

// All returns every registered collector in stable source-id order.
func (r *Registry) All() []*Collector {
	ids := make([]string, 0, len(r.collectors))
	for id := range r.collectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]*Collector, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.collectors[id])
	}
	return out
}
