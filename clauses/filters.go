package clauses

import (
	"maps"
	"slices"
	"sync"
)

// Filter values by field name, e.g. {"state_abbr": ["CA", "NY"], "as_of_year": ["2012"]}.
type FilterState map[string][]string

func (filters FilterState) Clone() FilterState {
	if filters == nil {
		return FilterState{}
	}

	clone := make(FilterState, len(filters))
	for field, values := range filters {
		clone[field] = slices.Clone(values)
	}
	return clone
}

// Fields in sorted order, so that serialized filters are deterministic.
func (filters FilterState) SortedFields() []string {
	return slices.Sorted(maps.Keys(filters))
}

// Owns the filter state, which changes independently of the clauses. The clause state only reads
// from it.
type FilterSource interface {
	Filters() FilterState
}

type FilterStore struct {
	lock    sync.RWMutex
	filters FilterState
}

func NewFilterStore() *FilterStore {
	return &FilterStore{filters: FilterState{}}
}

func (store *FilterStore) Filters() FilterState {
	store.lock.RLock()
	defer store.lock.RUnlock()
	return store.filters.Clone()
}

func (store *FilterStore) Replace(filters FilterState) {
	cleaned := make(FilterState, len(filters))
	for field, values := range filters {
		if len(values) != 0 {
			cleaned[field] = slices.Clone(values)
		}
	}

	store.lock.Lock()
	defer store.lock.Unlock()
	store.filters = cleaned
}
