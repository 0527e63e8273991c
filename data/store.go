package data

import (
	"cmp"
	"slices"
)

// ExecutionDataVisitor receives execution data.
type ExecutionDataVisitor interface {
	VisitClassExecution(d *ExecutionData) error
}

// ExecutionDataStore indexes execution data by class id. Adding data for an
// id already present merges the probes. A store is not safe for concurrent
// use.
type ExecutionDataStore struct {
	entries map[uint64]*ExecutionData
	names   map[string]struct{}
}

// NewExecutionDataStore creates an empty store.
func NewExecutionDataStore() *ExecutionDataStore {
	return &ExecutionDataStore{
		entries: make(map[uint64]*ExecutionData),
		names:   make(map[string]struct{}),
	}
}

// Put adds d. The store keeps d itself when the id is new, so later probe
// updates through d are visible in the store.
func (s *ExecutionDataStore) Put(d *ExecutionData) error {
	if e, ok := s.entries[d.ID]; ok {
		return e.Merge(d)
	}
	s.entries[d.ID] = d
	s.names[d.Name] = struct{}{}
	return nil
}

// Subtract clears the probes set in d from the matching entry, if any.
func (s *ExecutionDataStore) Subtract(d *ExecutionData) error {
	if e, ok := s.entries[d.ID]; ok {
		return e.MergeSubtract(d)
	}
	return nil
}

// SubtractStore subtracts every entry of other.
func (s *ExecutionDataStore) SubtractStore(other *ExecutionDataStore) error {
	for _, d := range other.Contents() {
		if err := s.Subtract(d); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the entry for id, or nil.
func (s *ExecutionDataStore) Get(id uint64) *ExecutionData {
	return s.entries[id]
}

// Contains reports whether data for a class named name was ever added,
// whatever its id.
func (s *ExecutionDataStore) Contains(name string) bool {
	_, ok := s.names[name]
	return ok
}

// GetOrCreate returns the entry for id, creating an empty one when absent.
// An existing entry must match name and probeCount.
func (s *ExecutionDataStore) GetOrCreate(id uint64, name string, probeCount int) (*ExecutionData, error) {
	if e, ok := s.entries[id]; ok {
		if err := e.AssertCompatibility(id, name, probeCount); err != nil {
			return nil, err
		}
		return e, nil
	}
	e := NewExecutionData(id, name, probeCount)
	s.entries[id] = e
	s.names[name] = struct{}{}
	return e, nil
}

// Reset clears the probes of every entry. Entries stay in the store.
func (s *ExecutionDataStore) Reset() {
	for _, e := range s.entries {
		e.Reset()
	}
}

// Len returns the number of entries.
func (s *ExecutionDataStore) Len() int {
	return len(s.entries)
}

// Contents returns the entries ordered by name, then id.
func (s *ExecutionDataStore) Contents() []*ExecutionData {
	out := make([]*ExecutionData, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b *ExecutionData) int {
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Accept passes every entry to v.
func (s *ExecutionDataStore) Accept(v ExecutionDataVisitor) error {
	for _, e := range s.Contents() {
		if err := v.VisitClassExecution(e); err != nil {
			return err
		}
	}
	return nil
}

// VisitClassExecution implements ExecutionDataVisitor by calling Put.
func (s *ExecutionDataStore) VisitClassExecution(d *ExecutionData) error {
	return s.Put(d)
}
