// Package summary stores plain counter snapshots of a coverage bundle so
// that runs can be compared later.
package summary

import (
	"cmp"
	"fmt"
	"os"
	"slices"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/probecov/analysis"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("summary: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Count is one counter.
type Count struct {
	Missed  int `cbor:"1,keyasint"`
	Covered int `cbor:"2,keyasint"`
}

// Counters holds the six counters of a node, indexed by
// analysis.CounterEntity.
type Counters [6]Count

// Get returns the counter of entity e.
func (c Counters) Get(e analysis.CounterEntity) analysis.Counter {
	return analysis.NewCounter(c[e].Missed, c[e].Covered)
}

func countersOf(n analysis.CoverageNode) Counters {
	var c Counters
	for _, e := range analysis.CounterEntities {
		v := n.Counter(e)
		c[e] = Count{Missed: v.Missed, Covered: v.Covered}
	}
	return c
}

// Entry is the plain copy of one node.
type Entry struct {
	Name     string   `cbor:"1,keyasint"`
	Counters Counters `cbor:"2,keyasint"`
}

// Snapshot is the plain copy of a bundle with its packages, classes and
// methods. Method entries are named Class#nameDesc.
type Snapshot struct {
	Bundle   Entry   `cbor:"1,keyasint"`
	Packages []Entry `cbor:"2,keyasint,omitempty"`
	Classes  []Entry `cbor:"3,keyasint,omitempty"`
	Methods  []Entry `cbor:"4,keyasint,omitempty"`
}

// FromBundle takes a snapshot of b.
func FromBundle(b *analysis.BundleCoverage) *Snapshot {
	s := &Snapshot{Bundle: Entry{Name: b.Name(), Counters: countersOf(b)}}
	for _, p := range b.Packages {
		s.Packages = append(s.Packages, Entry{Name: p.Name(), Counters: countersOf(p)})
		for _, c := range p.Classes {
			s.Classes = append(s.Classes, Entry{Name: c.Name(), Counters: countersOf(c)})
			for _, m := range c.Methods() {
				s.Methods = append(s.Methods, Entry{Name: c.Name() + "#" + m.Name() + m.Desc, Counters: countersOf(m)})
			}
		}
	}
	byName := func(a, b Entry) int { return cmp.Compare(a.Name, b.Name) }
	slices.SortFunc(s.Classes, byName)
	slices.SortFunc(s.Methods, byName)
	return s
}

// Marshal serializes a Snapshot to canonical CBOR bytes.
func Marshal(s *Snapshot) ([]byte, error) {
	return cborEncMode.Marshal(s)
}

// Unmarshal deserializes a Snapshot from CBOR bytes.
func Unmarshal(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("summary: unmarshal snapshot: %w", err)
	}
	return &s, nil
}

// WriteFile stores s at path.
func WriteFile(path string, s *Snapshot) error {
	b, err := Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// ReadFile loads a snapshot stored by WriteFile.
func ReadFile(path string) (*Snapshot, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Unmarshal(b)
}

// Delta is the change of one class counter between two snapshots. A class
// missing on one side compares against an empty counter.
type Delta struct {
	Class  string
	Entity analysis.CounterEntity
	Old    analysis.Counter
	New    analysis.Counter
}

func (d Delta) String() string {
	return fmt.Sprintf("%s %s: %d/%d -> %d/%d", d.Class, d.Entity,
		d.Old.Covered, d.Old.Total(), d.New.Covered, d.New.Total())
}

// Compare returns the class counters that differ between two snapshots,
// ordered by class name then entity.
func Compare(old, cur *Snapshot) []Delta {
	before := index(old.Classes)
	after := index(cur.Classes)
	names := make([]string, 0, len(before)+len(after))
	for n := range before {
		names = append(names, n)
	}
	for n := range after {
		if _, ok := before[n]; !ok {
			names = append(names, n)
		}
	}
	slices.Sort(names)

	var out []Delta
	for _, n := range names {
		b, a := before[n], after[n]
		for _, e := range analysis.CounterEntities {
			if b[e] != a[e] {
				out = append(out, Delta{Class: n, Entity: e, Old: b.Get(e), New: a.Get(e)})
			}
		}
	}
	return out
}

func index(entries []Entry) map[string]Counters {
	m := make(map[string]Counters, len(entries))
	for _, e := range entries {
		m[e.Name] = e.Counters
	}
	return m
}
