// Package data holds execution data (the probe arrays recorded for each
// class), the stores that merge them and the binary exec format.
package data

import (
	"errors"
	"fmt"
	"hash/crc64"
)

// ErrIncompatible reports execution data that cannot be merged.
var ErrIncompatible = errors.New("incompatible execution data")

var crcTable = crc64.MakeTable(crc64.ISO)

// ClassID returns the identifier of an encoded class: the CRC64 (ISO
// polynomial, zero initial value, no final xor) of its bytes.
func ClassID(b []byte) uint64 {
	return ^crc64.Update(^uint64(0), crcTable, b)
}

// ExecutionData is the probe array recorded for one class.
type ExecutionData struct {
	ID     uint64
	Name   string
	Probes []bool
}

// NewExecutionData creates execution data with probeCount unset probes.
func NewExecutionData(id uint64, name string, probeCount int) *ExecutionData {
	return &ExecutionData{ID: id, Name: name, Probes: make([]bool, probeCount)}
}

// Reset clears every probe.
func (d *ExecutionData) Reset() {
	clear(d.Probes)
}

// HasHits reports whether any probe is set.
func (d *ExecutionData) HasHits() bool {
	for _, p := range d.Probes {
		if p {
			return true
		}
	}
	return false
}

// Merge ORs the probes of other into d.
func (d *ExecutionData) Merge(other *ExecutionData) error {
	return d.merge(other, true)
}

// MergeSubtract clears every probe of d that is set in other.
func (d *ExecutionData) MergeSubtract(other *ExecutionData) error {
	return d.merge(other, false)
}

func (d *ExecutionData) merge(other *ExecutionData, flag bool) error {
	if err := d.AssertCompatibility(other.ID, other.Name, len(other.Probes)); err != nil {
		return err
	}
	for i, p := range other.Probes {
		if p {
			d.Probes[i] = flag
		}
	}
	return nil
}

// AssertCompatibility checks that d describes the class (id, name) with
// probeCount probes.
func (d *ExecutionData) AssertCompatibility(id uint64, name string, probeCount int) error {
	if d.ID != id {
		return fmt.Errorf("%w: different ids (%016x and %016x)", ErrIncompatible, d.ID, id)
	}
	if d.Name != name {
		return fmt.Errorf("%w: different class names %s and %s for id %016x", ErrIncompatible, d.Name, name, id)
	}
	if len(d.Probes) != probeCount {
		return fmt.Errorf("%w: incompatible execution data for class %s with id %016x", ErrIncompatible, name, id)
	}
	return nil
}

func (d *ExecutionData) String() string {
	return fmt.Sprintf("ExecutionData[name=%s, id=%016x]", d.Name, d.ID)
}
