// Package analysis turns classes and recorded probes into coverage counters
// and a hierarchy of coverage nodes.
package analysis

import (
	"fmt"
)

// Status classifies a counter or line. It is a bit set: PartlyCovered is
// NotCovered|FullyCovered.
type Status uint8

const (
	StatusEmpty         Status = 0x00
	StatusNotCovered    Status = 0x01
	StatusFullyCovered  Status = 0x02
	StatusPartlyCovered Status = StatusNotCovered | StatusFullyCovered
)

func (s Status) String() string {
	switch s {
	case StatusEmpty:
		return "empty"
	case StatusNotCovered:
		return "not covered"
	case StatusFullyCovered:
		return "fully covered"
	case StatusPartlyCovered:
		return "partly covered"
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

// CounterValue selects one of the values derived from a Counter.
type CounterValue int

const (
	TotalCount CounterValue = iota
	MissedCount
	CoveredCount
	MissedRatio
	CoveredRatio
)

// Counter is a (missed, covered) pair. Counters are values: two counters
// with the same counts are equal.
type Counter struct {
	Missed  int
	Covered int
}

var (
	counterMissed  = Counter{Missed: 1}
	counterCovered = Counter{Covered: 1}
)

// NewCounter returns Counter{missed, covered}.
func NewCounter(missed, covered int) Counter {
	return Counter{Missed: missed, Covered: covered}
}

// Increment returns c with the given counts added.
func (c Counter) Increment(missed, covered int) Counter {
	return Counter{Missed: c.Missed + missed, Covered: c.Covered + covered}
}

// Add returns the sum of c and o.
func (c Counter) Add(o Counter) Counter {
	return c.Increment(o.Missed, o.Covered)
}

// Total returns missed + covered.
func (c Counter) Total() int {
	return c.Missed + c.Covered
}

// CoveredRatio returns covered / total; NaN for an empty counter.
func (c Counter) CoveredRatio() float64 {
	return float64(c.Covered) / float64(c.Total())
}

// MissedRatio returns missed / total; NaN for an empty counter.
func (c Counter) MissedRatio() float64 {
	return float64(c.Missed) / float64(c.Total())
}

// Value returns the selected value.
func (c Counter) Value(v CounterValue) float64 {
	switch v {
	case TotalCount:
		return float64(c.Total())
	case MissedCount:
		return float64(c.Missed)
	case CoveredCount:
		return float64(c.Covered)
	case MissedRatio:
		return c.MissedRatio()
	case CoveredRatio:
		return c.CoveredRatio()
	}
	panic(fmt.Sprintf("analysis: unknown counter value %d", v))
}

// Status classifies the counter.
func (c Counter) Status() Status {
	s := StatusEmpty
	if c.Covered > 0 {
		s = StatusFullyCovered
	}
	if c.Missed > 0 {
		s |= StatusNotCovered
	}
	return s
}

func (c Counter) String() string {
	return fmt.Sprintf("Counter[%d/%d]", c.Missed, c.Covered)
}

// Line holds the counters of one source line.
type Line struct {
	Instructions Counter
	Branches     Counter
}

// Increment returns l with the counters added.
func (l Line) Increment(instructions, branches Counter) Line {
	return Line{Instructions: l.Instructions.Add(instructions), Branches: l.Branches.Add(branches)}
}

// Status combines the status of both counters.
func (l Line) Status() Status {
	return l.Instructions.Status() | l.Branches.Status()
}
