package analysis

import (
	"math"
	"testing"
)

func TestCounterStatus(t *testing.T) {
	tests := []struct {
		c    Counter
		want Status
	}{
		{NewCounter(0, 0), StatusEmpty},
		{NewCounter(3, 0), StatusNotCovered},
		{NewCounter(0, 2), StatusFullyCovered},
		{NewCounter(1, 1), StatusPartlyCovered},
	}
	for _, tt := range tests {
		if got := tt.c.Status(); got != tt.want {
			t.Errorf("%v.Status() = %v, want %v", tt.c, got, tt.want)
		}
	}
}

func TestCounterValues(t *testing.T) {
	c := NewCounter(1, 3)
	if c.Value(TotalCount) != 4 || c.Value(MissedCount) != 1 || c.Value(CoveredCount) != 3 {
		t.Errorf("counts of %v wrong", c)
	}
	if c.Value(CoveredRatio) != 0.75 || c.Value(MissedRatio) != 0.25 {
		t.Errorf("ratios of %v wrong", c)
	}
	if !math.IsNaN(Counter{}.CoveredRatio()) {
		t.Error("empty counter ratio should be NaN")
	}
	if got := c.Add(NewCounter(2, 2)); got != NewCounter(3, 5) {
		t.Errorf("Add = %v", got)
	}
	if got := c.String(); got != "Counter[1/3]" {
		t.Errorf("String = %q", got)
	}
}

func TestCounterAddLaws(t *testing.T) {
	a, b, c := NewCounter(1, 3), NewCounter(4, 0), NewCounter(2, 7)
	if l, r := a.Add(b).Add(c), a.Add(b.Add(c)); l != r {
		t.Errorf("not associative: %v != %v", l, r)
	}
	if a.Add(b) != b.Add(a) {
		t.Errorf("not commutative: %v != %v", a.Add(b), b.Add(a))
	}
	if got := a.Increment(4, 0).Increment(2, 7); got != a.Increment(6, 7) {
		t.Errorf("Increment = %v, want %v", got, a.Increment(6, 7))
	}
	if a.Add(Counter{}) != a {
		t.Error("empty counter is not neutral")
	}
}

func TestLineCounterFlip(t *testing.T) {
	s := newSourceNode(ElementMethod, "m")
	s.IncrementInstructions(counterMissed, Counter{}, 5)
	if s.LineCounter() != NewCounter(1, 0) {
		t.Fatalf("after missed: %v", s.LineCounter())
	}
	s.IncrementInstructions(counterCovered, Counter{}, 5)
	if s.LineCounter() != NewCounter(0, 1) {
		t.Fatalf("after covered: %v", s.LineCounter())
	}
	s.IncrementInstructions(counterMissed, Counter{}, 5)
	if s.LineCounter() != NewCounter(0, 1) {
		t.Fatalf("line went back: %v", s.LineCounter())
	}
	if got := s.Line(5).Status(); got != StatusPartlyCovered {
		t.Errorf("line status = %v", got)
	}
	if s.InstructionCounter() != NewCounter(2, 1) {
		t.Errorf("instructions = %v", s.InstructionCounter())
	}
}

func TestSourceNodeLineRange(t *testing.T) {
	s := newSourceNode(ElementMethod, "m")
	if s.FirstLine() != UnknownLine || s.LastLine() != UnknownLine {
		t.Fatal("empty node has lines")
	}
	s.IncrementInstructions(counterCovered, Counter{}, 10)
	s.IncrementInstructions(counterMissed, Counter{}, 7)
	s.IncrementInstructions(counterMissed, Counter{}, UnknownLine)
	if s.FirstLine() != 7 || s.LastLine() != 10 {
		t.Errorf("range = %d..%d", s.FirstLine(), s.LastLine())
	}
	if s.Line(10).Instructions != counterCovered || s.Line(8) != (Line{}) || s.Line(42) != (Line{}) {
		t.Error("line contents wrong")
	}
	if s.LineCounter() != NewCounter(1, 1) {
		t.Errorf("line counter = %v", s.LineCounter())
	}

	parent := newSourceNode(ElementClass, "c")
	parent.IncrementSource(&s)
	if parent.LineCounter() != NewCounter(1, 1) || parent.InstructionCounter() != NewCounter(2, 1) {
		t.Errorf("parent = %v %v", parent.LineCounter(), parent.InstructionCounter())
	}
}

func TestMethodComplexity(t *testing.T) {
	m := NewMethodCoverage("m", "()V", "")
	m.IncrementInstructions(counterCovered, NewCounter(1, 2), 1)
	m.IncrementInstructions(counterCovered, NewCounter(2, 0), 2)
	v := m.IncrementMethodCounter()
	if !v.Covered || v.Name != "m" {
		t.Errorf("verdict = %+v", v)
	}
	// (3 branches, 2 covered) -> 1/1; (2 branches, 0 covered) -> 1/0; base 0/1
	if got := m.ComplexityCounter(); got != NewCounter(2, 2) {
		t.Errorf("complexity = %v", got)
	}
	if got := m.MethodCounter(); got != counterCovered {
		t.Errorf("method = %v", got)
	}
	m.IncrementMethodCounter()
	if got := m.MethodCounter(); got != counterCovered {
		t.Errorf("method counted twice: %v", got)
	}
}

func TestDecisionComplexity(t *testing.T) {
	tests := []struct {
		branches Counter
		want     Counter
	}{
		{NewCounter(3, 0), NewCounter(2, 0)},
		{NewCounter(2, 1), NewCounter(2, 0)},
		{NewCounter(1, 2), NewCounter(1, 1)},
		{NewCounter(0, 3), NewCounter(0, 2)},
	}
	for _, tt := range tests {
		m := NewMethodCoverage("m", "()V", "")
		m.IncrementInstructions(counterCovered, tt.branches, 1)
		got := m.ComplexityCounter()
		if got != tt.want {
			t.Errorf("branches %v: complexity = %v, want %v", tt.branches, got, tt.want)
		}
		if got.Total() != tt.branches.Total()-1 {
			t.Errorf("branches %v: complexity total = %d", tt.branches, got.Total())
		}
	}
}

func TestAggregation(t *testing.T) {
	covered := NewMethodCoverage("a", "()V", "")
	covered.IncrementInstructions(counterCovered, Counter{}, 3)
	covered.IncrementMethodCounter()
	missed := NewMethodCoverage("b", "()V", "")
	missed.IncrementInstructions(counterMissed, Counter{}, 4)
	missed.IncrementMethodCounter()

	c1 := NewClassCoverage("p/A", 1, false)
	c1.SourceFileName = "A.java"
	c1.AddMethod(covered)
	c2 := NewClassCoverage("p/B", 2, false)
	c2.AddMethod(missed)
	c3 := NewClassCoverage("q/C", 3, false)

	if c1.ClassCounter() != counterCovered || c2.ClassCounter() != counterMissed {
		t.Fatalf("class counters %v %v", c1.ClassCounter(), c2.ClassCounter())
	}

	src := NewSourceFileCoverage("A.java", "p")
	src.IncrementSource(c1)
	bundle := NewBundleCoverage("all", []*ClassCoverage{c2, c1, c3}, []*SourceFileCoverage{src})
	if len(bundle.Packages) != 2 || bundle.Packages[0].Name() != "p" || bundle.Packages[1].Name() != "q" {
		t.Fatalf("packages = %v", bundle.Packages)
	}
	if got := bundle.ClassCounter(); got != NewCounter(1, 1) {
		t.Errorf("bundle classes = %v", got)
	}
	if got := bundle.LineCounter(); got != NewCounter(1, 1) {
		t.Errorf("bundle lines = %v", got)
	}
	group := NewGroupCoverage("g", bundle, bundle)
	if got := group.InstructionCounter(); got != NewCounter(2, 2) {
		t.Errorf("group instructions = %v", got)
	}
	if got := bundle.PlainCopy(); got.InstructionCounter() != bundle.InstructionCounter() || got.Name() != "all" {
		t.Errorf("plain copy = %+v", got)
	}
}
