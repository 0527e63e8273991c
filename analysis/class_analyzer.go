package analysis

import (
	"fmt"

	"github.com/chazu/probecov/analysis/filter"
	"github.com/chazu/probecov/classfile"
	"github.com/chazu/probecov/data"
	"github.com/chazu/probecov/flow"
	"github.com/chazu/probecov/instr"
)

// classAnalyzer builds the coverage of one class from its probe events.
type classAnalyzer struct {
	coverage  *ClassCoverage
	probes    []bool
	pool      *StringPool
	filter    filter.Filter
	selection MethodSelection
	err       error
}

func newClassAnalyzer(coverage *ClassCoverage, probes []bool, pool *StringPool, f filter.Filter, sel MethodSelection) *classAnalyzer {
	return &classAnalyzer{coverage: coverage, probes: probes, pool: pool, filter: f, selection: sel}
}

func (a *classAnalyzer) VisitClass(c *classfile.Class) error {
	a.coverage.Signature = a.pool.Get(c.Signature)
	a.coverage.SuperName = a.pool.Get(c.SuperName)
	a.coverage.Interfaces = a.pool.GetAll(c.Interfaces)
	a.coverage.SourceFileName = a.pool.Get(c.SourceFile)
	return instr.AssertClassNotInstrumented(c)
}

func (a *classAnalyzer) VisitMethod(m *classfile.Method, labels *flow.LabelInfos) (flow.MethodProbesVisitor, error) {
	if err := instr.AssertNotInstrumented(m.Name, a.coverage.Name()); err != nil {
		return nil, err
	}
	if !a.selection.Includes(a.coverage.Name(), m.Name, m.Desc) {
		return nil, nil
	}
	builder := NewInstructionsBuilder(a.probes, labels)
	ma := &methodAnalyzer{builder: builder, labels: labels}
	ma.done = func() {
		if err := a.addMethodCoverage(m, builder); err != nil && a.err == nil {
			a.err = fmt.Errorf("method %s%s: %w", m.Name, m.Desc, err)
		}
	}
	return ma, nil
}

func (a *classAnalyzer) addMethodCoverage(m *classfile.Method, builder *InstructionsBuilder) error {
	instructions, err := builder.Instructions()
	if err != nil {
		return err
	}
	calc := newMethodCoverageCalculator(instructions, m.Instructions())
	a.filter.Filter(m, a, calc)
	mc := NewMethodCoverage(a.pool.Get(m.Name), a.pool.Get(m.Desc), a.pool.Get(m.Signature))
	verdict := calc.calculate(mc)
	if mc.ContainsCode() {
		a.coverage.AddMethod(mc)
		if verdict.Covered {
			a.coverage.RecordCoveredMethod(verdict.Name)
		}
	}
	return nil
}

func (a *classAnalyzer) VisitTotalProbeCount(count int) {
	if a.probes != nil && len(a.probes) != count && a.err == nil {
		a.err = fmt.Errorf("%w: class %s has %d probes, execution data has %d",
			data.ErrIncompatible, a.coverage.Name(), count, len(a.probes))
	}
}

func (a *classAnalyzer) VisitEnd() error {
	return a.err
}

func (a *classAnalyzer) ClassName() string      { return a.coverage.Name() }
func (a *classAnalyzer) SuperClassName() string { return a.coverage.SuperName }
func (a *classAnalyzer) SourceFileName() string { return a.coverage.SourceFileName }
