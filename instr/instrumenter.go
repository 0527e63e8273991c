package instr

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/chazu/probecov/classfile"
	"github.com/chazu/probecov/data"
	"github.com/chazu/probecov/flow"
)

var log = commonlog.GetLogger("probecov.instr")

// Instrumenter adds probes to classes.
type Instrumenter struct{}

// NewInstrumenter creates an Instrumenter.
func NewInstrumenter() *Instrumenter {
	return &Instrumenter{}
}

// Instrument rewrites the encoded class b. name is used in error messages.
func (i *Instrumenter) Instrument(b []byte, name string) ([]byte, error) {
	c, err := classfile.Read(b)
	if err != nil {
		return nil, fmt.Errorf("error while instrumenting %s: %w", name, err)
	}
	out, err := i.InstrumentClass(c, data.ClassID(b))
	if err != nil {
		return nil, fmt.Errorf("error while instrumenting %s: %w", name, err)
	}
	enc, err := classfile.Write(out)
	if err != nil {
		return nil, fmt.Errorf("error while instrumenting %s: %w", name, err)
	}
	return enc, nil
}

// InstrumentClass returns an instrumented copy of c. classID must be the
// CRC64 of the original encoded class so that analysis can match it.
func (i *Instrumenter) InstrumentClass(c *classfile.Class, classID uint64) (*classfile.Class, error) {
	ci := &classInstrumenter{
		strategy: &probeArrayStrategy{className: c.Name, classID: classID, frames: c.NeedsFrames()},
	}
	if err := flow.NewClassProbesAdapter(ci, c.NeedsFrames()).Accept(c); err != nil {
		return nil, err
	}
	log.Debugf("instrumented %s with %d probes", c.Name, ci.probes)
	return ci.out, nil
}

// classInstrumenter assembles the instrumented class from probe events.
type classInstrumenter struct {
	strategy *probeArrayStrategy
	out      *classfile.Class
	probes   int
}

func (ci *classInstrumenter) VisitClass(c *classfile.Class) error {
	for _, f := range c.Fields {
		if err := AssertNotInstrumented(f.Name, c.Name); err != nil {
			return err
		}
	}
	ci.out = &classfile.Class{
		Version:    c.Version,
		Access:     c.Access,
		Name:       c.Name,
		SuperName:  c.SuperName,
		Interfaces: append([]string(nil), c.Interfaces...),
		SourceFile: c.SourceFile,
		Signature:  c.Signature,
	}
	for _, f := range c.Fields {
		cp := *f
		ci.out.Fields = append(ci.out.Fields, &cp)
	}
	return nil
}

func (ci *classInstrumenter) VisitMethod(m *classfile.Method, labels *flow.LabelInfos) (flow.MethodProbesVisitor, error) {
	if err := AssertNotInstrumented(m.Name, ci.out.Name); err != nil {
		return nil, err
	}
	nm := classfile.NewMethod(m.Access, m.Name, m.Desc)
	nm.Signature = m.Signature
	ci.out.Methods = append(ci.out.Methods, nm)
	if len(m.Code) == 0 {
		// Abstract and native methods have no code to probe.
		nm.MaxStack, nm.MaxLocals = m.MaxStack, m.MaxLocals
		return nil, nil
	}
	p, err := newProbeInserter(m, newDuplicateFrameEliminator(nm), ci.strategy)
	if err != nil {
		return nil, fmt.Errorf("method %s%s: %w", m.Name, m.Desc, err)
	}
	return newMethodInstrumenter(p, labels), nil
}

func (ci *classInstrumenter) VisitTotalProbeCount(count int) {
	ci.probes = count
	ci.strategy.addMembers(ci.out, count)
}

func (ci *classInstrumenter) VisitEnd() error {
	return nil
}

// ProbeCount returns the number of probes instrumentation would add to the
// encoded class b.
func ProbeCount(b []byte) (int, error) {
	c, err := classfile.Read(b)
	if err != nil {
		return 0, err
	}
	pc := &probeCounter{}
	if err := flow.NewClassProbesAdapter(pc, false).Accept(c); err != nil {
		return 0, err
	}
	return pc.count, nil
}

type probeCounter struct {
	count int
}

func (*probeCounter) VisitClass(*classfile.Class) error { return nil }

func (*probeCounter) VisitMethod(*classfile.Method, *flow.LabelInfos) (flow.MethodProbesVisitor, error) {
	return nil, nil
}

func (pc *probeCounter) VisitTotalProbeCount(count int) { pc.count = count }

func (*probeCounter) VisitEnd() error { return nil }
