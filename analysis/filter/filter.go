// Package filter removes compiler-generated artifacts from method coverage
// by rewriting the instruction graph before counters are computed.
package filter

import (
	"fmt"
	"strings"

	"github.com/chazu/probecov/classfile"
)

// Output receives the decisions of filters.
type Output interface {
	// Ignore drops from..to (inclusive, in code order) from coverage.
	Ignore(from, to *classfile.Insn)

	// Merge folds the coverage of two equivalent instructions together.
	Merge(i1, i2 *classfile.Insn)

	// ReplaceBranches gives source exactly the branches to targets.
	ReplaceBranches(source *classfile.Insn, targets []*classfile.Insn)
}

// Context describes the class a filtered method belongs to.
type Context interface {
	ClassName() string
	SuperClassName() string
	SourceFileName() string
}

// Filter inspects one method and reports to out.
type Filter interface {
	Filter(m *classfile.Method, ctx Context, out Output)
}

// Func adapts a function to Filter.
type Func func(m *classfile.Method, ctx Context, out Output)

func (f Func) Filter(m *classfile.Method, ctx Context, out Output) { f(m, ctx, out) }

type composite []Filter

func (c composite) Filter(m *classfile.Method, ctx Context, out Output) {
	for _, f := range c {
		f.Filter(m, ctx, out)
	}
}

// All returns every shipped filter.
func All() Filter {
	return composite{SyntheticFilter{}, FinallyFilter{}, SwitchTrampolineFilter{}}
}

// Chain runs filters in order.
func Chain(filters ...Filter) Filter {
	return composite(filters)
}

// SyntheticFilter ignores synthetic methods, except lambda bodies which
// hold user code.
type SyntheticFilter struct{}

func (SyntheticFilter) Filter(m *classfile.Method, _ Context, out Output) {
	if m.Access&classfile.AccSynthetic == 0 || strings.HasPrefix(m.Name, "lambda$") {
		return
	}
	insns := m.Instructions()
	if len(insns) == 0 {
		return
	}
	out.Ignore(insns[0], insns[len(insns)-1])
}

// code indexes the instructions of a method.
type code struct {
	insns  []*classfile.Insn
	index  map[*classfile.Insn]int
	labels map[classfile.Label]int

	// lined holds the instructions that start a source line.
	lined map[int]bool
	// preds lists, per instruction, the instructions that jump, switch or
	// fall through to it. Exception handlers get a -1 entry.
	preds map[int][]int
}

// newCode resolves every label to the index of the instruction it marks.
func newCode(m *classfile.Method) *code {
	c := &code{
		index:  make(map[*classfile.Insn]int),
		labels: make(map[classfile.Label]int),
		lined:  make(map[int]bool),
		preds:  make(map[int][]int),
	}
	var pending, lines []classfile.Label
	for _, n := range m.Code {
		switch n.Kind {
		case classfile.NodeLabel:
			pending = append(pending, n.Label)
		case classfile.NodeLine:
			lines = append(lines, n.Label)
		case classfile.NodeInsn:
			for _, l := range pending {
				c.labels[l] = len(c.insns)
			}
			pending = pending[:0]
			c.index[n.Insn] = len(c.insns)
			c.insns = append(c.insns, n.Insn)
		}
	}
	for _, l := range lines {
		if i, ok := c.labels[l]; ok {
			c.lined[i] = true
		}
	}
	for i, in := range c.insns {
		if i+1 < len(c.insns) && fallsThrough(in.Op) {
			c.preds[i+1] = append(c.preds[i+1], i)
		}
		switch in.Op.Kind() {
		case classfile.KindJump:
			c.link(i, in.Target)
		case classfile.KindTableSwitch, classfile.KindLookupSwitch:
			c.link(i, in.Default)
			for _, l := range in.Labels {
				c.link(i, l)
			}
		}
	}
	for _, tc := range m.TryCatch {
		c.link(-1, tc.Handler)
	}
	return c
}

func (c *code) link(from int, l classfile.Label) {
	if to, ok := c.labels[l]; ok {
		c.preds[to] = append(c.preds[to], from)
	}
}

func fallsThrough(op classfile.Opcode) bool {
	switch op.Kind() {
	case classfile.KindTableSwitch, classfile.KindLookupSwitch:
		return false
	}
	return op != classfile.OpGoto && op != classfile.OpRet && !op.IsTerminal()
}

// at returns the instruction marked by l, or nil.
func (c *code) at(l classfile.Label) *classfile.Insn {
	if i, ok := c.labels[l]; ok {
		return c.insns[i]
	}
	return nil
}

// sameShape reports whether a and b are the same instruction apart from
// jump targets.
func sameShape(a, b *classfile.Insn) bool {
	if a.Op != b.Op {
		return false
	}
	switch a.Op.Kind() {
	case classfile.KindJump, classfile.KindTableSwitch, classfile.KindLookupSwitch:
		return true
	}
	return a.Operand == b.Operand && a.Incr == b.Incr && a.Const == b.Const &&
		a.Owner == b.Owner && a.Name == b.Name && a.Desc == b.Desc
}

// Named returns the chain of filters with the given names, in order.
// Known names are synthetic, finally and switch-trampoline.
func Named(names ...string) (Filter, error) {
	var fs []Filter
	for _, n := range names {
		switch n {
		case "synthetic":
			fs = append(fs, SyntheticFilter{})
		case "finally":
			fs = append(fs, FinallyFilter{})
		case "switch-trampoline":
			fs = append(fs, SwitchTrampolineFilter{})
		default:
			return nil, fmt.Errorf("filter: unknown filter %q", n)
		}
	}
	return Chain(fs...), nil
}
