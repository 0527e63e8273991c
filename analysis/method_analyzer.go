package analysis

import (
	"github.com/chazu/probecov/classfile"
	"github.com/chazu/probecov/flow"
)

// methodAnalyzer feeds the probe event stream of one method into an
// InstructionsBuilder. Branch 0 is the fall-through edge; taken jumps are
// branch 1; switch targets are numbered in order.
type methodAnalyzer struct {
	flow.NopMethodProbesVisitor
	builder *InstructionsBuilder
	labels  *flow.LabelInfos
	done    func()
}

func (a *methodAnalyzer) VisitLabel(l classfile.Label) {
	a.builder.AddLabel(l)
}

func (a *methodAnalyzer) VisitLineNumber(line int, _ classfile.Label) {
	a.builder.SetCurrentLine(line)
}

func (a *methodAnalyzer) VisitInsn(in *classfile.Insn) {
	a.builder.AddInstruction(in)
}

func (a *methodAnalyzer) VisitJumpInsn(in *classfile.Insn) {
	a.builder.AddInstruction(in)
	a.builder.AddJump(in.Target, 1)
}

func (a *methodAnalyzer) VisitSwitchInsn(in *classfile.Insn) {
	a.builder.AddInstruction(in)
	a.labels.ResetDone(in.Labels...)
	branch := 0
	a.builder.AddJump(in.Default, branch)
	a.labels.SetDone(in.Default)
	for _, l := range in.Labels {
		if !a.labels.IsDone(l) {
			branch++
			a.builder.AddJump(l, branch)
			a.labels.SetDone(l)
		}
	}
}

func (a *methodAnalyzer) VisitProbe(id int) {
	a.builder.AddProbe(id, 0)
	a.builder.NoSuccessor()
}

func (a *methodAnalyzer) VisitJumpInsnWithProbe(in *classfile.Insn, id int, _ *classfile.Frame) {
	a.builder.AddInstruction(in)
	a.builder.AddProbe(id, 1)
}

func (a *methodAnalyzer) VisitInsnWithProbe(in *classfile.Insn, id int) {
	a.builder.AddInstruction(in)
	a.builder.AddProbe(id, 0)
}

func (a *methodAnalyzer) VisitSwitchInsnWithProbes(in *classfile.Insn, labels *flow.LabelInfos, _ *classfile.Frame) {
	a.builder.AddInstruction(in)
	labels.ResetDone(in.Default)
	labels.ResetDone(in.Labels...)
	a.switchTarget(labels, in.Default, 0)
	for i, l := range in.Labels {
		a.switchTarget(labels, l, i+1)
	}
}

func (a *methodAnalyzer) switchTarget(labels *flow.LabelInfos, l classfile.Label, branch int) {
	if labels.IsDone(l) {
		return
	}
	if id := labels.ProbeID(l); id == flow.NoProbe {
		a.builder.AddJump(l, branch)
	} else {
		a.builder.AddProbe(id, branch)
	}
	labels.SetDone(l)
}

func (a *methodAnalyzer) VisitEnd() {
	if a.done != nil {
		a.done()
	}
}
