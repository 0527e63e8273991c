package instr

import (
	"github.com/chazu/probecov/classfile"
	"github.com/chazu/probecov/flow"
)

// methodInstrumenter turns probe events into probe-setting code.
type methodInstrumenter struct {
	classfile.MethodVisitor
	probes *probeInserter
	labels *flow.LabelInfos
}

func newMethodInstrumenter(p *probeInserter, labels *flow.LabelInfos) *methodInstrumenter {
	return &methodInstrumenter{MethodVisitor: p, probes: p, labels: labels}
}

func (mi *methodInstrumenter) VisitProbe(id int) {
	mi.probes.insertProbe(id)
}

func (mi *methodInstrumenter) VisitInsnWithProbe(in *classfile.Insn, id int) {
	mi.probes.insertProbe(id)
	mi.VisitInsn(in)
}

// VisitJumpInsnWithProbe places the probe on the taken edge only. A
// conditional jump is inverted so that the fall-through path skips the
// probe:
//
//	IF!cond intermediate
//	probe
//	GOTO target
//	intermediate:
func (mi *methodInstrumenter) VisitJumpInsnWithProbe(in *classfile.Insn, id int, frame *classfile.Frame) {
	if in.Op == classfile.OpGoto {
		mi.probes.insertProbe(id)
		mi.VisitJumpInsn(in)
		return
	}
	inv, _ := in.Op.Inverted()
	intermediate := mi.labels.NewLabel()
	mi.VisitJumpInsn(&classfile.Insn{Op: inv, Target: intermediate})
	mi.probes.insertProbe(id)
	mi.VisitJumpInsn(&classfile.Insn{Op: classfile.OpGoto, Target: in.Target})
	mi.VisitLabel(intermediate)
	if frame != nil {
		mi.VisitFrame(frame)
	}
}

// VisitSwitchInsnWithProbes routes every probed target through an
// intermediate label emitted right after the switch.
func (mi *methodInstrumenter) VisitSwitchInsnWithProbes(in *classfile.Insn, labels *flow.LabelInfos, frame *classfile.Frame) {
	labels.ResetDone(in.Default)
	labels.ResetDone(in.Labels...)
	out := in.Clone()
	out.Default = mi.intermediate(labels, in.Default)
	for i, l := range in.Labels {
		out.Labels[i] = mi.intermediate(labels, l)
	}
	mi.VisitSwitchInsn(out)

	labels.ResetDone(in.Default)
	labels.ResetDone(in.Labels...)
	mi.insertIntermediateProbe(labels, in.Default, frame)
	for _, l := range in.Labels {
		mi.insertIntermediateProbe(labels, l, frame)
	}
}

func (mi *methodInstrumenter) intermediate(labels *flow.LabelInfos, l classfile.Label) classfile.Label {
	if labels.ProbeID(l) == flow.NoProbe {
		return l
	}
	if labels.IsDone(l) {
		return labels.IntermediateLabel(l)
	}
	il := labels.NewLabel()
	labels.SetIntermediateLabel(l, il)
	labels.SetDone(l)
	return il
}

func (mi *methodInstrumenter) insertIntermediateProbe(labels *flow.LabelInfos, l classfile.Label, frame *classfile.Frame) {
	id := labels.ProbeID(l)
	if id == flow.NoProbe || labels.IsDone(l) {
		return
	}
	mi.VisitLabel(labels.IntermediateLabel(l))
	if frame != nil {
		mi.VisitFrame(frame)
	}
	mi.probes.insertProbe(id)
	mi.VisitJumpInsn(&classfile.Insn{Op: classfile.OpGoto, Target: l})
	labels.SetDone(l)
}

// duplicateFrameEliminator drops a frame that directly follows another
// frame with no instruction in between.
type duplicateFrameEliminator struct {
	classfile.MethodVisitor
	instruction bool
}

func newDuplicateFrameEliminator(mv classfile.MethodVisitor) *duplicateFrameEliminator {
	return &duplicateFrameEliminator{MethodVisitor: mv, instruction: true}
}

func (d *duplicateFrameEliminator) VisitFrame(f *classfile.Frame) {
	if d.instruction {
		d.instruction = false
		d.MethodVisitor.VisitFrame(f)
	}
}

func (d *duplicateFrameEliminator) VisitInsn(in *classfile.Insn) {
	d.instruction = true
	d.MethodVisitor.VisitInsn(in)
}

func (d *duplicateFrameEliminator) VisitJumpInsn(in *classfile.Insn) {
	d.instruction = true
	d.MethodVisitor.VisitJumpInsn(in)
}

func (d *duplicateFrameEliminator) VisitSwitchInsn(in *classfile.Insn) {
	d.instruction = true
	d.MethodVisitor.VisitSwitchInsn(in)
}
