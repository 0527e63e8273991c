package flow

import "github.com/chazu/probecov/classfile"

// MethodProbesAdapter turns a plain method event stream into one with probe
// events, using the flags computed by MarkLabels. It allocates probe ids in
// stream order, so two traversals of the same code agree on every id.
type MethodProbesAdapter struct {
	probes  MethodProbesVisitor
	ids     IDGenerator
	labels  *LabelInfos
	frames  *FrameTracker
	err     error
	tcProbe map[classfile.Label]classfile.Label
}

// NewMethodProbesAdapter creates an adapter feeding probes. frames may be
// nil when stack-map frames are not needed.
func NewMethodProbesAdapter(probes MethodProbesVisitor, ids IDGenerator, labels *LabelInfos, frames *FrameTracker) *MethodProbesAdapter {
	return &MethodProbesAdapter{
		probes:  probes,
		ids:     ids,
		labels:  labels,
		frames:  frames,
		tcProbe: make(map[classfile.Label]classfile.Label),
	}
}

// Err returns the first frame simulation error, if any.
func (a *MethodProbesAdapter) Err() error {
	return a.err
}

func (a *MethodProbesAdapter) frame(pop int) *classfile.Frame {
	if a.frames == nil {
		return nil
	}
	return a.frames.Snapshot(pop)
}

func (a *MethodProbesAdapter) execute(in *classfile.Insn) {
	if a.frames == nil || a.err != nil {
		return
	}
	a.err = a.frames.Execute(in)
}

func (a *MethodProbesAdapter) VisitCode() {
	a.probes.VisitCode()
}

func (a *MethodProbesAdapter) VisitTryCatchBlock(tc classfile.TryCatch) {
	// A probe inserted before the start label must lie inside the block,
	// so the block starts at a fresh label placed before the probe.
	if l, ok := a.tcProbe[tc.Start]; ok {
		tc.Start = l
	} else if a.labels.NeedsProbe(tc.Start) {
		l := a.labels.NewLabel()
		a.labels.SetSuccessor(l)
		a.tcProbe[tc.Start] = l
		tc.Start = l
	}
	a.probes.VisitTryCatchBlock(tc)
}

func (a *MethodProbesAdapter) VisitLabel(l classfile.Label) {
	if a.labels.NeedsProbe(l) {
		if pl, ok := a.tcProbe[l]; ok {
			a.probes.VisitLabel(pl)
		}
		a.probes.VisitProbe(a.ids.NextID())
	}
	a.probes.VisitLabel(l)
}

func (a *MethodProbesAdapter) VisitLineNumber(line int, start classfile.Label) {
	a.probes.VisitLineNumber(line, start)
}

func (a *MethodProbesAdapter) VisitFrame(f *classfile.Frame) {
	if a.frames != nil {
		a.frames.Reset(f)
	}
	a.probes.VisitFrame(f)
}

func (a *MethodProbesAdapter) VisitInsn(in *classfile.Insn) {
	if in.Op.IsTerminal() {
		a.probes.VisitInsnWithProbe(in, a.ids.NextID())
	} else {
		a.probes.VisitInsn(in)
	}
	a.execute(in)
}

func (a *MethodProbesAdapter) VisitJumpInsn(in *classfile.Insn) {
	if a.labels.IsMultiTarget(in.Target) {
		a.probes.VisitJumpInsnWithProbe(in, a.ids.NextID(), a.frame(in.Op.JumpPopCount()))
	} else {
		a.probes.VisitJumpInsn(in)
	}
	a.execute(in)
}

func (a *MethodProbesAdapter) VisitSwitchInsn(in *classfile.Insn) {
	if a.markSwitchLabels(in) {
		a.probes.VisitSwitchInsnWithProbes(in, a.labels, a.frame(1))
	} else {
		a.probes.VisitSwitchInsn(in)
	}
	a.execute(in)
}

// markSwitchLabels assigns a probe id to every distinct multi-target label
// of a switch and reports whether any was assigned.
func (a *MethodProbesAdapter) markSwitchLabels(in *classfile.Insn) bool {
	probe := false
	a.labels.ResetDone(in.Labels...)
	if a.labels.IsMultiTarget(in.Default) {
		a.labels.SetProbeID(in.Default, a.ids.NextID())
		probe = true
	}
	a.labels.SetDone(in.Default)
	for _, l := range in.Labels {
		if a.labels.IsMultiTarget(l) && !a.labels.IsDone(l) {
			a.labels.SetProbeID(l, a.ids.NextID())
			probe = true
		}
		a.labels.SetDone(l)
	}
	return probe
}

func (a *MethodProbesAdapter) VisitLocalVariable(lv classfile.LocalVariable) {
	a.probes.VisitLocalVariable(lv)
}

func (a *MethodProbesAdapter) VisitMaxs(maxStack, maxLocals int) {
	a.probes.VisitMaxs(maxStack, maxLocals)
}

func (a *MethodProbesAdapter) VisitEnd() {
	a.probes.VisitEnd()
}
