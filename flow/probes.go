package flow

import "github.com/chazu/probecov/classfile"

// IDGenerator hands out probe ids.
type IDGenerator interface {
	NextID() int
}

// MethodProbesVisitor receives a method's code with probe events mixed in.
// Instructions that carry a probe arrive through the *WithProbe variants
// instead of the plain classfile.MethodVisitor methods.
type MethodProbesVisitor interface {
	classfile.MethodVisitor

	// VisitProbe reports a probe on the fall-through edge into the next label.
	VisitProbe(id int)

	// VisitJumpInsnWithProbe reports a jump whose taken edge carries a probe.
	// frame is the state after the jump's operands are popped; nil when
	// frames are not tracked.
	VisitJumpInsnWithProbe(in *classfile.Insn, id int, frame *classfile.Frame)

	// VisitInsnWithProbe reports a return or throw preceded by a probe.
	VisitInsnWithProbe(in *classfile.Insn, id int)

	// VisitSwitchInsnWithProbes reports a switch with at least one probed
	// target. Probe ids are recorded on the target labels in labels.
	VisitSwitchInsnWithProbes(in *classfile.Insn, labels *LabelInfos, frame *classfile.Frame)
}

// ClassProbesVisitor receives one class with probe events for its methods.
type ClassProbesVisitor interface {
	VisitClass(c *classfile.Class) error

	// VisitMethod returns the visitor for one method, or nil to skip it.
	// Skipped methods are still traversed so probe numbering is unchanged.
	VisitMethod(m *classfile.Method, labels *LabelInfos) (MethodProbesVisitor, error)

	// VisitTotalProbeCount is called once, after all methods.
	VisitTotalProbeCount(count int)

	VisitEnd() error
}

// NopMethodProbesVisitor ignores every event. Embed it to implement only
// the callbacks of interest.
type NopMethodProbesVisitor struct{}

func (NopMethodProbesVisitor) VisitCode()                                 {}
func (NopMethodProbesVisitor) VisitTryCatchBlock(classfile.TryCatch)      {}
func (NopMethodProbesVisitor) VisitLabel(classfile.Label)                 {}
func (NopMethodProbesVisitor) VisitLineNumber(int, classfile.Label)       {}
func (NopMethodProbesVisitor) VisitFrame(*classfile.Frame)                {}
func (NopMethodProbesVisitor) VisitInsn(*classfile.Insn)                  {}
func (NopMethodProbesVisitor) VisitJumpInsn(*classfile.Insn)              {}
func (NopMethodProbesVisitor) VisitSwitchInsn(*classfile.Insn)            {}
func (NopMethodProbesVisitor) VisitLocalVariable(classfile.LocalVariable) {}
func (NopMethodProbesVisitor) VisitMaxs(int, int)                         {}
func (NopMethodProbesVisitor) VisitEnd()                                  {}
func (NopMethodProbesVisitor) VisitProbe(int)                             {}

func (NopMethodProbesVisitor) VisitJumpInsnWithProbe(*classfile.Insn, int, *classfile.Frame) {}

func (NopMethodProbesVisitor) VisitInsnWithProbe(*classfile.Insn, int) {}

func (NopMethodProbesVisitor) VisitSwitchInsnWithProbes(*classfile.Insn, *LabelInfos, *classfile.Frame) {
}
