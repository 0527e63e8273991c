package instr

import "github.com/chazu/probecov/classfile"

// probeInserter keeps the probe array in a dedicated local slot placed
// right after the arguments. Every local at or above that slot moves up by
// one, and every frame gets the array spliced in at the slot.
type probeInserter struct {
	mv            classfile.MethodVisitor
	strategy      *probeArrayStrategy
	variable      int
	accessorStack int
}

func newProbeInserter(m *classfile.Method, mv classfile.MethodVisitor, strategy *probeArrayStrategy) (*probeInserter, error) {
	size, err := classfile.ArgumentsSize(m.Desc)
	if err != nil {
		return nil, err
	}
	if !m.IsStatic() {
		size++
	}
	return &probeInserter{mv: mv, strategy: strategy, variable: size}, nil
}

// insertProbe emits probes[id] = true.
func (p *probeInserter) insertProbe(id int) {
	p.mv.VisitInsn(&classfile.Insn{Op: classfile.OpAload, Operand: p.variable})
	p.mv.VisitInsn(classfile.PushInt(id))
	p.mv.VisitInsn(&classfile.Insn{Op: classfile.OpIconst1})
	p.mv.VisitInsn(&classfile.Insn{Op: classfile.OpBastore})
}

func (p *probeInserter) remap(v int) int {
	if v < p.variable {
		return v
	}
	return v + 1
}

func (p *probeInserter) VisitCode() {
	p.mv.VisitCode()
	p.accessorStack = p.strategy.storeInstance(p.mv, p.variable)
}

func (p *probeInserter) VisitTryCatchBlock(tc classfile.TryCatch) {
	p.mv.VisitTryCatchBlock(tc)
}

func (p *probeInserter) VisitLabel(l classfile.Label) {
	p.mv.VisitLabel(l)
}

func (p *probeInserter) VisitLineNumber(line int, start classfile.Label) {
	p.mv.VisitLineNumber(line, start)
}

func (p *probeInserter) VisitInsn(in *classfile.Insn) {
	switch in.Op.Kind() {
	case classfile.KindVar, classfile.KindIinc:
		c := in.Clone()
		c.Operand = p.remap(in.Operand)
		p.mv.VisitInsn(c)
	default:
		p.mv.VisitInsn(in)
	}
}

func (p *probeInserter) VisitJumpInsn(in *classfile.Insn) {
	p.mv.VisitJumpInsn(in)
}

func (p *probeInserter) VisitSwitchInsn(in *classfile.Insn) {
	p.mv.VisitSwitchInsn(in)
}

func (p *probeInserter) VisitLocalVariable(lv classfile.LocalVariable) {
	lv.Index = p.remap(lv.Index)
	p.mv.VisitLocalVariable(lv)
}

func (p *probeInserter) VisitMaxs(maxStack, maxLocals int) {
	// Probe code needs three extra stack slots: array, index and value.
	maxStack = max(maxStack+3, p.accessorStack)
	p.mv.VisitMaxs(maxStack, maxLocals+1)
}

func (p *probeInserter) VisitFrame(f *classfile.Frame) {
	locals := make([]classfile.VType, 0, max(len(f.Locals), p.variable)+1)
	idx := 0 // next existing local
	pos := 0 // slot position
	for idx < len(f.Locals) || pos <= p.variable {
		if pos == p.variable {
			locals = append(locals, DataFieldDesc)
			pos++
			continue
		}
		if idx < len(f.Locals) {
			t := f.Locals[idx]
			idx++
			locals = append(locals, t)
			pos += t.Size()
		} else {
			locals = append(locals, classfile.TypeTop)
			pos++
		}
	}
	p.mv.VisitFrame(&classfile.Frame{Locals: locals, Stack: append([]classfile.VType(nil), f.Stack...)})
}

func (p *probeInserter) VisitEnd() {
	p.mv.VisitEnd()
}
