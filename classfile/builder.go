package classfile

// ---------------------------------------------------------------------------
// Builder helpers: assemble method code by hand
// ---------------------------------------------------------------------------

// NewLabel allocates a label that is not yet placed.
func (m *Method) NewLabel() Label {
	l := Label(m.NumLabels)
	m.NumLabels++
	return l
}

// Mark places a label at the current position.
func (m *Method) Mark(l Label) *Method {
	m.VisitLabel(l)
	return m
}

// Line starts a new source line at the current position.
func (m *Method) Line(line int) *Method {
	l := m.NewLabel()
	m.VisitLabel(l)
	m.VisitLineNumber(line, l)
	return m
}

// Frame records the expanded frame at the current position.
func (m *Method) Frame(locals, stack []VType) *Method {
	m.VisitFrame(&Frame{Locals: locals, Stack: stack})
	return m
}

// Insn appends an instruction without operands.
func (m *Method) Insn(op Opcode) *Method {
	m.VisitInsn(&Insn{Op: op})
	return m
}

// Int appends BIPUSH, SIPUSH or NEWARRAY.
func (m *Method) Int(op Opcode, v int) *Method {
	m.VisitInsn(&Insn{Op: op, Operand: v})
	return m
}

// Push appends the shortest instruction that pushes the int v.
func (m *Method) Push(v int) *Method {
	m.VisitInsn(PushInt(v))
	return m
}

// Var appends a local variable instruction.
func (m *Method) Var(op Opcode, index int) *Method {
	m.VisitInsn(&Insn{Op: op, Operand: index})
	return m
}

// Iinc appends an IINC instruction.
func (m *Method) Iinc(index, delta int) *Method {
	m.VisitInsn(&Insn{Op: OpIinc, Operand: index, Incr: delta})
	return m
}

// Ldc appends an LDC of an int32, int64 or string constant.
func (m *Method) Ldc(c any) *Method {
	m.VisitInsn(&Insn{Op: OpLdc, Const: c})
	return m
}

// Jump appends a jump to l.
func (m *Method) Jump(op Opcode, l Label) *Method {
	m.VisitJumpInsn(&Insn{Op: op, Target: l})
	return m
}

// TableSwitch appends a TABLESWITCH over min..max.
func (m *Method) TableSwitch(min, max int32, dflt Label, labels ...Label) *Method {
	m.VisitSwitchInsn(&Insn{Op: OpTableswitch, Min: min, Max: max, Default: dflt, Labels: labels})
	return m
}

// LookupSwitch appends a LOOKUPSWITCH; keys and labels pair up by index.
func (m *Method) LookupSwitch(dflt Label, keys []int32, labels []Label) *Method {
	m.VisitSwitchInsn(&Insn{Op: OpLookupswitch, Default: dflt, Keys: keys, Labels: labels})
	return m
}

// Field appends GETSTATIC or PUTSTATIC.
func (m *Method) Field(op Opcode, owner, name, desc string) *Method {
	m.VisitInsn(&Insn{Op: op, Owner: owner, Name: name, Desc: desc})
	return m
}

// Invoke appends INVOKESTATIC.
func (m *Method) Invoke(owner, name, desc string) *Method {
	m.VisitInsn(&Insn{Op: OpInvokestatic, Owner: owner, Name: name, Desc: desc})
	return m
}

// New appends a NEW of the given type.
func (m *Method) New(typ string) *Method {
	m.VisitInsn(&Insn{Op: OpNew, Owner: typ})
	return m
}

// Try registers a handler for [start, end).
func (m *Method) Try(start, end, handler Label, typ string) *Method {
	m.VisitTryCatchBlock(TryCatch{Start: start, End: end, Handler: handler, Type: typ})
	return m
}

// Maxs sets the operand stack and local variable limits.
func (m *Method) Maxs(maxStack, maxLocals int) *Method {
	m.VisitMaxs(maxStack, maxLocals)
	return m
}

// PushInt returns the shortest instruction that pushes v.
func PushInt(v int) *Insn {
	switch {
	case v >= -1 && v <= 5:
		return &Insn{Op: OpIconst0 + Opcode(v)}
	case v >= -128 && v <= 127:
		return &Insn{Op: OpBipush, Operand: v}
	case v >= -32768 && v <= 32767:
		return &Insn{Op: OpSipush, Operand: v}
	default:
		return &Insn{Op: OpLdc, Const: int32(v)}
	}
}
