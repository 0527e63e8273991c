package instr

import "github.com/chazu/probecov/classfile"

// probeArrayStrategy keeps the probe array of a class in a synthetic static
// field. A synthetic init method fetches it from the runtime on first use.
type probeArrayStrategy struct {
	className string
	classID   uint64
	frames    bool
}

// storeInstance emits code that loads the probe array into local variable
// and returns the stack size that code needs.
func (s *probeArrayStrategy) storeInstance(mv classfile.MethodVisitor, variable int) int {
	mv.VisitInsn(&classfile.Insn{Op: classfile.OpInvokestatic, Owner: s.className, Name: InitMethodName, Desc: InitMethodDesc})
	mv.VisitInsn(&classfile.Insn{Op: classfile.OpAstore, Operand: variable})
	return 1
}

// addMembers appends the data field and the init method to out.
func (s *probeArrayStrategy) addMembers(out *classfile.Class, probeCount int) {
	out.Fields = append(out.Fields, &classfile.Field{Access: DataFieldAcc, Name: DataFieldName, Desc: DataFieldDesc})
	out.Methods = append(out.Methods, s.initMethod(probeCount))
}

// initMethod builds
//
//	GETSTATIC data; DUP; IFNONNULL done; POP
//	<runtime accessor>; DUP; PUTSTATIC data
//	done: ARETURN
func (s *probeArrayStrategy) initMethod(probeCount int) *classfile.Method {
	m := classfile.NewMethod(InitMethodAcc, InitMethodName, InitMethodDesc)
	done := m.NewLabel()
	m.Field(classfile.OpGetstatic, s.className, DataFieldName, DataFieldDesc)
	m.Insn(classfile.OpDup)
	m.Jump(classfile.OpIfnonnull, done)
	m.Insn(classfile.OpPop)
	size := s.accessor(m, probeCount)
	m.Insn(classfile.OpDup)
	m.Field(classfile.OpPutstatic, s.className, DataFieldName, DataFieldDesc)
	m.Mark(done)
	if s.frames {
		m.Frame(nil, []classfile.VType{DataFieldDesc})
	}
	m.Insn(classfile.OpAreturn)
	return m.Maxs(max(size, 2), 0)
}

// accessor pushes the runtime's probe array for the class and returns the
// stack size used.
func (s *probeArrayStrategy) accessor(m *classfile.Method, probeCount int) int {
	m.Ldc(int64(s.classID))
	m.Ldc(s.className)
	m.Push(probeCount)
	m.Invoke(RuntimeOwner, RuntimeMethod, RuntimeDesc)
	// long id (2) + name + count
	return 4
}
