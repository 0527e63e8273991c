package flow

import (
	"fmt"

	"github.com/chazu/probecov/classfile"
)

// FrameTracker simulates the verification types of locals and operand
// stack along a method's instruction stream. After an unconditional
// transfer the state is unknown until the next frame is visited.
type FrameTracker struct {
	locals []classfile.VType // one entry per slot, long followed by top
	stack  []classfile.VType // one entry per slot, long followed by top
	known  bool
}

// NewFrameTracker starts tracking at the entry of m.
func NewFrameTracker(owner string, m *classfile.Method) (*FrameTracker, error) {
	f, err := classfile.InitialFrame(owner, m)
	if err != nil {
		return nil, err
	}
	t := &FrameTracker{}
	t.Reset(f)
	return t, nil
}

// Reset replaces the tracked state with an expanded frame.
func (t *FrameTracker) Reset(f *classfile.Frame) {
	t.locals = expand(f.Locals)
	t.stack = expand(f.Stack)
	t.known = true
}

func expand(ts []classfile.VType) []classfile.VType {
	out := make([]classfile.VType, 0, len(ts))
	for _, v := range ts {
		out = append(out, v)
		if v == classfile.TypeLong {
			out = append(out, classfile.TypeTop)
		}
	}
	return out
}

func reduce(slots []classfile.VType) []classfile.VType {
	out := make([]classfile.VType, 0, len(slots))
	for i := 0; i < len(slots); i++ {
		out = append(out, slots[i])
		if slots[i] == classfile.TypeLong {
			i++
		}
	}
	return out
}

// Snapshot returns the current frame with the top pop slots removed from
// the stack, or nil when the state is unknown.
func (t *FrameTracker) Snapshot(pop int) *classfile.Frame {
	if !t.known {
		return nil
	}
	n := len(t.stack) - pop
	if n < 0 {
		n = 0
	}
	return &classfile.Frame{Locals: reduce(t.locals), Stack: reduce(t.stack[:n])}
}

func (t *FrameTracker) push(v classfile.VType) {
	t.stack = append(t.stack, v)
	if v == classfile.TypeLong {
		t.stack = append(t.stack, classfile.TypeTop)
	}
}

func (t *FrameTracker) pop(slots int) {
	if slots > len(t.stack) {
		slots = len(t.stack)
	}
	t.stack = t.stack[:len(t.stack)-slots]
}

func (t *FrameTracker) top() classfile.VType {
	if len(t.stack) == 0 {
		return classfile.TypeTop
	}
	return t.stack[len(t.stack)-1]
}

func (t *FrameTracker) local(i int) classfile.VType {
	if i < len(t.locals) {
		return t.locals[i]
	}
	return classfile.TypeTop
}

func (t *FrameTracker) setLocal(i int, v classfile.VType) {
	for len(t.locals) <= i+v.Size()-1 {
		t.locals = append(t.locals, classfile.TypeTop)
	}
	if i > 0 && t.locals[i-1] == classfile.TypeLong {
		t.locals[i-1] = classfile.TypeTop
	}
	t.locals[i] = v
	if v == classfile.TypeLong {
		t.locals[i+1] = classfile.TypeTop
	}
}

func (t *FrameTracker) unknown() {
	t.known = false
	t.locals = nil
	t.stack = nil
}

// Execute applies the effect of one instruction.
func (t *FrameTracker) Execute(in *classfile.Insn) error {
	if !t.known {
		return nil
	}
	switch in.Op {
	case classfile.OpNop, classfile.OpIinc:
	case classfile.OpAconstNull:
		t.push(classfile.TypeNull)
	case classfile.OpIconstM1, classfile.OpIconst0, classfile.OpIconst1, classfile.OpIconst2,
		classfile.OpIconst3, classfile.OpIconst4, classfile.OpIconst5,
		classfile.OpBipush, classfile.OpSipush:
		t.push(classfile.TypeInt)
	case classfile.OpLconst0, classfile.OpLconst1:
		t.push(classfile.TypeLong)
	case classfile.OpLdc:
		switch in.Const.(type) {
		case int32:
			t.push(classfile.TypeInt)
		case int64:
			t.push(classfile.TypeLong)
		case string:
			t.push("Ljava/lang/String;")
		default:
			return fmt.Errorf("LDC of unsupported constant %T", in.Const)
		}
	case classfile.OpIload:
		t.push(classfile.TypeInt)
	case classfile.OpLload:
		t.push(classfile.TypeLong)
	case classfile.OpAload:
		t.push(t.local(in.Operand))
	case classfile.OpIstore:
		t.pop(1)
		t.setLocal(in.Operand, classfile.TypeInt)
	case classfile.OpLstore:
		t.pop(2)
		t.setLocal(in.Operand, classfile.TypeLong)
	case classfile.OpAstore:
		v := t.top()
		t.pop(1)
		t.setLocal(in.Operand, v)
	case classfile.OpBaload:
		t.pop(2)
		t.push(classfile.TypeInt)
	case classfile.OpBastore:
		t.pop(3)
	case classfile.OpNewarray:
		t.pop(1)
		if in.Operand == classfile.ArrayTypeBoolean {
			t.push("[Z")
		} else {
			t.push("[I")
		}
	case classfile.OpArraylength:
		t.pop(1)
		t.push(classfile.TypeInt)
	case classfile.OpPop:
		t.pop(1)
	case classfile.OpDup:
		t.push(t.top())
	case classfile.OpSwap:
		n := len(t.stack)
		if n >= 2 {
			t.stack[n-1], t.stack[n-2] = t.stack[n-2], t.stack[n-1]
		}
	case classfile.OpIadd, classfile.OpIsub, classfile.OpImul, classfile.OpIdiv, classfile.OpIrem:
		t.pop(2)
		t.push(classfile.TypeInt)
	case classfile.OpIneg:
		t.pop(1)
		t.push(classfile.TypeInt)
	case classfile.OpLadd:
		t.pop(4)
		t.push(classfile.TypeLong)
	case classfile.OpLcmp:
		t.pop(4)
		t.push(classfile.TypeInt)
	case classfile.OpGetstatic:
		t.push(classfile.DescType(in.Desc))
	case classfile.OpPutstatic:
		t.pop(classfile.DescSize(in.Desc))
	case classfile.OpInvokestatic:
		args, ret, err := classfile.ParseMethodDesc(in.Desc)
		if err != nil {
			return err
		}
		for _, a := range args {
			t.pop(classfile.DescSize(a))
		}
		if ret != "V" {
			t.push(classfile.DescType(ret))
		}
	case classfile.OpNew:
		t.push(classfile.VType("L" + in.Owner + ";"))
	case classfile.OpGoto:
		t.unknown()
	case classfile.OpTableswitch, classfile.OpLookupswitch:
		t.unknown()
	case classfile.OpJsr, classfile.OpRet:
		return ErrSubroutine
	default:
		switch {
		case in.Op.IsTerminal():
			t.unknown()
		case in.Op.IsConditional():
			t.pop(in.Op.JumpPopCount())
		default:
			return fmt.Errorf("no frame semantics for %s", in.Op)
		}
	}
	return nil
}
