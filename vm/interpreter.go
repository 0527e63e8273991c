package vm

import (
	"errors"
	"fmt"

	"github.com/chazu/probecov/classfile"
)

// code is a method body resolved for execution: labels become instruction
// indexes.
type code struct {
	insns    []*classfile.Insn
	labels   map[classfile.Label]int
	handlers []handler
}

type handler struct {
	start, end, target int
	typ                string
}

func (m *Machine) prepare(meth *classfile.Method) (*code, error) {
	if c, ok := m.code[meth]; ok {
		return c, nil
	}
	c := &code{labels: make(map[classfile.Label]int)}
	for _, n := range meth.Code {
		switch n.Kind {
		case classfile.NodeLabel:
			c.labels[n.Label] = len(c.insns)
		case classfile.NodeInsn:
			c.insns = append(c.insns, n.Insn)
		}
	}
	for _, tc := range meth.TryCatch {
		start, ok1 := c.labels[tc.Start]
		end, ok2 := c.labels[tc.End]
		target, ok3 := c.labels[tc.Handler]
		if !ok1 || !ok2 || !ok3 {
			return nil, fmt.Errorf("%w in try-catch block", classfile.ErrUnresolvedLabel)
		}
		c.handlers = append(c.handlers, handler{start: start, end: end, target: target, typ: tc.Type})
	}
	m.code[meth] = c
	return c, nil
}

func (c *code) target(l classfile.Label) int {
	i, ok := c.labels[l]
	if !ok {
		panic(fmt.Errorf("%w: L%d", classfile.ErrUnresolvedLabel, l))
	}
	return i
}

// handlerFor returns the handler index for an exception thrown at pc.
func (c *code) handlerFor(pc int, ex *Object) (int, bool) {
	for _, h := range c.handlers {
		if pc >= h.start && pc < h.end && (h.typ == "" || h.typ == ex.Class) {
			return h.target, true
		}
	}
	return 0, false
}

// frame is the operand stack and locals of one activation.
type frame struct {
	stack  []Value
	locals []Value
}

func (f *frame) push(v Value) {
	f.stack = append(f.stack, v)
}

func (f *frame) pop() Value {
	n := len(f.stack)
	if n == 0 {
		panic(errors.New("stack underflow"))
	}
	v := f.stack[n-1]
	f.stack = f.stack[:n-1]
	return v
}

func (f *frame) popInt() int32 {
	v := f.pop()
	i, ok := v.(int32)
	if !ok {
		panic(fmt.Errorf("expected int on stack, got %T", v))
	}
	return i
}

func (f *frame) popLong() int64 {
	v := f.pop()
	l, ok := v.(int64)
	if !ok {
		panic(fmt.Errorf("expected long on stack, got %T", v))
	}
	return l
}

// throwSignal unwinds to the handler search of the current activation.
type throwSignal struct {
	ex *Object
}

func throw(class string) {
	panic(throwSignal{ex: &Object{Class: class}})
}

// execute runs one activation. Malformed code surfaces as an error rather
// than a panic.
func (m *Machine) execute(owner *classfile.Class, meth *classfile.Method, args []Value) (result Value, err error) {
	c, err := m.prepare(meth)
	if err != nil {
		return nil, err
	}
	f, err := newFrame(meth, args)
	if err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			e, ok := r.(error)
			if !ok {
				panic(r)
			}
			result, err = nil, fmt.Errorf("%s.%s%s: %w", owner.Name, meth.Name, meth.Desc, e)
		}
	}()

	pc := 0
	for {
		if pc >= len(c.insns) {
			return nil, fmt.Errorf("%s.%s%s: fell off the end of the code", owner.Name, meth.Name, meth.Desc)
		}
		m.steps++
		if m.MaxSteps > 0 && m.steps > m.MaxSteps {
			return nil, ErrStepLimit
		}
		next, ret, done, ex, err := m.step(c, f, pc)
		if err != nil {
			var te *ThrownError
			if !errors.As(err, &te) {
				return nil, err
			}
			ex = te.Exception
		}
		if ex != nil {
			h, ok := c.handlerFor(pc, ex)
			if !ok {
				return nil, &ThrownError{Exception: ex}
			}
			f.stack = append(f.stack[:0], ex)
			pc = h
			continue
		}
		if done {
			return ret, nil
		}
		pc = next
	}
}

func newFrame(meth *classfile.Method, args []Value) (*frame, error) {
	descs, _, err := classfile.ParseMethodDesc(meth.Desc)
	if err != nil {
		return nil, err
	}
	if !meth.IsStatic() {
		descs = append([]string{"Ljava/lang/Object;"}, descs...)
	}
	if len(args) != len(descs) {
		return nil, fmt.Errorf("%s%s: want %d arguments, got %d", meth.Name, meth.Desc, len(descs), len(args))
	}
	size := 0
	for _, d := range descs {
		size += classfile.DescSize(d)
	}
	f := &frame{locals: make([]Value, max(size, meth.MaxLocals))}
	slot := 0
	for i, d := range descs {
		f.locals[slot] = args[i]
		slot += classfile.DescSize(d)
	}
	return f, nil
}

// step executes the instruction at pc. It returns the next pc, or the
// method result with done set, or an exception to dispatch.
func (m *Machine) step(c *code, f *frame, pc int) (next int, ret Value, done bool, ex *Object, err error) {
	defer func() {
		if r := recover(); r != nil {
			sig, ok := r.(throwSignal)
			if !ok {
				panic(r)
			}
			ex = sig.ex
		}
	}()

	in := c.insns[pc]
	next = pc + 1
	switch op := in.Op; op {
	case classfile.OpNop:
	case classfile.OpAconstNull:
		f.push(nil)
	case classfile.OpIconstM1, classfile.OpIconst0, classfile.OpIconst1, classfile.OpIconst2,
		classfile.OpIconst3, classfile.OpIconst4, classfile.OpIconst5:
		f.push(int32(op) - int32(classfile.OpIconst0))
	case classfile.OpLconst0:
		f.push(int64(0))
	case classfile.OpLconst1:
		f.push(int64(1))
	case classfile.OpBipush, classfile.OpSipush:
		f.push(int32(in.Operand))
	case classfile.OpLdc:
		f.push(Value(in.Const))

	case classfile.OpIload, classfile.OpLload, classfile.OpAload:
		f.push(f.locals[in.Operand])
	case classfile.OpIstore, classfile.OpAstore:
		f.locals[in.Operand] = f.pop()
	case classfile.OpLstore:
		f.locals[in.Operand] = f.popLong()
		f.locals[in.Operand+1] = nil
	case classfile.OpIinc:
		v, ok := f.locals[in.Operand].(int32)
		if !ok {
			return 0, nil, false, nil, fmt.Errorf("IINC on non-int local %d", in.Operand)
		}
		f.locals[in.Operand] = v + int32(in.Incr)

	case classfile.OpNewarray:
		n := f.popInt()
		if in.Operand != classfile.ArrayTypeBoolean {
			return 0, nil, false, nil, fmt.Errorf("unsupported array type %d", in.Operand)
		}
		if n < 0 {
			throw(NegativeArraySizeError)
		}
		f.push(&BoolArray{Elems: make([]bool, n)})
	case classfile.OpArraylength:
		f.push(int32(len(boolArray(f.pop()).Elems)))
	case classfile.OpBaload:
		idx := f.popInt()
		arr := boolArray(f.pop())
		checkIndex(arr, idx)
		if arr.Elems[idx] {
			f.push(int32(1))
		} else {
			f.push(int32(0))
		}
	case classfile.OpBastore:
		v := f.popInt()
		idx := f.popInt()
		arr := boolArray(f.pop())
		checkIndex(arr, idx)
		arr.Elems[idx] = v&1 != 0

	case classfile.OpPop:
		f.pop()
	case classfile.OpDup:
		v := f.pop()
		f.push(v)
		f.push(v)
	case classfile.OpSwap:
		a, b := f.pop(), f.pop()
		f.push(a)
		f.push(b)
	case classfile.OpIadd, classfile.OpIsub, classfile.OpImul, classfile.OpIdiv, classfile.OpIrem:
		b, a := f.popInt(), f.popInt()
		f.push(arith(op, a, b))
	case classfile.OpIneg:
		f.push(-f.popInt())
	case classfile.OpLadd:
		b, a := f.popLong(), f.popLong()
		f.push(a + b)
	case classfile.OpLcmp:
		b, a := f.popLong(), f.popLong()
		switch {
		case a < b:
			f.push(int32(-1))
		case a > b:
			f.push(int32(1))
		default:
			f.push(int32(0))
		}

	case classfile.OpIfeq, classfile.OpIfne, classfile.OpIflt, classfile.OpIfge, classfile.OpIfgt, classfile.OpIfle:
		if compare(op, f.popInt(), 0) {
			next = c.target(in.Target)
		}
	case classfile.OpIfIcmpeq, classfile.OpIfIcmpne, classfile.OpIfIcmplt, classfile.OpIfIcmpge,
		classfile.OpIfIcmpgt, classfile.OpIfIcmple:
		b, a := f.popInt(), f.popInt()
		if compare(op, a, b) {
			next = c.target(in.Target)
		}
	case classfile.OpIfAcmpeq, classfile.OpIfAcmpne:
		b, a := f.pop(), f.pop()
		if sameRef(a, b) == (op == classfile.OpIfAcmpeq) {
			next = c.target(in.Target)
		}
	case classfile.OpIfnull, classfile.OpIfnonnull:
		if (f.pop() == nil) == (op == classfile.OpIfnull) {
			next = c.target(in.Target)
		}
	case classfile.OpGoto:
		next = c.target(in.Target)
	case classfile.OpJsr:
		f.push(returnAddress(pc + 1))
		next = c.target(in.Target)
	case classfile.OpRet:
		addr, ok := f.locals[in.Operand].(returnAddress)
		if !ok {
			return 0, nil, false, nil, fmt.Errorf("RET on local %d without return address", in.Operand)
		}
		next = int(addr)

	case classfile.OpTableswitch:
		key := f.popInt()
		next = c.target(in.Default)
		if key >= in.Min && key <= in.Max {
			next = c.target(in.Labels[key-in.Min])
		}
	case classfile.OpLookupswitch:
		key := f.popInt()
		next = c.target(in.Default)
		for i, k := range in.Keys {
			if k == key {
				next = c.target(in.Labels[i])
				break
			}
		}

	case classfile.OpIreturn, classfile.OpLreturn, classfile.OpAreturn:
		return 0, f.pop(), true, nil, nil
	case classfile.OpReturn:
		return 0, nil, true, nil, nil
	case classfile.OpAthrow:
		v := f.pop()
		if v == nil {
			throw(NullPointerException)
		}
		obj, ok := v.(*Object)
		if !ok {
			return 0, nil, false, nil, fmt.Errorf("ATHROW of %T", v)
		}
		return 0, nil, false, obj, nil

	case classfile.OpGetstatic:
		if err := m.initializeOwner(in.Owner); err != nil {
			return 0, nil, false, nil, err
		}
		v, ok := m.statics[memberKey(in.Owner, in.Name)]
		if !ok {
			v = zero(in.Desc)
		}
		f.push(v)
	case classfile.OpPutstatic:
		if err := m.initializeOwner(in.Owner); err != nil {
			return 0, nil, false, nil, err
		}
		m.statics[memberKey(in.Owner, in.Name)] = f.pop()
	case classfile.OpInvokestatic:
		descs, rt, err := classfile.ParseMethodDesc(in.Desc)
		if err != nil {
			return 0, nil, false, nil, err
		}
		args := make([]Value, len(descs))
		for i := len(args) - 1; i >= 0; i-- {
			args[i] = f.pop()
		}
		v, err := m.invoke(in.Owner, in.Name, in.Desc, args)
		if err != nil {
			return 0, nil, false, nil, err
		}
		if rt != "V" {
			f.push(v)
		}
	case classfile.OpNew:
		f.push(&Object{Class: in.Owner})

	default:
		return 0, nil, false, nil, fmt.Errorf("unsupported instruction %s", op)
	}
	return next, nil, false, nil, nil
}

func (m *Machine) initializeOwner(owner string) error {
	if c, ok := m.classes[owner]; ok {
		return m.initialize(c)
	}
	return nil
}

func boolArray(v Value) *BoolArray {
	if v == nil {
		throw(NullPointerException)
	}
	arr, ok := v.(*BoolArray)
	if !ok {
		panic(fmt.Errorf("expected boolean array, got %T", v))
	}
	return arr
}

func checkIndex(arr *BoolArray, idx int32) {
	if idx < 0 || int(idx) >= len(arr.Elems) {
		throw(ArrayIndexException)
	}
}

func arith(op classfile.Opcode, a, b int32) int32 {
	switch op {
	case classfile.OpIadd:
		return a + b
	case classfile.OpIsub:
		return a - b
	case classfile.OpImul:
		return a * b
	}
	if b == 0 {
		throw(ArithmeticException)
	}
	if op == classfile.OpIdiv {
		return a / b
	}
	return a % b
}

func compare(op classfile.Opcode, a, b int32) bool {
	switch op {
	case classfile.OpIfeq, classfile.OpIfIcmpeq:
		return a == b
	case classfile.OpIfne, classfile.OpIfIcmpne:
		return a != b
	case classfile.OpIflt, classfile.OpIfIcmplt:
		return a < b
	case classfile.OpIfge, classfile.OpIfIcmpge:
		return a >= b
	case classfile.OpIfgt, classfile.OpIfIcmpgt:
		return a > b
	}
	return a <= b
}
