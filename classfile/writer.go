package classfile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Magic opens every encoded class.
var Magic = [4]byte{'P', 'C', 'L', 'S'}

// Constant pool tags.
const (
	tagUTF8 byte = 1
	tagInt  byte = 3
	tagLong byte = 5
)

// Verification type tags.
const (
	vtTop    byte = 0
	vtInt    byte = 1
	vtLong   byte = 4
	vtNull   byte = 5
	vtObject byte = 7
)

var (
	ErrInvalidMagic       = errors.New("invalid magic number: expected PCLS")
	ErrUnsupportedVersion = errors.New("unsupported class format version")
	ErrTruncated          = errors.New("unexpected end of class data")
	ErrCorrupt            = errors.New("corrupt class data")
	ErrUnresolvedLabel    = errors.New("label is never placed")
	ErrTooLarge           = errors.New("value exceeds class format limits")
)

// ---------------------------------------------------------------------------
// Constant pool
// ---------------------------------------------------------------------------

type poolKey struct {
	tag byte
	s   string
	n   int64
}

type constPool struct {
	entries []poolKey
	index   map[poolKey]uint16
}

func newConstPool() *constPool {
	return &constPool{index: make(map[poolKey]uint16)}
}

// add interns a pool entry. Index 0 is reserved for "absent".
func (p *constPool) add(k poolKey) (uint16, error) {
	if i, ok := p.index[k]; ok {
		return i, nil
	}
	if len(p.entries)+1 > math.MaxUint16 {
		return 0, fmt.Errorf("%w: constant pool overflow", ErrTooLarge)
	}
	p.entries = append(p.entries, k)
	i := uint16(len(p.entries))
	p.index[k] = i
	return i, nil
}

func (p *constPool) utf8(s string) (uint16, error) {
	return p.add(poolKey{tag: tagUTF8, s: s})
}

// optUTF8 returns 0 for the empty string.
func (p *constPool) optUTF8(s string) (uint16, error) {
	if s == "" {
		return 0, nil
	}
	return p.utf8(s)
}

func (p *constPool) constant(c any) (uint16, error) {
	switch v := c.(type) {
	case int32:
		return p.add(poolKey{tag: tagInt, n: int64(v)})
	case int64:
		return p.add(poolKey{tag: tagLong, n: v})
	case string:
		return p.utf8(v)
	}
	return 0, fmt.Errorf("%w: unsupported constant %T", ErrCorrupt, c)
}

// ---------------------------------------------------------------------------
// Writer
// ---------------------------------------------------------------------------

type encoder struct {
	buf  bytes.Buffer
	pool *constPool
	err  error
}

func (e *encoder) u8(v byte) { e.buf.WriteByte(v) }

func (e *encoder) u16(v int) {
	if v < 0 || v > math.MaxUint16 {
		e.fail(fmt.Errorf("%w: %d does not fit 16 bits", ErrTooLarge, v))
		return
	}
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(v))
	e.buf.Write(b[:])
}

func (e *encoder) i16(v int) {
	if v < math.MinInt16 || v > math.MaxInt16 {
		e.fail(fmt.Errorf("%w: %d does not fit 16 bits", ErrTooLarge, v))
		return
	}
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(int16(v)))
	e.buf.Write(b[:])
}

func (e *encoder) u32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	e.buf.Write(b[:])
}

func (e *encoder) str(s string) {
	i, err := e.pool.utf8(s)
	e.fail(err)
	e.u16(int(i))
}

func (e *encoder) optStr(s string) {
	i, err := e.pool.optUTF8(s)
	e.fail(err)
	e.u16(int(i))
}

func (e *encoder) fail(err error) {
	if err != nil && e.err == nil {
		e.err = err
	}
}

// Write encodes a class into its binary form.
func Write(c *Class) ([]byte, error) {
	body := &encoder{pool: newConstPool()}
	body.u32(c.Access)
	body.str(c.Name)
	body.optStr(c.SuperName)
	body.u16(len(c.Interfaces))
	for _, itf := range c.Interfaces {
		body.str(itf)
	}
	body.optStr(c.SourceFile)
	body.optStr(c.Signature)

	body.u16(len(c.Fields))
	for _, f := range c.Fields {
		body.u32(f.Access)
		body.str(f.Name)
		body.str(f.Desc)
	}

	body.u16(len(c.Methods))
	for _, m := range c.Methods {
		if err := body.method(m); err != nil {
			return nil, fmt.Errorf("method %s%s: %w", m.Name, m.Desc, err)
		}
	}
	if body.err != nil {
		return nil, body.err
	}

	out := &encoder{pool: body.pool}
	out.buf.Write(Magic[:])
	out.u16(int(c.Version))
	out.u16(len(body.pool.entries))
	for _, k := range body.pool.entries {
		out.u8(k.tag)
		switch k.tag {
		case tagUTF8:
			if len(k.s) > math.MaxUint16 {
				return nil, fmt.Errorf("%w: string of %d bytes", ErrTooLarge, len(k.s))
			}
			out.u16(len(k.s))
			out.buf.WriteString(k.s)
		case tagInt:
			out.u32(uint32(int32(k.n)))
		case tagLong:
			out.u32(uint32(uint64(k.n) >> 32))
			out.u32(uint32(k.n))
		}
	}
	if out.err != nil {
		return nil, out.err
	}
	out.buf.Write(body.buf.Bytes())
	return out.buf.Bytes(), nil
}

// insnSize returns the encoded size of an instruction.
func insnSize(in *Insn) int {
	switch in.Op.Kind() {
	case KindTableSwitch:
		return 1 + 12 + 4*len(in.Labels)
	case KindLookupSwitch:
		return 1 + 8 + 8*len(in.Labels)
	}
	return 1 + in.Op.Info().OperandBytes
}

type framePC struct {
	pc    int
	frame *Frame
}

func (e *encoder) method(m *Method) error {
	e.u32(m.Access)
	e.str(m.Name)
	e.str(m.Desc)
	e.optStr(m.Signature)
	e.u16(m.MaxStack)
	e.u16(m.MaxLocals)

	// Pass 1: resolve label positions.
	labelPC := make(map[Label]int)
	pc := 0
	for _, n := range m.Code {
		switch n.Kind {
		case NodeLabel:
			labelPC[n.Label] = pc
		case NodeInsn:
			if !n.Insn.Op.Valid() {
				return fmt.Errorf("%w: opcode 0x%02X", ErrCorrupt, byte(n.Insn.Op))
			}
			pc += insnSize(n.Insn)
		}
	}
	codeLen := pc
	resolve := func(l Label) (int, error) {
		p, ok := labelPC[l]
		if !ok {
			return 0, fmt.Errorf("%w: L%d", ErrUnresolvedLabel, l)
		}
		return p, nil
	}

	// Pass 2: encode.
	code := &encoder{pool: e.pool}
	type linePC struct{ pc, line int }
	var lines []linePC
	var frames []framePC
	pc = 0
	for _, n := range m.Code {
		switch n.Kind {
		case NodeLine:
			p, err := resolve(n.Label)
			if err != nil {
				return err
			}
			lines = append(lines, linePC{p, n.Line})
		case NodeFrame:
			if len(frames) > 0 && frames[len(frames)-1].pc == pc {
				frames[len(frames)-1].frame = n.Frame
			} else {
				frames = append(frames, framePC{pc, n.Frame})
			}
		case NodeInsn:
			if err := code.insn(n.Insn, pc, resolve); err != nil {
				return err
			}
			pc += insnSize(n.Insn)
		}
	}
	if code.err != nil {
		return code.err
	}
	e.u32(uint32(codeLen))
	e.buf.Write(code.buf.Bytes())

	e.u16(len(m.TryCatch))
	for _, tc := range m.TryCatch {
		for _, l := range []Label{tc.Start, tc.End, tc.Handler} {
			p, err := resolve(l)
			if err != nil {
				return err
			}
			e.u32(uint32(p))
		}
		e.optStr(tc.Type)
	}

	e.u16(len(lines))
	for _, ln := range lines {
		e.u32(uint32(ln.pc))
		e.u16(ln.line)
	}

	e.u16(len(frames))
	for _, f := range frames {
		e.u32(uint32(f.pc))
		e.vtypes(f.frame.Locals)
		e.vtypes(f.frame.Stack)
	}

	e.u16(len(m.LocalVars))
	for _, lv := range m.LocalVars {
		start, err := resolve(lv.Start)
		if err != nil {
			return err
		}
		end, err := resolve(lv.End)
		if err != nil {
			return err
		}
		e.u32(uint32(start))
		e.u32(uint32(end))
		e.str(lv.Name)
		e.str(lv.Desc)
		e.u16(lv.Index)
	}
	return e.err
}

func (e *encoder) vtypes(ts []VType) {
	e.u16(len(ts))
	for _, t := range ts {
		switch t {
		case TypeTop:
			e.u8(vtTop)
		case TypeInt:
			e.u8(vtInt)
		case TypeLong:
			e.u8(vtLong)
		case TypeNull:
			e.u8(vtNull)
		default:
			e.u8(vtObject)
			e.str(string(t))
		}
	}
}

func (e *encoder) insn(in *Insn, pc int, resolve func(Label) (int, error)) error {
	e.u8(byte(in.Op))
	offset := func(l Label) {
		p, err := resolve(l)
		if err != nil {
			e.fail(err)
			return
		}
		e.u32(uint32(int32(p - pc)))
	}
	switch in.Op.Kind() {
	case KindInt:
		switch in.Op {
		case OpBipush:
			if in.Operand < math.MinInt8 || in.Operand > math.MaxInt8 {
				return fmt.Errorf("%w: BIPUSH %d", ErrTooLarge, in.Operand)
			}
			e.u8(byte(int8(in.Operand)))
		case OpSipush:
			e.i16(in.Operand)
		default:
			e.u8(byte(in.Operand))
		}
	case KindVar:
		e.u16(in.Operand)
	case KindIinc:
		e.u16(in.Operand)
		e.i16(in.Incr)
	case KindLdc:
		i, err := e.pool.constant(in.Const)
		if err != nil {
			return err
		}
		e.u16(int(i))
	case KindJump:
		offset(in.Target)
	case KindTableSwitch:
		if int(in.Max)-int(in.Min)+1 != len(in.Labels) {
			return fmt.Errorf("%w: TABLESWITCH %d..%d with %d labels", ErrCorrupt, in.Min, in.Max, len(in.Labels))
		}
		offset(in.Default)
		e.u32(uint32(in.Min))
		e.u32(uint32(in.Max))
		for _, l := range in.Labels {
			offset(l)
		}
	case KindLookupSwitch:
		if len(in.Keys) != len(in.Labels) {
			return fmt.Errorf("%w: LOOKUPSWITCH with %d keys and %d labels", ErrCorrupt, len(in.Keys), len(in.Labels))
		}
		offset(in.Default)
		e.u32(uint32(len(in.Keys)))
		for i, k := range in.Keys {
			e.u32(uint32(k))
			offset(in.Labels[i])
		}
	case KindField, KindMethod:
		e.str(in.Owner)
		e.str(in.Name)
		e.str(in.Desc)
	case KindType:
		e.str(in.Owner)
	}
	return e.err
}
