package classfile

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// ---------------------------------------------------------------------------
// Reader: decodes the binary form into the node model
// ---------------------------------------------------------------------------

type poolEntry struct {
	tag byte
	s   string
	n   int64
}

type decoder struct {
	data   []byte
	offset int
	pool   []poolEntry
}

func (d *decoder) need(n int) error {
	if d.offset+n > len(d.data) {
		return ErrTruncated
	}
	return nil
}

func (d *decoder) u8() (byte, error) {
	if err := d.need(1); err != nil {
		return 0, err
	}
	v := d.data[d.offset]
	d.offset++
	return v, nil
}

func (d *decoder) u16() (int, error) {
	if err := d.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(d.data[d.offset:])
	d.offset += 2
	return int(v), nil
}

func (d *decoder) u32() (uint32, error) {
	if err := d.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(d.data[d.offset:])
	d.offset += 4
	return v, nil
}

func (d *decoder) entry(i int) (poolEntry, error) {
	if i <= 0 || i > len(d.pool) {
		return poolEntry{}, fmt.Errorf("%w: constant pool index %d", ErrCorrupt, i)
	}
	return d.pool[i-1], nil
}

func (d *decoder) str() (string, error) {
	i, err := d.u16()
	if err != nil {
		return "", err
	}
	e, err := d.entry(i)
	if err != nil {
		return "", err
	}
	if e.tag != tagUTF8 {
		return "", fmt.Errorf("%w: constant %d is not a string", ErrCorrupt, i)
	}
	return e.s, nil
}

func (d *decoder) optStr() (string, error) {
	i, err := d.u16()
	if err != nil || i == 0 {
		return "", err
	}
	d.offset -= 2
	return d.str()
}

// Read decodes a class from its binary form.
func Read(data []byte) (*Class, error) {
	d := &decoder{data: data}
	if err := d.need(4); err != nil {
		return nil, err
	}
	if [4]byte(data[:4]) != Magic {
		return nil, fmt.Errorf("%w: got %q", ErrInvalidMagic, data[:4])
	}
	d.offset = 4
	version, err := d.u16()
	if err != nil {
		return nil, err
	}
	if version < int(Version1) || version > int(VersionFrames) {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	if err := d.readPool(); err != nil {
		return nil, err
	}

	c := &Class{Version: uint16(version)}
	if c.Access, err = d.u32(); err != nil {
		return nil, err
	}
	if c.Name, err = d.str(); err != nil {
		return nil, err
	}
	if c.SuperName, err = d.optStr(); err != nil {
		return nil, err
	}
	n, err := d.u16()
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		itf, err := d.str()
		if err != nil {
			return nil, err
		}
		c.Interfaces = append(c.Interfaces, itf)
	}
	if c.SourceFile, err = d.optStr(); err != nil {
		return nil, err
	}
	if c.Signature, err = d.optStr(); err != nil {
		return nil, err
	}

	if n, err = d.u16(); err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		f := &Field{}
		if f.Access, err = d.u32(); err != nil {
			return nil, err
		}
		if f.Name, err = d.str(); err != nil {
			return nil, err
		}
		if f.Desc, err = d.str(); err != nil {
			return nil, err
		}
		c.Fields = append(c.Fields, f)
	}

	if n, err = d.u16(); err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		m, err := d.method()
		if err != nil {
			return nil, fmt.Errorf("class %s: %w", c.Name, err)
		}
		c.Methods = append(c.Methods, m)
	}
	if d.offset != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, len(data)-d.offset)
	}
	return c, nil
}

// ReadHeader decodes only the access flags and name of a class.
func ReadHeader(data []byte) (access uint32, name string, err error) {
	d := &decoder{data: data}
	if err := d.need(4); err != nil {
		return 0, "", err
	}
	if [4]byte(data[:4]) != Magic {
		return 0, "", fmt.Errorf("%w: got %q", ErrInvalidMagic, data[:4])
	}
	d.offset = 4
	if _, err := d.u16(); err != nil {
		return 0, "", err
	}
	if err := d.readPool(); err != nil {
		return 0, "", err
	}
	if access, err = d.u32(); err != nil {
		return 0, "", err
	}
	name, err = d.str()
	return access, name, err
}

func (d *decoder) readPool() error {
	n, err := d.u16()
	if err != nil {
		return err
	}
	d.pool = make([]poolEntry, 0, n)
	for i := 0; i < n; i++ {
		tag, err := d.u8()
		if err != nil {
			return err
		}
		e := poolEntry{tag: tag}
		switch tag {
		case tagUTF8:
			size, err := d.u16()
			if err != nil {
				return err
			}
			if err := d.need(size); err != nil {
				return err
			}
			e.s = string(d.data[d.offset : d.offset+size])
			d.offset += size
		case tagInt:
			v, err := d.u32()
			if err != nil {
				return err
			}
			e.n = int64(int32(v))
		case tagLong:
			hi, err := d.u32()
			if err != nil {
				return err
			}
			lo, err := d.u32()
			if err != nil {
				return err
			}
			e.n = int64(uint64(hi)<<32 | uint64(lo))
		default:
			return fmt.Errorf("%w: constant pool tag %d", ErrCorrupt, tag)
		}
		d.pool = append(d.pool, e)
	}
	return nil
}

// rawInsn is an instruction whose label operands are still code offsets.
type rawInsn struct {
	pc      int
	insn    *Insn
	targets []int // jump target, or default followed by switch targets
}

type rawLine struct{ pc, line int }

type rawFrame struct {
	pc    int
	frame *Frame
}

type rawTry struct {
	start, end, handler int
	typ                 string
}

type rawLocal struct {
	start, end int
	lv         LocalVariable
}

func (d *decoder) method() (*Method, error) {
	m := &Method{}
	var err error
	if m.Access, err = d.u32(); err != nil {
		return nil, err
	}
	if m.Name, err = d.str(); err != nil {
		return nil, err
	}
	if m.Desc, err = d.str(); err != nil {
		return nil, err
	}
	if m.Signature, err = d.optStr(); err != nil {
		return nil, err
	}
	if m.MaxStack, err = d.u16(); err != nil {
		return nil, err
	}
	if m.MaxLocals, err = d.u16(); err != nil {
		return nil, err
	}
	codeLen32, err := d.u32()
	if err != nil {
		return nil, err
	}
	codeLen := int(codeLen32)
	if err := d.need(codeLen); err != nil {
		return nil, err
	}
	codeEnd := d.offset + codeLen
	var insns []rawInsn
	for d.offset < codeEnd {
		ri, err := d.insn(d.offset - (codeEnd - codeLen))
		if err != nil {
			return nil, fmt.Errorf("method %s%s: %w", m.Name, m.Desc, err)
		}
		insns = append(insns, ri)
	}
	if d.offset != codeEnd {
		return nil, fmt.Errorf("%w: instruction overruns code of %s", ErrCorrupt, m.Name)
	}

	var tries []rawTry
	n, err := d.u16()
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		var t rawTry
		for _, p := range []*int{&t.start, &t.end, &t.handler} {
			v, err := d.u32()
			if err != nil {
				return nil, err
			}
			*p = int(v)
		}
		if t.typ, err = d.optStr(); err != nil {
			return nil, err
		}
		tries = append(tries, t)
	}

	var lines []rawLine
	if n, err = d.u16(); err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		pc, err := d.u32()
		if err != nil {
			return nil, err
		}
		line, err := d.u16()
		if err != nil {
			return nil, err
		}
		lines = append(lines, rawLine{int(pc), line})
	}

	var frames []rawFrame
	if n, err = d.u16(); err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		pc, err := d.u32()
		if err != nil {
			return nil, err
		}
		f := &Frame{}
		if f.Locals, err = d.vtypes(); err != nil {
			return nil, err
		}
		if f.Stack, err = d.vtypes(); err != nil {
			return nil, err
		}
		frames = append(frames, rawFrame{int(pc), f})
	}

	var locals []rawLocal
	if n, err = d.u16(); err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		var rl rawLocal
		start, err := d.u32()
		if err != nil {
			return nil, err
		}
		end, err := d.u32()
		if err != nil {
			return nil, err
		}
		rl.start, rl.end = int(start), int(end)
		if rl.lv.Name, err = d.str(); err != nil {
			return nil, err
		}
		if rl.lv.Desc, err = d.str(); err != nil {
			return nil, err
		}
		if rl.lv.Index, err = d.u16(); err != nil {
			return nil, err
		}
		locals = append(locals, rl)
	}

	if err := buildCode(m, codeLen, insns, tries, lines, frames, locals); err != nil {
		return nil, fmt.Errorf("method %s%s: %w", m.Name, m.Desc, err)
	}
	return m, nil
}

func (d *decoder) vtypes() ([]VType, error) {
	n, err := d.u16()
	if err != nil {
		return nil, err
	}
	ts := make([]VType, 0, n)
	for i := 0; i < n; i++ {
		tag, err := d.u8()
		if err != nil {
			return nil, err
		}
		switch tag {
		case vtTop:
			ts = append(ts, TypeTop)
		case vtInt:
			ts = append(ts, TypeInt)
		case vtLong:
			ts = append(ts, TypeLong)
		case vtNull:
			ts = append(ts, TypeNull)
		case vtObject:
			s, err := d.str()
			if err != nil {
				return nil, err
			}
			ts = append(ts, VType(s))
		default:
			return nil, fmt.Errorf("%w: verification type tag %d", ErrCorrupt, tag)
		}
	}
	return ts, nil
}

func (d *decoder) insn(pc int) (rawInsn, error) {
	b, err := d.u8()
	if err != nil {
		return rawInsn{}, err
	}
	op := Opcode(b)
	if !op.Valid() {
		return rawInsn{}, fmt.Errorf("%w: unknown opcode 0x%02X at %d", ErrCorrupt, b, pc)
	}
	in := &Insn{Op: op}
	ri := rawInsn{pc: pc, insn: in}
	target := func() error {
		v, err := d.u32()
		if err != nil {
			return err
		}
		ri.targets = append(ri.targets, pc+int(int32(v)))
		return nil
	}
	switch op.Kind() {
	case KindInt:
		switch op {
		case OpBipush:
			v, err := d.u8()
			if err != nil {
				return ri, err
			}
			in.Operand = int(int8(v))
		case OpSipush:
			v, err := d.u16()
			if err != nil {
				return ri, err
			}
			in.Operand = int(int16(uint16(v)))
		default:
			v, err := d.u8()
			if err != nil {
				return ri, err
			}
			in.Operand = int(v)
		}
	case KindVar:
		if in.Operand, err = d.u16(); err != nil {
			return ri, err
		}
	case KindIinc:
		if in.Operand, err = d.u16(); err != nil {
			return ri, err
		}
		v, err := d.u16()
		if err != nil {
			return ri, err
		}
		in.Incr = int(int16(uint16(v)))
	case KindLdc:
		i, err := d.u16()
		if err != nil {
			return ri, err
		}
		e, err := d.entry(i)
		if err != nil {
			return ri, err
		}
		switch e.tag {
		case tagInt:
			in.Const = int32(e.n)
		case tagLong:
			in.Const = e.n
		default:
			in.Const = e.s
		}
	case KindJump:
		if err := target(); err != nil {
			return ri, err
		}
	case KindTableSwitch:
		if err := target(); err != nil {
			return ri, err
		}
		lo, err := d.u32()
		if err != nil {
			return ri, err
		}
		hi, err := d.u32()
		if err != nil {
			return ri, err
		}
		in.Min, in.Max = int32(lo), int32(hi)
		count := int64(in.Max) - int64(in.Min) + 1
		if count < 0 || count > int64(len(d.data)) {
			return ri, fmt.Errorf("%w: TABLESWITCH range %d..%d", ErrCorrupt, in.Min, in.Max)
		}
		for i := int64(0); i < count; i++ {
			if err := target(); err != nil {
				return ri, err
			}
		}
	case KindLookupSwitch:
		if err := target(); err != nil {
			return ri, err
		}
		count, err := d.u32()
		if err != nil {
			return ri, err
		}
		if int64(count) > int64(len(d.data)) {
			return ri, fmt.Errorf("%w: LOOKUPSWITCH with %d pairs", ErrCorrupt, count)
		}
		for i := uint32(0); i < count; i++ {
			k, err := d.u32()
			if err != nil {
				return ri, err
			}
			in.Keys = append(in.Keys, int32(k))
			if err := target(); err != nil {
				return ri, err
			}
		}
	case KindField, KindMethod:
		if in.Owner, err = d.str(); err != nil {
			return ri, err
		}
		if in.Name, err = d.str(); err != nil {
			return ri, err
		}
		if in.Desc, err = d.str(); err != nil {
			return ri, err
		}
	case KindType:
		if in.Owner, err = d.str(); err != nil {
			return ri, err
		}
	}
	return ri, nil
}

// buildCode turns offset-addressed code into the node list, creating one
// label per referenced offset in ascending offset order.
func buildCode(m *Method, codeLen int, insns []rawInsn, tries []rawTry, lines []rawLine, frames []rawFrame, locals []rawLocal) error {
	boundary := make(map[int]bool, len(insns)+1)
	for _, ri := range insns {
		boundary[ri.pc] = true
	}
	boundary[codeLen] = true

	referenced := make(map[int]bool)
	ref := func(pc int) error {
		if !boundary[pc] {
			return fmt.Errorf("%w: offset %d is not an instruction boundary", ErrCorrupt, pc)
		}
		referenced[pc] = true
		return nil
	}
	for _, ri := range insns {
		for _, t := range ri.targets {
			if err := ref(t); err != nil {
				return err
			}
		}
	}
	for _, t := range tries {
		for _, pc := range []int{t.start, t.end, t.handler} {
			if err := ref(pc); err != nil {
				return err
			}
		}
	}
	for _, ln := range lines {
		if err := ref(ln.pc); err != nil {
			return err
		}
	}
	for _, lv := range locals {
		if err := ref(lv.start); err != nil {
			return err
		}
		if err := ref(lv.end); err != nil {
			return err
		}
	}
	for _, f := range frames {
		if !boundary[f.pc] {
			return fmt.Errorf("%w: frame at offset %d", ErrCorrupt, f.pc)
		}
	}

	pcs := make([]int, 0, len(referenced))
	for pc := range referenced {
		pcs = append(pcs, pc)
	}
	sort.Ints(pcs)
	labels := make(map[int]Label, len(pcs))
	for i, pc := range pcs {
		labels[pc] = Label(i)
	}
	m.NumLabels = len(pcs)

	linesAt := make(map[int][]int)
	for _, ln := range lines {
		linesAt[ln.pc] = append(linesAt[ln.pc], ln.line)
	}
	framesAt := make(map[int]*Frame)
	for _, f := range frames {
		framesAt[f.pc] = f.frame
	}

	emitAt := func(pc int) {
		l, ok := labels[pc]
		if !ok {
			return
		}
		m.Code = append(m.Code, Node{Kind: NodeLabel, Label: l})
		for _, line := range linesAt[pc] {
			m.Code = append(m.Code, Node{Kind: NodeLine, Line: line, Label: l})
		}
	}
	for _, ri := range insns {
		emitAt(ri.pc)
		if f, ok := framesAt[ri.pc]; ok {
			m.Code = append(m.Code, Node{Kind: NodeFrame, Frame: f})
		}
		in := ri.insn
		switch in.Op.Kind() {
		case KindJump:
			in.Target = labels[ri.targets[0]]
		case KindTableSwitch, KindLookupSwitch:
			in.Default = labels[ri.targets[0]]
			in.Labels = make([]Label, 0, len(ri.targets)-1)
			for _, t := range ri.targets[1:] {
				in.Labels = append(in.Labels, labels[t])
			}
		}
		m.Code = append(m.Code, Node{Kind: NodeInsn, Insn: in})
	}
	emitAt(codeLen)
	if f, ok := framesAt[codeLen]; ok {
		m.Code = append(m.Code, Node{Kind: NodeFrame, Frame: f})
	}

	for _, t := range tries {
		m.TryCatch = append(m.TryCatch, TryCatch{
			Start:   labels[t.start],
			End:     labels[t.end],
			Handler: labels[t.handler],
			Type:    t.typ,
		})
	}
	for _, rl := range locals {
		lv := rl.lv
		lv.Start = labels[rl.start]
		lv.End = labels[rl.end]
		m.LocalVars = append(m.LocalVars, lv)
	}
	return nil
}
