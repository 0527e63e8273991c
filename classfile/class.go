// Package classfile models the binary class container that probecov
// instruments and analyzes: a constant pool, fields, and methods whose code
// is a stack-machine instruction stream with forward label references,
// try-catch ranges, line numbers and expanded stack-map frames.
package classfile

import "strings"

// Access flags.
const (
	AccPublic    uint32 = 0x0001
	AccPrivate   uint32 = 0x0002
	AccStatic    uint32 = 0x0008
	AccFinal     uint32 = 0x0010
	AccInterface uint32 = 0x0200
	AccAbstract  uint32 = 0x0400
	AccTransient uint32 = 0x0080
	AccSynthetic uint32 = 0x1000
	AccModule    uint32 = 0x8000
)

// Format versions. Classes at or above VersionFrames must carry a frame at
// every branch target and after every unconditional transfer.
const (
	Version1      uint16 = 1
	VersionFrames uint16 = 2
)

// Label identifies a position in a method's code. Labels are indexes into a
// per-method arena; they carry no state of their own.
type Label int

// NoLabel marks the absence of a label.
const NoLabel Label = -1

// Class is the decoded form of a class container.
type Class struct {
	Version    uint16
	Access     uint32
	Name       string
	SuperName  string
	Interfaces []string
	SourceFile string
	Signature  string
	Fields     []*Field
	Methods    []*Method
}

// Field is a static field declaration.
type Field struct {
	Access uint32
	Name   string
	Desc   string
}

// NeedsFrames reports whether methods of the class must carry frames.
func (c *Class) NeedsFrames() bool {
	return c.Version >= VersionFrames
}

// PackageName returns the slash-separated package of the class.
func (c *Class) PackageName() string {
	if i := strings.LastIndexByte(c.Name, '/'); i >= 0 {
		return c.Name[:i]
	}
	return ""
}

// Method looks up a method by name and descriptor.
func (c *Class) Method(name, desc string) *Method {
	for _, m := range c.Methods {
		if m.Name == name && m.Desc == desc {
			return m
		}
	}
	return nil
}

// Field looks up a field by name.
func (c *Class) Field(name string) *Field {
	for _, f := range c.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Code model
// ---------------------------------------------------------------------------

// Insn is a single instruction. Which fields are meaningful depends on the
// opcode's kind.
type Insn struct {
	Op      Opcode
	Operand int     // KindInt value, KindVar index
	Incr    int     // IINC delta
	Const   any     // LDC: int32, int64 or string
	Target  Label   // jumps
	Default Label   // switches
	Min     int32   // TABLESWITCH
	Max     int32   // TABLESWITCH
	Keys    []int32 // LOOKUPSWITCH
	Labels  []Label // switch targets
	Owner   string  // member owner, NEW type
	Name    string  // member name
	Desc    string  // member descriptor
}

// Clone returns a copy of the instruction that shares no slices with it.
func (in *Insn) Clone() *Insn {
	c := *in
	if in.Keys != nil {
		c.Keys = append([]int32(nil), in.Keys...)
	}
	if in.Labels != nil {
		c.Labels = append([]Label(nil), in.Labels...)
	}
	return &c
}

// NodeKind distinguishes the entries of a method's code list.
type NodeKind uint8

const (
	NodeInsn NodeKind = iota
	NodeLabel
	NodeLine
	NodeFrame
)

// Node is one entry of a method's code list.
type Node struct {
	Kind  NodeKind
	Insn  *Insn  // NodeInsn
	Label Label  // NodeLabel, NodeLine (start label)
	Line  int    // NodeLine
	Frame *Frame // NodeFrame
}

// TryCatch is an exception handler range. An empty Type catches anything.
type TryCatch struct {
	Start   Label
	End     Label
	Handler Label
	Type    string
}

// LocalVariable is a debug entry naming a local slot over a label range.
type LocalVariable struct {
	Name  string
	Desc  string
	Start Label
	End   Label
	Index int
}

// Method is a method declaration and its code.
type Method struct {
	Access    uint32
	Name      string
	Desc      string
	Signature string
	MaxStack  int
	MaxLocals int
	Code      []Node
	TryCatch  []TryCatch
	LocalVars []LocalVariable
	NumLabels int
}

// IsStatic reports whether the method has no receiver.
func (m *Method) IsStatic() bool {
	return m.Access&AccStatic != 0
}

// Instructions returns the instructions of the method in code order.
func (m *Method) Instructions() []*Insn {
	var out []*Insn
	for _, n := range m.Code {
		if n.Kind == NodeInsn {
			out = append(out, n.Insn)
		}
	}
	return out
}

// Lines returns the distinct source lines mentioned in the method.
func (m *Method) Lines() []int {
	var out []int
	seen := make(map[int]bool)
	for _, n := range m.Code {
		if n.Kind == NodeLine && !seen[n.Line] {
			seen[n.Line] = true
			out = append(out, n.Line)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Visitor
// ---------------------------------------------------------------------------

// MethodVisitor receives the events of a method's code in order. Accept on
// a Method drives a visitor; a Method is itself a visitor that records what
// it receives.
type MethodVisitor interface {
	VisitCode()
	VisitTryCatchBlock(tc TryCatch)
	VisitLabel(l Label)
	VisitLineNumber(line int, start Label)
	VisitFrame(f *Frame)
	VisitInsn(in *Insn)
	VisitJumpInsn(in *Insn)
	VisitSwitchInsn(in *Insn)
	VisitLocalVariable(lv LocalVariable)
	VisitMaxs(maxStack, maxLocals int)
	VisitEnd()
}

// Accept replays the method into v.
func (m *Method) Accept(v MethodVisitor) {
	v.VisitCode()
	for _, tc := range m.TryCatch {
		v.VisitTryCatchBlock(tc)
	}
	for _, n := range m.Code {
		switch n.Kind {
		case NodeLabel:
			v.VisitLabel(n.Label)
		case NodeLine:
			v.VisitLineNumber(n.Line, n.Label)
		case NodeFrame:
			v.VisitFrame(n.Frame)
		case NodeInsn:
			switch n.Insn.Op.Kind() {
			case KindJump:
				v.VisitJumpInsn(n.Insn)
			case KindTableSwitch, KindLookupSwitch:
				v.VisitSwitchInsn(n.Insn)
			default:
				v.VisitInsn(n.Insn)
			}
		}
	}
	for _, lv := range m.LocalVars {
		v.VisitLocalVariable(lv)
	}
	v.VisitMaxs(m.MaxStack, m.MaxLocals)
	v.VisitEnd()
}

// NewMethod creates an empty method ready to record code.
func NewMethod(access uint32, name, desc string) *Method {
	return &Method{Access: access, Name: name, Desc: desc}
}

func (m *Method) seeLabel(l Label) {
	if int(l) >= m.NumLabels {
		m.NumLabels = int(l) + 1
	}
}

func (m *Method) VisitCode() {}

func (m *Method) VisitTryCatchBlock(tc TryCatch) {
	m.seeLabel(tc.Start)
	m.seeLabel(tc.End)
	m.seeLabel(tc.Handler)
	m.TryCatch = append(m.TryCatch, tc)
}

func (m *Method) VisitLabel(l Label) {
	m.seeLabel(l)
	m.Code = append(m.Code, Node{Kind: NodeLabel, Label: l})
}

func (m *Method) VisitLineNumber(line int, start Label) {
	m.Code = append(m.Code, Node{Kind: NodeLine, Line: line, Label: start})
}

func (m *Method) VisitFrame(f *Frame) {
	m.Code = append(m.Code, Node{Kind: NodeFrame, Frame: f})
}

func (m *Method) VisitInsn(in *Insn) {
	m.Code = append(m.Code, Node{Kind: NodeInsn, Insn: in})
}

func (m *Method) VisitJumpInsn(in *Insn) {
	m.seeLabel(in.Target)
	m.VisitInsn(in)
}

func (m *Method) VisitSwitchInsn(in *Insn) {
	m.seeLabel(in.Default)
	for _, l := range in.Labels {
		m.seeLabel(l)
	}
	m.VisitInsn(in)
}

func (m *Method) VisitLocalVariable(lv LocalVariable) {
	m.LocalVars = append(m.LocalVars, lv)
}

func (m *Method) VisitMaxs(maxStack, maxLocals int) {
	m.MaxStack = maxStack
	m.MaxLocals = maxLocals
}

func (m *Method) VisitEnd() {}
