package classfile

import (
	"fmt"
	"strings"
)

// VType is a verification type in a stack-map frame: one of the primitive
// markers below or a reference descriptor such as "[Z" or "Lpkg/Name;".
type VType string

const (
	TypeTop  VType = "top"
	TypeInt  VType = "int"
	TypeLong VType = "long"
	TypeNull VType = "null"
)

// Size returns the number of local or stack slots the type occupies.
func (t VType) Size() int {
	if t == TypeLong {
		return 2
	}
	return 1
}

// IsReference reports whether t names a reference type.
func (t VType) IsReference() bool {
	return len(t) > 0 && (t[0] == 'L' || t[0] == '[')
}

// Frame is an expanded stack-map frame. Long values occupy one entry here
// and two slots in the method's local and stack numbering.
type Frame struct {
	Locals []VType
	Stack  []VType
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	return &Frame{
		Locals: append([]VType(nil), f.Locals...),
		Stack:  append([]VType(nil), f.Stack...),
	}
}

// Equal reports whether two frames describe the same types.
func (f *Frame) Equal(o *Frame) bool {
	if f == nil || o == nil {
		return f == o
	}
	return equalTypes(f.Locals, o.Locals) && equalTypes(f.Stack, o.Stack)
}

func equalTypes(a, b []VType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (f *Frame) String() string {
	var sb strings.Builder
	sb.WriteString("[")
	for i, t := range f.Locals {
		if i > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(string(t))
	}
	sb.WriteString("] [")
	for i, t := range f.Stack {
		if i > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(string(t))
	}
	sb.WriteString("]")
	return sb.String()
}

// ---------------------------------------------------------------------------
// Descriptors
// ---------------------------------------------------------------------------

// ParseMethodDesc splits a method descriptor such as "(IJ[Z)V" into its
// argument descriptors and return descriptor.
func ParseMethodDesc(desc string) (args []string, ret string, err error) {
	if len(desc) < 3 || desc[0] != '(' {
		return nil, "", fmt.Errorf("invalid method descriptor %q", desc)
	}
	i := 1
	for i < len(desc) && desc[i] != ')' {
		n, err := fieldDescLen(desc[i:])
		if err != nil {
			return nil, "", fmt.Errorf("invalid method descriptor %q: %w", desc, err)
		}
		args = append(args, desc[i:i+n])
		i += n
	}
	if i >= len(desc) {
		return nil, "", fmt.Errorf("invalid method descriptor %q", desc)
	}
	ret = desc[i+1:]
	if ret != "V" {
		if n, err := fieldDescLen(ret); err != nil || n != len(ret) {
			return nil, "", fmt.Errorf("invalid return type in %q", desc)
		}
	}
	return args, ret, nil
}

func fieldDescLen(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty type")
	}
	switch s[0] {
	case 'Z', 'B', 'C', 'S', 'I', 'J', 'F', 'D':
		return 1, nil
	case 'L':
		end := strings.IndexByte(s, ';')
		if end < 0 {
			return 0, fmt.Errorf("unterminated class type %q", s)
		}
		return end + 1, nil
	case '[':
		n, err := fieldDescLen(s[1:])
		return n + 1, err
	}
	return 0, fmt.Errorf("unknown type %q", s[:1])
}

// DescType maps a field descriptor to its verification type.
func DescType(desc string) VType {
	switch desc {
	case "Z", "B", "C", "S", "I":
		return TypeInt
	case "J":
		return TypeLong
	}
	return VType(desc)
}

// DescSize returns the slot size of a field descriptor ("V" is 0).
func DescSize(desc string) int {
	switch desc {
	case "V":
		return 0
	case "J", "D":
		return 2
	}
	return 1
}

// ArgumentsSize returns the local slots taken by the arguments of a method
// descriptor, not counting the receiver.
func ArgumentsSize(desc string) (int, error) {
	args, _, err := ParseMethodDesc(desc)
	if err != nil {
		return 0, err
	}
	size := 0
	for _, a := range args {
		size += DescSize(a)
	}
	return size, nil
}

// InitialFrame returns the frame on method entry.
func InitialFrame(owner string, m *Method) (*Frame, error) {
	args, _, err := ParseMethodDesc(m.Desc)
	if err != nil {
		return nil, err
	}
	f := &Frame{}
	if !m.IsStatic() {
		f.Locals = append(f.Locals, VType("L"+owner+";"))
	}
	for _, a := range args {
		f.Locals = append(f.Locals, DescType(a))
	}
	return f, nil
}
