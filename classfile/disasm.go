package classfile

import (
	"fmt"
	"strings"
)

// String renders the instruction in assembler syntax.
func (in *Insn) String() string {
	switch in.Op.Kind() {
	case KindInt, KindVar:
		return fmt.Sprintf("%s %d", in.Op, in.Operand)
	case KindIinc:
		return fmt.Sprintf("%s %d %d", in.Op, in.Operand, in.Incr)
	case KindLdc:
		if s, ok := in.Const.(string); ok {
			return fmt.Sprintf("%s %q", in.Op, s)
		}
		return fmt.Sprintf("%s %v", in.Op, in.Const)
	case KindJump:
		return fmt.Sprintf("%s L%d", in.Op, in.Target)
	case KindTableSwitch:
		var sb strings.Builder
		fmt.Fprintf(&sb, "%s %d..%d", in.Op, in.Min, in.Max)
		for _, l := range in.Labels {
			fmt.Fprintf(&sb, " L%d", l)
		}
		fmt.Fprintf(&sb, " default:L%d", in.Default)
		return sb.String()
	case KindLookupSwitch:
		var sb strings.Builder
		sb.WriteString(in.Op.String())
		for i, k := range in.Keys {
			fmt.Fprintf(&sb, " %d:L%d", k, in.Labels[i])
		}
		fmt.Fprintf(&sb, " default:L%d", in.Default)
		return sb.String()
	case KindField, KindMethod:
		return fmt.Sprintf("%s %s.%s %s", in.Op, in.Owner, in.Name, in.Desc)
	case KindType:
		return fmt.Sprintf("%s %s", in.Op, in.Owner)
	}
	return in.Op.String()
}

// Disassemble returns a human-readable listing of a method.
func Disassemble(m *Method) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s%s (stack=%d, locals=%d)\n", m.Name, m.Desc, m.MaxStack, m.MaxLocals)
	for _, tc := range m.TryCatch {
		typ := tc.Type
		if typ == "" {
			typ = "any"
		}
		fmt.Fprintf(&sb, "  TRY L%d L%d -> L%d %s\n", tc.Start, tc.End, tc.Handler, typ)
	}
	for _, n := range m.Code {
		switch n.Kind {
		case NodeLabel:
			fmt.Fprintf(&sb, " L%d:\n", n.Label)
		case NodeLine:
			fmt.Fprintf(&sb, "  LINE %d\n", n.Line)
		case NodeFrame:
			fmt.Fprintf(&sb, "  FRAME %s\n", n.Frame)
		case NodeInsn:
			fmt.Fprintf(&sb, "    %s\n", n.Insn)
		}
	}
	return sb.String()
}

// DisassembleClass lists every method of a class.
func DisassembleClass(c *Class) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "class %s (version %d, access 0x%04X)\n", c.Name, c.Version, c.Access)
	if c.SourceFile != "" {
		fmt.Fprintf(&sb, "  source %s\n", c.SourceFile)
	}
	for _, f := range c.Fields {
		fmt.Fprintf(&sb, "  field %s %s\n", f.Name, f.Desc)
	}
	for _, m := range c.Methods {
		sb.WriteString(Disassemble(m))
	}
	return sb.String()
}
