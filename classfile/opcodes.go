package classfile

import "fmt"

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single bytecode instruction. Numbering follows the
// JVM instruction set so that disassembly reads familiar.
type Opcode byte

// Constants
const (
	OpNop        Opcode = 0x00 // no operation
	OpAconstNull Opcode = 0x01 // push null
	OpIconstM1   Opcode = 0x02 // push int -1
	OpIconst0    Opcode = 0x03 // push int 0
	OpIconst1    Opcode = 0x04 // push int 1
	OpIconst2    Opcode = 0x05 // push int 2
	OpIconst3    Opcode = 0x06 // push int 3
	OpIconst4    Opcode = 0x07 // push int 4
	OpIconst5    Opcode = 0x08 // push int 5
	OpLconst0    Opcode = 0x09 // push long 0
	OpLconst1    Opcode = 0x0A // push long 1
	OpBipush     Opcode = 0x10 // push 8-bit signed integer
	OpSipush     Opcode = 0x11 // push 16-bit signed integer
	OpLdc        Opcode = 0x12 // push constant (16-bit pool index)
)

// Locals
const (
	OpIload  Opcode = 0x15 // push int local (16-bit index)
	OpLload  Opcode = 0x16 // push long local (16-bit index)
	OpAload  Opcode = 0x19 // push reference local (16-bit index)
	OpIstore Opcode = 0x36 // store int local (16-bit index)
	OpLstore Opcode = 0x37 // store long local (16-bit index)
	OpAstore Opcode = 0x3A // store reference local (16-bit index)
	OpIinc   Opcode = 0x84 // increment int local (16-bit index, 16-bit delta)
)

// Arrays
const (
	OpBaload      Opcode = 0x33 // load from boolean array
	OpBastore     Opcode = 0x54 // store into boolean array
	OpNewarray    Opcode = 0xBC // allocate primitive array (8-bit element type)
	OpArraylength Opcode = 0xBE // array length
)

// Stack and arithmetic
const (
	OpPop  Opcode = 0x57 // discard top of stack
	OpDup  Opcode = 0x59 // duplicate top of stack
	OpSwap Opcode = 0x5F // swap the two top values
	OpIadd Opcode = 0x60 // int add
	OpLadd Opcode = 0x61 // long add
	OpIsub Opcode = 0x64 // int subtract
	OpImul Opcode = 0x68 // int multiply
	OpIdiv Opcode = 0x6C // int divide
	OpIrem Opcode = 0x70 // int remainder
	OpIneg Opcode = 0x74 // int negate
	OpLcmp Opcode = 0x94 // compare longs
)

// Control flow (32-bit relative offsets)
const (
	OpIfeq      Opcode = 0x99
	OpIfne      Opcode = 0x9A
	OpIflt      Opcode = 0x9B
	OpIfge      Opcode = 0x9C
	OpIfgt      Opcode = 0x9D
	OpIfle      Opcode = 0x9E
	OpIfIcmpeq  Opcode = 0x9F
	OpIfIcmpne  Opcode = 0xA0
	OpIfIcmplt  Opcode = 0xA1
	OpIfIcmpge  Opcode = 0xA2
	OpIfIcmpgt  Opcode = 0xA3
	OpIfIcmple  Opcode = 0xA4
	OpIfAcmpeq  Opcode = 0xA5
	OpIfAcmpne  Opcode = 0xA6
	OpGoto      Opcode = 0xA7
	OpJsr       Opcode = 0xA8
	OpRet       Opcode = 0xA9 // return from subroutine (16-bit local index)
	OpIfnull    Opcode = 0xC6
	OpIfnonnull Opcode = 0xC7
)

// Switches
const (
	OpTableswitch  Opcode = 0xAA
	OpLookupswitch Opcode = 0xAB
)

// Returns and throw
const (
	OpIreturn Opcode = 0xAC
	OpLreturn Opcode = 0xAD
	OpAreturn Opcode = 0xB0
	OpReturn  Opcode = 0xB1
	OpAthrow  Opcode = 0xBF
)

// Members and types (16-bit pool indexes)
const (
	OpGetstatic    Opcode = 0xB2 // owner, name, descriptor
	OpPutstatic    Opcode = 0xB3 // owner, name, descriptor
	OpInvokestatic Opcode = 0xB8 // owner, name, descriptor
	OpNew          Opcode = 0xBB // type name
)

// Element types for NEWARRAY.
const (
	ArrayTypeBoolean = 4
	ArrayTypeInt     = 10
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// InsnKind groups opcodes by operand layout.
type InsnKind uint8

const (
	KindSimple       InsnKind = iota // no operands
	KindInt                          // BIPUSH, SIPUSH, NEWARRAY
	KindVar                          // local variable index
	KindIinc                         // local variable index and delta
	KindLdc                          // constant
	KindJump                         // label
	KindTableSwitch                  // min, max, default and labels
	KindLookupSwitch                 // default, keys and labels
	KindField                        // owner, name, descriptor
	KindMethod                       // owner, name, descriptor
	KindType                         // type name
)

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name         string   // human-readable name
	Kind         InsnKind // operand layout
	OperandBytes int      // fixed operand bytes (-1 = variable)
}

// opcodeTable maps opcodes to their metadata.
var opcodeTable = map[Opcode]OpcodeInfo{
	// Constants
	OpNop:        {"NOP", KindSimple, 0},
	OpAconstNull: {"ACONST_NULL", KindSimple, 0},
	OpIconstM1:   {"ICONST_M1", KindSimple, 0},
	OpIconst0:    {"ICONST_0", KindSimple, 0},
	OpIconst1:    {"ICONST_1", KindSimple, 0},
	OpIconst2:    {"ICONST_2", KindSimple, 0},
	OpIconst3:    {"ICONST_3", KindSimple, 0},
	OpIconst4:    {"ICONST_4", KindSimple, 0},
	OpIconst5:    {"ICONST_5", KindSimple, 0},
	OpLconst0:    {"LCONST_0", KindSimple, 0},
	OpLconst1:    {"LCONST_1", KindSimple, 0},
	OpBipush:     {"BIPUSH", KindInt, 1},
	OpSipush:     {"SIPUSH", KindInt, 2},
	OpLdc:        {"LDC", KindLdc, 2},

	// Locals
	OpIload:  {"ILOAD", KindVar, 2},
	OpLload:  {"LLOAD", KindVar, 2},
	OpAload:  {"ALOAD", KindVar, 2},
	OpIstore: {"ISTORE", KindVar, 2},
	OpLstore: {"LSTORE", KindVar, 2},
	OpAstore: {"ASTORE", KindVar, 2},
	OpIinc:   {"IINC", KindIinc, 4},
	OpRet:    {"RET", KindVar, 2},

	// Arrays
	OpBaload:      {"BALOAD", KindSimple, 0},
	OpBastore:     {"BASTORE", KindSimple, 0},
	OpNewarray:    {"NEWARRAY", KindInt, 1},
	OpArraylength: {"ARRAYLENGTH", KindSimple, 0},

	// Stack and arithmetic
	OpPop:  {"POP", KindSimple, 0},
	OpDup:  {"DUP", KindSimple, 0},
	OpSwap: {"SWAP", KindSimple, 0},
	OpIadd: {"IADD", KindSimple, 0},
	OpLadd: {"LADD", KindSimple, 0},
	OpIsub: {"ISUB", KindSimple, 0},
	OpImul: {"IMUL", KindSimple, 0},
	OpIdiv: {"IDIV", KindSimple, 0},
	OpIrem: {"IREM", KindSimple, 0},
	OpIneg: {"INEG", KindSimple, 0},
	OpLcmp: {"LCMP", KindSimple, 0},

	// Jumps
	OpIfeq:      {"IFEQ", KindJump, 4},
	OpIfne:      {"IFNE", KindJump, 4},
	OpIflt:      {"IFLT", KindJump, 4},
	OpIfge:      {"IFGE", KindJump, 4},
	OpIfgt:      {"IFGT", KindJump, 4},
	OpIfle:      {"IFLE", KindJump, 4},
	OpIfIcmpeq:  {"IF_ICMPEQ", KindJump, 4},
	OpIfIcmpne:  {"IF_ICMPNE", KindJump, 4},
	OpIfIcmplt:  {"IF_ICMPLT", KindJump, 4},
	OpIfIcmpge:  {"IF_ICMPGE", KindJump, 4},
	OpIfIcmpgt:  {"IF_ICMPGT", KindJump, 4},
	OpIfIcmple:  {"IF_ICMPLE", KindJump, 4},
	OpIfAcmpeq:  {"IF_ACMPEQ", KindJump, 4},
	OpIfAcmpne:  {"IF_ACMPNE", KindJump, 4},
	OpGoto:      {"GOTO", KindJump, 4},
	OpJsr:       {"JSR", KindJump, 4},
	OpIfnull:    {"IFNULL", KindJump, 4},
	OpIfnonnull: {"IFNONNULL", KindJump, 4},

	// Switches
	OpTableswitch:  {"TABLESWITCH", KindTableSwitch, -1},
	OpLookupswitch: {"LOOKUPSWITCH", KindLookupSwitch, -1},

	// Returns
	OpIreturn: {"IRETURN", KindSimple, 0},
	OpLreturn: {"LRETURN", KindSimple, 0},
	OpAreturn: {"ARETURN", KindSimple, 0},
	OpReturn:  {"RETURN", KindSimple, 0},
	OpAthrow:  {"ATHROW", KindSimple, 0},

	// Members
	OpGetstatic:    {"GETSTATIC", KindField, 6},
	OpPutstatic:    {"PUTSTATIC", KindField, 6},
	OpInvokestatic: {"INVOKESTATIC", KindMethod, 6},
	OpNew:          {"NEW", KindType, 2},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op)), Kind: KindSimple, OperandBytes: 0}
}

// Valid reports whether op is part of the instruction set.
func (op Opcode) Valid() bool {
	_, ok := opcodeTable[op]
	return ok
}

// Name returns the human-readable name for an opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

// Kind returns the operand layout of an opcode.
func (op Opcode) Kind() InsnKind {
	return op.Info().Kind
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}

// IsReturn reports whether op returns from the current method.
func (op Opcode) IsReturn() bool {
	switch op {
	case OpIreturn, OpLreturn, OpAreturn, OpReturn:
		return true
	}
	return false
}

// IsTerminal reports whether op leaves the method (return or throw).
func (op Opcode) IsTerminal() bool {
	return op == OpAthrow || op.IsReturn()
}

// IsConditional reports whether op is a conditional jump.
func (op Opcode) IsConditional() bool {
	return op.Kind() == KindJump && op != OpGoto && op != OpJsr
}

// JumpPopCount returns the number of stack values a jump consumes.
func (op Opcode) JumpPopCount() int {
	switch op {
	case OpGoto, OpJsr:
		return 0
	case OpIfeq, OpIfne, OpIflt, OpIfge, OpIfgt, OpIfle, OpIfnull, OpIfnonnull:
		return 1
	default:
		return 2
	}
}

var invertedJumps = map[Opcode]Opcode{
	OpIfeq:      OpIfne,
	OpIfne:      OpIfeq,
	OpIflt:      OpIfge,
	OpIfge:      OpIflt,
	OpIfgt:      OpIfle,
	OpIfle:      OpIfgt,
	OpIfIcmpeq:  OpIfIcmpne,
	OpIfIcmpne:  OpIfIcmpeq,
	OpIfIcmplt:  OpIfIcmpge,
	OpIfIcmpge:  OpIfIcmplt,
	OpIfIcmpgt:  OpIfIcmple,
	OpIfIcmple:  OpIfIcmpgt,
	OpIfAcmpeq:  OpIfAcmpne,
	OpIfAcmpne:  OpIfAcmpeq,
	OpIfnull:    OpIfnonnull,
	OpIfnonnull: OpIfnull,
}

// Inverted returns the conditional jump with the opposite condition.
func (op Opcode) Inverted() (Opcode, bool) {
	inv, ok := invertedJumps[op]
	return inv, ok
}
