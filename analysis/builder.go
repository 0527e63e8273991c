package analysis

import (
	"fmt"

	"github.com/chazu/probecov/classfile"
	"github.com/chazu/probecov/flow"
)

// InstructionsBuilder assembles the instruction graph of one method from
// its event stream. Jumps are recorded as they appear and wired once every
// label is attached to its instruction.
type InstructionsBuilder struct {
	probes       []bool
	labels       *flow.LabelInfos
	currentLine  int
	current      *Instruction
	instructions map[*classfile.Insn]*Instruction
	pending      []classfile.Label
	labelInsn    map[classfile.Label]*Instruction
	jumps        []jump
}

type jump struct {
	source *Instruction
	target classfile.Label
	branch int
}

// NewInstructionsBuilder creates a builder. probes may be nil when the
// class was never executed.
func NewInstructionsBuilder(probes []bool, labels *flow.LabelInfos) *InstructionsBuilder {
	return &InstructionsBuilder{
		probes:       probes,
		labels:       labels,
		currentLine:  UnknownLine,
		instructions: make(map[*classfile.Insn]*Instruction),
		labelInsn:    make(map[classfile.Label]*Instruction),
	}
}

// SetCurrentLine sets the line of the instructions added next.
func (b *InstructionsBuilder) SetCurrentLine(line int) {
	b.currentLine = line
}

// AddLabel attaches l to the next instruction. Control cannot fall into a
// label that is not a successor.
func (b *InstructionsBuilder) AddLabel(l classfile.Label) {
	b.pending = append(b.pending, l)
	if !b.labels.IsSuccessor(l) {
		b.NoSuccessor()
	}
}

// AddInstruction adds in, linked to the previous instruction unless the
// previous one has no successor.
func (b *InstructionsBuilder) AddInstruction(in *classfile.Insn) {
	insn := NewInstruction(b.currentLine)
	for _, l := range b.pending {
		b.labelInsn[l] = insn
	}
	b.pending = b.pending[:0]
	if b.current != nil {
		b.current.AddBranch(insn, 0)
	}
	b.current = insn
	b.instructions[in] = insn
}

// NoSuccessor declares that the next instruction is not reached from the
// current one.
func (b *InstructionsBuilder) NoSuccessor() {
	b.current = nil
}

// AddJump records an edge from the current instruction to target.
func (b *InstructionsBuilder) AddJump(target classfile.Label, branch int) {
	b.jumps = append(b.jumps, jump{source: b.current, target: target, branch: branch})
}

// AddProbe records a probed edge of the current instruction.
func (b *InstructionsBuilder) AddProbe(id, branch int) {
	if b.current == nil {
		return
	}
	executed := id >= 0 && id < len(b.probes) && b.probes[id]
	b.current.AddProbeBranch(executed, branch)
}

// Instructions wires the recorded jumps and returns the graph. Call it
// once, after the last instruction.
func (b *InstructionsBuilder) Instructions() (map[*classfile.Insn]*Instruction, error) {
	for _, j := range b.jumps {
		target, ok := b.labelInsn[j.target]
		if !ok || j.source == nil {
			return nil, fmt.Errorf("%w: L%d", classfile.ErrUnresolvedLabel, j.target)
		}
		j.source.AddBranch(target, j.branch)
	}
	b.jumps = nil
	return b.instructions, nil
}
