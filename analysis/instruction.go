package analysis

import "math/bits"

// branchSet is a bit set of branch numbers.
type branchSet []uint64

func (s *branchSet) set(i int) {
	w := i / 64
	for len(*s) <= w {
		*s = append(*s, 0)
	}
	(*s)[w] |= 1 << (i % 64)
}

func (s branchSet) empty() bool {
	for _, w := range s {
		if w != 0 {
			return false
		}
	}
	return true
}

func (s branchSet) count() int {
	n := 0
	for _, w := range s {
		n += bits.OnesCount64(w)
	}
	return n
}

func (s branchSet) or(o branchSet) branchSet {
	out := make(branchSet, max(len(s), len(o)))
	copy(out, s)
	for i, w := range o {
		out[i] |= w
	}
	return out
}

// Instruction is the coverage state of one instruction in the graph of a
// method. An instruction is covered when any of its outgoing branches is.
// Coverage of a branch propagates backwards to the predecessors until an
// already covered instruction is reached.
type Instruction struct {
	line              int
	branches          int
	covered           branchSet
	predecessor       *Instruction
	predecessorBranch int
}

// NewInstruction creates an instruction on line.
func NewInstruction(line int) *Instruction {
	return &Instruction{line: line}
}

// Line returns the source line or UnknownLine.
func (i *Instruction) Line() int {
	return i.line
}

// AddBranch adds an edge to target as branch number branch.
func (i *Instruction) AddBranch(target *Instruction, branch int) {
	i.branches++
	target.predecessor = i
	target.predecessorBranch = branch
	if !target.covered.empty() {
		propagate(i, branch)
	}
}

// AddProbeBranch adds an edge whose execution is known from a probe.
func (i *Instruction) AddProbeBranch(executed bool, branch int) {
	i.branches++
	if executed {
		propagate(i, branch)
	}
}

func propagate(insn *Instruction, branch int) {
	for insn != nil {
		if !insn.covered.empty() {
			insn.covered.set(branch)
			return
		}
		insn.covered.set(branch)
		branch = insn.predecessorBranch
		insn = insn.predecessor
	}
}

// Merge returns a new instruction with the branches of i covered where
// either i or other is covered.
func (i *Instruction) Merge(other *Instruction) *Instruction {
	return &Instruction{line: i.line, branches: i.branches, covered: i.covered.or(other.covered)}
}

// ReplaceBranches returns a new instruction whose branches are exactly
// targets. A branch is covered when its target is.
func (i *Instruction) ReplaceBranches(targets []*Instruction) *Instruction {
	r := &Instruction{line: i.line, branches: len(targets)}
	idx := 0
	for _, t := range targets {
		if !t.covered.empty() {
			r.covered.set(idx)
			idx++
		}
	}
	return r
}

// InstructionCounter returns 0/1 when covered and 1/0 otherwise.
func (i *Instruction) InstructionCounter() Counter {
	if i.covered.empty() {
		return counterMissed
	}
	return counterCovered
}

// BranchCounter returns the branch counts; empty for fewer than two
// branches.
func (i *Instruction) BranchCounter() Counter {
	if i.branches < 2 {
		return Counter{}
	}
	c := i.covered.count()
	return Counter{Missed: i.branches - c, Covered: c}
}
