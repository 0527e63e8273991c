package analysis

import "github.com/chazu/probecov/classfile"

// methodCoverageCalculator applies filter decisions to the instruction
// graph of a method and folds the result into a MethodCoverage.
//
// Merged instructions form disjoint sets; each set is a chain of
// references that ends at its representative.
type methodCoverageCalculator struct {
	instructions map[*classfile.Insn]*Instruction
	order        []*classfile.Insn
	index        map[*classfile.Insn]int
	ignored      map[*classfile.Insn]bool
	merged       map[*classfile.Insn]*classfile.Insn
	mergeOrder   []*classfile.Insn
	replacements map[*classfile.Insn][]*classfile.Insn
	replaceOrder []*classfile.Insn
}

func newMethodCoverageCalculator(instructions map[*classfile.Insn]*Instruction, order []*classfile.Insn) *methodCoverageCalculator {
	index := make(map[*classfile.Insn]int, len(order))
	for i, in := range order {
		index[in] = i
	}
	return &methodCoverageCalculator{
		instructions: instructions,
		order:        order,
		index:        index,
		ignored:      make(map[*classfile.Insn]bool),
		merged:       make(map[*classfile.Insn]*classfile.Insn),
		replacements: make(map[*classfile.Insn][]*classfile.Insn),
	}
}

func (c *methodCoverageCalculator) calculate(mc *MethodCoverage) MethodVerdict {
	c.applyMerges()
	c.applyReplacements()
	c.ensureCapacity(mc)
	for _, in := range c.order {
		if c.ignored[in] {
			continue
		}
		if insn, ok := c.instructions[in]; ok {
			mc.IncrementInstructions(insn.InstructionCounter(), insn.BranchCounter(), insn.Line())
		}
	}
	return mc.IncrementMethodCounter()
}

func (c *methodCoverageCalculator) applyMerges() {
	for _, node := range c.mergeOrder {
		rep := c.representative(node)
		c.ignored[node] = true
		c.instructions[rep] = c.instructions[rep].Merge(c.instructions[node])
		c.merged[node] = rep
	}
	for _, node := range c.mergeOrder {
		c.instructions[node] = c.instructions[c.merged[node]]
	}
}

func (c *methodCoverageCalculator) applyReplacements() {
	for _, node := range c.replaceOrder {
		targets := c.replacements[node]
		branches := make([]*Instruction, 0, len(targets))
		for _, t := range targets {
			branches = append(branches, c.instructions[t])
		}
		c.instructions[node] = c.instructions[node].ReplaceBranches(branches)
	}
}

func (c *methodCoverageCalculator) ensureCapacity(mc *MethodCoverage) {
	first, last := UnknownLine, UnknownLine
	for _, in := range c.order {
		if c.ignored[in] {
			continue
		}
		insn, ok := c.instructions[in]
		if !ok || insn.Line() == UnknownLine {
			continue
		}
		line := insn.Line()
		if first > line || last == UnknownLine {
			first = line
		}
		if last < line {
			last = line
		}
	}
	mc.EnsureCapacity(first, last)
}

func (c *methodCoverageCalculator) representative(in *classfile.Insn) *classfile.Insn {
	for {
		r, ok := c.merged[in]
		if !ok {
			return in
		}
		in = r
	}
}

func (c *methodCoverageCalculator) Ignore(from, to *classfile.Insn) {
	i, ok1 := c.index[from]
	j, ok2 := c.index[to]
	if !ok1 || !ok2 {
		return
	}
	for ; i <= j; i++ {
		c.ignored[c.order[i]] = true
	}
}

func (c *methodCoverageCalculator) Merge(i1, i2 *classfile.Insn) {
	i1 = c.representative(i1)
	i2 = c.representative(i2)
	if i1 == i2 {
		return
	}
	c.merged[i2] = i1
	c.mergeOrder = append(c.mergeOrder, i2)
}

func (c *methodCoverageCalculator) ReplaceBranches(source *classfile.Insn, targets []*classfile.Insn) {
	if _, ok := c.replacements[source]; !ok {
		c.replaceOrder = append(c.replaceOrder, source)
	}
	c.replacements[source] = targets
}
