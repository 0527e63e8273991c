package analysis

// UnknownLine marks instructions and nodes without line information.
const UnknownLine = -1

// SourceCoverage is a coverage node with per-line counters.
type SourceCoverage interface {
	CoverageNode
	FirstLine() int
	LastLine() int
	Line(nr int) Line
}

// SourceNode is a coverage node that also tracks lines. Lines are stored
// densely between the first and last line seen.
type SourceNode struct {
	Node
	lines  []Line
	offset int
}

func newSourceNode(t ElementType, name string) SourceNode {
	return SourceNode{Node: Node{elementType: t, name: name}, offset: UnknownLine}
}

// EnsureCapacity makes room for lines first..last.
func (s *SourceNode) EnsureCapacity(first, last int) {
	if first == UnknownLine || last == UnknownLine {
		return
	}
	if s.lines == nil {
		s.offset = first
		s.lines = make([]Line, last-first+1)
		return
	}
	newFirst := min(s.FirstLine(), first)
	newLast := max(s.LastLine(), last)
	if n := newLast - newFirst + 1; n > len(s.lines) {
		lines := make([]Line, n)
		copy(lines[s.offset-newFirst:], s.lines)
		s.offset = newFirst
		s.lines = lines
	}
}

// IncrementSource adds the counters and lines of child. The line counter
// is derived from the lines, not copied from child.
func (s *SourceNode) IncrementSource(child SourceCoverage) {
	s.instruction = s.instruction.Add(child.InstructionCounter())
	s.branch = s.branch.Add(child.BranchCounter())
	s.complexity = s.complexity.Add(child.ComplexityCounter())
	s.method = s.method.Add(child.MethodCounter())
	s.class = s.class.Add(child.ClassCounter())
	first := child.FirstLine()
	if first == UnknownLine {
		return
	}
	last := child.LastLine()
	s.EnsureCapacity(first, last)
	for i := first; i <= last; i++ {
		l := child.Line(i)
		s.incrementLine(l.Instructions, l.Branches, i)
	}
}

// IncrementInstructions adds instruction and branch counts, attributed to
// line unless it is UnknownLine.
func (s *SourceNode) IncrementInstructions(instructions, branches Counter, line int) {
	if line != UnknownLine {
		s.incrementLine(instructions, branches, line)
	}
	s.instruction = s.instruction.Add(instructions)
	s.branch = s.branch.Add(branches)
}

// incrementLine updates one line. A line counts as missed on its first
// instruction and flips to covered at most once; it never goes back.
func (s *SourceNode) incrementLine(instructions, branches Counter, line int) {
	s.EnsureCapacity(line, line)
	l := s.Line(line)
	oldTotal := l.Instructions.Total()
	oldCovered := l.Instructions.Covered
	s.lines[line-s.offset] = l.Increment(instructions, branches)
	if instructions.Total() == 0 {
		return
	}
	switch {
	case instructions.Covered == 0:
		if oldTotal == 0 {
			s.line = s.line.Add(counterMissed)
		}
	case oldTotal == 0:
		s.line = s.line.Add(counterCovered)
	case oldCovered == 0:
		s.line = s.line.Increment(-1, 1)
	}
}

// FirstLine returns the first line with data, or UnknownLine.
func (s *SourceNode) FirstLine() int {
	return s.offset
}

// LastLine returns the last line with data, or UnknownLine.
func (s *SourceNode) LastLine() int {
	if s.lines == nil {
		return UnknownLine
	}
	return s.offset + len(s.lines) - 1
}

// Line returns the counters of line nr; empty outside the range.
func (s *SourceNode) Line(nr int) Line {
	if s.lines == nil || nr < s.FirstLine() || nr > s.LastLine() {
		return Line{}
	}
	return s.lines[nr-s.offset]
}
