package analysis

import "fmt"

// ElementType is the kind of a coverage node.
type ElementType int

const (
	ElementMethod ElementType = iota
	ElementClass
	ElementSourceFile
	ElementPackage
	ElementBundle
	ElementGroup
)

var elementNames = [...]string{"METHOD", "CLASS", "SOURCEFILE", "PACKAGE", "BUNDLE", "GROUP"}

func (t ElementType) String() string {
	if int(t) < len(elementNames) {
		return elementNames[t]
	}
	return fmt.Sprintf("ElementType(%d)", int(t))
}

// CounterEntity selects one of the six counters of a node.
type CounterEntity int

const (
	EntityInstruction CounterEntity = iota
	EntityBranch
	EntityLine
	EntityComplexity
	EntityMethod
	EntityClass
)

// CounterEntities lists every entity in display order.
var CounterEntities = []CounterEntity{EntityInstruction, EntityBranch, EntityLine, EntityComplexity, EntityMethod, EntityClass}

var entityNames = [...]string{"INSTRUCTION", "BRANCH", "LINE", "COMPLEXITY", "METHOD", "CLASS"}

func (e CounterEntity) String() string {
	if int(e) < len(entityNames) {
		return entityNames[e]
	}
	return fmt.Sprintf("CounterEntity(%d)", int(e))
}

// CoverageNode is any node of the coverage hierarchy.
type CoverageNode interface {
	ElementType() ElementType
	Name() string
	InstructionCounter() Counter
	BranchCounter() Counter
	LineCounter() Counter
	ComplexityCounter() Counter
	MethodCounter() Counter
	ClassCounter() Counter
	Counter(e CounterEntity) Counter
	ContainsCode() bool
	PlainCopy() *Node
}

// Node carries the six counters shared by every coverage node. It is also
// the plain copy of any node.
type Node struct {
	elementType ElementType
	name        string
	instruction Counter
	branch      Counter
	line        Counter
	complexity  Counter
	method      Counter
	class       Counter
}

// NewNode creates an empty node.
func NewNode(t ElementType, name string) *Node {
	return &Node{elementType: t, name: name}
}

// Increment adds every counter of child to n.
func (n *Node) Increment(child CoverageNode) {
	n.instruction = n.instruction.Add(child.InstructionCounter())
	n.branch = n.branch.Add(child.BranchCounter())
	n.line = n.line.Add(child.LineCounter())
	n.complexity = n.complexity.Add(child.ComplexityCounter())
	n.method = n.method.Add(child.MethodCounter())
	n.class = n.class.Add(child.ClassCounter())
}

// IncrementAll adds every child.
func (n *Node) IncrementAll(children ...CoverageNode) {
	for _, c := range children {
		n.Increment(c)
	}
}

func (n *Node) ElementType() ElementType    { return n.elementType }
func (n *Node) Name() string                { return n.name }
func (n *Node) InstructionCounter() Counter { return n.instruction }
func (n *Node) BranchCounter() Counter      { return n.branch }
func (n *Node) LineCounter() Counter        { return n.line }
func (n *Node) ComplexityCounter() Counter  { return n.complexity }
func (n *Node) MethodCounter() Counter      { return n.method }
func (n *Node) ClassCounter() Counter       { return n.class }

// Counter returns the counter selected by e.
func (n *Node) Counter(e CounterEntity) Counter {
	switch e {
	case EntityInstruction:
		return n.instruction
	case EntityBranch:
		return n.branch
	case EntityLine:
		return n.line
	case EntityComplexity:
		return n.complexity
	case EntityMethod:
		return n.method
	case EntityClass:
		return n.class
	}
	panic(fmt.Sprintf("analysis: unknown counter entity %d", e))
}

// ContainsCode reports whether the node has any instruction.
func (n *Node) ContainsCode() bool {
	return n.instruction.Total() != 0
}

// PlainCopy returns a node with the same name, type and counters but no
// children or lines.
func (n *Node) PlainCopy() *Node {
	cp := *n
	return &cp
}

func (n *Node) String() string {
	return fmt.Sprintf("%s [%s]", n.name, n.elementType)
}
