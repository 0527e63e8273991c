package analysis

import (
	"cmp"
	"slices"
	"strings"
)

// MethodVerdict is the outcome of finalizing a method.
type MethodVerdict struct {
	Name    string
	Covered bool
}

// MethodCoverage is the coverage of one method.
type MethodCoverage struct {
	SourceNode
	Desc      string
	Signature string
	finalized bool
}

// NewMethodCoverage creates empty method coverage.
func NewMethodCoverage(name, desc, signature string) *MethodCoverage {
	return &MethodCoverage{SourceNode: newSourceNode(ElementMethod, name), Desc: desc, Signature: signature}
}

// IncrementInstructions adds counts like SourceNode and also the
// complexity of a decision point with more than one branch.
func (m *MethodCoverage) IncrementInstructions(instructions, branches Counter, line int) {
	m.SourceNode.IncrementInstructions(instructions, branches, line)
	if branches.Total() > 1 {
		c := max(0, branches.Covered-1)
		mi := max(0, branches.Total()-c-1)
		m.complexity = m.complexity.Increment(mi, c)
	}
}

// IncrementMethodCounter finalizes the method counter and adds the base
// complexity of one. It must be called once, after all instructions.
func (m *MethodCoverage) IncrementMethodCounter() MethodVerdict {
	if m.finalized {
		return MethodVerdict{Name: m.name, Covered: m.instruction.Covered > 0}
	}
	m.finalized = true
	base := counterMissed
	if m.instruction.Covered > 0 {
		base = counterCovered
	}
	m.method = m.method.Add(base)
	m.complexity = m.complexity.Add(base)
	return MethodVerdict{Name: m.name, Covered: base == counterCovered}
}

// ClassCoverage is the coverage of one class.
type ClassCoverage struct {
	SourceNode
	ID             uint64
	NoMatch        bool
	Signature      string
	SuperName      string
	Interfaces     []string
	SourceFileName string
	methods        []*MethodCoverage
	coveredMethods map[string]struct{}
}

// NewClassCoverage creates empty class coverage. noMatch is set when
// execution data exists for the class name but not for this id.
func NewClassCoverage(name string, id uint64, noMatch bool) *ClassCoverage {
	return &ClassCoverage{
		SourceNode:     newSourceNode(ElementClass, name),
		ID:             id,
		NoMatch:        noMatch,
		coveredMethods: make(map[string]struct{}),
	}
}

// AddMethod adds a method and updates the class counter.
func (c *ClassCoverage) AddMethod(m *MethodCoverage) {
	c.methods = append(c.methods, m)
	c.IncrementSource(m)
	if c.method.Covered > 0 {
		c.class = counterCovered
	} else {
		c.class = counterMissed
	}
}

// Methods returns the methods in the order they were added.
func (c *ClassCoverage) Methods() []*MethodCoverage {
	return c.methods
}

// RecordCoveredMethod adds name to the covered method registry.
func (c *ClassCoverage) RecordCoveredMethod(name string) {
	c.coveredMethods[name] = struct{}{}
}

// CoveredMethods returns the sorted names of covered methods.
func (c *ClassCoverage) CoveredMethods() []string {
	out := make([]string, 0, len(c.coveredMethods))
	for n := range c.coveredMethods {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

// PackageName returns the VM package name of the class.
func (c *ClassCoverage) PackageName() string {
	return packageOf(c.name)
}

func packageOf(name string) string {
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[:i]
	}
	return ""
}

// SourceFileCoverage aggregates the classes declared in one source file.
type SourceFileCoverage struct {
	SourceNode
	PackageName string
}

// NewSourceFileCoverage creates empty source file coverage.
func NewSourceFileCoverage(name, packageName string) *SourceFileCoverage {
	return &SourceFileCoverage{SourceNode: newSourceNode(ElementSourceFile, name), PackageName: packageName}
}

// PackageCoverage aggregates the classes of one package. Classes with a
// source file are counted through it; the others directly.
type PackageCoverage struct {
	Node
	Classes     []*ClassCoverage
	SourceFiles []*SourceFileCoverage
}

// NewPackageCoverage builds the coverage of a package.
func NewPackageCoverage(name string, classes []*ClassCoverage, sourceFiles []*SourceFileCoverage) *PackageCoverage {
	p := &PackageCoverage{Node: Node{elementType: ElementPackage, name: name}, Classes: classes, SourceFiles: sourceFiles}
	for _, s := range sourceFiles {
		p.Increment(s)
	}
	for _, c := range classes {
		if c.SourceFileName == "" {
			p.Increment(c)
		}
	}
	return p
}

// BundleCoverage aggregates packages.
type BundleCoverage struct {
	Node
	Packages []*PackageCoverage
}

// NewBundleCoverage groups classes and source files by package.
func NewBundleCoverage(name string, classes []*ClassCoverage, sourceFiles []*SourceFileCoverage) *BundleCoverage {
	classesByPkg := make(map[string][]*ClassCoverage)
	filesByPkg := make(map[string][]*SourceFileCoverage)
	var names []string
	seen := make(map[string]bool)
	add := func(pkg string) {
		if !seen[pkg] {
			seen[pkg] = true
			names = append(names, pkg)
		}
	}
	for _, c := range classes {
		pkg := c.PackageName()
		classesByPkg[pkg] = append(classesByPkg[pkg], c)
		add(pkg)
	}
	for _, s := range sourceFiles {
		filesByPkg[s.PackageName] = append(filesByPkg[s.PackageName], s)
		add(s.PackageName)
	}
	slices.Sort(names)
	packages := make([]*PackageCoverage, 0, len(names))
	for _, n := range names {
		packages = append(packages, NewPackageCoverage(n, classesByPkg[n], filesByPkg[n]))
	}
	return NewBundleFromPackages(name, packages)
}

// NewBundleFromPackages builds a bundle from existing packages.
func NewBundleFromPackages(name string, packages []*PackageCoverage) *BundleCoverage {
	b := &BundleCoverage{Node: Node{elementType: ElementBundle, name: name}, Packages: packages}
	for _, p := range packages {
		b.Increment(p)
	}
	return b
}

// GroupCoverage aggregates bundles or other groups.
type GroupCoverage struct {
	Node
	Children []CoverageNode
}

// NewGroupCoverage builds a group over children.
func NewGroupCoverage(name string, children ...CoverageNode) *GroupCoverage {
	g := &GroupCoverage{Node: Node{elementType: ElementGroup, name: name}, Children: children}
	g.IncrementAll(children...)
	return g
}

func sortClasses(cs []*ClassCoverage) {
	slices.SortFunc(cs, func(a, b *ClassCoverage) int { return cmp.Compare(a.name, b.name) })
}
