package analysis

import (
	"cmp"
	"fmt"
	"slices"
)

// CoverageBuilder collects class coverage and builds source file and
// bundle nodes from it.
type CoverageBuilder struct {
	classes     map[string]*ClassCoverage
	sourceFiles map[string]*SourceFileCoverage
}

// NewCoverageBuilder creates an empty builder.
func NewCoverageBuilder() *CoverageBuilder {
	return &CoverageBuilder{
		classes:     make(map[string]*ClassCoverage),
		sourceFiles: make(map[string]*SourceFileCoverage),
	}
}

// VisitCoverage adds c. Adding the same class twice is allowed only for
// identical bytes.
func (b *CoverageBuilder) VisitCoverage(c *ClassCoverage) error {
	name := c.Name()
	if dup, ok := b.classes[name]; ok {
		if dup.ID != c.ID {
			return fmt.Errorf("can't add different class with same name: %s", name)
		}
		return nil
	}
	b.classes[name] = c
	if c.SourceFileName != "" {
		b.sourceFile(c.SourceFileName, c.PackageName()).IncrementSource(c)
	}
	return nil
}

func (b *CoverageBuilder) sourceFile(name, pkg string) *SourceFileCoverage {
	key := pkg + "/" + name
	s, ok := b.sourceFiles[key]
	if !ok {
		s = NewSourceFileCoverage(name, pkg)
		b.sourceFiles[key] = s
	}
	return s
}

// Classes returns the collected classes sorted by name.
func (b *CoverageBuilder) Classes() []*ClassCoverage {
	out := make([]*ClassCoverage, 0, len(b.classes))
	for _, c := range b.classes {
		out = append(out, c)
	}
	sortClasses(out)
	return out
}

// SourceFiles returns the source files sorted by package and name.
func (b *CoverageBuilder) SourceFiles() []*SourceFileCoverage {
	out := make([]*SourceFileCoverage, 0, len(b.sourceFiles))
	for _, s := range b.sourceFiles {
		out = append(out, s)
	}
	slices.SortFunc(out, func(x, y *SourceFileCoverage) int {
		if c := cmp.Compare(x.PackageName, y.PackageName); c != 0 {
			return c
		}
		return cmp.Compare(x.name, y.name)
	})
	return out
}

// NoMatchClasses returns the classes whose execution data did not match.
func (b *CoverageBuilder) NoMatchClasses() []*ClassCoverage {
	var out []*ClassCoverage
	for _, c := range b.Classes() {
		if c.NoMatch {
			out = append(out, c)
		}
	}
	return out
}

// Bundle builds a bundle over everything collected.
func (b *CoverageBuilder) Bundle(name string) *BundleCoverage {
	return NewBundleCoverage(name, b.Classes(), b.SourceFiles())
}
