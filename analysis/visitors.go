package analysis

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/chazu/probecov/data"
)

// CoverageVisitor receives the coverage of each analyzed class.
type CoverageVisitor interface {
	VisitCoverage(c *ClassCoverage) error
}

// CoverageVisitorFunc adapts a function to CoverageVisitor.
type CoverageVisitorFunc func(c *ClassCoverage) error

func (f CoverageVisitorFunc) VisitCoverage(c *ClassCoverage) error { return f(c) }

// InfoVisitor receives the sessions and execution data of a report once,
// before any coverage.
type InfoVisitor interface {
	VisitInfo(sessions []data.SessionInfo, executions []*data.ExecutionData) error
}

// SourceLocator opens the source text of a file for display.
type SourceLocator interface {
	// OpenSource opens name in package pkg. The error matches
	// fs.ErrNotExist when the source is unavailable.
	OpenSource(pkg, name string) (io.ReadCloser, error)

	// TabWidth returns the number of columns a tab expands to.
	TabWidth() int
}

// DirectorySourceLocator finds sources below a root directory laid out by
// package.
type DirectorySourceLocator struct {
	Root string
	Tabs int
}

// NewDirectorySourceLocator creates a locator rooted at root.
func NewDirectorySourceLocator(root string, tabWidth int) *DirectorySourceLocator {
	return &DirectorySourceLocator{Root: root, Tabs: tabWidth}
}

func (l *DirectorySourceLocator) OpenSource(pkg, name string) (io.ReadCloser, error) {
	p := filepath.Join(l.Root, filepath.FromSlash(pkg), name)
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("source %s/%s: %w", pkg, name, err)
	}
	return f, nil
}

func (l *DirectorySourceLocator) TabWidth() int {
	return l.Tabs
}
