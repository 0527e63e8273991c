package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"time"

	"github.com/chazu/probecov/analysis"
	"github.com/chazu/probecov/data"
)

// textReport renders coverage as plain text tables.
type textReport struct {
	out     io.Writer
	methods bool
}

func (r *textReport) VisitInfo(sessions []data.SessionInfo, executions []*data.ExecutionData) error {
	for _, s := range sessions {
		fmt.Fprintf(r.out, "Session %s (dumped %s)\n", s.ID, s.DumpTime().UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(r.out, "%d classes with execution data\n\n", len(executions))
	return nil
}

func (r *textReport) header() {
	fmt.Fprintf(r.out, "%-40s", "ELEMENT")
	for _, e := range analysis.CounterEntities {
		fmt.Fprintf(r.out, " %14s", e)
	}
	fmt.Fprintln(r.out)
}

func (r *textReport) row(indent int, n analysis.CoverageNode) {
	name := strings.Repeat("  ", indent) + n.Name()
	if name == "" {
		name = "(default)"
	}
	fmt.Fprintf(r.out, "%-40s", name)
	for _, e := range analysis.CounterEntities {
		c := n.Counter(e)
		fmt.Fprintf(r.out, " %14s", fmt.Sprintf("%d/%d", c.Covered, c.Total()))
	}
	fmt.Fprintln(r.out)
}

func (r *textReport) writeBundle(b *analysis.BundleCoverage) {
	r.header()
	r.row(0, b)
	for _, p := range b.Packages {
		r.row(1, p)
		for _, c := range p.Classes {
			r.row(2, c)
			if !r.methods {
				continue
			}
			for _, m := range c.Methods() {
				r.row(3, m)
			}
		}
	}
}

var lineMarks = map[analysis.Status]string{
	analysis.StatusEmpty:         " ",
	analysis.StatusNotCovered:    "-",
	analysis.StatusPartlyCovered: "~",
	analysis.StatusFullyCovered:  "+",
}

// writeSources prints every source file of b with a coverage mark in front
// of each line. Files no locator can open are reported and skipped.
func (r *textReport) writeSources(b *analysis.BundleCoverage, locators []analysis.SourceLocator) error {
	for _, p := range b.Packages {
		for _, s := range p.SourceFiles {
			if err := r.writeSource(s, locators); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *textReport) writeSource(s *analysis.SourceFileCoverage, locators []analysis.SourceLocator) error {
	for _, l := range locators {
		rc, err := l.OpenSource(s.PackageName, s.Name())
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return err
		}
		defer rc.Close()
		fmt.Fprintf(r.out, "\n%s/%s\n", s.PackageName, s.Name())
		tab := strings.Repeat(" ", l.TabWidth())
		sc := bufio.NewScanner(rc)
		for nr := 1; sc.Scan(); nr++ {
			text := strings.ReplaceAll(sc.Text(), "\t", tab)
			fmt.Fprintf(r.out, "%5d %s %s\n", nr, lineMarks[s.Line(nr).Status()], text)
		}
		return sc.Err()
	}
	fmt.Fprintf(r.out, "\n%s/%s: source not found\n", s.PackageName, s.Name())
	return nil
}
