// Package selection builds method selections for diff-mode analysis,
// either from a unified diff or from an explicit list.
package selection

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
	"github.com/tliron/commonlog"

	"github.com/chazu/probecov/analysis"
	"github.com/chazu/probecov/classfile"
)

var log = commonlog.GetLogger("probecov.selection")

// Changes maps a source path to the sorted new-side lines a diff touched.
type Changes map[string][]int

// ParseUnifiedDiff collects the changed lines of every file in a unified
// diff. Added lines count as changed; a removal marks the line that now
// sits in its place. Deleted files are skipped.
func ParseUnifiedDiff(b []byte) (Changes, error) {
	files, err := diff.NewMultiFileDiffReader(bytes.NewReader(b)).ReadAllFiles()
	if err != nil {
		return nil, fmt.Errorf("selection: parse diff: %w", err)
	}
	changes := make(Changes)
	for _, fd := range files {
		name := stripPrefix(fd.NewName)
		if fd.NewName == "/dev/null" || name == "" {
			continue
		}
		seen := make(map[int]bool)
		for _, h := range fd.Hunks {
			for _, line := range hunkLines(h) {
				seen[line] = true
			}
		}
		lines := make([]int, 0, len(seen))
		for l := range seen {
			lines = append(lines, l)
		}
		slices.Sort(lines)
		changes[name] = append(changes[name], lines...)
	}
	return changes, nil
}

func hunkLines(h *diff.Hunk) []int {
	var out []int
	line := int(h.NewStartLine)
	for _, l := range bytes.Split(h.Body, []byte("\n")) {
		if len(l) == 0 {
			continue
		}
		switch l[0] {
		case '+':
			out = append(out, line)
			line++
		case '-':
			out = append(out, line)
		case ' ':
			line++
		}
	}
	return out
}

func stripPrefix(name string) string {
	for _, p := range []string{"a/", "b/"} {
		if strings.HasPrefix(name, p) {
			return name[len(p):]
		}
	}
	return name
}

// Lines returns the changed lines recorded for a class's source file.
// Paths match when they end with <package>/<source file>.
func (ch Changes) Lines(c *classfile.Class) []int {
	if c.SourceFile == "" {
		return nil
	}
	src := c.SourceFile
	if pkg := c.PackageName(); pkg != "" {
		src = pkg + "/" + src
	}
	var out []int
	for path, lines := range ch {
		if path == src || strings.HasSuffix(path, "/"+src) {
			out = append(out, lines...)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Select returns every method of classes with a line in the changes.
// Methods are selected by name and descriptor.
func (ch Changes) Select(classes []*classfile.Class) analysis.MethodSelection {
	sel := analysis.MethodSelection{}
	for _, c := range classes {
		changed := ch.Lines(c)
		if len(changed) == 0 {
			continue
		}
		for _, m := range c.Methods {
			for _, l := range m.Lines() {
				if _, ok := slices.BinarySearch(changed, l); ok {
					sel.Add(c.Name, m.Name+m.Desc)
					break
				}
			}
		}
	}
	log.Debugf("selected %d classes from diff", len(sel))
	return sel
}

// FromUnifiedDiff parses a diff and selects the methods of classes it
// touches.
func FromUnifiedDiff(b []byte, classes []*classfile.Class) (analysis.MethodSelection, error) {
	ch, err := ParseUnifiedDiff(b)
	if err != nil {
		return nil, err
	}
	return ch.Select(classes), nil
}

// Parse reads a selection list with one Class#method entry per line. The
// method may carry a descriptor. Blank lines and lines starting with #
// are skipped.
func Parse(r io.Reader) (analysis.MethodSelection, error) {
	sel := analysis.MethodSelection{}
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		class, method, ok := strings.Cut(line, "#")
		if !ok || class == "" || method == "" {
			return nil, fmt.Errorf("selection: line %d: want Class#method, got %q", n, line)
		}
		sel.Add(class, method)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return sel, nil
}
