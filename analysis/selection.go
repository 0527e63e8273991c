package analysis

import (
	"slices"
	"strings"
)

// MethodSelection restricts which methods are reported, keyed by class
// name. A method matches by name or by name plus descriptor. An empty or
// nil selection reports every method. When the selection is not empty, a
// class without an entry reports nothing. Unselected methods are still
// traversed so probe numbering does not change.
type MethodSelection map[string]map[string]struct{}

// Add selects method of class. method is a name or name+descriptor.
func (s MethodSelection) Add(class, method string) {
	m, ok := s[class]
	if !ok {
		m = make(map[string]struct{})
		s[class] = m
	}
	m[method] = struct{}{}
}

// Includes reports whether the method is selected.
func (s MethodSelection) Includes(class, name, desc string) bool {
	if len(s) == 0 {
		return true
	}
	methods := s[class]
	if _, ok := methods[name]; ok {
		return true
	}
	_, ok := methods[name+desc]
	return ok
}

// Classes returns the sorted class names.
func (s MethodSelection) Classes() []string {
	out := make([]string, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

// String renders the selection as sorted Class#method lines.
func (s MethodSelection) String() string {
	var lines []string
	for _, c := range s.Classes() {
		for m := range s[c] {
			lines = append(lines, c+"#"+m)
		}
	}
	slices.Sort(lines)
	return strings.Join(lines, "\n")
}
