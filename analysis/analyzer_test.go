package analysis

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"

	"github.com/chazu/probecov/classfile"
	"github.com/chazu/probecov/data"
	"github.com/chazu/probecov/instr"
)

func ifElseClass(name string) *classfile.Class {
	m := classfile.NewMethod(classfile.AccStatic, "ifElse", "(I)I")
	els := m.NewLabel()
	m.Line(1)
	m.Var(classfile.OpIload, 0).Jump(classfile.OpIfeq, els)
	m.Push(1).Insn(classfile.OpIreturn)
	m.Mark(els).Frame([]classfile.VType{classfile.TypeInt}, nil)
	m.Line(2)
	m.Push(2).Insn(classfile.OpIreturn)
	m.Maxs(1, 1)
	return &classfile.Class{
		Version:    classfile.VersionFrames,
		Name:       name,
		SuperName:  "java/lang/Object",
		SourceFile: "T.java",
		Methods:    []*classfile.Method{m},
	}
}

func encode(t *testing.T, c *classfile.Class) []byte {
	t.Helper()
	b, err := classfile.Write(c)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func storeWith(t *testing.T, id uint64, name string, probes ...bool) *data.ExecutionDataStore {
	t.Helper()
	s := data.NewExecutionDataStore()
	d := data.NewExecutionData(id, name, len(probes))
	copy(d.Probes, probes)
	if err := s.Put(d); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestAnalyzeIfElse(t *testing.T) {
	b := encode(t, ifElseClass("pkg/T"))
	builder := NewCoverageBuilder()
	a := NewAnalyzer(storeWith(t, data.ClassID(b), "pkg/T", true, false), builder)
	if err := a.AnalyzeClass(b, "T.pcls"); err != nil {
		t.Fatal(err)
	}
	classes := builder.Classes()
	if len(classes) != 1 {
		t.Fatalf("classes = %d", len(classes))
	}
	c := classes[0]
	if c.NoMatch || c.SourceFileName != "T.java" || c.SuperName != "java/lang/Object" {
		t.Errorf("class metadata = %+v", c)
	}
	checks := []struct {
		name      string
		got, want Counter
	}{
		{"instructions", c.InstructionCounter(), NewCounter(2, 4)},
		{"branches", c.BranchCounter(), NewCounter(1, 1)},
		{"lines", c.LineCounter(), NewCounter(1, 1)},
		{"complexity", c.ComplexityCounter(), NewCounter(1, 1)},
		{"methods", c.MethodCounter(), NewCounter(0, 1)},
		{"classes", c.ClassCounter(), NewCounter(0, 1)},
	}
	for _, ck := range checks {
		if ck.got != ck.want {
			t.Errorf("%s = %v, want %v", ck.name, ck.got, ck.want)
		}
	}
	if got := c.Line(1).Status(); got != StatusPartlyCovered {
		t.Errorf("line 1 = %v", got)
	}
	if got := c.Line(2).Status(); got != StatusNotCovered {
		t.Errorf("line 2 = %v", got)
	}
	if got := c.CoveredMethods(); !slices.Equal(got, []string{"ifElse"}) {
		t.Errorf("covered methods = %v", got)
	}

	files := builder.SourceFiles()
	if len(files) != 1 || files[0].PackageName != "pkg" || files[0].InstructionCounter() != NewCounter(2, 4) {
		t.Errorf("source files = %+v", files)
	}
	if got := builder.Bundle("b").InstructionCounter(); got != NewCounter(2, 4) {
		t.Errorf("bundle = %v", got)
	}
}

func TestAnalyzeWithoutExecutionData(t *testing.T) {
	b := encode(t, ifElseClass("pkg/T"))
	builder := NewCoverageBuilder()
	a := NewAnalyzer(data.NewExecutionDataStore(), builder)
	if err := a.AnalyzeClass(b, "T.pcls"); err != nil {
		t.Fatal(err)
	}
	c := builder.Classes()[0]
	if c.NoMatch {
		t.Error("no-match without any data")
	}
	if c.InstructionCounter() != NewCounter(6, 0) || c.MethodCounter() != NewCounter(1, 0) {
		t.Errorf("counters = %v %v", c.InstructionCounter(), c.MethodCounter())
	}
	if len(c.CoveredMethods()) != 0 {
		t.Errorf("covered methods = %v", c.CoveredMethods())
	}
}

func TestAnalyzeNoMatch(t *testing.T) {
	b := encode(t, ifElseClass("pkg/T"))
	builder := NewCoverageBuilder()
	a := NewAnalyzer(storeWith(t, 12345, "pkg/T", true, true), builder)
	if err := a.AnalyzeClass(b, "T.pcls"); err != nil {
		t.Fatal(err)
	}
	if nm := builder.NoMatchClasses(); len(nm) != 1 || nm[0].Name() != "pkg/T" {
		t.Errorf("no-match classes = %v", nm)
	}
	if got := builder.Classes()[0].InstructionCounter(); got != NewCounter(6, 0) {
		t.Errorf("instructions = %v", got)
	}
}

func TestAnalyzeProbeCountMismatch(t *testing.T) {
	b := encode(t, ifElseClass("pkg/T"))
	a := NewAnalyzer(storeWith(t, data.ClassID(b), "pkg/T", true), NewCoverageBuilder())
	err := a.AnalyzeClass(b, "T.pcls")
	if !errors.Is(err, data.ErrIncompatible) {
		t.Fatalf("err = %v, want ErrIncompatible", err)
	}
}

func TestAnalyzeInstrumentedClass(t *testing.T) {
	raw := encode(t, ifElseClass("pkg/T"))
	b, err := instr.NewInstrumenter().Instrument(raw, "T.pcls")
	if err != nil {
		t.Fatal(err)
	}
	a := NewAnalyzer(data.NewExecutionDataStore(), NewCoverageBuilder())
	err = a.AnalyzeClass(b, "T.pcls")
	if !errors.Is(err, instr.ErrAlreadyInstrumented) {
		t.Fatalf("err = %v", err)
	}
	var ae *AnalyzerError
	if !errors.As(err, &ae) || ae.Location != "T.pcls" {
		t.Errorf("err = %#v, want AnalyzerError for T.pcls", err)
	}
	if !strings.HasPrefix(err.Error(), "error while analyzing T.pcls") {
		t.Errorf("message = %q", err)
	}
}

func TestAnalyzeSkipsSyntheticClasses(t *testing.T) {
	c := ifElseClass("pkg/T")
	c.Access = classfile.AccSynthetic
	builder := NewCoverageBuilder()
	a := NewAnalyzer(data.NewExecutionDataStore(), builder)
	if err := a.AnalyzeClass(encode(t, c), "T.pcls"); err != nil {
		t.Fatal(err)
	}
	if len(builder.Classes()) != 0 {
		t.Error("synthetic class reported")
	}
}

func TestAnalyzeWithSelection(t *testing.T) {
	selected := ifElseClass("pkg/T")
	other := ifElseClass("pkg/U")
	builder := NewCoverageBuilder()
	a := NewAnalyzer(data.NewExecutionDataStore(), builder)
	a.Selection = MethodSelection{}
	a.Selection.Add("pkg/T", "ifElse(I)I")
	for _, c := range []*classfile.Class{selected, other} {
		if err := a.AnalyzeClass(encode(t, c), c.Name); err != nil {
			t.Fatal(err)
		}
	}
	classes := builder.Classes()
	if len(classes) != 2 {
		t.Fatalf("classes = %d", len(classes))
	}
	if len(classes[0].Methods()) != 1 {
		t.Errorf("selected class methods = %d", len(classes[0].Methods()))
	}
	if len(classes[1].Methods()) != 0 || classes[1].ContainsCode() {
		t.Errorf("unselected class reported code")
	}
}

func TestSelectionKeepsProbeNumbering(t *testing.T) {
	c := ifElseClass("pkg/T")
	second := classfile.NewMethod(classfile.AccStatic, "other", "()V")
	second.Insn(classfile.OpReturn).Maxs(0, 0)
	c.Methods = []*classfile.Method{second, c.Methods[0]}
	b := encode(t, c)

	// probe 0 belongs to other, probes 1 and 2 to ifElse
	builder := NewCoverageBuilder()
	a := NewAnalyzer(storeWith(t, data.ClassID(b), "pkg/T", false, false, true), builder)
	a.Selection = MethodSelection{}
	a.Selection.Add("pkg/T", "ifElse")
	if err := a.AnalyzeClass(b, "T.pcls"); err != nil {
		t.Fatal(err)
	}
	got := builder.Classes()[0]
	if got.InstructionCounter() != NewCounter(2, 4) {
		t.Errorf("instructions = %v", got.InstructionCounter())
	}
}

func TestAnalyzeAllArchives(t *testing.T) {
	b := encode(t, ifElseClass("pkg/T"))

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	gw.Write(b)
	gw.Close()

	var zb bytes.Buffer
	zw := zip.NewWriter(&zb)
	for name, content := range map[string][]byte{
		"pkg/T.pcls":     b,
		"nested.pcls.gz": gz.Bytes(),
		"README":         []byte("text"),
	} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		w.Write(content)
	}
	zw.Close()

	builder := NewCoverageBuilder()
	a := NewAnalyzer(data.NewExecutionDataStore(), builder)
	n, err := a.AnalyzeAll(bytes.NewReader(zb.Bytes()), "app.zip")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
	if len(builder.Classes()) != 1 {
		t.Errorf("classes = %d", len(builder.Classes()))
	}

	a.MaxDepth = 0
	_, err = a.AnalyzeAll(bytes.NewReader(zb.Bytes()), "app.zip")
	if !errors.Is(err, ErrNestingTooDeep) {
		t.Errorf("err = %v, want ErrNestingTooDeep", err)
	}
}

func TestAnalyzeAllContent(t *testing.T) {
	a := NewAnalyzer(data.NewExecutionDataStore(), NewCoverageBuilder())
	n, err := a.AnalyzeAll(strings.NewReader("plain text"), "x.txt")
	if err != nil || n != 0 {
		t.Errorf("unknown content: n=%d err=%v", n, err)
	}
	_, err = a.AnalyzeAll(bytes.NewReader([]byte{0xCA, 0xFE, 0xD0, 0x0D, 0}), "x.pack")
	if !errors.Is(err, ErrUnsupportedContent) {
		t.Errorf("err = %v, want ErrUnsupportedContent", err)
	}
	n, err = a.AnalyzeAll(bytes.NewReader(nil), "empty")
	if err != nil || n != 0 {
		t.Errorf("empty: n=%d err=%v", n, err)
	}
}

func TestAnalyzeAllPath(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "pkg")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"T", "U"} {
		b := encode(t, ifElseClass("pkg/"+name))
		if err := os.WriteFile(filepath.Join(sub, name+".pcls"), b, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	builder := NewCoverageBuilder()
	a := NewAnalyzer(data.NewExecutionDataStore(), builder)
	n, err := a.AnalyzePathList("pkg"+string(os.PathListSeparator), dir)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 || len(builder.Classes()) != 2 {
		t.Errorf("n = %d, classes = %d", n, len(builder.Classes()))
	}
}

func TestCoverageBuilderRejectsDifferentClassSameName(t *testing.T) {
	builder := NewCoverageBuilder()
	if err := builder.VisitCoverage(NewClassCoverage("p/A", 1, false)); err != nil {
		t.Fatal(err)
	}
	if err := builder.VisitCoverage(NewClassCoverage("p/A", 1, false)); err != nil {
		t.Errorf("same class twice: %v", err)
	}
	err := builder.VisitCoverage(NewClassCoverage("p/A", 2, false))
	if err == nil || !strings.Contains(err.Error(), "can't add different class with same name") {
		t.Errorf("err = %v", err)
	}
}

func TestMethodSelection(t *testing.T) {
	var empty MethodSelection
	if !empty.Includes("a/B", "m", "()V") {
		t.Error("empty selection excludes")
	}
	s := MethodSelection{}
	s.Add("a/B", "m")
	s.Add("a/B", "n(I)V")
	tests := []struct {
		class, name, desc string
		want              bool
	}{
		{"a/B", "m", "()V", true},
		{"a/B", "n", "(I)V", true},
		{"a/B", "n", "()V", false},
		{"a/C", "m", "()V", false},
	}
	for _, tt := range tests {
		if got := s.Includes(tt.class, tt.name, tt.desc); got != tt.want {
			t.Errorf("Includes(%s, %s%s) = %v", tt.class, tt.name, tt.desc, got)
		}
	}
	if got := s.String(); got != "a/B#m\na/B#n(I)V" {
		t.Errorf("String = %q", got)
	}
}
