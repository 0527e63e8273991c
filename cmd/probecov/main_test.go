package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/probecov/agent"
	"github.com/chazu/probecov/classfile"
	"github.com/chazu/probecov/summary"
	"github.com/chazu/probecov/vm"
)

const projectConfig = `
[project]
name = "demo"

[exec]
output = "build/probecov.exec"

[analysis]
classes = ["classes"]
sources = ["src"]
`

const mathSource = "package pkg;\nclass Math {\n  if (x < 0)\n\treturn -x;\n  return x; }\n"

func abs() *classfile.Class {
	m := classfile.NewMethod(classfile.AccStatic, "abs", "(I)I")
	pos := m.NewLabel()
	m.Line(3).Var(classfile.OpIload, 0).Jump(classfile.OpIfge, pos)
	m.Line(4).Var(classfile.OpIload, 0).Insn(classfile.OpIneg).Insn(classfile.OpIreturn)
	m.Mark(pos).Line(5).Var(classfile.OpIload, 0).Insn(classfile.OpIreturn)
	m.Maxs(1, 1)
	return &classfile.Class{
		Version:    classfile.Version1,
		Name:       "pkg/Math",
		SuperName:  "java/lang/Object",
		SourceFile: "Math.java",
		Methods:    []*classfile.Method{m},
	}
}

func writeFile(t *testing.T, path string, b []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatal(err)
	}
}

// project lays out a configured project with one compiled class and its
// source.
func project(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "probecov.toml"), []byte(projectConfig))
	b, err := classfile.Write(abs())
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, "classes", "pkg", "Math.pcls"), b)
	writeFile(t, filepath.Join(dir, "src", "pkg", "Math.java"), []byte(mathSource))
	return dir
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("probecov %s: %v", strings.Join(args, " "), err)
	}
	return out.String()
}

// record runs abs(7) on the instrumented class and dumps the probes to
// the configured exec file.
func record(t *testing.T, dir string) {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(dir, "inst", "pkg", "Math.pcls"))
	if err != nil {
		t.Fatal(err)
	}
	r := agent.NewRuntime("cli")
	m := vm.New()
	r.Bind(m)
	if _, err := m.LoadBytes(b); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Invoke("pkg/Math", "abs", "(I)I", int32(7)); err != nil {
		t.Fatal(err)
	}
	if err := r.Dump(filepath.Join(dir, "build", "probecov.exec"), false, false); err != nil {
		t.Fatal(err)
	}
}

func TestWorkflow(t *testing.T) {
	dir := project(t)

	out := run(t, "instrument", "-C", dir, "--dest", filepath.Join(dir, "inst"))
	if !strings.Contains(out, "1 classes instrumented.") {
		t.Fatalf("instrument output:\n%s", out)
	}
	record(t, dir)

	out = run(t, "info", "-C", dir)
	if !strings.Contains(out, `Session "cli"`) || !strings.Contains(out, "pkg/Math") {
		t.Errorf("info output:\n%s", out)
	}

	snap := filepath.Join(dir, "summary.cbor")
	out = run(t, "analyze", "-C", dir, "-m", "-l", "--summary", snap)
	for _, want := range []string{
		"1 classes with execution data",
		"demo",
		"4/7",
		"abs",
		"    3 ~   if (x < 0)",
		"    4 -     return -x;",
		"    5 +   return x; }",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("analyze output lacks %q:\n%s", want, out)
		}
	}

	s, err := summary.ReadFile(snap)
	if err != nil {
		t.Fatal(err)
	}
	if s.Bundle.Name != "demo" || len(s.Classes) != 1 || len(s.Methods) != 1 {
		t.Errorf("summary = %+v", s)
	}

	out = run(t, "analyze", "-C", dir, "--compare", snap)
	if strings.Contains(out, "->") {
		t.Errorf("comparing identical runs reported deltas:\n%s", out)
	}
}

func TestMergeAndArchive(t *testing.T) {
	dir := project(t)
	run(t, "instrument", "-C", dir, "--dest", filepath.Join(dir, "inst"))
	record(t, dir)

	merged := filepath.Join(dir, "merged.exec")
	out := run(t, "merge", "-C", dir, "--dest", merged, filepath.Join(dir, "build", "probecov.exec"))
	if !strings.Contains(out, "Merged 1 sessions and 1 classes") {
		t.Errorf("merge output:\n%s", out)
	}

	out = run(t, "archive", "import", "-C", dir, merged)
	if !strings.Contains(out, "Imported 1 classes") {
		t.Errorf("import output:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(dir, ".probecov", "archive.db")); err != nil {
		t.Errorf("archive not created: %v", err)
	}

	out = run(t, "analyze", "-C", dir, "--from-archive")
	if !strings.Contains(out, "4/7") {
		t.Errorf("analyze from archive:\n%s", out)
	}

	exported := filepath.Join(dir, "exported.exec")
	out = run(t, "archive", "export", "-C", dir, "--dest", exported)
	if !strings.Contains(out, "Exported 1 classes") {
		t.Errorf("export output:\n%s", out)
	}
	out = run(t, "info", "-C", dir, exported)
	if !strings.Contains(out, "pkg/Math") {
		t.Errorf("info of exported file:\n%s", out)
	}
}

func TestAnalyzeSelection(t *testing.T) {
	dir := project(t)
	run(t, "instrument", "-C", dir, "--dest", filepath.Join(dir, "inst"))
	record(t, dir)

	sel := filepath.Join(dir, "selection.txt")
	writeFile(t, sel, []byte("# only other\npkg/Math#other\n"))
	out := run(t, "analyze", "-C", dir, "--selection", sel)
	if !strings.Contains(out, "0/0") || strings.Contains(out, "4/7") {
		t.Errorf("selection output:\n%s", out)
	}

	diff := filepath.Join(dir, "change.diff")
	writeFile(t, diff, []byte(`--- a/src/pkg/Math.java
+++ b/src/pkg/Math.java
@@ -4,1 +4,1 @@
-	return x;
+	return -x;
`))
	out = run(t, "analyze", "-C", dir, "--diff", diff, "-m")
	if !strings.Contains(out, "abs") || !strings.Contains(out, "4/7") {
		t.Errorf("diff output:\n%s", out)
	}
}

func TestUnknownFilter(t *testing.T) {
	dir := project(t)
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs([]string{"analyze", "-C", dir, "--filters", "bogus", "--exec", filepath.Join(dir, "none.exec")})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected an error")
	}
}
