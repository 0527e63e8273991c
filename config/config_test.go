package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[project]
name = "calc"

[exec]
files = ["a.exec", "b.exec"]
output = "out/merged.exec"
append = true
session-id = "ci-1"

[analysis]
classes = ["target/classes"]
tab-width = 8
filters = ["finally"]
`)
	c, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if c.Project.Name != "calc" || c.Analysis.Name != "calc" {
		t.Errorf("names = %q %q", c.Project.Name, c.Analysis.Name)
	}
	if !slices.Equal(c.Exec.Files, []string{"a.exec", "b.exec"}) || !c.Exec.Append || c.Exec.SessionID != "ci-1" {
		t.Errorf("exec = %+v", c.Exec)
	}
	if c.Analysis.TabWidth != 8 || c.Analysis.MaxDepth != 8 || !slices.Equal(c.Analysis.Filters, []string{"finally"}) {
		t.Errorf("analysis = %+v", c.Analysis)
	}
	if !slices.Equal(c.Analysis.Sources, []string{"src"}) {
		t.Errorf("sources default = %v", c.Analysis.Sources)
	}
	abs, _ := filepath.Abs(dir)
	if c.Dir != abs {
		t.Errorf("Dir = %q, want %q", c.Dir, abs)
	}
	if got := c.Path("out/merged.exec"); got != filepath.Join(abs, "out", "merged.exec") {
		t.Errorf("Path = %q", got)
	}
}

func TestDefaults(t *testing.T) {
	c := Default("/work")
	if c.Exec.Output != filepath.Join("build", "probecov.exec") || !slices.Equal(c.Exec.Files, []string{c.Exec.Output}) {
		t.Errorf("exec = %+v", c.Exec)
	}
	if c.Analysis.Name != "coverage" || len(c.Analysis.Filters) != 3 || c.Analysis.TabWidth != 4 {
		t.Errorf("analysis = %+v", c.Analysis)
	}
	if c.Path("/abs") != "/abs" {
		t.Error("absolute path rewritten")
	}
}

func TestSchemaRejects(t *testing.T) {
	tests := []struct {
		name, content, want string
	}{
		{"unknown section", "[reports]\nhtml = true\n", "invalid configuration"},
		{"unknown filter", "[analysis]\nfilters = [\"lombok\"]\n", "invalid configuration"},
		{"bad tab width", "[analysis]\ntab-width = 0\n", "invalid configuration"},
		{"zero max depth", "[analysis]\nmax-depth = 0\n", "invalid configuration"},
		{"negative max depth", "[analysis]\nmax-depth = -1\n", "invalid configuration"},
		{"wrong type", "[exec]\nappend = \"yes\"\n", "invalid configuration"},
		{"bad toml", "[exec\n", "parse error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "[project]\nname = \"root\"\n")
	deep := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(deep, 0o755); err != nil {
		t.Fatal(err)
	}
	c, err := FindAndLoad(deep)
	if err != nil {
		t.Fatal(err)
	}
	if c == nil || c.Project.Name != "root" {
		t.Fatalf("config = %+v", c)
	}
}
