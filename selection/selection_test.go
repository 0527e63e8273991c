package selection

import (
	"slices"
	"strings"
	"testing"

	"github.com/chazu/probecov/classfile"
)

const patch = `diff --git a/src/pkg/Calc.java b/src/pkg/Calc.java
--- a/src/pkg/Calc.java
+++ b/src/pkg/Calc.java
@@ -10,4 +10,5 @@
 class Calc {
   int add(int a, int b) {
-    return a - b;
+    int r = a + b;
+    return r;
   }
@@ -30,3 +31,3 @@
   int other() {
-    return 1;
+    return 2;
   }
diff --git a/src/pkg/Gone.java b/src/pkg/Gone.java
deleted file mode 100644
--- a/src/pkg/Gone.java
+++ /dev/null
@@ -1,2 +0,0 @@
-class Gone {
-}
`

func method(name string, lines ...int) *classfile.Method {
	m := classfile.NewMethod(classfile.AccStatic, name, "()V")
	for _, l := range lines {
		m.Line(l).Insn(classfile.OpNop)
	}
	m.Insn(classfile.OpReturn)
	return m.Maxs(0, 0)
}

func calcClass() *classfile.Class {
	return &classfile.Class{
		Name:       "pkg/Calc",
		SourceFile: "Calc.java",
		Methods: []*classfile.Method{
			method("add", 12, 13),
			method("other", 32),
			method("untouched", 40, 41),
		},
	}
}

func TestParseUnifiedDiff(t *testing.T) {
	ch, err := ParseUnifiedDiff([]byte(patch))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := ch["src/pkg/Gone.java"]; ok {
		t.Error("deleted file reported")
	}
	if got, want := ch["src/pkg/Calc.java"], []int{12, 13, 32}; !slices.Equal(got, want) {
		t.Errorf("lines = %v, want %v", got, want)
	}
}

func TestFromUnifiedDiff(t *testing.T) {
	other := calcClass()
	other.Name = "other/Calc"
	sel, err := FromUnifiedDiff([]byte(patch), []*classfile.Class{calcClass(), other})
	if err != nil {
		t.Fatal(err)
	}
	if got := sel.String(); got != "pkg/Calc#add()V\npkg/Calc#other()V" {
		t.Errorf("selection =\n%s", got)
	}
}

func TestParse(t *testing.T) {
	in := `# methods to report
pkg/Calc#add

pkg/Calc#other()V
`
	sel, err := Parse(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if !sel.Includes("pkg/Calc", "add", "(II)I") || !sel.Includes("pkg/Calc", "other", "()V") {
		t.Errorf("selection = %v", sel)
	}
	if sel.Includes("pkg/Calc", "untouched", "()V") {
		t.Error("unlisted method selected")
	}

	if _, err := Parse(strings.NewReader("pkg/Calc\n")); err == nil || !strings.Contains(err.Error(), "line 1") {
		t.Errorf("err = %v", err)
	}
}
