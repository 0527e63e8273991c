package agent

import (
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chazu/probecov/analysis"
	"github.com/chazu/probecov/classfile"
	"github.com/chazu/probecov/data"
	"github.com/chazu/probecov/instr"
	"github.com/chazu/probecov/tools"
	"github.com/chazu/probecov/vm"
)

func fixedClock(ms int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(ms) }
}

func TestProbesSharedPerClass(t *testing.T) {
	r := NewRuntime("s")
	a, err := r.Probes(1, "pkg/T", 3)
	if err != nil {
		t.Fatal(err)
	}
	a[1] = true
	b, err := r.Probes(1, "pkg/T", 3)
	if err != nil {
		t.Fatal(err)
	}
	if !b[1] {
		t.Error("second call returned a different array")
	}
	if _, err := r.Probes(1, "pkg/T", 4); !errors.Is(err, data.ErrIncompatible) {
		t.Errorf("probe count mismatch: %v", err)
	}
}

func TestCollectAndReset(t *testing.T) {
	r := NewRuntime("session-1")
	r.Now = fixedClock(5000)
	probes, _ := r.Probes(9, "pkg/T", 2)
	probes[0] = true

	executions := data.NewExecutionDataStore()
	sessions := data.NewSessionInfoStore()
	if err := r.Collect(executions, sessions, true); err != nil {
		t.Fatal(err)
	}
	infos := sessions.Infos()
	if len(infos) != 1 || infos[0].ID != "session-1" || infos[0].Dump != 5000 {
		t.Errorf("sessions = %v", infos)
	}
	d := executions.Get(9)
	if d == nil || !d.Probes[0] {
		t.Fatalf("collected = %v", d)
	}
	if probes[0] {
		t.Error("reset did not clear live probes")
	}
	if !d.Probes[0] {
		t.Error("reset changed the collected snapshot")
	}
}

func TestDefaultSessionID(t *testing.T) {
	id := DefaultSessionID()
	if !strings.Contains(id, "-") || strings.HasSuffix(id, "-") {
		t.Errorf("id = %q", id)
	}
	if NewRuntime("").SessionID() == "" {
		t.Error("empty session id")
	}
}

func TestConcurrentProbes(t *testing.T) {
	r := NewRuntime("s")
	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Probes(uint64(i%4), "pkg/C", 8); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	executions := data.NewExecutionDataStore()
	if err := r.Collect(executions, data.NewSessionInfoStore(), false); err != nil {
		t.Fatal(err)
	}
	if executions.Len() != 4 {
		t.Errorf("collected %d classes, want 4", executions.Len())
	}
	for _, d := range executions.Contents() {
		if d.HasHits() {
			t.Errorf("unexpected hits in %v", d)
		}
	}
}

// abs compiles static int abs(int x) { if (x < 0) return -x; return x; }
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

func TestEndToEnd(t *testing.T) {
	original, err := classfile.Write(abs())
	if err != nil {
		t.Fatal(err)
	}
	instrumented, err := instr.NewInstrumenter().Instrument(original, "pkg/Math")
	if err != nil {
		t.Fatal(err)
	}

	r := NewRuntime("e2e")
	m := vm.New()
	r.Bind(m)
	if _, err := m.LoadBytes(instrumented); err != nil {
		t.Fatal(err)
	}
	got, err := m.Invoke("pkg/Math", "abs", "(I)I", int32(7))
	if err != nil || got != int32(7) {
		t.Fatalf("abs(7) = %v, %v", got, err)
	}

	path := filepath.Join(t.TempDir(), "out", "probecov.exec")
	if err := r.Dump(path, false, false); err != nil {
		t.Fatal(err)
	}
	loader := tools.NewExecFileLoader()
	if err := loader.LoadFile(path); err != nil {
		t.Fatal(err)
	}

	builder := analysis.NewCoverageBuilder()
	if err := analysis.NewAnalyzer(loader.Executions, builder).AnalyzeClass(original, "Math.pcls"); err != nil {
		t.Fatal(err)
	}
	c := builder.Classes()[0]
	if got := c.InstructionCounter(); got != analysis.NewCounter(3, 4) {
		t.Errorf("instructions = %v", got)
	}
	if got := c.BranchCounter(); got != analysis.NewCounter(1, 1) {
		t.Errorf("branches = %v", got)
	}
	if c.Line(4).Status() != analysis.StatusNotCovered || c.Line(5).Status() != analysis.StatusFullyCovered {
		t.Errorf("line status 4=%v 5=%v", c.Line(4).Status(), c.Line(5).Status())
	}
}

// switchBreak compiles
//
//	static int sw(int x) {
//	  int r = 0;
//	  switch (x) { case 0: r = 10; break;
//	  case 1: break; }
//	  return r;
//	}
func switchBreak() *classfile.Class {
	m := classfile.NewMethod(classfile.AccStatic, "sw", "(I)I")
	c0, c1, end := m.NewLabel(), m.NewLabel(), m.NewLabel()
	m.Line(1).Push(0).Var(classfile.OpIstore, 1)
	m.Line(2).Var(classfile.OpIload, 0).TableSwitch(0, 1, end, c0, c1)
	m.Mark(c0).Line(3).Push(10).Var(classfile.OpIstore, 1).Jump(classfile.OpGoto, end)
	m.Mark(c1).Line(4).Jump(classfile.OpGoto, end)
	m.Mark(end).Line(5).Var(classfile.OpIload, 1).Insn(classfile.OpIreturn)
	m.Maxs(1, 2)
	return &classfile.Class{
		Version:    classfile.Version1,
		Name:       "pkg/Switch",
		SuperName:  "java/lang/Object",
		SourceFile: "Switch.java",
		Methods:    []*classfile.Method{m},
	}
}

func TestSwitchBreakCoverage(t *testing.T) {
	original, err := classfile.Write(switchBreak())
	if err != nil {
		t.Fatal(err)
	}
	instrumented, err := instr.NewInstrumenter().Instrument(original, "pkg/Switch")
	if err != nil {
		t.Fatal(err)
	}
	r := NewRuntime("switch")
	m := vm.New()
	r.Bind(m)
	if _, err := m.LoadBytes(instrumented); err != nil {
		t.Fatal(err)
	}
	if got, err := m.Invoke("pkg/Switch", "sw", "(I)I", int32(0)); err != nil || got != int32(10) {
		t.Fatalf("sw(0) = %v, %v", got, err)
	}

	executions := data.NewExecutionDataStore()
	if err := r.Collect(executions, data.NewSessionInfoStore(), false); err != nil {
		t.Fatal(err)
	}
	builder := analysis.NewCoverageBuilder()
	if err := analysis.NewAnalyzer(executions, builder).AnalyzeClass(original, "Switch.pcls"); err != nil {
		t.Fatal(err)
	}
	c := builder.Classes()[0]
	if got := c.BranchCounter(); got != analysis.NewCounter(2, 1) {
		t.Errorf("branches = %v, want 2 missed 1 covered", got)
	}
	lines := []struct {
		line int
		want analysis.Status
	}{
		{2, analysis.StatusPartlyCovered},
		{3, analysis.StatusFullyCovered},
		{4, analysis.StatusNotCovered},
		{5, analysis.StatusFullyCovered},
	}
	for _, l := range lines {
		if got := c.Line(l.line).Status(); got != l.want {
			t.Errorf("line %d = %v, want %v", l.line, got, l.want)
		}
	}
}
