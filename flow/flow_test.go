package flow

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/chazu/probecov/classfile"
)

// recorder logs probe events as strings.
type recorder struct {
	NopMethodProbesVisitor
	events *[]string
}

func (r recorder) log(format string, args ...any) {
	*r.events = append(*r.events, fmt.Sprintf(format, args...))
}

func (r recorder) VisitTryCatchBlock(tc classfile.TryCatch) {
	r.log("try L%d L%d L%d", tc.Start, tc.End, tc.Handler)
}
func (r recorder) VisitLabel(l classfile.Label) { r.log("L%d", l) }
func (r recorder) VisitProbe(id int)            { r.log("probe %d", id) }
func (r recorder) VisitInsnWithProbe(in *classfile.Insn, id int) {
	r.log("%s probe %d", in.Op, id)
}
func (r recorder) VisitJumpInsn(in *classfile.Insn) { r.log("%s L%d", in.Op, in.Target) }
func (r recorder) VisitJumpInsnWithProbe(in *classfile.Insn, id int, frame *classfile.Frame) {
	if frame != nil {
		r.log("%s L%d probe %d frame %s", in.Op, in.Target, id, frame)
	} else {
		r.log("%s L%d probe %d", in.Op, in.Target, id)
	}
}
func (r recorder) VisitSwitchInsnWithProbes(in *classfile.Insn, labels *LabelInfos, frame *classfile.Frame) {
	var ids []string
	for _, l := range append([]classfile.Label{in.Default}, in.Labels...) {
		ids = append(ids, fmt.Sprintf("L%d=%d", l, labels.ProbeID(l)))
	}
	r.log("%s %s", in.Op, strings.Join(ids, " "))
}

type classRecorder struct {
	events []string
	total  int
	skip   map[string]bool
}

func (c *classRecorder) VisitClass(*classfile.Class) error { return nil }
func (c *classRecorder) VisitMethod(m *classfile.Method, _ *LabelInfos) (MethodProbesVisitor, error) {
	if c.skip[m.Name] {
		return nil, nil
	}
	return recorder{events: &c.events}, nil
}
func (c *classRecorder) VisitTotalProbeCount(n int) { c.total = n }
func (c *classRecorder) VisitEnd() error            { return nil }

func run(t *testing.T, track bool, methods ...*classfile.Method) *classRecorder {
	t.Helper()
	cr := &classRecorder{}
	c := &classfile.Class{Version: classfile.VersionFrames, Name: "pkg/T", Methods: methods}
	if err := NewClassProbesAdapter(cr, track).Accept(c); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	return cr
}

func ifElse() *classfile.Method {
	m := classfile.NewMethod(classfile.AccStatic, "ifElse", "(I)I")
	els := m.NewLabel() // L0
	m.Line(1)           // L1
	m.Var(classfile.OpIload, 0).Jump(classfile.OpIfeq, els)
	m.Push(1).Insn(classfile.OpIreturn)
	m.Mark(els).Frame([]classfile.VType{classfile.TypeInt}, nil)
	m.Push(2).Insn(classfile.OpIreturn)
	return m
}

func loop() *classfile.Method {
	m := classfile.NewMethod(classfile.AccStatic, "loop", "(I)I")
	head, exit := m.NewLabel(), m.NewLabel()
	m.Push(0).Var(classfile.OpIstore, 1)
	m.Mark(head).Frame([]classfile.VType{classfile.TypeInt, classfile.TypeInt}, nil)
	m.Var(classfile.OpIload, 1).Var(classfile.OpIload, 0).Jump(classfile.OpIfIcmpge, exit)
	m.Iinc(1, 1).Jump(classfile.OpGoto, head)
	m.Mark(exit).Frame([]classfile.VType{classfile.TypeInt, classfile.TypeInt}, nil)
	m.Var(classfile.OpIload, 1).Insn(classfile.OpIreturn)
	return m
}

func TestMarkLabels(t *testing.T) {
	m := loop()
	labels, err := MarkLabels(m)
	if err != nil {
		t.Fatal(err)
	}
	head := labels.Info(0)
	if !head.Successor || !head.MultiTarget {
		t.Errorf("loop head = %+v, want successor and multi-target", *head)
	}
	if !labels.NeedsProbe(0) {
		t.Error("loop head should need a probe")
	}
	exit := labels.Info(1)
	if !exit.Target || exit.Successor || exit.MultiTarget {
		t.Errorf("loop exit = %+v, want plain target", *exit)
	}
}

func TestMarkLabelsFirstLabelIsTarget(t *testing.T) {
	labels, err := MarkLabels(ifElse())
	if err != nil {
		t.Fatal(err)
	}
	if !labels.Info(1).Target {
		t.Error("method entry label should be a target")
	}
	if labels.Info(0).Successor {
		t.Error("label after IRETURN should not be a successor")
	}
}

func TestMarkLabelsSwitchTargetsOnce(t *testing.T) {
	m := classfile.NewMethod(classfile.AccStatic, "sw", "(I)I")
	a, b := m.NewLabel(), m.NewLabel()
	m.Var(classfile.OpIload, 0).TableSwitch(0, 2, b, a, a, a)
	m.Mark(a).Push(1).Insn(classfile.OpIreturn)
	m.Mark(b).Push(2).Insn(classfile.OpIreturn)
	labels, err := MarkLabels(m)
	if err != nil {
		t.Fatal(err)
	}
	if labels.IsMultiTarget(a) {
		t.Error("repeated case label should be marked once")
	}
}

func TestMarkLabelsMethodInvocationLine(t *testing.T) {
	m := classfile.NewMethod(classfile.AccStatic, "calls", "()V")
	m.Line(5).Push(0).Insn(classfile.OpPop)
	m.Line(6).Invoke("pkg/Other", "run", "()V")
	m.Line(7).Insn(classfile.OpReturn)
	labels, err := MarkLabels(m)
	if err != nil {
		t.Fatal(err)
	}
	if !labels.Info(1).MethodInvocationLine || !labels.NeedsProbe(1) {
		t.Errorf("line 6 label = %+v, want probe for invocation line", *labels.Info(1))
	}
	if labels.NeedsProbe(2) {
		t.Error("line 7 label should not need a probe")
	}
}

func TestMarkLabelsRejectsSubroutines(t *testing.T) {
	m := classfile.NewMethod(classfile.AccStatic, "jsr", "()V")
	l := m.NewLabel()
	m.Jump(classfile.OpJsr, l).Mark(l).Insn(classfile.OpReturn)
	if _, err := MarkLabels(m); !errors.Is(err, ErrSubroutine) {
		t.Errorf("MarkLabels() error = %v, want ErrSubroutine", err)
	}

	r := classfile.NewMethod(classfile.AccStatic, "ret", "()V")
	r.Var(classfile.OpRet, 0)
	if _, err := MarkLabels(r); !errors.Is(err, ErrSubroutine) {
		t.Errorf("MarkLabels() error = %v, want ErrSubroutine", err)
	}
}

func TestProbeEvents(t *testing.T) {
	tests := []struct {
		name   string
		method *classfile.Method
		want   []string
		total  int
	}{
		{
			name:   "if-else",
			method: ifElse(),
			want:   []string{"L1", "IFEQ L0", "IRETURN probe 0", "L0", "IRETURN probe 1"},
			total:  2,
		},
		{
			name:   "loop",
			method: loop(),
			want:   []string{"probe 0", "L0", "IF_ICMPGE L1", "GOTO L0 probe 1", "L1", "IRETURN probe 2"},
			total:  3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cr := run(t, false, tt.method)
			if strings.Join(cr.events, "|") != strings.Join(tt.want, "|") {
				t.Errorf("events = %q, want %q", cr.events, tt.want)
			}
			if cr.total != tt.total {
				t.Errorf("total = %d, want %d", cr.total, tt.total)
			}
		})
	}
}

func TestSwitchProbes(t *testing.T) {
	m := classfile.NewMethod(classfile.AccStatic, "sw", "(I)I")
	a, b, d := m.NewLabel(), m.NewLabel(), m.NewLabel()
	m.Var(classfile.OpIload, 0).TableSwitch(0, 2, d, a, b, a)
	m.Mark(a).Push(1).Insn(classfile.OpPop)
	m.Mark(b).Push(2).Insn(classfile.OpIreturn)
	m.Mark(d).Push(3).Insn(classfile.OpIreturn)
	cr := run(t, false, m)
	want := []string{
		"TABLESWITCH L2=-1 L0=-1 L1=0 L0=-1",
		"L0", "probe 1", "L1", "IRETURN probe 2", "L2", "IRETURN probe 3",
	}
	if strings.Join(cr.events, "|") != strings.Join(want, "|") {
		t.Errorf("events = %q, want %q", cr.events, want)
	}
}

func TestTryCatchStartGetsProbeLabel(t *testing.T) {
	m := classfile.NewMethod(classfile.AccStatic, "guarded", "()V")
	start, end, handler := m.NewLabel(), m.NewLabel(), m.NewLabel()
	m.Try(start, end, handler, "")
	m.Push(0).Insn(classfile.OpPop)
	m.Mark(start).Invoke("pkg/Other", "run", "()V")
	m.Mark(end).Insn(classfile.OpReturn)
	m.Mark(handler).Frame(nil, []classfile.VType{"Ljava/lang/Throwable;"}).Insn(classfile.OpAthrow)
	cr := run(t, false, m)
	want := []string{
		"try L3 L1 L2",
		"L3", "probe 0", "L0", "L1", "RETURN probe 1", "L2", "ATHROW probe 2",
	}
	if strings.Join(cr.events, "|") != strings.Join(want, "|") {
		t.Errorf("events = %q, want %q", cr.events, want)
	}
}

func TestSkippedMethodKeepsNumbering(t *testing.T) {
	full := run(t, false, ifElse(), loop())
	cr := &classRecorder{skip: map[string]bool{"ifElse": true}}
	c := &classfile.Class{Name: "pkg/T", Methods: []*classfile.Method{ifElse(), loop()}}
	if err := NewClassProbesAdapter(cr, false).Accept(c); err != nil {
		t.Fatal(err)
	}
	if cr.total != full.total {
		t.Errorf("total = %d, want %d", cr.total, full.total)
	}
	if len(cr.events) == 0 || cr.events[0] != "probe 2" {
		t.Errorf("first event of loop = %v, want probe 2", cr.events)
	}
}

func TestJumpProbeCarriesFrame(t *testing.T) {
	cr := run(t, true, loop())
	want := "GOTO L0 probe 1 frame [int int] []"
	found := false
	for _, e := range cr.events {
		if e == want {
			found = true
		}
	}
	if !found {
		t.Errorf("events = %q, want %q", cr.events, want)
	}
}

func TestFrameTrackerSnapshot(t *testing.T) {
	m := classfile.NewMethod(0, "f", "(J)V")
	ft, err := NewFrameTracker("pkg/A", m)
	if err != nil {
		t.Fatal(err)
	}
	for _, in := range []*classfile.Insn{
		{Op: classfile.OpLconst1},
		{Op: classfile.OpLstore, Operand: 3},
		{Op: classfile.OpIconst1},
		{Op: classfile.OpIconst2},
	} {
		if err := ft.Execute(in); err != nil {
			t.Fatal(err)
		}
	}
	got := ft.Snapshot(2)
	want := &classfile.Frame{Locals: []classfile.VType{"Lpkg/A;", classfile.TypeLong, classfile.TypeLong}}
	if !got.Equal(want) {
		t.Errorf("Snapshot(2) = %s, want %s", got, want)
	}
	if err := ft.Execute(&classfile.Insn{Op: classfile.OpGoto}); err != nil {
		t.Fatal(err)
	}
	if ft.Snapshot(0) != nil {
		t.Error("state after GOTO should be unknown")
	}
}

func TestFrameTrackerNewarray(t *testing.T) {
	for _, tt := range []struct {
		elem int
		want classfile.VType
	}{
		{classfile.ArrayTypeBoolean, "[Z"},
		{classfile.ArrayTypeInt, "[I"},
	} {
		ft, err := NewFrameTracker("pkg/A", classfile.NewMethod(classfile.AccStatic, "f", "()V"))
		if err != nil {
			t.Fatal(err)
		}
		for _, in := range []*classfile.Insn{
			{Op: classfile.OpIconst3},
			{Op: classfile.OpNewarray, Operand: tt.elem},
		} {
			if err := ft.Execute(in); err != nil {
				t.Fatal(err)
			}
		}
		got := ft.Snapshot(0)
		want := &classfile.Frame{Stack: []classfile.VType{tt.want}}
		if !got.Equal(want) {
			t.Errorf("NEWARRAY %d: frame = %s, want %s", tt.elem, got, want)
		}
	}
}
