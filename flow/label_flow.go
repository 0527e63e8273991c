package flow

import (
	"errors"
	"fmt"

	"github.com/chazu/probecov/classfile"
)

// ErrSubroutine is returned for JSR and RET, which must be inlined before
// a method reaches this package.
var ErrSubroutine = errors.New("subroutines not supported")

// MarkLabels walks a method once and computes the flow flags of every label.
func MarkLabels(m *classfile.Method) (*LabelInfos, error) {
	a := &labelFlow{
		labels:    NewLabelInfos(m.NumLabels),
		lineStart: classfile.NoLabel,
		first:     true,
	}
	// Handler ranges are visited in reverse declaration order. Marking a
	// block start as a target forces a probe there when it is also reached
	// by fall-through.
	for i := len(m.TryCatch) - 1; i >= 0; i-- {
		tc := m.TryCatch[i]
		a.labels.SetTarget(tc.Start)
		a.labels.SetTarget(tc.Handler)
	}
	for _, n := range m.Code {
		var err error
		switch n.Kind {
		case classfile.NodeLabel:
			a.visitLabel(n.Label)
		case classfile.NodeLine:
			a.lineStart = n.Label
		case classfile.NodeInsn:
			err = a.visitInsn(n.Insn)
		}
		if err != nil {
			return nil, fmt.Errorf("method %s%s: %w", m.Name, m.Desc, err)
		}
	}
	return a.labels, nil
}

type labelFlow struct {
	labels    *LabelInfos
	successor bool // the next label is reached by fall-through
	first     bool // no instruction seen yet
	lineStart classfile.Label
}

func (a *labelFlow) visitLabel(l classfile.Label) {
	if a.first {
		a.labels.SetTarget(l)
	}
	if a.successor {
		a.labels.SetSuccessor(l)
	}
}

func (a *labelFlow) visitInsn(in *classfile.Insn) error {
	defer func() { a.first = false }()
	switch in.Op.Kind() {
	case classfile.KindJump:
		if in.Op == classfile.OpJsr {
			return ErrSubroutine
		}
		a.labels.SetTarget(in.Target)
		a.successor = in.Op != classfile.OpGoto
	case classfile.KindTableSwitch, classfile.KindLookupSwitch:
		a.labels.ResetDone(in.Default)
		a.labels.ResetDone(in.Labels...)
		a.setTargetIfNotDone(in.Default)
		for _, l := range in.Labels {
			a.setTargetIfNotDone(l)
		}
		a.successor = false
	case classfile.KindMethod:
		a.successor = true
		if a.lineStart != classfile.NoLabel {
			a.labels.SetMethodInvocationLine(a.lineStart)
		}
	default:
		if in.Op == classfile.OpRet {
			return ErrSubroutine
		}
		a.successor = !in.Op.IsTerminal()
	}
	return nil
}

func (a *labelFlow) setTargetIfNotDone(l classfile.Label) {
	if !a.labels.IsDone(l) {
		a.labels.SetTarget(l)
		a.labels.SetDone(l)
	}
}
