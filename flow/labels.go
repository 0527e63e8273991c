// Package flow analyzes the control flow of a method's instruction stream
// and plans probe placement: which labels are reached both by fall-through
// and by jumps, and which edges receive which probe id.
package flow

import "github.com/chazu/probecov/classfile"

// NoProbe marks a label without an assigned probe.
const NoProbe = -1

// LabelInfo holds the flow flags of one label.
type LabelInfo struct {
	Target               bool
	Successor            bool
	MultiTarget          bool
	MethodInvocationLine bool
	Done                 bool
	ProbeID              int
	Intermediate         classfile.Label
}

// LabelInfos is a table of LabelInfo indexed by label. It also allocates
// fresh labels for code inserted while a method is being rewritten.
type LabelInfos struct {
	infos []LabelInfo
}

// NewLabelInfos creates a table for n labels.
func NewLabelInfos(n int) *LabelInfos {
	t := &LabelInfos{}
	t.grow(n)
	return t
}

func (t *LabelInfos) grow(n int) {
	for len(t.infos) < n {
		t.infos = append(t.infos, LabelInfo{ProbeID: NoProbe, Intermediate: classfile.NoLabel})
	}
}

// Len returns the number of labels known to the table.
func (t *LabelInfos) Len() int {
	return len(t.infos)
}

// Info returns the entry for l, extending the table as needed.
func (t *LabelInfos) Info(l classfile.Label) *LabelInfo {
	t.grow(int(l) + 1)
	return &t.infos[l]
}

// NewLabel allocates a label beyond every label of the method.
func (t *LabelInfos) NewLabel() classfile.Label {
	l := classfile.Label(len(t.infos))
	t.grow(len(t.infos) + 1)
	return l
}

// SetTarget records that l is reached by a jump or handler entry.
func (t *LabelInfos) SetTarget(l classfile.Label) {
	info := t.Info(l)
	if info.Target || info.Successor {
		info.MultiTarget = true
	} else {
		info.Target = true
	}
}

// SetSuccessor records that l is reached by falling through.
func (t *LabelInfos) SetSuccessor(l classfile.Label) {
	info := t.Info(l)
	info.Successor = true
	if info.Target {
		info.MultiTarget = true
	}
}

func (t *LabelInfos) IsSuccessor(l classfile.Label) bool {
	return t.Info(l).Successor
}

func (t *LabelInfos) IsMultiTarget(l classfile.Label) bool {
	return t.Info(l).MultiTarget
}

func (t *LabelInfos) SetMethodInvocationLine(l classfile.Label) {
	t.Info(l).MethodInvocationLine = true
}

// NeedsProbe reports whether a probe must be placed right before l: it is
// entered by fall-through and also by some other edge, or it starts a line
// that calls out and may therefore be left abruptly.
func (t *LabelInfos) NeedsProbe(l classfile.Label) bool {
	info := t.Info(l)
	return info.Successor && (info.MultiTarget || info.MethodInvocationLine)
}

func (t *LabelInfos) IsDone(l classfile.Label) bool {
	return t.Info(l).Done
}

func (t *LabelInfos) SetDone(l classfile.Label) {
	t.Info(l).Done = true
}

// ResetDone clears the done flag of every given label.
func (t *LabelInfos) ResetDone(labels ...classfile.Label) {
	for _, l := range labels {
		t.Info(l).Done = false
	}
}

func (t *LabelInfos) ProbeID(l classfile.Label) int {
	return t.Info(l).ProbeID
}

func (t *LabelInfos) SetProbeID(l classfile.Label, id int) {
	t.Info(l).ProbeID = id
}

func (t *LabelInfos) IntermediateLabel(l classfile.Label) classfile.Label {
	return t.Info(l).Intermediate
}

func (t *LabelInfos) SetIntermediateLabel(l, intermediate classfile.Label) {
	t.Info(l).Intermediate = intermediate
}
