package flow

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/chazu/probecov/classfile"
)

var log = commonlog.GetLogger("probecov.flow")

// ClassProbesAdapter drives a ClassProbesVisitor over a class, numbering
// probes with one counter shared by all methods.
type ClassProbesAdapter struct {
	cv          ClassProbesVisitor
	trackFrames bool
	counter     int
}

// NewClassProbesAdapter creates an adapter. With trackFrames set, probe
// events carry the frames needed to emit new branch targets.
func NewClassProbesAdapter(cv ClassProbesVisitor, trackFrames bool) *ClassProbesAdapter {
	return &ClassProbesAdapter{cv: cv, trackFrames: trackFrames}
}

// NextID returns the next probe id of the class.
func (a *ClassProbesAdapter) NextID() int {
	id := a.counter
	a.counter++
	return id
}

// Accept walks every method of c and reports the total probe count.
func (a *ClassProbesAdapter) Accept(c *classfile.Class) error {
	if err := a.cv.VisitClass(c); err != nil {
		return err
	}
	for _, m := range c.Methods {
		labels, err := MarkLabels(m)
		if err != nil {
			log.Warningf("%s.%s%s: %s", c.Name, m.Name, m.Desc, err)
			return err
		}
		mv, err := a.cv.VisitMethod(m, labels)
		if err != nil {
			return err
		}
		if mv == nil {
			mv = NopMethodProbesVisitor{}
		}
		var frames *FrameTracker
		if a.trackFrames {
			if frames, err = NewFrameTracker(c.Name, m); err != nil {
				return fmt.Errorf("method %s%s: %w", m.Name, m.Desc, err)
			}
		}
		adapter := NewMethodProbesAdapter(mv, a, labels, frames)
		m.Accept(adapter)
		if err := adapter.Err(); err != nil {
			return fmt.Errorf("method %s%s: %w", m.Name, m.Desc, err)
		}
	}
	log.Debugf("%s: %d methods, %d probes", c.Name, len(c.Methods), a.counter)
	a.cv.VisitTotalProbeCount(a.counter)
	return a.cv.VisitEnd()
}
