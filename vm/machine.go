// Package vm interprets classes. It exists to run original and
// instrumented code side by side and compare the results.
package vm

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/chazu/probecov/classfile"
)

var log = commonlog.GetLogger("probecov.vm")

// Default limits.
const (
	DefaultMaxSteps = 1_000_000
	DefaultMaxDepth = 512
)

// Native implements a static method in Go.
type Native func(args []Value) (Value, error)

// Machine holds loaded classes, static fields and natives. A Machine is
// single threaded; natives may be shared between machines.
type Machine struct {
	classes     map[string]*classfile.Class
	initialized map[string]bool
	statics     map[string]Value
	natives     map[string]Native
	code        map[*classfile.Method]*code

	// MaxSteps bounds the instructions executed by one Invoke.
	MaxSteps int
	// MaxDepth bounds call nesting.
	MaxDepth int

	steps int
	depth int
}

// New creates an empty machine.
func New() *Machine {
	return &Machine{
		classes:     make(map[string]*classfile.Class),
		initialized: make(map[string]bool),
		statics:     make(map[string]Value),
		natives:     make(map[string]Native),
		code:        make(map[*classfile.Method]*code),
		MaxSteps:    DefaultMaxSteps,
		MaxDepth:    DefaultMaxDepth,
	}
}

// Load adds c, replacing any class of the same name.
func (m *Machine) Load(c *classfile.Class) {
	m.classes[c.Name] = c
	delete(m.initialized, c.Name)
}

// LoadBytes decodes and loads an encoded class.
func (m *Machine) LoadBytes(b []byte) (*classfile.Class, error) {
	c, err := classfile.Read(b)
	if err != nil {
		return nil, err
	}
	m.Load(c)
	return c, nil
}

// RegisterNative binds owner.name desc to fn. Natives take precedence
// over loaded methods.
func (m *Machine) RegisterNative(owner, name, desc string, fn Native) {
	m.natives[memberKey(owner, name)+desc] = fn
}

// Static returns a static field value, or nil when unset.
func (m *Machine) Static(owner, name string) Value {
	return m.statics[memberKey(owner, name)]
}

// SetStatic sets a static field.
func (m *Machine) SetStatic(owner, name string, v Value) {
	m.statics[memberKey(owner, name)] = v
}

// Invoke runs a static method. For an instance method the receiver is the
// first argument. Exceptions that escape are returned as *ThrownError.
func (m *Machine) Invoke(owner, name, desc string, args ...Value) (Value, error) {
	m.steps = 0
	return m.invoke(owner, name, desc, args)
}

func (m *Machine) invoke(owner, name, desc string, args []Value) (Value, error) {
	if fn, ok := m.natives[memberKey(owner, name)+desc]; ok {
		return fn(args)
	}
	c, ok := m.classes[owner]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchClass, owner)
	}
	if err := m.initialize(c); err != nil {
		return nil, err
	}
	meth := c.Method(name, desc)
	if meth == nil || len(meth.Code) == 0 {
		return nil, fmt.Errorf("%w: %s.%s%s", ErrNoSuchMethod, owner, name, desc)
	}
	if m.depth >= m.MaxDepth {
		return nil, ErrStackOverflow
	}
	m.depth++
	defer func() { m.depth-- }()
	return m.execute(c, meth, args)
}

// initialize runs <clinit> once per loaded class.
func (m *Machine) initialize(c *classfile.Class) error {
	if m.initialized[c.Name] {
		return nil
	}
	m.initialized[c.Name] = true
	if clinit := c.Method("<clinit>", "()V"); clinit != nil && len(clinit.Code) != 0 {
		log.Debugf("initializing %s", c.Name)
		if _, err := m.execute(c, clinit, nil); err != nil {
			return fmt.Errorf("initialize %s: %w", c.Name, err)
		}
	}
	return nil
}

func memberKey(owner, name string) string {
	return owner + "." + name
}
