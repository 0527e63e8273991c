// Package instr rewrites classes so that executing them records which
// control-flow edges ran into a boolean probe array.
package instr

import (
	"errors"
	"fmt"

	"github.com/chazu/probecov/classfile"
)

// Names of the members added to every instrumented class.
const (
	DataFieldName  = "$probecovData"
	DataFieldDesc  = "[Z"
	DataFieldAcc   = classfile.AccPrivate | classfile.AccStatic | classfile.AccTransient | classfile.AccSynthetic
	InitMethodName = "$probecovInit"
	InitMethodDesc = "()[Z"
	InitMethodAcc  = classfile.AccPrivate | classfile.AccStatic | classfile.AccSynthetic
)

// The static method instrumented code calls to obtain its probe array.
// The host runtime binds it; see package agent.
const (
	RuntimeOwner  = "probecov/Runtime"
	RuntimeMethod = "probes"
	RuntimeDesc   = "(JLjava/lang/String;I)[Z"
)

// ErrAlreadyInstrumented is returned for classes that already carry the
// members added by instrumentation.
var ErrAlreadyInstrumented = errors.New("class is already instrumented")

// AssertNotInstrumented fails when member is one of the names reserved for
// instrumentation.
func AssertNotInstrumented(member, className string) error {
	if member == DataFieldName || member == InitMethodName {
		return fmt.Errorf("%w: cannot process instrumented class %s, supply original non-instrumented classes",
			ErrAlreadyInstrumented, className)
	}
	return nil
}

// AssertClassNotInstrumented checks every field and method of c.
func AssertClassNotInstrumented(c *classfile.Class) error {
	for _, f := range c.Fields {
		if err := AssertNotInstrumented(f.Name, c.Name); err != nil {
			return err
		}
	}
	for _, m := range c.Methods {
		if err := AssertNotInstrumented(m.Name, c.Name); err != nil {
			return err
		}
	}
	return nil
}
