package vm

import (
	"errors"
	"fmt"
)

// Value is any value the machine manipulates: int32, int64, string, nil
// (null), *Object, *BoolArray or a subroutine return address.
type Value any

// Object is an instance created by NEW. Only its class is tracked.
type Object struct {
	Class string
}

// BoolArray is a boolean array. Elems may alias memory owned by the
// caller, which is how probe arrays handed out by natives stay live.
type BoolArray struct {
	Elems []bool
}

// returnAddress is pushed by JSR and consumed by RET.
type returnAddress int

// Built-in exception classes thrown by the machine itself.
const (
	ArithmeticException    = "java/lang/ArithmeticException"
	ArrayIndexException    = "java/lang/ArrayIndexOutOfBoundsException"
	NegativeArraySizeError = "java/lang/NegativeArraySizeException"
	NullPointerException   = "java/lang/NullPointerException"
)

var (
	// ErrStepLimit is returned when execution exceeds Machine.MaxSteps.
	ErrStepLimit = errors.New("step limit exceeded")

	// ErrStackOverflow is returned when calls nest deeper than
	// Machine.MaxDepth.
	ErrStackOverflow = errors.New("stack overflow")

	// ErrNoSuchMethod is returned for calls to unknown methods.
	ErrNoSuchMethod = errors.New("no such method")

	// ErrNoSuchClass is returned when a class was never loaded.
	ErrNoSuchClass = errors.New("no such class")
)

// ThrownError carries an exception that left the outermost frame.
type ThrownError struct {
	Exception *Object
}

func (e *ThrownError) Error() string {
	return fmt.Sprintf("uncaught exception %s", e.Exception.Class)
}

// Int converts v to an int32, failing for other types.
func Int(v Value) (int32, error) {
	i, ok := v.(int32)
	if !ok {
		return 0, fmt.Errorf("expected int, got %T", v)
	}
	return i, nil
}

// Bool reports whether v is a non-zero int.
func Bool(v Value) bool {
	i, _ := v.(int32)
	return i != 0
}

// zero returns the default value of a field descriptor.
func zero(desc string) Value {
	switch desc {
	case "Z", "B", "C", "S", "I":
		return int32(0)
	case "J":
		return int64(0)
	}
	return nil
}

// sameRef implements reference equality for IF_ACMPxx.
func sameRef(a, b Value) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case *Object:
		y, ok := b.(*Object)
		return ok && x == y
	case *BoolArray:
		y, ok := b.(*BoolArray)
		return ok && x == y
	case string:
		y, ok := b.(string)
		return ok && x == y
	}
	return false
}
