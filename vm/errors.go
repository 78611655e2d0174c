package vm

import (
	"errors"
	"fmt"
)

// Sentinel errors. Script-visible failures wrap one of these so callers can
// match with errors.Is.
var (
	ErrTypeCoercion  = errors.New("type coercion failed")
	ErrNullReference = errors.New("null object reference")
	ErrConstruction  = errors.New("construction failed")
	ErrArgument      = errors.New("argument count mismatch")
	ErrReference     = errors.New("property reference failed")
	ErrStackOverflow = errors.New("stack overflow")
	ErrStaleHandle   = errors.New("stale or foreign handle")
	ErrNotCallable   = errors.New("value is not callable")
	ErrVerify        = errors.New("class verification failed")
)

// ErrorKind names the script error class a failure surfaces as.
type ErrorKind uint8

const (
	TypeError ErrorKind = iota
	ConstructionError
	ArgumentError
	ReferenceError
	StackOverflowError
	VerifyError
)

func (k ErrorKind) String() string {
	switch k {
	case TypeError:
		return "TypeError"
	case ConstructionError:
		return "ConstructionError"
	case ArgumentError:
		return "ArgumentError"
	case ReferenceError:
		return "ReferenceError"
	case StackOverflowError:
		return "StackOverflowError"
	case VerifyError:
		return "VerifyError"
	}
	return "Error"
}

func (k ErrorKind) sentinel() error {
	switch k {
	case TypeError:
		return ErrTypeCoercion
	case ConstructionError:
		return ErrConstruction
	case ArgumentError:
		return ErrArgument
	case ReferenceError:
		return ErrReference
	case StackOverflowError:
		return ErrStackOverflow
	case VerifyError:
		return ErrVerify
	}
	return nil
}

// Player error numbers carried by ScriptError.ID. Zero means the failure
// has no player equivalent.
const (
	errConstructorFailed = 0
	errNotAFunction      = 1006
	errNullReference     = 1009
	errStackOverflow     = 1023
	errTypeCoercion      = 1034
	errAssignToMethod    = 1037
	errInterfaceMethod   = 1044
	errCannotCreateProp  = 1056
	errArgumentCount     = 1063
	errPropertyNotFound  = 1069
	errReadOnly          = 1074
	errWriteOnly         = 1077
	errNotConstructor    = 1115
	errCannotInstantiate = 2012
)

// ScriptError is a catchable failure surfaced to the calling script.
// ID is the player error number (1034 for a failed coercion, and so on).
type ScriptError struct {
	Kind ErrorKind
	ID   int
	Msg  string
	Err  error // underlying cause, e.g. a constructor's own error
}

func (e *ScriptError) Error() string {
	head := e.Kind.String()
	if e.ID != 0 {
		head = fmt.Sprintf("%s #%d", head, e.ID)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", head, e.Msg, e.Err)
	}
	return head + ": " + e.Msg
}

func (e *ScriptError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.sentinel(), e.Err}
	}
	return []error{e.sentinel()}
}

// sentinel picks the error matched by errors.Is. A null reference is a
// TypeError to scripts but is not a failed coercion.
func (e *ScriptError) sentinel() error {
	if e.ID == errNullReference {
		return ErrNullReference
	}
	return e.Kind.sentinel()
}

func newScriptError(kind ErrorKind, id int, format string, args ...any) *ScriptError {
	return &ScriptError{Kind: kind, ID: id, Msg: fmt.Sprintf(format, args...)}
}

func coercionError(from, to string) *ScriptError {
	return newScriptError(TypeError, errTypeCoercion, "cannot convert %s to %s", from, to)
}

// ---------------------------------------------------------------------------
// Invariant violations
// ---------------------------------------------------------------------------

// InvariantViolation is panicked when an engine-internal contract is broken.
// It is never returned as an error: continuing would operate on corrupted
// state.
type InvariantViolation struct {
	Op  string
	Msg string
}

func (iv *InvariantViolation) Error() string {
	return "invariant violation in " + iv.Op + ": " + iv.Msg
}

func invariant(cond bool, op, format string, args ...any) {
	if !cond {
		panic(&InvariantViolation{Op: op, Msg: fmt.Sprintf(format, args...)})
	}
}
