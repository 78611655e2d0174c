package vm

import (
	"sync"
	"sync/atomic"
)

// CompiledFunc is generated code for one method. It receives the callable
// being invoked so it can reach the captured scope chain.
type CompiledFunc func(w *Worker, f *Callable, receiver Value, args []Value) (Value, error)

// LocalDecl is one declared local of a method that needs an activation
// frame.
type LocalDecl struct {
	Name     QName
	TypeName Multiname
}

// MethodInfo is the loader-supplied description of a compiled method. It is
// shared by every closure created from the same method body, so installed
// code becomes visible to all of them at once.
type MethodInfo struct {
	Name       string
	ParamTypes []Type
	Defaults   []Value // trailing optional parameters
	ReturnType Type
	NeedsRest  bool
	Locals     []LocalDecl

	// SimpleGetter is set when the body only forwards `this.<name>`.
	SimpleGetter *Multiname

	// Body is the opaque bytecode handed to the interpreter.
	Body any

	code  atomic.Pointer[CompiledFunc]
	calls atomic.Int64

	activationOnce sync.Once
	activation     *ActivationType
}

// Code returns the installed code, or nil while the method is interpreted.
func (mi *MethodInfo) Code() CompiledFunc {
	if p := mi.code.Load(); p != nil {
		return *p
	}
	return nil
}

// Install publishes generated code. The first install wins; later calls
// report false.
func (mi *MethodInfo) Install(fn CompiledFunc) bool {
	return mi.code.CompareAndSwap(nil, &fn)
}

// Calls returns how many times the method ran without installed code.
func (mi *MethodInfo) Calls() int64 { return mi.calls.Load() }

// Activation returns the method's activation type, built on first use.
func (mi *MethodInfo) Activation() *ActivationType {
	mi.activationOnce.Do(func() {
		mi.activation = NewActivationType(mi)
	})
	return mi.activation
}

// requiredArgs is the number of parameters without a default.
func (mi *MethodInfo) requiredArgs() int {
	n := len(mi.ParamTypes) - len(mi.Defaults)
	if n < 0 {
		return 0
	}
	return n
}
