package vm

import "fmt"

// Type is anything a value can be coerced to. Classes implement it, as do
// the AnyType and VoidType singletons and per-method ActivationTypes.
//
// Nobody owns a Type: they are created once and survive until engine
// shutdown.
type Type interface {
	// Name returns "any", "void", "activation" or the class's qualified name.
	Name() string

	// Coerce converts v to this type. The boolean reports whether a
	// different value was produced. A value that cannot be converted
	// yields a TypeError.
	Coerce(w *Worker, v Value) (Value, bool, error)

	// CoerceForTemplate converts v for storage as the element of an
	// applied template such as Vector.<T>. On success the caller's
	// reference to v is consumed and the result is owned by the caller; on
	// failure the caller still owns v.
	CoerceForTemplate(w *Worker, v Value) (Value, error)

	// ResolveMultinameStatically decides, without a live instance, whether
	// mn can be early-bound against this type.
	ResolveMultinameStatically(mn Multiname) EarlyBindResult

	// ResolveSlotTypeName returns the declared type name of a slot.
	ResolveSlotTypeName(slot int) (Multiname, bool)

	// IsBuiltin is false only for classes defined by loaded scripts.
	IsBuiltin() bool
}

// BindStatus is the tri-state outcome of static name resolution.
type BindStatus uint8

const (
	// Unresolved: keep the dynamic lookup.
	Unresolved BindStatus = iota
	// ProvablyAbsent: the lookup would fail at run time too.
	ProvablyAbsent
	// Bound: direct slot access is safe.
	Bound
)

// EarlyBindResult is returned by ResolveMultinameStatically. Slot is only
// meaningful when Status is Bound.
type EarlyBindResult struct {
	Status BindStatus
	Slot   int
}

var (
	unresolved     = EarlyBindResult{Status: Unresolved}
	provablyAbsent = EarlyBindResult{Status: ProvablyAbsent}
)

func boundTo(slot int) EarlyBindResult {
	return EarlyBindResult{Status: Bound, Slot: slot}
}

func (r EarlyBindResult) String() string {
	switch r.Status {
	case Bound:
		return fmt.Sprintf("Bound(%d)", r.Slot)
	case ProvablyAbsent:
		return "ProvablyAbsent"
	}
	return "Unresolved"
}

// ---------------------------------------------------------------------------
// any / void
// ---------------------------------------------------------------------------

type anyType struct{}

// AnyType matches every value and never converts.
var AnyType Type = anyType{}

func (anyType) Name() string { return "any" }

func (anyType) Coerce(_ *Worker, v Value) (Value, bool, error) { return v, false, nil }

func (anyType) CoerceForTemplate(_ *Worker, v Value) (Value, error) { return v, nil }

func (anyType) ResolveMultinameStatically(Multiname) EarlyBindResult { return unresolved }

func (anyType) ResolveSlotTypeName(int) (Multiname, bool) { return Multiname{}, false }

func (anyType) IsBuiltin() bool { return true }

type voidType struct{}

// VoidType matches nothing meaningful and never converts.
var VoidType Type = voidType{}

func (voidType) Name() string { return "void" }

func (voidType) Coerce(_ *Worker, v Value) (Value, bool, error) { return v, false, nil }

func (voidType) CoerceForTemplate(_ *Worker, v Value) (Value, error) { return v, nil }

func (voidType) ResolveMultinameStatically(Multiname) EarlyBindResult { return provablyAbsent }

func (voidType) ResolveSlotTypeName(int) (Multiname, bool) { return Multiname{}, false }

func (voidType) IsBuiltin() bool { return true }

// ---------------------------------------------------------------------------
// ActivationType
// ---------------------------------------------------------------------------

// ActivationType describes the synthetic local-variable frame of one method
// that needs an activation object. It exists only for early binding.
type ActivationType struct {
	method *MethodInfo
}

// NewActivationType derives the activation shape from a method's locals.
func NewActivationType(mi *MethodInfo) *ActivationType {
	return &ActivationType{method: mi}
}

func (a *ActivationType) Name() string { return "activation" }

func (a *ActivationType) Coerce(*Worker, Value) (Value, bool, error) {
	panic(&InvariantViolation{Op: "ActivationType.Coerce", Msg: "coercing to an activation type should not happen"})
}

func (a *ActivationType) CoerceForTemplate(*Worker, Value) (Value, error) {
	panic(&InvariantViolation{Op: "ActivationType.CoerceForTemplate", Msg: "coercing to an activation type should not happen"})
}

func (a *ActivationType) ResolveMultinameStatically(mn Multiname) EarlyBindResult {
	for i, local := range a.method.Locals {
		if mn.Matches(local.Name) {
			return boundTo(i)
		}
	}
	return provablyAbsent
}

func (a *ActivationType) ResolveSlotTypeName(slot int) (Multiname, bool) {
	if slot < 0 || slot >= len(a.method.Locals) {
		return Multiname{}, false
	}
	t := a.method.Locals[slot].TypeName
	return t, t.Name != EmptyName
}

func (a *ActivationType) IsBuiltin() bool { return true }
