package vm

import (
	"fmt"
	"strconv"
)

// Action is one recorded instruction of the legacy dialect. The executor
// owns its meaning.
type Action struct {
	Code uint8
	Data []byte
}

// LegacyParam maps a parameter to a register. Register 0 means the
// parameter is stored as a named local instead.
type LegacyParam struct {
	Name     NameID
	Register uint8
}

// PreloadFlags control which ambient values are materialized into the
// frame before a legacy function runs.
type PreloadFlags uint16

const (
	PreloadThis PreloadFlags = 1 << iota
	SuppressThis
	PreloadArguments
	SuppressArguments
	PreloadSuper
	SuppressSuper
	PreloadRoot
	PreloadParent
	PreloadGlobal
)

// Has reports whether every flag in mask is set.
func (p PreloadFlags) Has(mask PreloadFlags) bool { return p&mask == mask }

// LegacyCode is a recorded legacy function body. It is immutable and
// shared by every closure and clone built from it.
type LegacyCode struct {
	Name         string
	Actions      []Action
	Params       []LegacyParam
	NumRegisters int
	Flags        PreloadFlags
}

// LegacyFrame is the materialized local frame of one legacy call. All
// values are borrowed for the duration of the call.
type LegacyFrame struct {
	Function  *Callable
	This      Value
	Args      []Value
	Registers []Value
	Locals    *PropertyMap
	Scope     []ScopeEntry
}

// Local returns a named local, or Absent.
func (fr *LegacyFrame) Local(name NameID) Value {
	if v, ok := fr.Locals.Get(name); ok {
		return v
	}
	return Absent
}

// LegacyExecutor runs a legacy action list against a prepared frame.
type LegacyExecutor interface {
	Execute(w *Worker, frame *LegacyFrame) (Value, error)
}

// LegacyHost supplies the display-tree values a legacy frame can preload.
type LegacyHost interface {
	Parent(w *Worker, this Value) Value
	Root(w *Worker, this Value) Value
	Super(w *Worker, this Value) Value
}

// CallLegacy runs a legacy callable. The legacy convention writes the
// result through out instead of returning it.
func CallLegacy(w *Worker, f *Callable, receiver Value, args []Value, out *Value) error {
	invariant(f.Kind == LegacyKind, "CallLegacy", "%s is a %s callable", f.Name, f.Kind)
	exec := w.engine.Legacy
	if exec == nil {
		return fmt.Errorf("legacy call %s: no executor: %w", f.Name, ErrNotCallable)
	}
	if r, ok := f.Receiver(); ok {
		receiver = r
	}

	frame, argsObj := w.buildLegacyFrame(f, receiver, args)
	defer w.heap.DecRef(argsObj)

	res, err := exec.Execute(w, frame)
	if err != nil {
		return err
	}
	if res.IsAbsent() {
		res = Undefined
	}
	*out = res
	return nil
}

// buildLegacyFrame lays out registers and locals. Preloaded values take
// consecutive registers from 1 in the order this, arguments, super, _root,
// _parent, _global. A value that is neither preloaded nor suppressed
// becomes a named local.
func (w *Worker) buildLegacyFrame(f *Callable, this Value, args []Value) (*LegacyFrame, Value) {
	code := f.legacy
	e := w.engine
	frame := &LegacyFrame{
		Function: f,
		This:     this,
		Args:     args,
		Locals:   newPropertyMap(),
		Scope:    f.scope.Entries(),
	}

	reg := 1
	preload := func(v Value) {
		frame.setRegister(reg, v)
		reg++
	}
	flags := code.Flags

	switch {
	case flags.Has(PreloadThis):
		preload(this)
	case !flags.Has(SuppressThis):
		frame.Locals.set(e.names.this, this)
	}

	argsObj := Undefined
	if flags.Has(PreloadArguments) || !flags.Has(SuppressArguments) {
		argsObj = w.newArgumentsObject(args)
		if flags.Has(PreloadArguments) {
			preload(argsObj)
		} else {
			frame.Locals.set(e.names.arguments, argsObj)
		}
	}

	if flags.Has(PreloadSuper) || !flags.Has(SuppressSuper) {
		super := Undefined
		if e.LegacyHost != nil {
			super = e.LegacyHost.Super(w, this)
		}
		if flags.Has(PreloadSuper) {
			preload(super)
		} else {
			frame.Locals.set(e.names.super, super)
		}
	}

	if flags.Has(PreloadRoot) {
		preload(w.hostValue(e.LegacyHost, this, LegacyHost.Root))
	}
	if flags.Has(PreloadParent) {
		preload(w.hostValue(e.LegacyHost, this, LegacyHost.Parent))
	}
	if flags.Has(PreloadGlobal) {
		preload(w.global)
	}

	for i, p := range code.Params {
		v := Undefined
		if i < len(args) {
			v = args[i]
		}
		if p.Register != 0 {
			frame.setRegister(int(p.Register), v)
		} else {
			frame.Locals.set(p.Name, v)
		}
	}
	if len(frame.Registers) < code.NumRegisters {
		frame.growRegisters(code.NumRegisters)
	}
	return frame, argsObj
}

func (w *Worker) hostValue(host LegacyHost, this Value, get func(LegacyHost, *Worker, Value) Value) Value {
	if host == nil {
		return Undefined
	}
	return get(host, w, this)
}

func (fr *LegacyFrame) growRegisters(n int) {
	for len(fr.Registers) < n {
		fr.Registers = append(fr.Registers, Undefined)
	}
}

func (fr *LegacyFrame) setRegister(i int, v Value) {
	fr.growRegisters(i + 1)
	fr.Registers[i] = v
}

// newArgumentsObject builds the array-like `arguments` value: indexed
// dynamic properties plus length.
func (w *Worker) newArgumentsObject(args []Value) Value {
	obj := w.engine.ObjectClass.allocate(familyInstance, 0)
	obj.class = w.engine.ObjectClass
	obj.constructed = true
	obj.linked = true
	v := w.adopt(obj)
	names := w.engine.Names
	for i, a := range args {
		obj.setProp(w.heap, names.Intern(strconv.Itoa(i)), a)
	}
	obj.setProp(w.heap, w.engine.names.length, FromInt(int64(len(args))))
	return v
}
