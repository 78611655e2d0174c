package vm

import (
	"errors"
	"math"
	"sync"
	"testing"
)

// ---------------------------------------------------------------------------
// Collaborator stubs
// ---------------------------------------------------------------------------

type interpFunc func(w *Worker, f *Callable, receiver Value, args []Value) (Value, error)

func (fn interpFunc) Interpret(w *Worker, f *Callable, receiver Value, args []Value) (Value, error) {
	return fn(w, f, receiver, args)
}

type execFunc func(w *Worker, frame *LegacyFrame) (Value, error)

func (fn execFunc) Execute(w *Worker, frame *LegacyFrame) (Value, error) {
	return fn(w, frame)
}

type compilerFunc func(mi *MethodInfo) (CompiledFunc, error)

func (fn compilerFunc) Compile(mi *MethodInfo) (CompiledFunc, error) { return fn(mi) }

type recordingSink struct {
	mu     sync.Mutex
	deltas map[string]int64
}

func (s *recordingSink) Report(class string, delta int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deltas == nil {
		s.deltas = make(map[string]int64)
	}
	s.deltas[class] += delta
}

func (s *recordingSink) total(class string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deltas[class]
}

// ---------------------------------------------------------------------------
// Engine helpers
// ---------------------------------------------------------------------------

func newTestEngine(t *testing.T, opts Options, collab Collaborators) (*Engine, *Worker) {
	t.Helper()
	e := NewEngine(opts, collab)
	w, err := e.NewWorker()
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}
	t.Cleanup(func() { _ = e.Shutdown() })
	return e, w
}

func newEngine(t *testing.T) (*Engine, *Worker) {
	t.Helper()
	return newTestEngine(t, DefaultOptions(), Collaborators{})
}

func mustDefine(t *testing.T, e *Engine, name string, super *Class) *Class {
	t.Helper()
	c, err := e.DefineClass(e.Public(name), super)
	if err != nil {
		t.Fatalf("DefineClass(%s): %v", name, err)
	}
	return c
}

func mustConstruct(t *testing.T, w *Worker, c *Class, args ...Value) Value {
	t.Helper()
	v, err := c.Construct(w, args, true)
	if err != nil {
		t.Fatalf("Construct(%s): %v", c.Name(), err)
	}
	return v
}

func mustGet(t *testing.T, w *Worker, target Value, name string) Value {
	t.Helper()
	v, err := w.GetProperty(target, w.engine.PublicName(name))
	if err != nil {
		t.Fatalf("GetProperty(%s): %v", name, err)
	}
	return v
}

func mustPanicInvariant(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if _, ok := r.(*InvariantViolation); !ok {
			t.Fatalf("expected InvariantViolation panic, got %v", r)
		}
	}()
	fn()
}

func scriptErrorID(err error) int {
	var se *ScriptError
	if errors.As(err, &se) {
		return se.ID
	}
	return -1
}

func str(e *Engine, s string) Value { return FromNameID(e.Names.Intern(s)) }

// definePoint builds the class used by the end-to-end tests:
//
//	class Point { var x:Number; var y:Number;
//	  function Point(x, y); function add(p):Point; get length():Number }
func definePoint(t *testing.T, e *Engine) *Class {
	t.Helper()
	pt := mustDefine(t, e, "Point", e.ObjectClass)
	xName, yName := e.PublicName("x"), e.PublicName("y")
	pt.AddSlot(e.Public("x"), e.NumberClass, FromFloat64(0))
	pt.AddSlot(e.Public("y"), e.NumberClass, FromFloat64(0))

	pt.SetConstructor(NativeN("Point", 2, VoidType, func(w *Worker, this Value, args []Value) (Value, error) {
		if len(args) > 0 {
			if err := w.SetProperty(this, xName, args[0]); err != nil {
				return Undefined, err
			}
		}
		if len(args) > 1 {
			if err := w.SetProperty(this, yName, args[1]); err != nil {
				return Undefined, err
			}
		}
		return Undefined, nil
	}))

	pt.AddMethod(e.Public("add"), Native1("add", pt, func(w *Worker, this, other Value) (Value, error) {
		a, err := w.Object(this)
		if err != nil {
			return Undefined, err
		}
		b, err := w.Object(other)
		if err != nil {
			return Undefined, err
		}
		x := a.GetSlot(0).Float64() + b.GetSlot(0).Float64()
		y := a.GetSlot(1).Float64() + b.GetSlot(1).Float64()
		return pt.Construct(w, []Value{FromFloat64(x), FromFloat64(y)}, true)
	}), false)

	pt.AddGetter(e.Public("length"), Native0("length", e.NumberClass, func(w *Worker, this Value) (Value, error) {
		obj, err := w.Object(this)
		if err != nil {
			return Undefined, err
		}
		x, y := obj.GetSlot(0).Float64(), obj.GetSlot(1).Float64()
		return FromFloat64(math.Hypot(x, y)), nil
	}))
	return pt
}

// sameValue compares like === but also treats NaN as equal to itself.
func sameValue(w *Worker, a, b Value) bool { return a == b || w.StrictEquals(a, b) }
