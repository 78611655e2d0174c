package vm

import (
	"errors"
	"slices"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// Natives
// ---------------------------------------------------------------------------

func TestNativeArgumentsAndReturnCoercion(t *testing.T) {
	e, w := newEngine(t)

	var seen []Value
	f := Native2("pair", e.NumberClass, func(w *Worker, _, a, b Value) (Value, error) {
		seen = []Value{a, b}
		return FromInt(3), nil
	})
	res, err := w.Call(f, Undefined, []Value{True})
	if err != nil {
		t.Fatal(err)
	}
	if res != FromFloat64(3) {
		t.Errorf("result = %s, want 3 as Number", w.ToString(res))
	}
	if !slices.Equal(seen, []Value{True, Undefined}) {
		t.Errorf("missing argument not undefined: %v", seen)
	}

	if _, err := w.Call(f, Undefined, []Value{True, False, Null}); err != nil {
		t.Errorf("extra arguments should be ignored: %v", err)
	}

	void := Native0("void", VoidType, func(*Worker, Value) (Value, error) { return FromInt(1), nil })
	if res, _ := w.Call(void, Undefined, nil); res != Undefined {
		t.Errorf("void native returned %s", w.ToString(res))
	}

	absent := Native0("absent", nil, func(*Worker, Value) (Value, error) { return Absent, nil })
	if res, _ := w.Call(absent, Undefined, nil); res != Undefined {
		t.Errorf("absent result should surface as undefined, got %s", w.ToString(res))
	}

	pt := definePoint(t, e)
	bad := Native0("bad", pt, func(*Worker, Value) (Value, error) { return FromInt(1), nil })
	if _, err := w.Call(bad, Undefined, nil); !errors.Is(err, ErrTypeCoercion) {
		t.Errorf("return coercion err = %v, want ErrTypeCoercion", err)
	}
}

func TestStackOverflow(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxRecursion = 10
	_, w := newTestEngine(t, opts, Collaborators{})

	deepest := 0
	var f *Callable
	f = Native0("recurse", nil, func(w *Worker, this Value) (Value, error) {
		deepest = max(deepest, w.Depth())
		return w.Call(f, this, nil)
	})
	_, err := w.Call(f, Undefined, nil)
	if !errors.Is(err, ErrStackOverflow) || scriptErrorID(err) != 1023 {
		t.Fatalf("err = %v, want StackOverflowError #1023", err)
	}
	if deepest != 10 {
		t.Errorf("deepest depth = %d, want 10", deepest)
	}
	if w.Depth() != 0 {
		t.Errorf("Depth() = %d after unwinding", w.Depth())
	}
}

// ---------------------------------------------------------------------------
// Compiled methods
// ---------------------------------------------------------------------------

func TestCompiledArgumentHandling(t *testing.T) {
	var got []Value
	interp := interpFunc(func(w *Worker, f *Callable, _ Value, args []Value) (Value, error) {
		got = slices.Clone(args)
		return FromFloat64(2.9), nil
	})
	e, w := newTestEngine(t, DefaultOptions(), Collaborators{Interpreter: interp})

	mi := &MethodInfo{
		Name:       "scale",
		ParamTypes: []Type{e.IntClass, e.NumberClass},
		Defaults:   []Value{FromFloat64(1.5)},
		ReturnType: e.IntClass,
	}
	f := NewCompiled(mi)
	if f.Arity != 2 {
		t.Errorf("Arity = %d, want 2", f.Arity)
	}

	res, err := w.Call(f, Undefined, []Value{str(e, "7")})
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got, []Value{FromInt(7), FromFloat64(1.5)}) {
		t.Errorf("params = %v, want coerced 7 and default 1.5", got)
	}
	if res != FromInt(2) {
		t.Errorf("result = %s, want 2", w.ToString(res))
	}

	for _, args := range [][]Value{nil, {FromInt(1), FromInt(2), FromInt(3)}} {
		_, err := w.Call(f, Undefined, args)
		if !errors.Is(err, ErrArgument) || scriptErrorID(err) != 1063 {
			t.Errorf("%d args: err = %v, want ArgumentError #1063", len(args), err)
		}
	}

	mi.NeedsRest = true
	if _, err := w.Call(f, Undefined, []Value{FromInt(1), FromInt(2), FromInt(3)}); err != nil {
		t.Fatalf("rest call: %v", err)
	}
	if len(got) != 3 || got[2] != FromInt(3) {
		t.Errorf("rest params = %v", got)
	}
	if mi.Calls() != 2 {
		t.Errorf("Calls() = %d, want 2", mi.Calls())
	}

	pt := definePoint(t, e)
	typed := NewCompiled(&MethodInfo{Name: "typed", ParamTypes: []Type{pt}})
	if _, err := w.Call(typed, Undefined, []Value{FromInt(1)}); !errors.Is(err, ErrTypeCoercion) {
		t.Errorf("param coercion err = %v, want ErrTypeCoercion", err)
	}
}

func TestCompiledWithoutInterpreter(t *testing.T) {
	_, w := newEngine(t)
	f := NewCompiled(&MethodInfo{Name: "orphan"})
	if _, err := w.Call(f, Undefined, nil); !errors.Is(err, ErrNotCallable) {
		t.Errorf("err = %v, want ErrNotCallable", err)
	}

	opts := DefaultOptions()
	opts.UseInterpreter = false
	interp := interpFunc(func(*Worker, *Callable, Value, []Value) (Value, error) {
		t.Error("interpreter ran while disabled")
		return Undefined, nil
	})
	_, w2 := newTestEngine(t, opts, Collaborators{Interpreter: interp})
	if _, err := w2.Call(f, Undefined, nil); !errors.Is(err, ErrNotCallable) {
		t.Errorf("disabled interpreter: err = %v, want ErrNotCallable", err)
	}
}

func TestInstalledCodeWins(t *testing.T) {
	interp := interpFunc(func(*Worker, *Callable, Value, []Value) (Value, error) {
		return str0, nil
	})
	_, w := newTestEngine(t, DefaultOptions(), Collaborators{Interpreter: interp})

	mi := &MethodInfo{Name: "hot"}
	clo := w.NewClosure(mi)
	defer w.Release(clo)
	other := NewCompiled(mi)

	if res, _ := w.CallValue(clo, Undefined, nil); res != str0 {
		t.Fatalf("interpreted result = %v", res)
	}
	if !mi.Install(func(*Worker, *Callable, Value, []Value) (Value, error) { return FromInt(99), nil }) {
		t.Fatal("first Install failed")
	}
	if mi.Install(func(*Worker, *Callable, Value, []Value) (Value, error) { return FromInt(0), nil }) {
		t.Error("second Install should lose")
	}
	// Every callable sharing the method sees the new code.
	for _, call := range []func() (Value, error){
		func() (Value, error) { return w.CallValue(clo, Undefined, nil) },
		func() (Value, error) { return w.Call(other, Undefined, nil) },
	} {
		if res, err := call(); err != nil || res != FromInt(99) {
			t.Errorf("installed result = %v, %v; want 99", res, err)
		}
	}
	if mi.Calls() != 1 {
		t.Errorf("Calls() = %d, want 1", mi.Calls())
	}
}

// str0 is a non-heap sentinel the stub interpreters return.
var str0 = FromNameID(EmptyName)

func TestJITInstallsHotMethods(t *testing.T) {
	opts := DefaultOptions()
	opts.UseJIT = true
	opts.JITThreshold = 3
	interp := interpFunc(func(*Worker, *Callable, Value, []Value) (Value, error) { return FromInt(1), nil })
	comp := compilerFunc(func(mi *MethodInfo) (CompiledFunc, error) {
		if mi.Name == "broken" {
			return nil, errors.New("unsupported opcode")
		}
		return func(*Worker, *Callable, Value, []Value) (Value, error) { return FromInt(2), nil }, nil
	})
	e, w := newTestEngine(t, opts, Collaborators{Interpreter: interp, Compiler: comp})

	hot := NewCompiled(&MethodInfo{Name: "hot"})
	broken := NewCompiled(&MethodInfo{Name: "broken"})
	for i := 0; i < 3; i++ {
		w.Call(hot, Undefined, nil)
		w.Call(broken, Undefined, nil)
	}

	waitFor(t, "hot method install", func() bool { return hot.Method().Code() != nil })
	if res, _ := w.Call(hot, Undefined, nil); res != FromInt(2) {
		t.Errorf("after install = %s, want 2", w.ToString(res))
	}
	waitFor(t, "failed compile", func() bool { return e.JITStats().Failed == 1 })

	stats := e.JITStats()
	if stats.Installed != 1 {
		t.Errorf("Installed = %d, want 1", stats.Installed)
	}
	if broken.Method().Code() != nil {
		t.Error("failed compile installed code")
	}
	if res, _ := w.Call(broken, Undefined, nil); res != FromInt(1) {
		t.Errorf("broken method should stay interpreted, got %s", w.ToString(res))
	}
}

func TestJITDisabled(t *testing.T) {
	comp := compilerFunc(func(*MethodInfo) (CompiledFunc, error) {
		t.Error("compiler ran with the JIT disabled")
		return nil, nil
	})
	opts := DefaultOptions()
	opts.JITThreshold = 1
	interp := interpFunc(func(*Worker, *Callable, Value, []Value) (Value, error) { return Undefined, nil })
	e, w := newTestEngine(t, opts, Collaborators{Interpreter: interp, Compiler: comp})

	f := NewCompiled(&MethodInfo{Name: "cold"})
	for i := 0; i < 5; i++ {
		w.Call(f, Undefined, nil)
	}
	if e.JITStats() != (JITStats{}) {
		t.Errorf("JITStats = %+v, want zero", e.JITStats())
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// ---------------------------------------------------------------------------
// Scope chains and bound clones
// ---------------------------------------------------------------------------

func TestAcquireScopeOnce(t *testing.T) {
	e, w := newEngine(t)
	scopeObj := mustConstruct(t, w, e.ObjectClass)
	defer w.Release(scopeObj)

	clo := w.NewClosure(&MethodInfo{Name: "inner"})
	defer w.Release(clo)
	f := w.CallableOf(clo)

	f.AcquireScope(w, []ScopeEntry{{Value: w.Global()}, {Value: scopeObj, ConsiderDynamic: true}})
	if f.Scope().Len() != 2 || !f.Scope().Sealed() {
		t.Fatalf("scope len=%d sealed=%v", f.Scope().Len(), f.Scope().Sealed())
	}
	if w.Heap().RefCount(scopeObj) != 2 {
		t.Errorf("scope entry not retained: RefCount = %d", w.Heap().RefCount(scopeObj))
	}
	mustPanicInvariant(t, func() { f.AcquireScope(w, nil) })
	mustPanicInvariant(t, func() { f.AddToScope(w, ScopeEntry{Value: Null}) })

	incremental := NewCompiled(&MethodInfo{Name: "step"})
	incremental.AddToScope(w, ScopeEntry{Value: FromInt(1)})
	incremental.AddToScope(w, ScopeEntry{Value: FromInt(2)})
	if incremental.Scope().Len() != 2 || incremental.Scope().Sealed() {
		t.Error("AddToScope should append without sealing")
	}
	mustPanicInvariant(t, func() { incremental.AcquireScope(w, nil) })

	native := Native0("n", nil, func(*Worker, Value) (Value, error) { return Undefined, nil })
	mustPanicInvariant(t, func() { native.AcquireScope(w, nil) })
}

func TestBindIsolation(t *testing.T) {
	var receivers []Value
	interp := interpFunc(func(w *Worker, f *Callable, this Value, _ []Value) (Value, error) {
		receivers = append(receivers, this)
		return Undefined, nil
	})
	e, w := newTestEngine(t, DefaultOptions(), Collaborators{Interpreter: interp})
	a := mustConstruct(t, w, e.ObjectClass)
	defer w.Release(a)
	b := mustConstruct(t, w, e.ObjectClass)
	defer w.Release(b)

	clo := w.NewClosure(&MethodInfo{Name: "m"})
	defer w.Release(clo)
	f := w.CallableOf(clo)
	f.AcquireScope(w, []ScopeEntry{{Value: w.Global()}})

	ba := w.Bind(f, a)
	bb := w.Bind(f, b)
	defer w.Release(bb)

	w.CallValue(ba, Undefined, nil)
	w.CallValue(bb, Undefined, nil)
	w.CallValue(clo, FromInt(5), nil)
	if !slices.Equal(receivers, []Value{a, b, FromInt(5)}) {
		t.Errorf("receivers = %v", receivers)
	}

	if _, bound := f.Receiver(); bound {
		t.Error("binding changed the original")
	}
	ga, gb := w.CallableOf(ba), w.CallableOf(bb)
	if !ga.IsCloned() || !ga.IsConstructed() {
		t.Error("bound clone should be cloned and constructed")
	}
	if ga.Scope() != f.Scope() || gb.Scope() != f.Scope() {
		t.Error("clones must share the original's scope chain")
	}
	if ga.Method() != f.Method() {
		t.Error("clones must share the method")
	}
	if w.Heap().RefCount(a) != 2 {
		t.Errorf("bound receiver RefCount = %d, want 2", w.Heap().RefCount(a))
	}
	mustPanicInvariant(t, func() { ga.AddToScope(w, ScopeEntry{Value: Null}) })

	// Releasing the clone releases its receiver but not the shared scope.
	w.Release(ba)
	if w.Heap().RefCount(a) != 1 {
		t.Errorf("receiver RefCount after clone release = %d, want 1", w.Heap().RefCount(a))
	}
	if f.Scope() == nil || f.Scope().Len() != 1 {
		t.Error("original's scope released with a clone")
	}
}

// ---------------------------------------------------------------------------
// Legacy functions
// ---------------------------------------------------------------------------

type stubHost struct{ root, parent Value }

func (h stubHost) Parent(*Worker, Value) Value { return h.parent }
func (h stubHost) Root(*Worker, Value) Value   { return h.root }
func (h stubHost) Super(*Worker, Value) Value  { return str0 }

func TestLegacyFrameLayout(t *testing.T) {
	var frame *LegacyFrame
	var argLen Value
	exec := execFunc(func(w *Worker, fr *LegacyFrame) (Value, error) {
		frame = fr
		if args := fr.Registers[2]; args.IsHandle() {
			argLen = mustGet(t, w, args, "length")
		}
		return FromInt(7), nil
	})
	host := stubHost{root: FromInt(100), parent: FromInt(200)}
	e, w := newTestEngine(t, DefaultOptions(), Collaborators{Legacy: exec, LegacyHost: host})

	code := &LegacyCode{
		Name:         "onEnterFrame",
		Params:       []LegacyParam{{Name: e.Names.Intern("a"), Register: 6}, {Name: e.Names.Intern("b")}},
		NumRegisters: 8,
		Flags:        PreloadThis | PreloadArguments | SuppressSuper | PreloadRoot | PreloadParent,
	}
	f := NewLegacy(code)
	this := FromInt(42)

	live := w.Heap().Live()
	res, err := w.Call(f, this, []Value{str(e, "x"), str(e, "y"), str(e, "z")})
	if err != nil {
		t.Fatal(err)
	}
	if res != FromInt(7) {
		t.Errorf("result = %s, want 7", w.ToString(res))
	}

	want := []Value{Undefined, this, frame.Registers[2], FromInt(100), FromInt(200), Undefined, str(e, "x"), Undefined}
	if !slices.Equal(frame.Registers, want) {
		t.Errorf("registers = %v, want %v", frame.Registers, want)
	}
	if argLen != FromInt(3) {
		t.Errorf("arguments.length = %s, want 3", w.ToString(argLen))
	}
	if got := frame.Local(e.Names.Intern("b")); got != str(e, "y") {
		t.Errorf("local b = %s, want y", w.ToString(got))
	}
	if frame.Local(e.Names.Intern("super")) != Absent {
		t.Error("suppressed super became a local")
	}
	if frame.Local(e.Names.Intern("this")) != Absent {
		t.Error("preloaded this also became a local")
	}
	if w.Heap().Live() != live {
		t.Errorf("arguments object leaked: Live() = %d, want %d", w.Heap().Live(), live)
	}
}

func TestLegacyDefaultLocals(t *testing.T) {
	var frame *LegacyFrame
	exec := execFunc(func(w *Worker, fr *LegacyFrame) (Value, error) {
		frame = fr
		return Absent, nil
	})
	e, w := newTestEngine(t, DefaultOptions(), Collaborators{Legacy: exec, LegacyHost: stubHost{}})

	f := NewLegacy(&LegacyCode{Name: "plain", Flags: SuppressArguments | PreloadGlobal})
	res, err := w.Call(f, True, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res != Undefined {
		t.Errorf("absent result = %s, want undefined", w.ToString(res))
	}
	if frame.Local(e.Names.Intern("this")) != True {
		t.Error("this not stored as a local")
	}
	if frame.Local(e.Names.Intern("super")) != str0 {
		t.Error("super not stored as a local")
	}
	if frame.Local(e.Names.Intern("arguments")) != Absent {
		t.Error("suppressed arguments became a local")
	}
	if len(frame.Registers) != 2 || frame.Registers[1] != w.Global() {
		t.Errorf("registers = %v, want global in register 1", frame.Registers)
	}
}

func TestLegacyWithoutExecutor(t *testing.T) {
	_, w := newEngine(t)
	f := NewLegacy(&LegacyCode{Name: "nobody"})
	if _, err := w.Call(f, Undefined, nil); !errors.Is(err, ErrNotCallable) {
		t.Errorf("err = %v, want ErrNotCallable", err)
	}
}

func TestCompiledAndLegacyParity(t *testing.T) {
	sum := func(w *Worker, args []Value) Value {
		total := 0.0
		for _, a := range args {
			total += w.ToNumber(a)
		}
		return FromFloat64(total)
	}
	interp := interpFunc(func(w *Worker, _ *Callable, _ Value, args []Value) (Value, error) {
		return sum(w, args), nil
	})
	exec := execFunc(func(w *Worker, fr *LegacyFrame) (Value, error) {
		return sum(w, fr.Args), nil
	})
	e, w := newTestEngine(t, DefaultOptions(), Collaborators{Interpreter: interp, Legacy: exec})

	compiled := w.NewClosure(&MethodInfo{Name: "sum", ParamTypes: []Type{nil, nil}, NeedsRest: true})
	defer w.Release(compiled)
	legacy := w.NewLegacyClosure(&LegacyCode{Name: "sum", Params: []LegacyParam{{Name: e.Names.Intern("a")}, {Name: e.Names.Intern("b")}}})
	defer w.Release(legacy)

	args := []Value{FromInt(1), FromFloat64(2.5), str(e, "3")}
	for _, fn := range []Value{compiled, legacy} {
		res, err := w.CallValue(fn, Undefined, args)
		if err != nil {
			t.Fatalf("%s: %v", w.CallableOf(fn).Kind, err)
		}
		if res != FromFloat64(6.5) {
			t.Errorf("%s: sum = %s, want 6.5", w.CallableOf(fn).Kind, w.ToString(res))
		}
	}
}

// ---------------------------------------------------------------------------
// Function values
// ---------------------------------------------------------------------------

func TestConstructFunction(t *testing.T) {
	var self Value
	interp := interpFunc(func(w *Worker, f *Callable, this Value, args []Value) (Value, error) {
		if f.Name == "Replaced" {
			return w.engine.ObjectClass.Construct(w, nil, true)
		}
		self = this
		return Undefined, w.SetProperty(this, w.engine.PublicName("name"), argAt(args, 0))
	})
	e, w := newTestEngine(t, DefaultOptions(), Collaborators{Interpreter: interp})

	ctor := w.NewClosure(&MethodInfo{Name: "Person", ParamTypes: []Type{e.StringClass}})
	defer w.Release(ctor)
	f := w.CallableOf(ctor)
	proto, err := w.FunctionPrototype(ctor)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.SetProperty(proto, e.PublicName("species"), str(e, "human")); err != nil {
		t.Fatal(err)
	}

	p, err := w.ConstructFunction(ctor, []Value{str(e, "Ada")})
	if err != nil {
		t.Fatalf("ConstructFunction: %v", err)
	}
	defer w.Release(p)
	if p != self {
		t.Error("constructor did not run against the new object")
	}
	if got := mustGet(t, w, p, "name"); got != str(e, "Ada") {
		t.Errorf("name = %s", w.ToString(got))
	}
	if got := mustGet(t, w, p, "species"); got != str(e, "human") {
		t.Errorf("species = %s, want human from the function's prototype", w.ToString(got))
	}
	if w.ClassOf(p) != e.ObjectClass {
		t.Errorf("class = %s, want Object", w.TypeName(p))
	}
	c := mustGet(t, w, p, "constructor")
	if c != ctor {
		t.Errorf("constructor = %s, want the function", w.ToString(c))
	}
	w.Release(c)

	replacer := NewCompiled(&MethodInfo{Name: "Replaced"})
	rv := w.NewFunction(replacer)
	defer w.Release(rv)
	if _, err := w.FunctionPrototype(rv); err != nil {
		t.Fatal(err)
	}
	before := w.Heap().Live()
	r, err := w.ConstructFunction(rv, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Release(r)
	if w.Heap().Live() != before+1 {
		t.Errorf("discarded instance leaked: Live() = %d, want %d", w.Heap().Live(), before+1)
	}

	bound := w.Bind(f, p)
	defer w.Release(bound)
	if _, err := w.ConstructFunction(bound, nil); !errors.Is(err, ErrConstruction) || scriptErrorID(err) != 1115 {
		t.Errorf("new on bound method: err = %v, want ConstructionError #1115", err)
	}
	if _, err := w.ConstructFunction(FromInt(1), nil); !errors.Is(err, ErrNotCallable) || scriptErrorID(err) != 1006 {
		t.Errorf("new on non-function: err = %v, want #1006", err)
	}
}

func TestSimpleGetterShortcut(t *testing.T) {
	e, w := newEngine(t)
	c := mustDefine(t, e, "Wrapper", e.ObjectClass)
	c.AddSlot(e.Public("inner"), e.IntClass, FromInt(11))
	inner := e.PublicName("inner")
	mi := &MethodInfo{Name: "get value", SimpleGetter: &inner, ReturnType: e.NumberClass}
	c.AddGetter(e.Public("value"), NewCompiled(mi))

	v := mustConstruct(t, w, c)
	defer w.Release(v)
	got, err := w.GetProperty(v, e.PublicName("value"))
	if err != nil {
		t.Fatalf("no interpreter is configured, the getter must not run: %v", err)
	}
	if got != FromFloat64(11) {
		t.Errorf("value = %s, want 11 as Number", w.ToString(got))
	}
	if mi.Calls() != 0 {
		t.Errorf("Calls() = %d, want 0", mi.Calls())
	}
}

func TestFunctionCallAndLength(t *testing.T) {
	e, w := newEngine(t)
	var gotThis Value
	fv := w.NewFunction(Native2("add", nil, func(w *Worker, this, a, b Value) (Value, error) {
		gotThis = this
		return FromFloat64(w.ToNumber(a) + w.ToNumber(b)), nil
	}))
	defer w.Release(fv)

	if w.ClassOf(fv) != e.FunctionClass {
		t.Errorf("function value class = %s", w.TypeName(fv))
	}
	if got := mustGet(t, w, fv, "length"); got != FromInt(2) {
		t.Errorf("length = %s, want 2", w.ToString(got))
	}

	call := mustGet(t, w, fv, "call")
	defer w.Release(call)
	res, err := w.CallValue(call, Undefined, []Value{str(e, "me"), FromInt(2), FromInt(3)})
	if err != nil {
		t.Fatal(err)
	}
	if res != FromFloat64(5) {
		t.Errorf("add.call = %s, want 5", w.ToString(res))
	}
	if gotThis != str(e, "me") {
		t.Errorf("receiver = %s, want me", w.ToString(gotThis))
	}
	if w.ToString(fv) != "function Function() {}" {
		t.Errorf("ToString = %q", w.ToString(fv))
	}
	if _, err := w.CallValue(FromInt(1), Undefined, nil); !errors.Is(err, ErrNotCallable) {
		t.Errorf("calling a number: err = %v", err)
	}
}
