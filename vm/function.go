package vm

import "sync/atomic"

// CallableKind selects a callable's code representation.
type CallableKind uint8

const (
	NativeKind CallableKind = iota
	CompiledKind
	LegacyKind
)

func (k CallableKind) String() string {
	switch k {
	case NativeKind:
		return "native"
	case CompiledKind:
		return "compiled"
	case LegacyKind:
		return "legacy"
	}
	return "?"
}

// NativeFunc is a Go function exposed as a script callable. It receives a
// flat argument slice and the receiver and consumes ownership of neither.
type NativeFunc func(w *Worker, receiver Value, args []Value) (Value, error)

// Callable is the single representation of every script function. Exactly
// one code representation is populated, selected by Kind; Worker.Call
// switches on it.
//
// Callables declared by classes are engine-owned and shared by all
// workers. Closures and bound clones live on a worker heap inside a
// function object.
type Callable struct {
	Kind     CallableKind
	Name     string
	Arity    int
	Owner    *Class // nil for free functions
	IsStatic bool

	receiver    Value
	bound       bool
	isCloned    bool
	constructed bool

	// NativeKind
	native  NativeFunc
	retType Type

	// CompiledKind
	method *MethodInfo

	// LegacyKind
	legacy *LegacyCode

	// CompiledKind and LegacyKind; shared with clones
	scope *ScopeChain

	// prototype is the heap object `new f()` links to; only function
	// objects have one.
	prototype Value
}

// NewNative wraps fn as a callable. A nil return type means any.
func NewNative(name string, arity int, ret Type, fn NativeFunc) *Callable {
	return &Callable{Kind: NativeKind, Name: name, Arity: arity, native: fn, retType: ret, constructed: true}
}

// NewCompiled creates a callable for a compiled method with an empty scope.
func NewCompiled(mi *MethodInfo) *Callable {
	f := &Callable{constructed: true}
	f.initCompiled(mi, true)
	return f
}

// NewLegacy creates a callable for a recorded action list.
func NewLegacy(code *LegacyCode) *Callable {
	f := &Callable{constructed: true}
	f.initLegacy(code, true)
	return f
}

// initCompiled and initLegacy give f an empty scope. Engine-owned
// callables get a shared chain, which every worker may bind.
func (f *Callable) initCompiled(mi *MethodInfo, shared bool) {
	f.Kind = CompiledKind
	f.Name = mi.Name
	f.Arity = len(mi.ParamTypes)
	f.method = mi
	f.scope = newScopeChain(shared)
}

func (f *Callable) initLegacy(code *LegacyCode, shared bool) {
	f.Kind = LegacyKind
	f.Name = code.Name
	f.Arity = len(code.Params)
	f.legacy = code
	f.scope = newScopeChain(shared)
}

// Receiver returns the bound receiver, if any.
func (f *Callable) Receiver() (Value, bool) {
	if !f.bound {
		return Undefined, false
	}
	return f.receiver, true
}

func (f *Callable) IsCloned() bool      { return f.isCloned }
func (f *Callable) IsConstructed() bool { return f.constructed }
func (f *Callable) Method() *MethodInfo { return f.method }
func (f *Callable) Legacy() *LegacyCode { return f.legacy }
func (f *Callable) Native() NativeFunc  { return f.native }
func (f *Callable) Scope() *ScopeChain  { return f.scope }

func (f *Callable) hasCode() bool {
	return f.native != nil || f.method != nil || f.legacy != nil
}

// sameCode reports whether f and g run the same body.
func (f *Callable) sameCode(g *Callable) bool {
	if f.Kind != g.Kind {
		return false
	}
	switch f.Kind {
	case CompiledKind:
		return f.method == g.method
	case LegacyKind:
		return f.legacy == g.legacy
	}
	return f.native != nil && g.native != nil && f.Name == g.Name
}

// ReturnType returns the declared result type.
func (f *Callable) ReturnType() Type {
	var t Type
	switch f.Kind {
	case NativeKind:
		t = f.retType
	case CompiledKind:
		t = f.method.ReturnType
	}
	if t == nil {
		return AnyType
	}
	return t
}

// ---------------------------------------------------------------------------
// Scope chains
// ---------------------------------------------------------------------------

// ScopeEntry is one captured lexical scope.
type ScopeEntry struct {
	Value           Value
	ConsiderDynamic bool // with-scopes see dynamic properties
}

// ScopeChain is the ordered list of scopes a closure captured, outermost
// first. Bound clones share their original's chain.
//
// The chain of an engine-owned callable is shared: every worker binding
// the callable retains it, so the count is atomic, and it holds no heap
// handles. A heap closure's chain belongs to one worker.
type ScopeChain struct {
	entries []ScopeEntry
	sealed  bool
	shared  bool
	refs    atomic.Int32
	heap    *Heap
}

func newScopeChain(shared bool) *ScopeChain {
	s := &ScopeChain{shared: shared}
	s.refs.Store(1)
	return s
}

// Entries returns the captured scopes, outermost first.
func (s *ScopeChain) Entries() []ScopeEntry {
	if s == nil {
		return nil
	}
	return s.entries
}

// Len returns the chain depth.
func (s *ScopeChain) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Sealed reports whether AcquireScope has run.
func (s *ScopeChain) Sealed() bool { return s != nil && s.sealed }

// Shared reports whether the chain belongs to an engine-owned callable.
func (s *ScopeChain) Shared() bool { return s != nil && s.shared }

func (s *ScopeChain) retain() { s.refs.Add(1) }

func (s *ScopeChain) release() {
	if s.refs.Add(-1) > 0 {
		return
	}
	for _, e := range s.entries {
		if s.heap != nil {
			s.heap.DecRef(e.Value)
		}
	}
	s.entries = nil
	s.heap = nil
}

func (s *ScopeChain) push(w *Worker, e ScopeEntry) {
	if s.shared {
		v, err := w.shareable(e.Value)
		invariant(err == nil, "ScopeChain.push", "engine-owned callables capture only primitives: %v", err)
		e.Value = v
		s.entries = append(s.entries, e)
		return
	}
	invariant(s.heap == nil || s.heap == w.heap || !e.Value.IsHandle(), "ScopeChain.push", "scope shared across workers")
	if e.Value.IsHandle() {
		s.heap = w.heap
	}
	w.heap.IncRef(e.Value)
	s.entries = append(s.entries, e)
}

// AcquireScope installs the whole lexical scope chain. A closure captures
// its defining scope exactly once: calling this on a chain that already
// holds entries, or was already sealed, is an invariant violation.
func (f *Callable) AcquireScope(w *Worker, entries []ScopeEntry) {
	invariant(f.Kind != NativeKind, "Callable.AcquireScope", "%s: native callables have no scope", f.Name)
	invariant(!f.isCloned, "Callable.AcquireScope", "%s: clones share their original's scope", f.Name)
	s := f.scope
	invariant(s.Len() == 0 && !s.sealed, "Callable.AcquireScope", "%s: scope already set", f.Name)
	for _, e := range entries {
		s.push(w, e)
	}
	s.sealed = true
}

// AddToScope appends one entry for closures built scope by scope. Appending
// after AcquireScope sealed the chain is an invariant violation.
func (f *Callable) AddToScope(w *Worker, e ScopeEntry) {
	invariant(f.Kind != NativeKind, "Callable.AddToScope", "%s: native callables have no scope", f.Name)
	invariant(!f.isCloned, "Callable.AddToScope", "%s: clones share their original's scope", f.Name)
	invariant(!f.scope.sealed, "Callable.AddToScope", "%s: scope is sealed", f.Name)
	f.scope.push(w, e)
}

// ---------------------------------------------------------------------------
// Function objects
// ---------------------------------------------------------------------------

// newFunctionObject takes a function shell from the Function class and
// places it on the heap.
func (w *Worker) newFunctionObject(kind CallableKind) (Value, *Callable) {
	family := familyInstance
	if kind == CompiledKind {
		family = familyClosure
	}
	fc := w.engine.FunctionClass
	obj := fc.allocate(family, 0)
	if obj.fn == nil {
		obj.fn = &Callable{}
	}
	obj.class = fc
	obj.constructed = true
	obj.linked = true
	return w.adopt(obj), obj.fn
}

// NewClosure creates a heap closure for a compiled method. Its scope chain
// is empty until AcquireScope or AddToScope fills it.
func (w *Worker) NewClosure(mi *MethodInfo) Value {
	v, f := w.newFunctionObject(CompiledKind)
	f.initCompiled(mi, false)
	f.constructed = true
	return v
}

// NewLegacyClosure creates a heap closure for a recorded action list.
func (w *Worker) NewLegacyClosure(code *LegacyCode) Value {
	v, f := w.newFunctionObject(LegacyKind)
	f.initLegacy(code, false)
	f.constructed = true
	return v
}

// NewFunction places an engine-owned callable's code in a fresh function
// object, so it can be stored and passed around as a value.
func (w *Worker) NewFunction(src *Callable) Value {
	v, f := w.newFunctionObject(src.Kind)
	f.copyCode(src)
	f.constructed = true
	return v
}

// Bind returns a detached method reference: a clone of f sharing its code
// and scope, with receiver fixed. Binding never re-runs construction.
func (w *Worker) Bind(f *Callable, receiver Value) Value {
	v, g := w.newFunctionObject(f.Kind)
	g.copyCode(f)
	g.IsStatic = f.IsStatic
	g.Owner = f.Owner
	w.heap.IncRef(receiver)
	g.receiver = receiver
	g.bound = true
	g.isCloned = true
	g.constructed = true
	return v
}

func (f *Callable) copyCode(src *Callable) {
	f.Kind = src.Kind
	f.Name = src.Name
	f.Arity = src.Arity
	f.native = src.native
	f.retType = src.retType
	f.method = src.method
	f.legacy = src.legacy
	if src.scope != nil {
		src.scope.retain()
		f.scope = src.scope
	}
}

// finalize drops the receiver, the scope and the prototype.
func (f *Callable) finalize(h *Heap) {
	if f.bound {
		r := f.receiver
		f.receiver = Undefined
		f.bound = false
		h.DecRef(r)
	}
	if s := f.scope; s != nil {
		f.scope = nil
		s.release()
	}
	if p := f.prototype; p.IsHandle() {
		f.prototype = 0
		h.DecRef(p)
	}
}

func (f *Callable) reset() { *f = Callable{} }

func (f *Callable) isReset() bool {
	return !f.hasCode() && f.Name == "" && f.Arity == 0 && f.Owner == nil && !f.IsStatic &&
		f.receiver == 0 && !f.bound && !f.isCloned && !f.constructed &&
		f.retType == nil && f.scope == nil && f.prototype == 0
}

// FunctionPrototype returns the object `new f()` links new instances to,
// creating it on first use. The prototype object lives on this worker's
// heap and keeps an uncounted back-reference to fn as its constructor.
// The result is borrowed.
func (w *Worker) FunctionPrototype(fn Value) (Value, error) {
	obj, err := w.heap.Get(fn)
	if err != nil {
		return Undefined, err
	}
	f := obj.fn
	if f == nil {
		return Undefined, &ScriptError{Kind: TypeError, ID: errNotAFunction, Msg: w.TypeName(fn) + " is not a function", Err: ErrNotCallable}
	}
	if !f.prototype.IsHandle() {
		p, err := w.engine.ObjectClass.Construct(w, nil, true)
		if err != nil {
			return Undefined, err
		}
		po, _ := w.heap.Get(p)
		po.ctor = fn
		f.prototype = p
	}
	return f.prototype, nil
}

// SetFunctionPrototype replaces the object `new f()` links to. Only
// objects of this worker are accepted.
func (w *Worker) SetFunctionPrototype(fn, proto Value) error {
	obj, err := w.heap.Get(fn)
	if err != nil {
		return err
	}
	f := obj.fn
	if f == nil {
		return &ScriptError{Kind: TypeError, ID: errNotAFunction, Msg: w.TypeName(fn) + " is not a function", Err: ErrNotCallable}
	}
	if !w.heap.Valid(proto) || w.isHeapString(proto) {
		return coercionError(w.TypeName(proto), "Object")
	}
	w.heap.IncRef(proto)
	old := f.prototype
	f.prototype = proto
	w.heap.DecRef(old)
	return nil
}
