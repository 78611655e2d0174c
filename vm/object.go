package vm

// Object is a heap-allocated script object: a class instance, a plain
// dynamic object, or a function object carrying a Callable.
//
// Declared slots live in a flat vector indexed by the trait's slot number.
// Properties added at run time go into props, which is only allocated on
// first use.
type Object struct {
	class *Class
	slots []Value
	props *PropertyMap

	// proto is the prototype object of an object made by `new f()`. It is
	// consulted before the class prototype.
	proto Value

	// ctor is set on a function's prototype object. It is not counted: the
	// generation check turns it stale once the function is released.
	ctor Value

	// fn is non-nil for function objects.
	fn *Callable

	// str holds the text of a heap string.
	str string

	self        Value
	constructed bool
	linked      bool // prototype attached, dynamic lookups allowed
	finalized   bool
	accounted   int64
}

// Class returns the object's class.
func (obj *Object) Class() *Class { return obj.class }

// Handle returns the value that refers to this object.
func (obj *Object) Handle() Value { return obj.self }

// Callable returns the callable of a function object, or nil.
func (obj *Object) Callable() *Callable { return obj.fn }

// IsConstructed reports whether every constructor has run.
func (obj *Object) IsConstructed() bool { return obj.constructed }

// IsLinked reports whether the prototype is attached.
func (obj *Object) IsLinked() bool { return obj.linked }

// NumSlots returns the number of declared slots.
func (obj *Object) NumSlots() int { return len(obj.slots) }

// GetSlot returns the value at the given slot index.
// Panics if index is out of range.
func (obj *Object) GetSlot(index int) Value {
	if index < 0 || index >= len(obj.slots) {
		panic("Object.GetSlot: index out of range")
	}
	return obj.slots[index]
}

// setSlot stores v and maintains reference counts.
func (obj *Object) setSlot(h *Heap, index int, v Value) {
	if index < 0 || index >= len(obj.slots) {
		panic("Object.setSlot: index out of range")
	}
	h.IncRef(v)
	old := obj.slots[index]
	obj.slots[index] = v
	h.DecRef(old)
}

// Props returns the object's dynamic properties; nil when none were set.
func (obj *Object) Props() *PropertyMap { return obj.props }

func (obj *Object) setProp(h *Heap, name NameID, v Value) {
	if obj.props == nil {
		obj.props = newPropertyMap()
	}
	h.IncRef(v)
	if old, had := obj.props.set(name, v); had {
		h.DecRef(old)
	}
}

func (obj *Object) deleteProp(h *Heap, name NameID) bool {
	if obj.props == nil {
		return false
	}
	old, had := obj.props.delete(name)
	if had {
		h.DecRef(old)
	}
	return had
}

// primitive reports whether the object boxes a primitive, as heap strings
// do. Primitives use their class's prototype whatever their state.
func (obj *Object) primitive() bool {
	return obj.class != nil && obj.class.prim != primNone
}

// ---------------------------------------------------------------------------
// Teardown
// ---------------------------------------------------------------------------

// finalize drops every reference this object holds to other heap values.
// It may run more than once.
func (obj *Object) finalize(h *Heap) {
	if obj.finalized {
		return
	}
	obj.finalized = true
	for i, v := range obj.slots {
		obj.slots[i] = Undefined
		h.DecRef(v)
	}
	obj.props.releaseAll(h)
	if p := obj.proto; p.IsHandle() {
		obj.proto = 0
		h.DecRef(p)
	}
	obj.ctor = 0
	if obj.fn != nil {
		obj.fn.finalize(h)
	}
}

// destruct clears every field and hands the memory back as a reset shell.
// The slot and callable storage are kept for reuse.
func (obj *Object) destruct() resetShell {
	family := familyInstance
	if obj.fn != nil && obj.fn.Kind == CompiledKind {
		family = familyClosure
	}
	slots := obj.slots[:0]
	fn := obj.fn
	if fn != nil {
		fn.reset()
	}
	*obj = Object{slots: slots, fn: fn}
	return resetShell{obj: obj, family: family}
}

// isReset reports whether destruct left nothing behind.
func (obj *Object) isReset() bool {
	if obj.class != nil || len(obj.slots) != 0 || obj.props != nil || obj.proto != 0 || obj.ctor != 0 || obj.str != "" {
		return false
	}
	if obj.constructed || obj.linked || obj.finalized || obj.self != 0 || obj.accounted != 0 {
		return false
	}
	return obj.fn == nil || obj.fn.isReset()
}
