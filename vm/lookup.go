package vm

import "slices"

// Runtime property lookup walks three layers and stops at the first one
// that claims the name, even when the value it holds is undefined:
//
//  1. the instance: declared slots, then the object's own dynamic properties
//  2. borrowed traits up the super chain: methods come back bound to the
//     target, getters are invoked
//  3. the prototype chain, for dynamic objects only
//
// The standard `constructor` property answers last, for every object. A
// name no layer claims yields Absent, not an error.

// GetProperty reads mn from target. The result is a reference owned by
// the caller.
func (w *Worker) GetProperty(target Value, mn Multiname) (Value, error) {
	return w.getProperty(nil, target, mn)
}

// GetPropertyCached is GetProperty memoizing trait resolution in pc.
func (w *Worker) GetPropertyCached(pc *PropertyCache, target Value, mn Multiname) (Value, error) {
	return w.getProperty(pc, target, mn)
}

func (w *Worker) getProperty(pc *PropertyCache, target Value, mn Multiname) (Value, error) {
	switch {
	case target.IsNullish():
		return Undefined, w.nullReference(target, mn)
	case target.IsClass():
		return w.getStatic(target, mn)
	case target.IsPrototype():
		return w.getOnPrototype(target, mn)
	}

	var obj *Object
	if target.IsHandle() {
		o, err := w.heap.Get(target)
		if err != nil {
			return Undefined, err
		}
		obj = o
	}
	cls := w.ClassOf(target)
	t := w.resolveTrait(pc, cls, mn)

	if obj != nil {
		if t != nil && (t.Kind == TraitSlot || t.Kind == TraitConst) {
			return w.Retain(obj.slots[t.Slot]), nil
		}
		if isPublic(mn) {
			if v, ok := obj.props.Get(mn.Name); ok {
				return w.Retain(v), nil
			}
		}
	}

	if t != nil {
		d := cls.Dispatch(t.Slot)
		switch t.Kind {
		case TraitMethod:
			return w.Bind(d.Method, target), nil
		case TraitAccessor:
			if d.Getter == nil {
				return Undefined, newScriptError(ReferenceError, errWriteOnly, "illegal read of write-only property %s on %s", w.nameOf(mn), cls.Name())
			}
			return w.CallGetter(d.Getter, target)
		}
	}

	if isPublic(mn) {
		if v := w.prototypeLookup(obj, cls, mn.Name); !v.IsAbsent() {
			return w.Retain(v), nil
		}
		if mn.Name == w.engine.names.constructor {
			return w.Retain(w.constructorOf(obj, cls)), nil
		}
	}
	return Absent, nil
}

// SetProperty writes mn on target. Slots coerce to their declared type;
// new names are only accepted by dynamic objects.
func (w *Worker) SetProperty(target Value, mn Multiname, v Value) error {
	switch {
	case target.IsNullish():
		return w.nullReference(target, mn)
	case target.IsClass():
		return w.setStatic(target, mn)
	case target.IsPrototype():
		c := w.engine.Classes.Get(target.PrototypeClassID())
		if c == nil || c.prototype == nil {
			return ErrStaleHandle
		}
		if !isPublic(mn) {
			return newScriptError(ReferenceError, errCannotCreateProp, "cannot create property %s on %s.prototype", w.nameOf(mn), c.Name())
		}
		return c.prototype.Set(w, mn.Name, v)
	}
	obj, err := w.heap.Get(target)
	if err != nil {
		return newScriptError(ReferenceError, errCannotCreateProp, "cannot create property %s on %s", w.nameOf(mn), w.TypeName(target))
	}
	cls := obj.class
	if t := cls.findTrait(mn); t != nil {
		switch t.Kind {
		case TraitSlot:
			cv, converted, err := t.Type.Coerce(w, v)
			if err != nil {
				return err
			}
			obj.setSlot(w.heap, t.Slot, cv)
			if converted {
				w.heap.DecRef(cv)
			}
			return nil
		case TraitConst:
			return newScriptError(ReferenceError, errReadOnly, "illegal write to read-only property %s on %s", w.nameOf(mn), cls.Name())
		case TraitMethod:
			return newScriptError(ReferenceError, errAssignToMethod, "cannot assign to method %s on %s", w.nameOf(mn), cls.Name())
		case TraitAccessor:
			d := cls.Dispatch(t.Slot)
			if d.Setter == nil {
				return newScriptError(ReferenceError, errReadOnly, "illegal write to read-only property %s on %s", w.nameOf(mn), cls.Name())
			}
			res, err := w.Call(d.Setter, target, []Value{v})
			if err != nil {
				return err
			}
			w.heap.DecRef(res)
			return nil
		}
	}
	if !obj.dynamic() || !isPublic(mn) {
		return newScriptError(ReferenceError, errCannotCreateProp, "cannot create property %s on %s", w.nameOf(mn), cls.Name())
	}
	obj.setProp(w.heap, mn.Name, v)
	return nil
}

// HasProperty reports whether any lookup layer claims mn.
func (w *Worker) HasProperty(target Value, mn Multiname) bool {
	if target.IsNullish() {
		return false
	}
	if target.IsClass() {
		c := w.engine.Classes.ClassOfValue(target)
		if c == nil {
			return false
		}
		return c.findStatic(mn) != nil || !w.classStandardProperty(c, mn).IsAbsent()
	}
	if target.IsPrototype() {
		v, _ := w.getOnPrototype(target, mn)
		return !v.IsAbsent()
	}
	obj := w.heap.lookup(target)
	if target.IsHandle() && obj == nil {
		return false
	}
	cls := w.ClassOf(target)
	if cls != nil && cls.findTrait(mn) != nil {
		return true
	}
	if !isPublic(mn) {
		return false
	}
	if obj != nil {
		if _, ok := obj.props.Get(mn.Name); ok {
			return true
		}
	}
	if !w.prototypeLookup(obj, cls, mn.Name).IsAbsent() {
		return true
	}
	return mn.Name == w.engine.names.constructor
}

// DeleteProperty removes an own dynamic property. Declared traits cannot
// be deleted.
func (w *Worker) DeleteProperty(target Value, mn Multiname) bool {
	if target.IsPrototype() {
		c := w.engine.Classes.Get(target.PrototypeClassID())
		return c != nil && c.prototype != nil && isPublic(mn) && c.prototype.Delete(mn.Name)
	}
	obj := w.heap.lookup(target)
	if obj == nil || !isPublic(mn) {
		return false
	}
	return obj.deleteProp(w.heap, mn.Name)
}

// Retain takes a reference to v and returns it, for code handing an
// existing value to a caller.
func (w *Worker) Retain(v Value) Value {
	w.heap.IncRef(v)
	return v
}

// Release drops a reference obtained from the worker.
func (w *Worker) Release(v Value) { w.heap.DecRef(v) }

func (w *Worker) resolveTrait(pc *PropertyCache, cls *Class, mn Multiname) *Trait {
	if cls == nil {
		return nil
	}
	if pc != nil {
		if t := pc.Lookup(cls); t != nil {
			return t
		}
	}
	t := cls.findTrait(mn)
	if pc != nil {
		pc.Update(cls, t)
	}
	return t
}

// prototypeLookup runs the prototype layer of a dynamic lookup. Objects
// made by `new f()` consult their prototype objects first; every chain
// ends at a class prototype. Unlinked objects and instances of sealed
// classes have none. Primitives, heap strings included, use their class's.
func (w *Worker) prototypeLookup(obj *Object, cls *Class, name NameID) Value {
	if obj != nil && !obj.primitive() {
		if !obj.linked || !obj.dynamic() {
			return Absent
		}
		for obj.proto.IsHandle() {
			p := w.heap.lookup(obj.proto)
			if p == nil {
				return Absent
			}
			if v, ok := p.props.Get(name); ok {
				return v
			}
			obj = p
		}
		cls = obj.class
	}
	if cls == nil || cls.prototype == nil {
		return Absent
	}
	return cls.prototype.Lookup(name)
}

// constructorOf answers the standard `constructor` property: the function
// whose prototype object the lookup passed through, or the class.
func (w *Worker) constructorOf(obj *Object, cls *Class) Value {
	for obj != nil && obj.proto.IsHandle() {
		p := w.heap.lookup(obj.proto)
		if p == nil {
			break
		}
		if w.heap.Valid(p.ctor) {
			return p.ctor
		}
		obj = p
		cls = p.class
	}
	if cls == nil {
		return Undefined
	}
	return cls.Value()
}

// dynamic reports whether the object accepts new properties and consults
// its prototype chain.
func (obj *Object) dynamic() bool {
	return obj.proto.IsHandle() || (obj.class != nil && !obj.class.Sealed)
}

func (w *Worker) getStatic(target Value, mn Multiname) (Value, error) {
	c := w.engine.Classes.ClassOfValue(target)
	if c == nil {
		return Undefined, ErrStaleHandle
	}
	t := c.findStatic(mn)
	if t == nil {
		return w.classStandardProperty(c, mn), nil
	}
	switch t.Kind {
	case TraitConst:
		return t.Value, nil
	case TraitMethod:
		return w.Bind(t.Method, target), nil
	}
	return Absent, nil
}

func (w *Worker) setStatic(target Value, mn Multiname) error {
	c := w.engine.Classes.ClassOfValue(target)
	if c == nil {
		return ErrStaleHandle
	}
	if t := c.findStatic(mn); t != nil {
		if t.Kind == TraitMethod {
			return newScriptError(ReferenceError, errAssignToMethod, "cannot assign to method %s on %s", w.nameOf(mn), c.Name())
		}
		return newScriptError(ReferenceError, errReadOnly, "illegal write to read-only property %s on %s", w.nameOf(mn), c.Name())
	}
	if !w.classStandardProperty(c, mn).IsAbsent() {
		return newScriptError(ReferenceError, errReadOnly, "illegal write to read-only property %s on %s", w.nameOf(mn), c.Name())
	}
	return newScriptError(ReferenceError, errCannotCreateProp, "cannot create property %s on %s", w.nameOf(mn), c.Name())
}

// classStandardProperty answers the properties every class value has:
// prototype, and length (the constructor's parameter count).
func (w *Worker) classStandardProperty(c *Class, mn Multiname) Value {
	if !isPublic(mn) {
		return Absent
	}
	switch mn.Name {
	case w.engine.names.prototype:
		if c.prototype != nil {
			return fromPrototypeOf(c.ID)
		}
	case w.engine.names.length:
		if c.Constructor != nil {
			return FromInt(int64(c.Constructor.Arity))
		}
		return FromInt(0)
	}
	return Absent
}

// getOnPrototype reads a property of a class's prototype object. Its
// constructor is the class.
func (w *Worker) getOnPrototype(target Value, mn Multiname) (Value, error) {
	c := w.engine.Classes.Get(target.PrototypeClassID())
	if c == nil || c.prototype == nil {
		return Undefined, ErrStaleHandle
	}
	if !isPublic(mn) {
		return Absent, nil
	}
	if v := c.prototype.Lookup(mn.Name); !v.IsAbsent() {
		return v, nil
	}
	if mn.Name == w.engine.names.constructor {
		return c.Value(), nil
	}
	return Absent, nil
}

func (w *Worker) nullReference(target Value, mn Multiname) error {
	return newScriptError(TypeError, errNullReference, "cannot access property %s of %s", w.nameOf(mn), w.TypeName(target))
}

func (w *Worker) nameOf(mn Multiname) string { return w.engine.Names.Name(mn.Name) }

func isPublic(mn Multiname) bool {
	return len(mn.NS) == 0 || slices.Contains(mn.NS, PublicNS)
}
