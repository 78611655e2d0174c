package vm

import (
	"fmt"
	"slices"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// ClassID identifies a class in its engine's class table. Zero is never
// assigned.
type ClassID uint32

// primKind marks the builtin classes whose coercion converts instead of
// checking instance-of.
type primKind uint8

const (
	primNone primKind = iota
	primNumber
	primInt
	primUint
	primString
	primBoolean
)

// Class is the runtime metadata of one class or interface. Classes are
// created once at load, owned by the engine's class table, and shared by
// every worker. A class is also a Type.
type Class struct {
	ID    ClassID
	QName QName
	Super *Class

	name string // qualified display name, "pkg::Name"

	// meta is the class of this class's value. The root metaclass is its
	// own meta; shutdown breaks that link first.
	meta *Class

	Final     bool
	Sealed    bool // not dynamic: no properties can be added at run time
	Interface bool
	Reusable  bool // released instances go to a free list
	Abstract  bool

	builtin bool
	prim    primKind

	mu         sync.RWMutex // guards instance, statics, slotTraits, methods
	instance   *TraitTable
	statics    *TraitTable
	slotTraits []*Trait // by slot index, inherited slots first
	methods    []*Trait // by dispatch id, overrides replace entries

	Constructor *Callable
	prototype   *PrototypeNode

	ifaceMu       sync.Mutex
	pendingIfaces []Multiname
	interfaces    []*Class

	freeLists [numFamilies]freeList
	Memory    *MemoryAccount

	template   *Template
	TypeParams []Type

	engine *Engine
}

// DefineClass creates a class and registers it. Slots, methods and the
// prototype chain are inherited from super. New classes are sealed; set
// Sealed to false for a dynamic class.
func (e *Engine) DefineClass(name QName, super *Class) (*Class, error) {
	c := e.newClass(name, super)
	if err := e.Classes.register(c); err != nil {
		c.prototype.release()
		return nil, err
	}
	return c, nil
}

func (e *Engine) newClass(name QName, super *Class) *Class {
	display := e.QualifiedName(name)
	c := &Class{
		QName:    name,
		name:     display,
		Super:    super,
		meta:     e.ClassClass,
		Sealed:   true,
		instance: NewTraitTable(),
		statics:  NewTraitTable(),
		engine:   e,
	}
	var parentProto *PrototypeNode
	if super != nil {
		invariant(!super.Interface, "DefineClass", "%s cannot extend interface %s", display, super.Name())
		invariant(!super.Final, "DefineClass", "%s cannot extend final class %s", display, super.Name())
		c.slotTraits = slices.Clone(super.slotTraits)
		c.methods = slices.Clone(super.methods)
		parentProto = super.prototype
	}
	c.prototype = NewPrototypeNode(parentProto)
	if e.opts.MemoryAccounting {
		c.Memory = newMemoryAccount(display, e.Memory)
	}
	return c
}

// DefineInterface creates and registers an interface.
func (e *Engine) DefineInterface(name QName) (*Class, error) {
	c, err := e.DefineClass(name, nil)
	if err != nil {
		return nil, err
	}
	c.Interface = true
	return c, nil
}

// Name returns the qualified display name, "pkg::Name".
func (c *Class) Name() string { return c.name }

func (c *Class) String() string { return c.name }

// Value returns the first-class value of this class.
func (c *Class) Value() Value { return fromClassID(c.ID) }

// Meta returns the class of this class's value.
func (c *Class) Meta() *Class { return c.meta }

// Prototype returns the class's prototype node.
func (c *Class) Prototype() *PrototypeNode { return c.prototype }

// NumSlots returns the instance slot count, inherited slots included.
func (c *Class) NumSlots() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.slotTraits)
}

// Depth returns the number of superclasses.
func (c *Class) Depth() int {
	d := 0
	for k := c.Super; k != nil; k = k.Super {
		d++
	}
	return d
}

// chain returns the class and its superclasses, root first.
func (c *Class) chain() []*Class {
	out := make([]*Class, c.Depth()+1)
	i := len(out) - 1
	for k := c; k != nil; k = k.Super {
		out[i] = k
		i--
	}
	return out
}

// ---------------------------------------------------------------------------
// Trait declaration
// ---------------------------------------------------------------------------

// AddSlot declares a writable instance slot. A default of Undefined means
// the type's own default.
func (c *Class) AddSlot(name QName, typ Type, def Value) *Trait {
	return c.addSlot(name, TraitSlot, typ, def)
}

// AddConst declares a read-only instance slot.
func (c *Class) AddConst(name QName, typ Type, v Value) *Trait {
	return c.addSlot(name, TraitConst, typ, v)
}

func (c *Class) addSlot(name QName, kind TraitKind, typ Type, def Value) *Trait {
	invariant(!c.Interface, "Class.AddSlot", "interface %s cannot declare slots", c.Name())
	invariant(!def.IsHandle() && !def.IsAbsent(), "Class.AddSlot", "slot default must be a primitive")
	if typ == nil {
		typ = AnyType
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &Trait{Name: name, Kind: kind, Slot: len(c.slotTraits), Type: typ, TypeName: typeName(typ), Value: def, Owner: c}
	c.instance.Add(t)
	c.slotTraits = append(c.slotTraits, t)
	return t
}

// AddMethod declares an instance method. A method with the same name as an
// inherited one overrides it and takes over its dispatch id.
func (c *Class) AddMethod(name QName, f *Callable, final bool) *Trait {
	f.Owner = c
	t := &Trait{Name: name, Kind: TraitMethod, Type: AnyType, Final: final, Method: f, Owner: c}
	c.installDispatch(t)
	return t
}

// AddGetter declares or completes an accessor with a getter.
func (c *Class) AddGetter(name QName, f *Callable) *Trait {
	return c.addAccessor(name, f, nil)
}

// AddSetter declares or completes an accessor with a setter.
func (c *Class) AddSetter(name QName, f *Callable) *Trait {
	return c.addAccessor(name, nil, f)
}

func (c *Class) addAccessor(name QName, get, set *Callable) *Trait {
	for _, f := range []*Callable{get, set} {
		if f != nil {
			f.Owner = c
		}
	}
	c.mu.Lock()
	if t := c.instance.LookupQName(name); t != nil && t.Kind == TraitAccessor {
		if get != nil {
			t.Getter = get
		}
		if set != nil {
			t.Setter = set
		}
		c.mu.Unlock()
		return t
	}
	c.mu.Unlock()

	t := &Trait{Name: name, Kind: TraitAccessor, Type: AnyType, Getter: get, Setter: set, Owner: c}
	if inherited := c.Super.findTraitQName(name); inherited != nil && inherited.Kind == TraitAccessor {
		if t.Getter == nil {
			t.Getter = inherited.Getter
		}
		if t.Setter == nil {
			t.Setter = inherited.Setter
		}
	}
	c.installDispatch(t)
	return t
}

// installDispatch gives a method or accessor trait its dispatch id.
func (c *Class) installDispatch(t *Trait) {
	invariant(t.Kind == TraitMethod || t.Kind == TraitAccessor, "Class.installDispatch", "%s is a %s", c.Name(), t.Kind)
	inherited := c.Super.findTraitQName(t.Name)
	c.mu.Lock()
	defer c.mu.Unlock()
	if inherited != nil && inherited.Kind == t.Kind {
		invariant(!inherited.Final, "Class.AddMethod", "%s overrides final %s", c.Name(), c.engine.Names.Name(t.Name.Name))
		t.Slot = inherited.Slot
		c.methods[t.Slot] = t
	} else {
		t.Slot = len(c.methods)
		c.methods = append(c.methods, t)
	}
	c.instance.Add(t)
}

// AddStaticMethod declares a method on the class value.
func (c *Class) AddStaticMethod(name QName, f *Callable) *Trait {
	f.Owner = c
	f.IsStatic = true
	t := &Trait{Name: name, Kind: TraitMethod, Type: AnyType, Final: true, Method: f, Owner: c}
	c.mu.Lock()
	defer c.mu.Unlock()
	t.Slot = c.statics.Len()
	c.statics.Add(t)
	return t
}

// AddStaticConst declares a constant on the class value.
func (c *Class) AddStaticConst(name QName, v Value) *Trait {
	invariant(!v.IsHandle(), "Class.AddStaticConst", "static constants must be primitive")
	t := &Trait{Name: name, Kind: TraitConst, Type: AnyType, Value: v, Owner: c}
	c.mu.Lock()
	defer c.mu.Unlock()
	t.Slot = c.statics.Len()
	c.statics.Add(t)
	return t
}

// SetConstructor installs this level's constructor.
func (c *Class) SetConstructor(f *Callable) {
	f.Owner = c
	c.Constructor = f
}

// Traits returns the traits declared by this class itself.
func (c *Class) Traits() []*Trait {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.instance.All())
}

// Statics returns the traits declared on the class value.
func (c *Class) Statics() []*Trait {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.statics.All())
}

// SlotTrait returns the trait stored at slot, or nil.
func (c *Class) SlotTrait(slot int) *Trait {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if slot < 0 || slot >= len(c.slotTraits) {
		return nil
	}
	return c.slotTraits[slot]
}

// Dispatch returns the method or accessor trait for a dispatch id as seen
// by this class, with overrides applied.
func (c *Class) Dispatch(id int) *Trait {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if id < 0 || id >= len(c.methods) {
		return nil
	}
	return c.methods[id]
}

// Methods returns the dispatch table: one method or accessor trait per
// dispatch id, inherited entries first.
func (c *Class) Methods() []*Trait {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.methods)
}

// Engine returns the engine the class was defined in.
func (c *Class) Engine() *Engine { return c.engine }

// findTrait returns the first trait matching mn on c or its superclasses.
func (c *Class) findTrait(mn Multiname) *Trait {
	for k := c; k != nil; k = k.Super {
		k.mu.RLock()
		t := k.instance.Lookup(mn)
		k.mu.RUnlock()
		if t != nil {
			return t
		}
	}
	return nil
}

func (c *Class) findTraitQName(q QName) *Trait {
	for k := c; k != nil; k = k.Super {
		k.mu.RLock()
		t := k.instance.LookupQName(q)
		k.mu.RUnlock()
		if t != nil {
			return t
		}
	}
	return nil
}

func (c *Class) findStatic(mn Multiname) *Trait {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.statics.Lookup(mn)
}

// ---------------------------------------------------------------------------
// Subclassing and interfaces
// ---------------------------------------------------------------------------

// IsSubClass reports whether c is other or inherits from it. With
// considerInterfaces, implemented interfaces count too, including those
// inherited through superclasses and through interface inheritance.
func (c *Class) IsSubClass(other *Class, considerInterfaces bool) bool {
	if other == nil {
		return false
	}
	for k := c; k != nil; k = k.Super {
		if k == other {
			return true
		}
		if considerInterfaces {
			ifaces, _ := k.GetInterfaces()
			for _, i := range ifaces {
				if i.IsSubClass(other, true) {
					return true
				}
			}
		}
	}
	return false
}

// AddImplementedInterface queues an interface name. It is resolved the
// next time GetInterfaces runs and finds a class under that name.
func (c *Class) AddImplementedInterface(name Multiname) {
	c.ifaceMu.Lock()
	c.pendingIfaces = append(c.pendingIfaces, name)
	c.ifaceMu.Unlock()
}

// AddImplementedInterfaceClass appends an already resolved interface and
// links it.
func (c *Class) AddImplementedInterfaceClass(iface *Class) error {
	invariant(iface.Interface, "Class.AddImplementedInterfaceClass", "%s is not an interface", iface.Name())
	c.ifaceMu.Lock()
	if slices.Contains(c.interfaces, iface) {
		c.ifaceMu.Unlock()
		return nil
	}
	c.interfaces = append(c.interfaces, iface)
	c.ifaceMu.Unlock()
	return c.LinkInterface(iface)
}

// GetInterfaces resolves any queued interface names that are now defined
// and returns the interfaces known so far. allDefined reports whether
// every declared name has been resolved.
func (c *Class) GetInterfaces() (ifaces []*Class, allDefined bool) {
	c.ifaceMu.Lock()
	var newly []*Class
	var remaining []Multiname
	for _, mn := range c.pendingIfaces {
		ic := c.engine.Classes.LookupMultiname(mn)
		if ic == nil || !ic.Interface {
			remaining = append(remaining, mn)
			continue
		}
		if !slices.Contains(c.interfaces, ic) {
			c.interfaces = append(c.interfaces, ic)
			newly = append(newly, ic)
		}
	}
	c.pendingIfaces = remaining
	ifaces = slices.Clone(c.interfaces)
	allDefined = len(remaining) == 0
	c.ifaceMu.Unlock()

	for _, ic := range newly {
		if err := c.LinkInterface(ic); err != nil {
			log.Warningf("linking %s into %s: %v", ic.Name(), c.Name(), err)
		}
	}
	return ifaces, allDefined
}

// requirements returns the method and accessor traits an interface
// demands, including those of the interfaces it extends.
func (c *Class) requirements() []*Trait {
	reqs := c.Traits()
	ifaces, _ := c.GetInterfaces()
	for _, parent := range ifaces {
		reqs = append(reqs, parent.requirements()...)
	}
	return reqs
}

// LinkInterface makes each method iface requires reachable under the
// interface's own name, pointing at the implementation c provides.
// Missing implementations on a concrete class are collected into one
// error. Interfaces only record the link; their implementors do the work.
func (c *Class) LinkInterface(iface *Class) error {
	invariant(iface.Interface, "Class.LinkInterface", "%s is not an interface", iface.Name())
	if c.Interface {
		return nil
	}
	var result *multierror.Error
	for _, req := range iface.requirements() {
		if t := c.findTraitQName(req.Name); t != nil && t.Kind == req.Kind {
			continue
		}
		impl := c.findImplementation(req)
		if impl == nil {
			if c.Abstract {
				continue
			}
			result = multierror.Append(result, newScriptError(VerifyError, errInterfaceMethod,
				"interface method %s of %s not implemented by %s", c.engine.Names.Name(req.Name.Name), iface.Name(), c.Name()))
			continue
		}
		alias := *impl
		alias.Name = req.Name
		c.mu.Lock()
		c.instance.Add(&alias)
		c.mu.Unlock()
	}
	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%s implements %s: %w", c.Name(), iface.Name(), err)
	}
	return nil
}

// findImplementation looks for a public method or accessor with the
// requirement's local name.
func (c *Class) findImplementation(req *Trait) *Trait {
	t := c.findTrait(PublicName(req.Name.Name))
	if t == nil || t.Kind != req.Kind {
		return nil
	}
	return t
}

// ---------------------------------------------------------------------------
// Static resolution
// ---------------------------------------------------------------------------

// ResolveMultinameStatically decides whether an access through a value of
// static type c can skip the dynamic lookup.
func (c *Class) ResolveMultinameStatically(mn Multiname) EarlyBindResult {
	if c.Interface || !c.Sealed {
		return unresolved
	}
	t := c.findTrait(mn)
	if t == nil {
		return provablyAbsent
	}
	switch t.Kind {
	case TraitSlot, TraitConst:
		return boundTo(t.Slot)
	case TraitMethod:
		if c.Final || !t.overridable() {
			return boundTo(t.Slot)
		}
	}
	return unresolved
}

// ResolveSlotTypeName returns the declared type name of an instance slot.
func (c *Class) ResolveSlotTypeName(slot int) (Multiname, bool) {
	t := c.SlotTrait(slot)
	if t == nil || t.TypeName.Name == EmptyName {
		return Multiname{}, false
	}
	return t.TypeName, true
}

// IsBuiltin reports whether the engine defined this class.
func (c *Class) IsBuiltin() bool { return c.builtin }

func typeName(t Type) Multiname {
	if c, ok := t.(*Class); ok {
		return c.QName.Multiname()
	}
	return Multiname{}
}

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

// allocate returns an object for this class with numSlots slots, taken
// from the free list when the class is reusable.
func (c *Class) allocate(family shellFamily, numSlots int) *Object {
	var obj *Object
	if c.Reusable {
		obj = c.freeLists[family].get()
	}
	if obj == nil {
		obj = &Object{}
	}
	obj.class = c
	if cap(obj.slots) >= numSlots {
		obj.slots = obj.slots[:numSlots]
	} else {
		obj.slots = make([]Value, numSlots)
	}
	return obj
}

// recycle keeps a destructed shell for reuse.
func (c *Class) recycle(s resetShell) {
	if !c.Reusable || c.engine.closing.Load() {
		return
	}
	c.freeLists[s.family].put(s)
}

// FreeListLen returns the number of pooled shells in a family.
func (c *Class) FreeListLen(family int) int {
	return c.freeLists[family].Len()
}

// Construct creates an instance. Declared slots start at their type's
// default, then the constructors run root to leaf. With buildAndLink the
// prototype is attached as well; without it the instance is returned
// unlinked so the caller can add its own linkage before FinishConstruction.
func (c *Class) Construct(w *Worker, args []Value, buildAndLink bool) (Value, error) {
	invariant(!c.Interface, "Class.Construct", "interface %s cannot be constructed", c.Name())
	invariant(c != w.engine.ClassClass, "Class.Construct", "the root metaclass cannot be constructed")
	if c.Abstract {
		return Undefined, newScriptError(ConstructionError, errCannotInstantiate, "%s class cannot be instantiated", c.Name())
	}
	if c.prim != primNone {
		if len(args) == 0 {
			return c.zeroValue(), nil
		}
		v, converted, err := c.Coerce(w, args[0])
		if err == nil && !converted {
			w.heap.IncRef(v)
		}
		return v, err
	}

	c.mu.RLock()
	traits := c.slotTraits
	obj := c.allocate(familyInstance, len(traits))
	for i, t := range traits {
		obj.slots[i] = slotDefault(t)
	}
	c.mu.RUnlock()

	v := w.adopt(obj)
	if err := c.runConstructors(w, v, args); err != nil {
		return Undefined, err
	}
	obj.constructed = true
	if buildAndLink {
		obj.linked = true
	}
	return v, nil
}

// runConstructors calls each level's constructor, root to leaf. Only the
// leaf constructor receives args. On failure the instance is released.
func (c *Class) runConstructors(w *Worker, v Value, args []Value) error {
	for _, k := range c.chain() {
		ctor := k.Constructor
		if ctor == nil {
			continue
		}
		var a []Value
		if k == c {
			a = args
		}
		res, err := w.Call(ctor, v, a)
		if err != nil {
			w.heap.DecRef(v)
			return &ScriptError{Kind: ConstructionError, ID: errConstructorFailed, Msg: "constructing " + c.Name(), Err: err}
		}
		w.heap.DecRef(res)
	}
	return nil
}

// FinishConstruction links an instance built without buildAndLink: its
// prototype is attached and dynamic lookups start consulting it.
func (c *Class) FinishConstruction(w *Worker, v Value) error {
	obj, err := w.heap.Get(v)
	if err != nil {
		return err
	}
	invariant(obj.class == c, "Class.FinishConstruction", "%s instance finished as %s", obj.class.Name(), c.Name())
	invariant(obj.constructed, "Class.FinishConstruction", "%s instance was never constructed", c.Name())
	invariant(!obj.linked, "Class.FinishConstruction", "%s instance already linked", c.Name())
	obj.linked = true
	return nil
}

func slotDefault(t *Trait) Value {
	if t.Value != Undefined {
		return t.Value
	}
	return typeDefault(t.Type)
}

// typeDefault is the value a slot of type t holds before assignment.
func typeDefault(t Type) Value {
	c, ok := t.(*Class)
	if !ok {
		return Undefined
	}
	switch c.prim {
	case primNumber:
		return canonicalNaN
	case primInt, primUint:
		return FromInt(0)
	case primBoolean:
		return False
	}
	return Null
}

// zeroValue is what `new T()` yields for a primitive class.
func (c *Class) zeroValue() Value {
	switch c.prim {
	case primNumber:
		return FromFloat64(0)
	case primInt, primUint:
		return FromInt(0)
	case primBoolean:
		return False
	case primString:
		return FromNameID(EmptyName)
	}
	return Null
}

// finalize drops everything the class references. The engine calls it at
// shutdown, after the root metaclass self-reference is gone.
func (c *Class) finalize() {
	c.mu.Lock()
	c.instance.clear()
	c.statics.clear()
	c.slotTraits = nil
	c.methods = nil
	c.mu.Unlock()

	c.ifaceMu.Lock()
	c.interfaces = nil
	c.pendingIfaces = nil
	c.ifaceMu.Unlock()

	for i := range c.freeLists {
		c.freeLists[i].drain()
	}
	if p := c.prototype; p != nil {
		c.prototype = nil
		p.release()
	}
	c.Constructor = nil
	c.Super = nil
	c.meta = nil
}
