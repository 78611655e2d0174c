package vm

import (
	"slices"
	"sync"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// PropertyMap: insertion-ordered dynamic properties
// ---------------------------------------------------------------------------

// PropertyMap holds properties added at run time. Dynamic properties are
// always public, so they are keyed by local name only.
type PropertyMap struct {
	keys   []NameID
	values map[NameID]Value
}

func newPropertyMap() *PropertyMap {
	return &PropertyMap{values: make(map[NameID]Value)}
}

// Get returns the property value and whether it exists.
func (pm *PropertyMap) Get(name NameID) (Value, bool) {
	if pm == nil {
		return Absent, false
	}
	v, ok := pm.values[name]
	return v, ok
}

// set stores v and returns the previous value, if any. The caller owns the
// reference bookkeeping.
func (pm *PropertyMap) set(name NameID, v Value) (Value, bool) {
	old, had := pm.values[name]
	if !had {
		pm.keys = append(pm.keys, name)
	}
	pm.values[name] = v
	return old, had
}

func (pm *PropertyMap) delete(name NameID) (Value, bool) {
	old, had := pm.values[name]
	if !had {
		return Absent, false
	}
	delete(pm.values, name)
	for i, k := range pm.keys {
		if k == name {
			pm.keys = append(pm.keys[:i], pm.keys[i+1:]...)
			break
		}
	}
	return old, true
}

// Keys returns property names in insertion order.
func (pm *PropertyMap) Keys() []NameID {
	if pm == nil {
		return nil
	}
	return pm.keys
}

// Len returns the number of properties.
func (pm *PropertyMap) Len() int {
	if pm == nil {
		return 0
	}
	return len(pm.keys)
}

// releaseAll drops every stored reference and empties the map.
func (pm *PropertyMap) releaseAll(h *Heap) {
	if pm == nil {
		return
	}
	for _, k := range pm.keys {
		if h != nil {
			h.DecRef(pm.values[k])
		}
	}
	pm.keys = nil
	pm.values = make(map[NameID]Value)
}

// ---------------------------------------------------------------------------
// PrototypeNode
// ---------------------------------------------------------------------------

// PrototypeNode is one link of a class's prototype chain: a plain property
// bag plus a back-reference to the super class's node. The chain is
// consulted only after a declared-trait lookup misses, and only for
// dynamic-compatible objects.
//
// Nodes belong to class metadata, which every worker reads. They never hold
// heap handles: a handle is only meaningful to the worker that made it.
// Heap strings are stored interned; other heap values are refused. Objects
// made by `new f()` chain through per-worker prototype objects first.
type PrototypeNode struct {
	prev   *PrototypeNode
	Sealed bool

	mu    sync.RWMutex
	props *PropertyMap
	refs  atomic.Int32
	done  atomic.Bool
}

// NewPrototypeNode creates a node linked to prev. The caller holds the
// only reference.
func NewPrototypeNode(prev *PrototypeNode) *PrototypeNode {
	if prev != nil {
		prev.retain()
	}
	p := &PrototypeNode{prev: prev, props: newPropertyMap()}
	p.refs.Store(1)
	return p
}

// Prev returns the previous node in the chain.
func (p *PrototypeNode) Prev() *PrototypeNode { return p.prev }

// Keys returns the node's own property names in insertion order.
func (p *PrototypeNode) Keys() []NameID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.props.Keys())
}

func (p *PrototypeNode) retain() { p.refs.Add(1) }

func (p *PrototypeNode) release() {
	if p.refs.Add(-1) <= 0 {
		p.finalize()
	}
}

// Lookup walks the chain from this node and returns the first value stored
// under name, or Absent.
func (p *PrototypeNode) Lookup(name NameID) Value {
	for n := p; n != nil; n = n.prev {
		n.mu.RLock()
		v, ok := n.props.Get(name)
		n.mu.RUnlock()
		if ok {
			return v
		}
	}
	return Absent
}

// Set stores a property on this node. Sealed nodes refuse new names.
func (p *PrototypeNode) Set(w *Worker, name NameID, v Value) error {
	invariant(!v.IsAbsent(), "PrototypeNode.Set", "absent is not storable")
	sv, err := w.shareable(v)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.props.Get(name); !exists && p.Sealed {
		return newScriptError(ReferenceError, errCannotCreateProp, "cannot create property %s on sealed prototype", w.engine.Names.Name(name))
	}
	p.props.set(name, sv)
	return nil
}

// Delete removes an own property and reports whether it existed.
func (p *PrototypeNode) Delete(name NameID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, had := p.props.delete(name)
	return had
}

// finalize drops the stored values and the back-reference. It is
// idempotent.
func (p *PrototypeNode) finalize() {
	if !p.done.CompareAndSwap(false, true) {
		return
	}
	p.mu.Lock()
	p.props.releaseAll(nil)
	p.mu.Unlock()
	if prev := p.prev; prev != nil {
		p.prev = nil
		prev.release()
	}
}

// shareable converts v for storage in metadata that every worker reads.
// Heap strings are interned; other heap values belong to this worker and
// are refused.
func (w *Worker) shareable(v Value) (Value, error) {
	if !v.IsHandle() {
		return v, nil
	}
	if s, ok := w.heapString(v); ok {
		return FromNameID(w.engine.Names.Intern(s)), nil
	}
	return Undefined, newScriptError(TypeError, errTypeCoercion, "cannot store %s in class metadata shared by all workers", w.TypeName(v))
}
