package vm

import "fmt"

// Heap is a worker's object arena. Values refer to objects by index plus a
// 16-bit generation, so a handle kept past its object's release is detected
// instead of silently reaching the next occupant of the cell.
//
// Reference counts are plain integers: a heap is only ever touched by the
// goroutine that owns its worker.
type Heap struct {
	cells       []heapCell
	freeIdx     []uint32
	live        int
	tearingDown bool
}

type heapCell struct {
	obj  *Object
	gen  uint16
	refs int32
}

// refDying marks a cell whose object is being finalized. Reference
// operations against it are ignored, which lets cycles unwind.
const refDying int32 = -1

// NewHeap creates an empty heap.
func NewHeap() *Heap {
	return &Heap{cells: make([]heapCell, 0, 64)}
}

// alloc places obj in the arena with a reference count of one.
func (h *Heap) alloc(obj *Object) Value {
	var idx uint32
	if n := len(h.freeIdx); n > 0 {
		idx = h.freeIdx[n-1]
		h.freeIdx = h.freeIdx[:n-1]
	} else {
		idx = uint32(len(h.cells))
		h.cells = append(h.cells, heapCell{})
	}
	c := &h.cells[idx]
	c.obj = obj
	c.refs = 1
	h.live++
	v := fromHandle(idx, c.gen)
	obj.self = v
	return v
}

// cell returns the live cell a handle designates, or nil.
func (h *Heap) cell(v Value) *heapCell {
	if !v.IsHandle() {
		return nil
	}
	idx, gen := v.handle()
	if int(idx) >= len(h.cells) {
		return nil
	}
	c := &h.cells[idx]
	if c.obj == nil || c.gen != gen {
		return nil
	}
	return c
}

// lookup returns the object behind v, or nil for anything that is not a
// live handle of this heap.
func (h *Heap) lookup(v Value) *Object {
	if c := h.cell(v); c != nil {
		return c.obj
	}
	return nil
}

// Get returns the object behind a handle.
func (h *Heap) Get(v Value) (*Object, error) {
	if obj := h.lookup(v); obj != nil {
		return obj, nil
	}
	return nil, fmt.Errorf("heap: %#x: %w", uint64(v), ErrStaleHandle)
}

// Valid reports whether v is a live handle of this heap.
func (h *Heap) Valid(v Value) bool { return h.cell(v) != nil }

// IncRef takes a reference. Non-handle values are ignored.
func (h *Heap) IncRef(v Value) {
	if c := h.cell(v); c != nil && c.refs >= 0 {
		c.refs++
	}
}

// DecRef drops a reference and tears the object down when it was the last
// one. It reports whether the object was released.
func (h *Heap) DecRef(v Value) bool {
	if h.tearingDown {
		return false
	}
	c := h.cell(v)
	if c == nil || c.refs <= 0 {
		return false
	}
	c.refs--
	if c.refs > 0 {
		return false
	}
	idx, _ := v.handle()
	h.release(idx)
	return true
}

// RefCount returns the current count, or 0 for a stale handle.
func (h *Heap) RefCount(v Value) int {
	if c := h.cell(v); c != nil && c.refs > 0 {
		return int(c.refs)
	}
	return 0
}

// Live returns the number of objects in the arena.
func (h *Heap) Live() int { return h.live }

// release runs the two teardown phases on one object and frees its cell.
func (h *Heap) release(idx uint32) {
	c := &h.cells[idx]
	obj := c.obj
	c.refs = refDying
	obj.finalize(h)

	cls := obj.class
	size := obj.accounted
	shell := obj.destruct()

	c.obj = nil
	c.refs = 0
	c.gen++
	h.freeIdx = append(h.freeIdx, idx)
	h.live--

	if cls != nil {
		cls.Memory.release(size)
		cls.recycle(shell)
	}
}

// Teardown releases every live object. All objects are finalized before any
// is destructed, so cycles between them are dropped without ordering
// concerns. It returns the number of objects released.
func (h *Heap) Teardown() int {
	h.tearingDown = true
	defer func() { h.tearingDown = false }()

	for i := range h.cells {
		c := &h.cells[i]
		if c.obj != nil {
			c.refs = refDying
			c.obj.finalize(h)
		}
	}

	n := 0
	h.freeIdx = h.freeIdx[:0]
	for i := range h.cells {
		c := &h.cells[i]
		if c.obj != nil {
			cls := c.obj.class
			size := c.obj.accounted
			shell := c.obj.destruct()
			if cls != nil {
				cls.Memory.release(size)
				cls.recycle(shell)
			}
			c.obj = nil
			c.gen++
			n++
		}
		c.refs = 0
		h.freeIdx = append(h.freeIdx, uint32(i))
	}
	h.live = 0
	return n
}
