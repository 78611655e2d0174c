package vm

import (
	"fmt"

	"github.com/google/uuid"
)

// Worker is an isolated execution context: its own heap, global object
// and call depth. A worker is driven by one goroutine at a time; it shares
// only engine-level tables with other workers.
type Worker struct {
	ID     uuid.UUID
	engine *Engine
	heap   *Heap
	global Value
	depth  int
	closed bool
}

// NewWorker creates a worker with a fresh global object.
func (e *Engine) NewWorker() (*Worker, error) {
	if e.closing.Load() {
		return nil, ErrEngineClosed
	}
	w := &Worker{ID: uuid.New(), engine: e, heap: NewHeap()}
	g, err := e.ObjectClass.Construct(w, nil, true)
	if err != nil {
		return nil, fmt.Errorf("worker %s: global object: %w", w.ID, err)
	}
	w.global = g

	e.workersMu.Lock()
	e.workers[w.ID] = w
	e.workersMu.Unlock()
	log.Debugf("worker %s started", w.ID)
	return w, nil
}

// Engine returns the engine the worker belongs to.
func (w *Worker) Engine() *Engine { return w.engine }

// Heap returns the worker's object arena.
func (w *Worker) Heap() *Heap { return w.heap }

// Global returns the worker's global object.
func (w *Worker) Global() Value { return w.global }

// Depth returns the current call depth.
func (w *Worker) Depth() int { return w.depth }

// Object returns the object behind a handle.
func (w *Worker) Object(v Value) (*Object, error) { return w.heap.Get(v) }

// adopt places a freshly allocated object on the heap and charges its
// class's memory account.
func (w *Worker) adopt(obj *Object) Value {
	v := w.heap.alloc(obj)
	if obj.class != nil && obj.class.Memory != nil {
		obj.accounted = objectSize(obj)
		obj.class.Memory.charge(obj.accounted)
	}
	return v
}

// Close releases the worker's objects and removes it from the engine.
func (w *Worker) Close() error {
	if !w.engine.removeWorker(w) {
		return nil
	}
	return w.close()
}

func (w *Worker) close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	var err error
	if w.depth != 0 {
		err = fmt.Errorf("worker %s closed at call depth %d", w.ID, w.depth)
	}
	w.heap.DecRef(w.global)
	w.global = Undefined
	n := w.heap.Teardown()
	log.Debugf("worker %s closed, %d objects released at teardown", w.ID, n)
	return err
}
