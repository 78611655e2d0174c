package vm

import "sync"

// shellFamily selects which of a class's two free lists a shell belongs to.
type shellFamily uint8

const (
	familyInstance shellFamily = iota // plain instances and native callables
	familyClosure                     // compiled closures
	numFamilies
)

// maxFreeListLen bounds how many shells a single list retains.
const maxFreeListLen = 256

// resetShell is an object whose every field has been cleared. Only
// Object.destruct produces one, so a free list cannot be handed an object
// that still carries state from its previous life.
type resetShell struct {
	obj    *Object
	family shellFamily
}

// freeList pools reset shells for one class and family. Classes are shared
// by all workers, so the list is mutex-guarded.
type freeList struct {
	mu     sync.Mutex
	shells []*Object
}

// put stores a shell. It reports false when the list is full.
func (fl *freeList) put(s resetShell) bool {
	invariant(s.obj != nil && s.obj.isReset(), "freeList.put", "shell was not reset")
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if len(fl.shells) >= maxFreeListLen {
		return false
	}
	fl.shells = append(fl.shells, s.obj)
	return true
}

// get returns a pooled shell, or nil.
func (fl *freeList) get() *Object {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	n := len(fl.shells)
	if n == 0 {
		return nil
	}
	obj := fl.shells[n-1]
	fl.shells[n-1] = nil
	fl.shells = fl.shells[:n-1]
	return obj
}

// Len returns the number of pooled shells.
func (fl *freeList) Len() int {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	return len(fl.shells)
}

func (fl *freeList) drain() {
	fl.mu.Lock()
	fl.shells = nil
	fl.mu.Unlock()
}
