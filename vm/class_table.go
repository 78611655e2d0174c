package vm

import (
	"fmt"
	"slices"
	"sync"
)

// ClassTable is the engine-owned registry of classes. It keeps every class
// alive until shutdown and hands out stable IDs; class values carry the ID
// rather than a pointer.
type ClassTable struct {
	mu     sync.RWMutex
	byID   []*Class // index 0 is reserved
	byName map[QName]*Class
}

// NewClassTable creates an empty class table.
func NewClassTable() *ClassTable {
	return &ClassTable{
		byID:   make([]*Class, 1, 64),
		byName: make(map[QName]*Class),
	}
}

// register assigns an ID to c. A second class under the same name is
// rejected.
func (ct *ClassTable) register(c *Class) error {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	if existing, ok := ct.byName[c.QName]; ok {
		return fmt.Errorf("class %s already defined (id %d)", existing.Name(), existing.ID)
	}
	c.ID = ClassID(len(ct.byID))
	ct.byID = append(ct.byID, c)
	ct.byName[c.QName] = c
	return nil
}

// Get returns the class with the given ID, or nil.
func (ct *ClassTable) Get(id ClassID) *Class {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	if id == 0 || int(id) >= len(ct.byID) {
		return nil
	}
	return ct.byID[id]
}

// Lookup finds a class by qualified name.
func (ct *ClassTable) Lookup(q QName) *Class {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.byName[q]
}

// LookupMultiname finds the first class whose name matches mn, trying the
// namespaces in order.
func (ct *ClassTable) LookupMultiname(mn Multiname) *Class {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	if len(mn.NS) == 0 {
		return ct.byName[QName{Name: mn.Name, NS: PublicNS}]
	}
	for _, ns := range mn.NS {
		if c, ok := ct.byName[QName{Name: mn.Name, NS: ns}]; ok {
			return c
		}
	}
	return nil
}

// All returns every registered class in ID order.
func (ct *ClassTable) All() []*Class {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return slices.Clone(ct.byID[1:])
}

// Len returns the number of registered classes.
func (ct *ClassTable) Len() int {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return len(ct.byID) - 1
}

// ClassOfValue returns the class a class value designates, or nil.
func (ct *ClassTable) ClassOfValue(v Value) *Class {
	if !v.IsClass() {
		return nil
	}
	return ct.Get(v.ClassID())
}
