package vm

import "sync"

// NameID identifies an interned string.
type NameID uint32

// NamespaceID identifies an interned namespace.
type NamespaceID uint32

// PublicNS is always the first interned namespace: the empty package namespace.
const PublicNS NamespaceID = 0

// EmptyName is always the first interned name.
const EmptyName NameID = 0

// ---------------------------------------------------------------------------
// NameTable: interned strings
// ---------------------------------------------------------------------------

// NameTable interns strings to stable IDs. It is shared by every worker of
// an engine. The table is append-only; reads take the read lock only.
type NameTable struct {
	mu     sync.RWMutex
	byName map[string]NameID
	byID   []string
}

// NewNameTable creates a name table with the empty string pre-interned.
func NewNameTable() *NameTable {
	nt := &NameTable{
		byName: make(map[string]NameID),
		byID:   make([]string, 0, 256),
	}
	nt.Intern("")
	return nt
}

// Intern returns the ID for a string, creating a new one if needed.
func (nt *NameTable) Intern(name string) NameID {
	nt.mu.RLock()
	if id, ok := nt.byName[name]; ok {
		nt.mu.RUnlock()
		return id
	}
	nt.mu.RUnlock()

	nt.mu.Lock()
	defer nt.mu.Unlock()

	// Double-check after acquiring write lock
	if id, ok := nt.byName[name]; ok {
		return id
	}
	id := NameID(len(nt.byID))
	nt.byName[name] = id
	nt.byID = append(nt.byID, name)
	return id
}

// Lookup returns the ID for a string without interning it.
func (nt *NameTable) Lookup(name string) (NameID, bool) {
	nt.mu.RLock()
	defer nt.mu.RUnlock()
	id, ok := nt.byName[name]
	return id, ok
}

// Name returns the string for an ID, or "" if invalid.
func (nt *NameTable) Name(id NameID) string {
	nt.mu.RLock()
	defer nt.mu.RUnlock()
	if int(id) >= len(nt.byID) {
		return ""
	}
	return nt.byID[id]
}

// Len returns the number of interned strings.
func (nt *NameTable) Len() int {
	nt.mu.RLock()
	defer nt.mu.RUnlock()
	return len(nt.byID)
}

// ---------------------------------------------------------------------------
// Namespaces
// ---------------------------------------------------------------------------

// NamespaceKind distinguishes namespace flavours.
type NamespaceKind uint8

const (
	NSPackage NamespaceKind = iota
	NSPackageInternal
	NSProtected
	NSStaticProtected
	NSPrivate
	NSExplicit
)

// Namespace is a (kind, uri) pair.
type Namespace struct {
	Kind NamespaceKind
	URI  NameID
}

// NamespaceTable interns namespaces to stable IDs.
type NamespaceTable struct {
	mu   sync.RWMutex
	byNS map[Namespace]NamespaceID
	byID []Namespace
}

// NewNamespaceTable creates a namespace table with PublicNS pre-interned.
func NewNamespaceTable() *NamespaceTable {
	t := &NamespaceTable{
		byNS: make(map[Namespace]NamespaceID),
		byID: make([]Namespace, 0, 64),
	}
	t.Intern(Namespace{Kind: NSPackage, URI: EmptyName})
	return t
}

// Intern returns the ID for a namespace, creating a new one if needed.
func (t *NamespaceTable) Intern(ns Namespace) NamespaceID {
	t.mu.RLock()
	if id, ok := t.byNS[ns]; ok {
		t.mu.RUnlock()
		return id
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.byNS[ns]; ok {
		return id
	}
	id := NamespaceID(len(t.byID))
	t.byNS[ns] = id
	t.byID = append(t.byID, ns)
	return id
}

// Get returns the namespace for an ID.
func (t *NamespaceTable) Get(id NamespaceID) (Namespace, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(id) >= len(t.byID) {
		return Namespace{}, false
	}
	return t.byID[id], true
}

// ---------------------------------------------------------------------------
// QName and Multiname
// ---------------------------------------------------------------------------

// QName is a name qualified by exactly one namespace.
type QName struct {
	Name NameID
	NS   NamespaceID
}

// Multiname is a name plus the namespace set it may be resolved in.
// An empty set means the public namespace only.
type Multiname struct {
	Name NameID
	NS   []NamespaceID
}

// PublicName builds a multiname that resolves in the public namespace.
func PublicName(name NameID) Multiname {
	return Multiname{Name: name}
}

// Matches reports whether q is addressed by this multiname.
func (mn Multiname) Matches(q QName) bool {
	if mn.Name != q.Name {
		return false
	}
	if len(mn.NS) == 0 {
		return q.NS == PublicNS
	}
	for _, ns := range mn.NS {
		if ns == q.NS {
			return true
		}
	}
	return false
}

// QName converts a single-namespace multiname.
func (mn Multiname) QName() QName {
	if len(mn.NS) == 0 {
		return QName{Name: mn.Name, NS: PublicNS}
	}
	return QName{Name: mn.Name, NS: mn.NS[0]}
}

// Multiname widens a QName to a one-element multiname.
func (q QName) Multiname() Multiname {
	if q.NS == PublicNS {
		return Multiname{Name: q.Name}
	}
	return Multiname{Name: q.Name, NS: []NamespaceID{q.NS}}
}
