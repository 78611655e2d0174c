package vm

// TraitKind distinguishes declared properties.
type TraitKind uint8

const (
	TraitSlot TraitKind = iota
	TraitConst
	TraitMethod
	TraitAccessor
)

func (k TraitKind) String() string {
	switch k {
	case TraitSlot:
		return "slot"
	case TraitConst:
		return "const"
	case TraitMethod:
		return "method"
	case TraitAccessor:
		return "accessor"
	}
	return "?"
}

// Trait is a declared property whose storage is fixed by a class
// definition.
//
// Slot and const traits live in the instance's slot vector at Slot. Method
// and accessor traits are borrowed: stored once on the class and shared by
// every instance, with Slot holding the dispatch index.
type Trait struct {
	Name     QName
	Kind     TraitKind
	Slot     int
	Type     Type
	TypeName Multiname
	Final    bool
	Value    Value     // default value for slots, fixed value for borrowed consts
	Method   *Callable // TraitMethod
	Getter   *Callable // TraitAccessor
	Setter   *Callable // TraitAccessor
	Owner    *Class
}

// overridable reports whether a subclass may replace this trait, which
// makes it unsafe to early-bind through a non-final static type.
func (t *Trait) overridable() bool {
	switch t.Kind {
	case TraitSlot, TraitConst:
		return false
	}
	if t.Final {
		return false
	}
	return t.Owner == nil || !t.Owner.Final
}

// TraitTable maps names to the traits declared under them. The same local
// name can appear under several namespaces.
type TraitTable struct {
	byName map[NameID][]*Trait
	order  []*Trait
}

// NewTraitTable creates an empty table.
func NewTraitTable() *TraitTable {
	return &TraitTable{byName: make(map[NameID][]*Trait)}
}

// Add declares a trait, replacing any earlier trait with the same QName.
func (tt *TraitTable) Add(t *Trait) {
	list := tt.byName[t.Name.Name]
	for i, existing := range list {
		if existing.Name == t.Name {
			list[i] = t
			for j, o := range tt.order {
				if o == existing {
					tt.order[j] = t
				}
			}
			return
		}
	}
	tt.byName[t.Name.Name] = append(list, t)
	tt.order = append(tt.order, t)
}

// Lookup finds the first trait addressed by mn.
func (tt *TraitTable) Lookup(mn Multiname) *Trait {
	if tt == nil {
		return nil
	}
	for _, t := range tt.byName[mn.Name] {
		if mn.Matches(t.Name) {
			return t
		}
	}
	return nil
}

// LookupQName finds the trait declared under exactly q.
func (tt *TraitTable) LookupQName(q QName) *Trait {
	if tt == nil {
		return nil
	}
	for _, t := range tt.byName[q.Name] {
		if t.Name == q {
			return t
		}
	}
	return nil
}

// LookupAnyNS finds a trait by local name regardless of namespace.
func (tt *TraitTable) LookupAnyNS(name NameID) *Trait {
	if tt == nil {
		return nil
	}
	if list := tt.byName[name]; len(list) > 0 {
		return list[0]
	}
	return nil
}

// All returns traits in declaration order.
func (tt *TraitTable) All() []*Trait {
	if tt == nil {
		return nil
	}
	return tt.order
}

// Len returns the number of declared traits.
func (tt *TraitTable) Len() int {
	if tt == nil {
		return 0
	}
	return len(tt.order)
}

func (tt *TraitTable) clear() {
	tt.byName = make(map[NameID][]*Trait)
	tt.order = nil
}
