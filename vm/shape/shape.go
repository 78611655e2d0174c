// Package shape describes the structure of classes and callables for
// diagnostics: which slots a class lays out, which dispatch ids its
// methods occupy, how a callable is represented. Shapes are plain data
// and travel as canonical CBOR.
package shape

// ClassFlags mirror the class attributes that affect lookup and reuse.
type ClassFlags uint8

const (
	FlagFinal ClassFlags = 1 << iota
	FlagSealed
	FlagInterface
	FlagReusable
	FlagAbstract
	FlagBuiltin
)

// Has reports whether every flag in mask is set.
func (f ClassFlags) Has(mask ClassFlags) bool { return f&mask == mask }

func (f ClassFlags) String() string {
	names := []struct {
		flag ClassFlags
		name string
	}{
		{FlagFinal, "final"},
		{FlagSealed, "sealed"},
		{FlagInterface, "interface"},
		{FlagReusable, "reusable"},
		{FlagAbstract, "abstract"},
		{FlagBuiltin, "builtin"},
	}
	s := ""
	for _, n := range names {
		if f.Has(n.flag) {
			if s != "" {
				s += ","
			}
			s += n.name
		}
	}
	if s == "" {
		return "dynamic"
	}
	return s
}

// ClassShape is the layout of one class.
type ClassShape struct {
	Name        string        `cbor:"1,keyasint"`
	Super       string        `cbor:"2,keyasint,omitempty"`
	Flags       ClassFlags    `cbor:"3,keyasint"`
	Slots       []SlotShape   `cbor:"4,keyasint,omitempty"`
	Methods     []MethodShape `cbor:"5,keyasint,omitempty"`
	Statics     []string      `cbor:"6,keyasint,omitempty"`
	Interfaces  []string      `cbor:"7,keyasint,omitempty"`
	TypeParams  []string      `cbor:"8,keyasint,omitempty"`
	LiveBytes   int64         `cbor:"9,keyasint,omitempty"`
	LiveObjects int64         `cbor:"10,keyasint,omitempty"`
}

// SlotShape is one instance slot.
type SlotShape struct {
	Index int    `cbor:"1,keyasint"`
	Name  string `cbor:"2,keyasint"`
	Type  string `cbor:"3,keyasint"`
	Const bool   `cbor:"4,keyasint,omitempty"`
	Owner string `cbor:"5,keyasint,omitempty"`
}

// MethodShape is one dispatch table entry.
type MethodShape struct {
	DispID   int            `cbor:"1,keyasint"`
	Name     string         `cbor:"2,keyasint"`
	Kind     string         `cbor:"3,keyasint"`
	Final    bool           `cbor:"4,keyasint,omitempty"`
	Owner    string         `cbor:"5,keyasint,omitempty"`
	Callable *FunctionShape `cbor:"6,keyasint,omitempty"`
}

// FunctionShape describes a callable's representation.
type FunctionShape struct {
	Name       string `cbor:"1,keyasint"`
	Kind       string `cbor:"2,keyasint"`
	Arity      int    `cbor:"3,keyasint"`
	ReturnType string `cbor:"4,keyasint,omitempty"`
	Static     bool   `cbor:"5,keyasint,omitempty"`
	Cloned     bool   `cbor:"6,keyasint,omitempty"`
	Bound      bool   `cbor:"7,keyasint,omitempty"`
	Installed  bool   `cbor:"8,keyasint,omitempty"` // compiled code present
	Calls      int64  `cbor:"9,keyasint,omitempty"` // interpreted calls
	ScopeDepth int    `cbor:"10,keyasint,omitempty"`
	Registers  int    `cbor:"11,keyasint,omitempty"`
	Actions    int    `cbor:"12,keyasint,omitempty"`
}

// EngineShape is a snapshot of every registered class.
type EngineShape struct {
	Classes []ClassShape `cbor:"1,keyasint"`
	Workers int          `cbor:"2,keyasint,omitempty"`
}

// Class returns the shape named name, or nil.
func (s *EngineShape) Class(name string) *ClassShape {
	for i := range s.Classes {
		if s.Classes[i].Name == name {
			return &s.Classes[i]
		}
	}
	return nil
}
