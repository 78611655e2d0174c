package shape

import "github.com/chazu/avmcore/vm"

// DescribeClass captures the current layout of c.
func DescribeClass(c *vm.Class) ClassShape {
	e := c.Engine()
	s := ClassShape{
		Name:        c.Name(),
		Flags:       classFlags(c),
		LiveBytes:   c.Memory.Bytes(),
		LiveObjects: c.Memory.Live(),
	}
	if c.Super != nil {
		s.Super = c.Super.Name()
	}

	for i := 0; i < c.NumSlots(); i++ {
		t := c.SlotTrait(i)
		s.Slots = append(s.Slots, SlotShape{
			Index: i,
			Name:  e.QualifiedName(t.Name),
			Type:  t.Type.Name(),
			Const: t.Kind == vm.TraitConst,
			Owner: ownerName(t, c),
		})
	}

	for id, t := range c.Methods() {
		m := MethodShape{
			DispID: id,
			Name:   e.QualifiedName(t.Name),
			Kind:   methodKind(t),
			Final:  t.Final,
			Owner:  ownerName(t, c),
		}
		switch {
		case t.Method != nil:
			m.Callable = DescribeCallable(t.Method)
		case t.Getter != nil:
			m.Callable = DescribeCallable(t.Getter)
		case t.Setter != nil:
			m.Callable = DescribeCallable(t.Setter)
		}
		s.Methods = append(s.Methods, m)
	}

	for _, t := range c.Statics() {
		s.Statics = append(s.Statics, e.QualifiedName(t.Name))
	}
	ifaces, _ := c.GetInterfaces()
	for _, i := range ifaces {
		s.Interfaces = append(s.Interfaces, i.Name())
	}
	for _, p := range c.TypeParams {
		s.TypeParams = append(s.TypeParams, p.Name())
	}
	return s
}

// DescribeCallable captures how f is represented.
func DescribeCallable(f *vm.Callable) *FunctionShape {
	s := &FunctionShape{
		Name:       f.Name,
		Kind:       f.Kind.String(),
		Arity:      f.Arity,
		ReturnType: f.ReturnType().Name(),
		Static:     f.IsStatic,
		Cloned:     f.IsCloned(),
		ScopeDepth: f.Scope().Len(),
	}
	_, s.Bound = f.Receiver()
	if mi := f.Method(); mi != nil {
		s.Installed = mi.Code() != nil
		s.Calls = mi.Calls()
	}
	if code := f.Legacy(); code != nil {
		s.Registers = code.NumRegisters
		s.Actions = len(code.Actions)
	}
	return s
}

// DescribeEngine captures every class registered with e.
func DescribeEngine(e *vm.Engine) *EngineShape {
	classes := e.Classes.All()
	s := &EngineShape{
		Classes: make([]ClassShape, 0, len(classes)),
		Workers: len(e.Workers()),
	}
	for _, c := range classes {
		s.Classes = append(s.Classes, DescribeClass(c))
	}
	return s
}

func classFlags(c *vm.Class) ClassFlags {
	var f ClassFlags
	if c.Final {
		f |= FlagFinal
	}
	if c.Sealed {
		f |= FlagSealed
	}
	if c.Interface {
		f |= FlagInterface
	}
	if c.Reusable {
		f |= FlagReusable
	}
	if c.Abstract {
		f |= FlagAbstract
	}
	if c.IsBuiltin() {
		f |= FlagBuiltin
	}
	return f
}

func methodKind(t *vm.Trait) string {
	if t.Kind != vm.TraitAccessor {
		return t.Kind.String()
	}
	switch {
	case t.Getter != nil && t.Setter != nil:
		return "accessor"
	case t.Getter != nil:
		return "getter"
	}
	return "setter"
}

// ownerName is empty when the trait is declared by c itself.
func ownerName(t *vm.Trait, c *vm.Class) string {
	if t.Owner == nil || t.Owner == c {
		return ""
	}
	return t.Owner.Name()
}
