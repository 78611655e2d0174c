package vm

import (
	"math"
	"unicode/utf16"
)

// bootstrap creates the builtin classes. Object comes first and has no
// metaclass until Class exists; Class is then made its own metaclass.
// Subclasses copy their super's dispatch table when defined, so Object's
// methods go in before any other class exists.
func (e *Engine) bootstrap() {
	e.names.this = e.Names.Intern("this")
	e.names.arguments = e.Names.Intern("arguments")
	e.names.super = e.Names.Intern("super")
	e.names.length = e.Names.Intern("length")
	e.names.prototype = e.Names.Intern("prototype")
	e.names.constructor = e.Names.Intern("constructor")

	e.ObjectClass = e.builtinClass("Object", nil)
	e.ObjectClass.Sealed = false
	e.installObjectMethods()

	e.ClassClass = e.builtinClass("Class", e.ObjectClass)
	e.ClassClass.Final = true
	e.ClassClass.meta = e.ClassClass
	e.ObjectClass.meta = e.ClassClass

	e.FunctionClass = e.builtinClass("Function", e.ObjectClass)
	e.FunctionClass.Sealed = false
	e.FunctionClass.Reusable = e.opts.ReusableFunctions

	e.NumberClass = e.primClass("Number", primNumber)
	e.IntClass = e.primClass("int", primInt)
	e.UintClass = e.primClass("uint", primUint)
	e.StringClass = e.primClass("String", primString)
	e.BooleanClass = e.primClass("Boolean", primBoolean)

	e.installFunctionMethods()
	e.installPrimitiveMembers()
}

func (e *Engine) builtinClass(name string, super *Class) *Class {
	c, err := e.DefineClass(e.Public(name), super)
	invariant(err == nil, "Engine.bootstrap", "defining %s: %v", name, err)
	c.builtin = true
	return c
}

func (e *Engine) primClass(name string, kind primKind) *Class {
	c := e.builtinClass(name, e.ObjectClass)
	c.Final = true
	c.prim = kind
	return c
}

func (e *Engine) installObjectMethods() {
	oc := e.ObjectClass
	oc.AddMethod(e.Public("toString"), Native0("toString", nil, func(w *Worker, this Value) (Value, error) {
		if w.IsString(this) {
			return w.Retain(this), nil
		}
		return w.NewString(w.ToString(this)), nil
	}), false)

	oc.AddMethod(e.Public("hasOwnProperty"), Native1("hasOwnProperty", nil, func(w *Worker, this, name Value) (Value, error) {
		obj := w.heap.lookup(this)
		if obj == nil {
			return False, nil
		}
		id, ok := w.engine.Names.Lookup(w.ToString(name))
		if !ok {
			// A name nobody interned cannot be a property.
			return False, nil
		}
		mn := PublicName(id)
		if t := obj.class.findTrait(mn); t != nil && (t.Kind == TraitSlot || t.Kind == TraitConst) {
			return True, nil
		}
		_, ok = obj.props.Get(mn.Name)
		return FromBool(ok), nil
	}), false)
}

func (e *Engine) installFunctionMethods() {
	fc := e.FunctionClass
	fc.AddMethod(e.Public("call"), NativeN("call", 1, nil, func(w *Worker, this Value, args []Value) (Value, error) {
		f := w.CallableOf(this)
		if f == nil {
			return Undefined, &ScriptError{Kind: TypeError, ID: errNotAFunction, Msg: "call on a non-function", Err: ErrNotCallable}
		}
		var rest []Value
		if len(args) > 1 {
			rest = args[1:]
		}
		return w.Call(f, argAt(args, 0), rest)
	}), true)

	fc.AddGetter(e.Public("length"), Native0("length", e.IntClass, func(w *Worker, this Value) (Value, error) {
		if f := w.CallableOf(this); f != nil {
			return FromInt(int64(f.Arity)), nil
		}
		return FromInt(0), nil
	}))

	fc.AddGetter(e.Public("prototype"), Native0("prototype", nil, func(w *Worker, this Value) (Value, error) {
		p, err := w.FunctionPrototype(this)
		if err != nil {
			return Undefined, err
		}
		return w.Retain(p), nil
	}))
	fc.AddSetter(e.Public("prototype"), Native1("prototype", VoidType, func(w *Worker, this, p Value) (Value, error) {
		return Undefined, w.SetFunctionPrototype(this, p)
	}))
}

func (e *Engine) installPrimitiveMembers() {
	e.StringClass.AddGetter(e.Public("length"), Native0("length", e.IntClass, func(w *Worker, this Value) (Value, error) {
		s := w.ToString(this)
		return FromInt(int64(len(utf16.Encode([]rune(s))))), nil
	}))

	e.NumberClass.AddStaticConst(e.Public("NaN"), canonicalNaN)
	e.NumberClass.AddStaticConst(e.Public("MAX_VALUE"), FromFloat64(math.MaxFloat64))
	e.NumberClass.AddStaticConst(e.Public("POSITIVE_INFINITY"), FromFloat64(math.Inf(1)))
	e.NumberClass.AddStaticConst(e.Public("NEGATIVE_INFINITY"), FromFloat64(math.Inf(-1)))
	e.IntClass.AddStaticConst(e.Public("MAX_VALUE"), FromInt(math.MaxInt32))
	e.IntClass.AddStaticConst(e.Public("MIN_VALUE"), FromInt(math.MinInt32))
	e.UintClass.AddStaticConst(e.Public("MAX_VALUE"), FromInt(math.MaxUint32))
	e.UintClass.AddStaticConst(e.Public("MIN_VALUE"), FromInt(0))
}
