package vm

import "fmt"

// Call invokes f with the given receiver and arguments. A bound clone
// ignores receiver and uses its own. Every callable kind satisfies the
// same contract: receiver and arguments in, one value or an error out.
//
// Arguments are borrowed. The result is a reference owned by the caller,
// so code returning an existing heap value must Retain it first.
func (w *Worker) Call(f *Callable, receiver Value, args []Value) (Value, error) {
	if w.depth >= w.engine.opts.MaxRecursion {
		return Undefined, newScriptError(StackOverflowError, errStackOverflow, "stack overflow calling %s", f.Name)
	}
	w.depth++
	defer func() { w.depth-- }()

	if r, ok := f.Receiver(); ok {
		receiver = r
	}

	switch f.Kind {
	case NativeKind:
		res, err := f.native(w, receiver, args)
		if err != nil {
			return Undefined, err
		}
		return w.coerceResult(f, res)

	case CompiledKind:
		return w.callCompiled(f, receiver, args)

	case LegacyKind:
		var out Value = Undefined
		if err := CallLegacy(w, f, receiver, args, &out); err != nil {
			return Undefined, err
		}
		return out, nil
	}
	panic(&InvariantViolation{Op: "Worker.Call", Msg: fmt.Sprintf("unknown callable kind %d", f.Kind)})
}

// CallValue calls a function value.
func (w *Worker) CallValue(fn Value, receiver Value, args []Value) (Value, error) {
	f := w.CallableOf(fn)
	if f == nil {
		return Undefined, &ScriptError{Kind: TypeError, ID: errNotAFunction, Msg: "value is not a function", Err: ErrNotCallable}
	}
	return w.Call(f, receiver, args)
}

// CallableOf returns the callable behind a function value, or nil.
func (w *Worker) CallableOf(v Value) *Callable {
	if obj := w.heap.lookup(v); obj != nil {
		return obj.fn
	}
	return nil
}

// CallGetter invokes f as the getter of a property of target. Compiled
// closures that only forward a property of this skip the call and read it
// directly.
func (w *Worker) CallGetter(f *Callable, target Value) (Value, error) {
	if f.Kind == CompiledKind && f.method.SimpleGetter != nil {
		if r, ok := f.Receiver(); ok {
			target = r
		}
		v, err := w.GetProperty(target, *f.method.SimpleGetter)
		if err != nil {
			return Undefined, err
		}
		if v.IsAbsent() {
			v = Undefined
		}
		return w.coerceResult(f, v)
	}
	return w.Call(f, target, nil)
}

// callCompiled checks arity, coerces parameters, runs installed code or
// falls back to the interpreter, and coerces the result.
func (w *Worker) callCompiled(f *Callable, receiver Value, args []Value) (Value, error) {
	mi := f.method
	nparams := len(mi.ParamTypes)
	if len(args) < mi.requiredArgs() || (len(args) > nparams && !mi.NeedsRest) {
		return Undefined, newScriptError(ArgumentError, errArgumentCount,
			"argument count mismatch on %s: expected %d, got %d", f.Name, nparams, len(args))
	}

	params := make([]Value, nparams, max(nparams, len(args)))
	firstDefault := nparams - len(mi.Defaults)
	var converted []Value
	defer func() {
		for _, v := range converted {
			w.heap.DecRef(v)
		}
	}()
	for i, t := range mi.ParamTypes {
		var v Value
		if i < len(args) {
			v = args[i]
		} else {
			v = mi.Defaults[i-firstDefault]
		}
		if t != nil {
			cv, conv, err := t.Coerce(w, v)
			if err != nil {
				return Undefined, err
			}
			if conv {
				converted = append(converted, cv)
			}
			v = cv
		}
		params[i] = v
	}
	if len(args) > nparams {
		params = append(params, args[nparams:]...)
	}

	var res Value
	var err error
	if code := mi.Code(); code != nil {
		res, err = code(w, f, receiver, params)
	} else {
		w.engine.noteInterpreted(mi)
		interp := w.engine.Interpreter
		if interp == nil || !w.engine.opts.UseInterpreter {
			return Undefined, fmt.Errorf("call %s: no installed code and no interpreter: %w", f.Name, ErrNotCallable)
		}
		res, err = interp.Interpret(w, f, receiver, params)
	}
	if err != nil {
		return Undefined, err
	}
	return w.coerceResult(f, res)
}

func (w *Worker) coerceResult(f *Callable, res Value) (Value, error) {
	if res.IsAbsent() {
		res = Undefined
	}
	switch t := f.ReturnType(); t {
	case AnyType:
		return res, nil
	case VoidType:
		w.heap.DecRef(res)
		return Undefined, nil
	default:
		v, converted, err := t.Coerce(w, res)
		if err != nil || converted {
			w.heap.DecRef(res)
		}
		if err != nil {
			return Undefined, err
		}
		return v, nil
	}
}

// Interpreter runs compiled methods that have no installed code yet.
type Interpreter interface {
	Interpret(w *Worker, f *Callable, receiver Value, args []Value) (Value, error)
}

// ---------------------------------------------------------------------------
// new f()
// ---------------------------------------------------------------------------

// ConstructFunction implements `new f()` for a plain function value. The
// new object's prototype is f's prototype object, see FunctionPrototype.
// If f returns an object, that object is the result instead.
func (w *Worker) ConstructFunction(fn Value, args []Value) (Value, error) {
	f := w.CallableOf(fn)
	if f == nil {
		return Undefined, &ScriptError{Kind: TypeError, ID: errNotAFunction, Msg: "value is not a function", Err: ErrNotCallable}
	}
	if f.isCloned {
		return Undefined, newScriptError(ConstructionError, errNotConstructor, "bound method %s is not a constructor", f.Name)
	}

	p, err := w.FunctionPrototype(fn)
	if err != nil {
		return Undefined, err
	}
	oc := w.engine.ObjectClass
	obj := oc.allocate(familyInstance, 0)
	obj.class = oc
	v := w.adopt(obj)
	obj.proto = w.Retain(p)
	obj.linked = true

	res, err := w.Call(f, v, args)
	if err != nil {
		w.heap.DecRef(v)
		return Undefined, &ScriptError{Kind: ConstructionError, ID: errConstructorFailed, Msg: "constructor " + f.Name + " failed", Err: err}
	}
	obj.constructed = true
	switch {
	case res == v:
		w.heap.DecRef(res)
	case res.IsHandle():
		w.heap.DecRef(v)
		return res, nil
	}
	return v, nil
}
