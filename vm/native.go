package vm

// Arity-specialized native wrappers. Missing arguments read as undefined,
// extra arguments are ignored.

// Native0Func is a native taking no arguments.
type Native0Func func(w *Worker, receiver Value) (Value, error)

// Native1Func is a native taking one argument.
type Native1Func func(w *Worker, receiver, arg1 Value) (Value, error)

// Native2Func is a native taking two arguments.
type Native2Func func(w *Worker, receiver, arg1, arg2 Value) (Value, error)

func argAt(args []Value, i int) Value {
	if i < len(args) {
		return args[i]
	}
	return Undefined
}

// Native0 wraps a zero-argument native.
func Native0(name string, ret Type, fn Native0Func) *Callable {
	return NewNative(name, 0, ret, func(w *Worker, receiver Value, _ []Value) (Value, error) {
		return fn(w, receiver)
	})
}

// Native1 wraps a one-argument native.
func Native1(name string, ret Type, fn Native1Func) *Callable {
	return NewNative(name, 1, ret, func(w *Worker, receiver Value, args []Value) (Value, error) {
		return fn(w, receiver, argAt(args, 0))
	})
}

// Native2 wraps a two-argument native.
func Native2(name string, ret Type, fn Native2Func) *Callable {
	return NewNative(name, 2, ret, func(w *Worker, receiver Value, args []Value) (Value, error) {
		return fn(w, receiver, argAt(args, 0), argAt(args, 1))
	})
}

// NativeN wraps a native with any arity; it sees the raw argument slice.
func NativeN(name string, arity int, ret Type, fn NativeFunc) *Callable {
	return NewNative(name, arity, ret, fn)
}
