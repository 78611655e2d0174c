package vm

// Strings come in two representations. Names and literals are interned in
// the engine's NameTable and live as long as the engine. Text built at run
// time (coercions, toString results) is a heap string: an object of the
// String class owned by one worker and released like any other heap value,
// so script strings never grow the process-wide table.

// NewString places s on the worker heap. The caller owns the reference.
func (w *Worker) NewString(s string) Value {
	sc := w.engine.StringClass
	obj := sc.allocate(familyInstance, 0)
	obj.str = s
	obj.constructed = true
	obj.linked = true
	return w.adopt(obj)
}

// IsString reports whether v is a string of either representation.
func (w *Worker) IsString(v Value) bool {
	return v.IsString() || w.isHeapString(v)
}

func (w *Worker) isHeapString(v Value) bool {
	_, ok := w.heapString(v)
	return ok
}

// heapString returns the text of a heap string.
func (w *Worker) heapString(v Value) (string, bool) {
	obj := w.heap.lookup(v)
	if obj == nil || obj.class != w.engine.StringClass || obj.fn != nil {
		return "", false
	}
	return obj.str, true
}

// StrictEquals compares two values the way script `===` does: numbers by
// value, strings by content whatever their representation, everything
// else by identity.
func (w *Worker) StrictEquals(a, b Value) bool {
	if a == b {
		return !(a.IsNumber() && a == canonicalNaN)
	}
	switch {
	case isNumeric(a) && isNumeric(b):
		return w.ToNumber(a) == w.ToNumber(b)
	case w.IsString(a) && w.IsString(b):
		return w.ToString(a) == w.ToString(b)
	}
	return false
}

func isNumeric(v Value) bool { return v.IsInt() || v.IsNumber() }
