package vm

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// Coerce converts v to an instance of c. The builtin primitive classes
// convert; object classes accept null, turn undefined into null, and
// otherwise require v to be an instance. Coercion is idempotent: a value
// it returns is accepted unchanged.
//
// When the boolean is false the result is v itself and stays borrowed.
// When it is true the result is a new value owned by the caller, such as
// the heap string a String coercion builds.
func (c *Class) Coerce(w *Worker, v Value) (Value, bool, error) {
	switch c.prim {
	case primNumber:
		if v.IsNumber() {
			return v, false, nil
		}
		return FromFloat64(w.ToNumber(v)), true, nil
	case primInt:
		if v.IsInt() && v.Int() == int64(int32(v.Int())) {
			return v, false, nil
		}
		return FromInt(int64(w.ToInt32(v))), true, nil
	case primUint:
		if v.IsInt() && v.Int() >= 0 && v.Int() <= math.MaxUint32 {
			return v, false, nil
		}
		return FromInt(int64(w.ToUint32(v))), true, nil
	case primString:
		switch {
		case v.IsNull(), w.IsString(v):
			return v, false, nil
		case v.IsUndefined():
			return Null, true, nil
		}
		return w.NewString(w.ToString(v)), true, nil
	case primBoolean:
		if v.IsBool() {
			return v, false, nil
		}
		return FromBool(w.ToBoolean(v)), true, nil
	}

	switch {
	case v.IsNull():
		return v, false, nil
	case v.IsUndefined():
		return Null, true, nil
	case c == w.engine.ObjectClass:
		return v, false, nil
	}
	if vc := w.ClassOf(v); vc != nil && vc.IsSubClass(c, true) {
		return v, false, nil
	}
	return v, false, coercionError(w.TypeName(v), c.Name())
}

// CoerceForTemplate coerces v in place: a converted result replaces the
// caller's reference to v.
func (c *Class) CoerceForTemplate(w *Worker, v Value) (Value, error) {
	cv, converted, err := c.Coerce(w, v)
	if err != nil {
		return Undefined, err
	}
	if converted {
		w.Release(v)
	}
	return cv, nil
}

// CoerceElement coerces v to the element type of an applied template.
// Ownership follows CoerceForTemplate.
func (c *Class) CoerceElement(w *Worker, v Value) (Value, error) {
	invariant(c.template != nil && len(c.TypeParams) > 0, "Class.CoerceElement", "%s is not an applied template", c.Name())
	return c.TypeParams[0].CoerceForTemplate(w, v)
}

// ClassOf returns the runtime class of v, or nil for null and undefined.
// A class value's class is its metaclass.
func (w *Worker) ClassOf(v Value) *Class {
	e := w.engine
	switch {
	case v.IsInt():
		return e.IntClass
	case v.IsNumber():
		return e.NumberClass
	case v.IsString():
		return e.StringClass
	case v.IsBool():
		return e.BooleanClass
	case v.IsClass():
		if c := e.Classes.ClassOfValue(v); c != nil {
			return c.meta
		}
	case v.IsPrototype():
		return e.ObjectClass
	case v.IsHandle():
		if obj := w.heap.lookup(v); obj != nil {
			return obj.class
		}
	}
	return nil
}

// TypeName describes v for error messages.
func (w *Worker) TypeName(v Value) string {
	switch {
	case v.IsNull():
		return "null"
	case v.IsUndefined():
		return "undefined"
	}
	if c := w.ClassOf(v); c != nil {
		return c.Name()
	}
	return "?"
}

// ---------------------------------------------------------------------------
// Primitive conversions
// ---------------------------------------------------------------------------

// ToNumber converts v to a double.
func (w *Worker) ToNumber(v Value) float64 {
	switch {
	case v.IsInt():
		return float64(v.Int())
	case v.IsNumber():
		return v.Float64()
	case v == True:
		return 1
	case v == False, v.IsNull():
		return 0
	case v.IsString():
		return stringToNumber(w.engine.Names.Name(v.NameID()))
	}
	if s, ok := w.heapString(v); ok {
		return stringToNumber(s)
	}
	return math.NaN()
}

func stringToNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		n, err := strconv.ParseUint(s[2:], 16, 64)
		if err != nil {
			return math.NaN()
		}
		return float64(n)
	}
	switch s {
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}
	lower := strings.ToLower(s)
	if strings.Contains(lower, "inf") || strings.Contains(lower, "nan") {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return math.NaN()
	}
	return f
}

// ToInt32 converts v with modular 32-bit wraparound.
func (w *Worker) ToInt32(v Value) int32 {
	if v.IsInt() {
		return int32(v.Int())
	}
	return int32(toUint32(w.ToNumber(v)))
}

// ToUint32 converts v with modular 32-bit wraparound.
func (w *Worker) ToUint32(v Value) uint32 {
	if v.IsInt() {
		return uint32(v.Int())
	}
	return toUint32(w.ToNumber(v))
}

func toUint32(f float64) uint32 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	f = math.Trunc(f)
	f = math.Mod(f, 1<<32)
	if f < 0 {
		f += 1 << 32
	}
	return uint32(f)
}

// ToBoolean converts v to a bool; the empty string is false.
func (w *Worker) ToBoolean(v Value) bool {
	if v.IsString() {
		return v.NameID() != EmptyName
	}
	if s, ok := w.heapString(v); ok {
		return s != ""
	}
	return v.IsTruthy()
}

// ToString converts v to its string form.
func (w *Worker) ToString(v Value) string {
	switch {
	case v.IsString():
		return w.engine.Names.Name(v.NameID())
	case v.IsInt():
		return strconv.FormatInt(v.Int(), 10)
	case v.IsNumber():
		return numberToString(v.Float64())
	case v == True:
		return "true"
	case v == False:
		return "false"
	case v.IsNull():
		return "null"
	case v.IsUndefined():
		return "undefined"
	case v.IsClass():
		if c := w.engine.Classes.ClassOfValue(v); c != nil {
			return "[class " + w.engine.Names.Name(c.QName.Name) + "]"
		}
	case v.IsPrototype():
		return "[object Object]"
	case v.IsHandle():
		if s, ok := w.heapString(v); ok {
			return s
		}
		if obj := w.heap.lookup(v); obj != nil {
			if obj.fn != nil {
				return "function Function() {}"
			}
			return "[object " + w.engine.Names.Name(obj.class.QName.Name) + "]"
		}
	}
	return ""
}

func numberToString(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == math.Trunc(f) && math.Abs(f) < 1e21:
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
