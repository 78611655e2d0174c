package vm

import (
	"errors"
	"math"
	"testing"
)

// ---------------------------------------------------------------------------
// Primitive classes
// ---------------------------------------------------------------------------

func TestCoercePrimitives(t *testing.T) {
	e, w := newEngine(t)

	tests := []struct {
		name  string
		class *Class
		in    Value
		want  Value
		conv  bool
	}{
		{"number from number", e.NumberClass, FromFloat64(1.5), FromFloat64(1.5), false},
		{"number from int", e.NumberClass, FromInt(3), FromFloat64(3), true},
		{"number from true", e.NumberClass, True, FromFloat64(1), true},
		{"number from null", e.NumberClass, Null, FromFloat64(0), true},
		{"number from undefined", e.NumberClass, Undefined, canonicalNaN, true},
		{"number from string", e.NumberClass, str(e, " 12.5 "), FromFloat64(12.5), true},
		{"int from int", e.IntClass, FromInt(-7), FromInt(-7), false},
		{"int truncates", e.IntClass, FromFloat64(3.9), FromInt(3), true},
		{"int wraps", e.IntClass, FromFloat64(4294967297), FromInt(1), true},
		{"int from big int", e.IntClass, FromInt(1 << 40), FromInt(0), true},
		{"int from NaN", e.IntClass, canonicalNaN, FromInt(0), true},
		{"int from hex", e.IntClass, str(e, "0x1F"), FromInt(31), true},
		{"uint from -1", e.UintClass, FromInt(-1), FromInt(4294967295), true},
		{"uint keeps", e.UintClass, FromInt(42), FromInt(42), false},
		{"string keeps", e.StringClass, str(e, "a"), str(e, "a"), false},
		{"string from null", e.StringClass, Null, Null, false},
		{"string from undefined", e.StringClass, Undefined, Null, true},
		{"string from int", e.StringClass, FromInt(42), str(e, "42"), true},
		{"string from number", e.StringClass, FromFloat64(1.5), str(e, "1.5"), true},
		{"string from true", e.StringClass, True, str(e, "true"), true},
		{"boolean keeps", e.BooleanClass, False, False, false},
		{"boolean from empty", e.BooleanClass, str(e, ""), False, true},
		{"boolean from text", e.BooleanClass, str(e, "false"), True, true},
		{"boolean from zero", e.BooleanClass, FromInt(0), False, true},
		{"boolean from NaN", e.BooleanClass, canonicalNaN, False, true},
	}
	base := w.heap.Live()
	for _, tt := range tests {
		got, conv, err := tt.class.Coerce(w, tt.in)
		if err != nil {
			t.Errorf("%s: unexpected error %v", tt.name, err)
			continue
		}
		if !sameValue(w, got, tt.want) {
			t.Errorf("%s: Coerce = %s, want %s", tt.name, w.ToString(got), w.ToString(tt.want))
		}
		if conv != tt.conv {
			t.Errorf("%s: converted = %v, want %v", tt.name, conv, tt.conv)
		}
		if conv {
			w.Release(got)
		}
	}
	if n := w.heap.Live(); n != base {
		t.Errorf("live objects after coercions = %d, want %d", n, base)
	}
}

func TestCoerceIdempotent(t *testing.T) {
	e, w := newEngine(t)
	pt := definePoint(t, e)
	p := mustConstruct(t, w, pt, FromFloat64(1), FromFloat64(2))
	defer w.Release(p)

	inputs := []Value{
		Null, Undefined, True, False,
		FromInt(0), FromInt(-5), FromInt(1 << 40),
		FromFloat64(2.5), FromFloat64(-0.5), canonicalNaN, FromFloat64(math.Inf(1)),
		str(e, ""), str(e, "17"), str(e, "x"), p,
	}
	classes := []*Class{e.NumberClass, e.IntClass, e.UintClass, e.StringClass, e.BooleanClass, e.ObjectClass, pt}

	for _, c := range classes {
		for _, in := range inputs {
			once, conv1, err := c.Coerce(w, in)
			if err != nil {
				continue
			}
			twice, conv, err := c.Coerce(w, once)
			if err != nil {
				t.Errorf("%s: coercing %s twice failed: %v", c.Name(), w.ToString(in), err)
			} else if conv || twice != once {
				t.Errorf("%s: coerce(coerce(%s)) = %s, want %s unchanged", c.Name(), w.ToString(in), w.ToString(twice), w.ToString(once))
			}
			if conv1 {
				w.Release(once)
			}
		}
	}
}

// ---------------------------------------------------------------------------
// Object classes
// ---------------------------------------------------------------------------

func TestCoerceObjectClasses(t *testing.T) {
	e, w := newEngine(t)
	pt := definePoint(t, e)
	other := mustDefine(t, e, "Other", e.ObjectClass)
	p := mustConstruct(t, w, pt)
	defer w.Release(p)

	if v, conv, err := pt.Coerce(w, Null); err != nil || conv || v != Null {
		t.Errorf("Point(null) = %v, %v, %v", v, conv, err)
	}
	if v, conv, err := pt.Coerce(w, Undefined); err != nil || !conv || v != Null {
		t.Errorf("Point(undefined) = %v, %v, %v; want null", v, conv, err)
	}
	if v, conv, err := pt.Coerce(w, p); err != nil || conv || v != p {
		t.Errorf("Point(p) = %v, %v, %v", v, conv, err)
	}
	if _, _, err := e.ObjectClass.Coerce(w, FromInt(3)); err != nil {
		t.Errorf("Object(3) failed: %v", err)
	}

	_, _, err := other.Coerce(w, p)
	if !errors.Is(err, ErrTypeCoercion) {
		t.Fatalf("Other(p) err = %v, want ErrTypeCoercion", err)
	}
	if id := scriptErrorID(err); id != 1034 {
		t.Errorf("error ID = %d, want 1034", id)
	}
	if _, _, err := pt.Coerce(w, FromInt(1)); !errors.Is(err, ErrTypeCoercion) {
		t.Errorf("Point(1) err = %v, want ErrTypeCoercion", err)
	}
}

func TestClassOf(t *testing.T) {
	e, w := newEngine(t)
	pt := definePoint(t, e)
	p := mustConstruct(t, w, pt)
	defer w.Release(p)

	tests := []struct {
		v    Value
		want *Class
	}{
		{FromInt(1), e.IntClass},
		{FromFloat64(1.5), e.NumberClass},
		{str(e, "s"), e.StringClass},
		{True, e.BooleanClass},
		{p, pt},
		{pt.Value(), e.ClassClass},
		{e.ClassClass.Value(), e.ClassClass},
		{Null, nil},
		{Undefined, nil},
	}
	for _, tt := range tests {
		if got := w.ClassOf(tt.v); got != tt.want {
			t.Errorf("ClassOf(%s) = %v, want %v", w.ToString(tt.v), got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Conversions
// ---------------------------------------------------------------------------

func TestToNumberStrings(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"", 0},
		{"  ", 0},
		{"42", 42},
		{"-3.5", -3.5},
		{"1e3", 1000},
		{"0x10", 16},
		{"Infinity", math.Inf(1)},
		{"-Infinity", math.Inf(-1)},
		{"1e400", math.Inf(1)},
	}
	for _, tt := range tests {
		if got := stringToNumber(tt.in); got != tt.want {
			t.Errorf("stringToNumber(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	for _, bad := range []string{"abc", "inf", "NaN", "0xZZ", "1,5"} {
		if got := stringToNumber(bad); !math.IsNaN(got) {
			t.Errorf("stringToNumber(%q) = %v, want NaN", bad, got)
		}
	}
}

func TestToStringNumbers(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{1.5, "1.5"},
		{-2, "-2"},
		{1e21, "1e+21"},
		{math.NaN(), "NaN"},
		{math.Inf(1), "Infinity"},
		{math.Inf(-1), "-Infinity"},
	}
	for _, tt := range tests {
		if got := numberToString(tt.in); got != tt.want {
			t.Errorf("numberToString(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestToInt32Wraparound(t *testing.T) {
	_, w := newEngine(t)
	tests := []struct {
		in   float64
		want int32
	}{
		{2147483648, -2147483648},
		{-2147483649, 2147483647},
		{4294967296, 0},
		{-1.9, -1},
		{math.Inf(1), 0},
	}
	for _, tt := range tests {
		if got := w.ToInt32(FromFloat64(tt.in)); got != tt.want {
			t.Errorf("ToInt32(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
