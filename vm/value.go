package vm

import (
	"math"
)

// Value represents a script value using NaN-boxing.
//
// All values are 64-bit IEEE 754 doubles. Non-number values are encoded in
// the quiet-NaN space with tag bits selecting the kind:
//   - Number: native IEEE 754 double
//   - Int: quiet NaN + tagInt + 48-bit signed payload
//   - Handle: quiet NaN + tagHandle + generation(16) + arena index(32)
//   - Special: quiet NaN + tagSpecial + null/undefined/true/false/absent
//   - String: quiet NaN + tagString + interned name ID
//   - Class: quiet NaN + tagClass + class ID
//   - Prototype: quiet NaN + tagProto + ID of the class owning the prototype
//
// Heap values are never raw pointers; a handle is only meaningful against
// the Heap of the worker that allocated it. Strings built at run time are
// heap strings, not interned ones: see Worker.NewString.
type Value uint64

const (
	nanBits     uint64 = 0x7FF8000000000000
	tagMask     uint64 = 0x0007000000000000
	payloadMask uint64 = 0x0000FFFFFFFFFFFF

	tagHandle  uint64 = 0x0001000000000000
	tagInt     uint64 = 0x0002000000000000
	tagSpecial uint64 = 0x0003000000000000
	tagString  uint64 = 0x0004000000000000
	tagClass   uint64 = 0x0005000000000000
	tagProto   uint64 = 0x0006000000000000

	intSignBit    uint64 = 0x0000800000000000
	intSignExtend uint64 = 0xFFFF000000000000

	handleIndexMask uint64 = 0x00000000FFFFFFFF
	handleGenShift         = 32
)

const (
	specialNull uint64 = iota
	specialUndefined
	specialTrue
	specialFalse
	specialAbsent
)

// Canonical singletons. Every worker shares these; they are never duplicated.
const (
	Null      Value = Value(nanBits | tagSpecial | specialNull)
	Undefined Value = Value(nanBits | tagSpecial | specialUndefined)
	True      Value = Value(nanBits | tagSpecial | specialTrue)
	False     Value = Value(nanBits | tagSpecial | specialFalse)

	// Absent is returned by lookups that found nothing. It is not a
	// script-visible value and must never be stored in a slot.
	Absent Value = Value(nanBits | tagSpecial | specialAbsent)
)

var canonicalNaN = Value(math.Float64bits(math.NaN()))

const (
	MaxInt int64 = (1 << 47) - 1
	MinInt int64 = -(1 << 47)
)

// ---------------------------------------------------------------------------
// Kind checks
// ---------------------------------------------------------------------------

// IsNumber returns true if v is a plain double.
func (v Value) IsNumber() bool {
	bits := uint64(v)
	if (bits & 0x7FF0000000000000) != 0x7FF0000000000000 {
		return true
	}
	if bits&0x000FFFFFFFFFFFFF == 0 {
		return true // +/-Inf
	}
	if (bits & nanBits) != nanBits {
		return true
	}
	return bits&tagMask == 0
}

func (v Value) hasTag(tag uint64) bool {
	return (uint64(v) & (nanBits | tagMask)) == (nanBits | tag)
}

// IsInt returns true if v is a boxed integer.
func (v Value) IsInt() bool { return v.hasTag(tagInt) }

// IsHandle returns true if v refers to a heap object.
func (v Value) IsHandle() bool { return v.hasTag(tagHandle) }

// IsString returns true if v is an interned string. Heap strings are
// handles; Worker.IsString recognizes both.
func (v Value) IsString() bool { return v.hasTag(tagString) }

// IsClass returns true if v is a first-class class value.
func (v Value) IsClass() bool { return v.hasTag(tagClass) }

// IsPrototype returns true if v designates a class's prototype object.
func (v Value) IsPrototype() bool { return v.hasTag(tagProto) }

func (v Value) IsNull() bool      { return v == Null }
func (v Value) IsUndefined() bool { return v == Undefined }
func (v Value) IsAbsent() bool    { return v == Absent }
func (v Value) IsBool() bool      { return v == True || v == False }

// IsNullish returns true for null and undefined.
func (v Value) IsNullish() bool { return v == Null || v == Undefined }

// ---------------------------------------------------------------------------
// Numbers
// ---------------------------------------------------------------------------

// Float64 returns v as a float64. Panics if v is not a number.
func (v Value) Float64() float64 {
	if !v.IsNumber() {
		panic("Value.Float64: not a number")
	}
	return math.Float64frombits(uint64(v))
}

// FromFloat64 creates a Value from a float64.
func FromFloat64(f float64) Value {
	if f != f {
		return canonicalNaN
	}
	return Value(math.Float64bits(f))
}

// Int returns v as an int64. Panics if v is not a boxed integer.
func (v Value) Int() int64 {
	if !v.IsInt() {
		panic("Value.Int: not an int")
	}
	payload := uint64(v) & payloadMask
	if (payload & intSignBit) != 0 {
		payload |= intSignExtend
	}
	return int64(payload)
}

// FromInt creates a Value from an int64. Out of range values become numbers.
func FromInt(n int64) Value {
	if n > MaxInt || n < MinInt {
		return FromFloat64(float64(n))
	}
	return Value(nanBits | tagInt | (uint64(n) & payloadMask))
}

// FromBool creates a Value from a bool.
func FromBool(b bool) Value {
	if b {
		return True
	}
	return False
}

// ---------------------------------------------------------------------------
// Handles, strings and classes
// ---------------------------------------------------------------------------

func fromHandle(index uint32, gen uint16) Value {
	return Value(nanBits | tagHandle | uint64(gen)<<handleGenShift | uint64(index))
}

func (v Value) handle() (index uint32, gen uint16) {
	if !v.IsHandle() {
		panic("Value.handle: not a handle")
	}
	p := uint64(v) & payloadMask
	return uint32(p & handleIndexMask), uint16(p >> handleGenShift)
}

// FromNameID creates a string value from an interned name.
func FromNameID(id NameID) Value {
	return Value(nanBits | tagString | uint64(id))
}

// NameID returns the interned name of a string value.
func (v Value) NameID() NameID {
	if !v.IsString() {
		panic("Value.NameID: not a string")
	}
	return NameID(uint64(v) & payloadMask)
}

func fromClassID(id ClassID) Value {
	return Value(nanBits | tagClass | uint64(id))
}

// ClassID returns the class ID of a class value.
func (v Value) ClassID() ClassID {
	if !v.IsClass() {
		panic("Value.ClassID: not a class")
	}
	return ClassID(uint64(v) & payloadMask)
}

func fromPrototypeOf(id ClassID) Value {
	return Value(nanBits | tagProto | uint64(id))
}

// PrototypeClassID returns the class whose prototype v designates.
func (v Value) PrototypeClassID() ClassID {
	if !v.IsPrototype() {
		panic("Value.PrototypeClassID: not a prototype")
	}
	return ClassID(uint64(v) & payloadMask)
}

// ---------------------------------------------------------------------------
// Truthiness
// ---------------------------------------------------------------------------

// IsTruthy follows script boolean conversion for values that do not need
// the name table. Strings are handled by Worker.ToBoolean.
func (v Value) IsTruthy() bool {
	switch {
	case v == True:
		return true
	case v.IsNullish(), v == False, v == Absent:
		return false
	case v.IsInt():
		return v.Int() != 0
	case v.IsNumber():
		f := v.Float64()
		return f != 0 && !math.IsNaN(f)
	}
	return true
}
