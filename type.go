package pixfunc

import (
	"fmt"
	"math"
)

// TypeCode is the numeric family of a Type.
type TypeCode uint8

// Type codes.
const (
	IntCode TypeCode = iota
	UIntCode
	FloatCode
)

// Type is the element type of an expression or buffer.
type Type struct {
	Code TypeCode
	Bits uint8
}

// Supported types. Bool is a one-bit unsigned integer stored as a byte.
var (
	Int8    = Type{IntCode, 8}
	Int16   = Type{IntCode, 16}
	Int32   = Type{IntCode, 32}
	Int64   = Type{IntCode, 64}
	UInt8   = Type{UIntCode, 8}
	UInt16  = Type{UIntCode, 16}
	UInt32  = Type{UIntCode, 32}
	UInt64  = Type{UIntCode, 64}
	Float32 = Type{FloatCode, 32}
	Float64 = Type{FloatCode, 64}
	Bool    = Type{UIntCode, 1}
)

// IsBool reports whether t is Bool.
func (t Type) IsBool() bool { return t == Bool }

// IsFloat reports whether t is a floating point type.
func (t Type) IsFloat() bool { return t.Code == FloatCode }

// IsInt reports whether t is a signed integer type.
func (t Type) IsInt() bool { return t.Code == IntCode }

// IsUInt reports whether t is an unsigned integer type, Bool included.
func (t Type) IsUInt() bool { return t.Code == UIntCode }

// Bytes returns the storage size of one element.
func (t Type) Bytes() int {
	if t.Bits < 8 {
		return 1
	}
	return int(t.Bits) / 8
}

// valid reports whether t is one of the supported types.
func (t Type) valid() bool {
	switch t.Code {
	case IntCode:
		return t.Bits == 8 || t.Bits == 16 || t.Bits == 32 || t.Bits == 64
	case UIntCode:
		return t.Bits == 1 || t.Bits == 8 || t.Bits == 16 || t.Bits == 32 || t.Bits == 64
	case FloatCode:
		return t.Bits == 32 || t.Bits == 64
	}
	return false
}

func (t Type) String() string {
	switch {
	case t.IsBool():
		return "bool"
	case t.Code == IntCode:
		return fmt.Sprintf("int%d", t.Bits)
	case t.Code == UIntCode:
		return fmt.Sprintf("uint%d", t.Bits)
	case t.Code == FloatCode:
		return fmt.Sprintf("float%d", t.Bits)
	}
	return fmt.Sprintf("type(%d, %d)", t.Code, t.Bits)
}

// MinValue returns the smallest representable value as a float64.
func (t Type) MinValue() float64 {
	switch t.Code {
	case IntCode:
		return -math.Ldexp(1, int(t.Bits)-1)
	case UIntCode:
		return 0
	}
	if t.Bits == 32 {
		return -math.MaxFloat32
	}
	return -math.MaxFloat64
}

// MaxValue returns the largest representable value as a float64.
func (t Type) MaxValue() float64 {
	switch t.Code {
	case IntCode:
		return math.Ldexp(1, int(t.Bits)-1) - 1
	case UIntCode:
		return math.Ldexp(1, int(t.Bits)) - 1
	}
	if t.Bits == 32 {
		return math.MaxFloat32
	}
	return math.MaxFloat64
}

// wrap reduces v to the range of an integer type with two's complement
// wraparound. UInt64 values keep their bit pattern in the int64.
func (t Type) wrap(v int64) int64 {
	switch {
	case t.IsBool():
		if v != 0 {
			return 1
		}
		return 0
	case t.Bits >= 64:
		return v
	case t.Code == IntCode:
		shift := 64 - uint(t.Bits)
		return v << shift >> shift
	default:
		return v & (1<<t.Bits - 1)
	}
}

// round rounds v to the precision of a float type.
func (t Type) round(v float64) float64 {
	if t.Bits == 32 {
		return float64(float32(v))
	}
	return v
}

// intToFloat converts an integer value of type t to float64.
func (t Type) intToFloat(v int64) float64 {
	if t == UInt64 {
		return float64(uint64(v))
	}
	return float64(v)
}

// fromFloat truncates f toward zero and converts it to integer type t.
// NaN converts to zero; values beyond the 64-bit range saturate before
// wrapping.
func (t Type) fromFloat(f float64) int64 {
	if math.IsNaN(f) {
		return 0
	}
	if t.IsBool() {
		if f != 0 {
			return 1
		}
		return 0
	}
	f = math.Trunc(f)
	if t == UInt64 {
		switch {
		case f <= 0:
			return 0
		case f >= 1<<64:
			return -1
		}
		return int64(uint64(f))
	}
	switch {
	case f <= math.MinInt64:
		return t.wrap(math.MinInt64)
	case f >= math.MaxInt64:
		return t.wrap(math.MaxInt64)
	}
	return t.wrap(int64(f))
}

// fits reports whether the integer value v is representable in t without
// wrapping.
func (t Type) fits(v int64) bool {
	if t.IsFloat() {
		return true
	}
	return t.wrap(v) == v && (t != UInt64 || v >= 0)
}

// promote returns the type binary arithmetic on a and b is carried out in:
// floats beat integers and the wider float wins; integers of one signedness
// widen to the larger width; mixed signed and unsigned give a signed integer
// of the larger width. Bool takes part as UInt8.
func promote(a, b Type) Type {
	if a == b {
		if a.IsBool() {
			return UInt8
		}
		return a
	}
	switch {
	case a.IsFloat() && b.IsFloat():
		return Type{FloatCode, max(a.Bits, b.Bits)}
	case a.IsFloat():
		return a
	case b.IsFloat():
		return b
	}
	if a.IsBool() {
		a = UInt8
	}
	if b.IsBool() {
		b = UInt8
	}
	if a.Code == b.Code {
		return Type{a.Code, max(a.Bits, b.Bits)}
	}
	return Type{IntCode, max(a.Bits, b.Bits)}
}
