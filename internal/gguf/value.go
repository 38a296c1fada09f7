package gguf

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Value is one typed metadata value. The zero Value is a uint8 zero.
//
// Integers are held widened, floats as float64. Arrays carry their declared
// element type and are homogeneous.
type Value struct {
	typ   ValueType
	elem  ValueType
	u     uint64
	i     int64
	f     float64
	b     bool
	s     string
	items []Value
}

// Uint8Value returns a uint8 Value.
func Uint8Value(v uint8) Value { return Value{typ: ValueTypeUint8, u: uint64(v)} }

// Int8Value returns an int8 Value.
func Int8Value(v int8) Value { return Value{typ: ValueTypeInt8, i: int64(v)} }

// Uint16Value returns a uint16 Value.
func Uint16Value(v uint16) Value { return Value{typ: ValueTypeUint16, u: uint64(v)} }

// Int16Value returns an int16 Value.
func Int16Value(v int16) Value { return Value{typ: ValueTypeInt16, i: int64(v)} }

// Uint32Value returns a uint32 Value.
func Uint32Value(v uint32) Value { return Value{typ: ValueTypeUint32, u: uint64(v)} }

// Int32Value returns an int32 Value.
func Int32Value(v int32) Value { return Value{typ: ValueTypeInt32, i: int64(v)} }

// Uint64Value returns a uint64 Value.
func Uint64Value(v uint64) Value { return Value{typ: ValueTypeUint64, u: v} }

// Int64Value returns an int64 Value.
func Int64Value(v int64) Value { return Value{typ: ValueTypeInt64, i: v} }

// Float32Value returns a float32 Value.
func Float32Value(v float32) Value { return Value{typ: ValueTypeFloat32, f: float64(v)} }

// Float64Value returns a float64 Value.
func Float64Value(v float64) Value { return Value{typ: ValueTypeFloat64, f: v} }

// BoolValue returns a bool Value.
func BoolValue(v bool) Value { return Value{typ: ValueTypeBool, b: v} }

// StringValue returns a string Value.
func StringValue(v string) Value { return Value{typ: ValueTypeString, s: v} }

// ArrayValue returns an array Value. Every item must have type elem.
func ArrayValue(elem ValueType, items []Value) Value {
	return Value{typ: ValueTypeArray, elem: elem, items: items}
}

// StringsValue returns an array of strings.
func StringsValue(items []string) Value {
	vs := make([]Value, len(items))
	for i, s := range items {
		vs[i] = StringValue(s)
	}
	return ArrayValue(ValueTypeString, vs)
}

// Float32sValue returns an array of float32.
func Float32sValue(items []float32) Value {
	vs := make([]Value, len(items))
	for i, f := range items {
		vs[i] = Float32Value(f)
	}
	return ArrayValue(ValueTypeFloat32, vs)
}

// Type returns the value's type code.
func (v Value) Type() ValueType {
	return v.typ
}

// Uint returns the value of an unsigned integer of any width.
func (v Value) Uint() (uint64, bool) {
	switch v.typ {
	case ValueTypeUint8, ValueTypeUint16, ValueTypeUint32, ValueTypeUint64:
		return v.u, true
	default:
		return 0, false
	}
}

// Int returns the value of any integer type that fits in an int64.
func (v Value) Int() (int64, bool) {
	switch v.typ {
	case ValueTypeInt8, ValueTypeInt16, ValueTypeInt32, ValueTypeInt64:
		return v.i, true
	case ValueTypeUint8, ValueTypeUint16, ValueTypeUint32, ValueTypeUint64:
		if v.u > math.MaxInt64 {
			return 0, false
		}
		return int64(v.u), true
	default:
		return 0, false
	}
}

// Float returns the value of a float32 or float64.
func (v Value) Float() (float64, bool) {
	switch v.typ {
	case ValueTypeFloat32, ValueTypeFloat64:
		return v.f, true
	default:
		return 0, false
	}
}

// Bool returns the value of a bool.
func (v Value) Bool() (bool, bool) {
	return v.b, v.typ == ValueTypeBool
}

// Str returns the value of a string.
func (v Value) Str() (string, bool) {
	return v.s, v.typ == ValueTypeString
}

// Array returns the element type and items of an array.
func (v Value) Array() (ValueType, []Value, bool) {
	if v.typ != ValueTypeArray {
		return 0, nil, false
	}
	return v.elem, v.items, true
}

// Strings returns the items of a string array.
func (v Value) Strings() ([]string, bool) {
	if v.typ != ValueTypeArray || v.elem != ValueTypeString {
		return nil, false
	}
	out := make([]string, len(v.items))
	for i, item := range v.items {
		out[i] = item.s
	}
	return out, true
}

// Float32s returns the items of a float array.
func (v Value) Float32s() ([]float32, bool) {
	if v.typ != ValueTypeArray || (v.elem != ValueTypeFloat32 && v.elem != ValueTypeFloat64) {
		return nil, false
	}
	out := make([]float32, len(v.items))
	for i, item := range v.items {
		out[i] = float32(item.f)
	}
	return out, true
}

// Int32s returns the items of an integer array as int32.
func (v Value) Int32s() ([]int32, bool) {
	if v.typ != ValueTypeArray {
		return nil, false
	}
	out := make([]int32, len(v.items))
	for i, item := range v.items {
		n, ok := item.Int()
		if !ok || n < math.MinInt32 || n > math.MaxInt32 {
			return nil, false
		}
		out[i] = int32(n)
	}
	return out, true
}

// maxDisplayItems bounds how many array items String renders.
const maxDisplayItems = 8

// String renders the value for display. Long arrays are abbreviated.
func (v Value) String() string {
	switch v.typ {
	case ValueTypeUint8, ValueTypeUint16, ValueTypeUint32, ValueTypeUint64:
		return strconv.FormatUint(v.u, 10)
	case ValueTypeInt8, ValueTypeInt16, ValueTypeInt32, ValueTypeInt64:
		return strconv.FormatInt(v.i, 10)
	case ValueTypeFloat32:
		return strconv.FormatFloat(v.f, 'g', -1, 32)
	case ValueTypeFloat64:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case ValueTypeBool:
		return strconv.FormatBool(v.b)
	case ValueTypeString:
		return strconv.Quote(v.s)
	case ValueTypeArray:
		var b strings.Builder
		b.WriteByte('[')
		for i, item := range v.items {
			if i == maxDisplayItems {
				fmt.Fprintf(&b, ", ... (%d items)", len(v.items))
				break
			}
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(item.String())
		}
		b.WriteByte(']')
		return b.String()
	default:
		return fmt.Sprintf("<%s>", v.typ)
	}
}
