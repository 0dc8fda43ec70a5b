package emcore

import (
	"fmt"
	"strconv"
	"strings"
	"unsafe"

	"github.com/x448/float16"
)

// Kind enumerates the element types a Type can describe.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt8
	KindUint8
	KindInt16
	KindUint16
	KindInt32
	KindUint32
	KindInt64
	KindUint64
	KindFloat16
	KindFloat32
	KindFloat64
	KindComplex64
	KindComplex128
	KindString
	numKinds
)

// Type is a handle to an immutable element type descriptor. Two handles
// describing the same element type are equal with ==, so a Type can be used
// as a map key. The zero Type is the null type: no type set, size 0.
type Type struct {
	d *descriptor
}

type descriptor struct {
	kind  Kind
	name  string
	size  int
	unit  int // width of the value that is byte swapped (complex swaps per component)
	pod   bool
	arith bool
	k     kernel
}

var nullDescriptor = &descriptor{kind: KindNull, name: "null"}

func newDescriptor(kind Kind, name string, size, unit int, arith bool, k kernel) *descriptor {
	return &descriptor{kind: kind, name: name, size: size, unit: unit, pod: kind != KindString, arith: arith, k: k}
}

// The process wide type descriptors. They are built once during package
// initialization and never change afterwards.
var (
	NullType   = Type{}
	Bool       = Type{newDescriptor(KindBool, "bool", 1, 1, false, boolKernel{})}
	Int8       = Type{newDescriptor(KindInt8, "int8", 1, 1, true, realKernel[int8]{KindInt8})}
	Uint8      = Type{newDescriptor(KindUint8, "uint8", 1, 1, true, realKernel[uint8]{KindUint8})}
	Int16      = Type{newDescriptor(KindInt16, "int16", 2, 2, true, realKernel[int16]{KindInt16})}
	Uint16     = Type{newDescriptor(KindUint16, "uint16", 2, 2, true, realKernel[uint16]{KindUint16})}
	Int32      = Type{newDescriptor(KindInt32, "int32", 4, 4, true, realKernel[int32]{KindInt32})}
	Uint32     = Type{newDescriptor(KindUint32, "uint32", 4, 4, true, realKernel[uint32]{KindUint32})}
	Int64      = Type{newDescriptor(KindInt64, "int64", 8, 8, true, realKernel[int64]{KindInt64})}
	Uint64     = Type{newDescriptor(KindUint64, "uint64", 8, 8, true, realKernel[uint64]{KindUint64})}
	Float16    = Type{newDescriptor(KindFloat16, "float16", 2, 2, true, halfKernel{})}
	Float32    = Type{newDescriptor(KindFloat32, "float32", 4, 4, true, realKernel[float32]{KindFloat32})}
	Float64    = Type{newDescriptor(KindFloat64, "float64", 8, 8, true, realKernel[float64]{KindFloat64})}
	Complex64  = Type{newDescriptor(KindComplex64, "complex64", 8, 4, true, complexKernel[complex64]{KindComplex64})}
	Complex128 = Type{newDescriptor(KindComplex128, "complex128", 16, 8, true, complexKernel[complex128]{KindComplex128})}
	String     = Type{newDescriptor(KindString, "string", int(unsafe.Sizeof("")), 0, false, stringKernel{})}
)

var allTypes = []Type{Bool, Int8, Uint8, Int16, Uint16, Int32, Uint32, Int64, Uint64,
	Float16, Float32, Float64, Complex64, Complex128, String}

var typeAliases = map[string]Type{
	"float":   Float32,
	"double":  Float64,
	"cfloat":  Complex64,
	"cdouble": Complex128,
	"half":    Float16,
	"int":     Int32,
	"uint":    Uint32,
	"byte":    Uint8,
	"short":   Int16,
	"ushort":  Uint16,
	"long":    Int64,
	"str":     String,
}

// TypeOf returns the descriptor for the Go type T, or NullType when T is
// not one of the supported element types. int and uint map to the sized
// integer type of the same width.
func TypeOf[T any]() Type {
	var z T
	switch any(z).(type) {
	case bool:
		return Bool
	case int:
		if strconv.IntSize == 64 {
			return Int64
		}
		return Int32
	case uint:
		if strconv.IntSize == 64 {
			return Uint64
		}
		return Uint32
	case int8:
		return Int8
	case uint8:
		return Uint8
	case int16:
		return Int16
	case uint16:
		return Uint16
	case int32:
		return Int32
	case uint32:
		return Uint32
	case int64:
		return Int64
	case uint64:
		return Uint64
	case float16.Float16:
		return Float16
	case float32:
		return Float32
	case float64:
		return Float64
	case complex64:
		return Complex64
	case complex128:
		return Complex128
	case string:
		return String
	}
	return NullType
}

// Types returns every non-null descriptor.
func Types() []Type {
	return append([]Type(nil), allTypes...)
}

// TypeByName looks a descriptor up by its name ("float32") or by one of the
// classic aliases ("float", "double", "cfloat", ...).
func TypeByName(name string) (Type, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, t := range allTypes {
		if t.d.name == name {
			return t, true
		}
	}
	t, ok := typeAliases[name]
	return t, ok
}

func (t Type) desc() *descriptor {
	if t.d == nil {
		return nullDescriptor
	}
	return t.d
}

// Kind returns the element kind.
func (t Type) Kind() Kind { return t.desc().kind }

// Name returns the element type name, "null" for NullType.
func (t Type) Name() string { return t.desc().name }

func (t Type) String() string { return t.desc().name }

// Size returns the size of one element in bytes.
func (t Type) Size() int { return t.desc().size }

// IsNull reports whether t is NullType.
func (t Type) IsNull() bool { return t.d == nil }

// IsPOD reports whether elements are plain bytes that need no
// construction or destruction. Every type except String is POD.
func (t Type) IsPOD() bool { return t.d != nil && t.d.pod }

// IsTriviallyCopyable reports whether elements can be copied bytewise.
func (t Type) IsTriviallyCopyable() bool { return t.IsPOD() }

// IsArithmetic reports whether ADD/SUB/MUL/DIV/LOG/SQRT apply to t.
func (t Type) IsArithmetic() bool { return t.d != nil && t.d.arith }

// IsComplex reports whether t is a complex type.
func (t Type) IsComplex() bool {
	k := t.Kind()
	return k == KindComplex64 || k == KindComplex128
}

// IsFloat reports whether t is a real floating point type.
func (t Type) IsFloat() bool {
	k := t.Kind()
	return k == KindFloat16 || k == KindFloat32 || k == KindFloat64
}

// IsInteger reports whether t is a signed or unsigned integer type.
func (t Type) IsInteger() bool {
	k := t.Kind()
	return k >= KindInt8 && k <= KindUint64
}

// Swap reverses the byte order of every element stored in mem.
func (t Type) Swap(mem []byte) {
	if d := t.desc(); d.pod {
		SwapBytes(mem, d.unit)
	}
}

// InferFromString classifies a token: digits only is int32, digits with
// exactly one dot is float32, anything else (including tokens without any
// digit) is string. A single leading '-' is accepted for numbers. Integers
// outside the int32 range widen to int64, and to float64 past that.
func InferFromString(s string) Type {
	digits, dots := 0, 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			digits++
		case c == '.':
			dots++
		case c == '-' && i == 0:
		default:
			return String
		}
	}
	switch {
	case digits == 0 || dots > 1:
		return String
	case dots == 1:
		return Float32
	}
	if _, err := strconv.ParseInt(s, 10, 32); err == nil {
		return Int32
	}
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Int64
	}
	return Float64
}

// ParseDType takes a numpy-style string like "<f4", "|u1", ">i2" or a plain
// type name and returns the descriptor and byte order it denotes.
func ParseDType(s string) (Type, ByteOrder, error) {
	if t, ok := TypeByName(s); ok {
		return t, NativeOrder(), nil
	}
	if len(s) < 3 {
		return NullType, 0, fmt.Errorf("invalid dtype: %s", s)
	}

	var order ByteOrder
	switch s[0] {
	case '<':
		order = LittleEndian
	case '>':
		order = BigEndian
	case '|', '=':
		order = NativeOrder()
	default:
		return NullType, 0, fmt.Errorf("invalid byte order in dtype: %s", s)
	}

	kind := s[1]
	size, err := strconv.Atoi(s[2:])
	if err != nil {
		return NullType, 0, fmt.Errorf("invalid size in dtype: %s", s)
	}

	var name string
	switch kind {
	case 'b':
		name = "bool"
	case 'i':
		name = fmt.Sprintf("int%d", size*8)
	case 'u':
		name = fmt.Sprintf("uint%d", size*8)
	case 'f':
		name = fmt.Sprintf("float%d", size*8)
	case 'c':
		name = fmt.Sprintf("complex%d", size*8)
	default:
		return NullType, 0, fmt.Errorf("unsupported dtype kind: %c in %s", kind, s)
	}
	t, ok := TypeByName(name)
	if !ok || t.Size() != size {
		return NullType, 0, fmt.Errorf("unsupported dtype: %s", s)
	}
	return t, order, nil
}
