package emcore

import (
	"strings"
	"unsafe"
)

// Object is a single dynamically typed value: a parameter, a table cell or
// the result of a reduction. The zero Object has NullType and formats as "".
//
// Object is a value type; copies are independent of each other.
type Object struct {
	typ Type
	raw [2]uint64 // enough for complex128, the widest POD element
	str string
}

// NewObject returns a zero value of type t.
func NewObject(t Type) Object {
	return Object{typ: t}
}

// ObjectOf returns an Object holding v with the type matching T.
func ObjectOf[T any](v T) Object {
	var o Object
	o.typ = TypeOf[T]()
	if !o.typ.IsNull() {
		Values[T](&o)[0] = v
	}
	return o
}

// Dim returns the extent of a single element.
func (o *Object) Dim() Dim {
	if o.typ.IsNull() {
		return EmptyDim
	}
	return NewDim(1)
}

// Type returns the element type.
func (o *Object) Type() Type { return o.typ }

// Bytes returns the raw value memory, nil for String and NullType objects.
func (o *Object) Bytes() []byte { return o.mem().b }

func (o *Object) mem() span {
	switch {
	case o.typ.IsNull():
		return span{}
	case o.typ.IsPOD():
		return span{b: unsafe.Slice((*byte)(unsafe.Pointer(&o.raw)), o.typ.Size())}
	}
	return span{s: unsafe.Slice(&o.str, 1)}
}

// SetType changes the type of o, converting the current value when possible
// and zeroing it otherwise.
func (o *Object) SetType(t Type) {
	if t == o.typ {
		return
	}
	old := *o
	*o = Object{typ: t}
	if old.typ.IsNull() || t.IsNull() {
		return
	}
	if operate(OpCast, t, o.mem(), old.mem(), old.typ, 1, false) != nil {
		*o = Object{typ: t}
	}
}

// Copy casts the single element of src into o. An untyped o takes src's
// type.
func (o *Object) Copy(src Data) error {
	if src.Dim().Size() != 1 {
		return Errorf("copy", ErrInvalidOperation, "%s is not a single element", src.Dim())
	}
	if err := checkData("copy", src); err != nil {
		return err
	}
	if o.typ.IsNull() {
		o.typ = src.Type()
	}
	return operate(OpCast, o.typ, o.mem(), src.mem(), src.Type(), 1, false)
}

// Set stores v in o, cast to o's type. An untyped o takes the type of T.
func Set[T any](o *Object, v T) error {
	src := ObjectOf(v)
	if src.typ.IsNull() {
		return Errorf("set", ErrUnsupportedType, "no descriptor for %T", v)
	}
	if o.typ.IsNull() {
		*o = src
		return nil
	}
	return operate(OpCast, o.typ, o.mem(), src.mem(), src.typ, 1, false)
}

// Value returns the value of o cast to T.
func Value[T any](o *Object) (T, error) {
	var z T
	dst := ObjectOf(z)
	if dst.typ.IsNull() {
		return z, Errorf("get", ErrUnsupportedType, "no descriptor for %T", z)
	}
	if o.typ.IsNull() {
		return z, Errorf("get", ErrUnsupportedType, "object has no type")
	}
	if err := operate(OpCast, dst.typ, dst.mem(), o.mem(), o.typ, 1, false); err != nil {
		return z, err
	}
	return Values[T](&dst)[0], nil
}

// Get is like Value but returns the zero T when the cast fails.
func Get[T any](o *Object) T {
	v, _ := Value[T](o)
	return v
}

// FromString infers the type of s with InferFromString and parses s into o.
func (o *Object) FromString(s string) error {
	s = strings.TrimSpace(s)
	*o = Object{typ: InferFromString(s)}
	return o.Parse(s)
}

// Parse reads s into o keeping o's type.
func (o *Object) Parse(s string) error {
	return parseElem(o.typ, o.mem(), 0, s)
}

func (o *Object) String() string {
	return formatElem(o.typ, o.mem(), 0)
}

// Equal reports whether both objects have the same type and value.
func (o *Object) Equal(other *Object) bool {
	return o.typ == other.typ && (o.typ.IsNull() || spanEqual(o.typ, o.mem(), other.mem(), 1))
}

// Compare orders two objects of the same type. Objects of different types
// are compared after casting other to o's type; if that fails they are
// ordered by their text.
func (o *Object) Compare(other *Object) int {
	if o.typ == other.typ {
		return compareElem(o.typ, o.mem(), 0, other.mem(), 0)
	}
	c := Object{typ: o.typ}
	if o.typ.IsNull() || c.Copy(other) != nil {
		return strings.Compare(o.String(), other.String())
	}
	return compareElem(o.typ, o.mem(), 0, c.mem(), 0)
}
