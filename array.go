package emcore

import (
	"fmt"
	"strings"
	"unsafe"
)

// Data is typed 4-D element memory: an *Array, a *View or an *Object.
type Data interface {
	// Dim returns the extent of the data.
	Dim() Dim
	// Type returns the element type.
	Type() Type
	// Bytes returns the raw element memory, nil for String data.
	Bytes() []byte
	mem() span
}

// Array is a 4-D (x, y, z, n) block of typed elements stored in x-fastest
// order. The zero Array is empty and untyped.
type Array struct {
	dim Dim
	buf Buffer
}

// NewArray returns an array of dim zeroed elements of type t.
func NewArray(dim Dim, t Type) *Array {
	a := &Array{}
	a.Resize(dim, t)
	return a
}

// WrapArray returns an array borrowing vals as its memory. len(vals) must be
// dim.Size(). The array never reallocates vals; a Resize to another
// footprint allocates fresh memory instead.
func WrapArray[T any](dim Dim, vals []T) (*Array, error) {
	if len(vals) != dim.Size() {
		return nil, Errorf("wrap", ErrInvalidOperation, "%d values for dimension %s", len(vals), dim)
	}
	b, err := WrapBuffer(vals)
	if err != nil {
		return nil, err
	}
	return &Array{dim: dim, buf: *b}, nil
}

// Dim returns the extent of the array.
func (a *Array) Dim() Dim { return a.dim }

// Type returns the element type.
func (a *Array) Type() Type { return a.buf.typ }

// Len returns the number of elements.
func (a *Array) Len() int { return a.buf.n }

// Bytes returns the raw element memory, nil for String arrays.
func (a *Array) Bytes() []byte { return a.buf.mem.b }

// Strings returns the elements of a String array.
func (a *Array) Strings() []string { return a.buf.mem.s }

// Owned reports whether the array owns its memory.
func (a *Array) Owned() bool { return a.buf.owned }

// Buffer exposes the underlying typed buffer.
func (a *Array) Buffer() *Buffer { return &a.buf }

func (a *Array) mem() span { return a.buf.mem }

// Resize gives the array extent dim and type t. NullType keeps the current
// type. Owned POD memory is reused when the byte footprint does not change;
// otherwise the content is discarded and memory reallocated. Any View taken
// before a Resize becomes stale.
func (a *Array) Resize(dim Dim, t Type) {
	if t.IsNull() {
		t = a.buf.typ
	}
	if dim == a.dim && t == a.buf.typ && a.buf.n == dim.Size() {
		return
	}
	a.buf.Allocate(t, dim.Size())
	a.dim = dim
}

// Copy makes a an element-wise copy of src, keeping a's type if it has one
// and taking src's type otherwise.
func (a *Array) Copy(src Data) error {
	return a.CopyAs(src, NullType)
}

// CopyAs makes a an element-wise copy of src cast to t. When t is NullType,
// a's current type is used, or src's type if a has none.
func (a *Array) CopyAs(src Data, t Type) error {
	if t.IsNull() {
		t = a.buf.typ
	}
	if t.IsNull() {
		t = src.Type()
	}
	if err := checkData("copy", src); err != nil {
		return err
	}
	switch s := src.(type) {
	case *Array:
		if s == a {
			src = a.Clone()
		}
	case *View:
		// The resize below would invalidate a view of a itself.
		if s.parent == a {
			c := NewArray(s.dim, s.Type())
			if err := c.Copy(s); err != nil {
				return err
			}
			src = c
		}
	}
	a.Resize(src.Dim(), t)
	return operate(OpCast, t, a.mem(), src.mem(), src.Type(), src.Dim().Size(), false)
}

// Clone returns an owned deep copy of a.
func (a *Array) Clone() *Array {
	c := NewArray(a.dim, a.buf.typ)
	copy(c.buf.mem.b, a.buf.mem.b)
	copy(c.buf.mem.s, a.buf.mem.s)
	return c
}

// Equal reports whether d has the same dim, type and elements as a.
func (a *Array) Equal(d Data) bool {
	return equalData(a, d)
}

// View returns a view of item index (1-based) sharing a's memory,
// or of the whole array when index is 0.
func (a *Array) View(index int) (*View, error) {
	if index < 0 || index > a.dim.N {
		return nil, Errorf("view", ErrIndexOutOfRange, "item %d of %d", index, a.dim.N)
	}
	v := &View{parent: a, gen: a.buf.gen, index: index, dim: a.dim}
	if index > 0 {
		v.dim = a.dim.Item()
		v.offset = (index - 1) * a.dim.ItemSize()
	}
	return v, nil
}

// Patch overwrites the window of a starting at (x, y, z) with the cast
// elements of src. Item i of src patches item i of a.
func (a *Array) Patch(src Data, x, y, z int) error {
	if err := checkData("patch", src); err != nil {
		return err
	}
	return copyWindow("patch", a, [3]int{x, y, z}, src, [3]int{}, src.Dim())
}

// Extract fills a from the window of src starting at (x, y, z); the window
// has a's extent. An untyped a takes src's type.
func (a *Array) Extract(src Data, x, y, z int) error {
	if err := checkData("extract", src); err != nil {
		return err
	}
	if a.buf.typ.IsNull() {
		a.Resize(a.dim, src.Type())
	}
	return copyWindow("extract", a, [3]int{}, src, [3]int{x, y, z}, a.dim)
}

// Apply performs op element-wise with a as the left operand: a[i] = a[i] op
// src[i]. src may have a's extent or be a single element broadcast to all
// of a. OpCast and the unary OpLog and OpSqrt write op(src[i]) into a.
func (a *Array) Apply(op Op, src Data) error {
	return apply(op, a, src)
}

// Add adds src element-wise to a.
func (a *Array) Add(src Data) error { return apply(OpAdd, a, src) }

// Sub subtracts src element-wise from a.
func (a *Array) Sub(src Data) error { return apply(OpSub, a, src) }

// Mul multiplies a element-wise by src.
func (a *Array) Mul(src Data) error { return apply(OpMul, a, src) }

// Div divides a element-wise by src.
func (a *Array) Div(src Data) error { return apply(OpDiv, a, src) }

// Log replaces every element by its natural logarithm.
func (a *Array) Log() error { return apply(OpLog, a, a) }

// Sqrt replaces every element by its square root.
func (a *Array) Sqrt() error { return apply(OpSqrt, a, a) }

func (a *Array) String() string {
	return formatData(a)
}

// View is a borrowed window onto the memory of an Array: either the whole
// array or one of its items. A View cannot be resized. Resizing the parent
// makes the view stale; a stale view panics on memory access and its error
// returning methods fail with ErrStaleView.
type View struct {
	parent *Array
	gen    uint64
	index  int
	dim    Dim
	offset int
}

// Dim returns the extent of the view.
func (v *View) Dim() Dim { return v.dim }

// Type returns the element type.
func (v *View) Type() Type { return v.parent.buf.typ }

// Index returns the viewed item, 0 for a whole array view.
func (v *View) Index() int { return v.index }

// Valid reports whether the parent memory is still the one the view was
// taken from.
func (v *View) Valid() bool { return v.parent.buf.gen == v.gen }

// Bytes returns the raw element memory of the view.
func (v *View) Bytes() []byte { return v.mem().b }

// Strings returns the String elements of the view.
func (v *View) Strings() []string { return v.mem().s }

func (v *View) mem() span {
	if !v.Valid() {
		panic(ErrStaleView)
	}
	return v.parent.buf.mem.slice(v.Type(), v.offset, v.dim.Size())
}

// Copy casts the elements of src into the view. src must have the view's
// extent.
func (v *View) Copy(src Data) error {
	if err := checkData("copy", v); err != nil {
		return err
	}
	if err := checkData("copy", src); err != nil {
		return err
	}
	if src.Dim() != v.dim {
		return Errorf("copy", ErrInvalidOperation, "source %s does not match view %s", src.Dim(), v.dim)
	}
	return operate(OpCast, v.Type(), v.mem(), src.mem(), src.Type(), v.dim.Size(), false)
}

// Apply performs op element-wise on the view, see Array.Apply.
func (v *View) Apply(op Op, src Data) error {
	if err := checkData(op.String(), v); err != nil {
		return err
	}
	return apply(op, v, src)
}

// Equal reports whether d has the same dim, type and elements as v.
func (v *View) Equal(d Data) bool { return equalData(v, d) }

func (v *View) String() string { return formatData(v) }

// Values returns the elements of d as a []T sharing d's memory.
// It panics if T does not match d's element type.
func Values[T any](d Data) []T {
	t := TypeOf[T]()
	if t.IsNull() || t != d.Type() {
		var z T
		panic(fmt.Sprintf("emcore.Values: data of type %s accessed as %T", d.Type(), z))
	}
	s := d.mem()
	if t.IsPOD() {
		return elems[T](s.b)
	}
	return *(*[]T)(unsafe.Pointer(&s.s))
}

// At returns the element at (x, y, z, n).
func At[T any](d Data, x, y, z, n int) T {
	return Values[T](d)[d.Dim().Index(x, y, z, n)]
}

// SetAt sets the element at (x, y, z, n).
func SetAt[T any](d Data, v T, x, y, z, n int) {
	Values[T](d)[d.Dim().Index(x, y, z, n)] = v
}

func checkData(op string, d Data) error {
	if v, ok := d.(*View); ok && !v.Valid() {
		return NewError(op, "", ErrStaleView, nil)
	}
	return nil
}

func apply(op Op, dst Data, src Data) error {
	if err := checkData(op.String(), src); err != nil {
		return err
	}
	n := dst.Dim().Size()
	ss := src.Dim().Size()
	single := false
	switch {
	case src.Dim() == dst.Dim():
	case ss == 1 && n > 0:
		single = true
	default:
		return Errorf(op.String(), ErrInvalidOperation, "operand %s does not match %s", src.Dim(), dst.Dim())
	}
	return operate(op, dst.Type(), dst.mem(), src.mem(), src.Type(), n, single)
}

func equalData(a, b Data) bool {
	if a.Dim() != b.Dim() || a.Type() != b.Type() {
		return false
	}
	if checkData("equal", a) != nil || checkData("equal", b) != nil {
		return false
	}
	return spanEqual(a.Type(), a.mem(), b.mem(), a.Dim().Size())
}

// copyWindow casts the shape sized window of src at sOrigin into dst at
// dOrigin, row by row. Items are matched one to one.
func copyWindow(op string, dst Data, dOrigin [3]int, src Data, sOrigin [3]int, shape Dim) error {
	dd, sd := dst.Dim(), src.Dim()
	if shape.N > dd.N || shape.N > sd.N {
		return Errorf(op, ErrIndexOutOfRange, "window of %d items exceeds %s or %s", shape.N, dd, sd)
	}
	ext := [3]int{shape.X, shape.Y, shape.Z}
	dExt := [3]int{dd.X, dd.Y, dd.Z}
	sExt := [3]int{sd.X, sd.Y, sd.Z}
	for i := range ext {
		if dOrigin[i] < 0 || sOrigin[i] < 0 || dOrigin[i]+ext[i] > dExt[i] || sOrigin[i]+ext[i] > sExt[i] {
			return Errorf(op, ErrIndexOutOfRange, "window %s at %v/%v outside %s or %s", shape, dOrigin, sOrigin, dd, sd)
		}
	}
	if shape.Size() == 0 {
		return nil
	}

	dt, st := dst.Type(), src.Type()
	dm, sm := dst.mem(), src.mem()
	for n := 0; n < shape.N; n++ {
		for z := 0; z < shape.Z; z++ {
			for y := 0; y < shape.Y; y++ {
				di := dd.Index(dOrigin[0], dOrigin[1]+y, dOrigin[2]+z, n)
				si := sd.Index(sOrigin[0], sOrigin[1]+y, sOrigin[2]+z, n)
				if err := operate(OpCast, dt, dm.slice(dt, di, shape.X), sm.slice(st, si, shape.X), st, shape.X, false); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func formatData(d Data) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s", d.Type(), d.Dim())
	if v, ok := d.(*View); ok && !v.Valid() {
		sb.WriteString(" <stale>")
		return sb.String()
	}
	const maxShown = 16
	n := min(d.Dim().Size(), maxShown)
	if n > 0 {
		sb.WriteString(" [")
		sb.WriteString(spanString(d.Type(), d.mem(), n))
		if d.Dim().Size() > maxShown {
			sb.WriteString(" ...")
		}
		sb.WriteByte(']')
	}
	return sb.String()
}
