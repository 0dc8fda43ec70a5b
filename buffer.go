package emcore

import (
	"fmt"
	"slices"
	"unsafe"
)

// Buffer is a block of elements of one Type.
//
// A Buffer either owns its memory, when it was sized with Allocate, or
// borrows memory from the caller, when it was built by WrapBuffer. Borrowed
// memory is never reused for a different layout: the next Allocate replaces
// it with owned memory and leaves the caller's slice untouched.
//
// POD elements are stored in a []uint64 backing so that every element type
// is correctly aligned; strings are stored in a []string.
type Buffer struct {
	typ   Type
	n     int
	words []uint64
	mem   span
	owned bool
	gen   uint64 // bumped whenever mem or typ changes
}

// NewBuffer returns an owned buffer of n zero elements of type t.
func NewBuffer(t Type, n int) *Buffer {
	b := &Buffer{}
	b.Allocate(t, n)
	return b
}

// WrapBuffer returns a buffer borrowing vals. Writes through the buffer are
// visible in vals.
func WrapBuffer[T any](vals []T) (*Buffer, error) {
	t := TypeOf[T]()
	if t.IsNull() {
		var z T
		return nil, Errorf("wrap", ErrUnsupportedType, "no descriptor for %T", z)
	}
	b := &Buffer{typ: t, n: len(vals)}
	if t.IsPOD() {
		b.mem.b = asBytes(vals)
	} else {
		b.mem.s = any(vals).([]string)
	}
	return b, nil
}

// Type returns the element type.
func (b *Buffer) Type() Type { return b.typ }

// Len returns the number of elements.
func (b *Buffer) Len() int { return b.n }

// Owned reports whether the buffer allocated its memory itself.
func (b *Buffer) Owned() bool { return b.owned }

// Bytes returns the raw element memory of a POD buffer, nil for strings.
func (b *Buffer) Bytes() []byte { return b.mem.b }

// Strings returns the elements of a String buffer, nil otherwise.
func (b *Buffer) Strings() []string { return b.mem.s }

// ByteSize returns the memory footprint of the elements in bytes.
func (b *Buffer) ByteSize() int { return b.n * b.typ.Size() }

// Allocate sizes the buffer for n elements of type t. When the buffer owns
// POD memory whose footprint equals the requested one, the memory is kept
// and only retyped. Otherwise new zeroed memory is allocated.
func (b *Buffer) Allocate(t Type, n int) {
	if t.IsNull() || n <= 0 {
		b.Release()
		b.typ = t
		return
	}
	if b.owned && b.typ.IsPOD() && t.IsPOD() && b.ByteSize() == t.Size()*n {
		b.typ, b.n = t, n
		b.gen++
		return
	}
	b.Release()
	if t.IsPOD() {
		nbytes := t.Size() * n
		b.words = make([]uint64, (nbytes+7)/8)
		b.mem = span{b: unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(b.words))), nbytes)}
	} else {
		b.mem = span{s: make([]string, n)}
	}
	b.typ, b.n, b.owned = t, n, true
}

// Release drops the memory. Borrowed memory is only forgotten.
func (b *Buffer) Release() {
	b.words = nil
	b.mem = span{}
	b.n = 0
	b.owned = false
	b.gen++
}

// Zero sets every element to the zero value of the type.
func (b *Buffer) Zero() {
	clear(b.mem.b)
	clear(b.mem.s)
}

// Equal reports whether both buffers hold the same type and elements.
// POD elements are compared bytewise.
func (b *Buffer) Equal(o *Buffer) bool {
	return b.typ == o.typ && b.n == o.n && spanEqual(b.typ, b.mem, o.mem, b.n)
}

// Format renders every element as text separated by single spaces.
func (b *Buffer) Format() string { return spanString(b.typ, b.mem, b.n) }

// Parse reads one textual element per field of fields into the buffer.
func (b *Buffer) Parse(fields []string) error {
	if len(fields) != b.n {
		return fmt.Errorf("%w: %d values for %d elements", ErrInvalidFormat, len(fields), b.n)
	}
	for i, f := range fields {
		if err := parseElem(b.typ, b.mem, i, f); err != nil {
			return err
		}
	}
	return nil
}

func (b *Buffer) String() string {
	return fmt.Sprintf("%s[%d]", b.typ, b.n)
}

func (s span) slice(t Type, off, n int) span {
	if t.IsPOD() {
		sz := t.Size()
		return span{b: s.b[off*sz : (off+n)*sz]}
	}
	return span{s: s.s[off : off+n]}
}

func spanEqual(t Type, a, b span, n int) bool {
	if t.IsPOD() {
		sz := n * t.Size()
		return len(a.b) >= sz && len(b.b) >= sz && string(a.b[:sz]) == string(b.b[:sz])
	}
	return slices.Equal(a.s[:n], b.s[:n])
}
