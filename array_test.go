package emcore_test

import (
	"math"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/TuSKan/emcore"
)

func seq(n int) []float32 {
	v := make([]float32, n)
	for i := range v {
		v[i] = float32(i + 1)
	}
	return v
}

func TestArray_ResizeKeepsMemory(t *testing.T) {
	a := emcore.NewArray(emcore.NewDim(10, 10), emcore.Float32)
	p := unsafe.SliceData(a.Bytes())

	// 100 float32 and 200 int16 share the same 400 byte footprint.
	a.Resize(emcore.NewDim(10, 10, 2), emcore.Int16)
	require.Equal(t, emcore.Int16, a.Type())
	require.Equal(t, p, unsafe.SliceData(a.Bytes()))

	a.Resize(emcore.NewDim(20, 10), emcore.NullType)
	require.Equal(t, emcore.Int16, a.Type())
	require.Equal(t, p, unsafe.SliceData(a.Bytes()))

	a.Resize(emcore.NewDim(3), emcore.Float64)
	require.Equal(t, 24, len(a.Bytes()))
}

func TestArray_ViewSharesMemory(t *testing.T) {
	dim := emcore.NewDim(4, 4, 1, 3)
	a, err := emcore.WrapArray(dim, seq(dim.Size()))
	require.NoError(t, err)

	v, err := a.View(2)
	require.NoError(t, err)
	require.Equal(t, emcore.NewDim(4, 4), v.Dim())
	require.Equal(t, unsafe.Pointer(&a.Bytes()[16*4]), unsafe.Pointer(&v.Bytes()[0]))
	require.Equal(t, float32(17), emcore.At[float32](v, 0, 0, 0, 0))

	emcore.SetAt[float32](v, -1, 0, 0, 0, 0)
	require.Equal(t, float32(-1), emcore.Values[float32](a)[16])

	whole, err := a.View(0)
	require.NoError(t, err)
	require.Equal(t, dim, whole.Dim())

	_, err = a.View(4)
	require.ErrorIs(t, err, emcore.ErrIndexOutOfRange)
	_, err = a.View(-1)
	require.ErrorIs(t, err, emcore.ErrIndexOutOfRange)
}

func TestView_Stale(t *testing.T) {
	a := emcore.NewArray(emcore.NewDim(2, 2, 1, 2), emcore.Float32)
	v, err := a.View(1)
	require.NoError(t, err)
	require.True(t, v.Valid())

	a.Resize(emcore.NewDim(4, 4), emcore.Float32)
	require.False(t, v.Valid())
	require.Panics(t, func() { _ = v.Bytes() })

	src := emcore.NewArray(emcore.NewDim(2, 2), emcore.Float32)
	require.ErrorIs(t, v.Copy(src), emcore.ErrStaleView)
	require.ErrorIs(t, a.Copy(v), emcore.ErrStaleView)
	require.Contains(t, v.String(), "<stale>")
}

func TestArray_CopyCasts(t *testing.T) {
	src, err := emcore.WrapArray(emcore.NewDim(3), []float32{1.5, -2, 300})
	require.NoError(t, err)

	// An untyped destination takes the source type.
	var a emcore.Array
	require.NoError(t, a.Copy(src))
	require.Equal(t, emcore.Float32, a.Type())
	require.True(t, a.Equal(src))

	// A typed destination keeps its type.
	b := emcore.NewArray(emcore.NewDim(1), emcore.Int16)
	require.NoError(t, b.Copy(src))
	require.Equal(t, emcore.NewDim(3), b.Dim())
	require.Equal(t, []int16{1, -2, 300}, emcore.Values[int16](b))

	s := emcore.NewArray(emcore.EmptyDim, emcore.NullType)
	require.NoError(t, s.CopyAs(src, emcore.String))
	require.Equal(t, []string{"1.5", "-2", "300"}, s.Strings())

	back := emcore.NewArray(emcore.EmptyDim, emcore.Float64)
	require.NoError(t, back.Copy(s))
	require.Equal(t, []float64{1.5, -2, 300}, emcore.Values[float64](back))

	// Copy from one of our own views.
	v, err := src.View(0)
	require.NoError(t, err)
	require.NoError(t, src.CopyAs(v, emcore.Float64))
	require.Equal(t, []float64{1.5, -2, 300}, emcore.Values[float64](src))
}

func TestArray_Arithmetic(t *testing.T) {
	a, err := emcore.WrapArray(emcore.NewDim(4), []float32{1, 4, 9, 16})
	require.NoError(t, err)
	b, err := emcore.WrapArray(emcore.NewDim(4), []int32{1, 1, 1, 1})
	require.NoError(t, err)

	require.NoError(t, a.Add(b))
	require.Equal(t, []float32{2, 5, 10, 17}, emcore.Values[float32](a))
	require.NoError(t, a.Sub(b))

	scalar := emcore.ObjectOf(float32(2))
	require.NoError(t, a.Mul(&scalar))
	require.Equal(t, []float32{2, 8, 18, 32}, emcore.Values[float32](a))
	require.NoError(t, a.Div(&scalar))

	require.NoError(t, a.Sqrt())
	require.Equal(t, []float32{1, 2, 3, 4}, emcore.Values[float32](a))

	require.NoError(t, a.Log())
	require.InDelta(t, math.Log(4), float64(emcore.Values[float32](a)[3]), 1e-6)

	short := emcore.NewArray(emcore.NewDim(2), emcore.Float32)
	require.ErrorIs(t, a.Add(short), emcore.ErrInvalidOperation)

	ints := emcore.NewArray(emcore.NewDim(4), emcore.Int32)
	zero := emcore.NewArray(emcore.NewDim(4), emcore.Int32)
	require.ErrorIs(t, ints.Div(zero), emcore.ErrInvalidOperation)

	strs := emcore.NewArray(emcore.NewDim(4), emcore.String)
	require.ErrorIs(t, strs.Add(b), emcore.ErrUnsupportedOperation)
	require.ErrorIs(t, a.Add(strs), emcore.ErrUnsupportedOperation)
}

func TestArray_ComplexAndHalf(t *testing.T) {
	c, err := emcore.WrapArray(emcore.NewDim(2), []complex64{complex(1, 1), complex(-4, 0)})
	require.NoError(t, err)
	require.NoError(t, c.Mul(c.Clone()))
	require.Equal(t, []complex64{complex(0, 2), complex(16, 0)}, emcore.Values[complex64](c))

	h := emcore.NewArray(emcore.NewDim(3), emcore.Float16)
	src, err := emcore.WrapArray(emcore.NewDim(3), []float64{0.5, 2, 4})
	require.NoError(t, err)
	require.NoError(t, h.Copy(src))
	require.NoError(t, h.Sqrt())
	out := emcore.NewArray(emcore.EmptyDim, emcore.Float32)
	require.NoError(t, out.Copy(h))
	require.InDeltaSlice(t, []float32{0.7071, 1.4142, 2}, emcore.Values[float32](out), 1e-3)
}

func TestArray_PatchExtract(t *testing.T) {
	dim := emcore.NewDim(4, 4)
	a, err := emcore.WrapArray(dim, seq(16))
	require.NoError(t, err)

	win := emcore.NewArray(emcore.NewDim(2, 2), emcore.Int32)
	require.NoError(t, win.Extract(a, 1, 2, 0))
	require.Equal(t, []int32{10, 11, 14, 15}, emcore.Values[int32](win))

	patch, err := emcore.WrapArray(emcore.NewDim(2, 1), []int16{-1, -2})
	require.NoError(t, err)
	require.NoError(t, a.Patch(patch, 2, 0, 0))
	require.Equal(t, []float32{1, 2, -1, -2}, emcore.Values[float32](a)[:4])

	require.ErrorIs(t, a.Patch(patch, 3, 0, 0), emcore.ErrIndexOutOfRange)
	require.ErrorIs(t, win.Extract(a, 3, 3, 0), emcore.ErrIndexOutOfRange)
	require.ErrorIs(t, a.Patch(patch, -1, 0, 0), emcore.ErrIndexOutOfRange)
}

func TestValues_TypeMismatch(t *testing.T) {
	a := emcore.NewArray(emcore.NewDim(2), emcore.Float32)
	require.Panics(t, func() { emcore.Values[int32](a) })
	require.Len(t, emcore.Values[float32](a), 2)

	_, err := emcore.WrapArray(emcore.NewDim(3), []float32{1})
	require.ErrorIs(t, err, emcore.ErrInvalidOperation)

	require.Equal(t, "float32 (2, 1, 1, 1) [0 0]", a.String())
}
