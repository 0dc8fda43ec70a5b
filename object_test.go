package emcore_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TuSKan/emcore"
)

func TestObject_FromString(t *testing.T) {
	var o emcore.Object
	require.NoError(t, o.FromString("3.14159"))
	require.Equal(t, emcore.Float32, o.Type())
	require.Equal(t, "3.14159", o.String())

	require.NoError(t, o.FromString("42"))
	require.Equal(t, emcore.Int32, o.Type())
	require.Equal(t, int64(42), emcore.Get[int64](&o))

	require.NoError(t, o.FromString("micrograph_001.mrc"))
	require.Equal(t, emcore.String, o.Type())
	require.Equal(t, "micrograph_001.mrc", o.String())
}

func TestObject_SetGet(t *testing.T) {
	o := emcore.NewObject(emcore.Int16)
	require.NoError(t, emcore.Set(&o, 300.7))
	require.Equal(t, emcore.Int16, o.Type())
	require.Equal(t, 300, int(emcore.Get[int16](&o)))
	require.Equal(t, float32(300), emcore.Get[float32](&o))

	s, err := emcore.Value[string](&o)
	require.NoError(t, err)
	require.Equal(t, "300", s)

	var untyped emcore.Object
	require.Equal(t, "", untyped.String())
	_, err = emcore.Value[float64](&untyped)
	require.ErrorIs(t, err, emcore.ErrUnsupportedType)
	require.NoError(t, emcore.Set(&untyped, "hello"))
	require.Equal(t, emcore.String, untyped.Type())

	_, err = emcore.Value[float64](&untyped)
	require.ErrorIs(t, err, emcore.ErrInvalidFormat)
	require.Zero(t, emcore.Get[float64](&untyped))
}

func TestObject_SetType(t *testing.T) {
	o := emcore.ObjectOf(2.5)
	require.Equal(t, emcore.Float64, o.Type())
	o.SetType(emcore.String)
	require.Equal(t, "2.5", o.String())
	o.SetType(emcore.Float32)
	require.Equal(t, float32(2.5), emcore.Get[float32](&o))

	o = emcore.ObjectOf("not a number")
	o.SetType(emcore.Int32)
	require.Equal(t, emcore.Int32, o.Type())
	require.Zero(t, emcore.Get[int32](&o))
}

func TestObject_EqualCompare(t *testing.T) {
	a := emcore.ObjectOf(int32(5))
	b := emcore.ObjectOf(int32(5))
	c := emcore.ObjectOf(float64(7.5))
	require.True(t, a.Equal(&b))
	require.False(t, a.Equal(&c))
	require.Zero(t, a.Compare(&b))
	require.Equal(t, -1, a.Compare(&c))
	require.Equal(t, 1, c.Compare(&a))

	// Copies are independent.
	d := a
	require.NoError(t, emcore.Set(&d, int32(9)))
	require.Equal(t, int32(5), emcore.Get[int32](&a))
}

func TestObject_GoInt(t *testing.T) {
	o := emcore.ObjectOf(5)
	require.False(t, o.Type().IsNull())
	require.Equal(t, "5", o.String())
	require.Equal(t, 5, emcore.Get[int](&o))

	f := emcore.NewObject(emcore.Float32)
	require.NoError(t, emcore.Set(&f, 300))
	require.Equal(t, float32(300), emcore.Get[float32](&f))
	u, err := emcore.Value[uint](&f)
	require.NoError(t, err)
	require.Equal(t, uint(300), u)

	a, err := emcore.WrapArray(emcore.NewDim(3), []int{1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3}, emcore.Values[int](a))
}

func TestObject_IntegerRange(t *testing.T) {
	var o emcore.Object
	require.NoError(t, o.FromString("12345678901"))
	require.Equal(t, emcore.Int64, o.Type())
	require.Equal(t, int64(12345678901), emcore.Get[int64](&o))

	// A typed object refuses values it cannot hold.
	i := emcore.NewObject(emcore.Int32)
	require.ErrorIs(t, i.Parse("12345678901"), emcore.ErrInvalidFormat)
	u := emcore.NewObject(emcore.Uint8)
	require.ErrorIs(t, u.Parse("-1"), emcore.ErrInvalidFormat)
	require.ErrorIs(t, u.Parse("256"), emcore.ErrInvalidFormat)
	require.NoError(t, u.Parse("255"))
	require.Equal(t, uint8(255), emcore.Get[uint8](&u))
	big := emcore.NewObject(emcore.Uint64)
	require.NoError(t, big.Parse("18446744073709551615"))
	require.Equal(t, uint64(18446744073709551615), emcore.Get[uint64](&big))
	require.NoError(t, i.Parse("2.75"))
	require.Equal(t, int32(2), emcore.Get[int32](&i))
}
