package emcore

import "fmt"

// Dim is the 4-D extent of an Array: X columns, Y rows, Z sections and
// N items. Unused dimensions are 1.
type Dim struct {
	X, Y, Z, N int
}

// EmptyDim is the extent of an array holding no data.
var EmptyDim = Dim{X: 0, Y: 1, Z: 1, N: 1}

// NewDim returns a Dim of the given sizes; trailing unset sizes default to 1.
func NewDim(x int, yzn ...int) Dim {
	d := Dim{X: x, Y: 1, Z: 1, N: 1}
	if len(yzn) > 0 {
		d.Y = yzn[0]
	}
	if len(yzn) > 1 {
		d.Z = yzn[1]
	}
	if len(yzn) > 2 {
		d.N = yzn[2]
	}
	return d
}

// Size returns the total number of elements.
func (d Dim) Size() int { return d.X * d.Y * d.Z * d.N }

// ItemSize returns the number of elements of one item.
func (d Dim) ItemSize() int { return d.X * d.Y * d.Z }

// SliceSize returns the number of elements of one section.
func (d Dim) SliceSize() int { return d.X * d.Y }

// Rank returns how many of X, Y and Z are greater than one.
func (d Dim) Rank() int {
	r := 0
	for _, v := range [...]int{d.X, d.Y, d.Z} {
		if v > 1 {
			r++
		}
	}
	return r
}

// IsEmpty reports whether d holds no elements.
func (d Dim) IsEmpty() bool { return d.Size() == 0 }

// Item returns the extent of a single item of d.
func (d Dim) Item() Dim { return Dim{X: d.X, Y: d.Y, Z: d.Z, N: 1} }

// Index returns the flat element index of (x, y, z, n).
func (d Dim) Index(x, y, z, n int) int {
	return ((n*d.Z+z)*d.Y+y)*d.X + x
}

func (d Dim) String() string {
	return fmt.Sprintf("(%d, %d, %d, %d)", d.X, d.Y, d.Z, d.N)
}
