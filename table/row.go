package table

import (
	"strings"

	"github.com/TuSKan/emcore"
)

// Row is one record of a Table, an Object per column.
type Row struct {
	t     *Table
	added bool
	objs  []emcore.Object
}

// Len returns the number of values.
func (r *Row) Len() int { return len(r.objs) }

// At returns the value at column position pos.
func (r *Row) At(pos int) *emcore.Object { return &r.objs[pos] }

// Object returns the value of the column with the given ID, or nil.
func (r *Row) Object(id int) *emcore.Object {
	if r.t == nil {
		return nil
	}
	i, ok := r.t.byID[id]
	if !ok {
		return nil
	}
	return &r.objs[i]
}

// Named returns the value of the column called name, or nil.
func (r *Row) Named(name string) *emcore.Object {
	if r.t == nil {
		return nil
	}
	i, ok := r.t.byName[name]
	if !ok {
		return nil
	}
	return &r.objs[i]
}

// Equal reports whether both rows hold equal values.
func (r *Row) Equal(o *Row) bool {
	if len(r.objs) != len(o.objs) {
		return false
	}
	for i := range r.objs {
		if !r.objs[i].Equal(&o.objs[i]) {
			return false
		}
	}
	return true
}

func (r *Row) String() string {
	s := make([]string, len(r.objs))
	for i := range r.objs {
		s[i] = r.objs[i].String()
	}
	return strings.Join(s, "\t")
}

// Set stores v, cast to the column type, in the column with the given ID.
func Set[T any](r *Row, id int, v T) error {
	o := r.Object(id)
	if o == nil {
		return emcore.Errorf("set", emcore.ErrIndexOutOfRange, "no column %d", id)
	}
	return emcore.Set(o, v)
}

// Get returns the value of the column with the given ID cast to T.
func Get[T any](r *Row, id int) (T, error) {
	o := r.Object(id)
	if o == nil {
		var z T
		return z, emcore.Errorf("get", emcore.ErrIndexOutOfRange, "no column %d", id)
	}
	return emcore.Value[T](o)
}
