// Package table holds metadata tables of typed columns and the files that
// store them, such as RELION STAR files.
package table

import (
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/TuSKan/emcore"
)

// Column describes one column of a Table. An ID of 0 is replaced by the
// next free ID when the column is added.
type Column struct {
	ID          int
	Name        string
	Type        emcore.Type
	Description string
}

// Table is an ordered list of columns and the rows holding one Object per
// column. Rows always have the layout of the current column list: adding,
// removing or moving a column updates every row.
type Table struct {
	cols   []Column
	byID   map[int]int
	byName map[string]int
	rows   []*Row
	nextID int
}

// New returns a table with the given columns.
func New(cols ...Column) (*Table, error) {
	t := &Table{}
	for _, c := range cols {
		if _, err := t.AddColumn(c); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *Table) reindex() {
	t.byID = make(map[int]int, len(t.cols))
	t.byName = make(map[string]int, len(t.cols))
	for i, c := range t.cols {
		t.byID[c.ID] = i
		t.byName[c.Name] = i
	}
}

// NumColumns returns the number of columns.
func (t *Table) NumColumns() int { return len(t.cols) }

// Columns returns a copy of the column list.
func (t *Table) Columns() []Column { return slices.Clone(t.cols) }

// ColumnAt returns the column at position pos.
func (t *Table) ColumnAt(pos int) Column { return t.cols[pos] }

// Column returns the column with the given ID.
func (t *Table) Column(id int) (Column, bool) {
	i, ok := t.byID[id]
	if !ok {
		return Column{}, false
	}
	return t.cols[i], true
}

// ColumnByName returns the column called name.
func (t *Table) ColumnByName(name string) (Column, bool) {
	i, ok := t.byName[name]
	if !ok {
		return Column{}, false
	}
	return t.cols[i], true
}

// AddColumn appends c and returns it with its assigned ID.
func (t *Table) AddColumn(c Column) (Column, error) {
	return t.InsertColumn(len(t.cols), c)
}

// InsertColumn inserts c at position pos. Existing rows get a zero value
// of c's type in the new slot.
func (t *Table) InsertColumn(pos int, c Column) (Column, error) {
	if pos < 0 || pos > len(t.cols) {
		return c, emcore.Errorf("insert column", emcore.ErrIndexOutOfRange, "position %d of %d", pos, len(t.cols))
	}
	if c.Name == "" || c.Type.IsNull() {
		return c, emcore.Errorf("insert column", emcore.ErrInvalidOperation, "column needs a name and a type")
	}
	if _, dup := t.byName[c.Name]; dup {
		return c, emcore.Errorf("insert column", emcore.ErrInvalidOperation, "duplicate column name %q", c.Name)
	}
	if c.ID == 0 {
		c.ID = t.nextID + 1
	}
	if _, dup := t.byID[c.ID]; dup {
		return c, emcore.Errorf("insert column", emcore.ErrInvalidOperation, "duplicate column id %d", c.ID)
	}
	t.nextID = max(t.nextID, c.ID)
	t.cols = slices.Insert(t.cols, pos, c)
	for _, r := range t.rows {
		r.objs = slices.Insert(r.objs, pos, emcore.NewObject(c.Type))
	}
	t.reindex()
	return c, nil
}

// RemoveColumn deletes the column at pos and its slot in every row.
func (t *Table) RemoveColumn(pos int) error {
	if pos < 0 || pos >= len(t.cols) {
		return emcore.Errorf("remove column", emcore.ErrIndexOutOfRange, "position %d of %d", pos, len(t.cols))
	}
	t.cols = slices.Delete(t.cols, pos, pos+1)
	for _, r := range t.rows {
		r.objs = slices.Delete(r.objs, pos, pos+1)
	}
	t.reindex()
	return nil
}

// MoveColumn moves the column at from to position to.
func (t *Table) MoveColumn(from, to int) error {
	n := len(t.cols)
	if from < 0 || from >= n || to < 0 || to >= n {
		return emcore.Errorf("move column", emcore.ErrIndexOutOfRange, "move %d to %d of %d", from, to, n)
	}
	t.cols = move(t.cols, from, to)
	for _, r := range t.rows {
		r.objs = move(r.objs, from, to)
	}
	t.reindex()
	return nil
}

func move[T any](s []T, from, to int) []T {
	v := s[from]
	s = slices.Delete(s, from, from+1)
	return slices.Insert(s, to, v)
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// CreateRow returns a row with a zero value for every column. The row is
// not part of the table until it is passed to AddRow.
func (t *Table) CreateRow() *Row {
	r := &Row{t: t, objs: make([]emcore.Object, len(t.cols))}
	for i, c := range t.cols {
		r.objs[i] = emcore.NewObject(c.Type)
	}
	return r
}

// AddRow appends r, which must have one value of the column's type per
// column. A row belongs to at most one table at a time: rows already added,
// or created by another table, are rejected.
func (t *Table) AddRow(r *Row) error {
	if r.added {
		return emcore.Errorf("add row", emcore.ErrInvalidOperation, "row is already part of a table")
	}
	if r.t != nil && r.t != t {
		return emcore.Errorf("add row", emcore.ErrInvalidOperation, "row was created by another table")
	}
	if len(r.objs) != len(t.cols) {
		return emcore.Errorf("add row", emcore.ErrInvalidOperation, "row has %d values for %d columns", len(r.objs), len(t.cols))
	}
	for i, c := range t.cols {
		if got := r.objs[i].Type(); got != c.Type {
			return emcore.Errorf("add row", emcore.ErrInvalidOperation, "column %q is %s, row value is %s", c.Name, c.Type, got)
		}
	}
	r.t, r.added = t, true
	t.rows = append(t.rows, r)
	return nil
}

// Row returns row i (0-based).
func (t *Table) Row(i int) (*Row, error) {
	if i < 0 || i >= len(t.rows) {
		return nil, emcore.Errorf("row", emcore.ErrIndexOutOfRange, "row %d of %d", i, len(t.rows))
	}
	return t.rows[i], nil
}

// DeleteRow removes row i.
func (t *Table) DeleteRow(i int) error {
	if i < 0 || i >= len(t.rows) {
		return emcore.Errorf("delete row", emcore.ErrIndexOutOfRange, "row %d of %d", i, len(t.rows))
	}
	t.rows[i].t, t.rows[i].added = nil, false
	t.rows = slices.Delete(t.rows, i, i+1)
	return nil
}

// All iterates over the rows in order.
func (t *Table) All() iter.Seq2[int, *Row] {
	return func(yield func(int, *Row) bool) {
		for i, r := range t.rows {
			if !yield(i, r) {
				return
			}
		}
	}
}

// Clear removes all rows and keeps the columns.
func (t *Table) Clear() {
	for _, r := range t.rows {
		r.t, r.added = nil, false
	}
	t.rows = nil
}

// Copy makes t a deep copy of src.
func (t *Table) Copy(src *Table) {
	if t == src {
		return
	}
	t.Clear()
	t.cols = slices.Clone(src.cols)
	t.nextID = src.nextID
	t.reindex()
	t.rows = make([]*Row, len(src.rows))
	for i, r := range src.rows {
		t.rows[i] = &Row{t: t, added: true, objs: slices.Clone(r.objs)}
	}
}

// Clone returns a deep copy of t.
func (t *Table) Clone() *Table {
	c := &Table{}
	c.Copy(t)
	return c
}

// Equal reports whether both tables have the same columns and values.
func (t *Table) Equal(o *Table) bool {
	if !slices.Equal(t.cols, o.cols) || len(t.rows) != len(o.rows) {
		return false
	}
	for i, r := range t.rows {
		if !r.Equal(o.rows[i]) {
			return false
		}
	}
	return true
}

type sortKey struct {
	pos  int
	desc bool
}

// Sort orders the rows by the given keys. Each token is a column name,
// optionally followed by ASC or DESC. The sort is stable and compares
// numeric columns by value, strings lexically.
func (t *Table) Sort(tokens ...string) error {
	var keys []sortKey
	for _, tok := range tokens {
		f := strings.Fields(tok)
		if len(f) == 0 || len(f) > 2 {
			return emcore.Errorf("sort", emcore.ErrInvalidOperation, "bad sort key %q", tok)
		}
		pos, ok := t.byName[f[0]]
		if !ok {
			return emcore.Errorf("sort", emcore.ErrIndexOutOfRange, "no column %q", f[0])
		}
		k := sortKey{pos: pos}
		if len(f) == 2 {
			switch strings.ToUpper(f[1]) {
			case "ASC":
			case "DESC":
				k.desc = true
			default:
				return emcore.Errorf("sort", emcore.ErrInvalidOperation, "bad sort order %q", f[1])
			}
		}
		keys = append(keys, k)
	}
	slices.SortStableFunc(t.rows, func(a, b *Row) int {
		for _, k := range keys {
			c := a.objs[k.pos].Compare(&b.objs[k.pos])
			if k.desc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
	return nil
}

func (t *Table) String() string {
	var sb strings.Builder
	for i, c := range t.cols {
		if i > 0 {
			sb.WriteByte('\t')
		}
		fmt.Fprintf(&sb, "%s(%s)", c.Name, c.Type)
	}
	for _, r := range t.rows {
		sb.WriteByte('\n')
		sb.WriteString(r.String())
	}
	return sb.String()
}
