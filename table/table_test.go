package table_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TuSKan/emcore"
	"github.com/TuSKan/emcore/table"
)

func TestRow_ByIDAndName(t *testing.T) {
	tb, err := table.New(
		table.Column{ID: 1, Name: "col1", Type: emcore.Float32},
		table.Column{ID: 2, Name: "col2", Type: emcore.Int16},
	)
	require.NoError(t, err)

	row := tb.CreateRow()
	require.NoError(t, table.Set(row, 1, float32(3.1416)))
	require.NoError(t, table.Set(row, 2, 300))
	require.Same(t, row.Object(1), row.Named("col1"))
	require.True(t, row.Named("col1").Equal(row.Object(1)))

	v, err := table.Get[int](row, 2)
	require.NoError(t, err)
	require.Equal(t, 300, v)
	require.Equal(t, emcore.Int16, row.Object(2).Type())
	require.Equal(t, "3.1416", row.Object(1).String())

	require.Nil(t, row.Object(3))
	require.ErrorIs(t, table.Set(row, 3, 1), emcore.ErrIndexOutOfRange)
	require.NoError(t, tb.AddRow(row))
	require.Equal(t, 1, tb.Len())
}

func TestTable_Columns(t *testing.T) {
	tb, err := table.New(table.Column{Name: "a", Type: emcore.Int32})
	require.NoError(t, err)
	c, err := tb.AddColumn(table.Column{Name: "b", Type: emcore.String})
	require.NoError(t, err)
	require.Equal(t, 2, c.ID)

	_, err = tb.AddColumn(table.Column{Name: "a", Type: emcore.Float32})
	require.ErrorIs(t, err, emcore.ErrInvalidOperation)
	_, err = tb.AddColumn(table.Column{ID: 1, Name: "z", Type: emcore.Float32})
	require.ErrorIs(t, err, emcore.ErrInvalidOperation)
	_, err = tb.AddColumn(table.Column{Name: "untyped"})
	require.ErrorIs(t, err, emcore.ErrInvalidOperation)

	for i := range 3 {
		r := tb.CreateRow()
		require.NoError(t, table.Set(r, 1, int32(i)))
		require.NoError(t, table.Set(r, 2, "s"))
		require.NoError(t, tb.AddRow(r))
	}

	// Inserting shifts the slots of every row.
	_, err = tb.InsertColumn(0, table.Column{ID: 10, Name: "first", Type: emcore.Float64})
	require.NoError(t, err)
	r, err := tb.Row(2)
	require.NoError(t, err)
	require.Equal(t, 3, r.Len())
	require.Equal(t, emcore.Float64, r.At(0).Type())
	require.Equal(t, int32(2), emcore.Get[int32](r.Named("a")))

	require.NoError(t, tb.MoveColumn(0, 2))
	require.Equal(t, "first", tb.ColumnAt(2).Name)
	require.Equal(t, emcore.Float64, r.At(2).Type())
	require.Equal(t, "s", r.At(1).String())

	require.NoError(t, tb.RemoveColumn(0))
	_, ok := tb.ColumnByName("a")
	require.False(t, ok)
	require.Nil(t, r.Named("a"))
	require.Equal(t, 2, r.Len())
	col, ok := tb.Column(2)
	require.True(t, ok)
	require.Equal(t, "b", col.Name)

	require.ErrorIs(t, tb.RemoveColumn(5), emcore.ErrIndexOutOfRange)
	require.ErrorIs(t, tb.MoveColumn(0, 2), emcore.ErrIndexOutOfRange)
	_, err = tb.InsertColumn(9, table.Column{Name: "x", Type: emcore.Int8})
	require.ErrorIs(t, err, emcore.ErrIndexOutOfRange)
}

func TestTable_AddRowChecksLayout(t *testing.T) {
	tb, err := table.New(table.Column{Name: "a", Type: emcore.Int32})
	require.NoError(t, err)
	stale := tb.CreateRow()
	_, err = tb.AddColumn(table.Column{Name: "b", Type: emcore.Int32})
	require.NoError(t, err)
	require.ErrorIs(t, tb.AddRow(stale), emcore.ErrInvalidOperation)

	other, err := table.New(
		table.Column{Name: "a", Type: emcore.Int32},
		table.Column{Name: "b", Type: emcore.String},
	)
	require.NoError(t, err)
	require.ErrorIs(t, tb.AddRow(other.CreateRow()), emcore.ErrInvalidOperation)

	_, err = tb.Row(0)
	require.ErrorIs(t, err, emcore.ErrIndexOutOfRange)
	require.ErrorIs(t, tb.DeleteRow(0), emcore.ErrIndexOutOfRange)
}

func TestTable_AddRowOnce(t *testing.T) {
	tb, err := table.New(
		table.Column{Name: "a", Type: emcore.Int32},
		table.Column{Name: "b", Type: emcore.Int32},
	)
	require.NoError(t, err)
	r := tb.CreateRow()
	require.NoError(t, table.Set(r, 2, 7))
	require.NoError(t, tb.AddRow(r))
	require.ErrorIs(t, tb.AddRow(r), emcore.ErrInvalidOperation)
	require.Equal(t, 1, tb.Len())

	// Column edits shift the row exactly once.
	_, err = tb.InsertColumn(0, table.Column{Name: "first", Type: emcore.Float32})
	require.NoError(t, err)
	require.Equal(t, 3, r.Len())
	b, err := table.Get[int](r, 2)
	require.NoError(t, err)
	require.Equal(t, 7, b)

	// A row added to one table cannot join another.
	other, err := table.New(
		table.Column{Name: "first", Type: emcore.Float32},
		table.Column{Name: "a", Type: emcore.Int32},
		table.Column{Name: "b", Type: emcore.Int32},
	)
	require.NoError(t, err)
	require.ErrorIs(t, other.AddRow(r), emcore.ErrInvalidOperation)

	// Once deleted, the row can be added again.
	require.NoError(t, tb.DeleteRow(0))
	require.NoError(t, tb.AddRow(r))
	require.Equal(t, 1, tb.Len())
}

func fill(t *testing.T, tb *table.Table, rows [][]string) {
	t.Helper()
	for _, values := range rows {
		r := tb.CreateRow()
		for i, v := range values {
			require.NoError(t, r.At(i).Parse(v))
		}
		require.NoError(t, tb.AddRow(r))
	}
}

func TestTable_Sort(t *testing.T) {
	tb, err := table.New(
		table.Column{Name: "defocus", Type: emcore.Float32},
		table.Column{Name: "micrograph", Type: emcore.String},
	)
	require.NoError(t, err)
	fill(t, tb, [][]string{
		{"9.5", "b.mrc"},
		{"10", "a.mrc"},
		{"2", "b.mrc"},
		{"10", "c.mrc"},
	})

	// Numeric, not lexical, ordering.
	require.NoError(t, tb.Sort("defocus"))
	var got []string
	for _, r := range tb.All() {
		got = append(got, r.String())
	}
	require.Equal(t, []string{"2\tb.mrc", "9.5\tb.mrc", "10\ta.mrc", "10\tc.mrc"}, got)

	require.NoError(t, tb.Sort("micrograph DESC", "defocus asc"))
	got = got[:0]
	for _, r := range tb.All() {
		got = append(got, r.String())
	}
	require.Equal(t, []string{"10\tc.mrc", "2\tb.mrc", "9.5\tb.mrc", "10\ta.mrc"}, got)

	require.ErrorIs(t, tb.Sort("missing"), emcore.ErrIndexOutOfRange)
	require.ErrorIs(t, tb.Sort("defocus sideways"), emcore.ErrInvalidOperation)
}

func TestTable_CloneIsDeep(t *testing.T) {
	tb, err := table.New(
		table.Column{Name: "x", Type: emcore.Int32},
		table.Column{Name: "y", Type: emcore.Int32},
	)
	require.NoError(t, err)
	fill(t, tb, [][]string{{"1", "2"}, {"3", "4"}})

	c := tb.Clone()
	require.True(t, c.Equal(tb))
	r, err := c.Row(0)
	require.NoError(t, err)
	require.NoError(t, emcore.Set(r.Named("x"), int32(100)))
	require.False(t, c.Equal(tb))

	orig, err := tb.Row(0)
	require.NoError(t, err)
	require.Equal(t, int32(1), emcore.Get[int32](orig.Named("x")))

	require.NoError(t, c.DeleteRow(0))
	require.Equal(t, 1, c.Len())
	c.Clear()
	require.Zero(t, c.Len())
	require.Equal(t, 2, c.NumColumns())
}
