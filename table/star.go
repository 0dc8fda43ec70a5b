package table

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/TuSKan/emcore"
)

var starFormat = FormatInfo{
	Name:       "star",
	Extensions: []string{"star", "xmd"},
	New:        func() Impl { return star{} },
}

// star reads and writes STAR files: data_ blocks holding either one loop_
// of rows or a list of "_label value" pairs, read as a single row.
type star struct{}

type starBlock struct {
	name   string
	labels []string
	types  []emcore.Type // declared in label comments, used when there are no rows
	rows   [][]string
	loop   bool
	line   int
}

func (star) Decode(r io.Reader, log *slog.Logger) ([]Block, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64<<10), 16<<20)
	var (
		raw []*starBlock
		cur *starBlock
	)
	bad := func(line int, format string, args ...any) error {
		return emcore.Errorf("read", emcore.ErrInvalidFormat, "line %d: %s", line, fmt.Sprintf(format, args...))
	}
	for n := 1; sc.Scan(); n++ {
		f, comment, err := starFields(sc.Text())
		if err != nil {
			return nil, bad(n, "%v", err)
		}
		if len(f) == 0 {
			continue
		}
		tok := f[0]
		switch {
		case strings.HasPrefix(tok, "data_"):
			cur = &starBlock{name: tok[len("data_"):], line: n}
			raw = append(raw, cur)
		case cur == nil:
			return nil, bad(n, "%q outside of a data_ block", tok)
		case tok == "loop_":
			if cur.loop || len(cur.labels) > 0 {
				return nil, bad(n, "second table in block %q", cur.name)
			}
			cur.loop = true
		case strings.HasPrefix(tok, "_"):
			if cur.loop {
				if len(cur.rows) > 0 {
					return nil, bad(n, "label %s after loop data", tok)
				}
				cur.labels = append(cur.labels, tok[1:])
				cur.types = append(cur.types, starHint(comment))
				continue
			}
			if len(f) != 2 {
				return nil, bad(n, "label %s needs exactly one value", tok)
			}
			if len(cur.rows) == 0 {
				cur.rows = [][]string{nil}
			}
			cur.labels = append(cur.labels, tok[1:])
			cur.types = append(cur.types, emcore.NullType)
			cur.rows[0] = append(cur.rows[0], f[1])
		default:
			if !cur.loop || len(cur.labels) == 0 {
				return nil, bad(n, "value %q without labels", tok)
			}
			if len(f) != len(cur.labels) {
				return nil, bad(n, "%d values for %d labels", len(f), len(cur.labels))
			}
			cur.rows = append(cur.rows, f)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, emcore.NewError("read", "", emcore.ErrIO, err)
	}

	blocks := make([]Block, 0, len(raw))
	for _, b := range raw {
		t, err := b.table()
		if err != nil {
			return nil, bad(b.line, "block %q: %v", b.name, err)
		}
		log.Debug("parsed STAR block", "name", b.name, "columns", t.NumColumns(), "rows", t.Len())
		blocks = append(blocks, Block{Name: b.name, Table: t})
	}
	return blocks, nil
}

// starFields splits a line into whitespace separated values and returns
// the trailing comment. Quoted values may contain blanks and the other quote
// character; a quote only closes a value when a blank or the end of the line
// follows it. '#' outside quotes starts the comment.
func starFields(line string) ([]string, string, error) {
	var out []string
	for i := 0; i < len(line); {
		switch c := line[i]; c {
		case ' ', '\t', '\r':
			i++
		case '#':
			return out, line[i+1:], nil
		case '"', '\'':
			j := closingQuote(line, i+1, c)
			if j < 0 {
				return nil, "", fmt.Errorf("unterminated quote at column %d", i+1)
			}
			out = append(out, line[i+1:j])
			i = j + 1
		default:
			j := strings.IndexAny(line[i:], " \t\r")
			if j < 0 {
				j = len(line) - i
			}
			out = append(out, line[i:i+j])
			i += j
		}
	}
	return out, "", nil
}

func closingQuote(line string, from int, q byte) int {
	for k := from; k < len(line); k++ {
		if line[k] == q && (k+1 == len(line) || isBlank(line[k+1])) {
			return k
		}
	}
	return -1
}

func isBlank(c byte) bool { return c == ' ' || c == '\t' || c == '\r' }

// starHint reads the type name written after the column number of a loop
// label ("_rlnDefocusU #3 float32").
func starHint(comment string) emcore.Type {
	f := strings.Fields(comment)
	if len(f) < 2 {
		return emcore.NullType
	}
	t, _ := emcore.TypeByName(f[1])
	return t
}

// starType returns the narrowest type holding every value.
func starType(values []string) emcore.Type {
	t := emcore.NullType
	for _, v := range values {
		t = promote(t, emcore.InferFromString(v))
	}
	if t.IsNull() {
		return emcore.String
	}
	return t
}

func promote(a, b emcore.Type) emcore.Type {
	switch {
	case a.IsNull() || a == b:
		return b
	case a == emcore.String || b == emcore.String:
		return emcore.String
	case a.IsInteger() && b.IsInteger():
		return emcore.Int64
	case a == emcore.Int64 || b == emcore.Int64 || a == emcore.Float64 || b == emcore.Float64:
		return emcore.Float64
	}
	return emcore.Float32
}

func (b *starBlock) table() (*Table, error) {
	t := &Table{}
	col := make([]string, len(b.rows))
	for i, label := range b.labels {
		for j, r := range b.rows {
			col[j] = r[i]
		}
		typ := starType(col)
		if len(b.rows) == 0 && !b.types[i].IsNull() {
			typ = b.types[i]
		}
		if _, err := t.AddColumn(Column{Name: label, Type: typ}); err != nil {
			return nil, err
		}
	}
	for _, values := range b.rows {
		r := t.CreateRow()
		for i, v := range values {
			if err := r.objs[i].Parse(v); err != nil {
				return nil, err
			}
		}
		if err := t.AddRow(r); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (star) Encode(w io.Writer, blocks []Block) error {
	bw := bufio.NewWriter(w)
	for i, b := range blocks {
		if i > 0 {
			bw.WriteString("\n")
		}
		fmt.Fprintf(bw, "\ndata_%s\n\nloop_\n", b.Name)
		t := b.Table
		for j, c := range t.cols {
			if len(t.rows) == 0 {
				fmt.Fprintf(bw, "_%s #%d %s\n", c.Name, j+1, c.Type)
				continue
			}
			fmt.Fprintf(bw, "_%s #%d\n", c.Name, j+1)
		}

		cells := make([][]string, len(t.rows))
		width := make([]int, len(t.cols))
		for r, row := range t.rows {
			cells[r] = make([]string, len(row.objs))
			for j := range row.objs {
				s, err := starQuote(row.objs[j].String())
				if err != nil {
					return emcore.Errorf("write", emcore.ErrInvalidOperation, "block %q column %q: %v", b.Name, t.cols[j].Name, err)
				}
				cells[r][j] = s
				width[j] = max(width[j], len(s))
			}
		}
		for _, row := range cells {
			for j, s := range row {
				if j > 0 {
					bw.WriteByte(' ')
				}
				if j < len(row)-1 {
					s += strings.Repeat(" ", width[j]-len(s))
				}
				bw.WriteString(s)
			}
			bw.WriteByte('\n')
		}
	}
	return bw.Flush()
}

// starQuote returns s as a single STAR value. Values are quoted with a
// delimiter that is never followed by a blank inside s; values needing both
// delimiters that way, or spanning lines, cannot be written.
func starQuote(s string) (string, error) {
	if strings.ContainsAny(s, "\r\n") {
		return "", fmt.Errorf("value %q spans lines", s)
	}
	plain := s != "" && !strings.ContainsAny(s, " \t\"'#") &&
		!strings.HasPrefix(s, "_") && !strings.HasPrefix(s, "data_") && s != "loop_"
	if plain {
		return s, nil
	}
	for _, q := range []string{`"`, "'"} {
		if !strings.Contains(s, q+" ") && !strings.Contains(s, q+"\t") {
			return q + s + q, nil
		}
	}
	return "", fmt.Errorf("value %q cannot be quoted", s)
}
