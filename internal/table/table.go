package table

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// Table is an ordered collection of named columns over rows of values.
// Construction appends rows in place; transformations return new tables and
// never mutate their input.
type Table struct {
	cols  []string
	index map[string]int
	rows  [][]Value
}

// New creates an empty table with the given column names.
func New(cols ...string) (*Table, error) {
	t := &Table{
		cols:  slices.Clone(cols),
		index: make(map[string]int, len(cols)),
	}
	for i, c := range cols {
		if c == "" {
			return nil, fmt.Errorf("table: empty column name at position %d", i)
		}
		if _, dup := t.index[c]; dup {
			return nil, fmt.Errorf("table: duplicate column %q", c)
		}
		t.index[c] = i
	}
	return t, nil
}

// MustNew is New for statically known columns.
func MustNew(cols ...string) *Table {
	t, err := New(cols...)
	if err != nil {
		panic(err)
	}
	return t
}

// Columns returns the column names in order.
func (t *Table) Columns() []string { return slices.Clone(t.cols) }

// HasColumn reports whether the named column exists.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// NumRows returns the number of rows.
func (t *Table) NumRows() int { return len(t.rows) }

// NumCols returns the number of columns.
func (t *Table) NumCols() int { return len(t.cols) }

// Append adds a row. The value count must match the column count.
func (t *Table) Append(vals ...Value) error {
	if len(vals) != len(t.cols) {
		return fmt.Errorf("table: row has %d values, want %d", len(vals), len(t.cols))
	}
	row := make([]Value, len(vals))
	for i, v := range vals {
		if v == nil {
			v = Null{}
		}
		row[i] = v
	}
	t.rows = append(t.rows, row)
	return nil
}

// MustAppend is Append for statically known rows.
func (t *Table) MustAppend(vals ...Value) {
	if err := t.Append(vals...); err != nil {
		panic(err)
	}
}

// Row addresses one row for cell access.
type Row struct {
	t *Table
	i int
}

// Row returns the i-th row.
func (t *Table) Row(i int) Row { return Row{t: t, i: i} }

// Get returns the cell under the named column, or Null when the column does
// not exist.
func (r Row) Get(col string) Value {
	idx, ok := r.t.index[col]
	if !ok {
		return Null{}
	}
	return r.t.rows[r.i][idx]
}

// Values returns a copy of the row cells in column order.
func (r Row) Values() []Value { return slices.Clone(r.t.rows[r.i]) }

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	out := MustNew(t.cols...)
	out.rows = make([][]Value, len(t.rows))
	for i, row := range t.rows {
		out.rows[i] = slices.Clone(row)
	}
	return out
}

// Select projects the table onto the given columns, in the given order.
func (t *Table) Select(cols ...string) (*Table, error) {
	idxs := make([]int, len(cols))
	for i, c := range cols {
		idx, ok := t.index[c]
		if !ok {
			return nil, fmt.Errorf("table: unknown column %q", c)
		}
		idxs[i] = idx
	}
	out, err := New(cols...)
	if err != nil {
		return nil, err
	}
	for _, row := range t.rows {
		vals := make([]Value, len(idxs))
		for i, idx := range idxs {
			vals[i] = row[idx]
		}
		out.rows = append(out.rows, vals)
	}
	return out, nil
}

// Rename maps column names onto new names. Columns absent from the mapping
// keep their name.
func (t *Table) Rename(mapping map[string]string) (*Table, error) {
	cols := make([]string, len(t.cols))
	for i, c := range t.cols {
		if renamed, ok := mapping[c]; ok {
			cols[i] = renamed
		} else {
			cols[i] = c
		}
	}
	out, err := New(cols...)
	if err != nil {
		return nil, err
	}
	out.rows = make([][]Value, len(t.rows))
	for i, row := range t.rows {
		out.rows[i] = slices.Clone(row)
	}
	return out, nil
}

// Drop removes the given columns. Unknown names are ignored.
func (t *Table) Drop(cols ...string) *Table {
	dropped := make(map[string]bool, len(cols))
	for _, c := range cols {
		dropped[c] = true
	}
	var keep []string
	for _, c := range t.cols {
		if !dropped[c] {
			keep = append(keep, c)
		}
	}
	out, err := t.Select(keep...)
	if err != nil {
		// Select of existing columns cannot fail.
		panic(err)
	}
	return out
}

// WithColumn appends a computed column. An existing column of the same name
// is replaced in place.
func (t *Table) WithColumn(name string, fn func(Row) Value) (*Table, error) {
	if name == "" {
		return nil, fmt.Errorf("table: empty column name")
	}
	replace, exists := t.index[name]
	cols := slices.Clone(t.cols)
	if !exists {
		cols = append(cols, name)
	}
	out, err := New(cols...)
	if err != nil {
		return nil, err
	}
	for i, row := range t.rows {
		v := fn(t.Row(i))
		if v == nil {
			v = Null{}
		}
		vals := slices.Clone(row)
		if exists {
			vals[replace] = v
		} else {
			vals = append(vals, v)
		}
		out.rows = append(out.rows, vals)
	}
	return out, nil
}

// Filter keeps the rows the predicate accepts.
func (t *Table) Filter(pred func(Row) bool) *Table {
	out := MustNew(t.cols...)
	for i := range t.rows {
		if pred(t.Row(i)) {
			out.rows = append(out.rows, slices.Clone(t.rows[i]))
		}
	}
	return out
}

// Sort orders rows by the given columns ascending. The sort is stable, so
// equal rows keep their input order.
func (t *Table) Sort(cols ...string) (*Table, error) {
	idxs := make([]int, len(cols))
	for i, c := range cols {
		idx, ok := t.index[c]
		if !ok {
			return nil, fmt.Errorf("table: unknown column %q", c)
		}
		idxs[i] = idx
	}
	out := t.Clone()
	sort.SliceStable(out.rows, func(a, b int) bool {
		for _, idx := range idxs {
			if c := Compare(out.rows[a][idx], out.rows[b][idx]); c != 0 {
				return c < 0
			}
		}
		return false
	})
	return out, nil
}

// Equal reports whether two tables have identical columns and rows in
// identical order.
func (t *Table) Equal(other *Table) bool {
	if other == nil || !slices.Equal(t.cols, other.cols) || len(t.rows) != len(other.rows) {
		return false
	}
	for i, row := range t.rows {
		for j, v := range row {
			if !Equal(v, other.rows[i][j]) {
				return false
			}
		}
	}
	return true
}

// String renders the table as aligned text with a header row, suitable for
// golden files. Rows render in table order; sort first for stable output.
func (t *Table) String() string {
	widths := make([]int, len(t.cols))
	for i, c := range t.cols {
		widths[i] = len(c)
	}
	cells := make([][]string, len(t.rows))
	for i, row := range t.rows {
		cells[i] = make([]string, len(row))
		for j, v := range row {
			s := Format(v)
			cells[i][j] = s
			if len(s) > widths[j] {
				widths[j] = len(s)
			}
		}
	}
	var sb strings.Builder
	for j, c := range t.cols {
		if j > 0 {
			sb.WriteString("  ")
		}
		fmt.Fprintf(&sb, "%-*s", widths[j], c)
	}
	sb.WriteByte('\n')
	for i := range cells {
		for j, s := range cells[i] {
			if j > 0 {
				sb.WriteString("  ")
			}
			fmt.Fprintf(&sb, "%-*s", widths[j], s)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
