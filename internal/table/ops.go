package table

import (
	"fmt"
	"strings"
)

// AggFunc folds the cells of one column within a group into a single value.
type AggFunc func(vals []Value) Value

// Sum adds numeric cells. Nulls are skipped; a group of only nulls sums to
// zero, matching how aggregation treats absent measures.
func Sum(vals []Value) Value {
	var total float64
	for _, v := range vals {
		if f, ok := AsFloat(v); ok {
			total += f
		}
	}
	return Float(total)
}

// SumOfSquares adds squared numeric cells, skipping nulls.
func SumOfSquares(vals []Value) Value {
	var total float64
	for _, v := range vals {
		if f, ok := AsFloat(v); ok {
			total += f * f
		}
	}
	return Float(total)
}

// CountNonNull counts cells with a value.
func CountNonNull(vals []Value) Value {
	var n int64
	for _, v := range vals {
		if !IsNull(v) {
			n++
		}
	}
	return Int(n)
}

// First returns the first cell of the group.
func First(vals []Value) Value {
	if len(vals) == 0 {
		return Null{}
	}
	return vals[0]
}

// Aggregation names one column fold within GroupAggregate.
type Aggregation struct {
	// Col is the source column.
	Col string
	// As is the output column. Empty keeps the source name.
	As string
	// Fn folds the group cells.
	Fn AggFunc
}

// GroupAggregate groups rows by the key columns and folds each aggregation
// over every group. Output rows appear in first-seen key order, so identical
// input order yields identical output order. Grouping with no keys folds the
// whole table into a single row, even when the table is empty.
func (t *Table) GroupAggregate(keys []string, aggs []Aggregation) (*Table, error) {
	keyIdx := make([]int, len(keys))
	for i, k := range keys {
		idx, ok := t.index[k]
		if !ok {
			return nil, fmt.Errorf("table: unknown group key %q", k)
		}
		keyIdx[i] = idx
	}
	aggIdx := make([]int, len(aggs))
	outCols := append([]string(nil), keys...)
	for i, a := range aggs {
		idx, ok := t.index[a.Col]
		if !ok {
			return nil, fmt.Errorf("table: unknown aggregation column %q", a.Col)
		}
		if a.Fn == nil {
			return nil, fmt.Errorf("table: aggregation %q has no function", a.Col)
		}
		aggIdx[i] = idx
		name := a.As
		if name == "" {
			name = a.Col
		}
		outCols = append(outCols, name)
	}

	type group struct {
		keyVals []Value
		cells   [][]Value
	}
	var order []string
	groups := make(map[string]*group)
	for _, row := range t.rows {
		var kb strings.Builder
		keyVals := make([]Value, len(keyIdx))
		for i, idx := range keyIdx {
			keyVals[i] = row[idx]
			kb.WriteString(Key(row[idx]))
			kb.WriteByte('\x00')
		}
		k := kb.String()
		g, ok := groups[k]
		if !ok {
			g = &group{keyVals: keyVals, cells: make([][]Value, len(aggs))}
			groups[k] = g
			order = append(order, k)
		}
		for i, idx := range aggIdx {
			g.cells[i] = append(g.cells[i], row[idx])
		}
	}
	if len(keys) == 0 && len(order) == 0 {
		// Whole-table aggregation over zero rows still yields one row.
		groups[""] = &group{cells: make([][]Value, len(aggs))}
		order = append(order, "")
	}

	out, err := New(outCols...)
	if err != nil {
		return nil, err
	}
	for _, k := range order {
		g := groups[k]
		vals := append([]Value(nil), g.keyVals...)
		for i, a := range aggs {
			vals = append(vals, a.Fn(g.cells[i]))
		}
		out.rows = append(out.rows, vals)
	}
	return out, nil
}

// JoinKind selects the join behavior for unmatched left rows.
type JoinKind string

const (
	// JoinInner drops left rows without a right match.
	JoinInner JoinKind = "inner"
	// JoinLeft keeps left rows without a match and fills right columns with
	// nulls.
	JoinLeft JoinKind = "left"
)

// JoinKey pairs a left column with the right column it must equal.
type JoinKey struct {
	Left  string
	Right string
}

// Join merges the receiver with the right table on equality of the key
// pairs. Output columns are the left columns followed by the right non-key
// columns; overlapping non-key names are an error, so callers prefix child
// columns before joining. Right matches emit in right-table order.
func (t *Table) Join(right *Table, on []JoinKey, kind JoinKind) (*Table, error) {
	if kind != JoinInner && kind != JoinLeft {
		return nil, fmt.Errorf("table: unknown join kind %q", kind)
	}
	if len(on) == 0 {
		return nil, fmt.Errorf("table: join requires at least one key")
	}
	leftIdx := make([]int, len(on))
	rightIdx := make([]int, len(on))
	rightKeyCols := make(map[string]bool, len(on))
	for i, k := range on {
		li, ok := t.index[k.Left]
		if !ok {
			return nil, fmt.Errorf("table: unknown left join key %q", k.Left)
		}
		ri, ok := right.index[k.Right]
		if !ok {
			return nil, fmt.Errorf("table: unknown right join key %q", k.Right)
		}
		leftIdx[i] = li
		rightIdx[i] = ri
		rightKeyCols[k.Right] = true
	}

	var carryCols []string
	var carryIdx []int
	for i, c := range right.cols {
		if rightKeyCols[c] {
			continue
		}
		if t.HasColumn(c) {
			return nil, fmt.Errorf("table: join would duplicate column %q", c)
		}
		carryCols = append(carryCols, c)
		carryIdx = append(carryIdx, i)
	}

	out, err := New(append(t.Columns(), carryCols...)...)
	if err != nil {
		return nil, err
	}

	buckets := make(map[string][]int, right.NumRows())
	for i, row := range right.rows {
		var kb strings.Builder
		for _, idx := range rightIdx {
			kb.WriteString(Key(row[idx]))
			kb.WriteByte('\x00')
		}
		k := kb.String()
		buckets[k] = append(buckets[k], i)
	}

	for _, row := range t.rows {
		var kb strings.Builder
		for _, idx := range leftIdx {
			kb.WriteString(Key(row[idx]))
			kb.WriteByte('\x00')
		}
		matches := buckets[kb.String()]
		if len(matches) == 0 {
			if kind == JoinLeft {
				vals := append([]Value(nil), row...)
				for range carryIdx {
					vals = append(vals, Null{})
				}
				out.rows = append(out.rows, vals)
			}
			continue
		}
		for _, ri := range matches {
			vals := append([]Value(nil), row...)
			for _, idx := range carryIdx {
				vals = append(vals, right.rows[ri][idx])
			}
			out.rows = append(out.rows, vals)
		}
	}
	return out, nil
}
