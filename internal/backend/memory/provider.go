// Package memory serves providers from in-memory tables. It is the
// reference backend: every other backend must produce the same rows the
// memory backend would for the same declaration and data.
package memory

import (
	"context"
	"fmt"

	"github.com/roach88/tally/internal/constraint"
	"github.com/roach88/tally/internal/engine"
	"github.com/roach88/tally/internal/schema"
	"github.com/roach88/tally/internal/table"
)

// Provider binds one provider declaration to a row table. The table's
// columns are the declaration's source expressions: an identifier,
// dimension or measure with an empty Expr reads the column named after
// the feature, a non-empty Expr names the column directly.
type Provider struct {
	decl *schema.Provider
	rows *table.Table
}

// New validates that every declared feature has a source column and
// returns the adapter. The implicit "count" measure needs no column.
func New(decl *schema.Provider, rows *table.Table) (*Provider, error) {
	if decl == nil {
		return nil, fmt.Errorf("memory: nil provider declaration")
	}
	if rows == nil {
		return nil, fmt.Errorf("memory: provider %q has no rows table", decl.Name())
	}
	p := &Provider{decl: decl, rows: rows}
	for _, name := range decl.Fields() {
		src, ok := p.source(name)
		if !ok {
			continue // synthesized, such as count
		}
		if !rows.HasColumn(src) {
			return nil, fmt.Errorf("memory: provider %q: feature %q reads missing column %q", decl.Name(), name, src)
		}
	}
	return p, nil
}

// MustNew is New for statically known providers, such as fixtures.
func MustNew(decl *schema.Provider, rows *table.Table) *Provider {
	p, err := New(decl, rows)
	if err != nil {
		panic(err)
	}
	return p
}

// Schema returns the provider declaration.
func (p *Provider) Schema() *schema.Provider { return p.decl }

// Evaluate filters the raw rows with the pushed-down predicate, then
// projects them onto the requested feature columns.
func (p *Provider) Evaluate(ctx context.Context, req engine.AdapterRequest) (*table.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	getters := make(map[string]func(table.Row) table.Value)
	resolve := func(name string) (func(table.Row) table.Value, error) {
		if g, ok := getters[name]; ok {
			return g, nil
		}
		g, err := p.getter(name)
		if err != nil {
			return nil, err
		}
		getters[name] = g
		return g, nil
	}

	where := req.Where
	if where == nil {
		where = constraint.None
	}
	for _, c := range where.Conditions() {
		if _, err := resolve(c.Target()); err != nil {
			return nil, err
		}
	}
	cols := make([]func(table.Row) table.Value, 0, len(req.Columns))
	for _, name := range req.Columns {
		g, err := resolve(name)
		if err != nil {
			return nil, err
		}
		cols = append(cols, g)
	}

	out, err := table.New(req.Columns...)
	if err != nil {
		return nil, fmt.Errorf("memory: provider %q: %w", p.decl.Name(), err)
	}
	for i := 0; i < p.rows.NumRows(); i++ {
		row := p.rows.Row(i)
		if !constraint.Matches(where, func(field string) table.Value {
			return getters[field](row)
		}) {
			continue
		}
		vals := make([]table.Value, len(cols))
		for j, g := range cols {
			vals[j] = g(row)
		}
		if err := out.Append(vals...); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// getter maps a declared feature name to its cell accessor.
func (p *Provider) getter(name string) (func(table.Row) table.Value, error) {
	if !p.decl.HasField(name) {
		return nil, fmt.Errorf("memory: provider %q has no feature %q", p.decl.Name(), name)
	}
	src, ok := p.source(name)
	if !ok {
		// The implicit count materializes as one per raw row.
		return func(table.Row) table.Value { return table.Int(1) }, nil
	}
	if !p.rows.HasColumn(src) {
		return nil, fmt.Errorf("memory: provider %q: feature %q reads missing column %q", p.decl.Name(), name, src)
	}
	return func(row table.Row) table.Value { return row.Get(src) }, nil
}

// source resolves the backing column of a feature. The second return is
// false for features synthesized without a column.
func (p *Provider) source(name string) (string, bool) {
	kind, ok := p.decl.FieldKind(name)
	if !ok {
		return "", false
	}
	switch kind {
	case schema.KindIdentifier:
		id, _ := p.decl.Identifier(name)
		if id.Expr != "" {
			return id.Expr, true
		}
		return name, true
	case schema.KindMeasure:
		m, _ := p.decl.Measure(name)
		if m.Name == schema.CountMeasure && m.Expr == "" {
			return "", false
		}
		if m.Expr != "" {
			return m.Expr, true
		}
		return name, true
	default:
		d, _ := p.decl.Dimension(name)
		if d.Expr != "" {
			return d.Expr, true
		}
		return name, true
	}
}
