// Package testutil provides the shared provider fixtures and deterministic
// helpers the package tests build on.
package testutil

import (
	"github.com/roach88/tally/internal/registry"
	"github.com/roach88/tally/internal/schema"
	"github.com/roach88/tally/internal/table"
)

// PeopleProvider enumerates people with their name and an aggregable age.
func PeopleProvider() *schema.Provider {
	return schema.NewProvider("people").
		WithIdentifier(schema.Identifier{Unit: "person", Expr: "id", Role: schema.RolePrimary}).
		WithDimension(schema.Dimension{Name: "name"}).
		WithMeasure(schema.Measure{Name: "age"}).
		WithPartition(schema.Dimension{Name: "ds"}).
		MustBuild()
}

// People2Provider holds one row per person and links people to geographies.
func People2Provider() *schema.Provider {
	return schema.NewProvider("people2").
		WithIdentifier(schema.Identifier{Unit: "person", Expr: "id", Role: schema.RoleUnique}).
		WithIdentifier(schema.Identifier{Unit: "geography", Expr: "id_geography"}).
		WithPartition(schema.Dimension{Name: "ds"}).
		MustBuild()
}

// GeographiesProvider enumerates geographies with a name and population.
func GeographiesProvider() *schema.Provider {
	return schema.NewProvider("geographies").
		WithIdentifier(schema.Identifier{Unit: "geography", Expr: "id", Role: schema.RolePrimary}).
		WithDimension(schema.Dimension{Name: "name"}).
		WithMeasure(schema.Measure{Name: "population"}).
		WithPartition(schema.Dimension{Name: "ds"}).
		MustBuild()
}

// TransactionsProvider enumerates transactions between a buyer and a
// seller. Its partition must be constrained in every query that touches it.
func TransactionsProvider() *schema.Provider {
	return schema.NewProvider("transactions").
		WithIdentifier(schema.Identifier{Unit: "transaction", Expr: "id", Role: schema.RolePrimary}).
		WithIdentifier(schema.Identifier{Unit: "person:buyer", Expr: "id_buyer"}).
		WithIdentifier(schema.Identifier{Unit: "person:seller", Expr: "id_seller"}).
		WithMeasure(schema.Measure{Name: "value"}).
		WithPartition(schema.Dimension{Name: "ds", RequiresConstraint: true}).
		MustBuild()
}

// Graph registers the four standard fixtures in their canonical order:
// people, people2, geographies, transactions.
func Graph() *registry.Registry {
	r := registry.New()
	r.MustRegister(PeopleProvider())
	r.MustRegister(People2Provider())
	r.MustRegister(GeographiesProvider())
	r.MustRegister(TransactionsProvider())
	return r
}

// PeopleData is the row set behind PeopleProvider. Columns follow the
// declared expressions, one row per person per partition.
func PeopleData() *table.Table {
	t := table.MustNew("id", "name", "age", "ds")
	t.MustAppend(table.String("p1"), table.String("Ada"), table.Int(34), table.String("2018-01-01"))
	t.MustAppend(table.String("p2"), table.String("Bob"), table.Int(17), table.String("2018-01-01"))
	t.MustAppend(table.String("p3"), table.String("Cyd"), table.Int(51), table.String("2018-01-01"))
	t.MustAppend(table.String("p4"), table.String("Dan"), table.Int(22), table.String("2018-01-01"))
	return t
}

// People2Data links people to geographies, one row per person.
func People2Data() *table.Table {
	t := table.MustNew("id", "id_geography", "ds")
	t.MustAppend(table.String("p1"), table.String("g1"), table.String("2018-01-01"))
	t.MustAppend(table.String("p2"), table.String("g1"), table.String("2018-01-01"))
	t.MustAppend(table.String("p3"), table.String("g2"), table.String("2018-01-01"))
	t.MustAppend(table.String("p4"), table.String("g2"), table.String("2018-01-01"))
	return t
}

// GeographiesData is the row set behind GeographiesProvider.
func GeographiesData() *table.Table {
	t := table.MustNew("id", "name", "population", "ds")
	t.MustAppend(table.String("g1"), table.String("north"), table.Int(12000), table.String("2018-01-01"))
	t.MustAppend(table.String("g2"), table.String("south"), table.Int(8000), table.String("2018-01-01"))
	return t
}

// TransactionsData is the row set behind TransactionsProvider. Sellers p1
// and p3 carry two transactions each, p4 one.
func TransactionsData() *table.Table {
	t := table.MustNew("id", "id_buyer", "id_seller", "value", "ds")
	t.MustAppend(table.String("t1"), table.String("p2"), table.String("p1"), table.Float(100), table.String("2018-01-01"))
	t.MustAppend(table.String("t2"), table.String("p3"), table.String("p1"), table.Float(40), table.String("2018-01-01"))
	t.MustAppend(table.String("t3"), table.String("p1"), table.String("p3"), table.Float(25), table.String("2018-01-01"))
	t.MustAppend(table.String("t4"), table.String("p2"), table.String("p3"), table.Float(60), table.String("2018-01-01"))
	t.MustAppend(table.String("t5"), table.String("p1"), table.String("p4"), table.Float(10), table.String("2018-01-01"))
	return t
}
