package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProvider(t *testing.T) *Provider {
	t.Helper()
	p, err := NewProvider("transactions").
		WithIdentifier(Identifier{Unit: "transaction", Role: RolePrimary}).
		WithIdentifier(Identifier{Unit: "person:buyer", Expr: "id_buyer"}).
		WithIdentifier(Identifier{Unit: "person:seller", Expr: "id_seller"}).
		WithMeasure(Measure{Name: "value", Shared: false}).
		WithPartition(Dimension{Name: "ds", RequiresConstraint: true}).
		Build()
	require.NoError(t, err)
	return p
}

func TestBuilderProducesFrozenProvider(t *testing.T) {
	p := testProvider(t)

	assert.Equal(t, "transactions", p.Name())
	assert.Equal(t, UnitType("transaction"), p.OwningUnit())
	assert.Len(t, p.Identifiers(), 3)
	assert.Len(t, p.Partitions(), 1)
	assert.Empty(t, p.Dimensions(), "partitions are not plain dimensions")
}

func TestBuilderIsImmutable(t *testing.T) {
	base := NewProvider("people").
		WithIdentifier(Identifier{Unit: "person", Role: RolePrimary})

	a, err := base.WithDimension(Dimension{Name: "name"}).Build()
	require.NoError(t, err)
	b, err := base.WithDimension(Dimension{Name: "age"}).Build()
	require.NoError(t, err)

	_, ok := a.Dimension("age")
	assert.False(t, ok, "forked builder must not leak into sibling")
	_, ok = b.Dimension("name")
	assert.False(t, ok, "forked builder must not leak into sibling")
	_, ok = a.Dimension("name")
	assert.True(t, ok)
}

func TestBuildAddsImplicitCount(t *testing.T) {
	p := testProvider(t)

	count, ok := p.Measure(CountMeasure)
	require.True(t, ok, "every provider carries the implicit count measure")
	assert.True(t, count.Shared)
}

func TestBuildKeepsDeclaredCount(t *testing.T) {
	p, err := NewProvider("people").
		WithIdentifier(Identifier{Unit: "person", Role: RolePrimary}).
		WithMeasure(Measure{Name: "count", Expr: "n_rows", Shared: true}).
		Build()
	require.NoError(t, err)

	count, ok := p.Measure(CountMeasure)
	require.True(t, ok)
	assert.Equal(t, "n_rows", count.Expr, "declared count must not be replaced")
	assert.Len(t, p.Measures(), 1)
}

func TestBuildRejectsMissingOwningIdentifier(t *testing.T) {
	_, err := NewProvider("orphan").
		WithIdentifier(Identifier{Unit: "person"}).
		Build()
	assert.ErrorContains(t, err, "no primary or unique identifier")
}

func TestBuildRejectsTwoOwningIdentifiers(t *testing.T) {
	_, err := NewProvider("twins").
		WithIdentifier(Identifier{Unit: "person", Role: RolePrimary}).
		WithIdentifier(Identifier{Unit: "account", Role: RoleUnique}).
		Build()
	assert.ErrorContains(t, err, "more than one")
}

func TestBuildRejectsDuplicateFeatureNames(t *testing.T) {
	_, err := NewProvider("dupes").
		WithIdentifier(Identifier{Unit: "person", Role: RolePrimary}).
		WithDimension(Dimension{Name: "age"}).
		WithMeasure(Measure{Name: "age"}).
		Build()
	assert.ErrorContains(t, err, "both")
}

func TestBuildRejectsInvalidNames(t *testing.T) {
	_, err := NewProvider("1people").
		WithIdentifier(Identifier{Unit: "person", Role: RolePrimary}).
		Build()
	assert.ErrorContains(t, err, "invalid provider name")

	_, err = NewProvider("people").
		WithIdentifier(Identifier{Unit: "person", Role: RolePrimary}).
		WithDimension(Dimension{Name: "bad name"}).
		Build()
	assert.ErrorContains(t, err, "invalid dimension name")
}

func TestBuildRejectsUnknownRole(t *testing.T) {
	_, err := NewProvider("people").
		WithIdentifier(Identifier{Unit: "person", Role: Role("owner")}).
		Build()
	assert.ErrorContains(t, err, "unknown identifier role")
}

func TestIdentifierForPrefersMostSpecific(t *testing.T) {
	p, err := NewProvider("guests").
		WithIdentifier(Identifier{Unit: "account", Role: RolePrimary}).
		WithIdentifier(Identifier{Unit: "account:guest"}).
		Build()
	require.NoError(t, err)

	id, ok := p.IdentifierFor("account:guest")
	require.True(t, ok)
	assert.Equal(t, UnitType("account:guest"), id.Unit, "longest matching name wins")

	id, ok = p.IdentifierFor("account")
	require.True(t, ok)
	assert.Equal(t, UnitType("account"), id.Unit, "qualified identifier must not cover its base")
}

func TestIdentifierForUnmatched(t *testing.T) {
	p := testProvider(t)

	_, ok := p.IdentifierFor("geography")
	assert.False(t, ok)
}

func TestFieldLookup(t *testing.T) {
	p := testProvider(t)

	assert.True(t, p.HasField("value"))
	assert.True(t, p.HasField("ds"))
	assert.True(t, p.HasField("person:seller"))
	assert.False(t, p.HasField("name"))

	kind, ok := p.FieldKind("ds")
	require.True(t, ok)
	assert.Equal(t, KindPartition, kind)

	kind, ok = p.FieldKind("transaction")
	require.True(t, ok)
	assert.Equal(t, KindIdentifier, kind)
}

func TestFieldsSorted(t *testing.T) {
	p := testProvider(t)

	fields := p.Fields()
	assert.Equal(t, []string{"count", "ds", "person:buyer", "person:seller", "transaction", "value"}, fields)
}

func TestMeasureAsDimension(t *testing.T) {
	m := Measure{Name: "value", Expr: "amount", Shared: true}
	d := m.AsDimension()

	assert.Equal(t, "value", d.Name)
	assert.Equal(t, "amount", d.Expr)
	assert.True(t, d.Shared)
	assert.False(t, d.Partition)
}
