package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tally/internal/registry"
	"github.com/roach88/tally/internal/schema"
	"github.com/roach88/tally/internal/testutil"
)

func TestRegisterBumpsVersion(t *testing.T) {
	r := registry.New()
	assert.Equal(t, uint64(0), r.Version(), "the empty graph is version zero")

	empty := r.Snapshot()
	require.NoError(t, r.Register(testutil.PeopleProvider()))
	assert.Equal(t, uint64(1), r.Version())
	assert.Equal(t, uint64(0), empty.Version(), "snapshots are immutable once taken")
	assert.False(t, empty.HasUnit("person"))
	assert.True(t, r.Snapshot().HasUnit("person"))
}

func TestRegisterRejectsDuplicateProvider(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.Register(testutil.PeopleProvider()))

	err := r.Register(testutil.PeopleProvider())
	assert.ErrorContains(t, err, "already registered")
	assert.Equal(t, uint64(1), r.Version())
}

func TestRegisterRejectsNonSharedCollision(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.Register(testutil.PeopleProvider()))

	clash := schema.NewProvider("people_extra").
		WithIdentifier(schema.Identifier{Unit: "person", Role: schema.RoleUnique}).
		WithDimension(schema.Dimension{Name: "name"}).
		MustBuild()

	err := r.Register(clash)
	require.ErrorContains(t, err, "not shared")

	// A failed registration must leave the graph untouched.
	assert.Equal(t, uint64(1), r.Version())
	_, ok := r.Snapshot().Provider("people_extra")
	assert.False(t, ok)
}

func TestSharedFeaturesMergeProviders(t *testing.T) {
	r := registry.New()
	a := schema.NewProvider("stats_a").
		WithIdentifier(schema.Identifier{Unit: "person", Role: schema.RoleUnique}).
		WithDimension(schema.Dimension{Name: "region", Shared: true}).
		MustBuild()
	b := schema.NewProvider("stats_b").
		WithIdentifier(schema.Identifier{Unit: "person", Role: schema.RoleUnique}).
		WithDimension(schema.Dimension{Name: "region", Shared: true}).
		MustBuild()
	require.NoError(t, r.Register(a))
	require.NoError(t, r.Register(b))

	dim, ok := r.Snapshot().ResolveDimension("person", "region")
	require.True(t, ok)
	require.Len(t, dim.Providers, 2, "shared features accumulate their providers")
	assert.Equal(t, "stats_a", dim.Providers[0].Name(), "registration order is preserved")
}

func TestGraphKeyExposure(t *testing.T) {
	snap := testutil.Graph().Snapshot()

	fks := snap.ForeignKeysFor("transaction")
	require.Len(t, fks, 2)
	assert.Equal(t, "person:buyer", fks[0].Name)
	assert.Equal(t, "person:seller", fks[1].Name)

	fks = snap.ForeignKeysFor("person")
	require.Len(t, fks, 1, "only the uniquely held side exposes forward keys")
	assert.Equal(t, "geography", fks[0].Name)

	rks := snap.ReverseKeysFor("person:seller")
	require.Len(t, rks, 1)
	assert.Equal(t, "transaction", rks[0].Name)

	rks = snap.ReverseKeysFor("geography")
	require.Len(t, rks, 1)
	assert.Equal(t, "person", rks[0].Name)

	assert.Empty(t, snap.ForeignKeysFor("person:seller"), "a non-unique identifier exposes no forward keys")
}

func TestGraphFeatureExposure(t *testing.T) {
	snap := testutil.Graph().Snapshot()

	dims := snap.DimensionsFor("person")
	require.Len(t, dims, 1)
	assert.Equal(t, "name", dims[0].Name)

	personMeasures := snap.MeasuresFor("person")
	require.Len(t, personMeasures, 2)
	assert.Equal(t, "age", personMeasures[0].Name)
	assert.Equal(t, "count", personMeasures[1].Name)

	measures := snap.MeasuresFor("transaction")
	require.Len(t, measures, 2)
	assert.Equal(t, "count", measures[0].Name)
	assert.Equal(t, "value", measures[1].Name)

	count, ok := snap.ResolveMeasure("person", "count")
	require.True(t, ok)
	assert.Len(t, count.Providers, 2, "people and people2 both expose the shared count")
}

func TestLatticeFallback(t *testing.T) {
	snap := testutil.Graph().Snapshot()

	// person:seller has no dimensions of its own; requests fall back to the
	// person entry.
	dim, ok := snap.ResolveDimension("person:seller", "name")
	require.True(t, ok)
	assert.Equal(t, schema.UnitType("person:seller"), dim.Unit)
	assert.True(t, dim.ProvidedBy("people"))

	_, ok = snap.ResolveDimension("transaction", "name")
	assert.False(t, ok, "the lattice never crosses unit roots")

	part, ok := snap.ResolvePartition("person:seller", "ds")
	require.True(t, ok)
	assert.Equal(t, "ds", part.Name)
}

func TestIdentifierForPrefersSpecificEntry(t *testing.T) {
	snap := testutil.Graph().Snapshot()

	unit, ok := snap.IdentifierFor("person:seller")
	require.True(t, ok)
	assert.Equal(t, schema.UnitType("person:seller"), unit)

	unit, ok = snap.IdentifierFor("person:customer")
	require.True(t, ok)
	assert.Equal(t, schema.UnitType("person"), unit, "unknown qualifiers fall back to the base type")

	_, ok = snap.IdentifierFor("order")
	assert.False(t, ok)
}

func TestProvidersFor(t *testing.T) {
	snap := testutil.Graph().Snapshot()

	names := func(ps []*schema.Provider) []string {
		var out []string
		for _, p := range ps {
			out = append(out, p.Name())
		}
		return out
	}

	assert.Equal(t, []string{"people", "people2"}, names(snap.ProvidersFor("person")))
	assert.Equal(t, []string{"people", "people2"}, names(snap.ProvidersFor("person:seller")),
		"a unique base identifier serves qualified requests")
	assert.Equal(t, []string{"transactions"}, names(snap.ProvidersFor("transaction")))
	assert.Equal(t, []string{"geographies"}, names(snap.ProvidersFor("geography")),
		"a foreign reference is not a base")
}

func TestForeignKeyMasking(t *testing.T) {
	r := registry.New()
	sessions := schema.NewProvider("sessions").
		WithIdentifier(schema.Identifier{Unit: "session", Role: schema.RolePrimary}).
		WithIdentifier(schema.Identifier{Unit: "person", Expr: "id_person"}).
		MustBuild()
	require.NoError(t, r.Register(sessions))
	snap := r.Snapshot()

	exact, ok := snap.ForeignKey("session", "person")
	require.True(t, ok)
	assert.Empty(t, exact.Mask)

	masked, ok := snap.ForeignKey("session", "person:viewer")
	require.True(t, ok, "a base key serves qualified hops")
	assert.Equal(t, "person", masked.Name)
	assert.Equal(t, "person:viewer", masked.Mask)
	assert.Equal(t, "person:viewer", masked.ExposedName())

	_, ok = snap.ForeignKey("session", "geography")
	assert.False(t, ok)
}

func TestForeignKeyNeverWidens(t *testing.T) {
	snap := testutil.Graph().Snapshot()

	// transaction declares person:buyer and person:seller; a bare "person"
	// hop is ambiguous and must not resolve.
	_, ok := snap.ForeignKey("transaction", "person")
	assert.False(t, ok)
}

func TestSummaries(t *testing.T) {
	snap := testutil.Graph().Snapshot()

	sums := snap.Summaries()
	require.Len(t, sums, 5)
	assert.Equal(t, schema.UnitType("geography"), sums[0].Unit, "summaries sort by unit name")

	byUnit := make(map[schema.UnitType]registry.UnitSummary)
	for _, s := range sums {
		byUnit[s.Unit] = s
	}
	assert.Equal(t, []string{"person:buyer", "person:seller"}, byUnit["transaction"].ForeignKeys)
	assert.Equal(t, []string{"transaction"}, byUnit["person:seller"].ReverseKeys)
	assert.Equal(t, []string{"name"}, byUnit["person"].Dimensions)
	assert.Equal(t, []string{"age", "count"}, byUnit["person"].Measures)
	assert.Equal(t, []string{"people", "people2"}, byUnit["person"].Providers)
}

func TestDeregisterRemovesProvider(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.Register(testutil.PeopleProvider()))
	require.NoError(t, r.Register(testutil.GeographiesProvider()))
	before := r.Snapshot()

	require.NoError(t, r.Deregister("geographies"))

	assert.Equal(t, uint64(3), r.Version(), "removal bumps the graph version")
	assert.False(t, r.Snapshot().HasUnit("geography"))
	_, ok := r.Snapshot().Provider("geographies")
	assert.False(t, ok)
	assert.True(t, before.HasUnit("geography"), "snapshots taken earlier keep the provider")
}

func TestDeregisterUnknownProvider(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.Register(testutil.PeopleProvider()))

	err := r.Deregister("geographies")
	require.ErrorContains(t, err, "not registered")
	assert.Equal(t, uint64(1), r.Version(), "failed removal leaves the graph untouched")
}

func TestDeregisterPreservesRegistrationOrder(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.Register(testutil.PeopleProvider()))
	require.NoError(t, r.Register(testutil.People2Provider()))
	require.NoError(t, r.Register(testutil.GeographiesProvider()))

	require.NoError(t, r.Deregister("people2"))

	var names []string
	for _, p := range r.Snapshot().Providers() {
		names = append(names, p.Name())
	}
	assert.Equal(t, []string{"people", "geographies"}, names)
}
