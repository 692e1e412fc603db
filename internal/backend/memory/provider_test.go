package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tally/internal/constraint"
	"github.com/roach88/tally/internal/engine"
	"github.com/roach88/tally/internal/schema"
	"github.com/roach88/tally/internal/table"
	"github.com/roach88/tally/internal/testutil"
)

func TestEvaluateProjectsDeclaredNames(t *testing.T) {
	p := MustNew(testutil.TransactionsProvider(), testutil.TransactionsData())

	got, err := p.Evaluate(context.Background(), engine.AdapterRequest{
		Unit:     "transaction",
		Columns:  []string{"person:seller", "ds", "value", "count"},
		Measures: []string{"value", "count"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"person:seller", "ds", "value", "count"}, got.Columns())
	require.Equal(t, 5, got.NumRows())
	first := got.Row(0)
	assert.Equal(t, table.String("p1"), first.Get("person:seller"))
	assert.Equal(t, table.Float(100), first.Get("value"))
	assert.Equal(t, table.Int(1), first.Get("count"))
}

func TestEvaluatePushesDownWhere(t *testing.T) {
	p := MustNew(testutil.TransactionsProvider(), testutil.TransactionsData())

	got, err := p.Evaluate(context.Background(), engine.AdapterRequest{
		Unit:    "transaction",
		Columns: []string{"transaction", "value"},
		Where: constraint.MustNormalize(map[string]any{
			"person:seller": "p3",
			"ds":            "2018-01-01",
		}),
	})
	require.NoError(t, err)

	require.Equal(t, 2, got.NumRows())
	assert.Equal(t, table.String("t3"), got.Row(0).Get("transaction"))
	assert.Equal(t, table.String("t4"), got.Row(1).Get("transaction"))
}

func TestEvaluateMembershipWhere(t *testing.T) {
	p := MustNew(testutil.PeopleProvider(), testutil.PeopleData())

	got, err := p.Evaluate(context.Background(), engine.AdapterRequest{
		Unit:    "person",
		Columns: []string{"name"},
		Where: constraint.MustNormalize(map[string]any{
			"name": constraint.OneOf{"Ada", "Cyd"},
		}),
	})
	require.NoError(t, err)

	require.Equal(t, 2, got.NumRows())
	assert.Equal(t, table.String("Ada"), got.Row(0).Get("name"))
	assert.Equal(t, table.String("Cyd"), got.Row(1).Get("name"))
}

func TestEvaluateUnknownFeature(t *testing.T) {
	p := MustNew(testutil.PeopleProvider(), testutil.PeopleData())

	_, err := p.Evaluate(context.Background(), engine.AdapterRequest{
		Unit:    "person",
		Columns: []string{"salary"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no feature "salary"`)
}

func TestNewRejectsMissingSourceColumn(t *testing.T) {
	rows := table.MustNew("id", "ds")
	_, err := New(testutil.PeopleProvider(), rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing column "age"`)
}

func TestEvaluateHonorsCancellation(t *testing.T) {
	p := MustNew(testutil.PeopleProvider(), testutil.PeopleData())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Evaluate(ctx, engine.AdapterRequest{Unit: "person", Columns: []string{"name"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReadCSVInference(t *testing.T) {
	in := "id,score,active,note\n" +
		"p1,3,true,fine\n" +
		"p2,2.5,false,\n"

	got, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "score", "active", "note"}, got.Columns())
	require.Equal(t, 2, got.NumRows())
	assert.Equal(t, table.String("p1"), got.Row(0).Get("id"))
	assert.Equal(t, table.Int(3), got.Row(0).Get("score"))
	assert.Equal(t, table.Bool(true), got.Row(0).Get("active"))
	assert.Equal(t, table.Float(2.5), got.Row(1).Get("score"))
	assert.Equal(t, table.Null{}, got.Row(1).Get("note"))
}

func TestReadCSVEmptyInput(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no header row")
}

// The shared fixtures double as a schema regression check: every provider
// declaration must bind cleanly to its own data.
func TestFixtureDataMatchesDeclarations(t *testing.T) {
	fixtures := []struct {
		decl *schema.Provider
		rows *table.Table
	}{
		{testutil.PeopleProvider(), testutil.PeopleData()},
		{testutil.People2Provider(), testutil.People2Data()},
		{testutil.GeographiesProvider(), testutil.GeographiesData()},
		{testutil.TransactionsProvider(), testutil.TransactionsData()},
	}
	for _, f := range fixtures {
		_, err := New(f.decl, f.rows)
		assert.NoError(t, err, f.decl.Name())
	}
}
