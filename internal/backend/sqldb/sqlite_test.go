package sqldb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tally/internal/engine"
	"github.com/roach88/tally/internal/table"
	"github.com/roach88/tally/internal/testutil"
)

// openFixtureDB creates a throwaway SQLite database loaded with the shared
// fixture rows.
func openFixtureDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "fixtures.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	stmts := []string{
		`CREATE TABLE people (id TEXT, name TEXT, age INTEGER, ds TEXT)`,
		`CREATE TABLE people2 (id TEXT, id_geography TEXT, ds TEXT)`,
		`CREATE TABLE geographies (id TEXT, name TEXT, population INTEGER, ds TEXT)`,
		`CREATE TABLE transactions (id TEXT, id_buyer TEXT, id_seller TEXT, value REAL, ds TEXT)`,
		`INSERT INTO people VALUES
			('p1','Ada',34,'2018-01-01'), ('p2','Bob',17,'2018-01-01'),
			('p3','Cyd',51,'2018-01-01'), ('p4','Dan',22,'2018-01-01')`,
		`INSERT INTO people2 VALUES
			('p1','g1','2018-01-01'), ('p2','g1','2018-01-01'),
			('p3','g2','2018-01-01'), ('p4','g2','2018-01-01')`,
		`INSERT INTO geographies VALUES
			('g1','north',12000,'2018-01-01'), ('g2','south',8000,'2018-01-01')`,
		`INSERT INTO transactions VALUES
			('t1','p2','p1',100,'2018-01-01'), ('t2','p3','p1',40,'2018-01-01'),
			('t3','p1','p3',25,'2018-01-01'), ('t4','p2','p3',60,'2018-01-01'),
			('t5','p1','p4',10,'2018-01-01')`,
	}
	for _, stmt := range stmts {
		_, err := db.db.Exec(stmt)
		require.NoError(t, err)
	}
	return db
}

func sqliteEngine(t *testing.T) *engine.Engine {
	t.Helper()
	db := openFixtureDB(t)
	e := engine.New(
		engine.WithLogger(testutil.Logger()),
		engine.WithIDGenerator(&engine.SequentialGenerator{Prefix: "eval"}),
	)
	e.MustRegister(MustNewProvider(db, testutil.PeopleProvider(), "people"))
	e.MustRegister(MustNewProvider(db, testutil.People2Provider(), "people2"))
	e.MustRegister(MustNewProvider(db, testutil.GeographiesProvider(), "geographies"))
	e.MustRegister(MustNewProvider(db, testutil.TransactionsProvider(), "transactions"))
	return e
}

func TestSQLiteThreeHopJoin(t *testing.T) {
	e := sqliteEngine(t)

	res, err := e.Evaluate(context.Background(), engine.Request{
		Unit:      "transaction",
		Measures:  []string{"value"},
		SegmentBy: []string{"person:seller/geography/name"},
		Where:     map[string]any{"ds": "2018-01-01"},
	})
	require.NoError(t, err)

	want := table.MustNew("person:seller/geography/name", "value")
	want.MustAppend(table.String("north"), table.Float(140))
	want.MustAppend(table.String("south"), table.Float(95))
	assert.True(t, res.Table.Equal(want), "got:\n%s", res.Table)
}

func TestSQLiteReverseAggregation(t *testing.T) {
	e := sqliteEngine(t)

	res, err := e.Evaluate(context.Background(), engine.Request{
		Unit:      "person:seller",
		Measures:  []string{"transaction/value"},
		SegmentBy: []string{"name"},
		Where:     map[string]any{"ds": "2018-01-01"},
	})
	require.NoError(t, err)

	want := table.MustNew("name", "transaction/value")
	want.MustAppend(table.String("Ada"), table.Float(140))
	want.MustAppend(table.String("Bob"), table.Float(0))
	want.MustAppend(table.String("Cyd"), table.Float(85))
	want.MustAppend(table.String("Dan"), table.Float(10))
	assert.True(t, res.Table.Equal(want), "got:\n%s", res.Table)
}

// The SQLite backend and the memory backend must agree row for row; the
// memory engine is the reference semantics.
func TestSQLiteMatchesMemoryBackend(t *testing.T) {
	e := sqliteEngine(t)

	res, err := e.Evaluate(context.Background(), engine.Request{
		Unit:      "transaction",
		Measures:  []string{"value", "count"},
		SegmentBy: []string{"person:buyer/name"},
		Where:     map[string]any{"ds": "2018-01-01"},
	})
	require.NoError(t, err)

	want := table.MustNew("person:buyer/name", "value", "count")
	want.MustAppend(table.String("Ada"), table.Float(35), table.Float(2))
	want.MustAppend(table.String("Bob"), table.Float(160), table.Float(2))
	want.MustAppend(table.String("Cyd"), table.Float(40), table.Float(1))
	assert.True(t, res.Table.Equal(want), "got:\n%s", res.Table)
}
