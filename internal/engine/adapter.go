package engine

import (
	"context"
	"errors"

	"github.com/roach88/tally/internal/constraint"
	"github.com/roach88/tally/internal/schema"
	"github.com/roach88/tally/internal/table"
)

// ErrCannotFuse is returned by EvaluateJoined when the delegate cannot
// evaluate this particular join natively. The engine falls back to
// evaluating both sides separately and merging rows itself.
var ErrCannotFuse = errors.New("engine: join cannot be fused")

// AdapterRequest asks a backend for one provider's rows. Columns and
// constraint targets use the provider's declared feature names; the
// executor handles masking and relationship prefixes.
type AdapterRequest struct {
	// Unit is the unit type the node resolves. Informational for most
	// backends; SQL backends use it to pick key expressions.
	Unit schema.UnitType

	// Columns lists the declared feature names to produce, in order. The
	// returned table must carry exactly these columns.
	Columns []string

	// Measures marks the subset of Columns holding measure values. The
	// implicit "count" measure is requested like any other column and
	// materializes as 1 per row.
	Measures []string

	// Where is the provider-local predicate to push down. Targets are
	// declared feature names; nil or None means unfiltered.
	Where constraint.Constraint
}

// IsMeasure reports whether the named column is requested as a measure.
func (r AdapterRequest) IsMeasure(col string) bool {
	for _, m := range r.Measures {
		if m == col {
			return true
		}
	}
	return false
}

// Adapter binds one provider declaration to a backend able to produce its
// rows. Adapters must be safe for concurrent Evaluate calls; plan siblings
// run in parallel.
type Adapter interface {
	// Schema returns the provider declaration the adapter serves. The
	// engine registers it into the graph on Register.
	Schema() *schema.Provider

	// Evaluate produces the requested columns, one row per backend row
	// matching the predicate. Row order carries no meaning.
	Evaluate(ctx context.Context, req AdapterRequest) (*table.Table, error)
}

// JoinedRequest hands a whole parent/child join to one backend. The
// delegate must return exactly the table the engine's row-level merge
// would have built: left columns under their exposed names followed by
// the child's non-key columns under the Via prefix.
type JoinedRequest struct {
	// Left and Right describe the two provider calls being fused.
	Left, Right AdapterRequest

	// LeftRename and RightRename map declared names to exposed output
	// names. Columns absent from the map keep their declared name.
	LeftRename, RightRename map[string]string

	// Via is the relationship prefix for the right side's non-key
	// columns. Empty for same-unit joins.
	Via string

	// On pairs the join columns by exposed name.
	On []table.JoinKey

	// Kind is inner or left.
	Kind table.JoinKind

	// Peer is the right side's adapter. It reports the same realm as the
	// delegate receiving the request.
	Peer Delegate
}

// Delegate is implemented by adapters that can evaluate joins natively,
// such as two tables on the same SQL connection. The engine fuses a join
// only when both sides report the same delegation realm.
type Delegate interface {
	Adapter

	// Realm identifies the native engine the adapter can fuse joins
	// within, such as "sql/sqlite/file:metrics.db". Equal realms share a
	// query engine.
	Realm() string

	// EvaluateJoined evaluates the fused join on the left adapter's
	// backend.
	EvaluateJoined(ctx context.Context, req JoinedRequest) (*table.Table, error)
}
