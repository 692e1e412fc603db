package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/tally/internal/constraint"
	"github.com/roach88/tally/internal/schema"
	"github.com/roach88/tally/internal/strategy"
	"github.com/roach88/tally/internal/table"
)

// executor walks one plan tree for one evaluation. Children evaluate
// concurrently; merging is sequential in plan order.
type executor struct {
	adapters map[string]Adapter
	logger   *slog.Logger
	evalID   string

	// sem bounds concurrent backend calls across the whole tree. Nil
	// means unbounded.
	sem chan struct{}
}

func newExecutor(adapters map[string]Adapter, logger *slog.Logger, evalID string, parallel int) *executor {
	x := &executor{adapters: adapters, logger: logger, evalID: evalID}
	if parallel > 0 {
		x.sem = make(chan struct{}, parallel)
	}
	return x
}

func (x *executor) run(ctx context.Context, plan *strategy.Plan) (*table.Table, error) {
	return x.node(ctx, plan)
}

func (x *executor) node(ctx context.Context, p *strategy.Plan) (*table.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, x.cancelled(err)
	}
	adapter, ok := x.adapters[p.Provider.Name()]
	if !ok {
		return nil, &RuntimeError{
			Code:     ErrCodeUnknownProvider,
			Message:  "plan names a provider with no registered adapter",
			EvalID:   x.evalID,
			Provider: p.Provider.Name(),
		}
	}

	if len(p.Joins) == 1 && constraint.IsNone(p.Filter) {
		if t, fused, err := x.fuse(ctx, adapter, p, p.Joins[0]); err != nil {
			return nil, err
		} else if fused {
			return x.rebase(t, p)
		}
	}

	var base *table.Table
	children := make([]*table.Table, len(p.Joins))
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := x.local(gctx, adapter, p)
		if err != nil {
			return err
		}
		base = t
		return nil
	})
	for i, j := range p.Joins {
		i, j := i, j
		g.Go(func() error {
			t, err := x.node(gctx, j.Plan)
			if err != nil {
				return err
			}
			children[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	t := base
	for i, j := range p.Joins {
		merged, err := mergeJoin(t, children[i], j)
		if err != nil {
			return nil, fmt.Errorf("engine: merging %q into %q: %w", j.Plan.Provider.Name(), p.Provider.Name(), err)
		}
		t = merged
	}
	if !constraint.IsNone(p.Filter) {
		t = t.Filter(func(row table.Row) bool {
			return constraint.Matches(p.Filter, row.Get)
		})
	}
	return x.rebase(t, p)
}

// local evaluates the node's own provider and renames masked columns to
// their exposed names.
func (x *executor) local(ctx context.Context, adapter Adapter, p *strategy.Plan) (*table.Table, error) {
	req, rename := nodeRequest(p)
	t, err := x.evaluate(ctx, adapter, p.Provider.Name(), req)
	if err != nil {
		return nil, err
	}
	if len(rename) == 0 {
		return t, nil
	}
	out, err := t.Rename(rename)
	if err != nil {
		return nil, fmt.Errorf("engine: exposing %q columns: %w", p.Provider.Name(), err)
	}
	return out, nil
}

// nodeRequest builds the adapter call for a node's local features, plus
// the declared-to-exposed rename map.
func nodeRequest(p *strategy.Plan) (AdapterRequest, map[string]string) {
	req := AdapterRequest{Unit: p.Unit, Where: p.Where}
	rename := make(map[string]string)
	for _, s := range p.LocalSegments() {
		req.Columns = append(req.Columns, s.Name)
		if s.Name != s.ExposedName() {
			rename[s.Name] = s.ExposedName()
		}
	}
	for _, m := range p.LocalMeasures() {
		req.Columns = append(req.Columns, m.Name)
		req.Measures = append(req.Measures, m.Name)
		if m.Name != m.ExposedName() {
			rename[m.Name] = m.ExposedName()
		}
	}
	return req, rename
}

// evaluate calls one backend under the concurrency bound.
func (x *executor) evaluate(ctx context.Context, adapter Adapter, provider string, req AdapterRequest) (*table.Table, error) {
	if err := x.acquire(ctx); err != nil {
		return nil, err
	}
	defer x.release()
	x.logger.Debug("provider evaluation",
		"eval_id", x.evalID,
		"provider", provider,
		"columns", req.Columns,
	)
	t, err := adapter.Evaluate(ctx, req)
	if err != nil {
		return nil, NewProviderError(x.evalID, provider, err)
	}
	return t, nil
}

// fuse hands a leaf forward join to the base adapter when both sides
// share a delegation realm. Returns fused=false when the shape or the
// adapters do not allow it.
func (x *executor) fuse(ctx context.Context, adapter Adapter, p *strategy.Plan, j strategy.Join) (*table.Table, bool, error) {
	left, ok := adapter.(Delegate)
	if !ok {
		return nil, false, nil
	}
	child := j.Plan
	if len(child.Joins) > 0 || child.Rebase || !constraint.IsNone(child.Filter) {
		return nil, false, nil
	}
	childAdapter, ok := x.adapters[child.Provider.Name()]
	if !ok {
		return nil, false, &RuntimeError{
			Code:     ErrCodeUnknownProvider,
			Message:  "plan names a provider with no registered adapter",
			EvalID:   x.evalID,
			Provider: child.Provider.Name(),
		}
	}
	right, ok := childAdapter.(Delegate)
	if !ok || right.Realm() != left.Realm() {
		return nil, false, nil
	}

	leftReq, leftRename := nodeRequest(p)
	rightReq, rightRename := nodeRequest(child)
	on := make([]table.JoinKey, len(j.LeftOn))
	for i := range j.LeftOn {
		on[i] = table.JoinKey{Left: j.LeftOn[i], Right: j.RightOn[i]}
	}
	if err := x.acquire(ctx); err != nil {
		return nil, false, err
	}
	defer x.release()
	x.logger.Debug("fused join evaluation",
		"eval_id", x.evalID,
		"provider", p.Provider.Name(),
		"joined", child.Provider.Name(),
		"realm", left.Realm(),
	)
	t, err := left.EvaluateJoined(ctx, JoinedRequest{
		Left:        leftReq,
		Right:       rightReq,
		LeftRename:  leftRename,
		RightRename: rightRename,
		Via:         j.Via,
		On:          on,
		Kind:        j.Kind,
		Peer:        right,
	})
	if errors.Is(err, ErrCannotFuse) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, NewProviderError(x.evalID, p.Provider.Name(), err)
	}
	return t, true, nil
}

// mergeJoin folds one evaluated child into its parent's rows. Non-key
// child columns surface under the relationship prefix.
func mergeJoin(left, right *table.Table, j strategy.Join) (*table.Table, error) {
	if j.Via != "" {
		keyCols := make(map[string]bool, len(j.RightOn))
		for _, c := range j.RightOn {
			keyCols[c] = true
		}
		prefix := make(map[string]string)
		for _, c := range right.Columns() {
			if !keyCols[c] {
				prefix[c] = schema.JoinVia(j.Via, c)
			}
		}
		if len(prefix) > 0 {
			renamed, err := right.Rename(prefix)
			if err != nil {
				return nil, err
			}
			right = renamed
		}
	}
	on := make([]table.JoinKey, len(j.LeftOn))
	for i := range j.LeftOn {
		on[i] = table.JoinKey{Left: j.LeftOn[i], Right: j.RightOn[i]}
	}
	return left.Join(right, on, j.Kind)
}

// rebase collapses a node's rows to one per distinct segment combination,
// summing measures. Grouping keys are every non-measure column, so joined
// dimension columns survive the collapse.
func (x *executor) rebase(t *table.Table, p *strategy.Plan) (*table.Table, error) {
	if !p.Rebase {
		return t, nil
	}
	measures := make(map[string]bool)
	aggs := make([]table.Aggregation, 0, len(p.MeasureColumns()))
	for _, m := range p.MeasureColumns() {
		measures[m] = true
		aggs = append(aggs, table.Aggregation{Col: m, Fn: table.Sum})
	}
	var keys []string
	for _, c := range t.Columns() {
		if !measures[c] {
			keys = append(keys, c)
		}
	}
	out, err := t.GroupAggregate(keys, aggs)
	if err != nil {
		return nil, fmt.Errorf("engine: collapsing %q rows: %w", p.Provider.Name(), err)
	}
	return out, nil
}

func (x *executor) acquire(ctx context.Context) error {
	if x.sem == nil {
		if err := ctx.Err(); err != nil {
			return x.cancelled(err)
		}
		return nil
	}
	select {
	case x.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return x.cancelled(ctx.Err())
	}
}

func (x *executor) release() {
	if x.sem != nil {
		<-x.sem
	}
}

func (x *executor) cancelled(err error) error {
	return &RuntimeError{
		Code:    ErrCodeCancelled,
		Message: "evaluation cancelled",
		EvalID:  x.evalID,
		Err:     err,
	}
}
