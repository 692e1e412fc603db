package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/roach88/tally/internal/constraint"
	"github.com/roach88/tally/internal/registry"
	"github.com/roach88/tally/internal/schema"
	"github.com/roach88/tally/internal/strategy"
	"github.com/roach88/tally/internal/table"
)

// Request is one evaluation request as callers write it. Where accepts the
// loosely typed constraint spec forms; see constraint.Normalize.
type Request struct {
	// Unit is the target unit type the result is keyed by.
	Unit schema.UnitType

	// Measures and SegmentBy are feature paths relative to Unit.
	Measures  []string
	SegmentBy []string

	// Where is the constraint spec. Nil means unconstrained.
	Where any

	// Bound optionally caps the known row population for significance
	// bookkeeping downstream. Zero means unbounded.
	Bound int
}

// Result is one completed evaluation.
type Result struct {
	// Table holds the output rows: the requested segments in request
	// order, then the requested measures, sorted by the segment columns.
	Table *table.Table

	// Plan is the validated plan the evaluation executed.
	Plan *strategy.Plan

	// EvalID identifies the evaluation in logs and errors.
	EvalID string
}

// Engine owns the provider graph and the backend adapters, and evaluates
// requests against them.
//
// Thread-safety model:
//   - Register: safe from any goroutine
//   - Resolve, Evaluate: safe from any goroutine; each call plans against
//     the graph snapshot current at entry
type Engine struct {
	registry *registry.Registry
	logger   *slog.Logger
	ids      IDGenerator
	parallel int

	mu       sync.RWMutex
	adapters map[string]Adapter
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for evaluation events. The registry the
// engine creates inherits it.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithIDGenerator replaces the evaluation ID source, typically with a
// SequentialGenerator in tests.
func WithIDGenerator(ids IDGenerator) Option {
	return func(e *Engine) {
		if ids != nil {
			e.ids = ids
		}
	}
}

// WithMaxParallel caps concurrent backend calls per evaluation. Zero or
// negative means unbounded.
func WithMaxParallel(n int) Option {
	return func(e *Engine) { e.parallel = n }
}

// New creates an engine with an empty provider graph.
func New(opts ...Option) *Engine {
	e := &Engine{
		logger:   slog.Default(),
		ids:      UUIDGenerator{},
		adapters: make(map[string]Adapter),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.registry = registry.New(registry.WithLogger(e.logger))
	return e
}

// Register adds an adapter and its provider declaration to the graph. The
// graph is validated in full before the adapter is accepted; on any error
// the engine is left exactly as it was.
func (e *Engine) Register(a Adapter) error {
	if a == nil {
		return fmt.Errorf("engine: nil adapter")
	}
	p := a.Schema()
	if p == nil {
		return fmt.Errorf("engine: adapter returns no provider declaration")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, dup := e.adapters[p.Name()]; dup {
		return fmt.Errorf("engine: adapter for provider %q is already registered", p.Name())
	}
	if err := e.registry.Register(p); err != nil {
		return err
	}
	e.adapters[p.Name()] = a
	return nil
}

// Deregister removes a provider's adapter and its declaration from the
// graph. In-flight evaluations keep the snapshot and adapter set they
// started with; on any error the engine is left exactly as it was.
func (e *Engine) Deregister(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.adapters[name]; !ok {
		return fmt.Errorf("engine: no adapter registered for provider %q", name)
	}
	if err := e.registry.Deregister(name); err != nil {
		return err
	}
	delete(e.adapters, name)
	return nil
}

// MustRegister is Register for statically known adapters, such as fixtures.
func (e *Engine) MustRegister(a Adapter) {
	if err := e.Register(a); err != nil {
		panic(err)
	}
}

// Registry exposes the engine's provider graph for inspection.
func (e *Engine) Registry() *registry.Registry { return e.registry }

// Resolve plans the request without executing it, for explain-style
// inspection.
func (e *Engine) Resolve(req Request) (*strategy.Plan, error) {
	sreq, err := e.planRequest(req)
	if err != nil {
		return nil, err
	}
	resolver := strategy.NewResolver(e.registry.Snapshot(), strategy.WithLogger(e.logger))
	return resolver.Resolve(sreq)
}

// Evaluate plans and executes the request. Resolution errors pass through
// as strategy.ResolutionError; execution failures surface as RuntimeError.
func (e *Engine) Evaluate(ctx context.Context, req Request) (*Result, error) {
	evalID := e.ids.NewEvalID()
	sreq, err := e.planRequest(req)
	if err != nil {
		return nil, err
	}
	resolver := strategy.NewResolver(e.registry.Snapshot(), strategy.WithLogger(e.logger))
	plan, err := resolver.Resolve(sreq)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	adapters := make(map[string]Adapter, len(e.adapters))
	for name, a := range e.adapters {
		adapters[name] = a
	}
	e.mu.RUnlock()

	x := newExecutor(adapters, e.logger, evalID, e.parallel)
	rows, err := x.run(ctx, plan)
	if err != nil {
		return nil, err
	}
	out, err := finalize(rows, req)
	if err != nil {
		return nil, err
	}
	e.logger.Info("evaluation complete",
		"eval_id", evalID,
		"unit", string(req.Unit),
		"plan", plan.Fingerprint(),
		"rows", out.NumRows(),
	)
	return &Result{Table: out, Plan: plan, EvalID: evalID}, nil
}

// planRequest normalizes a caller request into the resolver's input.
func (e *Engine) planRequest(req Request) (strategy.Request, error) {
	if len(req.Measures) == 0 && len(req.SegmentBy) == 0 {
		return strategy.Request{}, &RuntimeError{
			Code:    ErrCodeInvalidRequest,
			Message: "request names no measures and no segments",
		}
	}
	seen := make(map[string]bool, len(req.Measures)+len(req.SegmentBy))
	for _, path := range append(append([]string(nil), req.SegmentBy...), req.Measures...) {
		if seen[path] {
			return strategy.Request{}, &RuntimeError{
				Code:    ErrCodeInvalidRequest,
				Message: fmt.Sprintf("path %q is requested twice", path),
			}
		}
		seen[path] = true
	}
	where, err := constraint.Normalize(req.Where)
	if err != nil {
		return strategy.Request{}, &RuntimeError{
			Code:    ErrCodeInvalidRequest,
			Message: err.Error(),
			Err:     err,
		}
	}
	return strategy.Request{
		Unit:      req.Unit,
		Measures:  req.Measures,
		SegmentBy: req.SegmentBy,
		Where:     where,
		Bound:     req.Bound,
	}, nil
}

// finalize projects the executed rows onto the requested columns: group by
// the segments, sum the measures, sort by the segments.
func finalize(rows *table.Table, req Request) (*table.Table, error) {
	segCols := make([]string, 0, len(req.SegmentBy))
	for _, path := range req.SegmentBy {
		segCols = append(segCols, outputName(path, req.Unit))
	}
	aggs := make([]table.Aggregation, 0, len(req.Measures))
	for _, path := range req.Measures {
		aggs = append(aggs, table.Aggregation{Col: outputName(path, req.Unit), Fn: table.Sum})
	}
	out, err := rows.GroupAggregate(segCols, aggs)
	if err != nil {
		return nil, fmt.Errorf("engine: projecting result: %w", err)
	}
	return out.Sort(segCols...)
}

// OutputColumn is the result column a requested path surfaces under.
// Callers deriving values from a Result, such as metric evaluation, use it
// to locate the measure columns.
func OutputColumn(path string, unit schema.UnitType) string {
	return outputName(path, unit)
}

// outputName is the column a requested path surfaces under: the path with
// redundant leading self segments removed.
func outputName(path string, unit schema.UnitType) string {
	segs := strings.Split(path, "/")
	for len(segs) > 1 && segs[0] == string(unit) {
		segs = segs[1:]
	}
	return strings.Join(segs, "/")
}
