package harness

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/tally/internal/backend/memory"
	"github.com/roach88/tally/internal/engine"
	"github.com/roach88/tally/internal/schema"
	"github.com/roach88/tally/internal/strategy"
	"github.com/roach88/tally/internal/table"
	"github.com/roach88/tally/internal/testutil"
)

// Result is the outcome of running a scenario: one entry per request case.
type Result struct {
	Scenario string
	Cases    []CaseResult
}

// CaseResult records one evaluated request.
type CaseResult struct {
	// Name is the request case name.
	Name string

	// Table holds the result rows when evaluation succeeded.
	Table *table.Table

	// ErrorCode is the resolution or runtime code when evaluation failed.
	ErrorCode string

	// Failures lists every divergence from the expectation. Empty means
	// the case passed.
	Failures []string
}

// Failures flattens every case divergence, prefixed with the case name.
func (r *Result) Failures() []string {
	var out []string
	for _, c := range r.Cases {
		for _, f := range c.Failures {
			out = append(out, fmt.Sprintf("%s: %s", c.Name, f))
		}
	}
	return out
}

// Run builds an in-memory engine from the scenario's providers and
// evaluates every request case against its expectation. The returned error
// covers scenario-level problems only; expectation mismatches are reported
// through Result.Failures.
func Run(ctx context.Context, s *Scenario) (*Result, error) {
	e := engine.New(
		engine.WithLogger(testutil.Logger()),
		engine.WithIDGenerator(&engine.SequentialGenerator{Prefix: s.Name}),
	)
	for _, def := range s.Providers {
		decl, err := def.declaration()
		if err != nil {
			return nil, fmt.Errorf("harness: provider %q: %w", def.Name, err)
		}
		rows, err := def.rowTable()
		if err != nil {
			return nil, fmt.Errorf("harness: %w", err)
		}
		adapter, err := memory.New(decl, rows)
		if err != nil {
			return nil, fmt.Errorf("harness: %w", err)
		}
		if err := e.Register(adapter); err != nil {
			return nil, fmt.Errorf("harness: provider %q: %w", def.Name, err)
		}
	}

	result := &Result{Scenario: s.Name}
	for _, rc := range s.Requests {
		result.Cases = append(result.Cases, runCase(ctx, e, rc))
	}
	return result, nil
}

func runCase(ctx context.Context, e *engine.Engine, rc RequestCase) CaseResult {
	out := CaseResult{Name: rc.Name}
	res, err := e.Evaluate(ctx, engine.Request{
		Unit:      schema.UnitType(rc.Unit),
		Measures:  rc.Measures,
		SegmentBy: rc.SegmentBy,
		Where:     rc.Where,
	})
	if err != nil {
		out.ErrorCode = errorCode(err)
		switch {
		case rc.Expect.Error == "":
			out.Failures = append(out.Failures, fmt.Sprintf("unexpected error: %v", err))
		case out.ErrorCode != rc.Expect.Error:
			out.Failures = append(out.Failures, fmt.Sprintf("error code %q, want %q", out.ErrorCode, rc.Expect.Error))
		}
		return out
	}

	out.Table = res.Table
	if rc.Expect.Error != "" {
		out.Failures = append(out.Failures, fmt.Sprintf("succeeded, want error %q", rc.Expect.Error))
		return out
	}
	out.Failures = append(out.Failures, compareRows(res.Table, rc.Expect.Rows)...)
	return out
}

// compareRows checks the result against the expected rows: same count, and
// every named cell equal in order. Columns absent from an expected row are
// not checked.
func compareRows(got *table.Table, want []map[string]any) []string {
	var failures []string
	if got.NumRows() != len(want) {
		failures = append(failures, fmt.Sprintf("%d rows, want %d", got.NumRows(), len(want)))
	}
	for i, wantRow := range want {
		if i >= got.NumRows() {
			break
		}
		row := got.Row(i)
		for col, raw := range wantRow {
			if !got.HasColumn(col) {
				failures = append(failures, fmt.Sprintf("row %d: no column %q", i, col))
				continue
			}
			wantVal, err := table.FromAny(raw)
			if err != nil {
				failures = append(failures, fmt.Sprintf("row %d column %q: %v", i, col, err))
				continue
			}
			if gotVal := row.Get(col); !table.Equal(gotVal, wantVal) {
				failures = append(failures, fmt.Sprintf("row %d column %q: %s, want %s",
					i, col, table.Format(gotVal), table.Format(wantVal)))
			}
		}
	}
	return failures
}

// errorCode extracts the structured code of a resolution or runtime error.
func errorCode(err error) string {
	var re *strategy.ResolutionError
	if errors.As(err, &re) {
		return string(re.Code)
	}
	var rte *engine.RuntimeError
	if errors.As(err, &rte) {
		return string(rte.Code)
	}
	return ""
}
