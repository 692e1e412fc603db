// Package metrics derives named quantities from measure evaluations. A
// metric is a ratio of two summed measures over the same unit type; the
// denominator defaults to the implicit row count, which makes means the
// common case.
package metrics

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/tally/internal/engine"
	"github.com/roach88/tally/internal/schema"
	"github.com/roach88/tally/internal/table"
)

// Metric is one derived quantity.
type Metric struct {
	// Name is the output column the metric surfaces under.
	Name string

	// Unit is the unit type the measures aggregate over.
	Unit schema.UnitType

	// Numerator is the measure path to sum.
	Numerator string

	// Denominator is the measure path to divide by. Empty means the plain
	// sum of the numerator.
	Denominator string
}

// Total is the plain sum of a measure.
func Total(name string, unit schema.UnitType, measure string) Metric {
	return Metric{Name: name, Unit: unit, Numerator: measure}
}

// Mean is the sum of a measure over the row count.
func Mean(name string, unit schema.UnitType, measure string) Metric {
	return Metric{Name: name, Unit: unit, Numerator: measure, Denominator: schema.CountMeasure}
}

// Ratio is the sum of one measure over the sum of another.
func Ratio(name string, unit schema.UnitType, numerator, denominator string) Metric {
	return Metric{Name: name, Unit: unit, Numerator: numerator, Denominator: denominator}
}

// Validate checks the metric is well formed.
func (m Metric) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("metrics: metric has no name")
	}
	if m.Unit == "" {
		return fmt.Errorf("metrics: metric %q has no unit type", m.Name)
	}
	if m.Numerator == "" {
		return fmt.Errorf("metrics: metric %q has no numerator", m.Name)
	}
	return nil
}

// Query scopes one metric evaluation.
type Query struct {
	// SegmentBy lists feature paths to segment the metric by.
	SegmentBy []string

	// Where is the constraint spec, as for engine requests.
	Where any
}

// Evaluator computes metrics through an engine.
type Evaluator struct {
	engine *engine.Engine
	logger *slog.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLogger sets the logger for metric evaluations.
func WithLogger(logger *slog.Logger) Option {
	return func(ev *Evaluator) {
		if logger != nil {
			ev.logger = logger
		}
	}
}

// NewEvaluator creates an evaluator over the given engine.
func NewEvaluator(e *engine.Engine, opts ...Option) *Evaluator {
	ev := &Evaluator{engine: e, logger: slog.Default()}
	for _, opt := range opts {
		opt(ev)
	}
	return ev
}

// Evaluate computes the metric under the query. The result carries the
// requested segment columns followed by one column named after the metric.
// A group whose denominator sums to zero yields a null cell.
func (ev *Evaluator) Evaluate(ctx context.Context, m Metric, q Query) (*table.Table, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	measures := []string{m.Numerator}
	if m.Denominator != "" && m.Denominator != m.Numerator {
		measures = append(measures, m.Denominator)
	}
	res, err := ev.engine.Evaluate(ctx, engine.Request{
		Unit:      m.Unit,
		Measures:  measures,
		SegmentBy: q.SegmentBy,
		Where:     q.Where,
	})
	if err != nil {
		return nil, err
	}

	numCol := engine.OutputColumn(m.Numerator, m.Unit)
	denCol := ""
	if m.Denominator != "" {
		denCol = engine.OutputColumn(m.Denominator, m.Unit)
	}
	derived, err := res.Table.WithColumn(m.Name, func(row table.Row) table.Value {
		num, ok := table.AsFloat(row.Get(numCol))
		if !ok {
			return table.Null{}
		}
		if denCol == "" {
			return table.Float(num)
		}
		den, ok := table.AsFloat(row.Get(denCol))
		if !ok || den == 0 {
			return table.Null{}
		}
		return table.Float(num / den)
	})
	if err != nil {
		return nil, err
	}

	segCols := make([]string, 0, len(q.SegmentBy))
	for _, path := range q.SegmentBy {
		segCols = append(segCols, engine.OutputColumn(path, m.Unit))
	}
	out, err := derived.Select(append(segCols, m.Name)...)
	if err != nil {
		return nil, err
	}
	ev.logger.Debug("metric evaluated",
		"metric", m.Name,
		"unit", string(m.Unit),
		"eval_id", res.EvalID,
		"rows", out.NumRows(),
	)
	return out, nil
}
