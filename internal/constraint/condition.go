package constraint

import (
	"fmt"
	"strings"

	"github.com/roach88/tally/internal/schema"
	"github.com/roach88/tally/internal/table"
)

// Op is a comparison operator of a condition leaf.
type Op string

const (
	OpEq Op = "=="
	OpLt Op = "<"
	OpLe Op = "<="
	OpGt Op = ">"
	OpGe Op = ">="
	OpIn Op = "in"
)

// Validate checks that the operator is part of the closed grammar.
func (o Op) Validate() error {
	switch o {
	case OpEq, OpLt, OpLe, OpGt, OpGe, OpIn:
		return nil
	}
	return fmt.Errorf("constraint: unknown operator %q", string(o))
}

// Ordered reports whether the operator requires an ordered comparison.
func (o Op) Ordered() bool {
	switch o {
	case OpLt, OpLe, OpGt, OpGe:
		return true
	}
	return false
}

// Condition is a leaf predicate on one feature path.
type Condition struct {
	target  string
	generic bool
	op      Op
	values  []table.Value
}

// NewCondition builds a leaf predicate. The target is a feature path; a
// leading "*/" makes the condition generic. OpIn takes one or more values,
// every other operator exactly one.
func NewCondition(target string, op Op, values ...table.Value) (Condition, error) {
	if err := op.Validate(); err != nil {
		return Condition{}, err
	}
	path, err := schema.ParsePath(target)
	if err != nil {
		return Condition{}, fmt.Errorf("constraint: invalid target: %w", err)
	}
	if path.Generic && len(path.Segments) > 2 {
		return Condition{}, fmt.Errorf("constraint: generic target %q may name at most a unit type and a field", target)
	}
	if op == OpIn {
		if len(values) == 0 {
			return Condition{}, fmt.Errorf("constraint: %q membership needs at least one value", target)
		}
	} else if len(values) != 1 {
		return Condition{}, fmt.Errorf("constraint: %q with %s takes exactly one value, got %d", target, op, len(values))
	}
	for i, v := range values {
		if v == nil {
			values[i] = table.Null{}
		}
	}
	return Condition{
		target:  strings.Join(path.Segments, "/"),
		generic: path.Generic,
		op:      op,
		values:  values,
	}, nil
}

// MustCondition is NewCondition for statically known predicates.
func MustCondition(target string, op Op, values ...table.Value) Condition {
	c, err := NewCondition(target, op, values...)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Condition) constraint() {}

// Kind returns KindCondition.
func (c Condition) Kind() Kind { return KindCondition }

// Target returns the feature path without the generic marker.
func (c Condition) Target() string { return c.target }

// Generic reports whether the condition applies per provider instead of
// being resolved as a feature of the root unit type.
func (c Condition) Generic() bool { return c.generic }

// Op returns the comparison operator.
func (c Condition) Op() Op { return c.op }

// Value returns the single comparison value. For OpIn it returns the first
// member; use Values for the full set.
func (c Condition) Value() table.Value { return c.values[0] }

// Values returns all comparison values.
func (c Condition) Values() []table.Value { return append([]table.Value(nil), c.values...) }

// Depth counts the relationship hops in the target path.
func (c Condition) Depth() int { return strings.Count(c.target, "/") }

// Head returns the first path segment and the remainder.
func (c Condition) Head() (head, rest string) { return schema.SplitVia(c.target) }

// Resolvable is always true for a leaf.
func (c Condition) Resolvable() bool { return true }

// Conditions returns the leaf itself.
func (c Condition) Conditions() []Condition { return []Condition{c} }

// Match evaluates the condition against one concrete cell value.
func (c Condition) Match(v table.Value) bool {
	switch c.op {
	case OpEq:
		return table.Equal(v, c.values[0])
	case OpIn:
		for _, want := range c.values {
			if table.Equal(v, want) {
				return true
			}
		}
		return false
	default:
		if table.IsNull(v) || table.IsNull(c.values[0]) {
			return false
		}
		cmp := table.Compare(v, c.values[0])
		switch c.op {
		case OpLt:
			return cmp < 0
		case OpLe:
			return cmp <= 0
		case OpGt:
			return cmp > 0
		case OpGe:
			return cmp >= 0
		}
		return false
	}
}

func (c Condition) viaNext(segment string, includeGeneric bool) Constraint {
	head, rest := c.Head()
	if c.generic {
		if !includeGeneric {
			return c
		}
		// The unit hint binds by identifier coverage, so "*/person/name"
		// fires when the plan visits "person:seller".
		if rest != "" && schema.UnitType(head).Matches(schema.UnitType(segment)) {
			out := c
			out.target = rest
			out.generic = false
			return out
		}
		return None
	}
	if rest != "" && head == segment {
		out := c
		out.target = rest
		return out
	}
	return None
}

// ViaNext rebases the condition across one relationship hop. Scoped targets
// shed a matching leading segment; scoped targets on other segments drop;
// generic targets pass through untouched.
func (c Condition) ViaNext(segment string) Constraint {
	return c.viaNext(segment, false)
}

func (c Condition) genericity() (generic, mixed bool) { return c.generic, false }

// Describe renders the condition as readable text.
func (c Condition) Describe() string {
	var sb strings.Builder
	if c.generic {
		sb.WriteString("*/")
	}
	sb.WriteString(c.target)
	sb.WriteByte(' ')
	sb.WriteString(string(c.op))
	sb.WriteByte(' ')
	if c.op == OpIn {
		sb.WriteByte('[')
		for i, v := range c.values {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(table.Format(v))
		}
		sb.WriteByte(']')
	} else {
		sb.WriteString(table.Format(c.values[0]))
	}
	return sb.String()
}

func (c Condition) String() string { return c.Describe() }
