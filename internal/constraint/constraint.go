package constraint

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/tally/internal/schema"
	"github.com/roach88/tally/internal/table"
)

// Kind names the node types of the closed grammar.
type Kind string

const (
	KindCondition Kind = "condition"
	KindAnd       Kind = "and"
	KindOr        Kind = "or"
	KindNone      Kind = "none"
)

// Constraint is the sealed node interface of the predicate algebra. Only
// Condition, And, Or and the None value implement it.
type Constraint interface {
	constraint() // sealed

	// Kind names the node type.
	Kind() Kind
	// Resolvable reports whether the constraint can still be honored. It
	// turns false when a disjunction loses branches while crossing hops.
	Resolvable() bool
	// Conditions returns every leaf in the subtree.
	Conditions() []Condition
	// ViaNext rebases the constraint across one relationship hop.
	ViaNext(segment string) Constraint
	// Describe renders the constraint as readable text.
	Describe() string

	viaNext(segment string, includeGeneric bool) Constraint
	genericity() (generic, mixed bool)
}

// None is the empty constraint. It is the identity of conjunction and is
// dropped from every combinator.
var None Constraint = noneConstraint{}

type noneConstraint struct{}

func (noneConstraint) constraint() {}

func (noneConstraint) Kind() Kind { return KindNone }

func (noneConstraint) Resolvable() bool { return true }

func (noneConstraint) Conditions() []Condition { return nil }

func (noneConstraint) ViaNext(string) Constraint { return None }

func (noneConstraint) viaNext(string, bool) Constraint { return None }

func (noneConstraint) genericity() (bool, bool) { return false, false }

func (noneConstraint) Describe() string { return "none" }

func (noneConstraint) String() string { return "none" }

// IsNone reports whether the constraint is absent.
func IsNone(c Constraint) bool {
	return c == nil || c.Kind() == KindNone
}

// And is the conjunction of its operands. Nested conjunctions flatten on
// construction, so operands are only conditions and disjunctions.
type And struct {
	ops []Constraint
}

// NewAnd conjoins constraints. None operands are dropped, nested
// conjunctions are flattened, a single survivor is returned unwrapped and
// an empty conjunction collapses to None.
func NewAnd(ops ...Constraint) Constraint {
	flat := make([]Constraint, 0, len(ops))
	for _, op := range ops {
		if IsNone(op) {
			continue
		}
		if and, ok := op.(And); ok {
			flat = append(flat, and.ops...)
			continue
		}
		flat = append(flat, op)
	}
	switch len(flat) {
	case 0:
		return None
	case 1:
		return flat[0]
	}
	return And{ops: flat}
}

func (a And) constraint() {}

// Kind returns KindAnd.
func (a And) Kind() Kind { return KindAnd }

// Operands returns the conjoined constraints.
func (a And) Operands() []Constraint { return append([]Constraint(nil), a.ops...) }

// Resolvable reports whether every operand is resolvable.
func (a And) Resolvable() bool {
	for _, op := range a.ops {
		if !op.Resolvable() {
			return false
		}
	}
	return true
}

// Conditions returns the leaves of every operand.
func (a And) Conditions() []Condition {
	var out []Condition
	for _, op := range a.ops {
		out = append(out, op.Conditions()...)
	}
	return out
}

func (a And) viaNext(segment string, includeGeneric bool) Constraint {
	next := make([]Constraint, 0, len(a.ops))
	for _, op := range a.ops {
		next = append(next, op.viaNext(segment, includeGeneric))
	}
	return NewAnd(next...)
}

// ViaNext rebases every operand across the hop and drops the ones that do
// not travel.
func (a And) ViaNext(segment string) Constraint {
	return a.viaNext(segment, false)
}

func (a And) genericity() (generic, mixed bool) {
	sawGeneric, sawScoped := false, false
	for _, op := range a.ops {
		g, m := op.genericity()
		if m {
			return false, true
		}
		if g {
			sawGeneric = true
		} else {
			sawScoped = true
		}
	}
	return sawGeneric && !sawScoped, sawGeneric && sawScoped
}

// Describe renders the conjunction with infix ampersands.
func (a And) Describe() string { return describeContainer(a.ops, "&") }

func (a And) String() string { return a.Describe() }

// Or is the disjunction of its operands. Operands never mix scoped and
// generic branches.
type Or struct {
	ops []Constraint
	// partial marks a disjunction that lost branches crossing a hop and can
	// therefore no longer be honored.
	partial bool
}

// NewOr disjoins constraints. None operands are dropped and a single
// survivor is returned unwrapped. Mixing scoped and generic branches is an
// error, as is an operand that mixes internally.
func NewOr(ops ...Constraint) (Constraint, error) {
	flat := make([]Constraint, 0, len(ops))
	for _, op := range ops {
		if IsNone(op) {
			continue
		}
		if or, ok := op.(Or); ok && !or.partial {
			flat = append(flat, or.ops...)
			continue
		}
		flat = append(flat, op)
	}
	switch len(flat) {
	case 0:
		return None, nil
	case 1:
		return flat[0], nil
	}
	sawGeneric, sawScoped := false, false
	for _, op := range flat {
		g, m := op.genericity()
		if m {
			return nil, fmt.Errorf("constraint: disjunction branch %s mixes scoped and generic conditions", op.Describe())
		}
		if g {
			sawGeneric = true
		} else {
			sawScoped = true
		}
	}
	if sawGeneric && sawScoped {
		return nil, fmt.Errorf("constraint: disjunction mixes scoped and generic branches")
	}
	return Or{ops: flat}, nil
}

// MustOr is NewOr for statically known disjunctions.
func MustOr(ops ...Constraint) Constraint {
	c, err := NewOr(ops...)
	if err != nil {
		panic(err)
	}
	return c
}

func (o Or) constraint() {}

// Kind returns KindOr.
func (o Or) Kind() Kind { return KindOr }

// Operands returns the disjoined constraints.
func (o Or) Operands() []Constraint { return append([]Constraint(nil), o.ops...) }

// Resolvable reports whether the disjunction kept all its branches and
// every branch is itself resolvable.
func (o Or) Resolvable() bool {
	if o.partial {
		return false
	}
	for _, op := range o.ops {
		if !op.Resolvable() {
			return false
		}
	}
	return true
}

// Conditions returns the leaves of every branch.
func (o Or) Conditions() []Condition {
	var out []Condition
	for _, op := range o.ops {
		out = append(out, op.Conditions()...)
	}
	return out
}

func (o Or) viaNext(segment string, includeGeneric bool) Constraint {
	next := make([]Constraint, 0, len(o.ops))
	lost := false
	for _, op := range o.ops {
		moved := op.viaNext(segment, includeGeneric)
		if IsNone(moved) {
			lost = true
			continue
		}
		next = append(next, moved)
	}
	if len(next) == 0 {
		return None
	}
	out := Or{ops: next, partial: o.partial || lost}
	if len(next) == 1 && !out.partial {
		return next[0]
	}
	return out
}

// ViaNext rebases every branch across the hop. A branch that does not
// travel makes the surviving disjunction unresolvable, because the dropped
// alternative can no longer be offered.
func (o Or) ViaNext(segment string) Constraint {
	return o.viaNext(segment, false)
}

func (o Or) genericity() (generic, mixed bool) {
	if len(o.ops) == 0 {
		return false, false
	}
	g, _ := o.ops[0].genericity()
	return g, false
}

// Describe renders the disjunction with infix pipes.
func (o Or) Describe() string { return describeContainer(o.ops, "|") }

func (o Or) String() string { return o.Describe() }

func describeContainer(ops []Constraint, sep string) string {
	parts := make([]string, len(ops))
	for i, op := range ops {
		parts[i] = op.Describe()
	}
	return "(" + strings.Join(parts, " "+sep+" ") + ")"
}

// ScopedPart returns the subtree of scoped conditions. Disjunctions are
// homogeneous, so they move whole or not at all.
func ScopedPart(c Constraint) Constraint {
	switch node := c.(type) {
	case nil, noneConstraint:
		return None
	case Condition:
		if node.generic {
			return None
		}
		return node
	case And:
		kept := make([]Constraint, 0, len(node.ops))
		for _, op := range node.ops {
			kept = append(kept, ScopedPart(op))
		}
		return NewAnd(kept...)
	case Or:
		if g, _ := node.genericity(); g {
			return None
		}
		return node
	default:
		return None
	}
}

// GenericPart returns the subtree of generic conditions.
func GenericPart(c Constraint) Constraint {
	switch node := c.(type) {
	case nil, noneConstraint:
		return None
	case Condition:
		if node.generic {
			return node
		}
		return None
	case And:
		kept := make([]Constraint, 0, len(node.ops))
		for _, op := range node.ops {
			kept = append(kept, GenericPart(op))
		}
		return NewAnd(kept...)
	case Or:
		if g, _ := node.genericity(); g {
			return node
		}
		return None
	default:
		return None
	}
}

// ScopedForUnit returns the constraints to resolve against the given unit
// type: the scoped part plus every generic condition whose unit hint names
// the type, rebased into scoped form. Unhinted generics stay out; they bind
// per provider through GenericForFields.
func ScopedForUnit(c Constraint, unit schema.UnitType) Constraint {
	generic := GenericPart(c)
	if IsNone(generic) {
		return ScopedPart(c)
	}
	return NewAnd(ScopedPart(c), generic.viaNext(string(unit), true))
}

// GenericForFields returns the generic constraints a provider can evaluate:
// the branches whose every condition targets a field the provider carries.
func GenericForFields(c Constraint, has func(field string) bool) Constraint {
	generic := GenericPart(c)
	switch node := generic.(type) {
	case nil, noneConstraint:
		return None
	case Condition:
		if has(node.target) {
			return node.asScoped()
		}
		return None
	case And:
		kept := make([]Constraint, 0, len(node.ops))
		for _, op := range node.ops {
			kept = append(kept, GenericForFields(op, has))
		}
		return NewAnd(kept...)
	case Or:
		for _, cond := range node.Conditions() {
			if !has(cond.target) {
				return None
			}
		}
		scoped := make([]Constraint, 0, len(node.ops))
		for _, op := range node.ops {
			scoped = append(scoped, GenericForFields(op, has))
		}
		out, err := NewOr(scoped...)
		if err != nil {
			return None
		}
		return out
	default:
		return None
	}
}

func (c Condition) asScoped() Condition {
	c.generic = false
	return c
}

// Conjoin is the conjunction combinator for optional constraints.
func Conjoin(cs ...Constraint) Constraint { return NewAnd(cs...) }

// Canonical renders a position-independent text form: operands sort within
// their container, so logically equal constraints print identically.
func Canonical(c Constraint) string {
	switch node := c.(type) {
	case nil, noneConstraint:
		return "none"
	case Condition:
		return node.Describe()
	case And:
		return canonicalContainer("&", node.ops, false)
	case Or:
		return canonicalContainer("|", node.ops, node.partial)
	default:
		return c.Describe()
	}
}

func canonicalContainer(sep string, ops []Constraint, partial bool) string {
	parts := make([]string, len(ops))
	for i, op := range ops {
		parts[i] = Canonical(op)
	}
	sort.Strings(parts)
	text := "(" + strings.Join(parts, " "+sep+" ") + ")"
	if partial {
		text += "!"
	}
	return text
}

// Equal reports whether two constraints are logically identical up to
// operand order.
func Equal(a, b Constraint) bool {
	return Canonical(a) == Canonical(b)
}

// Matches evaluates the constraint tree against one row, reading cells
// through get, keyed by condition target. None matches everything. The
// caller is responsible for only passing trees whose targets are plain
// field names; relationship prefixes are not interpreted here.
func Matches(c Constraint, get func(field string) table.Value) bool {
	switch node := c.(type) {
	case nil, noneConstraint:
		return true
	case Condition:
		return node.Match(get(node.target))
	case And:
		for _, op := range node.ops {
			if !Matches(op, get) {
				return false
			}
		}
		return true
	case Or:
		for _, op := range node.ops {
			if Matches(op, get) {
				return true
			}
		}
		return false
	default:
		return false
	}
}
