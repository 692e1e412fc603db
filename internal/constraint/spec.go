package constraint

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"github.com/roach88/tally/internal/table"
)

// AnyOf is a disjunction in spec form: any one alternative must hold.
type AnyOf []any

// OneOf is a membership in spec form: the target must take one of the
// listed values. Alternatives that carry comparison operators turn the
// membership into a disjunction of comparisons.
type OneOf []any

// Pair is an explicit operator binding in spec form, for targets whose
// literal value would otherwise parse as an operator prefix.
type Pair struct {
	Op    Op
	Value any
}

var cmpPrefixRe = regexp.MustCompile(`^(<=|>=|<|>)\s*(.*)$`)

// Normalize builds a constraint from loosely typed spec data, as decoded
// from YAML, JSON or written inline in Go. The forms are:
//
//   - nil normalizes to None
//   - a Constraint passes through unchanged
//   - a map conjoins its entries; the key is the target path, the value the
//     predicate
//   - a plain slice conjoins its elements
//   - AnyOf disjoins its elements
//
// Map entry values may be scalars (equality, with the comparison prefixes
// "<", "<=", ">" and ">=" recognized on strings), Pair bindings, slices
// (conjunction per element), OneOf (membership) and AnyOf (disjunction per
// element). Decoded data can spell AnyOf and OneOf as single-entry maps
// with the key "any" or "one".
func Normalize(spec any) (Constraint, error) {
	switch s := spec.(type) {
	case nil:
		return None, nil
	case Constraint:
		return s, nil
	case AnyOf:
		ops := make([]Constraint, 0, len(s))
		for _, elem := range s {
			c, err := Normalize(elem)
			if err != nil {
				return nil, err
			}
			ops = append(ops, c)
		}
		return NewOr(ops...)
	case OneOf:
		return nil, fmt.Errorf("constraint: membership needs a target, nest it under a map key")
	case Pair:
		return nil, fmt.Errorf("constraint: operator binding needs a target, nest it under a map key")
	case []any:
		ops := make([]Constraint, 0, len(s))
		for _, elem := range s {
			c, err := Normalize(elem)
			if err != nil {
				return nil, err
			}
			ops = append(ops, c)
		}
		return NewAnd(ops...), nil
	case map[string]any:
		targets := make([]string, 0, len(s))
		for target := range s {
			targets = append(targets, target)
		}
		sort.Strings(targets)
		ops := make([]Constraint, 0, len(s))
		for _, target := range targets {
			c, err := normalizeEntry(target, s[target])
			if err != nil {
				return nil, err
			}
			ops = append(ops, c)
		}
		return NewAnd(ops...), nil
	default:
		return nil, fmt.Errorf("constraint: cannot normalize %T into a constraint", spec)
	}
}

// MustNormalize is Normalize for statically known specs.
func MustNormalize(spec any) Constraint {
	c, err := Normalize(spec)
	if err != nil {
		panic(err)
	}
	return c
}

func normalizeEntry(target string, value any) (Constraint, error) {
	switch v := value.(type) {
	case Pair:
		vals, err := pairValues(v)
		if err != nil {
			return nil, fmt.Errorf("constraint: target %q: %w", target, err)
		}
		c, err := NewCondition(target, v.Op, vals...)
		if err != nil {
			return nil, err
		}
		return c, nil
	case AnyOf:
		ops := make([]Constraint, 0, len(v))
		for _, elem := range v {
			c, err := normalizeEntry(target, elem)
			if err != nil {
				return nil, err
			}
			ops = append(ops, c)
		}
		return NewOr(ops...)
	case OneOf:
		return normalizeMembership(target, v)
	case []any:
		ops := make([]Constraint, 0, len(v))
		for _, elem := range v {
			c, err := normalizeEntry(target, elem)
			if err != nil {
				return nil, err
			}
			ops = append(ops, c)
		}
		return NewAnd(ops...), nil
	case map[string]any:
		if alt, ok := specAlias(v); ok {
			return normalizeEntry(target, alt)
		}
		return nil, fmt.Errorf("constraint: target %q: unsupported nested map value", target)
	default:
		op, val, err := scalarPredicate(value)
		if err != nil {
			return nil, fmt.Errorf("constraint: target %q: %w", target, err)
		}
		c, err := NewCondition(target, op, val)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// specAlias recognizes the decoded-data spelling of AnyOf and OneOf: a
// single-entry map keyed "any" or "one" over a list.
func specAlias(m map[string]any) (any, bool) {
	if len(m) != 1 {
		return nil, false
	}
	for key, raw := range m {
		list, ok := raw.([]any)
		if !ok {
			return nil, false
		}
		switch key {
		case "any":
			return AnyOf(list), true
		case "one":
			return OneOf(list), true
		}
	}
	return nil, false
}

func normalizeMembership(target string, alts OneOf) (Constraint, error) {
	if len(alts) == 0 {
		return nil, fmt.Errorf("constraint: target %q: empty membership", target)
	}
	plain := true
	for _, elem := range alts {
		switch e := elem.(type) {
		case Pair:
			plain = false
		case string:
			if cmpPrefixRe.MatchString(e) {
				plain = false
			}
		}
	}
	if plain {
		vals := make([]table.Value, 0, len(alts))
		for _, elem := range alts {
			v, err := table.FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("constraint: target %q: %w", target, err)
			}
			vals = append(vals, v)
		}
		c, err := NewCondition(target, OpIn, vals...)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	ops := make([]Constraint, 0, len(alts))
	for _, elem := range alts {
		c, err := normalizeEntry(target, elem)
		if err != nil {
			return nil, err
		}
		ops = append(ops, c)
	}
	return NewOr(ops...)
}

// scalarPredicate decides the operator for a bare scalar value. Strings
// carrying a comparison prefix become ordered comparisons with the
// remainder parsed as a number when possible.
func scalarPredicate(value any) (Op, table.Value, error) {
	if s, ok := value.(string); ok {
		if m := cmpPrefixRe.FindStringSubmatch(s); m != nil {
			if m[2] == "" {
				return "", nil, fmt.Errorf("comparison %q has no value", s)
			}
			return Op(m[1]), parseLiteral(m[2]), nil
		}
	}
	v, err := table.FromAny(value)
	if err != nil {
		return "", nil, err
	}
	return OpEq, v, nil
}

func parseLiteral(text string) table.Value {
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return table.Int(i)
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		return table.Float(f)
	}
	return table.String(text)
}

func pairValues(p Pair) ([]table.Value, error) {
	if p.Op == OpIn {
		list, ok := p.Value.([]any)
		if !ok {
			return nil, fmt.Errorf("membership binding needs a list of values, got %T", p.Value)
		}
		vals := make([]table.Value, 0, len(list))
		for _, elem := range list {
			v, err := table.FromAny(elem)
			if err != nil {
				return nil, err
			}
			vals = append(vals, v)
		}
		return vals, nil
	}
	v, err := table.FromAny(p.Value)
	if err != nil {
		return nil, err
	}
	return []table.Value{v}, nil
}
