// Package constraint provides the closed predicate algebra queries filter
// with: equality, ordered comparison and membership leaves composed under
// conjunction and disjunction.
//
// A constraint is either scoped or generic. Scoped constraints name a
// feature path relative to the query's root unit type and participate in
// join resolution like any other requested feature. Generic constraints are
// prefixed with "*" and apply opportunistically to every provider that
// carries the named field. The planner rebases constraints across
// relationship hops with ViaNext and splits them per provider with
// ScopedForUnit and GenericForFields.
//
// Key design constraints:
//   - Constraint is a sealed interface; only Condition, And, Or and the
//     None value implement it
//   - Values are immutable; every transformation returns a new constraint
//   - Disjunctions never mix scoped and generic branches, so a constraint
//     always partitions cleanly into a scoped and a generic part
//   - A disjunction that loses a branch while crossing a hop becomes
//     unresolvable instead of silently weakening
package constraint
