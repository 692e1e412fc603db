package constraint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tally/internal/table"
)

func TestNewCondition(t *testing.T) {
	c, err := NewCondition("ds", OpEq, table.String("2018-01-01"))
	require.NoError(t, err)
	assert.Equal(t, "ds", c.Target())
	assert.False(t, c.Generic())
	assert.Equal(t, 0, c.Depth())
	assert.Equal(t, `ds == "2018-01-01"`, c.Describe())
}

func TestNewConditionScopedPath(t *testing.T) {
	c, err := NewCondition("person:seller/geography/name", OpEq, table.String("x"))
	require.NoError(t, err)
	assert.Equal(t, 2, c.Depth())

	head, rest := c.Head()
	assert.Equal(t, "person:seller", head)
	assert.Equal(t, "geography/name", rest)
}

func TestNewConditionGeneric(t *testing.T) {
	c, err := NewCondition("*/ds", OpEq, table.String("2018-01-01"))
	require.NoError(t, err)
	assert.True(t, c.Generic())
	assert.Equal(t, "ds", c.Target())
	assert.Equal(t, `*/ds == "2018-01-01"`, c.Describe())

	hinted, err := NewCondition("*/person/ds", OpEq, table.String("2018-01-01"))
	require.NoError(t, err)
	assert.True(t, hinted.Generic())
	assert.Equal(t, "person/ds", hinted.Target())
}

func TestNewConditionRejects(t *testing.T) {
	_, err := NewCondition("ds", Op("~"), table.String("x"))
	assert.ErrorContains(t, err, "unknown operator")

	_, err = NewCondition("", OpEq, table.String("x"))
	assert.ErrorContains(t, err, "invalid target")

	_, err = NewCondition("a/*/b", OpEq, table.String("x"))
	assert.ErrorContains(t, err, "invalid target")

	_, err = NewCondition("*/a/b/c", OpEq, table.String("x"))
	assert.ErrorContains(t, err, "at most a unit type and a field")

	_, err = NewCondition("ds", OpIn)
	assert.ErrorContains(t, err, "at least one value")

	_, err = NewCondition("ds", OpEq, table.String("a"), table.String("b"))
	assert.ErrorContains(t, err, "exactly one value")
}

func TestConditionMatch(t *testing.T) {
	eq := MustCondition("ds", OpEq, table.String("2018-01-01"))
	assert.True(t, eq.Match(table.String("2018-01-01")))
	assert.False(t, eq.Match(table.String("2018-01-02")))
	assert.False(t, eq.Match(table.Null{}))

	in := MustCondition("name", OpIn, table.String("a"), table.String("b"))
	assert.True(t, in.Match(table.String("b")))
	assert.False(t, in.Match(table.String("c")))

	ge := MustCondition("age", OpGe, table.Int(18))
	assert.True(t, ge.Match(table.Int(18)))
	assert.True(t, ge.Match(table.Float(18.5)), "ints and floats compare numerically")
	assert.False(t, ge.Match(table.Int(17)))
	assert.False(t, ge.Match(table.Null{}), "ordered comparisons never match null")
}

func TestNewAndFlattens(t *testing.T) {
	a := MustCondition("a", OpEq, table.Int(1))
	b := MustCondition("b", OpEq, table.Int(2))
	c := MustCondition("c", OpEq, table.Int(3))

	and := NewAnd(NewAnd(a, b), c)
	require.IsType(t, And{}, and)
	assert.Len(t, and.(And).Operands(), 3, "nested conjunctions flatten")
}

func TestNewAndSimplifies(t *testing.T) {
	a := MustCondition("a", OpEq, table.Int(1))

	assert.Equal(t, None, NewAnd())
	assert.Equal(t, None, NewAnd(None, nil))
	assert.Equal(t, Constraint(a), NewAnd(None, a), "single survivor unwraps")
}

func TestNewOrSimplifies(t *testing.T) {
	a := MustCondition("a", OpEq, table.Int(1))

	or, err := NewOr()
	require.NoError(t, err)
	assert.Equal(t, None, or)

	or, err = NewOr(a, None)
	require.NoError(t, err)
	assert.Equal(t, Constraint(a), or)
}

func TestNewOrRejectsMixedBranches(t *testing.T) {
	scoped := MustCondition("age", OpGe, table.Int(18))
	generic := MustCondition("*/ds", OpEq, table.String("2018-01-01"))

	_, err := NewOr(scoped, generic)
	assert.ErrorContains(t, err, "mixes scoped and generic branches")
}

func TestNewOrRejectsInternallyMixedBranch(t *testing.T) {
	mixed := NewAnd(
		MustCondition("age", OpGe, table.Int(18)),
		MustCondition("*/ds", OpEq, table.String("2018-01-01")),
	)
	other := NewAnd(
		MustCondition("age", OpLt, table.Int(10)),
		MustCondition("name", OpEq, table.String("x")),
	)

	_, err := NewOr(mixed, other)
	assert.ErrorContains(t, err, "mixes scoped and generic conditions")
}

func TestAndMayMixAcrossOperands(t *testing.T) {
	and := NewAnd(
		MustCondition("age", OpGe, table.Int(18)),
		MustCondition("*/ds", OpEq, table.String("2018-01-01")),
	)
	assert.Equal(t, KindAnd, and.Kind())
	assert.True(t, and.Resolvable())
}

func TestViaNextScoped(t *testing.T) {
	c := MustCondition("person:seller/name", OpEq, table.String("x"))

	moved := c.ViaNext("person:seller")
	require.Equal(t, KindCondition, moved.Kind())
	assert.Equal(t, "name", moved.(Condition).Target())
	assert.False(t, moved.(Condition).Generic())

	assert.Equal(t, None, c.ViaNext("geography"), "other hops drop the condition")
}

func TestViaNextDepthZeroDrops(t *testing.T) {
	c := MustCondition("ds", OpEq, table.String("2018-01-01"))
	assert.Equal(t, None, c.ViaNext("ds"), "a hopless condition applies where it stands and never travels")
}

func TestViaNextGenericPassesThrough(t *testing.T) {
	g := MustCondition("*/ds", OpEq, table.String("2018-01-01"))
	moved := g.ViaNext("person")
	assert.Equal(t, Constraint(g), moved, "generic constraints follow every hop unchanged")
}

func TestViaNextAnd(t *testing.T) {
	and := NewAnd(
		MustCondition("person:seller/name", OpEq, table.String("x")),
		MustCondition("ds", OpEq, table.String("2018-01-01")),
		MustCondition("*/ds", OpEq, table.String("2018-01-01")),
	)

	moved := and.ViaNext("person:seller")
	conds := moved.Conditions()
	require.Len(t, conds, 2)
	assert.Equal(t, "name", conds[0].Target())
	assert.True(t, conds[1].Generic())
}

func TestOrLosingBranchBecomesUnresolvable(t *testing.T) {
	or := MustOr(
		MustCondition("person:seller/name", OpEq, table.String("x")),
		MustCondition("geography/name", OpEq, table.String("y")),
	)

	moved := or.ViaNext("person:seller")
	require.Equal(t, KindOr, moved.Kind())
	assert.False(t, moved.Resolvable(), "a dropped alternative cannot be offered downstream")

	conds := moved.Conditions()
	require.Len(t, conds, 1)
	assert.Equal(t, "name", conds[0].Target())
}

func TestOrFullTravelStaysResolvable(t *testing.T) {
	or := MustOr(
		MustCondition("person:seller/name", OpEq, table.String("x")),
		MustCondition("person:seller/age", OpGe, table.Int(30)),
	)

	moved := or.ViaNext("person:seller")
	require.Equal(t, KindOr, moved.Kind())
	assert.True(t, moved.Resolvable())
	assert.Len(t, moved.Conditions(), 2)
}

func TestScopedAndGenericParts(t *testing.T) {
	where := NewAnd(
		MustCondition("age", OpGe, table.Int(18)),
		MustCondition("*/ds", OpEq, table.String("2018-01-01")),
		MustCondition("*/person/ds", OpEq, table.String("2018-01-01")),
	)

	scoped := ScopedPart(where)
	require.Len(t, scoped.Conditions(), 1)
	assert.Equal(t, "age", scoped.Conditions()[0].Target())

	generic := GenericPart(where)
	assert.Len(t, generic.Conditions(), 2)
}

func TestScopedForUnit(t *testing.T) {
	where := NewAnd(
		MustCondition("age", OpGe, table.Int(18)),
		MustCondition("*/ds", OpEq, table.String("2018-01-01")),
		MustCondition("*/person/ds", OpEq, table.String("2018-01-02")),
	)

	scoped := ScopedForUnit(where, "person")
	conds := scoped.Conditions()
	require.Len(t, conds, 2, "the unit-hinted generic joins the scoped part")
	assert.Equal(t, "age", conds[0].Target())
	assert.Equal(t, "ds", conds[1].Target())
	assert.False(t, conds[1].Generic(), "a matched hint becomes scoped")

	other := ScopedForUnit(where, "transaction")
	require.Len(t, other.Conditions(), 1, "unmatched hints stay out")
}

func TestGenericForFields(t *testing.T) {
	where := NewAnd(
		MustCondition("age", OpGe, table.Int(18)),
		MustCondition("*/ds", OpEq, table.String("2018-01-01")),
		MustCondition("*/person/ds", OpEq, table.String("2018-01-02")),
	)
	has := func(field string) bool { return field == "ds" }

	applicable := GenericForFields(where, has)
	conds := applicable.Conditions()
	require.Len(t, conds, 1, "unit-hinted generics never bind by field name")
	assert.Equal(t, "ds", conds[0].Target())
	assert.False(t, conds[0].Generic(), "a bound generic applies as a direct field filter")

	nothing := GenericForFields(where, func(string) bool { return false })
	assert.Equal(t, None, nothing)
}

func TestGenericForFieldsOrAllOrNothing(t *testing.T) {
	or := MustOr(
		MustCondition("*/ds", OpEq, table.String("2018-01-01")),
		MustCondition("*/batch", OpEq, table.Int(7)),
	)

	both := GenericForFields(or, func(string) bool { return true })
	assert.Equal(t, KindOr, both.Kind())

	partial := GenericForFields(or, func(field string) bool { return field == "ds" })
	assert.Equal(t, None, partial, "a disjunction binds only when every branch can")
}

func TestEqualIsOrderInsensitive(t *testing.T) {
	a := MustCondition("a", OpEq, table.Int(1))
	b := MustCondition("b", OpEq, table.Int(2))

	assert.True(t, Equal(NewAnd(a, b), NewAnd(b, a)))
	assert.True(t, Equal(MustOr(a, b), MustOr(b, a)))
	assert.False(t, Equal(NewAnd(a, b), MustOr(a, b)))
	assert.True(t, Equal(None, nil))
}

func TestCanonicalMarksPartialDisjunctions(t *testing.T) {
	or := MustOr(
		MustCondition("person:seller/name", OpEq, table.String("x")),
		MustCondition("geography/name", OpEq, table.String("y")),
	)
	moved := or.ViaNext("person:seller")

	assert.Contains(t, Canonical(moved), "!", "lost branches must show in the canonical form")
	assert.NotEqual(t, Canonical(moved), Canonical(MustCondition("name", OpEq, table.String("x"))))
}

func TestDescribeContainers(t *testing.T) {
	a := MustCondition("a", OpEq, table.Int(1))
	b := MustCondition("b", OpEq, table.Int(2))

	assert.Equal(t, "(a == 1 & b == 2)", NewAnd(a, b).Describe())
	assert.Equal(t, "(a == 1 | b == 2)", MustOr(a, b).Describe())
	assert.Equal(t, "none", None.Describe())
}

func TestIsNone(t *testing.T) {
	assert.True(t, IsNone(nil))
	assert.True(t, IsNone(None))
	assert.False(t, IsNone(MustCondition("a", OpEq, table.Int(1))))
}
