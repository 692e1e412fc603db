package table

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromAny(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want Value
	}{
		{"nil", nil, Null{}},
		{"string", "abc", String("abc")},
		{"bool", true, Bool(true)},
		{"int", 42, Int(42)},
		{"int64", int64(42), Int(42)},
		{"float64", 1.5, Float(1.5)},
		{"value passthrough", String("x"), String("x")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromAny(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromAnyRejectsUnsupported(t *testing.T) {
	_, err := FromAny(map[string]int{"a": 1})
	assert.Error(t, err)
}

func TestCompareWithinKind(t *testing.T) {
	assert.Negative(t, Compare(Int(1), Int(2)))
	assert.Positive(t, Compare(String("b"), String("a")))
	assert.Zero(t, Compare(Bool(true), Bool(true)))
	assert.Negative(t, Compare(Bool(false), Bool(true)))
	assert.Zero(t, Compare(Null{}, Null{}))
}

func TestCompareMixedNumerics(t *testing.T) {
	assert.Zero(t, Compare(Int(1), Float(1.0)), "ints and floats compare numerically")
	assert.Negative(t, Compare(Int(1), Float(1.5)))
	assert.Positive(t, Compare(Float(2.5), Int(2)))
}

func TestCompareAcrossKinds(t *testing.T) {
	// Nulls sort before everything, strings after numbers.
	assert.Negative(t, Compare(Null{}, Int(0)))
	assert.Negative(t, Compare(Int(99), String("1")))
	assert.Negative(t, Compare(Bool(true), Int(0)))
}

func TestKeyMergesNumericKinds(t *testing.T) {
	assert.Equal(t, Key(Int(1)), Key(Float(1.0)), "equal magnitudes must group together")
	assert.NotEqual(t, Key(Int(1)), Key(String("1")), "kinds must not collide")
	assert.NotEqual(t, Key(Null{}), Key(String("")))
}

func TestKeyKeepsLargeIntsExact(t *testing.T) {
	// 2^53 and its neighbor are indistinguishable as float64.
	a, b := Int(1<<53), Int(1<<53+1)
	assert.NotEqual(t, Key(a), Key(b), "int keys must not pass through float64")
	assert.NotEqual(t, Key(Int(math.MaxInt64)), Key(Int(math.MaxInt64-1)))
	assert.Equal(t, Key(Int(1<<53)), Key(Float(1<<53)), "exact magnitudes still merge")
	assert.Equal(t, "x:1.5", Key(Float(1.5)))
}

func TestCompareKeepsLargeIntsExact(t *testing.T) {
	assert.Positive(t, Compare(Int(1<<53+1), Int(1<<53)))
	assert.Negative(t, Compare(Int(math.MinInt64), Int(math.MinInt64+1)))
	assert.False(t, Equal(Int(1<<53), Int(1<<53+1)))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, `"abc"`, Format(String("abc")))
	assert.Equal(t, "42", Format(Int(42)))
	assert.Equal(t, "1.5", Format(Float(1.5)))
	assert.Equal(t, "true", Format(Bool(true)))
	assert.Equal(t, "null", Format(Null{}))
}

func TestAsFloat(t *testing.T) {
	f, ok := AsFloat(Int(3))
	require.True(t, ok)
	assert.Equal(t, 3.0, f)

	f, ok = AsFloat(Float(1.5))
	require.True(t, ok)
	assert.Equal(t, 1.5, f)

	_, ok = AsFloat(String("3"))
	assert.False(t, ok)
	_, ok = AsFloat(Null{})
	assert.False(t, ok)
}

func TestValueJSONRoundTrip(t *testing.T) {
	vals := []Value{Null{}, String("abc"), Int(42), Float(1.5), Bool(false)}

	for _, v := range vals {
		data, err := MarshalValue(v)
		require.NoError(t, err)

		back, err := UnmarshalValue(data)
		require.NoError(t, err)
		assert.True(t, Equal(v, back), "round trip changed %s", Format(v))
	}
}

func TestUnmarshalValueRejectsComposite(t *testing.T) {
	_, err := UnmarshalValue([]byte(`[1,2]`))
	assert.Error(t, err)

	_, err = UnmarshalValue([]byte(`{"a":1}`))
	assert.Error(t, err)
}

func TestIsNull(t *testing.T) {
	assert.True(t, IsNull(Null{}))
	assert.True(t, IsNull(nil))
	assert.False(t, IsNull(Int(0)))
	assert.False(t, IsNull(String("")))
}
