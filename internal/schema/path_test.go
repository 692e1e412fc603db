package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePath(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		generic  bool
		segments []string
	}{
		{"bare attribute", "age", false, []string{"age"}},
		{"single hop", "person/name", false, []string{"person", "name"}},
		{"qualified hop", "transaction/person:seller/name", false, []string{"transaction", "person:seller", "name"}},
		{"generic target", "*/ds", true, []string{"ds"}},
		{"generic with unit hint", "*/person/ds", true, []string{"person", "ds"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParsePath(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.generic, p.Generic)
			assert.Equal(t, tt.segments, p.Segments)
			assert.Equal(t, tt.input, p.String(), "parse then print must round-trip")
		})
	}
}

func TestParsePathRejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
		pos   int
	}{
		{"empty", "", 0},
		{"leading slash", "/age", 0},
		{"trailing slash", "age/", 4},
		{"double slash", "person//name", 7},
		{"wildcard not first", "person/*/ds", 7},
		{"bare wildcard", "*", 0},
		{"leading digit", "person/1name", 7},
		{"trailing colon", "person:/name", 0},
		{"space in segment", "per son", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePath(tt.input)
			require.Error(t, err)

			var perr *PathError
			require.True(t, errors.As(err, &perr), "error must be a *PathError")
			assert.Equal(t, tt.input, perr.Input)
			assert.Equal(t, tt.pos, perr.Pos)
			assert.NotEmpty(t, perr.Message)
		})
	}
}

func TestPathTerminalAndHops(t *testing.T) {
	p, err := ParsePath("transaction/person:seller/name")
	require.NoError(t, err)

	assert.Equal(t, "name", p.Terminal())
	assert.Equal(t, []string{"transaction", "person:seller"}, p.Hops())
}

func TestSplitQualifier(t *testing.T) {
	name, qual := SplitQualifier("person:seller")
	assert.Equal(t, "person", name)
	assert.Equal(t, "seller", qual)

	name, qual = SplitQualifier("person")
	assert.Equal(t, "person", name)
	assert.Empty(t, qual)
}

func TestJoinVia(t *testing.T) {
	assert.Equal(t, "a/b/c", JoinVia("a", "b", "c"))
	assert.Equal(t, "a/c", JoinVia("a", "", "c"))
	assert.Equal(t, "", JoinVia("", ""))
}

func TestSplitVia(t *testing.T) {
	head, rest := SplitVia("a/b/c")
	assert.Equal(t, "a", head)
	assert.Equal(t, "b/c", rest)

	head, rest = SplitVia("a")
	assert.Equal(t, "a", head)
	assert.Empty(t, rest)
}
