package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tally/internal/table"
)

func TestSellerMeasuresScenario(t *testing.T) {
	s, err := LoadScenario("testdata/seller_measures.yaml")
	require.NoError(t, err)

	RunWithGolden(t, s)
}

func TestConstraintRulesScenario(t *testing.T) {
	s, err := LoadScenario("testdata/constraint_rules.yaml")
	require.NoError(t, err)

	RunWithGolden(t, s)
}

func TestParseScenarioRejectsUnknownField(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: typo
description: misspelled key
providers:
  - name: p
    identifiers:
      - {unit: person, role: primary}
request:
  - name: r
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing scenario")
}

func TestParseScenarioValidation(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "missing name",
			src: `
providers:
  - name: p
    identifiers: [{unit: person, role: primary}]
requests:
  - {name: r, unit: person}
`,
			want: "name is required",
		},
		{
			name: "no providers",
			src: `
name: s
requests:
  - {name: r, unit: person}
`,
			want: "providers list is required",
		},
		{
			name: "request without unit",
			src: `
name: s
providers:
  - name: p
    identifiers: [{unit: person, role: primary}]
requests:
  - {name: r}
`,
			want: "unit is required",
		},
		{
			name: "expectation names both",
			src: `
name: s
providers:
  - name: p
    identifiers: [{unit: person, role: primary}]
requests:
  - name: r
    unit: person
    measures: [count]
    expect:
      error: INVALID_REQUEST
      rows:
        - {count: 1}
`,
			want: "both an error and rows",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tc.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestRunReportsRowMismatch(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: mismatch
providers:
  - name: people
    identifiers:
      - {unit: person, expr: id, role: primary}
    measures:
      - {name: age}
    rows:
      - {id: p1, age: 34}
requests:
  - name: total_age
    unit: person
    measures: [age]
    expect:
      rows:
        - {age: 99}
`))
	require.NoError(t, err)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)

	failures := result.Failures()
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0], "total_age")
	assert.Contains(t, failures[0], "want 99")
}

func TestRunReportsUnexpectedSuccess(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: surprise
providers:
  - name: people
    identifiers:
      - {unit: person, expr: id, role: primary}
    rows:
      - {id: p1}
requests:
  - name: fine_request
    unit: person
    measures: [count]
    expect:
      error: UNRESOLVED_PATH
`))
	require.NoError(t, err)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, result.Failures(), 1)
	assert.Contains(t, result.Failures()[0], `succeeded, want error "UNRESOLVED_PATH"`)
}

func TestRowTableFillsMissingCells(t *testing.T) {
	def := ProviderDef{
		Name: "p",
		Rows: []map[string]any{
			{"a": 1, "b": "x"},
			{"a": 2},
		},
	}
	rows, err := def.rowTable()
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, rows.Columns())
	assert.Equal(t, table.Null{}, rows.Row(1).Get("b"))
	assert.Equal(t, table.Int(2), rows.Row(1).Get("a"))
}
