package harness

import (
	"bytes"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/tally/internal/schema"
	"github.com/roach88/tally/internal/table"
)

// Scenario defines one conformance scenario: a provider graph with inline
// rows and the requests to evaluate against it.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description"`

	// Providers declares the graph, in registration order.
	Providers []ProviderDef `yaml:"providers"`

	// Requests lists the evaluations and their expected outcomes.
	Requests []RequestCase `yaml:"requests"`
}

// ProviderDef declares one provider and its rows.
type ProviderDef struct {
	Name        string           `yaml:"name"`
	Identifiers []IdentifierDef  `yaml:"identifiers,omitempty"`
	Dimensions  []FieldDef       `yaml:"dimensions,omitempty"`
	Measures    []FieldDef       `yaml:"measures,omitempty"`
	Partitions  []PartitionDef   `yaml:"partitions,omitempty"`
	Rows        []map[string]any `yaml:"rows"`
}

// IdentifierDef mirrors schema.Identifier in YAML form.
type IdentifierDef struct {
	Unit string `yaml:"unit"`
	Expr string `yaml:"expr,omitempty"`
	Role string `yaml:"role,omitempty"`
}

// FieldDef declares a dimension or measure.
type FieldDef struct {
	Name   string `yaml:"name"`
	Expr   string `yaml:"expr,omitempty"`
	Shared bool   `yaml:"shared,omitempty"`
}

// PartitionDef declares a partition dimension.
type PartitionDef struct {
	Name               string `yaml:"name"`
	Expr               string `yaml:"expr,omitempty"`
	RequiresConstraint bool   `yaml:"requires_constraint,omitempty"`
}

// RequestCase is one evaluation with its expectation.
type RequestCase struct {
	Name      string      `yaml:"name"`
	Unit      string      `yaml:"unit"`
	Measures  []string    `yaml:"measures,omitempty"`
	SegmentBy []string    `yaml:"segment_by,omitempty"`
	Where     any         `yaml:"where,omitempty"`
	Expect    Expectation `yaml:"expect"`
}

// Expectation is either an error code or the expected result rows.
type Expectation struct {
	// Error is the expected resolution or runtime error code, such as
	// "MISSING_PARTITION_CONSTRAINT". Empty means the request must succeed.
	Error string `yaml:"error,omitempty"`

	// Rows are the expected result rows in result order. Each map is a
	// full row keyed by output column.
	Rows []map[string]any `yaml:"rows,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected, so typos fail at load time.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("harness: reading scenario: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML source.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("harness: parsing scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("harness: invalid scenario: %w", err)
	}
	return &s, nil
}

// Validate checks that the required fields are present.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Providers) == 0 {
		return fmt.Errorf("providers list is required and must be non-empty")
	}
	for i, p := range s.Providers {
		if p.Name == "" {
			return fmt.Errorf("providers[%d]: name is required", i)
		}
		if len(p.Identifiers) == 0 {
			return fmt.Errorf("providers[%d]: identifiers list is required and must be non-empty", i)
		}
	}
	if len(s.Requests) == 0 {
		return fmt.Errorf("requests list is required and must be non-empty")
	}
	for i, r := range s.Requests {
		if r.Name == "" {
			return fmt.Errorf("requests[%d]: name is required", i)
		}
		if r.Unit == "" {
			return fmt.Errorf("requests[%d]: unit is required", i)
		}
		if r.Expect.Error != "" && r.Expect.Rows != nil {
			return fmt.Errorf("requests[%d]: expect names both an error and rows", i)
		}
	}
	return nil
}

// declaration freezes a provider definition into a schema declaration.
func (p ProviderDef) declaration() (*schema.Provider, error) {
	b := schema.NewProvider(p.Name)
	for _, id := range p.Identifiers {
		b = b.WithIdentifier(schema.Identifier{
			Unit: schema.UnitType(id.Unit),
			Expr: id.Expr,
			Role: schema.Role(id.Role),
		})
	}
	for _, d := range p.Dimensions {
		b = b.WithDimension(schema.Dimension{Name: d.Name, Expr: d.Expr, Shared: d.Shared})
	}
	for _, m := range p.Measures {
		b = b.WithMeasure(schema.Measure{Name: m.Name, Expr: m.Expr, Shared: m.Shared})
	}
	for _, pt := range p.Partitions {
		b = b.WithPartition(schema.Dimension{
			Name:               pt.Name,
			Expr:               pt.Expr,
			RequiresConstraint: pt.RequiresConstraint,
		})
	}
	return b.Build()
}

// rowTable materializes the inline rows. Columns are the union of the row
// keys, sorted; cells missing from a row load as null.
func (p ProviderDef) rowTable() (*table.Table, error) {
	colSet := make(map[string]bool)
	for _, row := range p.Rows {
		for col := range row {
			colSet[col] = true
		}
	}
	cols := make([]string, 0, len(colSet))
	for col := range colSet {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	t, err := table.New(cols...)
	if err != nil {
		return nil, err
	}
	for i, row := range p.Rows {
		vals := make([]table.Value, len(cols))
		for j, col := range cols {
			raw, ok := row[col]
			if !ok {
				vals[j] = table.Null{}
				continue
			}
			v, err := table.FromAny(raw)
			if err != nil {
				return nil, fmt.Errorf("provider %q row %d column %q: %w", p.Name, i, col, err)
			}
			vals[j] = v
		}
		if err := t.Append(vals...); err != nil {
			return nil, err
		}
	}
	return t, nil
}
