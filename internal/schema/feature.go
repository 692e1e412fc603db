package schema

import "fmt"

// FeatureKind distinguishes the feature families a provider can declare and
// the registry can look up.
type FeatureKind string

const (
	KindIdentifier FeatureKind = "identifier"
	KindForeignKey FeatureKind = "foreign_key"
	KindReverseKey FeatureKind = "reverse_foreign_key"
	KindDimension  FeatureKind = "dimension"
	KindPartition  FeatureKind = "partition"
	KindMeasure    FeatureKind = "measure"
)

// Identifier declares that a provider carries a key column for a unit type.
type Identifier struct {
	// Unit is the unit type the column identifies, possibly qualified, as in
	// "person:seller".
	Unit UnitType `json:"unit"`
	// Expr is the backend expression or column yielding the key. Empty means
	// the column named after the unit type.
	Expr string `json:"expr,omitempty"`
	// Desc is a human-readable description.
	Desc string `json:"desc,omitempty"`
	// Role is primary, unique or foreign. Empty defaults to foreign.
	Role Role `json:"role,omitempty"`
}

// Name returns the feature name of the identifier, which is its unit type.
func (id Identifier) Name() string { return string(id.Unit) }

// Unique reports whether the provider holds at most one row per member of
// this identifier's unit type.
func (id Identifier) Unique() bool { return id.Role.Unique() }

// Matches reports whether this identifier covers the requested unit type.
func (id Identifier) Matches(requested UnitType) bool { return id.Unit.Matches(requested) }

func (id Identifier) validate() error {
	if !ValidName(string(id.Unit)) {
		return fmt.Errorf("schema: invalid identifier unit type %q", id.Unit)
	}
	if id.Role != "" {
		return id.Role.Validate()
	}
	return nil
}

// Dimension declares a segmentable attribute of a provider's owning unit.
type Dimension struct {
	// Name is the attribute name exposed to feature paths.
	Name string `json:"name"`
	// Expr is the backend expression or column yielding the value. Empty
	// means the column named Name.
	Expr string `json:"expr,omitempty"`
	// Desc is a human-readable description.
	Desc string `json:"desc,omitempty"`
	// Default substitutes for missing values during evaluation.
	Default any `json:"default,omitempty"`
	// Shared marks the dimension joinable across providers. Only shared
	// features may appear in more than one provider per unit type.
	Shared bool `json:"shared,omitempty"`
	// Partition marks a shared dimension that subdivides every feature of
	// the provider, such as a date batch.
	Partition bool `json:"partition,omitempty"`
	// RequiresConstraint forces callers to constrain this partition in every
	// query that touches the provider.
	RequiresConstraint bool `json:"requires_constraint,omitempty"`
}

func (d Dimension) validate() error {
	if !ValidName(d.Name) {
		return fmt.Errorf("schema: invalid dimension name %q", d.Name)
	}
	if d.Partition && !d.Shared {
		return fmt.Errorf("schema: partition %q must be shared", d.Name)
	}
	if d.RequiresConstraint && !d.Partition {
		return fmt.Errorf("schema: dimension %q requires a constraint but is not a partition", d.Name)
	}
	return nil
}

// Measure declares an aggregatable quantity of a provider's owning unit.
type Measure struct {
	// Name is the measure name exposed to feature paths.
	Name string `json:"name"`
	// Expr is the backend expression or column yielding the value. Empty
	// means the column named Name.
	Expr string `json:"expr,omitempty"`
	// Desc is a human-readable description.
	Desc string `json:"desc,omitempty"`
	// Default substitutes for missing values during evaluation.
	Default any `json:"default,omitempty"`
	// Shared marks the measure joinable across providers.
	Shared bool `json:"shared,omitempty"`
}

// CountMeasure is the implicit measure every provider carries: the number of
// rows per member of the owning unit type, used for rebasing aggregations.
const CountMeasure = "count"

func (m Measure) validate() error {
	if !ValidName(m.Name) {
		return fmt.Errorf("schema: invalid measure name %q", m.Name)
	}
	return nil
}

// AsDimension views the measure as a dimension, which is how measures behave
// when a query segments by them instead of aggregating them.
func (m Measure) AsDimension() Dimension {
	return Dimension{Name: m.Name, Expr: m.Expr, Desc: m.Desc, Default: m.Default, Shared: m.Shared}
}
