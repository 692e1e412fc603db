package schema

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// Builder accumulates the declaration of a provider. Builders are values:
// every With method returns a derived builder and leaves the receiver
// untouched, so partial declarations can be shared and forked safely.
type Builder struct {
	name        string
	identifiers []Identifier
	dimensions  []Dimension
	measures    []Measure
}

// NewProvider starts a provider declaration with the given name.
func NewProvider(name string) Builder {
	return Builder{name: name}
}

// WithIdentifier adds an identifier. An empty role defaults to foreign.
func (b Builder) WithIdentifier(id Identifier) Builder {
	if id.Role == "" {
		id.Role = RoleForeign
	}
	b.identifiers = append(b.identifiers[:len(b.identifiers):len(b.identifiers)], id)
	return b
}

// WithDimension adds a plain dimension.
func (b Builder) WithDimension(d Dimension) Builder {
	d.Partition = false
	d.RequiresConstraint = false
	b.dimensions = append(b.dimensions[:len(b.dimensions):len(b.dimensions)], d)
	return b
}

// WithPartition adds a partition dimension. Partitions are always shared.
func (b Builder) WithPartition(d Dimension) Builder {
	d.Shared = true
	d.Partition = true
	b.dimensions = append(b.dimensions[:len(b.dimensions):len(b.dimensions)], d)
	return b
}

// WithMeasure adds a measure.
func (b Builder) WithMeasure(m Measure) Builder {
	b.measures = append(b.measures[:len(b.measures):len(b.measures)], m)
	return b
}

// Build validates the declaration and freezes it into a Provider. The
// implicit "count" measure is appended unless declared explicitly.
func (b Builder) Build() (*Provider, error) {
	if !ValidName(b.name) {
		return nil, fmt.Errorf("schema: invalid provider name %q", b.name)
	}
	p := &Provider{
		name:        b.name,
		identifiers: slices.Clone(b.identifiers),
		dimensions:  slices.Clone(b.dimensions),
		measures:    slices.Clone(b.measures),
		kinds:       make(map[string]FeatureKind),
	}
	owning := 0
	for _, id := range p.identifiers {
		if err := id.validate(); err != nil {
			return nil, fmt.Errorf("provider %q: %w", b.name, err)
		}
		if err := p.index(id.Name(), KindIdentifier); err != nil {
			return nil, err
		}
		if id.Unique() {
			owning++
			p.owning = id.Unit
		}
	}
	if owning == 0 {
		return nil, fmt.Errorf("schema: provider %q declares no primary or unique identifier", b.name)
	}
	if owning > 1 {
		return nil, fmt.Errorf("schema: provider %q declares more than one primary or unique identifier", b.name)
	}
	for _, d := range p.dimensions {
		if err := d.validate(); err != nil {
			return nil, fmt.Errorf("provider %q: %w", b.name, err)
		}
		kind := KindDimension
		if d.Partition {
			kind = KindPartition
		}
		if err := p.index(d.Name, kind); err != nil {
			return nil, err
		}
	}
	if !slices.ContainsFunc(p.measures, func(m Measure) bool { return m.Name == CountMeasure }) {
		p.measures = append(p.measures, Measure{Name: CountMeasure, Desc: "implicit row count", Shared: true})
	}
	for _, m := range p.measures {
		if err := m.validate(); err != nil {
			return nil, fmt.Errorf("provider %q: %w", b.name, err)
		}
		if err := p.index(m.Name, KindMeasure); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// MustBuild is Build for statically known declarations, such as fixtures.
func (b Builder) MustBuild() *Provider {
	p, err := b.Build()
	if err != nil {
		panic(err)
	}
	return p
}

// Provider is a frozen provider declaration. Instances are only produced by
// Builder.Build and never mutated afterwards, so they are safe to share
// across goroutines and to key plans on by pointer.
type Provider struct {
	name        string
	owning      UnitType
	identifiers []Identifier
	dimensions  []Dimension
	measures    []Measure
	kinds       map[string]FeatureKind
}

func (p *Provider) index(name string, kind FeatureKind) error {
	if prev, ok := p.kinds[name]; ok {
		return fmt.Errorf("schema: provider %q declares %q as both %s and %s", p.name, name, prev, kind)
	}
	p.kinds[name] = kind
	return nil
}

// Name returns the provider name.
func (p *Provider) Name() string { return p.name }

// OwningUnit returns the unit type anchored by the provider's primary or
// unique identifier.
func (p *Provider) OwningUnit() UnitType { return p.owning }

// Identifiers returns the declared identifiers in declaration order.
func (p *Provider) Identifiers() []Identifier { return slices.Clone(p.identifiers) }

// Dimensions returns the declared non-partition dimensions.
func (p *Provider) Dimensions() []Dimension {
	out := make([]Dimension, 0, len(p.dimensions))
	for _, d := range p.dimensions {
		if !d.Partition {
			out = append(out, d)
		}
	}
	return out
}

// Partitions returns the declared partition dimensions.
func (p *Provider) Partitions() []Dimension {
	var out []Dimension
	for _, d := range p.dimensions {
		if d.Partition {
			out = append(out, d)
		}
	}
	return out
}

// Measures returns the declared measures, including the implicit count.
func (p *Provider) Measures() []Measure { return slices.Clone(p.measures) }

// Identifier looks up an identifier by its exact unit type name.
func (p *Provider) Identifier(name string) (Identifier, bool) {
	for _, id := range p.identifiers {
		if id.Name() == name {
			return id, true
		}
	}
	return Identifier{}, false
}

// IdentifierFor returns the most specific identifier covering the requested
// unit type. Longer names win, so "person:seller" is preferred over "person"
// when both match.
func (p *Provider) IdentifierFor(unit UnitType) (Identifier, bool) {
	ids := slices.Clone(p.identifiers)
	sort.SliceStable(ids, func(i, j int) bool {
		return len(ids[i].Name()) > len(ids[j].Name())
	})
	for _, id := range ids {
		if id.Matches(unit) {
			return id, true
		}
	}
	return Identifier{}, false
}

// Dimension looks up a dimension or partition by name.
func (p *Provider) Dimension(name string) (Dimension, bool) {
	for _, d := range p.dimensions {
		if d.Name == name {
			return d, true
		}
	}
	return Dimension{}, false
}

// Measure looks up a measure by name.
func (p *Provider) Measure(name string) (Measure, bool) {
	for _, m := range p.measures {
		if m.Name == name {
			return m, true
		}
	}
	return Measure{}, false
}

// HasField reports whether the provider declares a feature under the given
// name, regardless of kind.
func (p *Provider) HasField(name string) bool {
	_, ok := p.kinds[name]
	return ok
}

// FieldKind returns the feature kind declared for name.
func (p *Provider) FieldKind(name string) (FeatureKind, bool) {
	k, ok := p.kinds[name]
	return k, ok
}

// Fields returns all declared feature names in sorted order.
func (p *Provider) Fields() []string {
	out := make([]string, 0, len(p.kinds))
	for name := range p.kinds {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (p *Provider) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "provider %s (unit %s)", p.name, p.owning)
	return sb.String()
}
