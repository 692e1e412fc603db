package registry

import (
	"fmt"
	"sort"

	"github.com/roach88/tally/internal/schema"
)

// Snapshot is an immutable view of the provider graph at one version.
// Planners resolve an entire query against a single snapshot, so concurrent
// registrations never shift the ground under a resolution.
type Snapshot struct {
	version   uint64
	order     []string
	providers map[string]*schema.Provider
	units     map[string]*unitEntry
}

// unitEntry indexes the features exposed for one unit type name.
type unitEntry struct {
	name        schema.UnitType
	identifiers schema.Resolved
	foreignKeys map[string]schema.Resolved
	reverseKeys map[string]schema.Resolved
	dimensions  map[string]schema.Resolved
	partitions  map[string]schema.Resolved
	measures    map[string]schema.Resolved
}

func newUnitEntry(name schema.UnitType) *unitEntry {
	return &unitEntry{
		name:        name,
		identifiers: schema.Resolved{Name: string(name), Kind: schema.KindIdentifier, Unit: name},
		foreignKeys: make(map[string]schema.Resolved),
		reverseKeys: make(map[string]schema.Resolved),
		dimensions:  make(map[string]schema.Resolved),
		partitions:  make(map[string]schema.Resolved),
		measures:    make(map[string]schema.Resolved),
	}
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		providers: make(map[string]*schema.Provider),
		units:     make(map[string]*unitEntry),
	}
}

// buildSnapshot indexes the providers in registration order. It returns an
// error on the first feature collision, leaving the caller's state alone.
func buildSnapshot(version uint64, order []string, byName map[string]*schema.Provider) (*Snapshot, error) {
	snap := &Snapshot{
		version:   version,
		order:     order,
		providers: byName,
		units:     make(map[string]*unitEntry),
	}
	for _, name := range order {
		if err := snap.index(byName[name]); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

func (s *Snapshot) entry(name schema.UnitType) *unitEntry {
	e, ok := s.units[string(name)]
	if !ok {
		e = newUnitEntry(name)
		s.units[string(name)] = e
	}
	return e
}

// index merges one provider into the unit entries. Dimensions and measures
// are exposed only under unit types the provider holds uniquely; partitions
// are exposed under every declared unit type; relationship keys are indexed
// forward from the unique side and reverse from the referenced side.
func (s *Snapshot) index(p *schema.Provider) error {
	for _, id := range p.Identifiers() {
		e := s.entry(id.Unit)
		e.identifiers.Providers = append(e.identifiers.Providers, p)

		for _, avail := range p.Identifiers() {
			if avail.Unit == id.Unit {
				continue
			}
			switch {
			case id.Unique():
				if err := addResolved(e.foreignKeys, schema.Resolved{
					Name: avail.Name(),
					Kind: schema.KindForeignKey,
					Unit: id.Unit,
				}, p, true, e.name); err != nil {
					return err
				}
			case avail.Unique():
				if err := addResolved(e.reverseKeys, schema.Resolved{
					Name: avail.Name(),
					Kind: schema.KindReverseKey,
					Unit: id.Unit,
				}, p, true, e.name); err != nil {
					return err
				}
			}
		}

		if id.Unique() {
			for _, d := range p.Dimensions() {
				if err := addResolved(e.dimensions, schema.Resolved{
					Name: d.Name,
					Kind: schema.KindDimension,
					Unit: id.Unit,
				}, p, d.Shared, e.name); err != nil {
					return err
				}
			}
			for _, m := range p.Measures() {
				if err := addResolved(e.measures, schema.Resolved{
					Name: m.Name,
					Kind: schema.KindMeasure,
					Unit: id.Unit,
				}, p, m.Shared, e.name); err != nil {
					return err
				}
			}
		}
		for _, d := range p.Partitions() {
			if err := addResolved(e.partitions, schema.Resolved{
				Name: d.Name,
				Kind: schema.KindPartition,
				Unit: id.Unit,
			}, p, true, e.name); err != nil {
				return err
			}
		}
	}
	return nil
}

// addResolved merges a feature exposure into an entry map. Two providers
// may expose the same feature for a unit only when both declare it shared.
func addResolved(into map[string]schema.Resolved, r schema.Resolved, p *schema.Provider, shared bool, unit schema.UnitType) error {
	existing, ok := into[r.Name]
	if !ok {
		r.Providers = []*schema.Provider{p}
		into[r.Name] = r
		return nil
	}
	if !shared || !sharedIn(existing.Providers[0], existing.Kind, existing.Name) {
		return fmt.Errorf("registry: unit %q: %s %q is not shared between providers %q and %q",
			unit, existing.Kind, r.Name, existing.Providers[0].Name(), p.Name())
	}
	existing.Providers = append(existing.Providers, p)
	into[r.Name] = existing
	return nil
}

func sharedIn(p *schema.Provider, kind schema.FeatureKind, name string) bool {
	switch kind {
	case schema.KindDimension:
		d, ok := p.Dimension(name)
		return ok && d.Shared
	case schema.KindPartition:
		return true
	case schema.KindMeasure:
		m, ok := p.Measure(name)
		return ok && m.Shared
	default:
		// Relationship keys are join points and inherently shared.
		return true
	}
}

// Version returns the graph version the snapshot was taken at.
func (s *Snapshot) Version() uint64 { return s.version }

// Providers returns every registered provider in registration order.
func (s *Snapshot) Providers() []*schema.Provider {
	out := make([]*schema.Provider, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.providers[name])
	}
	return out
}

// Provider looks up a provider by name.
func (s *Snapshot) Provider(name string) (*schema.Provider, bool) {
	p, ok := s.providers[name]
	return p, ok
}

// Units returns every known unit type name in sorted order.
func (s *Snapshot) Units() []schema.UnitType {
	out := make([]schema.UnitType, 0, len(s.units))
	for name := range s.units {
		out = append(out, schema.UnitType(name))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// HasUnit reports whether any entry covers the requested unit type.
func (s *Snapshot) HasUnit(unit schema.UnitType) bool {
	return len(s.entriesFor(unit)) > 0
}

// IdentifierFor returns the most specific known unit type covering the
// request: asking for "person:seller" prefers the "person:seller" entry
// over "person" when both exist.
func (s *Snapshot) IdentifierFor(unit schema.UnitType) (schema.UnitType, bool) {
	entries := s.entriesFor(unit)
	if len(entries) == 0 {
		return "", false
	}
	return entries[0].name, true
}

// entriesFor returns the unit entries covering the request, most specific
// first. Ties cannot occur because entry names are unique.
func (s *Snapshot) entriesFor(unit schema.UnitType) []*unitEntry {
	var out []*unitEntry
	for _, e := range s.units {
		if e.name.Matches(unit) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return len(out[i].name) > len(out[j].name) })
	return out
}

// ProvidersFor returns the providers that can serve as a base for the unit
// type: the ones holding a matching identifier uniquely. Registration order
// is preserved.
func (s *Snapshot) ProvidersFor(unit schema.UnitType) []*schema.Provider {
	var out []*schema.Provider
	for _, name := range s.order {
		p := s.providers[name]
		if id, ok := p.IdentifierFor(unit); ok && id.Unique() {
			out = append(out, p)
		}
	}
	return out
}

// IdentifierHolders returns every provider declaring an identifier that
// covers the unit type, regardless of role, in registration order. Unlike
// ProvidersFor this includes providers holding the unit as a foreign key,
// which can anchor a plan only by collapsing rows to the unit's granularity.
func (s *Snapshot) IdentifierHolders(unit schema.UnitType) []*schema.Provider {
	var out []*schema.Provider
	for _, name := range s.order {
		p := s.providers[name]
		if _, ok := p.IdentifierFor(unit); ok {
			out = append(out, p)
		}
	}
	return out
}

// ForeignKey resolves a relationship hop from the unit to the named unit
// type. The lookup is exact first; failing that, a declared key whose unit
// type covers the request resolves with a mask, so a "person" key can serve
// a "person:seller" hop under its requested name.
func (s *Snapshot) ForeignKey(unit schema.UnitType, name string) (schema.Resolved, bool) {
	for _, e := range s.entriesFor(unit) {
		if r, ok := e.foreignKeys[name]; ok {
			r.Unit = unit
			return r, true
		}
	}
	var best schema.Resolved
	found := false
	for _, e := range s.entriesFor(unit) {
		for declared, r := range e.foreignKeys {
			if schema.UnitType(declared).Matches(schema.UnitType(name)) {
				if !found || len(declared) > len(best.Name) {
					best = r.WithMask(name)
					best.Unit = unit
					found = true
				}
			}
		}
		if found {
			break
		}
	}
	return best, found
}

// ForeignKeysFor lists the forward relationship keys of the unit in sorted
// order.
func (s *Snapshot) ForeignKeysFor(unit schema.UnitType) []schema.Resolved {
	return s.collect(unit, func(e *unitEntry) map[string]schema.Resolved { return e.foreignKeys })
}

// ReverseKey resolves a reverse relationship from the unit to the named
// owning unit type, such as from "person:seller" back to "transaction".
func (s *Snapshot) ReverseKey(unit schema.UnitType, name string) (schema.Resolved, bool) {
	for _, e := range s.entriesFor(unit) {
		if r, ok := e.reverseKeys[name]; ok {
			r.Unit = unit
			return r, true
		}
	}
	return schema.Resolved{}, false
}

// ReverseKeysFor lists the reverse relationship keys of the unit in sorted
// order.
func (s *Snapshot) ReverseKeysFor(unit schema.UnitType) []schema.Resolved {
	return s.collect(unit, func(e *unitEntry) map[string]schema.Resolved { return e.reverseKeys })
}

// ResolveDimension resolves a plain dimension of the unit, walking the
// lattice from the most specific entry down. Provider candidates from less
// specific entries are merged in so planners see every provider able to
// supply the feature; naming follows the most specific exposure.
func (s *Snapshot) ResolveDimension(unit schema.UnitType, name string) (schema.Resolved, bool) {
	return s.resolveIn(unit, name, func(e *unitEntry) map[string]schema.Resolved { return e.dimensions })
}

// ResolvePartition resolves a partition dimension of the unit.
func (s *Snapshot) ResolvePartition(unit schema.UnitType, name string) (schema.Resolved, bool) {
	return s.resolveIn(unit, name, func(e *unitEntry) map[string]schema.Resolved { return e.partitions })
}

// ResolveMeasure resolves a measure of the unit.
func (s *Snapshot) ResolveMeasure(unit schema.UnitType, name string) (schema.Resolved, bool) {
	return s.resolveIn(unit, name, func(e *unitEntry) map[string]schema.Resolved { return e.measures })
}

func (s *Snapshot) resolveIn(unit schema.UnitType, name string, pick func(*unitEntry) map[string]schema.Resolved) (schema.Resolved, bool) {
	var out schema.Resolved
	found := false
	for _, e := range s.entriesFor(unit) {
		r, ok := pick(e)[name]
		if !ok {
			continue
		}
		if !found {
			out = r
			out.Unit = unit
			out.Providers = append([]*schema.Provider(nil), r.Providers...)
			found = true
			continue
		}
		for _, p := range r.Providers {
			if !out.ProvidedBy(p.Name()) {
				out.Providers = append(out.Providers, p)
			}
		}
	}
	return out, found
}

// DimensionsFor lists the dimensions exposed for the unit across the
// lattice, most specific exposure winning, in sorted order.
func (s *Snapshot) DimensionsFor(unit schema.UnitType) []schema.Resolved {
	return s.collect(unit, func(e *unitEntry) map[string]schema.Resolved { return e.dimensions })
}

// PartitionsFor lists the partitions exposed for the unit in sorted order.
func (s *Snapshot) PartitionsFor(unit schema.UnitType) []schema.Resolved {
	return s.collect(unit, func(e *unitEntry) map[string]schema.Resolved { return e.partitions })
}

// MeasuresFor lists the measures exposed for the unit in sorted order.
func (s *Snapshot) MeasuresFor(unit schema.UnitType) []schema.Resolved {
	return s.collect(unit, func(e *unitEntry) map[string]schema.Resolved { return e.measures })
}

func (s *Snapshot) collect(unit schema.UnitType, pick func(*unitEntry) map[string]schema.Resolved) []schema.Resolved {
	seen := make(map[string]bool)
	var out []schema.Resolved
	for _, e := range s.entriesFor(unit) {
		for name, r := range pick(e) {
			if seen[name] {
				continue
			}
			seen[name] = true
			r.Unit = unit
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// UnitSummary is the flattened feature listing of one unit type.
type UnitSummary struct {
	Unit        schema.UnitType `json:"unit"`
	Providers   []string        `json:"providers,omitempty"`
	ForeignKeys []string        `json:"foreign_keys,omitempty"`
	ReverseKeys []string        `json:"reverse_keys,omitempty"`
	Dimensions  []string        `json:"dimensions,omitempty"`
	Partitions  []string        `json:"partitions,omitempty"`
	Measures    []string        `json:"measures,omitempty"`
}

// Summaries renders the whole graph as sorted unit summaries, one per known
// unit type, with the lattice flattened into each.
func (s *Snapshot) Summaries() []UnitSummary {
	units := s.Units()
	out := make([]UnitSummary, 0, len(units))
	for _, unit := range units {
		var providers []string
		for _, p := range s.ProvidersFor(unit) {
			providers = append(providers, p.Name())
		}
		out = append(out, UnitSummary{
			Unit:        unit,
			Providers:   providers,
			ForeignKeys: resolvedNames(s.ForeignKeysFor(unit)),
			ReverseKeys: resolvedNames(s.ReverseKeysFor(unit)),
			Dimensions:  resolvedNames(s.DimensionsFor(unit)),
			Partitions:  resolvedNames(s.PartitionsFor(unit)),
			Measures:    resolvedNames(s.MeasuresFor(unit)),
		})
	}
	return out
}

func resolvedNames(rs []schema.Resolved) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Name)
	}
	return out
}
