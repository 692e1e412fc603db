package schema

import (
	"fmt"
	"slices"
)

// Resolved is a feature resolved against the registry graph for a concrete
// unit type. It decorates the underlying declaration with the relationship
// path it was reached through and with exposure attributes the planner
// manipulates. Resolved values are copied, never mutated in place.
type Resolved struct {
	// Name is the feature name within its providers.
	Name string
	// Kind is the feature family the resolution matched.
	Kind FeatureKind
	// Unit is the unit type the feature was resolved for.
	Unit UnitType
	// Via is the slash-joined relationship prefix from the plan root to the
	// unit the feature lives on. Empty at the root.
	Via string
	// Mask renames the feature in query output. Empty means no renaming.
	Mask string
	// Private excludes the feature from query output while keeping it
	// available for joins and constraints.
	Private bool
	// External marks a feature satisfied by a joined child rather than the
	// provider at its own level.
	External bool
	// Implicit marks a feature the planner added on its own, such as join
	// keys and required partitions.
	Implicit bool
	// Providers lists the candidate providers in registration order.
	Providers []*Provider
}

// ExposedName is the name the feature surfaces under in output: the mask
// when one is set, the declared name otherwise.
func (r Resolved) ExposedName() string {
	if r.Mask != "" {
		return r.Mask
	}
	return r.Name
}

// ViaName is the fully prefixed name used to address the feature within a
// plan, such as "person:seller/name".
func (r Resolved) ViaName() string {
	return JoinVia(r.Via, r.Name)
}

// ExposedViaName is the fully prefixed name under the exposed name.
func (r Resolved) ExposedViaName() string {
	return JoinVia(r.Via, r.ExposedName())
}

// AsVia prepends relationship segments to the via prefix, rebasing the
// feature one or more hops away from its origin.
func (r Resolved) AsVia(segments ...string) Resolved {
	parts := append(slices.Clone(segments), r.Via)
	r.Via = JoinVia(parts...)
	return r
}

// ViaNext strips the leading via segment, rebasing the feature one hop
// closer to its origin. The second return is false when there is no via
// prefix left to strip.
func (r Resolved) ViaNext() (Resolved, string, bool) {
	if r.Via == "" {
		return r, "", false
	}
	head, rest := SplitVia(r.Via)
	r.Via = rest
	return r, head, true
}

// AsPrivate marks the feature excluded from output.
func (r Resolved) AsPrivate() Resolved {
	r.Private = true
	return r
}

// AsPublic clears the private mark.
func (r Resolved) AsPublic() Resolved {
	r.Private = false
	return r
}

// AsExternal marks the feature as provided by a joined child.
func (r Resolved) AsExternal() Resolved {
	r.External = true
	return r
}

// AsInternal clears the external mark.
func (r Resolved) AsInternal() Resolved {
	r.External = false
	return r
}

// AsImplicit marks the feature as planner-added.
func (r Resolved) AsImplicit() Resolved {
	r.Implicit = true
	return r
}

// WithMask sets the exposed name override.
func (r Resolved) WithMask(mask string) Resolved {
	r.Mask = mask
	return r
}

// ProvidedBy reports whether the named provider is among the candidates.
func (r Resolved) ProvidedBy(name string) bool {
	return slices.ContainsFunc(r.Providers, func(p *Provider) bool { return p.Name() == name })
}

func (r Resolved) String() string {
	return fmt.Sprintf("%s %s (unit %s)", r.Kind, r.ExposedViaName(), r.Unit)
}

// SplitVia splits a via prefix into its head segment and the remainder:
// "a/b/c" yields ("a", "b/c").
func SplitVia(via string) (head, rest string) {
	for i := 0; i < len(via); i++ {
		if via[i] == '/' {
			return via[:i], via[i+1:]
		}
	}
	return via, ""
}
