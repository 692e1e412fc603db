package schema

import (
	"fmt"
	"regexp"
	"strings"
)

// UnitType names a statistical unit such as "person" or "transaction". A
// colon-separated suffix qualifies a relationship role, as in "person:seller":
// a seller is still a person, but a person is not necessarily a seller.
type UnitType string

// nameRe bounds feature and unit names: word characters and colons, not
// starting with a digit or a colon.
var nameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_:]*$`)

// ValidName reports whether s is usable as a unit type or feature name.
func ValidName(s string) bool {
	if s == "" || strings.HasSuffix(s, ":") || strings.Contains(s, "::") {
		return false
	}
	return nameRe.MatchString(s)
}

// Matches reports whether u, as a declared identifier, covers the requested
// unit type. Coverage is segment-wise prefix on colon-separated parts: the
// identifier "person" matches requests for "person" and "person:seller",
// while the identifier "person:seller" matches only equally or more
// qualified requests.
func (u UnitType) Matches(requested UnitType) bool {
	if u == requested {
		return true
	}
	own := strings.Split(string(u), ":")
	req := strings.Split(string(requested), ":")
	if len(own) > len(req) {
		return false
	}
	for i, seg := range own {
		if req[i] != seg {
			return false
		}
	}
	return true
}

// Root returns the unqualified head of the unit type: "person:seller" roots
// at "person".
func (u UnitType) Root() UnitType {
	if i := strings.IndexByte(string(u), ':'); i >= 0 {
		return u[:i]
	}
	return u
}

// Qualified reports whether the unit type carries a relationship qualifier.
func (u UnitType) Qualified() bool {
	return strings.IndexByte(string(u), ':') >= 0
}

func (u UnitType) String() string { return string(u) }

// Role states how an identifier relates a provider to a unit type.
type Role string

const (
	// RolePrimary marks the unit type the provider enumerates, one row per
	// unit member.
	RolePrimary Role = "primary"
	// RoleUnique marks a unit type the provider holds at most one row for
	// without enumerating it.
	RoleUnique Role = "unique"
	// RoleForeign marks a many-to-one reference to another unit type.
	RoleForeign Role = "foreign"
)

// Validate checks that the role is one of the three declared values.
func (r Role) Validate() error {
	switch r {
	case RolePrimary, RoleUnique, RoleForeign:
		return nil
	}
	return fmt.Errorf("schema: unknown identifier role %q", string(r))
}

// Unique reports whether rows keyed by this identifier are at most one per
// unit member. Both primary and unique roles guarantee that.
func (r Role) Unique() bool {
	return r == RolePrimary || r == RoleUnique
}
