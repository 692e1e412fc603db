package strategy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/tally/internal/constraint"
	"github.com/roach88/tally/internal/schema"
	"github.com/roach88/tally/internal/table"
)

// DomainPlan is the domain prefix for plan fingerprints. The version
// suffix enables future canonical-form migration.
const DomainPlan = "tally/plan/v1"

// Plan is one node of a validated evaluation plan: a single provider
// evaluated for a unit type, plus the joins hanging off it. The root node
// carries the graph version the plan was resolved against.
type Plan struct {
	// Unit is the unit type this node resolves.
	Unit schema.UnitType

	// Provider is the elected base provider of the node.
	Provider *schema.Provider

	// Measures lists the measures surfaced at this node, in request
	// order. External entries arrive through a sibling join instead of
	// the base provider.
	Measures []schema.Resolved

	// Segments lists the grouping columns of the node in output order:
	// requested dimensions first, then planner-added keys and partitions.
	Segments []schema.Resolved

	// Where is the provider-local constraint, pushed into the adapter
	// call. Targets use provider-local names.
	Where constraint.Constraint

	// Filter is applied to joined rows at this node, for predicates that
	// span providers. Targets use exposed column names.
	Filter constraint.Constraint

	// Joins are evaluated after the base provider and merged in order.
	Joins []Join

	// Rebase collapses the node's rows to one per distinct segment
	// combination, summing measures, before the parent consumes them.
	Rebase bool

	// GraphVersion is the registry snapshot version the plan resolved
	// against.
	GraphVersion uint64
}

// Join attaches a child plan to its parent node.
type Join struct {
	// Plan is the child node.
	Plan *Plan

	// Via is the relationship prefix joined child columns surface under.
	// Empty for sibling joins, whose columns keep their own names.
	Via string

	// LeftOn and RightOn pair the parent and child join columns by
	// position, using exposed names.
	LeftOn  []string
	RightOn []string

	// Kind is inner when the child restricts the parent rows.
	Kind table.JoinKind

	// Reverse marks an aggregation join: the child was collapsed onto
	// the parent's granularity.
	Reverse bool
}

// SegmentColumns returns the exposed names of every segment in order.
func (p *Plan) SegmentColumns() []string {
	out := make([]string, 0, len(p.Segments))
	for _, s := range p.Segments {
		out = append(out, s.ExposedName())
	}
	return out
}

// PublicSegments returns the segments the caller asked for, in request
// order.
func (p *Plan) PublicSegments() []schema.Resolved {
	var out []schema.Resolved
	for _, s := range p.Segments {
		if !s.Private {
			out = append(out, s)
		}
	}
	return out
}

// LocalSegments returns the segments the base provider itself supplies.
func (p *Plan) LocalSegments() []schema.Resolved {
	var out []schema.Resolved
	for _, s := range p.Segments {
		if !s.External {
			out = append(out, s)
		}
	}
	return out
}

// LocalMeasures returns the measures the base provider itself supplies.
func (p *Plan) LocalMeasures() []schema.Resolved {
	var out []schema.Resolved
	for _, m := range p.Measures {
		if !m.External {
			out = append(out, m)
		}
	}
	return out
}

// MeasureColumns returns the output names of every measure surfaced at
// this node: node-local measures under their exposed names, then joined
// child measures under their relationship prefix, following join order.
// Sibling joins contribute nothing extra; their measures are already in
// the node's own list.
func (p *Plan) MeasureColumns() []string {
	var out []string
	for _, m := range p.Measures {
		out = append(out, m.ExposedName())
	}
	for _, j := range p.Joins {
		if j.Via == "" {
			continue
		}
		for _, name := range j.Plan.MeasureColumns() {
			out = append(out, schema.JoinVia(j.Via, name))
		}
	}
	return out
}

// Constrained reports whether any predicate restricts the node's rows,
// directly or through an inner-joined child.
func (p *Plan) Constrained() bool {
	if !constraint.IsNone(p.Where) || !constraint.IsNone(p.Filter) {
		return true
	}
	for _, j := range p.Joins {
		if j.Plan.Constrained() {
			return true
		}
	}
	return false
}

// ProviderNames returns the distinct providers of the plan tree in
// pre-order.
func (p *Plan) ProviderNames() []string {
	var out []string
	seen := make(map[string]bool)
	p.walk(func(node *Plan) {
		if !seen[node.Provider.Name()] {
			seen[node.Provider.Name()] = true
			out = append(out, node.Provider.Name())
		}
	})
	return out
}

func (p *Plan) walk(fn func(*Plan)) {
	fn(p)
	for _, j := range p.Joins {
		j.Plan.walk(fn)
	}
}

// Explain renders the plan tree as deterministic text, one node per
// block. The rendering doubles as the fingerprint's canonical form.
func (p *Plan) Explain() string {
	var sb strings.Builder
	p.explain(&sb, 0)
	return sb.String()
}

func (p *Plan) explain(sb *strings.Builder, depth int) {
	pad := strings.Repeat("  ", depth)
	fmt.Fprintf(sb, "%splan unit=%s provider=%s", pad, p.Unit, p.Provider.Name())
	if p.Rebase {
		sb.WriteString(" rebase")
	}
	if depth == 0 {
		fmt.Fprintf(sb, " graph=%d", p.GraphVersion)
	}
	sb.WriteByte('\n')
	for _, s := range p.Segments {
		fmt.Fprintf(sb, "%s  segment %s kind=%s%s\n", pad, s.ExposedName(), s.Kind, resolvedFlags(s))
	}
	for _, m := range p.Measures {
		fmt.Fprintf(sb, "%s  measure %s kind=%s%s\n", pad, m.ExposedName(), m.Kind, resolvedFlags(m))
	}
	if !constraint.IsNone(p.Where) {
		fmt.Fprintf(sb, "%s  where %s\n", pad, constraint.Canonical(p.Where))
	}
	if !constraint.IsNone(p.Filter) {
		fmt.Fprintf(sb, "%s  filter %s\n", pad, constraint.Canonical(p.Filter))
	}
	for _, j := range p.Joins {
		dir := "forward"
		if j.Reverse {
			dir = "reverse"
		}
		via := j.Via
		if via == "" {
			via = "-"
		}
		fmt.Fprintf(sb, "%s  join %s via=%s kind=%s left=[%s] right=[%s]\n",
			pad, dir, via, j.Kind, strings.Join(j.LeftOn, " "), strings.Join(j.RightOn, " "))
		j.Plan.explain(sb, depth+2)
	}
}

func resolvedFlags(r schema.Resolved) string {
	var flags []string
	if r.Name != r.ExposedName() {
		flags = append(flags, "local="+r.Name)
	}
	if r.Private {
		flags = append(flags, "private")
	}
	if r.Implicit {
		flags = append(flags, "implicit")
	}
	if r.External {
		flags = append(flags, "external")
	}
	if len(flags) == 0 {
		return ""
	}
	return " " + strings.Join(flags, " ")
}

// Fingerprint computes a content-addressed identity for the plan.
// Format: SHA256(domain + 0x00 + NFC(canonical text)). Two resolutions
// of the same request against the same graph share a fingerprint.
func (p *Plan) Fingerprint() string {
	h := sha256.New()
	h.Write([]byte(DomainPlan))
	h.Write([]byte{0x00})
	h.Write([]byte(norm.NFC.String(p.Explain())))
	return hex.EncodeToString(h.Sum(nil))
}

func (p *Plan) String() string {
	return fmt.Sprintf("plan{unit=%s provider=%s joins=%d}", p.Unit, p.Provider.Name(), len(p.Joins))
}
