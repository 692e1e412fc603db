package strategy

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/tally/internal/constraint"
	"github.com/roach88/tally/internal/registry"
	"github.com/roach88/tally/internal/schema"
	"github.com/roach88/tally/internal/table"
)

// State names a phase of one resolution. Every resolution advances
// Start -> PathsCollected -> ProvidersSelected -> PlanAssembled ->
// Validated, or exits to Rejected from any non-terminal phase.
type State string

const (
	StateStart             State = "start"
	StatePathsCollected    State = "paths_collected"
	StateProvidersSelected State = "providers_selected"
	StatePlanAssembled     State = "plan_assembled"
	StateValidated         State = "validated"
	StateRejected          State = "rejected"
)

var transitions = map[State][]State{
	StateStart:             {StatePathsCollected, StateRejected},
	StatePathsCollected:    {StateProvidersSelected, StateRejected},
	StateProvidersSelected: {StatePlanAssembled, StateRejected},
	StatePlanAssembled:     {StateValidated, StateRejected},
}

// Request is one evaluation request before planning.
type Request struct {
	// Unit is the target unit type the result is keyed by.
	Unit schema.UnitType

	// Measures and SegmentBy are feature paths relative to Unit.
	Measures  []string
	SegmentBy []string

	// Where is the normalized constraint, nil meaning unconstrained.
	Where constraint.Constraint

	// Bound optionally caps the known row population for significance
	// bookkeeping downstream. Zero means unbounded. Planning ignores it.
	Bound int
}

// Resolver plans evaluation requests against one graph snapshot.
// Resolvers are stateless between calls and safe for concurrent use.
type Resolver struct {
	snap   *registry.Snapshot
	logger *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used for resolution diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewResolver builds a resolver over the snapshot.
func NewResolver(snap *registry.Snapshot, opts ...Option) *Resolver {
	r := &Resolver{snap: snap, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve produces a validated plan for the request, or a structured
// error describing the first rejection. Resolution never touches
// provider data.
func (r *Resolver) Resolve(req Request) (*Plan, error) {
	res := &resolution{snap: r.snap, logger: r.logger, state: StateStart}
	return res.run(req)
}

// resolution carries the mutable state of one Resolve call.
type resolution struct {
	snap   *registry.Snapshot
	logger *slog.Logger
	state  State

	// stack holds provider/unit pairs along the current descent, for
	// cycle detection. A provider may recur at a different unit type,
	// which is how aggregation sub-plans legitimately reuse a provider.
	stack []string
}

func (r *resolution) advance(to State) {
	if !slices.Contains(transitions[r.state], to) {
		panic(fmt.Sprintf("strategy: illegal transition %s -> %s", r.state, to))
	}
	r.logger.Debug("resolution advanced", "from", string(r.state), "to", string(to))
	r.state = to
}

func (r *resolution) reject(err error) error {
	if r.state != StateRejected {
		r.advance(StateRejected)
	}
	return err
}

func (r *resolution) run(req Request) (*Plan, error) {
	where := req.Where
	if where == nil {
		where = constraint.None
	}

	measures, err := parsePaths(req.Measures)
	if err != nil {
		return nil, r.reject(err)
	}
	segments, err := parsePaths(req.SegmentBy)
	if err != nil {
		return nil, r.reject(err)
	}
	if len(r.snap.IdentifierHolders(req.Unit)) == 0 {
		return nil, r.reject(&ResolutionError{
			Code:    ErrCodeUnresolvedPath,
			Unit:    req.Unit,
			Message: "no registered provider declares the unit type",
		})
	}
	r.advance(StatePathsCollected)

	plan, _, err := r.resolveLevel(levelRequest{
		unit:     req.Unit,
		measures: measures,
		segments: segments,
		where:    where,
		top:      true,
	})
	if err != nil {
		return nil, r.reject(err)
	}
	r.advance(StatePlanAssembled)

	if err := r.validate(plan, nil); err != nil {
		return nil, r.reject(err)
	}
	version := r.snap.Version()
	plan.walk(func(node *Plan) { node.GraphVersion = version })
	r.advance(StateValidated)
	r.logger.Debug("plan validated",
		"unit", string(req.Unit),
		"providers", plan.ProviderNames(),
		"graph_version", version)
	return plan, nil
}

// pathReq pairs a parsed path with the text the caller wrote, so
// rejections can cite the original request.
type pathReq struct {
	raw  string
	path schema.Path
}

func parsePaths(raw []string) ([]pathReq, error) {
	out := make([]pathReq, 0, len(raw))
	for _, text := range raw {
		p, err := schema.ParsePath(text)
		if err != nil {
			return nil, err
		}
		if p.Generic {
			return nil, &schema.PathError{Input: text, Message: "wildcard paths are only valid as constraint targets"}
		}
		out = append(out, pathReq{raw: text, path: p})
	}
	return out, nil
}

// levelRequest describes one node of the plan tree to resolve.
type levelRequest struct {
	unit     schema.UnitType
	measures []pathReq
	segments []pathReq
	where    constraint.Constraint
	top      bool
	anchor   *reverseAnchor
}

// reverseAnchor marks a level as the inside of an aggregation join: the
// node groups by the foreign identifier pointing back at the requesting
// unit type instead of its own identifier, and admits no further hops.
type reverseAnchor struct {
	key schema.Resolved
}

// feature is one column the level must provide, with its provider
// candidates.
type feature struct {
	res            schema.Resolved
	measure        bool
	constraintOnly bool
}

// bundle groups the trimmed paths that continue through one hop.
type bundle struct {
	head        string
	key         schema.Resolved
	reverse     bool
	measures    []pathReq
	segments    []pathReq
	constrained bool
}

// level accumulates the classification of one plan node before provider
// election.
type level struct {
	unit     schema.UnitType
	anchor   *reverseAnchor
	key      *feature
	segments []*feature
	measures []*feature
	index    map[string]*feature
	bundles  []*bundle
	byHead   map[string]*bundle

	localConds []constraint.Condition
	filters    []constraint.Constraint
}

func newLevel(unit schema.UnitType, anchor *reverseAnchor) *level {
	return &level{
		unit:   unit,
		anchor: anchor,
		index:  make(map[string]*feature),
		byHead: make(map[string]*bundle),
	}
}

// addSegment records a grouping feature, deduplicating by exposed name.
// A public request wins over a planner-added private occurrence.
func (lv *level) addSegment(res schema.Resolved) *feature {
	if f, ok := lv.index[res.ExposedName()]; ok {
		if !res.Private {
			f.res = f.res.AsPublic()
		}
		return f
	}
	f := &feature{res: res}
	lv.index[res.ExposedName()] = f
	lv.segments = append(lv.segments, f)
	return f
}

func (lv *level) addMeasure(res schema.Resolved) *feature {
	if f, ok := lv.index[res.ExposedName()]; ok {
		if !res.Private {
			f.res = f.res.AsPublic()
		}
		return f
	}
	f := &feature{res: res, measure: true}
	lv.index[res.ExposedName()] = f
	lv.measures = append(lv.measures, f)
	return f
}

func (lv *level) ensureBundle(head string, key schema.Resolved, reverse bool) *bundle {
	if b, ok := lv.byHead[head]; ok {
		return b
	}
	b := &bundle{head: head, key: key, reverse: reverse}
	lv.byHead[head] = b
	lv.bundles = append(lv.bundles, b)
	return b
}

func (lv *level) features() []*feature {
	out := make([]*feature, 0, len(lv.segments)+len(lv.measures))
	out = append(out, lv.segments...)
	out = append(out, lv.measures...)
	return out
}

// resolveLevel builds one plan node: classify the requested paths into
// local features and hop bundles, elect providers, recurse into the
// bundles, then assemble. It returns the node and its join key column.
func (r *resolution) resolveLevel(lr levelRequest) (*Plan, string, error) {
	lv := newLevel(lr.unit, lr.anchor)
	measures := stripSelfHeads(lr.measures, lr.unit)
	segments := stripSelfHeads(lr.segments, lr.unit)

	for _, p := range measures {
		if err := r.classifyMeasure(lv, p); err != nil {
			return nil, "", err
		}
	}
	for _, p := range segments {
		if err := r.classifySegment(lv, p); err != nil {
			return nil, "", err
		}
	}
	if err := r.keyFeature(lv); err != nil {
		return nil, "", err
	}
	if err := r.classifyConstraints(lv, lr.where); err != nil {
		return nil, "", err
	}
	for _, b := range lv.bundles {
		if !b.reverse {
			lv.addSegment(b.key.AsPrivate().AsImplicit())
		}
	}

	provisions, err := r.elect(lv)
	if err != nil {
		return nil, "", err
	}
	if lr.top {
		r.advance(StateProvidersSelected)
	}
	base := provisions[0]
	r.finalizeKey(lv, base)

	assigned, err := r.assignConditions(lv, provisions)
	if err != nil {
		return nil, "", err
	}

	var joins []Join
	for _, sib := range provisions[1:] {
		joins = append(joins, r.siblingJoin(lv, base, sib, assigned, lr.where))
	}

	marks := make([]string, 0, len(provisions))
	for _, pv := range provisions {
		marks = append(marks, stackKey(pv.provider.Name(), lv.unit))
	}
	r.stack = append(r.stack, marks...)
	for _, b := range lv.bundles {
		j, err := r.resolveBundle(lv, base, b, lr.where)
		if err != nil {
			r.stack = r.stack[:len(r.stack)-len(marks)]
			return nil, "", err
		}
		joins = append(joins, j)
	}
	r.stack = r.stack[:len(r.stack)-len(marks)]

	plan := &Plan{
		Unit:     lv.unit,
		Provider: base.provider,
		Where:    provisionWhere(assigned, base, lr.where),
		Filter:   constraint.Conjoin(lv.filters...),
		Joins:    joins,
		Rebase:   lv.anchor != nil || !baseUnique(base.provider, lv.unit),
	}
	for _, f := range lv.segments {
		plan.Segments = append(plan.Segments, f.res)
	}
	for _, f := range lv.measures {
		plan.Measures = append(plan.Measures, f.res)
	}
	return plan, lv.key.res.ExposedName(), nil
}

// keyFeature installs the level's join key: the unit identifier, or the
// anchoring foreign identifier inside a reverse sub-plan.
func (r *resolution) keyFeature(lv *level) error {
	if lv.anchor != nil {
		lv.key = lv.addSegment(lv.anchor.key.AsPrivate().AsImplicit())
		return nil
	}
	holders := r.snap.IdentifierHolders(lv.unit)
	if len(holders) == 0 {
		return &ResolutionError{
			Code:    ErrCodeUnresolvedPath,
			Unit:    lv.unit,
			Message: "no registered provider declares the unit type",
		}
	}
	lv.key = lv.addSegment(schema.Resolved{
		Name:      string(lv.unit),
		Kind:      schema.KindIdentifier,
		Unit:      lv.unit,
		Private:   true,
		Implicit:  true,
		Providers: holders,
	})
	return nil
}

// finalizeKey renames the identifier feature to the base provider's
// declared name, masking it back to the requested unit type when the
// two differ.
func (r *resolution) finalizeKey(lv *level, base *provision) {
	if lv.anchor != nil {
		return
	}
	bid, _ := base.provider.IdentifierFor(lv.unit)
	lv.key.res.Name = bid.Name()
	if bid.Name() != string(lv.unit) {
		lv.key.res = lv.key.res.WithMask(string(lv.unit))
	}
}

func (r *resolution) classifyMeasure(lv *level, p pathReq) error {
	if len(p.path.Segments) == 1 {
		res, ok := r.snap.ResolveMeasure(lv.unit, p.path.Segments[0])
		if !ok {
			return &ResolutionError{
				Code:    ErrCodeUnresolvedPath,
				Unit:    lv.unit,
				Path:    p.raw,
				Message: "no provider supplies the measure",
			}
		}
		lv.addMeasure(res)
		return nil
	}
	if lv.anchor != nil {
		return r.indivisible(lv, p.raw)
	}
	head := p.path.Segments[0]
	if fk, ok := r.snap.ForeignKey(lv.unit, head); ok {
		b := lv.ensureBundle(head, fk, false)
		b.measures = append(b.measures, tail(p))
		return nil
	}
	if rk, ok := r.snap.ReverseKey(lv.unit, head); ok {
		if len(p.path.Segments) > 2 {
			return r.indivisible(lv, p.raw)
		}
		b := lv.ensureBundle(head, rk, true)
		b.measures = append(b.measures, tail(p))
		return nil
	}
	return &ResolutionError{
		Code:    ErrCodeUnresolvedPath,
		Unit:    lv.unit,
		Path:    p.raw,
		Message: fmt.Sprintf("no relationship reaches %q from the unit type", head),
	}
}

func (r *resolution) classifySegment(lv *level, p pathReq) error {
	if len(p.path.Segments) == 1 {
		res, ok := r.resolveAttr(lv.unit, p.path.Segments[0])
		if !ok {
			return &ResolutionError{
				Code:    ErrCodeUnresolvedPath,
				Unit:    lv.unit,
				Path:    p.raw,
				Message: "no provider supplies the dimension",
			}
		}
		// A measure requested as a segment groups by its raw values.
		lv.addSegment(res)
		return nil
	}
	if lv.anchor != nil {
		return r.indivisible(lv, p.raw)
	}
	head := p.path.Segments[0]
	if fk, ok := r.snap.ForeignKey(lv.unit, head); ok {
		b := lv.ensureBundle(head, fk, false)
		b.segments = append(b.segments, tail(p))
		return nil
	}
	if _, ok := r.snap.ReverseKey(lv.unit, head); ok {
		return r.indivisible(lv, p.raw)
	}
	return &ResolutionError{
		Code:    ErrCodeUnresolvedPath,
		Unit:    lv.unit,
		Path:    p.raw,
		Message: fmt.Sprintf("no relationship reaches %q from the unit type", head),
	}
}

func (r *resolution) indivisible(lv *level, path string) error {
	return &ResolutionError{
		Code:    ErrCodeIndivisibleUnit,
		Unit:    lv.unit,
		Path:    path,
		Message: "rows collapsed by aggregation cannot be refined through further hops",
	}
}

// resolveAttr resolves a terminal attribute at the unit type, trying
// dimensions, partitions, relationship keys, measures and finally the
// unit identifier itself.
func (r *resolution) resolveAttr(unit schema.UnitType, term string) (schema.Resolved, bool) {
	if res, ok := r.snap.ResolveDimension(unit, term); ok {
		return res, true
	}
	if res, ok := r.snap.ResolvePartition(unit, term); ok {
		return res, true
	}
	if res, ok := r.snap.ForeignKey(unit, term); ok {
		return res, true
	}
	if res, ok := r.snap.ResolveMeasure(unit, term); ok {
		return res, true
	}
	if term == string(unit) {
		holders := r.snap.IdentifierHolders(unit)
		if len(holders) == 0 {
			return schema.Resolved{}, false
		}
		return schema.Resolved{
			Name:      string(unit),
			Kind:      schema.KindIdentifier,
			Unit:      unit,
			Providers: holders,
		}, true
	}
	return schema.Resolved{}, false
}

// classifyConstraints walks the scoped view of the constraint for this
// unit type. Local conditions become provider pushdowns, disjunctions
// over local fields become post-join filters, and deeper targets force
// hop bundles so the conditions have somewhere to travel.
func (r *resolution) classifyConstraints(lv *level, where constraint.Constraint) error {
	scoped := constraint.ScopedForUnit(where, lv.unit)
	if !scoped.Resolvable() {
		return &ResolutionError{
			Code:    ErrCodeUnsatisfiableConstraint,
			Unit:    lv.unit,
			Message: fmt.Sprintf("disjunction %s lost branches it cannot honor", constraint.Canonical(scoped)),
		}
	}
	for _, op := range andOperands(scoped) {
		switch node := op.(type) {
		case constraint.Condition:
			if err := r.classifyCondition(lv, node); err != nil {
				return err
			}
		case constraint.Or:
			if err := r.classifyDisjunction(lv, node); err != nil {
				return err
			}
		}
	}
	return nil
}

func andOperands(c constraint.Constraint) []constraint.Constraint {
	switch node := c.(type) {
	case constraint.And:
		return node.Operands()
	default:
		if c == nil || constraint.IsNone(c) {
			return nil
		}
		return []constraint.Constraint{c}
	}
}

func (r *resolution) classifyCondition(lv *level, c constraint.Condition) error {
	c = stripSelfCondition(c, lv.unit)
	if c.Depth() == 0 {
		res, ok := r.resolveAttr(lv.unit, c.Target())
		if !ok {
			return &ResolutionError{
				Code:    ErrCodeUnsatisfiableConstraint,
				Unit:    lv.unit,
				Path:    c.Target(),
				Message: "constraint target cannot be resolved for the unit type",
			}
		}
		r.addConstraintFeature(lv, res)
		lv.localConds = append(lv.localConds, c)
		return nil
	}
	head, _ := c.Head()
	if lv.anchor != nil {
		return r.indivisible(lv, c.Target())
	}
	if fk, ok := r.snap.ForeignKey(lv.unit, head); ok {
		b := lv.ensureBundle(head, fk, false)
		b.constrained = true
		return nil
	}
	if rk, ok := r.snap.ReverseKey(lv.unit, head); ok {
		if c.Depth() > 1 {
			return r.indivisible(lv, c.Target())
		}
		b := lv.ensureBundle(head, rk, true)
		b.constrained = true
		return nil
	}
	return &ResolutionError{
		Code:    ErrCodeUnsatisfiableConstraint,
		Unit:    lv.unit,
		Path:    c.Target(),
		Message: "constraint target cannot be placed on any relationship",
	}
}

// classifyDisjunction handles an OR at this level. Its branches must
// agree on a single traversal: either every condition targets a local
// field, making the disjunction a post-join filter, or every condition
// crosses the same hop, letting the disjunction travel whole.
func (r *resolution) classifyDisjunction(lv *level, o constraint.Or) error {
	heads := make(map[string]bool)
	for _, c := range o.Conditions() {
		if c.Depth() == 0 {
			heads[""] = true
		} else {
			head, _ := c.Head()
			heads[head] = true
		}
	}
	if len(heads) > 1 {
		return &ResolutionError{
			Code:    ErrCodeUnsatisfiableConstraint,
			Unit:    lv.unit,
			Message: fmt.Sprintf("disjunction %s spans multiple join paths", constraint.Canonical(o)),
		}
	}
	if heads[""] {
		for _, c := range o.Conditions() {
			res, ok := r.resolveAttr(lv.unit, c.Target())
			if !ok {
				return &ResolutionError{
					Code:    ErrCodeUnsatisfiableConstraint,
					Unit:    lv.unit,
					Path:    c.Target(),
					Message: "constraint target cannot be resolved for the unit type",
				}
			}
			r.addConstraintFeature(lv, res)
		}
		lv.filters = append(lv.filters, o)
		return nil
	}
	var head string
	for h := range heads {
		head = h
	}
	if lv.anchor != nil {
		return r.indivisible(lv, head)
	}
	if fk, ok := r.snap.ForeignKey(lv.unit, head); ok {
		b := lv.ensureBundle(head, fk, false)
		b.constrained = true
		return nil
	}
	if rk, ok := r.snap.ReverseKey(lv.unit, head); ok {
		for _, c := range o.Conditions() {
			if c.Depth() > 1 {
				return r.indivisible(lv, c.Target())
			}
		}
		b := lv.ensureBundle(head, rk, true)
		b.constrained = true
		return nil
	}
	return &ResolutionError{
		Code:    ErrCodeUnsatisfiableConstraint,
		Unit:    lv.unit,
		Path:    head,
		Message: "constraint target cannot be placed on any relationship",
	}
}

// addConstraintFeature pulls a constrained field into the level so a
// provision carries it. Measures join the measure list to keep them out
// of grouping keys; everything else becomes a private segment.
func (r *resolution) addConstraintFeature(lv *level, res schema.Resolved) {
	if res.Kind == schema.KindMeasure {
		f := lv.addMeasure(res.AsPrivate())
		f.constraintOnly = f.constraintOnly || !fInOutput(f)
		return
	}
	f := lv.addSegment(res.AsPrivate())
	f.constraintOnly = f.constraintOnly || !fInOutput(f)
}

func fInOutput(f *feature) bool { return !f.res.Private }

// provision is one elected provider with the features it covers.
type provision struct {
	provider *schema.Provider
	features []*feature
}

// elect greedily selects providers for the level's features: the
// provider covering the most outstanding features wins each round, with
// uniqueness of its unit identifier and then registration order breaking
// ties. Providers after the first must hold the unit type uniquely, as
// they join the base rows on the unit key.
func (r *resolution) elect(lv *level) ([]*provision, error) {
	pending := lv.features()
	var provisions []*provision
	for len(pending) > 0 {
		var best *schema.Provider
		bestCount := 0
		bestUnique := false
		for _, p := range r.snap.Providers() {
			id, ok := p.IdentifierFor(lv.unit)
			if !ok {
				continue
			}
			unique := id.Unique()
			if len(provisions) > 0 && !unique {
				continue
			}
			count := 0
			for _, f := range pending {
				if f.res.ProvidedBy(p.Name()) {
					count++
				}
			}
			if count == 0 {
				continue
			}
			if count > bestCount || (count == bestCount && unique && !bestUnique) {
				best, bestCount, bestUnique = p, count, unique
			}
		}
		if best == nil {
			f := pending[0]
			code := ErrCodeUnresolvedPath
			msg := "no provider holding the unit type supplies the feature"
			if f.constraintOnly {
				code = ErrCodeUnsatisfiableConstraint
				msg = "no provider holding the unit type supplies the constrained field"
			}
			return nil, &ResolutionError{Code: code, Unit: lv.unit, Path: f.res.ExposedName(), Message: msg}
		}
		if key := stackKey(best.Name(), lv.unit); slices.Contains(r.stack, key) {
			return nil, &ResolutionError{
				Code:     ErrCodeCyclicJoin,
				Unit:     lv.unit,
				Provider: best.Name(),
				Message:  "provider is needed transitively by its own resolution",
			}
		}
		pv := &provision{provider: best}
		var rest []*feature
		for _, f := range pending {
			if f.res.ProvidedBy(best.Name()) {
				pv.features = append(pv.features, f)
			} else {
				rest = append(rest, f)
			}
		}
		pending = rest
		provisions = append(provisions, pv)
	}
	return provisions, nil
}

func stackKey(provider string, unit schema.UnitType) string {
	return provider + "\x00" + string(unit)
}

func baseUnique(p *schema.Provider, unit schema.UnitType) bool {
	id, ok := p.IdentifierFor(unit)
	return ok && id.Unique()
}

// assignConditions routes each local pushdown condition to the provision
// owning its target field, rewriting masked targets to the provider's
// declared name.
func (r *resolution) assignConditions(lv *level, provisions []*provision) (map[string][]constraint.Condition, error) {
	out := make(map[string][]constraint.Condition)
	for _, c := range lv.localConds {
		f, ok := lv.index[c.Target()]
		if !ok {
			return nil, &ResolutionError{
				Code:    ErrCodeUnsatisfiableConstraint,
				Unit:    lv.unit,
				Path:    c.Target(),
				Message: "constraint target resolved to no elected provision",
			}
		}
		owner := ""
		for _, pv := range provisions {
			if slices.Contains(pv.features, f) {
				owner = pv.provider.Name()
				break
			}
		}
		if owner == "" {
			return nil, &ResolutionError{
				Code:    ErrCodeUnsatisfiableConstraint,
				Unit:    lv.unit,
				Path:    c.Target(),
				Message: "constraint target resolved to no elected provision",
			}
		}
		cond := c
		if f.res.Name != c.Target() {
			rewritten, err := constraint.NewCondition(f.res.Name, c.Op(), c.Values()...)
			if err != nil {
				return nil, err
			}
			cond = rewritten
		}
		out[owner] = append(out[owner], cond)
	}
	return out, nil
}

// provisionWhere is the provider-local constraint of one provision: its
// assigned pushdown conditions plus the generic branches its fields can
// evaluate.
func provisionWhere(assigned map[string][]constraint.Condition, pv *provision, where constraint.Constraint) constraint.Constraint {
	conds := assigned[pv.provider.Name()]
	ops := make([]constraint.Constraint, 0, len(conds)+1)
	for _, c := range conds {
		ops = append(ops, c)
	}
	ops = append(ops, constraint.GenericForFields(where, pv.provider.HasField))
	return constraint.Conjoin(ops...)
}

// siblingJoin wraps a secondary provision of the same unit type as a
// child plan joined on the unit key and any common partitions.
func (r *resolution) siblingJoin(lv *level, base, sib *provision, assigned map[string][]constraint.Condition, where constraint.Constraint) Join {
	sid, _ := sib.provider.IdentifierFor(lv.unit)
	idRes := schema.Resolved{
		Name:      sid.Name(),
		Kind:      schema.KindIdentifier,
		Unit:      lv.unit,
		Private:   true,
		Implicit:  true,
		Providers: []*schema.Provider{sib.provider},
	}
	if sid.Name() != string(lv.unit) {
		idRes = idRes.WithMask(string(lv.unit))
	}

	child := &Plan{
		Unit:     lv.unit,
		Provider: sib.provider,
		Segments: []schema.Resolved{idRes},
		Where:    provisionWhere(assigned, sib, where),
		Filter:   constraint.None,
	}
	for _, f := range sib.features {
		f.res = f.res.AsExternal()
		local := f.res.AsInternal()
		if f.measure {
			child.Measures = append(child.Measures, local)
		} else {
			child.Segments = append(child.Segments, local)
		}
	}
	parts := commonPartitionNames(base.provider, sib.provider)
	for _, part := range parts {
		lv.addSegment(partitionResolved(lv.unit, part, base.provider))
		child.Segments = appendIfAbsent(child.Segments, partitionResolved(lv.unit, part, sib.provider))
	}

	left := append([]string{lv.key.res.ExposedName()}, parts...)
	right := append([]string{idRes.ExposedName()}, parts...)
	return Join{Plan: child, Via: "", LeftOn: left, RightOn: right, Kind: joinKind(child)}
}

// resolveBundle recurses into one hop. Forward bundles resolve the hop's
// unit type as a lookup join; reverse bundles resolve the referencing
// unit type anchored on the key pointing back at this level, collapsing
// its rows to this level's granularity.
func (r *resolution) resolveBundle(lv *level, base *provision, b *bundle, where constraint.Constraint) (Join, error) {
	childWhere := where.ViaNext(b.head)
	childUnit := schema.UnitType(b.head)
	if b.reverse {
		akey, ok := r.snap.ForeignKey(childUnit, string(lv.unit))
		if !ok {
			return Join{}, &ResolutionError{
				Code:    ErrCodeUnresolvedPath,
				Unit:    lv.unit,
				Path:    b.head,
				Message: "no forward key links the aggregation back to the unit type",
			}
		}
		child, childKey, err := r.resolveLevel(levelRequest{
			unit:     childUnit,
			measures: b.measures,
			where:    childWhere,
			anchor:   &reverseAnchor{key: akey},
		})
		if err != nil {
			return Join{}, err
		}
		parts := r.attachPartitions(lv, base, child)
		left := append([]string{lv.key.res.ExposedName()}, parts...)
		right := append([]string{childKey}, parts...)
		return Join{Plan: child, Via: b.head, LeftOn: left, RightOn: right, Kind: joinKind(child), Reverse: true}, nil
	}
	child, childKey, err := r.resolveLevel(levelRequest{
		unit:     childUnit,
		measures: b.measures,
		segments: b.segments,
		where:    childWhere,
	})
	if err != nil {
		return Join{}, err
	}
	parts := r.attachPartitions(lv, base, child)
	left := append([]string{b.key.ExposedName()}, parts...)
	right := append([]string{childKey}, parts...)
	return Join{Plan: child, Via: b.head, LeftOn: left, RightOn: right, Kind: joinKind(child)}, nil
}

// attachPartitions adds the partitions shared by the two join sides as
// private join keys on both, returning their names.
func (r *resolution) attachPartitions(lv *level, base *provision, child *Plan) []string {
	parts := commonPartitionNames(base.provider, child.Provider)
	for _, part := range parts {
		lv.addSegment(partitionResolved(lv.unit, part, base.provider))
		child.Segments = appendIfAbsent(child.Segments, partitionResolved(child.Unit, part, child.Provider))
	}
	return parts
}

func joinKind(child *Plan) table.JoinKind {
	if child.Constrained() {
		return table.JoinInner
	}
	return table.JoinLeft
}

func commonPartitionNames(a, b *schema.Provider) []string {
	var out []string
	for _, pa := range a.Partitions() {
		for _, pb := range b.Partitions() {
			if pa.Name == pb.Name {
				out = append(out, pa.Name)
				break
			}
		}
	}
	return out
}

func partitionResolved(unit schema.UnitType, name string, p *schema.Provider) schema.Resolved {
	return schema.Resolved{
		Name:      name,
		Kind:      schema.KindPartition,
		Unit:      unit,
		Private:   true,
		Implicit:  true,
		Providers: []*schema.Provider{p},
	}
}

func appendIfAbsent(segments []schema.Resolved, res schema.Resolved) []schema.Resolved {
	for _, s := range segments {
		if s.ExposedName() == res.ExposedName() {
			return segments
		}
	}
	return append(segments, res)
}

func stripSelfHeads(reqs []pathReq, unit schema.UnitType) []pathReq {
	out := make([]pathReq, 0, len(reqs))
	for _, p := range reqs {
		segs := p.path.Segments
		for len(segs) > 1 && segs[0] == string(unit) {
			segs = segs[1:]
		}
		out = append(out, pathReq{raw: p.raw, path: schema.Path{Segments: segs}})
	}
	return out
}

func stripSelfCondition(c constraint.Condition, unit schema.UnitType) constraint.Condition {
	for {
		head, rest := c.Head()
		if rest == "" || head != string(unit) {
			return c
		}
		next, err := constraint.NewCondition(rest, c.Op(), c.Values()...)
		if err != nil {
			return c
		}
		c = next
	}
}

func tail(p pathReq) pathReq {
	return pathReq{raw: p.raw, path: schema.Path{Segments: p.path.Segments[1:]}}
}

// validate walks the assembled tree checking partition gating: every
// provider partition flagged requires_constraint must be constrained at
// its node, either directly or through an equi-join key constrained on
// the parent side.
func (r *resolution) validate(p *Plan, inherited map[string]bool) error {
	constrained := make(map[string]bool, len(inherited))
	for name := range inherited {
		constrained[name] = true
	}
	for _, c := range p.Where.Conditions() {
		constrained[exposedTarget(p, c.Target())] = true
	}
	for _, c := range p.Filter.Conditions() {
		constrained[c.Target()] = true
	}
	for _, part := range p.Provider.Partitions() {
		if part.RequiresConstraint && !constrained[part.Name] {
			return &ResolutionError{
				Code:      ErrCodeMissingPartitionConstraint,
				Unit:      p.Unit,
				Provider:  p.Provider.Name(),
				Partition: part.Name,
				Message:   "partition requires an explicit constraint",
			}
		}
	}
	for _, j := range p.Joins {
		childInherited := make(map[string]bool)
		for i, leftCol := range j.LeftOn {
			if constrained[leftCol] {
				childInherited[j.RightOn[i]] = true
			}
		}
		if err := r.validate(j.Plan, childInherited); err != nil {
			return err
		}
	}
	return nil
}

// exposedTarget maps a provider-local condition target back to its
// exposed column name at the node.
func exposedTarget(p *Plan, target string) string {
	for _, s := range p.Segments {
		if s.Name == target {
			return s.ExposedName()
		}
	}
	return target
}
