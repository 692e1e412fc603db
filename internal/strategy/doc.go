// Package strategy turns evaluation requests into validated join plans.
//
// A resolution walks a fixed sequence of phases over one immutable graph
// snapshot: collect the requested feature paths, elect providers for the
// root unit type, assemble the join tree hop by hop, then validate the
// result. Each phase either advances or rejects; a rejected resolution
// reports a structured ResolutionError and never reaches provider I/O.
//
// Key design constraints:
//   - Planning is pure. A Plan references provider identities and
//     constraints but triggers no data access; executing it is the
//     engine's job.
//   - Resolution is deterministic: the same request against the same
//     snapshot yields an identical plan, with provider election ties
//     broken by registration order.
//   - Forward hops preserve row granularity; reverse hops collapse the
//     child rows onto the requesting unit type and admit no further
//     hops inside the aggregation boundary.
//   - Constraints split by scope: scoped conditions resolve against the
//     plan or fail it, unit-hinted generics bind where their unit type is
//     visited, plain generics bind per provider and never fail a plan.
package strategy
