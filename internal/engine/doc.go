// Package engine executes validated plans against registered backends.
//
// The engine owns the provider registry and an adapter per provider. An
// evaluation resolves the request into a plan against one graph snapshot,
// then walks the plan tree: every node asks its provider's adapter for the
// declared columns under the node's pushed-down predicate, children
// evaluate concurrently, and the parent merges them with hash joins in
// plan order. Aggregation nodes collapse before their parent consumes
// them, so joins never multiply measure rows.
//
// Key design constraints:
//   - Adapters speak provider-local names. All renaming to exposed names,
//     relationship prefixing and merging is the executor's job, so a
//     backend needs no knowledge of the plan around it.
//   - Execution order effects are invisible: children run concurrently
//     but merge strictly in plan order, and the final projection sorts by
//     the requested segments, so equal requests yield equal tables.
//   - Two adapters sharing a native query engine may be handed a whole
//     join to evaluate in one shot; the delegation is an optimization and
//     must return exactly the table the row-level merge would have built.
package engine
