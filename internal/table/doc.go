// Package table provides the in-memory tabular values that flow between
// providers, the evaluation engine and backends.
//
// A Table is an ordered set of named columns over rows of sealed Values.
// Tables are the exchange format of every adapter: providers return them,
// the engine joins and aggregates them, and backends materialize into them.
//
// Key design constraints:
//   - Value is a sealed interface; only Null, String, Int, Float and Bool
//     implement it
//   - Transformations return new tables; only construction appends mutate
//   - Iteration and aggregation order is deterministic for identical input
package table
