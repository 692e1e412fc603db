// Package harness runs declarative conformance scenarios against the
// evaluation engine. A scenario is a YAML file declaring providers with
// inline rows, a list of requests, and the expected outcome of each:
// result rows or an error code.
//
// Scenarios keep semantic fixtures out of Go source, so behavior cases can
// be added without recompiling, and double as executable documentation of
// the resolution rules.
//
// Key design constraints:
//   - Scenario parsing is strict. Unknown YAML fields are rejected, so a
//     typoed expectation fails loudly instead of silently passing.
//   - Expectation mismatches are collected per case, not failed fast; one
//     run reports every divergence in the scenario.
//   - Golden snapshots render result tables as aligned text, the same form
//     the CLI prints, so diffs read like output.
package harness
