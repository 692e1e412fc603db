// Package sqldb serves providers from SQL databases. Each provider maps a
// declaration onto one table or view; evaluation compiles a parameterized
// SELECT and scans the result into rows.
//
// Key design constraints:
//   - Compiled statements are parameterized. Constraint values never splice
//     into SQL text, whatever the source of the request.
//   - Every statement carries an ORDER BY over its full output. Equal
//     requests against equal data return byte-equal results.
//   - Providers sharing a connection share a delegation realm, so the
//     engine can fuse a parent/child join into one statement. A fused
//     statement must return exactly the rows the engine's own merge would
//     have built.
package sqldb
