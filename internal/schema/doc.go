// Package schema provides the catalog model for tally.
//
// This package contains the provider-facing type definitions: identifiers,
// dimensions, measures, partitions, frozen providers and feature paths. All
// other internal packages import schema; schema imports nothing internal.
// This keeps the model the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Providers are immutable once built; the Builder copies on every call
//   - Feature names are validated at construction, never downstream
//   - Path parsing is pure and never consults a registry
package schema
