// Package catalog loads provider declarations from CUE files. A catalog
// binds each declaration to a backend, so a whole engine can be assembled
// from one file.
//
// The expected shape is a struct with one field per provider:
//
//	providers: transactions: {
//		backend: "memory"
//		source:  "testdata/transactions.csv"
//		identifiers: [
//			{unit: "transaction", expr: "id", role: "primary"},
//			{unit: "person:seller", expr: "id_seller"},
//		]
//		measures: [{name: "value"}]
//		partitions: [{name: "ds", requires_constraint: true}]
//	}
//
// SQL providers name their table in source and their connection in dsn;
// providers sharing a dsn share one connection, which lets the engine fuse
// their joins.
package catalog

import (
	"fmt"
	"os"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/tally/internal/schema"
)

// Backend names the adapter family serving a provider.
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
)

// Validate checks that the backend is one of the supported families.
func (b Backend) Validate() error {
	switch b {
	case BackendMemory, BackendSQLite, BackendPostgres:
		return nil
	}
	return fmt.Errorf("catalog: unknown backend %q", string(b))
}

// Provider is one loaded provider entry: the frozen declaration plus its
// backend binding.
type Provider struct {
	// Name is the provider name, taken from the CUE field label.
	Name string

	// Backend selects the adapter family.
	Backend Backend

	// Source locates the rows: a CSV path for memory providers, a table or
	// view name for SQL providers.
	Source string

	// DSN is the connection string for SQL providers. For sqlite it is the
	// database path.
	DSN string

	// Decl is the validated declaration.
	Decl *schema.Provider
}

// Catalog is a loaded provider catalog. Providers are ordered by name.
type Catalog struct {
	Providers []Provider
}

// Load reads and parses a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return LoadBytes(path, data)
}

// LoadBytes parses catalog source. The filename only labels positions in
// errors.
func LoadBytes(filename string, data []byte) (*Catalog, error) {
	ctx := cuecontext.New()
	root := ctx.CompileBytes(data, cue.Filename(filename))
	if err := root.Err(); err != nil {
		return nil, formatCUEError(filename, "cue", err)
	}
	providers := root.LookupPath(cue.ParsePath("providers"))
	if !providers.Exists() {
		return nil, &LoadError{
			File:    filename,
			Field:   "providers",
			Message: "providers is required",
			Pos:     root.Pos(),
		}
	}
	iter, err := providers.Fields()
	if err != nil {
		return nil, formatCUEError(filename, "providers", err)
	}

	var cat Catalog
	for iter.Next() {
		name := iter.Selector().String()
		p, err := parseProvider(filename, name, iter.Value())
		if err != nil {
			return nil, err
		}
		cat.Providers = append(cat.Providers, p)
	}
	if len(cat.Providers) == 0 {
		return nil, &LoadError{
			File:    filename,
			Field:   "providers",
			Message: "at least one provider is required",
			Pos:     providers.Pos(),
		}
	}
	sort.Slice(cat.Providers, func(i, j int) bool {
		return cat.Providers[i].Name < cat.Providers[j].Name
	})
	return &cat, nil
}

// Provider returns the named entry.
func (c *Catalog) Provider(name string) (Provider, bool) {
	for _, p := range c.Providers {
		if p.Name == name {
			return p, true
		}
	}
	return Provider{}, false
}

func parseProvider(file, name string, v cue.Value) (Provider, error) {
	field := "providers." + name

	var raw struct {
		Backend     string              `json:"backend"`
		Source      string              `json:"source"`
		DSN         string              `json:"dsn"`
		Identifiers []schema.Identifier `json:"identifiers"`
		Dimensions  []schema.Dimension  `json:"dimensions"`
		Measures    []schema.Measure    `json:"measures"`
		Partitions  []schema.Dimension  `json:"partitions"`
	}
	if err := v.Decode(&raw); err != nil {
		return Provider{}, formatCUEError(file, field, err)
	}

	backend := Backend(raw.Backend)
	if raw.Backend == "" {
		return Provider{}, &LoadError{File: file, Field: field + ".backend", Message: "backend is required", Pos: v.Pos()}
	}
	if err := backend.Validate(); err != nil {
		return Provider{}, &LoadError{File: file, Field: field + ".backend", Message: err.Error(), Pos: v.Pos()}
	}
	if raw.Source == "" {
		return Provider{}, &LoadError{File: file, Field: field + ".source", Message: "source is required", Pos: v.Pos()}
	}
	if backend != BackendMemory && raw.DSN == "" {
		return Provider{}, &LoadError{File: file, Field: field + ".dsn", Message: "dsn is required for SQL backends", Pos: v.Pos()}
	}

	b := schema.NewProvider(name)
	for _, id := range raw.Identifiers {
		b = b.WithIdentifier(id)
	}
	for _, d := range raw.Dimensions {
		b = b.WithDimension(d)
	}
	for _, m := range raw.Measures {
		b = b.WithMeasure(m)
	}
	for _, p := range raw.Partitions {
		b = b.WithPartition(p)
	}
	decl, err := b.Build()
	if err != nil {
		return Provider{}, &LoadError{File: file, Field: field, Message: err.Error(), Pos: v.Pos()}
	}
	return Provider{
		Name:    name,
		Backend: backend,
		Source:  raw.Source,
		DSN:     raw.DSN,
		Decl:    decl,
	}, nil
}
