package catalog

import (
	"fmt"
	"path/filepath"

	"github.com/roach88/tally/internal/backend/memory"
	"github.com/roach88/tally/internal/backend/sqldb"
	"github.com/roach88/tally/internal/engine"
)

// Bind assembles the adapters the catalog describes. Relative memory
// sources and sqlite paths resolve against baseDir. SQL providers sharing
// a DSN share one connection.
//
// The returned closer releases every connection Bind opened; call it when
// the adapters are no longer needed, also when Bind itself failed partway.
func (c *Catalog) Bind(baseDir string) ([]engine.Adapter, func() error, error) {
	conns := make(map[string]*sqldb.DB)
	closer := func() error {
		var first error
		for _, db := range conns {
			if err := db.Close(); err != nil && first == nil {
				first = err
			}
		}
		return first
	}

	adapters := make([]engine.Adapter, 0, len(c.Providers))
	for _, p := range c.Providers {
		a, err := c.bindOne(baseDir, p, conns)
		if err != nil {
			return nil, closer, fmt.Errorf("catalog: provider %q: %w", p.Name, err)
		}
		adapters = append(adapters, a)
	}
	return adapters, closer, nil
}

func (c *Catalog) bindOne(baseDir string, p Provider, conns map[string]*sqldb.DB) (engine.Adapter, error) {
	switch p.Backend {
	case BackendMemory:
		rows, err := memory.LoadCSVFile(resolvePath(baseDir, p.Source))
		if err != nil {
			return nil, err
		}
		return memory.New(p.Decl, rows)
	case BackendSQLite:
		key := string(p.Backend) + "\x00" + p.DSN
		db, ok := conns[key]
		if !ok {
			var err error
			db, err = sqldb.OpenSQLite(resolvePath(baseDir, p.DSN))
			if err != nil {
				return nil, err
			}
			conns[key] = db
		}
		return sqldb.NewProvider(db, p.Decl, p.Source)
	case BackendPostgres:
		key := string(p.Backend) + "\x00" + p.DSN
		db, ok := conns[key]
		if !ok {
			var err error
			db, err = sqldb.OpenPostgres(p.DSN)
			if err != nil {
				return nil, err
			}
			conns[key] = db
		}
		return sqldb.NewProvider(db, p.Decl, p.Source)
	}
	return nil, fmt.Errorf("unknown backend %q", p.Backend)
}

// Engine is Bind plus registration: it returns a ready engine over the
// catalog's providers.
func (c *Catalog) Engine(baseDir string, opts ...engine.Option) (*engine.Engine, func() error, error) {
	adapters, closer, err := c.Bind(baseDir)
	if err != nil {
		return nil, closer, err
	}
	e := engine.New(opts...)
	for _, a := range adapters {
		if err := e.Register(a); err != nil {
			return nil, closer, err
		}
	}
	return e, closer, nil
}

func resolvePath(baseDir, path string) string {
	if baseDir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}
