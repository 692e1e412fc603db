package registry

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/tally/internal/schema"
)

// Registry is the mutable home of registered providers. All reads go
// through snapshots; Register and Deregister are the only mutations.
//
// Thread-safety model:
//   - Register, Deregister: safe from any goroutine
//   - Snapshot: safe from any goroutine, returns an immutable view
type Registry struct {
	mu     sync.RWMutex
	order  []string
	byName map[string]*schema.Provider
	snap   *Snapshot
	logger *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for registration events.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		byName: make(map[string]*schema.Provider),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.snap = emptySnapshot()
	return r
}

// Register adds a provider to the graph. The new graph is validated in
// full before it replaces the current snapshot; on any error the registry
// is left exactly as it was.
func (r *Registry) Register(p *schema.Provider) error {
	if p == nil {
		return fmt.Errorf("registry: nil provider")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.byName[p.Name()]; dup {
		return fmt.Errorf("registry: provider %q is already registered", p.Name())
	}

	order := append(append([]string(nil), r.order...), p.Name())
	byName := make(map[string]*schema.Provider, len(order))
	for name, prov := range r.byName {
		byName[name] = prov
	}
	byName[p.Name()] = p

	snap, err := buildSnapshot(r.snap.version+1, order, byName)
	if err != nil {
		return err
	}

	r.order = order
	r.byName = byName
	r.snap = snap
	r.logger.Info("provider registered",
		"provider", p.Name(),
		"unit", string(p.OwningUnit()),
		"graph_version", snap.version,
	)
	return nil
}

// Deregister removes a provider from the graph. The shrunken graph is
// rebuilt and validated in full before it replaces the current snapshot;
// on any error the registry is left exactly as it was.
func (r *Registry) Deregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[name]; !ok {
		return fmt.Errorf("registry: provider %q is not registered", name)
	}

	order := make([]string, 0, len(r.order)-1)
	for _, n := range r.order {
		if n != name {
			order = append(order, n)
		}
	}
	byName := make(map[string]*schema.Provider, len(order))
	for n, prov := range r.byName {
		if n != name {
			byName[n] = prov
		}
	}

	snap, err := buildSnapshot(r.snap.version+1, order, byName)
	if err != nil {
		return err
	}

	r.order = order
	r.byName = byName
	r.snap = snap
	r.logger.Info("provider deregistered",
		"provider", name,
		"graph_version", snap.version,
	)
	return nil
}

// MustRegister is Register for statically known providers, such as fixtures.
func (r *Registry) MustRegister(p *schema.Provider) {
	if err := r.Register(p); err != nil {
		panic(err)
	}
}

// Snapshot returns the current immutable graph view.
func (r *Registry) Snapshot() *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snap
}

// Version returns the current graph version. Version zero is the empty
// graph.
func (r *Registry) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snap.version
}
