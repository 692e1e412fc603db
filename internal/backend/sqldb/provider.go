package sqldb

import (
	"context"
	"fmt"

	"github.com/roach88/tally/internal/engine"
	"github.com/roach88/tally/internal/schema"
	"github.com/roach88/tally/internal/table"
)

// Provider binds one provider declaration to a table or view on a Conn.
type Provider struct {
	conn   Conn
	decl   *schema.Provider
	source string
}

// NewProvider creates the adapter. The source is the table or view holding
// the provider's rows; feature expressions resolve against its columns.
func NewProvider(conn Conn, decl *schema.Provider, source string) (*Provider, error) {
	if conn == nil {
		return nil, fmt.Errorf("sqldb: nil connection")
	}
	if decl == nil {
		return nil, fmt.Errorf("sqldb: nil provider declaration")
	}
	if source == "" {
		return nil, fmt.Errorf("sqldb: provider %q has no source table", decl.Name())
	}
	return &Provider{conn: conn, decl: decl, source: source}, nil
}

// MustNewProvider is NewProvider for statically known configurations.
func MustNewProvider(conn Conn, decl *schema.Provider, source string) *Provider {
	p, err := NewProvider(conn, decl, source)
	if err != nil {
		panic(err)
	}
	return p
}

// Schema returns the provider declaration.
func (p *Provider) Schema() *schema.Provider { return p.decl }

// Realm identifies the connection for join delegation.
func (p *Provider) Realm() string { return p.conn.Realm() }

// Evaluate compiles and runs the single-provider statement.
func (p *Provider) Evaluate(ctx context.Context, req engine.AdapterRequest) (*table.Table, error) {
	stmt, err := compileSelect(p.conn.Dialect(), p.decl, p.source, req)
	if err != nil {
		return nil, err
	}
	return p.conn.Query(ctx, stmt.sql, stmt.args...)
}

// EvaluateJoined compiles the fused parent/child statement when the peer is
// a sqldb provider on the same connection.
func (p *Provider) EvaluateJoined(ctx context.Context, req engine.JoinedRequest) (*table.Table, error) {
	peer, ok := req.Peer.(*Provider)
	if !ok || peer.conn.Realm() != p.conn.Realm() {
		return nil, engine.ErrCannotFuse
	}
	stmt, err := compileJoin(p.conn.Dialect(), p, peer, req)
	if err != nil {
		return nil, err
	}
	return p.conn.Query(ctx, stmt.sql, stmt.args...)
}
