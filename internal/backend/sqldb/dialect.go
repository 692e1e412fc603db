package sqldb

import (
	"fmt"
	"strings"
)

// Dialect captures the quoting and placeholder differences between the
// supported databases.
type Dialect interface {
	// Name is the short dialect name, such as "sqlite".
	Name() string
	// Quote escapes an identifier for use in SQL text.
	Quote(ident string) string
	// Placeholder renders the n-th bind marker, 1-based.
	Placeholder(n int) string
}

// SQLite is the dialect of mattn/go-sqlite3 connections.
var SQLite Dialect = sqliteDialect{}

// Postgres is the dialect of pgx connections.
var Postgres Dialect = postgresDialect{}

type sqliteDialect struct{}

func (sqliteDialect) Name() string { return "sqlite" }

func (sqliteDialect) Quote(ident string) string { return quoteDouble(ident) }

func (sqliteDialect) Placeholder(int) string { return "?" }

type postgresDialect struct{}

func (postgresDialect) Name() string { return "postgres" }

func (postgresDialect) Quote(ident string) string { return quoteDouble(ident) }

func (postgresDialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func quoteDouble(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
