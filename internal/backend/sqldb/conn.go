package sqldb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/tally/internal/table"
)

// Conn is one database handle. Providers created on the same Conn share a
// delegation realm, so the engine can fuse their joins into one statement.
type Conn interface {
	Dialect() Dialect
	Realm() string
	Query(ctx context.Context, query string, args ...any) (*table.Table, error)
}

// DB is a Conn over database/sql.
type DB struct {
	db      *sql.DB
	dialect Dialect
	realm   string
}

// OpenSQLite creates or opens a SQLite database at the given path.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// SQLite only supports one writer at a time, so the pool is limited to a
// single connection.
func OpenSQLite(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqldb: opening %q: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqldb: connecting to %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqldb: executing %q: %w", pragma, err)
		}
	}
	return &DB{db: db, dialect: SQLite, realm: "sql/sqlite/" + path}, nil
}

// OpenPostgres connects to a PostgreSQL database through the pgx driver.
// The realm carries a digest of the DSN instead of the DSN itself, which may
// embed credentials.
func OpenPostgres(dsn string) (*DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqldb: opening postgres connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqldb: connecting to postgres: %w", err)
	}
	sum := sha256.Sum256([]byte(dsn))
	return &DB{db: db, dialect: Postgres, realm: fmt.Sprintf("sql/postgres/%x", sum[:6])}, nil
}

// Dialect returns the connection's SQL dialect.
func (d *DB) Dialect() Dialect { return d.dialect }

// Realm identifies the connection for join delegation.
func (d *DB) Realm() string { return d.realm }

// Close closes the underlying pool.
func (d *DB) Close() error { return d.db.Close() }

// Query runs one statement and scans the full result into a table.
func (d *DB) Query(ctx context.Context, query string, args ...any) (*table.Table, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

// scanRows drains a result set into a table, mapping SQL types onto cell
// values. Unrecognized driver types fall back to their string form.
func scanRows(rows *sql.Rows) (*table.Table, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	t, err := table.New(cols...)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		cells := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range cells {
			ptrs[i] = &cells[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		vals := make([]table.Value, len(cols))
		for i, cell := range cells {
			vals[i] = scanValue(cell)
		}
		if err := t.Append(vals...); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

func scanValue(cell any) table.Value {
	switch x := cell.(type) {
	case nil:
		return table.Null{}
	case int64:
		return table.Int(x)
	case float64:
		return table.Float(x)
	case bool:
		return table.Bool(x)
	case string:
		return table.String(x)
	case []byte:
		return table.String(x)
	default:
		return table.String(fmt.Sprint(x))
	}
}
