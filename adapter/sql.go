package adapter

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/recordkit/recordkit/dialect"
	"github.com/recordkit/recordkit/internal/debug"
	"github.com/recordkit/recordkit/schema"
)

// driverNames maps dialects to registered database/sql driver names.
var driverNames = map[dialect.Dialect]string{
	dialect.Postgres: "postgres",
	dialect.MySQL:    "mysql",
	dialect.SQLite:   "sqlite3",
}

// DB implements Adapter over a database/sql connection pool.
type DB struct {
	db *sql.DB
	d  dialect.Dialect
}

// Open opens a connection pool for the dialect and source string.
func Open(d dialect.Dialect, source string) (*DB, error) {
	name, ok := driverNames[d]
	if !ok {
		return nil, fmt.Errorf("adapter: unknown dialect %q", d)
	}
	db, err := sql.Open(name, source)
	if err != nil {
		return nil, &DatabaseError{Op: "open", Err: err}
	}
	return New(d, db), nil
}

// New wraps an existing database/sql pool.
func New(d dialect.Dialect, db *sql.DB) *DB {
	return &DB{db: db, d: d}
}

// Close closes the underlying pool.
func (a *DB) Close() error { return a.db.Close() }

// DB returns the underlying *sql.DB.
func (a *DB) DB() *sql.DB { return a.db }

// Dialect implements Adapter.
func (a *DB) Dialect() dialect.Dialect { return a.d }

// QuoteIdentifier implements Adapter.
func (a *DB) QuoteIdentifier(name string) string {
	return a.d.QuoteIdentifier(name)
}

// ApplyLimitOffset implements Adapter.
func (a *DB) ApplyLimitOffset(query string, limit, offset int) string {
	return a.d.ApplyLimitOffset(query, limit, offset)
}

// Query implements Adapter. The query uses ? placeholders; they are rebound
// to the dialect's native style before execution.
func (a *DB) Query(ctx context.Context, query string, args []interface{}) (*sql.Rows, error) {
	q := a.d.Rebind(query)
	debug.SQL(q, args)
	rows, err := a.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, &DatabaseError{Op: "query", Query: q, Err: err}
	}
	return rows, nil
}

// Exec implements Adapter.
func (a *DB) Exec(ctx context.Context, query string, args []interface{}) (sql.Result, error) {
	q := a.d.Rebind(query)
	debug.SQL(q, args)
	res, err := a.db.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, &DatabaseError{Op: "exec", Query: q, Err: err}
	}
	return res, nil
}

// SupportsSequences implements Adapter. Only postgres draws primary keys
// from explicit sequences; mysql and sqlite auto-increment natively.
func (a *DB) SupportsSequences() bool {
	return a.d == dialect.Postgres
}

// ResolveSequenceName implements Adapter using the postgres serial naming
// convention.
func (a *DB) ResolveSequenceName(table, pkColumn string) string {
	if a.d != dialect.Postgres {
		return ""
	}
	return table + "_" + pkColumn + "_seq"
}

// NextSequenceValue implements Adapter.
func (a *DB) NextSequenceValue(ctx context.Context, sequence string) (int64, error) {
	rows, err := a.Query(ctx, "SELECT nextval(?)", []interface{}{sequence})
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	if !rows.Next() {
		return 0, &DatabaseError{Op: "nextval", Err: fmt.Errorf("sequence %s returned no value", sequence)}
	}
	var v int64
	if err := rows.Scan(&v); err != nil {
		return 0, &DatabaseError{Op: "nextval", Err: err}
	}
	return v, rows.Err()
}

// IntrospectColumns implements Adapter, dispatching on dialect.
func (a *DB) IntrospectColumns(ctx context.Context, qualifiedTable string) ([]schema.Column, error) {
	switch a.d {
	case dialect.Postgres:
		return a.introspectPostgres(ctx, qualifiedTable)
	case dialect.MySQL:
		return a.introspectMySQL(ctx, qualifiedTable)
	case dialect.SQLite:
		return a.introspectSQLite(ctx, qualifiedTable)
	default:
		return nil, fmt.Errorf("adapter: unknown dialect %q", a.d)
	}
}

var _ Adapter = (*DB)(nil)
