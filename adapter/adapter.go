// Package adapter defines the database capability set the engine executes
// through, and implements it over database/sql for postgres, mysql and
// sqlite.
package adapter

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/recordkit/recordkit/dialect"
	"github.com/recordkit/recordkit/schema"
)

// Adapter is the capability set supplied to the engine. It covers statement
// execution, identifier quoting, dialect-specific LIMIT/OFFSET syntax,
// column introspection and sequence handling for engines without native
// auto-increment.
type Adapter interface {
	// Dialect returns the SQL dialect the adapter speaks.
	Dialect() dialect.Dialect

	// Query executes a query written with ? placeholders and returns rows.
	Query(ctx context.Context, query string, args []interface{}) (*sql.Rows, error)

	// Exec executes a statement written with ? placeholders.
	Exec(ctx context.Context, query string, args []interface{}) (sql.Result, error)

	// QuoteIdentifier quotes a possibly qualified identifier.
	QuoteIdentifier(name string) string

	// ApplyLimitOffset appends the dialect's LIMIT/OFFSET clause.
	ApplyLimitOffset(query string, limit, offset int) string

	// IntrospectColumns returns a table's column definitions in schema order.
	IntrospectColumns(ctx context.Context, qualifiedTable string) ([]schema.Column, error)

	// SupportsSequences reports whether primary keys are fed by sequences.
	SupportsSequences() bool

	// ResolveSequenceName names the sequence behind a primary key column, or
	// "" when the engine auto-increments natively.
	ResolveSequenceName(table, pkColumn string) string

	// NextSequenceValue draws the next value from a sequence.
	NextSequenceValue(ctx context.Context, sequence string) (int64, error)
}

// DatabaseError wraps a connection or SQL error propagated verbatim from the
// underlying driver. The engine never swallows or retries these.
type DatabaseError struct {
	Op    string
	Query string
	Err   error
}

// Error implements the error interface.
func (e *DatabaseError) Error() string {
	if e.Query != "" {
		return fmt.Sprintf("adapter: %s: %v (query: %s)", e.Op, e.Err, e.Query)
	}
	return fmt.Sprintf("adapter: %s: %v", e.Op, e.Err)
}

// Unwrap returns the driver error.
func (e *DatabaseError) Unwrap() error { return e.Err }
