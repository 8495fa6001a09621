// Package dialect defines the SQL dialects recordkit can target and the
// string-level differences between them: identifier quoting, bind-placeholder
// style and LIMIT/OFFSET syntax.
package dialect

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect identifies a SQL dialect.
type Dialect string

const (
	// Postgres dialect.
	Postgres Dialect = "postgres"
	// MySQL dialect.
	MySQL Dialect = "mysql"
	// SQLite dialect.
	SQLite Dialect = "sqlite"
)

// Valid reports whether d is a known dialect.
func (d Dialect) Valid() bool {
	switch d {
	case Postgres, MySQL, SQLite:
		return true
	}
	return false
}

// QuoteIdentifier quotes a (possibly qualified) identifier for the dialect.
// Qualified names such as "public.users" are quoted per segment.
func (d Dialect) QuoteIdentifier(name string) string {
	if name == "" || name == "*" {
		return name
	}
	parts := strings.Split(name, ".")
	for i, p := range parts {
		if p == "*" {
			continue
		}
		switch d {
		case MySQL:
			parts[i] = "`" + strings.ReplaceAll(p, "`", "``") + "`"
		default:
			parts[i] = `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
		}
	}
	return strings.Join(parts, ".")
}

// Rebind rewrites ? placeholders into the dialect's native style.
// Postgres uses $1..$n; MySQL and SQLite keep ? as-is. Quoted string
// literals inside the query are left untouched.
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := byte(0)
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case inQuote != 0:
			if c == inQuote {
				inQuote = 0
			}
			b.WriteByte(c)
		case c == '\'' || c == '"':
			inQuote = c
			b.WriteByte(c)
		case c == '?':
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// ApplyLimitOffset appends the dialect's LIMIT/OFFSET clause to a SELECT.
// limit < 0 means no limit, offset <= 0 means no offset. SQLite requires a
// LIMIT when OFFSET is present and accepts -1 as "unbounded"; MySQL needs a
// large sentinel limit for the same case.
func (d Dialect) ApplyLimitOffset(query string, limit, offset int) string {
	if limit < 0 && offset <= 0 {
		return query
	}
	var b strings.Builder
	b.WriteString(query)
	switch {
	case limit >= 0:
		fmt.Fprintf(&b, " LIMIT %d", limit)
	case d == MySQL:
		// MySQL has no OFFSET without LIMIT.
		b.WriteString(" LIMIT 18446744073709551615")
	case d == SQLite:
		b.WriteString(" LIMIT -1")
	}
	if offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", offset)
	}
	return b.String()
}
