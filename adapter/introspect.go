package adapter

import (
	"context"
	"fmt"
	"strings"

	"github.com/recordkit/recordkit/schema"
)

// splitQualified splits "qualifier.table" into its parts.
func splitQualified(name string) (qualifier, table string) {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}

// mapColumnType maps a raw database type name onto recordkit's mapped types.
func mapColumnType(raw string) schema.Type {
	r := strings.ToLower(raw)
	switch {
	case strings.Contains(r, "datetime"), strings.Contains(r, "timestamp"):
		return schema.TypeDateTime
	case r == "date":
		return schema.TypeDate
	case strings.Contains(r, "int"), r == "serial", r == "bigserial", r == "smallserial":
		return schema.TypeInteger
	case strings.Contains(r, "decimal"), strings.Contains(r, "numeric"),
		strings.Contains(r, "float"), strings.Contains(r, "double"),
		strings.Contains(r, "real"), r == "money":
		return schema.TypeDecimal
	default:
		return schema.TypeString
	}
}

const postgresColumnsQuery = `SELECT column_name, data_type, is_nullable
FROM information_schema.columns
WHERE table_schema = ? AND table_name = ?
ORDER BY ordinal_position`

const postgresPrimaryKeyQuery = `SELECT kcu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON tc.constraint_name = kcu.constraint_name
 AND tc.table_schema = kcu.table_schema
WHERE tc.constraint_type = 'PRIMARY KEY'
  AND tc.table_schema = ? AND tc.table_name = ?
ORDER BY kcu.ordinal_position`

func (a *DB) introspectPostgres(ctx context.Context, qualifiedTable string) ([]schema.Column, error) {
	qualifier, table := splitQualified(qualifiedTable)
	if qualifier == "" {
		qualifier = "public"
	}

	pk := make(map[string]bool)
	rows, err := a.Query(ctx, postgresPrimaryKeyQuery, []interface{}{qualifier, table})
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, &DatabaseError{Op: "introspect", Err: err}
		}
		pk[name] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, &DatabaseError{Op: "introspect", Err: err}
	}
	rows.Close()

	rows, err = a.Query(ctx, postgresColumnsQuery, []interface{}{qualifier, table})
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var cols []schema.Column
	for rows.Next() {
		var name, rawType, nullable string
		if err := rows.Scan(&name, &rawType, &nullable); err != nil {
			return nil, &DatabaseError{Op: "introspect", Err: err}
		}
		cols = append(cols, schema.Column{
			Name:       name,
			RawType:    rawType,
			Type:       mapColumnType(rawType),
			PrimaryKey: pk[name],
			Nullable:   strings.EqualFold(nullable, "YES"),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, &DatabaseError{Op: "introspect", Err: err}
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("adapter: table %s has no columns (does it exist?)", qualifiedTable)
	}
	return cols, nil
}

const mysqlColumnsQuery = `SELECT column_name, data_type, is_nullable, column_key
FROM information_schema.columns
WHERE table_schema = COALESCE(NULLIF(?, ''), DATABASE()) AND table_name = ?
ORDER BY ordinal_position`

func (a *DB) introspectMySQL(ctx context.Context, qualifiedTable string) ([]schema.Column, error) {
	qualifier, table := splitQualified(qualifiedTable)
	rows, err := a.Query(ctx, mysqlColumnsQuery, []interface{}{qualifier, table})
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var cols []schema.Column
	for rows.Next() {
		var name, rawType, nullable, key string
		if err := rows.Scan(&name, &rawType, &nullable, &key); err != nil {
			return nil, &DatabaseError{Op: "introspect", Err: err}
		}
		cols = append(cols, schema.Column{
			Name:       name,
			RawType:    rawType,
			Type:       mapColumnType(rawType),
			PrimaryKey: key == "PRI",
			Nullable:   strings.EqualFold(nullable, "YES"),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, &DatabaseError{Op: "introspect", Err: err}
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("adapter: table %s has no columns (does it exist?)", qualifiedTable)
	}
	return cols, nil
}

func (a *DB) introspectSQLite(ctx context.Context, qualifiedTable string) ([]schema.Column, error) {
	_, table := splitQualified(qualifiedTable)
	query := fmt.Sprintf("PRAGMA table_info(%s)", a.QuoteIdentifier(table))
	rows, err := a.Query(ctx, query, nil)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var cols []schema.Column
	for rows.Next() {
		var (
			cid, pk    int
			notNull    int
			name, typ  string
			defaultVal interface{}
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return nil, &DatabaseError{Op: "introspect", Err: err}
		}
		cols = append(cols, schema.Column{
			Name:       name,
			RawType:    typ,
			Type:       mapColumnType(typ),
			PrimaryKey: pk > 0,
			Nullable:   notNull == 0,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, &DatabaseError{Op: "introspect", Err: err}
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("adapter: table %s has no columns (does it exist?)", qualifiedTable)
	}
	return cols, nil
}
