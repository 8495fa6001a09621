package record

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-openapi/inflect"
	"github.com/recordkit/recordkit/schema"
)

// relationResolver is the per-kind strategy behind joins and eager loading.
// Each relationship kind carries its own join shape and batched secondary
// query plan, but all kinds share this contract.
type relationResolver interface {
	// joinSQL builds the inner-join fragment that pulls the target table
	// into a SELECT on the parent table.
	joinSQL(ctx context.Context, e *Engine, parent *schema.Table) (string, error)

	// eagerLoad fetches all related rows for the already-materialized
	// parents with batched queries and attaches them by foreign-key match.
	eagerLoad(ctx context.Context, e *Engine, parent *schema.Table, parents reflect.Value) error
}

// resolverFor returns the strategy for a declared relationship.
func (e *Engine) resolverFor(rel *schema.Relationship) relationResolver {
	switch rel.Kind {
	case schema.BelongsTo:
		return &belongsToResolver{rel: rel}
	case schema.HasAndBelongsToMany:
		return &habtmResolver{rel: rel}
	default:
		return &hasResolver{rel: rel}
	}
}

// qualify quotes table.column for join conditions.
func (e *Engine) qualify(table, column string) string {
	return e.ad.QuoteIdentifier(table + "." + column)
}

// onClause zips parent and target column lists into an ANDed equality list.
func (e *Engine) onClause(parentTable string, parentCols []string, targetTable string, targetCols []string) (string, error) {
	if len(parentCols) != len(targetCols) {
		return "", fmt.Errorf("record: join key arity mismatch: %v vs %v", parentCols, targetCols)
	}
	if len(parentCols) == 0 {
		return "", fmt.Errorf("record: join requires at least one key column")
	}
	terms := make([]string, len(parentCols))
	for i := range parentCols {
		terms[i] = e.qualify(parentTable, parentCols[i]) + " = " + e.qualify(targetTable, targetCols[i])
	}
	return strings.Join(terms, " AND "), nil
}

// hasResolver serves HasMany and HasOne: the target table carries the
// foreign key pointing back at the parent's primary key.
type hasResolver struct {
	rel *schema.Relationship
}

func (r *hasResolver) joinSQL(ctx context.Context, e *Engine, parent *schema.Table) (string, error) {
	target, _, err := e.tableFor(ctx, r.rel.Target)
	if err != nil {
		return "", err
	}
	on, err := e.onClause(parent.QualifiedName(), parent.PrimaryKey, target.QualifiedName(), r.rel.ForeignKey)
	if err != nil {
		return "", err
	}
	return "INNER JOIN " + e.ad.QuoteIdentifier(target.QualifiedName()) + " ON " + on, nil
}

// belongsToResolver: the parent table carries the foreign key pointing at
// the target's primary key.
type belongsToResolver struct {
	rel *schema.Relationship
}

func (r *belongsToResolver) joinSQL(ctx context.Context, e *Engine, parent *schema.Table) (string, error) {
	target, _, err := e.tableFor(ctx, r.rel.Target)
	if err != nil {
		return "", err
	}
	on, err := e.onClause(parent.QualifiedName(), r.rel.ForeignKey, target.QualifiedName(), target.PrimaryKey)
	if err != nil {
		return "", err
	}
	return "INNER JOIN " + e.ad.QuoteIdentifier(target.QualifiedName()) + " ON " + on, nil
}

// habtmResolver joins through the intermediate table in two hops.
type habtmResolver struct {
	rel *schema.Relationship
}

func (r *habtmResolver) joinSQL(ctx context.Context, e *Engine, parent *schema.Table) (string, error) {
	target, _, err := e.tableFor(ctx, r.rel.Target)
	if err != nil {
		return "", err
	}
	join := r.rel.JoinTable
	first, err := e.onClause(parent.QualifiedName(), parent.PrimaryKey, join, r.rel.ForeignKey)
	if err != nil {
		return "", err
	}
	second, err := e.onClause(join, []string{r.rel.TargetForeignKey}, target.QualifiedName(), target.PrimaryKey)
	if err != nil {
		return "", err
	}
	return "INNER JOIN " + e.ad.QuoteIdentifier(join) + " ON " + first +
		" INNER JOIN " + e.ad.QuoteIdentifier(target.QualifiedName()) + " ON " + second, nil
}

// attributeField locates the struct field a relationship attaches to: a
// field tagged rel:"<name>", else the field named after the camelized
// attribute name.
func attributeField(v reflect.Value, rel *schema.Relationship) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if tag, ok := t.Field(i).Tag.Lookup("rel"); ok && tag == rel.Name {
			return v.Field(i), true
		}
	}
	f := v.FieldByName(inflect.Camelize(rel.Name))
	if f.IsValid() && f.CanSet() {
		return f, true
	}
	return reflect.Value{}, false
}
