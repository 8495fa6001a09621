package schema

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-openapi/inflect"
)

// Introspector is the slice of the adapter capability set the schema layer
// needs to build table metadata.
type Introspector interface {
	// IntrospectColumns returns the column definitions of a (possibly
	// schema-qualified) table in schema order.
	IntrospectColumns(ctx context.Context, qualifiedTable string) ([]Column, error)

	// SupportsSequences reports whether the engine uses explicit sequences
	// for primary key generation.
	SupportsSequences() bool

	// ResolveSequenceName returns the sequence feeding a table's primary key
	// column, or "" when none applies.
	ResolveSequenceName(table, pkColumn string) string
}

// Definition declares an entity type to the registry. Zero-value fields are
// inferred from naming conventions.
type Definition struct {
	EntityType   string
	TableName    string
	Qualifier    string // optional database/schema qualifier
	PrimaryKey   []string
	NoPrimaryKey bool // explicitly clear the primary key
	SequenceName string

	// Aliases maps externally-exposed field names to real column names for
	// dynamic finder conditions.
	Aliases map[string]string

	Relationships []Relationship
}

// Table is the per-entity-type metadata singleton. Build it through a
// Registry; do not mutate it after construction.
type Table struct {
	EntityType   string
	Name         string
	Qualifier    string
	Columns      map[string]Column
	ColumnOrder  []string
	PrimaryKey   []string
	SequenceName string
	Aliases      map[string]string

	relationships map[string]*Relationship
	relationOrder []string
	beforeSave    []Hook
	afterSave     []Hook
}

// TableName infers the conventional table name for an entity type:
// pluralized snake_case.
func TableName(entityType string) string {
	return inflect.Pluralize(inflect.Underscore(entityType))
}

// Underscore converts an identifier to snake_case.
func Underscore(name string) string {
	return inflect.Underscore(name)
}

// ForeignKeyName returns the conventional foreign key column for an entity
// type, e.g. "BlogPost" -> "blog_post_id".
func ForeignKeyName(entityType string) string {
	return inflect.Underscore(entityType) + "_id"
}

// JoinTableName returns the conventional join table for two entity types:
// both pluralized snake_case names in lexical order, underscore-joined.
func JoinTableName(a, b string) string {
	names := []string{TableName(a), TableName(b)}
	sort.Strings(names)
	return strings.Join(names, "_")
}

// Build constructs table metadata for a definition, loading columns through
// the introspector. Callers normally go through Registry.Table, which
// memoizes the result.
func Build(ctx context.Context, def Definition, in Introspector) (*Table, error) {
	if def.EntityType == "" {
		return nil, fmt.Errorf("schema: definition is missing an entity type")
	}
	name := def.TableName
	if name == "" {
		name = TableName(def.EntityType)
	}
	t := &Table{
		EntityType:    def.EntityType,
		Name:          name,
		Qualifier:     def.Qualifier,
		Columns:       make(map[string]Column),
		Aliases:       def.Aliases,
		relationships: make(map[string]*Relationship),
	}
	cols, err := in.IntrospectColumns(ctx, t.QualifiedName())
	if err != nil {
		return nil, fmt.Errorf("schema: load columns for %s: %w", t.QualifiedName(), err)
	}
	for _, c := range cols {
		t.Columns[c.Name] = c
		t.ColumnOrder = append(t.ColumnOrder, c.Name)
	}

	switch {
	case def.NoPrimaryKey:
		t.PrimaryKey = nil
	case len(def.PrimaryKey) > 0:
		t.PrimaryKey = def.PrimaryKey
	default:
		for _, name := range t.ColumnOrder {
			if t.Columns[name].PrimaryKey {
				t.PrimaryKey = append(t.PrimaryKey, name)
			}
		}
	}

	t.SequenceName = def.SequenceName
	if t.SequenceName == "" && in.SupportsSequences() && len(t.PrimaryKey) == 1 {
		t.SequenceName = in.ResolveSequenceName(t.Name, t.PrimaryKey[0])
	}

	for i := range def.Relationships {
		rel := def.Relationships[i]
		fillRelationshipDefaults(&rel, def.EntityType)
		if _, dup := t.relationships[rel.Name]; dup {
			return nil, fmt.Errorf("schema: entity %s declares relationship %q twice", def.EntityType, rel.Name)
		}
		t.relationships[rel.Name] = &rel
		t.relationOrder = append(t.relationOrder, rel.Name)
	}

	t.BeforeSave(t.stampTimestamps)
	t.AfterSave(clearDirtyState)
	return t, nil
}

// fillRelationshipDefaults resolves conventional names for any descriptor
// field left blank.
func fillRelationshipDefaults(rel *Relationship, owner string) {
	if rel.Target == "" {
		rel.Target = inflect.Singularize(inflect.Camelize(rel.Name))
	}
	if len(rel.ForeignKey) == 0 {
		switch rel.Kind {
		case BelongsTo:
			rel.ForeignKey = []string{ForeignKeyName(rel.Target)}
		default:
			rel.ForeignKey = []string{ForeignKeyName(owner)}
		}
	}
	if rel.Kind == HasAndBelongsToMany {
		if rel.JoinTable == "" {
			rel.JoinTable = JoinTableName(owner, rel.Target)
		}
		if rel.TargetForeignKey == "" {
			rel.TargetForeignKey = ForeignKeyName(rel.Target)
		}
	}
}

// QualifiedName returns the table name with its optional qualifier.
func (t *Table) QualifiedName() string {
	if t.Qualifier == "" {
		return t.Name
	}
	return t.Qualifier + "." + t.Name
}

// Column returns a column definition by name.
func (t *Table) Column(name string) (Column, bool) {
	c, ok := t.Columns[name]
	return c, ok
}

// HasColumn reports whether the table has a column.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.Columns[name]
	return ok
}

// Relationship returns a declared relationship by attribute name.
func (t *Table) Relationship(name string) (*Relationship, bool) {
	r, ok := t.relationships[name]
	return r, ok
}

// Relationships returns the declared relationships in declaration order.
func (t *Table) Relationships() []*Relationship {
	rels := make([]*Relationship, 0, len(t.relationOrder))
	for _, name := range t.relationOrder {
		rels = append(rels, t.relationships[name])
	}
	return rels
}
