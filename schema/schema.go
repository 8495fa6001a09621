// Package schema holds per-entity-type table metadata: column definitions,
// primary keys, sequence names and declared relationships, loaded once per
// process through adapter introspection and cached in a Registry.
package schema

// Type is the mapped column type recordkit reasons about.
type Type int

const (
	// TypeString is the fallback mapped type.
	TypeString Type = iota
	// TypeInteger covers all integer column types.
	TypeInteger
	// TypeDecimal covers fixed and floating point column types.
	TypeDecimal
	// TypeDateTime covers timestamp column types.
	TypeDateTime
	// TypeDate covers date-only column types.
	TypeDate
)

// String returns the mapped type name.
func (t Type) String() string {
	switch t {
	case TypeInteger:
		return "integer"
	case TypeDecimal:
		return "decimal"
	case TypeDateTime:
		return "datetime"
	case TypeDate:
		return "date"
	default:
		return "string"
	}
}

// Column describes one table column. Columns are immutable once loaded from
// schema introspection.
type Column struct {
	Name       string
	RawType    string
	Type       Type
	PrimaryKey bool
	Nullable   bool
}

// RelationKind is the closed set of relationship topologies.
type RelationKind int

const (
	// HasMany: the other side's table carries the foreign key; resolves to
	// a collection.
	HasMany RelationKind = iota
	// HasOne: like HasMany but resolves to at most one record.
	HasOne
	// BelongsTo: this side's table carries the foreign key.
	BelongsTo
	// HasAndBelongsToMany: both sides join through an intermediate table.
	HasAndBelongsToMany
)

// String returns the relationship kind name.
func (k RelationKind) String() string {
	switch k {
	case HasMany:
		return "has_many"
	case HasOne:
		return "has_one"
	case BelongsTo:
		return "belongs_to"
	case HasAndBelongsToMany:
		return "has_and_belongs_to_many"
	default:
		return "unknown"
	}
}

// Relationship is a declarative association descriptor. Relationships are
// declared at table construction time and immutable afterwards. Zero-value
// fields are filled from naming conventions when the owning table is built.
type Relationship struct {
	Kind   RelationKind
	Name   string // attribute name on the owning entity
	Target string // target entity type name

	// ForeignKey names the correlating column(s). For HasMany/HasOne it
	// lives on the target table, for BelongsTo on the owning table, and for
	// HasAndBelongsToMany it is the join-table column pointing back at the
	// owner.
	ForeignKey []string

	// JoinTable and TargetForeignKey apply to HasAndBelongsToMany only.
	JoinTable        string
	TargetForeignKey string

	// Optional query overrides applied to eager and join loads.
	Conditions    string
	ConditionArgs []interface{}
	Order         string
	Select        string
}

// Collection reports whether the relationship resolves to a sequence of
// records rather than a single one.
func (r *Relationship) Collection() bool {
	return r.Kind == HasMany || r.Kind == HasAndBelongsToMany
}
