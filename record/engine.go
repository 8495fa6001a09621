// Package record is the query-compilation and association-resolution engine.
// It turns declarative find requests into dialect-correct SQL, executes them
// through an adapter, materializes rows into caller structs and attaches
// related records, batching secondary queries to avoid N+1 loads.
package record

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/recordkit/recordkit/adapter"
	"github.com/recordkit/recordkit/schema"
	"github.com/recordkit/recordkit/sqlgen"
)

// Query is the transient option set consumed by Find. Zero values mean "not
// requested".
type Query struct {
	// Select overrides the select list.
	Select string

	// From overrides the table the statement selects from.
	From string

	// Joins holds literal join SQL and/or declared relationship names.
	// Tokens containing whitespace are treated as literal SQL; bare tokens
	// must name a declared relationship.
	Joins []string

	// Conditions is either a map[string]interface{} (ANDed equality, IN for
	// slice values, IS NULL for nils) or a sqlgen.Fragment.
	Conditions interface{}

	Order      string
	Group      string
	Having     string
	HavingArgs []interface{}

	// Limit <= 0 means no limit; Offset <= 0 means no offset.
	Limit  int
	Offset int

	// Include names relationships to eager-load with batched secondary
	// queries after the primary result set is materialized.
	Include []string

	// Readonly marks materialized entities that implement ReadonlyMarker.
	Readonly bool
}

// ReadonlyMarker is implemented by entities that can be flagged readonly
// when loaded through a readonly query.
type ReadonlyMarker interface {
	MarkReadonly()
}

// model pairs a registered entity struct type with its schema definition.
type model struct {
	typ reflect.Type
	def schema.Definition
}

// Engine executes finds and writes for registered entity types through one
// adapter. Table metadata is built lazily on first access and cached for the
// engine's lifetime.
type Engine struct {
	ad  adapter.Adapter
	reg *schema.Registry

	mu     sync.RWMutex
	models map[string]*model
}

// NewEngine creates an engine on top of an adapter.
func NewEngine(ad adapter.Adapter) *Engine {
	return &Engine{
		ad:     ad,
		reg:    schema.NewRegistry(),
		models: make(map[string]*model),
	}
}

// Adapter returns the adapter the engine executes through.
func (e *Engine) Adapter() adapter.Adapter { return e.ad }

// Register declares an entity type from a struct prototype. The entity type
// name is the struct type name; table name, primary key and relationships
// come from def, falling back to naming conventions. Registration is cheap;
// column introspection happens on first use.
func (e *Engine) Register(prototype interface{}, def schema.Definition) error {
	typ := reflect.TypeOf(prototype)
	for typ != nil && typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ == nil || typ.Kind() != reflect.Struct {
		return fmt.Errorf("record: prototype must be a struct, got %T", prototype)
	}
	if def.EntityType == "" {
		def.EntityType = typ.Name()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, dup := e.models[def.EntityType]; dup {
		return fmt.Errorf("record: entity type %s is already registered", def.EntityType)
	}
	e.models[def.EntityType] = &model{typ: typ, def: def}
	return nil
}

// ClearMetadata drops all cached table metadata. Registered entity types
// survive; columns are re-introspected on next use. Intended for tests.
func (e *Engine) ClearMetadata() {
	e.reg.Clear()
}

// tableFor resolves a registered entity type into its memoized table
// metadata, introspecting columns on first access.
func (e *Engine) tableFor(ctx context.Context, entityType string) (*schema.Table, *model, error) {
	e.mu.RLock()
	m, ok := e.models[entityType]
	e.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("record: entity type %s is not registered", entityType)
	}
	t, err := e.reg.Table(ctx, m.def, e.ad)
	if err != nil {
		return nil, nil, err
	}
	return t, m, nil
}

// Find runs a SELECT described by q and materializes the result set into
// dest, which must be a pointer to a slice of structs or struct pointers.
// The entity type is the slice element's struct type name.
func (e *Engine) Find(ctx context.Context, dest interface{}, q Query) error {
	slice, elem, err := destSlice(dest)
	if err != nil {
		return err
	}
	table, _, err := e.tableFor(ctx, elem.Name())
	if err != nil {
		return err
	}

	// Resolve include names before any SQL runs so an undeclared
	// relationship never triggers a partial load.
	resolvers := make([]relationResolver, 0, len(q.Include))
	for _, name := range q.Include {
		rel, ok := table.Relationship(name)
		if !ok {
			return &schema.RelationshipError{EntityType: table.EntityType, Relationship: name}
		}
		resolvers = append(resolvers, e.resolverFor(rel))
	}

	st, relJoined, err := e.buildSelect(ctx, table, q)
	if err != nil {
		return err
	}
	if q.Select == "" && relJoined {
		// Joined tables would collide on column names; keep the row shape
		// to the primary table unless the caller chose otherwise.
		st.Select(e.ad.QuoteIdentifier(table.QualifiedName() + ".*"))
	}

	query, err := st.SQL()
	if err != nil {
		return err
	}
	rows, err := e.ad.Query(ctx, query, st.BindValues())
	if err != nil {
		return err
	}
	if err := scanIntoSlice(rows, slice, elem); err != nil {
		return err
	}

	if q.Readonly {
		markReadonly(slice)
	}
	for _, r := range resolvers {
		if err := r.eagerLoad(ctx, e, table, slice.Elem()); err != nil {
			return err
		}
	}
	return nil
}

// FindFirst materializes the first matching row into dest, a pointer to a
// struct. It returns adapter/sql semantics: no error and an untouched dest
// when nothing matches is reported via the bool.
func (e *Engine) FindFirst(ctx context.Context, dest interface{}, q Query) (bool, error) {
	return e.findOne(ctx, dest, q, false)
}

// FindLast is FindFirst with the order reversed (primary key descending when
// no order was requested).
func (e *Engine) FindLast(ctx context.Context, dest interface{}, q Query) (bool, error) {
	return e.findOne(ctx, dest, q, true)
}

func (e *Engine) findOne(ctx context.Context, dest interface{}, q Query, last bool) (bool, error) {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Ptr || dv.Elem().Kind() != reflect.Struct {
		return false, fmt.Errorf("record: dest must be a pointer to a struct, got %T", dest)
	}
	elem := dv.Elem().Type()
	if last {
		order := q.Order
		if order == "" {
			table, _, err := e.tableFor(ctx, elem.Name())
			if err != nil {
				return false, err
			}
			if len(table.PrimaryKey) == 0 {
				return false, fmt.Errorf("record: entity type %s has no primary key to order by", elem.Name())
			}
			order = strings.Join(table.PrimaryKey, ", ")
		}
		q.Order = sqlgen.ReverseOrder(order)
	}
	q.Limit = 1

	slicePtr := reflect.New(reflect.SliceOf(elem))
	if err := e.Find(ctx, slicePtr.Interface(), q); err != nil {
		return false, err
	}
	results := slicePtr.Elem()
	if results.Len() == 0 {
		return false, nil
	}
	dv.Elem().Set(results.Index(0))
	return true, nil
}

// FindBy runs a dynamic finder: name is a composite condition such as
// "email" or "status_and_role", compiled against the entity's alias map.
func (e *Engine) FindBy(ctx context.Context, dest interface{}, name string, values ...interface{}) error {
	_, elem, err := destSlice(dest)
	if err != nil {
		return err
	}
	table, _, err := e.tableFor(ctx, elem.Name())
	if err != nil {
		return err
	}
	fragment, args, err := sqlgen.ConditionsFromUnderscoredString(name, values, table.Aliases)
	if err != nil {
		return err
	}
	return e.Find(ctx, dest, Query{Conditions: sqlgen.Fragment{SQL: fragment, Args: args}})
}

// Count compiles and runs a SELECT COUNT(*) for the conditions in q. Include
// names are validated like Find does but are never loaded.
func (e *Engine) Count(ctx context.Context, entityType string, q Query) (int64, error) {
	table, _, err := e.tableFor(ctx, entityType)
	if err != nil {
		return 0, err
	}
	// Includes are meaningless on an aggregate, but an undeclared name is
	// still a caller error and fails before any SQL runs.
	for _, name := range q.Include {
		if _, ok := table.Relationship(name); !ok {
			return 0, &schema.RelationshipError{EntityType: table.EntityType, Relationship: name}
		}
	}
	q.Include = nil
	q.Select = "COUNT(*)"
	q.Order = ""
	q.Limit = 0
	q.Offset = 0
	st, _, err := e.buildSelect(ctx, table, q)
	if err != nil {
		return 0, err
	}
	query, err := st.SQL()
	if err != nil {
		return 0, err
	}
	rows, err := e.ad.Query(ctx, query, st.BindValues())
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	var n int64
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, fmt.Errorf("record: scan count: %w", err)
		}
	}
	return n, rows.Err()
}

// buildSelect assembles the SELECT statement for a query option set. The second
// return value reports whether any join came from a declared relationship.
func (e *Engine) buildSelect(ctx context.Context, table *schema.Table, q Query) (*sqlgen.Statement, bool, error) {
	from := table.QualifiedName()
	if q.From != "" {
		from = q.From
	}
	st := sqlgen.NewStatement(e.ad, from)
	if q.Select != "" {
		st.Select(q.Select)
	} else {
		st.Select()
	}

	relJoined := false
	for _, tok := range q.Joins {
		if strings.ContainsAny(tok, " \t") {
			st.Join(tok)
			continue
		}
		rel, ok := table.Relationship(tok)
		if !ok {
			return nil, false, &schema.RelationshipError{EntityType: table.EntityType, Relationship: tok}
		}
		join, err := e.resolverFor(rel).joinSQL(ctx, e, table)
		if err != nil {
			return nil, false, err
		}
		st.Join(join)
		relJoined = true
	}

	if err := applyConditions(st, q.Conditions); err != nil {
		return nil, false, err
	}
	if q.Order != "" {
		st.OrderBy(q.Order)
	}
	if q.Group != "" {
		st.GroupBy(q.Group)
	}
	if q.Having != "" {
		st.Having(q.Having, q.HavingArgs...)
	}
	if q.Limit > 0 {
		st.Limit(q.Limit)
	}
	if q.Offset > 0 {
		st.Offset(q.Offset)
	}
	return st, relJoined, nil
}

// applyConditions attaches a Query.Conditions value to a statement.
func applyConditions(st *sqlgen.Statement, conds interface{}) error {
	switch c := conds.(type) {
	case nil:
	case map[string]interface{}:
		st.WhereEq(c)
	case sqlgen.Fragment:
		st.Where(c.SQL, c.Args...)
	case *sqlgen.Fragment:
		st.Where(c.SQL, c.Args...)
	case string:
		st.Where(c)
	default:
		return fmt.Errorf("record: unsupported conditions type %T", conds)
	}
	return nil
}

// destSlice validates a find destination and returns its slice value and
// element struct type.
func destSlice(dest interface{}) (reflect.Value, reflect.Type, error) {
	v := reflect.ValueOf(dest)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Slice {
		return reflect.Value{}, nil, fmt.Errorf("record: dest must be a pointer to a slice, got %T", dest)
	}
	elem := v.Elem().Type().Elem()
	if elem.Kind() == reflect.Ptr {
		elem = elem.Elem()
	}
	if elem.Kind() != reflect.Struct {
		return reflect.Value{}, nil, fmt.Errorf("record: dest elements must be structs, got %s", elem)
	}
	return v, elem, nil
}

// markReadonly flags every materialized entity that supports it.
func markReadonly(slicePtr reflect.Value) {
	slice := slicePtr.Elem()
	for i := 0; i < slice.Len(); i++ {
		el := slice.Index(i)
		if el.Kind() != reflect.Ptr {
			el = el.Addr()
		}
		if m, ok := el.Interface().(ReadonlyMarker); ok {
			m.MarkReadonly()
		}
	}
}
