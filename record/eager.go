package record

import (
	"context"
	"fmt"
	"reflect"

	"github.com/recordkit/recordkit/schema"
	"github.com/recordkit/recordkit/sqlgen"
)

// Eager loading: for each included relationship, issue one batched query
// fetching every child row whose foreign key falls in the set of parent
// primary keys (two batched queries for the join-table variant), then
// partition the children back onto their parents. Never one query per
// parent.

// sliceStruct returns the addressable struct at slice index i, whether the
// slice holds values or pointers.
func sliceStruct(slice reflect.Value, i int) reflect.Value {
	el := slice.Index(i)
	if el.Kind() == reflect.Ptr {
		return el.Elem()
	}
	return el
}

// keyString folds a correlation value into a comparable partition key.
// Drivers disagree on integer widths and []byte vs string, so keys are
// compared textually.
func keyString(v interface{}) string {
	if v == nil {
		return ""
	}
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return ""
		}
		return keyString(rv.Elem().Interface())
	}
	return fmt.Sprintf("%v", v)
}

// columnValue reads the value of a column-mapped field from a struct.
func columnValue(v reflect.Value, col string) (interface{}, error) {
	f, ok := fieldByColumn(v, col)
	if !ok {
		return nil, fmt.Errorf("record: %s has no field mapped to column %q", v.Type(), col)
	}
	if f.Kind() == reflect.Ptr && f.IsNil() {
		return nil, nil
	}
	if f.Kind() == reflect.Ptr {
		f = f.Elem()
	}
	return f.Interface(), nil
}

// collectKeys reads col from every parent, returning one partition key per
// parent plus the distinct non-empty raw values in first-seen order.
func collectKeys(parents reflect.Value, col string) ([]string, []interface{}, error) {
	keys := make([]string, parents.Len())
	seen := make(map[string]bool)
	var distinct []interface{}
	for i := 0; i < parents.Len(); i++ {
		v, err := columnValue(sliceStruct(parents, i), col)
		if err != nil {
			return nil, nil, err
		}
		k := keyString(v)
		keys[i] = k
		if k != "" && !seen[k] {
			seen[k] = true
			distinct = append(distinct, v)
		}
	}
	return keys, distinct, nil
}

// singleKey enforces the single-column key requirement of batched loads.
func singleKey(cols []string, what, entity string) (string, error) {
	if len(cols) != 1 {
		return "", fmt.Errorf("record: eager loading needs a single-column %s on %s, have %v", what, entity, cols)
	}
	return cols[0], nil
}

// loadTargets runs the batched child query for a relationship and returns
// the materialized []*T slice value.
func (e *Engine) loadTargets(ctx context.Context, rel *schema.Relationship, filterCol string, in []interface{}) (reflect.Value, error) {
	target, m, err := e.tableFor(ctx, rel.Target)
	if err != nil {
		return reflect.Value{}, err
	}
	st := sqlgen.NewStatement(e.ad, target.QualifiedName())
	if rel.Select != "" {
		st.Select(rel.Select)
	} else {
		st.Select()
	}
	st.Where(e.ad.QuoteIdentifier(filterCol)+" IN (?)", in)
	if rel.Conditions != "" {
		st.Where(rel.Conditions, rel.ConditionArgs...)
	}
	if rel.Order != "" {
		st.OrderBy(rel.Order)
	}
	query, err := st.SQL()
	if err != nil {
		return reflect.Value{}, err
	}
	rows, err := e.ad.Query(ctx, query, st.BindValues())
	if err != nil {
		return reflect.Value{}, err
	}
	children := reflect.New(reflect.SliceOf(reflect.PtrTo(m.typ)))
	if err := scanIntoSlice(rows, children, m.typ); err != nil {
		return reflect.Value{}, err
	}
	return children.Elem(), nil
}

// attach stores loaded children on a parent's relationship attribute.
// Collection attributes always receive a (possibly empty) slice; singular
// attributes receive the first child or stay nil. Attaching is a plain
// replace, so repeating a load leaves identical state.
func attach(parent reflect.Value, rel *schema.Relationship, children []reflect.Value) error {
	field, ok := attributeField(parent, rel)
	if !ok {
		return fmt.Errorf("record: %s has no attribute for relationship %q (add a rel:%q tag)", parent.Type(), rel.Name, rel.Name)
	}
	if rel.Collection() {
		if field.Kind() != reflect.Slice {
			return fmt.Errorf("record: attribute for %q on %s must be a slice", rel.Name, parent.Type())
		}
		out := reflect.MakeSlice(field.Type(), 0, len(children))
		for _, c := range children {
			out = reflect.Append(out, conformElem(c, field.Type().Elem()))
		}
		field.Set(out)
		return nil
	}
	if len(children) == 0 {
		field.Set(reflect.Zero(field.Type()))
		return nil
	}
	field.Set(conformElem(children[0], field.Type()))
	return nil
}

// conformElem adapts a *T child to the attribute's element type (T or *T).
func conformElem(child reflect.Value, want reflect.Type) reflect.Value {
	if child.Type() == want {
		return child
	}
	if child.Kind() == reflect.Ptr && child.Type().Elem() == want {
		return child.Elem()
	}
	return child
}

func (r *hasResolver) eagerLoad(ctx context.Context, e *Engine, parent *schema.Table, parents reflect.Value) error {
	if parents.Len() == 0 {
		return nil
	}
	pk, err := singleKey(parent.PrimaryKey, "primary key", parent.EntityType)
	if err != nil {
		return err
	}
	fk, err := singleKey(r.rel.ForeignKey, "foreign key", parent.EntityType)
	if err != nil {
		return err
	}
	parentKeys, ids, err := collectKeys(parents, pk)
	if err != nil {
		return err
	}
	byFK := make(map[string][]reflect.Value)
	if len(ids) > 0 {
		children, err := e.loadTargets(ctx, r.rel, fk, ids)
		if err != nil {
			return err
		}
		for i := 0; i < children.Len(); i++ {
			c := children.Index(i)
			v, err := columnValue(c.Elem(), fk)
			if err != nil {
				return err
			}
			k := keyString(v)
			byFK[k] = append(byFK[k], c)
		}
	}
	for i := 0; i < parents.Len(); i++ {
		if err := attach(sliceStruct(parents, i), r.rel, byFK[parentKeys[i]]); err != nil {
			return err
		}
	}
	return nil
}

func (r *belongsToResolver) eagerLoad(ctx context.Context, e *Engine, parent *schema.Table, parents reflect.Value) error {
	if parents.Len() == 0 {
		return nil
	}
	fk, err := singleKey(r.rel.ForeignKey, "foreign key", parent.EntityType)
	if err != nil {
		return err
	}
	target, _, err := e.tableFor(ctx, r.rel.Target)
	if err != nil {
		return err
	}
	pk, err := singleKey(target.PrimaryKey, "primary key", target.EntityType)
	if err != nil {
		return err
	}
	parentKeys, ids, err := collectKeys(parents, fk)
	if err != nil {
		return err
	}
	byPK := make(map[string][]reflect.Value)
	if len(ids) > 0 {
		children, err := e.loadTargets(ctx, r.rel, pk, ids)
		if err != nil {
			return err
		}
		for i := 0; i < children.Len(); i++ {
			c := children.Index(i)
			v, err := columnValue(c.Elem(), pk)
			if err != nil {
				return err
			}
			byPK[keyString(v)] = []reflect.Value{c}
		}
	}
	for i := 0; i < parents.Len(); i++ {
		if err := attach(sliceStruct(parents, i), r.rel, byPK[parentKeys[i]]); err != nil {
			return err
		}
	}
	return nil
}

func (r *habtmResolver) eagerLoad(ctx context.Context, e *Engine, parent *schema.Table, parents reflect.Value) error {
	if parents.Len() == 0 {
		return nil
	}
	pk, err := singleKey(parent.PrimaryKey, "primary key", parent.EntityType)
	if err != nil {
		return err
	}
	fk, err := singleKey(r.rel.ForeignKey, "join foreign key", parent.EntityType)
	if err != nil {
		return err
	}
	target, _, err := e.tableFor(ctx, r.rel.Target)
	if err != nil {
		return err
	}
	targetPK, err := singleKey(target.PrimaryKey, "primary key", target.EntityType)
	if err != nil {
		return err
	}
	parentKeys, ids, err := collectKeys(parents, pk)
	if err != nil {
		return err
	}

	// First batched query: the join table rows for all parents at once.
	pairs := make(map[string][]string)
	var targetIDs []interface{}
	seen := make(map[string]bool)
	if len(ids) > 0 {
		st := sqlgen.NewStatement(e.ad, r.rel.JoinTable)
		st.Select(e.ad.QuoteIdentifier(fk), e.ad.QuoteIdentifier(r.rel.TargetForeignKey))
		st.Where(e.ad.QuoteIdentifier(fk)+" IN (?)", ids)
		query, err := st.SQL()
		if err != nil {
			return err
		}
		rows, err := e.ad.Query(ctx, query, st.BindValues())
		if err != nil {
			return err
		}
		for rows.Next() {
			var parentID, targetID interface{}
			if err := rows.Scan(&parentID, &targetID); err != nil {
				rows.Close()
				return fmt.Errorf("record: scan join row for %q: %w", r.rel.Name, err)
			}
			pkey, tkey := keyString(parentID), keyString(targetID)
			pairs[pkey] = append(pairs[pkey], tkey)
			if !seen[tkey] {
				seen[tkey] = true
				targetIDs = append(targetIDs, targetID)
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()
	}

	// Second batched query: the target rows behind every join pair.
	byPK := make(map[string]reflect.Value)
	if len(targetIDs) > 0 {
		children, err := e.loadTargets(ctx, r.rel, targetPK, targetIDs)
		if err != nil {
			return err
		}
		for i := 0; i < children.Len(); i++ {
			c := children.Index(i)
			v, err := columnValue(c.Elem(), targetPK)
			if err != nil {
				return err
			}
			byPK[keyString(v)] = c
		}
	}

	for i := 0; i < parents.Len(); i++ {
		var children []reflect.Value
		for _, tk := range pairs[parentKeys[i]] {
			if c, ok := byPK[tk]; ok {
				children = append(children, c)
			}
		}
		if err := attach(sliceStruct(parents, i), r.rel, children); err != nil {
			return err
		}
	}
	return nil
}
