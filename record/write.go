package record

import (
	"context"
	"fmt"
	"reflect"

	"github.com/recordkit/recordkit/schema"
	"github.com/recordkit/recordkit/sqlgen"
)

// entityStruct validates a write target: entity must be a non-nil pointer to
// a struct so generated keys can be written back.
func entityStruct(entity interface{}) (reflect.Value, error) {
	v := reflect.ValueOf(entity)
	if v.Kind() != reflect.Ptr || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("record: entity must be a non-nil pointer to a struct, got %T", entity)
	}
	return v.Elem(), nil
}

// extractRow builds the ordered column payload for a write. Columns follow
// schema order; columns with no mapped struct field are skipped; values pass
// through storage normalization. Primary key columns are included only when
// includePK is set.
func extractRow(table *schema.Table, v reflect.Value, includePK bool) sqlgen.Row {
	pk := make(map[string]bool, len(table.PrimaryKey))
	for _, c := range table.PrimaryKey {
		pk[c] = true
	}
	var row sqlgen.Row
	for _, name := range table.ColumnOrder {
		if pk[name] && !includePK {
			continue
		}
		f, ok := fieldByColumn(v, name)
		if !ok {
			continue
		}
		col, _ := table.Column(name)
		row = append(row, sqlgen.Pair{Column: name, Value: schema.NormalizeValue(col, f.Interface())})
	}
	return row
}

// primaryKeyConditions returns the WHERE payload identifying one entity by
// its primary key. Every key column must carry a non-zero value.
func primaryKeyConditions(table *schema.Table, v reflect.Value, op string) (map[string]interface{}, error) {
	if len(table.PrimaryKey) == 0 {
		return nil, &sqlgen.ArgumentError{Op: op, Reason: fmt.Sprintf("table %s has no primary key", table.QualifiedName())}
	}
	conds := make(map[string]interface{}, len(table.PrimaryKey))
	for _, name := range table.PrimaryKey {
		f, ok := fieldByColumn(v, name)
		if !ok {
			return nil, &sqlgen.ArgumentError{Op: op, Reason: fmt.Sprintf("%s has no field for key column %q", v.Type(), name)}
		}
		if f.IsZero() {
			return nil, &sqlgen.ArgumentError{Op: op, Reason: fmt.Sprintf("primary key %q is empty", name)}
		}
		col, _ := table.Column(name)
		conds[name] = schema.NormalizeValue(col, f.Interface())
	}
	return conds, nil
}

// Insert writes a new row for entity and backfills the generated primary
// key: drawn from the table's sequence up front where the engine supports
// sequences, otherwise recovered from the driver after the insert.
func (e *Engine) Insert(ctx context.Context, entity interface{}) error {
	v, err := entityStruct(entity)
	if err != nil {
		return err
	}
	table, _, err := e.tableFor(ctx, v.Type().Name())
	if err != nil {
		return err
	}
	if err := table.RunBeforeSave(entity); err != nil {
		return err
	}

	includePK := true
	var pkField reflect.Value
	if len(table.PrimaryKey) == 1 {
		if f, ok := fieldByColumn(v, table.PrimaryKey[0]); ok && f.IsZero() {
			pkField = f
			if table.SequenceName != "" && e.ad.SupportsSequences() {
				next, err := e.ad.NextSequenceValue(ctx, table.SequenceName)
				if err != nil {
					return err
				}
				if err := setFieldValue(f, next); err != nil {
					return err
				}
			} else {
				includePK = false
			}
		}
	}

	row := extractRow(table, v, includePK)
	st := sqlgen.NewStatement(e.ad, table.QualifiedName()).Insert(row)
	query, err := st.SQL()
	if err != nil {
		return err
	}
	res, err := e.ad.Exec(ctx, query, st.BindValues())
	if err != nil {
		return err
	}
	if !includePK && pkField.IsValid() {
		if id, err := res.LastInsertId(); err == nil && id != 0 {
			if err := setFieldValue(pkField, id); err != nil {
				return err
			}
		}
	}
	return table.RunAfterSave(entity)
}

// Update rewrites every non-key column of the row identified by entity's
// primary key. An empty primary key fails before any SQL is issued.
func (e *Engine) Update(ctx context.Context, entity interface{}) error {
	v, err := entityStruct(entity)
	if err != nil {
		return err
	}
	table, _, err := e.tableFor(ctx, v.Type().Name())
	if err != nil {
		return err
	}
	conds, err := primaryKeyConditions(table, v, "update")
	if err != nil {
		return err
	}
	if err := table.RunBeforeSave(entity); err != nil {
		return err
	}
	row := extractRow(table, v, false)
	if len(row) == 0 {
		return &sqlgen.ArgumentError{Op: "update", Reason: fmt.Sprintf("%s maps no updatable columns on %s", v.Type(), table.QualifiedName())}
	}
	st := sqlgen.NewStatement(e.ad, table.QualifiedName()).Update(row).WhereEq(conds)
	query, err := st.SQL()
	if err != nil {
		return err
	}
	if _, err := e.ad.Exec(ctx, query, st.BindValues()); err != nil {
		return err
	}
	return table.RunAfterSave(entity)
}

// Delete removes the row identified by entity's primary key. An empty
// primary key fails before any SQL is issued.
func (e *Engine) Delete(ctx context.Context, entity interface{}) error {
	v, err := entityStruct(entity)
	if err != nil {
		return err
	}
	table, _, err := e.tableFor(ctx, v.Type().Name())
	if err != nil {
		return err
	}
	conds, err := primaryKeyConditions(table, v, "delete")
	if err != nil {
		return err
	}
	st := sqlgen.NewStatement(e.ad, table.QualifiedName()).Delete().WhereEq(conds)
	query, err := st.SQL()
	if err != nil {
		return err
	}
	_, err = e.ad.Exec(ctx, query, st.BindValues())
	return err
}
