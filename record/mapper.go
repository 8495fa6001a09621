package record

import (
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/recordkit/recordkit/schema"
)

var (
	timeType    = reflect.TypeOf(time.Time{})
	uuidType    = reflect.TypeOf(uuid.UUID{})
	scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
)

// scanIntoSlice materializes every row into a freshly built slice and stores
// it through destPtr (a pointer to []T or []*T with element struct type
// elem). The previous slice contents are replaced.
func scanIntoSlice(rows *sql.Rows, destPtr reflect.Value, elem reflect.Type) error {
	defer rows.Close()
	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("record: read result columns: %w", err)
	}
	slice := destPtr.Elem()
	ptrElems := slice.Type().Elem().Kind() == reflect.Ptr
	out := reflect.MakeSlice(slice.Type(), 0, 16)
	idx := structColumnIndex(elem)
	for rows.Next() {
		rec := reflect.New(elem)
		if err := scanRowIntoStruct(rows, columns, idx, rec.Elem()); err != nil {
			return err
		}
		if ptrElems {
			out = reflect.Append(out, rec)
		} else {
			out = reflect.Append(out, rec.Elem())
		}
	}
	slice.Set(out)
	return rows.Err()
}

// scanRowIntoStruct scans the current row into a struct value using a
// prebuilt column->field index.
func scanRowIntoStruct(rows *sql.Rows, columns []string, idx map[string]int, v reflect.Value) error {
	values := make([]interface{}, len(columns))
	ptrs := make([]interface{}, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return fmt.Errorf("record: scan row: %w", err)
	}
	for i, col := range columns {
		fi, ok := idx[strings.ToLower(col)]
		if !ok {
			continue
		}
		field := v.Field(fi)
		if values[i] == nil {
			field.Set(reflect.Zero(field.Type()))
			continue
		}
		if err := setFieldValue(field, values[i]); err != nil {
			return fmt.Errorf("record: column %s: %w", col, err)
		}
	}
	return nil
}

// structColumnIndex maps lowercased column names onto struct field indexes.
// Relation fields (rel-tagged or non-byte slices) do not map to columns.
func structColumnIndex(t reflect.Type) map[string]int {
	idx := make(map[string]int, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" {
			continue
		}
		if _, isRel := f.Tag.Lookup("rel"); isRel {
			continue
		}
		if f.Type.Kind() == reflect.Slice && f.Type.Elem().Kind() != reflect.Uint8 {
			continue
		}
		col := schema.FieldColumn(f)
		if col == "" {
			continue
		}
		idx[strings.ToLower(col)] = i
	}
	return idx
}

// fieldByColumn returns the struct field a column maps to.
func fieldByColumn(v reflect.Value, col string) (reflect.Value, bool) {
	idx := structColumnIndex(v.Type())
	fi, ok := idx[strings.ToLower(col)]
	if !ok {
		return reflect.Value{}, false
	}
	return v.Field(fi), true
}

// setFieldValue assigns a driver value to a struct field, converting across
// the usual driver representations (int64 widths, []byte strings, textual
// times and uuids).
func setFieldValue(field reflect.Value, value interface{}) error {
	ft := field.Type()

	if ft.Kind() == reflect.Ptr {
		elem := reflect.New(ft.Elem()).Elem()
		if err := setFieldValue(elem, value); err != nil {
			return err
		}
		field.Set(elem.Addr())
		return nil
	}

	if field.CanAddr() && field.Addr().Type().Implements(scannerType) {
		return field.Addr().Interface().(sql.Scanner).Scan(value)
	}

	switch ft {
	case timeType:
		return setTimeValue(field, value)
	case uuidType:
		return setUUIDValue(field, value)
	}

	vv := reflect.ValueOf(value)
	if vv.Type().AssignableTo(ft) {
		field.Set(vv)
		return nil
	}
	if b, ok := value.([]byte); ok && ft.Kind() == reflect.String {
		field.SetString(string(b))
		return nil
	}
	if ft.Kind() == reflect.Bool {
		if n, ok := value.(int64); ok {
			field.SetBool(n != 0)
			return nil
		}
	}
	if vv.Type().ConvertibleTo(ft) {
		field.Set(vv.Convert(ft))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, ft)
}

// timeLayouts are the textual forms drivers hand back for temporal columns.
var timeLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02",
}

func setTimeValue(field reflect.Value, value interface{}) error {
	switch x := value.(type) {
	case time.Time:
		field.Set(reflect.ValueOf(x))
		return nil
	case []byte:
		return setTimeValue(field, string(x))
	case string:
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, x); err == nil {
				field.Set(reflect.ValueOf(ts))
				return nil
			}
		}
		return fmt.Errorf("cannot parse time %q", x)
	default:
		return fmt.Errorf("cannot assign %T to time.Time", value)
	}
}

func setUUIDValue(field reflect.Value, value interface{}) error {
	switch x := value.(type) {
	case []byte:
		return setUUIDValue(field, string(x))
	case string:
		id, err := uuid.Parse(x)
		if err != nil {
			return err
		}
		field.Set(reflect.ValueOf(id))
		return nil
	default:
		return fmt.Errorf("cannot assign %T to uuid.UUID", value)
	}
}
