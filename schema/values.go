package schema

import (
	"reflect"
	"time"

	"github.com/google/uuid"
)

const (
	datetimeFormat = "2006-01-02 15:04:05"
	dateFormat     = "2006-01-02"
)

// NormalizeValue renders a Go value into its storage-canonical form for a
// column before binding: times become dialect-neutral strings shaped by the
// column's mapped type, UUIDs become their text form. Everything else passes
// through to the driver untouched.
func NormalizeValue(col Column, v interface{}) interface{} {
	switch x := v.(type) {
	case nil:
		return nil
	case time.Time:
		if x.IsZero() {
			return nil
		}
		if col.Type == TypeDate {
			return x.Format(dateFormat)
		}
		return x.Format(datetimeFormat)
	case *time.Time:
		if x == nil {
			return nil
		}
		return NormalizeValue(col, *x)
	case uuid.UUID:
		return x.String()
	case *uuid.UUID:
		if x == nil {
			return nil
		}
		return x.String()
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		return NormalizeValue(col, rv.Elem().Interface())
	}
	return v
}

// FieldColumn returns the column name a struct field maps to: the db tag
// when present, otherwise the snake_case of the field name. A "-" tag opts
// the field out.
func FieldColumn(f reflect.StructField) string {
	if tag, ok := f.Tag.Lookup("db"); ok {
		if tag == "-" {
			return ""
		}
		return tag
	}
	return Underscore(f.Name)
}
