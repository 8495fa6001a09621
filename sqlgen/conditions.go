package sqlgen

import (
	"reflect"
	"sort"
	"strings"
)

// Quoter quotes SQL identifiers for a dialect.
type Quoter interface {
	QuoteIdentifier(name string) string
}

// Dialector is the dialect surface the statement builder depends on.
// LIMIT/OFFSET syntax differs per engine, so it is never hardcoded here.
type Dialector interface {
	Quoter
	ApplyLimitOffset(query string, limit, offset int) string
}

// Fragment is a raw SQL condition with positional ? placeholders and the
// values to bind to them.
type Fragment struct {
	SQL  string
	Args []interface{}
}

// CompileMap compiles a column->value map into an ANDed condition fragment.
// A nil value compiles to IS NULL and consumes no bind slot; a slice value
// compiles to IN (?, ...) with one placeholder per element (an empty slice
// becomes the never-true IN (NULL)). Keys are quoted
// through q and emitted in sorted order so the output is deterministic.
func CompileMap(conds map[string]interface{}, q Quoter) (string, []interface{}, error) {
	if len(conds) == 0 {
		return "", nil, nil
	}
	keys := make([]string, 0, len(conds))
	for k := range conds {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	var args []interface{}
	for i, k := range keys {
		if i > 0 {
			b.WriteString(" AND ")
		}
		col := q.QuoteIdentifier(k)
		v := conds[k]
		if v == nil {
			b.WriteString(col + " IS NULL")
			continue
		}
		if elems, ok := sliceValues(v); ok {
			if len(elems) == 0 {
				// IN () is invalid SQL everywhere; IN (NULL) matches no row.
				b.WriteString(col + " IN (NULL)")
				continue
			}
			b.WriteString(col + " IN (" + placeholders(len(elems)) + ")")
			args = append(args, elems...)
			continue
		}
		if !bindable(v) {
			return "", nil, argErrorf("conditions", "cannot bind %T for column %q", v, k)
		}
		b.WriteString(col + " = ?")
		args = append(args, v)
	}
	return b.String(), args, nil
}

// ExpandFragment walks a raw SQL fragment and resolves its ? placeholders
// against values, left to right. A slice value expands its placeholder into
// an IN group with one placeholder per element; an empty slice becomes NULL.
// The returned bind list matches the placeholders of the returned fragment
// exactly. Placeholder/value count mismatches fail with ArgumentError.
func ExpandFragment(fragment string, values []interface{}) (string, []interface{}, error) {
	var b strings.Builder
	var args []interface{}
	next := 0
	inQuote := byte(0)
	for i := 0; i < len(fragment); i++ {
		c := fragment[i]
		switch {
		case inQuote != 0:
			if c == inQuote {
				inQuote = 0
			}
			b.WriteByte(c)
		case c == '\'':
			inQuote = c
			b.WriteByte(c)
		case c == '?':
			if next >= len(values) {
				return "", nil, argErrorf("conditions", "fragment %q references more placeholders than the %d supplied values", fragment, len(values))
			}
			v := values[next]
			next++
			if elems, ok := sliceValues(v); ok {
				if len(elems) == 0 {
					b.WriteString("NULL")
					continue
				}
				b.WriteString(placeholders(len(elems)))
				args = append(args, elems...)
				continue
			}
			b.WriteByte('?')
			args = append(args, v)
		default:
			b.WriteByte(c)
		}
	}
	if next < len(values) {
		return "", nil, argErrorf("conditions", "fragment %q has %d placeholders but %d values were supplied", fragment, next, len(values))
	}
	return b.String(), args, nil
}

// sliceValues returns the elements of v when v is a slice or array that
// should expand into an IN group. Strings and byte slices bind as scalars.
func sliceValues(v interface{}) ([]interface{}, bool) {
	if v == nil {
		return nil, false
	}
	if _, ok := v.([]byte); ok {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	elems := make([]interface{}, rv.Len())
	for i := range elems {
		elems[i] = rv.Index(i).Interface()
	}
	return elems, true
}

// bindable reports whether v can be passed to the driver as a bind value.
func bindable(v interface{}) bool {
	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Chan, reflect.Func:
		return false
	}
	return true
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
