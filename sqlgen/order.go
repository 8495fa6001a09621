package sqlgen

import (
	"regexp"
	"strings"
)

var connectorRe = regexp.MustCompile(`_and_|_or_`)

// ReverseOrder flips the direction of every term of a comma-separated ORDER
// BY clause. Terms without an explicit direction default to DESC. Used by
// "last row" and reverse-pagination queries.
func ReverseOrder(order string) string {
	if order == "" {
		return order
	}
	terms := strings.Split(order, ",")
	for i, term := range terms {
		term = strings.TrimSpace(term)
		switch {
		case hasDirection(term, "ASC"):
			term = term[:len(term)-3] + "DESC"
		case hasDirection(term, "DESC"):
			term = term[:len(term)-4] + "ASC"
		default:
			term += " DESC"
		}
		terms[i] = term
	}
	return strings.Join(terms, ", ")
}

func hasDirection(term, dir string) bool {
	if len(term) <= len(dir) {
		return false
	}
	tail := term[len(term)-len(dir):]
	return strings.EqualFold(tail, dir) && term[len(term)-len(dir)-1] == ' '
}

// ConditionsFromUnderscoredString parses a composite condition name such as
// "id_and_name_or_nick" into the fragment "id=? AND name=? OR nick=?" plus
// the bind values it consumes. A slice value substitutes IN (?) for its
// field (expansion happens when the fragment is compiled); a nil or absent
// value substitutes IS NULL and consumes no bind slot. aliases translates
// externally-named fields to real column names before emission. This is the
// mechanism behind dynamic "find by x and y" lookups.
func ConditionsFromUnderscoredString(name string, values []interface{}, aliases map[string]string) (string, []interface{}, error) {
	if name == "" {
		return "", nil, argErrorf("conditions", "empty condition name")
	}
	fields := connectorRe.Split(name, -1)
	connectors := connectorRe.FindAllString(name, -1)

	var b strings.Builder
	var args []interface{}
	for i, field := range fields {
		if field == "" {
			return "", nil, argErrorf("conditions", "malformed condition name %q", name)
		}
		if i > 0 {
			switch connectors[i-1] {
			case "_or_":
				b.WriteString(" OR ")
			default:
				b.WriteString(" AND ")
			}
		}
		if alias, ok := aliases[field]; ok {
			field = alias
		}
		var v interface{}
		if i < len(values) {
			v = values[i]
		}
		switch {
		case v == nil:
			b.WriteString(field + " IS NULL")
		default:
			if _, ok := sliceValues(v); ok {
				b.WriteString(field + " IN (?)")
			} else {
				b.WriteString(field + "=?")
			}
			args = append(args, v)
		}
	}
	return b.String(), args, nil
}
