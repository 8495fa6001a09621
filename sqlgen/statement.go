package sqlgen

import (
	"sort"
	"strings"
)

type operation int

const (
	opNone operation = iota
	opSelect
	opInsert
	opUpdate
	opDelete
)

// Pair is one column/value assignment of an INSERT or UPDATE payload.
type Pair struct {
	Column string
	Value  interface{}
}

// Row is an ordered list of column assignments. Order is load-bearing: the
// bind values of a built statement appear in exactly this order.
type Row []Pair

// Columns returns the column names in row order.
func (r Row) Columns() []string {
	cols := make([]string, len(r))
	for i, p := range r {
		cols[i] = p.Column
	}
	return cols
}

// Values returns the values in row order.
func (r Row) Values() []interface{} {
	vals := make([]interface{}, len(r))
	for i, p := range r {
		vals[i] = p.Value
	}
	return vals
}

// RowFromMap converts a map payload into a Row with sorted column order.
func RowFromMap(m map[string]interface{}) Row {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	row := make(Row, len(keys))
	for i, k := range keys {
		row[i] = Pair{Column: k, Value: m[k]}
	}
	return row
}

// Statement assembles one SQL statement. It is transient: build it, read
// SQL() and BindValues(), and discard it. The operation is set by whichever
// terminal method (Select, Insert, Update, Delete) ran last.
type Statement struct {
	d          Dialector
	op         operation
	table      string
	columns    []string
	joins      []string
	where      []string
	whereArgs  []interface{}
	group      string
	having     string
	havingArgs []interface{}
	order      string
	row        Row
	limit      int
	offset     int
	err        error
}

// NewStatement returns a statement builder targeting table.
func NewStatement(d Dialector, table string) *Statement {
	return &Statement{d: d, table: table, limit: -1}
}

// Select switches the statement to SELECT mode with the given column list.
// An empty list selects *.
func (s *Statement) Select(columns ...string) *Statement {
	s.op = opSelect
	s.columns = columns
	return s
}

// Insert switches the statement to INSERT mode with the given payload.
func (s *Statement) Insert(row Row) *Statement {
	s.op = opInsert
	s.row = row
	if len(row) == 0 && s.err == nil {
		s.err = argErrorf("insert", "payload must be a non-empty set of column assignments")
	}
	return s
}

// Update switches the statement to UPDATE mode with the given SET payload.
func (s *Statement) Update(row Row) *Statement {
	s.op = opUpdate
	s.row = row
	if len(row) == 0 && s.err == nil {
		s.err = argErrorf("update", "payload must be a non-empty set of column assignments")
	}
	return s
}

// Delete switches the statement to DELETE mode.
func (s *Statement) Delete() *Statement {
	s.op = opDelete
	return s
}

// From overrides the target table.
func (s *Statement) From(table string) *Statement {
	if table != "" {
		s.table = table
	}
	return s
}

// Join appends a literal join clause.
func (s *Statement) Join(join string) *Statement {
	if join != "" {
		s.joins = append(s.joins, join)
	}
	return s
}

// Where appends a raw condition fragment. Slice-valued args expand into IN
// groups. Multiple Where calls are ANDed.
func (s *Statement) Where(fragment string, args ...interface{}) *Statement {
	if fragment == "" {
		return s
	}
	sql, binds, err := ExpandFragment(fragment, args)
	if err != nil {
		if s.err == nil {
			s.err = err
		}
		return s
	}
	s.where = append(s.where, sql)
	s.whereArgs = append(s.whereArgs, binds...)
	return s
}

// WhereEq appends map conditions (implicit AND over equality, IN for slices,
// IS NULL for nil values).
func (s *Statement) WhereEq(conds map[string]interface{}) *Statement {
	sql, binds, err := CompileMap(conds, s.d)
	if err != nil {
		if s.err == nil {
			s.err = err
		}
		return s
	}
	if sql != "" {
		s.where = append(s.where, sql)
		s.whereArgs = append(s.whereArgs, binds...)
	}
	return s
}

// OrderBy sets the ORDER BY clause.
func (s *Statement) OrderBy(order string) *Statement {
	s.order = order
	return s
}

// GroupBy sets the GROUP BY clause.
func (s *Statement) GroupBy(group string) *Statement {
	s.group = group
	return s
}

// Having sets the HAVING clause.
func (s *Statement) Having(fragment string, args ...interface{}) *Statement {
	if fragment == "" {
		return s
	}
	sql, binds, err := ExpandFragment(fragment, args)
	if err != nil {
		if s.err == nil {
			s.err = err
		}
		return s
	}
	s.having = sql
	s.havingArgs = binds
	return s
}

// Limit sets the row limit. Negative means unlimited.
func (s *Statement) Limit(n int) *Statement {
	s.limit = n
	return s
}

// Offset sets the row offset.
func (s *Statement) Offset(n int) *Statement {
	s.offset = n
	return s
}

// BindValues returns the full bind list in the exact order placeholders
// appear in the built statement: insert/update payload values first (in row
// order), then WHERE binds, then HAVING binds.
func (s *Statement) BindValues() []interface{} {
	var binds []interface{}
	if s.op == opInsert || s.op == opUpdate {
		binds = append(binds, s.row.Values()...)
	}
	binds = append(binds, s.whereArgs...)
	binds = append(binds, s.havingArgs...)
	return binds
}

// SQL renders the statement for the builder's dialect.
func (s *Statement) SQL() (string, error) {
	if s.err != nil {
		return "", s.err
	}
	switch s.op {
	case opSelect:
		return s.selectSQL(), nil
	case opInsert:
		return s.insertSQL(), nil
	case opUpdate:
		return s.updateSQL(), nil
	case opDelete:
		return s.deleteSQL(), nil
	default:
		return "", argErrorf("build", "no operation set: call Select, Insert, Update or Delete first")
	}
}

func (s *Statement) selectSQL() string {
	var b strings.Builder
	b.WriteString("SELECT ")
	if len(s.columns) == 0 {
		b.WriteString("*")
	} else {
		b.WriteString(strings.Join(s.columns, ", "))
	}
	b.WriteString(" FROM ")
	b.WriteString(s.d.QuoteIdentifier(s.table))
	for _, j := range s.joins {
		b.WriteString(" ")
		b.WriteString(j)
	}
	s.writeWhere(&b)
	if s.group != "" {
		b.WriteString(" GROUP BY ")
		b.WriteString(s.group)
	}
	if s.having != "" {
		b.WriteString(" HAVING ")
		b.WriteString(s.having)
	}
	if s.order != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(s.order)
	}
	return s.d.ApplyLimitOffset(b.String(), s.limit, s.offset)
}

func (s *Statement) insertSQL() string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(s.d.QuoteIdentifier(s.table))
	cols := make([]string, len(s.row))
	for i, p := range s.row {
		cols[i] = s.d.QuoteIdentifier(p.Column)
	}
	b.WriteString(" (" + strings.Join(cols, ", ") + ")")
	b.WriteString(" VALUES (" + placeholders(len(s.row)) + ")")
	return b.String()
}

func (s *Statement) updateSQL() string {
	var b strings.Builder
	b.WriteString("UPDATE ")
	b.WriteString(s.d.QuoteIdentifier(s.table))
	b.WriteString(" SET ")
	for i, p := range s.row {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(s.d.QuoteIdentifier(p.Column) + " = ?")
	}
	s.writeWhere(&b)
	return b.String()
}

func (s *Statement) deleteSQL() string {
	var b strings.Builder
	b.WriteString("DELETE FROM ")
	b.WriteString(s.d.QuoteIdentifier(s.table))
	s.writeWhere(&b)
	return b.String()
}

func (s *Statement) writeWhere(b *strings.Builder) {
	if len(s.where) == 0 {
		return
	}
	b.WriteString(" WHERE ")
	b.WriteString(strings.Join(s.where, " AND "))
}
