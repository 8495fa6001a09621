// Package sqlgen compiles condition inputs and assembles parameterized SQL
// statements with an ordered bind-value list.
package sqlgen

import "fmt"

// ArgumentError reports malformed builder input, such as an empty
// insert/update payload or a mismatched placeholder/value count.
type ArgumentError struct {
	Op     string // the builder operation that rejected the input
	Reason string
}

// Error implements the error interface.
func (e *ArgumentError) Error() string {
	return fmt.Sprintf("sqlgen: %s: %s", e.Op, e.Reason)
}

func argErrorf(op, format string, args ...interface{}) *ArgumentError {
	return &ArgumentError{Op: op, Reason: fmt.Sprintf(format, args...)}
}
