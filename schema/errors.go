package schema

import "fmt"

// RelationshipError reports a reference to an unknown relationship name in a
// joins or include option.
type RelationshipError struct {
	EntityType   string
	Relationship string
}

// Error implements the error interface.
func (e *RelationshipError) Error() string {
	return fmt.Sprintf("schema: entity %s declares no relationship %q", e.EntityType, e.Relationship)
}
