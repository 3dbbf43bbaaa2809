// Package records reads the records change events refer to: whole records with
// relations expanded for push payloads, and filtered counts for count-only
// interests. Stores live in records/store.
package records

import (
	"fmt"

	"beacon/internal/filter"
	"beacon/internal/schema"
)

// Catalog is the schema capability stores need: field types for typecasting and
// relations for expansion.
type Catalog interface {
	schema.Resolver
	Relation(kind, field string) (string, bool)
}

// CanonicalID turns an identifier value into the key records are stored under.
func CanonicalID(v any) (string, bool) {
	if v == nil {
		return "", false
	}
	if ref, err := filter.CoerceRef(v); err == nil {
		return string(ref), true
	}
	switch x := v.(type) {
	case string:
		if x == "" {
			return "", false
		}
		return x, true
	case map[string]any, []any:
		return "", false
	}
	return fmt.Sprint(v), true
}
