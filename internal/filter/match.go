package filter

import (
	"strings"
	"time"
)

// Matches reports whether record satisfies expr. Both sides are expected to be
// typecast for the same kind.
func Matches(record map[string]any, expr Expr) bool {
	switch e := expr.(type) {
	case And:
		for _, child := range e.Exprs {
			if !Matches(record, child) {
				return false
			}
		}
		return true
	case Or:
		for _, child := range e.Exprs {
			if Matches(record, child) {
				return true
			}
		}
		return false
	case FieldEquals:
		v, ok := Lookup(record, e.Path)
		return ok && Equal(v, e.Value)
	case FieldIn:
		return in(record, e.Path, e.Values)
	case FieldNotIn:
		return !in(record, e.Path, e.Values)
	case FieldExists:
		_, ok := Lookup(record, e.Path)
		return ok == e.Exists
	default:
		// Never and anything unrecognised
		return false
	}
}

func in(record map[string]any, path string, values []any) bool {
	v, ok := Lookup(record, path)
	if !ok {
		return false
	}
	if list, isList := v.([]any); isList {
		for _, elem := range list {
			if contains(values, elem) {
				return true
			}
		}
		return false
	}
	return contains(values, v)
}

func contains(values []any, v any) bool {
	for _, candidate := range values {
		if Equal(candidate, v) {
			return true
		}
	}
	return false
}

// Lookup resolves a dotted path through nested objects. A present null is found.
func Lookup(record map[string]any, path string) (any, bool) {
	if v, ok := record[path]; ok {
		return v, true
	}
	current := record
	parts := strings.Split(path, ".")
	for i, part := range parts {
		v, ok := current[part]
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return v, true
		}
		next, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		current = next
	}
	return nil, false
}

// Equal is deep equality over typecast values: dates compare by instant,
// identifiers by canonical form and numbers by value regardless of their Go type.
// A populated document equals a reference to its _id.
func Equal(a, b any) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case time.Time:
		y, ok := b.(time.Time)
		return ok && x.Equal(y)
	case Ref:
		switch y := b.(type) {
		case Ref:
			return x == y
		case string:
			return string(x) == y
		case map[string]any:
			id, ok := documentRef(y)
			return ok && id == x
		}
		return false
	case string:
		switch y := b.(type) {
		case string:
			return x == y
		case Ref:
			return x == string(y)
		}
		return false
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		if y, ok := b.(Ref); ok {
			id, ok := documentRef(x)
			return ok && id == y
		}
		y, ok := b.(map[string]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, xv := range x {
			yv, ok := y[k]
			if !ok || !Equal(xv, yv) {
				return false
			}
		}
		return true
	}
	if xf, ok := toFloat(a); ok {
		yf, ok := toFloat(b)
		return ok && xf == yf
	}
	return false
}

// documentRef is the canonical _id of a populated document, which compares
// equal to a reference to it.
func documentRef(m map[string]any) (Ref, bool) {
	id, ok := m["_id"]
	if !ok {
		return "", false
	}
	ref, err := CoerceRef(id)
	return ref, err == nil
}
