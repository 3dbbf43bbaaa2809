package filter

import (
	"fmt"
	"strings"

	"beacon/internal/schema"
	dErrors "beacon/pkg/domain-errors"
)

const (
	opAnd    = "$and"
	opOr     = "$or"
	opIn     = "$in"
	opNotIn  = "$nin"
	opExists = "$exists"
)

// CoercionHook observes values that could not be coerced and were kept raw.
type CoercionHook func(kind, path string, err error)

// Typecaster rewrites filters and record payloads so that comparison values carry
// the semantic type of their field.
type Typecaster struct {
	resolver schema.Resolver
	onFail   CoercionHook
}

// TypecasterOption configures a Typecaster.
type TypecasterOption func(*Typecaster)

// WithCoercionHook reports per-value coercion failures, which are otherwise silent.
func WithCoercionHook(h CoercionHook) TypecasterOption {
	return func(t *Typecaster) {
		t.onFail = h
	}
}

// NewTypecaster constructs a Typecaster over the field types resolver reports.
func NewTypecaster(resolver schema.Resolver, opts ...TypecasterOption) *Typecaster {
	t := &Typecaster{resolver: resolver}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Filter typecasts a subscription filter. Keys that do not resolve for kind are
// rejected with ErrUnknownField. The input is not mutated.
func (t *Typecaster) Filter(kind string, raw map[string]any) (map[string]any, error) {
	out, err := t.cast(kind, raw)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid filter")
	}
	return out, nil
}

// Record typecasts change-event data. Sub-documents are walked and each leaf is
// typed by its full dotted path, so nested fields get the same representation a
// filter on that path gets. Populated references stay documents with a
// canonical _id. Fields the schema does not list pass through unchanged. The
// input is not mutated.
func (t *Typecaster) Record(kind string, raw map[string]any) (map[string]any, error) {
	if raw == nil {
		return nil, nil
	}
	return t.castDocument(kind, "", raw), nil
}

func (t *Typecaster) cast(kind string, expr map[string]any) (map[string]any, error) {
	if expr == nil {
		return nil, nil
	}
	out := make(map[string]any, len(expr))
	for key, value := range expr {
		switch {
		case key == opAnd || key == opOr:
			list, ok := value.([]any)
			if !ok {
				return nil, fmt.Errorf("%w: %s expects a list, got %T", ErrInvalidOperatorShape, key, value)
			}
			cast := make([]any, len(list))
			for i, elem := range list {
				sub, ok := elem.(map[string]any)
				if !ok {
					cast[i] = elem
					continue
				}
				c, err := t.cast(kind, sub)
				if err != nil {
					return nil, err
				}
				cast[i] = c
			}
			out[key] = cast
		case strings.HasPrefix(key, "$"):
			out[key] = value
		default:
			field, ok := t.resolve(kind, key)
			if !ok {
				return nil, fmt.Errorf("%w: %q on %s", ErrUnknownField, key, kind)
			}
			out[key] = t.castField(kind, key, field, value)
		}
	}
	return out, nil
}

// resolve types a dotted path. A path below a reference field addresses the
// populated document: _id and id keep the reference, other sub-paths are typed
// against the referenced kind when it lists them and are plain values otherwise.
func (t *Typecaster) resolve(kind, path string) (schema.Field, bool) {
	root, rest, dotted := strings.Cut(path, ".")
	if !dotted {
		return t.resolver.Resolve(kind, path)
	}
	rootField, ok := t.resolver.Resolve(kind, root)
	if !ok || rootField.Type != schema.TypeReference {
		return t.resolver.Resolve(kind, path)
	}
	if rest == "_id" || rest == "id" {
		return rootField, true
	}
	if rootField.Ref != "" {
		if f, ok := t.resolve(rootField.Ref, rest); ok {
			return f, true
		}
	}
	return schema.Field{Type: schema.TypeScalar}, true
}

func (t *Typecaster) castDocument(kind, prefix string, doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for key, value := range doc {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		out[key] = t.castRecordValue(kind, path, value)
	}
	return out
}

func (t *Typecaster) castRecordValue(kind, path string, value any) any {
	switch v := value.(type) {
	case map[string]any:
		if !isExtendedJSON(v) {
			return t.castDocument(kind, path, v)
		}
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			out[i] = t.castRecordValue(kind, path, elem)
		}
		return out
	}
	field, ok := t.resolve(kind, path)
	if !ok {
		return value
	}
	coerce := coercerFor(field)
	if coerce == nil {
		return value
	}
	return t.coerceValue(kind, path, coerce, value)
}

func coercerFor(field schema.Field) func(any) (any, error) {
	switch field.Type {
	case schema.TypeDate:
		return func(v any) (any, error) { return CoerceDate(v) }
	case schema.TypeReference:
		return func(v any) (any, error) { return CoerceRef(v) }
	}
	return nil
}

// coerceValue keeps v raw when it cannot be coerced.
func (t *Typecaster) coerceValue(kind, path string, coerce func(any) (any, error), v any) any {
	c, err := coerce(v)
	if err != nil {
		if t.onFail != nil {
			t.onFail(kind, path, err)
		}
		return v
	}
	return c
}

func (t *Typecaster) castField(kind, path string, field schema.Field, value any) any {
	coerce := coercerFor(field)
	if coerce == nil {
		return value
	}
	each := func(v any) any {
		list, ok := v.([]any)
		if !ok {
			return t.coerceValue(kind, path, coerce, v)
		}
		cast := make([]any, len(list))
		for i, elem := range list {
			cast[i] = t.coerceValue(kind, path, coerce, elem)
		}
		return cast
	}

	m, ok := value.(map[string]any)
	if !ok || !isOperatorMap(m) {
		return each(value)
	}
	out := make(map[string]any, len(m))
	for op, operand := range m {
		switch op {
		case opExists:
			out[op] = operand
		case opIn, opNotIn:
			if _, isList := operand.([]any); !isList {
				// shape is reported by Parse
				out[op] = operand
				continue
			}
			out[op] = each(operand)
		default:
			out[op] = each(operand)
		}
	}
	return out
}

// isExtendedJSON reports whether m is a {"$date": ...} or {"$oid": ...} value.
func isExtendedJSON(m map[string]any) bool {
	if _, ok := extendedValue(m, "$date"); ok {
		return true
	}
	_, ok := extendedValue(m, "$oid")
	return ok
}

// isOperatorMap reports whether m is an operator mapping rather than a plain
// object value. Extended JSON wrappers are values.
func isOperatorMap(m map[string]any) bool {
	if isExtendedJSON(m) {
		return false
	}
	for k := range m {
		if strings.HasPrefix(k, "$") {
			return true
		}
	}
	return false
}
