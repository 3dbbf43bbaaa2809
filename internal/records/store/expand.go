package store

import (
	"context"
	"strings"

	"beacon/internal/records"
)

// loadFunc fetches records of kind by canonical id. Missing ids are absent from
// the result.
type loadFunc func(ctx context.Context, kind string, ids []string) (map[string]map[string]any, error)

// expand populates each dotted relation path of record in place. record must be
// a private copy. A path like "doctor.practice" replaces the doctor id with the
// doctor record, then that record's practice id with the practice record.
// Ids that cannot be loaded are left as they are.
func expand(ctx context.Context, catalog records.Catalog, load loadFunc, kind string, record map[string]any, paths []string) error {
	for _, path := range paths {
		segments := strings.Split(path, ".")
		if err := expandPath(ctx, catalog, load, kind, []map[string]any{record}, segments); err != nil {
			return err
		}
	}
	return nil
}

func expandPath(ctx context.Context, catalog records.Catalog, load loadFunc, kind string, docs []map[string]any, segments []string) error {
	if len(segments) == 0 || len(docs) == 0 {
		return nil
	}
	field := segments[0]
	refKind, ok := catalog.Relation(kind, field)
	if !ok {
		return nil
	}

	// collect ids still to load; already populated values are followed as is
	var ids []string
	seen := make(map[string]struct{})
	collect := func(v any) {
		if _, populated := v.(map[string]any); populated {
			return
		}
		if id, ok := records.CanonicalID(v); ok {
			if _, dup := seen[id]; !dup {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	for _, doc := range docs {
		switch v := doc[field].(type) {
		case []any:
			for _, e := range v {
				collect(e)
			}
		default:
			collect(v)
		}
	}

	var loaded map[string]map[string]any
	if len(ids) > 0 {
		var err error
		loaded, err = load(ctx, refKind, ids)
		if err != nil {
			return err
		}
	}

	var next []map[string]any
	resolve := func(v any) any {
		if m, populated := v.(map[string]any); populated {
			next = append(next, m)
			return m
		}
		id, ok := records.CanonicalID(v)
		if !ok {
			return v
		}
		rec, ok := loaded[id]
		if !ok {
			return v
		}
		cp := cloneRecord(rec)
		next = append(next, cp)
		return cp
	}
	for _, doc := range docs {
		value, present := doc[field]
		if !present {
			continue
		}
		switch v := value.(type) {
		case []any:
			out := make([]any, len(v))
			for i, e := range v {
				out[i] = resolve(e)
			}
			doc[field] = out
		default:
			doc[field] = resolve(v)
		}
	}
	return expandPath(ctx, catalog, load, refKind, next, segments[1:])
}

func cloneRecord(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return cloneRecord(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
