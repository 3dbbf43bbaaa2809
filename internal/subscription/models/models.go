// Package models holds the subscription registry's value types.
package models

import (
	"time"

	"beacon/internal/filter"
)

// Descriptor is what a client asks for when registering interest.
type Descriptor struct {
	// Filter is the raw filter as registered. Count queries run against it.
	Filter map[string]any
	// Expand lists relation paths to populate on pushed records, in order.
	Expand []string
	// CountOnly interests receive {count} instead of the record.
	CountOnly bool
}

// Interest is a registered descriptor keyed by (Kind, ID). The ID doubles as the
// realtime room the interest is delivered to.
type Interest struct {
	Kind         string
	ID           string
	Descriptor   Descriptor
	Compiled     filter.Compiled
	RegisteredAt time.Time
}

// Clone returns a copy whose Filter and Expand can be handed out without
// sharing the registry's backing storage.
func (i Interest) Clone() Interest {
	out := i
	out.Descriptor.Filter = cloneMap(i.Descriptor.Filter)
	out.Descriptor.Expand = append([]string(nil), i.Descriptor.Expand...)
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return cloneMap(x)
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
