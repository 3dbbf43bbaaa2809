package filter

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Ref is an identifier in canonical form: lower-case hex for 24-character object
// ids, hyphenated lower-case for UUIDs.
type Ref string

func (r Ref) String() string { return string(r) }

// MarshalJSON keeps refs as plain strings on the wire.
func (r Ref) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(r))
}

var objectIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)

// Layouts accepted for date strings, tried in order. RFC 3339 also accepts
// fractional seconds. Zone-less layouts are read as UTC.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// CoerceDate converts v into a UTC instant. Accepted inputs: time.Time, date
// strings, epoch milliseconds and extended JSON {"$date": ...}.
func CoerceDate(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x.UTC(), nil
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
	case map[string]any:
		if inner, ok := extendedValue(x, "$date"); ok {
			if nested, ok := inner.(map[string]any); ok {
				// {"$date": {"$numberLong": "1700000000000"}}
				if n, ok := extendedValue(nested, "$numberLong"); ok {
					return CoerceDate(json.Number(fmt.Sprint(n)))
				}
			}
			return CoerceDate(inner)
		}
	default:
		if ms, ok := toFloat(v); ok && !math.IsNaN(ms) && !math.IsInf(ms, 0) {
			return time.UnixMilli(int64(ms)).UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %v is not a date", ErrCoercionFailure, v)
}

// CoerceRef converts v into a canonical identifier. Accepted inputs: Ref,
// uuid.UUID, object id or UUID strings, extended JSON {"$oid": ...} and
// populated documents carrying an "_id".
func CoerceRef(v any) (Ref, error) {
	switch x := v.(type) {
	case Ref:
		return x, nil
	case uuid.UUID:
		return Ref(x.String()), nil
	case string:
		s := strings.TrimSpace(x)
		if objectIDPattern.MatchString(s) {
			return Ref(strings.ToLower(s)), nil
		}
		if u, err := uuid.Parse(s); err == nil {
			return Ref(u.String()), nil
		}
	case map[string]any:
		if inner, ok := extendedValue(x, "$oid"); ok {
			return CoerceRef(inner)
		}
		if id, ok := x["_id"]; ok {
			return CoerceRef(id)
		}
	}
	return "", fmt.Errorf("%w: %v is not an identifier", ErrCoercionFailure, v)
}

// extendedValue unwraps single-key extended JSON objects such as {"$oid": "..."}.
func extendedValue(m map[string]any, key string) (any, bool) {
	if len(m) != 1 {
		return nil, false
	}
	v, ok := m[key]
	return v, ok
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
