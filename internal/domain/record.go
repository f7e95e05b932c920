package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Provider names.
const (
	ProviderEx = "ex"
	ProviderJM = "jm"
)

// IsProvider reports whether name is a supported provider.
func IsProvider(name string) bool {
	return name == ProviderEx || name == ProviderJM
}

// Record is a provider-agnostic gallery entry. Keys follow the upstream
// payload (gid/title for ex, id/name for jm).
type Record map[string]any

// ID returns the stable identifier of the record as a string.
// ex records use "gid", jm records use "id".
func (r Record) ID() string {
	for _, key := range []string{"id", "gid"} {
		if v, ok := r[key]; ok && v != nil {
			return Stringify(v)
		}
	}

	return ""
}

// Title returns the display title of the record.
func (r Record) Title() string {
	if s, ok := r["title"].(string); ok && s != "" {
		return s
	}
	if s, ok := r["name"].(string); ok {
		return s
	}

	return ""
}

// Tags returns the tag list as strings. Non-string entries are skipped.
func (r Record) Tags() []string {
	switch v := r["tags"].(type) {
	case []string:
		return v
	case []any:
		tags := make([]string, 0, len(v))
		for _, t := range v {
			if s, ok := t.(string); ok {
				tags = append(tags, s)
			}
		}
		return tags
	default:
		return nil
	}
}

// Int returns a numeric attribute, tolerating strings and floats.
// Missing or malformed values yield 0.
func (r Record) Int(key string) int64 {
	return ToInt(r[key])
}

// Clone returns a shallow copy. Nested maps and slices are shared, which is
// fine because records are replaced wholesale, never mutated in place.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}

	return out
}

// Merge returns a copy of r with fields layered on top.
func (r Record) Merge(fields map[string]any) Record {
	out := r.Clone()
	for k, v := range fields {
		out[k] = v
	}

	return out
}

// Snapshot is the ordered record list of one provider.
type Snapshot []Record

// Index builds an id -> position lookup.
func (s Snapshot) Index() map[string]int {
	idx := make(map[string]int, len(s))
	for i, r := range s {
		if id := r.ID(); id != "" {
			if _, seen := idx[id]; !seen {
				idx[id] = i
			}
		}
	}

	return idx
}

// ToInt converts loosely typed JSON numbers to int64.
func ToInt(v any) int64 {
	switch n := v.(type) {
	case nil:
		return 0
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case uint64:
		return int64(n)
	case float64:
		return int64(n)
	case float32:
		return int64(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		f, err := n.Float64()
		if err != nil {
			return 0
		}
		return int64(f)
	case string:
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return i
		}
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0
		}
		return int64(f)
	default:
		return 0
	}
}

// Stringify renders an identifier-like JSON value as a string.
func Stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatInt(int64(s), 10)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case json.Number:
		return s.String()
	default:
		return fmt.Sprint(v)
	}
}
