// Package schema defines universal data structures shared by the GalyarderOS data layer,
// the hosted backend and the CLI.
package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

// Reserved record fields.
const (
	FieldID        = "id"
	FieldCreatedAt = "created_at"
	FieldUpdatedAt = "updated_at"
)

// TimeLayout is the timestamp format used for created_at and updated_at.
const TimeLayout = time.RFC3339Nano

// Record is an opaque, table-scoped document. Beyond the three reserved fields
// the data layer never interprets its contents.
type Record map[string]any

// ID returns the record id, or "" when none has been assigned.
func (r Record) ID() string {
	s, _ := r[FieldID].(string)
	return s
}

// CreatedAt returns the raw created_at stamp.
func (r Record) CreatedAt() string {
	s, _ := r[FieldCreatedAt].(string)
	return s
}

// UpdatedAt returns the raw updated_at stamp.
func (r Record) UpdatedAt() string {
	s, _ := r[FieldUpdatedAt].(string)
	return s
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Merge returns a copy of r with every field of partial applied on top.
func (r Record) Merge(partial Record) Record {
	out := r.Clone()
	for k, v := range partial {
		out[k] = v
	}
	return out
}

// Payload returns a copy of the record without the reserved fields.
func (r Record) Payload() Record {
	out := r.Clone()
	delete(out, FieldID)
	delete(out, FieldCreatedAt)
	delete(out, FieldUpdatedAt)
	return out
}

// Stamp formats t the way every record timestamp is stored.
func Stamp(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// Normalize round-trips a value through JSON so that values built in Go
// (int, custom structs) compare equal to values decoded from storage (float64, maps).
func Normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// NormalizeRecord is Normalize for a whole record.
func NormalizeRecord(r Record) (Record, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	var out Record
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return out, nil
}

// Filters is an equality filter: every field must strictly equal its value.
type Filters map[string]any

// Match reports whether r satisfies every condition. Values are compared after
// JSON normalization, so 1 and 1.0 match but "1" and 1 do not.
func (f Filters) Match(r Record) bool {
	for field, want := range f {
		got, ok := r[field]
		if !ok {
			return false
		}
		nw, err := Normalize(want)
		if err != nil {
			return false
		}
		ng, err := Normalize(got)
		if err != nil {
			return false
		}
		if !reflect.DeepEqual(nw, ng) {
			return false
		}
	}
	return true
}

// Apply returns the records matching f, preserving order.
func (f Filters) Apply(records []Record) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

// Expression renders the filters as the realtime filter string:
// sorted "field=eq.value" conditions joined by commas.
func (f Filters) Expression() string {
	if len(f) == 0 {
		return ""
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=eq.%v", k, f[k]))
	}
	return strings.Join(parts, ",")
}

// ParseExpression is the inverse of Expression. Values come back as strings;
// MatchExpression compares them against the textual form of record fields.
func ParseExpression(expr string) (map[string]string, error) {
	out := make(map[string]string)
	if strings.TrimSpace(expr) == "" {
		return out, nil
	}
	for _, part := range strings.Split(expr, ",") {
		field, value, ok := strings.Cut(part, "=eq.")
		if !ok || field == "" {
			return nil, fmt.Errorf("invalid filter condition %q", part)
		}
		out[field] = value
	}
	return out, nil
}

// MatchExpression reports whether r satisfies a parsed realtime filter.
func MatchExpression(conds map[string]string, r Record) bool {
	for field, want := range conds {
		got, ok := r[field]
		if !ok || fmt.Sprintf("%v", got) != want {
			return false
		}
	}
	return true
}
