package sdk

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/galyarder/galyarder-store/pkg/schema"
)

// --- Generics Support ---
//
// Tables are schema-free; these helpers give a feature module a typed view of
// one table by round-tripping through JSON. Struct fields map to record fields
// by their json tags.

// Create stores val in table and returns the stored row as a T.
func Create[T any](ctx context.Context, s RecordWriter, table string, val T) (T, error) {
	var target T
	rec, err := ToRecord(val)
	if err != nil {
		return target, err
	}
	out, err := s.Create(ctx, table, rec)
	if err != nil {
		return target, err
	}
	return FromRecord[T](out)
}

// Read returns the rows of table matching filters, decoded into T.
func Read[T any](ctx context.Context, s RecordReader, table string, filters schema.Filters) ([]T, error) {
	records, err := s.Read(ctx, table, filters)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(records))
	for _, r := range records {
		v, err := FromRecord[T](r)
		if err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", table, r.ID(), err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Update patches the row with id and returns it as a T. partial may be a
// schema.Record, a map or a struct; zero-valued struct fields without
// omitempty are sent too.
func Update[T any](ctx context.Context, s RecordWriter, table, id string, partial any) (T, error) {
	var target T
	rec, err := ToRecord(partial)
	if err != nil {
		return target, err
	}
	out, err := s.Update(ctx, table, id, rec)
	if err != nil {
		return target, err
	}
	return FromRecord[T](out)
}

// ToRecord converts a struct or map into a Record.
func ToRecord(val any) (schema.Record, error) {
	if r, ok := val.(schema.Record); ok {
		return r, nil
	}
	bytes, err := json.Marshal(val)
	if err != nil {
		return nil, err
	}
	var rec schema.Record
	if err := json.Unmarshal(bytes, &rec); err != nil {
		return nil, fmt.Errorf("value is not an object: %w", err)
	}
	return rec, nil
}

// FromRecord decodes a Record into T.
func FromRecord[T any](r schema.Record) (T, error) {
	var target T

	// If it's already the right type, just return it
	if v, ok := any(r).(T); ok {
		return v, nil
	}

	bytes, err := json.Marshal(r)
	if err != nil {
		return target, err
	}
	err = json.Unmarshal(bytes, &target)
	return target, err
}
