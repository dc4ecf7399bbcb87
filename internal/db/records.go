package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/galyarder/galyarder-store/pkg/engine"
	"github.com/galyarder/galyarder-store/pkg/schema"
)

var _ engine.TableStore = (*DB)(nil)

// Insert stores data in table. A caller-supplied id and timestamps are kept,
// so records created offline keep their identity when replayed.
func (db *DB) Insert(ctx context.Context, table string, data schema.Record) (schema.Record, error) {
	if err := engine.ValidateTable(table); err != nil {
		return nil, err
	}

	rec := data.Clone()
	if rec.ID() == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, err
		}
		rec[schema.FieldID] = id.String()
	}
	now := db.stamp()
	if rec.CreatedAt() == "" {
		rec[schema.FieldCreatedAt] = now
	}
	if rec.UpdatedAt() == "" {
		rec[schema.FieldUpdatedAt] = rec.CreatedAt()
	}

	doc, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}

	res, err := db.conn.ExecContext(ctx, `
	INSERT INTO records (tbl, id, data, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(tbl, id) DO NOTHING
	`, table, rec.ID(), string(doc), rec.CreatedAt(), rec.UpdatedAt())
	if err != nil {
		return nil, fmt.Errorf("failed to insert record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, engine.ErrDuplicateID
	}
	return schema.NormalizeRecord(rec)
}

// Get returns one record, or engine.ErrRecordNotFound.
func (db *DB) Get(ctx context.Context, table, id string) (schema.Record, error) {
	return getRecord(ctx, db.conn, table, id)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getRecord(ctx context.Context, q querier, table, id string) (schema.Record, error) {
	var doc string
	err := q.QueryRowContext(ctx, `SELECT data FROM records WHERE tbl = ? AND id = ?`, table, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load record: %w", err)
	}
	var rec schema.Record
	if err := json.Unmarshal([]byte(doc), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode record %s/%s: %w", table, id, err)
	}
	return rec, nil
}

// Select returns the rows of table matching filters in creation order.
func (db *DB) Select(ctx context.Context, table string, filters schema.Filters) ([]schema.Record, error) {
	if err := engine.ValidateTable(table); err != nil {
		return nil, err
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT data FROM records WHERE tbl = ? ORDER BY created_at, id`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	out := []schema.Record{}
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		var rec schema.Record
		if err := json.Unmarshal([]byte(doc), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode record: %w", err)
		}
		if filters.Match(rec) {
			out = append(out, rec)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return out, nil
}

// Update merges partial into the stored record. id and created_at cannot be
// changed; updated_at is stamped unless the caller supplies it.
func (db *DB) Update(ctx context.Context, table, id string, partial schema.Record) (schema.Record, error) {
	rec, _, err := db.UpdateReturningPrevious(ctx, table, id, partial)
	return rec, err
}

// UpdateReturningPrevious is Update that also hands back the row as it was.
func (db *DB) UpdateReturningPrevious(ctx context.Context, table, id string, partial schema.Record) (schema.Record, schema.Record, error) {
	if err := engine.ValidateTable(table); err != nil {
		return nil, nil, err
	}
	if id == "" {
		return nil, nil, engine.ErrInvalidID
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	old, err := getRecord(ctx, tx, table, id)
	if err != nil {
		return nil, nil, err
	}

	patch := partial.Clone()
	delete(patch, schema.FieldID)
	delete(patch, schema.FieldCreatedAt)
	if _, ok := patch[schema.FieldUpdatedAt]; !ok {
		patch[schema.FieldUpdatedAt] = db.stamp()
	}
	rec, err := schema.NormalizeRecord(old.Merge(patch))
	if err != nil {
		return nil, nil, err
	}

	doc, err := json.Marshal(rec)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE records SET data = ?, updated_at = ? WHERE tbl = ? AND id = ?`,
		string(doc), rec.UpdatedAt(), table, id); err != nil {
		return nil, nil, fmt.Errorf("failed to update record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit update: %w", err)
	}
	return rec, old, nil
}

// Delete removes the record. Deleting a missing record is not an error.
func (db *DB) Delete(ctx context.Context, table, id string) error {
	_, err := db.DeleteReturningPrevious(ctx, table, id)
	return err
}

// DeleteReturningPrevious deletes the record and returns it, or nil when it
// did not exist.
func (db *DB) DeleteReturningPrevious(ctx context.Context, table, id string) (schema.Record, error) {
	if err := engine.ValidateTable(table); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, engine.ErrInvalidID
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	old, err := getRecord(ctx, tx, table, id)
	if errors.Is(err, engine.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE tbl = ? AND id = ?`, table, id); err != nil {
		return nil, fmt.Errorf("failed to delete record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit delete: %w", err)
	}
	return old, nil
}

// Tables lists every table holding at least one record.
func (db *DB) Tables(ctx context.Context) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT DISTINCT tbl FROM records ORDER BY tbl`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
