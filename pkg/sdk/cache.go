package sdk

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/galyarder/galyarder-store/pkg/engine"
	"github.com/galyarder/galyarder-store/pkg/schema"
)

// Table mirror helpers. Callers hold d.mu unless noted.

func (d *DataLayer) loadTable(table string) ([]schema.Record, error) {
	raw, err := d.cache.Get(CacheKey(table))
	if errors.Is(err, engine.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache %s: %w", table, err)
	}

	var records []schema.Record
	if err := json.Unmarshal(raw, &records); err != nil {
		// A corrupt mirror is rebuilt by the next online read.
		d.logger.Printf("cache %s is unreadable, treating as empty: %v", table, err)
		return nil, nil
	}
	return records, nil
}

func (d *DataLayer) saveTable(table string, records []schema.Record) error {
	if records == nil {
		records = []schema.Record{}
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode cache %s: %w", table, err)
	}
	if err := d.cache.Set(CacheKey(table), raw); err != nil {
		return fmt.Errorf("write cache %s: %w", table, err)
	}
	return nil
}

func (d *DataLayer) editTable(table string, fn func([]schema.Record) []schema.Record) error {
	records, err := d.loadTable(table)
	if err != nil {
		return err
	}
	return d.saveTable(table, fn(records))
}

// upsertCached takes d.mu itself.
func (d *DataLayer) upsertCached(table string, rec schema.Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.editTable(table, func(records []schema.Record) []schema.Record {
		return upsert(records, rec)
	})
}

// mirrorRead stores an online result set. By default the mirror is replaced
// wholesale, which drops cached rows outside a filtered read. With
// MergeFilteredReads set, only rows matching the filters are replaced.
// Takes d.mu itself.
func (d *DataLayer) mirrorRead(table string, filters schema.Filters, result []schema.Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.mergeFilteredReads || len(filters) == 0 {
		return d.saveTable(table, result)
	}
	return d.editTable(table, func(records []schema.Record) []schema.Record {
		kept := make([]schema.Record, 0, len(records)+len(result))
		for _, r := range records {
			if !filters.Match(r) {
				kept = append(kept, r)
			}
		}
		for _, r := range result {
			kept = upsert(kept, r)
		}
		return kept
	})
}

// Cached returns the table mirror as stored, without filtering or network access.
func (d *DataLayer) Cached(table string) ([]schema.Record, error) {
	if err := engine.ValidateTable(table); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	records, err := d.loadTable(table)
	if records == nil {
		records = []schema.Record{}
	}
	return records, err
}

func indexOf(records []schema.Record, id string) int {
	for i, r := range records {
		if r.ID() == id {
			return i
		}
	}
	return -1
}

func upsert(records []schema.Record, rec schema.Record) []schema.Record {
	if i := indexOf(records, rec.ID()); i >= 0 {
		records[i] = rec
		return records
	}
	return append(records, rec)
}

func remove(records []schema.Record, id string) []schema.Record {
	out := records[:0]
	for _, r := range records {
		if r.ID() != id {
			out = append(out, r)
		}
	}
	return out
}
