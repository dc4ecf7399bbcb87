package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/galyarder/galyarder-store/pkg/engine"
	"github.com/galyarder/galyarder-store/pkg/schema"
)

// loadPending reads the mutation log. Caller holds d.mu.
func (d *DataLayer) loadPending() ([]schema.PendingMutation, error) {
	raw, err := d.cache.Get(PendingMutationsKey)
	if errors.Is(err, engine.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read pending log: %w", err)
	}
	var pending []schema.PendingMutation
	if err := json.Unmarshal(raw, &pending); err != nil {
		return nil, fmt.Errorf("decode pending log: %w", err)
	}
	return pending, nil
}

// savePending overwrites the mutation log. Caller holds d.mu.
func (d *DataLayer) savePending(pending []schema.PendingMutation) error {
	if pending == nil {
		pending = []schema.PendingMutation{}
	}
	raw, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("encode pending log: %w", err)
	}
	if err := d.cache.Set(PendingMutationsKey, raw); err != nil {
		return fmt.Errorf("write pending log: %w", err)
	}
	return nil
}

// enqueue appends one mutation to the log. Caller holds d.mu.
func (d *DataLayer) enqueue(table string, op schema.Operation, data schema.Record) error {
	pending, err := d.loadPending()
	if err != nil {
		return err
	}
	pending = append(pending, schema.PendingMutation{
		Table:     table,
		Operation: op,
		Data:      data,
		Timestamp: d.clock.Now().UTC(),
	})
	return d.savePending(pending)
}

// Pending returns the queued mutations in replay order.
func (d *DataLayer) Pending() ([]schema.PendingMutation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	pending, err := d.loadPending()
	if pending == nil {
		pending = []schema.PendingMutation{}
	}
	return pending, err
}

// ReplayPendingMutations pushes the queued mutations to the remote store, one
// at a time in log order. A failed mutation is logged and skipped, never
// retried: after the pass every replayed entry is gone from the log.
// Mutations queued while the pass runs stay for the next one. Concurrent
// calls return immediately with an empty report.
//
// Offline it does nothing and the log is left intact. A pass that loses
// connectivity or whose ctx ends stops early; entries it did not get to stay
// queued.
func (d *DataLayer) ReplayPendingMutations(ctx context.Context) schema.ReplayReport {
	var report schema.ReplayReport
	if !d.Online() {
		return report
	}
	if !d.replaying.CompareAndSwap(false, true) {
		d.logger.Printf("replay already running")
		return report
	}
	defer d.replaying.Store(false)

	d.mu.Lock()
	pending, err := d.loadPending()
	d.mu.Unlock()
	if err != nil {
		d.logger.Printf("replay: %v", err)
		return report
	}
	if len(pending) == 0 {
		return report
	}

	d.logger.Printf("replaying %d pending mutations", len(pending))
	done := 0
	for _, m := range pending {
		if ctx.Err() != nil || !d.Online() {
			d.logger.Printf("replay interrupted, %d mutations stay queued", len(pending)-done)
			break
		}
		err := d.apply(ctx, m)
		if err != nil && ctx.Err() != nil {
			d.logger.Printf("replay interrupted, %d mutations stay queued", len(pending)-done)
			break
		}
		done++
		report.Attempted++
		if err != nil {
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("%s %s/%s: %v", m.Operation, m.Table, m.Data.ID(), err))
			d.logger.Printf("replay %s %s/%s failed, dropping: %v", m.Operation, m.Table, m.Data.ID(), err)
			continue
		}
		report.Succeeded++
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	current, err := d.loadPending()
	if err != nil {
		d.logger.Printf("replay: %v", err)
		return report
	}
	if len(current) > done {
		current = current[done:]
	} else {
		current = nil
	}
	if err := d.savePending(current); err != nil {
		d.logger.Printf("replay: %v", err)
	}

	d.logger.Printf("replay done: %d succeeded, %d failed", report.Succeeded, report.Failed)
	return report
}

func (d *DataLayer) apply(ctx context.Context, m schema.PendingMutation) error {
	id := m.Data.ID()
	switch m.Operation {
	case schema.OpCreate:
		_, err := d.remote.Insert(ctx, m.Table, m.Data)
		return err
	case schema.OpUpdate:
		partial := m.Data.Clone()
		delete(partial, schema.FieldID)
		_, err := d.remote.Update(ctx, m.Table, id, partial)
		return err
	case schema.OpDelete:
		return d.remote.Delete(ctx, m.Table, id)
	default:
		return fmt.Errorf("unknown operation %q", m.Operation)
	}
}
