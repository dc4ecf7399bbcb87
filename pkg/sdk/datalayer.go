// Package sdk is the local-first data layer GalyarderOS feature modules talk to.
// A DataLayer mirrors CRUD to a hosted backend when online, serves reads from a
// device-local cache when offline, queues offline mutations and replays them
// in order once connectivity returns.
package sdk

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"sync"
	"sync/atomic"

	"github.com/galyarder/galyarder-store/pkg/engine"
	"github.com/galyarder/galyarder-store/pkg/schema"
)

// Options tunes a DataLayer. The zero value is usable.
type Options struct {
	Logger *log.Logger
	Clock  Clock
	IDs    IDGenerator
	// MergeFilteredReads merges the rows of a filtered online read into the
	// table mirror instead of replacing the mirror with them.
	MergeFilteredReads bool
}

// DataLayer is the sync engine between feature modules, the hosted backend
// and the device cache. Construct one per process with New and share it.
type DataLayer struct {
	remote  engine.RemoteStore
	cache   engine.LocalCache
	monitor engine.ConnectivityMonitor

	logger             *log.Logger
	clock              Clock
	ids                IDGenerator
	mergeFilteredReads bool

	// mu guards every read-modify-write of a cache key. Never held across a remote call.
	mu        sync.Mutex
	replaying atomic.Bool

	ctx         context.Context
	cancel      context.CancelFunc
	stopMonitor func()
	closers     []io.Closer
	closeOnce   sync.Once
}

// New wires a DataLayer. remote may be nil for offline-only operation; monitor
// may be nil, in which case the layer is online whenever remote is set.
// The layer replays the pending log on every offline to online transition.
func New(remote engine.RemoteStore, cache engine.LocalCache, monitor engine.ConnectivityMonitor, opts Options) *DataLayer {
	if monitor == nil {
		monitor = NewStaticMonitor(remote != nil)
	}
	d := &DataLayer{
		remote:             remote,
		cache:              cache,
		monitor:            monitor,
		logger:             opts.Logger,
		clock:              opts.Clock,
		ids:                opts.IDs,
		mergeFilteredReads: opts.MergeFilteredReads,
	}
	if d.logger == nil {
		d.logger = log.New(os.Stderr, "[datalayer] ", log.LstdFlags)
	}
	if d.clock == nil {
		d.clock = RealClock{}
	}
	if d.ids == nil {
		d.ids = UUIDGenerator{}
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())

	d.stopMonitor = monitor.Subscribe(func(online bool) {
		if !online {
			d.logger.Printf("connectivity lost, queueing mutations locally")
			return
		}
		d.logger.Printf("connectivity restored")
		d.ReplayPendingMutations(d.ctx)
	})
	return d
}

// Online reports whether calls will be attempted against the remote store.
func (d *DataLayer) Online() bool {
	return d.remote != nil && d.monitor.Online()
}

// Own registers resources to release on Close.
func (d *DataLayer) Own(c ...io.Closer) {
	d.closers = append(d.closers, c...)
}

// Close stops listening for connectivity changes and releases owned resources.
func (d *DataLayer) Close() error {
	var errs []error
	d.closeOnce.Do(func() {
		d.stopMonitor()
		d.cancel()
		for i := len(d.closers) - 1; i >= 0; i-- {
			if err := d.closers[i].Close(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

// Create inserts data into table. Offline, or when the remote insert fails,
// the record gets a local id and timestamps, lands in the cache and is queued.
func (d *DataLayer) Create(ctx context.Context, table string, data schema.Record) (schema.Record, error) {
	if err := engine.ValidateTable(table); err != nil {
		return nil, err
	}
	data, err := schema.NormalizeRecord(data)
	if err != nil {
		return nil, err
	}

	if d.Online() {
		rec, err := d.remote.Insert(ctx, table, data)
		if err == nil {
			if err := d.upsertCached(table, rec); err != nil {
				d.logger.Printf("create %s: cache write failed: %v", table, err)
			}
			return rec, nil
		}
		d.logger.Printf("create %s: remote failed, storing locally: %v", table, err)
	}

	now := schema.Stamp(d.clock.Now())
	rec := data.Clone()
	if rec.ID() == "" {
		rec[schema.FieldID] = d.ids.NewID()
	}
	rec[schema.FieldCreatedAt] = now
	rec[schema.FieldUpdatedAt] = now

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.editTable(table, func(records []schema.Record) []schema.Record {
		return upsert(records, rec)
	}); err != nil {
		return nil, err
	}
	if err := d.enqueue(table, schema.OpCreate, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Read returns the records of table matching filters. Online results replace
// the table mirror; offline the mirror is filtered locally. Remote failures
// are never surfaced.
func (d *DataLayer) Read(ctx context.Context, table string, filters schema.Filters) ([]schema.Record, error) {
	if err := engine.ValidateTable(table); err != nil {
		return nil, err
	}

	if d.Online() {
		records, err := d.remote.Select(ctx, table, filters)
		if err == nil {
			if records == nil {
				records = []schema.Record{}
			}
			if err := d.mirrorRead(table, filters, records); err != nil {
				d.logger.Printf("read %s: cache write failed: %v", table, err)
			}
			return records, nil
		}
		d.logger.Printf("read %s: remote failed, serving cache: %v", table, err)
	}

	d.mu.Lock()
	records, err := d.loadTable(table)
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return filters.Apply(records), nil
}

// Update patches the record with id. Offline it patches the cached copy and
// queues the merged record; a record missing from the cache yields ErrNotCached.
func (d *DataLayer) Update(ctx context.Context, table, id string, partial schema.Record) (schema.Record, error) {
	if err := engine.ValidateTable(table); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, engine.ErrInvalidID
	}
	partial, err := schema.NormalizeRecord(partial)
	if err != nil {
		return nil, err
	}
	if partial == nil {
		partial = schema.Record{}
	}
	delete(partial, schema.FieldID)
	delete(partial, schema.FieldCreatedAt)
	partial[schema.FieldUpdatedAt] = schema.Stamp(d.clock.Now())

	if d.Online() {
		rec, err := d.remote.Update(ctx, table, id, partial)
		if err == nil {
			if err := d.upsertCached(table, rec); err != nil {
				d.logger.Printf("update %s/%s: cache write failed: %v", table, id, err)
			}
			return rec, nil
		}
		d.logger.Printf("update %s/%s: remote failed, patching locally: %v", table, id, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	records, err := d.loadTable(table)
	if err != nil {
		return nil, err
	}
	idx := indexOf(records, id)
	if idx < 0 {
		return nil, ErrNotCached
	}
	merged := records[idx].Merge(partial)
	records[idx] = merged
	if err := d.saveTable(table, records); err != nil {
		return nil, err
	}
	if err := d.enqueue(table, schema.OpUpdate, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// Delete removes the record with id. It is idempotent and reports true
// whether or not the record existed.
func (d *DataLayer) Delete(ctx context.Context, table, id string) (bool, error) {
	if err := engine.ValidateTable(table); err != nil {
		return false, err
	}
	if id == "" {
		return false, engine.ErrInvalidID
	}

	if d.Online() {
		err := d.remote.Delete(ctx, table, id)
		if err == nil {
			d.mu.Lock()
			err := d.editTable(table, func(records []schema.Record) []schema.Record {
				return remove(records, id)
			})
			d.mu.Unlock()
			if err != nil {
				d.logger.Printf("delete %s/%s: cache write failed: %v", table, id, err)
			}
			return true, nil
		}
		d.logger.Printf("delete %s/%s: remote failed, deleting locally: %v", table, id, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.editTable(table, func(records []schema.Record) []schema.Record {
		return remove(records, id)
	}); err != nil {
		return false, err
	}
	if err := d.enqueue(table, schema.OpDelete, schema.Record{schema.FieldID: id}); err != nil {
		return false, err
	}
	return true, nil
}

// Subscribe opens a change feed for table. It returns a nil Subscription when
// offline or when the remote refuses; there is no polling fallback.
func (d *DataLayer) Subscribe(ctx context.Context, table string, fn func(schema.ChangeEvent), filters schema.Filters) (engine.Subscription, error) {
	if err := engine.ValidateTable(table); err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, errors.New("subscribe: nil callback")
	}
	if !d.Online() {
		return nil, nil
	}

	sub, err := d.remote.Subscribe(ctx, table, filters.Expression(), fn)
	if err != nil {
		d.logger.Printf("subscribe %s: %v", table, err)
		return nil, nil
	}
	return sub, nil
}
