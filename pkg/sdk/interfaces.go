package sdk

import (
	"context"
	"errors"

	"github.com/galyarder/galyarder-store/pkg/engine"
	"github.com/galyarder/galyarder-store/pkg/schema"
)

var (
	// ErrNotCached is returned by an offline Update when the record is not in the local cache.
	ErrNotCached = errors.New("record not found in local cache")
	// ErrNoRemote is returned by auth calls when the data layer has no remote store.
	ErrNoRemote = errors.New("no remote store configured")
)

// Reserved cache keys.
const (
	// CachePrefix namespaces every table mirror in the local cache.
	CachePrefix = "galyarder_"
	// PendingMutationsKey holds the JSON array of queued offline mutations.
	PendingMutationsKey = "galyarder_pending_mutations"
	// SessionKey holds the last known auth session.
	SessionKey = "galyarder_session"
)

// CacheKey returns the local cache key mirroring table.
func CacheKey(table string) string {
	return CachePrefix + table
}

// --- Functional Interfaces (Interface Segregation) ---

// RecordReader reads records from a table.
type RecordReader interface {
	Read(ctx context.Context, table string, filters schema.Filters) ([]schema.Record, error)
}

// RecordWriter creates, patches and deletes records.
type RecordWriter interface {
	Create(ctx context.Context, table string, data schema.Record) (schema.Record, error)
	Update(ctx context.Context, table, id string, partial schema.Record) (schema.Record, error)
	Delete(ctx context.Context, table, id string) (bool, error)
}

// Subscriber opens realtime change feeds.
type Subscriber interface {
	Subscribe(ctx context.Context, table string, fn func(schema.ChangeEvent), filters schema.Filters) (engine.Subscription, error)
}

// Syncer exposes the offline queue.
type Syncer interface {
	Pending() ([]schema.PendingMutation, error)
	ReplayPendingMutations(ctx context.Context) schema.ReplayReport
}

// --- Composite Interfaces ---

// DataStore is everything a GalyarderOS feature module needs from the data layer.
type DataStore interface {
	RecordReader
	RecordWriter
	Subscriber
	Syncer
	engine.Authenticator
}

var _ DataStore = (*DataLayer)(nil)
