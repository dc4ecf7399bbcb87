// Package engine defines the contracts between the GalyarderOS data layer and
// its backing stores.
package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/galyarder/galyarder-store/pkg/schema"
)

var (
	// ErrKeyNotFound is returned by a LocalCache when a key has never been written.
	ErrKeyNotFound = errors.New("key not found")
	// ErrRecordNotFound is returned by a remote store when no row has the requested id.
	ErrRecordNotFound = errors.New("record not found")
	// ErrDuplicateID is returned when an insert reuses an id already present in the table.
	ErrDuplicateID = errors.New("duplicate record id")
	// ErrInvalidTable is returned for empty or malformed table names.
	ErrInvalidTable = errors.New("invalid table name")
	// ErrInvalidID is returned for an empty record id.
	ErrInvalidID = errors.New("invalid record id")
)

// ValidateTable checks a table name before it is used in a cache key or a URL.
func ValidateTable(table string) error {
	if table == "" {
		return ErrInvalidTable
	}
	if strings.ContainsAny(table, "/\\ \t\n?#") {
		return ErrInvalidTable
	}
	return nil
}

// --- Leaf contracts ---

// LocalCache is device-scoped key/value storage of JSON blobs that survives
// restarts. Reads and writes are synchronous.
type LocalCache interface {
	// Get returns the blob under key, or ErrKeyNotFound.
	Get(key string) ([]byte, error)
	// Set overwrites the blob under key.
	Set(key string, val []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error
	// Keys lists every key currently stored.
	Keys() ([]string, error)
}

// TableStore is row-level CRUD by table with equality filtering.
// Both the hosted backend's database and the network client implement it.
type TableStore interface {
	// Insert stores data and returns the full record with id and timestamps.
	Insert(ctx context.Context, table string, data schema.Record) (schema.Record, error)
	// Select returns every record matching filters.
	Select(ctx context.Context, table string, filters schema.Filters) ([]schema.Record, error)
	// Update merges partial into the record with id and returns the result.
	Update(ctx context.Context, table, id string, partial schema.Record) (schema.Record, error)
	// Delete removes the record with id. Missing ids are not an error.
	Delete(ctx context.Context, table, id string) error
}

// Subscription is a cancelable push channel.
type Subscription interface {
	Unsubscribe() error
}

// Notifier delivers change notifications for a table. filter is the
// comma-joined "field=eq.value" expression, or "" for the whole table.
type Notifier interface {
	Subscribe(ctx context.Context, table, filter string, fn func(schema.ChangeEvent)) (Subscription, error)
}

// Authenticator is the session-holding auth surface of the hosted backend.
type Authenticator interface {
	SignUp(ctx context.Context, creds schema.Credentials) (*schema.AuthResult, error)
	SignIn(ctx context.Context, creds schema.Credentials) (*schema.AuthResult, error)
	SignOut(ctx context.Context) error
	CurrentUser(ctx context.Context) (*schema.User, error)
	// OnAuthStateChange registers fn for sign-in/sign-out transitions.
	OnAuthStateChange(fn func(schema.AuthEvent)) Subscription
}

// RemoteStore is the hosted backend as seen from a device.
type RemoteStore interface {
	TableStore
	Notifier
	Authenticator
}

// ConnectivityMonitor reports online status and transitions.
type ConnectivityMonitor interface {
	// Online reports the last known status.
	Online() bool
	// Subscribe registers fn for every online/offline transition.
	// The returned func cancels the registration.
	Subscribe(fn func(online bool)) (cancel func())
}

// SubscriptionFunc adapts a plain func to Subscription.
type SubscriptionFunc func() error

// Unsubscribe calls f.
func (f SubscriptionFunc) Unsubscribe() error {
	if f == nil {
		return nil
	}
	return f()
}
