package sdk_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/galyarder/galyarder-store/pkg/engine"
	"github.com/galyarder/galyarder-store/pkg/schema"
)

// fakeRemote is an in-memory RemoteStore that records every call.
type fakeRemote struct {
	mu     sync.Mutex
	tables map[string][]schema.Record
	calls  []string
	nextID int

	// fail, when set, decides whether a call errors.
	fail func(op, table string, data schema.Record) error

	filters []string
	users   map[string]schema.Credentials
	session *schema.Session
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		tables: make(map[string][]schema.Record),
		users:  make(map[string]schema.Credentials),
	}
}

func (f *fakeRemote) seed(table string, records ...schema.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range records {
		norm, _ := schema.NormalizeRecord(r)
		f.tables[table] = append(f.tables[table], norm)
	}
}

func (f *fakeRemote) rows(table string) []schema.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]schema.Record(nil), f.tables[table]...)
}

func (f *fakeRemote) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRemote) check(op, table string, data schema.Record) error {
	f.calls = append(f.calls, op+" "+table)
	if f.fail != nil {
		return f.fail(op, table, data)
	}
	return nil
}

func (f *fakeRemote) Insert(ctx context.Context, table string, data schema.Record) (schema.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("insert", table, data); err != nil {
		return nil, err
	}
	rec := data.Clone()
	if rec.ID() == "" {
		f.nextID++
		rec[schema.FieldID] = fmt.Sprintf("srv-%d", f.nextID)
	}
	for _, r := range f.tables[table] {
		if r.ID() == rec.ID() {
			return nil, engine.ErrDuplicateID
		}
	}
	now := schema.Stamp(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	if rec.CreatedAt() == "" {
		rec[schema.FieldCreatedAt] = now
	}
	if rec.UpdatedAt() == "" {
		rec[schema.FieldUpdatedAt] = now
	}
	f.tables[table] = append(f.tables[table], rec)
	return rec.Clone(), nil
}

func (f *fakeRemote) Select(ctx context.Context, table string, filters schema.Filters) ([]schema.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("select", table, nil); err != nil {
		return nil, err
	}
	return filters.Apply(f.tables[table]), nil
}

func (f *fakeRemote) Update(ctx context.Context, table, id string, partial schema.Record) (schema.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("update", table, partial); err != nil {
		return nil, err
	}
	for i, r := range f.tables[table] {
		if r.ID() == id {
			f.tables[table][i] = r.Merge(partial)
			return f.tables[table][i].Clone(), nil
		}
	}
	return nil, engine.ErrRecordNotFound
}

func (f *fakeRemote) Delete(ctx context.Context, table, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("delete", table, schema.Record{schema.FieldID: id}); err != nil {
		return err
	}
	rows := f.tables[table][:0]
	for _, r := range f.tables[table] {
		if r.ID() != id {
			rows = append(rows, r)
		}
	}
	f.tables[table] = rows
	return nil
}

func (f *fakeRemote) Subscribe(ctx context.Context, table, filter string, fn func(schema.ChangeEvent)) (engine.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("subscribe", table, nil); err != nil {
		return nil, err
	}
	f.filters = append(f.filters, filter)
	return engine.SubscriptionFunc(func() error { return nil }), nil
}

func (f *fakeRemote) SignUp(ctx context.Context, creds schema.Credentials) (*schema.AuthResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[creds.Email]; ok {
		return nil, &schema.AuthError{Code: schema.AuthUserExists, Message: "email already registered"}
	}
	f.users[creds.Email] = creds
	return f.issue(creds), nil
}

func (f *fakeRemote) SignIn(ctx context.Context, creds schema.Credentials) (*schema.AuthResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	known, ok := f.users[creds.Email]
	if !ok || known.Password != creds.Password {
		return nil, &schema.AuthError{Code: schema.AuthInvalidCredentials, Message: "invalid login credentials"}
	}
	return f.issue(known), nil
}

func (f *fakeRemote) issue(creds schema.Credentials) *schema.AuthResult {
	u := &schema.User{ID: "user-" + creds.Email, Email: creds.Email, DisplayName: creds.DisplayName}
	f.session = &schema.Session{AccessToken: "tok-" + creds.Email, User: u}
	return &schema.AuthResult{User: u, Session: f.session}
}

func (f *fakeRemote) SignOut(ctx context.Context) error {
	f.mu.Lock()
	f.session = nil
	f.mu.Unlock()
	return nil
}

func (f *fakeRemote) CurrentUser(ctx context.Context) (*schema.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("user", "", nil); err != nil {
		return nil, err
	}
	if f.session == nil {
		return nil, &schema.AuthError{Code: schema.AuthNotAuthenticated, Message: "no active session"}
	}
	return f.session.User, nil
}

func (f *fakeRemote) OnAuthStateChange(fn func(schema.AuthEvent)) engine.Subscription {
	return engine.SubscriptionFunc(nil)
}
