package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/galyarder/galyarder-store/pkg/engine"
	"github.com/galyarder/galyarder-store/pkg/schema"
)

func unavailable() *schema.AuthError {
	return &schema.AuthError{Code: schema.AuthUnavailable, Message: ErrNoRemote.Error()}
}

// asAuthError makes sure every auth failure reaching the caller is structured.
func asAuthError(err error) error {
	if err == nil {
		return nil
	}
	var ae *schema.AuthError
	if errors.As(err, &ae) {
		return ae
	}
	return &schema.AuthError{Code: schema.AuthUnavailable, Message: err.Error()}
}

// SignUp registers an account and provisions its profile record.
func (d *DataLayer) SignUp(ctx context.Context, creds schema.Credentials) (*schema.AuthResult, error) {
	if d.remote == nil {
		return nil, unavailable()
	}
	res, err := d.remote.SignUp(ctx, creds)
	if err != nil {
		return nil, asAuthError(err)
	}
	d.rememberSession(res.Session)
	if res.User != nil {
		d.ensureProfile(ctx, res.User, creds.DisplayName)
	}
	return res, nil
}

// SignIn passes through to the remote store and remembers the session.
func (d *DataLayer) SignIn(ctx context.Context, creds schema.Credentials) (*schema.AuthResult, error) {
	if d.remote == nil {
		return nil, unavailable()
	}
	res, err := d.remote.SignIn(ctx, creds)
	if err != nil {
		return nil, asAuthError(err)
	}
	d.rememberSession(res.Session)
	return res, nil
}

// SignOut ends the remote session. The remembered session is dropped even
// when the remote call fails.
func (d *DataLayer) SignOut(ctx context.Context) error {
	d.rememberSession(nil)
	if d.remote == nil {
		return nil
	}
	return asAuthError(d.remote.SignOut(ctx))
}

// CurrentUser asks the remote store who is signed in. Offline it answers from
// the remembered session.
func (d *DataLayer) CurrentUser(ctx context.Context) (*schema.User, error) {
	if d.Online() {
		u, err := d.remote.CurrentUser(ctx)
		if err == nil {
			return u, nil
		}
		var ae *schema.AuthError
		if errors.As(err, &ae) && ae.Code == schema.AuthNotAuthenticated {
			return nil, ae
		}
		d.logger.Printf("current user: remote failed, using remembered session: %v", err)
	}

	s, err := d.Session()
	if err != nil {
		return nil, err
	}
	if s == nil || s.User == nil || s.Expired(d.clock.Now()) {
		return nil, &schema.AuthError{Code: schema.AuthNotAuthenticated, Message: "no active session"}
	}
	return s.User, nil
}

// OnAuthStateChange registers fn with the remote store.
func (d *DataLayer) OnAuthStateChange(fn func(schema.AuthEvent)) engine.Subscription {
	if d.remote == nil {
		return engine.SubscriptionFunc(nil)
	}
	return d.remote.OnAuthStateChange(fn)
}

// Session returns the remembered session, or nil.
func (d *DataLayer) Session() (*schema.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	raw, err := d.cache.Get(SessionKey)
	if errors.Is(err, engine.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	var s schema.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}

func (d *DataLayer) rememberSession(s *schema.Session) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if s == nil {
		if err := d.cache.Delete(SessionKey); err != nil {
			d.logger.Printf("forget session: %v", err)
		}
		return
	}
	raw, err := json.Marshal(s)
	if err != nil {
		d.logger.Printf("encode session: %v", err)
		return
	}
	if err := d.cache.Set(SessionKey, raw); err != nil {
		d.logger.Printf("remember session: %v", err)
	}
}

// ensureProfile creates the user's profile record unless one already exists.
// Failures are logged; sign-up itself has already succeeded.
func (d *DataLayer) ensureProfile(ctx context.Context, u *schema.User, displayName string) {
	existing, err := d.Read(ctx, schema.ProfilesTable, schema.Filters{"user_id": u.ID})
	if err != nil {
		d.logger.Printf("profile lookup for %s: %v", u.ID, err)
		return
	}
	if len(existing) > 0 {
		return
	}

	if displayName == "" {
		displayName = u.DisplayName
	}
	profile := schema.Record{
		"user_id":      u.ID,
		"email":        u.Email,
		"display_name": displayName,
	}
	if _, err := d.Create(ctx, schema.ProfilesTable, profile); err != nil {
		d.logger.Printf("provision profile for %s: %v", u.ID, err)
	}
}
