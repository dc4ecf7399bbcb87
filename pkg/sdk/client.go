package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/galyarder/galyarder-store/pkg/engine"
	"github.com/galyarder/galyarder-store/pkg/schema"
)

// HTTPError is a non-2xx answer from the hosted backend.
type HTTPError struct {
	Status  int
	Code    string
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("remote returned %d: %s", e.Status, e.Message)
}

// Unwrap maps well-known statuses onto the engine sentinels.
func (e *HTTPError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return engine.ErrRecordNotFound
	case http.StatusConflict:
		return engine.ErrDuplicateID
	}
	return nil
}

// Client is the network RemoteStore for a galyarder-stored backend.
// It implements engine.RemoteStore.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *log.Logger
	retries int
	backoff time.Duration

	mu      sync.RWMutex // Protects session
	session *schema.Session

	authMu        sync.Mutex
	authNext      int
	authListeners map[int]func(schema.AuthEvent)

	subsMu sync.Mutex
	subs   map[*realtimeSubscription]struct{}
}

var _ engine.RemoteStore = (*Client)(nil)

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithAPIKey sends key in the apikey header on every request.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the default http.Client (30s timeout).
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the client logger.
func WithLogger(l *log.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// WithRetries sets how many times a request is attempted on transport errors
// and the base delay between attempts.
func WithRetries(attempts int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		if attempts > 0 {
			c.retries = attempts
		}
		c.backoff = backoff
	}
}

// WithSession starts the client with a previously remembered session.
func WithSession(s *schema.Session) ClientOption {
	return func(c *Client) { c.session = s }
}

// NewClient creates a client for the backend at baseURL (http or https).
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		http:          &http.Client{Timeout: 30 * time.Second},
		retries:       3,
		backoff:       200 * time.Millisecond,
		authListeners: make(map[int]func(schema.AuthEvent)),
		subs:          make(map[*realtimeSubscription]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.New(os.Stderr, "[sdk] ", log.LstdFlags)
	}
	return c
}

// BaseURL returns the backend address the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Session returns the current session, or nil.
func (c *Client) Session() *schema.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// SetSession replaces the current session without notifying listeners.
func (c *Client) SetSession(s *schema.Session) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
}

// Internal helper for HTTP communication. Only transport errors are retried,
// and only for idempotent methods: a POST whose answer was lost may already
// have created a row. Any answer from the server, including 5xx, is final.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	attempts := c.retries
	if method == http.MethodPost {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			// Wait before retrying (linear backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(i) * c.backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		c.authorize(req.Header)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			c.logger.Printf("%s %s attempt %d failed: %v", method, path, i+1, err)
			continue
		}
		return decodeResponse(resp, out)
	}

	return fmt.Errorf("failed after %d attempts. last error: %w", attempts, lastErr)
}

func (c *Client) authorize(h http.Header) {
	if c.apiKey != "" {
		h.Set("apikey", c.apiKey)
	}
	if s := c.Session(); s != nil && s.AccessToken != "" {
		h.Set("Authorization", "Bearer "+s.AccessToken)
	}
}

func decodeResponse(resp *http.Response, out any) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var body struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if err := json.Unmarshal(raw, &body); err != nil || body.Error == "" {
			body.Error = strings.TrimSpace(string(raw))
		}
		if body.Error == "" {
			body.Error = http.StatusText(resp.StatusCode)
		}
		return &HTTPError{Status: resp.StatusCode, Code: body.Code, Message: body.Error}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func tablePath(table string, id ...string) string {
	p := "/rest/" + url.PathEscape(table)
	for _, part := range id {
		p += "/" + url.PathEscape(part)
	}
	return p
}

// --- TableStore ---

func (c *Client) Insert(ctx context.Context, table string, data schema.Record) (schema.Record, error) {
	var out schema.Record
	err := c.do(ctx, http.MethodPost, tablePath(table), nil, data, &out)
	return out, err
}

func (c *Client) Select(ctx context.Context, table string, filters schema.Filters) ([]schema.Record, error) {
	var query url.Values
	if len(filters) > 0 {
		where, err := json.Marshal(filters)
		if err != nil {
			return nil, fmt.Errorf("encode filters: %w", err)
		}
		query = url.Values{"where": {string(where)}}
	}
	var out []schema.Record
	err := c.do(ctx, http.MethodGet, tablePath(table), query, nil, &out)
	return out, err
}

func (c *Client) Update(ctx context.Context, table, id string, partial schema.Record) (schema.Record, error) {
	var out schema.Record
	err := c.do(ctx, http.MethodPatch, tablePath(table, id), nil, partial, &out)
	return out, err
}

func (c *Client) Delete(ctx context.Context, table, id string) error {
	return c.do(ctx, http.MethodDelete, tablePath(table, id), nil, nil, nil)
}

// --- Authenticator ---

// authError turns transport and HTTP failures into *schema.AuthError.
func authError(err error) error {
	var he *HTTPError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &he) && he.Code != "":
		return &schema.AuthError{Code: he.Code, Message: he.Message}
	case errors.As(err, &he) && he.Status == http.StatusUnauthorized:
		return &schema.AuthError{Code: schema.AuthNotAuthenticated, Message: he.Message}
	case errors.As(err, &he) && he.Status == http.StatusBadRequest:
		return &schema.AuthError{Code: schema.AuthInvalidRequest, Message: he.Message}
	default:
		return &schema.AuthError{Code: schema.AuthUnavailable, Message: err.Error()}
	}
}

func (c *Client) SignUp(ctx context.Context, creds schema.Credentials) (*schema.AuthResult, error) {
	return c.authenticate(ctx, "/auth/signup", creds)
}

func (c *Client) SignIn(ctx context.Context, creds schema.Credentials) (*schema.AuthResult, error) {
	return c.authenticate(ctx, "/auth/signin", creds)
}

func (c *Client) authenticate(ctx context.Context, path string, creds schema.Credentials) (*schema.AuthResult, error) {
	var res schema.AuthResult
	if err := c.do(ctx, http.MethodPost, path, nil, creds, &res); err != nil {
		return nil, authError(err)
	}
	if res.Session != nil {
		c.SetSession(res.Session)
		c.emitAuth(schema.AuthEvent{Type: schema.AuthSignedIn, Session: res.Session})
	}
	return &res, nil
}

// SignOut revokes the session on the server. The local session is dropped
// even if the server cannot be reached.
func (c *Client) SignOut(ctx context.Context) error {
	had := c.Session() != nil
	var err error
	if had {
		err = c.do(ctx, http.MethodPost, "/auth/signout", nil, nil, nil)
	}
	c.SetSession(nil)
	if had {
		c.emitAuth(schema.AuthEvent{Type: schema.AuthSignedOut})
	}
	return authError(err)
}

func (c *Client) CurrentUser(ctx context.Context) (*schema.User, error) {
	if c.Session() == nil {
		return nil, &schema.AuthError{Code: schema.AuthNotAuthenticated, Message: "no active session"}
	}
	var u schema.User
	if err := c.do(ctx, http.MethodGet, "/auth/user", nil, nil, &u); err != nil {
		return nil, authError(err)
	}
	return &u, nil
}

func (c *Client) OnAuthStateChange(fn func(schema.AuthEvent)) engine.Subscription {
	c.authMu.Lock()
	id := c.authNext
	c.authNext++
	c.authListeners[id] = fn
	c.authMu.Unlock()

	return engine.SubscriptionFunc(func() error {
		c.authMu.Lock()
		delete(c.authListeners, id)
		c.authMu.Unlock()
		return nil
	})
}

func (c *Client) emitAuth(ev schema.AuthEvent) {
	c.authMu.Lock()
	fns := make([]func(schema.AuthEvent), 0, len(c.authListeners))
	for i := 0; i < c.authNext; i++ {
		if fn, ok := c.authListeners[i]; ok {
			fns = append(fns, fn)
		}
	}
	c.authMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Close tears down every open realtime subscription.
func (c *Client) Close() error {
	c.subsMu.Lock()
	subs := make([]*realtimeSubscription, 0, len(c.subs))
	for s := range c.subs {
		subs = append(subs, s)
	}
	c.subsMu.Unlock()

	for _, s := range subs {
		s.Unsubscribe()
	}
	return nil
}
