package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/galyarder/galyarder-store/internal/db"
	"github.com/galyarder/galyarder-store/pkg/schema"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []schema.ChangeEvent
}

func (p *recordingPublisher) Publish(ev schema.ChangeEvent) {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
}

func setupTestRouter(t *testing.T) (*gin.Engine, *recordingPublisher) {
	gin.SetMode(gin.TestMode)
	store, err := db.Open(filepath.Join(t.TempDir(), "api.db"), db.WithBcryptCost(bcrypt.MinCost))
	if err != nil {
		t.Fatalf("db.Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	events := &recordingPublisher{}
	h := &Handler{Records: store, Accounts: store, Events: events, Ping: store.Ping}
	r := gin.New()

	r.GET("/health", h.Health)
	r.POST("/auth/signup", h.SignUp)
	r.POST("/auth/signin", h.SignIn)
	r.POST("/auth/signout", h.RequireUser, h.SignOut)
	r.GET("/auth/user", h.RequireUser, h.CurrentUser)
	r.GET("/rest", h.ListTables)
	r.GET("/rest/:table", h.Select)
	r.POST("/rest/:table", h.Insert)
	r.PATCH("/rest/:table/:id", h.Update)
	r.DELETE("/rest/:table/:id", h.Delete)

	return r, events
}

func do(r http.Handler, method, path string, body any, token string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	r, _ := setupTestRouter(t)

	w := do(r, "GET", "/health", nil, "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
}

func TestInsertSelectUpdateDelete(t *testing.T) {
	r, events := setupTestRouter(t)

	// Insert
	w := do(r, "POST", "/rest/habits", map[string]any{"name": "run", "category": "health"}, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body)
	}
	var created schema.Record
	json.Unmarshal(w.Body.Bytes(), &created)
	if created.ID() == "" {
		t.Fatalf("Expected an id, got %v", created)
	}

	do(r, "POST", "/rest/habits", map[string]any{"name": "meditate", "category": "mind"}, "")

	// Select with where
	where := url.QueryEscape(`{"category":"health"}`)
	w = do(r, "GET", "/rest/habits?where="+where, nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var rows []schema.Record
	json.Unmarshal(w.Body.Bytes(), &rows)
	if len(rows) != 1 || rows[0].ID() != created.ID() {
		t.Errorf("Expected [%s], got %v", created.ID(), rows)
	}

	// Update
	w = do(r, "PATCH", "/rest/habits/"+created.ID(), map[string]any{"name": "sprint"}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var updated schema.Record
	json.Unmarshal(w.Body.Bytes(), &updated)
	if updated["name"] != "sprint" || updated["category"] != "health" {
		t.Errorf("Expected merged record, got %v", updated)
	}

	// Delete twice
	for i := 0; i < 2; i++ {
		w = do(r, "DELETE", "/rest/habits/"+created.ID(), nil, "")
		if w.Code != http.StatusNoContent {
			t.Errorf("Expected status 204, got %d", w.Code)
		}
	}

	// Tables
	w = do(r, "GET", "/rest", nil, "")
	var tables []string
	json.Unmarshal(w.Body.Bytes(), &tables)
	if len(tables) != 1 || tables[0] != "habits" {
		t.Errorf("Expected [habits], got %v", tables)
	}

	// INSERT, INSERT, UPDATE, DELETE; the second delete found nothing.
	if len(events.events) != 4 {
		t.Fatalf("Expected 4 events, got %d", len(events.events))
	}
	last := events.events[3]
	if last.Type != schema.ChangeDelete || last.OldRecord.ID() != created.ID() {
		t.Errorf("Expected DELETE of %s, got %+v", created.ID(), last)
	}
	if events.events[2].OldRecord["name"] != "run" {
		t.Errorf("Expected UPDATE to carry the old row, got %+v", events.events[2])
	}
}

func TestInsertDuplicateID(t *testing.T) {
	r, _ := setupTestRouter(t)

	rec := map[string]any{"id": "local-1", "name": "x"}
	if w := do(r, "POST", "/rest/goals", rec, ""); w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", w.Code)
	}
	if w := do(r, "POST", "/rest/goals", rec, ""); w.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", w.Code)
	}
}

func TestBadRequests(t *testing.T) {
	r, _ := setupTestRouter(t)

	if w := do(r, "GET", "/rest/habits?where=notjson", nil, ""); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for bad where, got %d", w.Code)
	}
	if w := do(r, "PATCH", "/rest/habits/missing", map[string]any{"a": 1}, ""); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for missing record, got %d", w.Code)
	}

	req, _ := http.NewRequest("POST", "/rest/habits", bytes.NewBufferString("[1,2]"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for non-object body, got %d", w.Code)
	}
}

func TestAuthFlow(t *testing.T) {
	r, _ := setupTestRouter(t)
	creds := schema.Credentials{Email: "ada@example.com", Password: "secret1", DisplayName: "Ada"}

	w := do(r, "POST", "/auth/signup", creds, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body)
	}

	w = do(r, "POST", "/auth/signup", creds, "")
	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409 for duplicate signup, got %d", w.Code)
	}
	var body map[string]string
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["code"] != schema.AuthUserExists {
		t.Errorf("Expected code %s, got %v", schema.AuthUserExists, body)
	}

	w = do(r, "POST", "/auth/signin", schema.Credentials{Email: creds.Email, Password: "nope"}, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 for bad password, got %d", w.Code)
	}

	w = do(r, "POST", "/auth/signin", creds, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var res schema.AuthResult
	json.Unmarshal(w.Body.Bytes(), &res)
	token := res.Session.AccessToken

	w = do(r, "GET", "/auth/user", nil, token)
	var u schema.User
	json.Unmarshal(w.Body.Bytes(), &u)
	if w.Code != http.StatusOK || u.Email != creds.Email {
		t.Errorf("Expected current user %s, got %d %v", creds.Email, w.Code, u)
	}

	if w := do(r, "POST", "/auth/signout", nil, token); w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
	if w := do(r, "GET", "/auth/user", nil, token); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 after signout, got %d", w.Code)
	}
	if w := do(r, "GET", "/auth/user", nil, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 without token, got %d", w.Code)
	}
}
