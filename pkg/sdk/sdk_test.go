package sdk_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	localcache "github.com/galyarder/galyarder-store/internal/engine"
	"github.com/galyarder/galyarder-store/pkg/schema"
	"github.com/galyarder/galyarder-store/pkg/sdk"
)

type Habit struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Streak   int    `json:"streak"`
	Category string `json:"category"`
}

func TestGenericCreateRead(t *testing.T) {
	ctx := context.Background()
	layer := sdk.New(nil, localcache.NewMemCache(nil, nil), nil, sdk.Options{Logger: quiet})
	defer layer.Close()

	// Test Generic Create
	created, err := sdk.Create(ctx, layer, "habits", Habit{Name: "run", Streak: 3, Category: "health"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.ID == "" || created.Streak != 3 {
		t.Errorf("Expected stored habit with id, got %+v", created)
	}

	sdk.Create(ctx, layer, "habits", Habit{Name: "read", Category: "mind"})

	// Test Generic Read
	habits, err := sdk.Read[Habit](ctx, layer, "habits", schema.Filters{"category": "health"})
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(habits) != 1 || habits[0] != created {
		t.Errorf("Expected [%v], got %v", created, habits)
	}

	// Test Generic Update with a map patch
	updated, err := sdk.Update[Habit](ctx, layer, "habits", created.ID, map[string]any{"streak": 4})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Streak != 4 || updated.Name != "run" {
		t.Errorf("Expected run/4, got %+v", updated)
	}
}

func TestFromRecordWithJsonConversion(t *testing.T) {
	// Simulate data coming from JSON (where numbers are float64)
	rec := schema.Record{"name": "Bob", "streak": float64(25)}

	got, err := sdk.FromRecord[Habit](rec)
	if err != nil {
		t.Fatalf("FromRecord failed: %v", err)
	}
	if got.Name != "Bob" || got.Streak != 25 {
		t.Errorf("Expected Bob/25, got %v", got)
	}

	same, err := sdk.FromRecord[schema.Record](rec)
	if err != nil || same["name"] != "Bob" {
		t.Errorf("Expected record passthrough, got %v, %v", same, err)
	}
}

func TestToRecordRejectsNonObjects(t *testing.T) {
	if _, err := sdk.ToRecord([]int{1, 2}); err == nil {
		t.Error("Expected error for a slice")
	}
}

func TestCacheKey(t *testing.T) {
	if got := sdk.CacheKey("habits"); got != "galyarder_habits" {
		t.Errorf("Expected galyarder_habits, got %s", got)
	}
}

func TestStaticMonitor(t *testing.T) {
	m := sdk.NewStaticMonitor(false)

	var seen []bool
	cancel := m.Subscribe(func(online bool) { seen = append(seen, online) })

	m.SetOnline(true)
	m.SetOnline(true) // no transition
	m.SetOnline(false)
	cancel()
	m.SetOnline(true)

	if len(seen) != 2 || seen[0] != true || seen[1] != false {
		t.Errorf("Expected [true false], got %v", seen)
	}
	if !m.Online() {
		t.Error("Expected monitor to be online")
	}
}

func TestProbeMonitor(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" || !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	m := sdk.NewProbeMonitor(sdk.HTTPProbe(ts.URL, nil), 10*time.Millisecond, quiet)
	transitions := make(chan bool, 8)
	m.Subscribe(func(online bool) { transitions <- online })

	m.Start(context.Background())
	defer m.Close()

	if !m.Online() {
		t.Fatal("Expected online after the first probe")
	}
	if got := <-transitions; got != true {
		t.Errorf("Expected online transition, got %v", got)
	}

	healthy.Store(false)
	select {
	case got := <-transitions:
		if got != false {
			t.Errorf("Expected offline transition, got %v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Monitor never noticed the outage")
	}
}

func TestSequenceAndUUIDGenerators(t *testing.T) {
	seq := &sdk.SequenceGenerator{Prefix: "t"}
	if a, b := seq.NewID(), seq.NewID(); a != "t-1" || b != "t-2" {
		t.Errorf("Expected t-1, t-2, got %s, %s", a, b)
	}

	var g sdk.UUIDGenerator
	a, b := g.NewID(), g.NewID()
	if len(a) != 36 || a == b {
		t.Errorf("Expected two distinct UUIDs, got %s, %s", a, b)
	}
	// UUIDv7 ids sort by creation time.
	if a > b {
		t.Errorf("Expected time-ordered ids, got %s > %s", a, b)
	}
}
