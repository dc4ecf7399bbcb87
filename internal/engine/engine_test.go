package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	core "github.com/galyarder/galyarder-store/pkg/engine"
)

var testKey = []byte("thisis32byteslongsecretkey123456")

// exerciseCache runs the LocalCache contract against any implementation.
func exerciseCache(t *testing.T, c core.LocalCache) {
	t.Helper()

	// Test Set
	if err := c.Set("galyarder_habits", []byte(`[{"id":"h1"}]`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// Test Get
	got, err := c.Get("galyarder_habits")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != `[{"id":"h1"}]` {
		t.Errorf("Expected stored blob, got %s", got)
	}

	// Test Get non-existent
	if _, err := c.Get("non-existent"); err != core.ErrKeyNotFound {
		t.Errorf("Expected ErrKeyNotFound, got %v", err)
	}

	// Test overwrite
	if err := c.Set("galyarder_habits", []byte(`[]`)); err != nil {
		t.Fatalf("Overwrite failed: %v", err)
	}
	got, _ = c.Get("galyarder_habits")
	if string(got) != `[]` {
		t.Errorf("Expected overwritten blob, got %s", got)
	}

	// Test Keys
	if err := c.Set("galyarder_pending_mutations", []byte(`[]`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	keys, err := c.Keys()
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("Expected 2 keys, got %v", keys)
	}

	// Test Delete, twice
	if err := c.Delete("galyarder_habits"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := c.Delete("galyarder_habits"); err != nil {
		t.Fatalf("Second delete failed: %v", err)
	}
	if _, err := c.Get("galyarder_habits"); err != core.ErrKeyNotFound {
		t.Errorf("Expected ErrKeyNotFound after delete, got %v", err)
	}
}

func TestMemCache_Contract(t *testing.T) {
	exerciseCache(t, NewMemCache(nil, nil))
}

func TestMemCache_GetReturnsCopy(t *testing.T) {
	mc := NewMemCache(nil, nil)
	mc.Set("k", []byte("abc"))

	got, _ := mc.Get("k")
	got[0] = 'z'

	again, _ := mc.Get("k")
	if string(again) != "abc" {
		t.Errorf("Expected cache to be unaffected by caller mutation, got %s", again)
	}
}

func TestBadgerCache_Contract(t *testing.T) {
	bc, err := OpenBadgerCache("", WithInMemory())
	if err != nil {
		t.Fatalf("OpenBadgerCache failed: %v", err)
	}
	defer bc.Close()

	exerciseCache(t, bc)
}

func TestBadgerCache_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	bc, err := OpenBadgerCache(dir)
	if err != nil {
		t.Fatalf("OpenBadgerCache failed: %v", err)
	}
	bc.Set("galyarder_goals", []byte(`[{"id":"g1"}]`))
	if err := bc.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	bc2, err := OpenBadgerCache(dir)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer bc2.Close()

	got, err := bc2.Get("galyarder_goals")
	if err != nil || string(got) != `[{"id":"g1"}]` {
		t.Errorf("Expected persisted blob, got %s, %v", got, err)
	}
}

func TestBadgerCache_InvalidOption(t *testing.T) {
	if _, err := OpenBadgerCache("", WithValueLogFileSize(0)); err == nil {
		t.Fatal("Expected error for zero value log size")
	}
}

func TestSealedCache_Contract(t *testing.T) {
	sc, err := NewSealedCache(NewMemCache(nil, nil), testKey)
	if err != nil {
		t.Fatalf("NewSealedCache failed: %v", err)
	}
	exerciseCache(t, sc)
}

func TestSealedCache_EncryptsAtRest(t *testing.T) {
	inner := NewMemCache(nil, nil)
	sc, _ := NewSealedCache(inner, testKey)

	sc.Set("galyarder_journal", []byte(`[{"entry":"private thoughts"}]`))

	raw, _ := inner.Get("galyarder_journal")
	if string(raw) == `[{"entry":"private thoughts"}]` {
		t.Error("Sealed value should be encrypted in the inner cache")
	}

	plain, err := sc.Get("galyarder_journal")
	if err != nil || string(plain) != `[{"entry":"private thoughts"}]` {
		t.Errorf("Expected decrypted blob, got %s, %v", plain, err)
	}
}

func TestSealedCache_BadKey(t *testing.T) {
	if _, err := NewSealedCache(NewMemCache(nil, nil), []byte("short")); err == nil {
		t.Fatal("Expected error for short key")
	}
}

func TestPersistence(t *testing.T) {
	tmpDir := t.TempDir()

	p, err := NewPersistence(tmpDir)
	if err != nil {
		t.Fatalf("NewPersistence failed: %v", err)
	}

	if err := p.SaveKey("galyarder_profiles", []byte(`[]`)); err != nil {
		t.Fatalf("SaveKey failed: %v", err)
	}

	// Verify file exists
	if _, err := os.Stat(filepath.Join(tmpDir, "galyarder_profiles.json")); os.IsNotExist(err) {
		t.Fatal("Cache file was not created")
	}

	// Stray files are ignored
	os.WriteFile(filepath.Join(tmpDir, "notes.txt"), []byte("x"), 0644)

	all, err := p.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if len(all) != 1 || string(all["galyarder_profiles"]) != `[]` {
		t.Errorf("Loaded data mismatch: %v", all)
	}

	if err := p.DeleteKey("galyarder_profiles"); err != nil {
		t.Fatalf("DeleteKey failed: %v", err)
	}
	if err := p.DeleteKey("galyarder_profiles"); err != nil {
		t.Fatalf("DeleteKey on missing file failed: %v", err)
	}
}

func TestMemCache_Persistence(t *testing.T) {
	tmpDir := t.TempDir()

	fc, err := OpenFileCache(tmpDir)
	if err != nil {
		t.Fatalf("OpenFileCache failed: %v", err)
	}
	if err := fc.Set("galyarder_habits", []byte(`[{"id":"h1"}]`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// Reopen from disk
	fc2, err := OpenFileCache(tmpDir)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	val, err := fc2.Get("galyarder_habits")
	if err != nil {
		t.Fatalf("Get on reopened cache failed: %v", err)
	}
	if string(val) != `[{"id":"h1"}]` {
		t.Errorf("Expected persisted blob, got %s", val)
	}
}

func TestMemCache_Concurrent(t *testing.T) {
	mc := NewMemCache(nil, nil)
	const (
		numGoroutines = 10
		numOps        = 100
	)
	var wg sync.WaitGroup
	errs := make(chan error, numGoroutines*numOps)

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < numOps; j++ {
				key := fmt.Sprintf("key-%d-%d", id, j)
				want := fmt.Sprintf("%d", j)
				mc.Set(key, []byte(want))
				val, err := mc.Get(key)
				if err != nil || string(val) != want {
					errs <- fmt.Errorf("expected %s, got %s, err %v", want, val, err)
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestMigrate(t *testing.T) {
	src := NewMemCache(nil, nil)
	src.Set("galyarder_habits", []byte(`[1]`))
	src.Set("galyarder_pending_mutations", []byte(`[]`))

	dst, _ := NewSealedCache(NewMemCache(nil, nil), testKey)

	n, err := Migrate(src, dst)
	if err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 keys copied, got %d", n)
	}

	got, err := dst.Get("galyarder_habits")
	if err != nil || string(got) != `[1]` {
		t.Errorf("Expected migrated blob, got %s, %v", got, err)
	}
}

func TestOpenCache(t *testing.T) {
	dir := t.TempDir()

	for _, backend := range []Backend{BackendMemory, BackendFile, BackendBadger} {
		c, err := OpenCache(backend, filepath.Join(dir, string(backend)), nil)
		if err != nil {
			t.Fatalf("OpenCache(%s) failed: %v", backend, err)
		}
		if err := c.Set("k", []byte("v")); err != nil {
			t.Errorf("Set on %s failed: %v", backend, err)
		}
		c.Close()
	}

	sealed, err := OpenCache(BackendMemory, dir, testKey)
	if err != nil {
		t.Fatalf("OpenCache sealed failed: %v", err)
	}
	if _, ok := sealed.(*SealedCache); !ok {
		t.Errorf("Expected *SealedCache, got %T", sealed)
	}

	if _, err := OpenCache("floppy", dir, nil); err == nil {
		t.Error("Expected error for unknown backend")
	}
}
