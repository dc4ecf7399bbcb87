package engine

import (
	"sort"
	"sync"

	core "github.com/galyarder/galyarder-store/pkg/engine"
)

// MemCache is a thread-safe in-memory LocalCache. With a Persistence attached
// it writes every change through to disk before returning.
type MemCache struct {
	mu        sync.RWMutex
	data      map[string][]byte
	persister *Persistence
}

// NewMemCache initializes a cache.
// It accepts existing data (from LoadAll) and an optional persister.
func NewMemCache(initialData map[string][]byte, p *Persistence) *MemCache {
	if initialData == nil {
		initialData = make(map[string][]byte)
	}
	return &MemCache{
		data:      initialData,
		persister: p,
	}
}

// OpenFileCache loads every blob from dir and returns a write-through MemCache.
func OpenFileCache(dir string) (*MemCache, error) {
	p, err := NewPersistence(dir)
	if err != nil {
		return nil, err
	}
	all, err := p.LoadAll()
	if err != nil {
		return nil, err
	}
	return NewMemCache(all, p), nil
}

func (m *MemCache) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	val, ok := m.data[key]
	if !ok {
		return nil, core.ErrKeyNotFound
	}
	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

func (m *MemCache) Set(key string, val []byte) error {
	buf := make([]byte, len(val))
	copy(buf, val)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.persister != nil {
		if err := m.persister.SaveKey(key, buf); err != nil {
			return err
		}
	}
	m.data[key] = buf
	return nil
}

func (m *MemCache) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.persister != nil {
		if err := m.persister.DeleteKey(key); err != nil {
			return err
		}
	}
	delete(m.data, key)
	return nil
}

func (m *MemCache) Keys() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]string, 0, len(m.data))
	for k := range m.data {
		list = append(list, k)
	}
	sort.Strings(list)
	return list, nil
}

// Close is a no-op; writes are already on disk.
func (m *MemCache) Close() error {
	return nil
}
