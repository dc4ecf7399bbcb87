// Package engine implements the device-local caches behind the data layer:
// an in-memory map with JSON-file write-through, an embedded Badger database,
// and an encrypting wrapper over either.
package engine

import (
	"fmt"
	"io"
	"path/filepath"

	core "github.com/galyarder/galyarder-store/pkg/engine"
)

// Backend names a LocalCache implementation.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendFile   Backend = "file"
	BackendBadger Backend = "badger"
)

// Cache is a LocalCache that owns resources.
type Cache interface {
	core.LocalCache
	io.Closer
}

// OpenCache opens the requested backend under dir. When masterKey is non-nil
// the cache is wrapped in a SealedCache.
func OpenCache(backend Backend, dir string, masterKey []byte) (Cache, error) {
	var c Cache
	switch backend {
	case BackendMemory, "":
		c = NewMemCache(nil, nil)
	case BackendFile:
		fc, err := OpenFileCache(filepath.Join(dir, "cache"))
		if err != nil {
			return nil, err
		}
		c = fc
	case BackendBadger:
		bc, err := OpenBadgerCache(filepath.Join(dir, "badger"))
		if err != nil {
			return nil, err
		}
		c = bc
	default:
		return nil, fmt.Errorf("unknown cache backend %q", backend)
	}

	if masterKey == nil {
		return c, nil
	}
	sealed, err := NewSealedCache(c, masterKey)
	if err != nil {
		c.Close()
		return nil, err
	}
	return sealed, nil
}
