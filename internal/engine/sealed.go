package engine

import (
	"fmt"

	"github.com/galyarder/galyarder-store/internal/vault"
	core "github.com/galyarder/galyarder-store/pkg/engine"
)

// SealedCache encrypts every blob before handing it to the wrapped cache.
// Keys stay in the clear so Keys and Migrate keep working.
type SealedCache struct {
	inner     core.LocalCache
	masterKey []byte
}

// NewSealedCache wraps inner with AES-GCM sealing under masterKey.
func NewSealedCache(inner core.LocalCache, masterKey []byte) (*SealedCache, error) {
	if len(masterKey) != vault.KeySize {
		return nil, vault.ErrInvalidKey
	}
	return &SealedCache{inner: inner, masterKey: masterKey}, nil
}

func (s *SealedCache) Get(key string) ([]byte, error) {
	raw, err := s.inner.Get(key)
	if err != nil {
		return nil, err
	}
	plain, err := vault.Decrypt(string(raw), s.masterKey)
	if err != nil {
		return nil, fmt.Errorf("unseal %s: %w", key, err)
	}
	return plain, nil
}

func (s *SealedCache) Set(key string, val []byte) error {
	sealed, err := vault.Encrypt(val, s.masterKey)
	if err != nil {
		return fmt.Errorf("seal %s: %w", key, err)
	}
	return s.inner.Set(key, []byte(sealed))
}

func (s *SealedCache) Delete(key string) error {
	return s.inner.Delete(key)
}

func (s *SealedCache) Keys() ([]string, error) {
	return s.inner.Keys()
}

// Close closes the wrapped cache when it supports closing.
func (s *SealedCache) Close() error {
	if c, ok := s.inner.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
