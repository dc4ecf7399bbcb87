package engine

import (
	"fmt"

	core "github.com/galyarder/galyarder-store/pkg/engine"
)

// Migrate copies every key from a source cache into a destination cache and
// returns how many keys were copied. This works for:
// - File -> Badger (moving a device to the embedded database)
// - Plain -> Sealed (turning on encryption at rest)
func Migrate(src core.LocalCache, dst core.LocalCache) (int, error) {
	keys, err := src.Keys()
	if err != nil {
		return 0, fmt.Errorf("failed to list keys: %w", err)
	}

	copied := 0
	for _, k := range keys {
		val, err := src.Get(k)
		if err != nil {
			return copied, fmt.Errorf("failed to read key %s: %w", k, err)
		}
		if err := dst.Set(k, val); err != nil {
			return copied, fmt.Errorf("failed to set key %s in destination: %w", k, err)
		}
		copied++
	}

	return copied, nil
}
