package sdk

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// IDGenerator mints record ids for offline creates.
type IDGenerator interface {
	NewID() string
}

// UUIDGenerator mints time-ordered UUIDv7 ids, so offline records sort by
// creation time once they reach the server.
type UUIDGenerator struct{}

// NewID returns a fresh UUIDv7, falling back to a random UUIDv4.
func (UUIDGenerator) NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// SequenceGenerator returns prefix-1, prefix-2, ... for deterministic tests.
type SequenceGenerator struct {
	Prefix string

	mu sync.Mutex
	n  int
}

// NewID returns the next id in the sequence.
func (g *SequenceGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.Prefix, g.n)
}
