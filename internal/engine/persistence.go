package engine

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const blobExt = ".json"

// Persistence handles the disk I/O for the MemCache: one JSON file per key.
type Persistence struct {
	DataDir string
	mu      sync.Mutex // Protects concurrent writes to the filesystem
	logger  *log.Logger
}

// NewPersistence initializes a persistence handler.
func NewPersistence(dir string) (*Persistence, error) {
	// Ensure the data directory exists
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &Persistence{
		DataDir: dir,
		logger:  log.New(os.Stderr, "[cache] ", log.LstdFlags),
	}, nil
}

func (p *Persistence) path(key string) string {
	return filepath.Join(p.DataDir, key+blobExt)
}

// SaveKey writes a single key's blob to disk atomically.
func (p *Persistence) SaveKey(key string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	filePath := p.path(key)
	tempPath := filePath + ".tmp"

	// Write to a temporary file first, then swap it in with a rename so a crash
	// leaves either the old blob or the new one.
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := os.Rename(tempPath, filePath); err != nil {
		return fmt.Errorf("rename %s: %w", key, err)
	}
	return nil
}

// DeleteKey removes a key's file. Missing files are ignored.
func (p *Persistence) DeleteKey(key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := os.Remove(p.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// LoadAll returns every blob found in the data directory.
func (p *Persistence) LoadAll() (map[string][]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	all := make(map[string][]byte)

	files, err := os.ReadDir(p.DataDir)
	if err != nil {
		return nil, err
	}

	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != blobExt {
			continue
		}
		key := strings.TrimSuffix(file.Name(), blobExt)

		content, err := os.ReadFile(filepath.Join(p.DataDir, file.Name()))
		if err != nil {
			p.logger.Printf("Warning: Could not read cache file %s: %v", file.Name(), err)
			continue // Skip unreadable files
		}
		all[key] = content
	}
	return all, nil
}
