package sdk

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	localcache "github.com/galyarder/galyarder-store/internal/engine"
)

// Config describes how Open assembles a DataLayer.
type Config struct {
	// RemoteURL is the hosted backend. Empty means offline-only operation.
	RemoteURL string
	APIKey    string

	// CacheBackend is memory, file or badger.
	CacheBackend string
	CacheDir     string
	// VaultKey, when set, seals every cached blob with AES-GCM.
	VaultKey []byte

	ProbeInterval  time.Duration
	RequestTimeout time.Duration
	// Offline forces the layer offline regardless of the backend's health.
	Offline bool

	MergeFilteredReads bool
	Logger             *log.Logger
}

// Open builds a DataLayer from cfg. It returns the layer in offline-only mode
// when no remote is configured, so the app doesn't care whether a backend exists.
// Close the layer to release the cache and stop the connectivity probe.
func Open(ctx context.Context, cfg Config) (*DataLayer, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[datalayer] ", log.LstdFlags)
	}
	opts := Options{Logger: logger, MergeFilteredReads: cfg.MergeFilteredReads}

	cache, err := localcache.OpenCache(localcache.Backend(cfg.CacheBackend), cfg.CacheDir, cfg.VaultKey)
	if err != nil {
		return nil, err
	}

	// 1. No remote: everything stays on the device
	if cfg.RemoteURL == "" {
		d := New(nil, cache, nil, opts)
		d.Own(cache)
		return d, nil
	}

	// 2. Remote: HTTP client plus a monitor deciding when to use it
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := NewClient(cfg.RemoteURL,
		WithAPIKey(cfg.APIKey),
		WithHTTPClient(&http.Client{Timeout: timeout}),
		WithLogger(log.New(logger.Writer(), "[sdk] ", logger.Flags())),
	)

	var monitor *ProbeMonitor
	var static *StaticMonitor
	if cfg.Offline {
		static = NewStaticMonitor(false)
	} else {
		monitor = NewProbeMonitor(HTTPProbe(cfg.RemoteURL, nil), cfg.ProbeInterval,
			log.New(logger.Writer(), "[monitor] ", logger.Flags()))
	}

	var d *DataLayer
	if monitor != nil {
		d = New(client, cache, monitor, opts)
	} else {
		d = New(client, cache, static, opts)
	}
	d.Own(cache, client)

	// Restore the remembered session before the first probe can trigger a replay
	if s, err := d.Session(); err != nil {
		logger.Printf("restore session: %v", err)
	} else if s != nil && !s.Expired(time.Now()) {
		client.SetSession(s)
	}

	if monitor != nil {
		d.Own(monitor)
		monitor.Start(ctx)
	}
	return d, nil
}
