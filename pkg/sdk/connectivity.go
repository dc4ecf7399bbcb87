package sdk

import (
	"context"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

// listeners is a registry of online/offline callbacks shared by the monitors.
type listeners struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(bool)
}

func (l *listeners) add(fn func(bool)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]func(bool))
	}
	id := l.next
	l.next++
	l.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.fns, id)
			l.mu.Unlock()
		})
	}
}

// notify calls every listener outside the lock, in registration order.
func (l *listeners) notify(online bool) {
	l.mu.Lock()
	fns := make([]func(bool), 0, len(l.fns))
	for i := 0; i < l.next; i++ {
		if fn, ok := l.fns[i]; ok {
			fns = append(fns, fn)
		}
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(online)
	}
}

// StaticMonitor is a ConnectivityMonitor driven by hand. Tests and the CLI's
// --offline flag use it. Listeners run synchronously inside SetOnline.
type StaticMonitor struct {
	mu        sync.Mutex
	online    bool
	listeners listeners
}

// NewStaticMonitor returns a monitor stuck at online until SetOnline is called.
func NewStaticMonitor(online bool) *StaticMonitor {
	return &StaticMonitor{online: online}
}

func (m *StaticMonitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *StaticMonitor) Subscribe(fn func(online bool)) func() {
	return m.listeners.add(fn)
}

// SetOnline changes the status and notifies listeners when it actually changed.
func (m *StaticMonitor) SetOnline(online bool) {
	m.mu.Lock()
	changed := m.online != online
	m.online = online
	m.mu.Unlock()

	if changed {
		m.listeners.notify(online)
	}
}

// ProbeFunc reports whether the backend is reachable.
type ProbeFunc func(ctx context.Context) bool

// HTTPProbe returns a probe that GETs baseURL/health and treats any 2xx as online.
func HTTPProbe(baseURL string, client *http.Client) ProbeFunc {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	url := strings.TrimRight(baseURL, "/") + "/health"
	return func(ctx context.Context) bool {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return false
		}
		resp, err := client.Do(req)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode >= 200 && resp.StatusCode < 300
	}
}

const probeTimeout = 5 * time.Second

// ProbeMonitor polls a ProbeFunc on a fixed interval and reports transitions.
type ProbeMonitor struct {
	probe    ProbeFunc
	interval time.Duration
	logger   *log.Logger

	mu        sync.Mutex
	online    bool
	listeners listeners

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewProbeMonitor creates a monitor. Call Start to begin polling.
func NewProbeMonitor(probe ProbeFunc, interval time.Duration, logger *log.Logger) *ProbeMonitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[monitor] ", log.LstdFlags)
	}
	return &ProbeMonitor{probe: probe, interval: interval, logger: logger}
}

// Start probes once synchronously, so Online is meaningful on return, then
// keeps polling in the background until Close or ctx is done.
func (m *ProbeMonitor) Start(ctx context.Context) {
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.check()

	m.wg.Add(1)
	go m.loop()
}

func (m *ProbeMonitor) loop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return

		case <-ticker.C:
			m.check()
		}
	}
}

func (m *ProbeMonitor) check() {
	ctx, cancel := context.WithTimeout(m.ctx, probeTimeout)
	defer cancel()
	online := m.probe(ctx)

	m.mu.Lock()
	changed := m.online != online
	m.online = online
	m.mu.Unlock()

	if changed {
		m.logger.Printf("backend is now online=%v", online)
		m.listeners.notify(online)
	}
}

func (m *ProbeMonitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *ProbeMonitor) Subscribe(fn func(online bool)) func() {
	return m.listeners.add(fn)
}

// Close stops polling and waits for the loop to exit.
func (m *ProbeMonitor) Close() error {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	return nil
}
