package server

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"

	"github.com/galyarder/galyarder-store/pkg/engine"
	"github.com/galyarder/galyarder-store/pkg/schema"
)

// subscriber is one realtime websocket listening to a table.
type subscriber struct {
	conn  *websocket.Conn
	table string
	conds map[string]string
	send  chan schema.ChangeEvent
}

// matches reports whether ev belongs on this feed. Deletes are matched
// against the row as it was.
func (s *subscriber) matches(ev schema.ChangeEvent) bool {
	if ev.Table != s.table {
		return false
	}
	rec := ev.Record
	if rec == nil {
		rec = ev.OldRecord
	}
	return schema.MatchExpression(s.conds, rec)
}

// Hub manages realtime websocket subscribers and fans change events out to them.
type Hub struct {
	subs   map[*subscriber]struct{}
	subsMu sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	logger *log.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		subs:   make(map[*subscriber]struct{}),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

// Publish queues ev for every matching subscriber. A subscriber whose queue
// is full loses the event rather than stalling the writer.
func (h *Hub) Publish(ev schema.ChangeEvent) {
	h.subsMu.RLock()
	defer h.subsMu.RUnlock()

	for s := range h.subs {
		if !s.matches(ev) {
			continue
		}
		select {
		case s.send <- ev:
		default:
			h.logger.Printf("Warning: realtime queue full for %s, dropping %s event", s.table, ev.Type)
		}
	}
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.subsMu.RLock()
	defer h.subsMu.RUnlock()
	return len(h.subs)
}

// Serve upgrades GET /realtime/:table?filter=... and streams events until
// the client goes away.
func (h *Hub) Serve(c *gin.Context) {
	table := c.Param("table")
	if err := engine.ValidateTable(table); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	conds, err := schema.ParseExpression(c.Query("filter"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s := &subscriber{conn: conn, table: table, conds: conds, send: make(chan schema.ChangeEvent, 64)}
	h.subsMu.Lock()
	h.subs[s] = struct{}{}
	count := len(h.subs)
	h.subsMu.Unlock()
	h.logger.Printf("Realtime client subscribed to %s (total: %d)", table, count)

	ctx, cancel := context.WithCancel(h.ctx)
	defer cancel()
	go h.writeLoop(ctx, s)

	// Keep connection alive until the client closes it; clients send nothing.
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			break
		}
	}
	h.remove(s)
}

func (h *Hub) writeLoop(ctx context.Context, s *subscriber) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.send:
			wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(wctx, s.conn, ev)
			cancel()
			if err != nil {
				h.logger.Printf("Failed to send to realtime client: %v", err)
				h.remove(s)
				return
			}
		}
	}
}

func (h *Hub) remove(s *subscriber) {
	h.subsMu.Lock()
	if _, exists := h.subs[s]; !exists {
		h.subsMu.Unlock()
		return
	}
	delete(h.subs, s)
	count := len(h.subs)
	h.subsMu.Unlock()

	_ = s.conn.Close(websocket.StatusNormalClosure, "")
	h.logger.Printf("Realtime client left %s (total: %d)", s.table, count)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.cancel()

	h.subsMu.Lock()
	subs := make([]*subscriber, 0, len(h.subs))
	for s := range h.subs {
		subs = append(subs, s)
	}
	h.subs = make(map[*subscriber]struct{})
	h.subsMu.Unlock()

	for _, s := range subs {
		_ = s.conn.Close(websocket.StatusGoingAway, "Server shutting down")
	}
}
