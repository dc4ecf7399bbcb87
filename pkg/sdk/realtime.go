package sdk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/galyarder/galyarder-store/pkg/engine"
	"github.com/galyarder/galyarder-store/pkg/schema"
)

// realtimeSubscription is one websocket feed of ChangeEvents.
type realtimeSubscription struct {
	client *Client
	table  string
	conn   *websocket.Conn
	cancel context.CancelFunc
	once   sync.Once
}

// Subscribe opens a websocket to /realtime/{table}. filter is the
// "field=eq.value" expression built by schema.Filters.Expression. fn runs on
// the subscription's own goroutine, one event at a time.
func (c *Client) Subscribe(ctx context.Context, table, filter string, fn func(schema.ChangeEvent)) (engine.Subscription, error) {
	u, err := url.Parse(c.baseURL + "/realtime/" + url.PathEscape(table))
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	if filter != "" {
		u.RawQuery = url.Values{"filter": {filter}}.Encode()
	}

	header := http.Header{}
	c.authorize(header)
	conn, _, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, fmt.Errorf("dial realtime %s: %w", table, err)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	s := &realtimeSubscription{client: c, table: table, conn: conn, cancel: cancel}

	c.subsMu.Lock()
	c.subs[s] = struct{}{}
	c.subsMu.Unlock()

	go s.readLoop(subCtx, fn)
	return s, nil
}

func (s *realtimeSubscription) readLoop(ctx context.Context, fn func(schema.ChangeEvent)) {
	defer s.Unsubscribe()

	for {
		var ev schema.ChangeEvent
		if err := wsjson.Read(ctx, s.conn, &ev); err != nil {
			if ctx.Err() == nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				s.client.logger.Printf("realtime %s closed: %v", s.table, err)
			}
			return
		}
		fn(ev)
	}
}

// Unsubscribe closes the feed. It is safe to call more than once and from
// inside the callback.
func (s *realtimeSubscription) Unsubscribe() error {
	s.once.Do(func() {
		s.cancel()
		_ = s.conn.Close(websocket.StatusNormalClosure, "")

		s.client.subsMu.Lock()
		delete(s.client.subs, s)
		s.client.subsMu.Unlock()
	})
	return nil
}
