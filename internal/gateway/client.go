package gateway

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/loykin/trackdeck/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendQueue      = 256
)

// client is one attached subscriber. Messages are queued from source sinks,
// which run under source locks, so enqueue never blocks: a full queue drops
// the client, which recovers by reconnecting.
type client struct {
	id      string
	gw      *Gateway
	conn    *websocket.Conn
	limiter *rate.Limiter
	send    chan Message
	quit    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc

	mu      sync.Mutex
	live    bool
	closed  bool
	pending []Message
	cancels []func()

	once sync.Once
}

func newClient(g *Gateway, conn *websocket.Conn, limiter *rate.Limiter) *client {
	ctx, cancel := context.WithCancel(context.Background())
	return &client{
		id:      uuid.NewString(),
		gw:      g,
		conn:    conn,
		limiter: limiter,
		send:    make(chan Message, sendQueue),
		quit:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// track keeps a subscription cancel func; it runs at once if c is gone.
func (c *client) track(cancel func()) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		return
	}
	c.cancels = append(c.cancels, cancel)
	c.mu.Unlock()
}

// enqueue queues m. It returns false once the client is gone so the calling
// sink detaches.
func (c *client) enqueue(m Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	if !c.live {
		c.pending = append(c.pending, m)
		return true
	}
	return c.pushLocked(m)
}

// goLive queues first, then whatever arrived while attaching.
func (c *client) goLive(first Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if !c.pushLocked(first) {
		return
	}
	for _, m := range c.pending {
		if !c.pushLocked(m) {
			return
		}
	}
	c.pending = nil
	c.live = true
}

func (c *client) pushLocked(m Message) bool {
	select {
	case c.send <- m:
		return true
	default:
		c.closed = true
		metrics.IncSubscriberDrop()
		c.gw.logger.Warn("subscriber too slow, disconnecting", slog.String("client", c.id))
		go c.teardown()
		return false
	}
}

func (c *client) teardown() {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		cancels := c.cancels
		c.cancels = nil
		c.pending = nil
		c.mu.Unlock()

		c.cancel()
		close(c.quit)
		for _, cancel := range cancels {
			cancel()
		}
		if c.conn != nil {
			_ = c.conn.Close()
		}
		c.gw.detach(c)
	})
}

func (c *client) readPump() {
	defer c.teardown()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.gw.logger.Debug("unexpected websocket close", slog.String("client", c.id), slog.Any("error", err))
			}
			return
		}
		var in inbound
		if err := json.Unmarshal(data, &in); err != nil {
			c.enqueue(errorMessage("invalid message"))
			continue
		}
		c.handle(in.Type)
	}
}

func (c *client) handle(typ string) {
	if typ == TypePing {
		c.enqueue(Message{Type: TypePong})
		return
	}
	if !c.limiter.Allow() {
		c.enqueue(errorMessage("rate limit exceeded"))
		return
	}
	if typ == TypeRequestRefresh {
		c.gw.refresh(c)
		return
	}
	c.gw.command(c.ctx, c, typ)
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.teardown()
	}()

	for {
		select {
		case m := <-c.send:
			b, err := json.Marshal(m)
			if err != nil {
				c.gw.logger.Error("encode message failed", slog.String("type", m.Type), slog.Any("error", err))
				continue
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.quit:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
