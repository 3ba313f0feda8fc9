// Package gateway is the live WebSocket boundary: every subscriber gets one
// consistent snapshot of logs and states, then the live feed.
package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/loykin/trackdeck/internal/event"
	"github.com/loykin/trackdeck/internal/logchan"
	"github.com/loykin/trackdeck/internal/manager"
	"github.com/loykin/trackdeck/internal/metrics"
)

const (
	DefaultCommandRate  = 5
	DefaultCommandBurst = 10
)

// Controller executes control commands. Failures are reported by the
// controller itself as log lines and status events.
type Controller interface {
	Start(ctx context.Context, role manager.Role) (manager.Status, error)
	Stop(ctx context.Context, role manager.Role) (manager.Status, error)
}

// Sources are the streams a subscriber sees. Channel names select the
// message types (tracker_log, full_tracker_log, ...).
type Sources struct {
	Tracker  *logchan.Channel
	Notifier *logchan.Channel
	Remote   *logchan.Channel
	Bus      *event.Bus
}

type Options struct {
	// CommandRate is the sustained commands per second per client; zero
	// disables limiting.
	CommandRate  float64
	CommandBurst int
	CheckOrigin  func(r *http.Request) bool
	Logger       *slog.Logger
}

type Gateway struct {
	src      Sources
	ctl      Controller
	logger   *slog.Logger
	limit    rate.Limit
	burst    int
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*client
}

func New(src Sources, ctl Controller, opts Options) *Gateway {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if opts.CommandRate > 0 {
		limit = rate.Limit(opts.CommandRate)
	}
	burst := opts.CommandBurst
	if burst <= 0 {
		burst = DefaultCommandBurst
	}
	return &Gateway{
		src:    src,
		ctl:    ctl,
		logger: logger.With(slog.String("component", "gateway")),
		limit:  limit,
		burst:  burst,
		upgrader: websocket.Upgrader{
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			CheckOrigin:      opts.CheckOrigin,
			HandshakeTimeout: 10 * time.Second,
		},
		clients: make(map[string]*client),
	}
}

func (g *Gateway) channels() []*logchan.Channel {
	out := make([]*logchan.Channel, 0, 3)
	for _, ch := range []*logchan.Channel{g.src.Tracker, g.src.Notifier, g.src.Remote} {
		if ch != nil {
			out = append(out, ch)
		}
	}
	return out
}

// ServeHTTP upgrades the request and attaches the connection.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Debug("websocket upgrade failed", slog.Any("error", err))
		return
	}
	c := g.attach(conn)
	go c.writePump()
	go c.readPump()
}

// attach registers c on every source in pending mode and then switches it
// to live delivery with the snapshot queued first. The sources are joined
// nested, log channels in fixed order and the bus last, so the snapshot is
// taken while all of them are locked at once.
func (g *Gateway) attach(conn *websocket.Conn) *client {
	c := newClient(g, conn, rate.NewLimiter(g.limit, g.burst))
	g.mu.Lock()
	g.clients[c.id] = c
	n := len(g.clients)
	g.mu.Unlock()
	metrics.SubscriberConnected()
	g.logger.Info("subscriber attached", slog.String("client", c.id), slog.Int("clients", n))

	var (
		snap    Snapshot
		cancels []func()
	)
	join := func() {
		if g.src.Bus == nil {
			return
		}
		cancels = append(cancels, g.src.Bus.Join(func(e event.Event) bool {
			return c.enqueue(Message{Type: string(e.Type), Data: e.Data})
		}, snap.setEvents))
	}
	chs := g.channels()
	for i := len(chs) - 1; i >= 0; i-- {
		ch, next := chs[i], join
		join = func() {
			source := ch.Name()
			cancels = append(cancels, ch.Join(func(l logchan.Line) bool {
				return c.enqueue(logMessage(source, l))
			}, func(lines []logchan.Line) {
				snap.setLog(source, logchan.Render(lines))
				next()
			}))
		}
	}
	join()

	// track may run a cancel at once, so it waits until every lock is released
	for _, cancel := range cancels {
		c.track(cancel)
	}
	c.goLive(Message{Type: TypeSnapshot, Data: snap})
	return c
}

func (g *Gateway) detach(c *client) {
	g.mu.Lock()
	_, ok := g.clients[c.id]
	delete(g.clients, c.id)
	n := len(g.clients)
	g.mu.Unlock()
	if ok {
		metrics.SubscriberDisconnected()
		g.logger.Info("subscriber detached", slog.String("client", c.id), slog.Int("clients", n))
	}
}

// refresh re-sends statuses and full logs to c. Each source is replayed
// under its own lock so later live events stay ordered after it.
func (g *Gateway) refresh(c *client) {
	if g.src.Bus != nil {
		g.src.Bus.Replay(func(events []event.Event) {
			for _, e := range events {
				c.enqueue(Message{Type: string(e.Type), Data: e.Data})
			}
		})
	}
	for _, ch := range g.channels() {
		source := ch.Name()
		ch.Replay(func(lines []logchan.Line) {
			c.enqueue(fullLogMessage(source, lines))
		})
	}
	c.enqueue(Message{Type: "tracker_log", Data: LogPayload{
		SourceTag: logchan.TagSystem,
		Time:      time.Now().UTC(),
		Text:      RefreshNote,
	}})
}

func (g *Gateway) command(ctx context.Context, c *client, typ string) {
	var (
		role manager.Role
		stop bool
	)
	switch typ {
	case TypeStartScript:
		role = manager.RoleTracker
	case TypeStopScript:
		role, stop = manager.RoleTracker, true
	case TypeStartBarkServer:
		role = manager.RoleNotifier
	case TypeStopBarkServer:
		role, stop = manager.RoleNotifier, true
	default:
		c.enqueue(errorMessage("unknown message type: " + typ))
		return
	}
	if g.ctl == nil {
		c.enqueue(errorMessage("control is not available"))
		return
	}
	var err error
	if stop {
		_, err = g.ctl.Stop(ctx, role)
	} else {
		_, err = g.ctl.Start(ctx, role)
	}
	if err != nil {
		g.logger.Debug("control command rejected", slog.String("client", c.id), slog.String("command", typ), slog.Any("error", err))
	}
}

// Clients returns the number of attached subscribers.
func (g *Gateway) Clients() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.clients)
}

// Close disconnects every subscriber.
func (g *Gateway) Close() {
	g.mu.Lock()
	cs := make([]*client, 0, len(g.clients))
	for _, c := range g.clients {
		cs = append(cs, c)
	}
	g.mu.Unlock()
	for _, c := range cs {
		c.teardown()
	}
}
