// Package event fans out state changes (process status, keepalive status) to
// live subscribers and remembers the latest value per type for snapshots.
package event

import (
	"sort"
	"sync"
	"time"
)

// Type names a state stream. The values double as gateway message types.
type Type string

const (
	ScriptStatus     Type = "script_status"
	BarkServerStatus Type = "bark_server_status"
	KeepaliveStatus  Type = "keepalive_status"
)

// Event is one published state value.
type Event struct {
	Seq  uint64    `json:"seq"`
	Type Type      `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data"`
}

// Sink receives events published after it subscribed. Returning false
// detaches it. Sinks run under the bus lock and must not block.
type Sink func(Event) bool

// Bus is a single-writer broadcast of state events.
type Bus struct {
	mu      sync.Mutex
	seq     uint64
	latest  map[Type]Event
	subs    map[uint64]Sink
	nextSub uint64
}

func NewBus() *Bus {
	return &Bus{latest: make(map[Type]Event), subs: make(map[uint64]Sink)}
}

// Publish records data as the latest value of t and delivers it to every
// subscriber in publish order.
func (b *Bus) Publish(t Type, data any) Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	ev := Event{Seq: b.seq, Type: t, Time: time.Now().UTC(), Data: data}
	b.latest[t] = ev
	for id, sink := range b.subs {
		if !sink(ev) {
			delete(b.subs, id)
		}
	}
	return ev
}

// Latest returns the most recent event of t.
func (b *Bus) Latest(t Type) (Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ev, ok := b.latest[t]
	return ev, ok
}

// Subscribe atomically returns the latest event of every type (ordered by
// Seq) and registers sink for everything published afterwards.
func (b *Bus) Subscribe(sink Sink) ([]Event, func()) {
	var latest []Event
	cancel := b.Join(sink, func(events []Event) { latest = events })
	return latest, cancel
}

// Join registers sink and calls fn with the latest events, both under the
// bus lock.
func (b *Bus) Join(sink Sink, fn func([]Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextSub++
	id := b.nextSub
	b.subs[id] = sink
	fn(b.snapshotLocked())
	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Replay calls fn with the latest events while holding the bus lock.
func (b *Bus) Replay(fn func([]Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b.snapshotLocked())
}

func (b *Bus) snapshotLocked() []Event {
	out := make([]Event, 0, len(b.latest))
	for _, ev := range b.latest {
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Subscribers returns the number of attached sinks.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
