package logchan

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/loykin/trackdeck/internal/metrics"
)

// Sink receives lines appended after it subscribed. Returning false detaches it.
// Sinks are called with the channel lock held and must not block.
type Sink func(Line) bool

// Channel is an ordered, file-backed log stream with live fan-out.
//
// The backing file is the durable source of truth; the in-memory buffer is
// hydrated from it once at Open. All mutation happens under mu, which is also
// what makes each channel single-writer.
type Channel struct {
	name   string
	path   string
	logger *slog.Logger

	mu      sync.Mutex
	file    *os.File
	lines   []Line
	seq     uint64
	subs    map[uint64]Sink
	nextSub uint64
	closed  bool
	now     func() time.Time
}

// Open opens (creating if needed) the backing file at path and hydrates the
// channel from it.
func Open(name, path string, logger *slog.Logger) (*Channel, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create log dir for %s: %w", name, err)
	}
	// #nosec G304 -- path comes from daemon configuration
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	c := &Channel{
		name:   name,
		path:   path,
		logger: logger.With(slog.String("channel", name)),
		file:   f,
		subs:   make(map[uint64]Sink),
		now:    time.Now,
	}
	if err := c.Hydrate(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return c, nil
}

// Name returns the channel name (tracker, bark, remote).
func (c *Channel) Name() string { return c.name }

// Path returns the backing file path.
func (c *Channel) Path() string { return c.path }

// Hydrate replaces the in-memory buffer with the content of the backing file.
// It is meant to run once, before any Append.
func (c *Channel) Hydrate() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("hydrate %s: %w", c.name, err)
	}
	r := bufio.NewReader(c.file)
	lines := make([]Line, 0, 256)
	var seq uint64
	terminated := true
	for {
		s, err := r.ReadString('\n')
		if len(s) > 0 {
			terminated = s[len(s)-1] == '\n'
			if terminated {
				s = s[:len(s)-1]
			}
			seq++
			l := parseLine(s)
			l.Seq = seq
			lines = append(lines, l)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("hydrate %s: %w", c.name, err)
		}
	}
	// A torn final write would otherwise be glued to the next append.
	if !terminated {
		if _, err := c.file.Write([]byte{'\n'}); err != nil {
			return fmt.Errorf("hydrate %s: terminate last line: %w", c.name, err)
		}
	}
	c.lines = lines
	c.seq = seq
	c.logger.Debug("log channel hydrated", slog.Int("lines", len(lines)), slog.String("path", c.path))
	return nil
}

// Append records text under tag. Multi-line text becomes one Line per
// non-empty line. The appended lines are returned.
func (c *Channel) Append(tag Tag, text string) []Line {
	pieces := splitText(text)
	if len(pieces) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Line, 0, len(pieces))
	var persistErr error
	for _, p := range pieces {
		l := c.nextLine(tag, p)
		if persistErr == nil {
			persistErr = c.persist(l)
		}
		c.publish(l)
		out = append(out, l)
	}
	metrics.AddLogLines(c.name, len(out))
	if persistErr != nil {
		metrics.IncPersistFailure(c.name)
		c.logger.Warn("log persistence failed", slog.Any("error", persistErr))
		// memory-only notice; the failed append itself stands
		c.publish(c.nextLine(TagSystem, "log persistence failed: "+persistErr.Error()))
	}
	return out
}

// Notify sends text to the current subscribers only. The lines carry no
// sequence number and are neither buffered nor persisted.
func (c *Channel) Notify(tag Tag, text string) {
	pieces := splitText(text)
	if len(pieces) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range pieces {
		l := Line{Tag: tag, Time: c.now().UTC(), Text: p}
		for id, sink := range c.subs {
			if !sink(l) {
				delete(c.subs, id)
			}
		}
	}
}

func (c *Channel) nextLine(tag Tag, text string) Line {
	c.seq++
	return Line{Seq: c.seq, Tag: tag, Time: c.now().UTC(), Text: text}
}

func (c *Channel) persist(l Line) error {
	if c.closed || c.file == nil {
		return errors.New("channel closed")
	}
	_, err := c.file.WriteString(l.String() + "\n")
	return err
}

// publish appends l to the buffer and fans it out. Caller holds mu.
func (c *Channel) publish(l Line) {
	c.lines = append(c.lines, l)
	for id, sink := range c.subs {
		if !sink(l) {
			delete(c.subs, id)
		}
	}
}

// Snapshot returns a copy of the full history.
func (c *Channel) Snapshot() []Line {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Line(nil), c.lines...)
}

// Len returns the number of lines held.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines)
}

// Render returns the history in its persisted text form.
func (c *Channel) Render() string {
	return Render(c.Snapshot())
}

// Subscribe atomically captures the history and registers sink for every
// line appended afterwards.
func (c *Channel) Subscribe(sink Sink) ([]Line, func()) {
	var history []Line
	cancel := c.Join(sink, func(lines []Line) { history = lines })
	return history, cancel
}

// Join registers sink and calls fn with the history, both under the channel
// lock. Nothing can be appended until fn returns, so sources joined from
// inside fn are captured at the same instant.
func (c *Channel) Join(sink Sink, fn func([]Line)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSub++
	id := c.nextSub
	c.subs[id] = sink
	fn(append([]Line(nil), c.lines...))
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// Replay hands the current history to fn while holding the channel lock, so
// whatever fn enqueues is ordered before any later append.
func (c *Channel) Replay(fn func([]Line)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(append([]Line(nil), c.lines...))
}

// Subscribers returns the number of attached sinks.
func (c *Channel) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Close releases the backing file. Later appends stay in memory only.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.subs = make(map[uint64]Sink)
	return c.file.Close()
}

// Render joins lines in persisted form, one per row.
func Render(lines []Line) string {
	n := 0
	for _, l := range lines {
		n += len(l.String()) + 1
	}
	b := make([]byte, 0, n)
	for _, l := range lines {
		b = append(b, l.String()...)
		b = append(b, '\n')
	}
	return string(b)
}
