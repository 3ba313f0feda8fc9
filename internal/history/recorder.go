package history

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"
)

const (
	recorderQueue = 64
	sendTimeout   = 5 * time.Second
)

// Recorder delivers events to sinks from a background goroutine so a slow
// analytics backend never stalls process control. Events that do not fit the
// queue are dropped with a warning. Each sink is guarded by a BreakerSink.
type Recorder struct {
	sinks  []Sink
	logger *slog.Logger
	queue  chan Event
	done   chan struct{}
	once   sync.Once

	mu     sync.RWMutex
	closed bool
}

func NewRecorder(logger *slog.Logger, sinks ...Sink) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "history"))
	guarded := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if _, ok := s.(*BreakerSink); !ok {
			s = NewBreakerSink(sinkName(s), s, DefaultBreakerSettings(), logger)
		}
		guarded = append(guarded, s)
	}
	r := &Recorder{
		sinks:  guarded,
		logger: logger,
		queue:  make(chan Event, recorderQueue),
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

// Record enqueues e. A nil Recorder or one without sinks discards it.
func (r *Recorder) Record(e Event) {
	if r == nil || len(r.sinks) == 0 {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- e:
	default:
		r.logger.Warn("history queue full, event dropped", slog.String("type", string(e.Type)), slog.String("role", e.Record.Role))
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.queue {
		for _, s := range r.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			if err := s.Send(ctx, e); err != nil {
				r.logger.Warn("history sink send failed", slog.String("type", string(e.Type)), slog.Any("error", err))
			}
			cancel()
		}
	}
}

// Close drains pending events and closes sinks that hold resources.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	var firstErr error
	r.once.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.queue)
		r.mu.Unlock()
		<-r.done
		for _, s := range r.sinks {
			if c, ok := s.(io.Closer); ok {
				if err := c.Close(); err != nil && firstErr == nil {
					firstErr = err
				}
			}
		}
	})
	return firstErr
}
