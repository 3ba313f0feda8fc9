// Package keepalive runs the self-ping loop that keeps the hosting platform
// from idling the daemon out while the tracker runs.
package keepalive

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/loykin/trackdeck/internal/metrics"
	"github.com/loykin/trackdeck/internal/probe"
)

// DefaultInterval applies when Config.Interval is zero.
const DefaultInterval = 300 * time.Second

// State of the scheduler.
type State string

const (
	StateDisabled State = "disabled"
	StateIdle     State = "idle"
	StateWaiting  State = "waiting"
	StatePinging  State = "pinging"
	StateOK       State = "ok"
	StateError    State = "error"
)

// Config is resolved at every Start so settings edits apply to the next run.
type Config struct {
	URL      string
	Interval time.Duration
}

// Status is the published monitoring view.
type Status struct {
	Running         bool       `json:"running"`
	Configured      bool       `json:"configured"`
	URL             *string    `json:"url"`
	State           State      `json:"state"`
	IntervalSeconds int        `json:"interval_seconds"`
	LastCode        *int       `json:"last_code"`
	LastError       *string    `json:"last_error"`
	LastAt          *time.Time `json:"last_at"`
}

type Option func(*Scheduler)

func WithHTTPClient(c *http.Client) Option { return func(s *Scheduler) { s.client = c } }

func WithTimeout(d time.Duration) Option { return func(s *Scheduler) { s.timeout = d } }

func WithLogger(l *slog.Logger) Option { return func(s *Scheduler) { s.logger = l } }

// Scheduler is a single-loop state machine. Results of a probe that raced
// with Stop are discarded through the generation counter.
type Scheduler struct {
	resolve func() Config
	publish func(Status)
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	cfg    Config
	st     Status
}

func New(resolve func() Config, publish func(Status), opts ...Option) *Scheduler {
	s := &Scheduler{
		resolve: resolve,
		publish: publish,
		timeout: probe.DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With(slog.String("component", "keepalive"))
	s.cfg = s.resolveConfig()
	s.st = Status{State: StateDisabled}
	s.applyConfigLocked()
	if s.st.Configured {
		s.st.State = StateIdle
	}
	return s
}

func (s *Scheduler) resolveConfig() Config {
	var cfg Config
	if s.resolve != nil {
		cfg = s.resolve()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return cfg
}

func (s *Scheduler) applyConfigLocked() {
	s.st.Configured = s.cfg.URL != ""
	s.st.IntervalSeconds = int(s.cfg.Interval / time.Second)
	if s.st.Configured {
		u := s.cfg.URL
		s.st.URL = &u
	} else {
		s.st.URL = nil
	}
}

// Start begins the loop with one immediate probe. Without a target URL the
// scheduler becomes Disabled and makes no network call. Starting a running
// scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.Running {
		return
	}
	s.cfg = s.resolveConfig()
	s.applyConfigLocked()
	if !s.st.Configured {
		s.st.State = StateDisabled
		s.emitLocked()
		return
	}
	s.gen++
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.st.Running = true
	s.st.State = StatePinging
	s.emitLocked()
	s.logger.Info("keepalive started", slog.String("url", s.cfg.URL), slog.Duration("interval", s.cfg.Interval))
	go s.loop(ctx, s.gen, s.cfg)
}

// Stop ends the loop without waiting for it. The state becomes Idle, or
// Disabled when no target is configured.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.st.Running {
		return
	}
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.st.Running = false
	if s.st.Configured {
		s.st.State = StateIdle
	} else {
		s.st.State = StateDisabled
	}
	s.emitLocked()
	s.logger.Info("keepalive stopped")
}

// Status returns a copy of the current status.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st
}

// Announce publishes the current status.
func (s *Scheduler) Announce() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emitLocked()
	return s.st
}

func (s *Scheduler) loop(ctx context.Context, gen uint64, cfg Config) {
	if !s.probe(ctx, gen, cfg) {
		return
	}
	t := time.NewTimer(cfg.Interval)
	defer t.Stop()
	for {
		if !s.transition(gen, StateWaiting) {
			return
		}
		t.Reset(cfg.Interval)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		if !s.transition(gen, StatePinging) {
			return
		}
		if !s.probe(ctx, gen, cfg) {
			return
		}
	}
}

// probe runs one request and records it. It returns false once the
// generation is stale.
func (s *Scheduler) probe(ctx context.Context, gen uint64, cfg Config) bool {
	out := probe.Get(ctx, s.client, cfg.URL, s.timeout)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return false
	}
	metrics.IncKeepaliveProbe(out.OK())
	at := out.At
	s.st.LastAt = &at
	if out.StatusCode != 0 {
		code := out.StatusCode
		s.st.LastCode = &code
	} else {
		s.st.LastCode = nil
	}
	if out.OK() {
		s.st.LastError = nil
		s.st.State = StateOK
	} else {
		msg := out.ErrorText()
		s.st.LastError = &msg
		s.st.State = StateError
		s.logger.Warn("keepalive probe failed", slog.String("url", cfg.URL), slog.String("error", msg))
	}
	s.emitLocked()
	return true
}

func (s *Scheduler) transition(gen uint64, next State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return false
	}
	s.st.State = next
	s.emitLocked()
	return true
}

func (s *Scheduler) emitLocked() {
	if s.publish != nil {
		s.publish(s.st)
	}
}
