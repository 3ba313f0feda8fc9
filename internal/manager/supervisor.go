package manager

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/loykin/trackdeck/internal/env"
	"github.com/loykin/trackdeck/internal/event"
	"github.com/loykin/trackdeck/internal/history"
	"github.com/loykin/trackdeck/internal/keepalive"
	"github.com/loykin/trackdeck/internal/logchan"
	"github.com/loykin/trackdeck/internal/process"
)

// SettingsSource supplies the runtime key/value settings passed to children.
type SettingsSource interface {
	All(ctx context.Context) (map[string]string, error)
}

// TrackerLaunch runs `interpreter [interpreter_args...] script`.
type TrackerLaunch struct {
	Interpreter     string
	InterpreterArgs []string
	Script          string
	WorkDir         string
}

func (t TrackerLaunch) spec(environ []string) process.Spec {
	args := append(append([]string(nil), t.InterpreterArgs...), t.Script)
	return process.Spec{Name: string(RoleTracker), Path: t.Interpreter, Args: args, WorkDir: t.WorkDir, Env: environ}
}

// NotifierLaunch runs `executable -addr <addr> -data <data_dir>`. DataDir is
// created before the spawn is attempted.
type NotifierLaunch struct {
	Executable string
	Addr       string
	DataDir    string
	WorkDir    string
}

func (n NotifierLaunch) spec(environ []string) process.Spec {
	return process.Spec{
		Name:    string(RoleNotifier),
		Path:    n.Executable,
		Args:    []string{"-addr", n.Addr, "-data", n.DataDir},
		WorkDir: n.WorkDir,
		Env:     environ,
		Dirs:    []string{n.DataDir},
	}
}

// Deps are the collaborators a Supervisor is assembled from. Keepalive,
// History, Settings and Env are optional.
type Deps struct {
	Tracker      TrackerLaunch
	Notifier     NotifierLaunch
	TrackerLogs  *logchan.Channel
	NotifierLogs *logchan.Channel
	Bus          *event.Bus
	Keepalive    *keepalive.Scheduler
	History      *history.Recorder
	Settings     SettingsSource
	Env          *env.Env
	Logger       *slog.Logger
}

// Supervisor is the only component that drives ManagedProcess transitions.
// It ties the tracker's lifetime to the keepalive loop and reports every
// status change on the event bus.
type Supervisor struct {
	tracker  *ManagedProcess
	notifier *ManagedProcess

	trackerLaunch  TrackerLaunch
	notifierLaunch NotifierLaunch

	bus       *event.Bus
	keepalive *keepalive.Scheduler
	history   *history.Recorder
	settings  SettingsSource
	env       *env.Env
	logger    *slog.Logger
}

func NewSupervisor(d Deps) *Supervisor {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if d.Bus == nil {
		d.Bus = event.NewBus()
	}
	if d.Env == nil {
		d.Env = env.FromOS()
	}
	s := &Supervisor{
		trackerLaunch:  d.Tracker,
		notifierLaunch: d.Notifier,
		bus:            d.Bus,
		keepalive:      d.Keepalive,
		history:        d.History,
		settings:       d.Settings,
		env:            d.Env,
		logger:         logger.With(slog.String("component", "supervisor")),
	}

	s.tracker = NewManagedProcess(RoleTracker, logchan.TagTracker, d.TrackerLogs, Hooks{
		Publish: s.publisher(event.ScriptStatus),
		Started: func(st Status) {
			s.startKeepalive()
			s.record(history.EventStart, st)
		},
		Stopping: func(st Status) {
			s.stopKeepalive()
			s.record(history.EventStop, st)
		},
		Exited: func(st Status) {
			// a restart may already own the keepalive again
			s.tracker.unlessLive(s.stopKeepalive)
			s.record(history.EventExit, st)
		},
	}, logger)

	s.notifier = NewManagedProcess(RoleNotifier, logchan.TagBark, d.NotifierLogs, Hooks{
		Publish:  s.publisher(event.BarkServerStatus),
		Started:  func(st Status) { s.record(history.EventStart, st) },
		Stopping: func(st Status) { s.record(history.EventStop, st) },
		Exited:   func(st Status) { s.record(history.EventExit, st) },
	}, logger)
	s.notifier.SetMessages(defaultMessages("bark server"))

	// seed the bus so snapshots always carry both roles
	s.tracker.Announce()
	s.notifier.Announce()
	return s
}

func (s *Supervisor) publisher(t event.Type) func(Status) {
	return func(st Status) { s.bus.Publish(t, st) }
}

func (s *Supervisor) startKeepalive() {
	if s.keepalive != nil {
		s.keepalive.Start()
	}
}

func (s *Supervisor) stopKeepalive() {
	if s.keepalive != nil {
		s.keepalive.Stop()
	}
}

func (s *Supervisor) record(t history.EventType, st Status) {
	if s.history == nil {
		return
	}
	rec := history.Record{
		Role:     string(st.Role),
		Name:     string(st.Role),
		PID:      st.PID,
		Command:  st.Command,
		Running:  st.Running,
		ExitCode: st.ExitCode,
	}
	if st.StartedAt != nil {
		rec.StartedAt = *st.StartedAt
	}
	if st.StoppedAt != nil {
		rec.StoppedAt = *st.StoppedAt
	}
	s.history.Record(history.NewEvent(t, rec))
}

// environ reads the settings at call time so edits apply on the next start.
func (s *Supervisor) environ(ctx context.Context) []string {
	var values map[string]string
	if s.settings != nil {
		v, err := s.settings.All(ctx)
		if err != nil {
			s.logger.Warn("reading settings failed; starting with the daemon environment", slog.Any("error", err))
		}
		values = v
	}
	return s.env.Merge(values)
}

// Process returns the managed process for role.
func (s *Supervisor) Process(role Role) (*ManagedProcess, error) {
	switch role {
	case RoleTracker:
		return s.tracker, nil
	case RoleNotifier:
		return s.notifier, nil
	default:
		return nil, fmt.Errorf("unknown role %q", role)
	}
}

func (s *Supervisor) Bus() *event.Bus { return s.bus }

func (s *Supervisor) Keepalive() *keepalive.Scheduler { return s.keepalive }

// StartTracker launches the tracker and, on success, the keepalive loop.
func (s *Supervisor) StartTracker(ctx context.Context) (Status, error) {
	return s.tracker.Start(s.trackerLaunch.spec(s.environ(ctx)))
}

// StopTracker requests termination and stops the keepalive loop at once.
func (s *Supervisor) StopTracker(_ context.Context) (Status, error) {
	st, err := s.tracker.Stop()
	if err != nil {
		// keepalive never outlives the tracker, whichever path got here
		s.stopKeepalive()
	}
	return st, err
}

func (s *Supervisor) StartNotifier(ctx context.Context) (Status, error) {
	return s.notifier.Start(s.notifierLaunch.spec(s.environ(ctx)))
}

func (s *Supervisor) StopNotifier(_ context.Context) (Status, error) {
	return s.notifier.Stop()
}

// Start dispatches to the role's start operation.
func (s *Supervisor) Start(ctx context.Context, role Role) (Status, error) {
	switch role {
	case RoleTracker:
		return s.StartTracker(ctx)
	case RoleNotifier:
		return s.StartNotifier(ctx)
	default:
		return Status{}, fmt.Errorf("unknown role %q", role)
	}
}

// Stop dispatches to the role's stop operation.
func (s *Supervisor) Stop(ctx context.Context, role Role) (Status, error) {
	switch role {
	case RoleTracker:
		return s.StopTracker(ctx)
	case RoleNotifier:
		return s.StopNotifier(ctx)
	default:
		return Status{}, fmt.Errorf("unknown role %q", role)
	}
}

// Status returns the status of role.
func (s *Supervisor) Status(role Role) (Status, error) {
	mp, err := s.Process(role)
	if err != nil {
		return Status{}, err
	}
	return mp.Status(), nil
}

// Statuses returns tracker and notifier status in that order.
func (s *Supervisor) Statuses() []Status {
	return []Status{s.tracker.Status(), s.notifier.Status()}
}

// Shutdown stops the keepalive loop, asks live children to terminate and
// waits for their output pumps to finish or ctx to expire.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.stopKeepalive()
	var waits []<-chan struct{}
	for _, mp := range []*ManagedProcess{s.tracker, s.notifier} {
		if !mp.Status().Running {
			continue
		}
		if _, err := mp.Stop(); err != nil {
			continue
		}
		if done := mp.Done(); done != nil {
			waits = append(waits, done)
		}
	}
	start := time.Now()
	for _, done := range waits {
		select {
		case <-done:
		case <-ctx.Done():
			s.logger.Warn("shutdown interrupted before children exited", slog.Any("error", ctx.Err()))
			return ctx.Err()
		}
	}
	if len(waits) > 0 {
		s.logger.Info("children stopped", slog.Int("count", len(waits)), slog.Duration("took", time.Since(start)))
	}
	return nil
}
