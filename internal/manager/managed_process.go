package manager

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/trackdeck/internal/logchan"
	"github.com/loykin/trackdeck/internal/metrics"
	"github.com/loykin/trackdeck/internal/process"
)

// Messages are the operator-facing lines a ManagedProcess writes for control
// operations. Lines tagged SYSTEM are marked as such; the rest use the role tag.
type Messages struct {
	Starting       string // SYSTEM
	Started        string
	AlreadyRunning string
	StartFailed    string // formatted with the error
	NotFound       string // formatted with the executable path
	StopSent       string // SYSTEM
	NotRunning     string
}

func defaultMessages(name string) Messages {
	return Messages{
		Starting:       "starting " + name + "...",
		Started:        name + " started.",
		AlreadyRunning: name + " is already running.",
		StartFailed:    "failed to start " + name + ": %v",
		NotFound:       "start failed: executable '%s' not found.",
		StopSent:       "stop signal sent to " + name + ".",
		NotRunning:     name + " is not running.",
	}
}

// Hooks connect a ManagedProcess to the rest of the daemon. All are optional
// and are called without the state lock held.
type Hooks struct {
	// Publish receives every status announcement, serialized per process.
	Publish func(Status)
	// Started runs after a successful spawn and before the output pump starts.
	Started func(Status)
	// Stopping runs after the termination signal was delivered.
	Stopping func(Status)
	// Exited runs after the terminal transition to Stopped.
	Exited func(Status)
}

// ManagedProcess owns one role's child: spawn, output pump, termination and
// the terminal state transition.
//
// Lock order: ctl -> (channel lock) -> pub -> mu. The output pump never takes
// ctl, so control operations cannot deadlock against a running pump.
type ManagedProcess struct {
	role   Role
	tag    logchan.Tag
	logs   *logchan.Channel
	msgs   Messages
	hooks  Hooks
	logger *slog.Logger

	ctl sync.Mutex // one control operation per role at a time
	pub sync.Mutex // orders status announcements with state transitions

	mu        sync.RWMutex
	state     State
	proc      *process.Process
	pid       int
	command   string
	exitCode  *int
	startedAt time.Time
	stoppedAt time.Time
	pumpDone  chan struct{}
}

func NewManagedProcess(role Role, tag logchan.Tag, logs *logchan.Channel, hooks Hooks, logger *slog.Logger) *ManagedProcess {
	if logger == nil {
		logger = slog.Default()
	}
	return &ManagedProcess{
		role:   role,
		tag:    tag,
		logs:   logs,
		msgs:   defaultMessages(string(role)),
		hooks:  hooks,
		logger: logger.With(slog.String("role", string(role))),
		state:  StateIdle,
	}
}

// SetMessages overrides the operator-facing control lines.
func (mp *ManagedProcess) SetMessages(m Messages) { mp.msgs = m }

func (mp *ManagedProcess) Role() Role { return mp.role }

// Logs returns the channel this process writes to.
func (mp *ManagedProcess) Logs() *logchan.Channel { return mp.logs }

// Start spawns spec unless a child is already live. On success the state is
// Running and the output pump owns the child's combined output stream.
func (mp *ManagedProcess) Start(spec process.Spec) (Status, error) {
	mp.ctl.Lock()
	defer mp.ctl.Unlock()

	if mp.currentState().Live() {
		mp.logs.Append(mp.tag, mp.msgs.AlreadyRunning)
		return mp.announce(), ErrAlreadyRunning
	}

	mp.logs.Append(logchan.TagSystem, mp.msgs.Starting)
	proc, out, err := process.Start(spec)
	if err != nil {
		if errors.Is(err, process.ErrExecutableNotFound) {
			mp.logs.Append(mp.tag, fmt.Sprintf(mp.msgs.NotFound, spec.Path))
		} else {
			mp.logs.Append(mp.tag, fmt.Sprintf(mp.msgs.StartFailed, err))
		}
		mp.logger.Warn("start failed", slog.String("path", spec.Path), slog.Any("error", err))
		return mp.announce(), err
	}

	done := make(chan struct{})
	mp.mu.Lock()
	mp.proc = proc
	mp.pid = proc.PID()
	mp.command = spec.CommandLine()
	mp.exitCode = nil
	mp.startedAt = proc.StartedAt()
	mp.stoppedAt = time.Time{}
	mp.pumpDone = done
	mp.mu.Unlock()
	mp.setState(StateRunning)
	metrics.IncStart(string(mp.role))
	mp.logger.Info("child started", slog.Int("pid", proc.PID()), slog.String("command", mp.command))

	mp.logs.Append(mp.tag, mp.msgs.Started)
	st := mp.announce()
	if mp.hooks.Started != nil {
		mp.hooks.Started(st)
	}
	go mp.pump(proc, out, done)
	return st, nil
}

// Stop sends a graceful termination request and returns without waiting.
// The transition to Stopped is made by the output pump once the child is gone.
// Stopping an already stopping child re-delivers the request.
func (mp *ManagedProcess) Stop() (Status, error) {
	mp.ctl.Lock()
	defer mp.ctl.Unlock()

	mp.mu.RLock()
	state, proc := mp.state, mp.proc
	mp.mu.RUnlock()
	if !state.Live() || proc == nil {
		mp.logs.Append(mp.tag, mp.msgs.NotRunning)
		return mp.announce(), ErrNotRunning
	}

	mp.logs.Append(logchan.TagSystem, mp.msgs.StopSent)
	if state == StateRunning {
		mp.setStateIf(StateRunning, StateStopping)
	}
	if err := proc.Terminate(); err != nil {
		mp.logger.Warn("terminate failed", slog.Int("pid", proc.PID()), slog.Any("error", err))
		mp.logs.Append(mp.tag, fmt.Sprintf("failed to stop %s: %v", mp.role, err))
	}
	metrics.IncStop(string(mp.role))
	st := mp.announce()
	if mp.hooks.Stopping != nil {
		mp.hooks.Stopping(st)
	}
	return st, nil
}

// Status returns the current status snapshot.
func (mp *ManagedProcess) Status() Status {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return mp.statusLocked()
}

// Usage samples the live child's resources.
func (mp *ManagedProcess) Usage() (process.Usage, error) {
	mp.mu.RLock()
	proc := mp.proc
	mp.mu.RUnlock()
	if proc == nil {
		return process.Usage{}, ErrNotRunning
	}
	return proc.Usage()
}

// Done returns a channel closed when the current run's pump has finished,
// or nil if no run was ever started.
func (mp *ManagedProcess) Done() <-chan struct{} {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return mp.pumpDone
}

// unlessLive runs fn under the control lock unless a child is live, so fn
// cannot interleave with a Start that follows an exit.
func (mp *ManagedProcess) unlessLive(fn func()) {
	mp.ctl.Lock()
	defer mp.ctl.Unlock()
	if mp.currentState().Live() {
		return
	}
	fn()
}

// Announce publishes the current status.
func (mp *ManagedProcess) Announce() Status { return mp.announce() }

func (mp *ManagedProcess) statusLocked() Status {
	st := Status{
		Role:    mp.role,
		Running: mp.state.Live(),
		State:   mp.state.String(),
	}
	if !mp.startedAt.IsZero() {
		st.PID = mp.pid
		st.Command = mp.command
		t := mp.startedAt.UTC()
		st.StartedAt = &t
	}
	if !mp.stoppedAt.IsZero() {
		t := mp.stoppedAt.UTC()
		st.StoppedAt = &t
	}
	if mp.exitCode != nil {
		c := *mp.exitCode
		st.ExitCode = &c
	}
	return st
}

func (mp *ManagedProcess) announce() Status {
	mp.pub.Lock()
	defer mp.pub.Unlock()
	st := mp.Status()
	if mp.hooks.Publish != nil {
		mp.hooks.Publish(st)
	}
	return st
}

func (mp *ManagedProcess) currentState() State {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return mp.state
}

func (mp *ManagedProcess) setState(next State) {
	mp.mu.Lock()
	prev := mp.state
	mp.state = next
	mp.mu.Unlock()
	mp.recordTransition(prev, next)
}

func (mp *ManagedProcess) setStateIf(from, to State) {
	mp.mu.Lock()
	if mp.state != from {
		mp.mu.Unlock()
		return
	}
	mp.state = to
	mp.mu.Unlock()
	mp.recordTransition(from, to)
}

func (mp *ManagedProcess) recordTransition(prev, next State) {
	if prev == next {
		return
	}
	role := string(mp.role)
	metrics.RecordStateTransition(role, prev.String(), next.String())
	metrics.SetCurrentState(role, prev.String(), false)
	metrics.SetCurrentState(role, next.String(), true)
}

// pump is the only reader of the child's output and the only writer of the
// terminal state. It runs once per started child.
func (mp *ManagedProcess) pump(proc *process.Process, out io.ReadCloser, done chan struct{}) {
	defer close(done)

	r := bufio.NewReader(out)
	for {
		line, err := r.ReadString('\n')
		if line != "" {
			mp.logs.Append(mp.tag, line)
		}
		if err == nil {
			continue
		}
		if !errors.Is(err, io.EOF) {
			mp.logs.Append(mp.tag, "ERROR: reading output failed: "+err.Error())
			mp.logger.Warn("output read failed", slog.Any("error", err))
		}
		break
	}
	_ = out.Close()

	code, err := proc.Wait()
	if err != nil {
		mp.logger.Warn("wait failed", slog.Any("error", err))
	}
	mp.logs.Append(mp.tag, fmt.Sprintf("stopped, exit code=%d", code))
	mp.logger.Info("child exited", slog.Int("pid", proc.PID()), slog.Int("exit_code", code))

	mp.pub.Lock()
	mp.mu.Lock()
	prev := mp.state
	mp.state = StateStopped
	mp.proc = nil
	mp.exitCode = &code
	mp.stoppedAt = time.Now()
	st := mp.statusLocked()
	mp.mu.Unlock()
	mp.recordTransition(prev, StateStopped)
	if mp.hooks.Publish != nil {
		mp.hooks.Publish(st)
	}
	mp.pub.Unlock()

	metrics.IncExit(string(mp.role), code)
	if mp.hooks.Exited != nil {
		mp.hooks.Exited(st)
	}
}
