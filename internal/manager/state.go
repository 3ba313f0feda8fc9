package manager

import (
	"errors"
	"time"
)

var (
	ErrAlreadyRunning = errors.New("already running")
	ErrNotRunning     = errors.New("not running")
)

// Role is the logical identity of a supervised child.
type Role string

const (
	RoleTracker  Role = "tracker"
	RoleNotifier Role = "notifier"
)

// State of a ManagedProcess.
//
// Idle -> Running -> (Stopping) -> Stopped -> Running ...
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Live reports whether a child exists in this state.
func (s State) Live() bool { return s == StateRunning || s == StateStopping }

// Status is the externally visible state of one role. Running stays true
// while a stop is in flight: it follows the OS process, not the request.
type Status struct {
	Role      Role       `json:"role"`
	Running   bool       `json:"running"`
	State     string     `json:"state"`
	PID       int        `json:"pid,omitempty"`
	Command   string     `json:"command,omitempty"`
	ExitCode  *int       `json:"exit_code,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	StoppedAt *time.Time `json:"stopped_at,omitempty"`
}
