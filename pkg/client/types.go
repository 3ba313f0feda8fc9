package client

import "time"

// RoleStatus is the status of one supervised role.
type RoleStatus struct {
	Role      string     `json:"role"`
	Running   bool       `json:"running"`
	State     string     `json:"state"`
	PID       int        `json:"pid,omitempty"`
	Command   string     `json:"command,omitempty"`
	ExitCode  *int       `json:"exit_code,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	StoppedAt *time.Time `json:"stopped_at,omitempty"`
	Usage     *Usage     `json:"usage,omitempty"`
}

// Usage is a resource sample of a live child.
type Usage struct {
	CPUPercent float64 `json:"cpu_percent"`
	RSSBytes   uint64  `json:"rss_bytes"`
	Threads    int32   `json:"threads"`
}

// KeepaliveStatus mirrors the daemon's keepalive monitoring view.
type KeepaliveStatus struct {
	Running         bool       `json:"running"`
	Configured      bool       `json:"configured"`
	URL             *string    `json:"url"`
	State           string     `json:"state"`
	IntervalSeconds int        `json:"interval_seconds"`
	LastCode        *int       `json:"last_code"`
	LastError       *string    `json:"last_error"`
	LastAt          *time.Time `json:"last_at"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Tracker   RoleStatus       `json:"tracker"`
	Notifier  RoleStatus       `json:"notifier"`
	Keepalive *KeepaliveStatus `json:"keepalive,omitempty"`
}

// ControlResponse is returned by the start and stop endpoints. Error is set
// when the command was rejected (already running, not running, spawn failure).
type ControlResponse struct {
	Status RoleStatus `json:"status"`
	Error  string     `json:"error,omitempty"`
}

// RemoteResult is the body of GET /remote_bark_status.
type RemoteResult struct {
	Configured bool    `json:"configured"`
	URL        *string `json:"url"`
	OK         bool    `json:"ok"`
	StatusCode *int    `json:"status_code"`
	LatencyMS  *int64  `json:"latency_ms"`
	Error      *string `json:"error"`
}

type KeyResult struct {
	Key   string `json:"key"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// SettingsResponse is the body of POST /settings.
type SettingsResponse struct {
	Updated int         `json:"updated"`
	Results []KeyResult `json:"results"`
	Message string      `json:"message"`
}

// Token is returned by the login endpoint.
type Token struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
