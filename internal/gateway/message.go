package gateway

import (
	"time"

	"github.com/loykin/trackdeck/internal/event"
	"github.com/loykin/trackdeck/internal/logchan"
)

// Server to client message types. State events use their event.Type name.
const (
	TypeSnapshot = "snapshot"
	TypePong     = "pong"
	TypeError    = "error"
)

// Client to server message types.
const (
	TypeStartScript     = "start_script"
	TypeStopScript      = "stop_script"
	TypeStartBarkServer = "start_bark_server"
	TypeStopBarkServer  = "stop_bark_server"
	TypeRequestRefresh  = "request_refresh"
	TypePing            = "ping"
)

// RefreshNote is sent to the requesting client after a manual refresh.
const RefreshNote = "page state refreshed manually."

// Message is one WebSocket frame.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type inbound struct {
	Type string `json:"type"`
}

// LogPayload carries one live log line.
type LogPayload struct {
	Seq       uint64      `json:"seq"`
	SourceTag logchan.Tag `json:"source_tag"`
	Time      time.Time   `json:"time"`
	Text      string      `json:"text"`
}

// ErrorPayload is the data of an error message.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Snapshot is the first message every subscriber receives.
type Snapshot struct {
	ScriptStatus     any    `json:"script_status"`
	BarkServerStatus any    `json:"bark_server_status"`
	KeepaliveStatus  any    `json:"keepalive_status"`
	TrackerLog       string `json:"tracker_log"`
	BarkLog          string `json:"bark_log"`
	RemoteLog        string `json:"remote_log"`
}

func (s *Snapshot) setLog(source, text string) {
	switch source {
	case "tracker":
		s.TrackerLog = text
	case "bark":
		s.BarkLog = text
	case "remote":
		s.RemoteLog = text
	}
}

func (s *Snapshot) setEvents(events []event.Event) {
	for _, e := range events {
		switch e.Type {
		case event.ScriptStatus:
			s.ScriptStatus = e.Data
		case event.BarkServerStatus:
			s.BarkServerStatus = e.Data
		case event.KeepaliveStatus:
			s.KeepaliveStatus = e.Data
		}
	}
}

func logMessage(source string, l logchan.Line) Message {
	return Message{
		Type: source + "_log",
		Data: LogPayload{Seq: l.Seq, SourceTag: l.Tag, Time: l.Time, Text: l.Text},
	}
}

func fullLogMessage(source string, lines []logchan.Line) Message {
	return Message{Type: "full_" + source + "_log", Data: logchan.Render(lines)}
}

func errorMessage(msg string) Message {
	return Message{Type: TypeError, Data: ErrorPayload{Message: msg}}
}
