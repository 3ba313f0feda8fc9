package logchan

import (
	"regexp"
	"strings"
	"time"
)

// Tag identifies the producer of a line.
type Tag string

const (
	TagTracker     Tag = "TRACKER"
	TagBark        Tag = "BARK"
	TagSystem      Tag = "SYSTEM"
	TagRemoteCheck Tag = "REMOTE-CHECK"
)

// TimeLayout is the on-disk timestamp format (UTC, millisecond precision).
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Line is one immutable entry of a channel.
type Line struct {
	Seq  uint64    `json:"seq"`
	Tag  Tag       `json:"tag"`
	Time time.Time `json:"time"`
	Text string    `json:"text"`

	// raw holds the exact bytes a hydrated line was read from.
	raw      string
	hydrated bool
}

var linePattern = regexp.MustCompile(`^\[([A-Z][A-Z0-9_-]*)\] (\S+) (.*)$`)

// String renders the line in its persisted form, without the trailing newline.
func (l Line) String() string {
	if l.hydrated {
		return l.raw
	}
	return "[" + string(l.Tag) + "] " + l.Time.UTC().Format(TimeLayout) + " " + l.Text
}

// parseLine reconstructs a Line from its persisted form. Lines written by
// older versions (no timestamp) keep their tag when present and are otherwise
// carried as raw text.
func parseLine(s string) Line {
	l := Line{raw: s, hydrated: true, Text: s}
	if m := linePattern.FindStringSubmatch(s); m != nil {
		if ts, err := time.Parse(TimeLayout, m[2]); err == nil {
			l.Tag, l.Time, l.Text = Tag(m[1]), ts, m[3]
			return l
		}
	}
	if strings.HasPrefix(s, "[") {
		if end := strings.Index(s, "] "); end > 1 {
			l.Tag = Tag(s[1:end])
			l.Text = s[end+2:]
		}
	}
	return l
}

// splitText normalizes raw output into non-empty single-line pieces.
func splitText(text string) []string {
	parts := strings.Split(text, "\n")
	out := parts[:0]
	for _, p := range parts {
		p = strings.TrimRight(p, "\r")
		if strings.TrimSpace(p) == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
