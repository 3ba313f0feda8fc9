package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFileWriter_Defaults(t *testing.T) {
	if w := (Config{}).FileWriter(); w != nil {
		t.Fatalf("expected nil writer without a path")
	}
	p := filepath.Join(t.TempDir(), "trackdeck.log")
	w := Config{File: FileConfig{Path: p}}.FileWriter()
	l, ok := w.(*lj.Logger)
	if !ok {
		t.Fatalf("expected lumberjack logger, got %T", w)
	}
	if l.MaxSize != DefaultMaxSizeMB || l.MaxBackups != DefaultMaxBackups || l.MaxAge != DefaultMaxAgeDays {
		t.Fatalf("defaults not applied: %+v", l)
	}
	_ = w.Close()
}

func TestFileWriter_Overrides(t *testing.T) {
	p := filepath.Join(t.TempDir(), "trackdeck.log")
	w := Config{File: FileConfig{Path: p, MaxSizeMB: 1, MaxBackups: 9, MaxAgeDays: 2, Compress: true}}.FileWriter()
	l := w.(*lj.Logger)
	if l.MaxSize != 1 || l.MaxBackups != 9 || l.MaxAge != 2 || !l.Compress {
		t.Fatalf("overrides not applied: %+v", l)
	}
	_ = w.Close()
}

func TestNewSlogger_TextWithoutTime(t *testing.T) {
	var buf bytes.Buffer
	log := Config{Slog: SlogConfig{Level: LevelInfo, Format: FormatText}}.NewSloggerTo(&buf)
	log.Debug("hidden")
	log.Info("visible", slog.String("role", "tracker"))
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug record should be filtered: %q", out)
	}
	if !strings.Contains(out, "role=tracker") || strings.Contains(out, "time=") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestNewSlogger_ColorAndFile(t *testing.T) {
	var buf bytes.Buffer
	p := filepath.Join(t.TempDir(), "d.log")
	cfg := Config{
		Slog: SlogConfig{Level: LevelDebug, Color: true, TimeStamps: true},
		File: FileConfig{Path: p},
	}
	log := cfg.NewSloggerTo(&buf).With(slog.String("component", "test"))
	log.Warn("careful")

	if !strings.Contains(buf.String(), "\033[33m") {
		t.Fatalf("expected yellow level on terminal: %q", buf.String())
	}
	var b []byte
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		b, _ = os.ReadFile(p)
		if len(b) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	s := string(b)
	if !strings.Contains(s, "careful") || !strings.Contains(s, "component=test") {
		t.Fatalf("file log missing record: %q", s)
	}
	if strings.Contains(s, "\033[") {
		t.Fatalf("file log must not contain color codes: %q", s)
	}
}

func TestNewSlogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	Config{Slog: SlogConfig{Format: FormatJSON, TimeStamps: true}}.NewSloggerTo(&buf).Info("hello")
	if !strings.HasPrefix(buf.String(), "{") || !strings.Contains(buf.String(), `"msg":"hello"`) {
		t.Fatalf("unexpected json output: %q", buf.String())
	}
}

func TestColorTextHandlerWritesRawEscapes(t *testing.T) {
	var buf bytes.Buffer
	h := NewColorTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}, false)
	log := slog.New(h).With(slog.String("role", "tracker")).WithGroup("probe")
	log.Debug("dropped")
	log.Error("failed", slog.Int("code", 503))

	out := buf.String()
	if !strings.HasPrefix(out, "\033[31mERROR\033[0m ") {
		t.Fatalf("expected red level prefix: %q", out)
	}
	if strings.Contains(out, `\x1b`) || strings.Contains(out, "level=") || strings.Contains(out, "dropped") {
		t.Fatalf("unexpected output: %q", out)
	}
	if !strings.Contains(out, "msg=failed role=tracker probe.code=503") {
		t.Fatalf("attrs or group lost: %q", out)
	}
}
