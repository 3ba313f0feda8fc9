package logger

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"time"
)

const ansiReset = "\033[0m"

var levelColors = map[slog.Level]string{
	slog.LevelDebug: "\033[36m",
	slog.LevelInfo:  "\033[32m",
	slog.LevelWarn:  "\033[33m",
	slog.LevelError: "\033[31m",
}

// ColorTextHandler renders records like slog.TextHandler, preceded by the
// level in color. The TextHandler escapes control bytes inside values, so
// the colored prefix is written outside of it.
type ColorTextHandler struct {
	w        io.Writer
	mu       *sync.Mutex
	opts     slog.HandlerOptions
	derive   []func(slog.Handler) slog.Handler
	showTime bool
}

func NewColorTextHandler(w io.Writer, opts *slog.HandlerOptions, showTime bool) *ColorTextHandler {
	o := slog.HandlerOptions{}
	if opts != nil {
		o = *opts
	}
	next := o.ReplaceAttr
	o.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
		if len(groups) == 0 && a.Key == slog.LevelKey {
			return slog.Attr{}
		}
		if next != nil {
			return next(groups, a)
		}
		return a
	}
	return &ColorTextHandler{w: w, mu: &sync.Mutex{}, opts: o, showTime: showTime}
}

func (h *ColorTextHandler) Enabled(_ context.Context, l slog.Level) bool {
	lvl := slog.LevelInfo
	if h.opts.Level != nil {
		lvl = h.opts.Level.Level()
	}
	return l >= lvl
}

func (h *ColorTextHandler) Handle(ctx context.Context, r slog.Record) error {
	color, ok := levelColors[r.Level]
	if !ok {
		color = ansiReset
	}
	if !h.showTime {
		r.Time = time.Time{}
	}

	var buf bytes.Buffer
	buf.WriteString(color)
	buf.WriteString(r.Level.String())
	buf.WriteString(ansiReset)
	buf.WriteByte(' ')
	var inner slog.Handler = slog.NewTextHandler(&buf, &h.opts)
	for _, d := range h.derive {
		inner = d(inner)
	}
	if err := inner.Handle(ctx, r); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

func (h *ColorTextHandler) with(d func(slog.Handler) slog.Handler) *ColorTextHandler {
	c := *h
	c.derive = append(append([]func(slog.Handler) slog.Handler(nil), h.derive...), d)
	return &c
}

func (h *ColorTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	return h.with(func(s slog.Handler) slog.Handler { return s.WithAttrs(attrs) })
}

func (h *ColorTextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return h.with(func(s slog.Handler) slog.Handler { return s.WithGroup(name) })
}
