// Package remote checks the reachability of the external notification server.
package remote

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/loykin/trackdeck/internal/logchan"
	"github.com/loykin/trackdeck/internal/metrics"
	"github.com/loykin/trackdeck/internal/probe"
)

// DefaultHealthPath is appended to the server URL when none is configured.
const DefaultHealthPath = "/healthz"

const notConfigured = "BARK_SERVER not configured"

// Config is resolved for every check.
type Config struct {
	Server     string
	HealthPath string
}

// URL joins server and health path.
func (c Config) URL() string {
	if strings.TrimSpace(c.Server) == "" {
		return ""
	}
	p := c.HealthPath
	if p == "" {
		p = DefaultHealthPath
	}
	return strings.TrimRight(strings.TrimSpace(c.Server), "/") + "/" + strings.TrimLeft(p, "/")
}

// Result is the response of remote_bark_status.
type Result struct {
	Configured bool    `json:"configured"`
	URL        *string `json:"url"`
	OK         bool    `json:"ok"`
	StatusCode *int    `json:"status_code"`
	LatencyMS  *int64  `json:"latency_ms"`
	Error      *string `json:"error"`
}

// Checker probes the notifier on demand. Checks are serialized, which also
// makes it the single producer of its log channel.
type Checker struct {
	resolve func() Config
	logs    *logchan.Channel
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger

	mu sync.Mutex
}

func NewChecker(resolve func() Config, logs *logchan.Channel, client *http.Client, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		resolve: resolve,
		logs:    logs,
		client:  client,
		timeout: probe.DefaultTimeout,
		logger:  logger.With(slog.String("component", "remote")),
	}
}

// SetTimeout overrides the probe timeout.
func (c *Checker) SetTimeout(d time.Duration) { c.timeout = d }

// Check probes the configured server. Without BARK_SERVER no request is made.
func (c *Checker) Check(ctx context.Context) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	var cfg Config
	if c.resolve != nil {
		cfg = c.resolve()
	}
	target := cfg.URL()
	if target == "" {
		msg := notConfigured
		c.append(msg)
		metrics.IncRemoteCheck("unconfigured")
		return Result{Configured: false, Error: &msg}
	}

	out := probe.Get(ctx, c.client, target, c.timeout)
	res := Result{Configured: true, URL: &target, OK: out.OK()}
	if out.StatusCode != 0 {
		code := out.StatusCode
		res.StatusCode = &code
		ms := out.Latency.Milliseconds()
		res.LatencyMS = &ms
	}
	if !res.OK {
		msg := out.ErrorText()
		res.Error = &msg
	}

	switch {
	case res.OK:
		metrics.IncRemoteCheck("ok")
		c.append(fmt.Sprintf("GET %s -> %d in %dms", target, out.StatusCode, out.Latency.Milliseconds()))
	case out.StatusCode != 0:
		metrics.IncRemoteCheck("error")
		c.append(fmt.Sprintf("GET %s -> %d in %dms: %s", target, out.StatusCode, out.Latency.Milliseconds(), *res.Error))
	default:
		metrics.IncRemoteCheck("error")
		c.append(fmt.Sprintf("GET %s failed: %s", target, *res.Error))
		c.logger.Warn("remote check failed", slog.String("url", target), slog.String("error", *res.Error))
	}
	return res
}

func (c *Checker) append(text string) {
	if c.logs != nil {
		c.logs.Append(logchan.TagRemoteCheck, text)
	}
}
