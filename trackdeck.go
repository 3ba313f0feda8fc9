// Package trackdeck assembles the operator dashboard: the supervised tracker
// and notifier, their log channels, the keepalive loop, the remote health
// check and the HTTP/WebSocket surface.
package trackdeck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/trackdeck/internal/auth"
	cfg "github.com/loykin/trackdeck/internal/config"
	"github.com/loykin/trackdeck/internal/event"
	"github.com/loykin/trackdeck/internal/gateway"
	"github.com/loykin/trackdeck/internal/history"
	hfactory "github.com/loykin/trackdeck/internal/history/factory"
	"github.com/loykin/trackdeck/internal/keepalive"
	"github.com/loykin/trackdeck/internal/logchan"
	"github.com/loykin/trackdeck/internal/manager"
	"github.com/loykin/trackdeck/internal/metrics"
	"github.com/loykin/trackdeck/internal/remote"
	iapi "github.com/loykin/trackdeck/internal/server"
	"github.com/loykin/trackdeck/internal/store"
	sfactory "github.com/loykin/trackdeck/internal/store/factory"
)

// Re-export core types for external consumers.

type Config = cfg.Config

type Role = manager.Role

type Status = manager.Status

type KeepaliveStatus = keepalive.Status

type RemoteResult = remote.Result

const (
	RoleTracker  = manager.RoleTracker
	RoleNotifier = manager.RoleNotifier
)

// HealthPath is the daemon's own health route, also the keepalive target.
const HealthPath = "/healthz"

const settingsTimeout = 5 * time.Second

func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

func DefaultConfig() *Config { return cfg.Default() }

type Option func(*options)

type options struct {
	logger     *slog.Logger
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
	httpClient *http.Client
}

// WithLogger replaces the logger built from the [log] section.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithRegistry registers metrics on reg and serves them from it.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registerer, o.gatherer = reg, reg }
}

// WithHTTPClient sets the client used by keepalive and the remote check.
func WithHTTPClient(c *http.Client) Option { return func(o *options) { o.httpClient = c } }

// Dashboard owns every component of one daemon instance.
type Dashboard struct {
	cfg    *Config
	logger *slog.Logger

	tracker  *logchan.Channel
	notifier *logchan.Channel
	remoteCh *logchan.Channel

	settings  store.Store
	bus       *event.Bus
	keepalive *keepalive.Scheduler
	remote    *remote.Checker
	history   *history.Recorder
	sup       *manager.Supervisor
	auth      *auth.Service
	gateway   *gateway.Gateway
	router    *iapi.Router
}

// New builds a Dashboard from c. Log channels are opened and hydrated and the
// settings store schema is ensured; no child is started.
func New(c *Config, opts ...Option) (*Dashboard, error) {
	if c == nil {
		c = cfg.Default()
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	o := options{}
	for _, fn := range opts {
		fn(&o)
	}
	if o.logger == nil {
		o.logger = c.Log.Logger().NewSlogger()
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{}
	}
	if o.registerer == nil {
		o.registerer, o.gatherer = prometheus.DefaultRegisterer, prometheus.DefaultGatherer
	}

	d := &Dashboard{cfg: c, logger: o.logger}
	ok := false
	defer func() {
		if !ok {
			_ = d.closeResources()
		}
	}()

	if c.Metrics.Enabled {
		if err := metrics.Register(o.registerer); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}

	var err error
	if d.tracker, err = logchan.Open("tracker", c.Logs.TrackerPath(), o.logger); err != nil {
		return nil, err
	}
	if d.notifier, err = logchan.Open("bark", c.Logs.NotifierPath(), o.logger); err != nil {
		return nil, err
	}
	if d.remoteCh, err = logchan.Open("remote", c.Logs.RemotePath(), o.logger); err != nil {
		return nil, err
	}

	settings, err := sfactory.NewFromDSN(c.Settings.DSN)
	if err != nil {
		return nil, fmt.Errorf("open settings store: %w", err)
	}
	d.settings = settings
	ctx, cancel := context.WithTimeout(context.Background(), settingsTimeout)
	err = d.settings.EnsureSchema(ctx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("prepare settings store: %w", err)
	}

	if c.History.Enabled {
		sinks, err := hfactory.NewSinksFromDSNs(c.History.DSNs)
		if err != nil {
			return nil, fmt.Errorf("history sinks: %w", err)
		}
		d.history = history.NewRecorder(o.logger, sinks...)
	}

	d.bus = event.NewBus()
	d.keepalive = keepalive.New(
		func() keepalive.Config { return cfg.KeepaliveConfig(d.values(), HealthPath) },
		func(st keepalive.Status) { d.bus.Publish(event.KeepaliveStatus, st) },
		keepalive.WithHTTPClient(o.httpClient),
		keepalive.WithLogger(o.logger),
	)
	d.keepalive.Announce()
	d.remote = remote.NewChecker(func() remote.Config { return cfg.RemoteConfig(d.values()) }, d.remoteCh, o.httpClient, o.logger)

	d.sup = manager.NewSupervisor(manager.Deps{
		Tracker: manager.TrackerLaunch{
			Interpreter:     c.Tracker.Interpreter,
			InterpreterArgs: c.Tracker.InterpreterArgs,
			Script:          c.Tracker.Script,
			WorkDir:         c.Tracker.WorkDir,
		},
		Notifier: manager.NotifierLaunch{
			Executable: c.Notifier.Executable,
			Addr:       c.Notifier.Addr,
			DataDir:    c.Notifier.DataDir,
			WorkDir:    c.Notifier.WorkDir,
		},
		TrackerLogs:  d.tracker,
		NotifierLogs: d.notifier,
		Bus:          d.bus,
		Keepalive:    d.keepalive,
		History:      d.history,
		Settings:     d.settings,
		Logger:       o.logger,
	})

	if d.auth, err = auth.NewService(auth.Config{
		Enabled:      c.Auth.Enabled,
		Username:     c.Auth.Username,
		PasswordHash: c.Auth.PasswordHash,
		JWTSecret:    c.Auth.JWTSecret,
		TokenTTL:     c.Auth.TokenTTL,
	}); err != nil {
		return nil, err
	}

	d.gateway = gateway.New(gateway.Sources{
		Tracker:  d.tracker,
		Notifier: d.notifier,
		Remote:   d.remoteCh,
		Bus:      d.bus,
	}, d.sup, gateway.Options{
		CommandRate:  c.Gateway.CommandRate,
		CommandBurst: c.Gateway.CommandBurst,
		Logger:       o.logger,
	})

	deps := iapi.Deps{
		Supervisor: d.sup,
		Remote:     d.remote,
		Settings:   d.settings,
		Channels: map[string]*logchan.Channel{
			d.tracker.Name():  d.tracker,
			d.notifier.Name(): d.notifier,
			d.remoteCh.Name(): d.remoteCh,
		},
		Notes:   d.tracker,
		Gateway: d.gateway,
		Auth:    d.auth,
		Logger:  o.logger,
	}
	if c.Metrics.Enabled {
		deps.Metrics = o.gatherer
	}
	d.router = iapi.NewRouter(deps, c.Server.BasePath)
	ok = true
	return d, nil
}

// values reads the current settings. A failing store yields no values, which
// leaves keepalive and the remote check unconfigured for that read.
func (d *Dashboard) values() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), settingsTimeout)
	defer cancel()
	v, err := d.settings.All(ctx)
	if err != nil {
		d.logger.Warn("reading settings failed", slog.Any("error", err))
		return nil
	}
	return v
}

func (d *Dashboard) Config() *Config                 { return d.cfg }
func (d *Dashboard) Logger() *slog.Logger            { return d.logger }
func (d *Dashboard) Supervisor() *manager.Supervisor { return d.sup }
func (d *Dashboard) Settings() store.Store           { return d.settings }
func (d *Dashboard) Bus() *event.Bus                 { return d.bus }

// Handler returns the full HTTP surface (REST, /ws, /healthz, /metrics).
func (d *Dashboard) Handler() http.Handler { return d.router.Handler() }

// Register mounts the HTTP surface on an existing gin router.
func (d *Dashboard) Register(g gin.IRouter) { d.router.Register(g) }

// NewHTTPServer returns an http.Server for the dashboard on the configured listen address.
func (d *Dashboard) NewHTTPServer() *http.Server {
	return iapi.NewServer(d.cfg.Server.Listen, d.Handler())
}

func (d *Dashboard) Start(ctx context.Context, role Role) (Status, error) {
	return d.sup.Start(ctx, role)
}

func (d *Dashboard) Stop(ctx context.Context, role Role) (Status, error) {
	return d.sup.Stop(ctx, role)
}

func (d *Dashboard) Status(role Role) (Status, error) { return d.sup.Status(role) }

func (d *Dashboard) KeepaliveStatus() KeepaliveStatus { return d.keepalive.Status() }

// RemoteCheck probes the notifier server named by BARK_SERVER.
func (d *Dashboard) RemoteCheck(ctx context.Context) RemoteResult { return d.remote.Check(ctx) }

// UpdateSettings writes changes key by key, as POST /settings does.
func (d *Dashboard) UpdateSettings(ctx context.Context, changes map[string]string) store.UpdateResult {
	return store.Update(ctx, d.settings, changes)
}

// Shutdown disconnects subscribers, stops the children and releases stores
// and log files. Children still alive when ctx expires are left running.
func (d *Dashboard) Shutdown(ctx context.Context) error {
	d.gateway.Close()
	err := d.sup.Shutdown(ctx)
	return errors.Join(err, d.closeResources())
}

func (d *Dashboard) closeResources() error {
	var errs []error
	if d.history != nil {
		errs = append(errs, d.history.Close())
	}
	if d.settings != nil {
		errs = append(errs, d.settings.Close())
	}
	for _, ch := range []*logchan.Channel{d.tracker, d.notifier, d.remoteCh} {
		if ch != nil {
			errs = append(errs, ch.Close())
		}
	}
	return errors.Join(errs...)
}

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
