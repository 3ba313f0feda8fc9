package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/trackdeck/internal/auth"
	"github.com/loykin/trackdeck/internal/keepalive"
	"github.com/loykin/trackdeck/internal/logchan"
	mng "github.com/loykin/trackdeck/internal/manager"
	"github.com/loykin/trackdeck/internal/metrics"
	"github.com/loykin/trackdeck/internal/process"
	"github.com/loykin/trackdeck/internal/remote"
	"github.com/loykin/trackdeck/internal/store"
)

// ApplyNote follows every successful settings update in the live tracker log.
const ApplyNote = "changes take effect the next time the tracker starts."

// Deps are the components the router exposes. Remote, Settings, Gateway,
// Auth and Metrics are optional; their routes answer 503 or are not mounted.
type Deps struct {
	Supervisor *mng.Supervisor
	Remote     *remote.Checker
	Settings   store.Store
	// Channels maps a source name (tracker, bark, remote) to its log.
	Channels map[string]*logchan.Channel
	// Notes fans the SYSTEM lines about settings changes out to its
	// subscribers. They are not added to the channel's history.
	Notes   *logchan.Channel
	Gateway http.Handler
	Auth    *auth.Service
	Metrics prometheus.Gatherer
	Logger  *slog.Logger
}

// Router provides the dashboard's HTTP surface.
// Endpoints:
//
//	GET  /healthz, GET /metrics
//	GET  /ws                               live channel
//	POST /update_env                       legacy settings update
//	POST {basePath}/auth/login
//	GET  {basePath}/status
//	POST {basePath}/tracker/start|stop, {basePath}/notifier/start|stop
//	GET  {basePath}/logs/:source           text/plain
//	GET  {basePath}/remote_bark_status, {basePath}/keepalive_status
//	GET  {basePath}/settings, POST {basePath}/settings
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	d        Deps
	basePath string
	logger   *slog.Logger
}

func NewRouter(d Deps, basePath string) *Router {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{d: d, basePath: sanitizeBase(basePath), logger: logger.With(slog.String("component", "http"))}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	r.Register(g)
	return g
}

// Register mounts every route on g.
func (r *Router) Register(g gin.IRouter) {
	g.GET("/healthz", r.handleHealth)
	if r.d.Metrics != nil {
		g.GET("/metrics", gin.WrapH(metrics.HandlerFor(r.d.Metrics)))
	}

	authMW := r.d.Auth.GinAuth()
	if r.d.Gateway != nil {
		g.GET("/ws", authMW, gin.WrapH(r.d.Gateway))
	}
	g.POST("/update_env", authMW, r.handleUpdateEnv)

	base := g.Group(r.basePath)
	if r.d.Auth.Enabled() {
		base.POST("/auth/login", r.d.Auth.LoginHandler())
	}
	api := base.Group("", authMW)
	api.GET("/status", r.handleStatus)
	api.POST("/tracker/start", r.control(mng.RoleTracker, false))
	api.POST("/tracker/stop", r.control(mng.RoleTracker, true))
	api.POST("/notifier/start", r.control(mng.RoleNotifier, false))
	api.POST("/notifier/stop", r.control(mng.RoleNotifier, true))
	api.GET("/logs/:source", r.handleLogs)
	api.GET("/remote_bark_status", r.handleRemote)
	api.GET("/keepalive_status", r.handleKeepalive)
	api.GET("/settings", r.handleGetSettings)
	api.POST("/settings", r.handleSetSettings)
}

// NewServer builds an http.Server for handler with the daemon's timeouts.
// WriteTimeout stays zero because /ws connections are long-lived.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type controlResp struct {
	Status mng.Status `json:"status"`
	Error  string     `json:"error,omitempty"`
}

// RoleStatus is a role status plus a resource sample of the live child.
type RoleStatus struct {
	mng.Status
	Usage *process.Usage `json:"usage,omitempty"`
}

// StatusResp is the body of GET {base}/status.
type StatusResp struct {
	Tracker   RoleStatus        `json:"tracker"`
	Notifier  RoleStatus        `json:"notifier"`
	Keepalive *keepalive.Status `json:"keepalive,omitempty"`
}

// legacyResp is the /update_env response shape.
type legacyResp struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// SettingsResp is the body of POST {base}/settings.
type SettingsResp struct {
	store.UpdateResult
	Message string `json:"message"`
}

func (r *Router) handleHealth(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{"status": "ok"})
}

func (r *Router) roleStatus(role mng.Role) RoleStatus {
	mp, err := r.d.Supervisor.Process(role)
	if err != nil {
		return RoleStatus{}
	}
	rs := RoleStatus{Status: mp.Status()}
	if rs.Running {
		if u, err := mp.Usage(); err == nil {
			rs.Usage = &u
		}
	}
	return rs
}

func (r *Router) handleStatus(c *gin.Context) {
	resp := StatusResp{
		Tracker:  r.roleStatus(mng.RoleTracker),
		Notifier: r.roleStatus(mng.RoleNotifier),
	}
	if ka := r.d.Supervisor.Keepalive(); ka != nil {
		st := ka.Status()
		resp.Keepalive = &st
	}
	writeJSON(c, http.StatusOK, resp)
}

func (r *Router) control(role mng.Role, stop bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			st  mng.Status
			err error
		)
		if stop {
			st, err = r.d.Supervisor.Stop(c.Request.Context(), role)
		} else {
			st, err = r.d.Supervisor.Start(c.Request.Context(), role)
		}
		switch {
		case err == nil:
			writeJSON(c, http.StatusOK, controlResp{Status: st})
		case errors.Is(err, mng.ErrAlreadyRunning), errors.Is(err, mng.ErrNotRunning):
			writeJSON(c, http.StatusConflict, controlResp{Status: st, Error: err.Error()})
		case errors.Is(err, process.ErrExecutableNotFound):
			writeJSON(c, http.StatusUnprocessableEntity, controlResp{Status: st, Error: err.Error()})
		default:
			writeJSON(c, http.StatusInternalServerError, controlResp{Status: st, Error: err.Error()})
		}
	}
}

func (r *Router) handleLogs(c *gin.Context) {
	ch, ok := r.d.Channels[c.Param("source")]
	if !ok || ch == nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "unknown log source"})
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(ch.Render()))
}

func (r *Router) handleRemote(c *gin.Context) {
	if r.d.Remote == nil {
		writeJSON(c, http.StatusServiceUnavailable, errorResp{Error: "remote check is not available"})
		return
	}
	writeJSON(c, http.StatusOK, r.d.Remote.Check(c.Request.Context()))
}

func (r *Router) handleKeepalive(c *gin.Context) {
	ka := r.d.Supervisor.Keepalive()
	if ka == nil {
		writeJSON(c, http.StatusOK, keepalive.Status{State: keepalive.StateDisabled})
		return
	}
	writeJSON(c, http.StatusOK, ka.Status())
}

func (r *Router) handleGetSettings(c *gin.Context) {
	if r.d.Settings == nil {
		writeJSON(c, http.StatusServiceUnavailable, errorResp{Error: "settings store is not available"})
		return
	}
	all, err := r.d.Settings.All(c.Request.Context())
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, store.Visible(all))
}

// decodeSettings reads a non-empty JSON object of setting values.
func decodeSettings(c *gin.Context) (map[string]string, bool) {
	var raw map[string]any
	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil || len(raw) == 0 {
		return nil, false
	}
	values, err := settingValues(raw)
	if err != nil {
		return nil, false
	}
	return values, true
}

func (r *Router) update(ctx context.Context, values map[string]string) store.UpdateResult {
	res := store.Update(ctx, r.d.Settings, values)
	msg := res.Message()
	if res.Updated > 0 {
		r.logger.Info("settings updated", slog.Int("updated", res.Updated), slog.Int("failed", len(res.Failed())))
		if r.d.Notes != nil {
			r.d.Notes.Notify(logchan.TagSystem, msg+"\n"+ApplyNote)
		}
	} else {
		r.logger.Warn("settings update failed", slog.String("message", msg))
	}
	return res
}

func (r *Router) handleSetSettings(c *gin.Context) {
	if r.d.Settings == nil {
		writeJSON(c, http.StatusServiceUnavailable, errorResp{Error: "settings store is not available"})
		return
	}
	values, ok := decodeSettings(c)
	if !ok {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid request data"})
		return
	}
	res := r.update(c.Request.Context(), values)
	code := http.StatusOK
	if res.Updated == 0 {
		code = http.StatusInternalServerError
	}
	writeJSON(c, code, SettingsResp{UpdateResult: res, Message: res.Message()})
}

func (r *Router) handleUpdateEnv(c *gin.Context) {
	if r.d.Settings == nil {
		writeJSON(c, http.StatusServiceUnavailable, legacyResp{Status: "error", Message: "settings store is not available"})
		return
	}
	values, ok := decodeSettings(c)
	if !ok {
		writeJSON(c, http.StatusBadRequest, legacyResp{Status: "error", Message: "invalid request data"})
		return
	}
	res := r.update(c.Request.Context(), values)
	if res.Updated == 0 {
		writeJSON(c, http.StatusInternalServerError, legacyResp{Status: "error", Message: res.Message()})
		return
	}
	writeJSON(c, http.StatusOK, legacyResp{Status: "success", Message: res.Message()})
}
