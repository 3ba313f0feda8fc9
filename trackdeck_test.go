//go:build !windows

package trackdeck

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	script := filepath.Join(dir, "main.sh")
	require.NoError(t, os.WriteFile(script, []byte("echo \"tracking $TRACKING_NUMBER\"\n"), 0o600))

	c := DefaultConfig()
	c.Tracker.Interpreter = "/bin/sh"
	c.Tracker.InterpreterArgs = nil
	c.Tracker.Script = script
	c.Notifier.Executable = filepath.Join(dir, "bark-server")
	c.Notifier.DataDir = filepath.Join(dir, "bark-data")
	c.Logs.Dir = filepath.Join(dir, "logs")
	c.Settings.DSN = filepath.Join(dir, ".env")
	return c
}

func newDashboard(t *testing.T, c *Config) *Dashboard {
	t.Helper()
	d, err := New(c, WithRegistry(prometheus.NewRegistry()))
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = d.Shutdown(ctx)
	})
	return d
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	c := testConfig(t)
	c.Server.Listen = "not an address"
	_, err := New(c)
	assert.Error(t, err)
}

func TestSettingsReachTheTracker(t *testing.T) {
	c := testConfig(t)
	d := newDashboard(t, c)

	res := d.UpdateSettings(context.Background(), map[string]string{"TRACKING_NUMBER": "TN42"})
	require.Equal(t, 1, res.Updated)
	b, err := os.ReadFile(c.Settings.DSN)
	require.NoError(t, err)
	assert.Contains(t, string(b), "TRACKING_NUMBER")

	_, err = d.Start(context.Background(), RoleTracker)
	require.NoError(t, err)
	mp, err := d.Supervisor().Process(RoleTracker)
	require.NoError(t, err)
	select {
	case <-mp.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("tracker did not exit")
	}

	logs, err := os.ReadFile(c.Logs.TrackerPath())
	require.NoError(t, err)
	assert.Contains(t, string(logs), "[TRACKER] ")
	assert.Contains(t, string(logs), " tracking TN42\n")
	st, err := d.Status(RoleTracker)
	require.NoError(t, err)
	assert.False(t, st.Running)
	require.NotNil(t, st.ExitCode)
	assert.Equal(t, 0, *st.ExitCode)
}

func TestLogsSurviveRestart(t *testing.T) {
	c := testConfig(t)
	d, err := New(c, WithRegistry(prometheus.NewRegistry()))
	require.NoError(t, err)
	_, err = d.Stop(context.Background(), RoleNotifier)
	require.Error(t, err)
	before := d.tracker.Render() + d.notifier.Render()
	require.NoError(t, d.Shutdown(context.Background()))

	again := newDashboard(t, c)
	assert.Equal(t, before, again.tracker.Render()+again.notifier.Render())
	assert.Contains(t, again.notifier.Render(), "bark server is not running.")
}

func TestHandlerServesSnapshotOverWebSocket(t *testing.T) {
	c := testConfig(t)
	c.Metrics.Enabled = true
	d := newDashboard(t, c)
	srv := httptest.NewServer(d.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, b, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg struct {
		Type string `json:"type"`
		Data struct {
			ScriptStatus    Status          `json:"script_status"`
			KeepaliveStatus KeepaliveStatus `json:"keepalive_status"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(b, &msg))
	assert.Equal(t, "snapshot", msg.Type)
	assert.Equal(t, RoleTracker, msg.Data.ScriptStatus.Role)
	assert.False(t, msg.Data.ScriptStatus.Running)
	assert.False(t, msg.Data.KeepaliveStatus.Configured)
}

func TestRemoteCheckUnconfigured(t *testing.T) {
	d := newDashboard(t, testConfig(t))
	res := d.RemoteCheck(context.Background())
	assert.False(t, res.Configured)
	assert.Contains(t, d.remoteCh.Render(), "BARK_SERVER not configured")
}
