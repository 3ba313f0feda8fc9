package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeDaemon struct {
	*httptest.Server
	gotSettings string
}

func newFakeDaemon(t *testing.T) *fakeDaemon {
	t.Helper()
	fd := &fakeDaemon{}
	mux := http.NewServeMux()
	requireToken := func(w http.ResponseWriter, r *http.Request) bool {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"error":"authentication_failed","message":"Authentication required"}`)
			return false
		}
		return true
	}
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"token":"tok","expires_at":"2099-01-01T00:00:00Z"}`)
	})
	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		if !requireToken(w, r) {
			return
		}
		_, _ = io.WriteString(w, `{"tracker":{"role":"tracker","running":true,"state":"running","pid":7},"notifier":{"role":"notifier","running":false,"state":"idle"}}`)
	})
	mux.HandleFunc("POST /api/tracker/start", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, `{"status":{"role":"tracker","running":true,"state":"running"},"error":"process already running"}`)
	})
	mux.HandleFunc("POST /api/notifier/start", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"status":{"role":"notifier","running":false,"state":"idle"},"error":"executable not found"}`)
	})
	mux.HandleFunc("POST /api/tracker/stop", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"status":{"role":"tracker","running":true,"state":"stopping"}}`)
	})
	mux.HandleFunc("GET /api/logs/bark", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "[BARK] 2024-05-01T10:00:00.000Z listening\n")
	})
	mux.HandleFunc("GET /api/remote_bark_status", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"configured":false,"url":null,"ok":false,"status_code":null,"latency_ms":null,"error":"BARK_SERVER is not configured"}`)
	})
	mux.HandleFunc("GET /api/keepalive_status", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"running":false,"configured":false,"url":null,"state":"disabled","interval_seconds":300}`)
	})
	mux.HandleFunc("GET /api/settings", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"TRACKING_NUMBER":"TN1","BARK_SERVER":"https://bark.example.com"}`)
	})
	mux.HandleFunc("POST /api/settings", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		fd.gotSettings = string(b)
		_, _ = io.WriteString(w, `{"updated":1,"results":[{"key":"TRACKING_NUMBER","ok":true}],"message":"updated 1 settings."}`)
	})
	fd.Server = httptest.NewServer(mux)
	t.Cleanup(fd.Close)
	return fd
}

func testCommand(t *testing.T, url string) command {
	t.Helper()
	return command{
		flags:    &GlobalFlags{APIUrl: url + "/api", APITimeout: 5 * time.Second},
		sessions: NewSessionManagerAt(filepath.Join(t.TempDir(), "session.json")),
	}
}

func TestLoginStoresSessionForStatus(t *testing.T) {
	fd := newFakeDaemon(t)
	c := testCommand(t, fd.URL)
	ctx := context.Background()
	var out bytes.Buffer

	require.Error(t, c.Status(ctx, &out))

	require.NoError(t, c.Login(ctx, &out, LoginFlags{Username: "ops", Password: "pw"}))
	assert.Contains(t, out.String(), "logged in as ops")

	out.Reset()
	require.NoError(t, c.Status(ctx, &out))
	assert.Contains(t, out.String(), `"pid": 7`)

	// a session is only offered to the daemon that issued it
	other := command{flags: &GlobalFlags{APIUrl: "http://elsewhere/api"}, sessions: c.sessions}
	assert.Empty(t, other.sessions.TokenFor(other.flags.APIUrl))
}

func TestControlCommands(t *testing.T) {
	fd := newFakeDaemon(t)
	c := testCommand(t, fd.URL)
	ctx := context.Background()
	var out bytes.Buffer

	// already running is reported, not failed
	require.NoError(t, c.Start(ctx, &out, ControlFlags{Role: "tracker"}))
	assert.Contains(t, out.String(), "tracker: process already running")

	out.Reset()
	err := c.Start(ctx, &out, ControlFlags{Role: "notifier"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "executable not found")

	out.Reset()
	require.NoError(t, c.Stop(ctx, &out, ControlFlags{Role: "tracker"}))
	assert.Contains(t, out.String(), `"state": "stopping"`)

	err = c.Start(ctx, &out, ControlFlags{Role: "both"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown role")
}

func TestLogsAndProbes(t *testing.T) {
	fd := newFakeDaemon(t)
	c := testCommand(t, fd.URL)
	ctx := context.Background()
	var out bytes.Buffer

	require.NoError(t, c.Logs(ctx, &out, LogsFlags{Source: "bark"}))
	assert.Equal(t, "[BARK] 2024-05-01T10:00:00.000Z listening\n", out.String())

	out.Reset()
	err := c.RemoteCheck(ctx, &out)
	require.Error(t, err)
	assert.Contains(t, out.String(), "BARK_SERVER is not configured")

	out.Reset()
	require.NoError(t, c.Keepalive(ctx, &out))
	assert.Contains(t, out.String(), `"state": "disabled"`)
}

func TestSettingsCommands(t *testing.T) {
	fd := newFakeDaemon(t)
	c := testCommand(t, fd.URL)
	ctx := context.Background()
	var out bytes.Buffer

	require.NoError(t, c.SettingsGet(ctx, &out))
	assert.Equal(t, "BARK_SERVER=https://bark.example.com\nTRACKING_NUMBER=TN1\n", out.String())

	out.Reset()
	require.NoError(t, c.SettingsSet(ctx, &out, []string{"TRACKING_NUMBER=TN2=x"}))
	assert.Equal(t, "updated 1 settings.\n", out.String())
	assert.JSONEq(t, `{"TRACKING_NUMBER":"TN2=x"}`, fd.gotSettings)

	_, err := parseAssignments([]string{"novalue"})
	require.Error(t, err)
	_, err = parseAssignments([]string{" =x"})
	require.Error(t, err)
}

func TestHashPasswordPrintsBcrypt(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, cmdHashPassword(&out, "s3cret"))
	hash := strings.TrimSpace(out.String())
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")))
}
