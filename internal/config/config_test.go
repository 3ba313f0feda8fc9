package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTOML(t *testing.T, data string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "trackdeck.toml")
	if err := os.WriteFile(p, []byte(data), 0o644); err != nil {
		t.Fatalf("write toml: %v", err)
	}
	return p
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Listen != "0.0.0.0:6060" || cfg.Server.BasePath != "/api" {
		t.Fatalf("unexpected server defaults: %+v", cfg.Server)
	}
	if cfg.Tracker.Interpreter != "python3" || cfg.Tracker.Script != "main.py" {
		t.Fatalf("unexpected tracker defaults: %+v", cfg.Tracker)
	}
	if len(cfg.Tracker.InterpreterArgs) != 1 || cfg.Tracker.InterpreterArgs[0] != "-u" {
		t.Fatalf("unexpected interpreter args: %v", cfg.Tracker.InterpreterArgs)
	}
	if cfg.Notifier.Addr != "0.0.0.0:8080" || cfg.Notifier.DataDir != "./bark-data" {
		t.Fatalf("unexpected notifier defaults: %+v", cfg.Notifier)
	}
	if cfg.Auth.TokenTTL != 12*time.Hour {
		t.Fatalf("unexpected token ttl: %v", cfg.Auth.TokenTTL)
	}
	if cfg.Gateway.CommandRate != 5 || cfg.Gateway.CommandBurst != 10 {
		t.Fatalf("unexpected gateway defaults: %+v", cfg.Gateway)
	}
	if !cfg.Metrics.Enabled {
		t.Fatalf("metrics should default to enabled")
	}
}

func TestLoadFromTOML(t *testing.T) {
	p := writeTOML(t, `
[server]
listen = "127.0.0.1:7000"
base_path = "/dash"

[tracker]
interpreter = "/usr/bin/python3"
interpreter_args = []
script = "/srv/tracker/main.py"

[notifier]
executable = "/srv/bark/bark-server"
addr = "127.0.0.1:8081"
data_dir = "/var/lib/bark"

[logs]
dir = "/var/log/trackdeck"

[history]
enabled = true
dsns = ["sqlite:///tmp/h.db", "clickhouse://localhost:9000/default"]

[log]
level = "debug"
format = "json"
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Listen != "127.0.0.1:7000" || cfg.Server.BasePath != "/dash" {
		t.Fatalf("server not loaded: %+v", cfg.Server)
	}
	if len(cfg.Tracker.InterpreterArgs) != 0 {
		t.Fatalf("interpreter args should be cleared: %v", cfg.Tracker.InterpreterArgs)
	}
	if cfg.Logs.TrackerPath() != filepath.Join("/var/log/trackdeck", "tracker.log") {
		t.Fatalf("unexpected tracker path: %s", cfg.Logs.TrackerPath())
	}
	if !cfg.History.Enabled || len(cfg.History.DSNs) != 2 {
		t.Fatalf("history not loaded: %+v", cfg.History)
	}
	lc := cfg.Log.Logger()
	if lc.Slog.Level != "debug" || lc.Slog.Format != "json" {
		t.Fatalf("log section not mapped: %+v", lc)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	p := writeTOML(t, "[server]\nlisten = \"127.0.0.1:7000\"\n")
	t.Setenv("TRACKDECK_SERVER_LISTEN", "127.0.0.1:7100")
	t.Setenv("TRACKDECK_NOTIFIER_ADDR", "127.0.0.1:9999")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Listen != "127.0.0.1:7100" {
		t.Fatalf("env override not applied: %s", cfg.Server.Listen)
	}
	if cfg.Notifier.Addr != "127.0.0.1:9999" {
		t.Fatalf("env override not applied: %s", cfg.Notifier.Addr)
	}
}

func TestValidationErrors(t *testing.T) {
	p := writeTOML(t, `
[server]
listen = "not-a-host-port"
base_path = "api"

[log]
level = "loud"
`)
	_, err := Load(p)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"Listen", "BasePath", "Level"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}

func TestAuthRequiresCredentials(t *testing.T) {
	p := writeTOML(t, "[auth]\nenabled = true\nusername = \"ops\"\n")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected error for enabled auth without hash and secret")
	}
	p = writeTOML(t, "[auth]\nenabled = true\nusername = \"ops\"\npassword_hash = \"$2a$10$x\"\njwt_secret = \"short\"\n")
	_, err := Load(p)
	if err == nil || !strings.Contains(err.Error(), "jwt_secret") {
		t.Fatalf("expected short secret error, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/definitely/not/exist.toml"); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
