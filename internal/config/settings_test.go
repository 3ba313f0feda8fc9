package config

import (
	"testing"
	"time"
)

func TestKeepaliveInterval(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"", DefaultKeepaliveInterval},
		{"abc", DefaultKeepaliveInterval},
		{"-3", DefaultKeepaliveInterval},
		{"1", MinKeepaliveInterval},
		{"60", 60 * time.Second},
		{" 600 ", 600 * time.Second},
	}
	for _, c := range cases {
		got := KeepaliveInterval(map[string]string{"KEEPALIVE_INTERVAL": c.in})
		if got != c.want {
			t.Fatalf("KeepaliveInterval(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestKeepaliveConfig(t *testing.T) {
	if cfg := KeepaliveConfig(map[string]string{}, "/healthz"); cfg.URL != "" {
		t.Fatalf("expected no target without PUBLIC_URL, got %q", cfg.URL)
	}
	if cfg := KeepaliveConfig(map[string]string{"PUBLIC_URL": "not a url"}, "/healthz"); cfg.URL != "" {
		t.Fatalf("expected no target for invalid PUBLIC_URL, got %q", cfg.URL)
	}
	cfg := KeepaliveConfig(map[string]string{"PUBLIC_URL": "https://deck.example.com/", "KEEPALIVE_INTERVAL": "30"}, "/healthz")
	if cfg.URL != "https://deck.example.com/healthz" || cfg.Interval != 30*time.Second {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestRemoteConfig(t *testing.T) {
	rc := RemoteConfig(map[string]string{"BARK_SERVER": " https://bark.example.com ", "BARK_HEALTH_PATH": "/ping"})
	if rc.URL() != "https://bark.example.com/ping" {
		t.Fatalf("unexpected url: %s", rc.URL())
	}
	if RemoteConfig(nil).URL() != "" {
		t.Fatalf("unconfigured server should yield empty url")
	}
}
