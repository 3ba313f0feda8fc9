package config

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/loykin/trackdeck/internal/keepalive"
	"github.com/loykin/trackdeck/internal/remote"
	"github.com/loykin/trackdeck/internal/store"
)

const (
	DefaultKeepaliveInterval = keepalive.DefaultInterval
	MinKeepaliveInterval     = 5 * time.Second
)

// KeepaliveInterval parses KEEPALIVE_INTERVAL (seconds). Missing or invalid
// values fall back to the default; small values are raised to the minimum.
func KeepaliveInterval(values map[string]string) time.Duration {
	raw := strings.TrimSpace(values[store.KeyKeepaliveInterval])
	if raw == "" {
		return DefaultKeepaliveInterval
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return DefaultKeepaliveInterval
	}
	d := time.Duration(n) * time.Second
	if d < MinKeepaliveInterval {
		return MinKeepaliveInterval
	}
	return d
}

// KeepaliveConfig targets PUBLIC_URL joined with the daemon's health path.
func KeepaliveConfig(values map[string]string, healthPath string) keepalive.Config {
	cfg := keepalive.Config{Interval: KeepaliveInterval(values)}
	base := strings.TrimSpace(values[store.KeyPublicURL])
	if base == "" {
		return cfg
	}
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return cfg
	}
	if healthPath == "" {
		healthPath = "/healthz"
	}
	cfg.URL = strings.TrimRight(base, "/") + "/" + strings.TrimLeft(healthPath, "/")
	return cfg
}

// RemoteConfig reads BARK_SERVER and BARK_HEALTH_PATH.
func RemoteConfig(values map[string]string) remote.Config {
	return remote.Config{
		Server:     strings.TrimSpace(values[store.KeyBarkServer]),
		HealthPath: strings.TrimSpace(values[store.KeyBarkHealthPath]),
	}
}
