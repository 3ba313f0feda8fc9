package store

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Keys read by the daemon itself.
const (
	KeyCheckInterval     = "CHECK_INTERVAL"
	KeyBarkServer        = "BARK_SERVER"
	KeyBarkHealthPath    = "BARK_HEALTH_PATH"
	KeyPublicURL         = "PUBLIC_URL"
	KeyKeepaliveInterval = "KEEPALIVE_INTERVAL"
)

// DisplayKeys are the settings shown to operators, in display order.
var DisplayKeys = []string{
	"TRACKING_NUMBER",
	KeyCheckInterval,
	KeyBarkServer,
	"BARK_KEY",
	"BARK_QUERY_PARAMS",
	KeyBarkHealthPath,
	KeyPublicURL,
	KeyKeepaliveInterval,
}

var keyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidKey reports whether k can be used as an environment variable name.
func ValidKey(k string) bool { return keyPattern.MatchString(k) }

// Visible returns the display whitelist with current values; missing keys
// map to "".
func Visible(all map[string]string) map[string]string {
	out := make(map[string]string, len(DisplayKeys))
	for _, k := range DisplayKeys {
		out[k] = all[k]
	}
	return out
}

// KeyResult is the outcome of writing one key.
type KeyResult struct {
	Key   string `json:"key"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// UpdateResult summarizes an Update call.
type UpdateResult struct {
	Updated int         `json:"updated"`
	Results []KeyResult `json:"results"`
}

// Failed returns the per-key failures in key order.
func (r UpdateResult) Failed() []KeyResult {
	var out []KeyResult
	for _, kr := range r.Results {
		if !kr.OK {
			out = append(out, kr)
		}
	}
	return out
}

// Message renders the operator-facing summary.
func (r UpdateResult) Message() string {
	failed := r.Failed()
	parts := make([]string, 0, len(failed))
	for _, f := range failed {
		parts = append(parts, fmt.Sprintf("updating %s failed: %s", f.Key, f.Error))
	}
	if r.Updated == 0 {
		return "no settings were updated: " + strings.Join(parts, "; ")
	}
	msg := fmt.Sprintf("updated %d settings.", r.Updated)
	if len(parts) > 0 {
		msg += " some updates failed: " + strings.Join(parts, "; ")
	}
	return msg
}

// Update writes changes key by key. A failing key does not abort the others;
// each key is applied all-or-nothing by the store.
func Update(ctx context.Context, s Store, changes map[string]string) UpdateResult {
	keys := make([]string, 0, len(changes))
	for k := range changes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	res := UpdateResult{Results: make([]KeyResult, 0, len(keys))}
	for _, k := range keys {
		kr := KeyResult{Key: k}
		switch {
		case !ValidKey(k):
			kr.Error = "invalid key"
		case strings.ContainsAny(changes[k], "\r\n"):
			kr.Error = "value must be a single line"
		default:
			if err := s.Set(ctx, k, changes[k]); err != nil {
				kr.Error = err.Error()
			} else {
				kr.OK = true
				res.Updated++
			}
		}
		res.Results = append(res.Results, kr)
	}
	return res
}
