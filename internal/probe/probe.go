// Package probe performs the bounded HTTP GET shared by the keepalive loop
// and the remote notifier health check.
package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout bounds a single probe.
const DefaultTimeout = 10 * time.Second

// Outcome of one probe. StatusCode is 0 when no response was received.
type Outcome struct {
	URL        string
	StatusCode int
	Latency    time.Duration
	Err        error
	At         time.Time
}

// OK reports a 2xx response.
func (o Outcome) OK() bool {
	return o.Err == nil && o.StatusCode >= 200 && o.StatusCode < 300
}

// ErrorText is empty for a successful probe, the transport error text when
// no response arrived, and "HTTP <code>" for a non-2xx response.
func (o Outcome) ErrorText() string {
	switch {
	case o.Err != nil:
		return o.Err.Error()
	case !o.OK():
		return fmt.Sprintf("HTTP %d", o.StatusCode)
	default:
		return ""
	}
}

// Get issues one GET against url with the given timeout (DefaultTimeout when
// zero). The body is drained and discarded.
func Get(ctx context.Context, client *http.Client, url string, timeout time.Duration) Outcome {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	out := Outcome{URL: url, At: time.Now().UTC()}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		out.Err = err
		return out
	}
	req.Header.Set("User-Agent", "trackdeck-probe")
	start := time.Now()
	resp, err := client.Do(req)
	out.Latency = time.Since(start)
	if err != nil {
		out.Err = err
		return out
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	out.StatusCode = resp.StatusCode
	return out
}
