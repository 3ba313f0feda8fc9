package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Roles accepted by Start and Stop.
const (
	RoleTracker  = "tracker"
	RoleNotifier = "notifier"
)

// Client talks to the trackdeck daemon's REST API.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
	// Token is sent as a bearer token when the daemon has auth enabled.
	Token  string
	Logger *slog.Logger // Optional logger for client operations
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:6060/api",
		Timeout: 10 * time.Second,
	}
}

// APIError is a non-2xx answer. Body holds the decoded response when it was
// JSON, so callers can still read e.g. the status of a rejected command.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultConfig().BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		token:   config.Token,
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// SetToken replaces the bearer token.
func (c *Client) SetToken(token string) { c.token = token }

// IsReachable checks if the daemon is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		c.logger.Debug("Failed to create request for reachability check", "error", err)
		return false
	}
	c.authorize(req)
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("Daemon unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode != http.StatusNotFound
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// do sends a request and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: data, Message: http.StatusText(resp.StatusCode)}
		var er ErrorResponse
		if json.Unmarshal(data, &er) == nil && er.Error != "" {
			apiErr.Message = er.Error
		} else {
			var msg struct {
				Message string `json:"message"`
			}
			if json.Unmarshal(data, &msg) == nil && msg.Message != "" {
				apiErr.Message = msg.Message
			}
		}
		return data, apiErr
	}
	return data, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	data, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// Status returns both roles and the keepalive status.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var out StatusResponse
	err := c.getJSON(ctx, "/status", &out)
	return out, err
}

func (c *Client) control(ctx context.Context, role, action string) (ControlResponse, error) {
	if role != RoleTracker && role != RoleNotifier {
		return ControlResponse{}, fmt.Errorf("unknown role %q", role)
	}
	var out ControlResponse
	data, err := c.do(ctx, http.MethodPost, "/"+role+"/"+action, nil)
	var apiErr *APIError
	if err != nil && !errors.As(err, &apiErr) {
		return out, err
	}
	if jerr := json.Unmarshal(data, &out); jerr != nil && err == nil {
		return out, jerr
	}
	return out, err
}

// Start starts role. A rejected start (already running) returns an
// *APIError together with the current status.
func (c *Client) Start(ctx context.Context, role string) (ControlResponse, error) {
	return c.control(ctx, role, "start")
}

// Stop sends the stop signal to role.
func (c *Client) Stop(ctx context.Context, role string) (ControlResponse, error) {
	return c.control(ctx, role, "stop")
}

// Logs returns the full persisted log of source (tracker, bark, remote).
func (c *Client) Logs(ctx context.Context, source string) (string, error) {
	data, err := c.do(ctx, http.MethodGet, "/logs/"+url.PathEscape(source), nil)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// RemoteStatus runs a remote notifier health check on the daemon.
func (c *Client) RemoteStatus(ctx context.Context) (RemoteResult, error) {
	var out RemoteResult
	err := c.getJSON(ctx, "/remote_bark_status", &out)
	return out, err
}

func (c *Client) KeepaliveStatus(ctx context.Context) (KeepaliveStatus, error) {
	var out KeepaliveStatus
	err := c.getJSON(ctx, "/keepalive_status", &out)
	return out, err
}

// Settings returns the operator-visible settings.
func (c *Client) Settings(ctx context.Context) (map[string]string, error) {
	out := map[string]string{}
	err := c.getJSON(ctx, "/settings", &out)
	return out, err
}

// UpdateSettings writes changes. Partial failures are reported in the
// response; an error is returned only when nothing was written.
func (c *Client) UpdateSettings(ctx context.Context, changes map[string]string) (SettingsResponse, error) {
	var out SettingsResponse
	data, err := c.do(ctx, http.MethodPost, "/settings", changes)
	if len(data) > 0 {
		_ = json.Unmarshal(data, &out)
	}
	return out, err
}

// Login exchanges operator credentials for a token and keeps it for later calls.
func (c *Client) Login(ctx context.Context, username, password string) (Token, error) {
	var out Token
	data, err := c.do(ctx, http.MethodPost, "/auth/login", map[string]string{"username": username, "password": password})
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, err
	}
	c.token = out.Token
	return out, nil
}
