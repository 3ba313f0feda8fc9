package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/loykin/trackdeck/internal/auth"
	"github.com/loykin/trackdeck/pkg/client"
)

// command runs the client-side commands against a daemon.
type command struct {
	flags    *GlobalFlags
	sessions *SessionManager
}

func (c command) client() *client.Client {
	token := c.flags.Token
	if token == "" && c.sessions != nil {
		token = c.sessions.TokenFor(c.flags.APIUrl)
	}
	return client.New(client.Config{BaseURL: c.flags.APIUrl, Timeout: c.flags.APITimeout, Token: token})
}

func (c command) Status(ctx context.Context, w io.Writer) error {
	st, err := c.client().Status(ctx)
	if err != nil {
		return err
	}
	printJSON(w, st)
	return nil
}

func validRole(role string) error {
	if role != client.RoleTracker && role != client.RoleNotifier {
		return fmt.Errorf("unknown role %q (want tracker or notifier)", role)
	}
	return nil
}

func (c command) Start(ctx context.Context, w io.Writer, f ControlFlags) error {
	if err := validRole(f.Role); err != nil {
		return err
	}
	resp, err := c.client().Start(ctx, f.Role)
	return reportControl(w, resp, err)
}

func (c command) Stop(ctx context.Context, w io.Writer, f ControlFlags) error {
	if err := validRole(f.Role); err != nil {
		return err
	}
	resp, err := c.client().Stop(ctx, f.Role)
	return reportControl(w, resp, err)
}

// reportControl prints the resulting status. Idempotent rejections (already
// running, not running) are reported but are not failures.
func reportControl(w io.Writer, resp client.ControlResponse, err error) error {
	var apiErr *client.APIError
	if err != nil && !(errors.As(err, &apiErr) && apiErr.StatusCode == 409) {
		return err
	}
	if resp.Error != "" {
		_, _ = fmt.Fprintf(w, "%s: %s\n", resp.Status.Role, resp.Error)
	}
	printJSON(w, resp.Status)
	return nil
}

func (c command) Logs(ctx context.Context, w io.Writer, f LogsFlags) error {
	text, err := c.client().Logs(ctx, f.Source)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, text)
	return err
}

func (c command) RemoteCheck(ctx context.Context, w io.Writer) error {
	res, err := c.client().RemoteStatus(ctx)
	if err != nil {
		return err
	}
	printJSON(w, res)
	if !res.OK {
		return errors.New("remote notifier is not healthy")
	}
	return nil
}

func (c command) Keepalive(ctx context.Context, w io.Writer) error {
	st, err := c.client().KeepaliveStatus(ctx)
	if err != nil {
		return err
	}
	printJSON(w, st)
	return nil
}

func (c command) SettingsGet(ctx context.Context, w io.Writer) error {
	values, err := c.client().Settings(ctx)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		_, _ = fmt.Fprintf(w, "%s=%s\n", k, values[k])
	}
	return nil
}

func parseAssignments(args []string) (map[string]string, error) {
	out := make(map[string]string, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid assignment %q (want KEY=VALUE)", a)
		}
		out[strings.TrimSpace(k)] = v
	}
	return out, nil
}

func (c command) SettingsSet(ctx context.Context, w io.Writer, args []string) error {
	changes, err := parseAssignments(args)
	if err != nil {
		return err
	}
	resp, err := c.client().UpdateSettings(ctx, changes)
	if resp.Message != "" {
		_, _ = fmt.Fprintln(w, resp.Message)
	}
	return err
}

func (c command) Login(ctx context.Context, w io.Writer, f LoginFlags) error {
	cl := c.client()
	tok, err := cl.Login(ctx, f.Username, f.Password)
	if err != nil {
		return err
	}
	if err := c.sessions.SaveSession(&Session{
		Token:     tok.Token,
		ExpiresAt: tok.ExpiresAt,
		Username:  f.Username,
		ServerURL: c.flags.APIUrl,
	}); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	_, _ = fmt.Fprintf(w, "logged in as %s until %s\n", f.Username, tok.ExpiresAt.Local().Format("2006-01-02 15:04"))
	return nil
}

func cmdHashPassword(w io.Writer, password string) error {
	h, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(w, h)
	return nil
}
