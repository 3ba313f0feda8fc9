// Package dotenv keeps settings in a .env file, the format the tracker and
// notifier workers read themselves.
package dotenv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/subosito/gotenv"

	"github.com/loykin/trackdeck/internal/store"
)

// File implements store.Store on top of a dotenv file. Set and Delete only
// touch the lines of their own key; every other line, comments included, is
// written back byte for byte. Values are stored single-quoted, which dotenv
// readers take literally, so a "$" in a value is never expanded. Every write
// goes through a temp file and rename, so a key is either fully written or
// not at all.
type File struct {
	path string
	mu   sync.Mutex
}

// ErrUnquotable is returned for values a single-quoted dotenv entry cannot
// carry.
var ErrUnquotable = errors.New("value must be a single line and must not end with a backslash")

func New(path string) (*File, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty dotenv path")
	}
	return &File{path: p}, nil
}

func (f *File) Path() string { return f.path }

// EnsureSchema creates the parent directory and an empty file if needed.
func (f *File) EnsureSchema(_ context.Context) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o750); err != nil {
		return err
	}
	// #nosec G304 -- path comes from daemon configuration
	fh, err := os.OpenFile(f.path, os.O_CREATE|os.O_RDONLY, 0o600)
	if err != nil {
		return err
	}
	return fh.Close()
}

func (f *File) raw() ([]byte, error) {
	// #nosec G304 -- path comes from daemon configuration
	b, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}
	return b, nil
}

// read parses the file the way the workers' dotenv loaders do.
func (f *File) read() (gotenv.Env, error) {
	b, err := f.raw()
	if err != nil {
		return nil, err
	}
	env, err := gotenv.StrictParse(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.path, err)
	}
	return env, nil
}

func (f *File) write(content []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".env-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}

func quote(value string) (string, error) {
	if strings.ContainsAny(value, "\r\n") || strings.HasSuffix(value, `\`) {
		return "", ErrUnquotable
	}
	return "'" + value + "'", nil
}

var assignRgx = regexp.MustCompile(`^\s*(?:export\s+)?([\w.]+)\s*[=:]\s*(.*)$`)

// rewrite returns content with every entry of key removed; when entry is not
// empty it takes the place of the first one, or is appended.
func rewrite(content []byte, key, entry string) []byte {
	lines := strings.Split(string(content), "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	out := make([]string, 0, len(lines)+1)
	placed := entry == ""
	for i := 0; i < len(lines); i++ {
		m := assignRgx.FindStringSubmatch(strings.TrimRight(lines[i], "\r"))
		if m == nil || m[1] != key {
			out = append(out, lines[i])
			continue
		}
		// skip the continuation lines of a quoted multi-line value
		if v := m[2]; v != "" && (v[0] == '"' || v[0] == '\'') && !closedOnLine(v) {
			for i+1 < len(lines) && !strings.Contains(lines[i+1], v[:1]) {
				i++
			}
			if i+1 < len(lines) {
				i++
			}
		}
		if !placed {
			out = append(out, entry)
			placed = true
		}
	}
	if !placed {
		out = append(out, entry)
	}
	if len(out) == 0 {
		return nil
	}
	return []byte(strings.Join(out, "\n") + "\n")
}

func closedOnLine(v string) bool { return strings.Contains(v[1:], v[:1]) }

func (f *File) All(_ context.Context) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	env, err := f.read()
	if err != nil {
		return nil, err
	}
	return map[string]string(env), nil
}

func (f *File) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	env, err := f.read()
	if err != nil {
		return "", err
	}
	v, ok := env[key]
	if !ok {
		return "", store.ErrNotFound
	}
	return v, nil
}

func (f *File) Set(_ context.Context, key, value string) error {
	q, err := quote(value)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	b, err := f.raw()
	if err != nil {
		return err
	}
	return f.write(rewrite(b, key, key+"="+q))
}

func (f *File) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	env, err := f.read()
	if err != nil {
		return err
	}
	if _, ok := env[key]; !ok {
		return nil
	}
	b, err := f.raw()
	if err != nil {
		return err
	}
	return f.write(rewrite(b, key, ""))
}

func (f *File) Close() error { return nil }
