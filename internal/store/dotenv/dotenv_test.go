package dotenv

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/loykin/trackdeck/internal/store"
)

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", ".env")
	f, err := New(path)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	if err := f.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if all, err := f.All(ctx); err != nil || len(all) != 0 {
		t.Fatalf("expected empty store, got %v %v", all, err)
	}
	if err := f.Set(ctx, "BARK_SERVER", "https://bark.example.com"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := f.Set(ctx, "CHECK_INTERVAL", "60"); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, err := f.Get(ctx, "BARK_SERVER")
	if err != nil || v != "https://bark.example.com" {
		t.Fatalf("get: %q %v", v, err)
	}
	if _, err := f.Get(ctx, "MISSING"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "CHECK_INTERVAL='60'") {
		t.Fatalf("unexpected file content: %q", b)
	}

	if err := f.Delete(ctx, "CHECK_INTERVAL"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	all, _ := f.All(ctx)
	if len(all) != 1 {
		t.Fatalf("expected one key left, got %v", all)
	}
}

func TestFileReadsHandWrittenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "# tracker settings\nTRACKING_NUMBER=SF123\nBARK_KEY=\"abc def\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	f, _ := New(path)
	all, err := f.All(context.Background())
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if all["TRACKING_NUMBER"] != "SF123" || all["BARK_KEY"] != "abc def" {
		t.Fatalf("unexpected values: %v", all)
	}
}

func TestNewRejectsEmptyPath(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatalf("expected error")
	}
}

func TestFileKeepsDollarAndQuotesLiteral(t *testing.T) {
	t.Setenv("TRACKDECK_DOTENV_VAR", "expanded")
	path := filepath.Join(t.TempDir(), ".env")
	f, _ := New(path)
	ctx := context.Background()

	values := map[string]string{
		"BARK_KEY":          "ab$TRACKDECK_DOTENV_VARcd",
		"BARK_QUERY_PARAMS": "${TRACKDECK_DOTENV_VAR}z",
		"HOME_REF":          "$HOME",
		"QUOTED":            `it's "quoted" # not a comment`,
		"EMPTY":             "",
	}
	for k, v := range values {
		if err := f.Set(ctx, k, v); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}
	// an unrelated write must leave the other entries untouched
	if err := f.Set(ctx, "CHECK_INTERVAL", "60"); err != nil {
		t.Fatalf("set: %v", err)
	}

	all, err := f.All(ctx)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	for k, want := range values {
		if all[k] != want {
			t.Fatalf("%s: got %q, want %q", k, all[k], want)
		}
	}
	b, _ := os.ReadFile(path)
	if !strings.Contains(string(b), "BARK_KEY='ab$TRACKDECK_DOTENV_VARcd'\n") {
		t.Fatalf("value rewritten on disk: %q", b)
	}
	if strings.Contains(string(b), "expanded") {
		t.Fatalf("daemon environment leaked into the file: %q", b)
	}
}

func TestFileSetPreservesOtherLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "# tracker settings\nLEGACY=\"${HOME}/x\"\nTRACKING_NUMBER=SF1\nNOTE=\"two\nlines\"\nTAIL=1\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	f, _ := New(path)
	ctx := context.Background()
	if err := f.Set(ctx, "TRACKING_NUMBER", "SF2"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := f.Set(ctx, "NOTE", "one line"); err != nil {
		t.Fatalf("set: %v", err)
	}
	want := "# tracker settings\nLEGACY=\"${HOME}/x\"\nTRACKING_NUMBER='SF2'\nNOTE='one line'\nTAIL=1\n"
	b, _ := os.ReadFile(path)
	if string(b) != want {
		t.Fatalf("unexpected file:\n got %q\nwant %q", b, want)
	}

	if err := f.Delete(ctx, "LEGACY"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	b, _ = os.ReadFile(path)
	if strings.Contains(string(b), "LEGACY") || !strings.HasPrefix(string(b), "# tracker settings\n") {
		t.Fatalf("unexpected file after delete: %q", b)
	}
}

func TestFileRejectsUnquotableValues(t *testing.T) {
	f, _ := New(filepath.Join(t.TempDir(), ".env"))
	ctx := context.Background()
	for _, v := range []string{"a\nb", "a\rb", `C:\dir\`} {
		if err := f.Set(ctx, "K", v); !errors.Is(err, ErrUnquotable) {
			t.Fatalf("value %q: expected ErrUnquotable, got %v", v, err)
		}
	}
	if all, _ := f.All(ctx); len(all) != 0 {
		t.Fatalf("rejected values must not be written: %v", all)
	}
}
