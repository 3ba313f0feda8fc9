package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/loykin/trackdeck/internal/store"
)

func TestSQLiteSettings(t *testing.T) {
	db, err := New(filepath.Join(t.TempDir(), "settings.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()
	if err := db.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	if err := db.Set(ctx, "PUBLIC_URL", "https://one.example.com"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := db.Set(ctx, "PUBLIC_URL", "https://two.example.com"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, err := db.Get(ctx, "PUBLIC_URL")
	if err != nil || got != "https://two.example.com" {
		t.Fatalf("get: %q %v", got, err)
	}

	all, err := db.All(ctx)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected one key, got %v", all)
	}

	if err := db.Delete(ctx, "PUBLIC_URL"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := db.Get(ctx, "PUBLIC_URL"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestSQLiteInMemory(t *testing.T) {
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = db.Close() }()
	ctx := context.Background()
	if err := db.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	if err := db.Set(ctx, "A", "1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, _ := db.Get(ctx, "A"); v != "1" {
		t.Fatalf("in-memory database lost its data: %q", v)
	}
}
