package factory

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/loykin/trackdeck/internal/store"
	"github.com/loykin/trackdeck/internal/store/dotenv"
	pg "github.com/loykin/trackdeck/internal/store/postgres"
	sq "github.com/loykin/trackdeck/internal/store/sqlite"
)

// NewFromDSN selects a store implementation based on DSN.
// Supported:
//   - dotenv:  "dotenv://<path>" or a bare path whose name is or ends in ".env"
//   - sqlite:  "sqlite://<path>" or any other bare filepath
//   - postgres: DSN starting with "postgres://" or "postgresql://"
//   - memory:  "memory://"
func NewFromDSN(dsn string) (store.Store, error) {
	d := strings.TrimSpace(dsn)
	ld := strings.ToLower(d)
	switch {
	case ld == "":
		return nil, errors.New("empty DSN")
	case strings.HasPrefix(ld, "postgres://") || strings.HasPrefix(ld, "postgresql://"):
		return pg.New(d)
	case strings.HasPrefix(ld, "sqlite://"):
		return sq.New(d[len("sqlite://"):])
	case strings.HasPrefix(ld, "dotenv://"):
		return dotenv.New(d[len("dotenv://"):])
	case ld == "memory://":
		return store.NewMemory(nil), nil
	}
	if base := filepath.Base(ld); base == ".env" || strings.HasSuffix(base, ".env") {
		return dotenv.New(d)
	}
	// default to sqlite path
	return sq.New(d)
}
