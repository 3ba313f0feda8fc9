package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get for an unknown key.
var ErrNotFound = errors.New("setting not found")

// Store is the flat key/value settings collaborator. Values are plain
// strings; children receive them as environment variables.
type Store interface {
	EnsureSchema(ctx context.Context) error
	All(ctx context.Context) (map[string]string, error)
	Get(ctx context.Context, key string) (string, error)
	// Set writes one key atomically.
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}
