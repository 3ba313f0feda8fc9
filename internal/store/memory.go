package store

import (
	"context"
	"sync"
)

// Memory is a process-local Store. It backs tests and embedded use without
// persistence.
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemory returns a store seeded with a copy of initial.
func NewMemory(initial map[string]string) *Memory {
	m := &Memory{data: make(map[string]string, len(initial))}
	for k, v := range initial {
		m.data[k] = v
	}
	return m
}

func (m *Memory) EnsureSchema(context.Context) error { return nil }

func (m *Memory) All(context.Context) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.data))
	for k, v := range m.data {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	m.data[key] = value
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }
