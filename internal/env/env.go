// Package env composes child environments from the daemon's own environment
// and the runtime settings.
package env

import (
	"os"
	"sort"
	"strings"
)

type Var map[string]string

// Env holds a base environment that later layers override.
type Env struct {
	base Var
}

// New returns an Env over a copy of base.
func New(base Var) *Env {
	e := &Env{base: make(Var, len(base))}
	for k, v := range base {
		if k != "" {
			e.base[k] = v
		}
	}
	return e
}

// FromOS captures the current process environment as the base.
func FromOS() *Env {
	return New(Parse(os.Environ()))
}

// Parse converts "K=V" pairs into a map; malformed entries are skipped.
func Parse(pairs []string) Var {
	m := make(Var, len(pairs))
	for _, kv := range pairs {
		if i := strings.IndexByte(kv, '='); i > 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	return m
}

// Merge applies layers over the base in order and returns a sorted "K=V"
// slice. ${VAR} references are expanded once against the merged map.
func (e *Env) Merge(layers ...Var) []string {
	m := make(Var, len(e.base))
	for k, v := range e.base {
		m[k] = v
	}
	for _, layer := range layers {
		for k, v := range layer {
			if k == "" {
				continue
			}
			m[k] = v
		}
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+expand(v, m))
	}
	sort.Strings(out)
	return out
}

// expand replaces ${VAR} with its value from m; unknown names become empty.
func expand(s string, m Var) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, func(k string) string { return m[k] })
}
