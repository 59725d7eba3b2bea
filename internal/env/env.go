package env

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Vars is a simple K->V map of environment variables.
type Vars map[string]string

// Env composes the environment handed to managed services.
// Precedence, lowest first: OS environment, variables loaded from env files
// (in load order), explicit overrides set via Set.
type Env struct {
	base      Vars // snapshot of the OS environment
	overrides Vars // file vars and explicit Set calls, applied in order
}

func New() *Env {
	return &Env{overrides: make(Vars)}
}

// FromOS snapshots the current process environment as the base layer.
func (e *Env) FromOS() {
	base := make(Vars)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i > 0 {
			base[kv[:i]] = kv[i+1:]
		}
	}
	e.base = base
}

// Set records an override K=V.
func (e *Env) Set(k, v string) {
	if k == "" {
		return
	}
	e.overrides[k] = v
}

// SetPairs records overrides from "K=V" strings, skipping malformed entries.
func (e *Env) SetPairs(pairs []string) {
	for _, kv := range pairs {
		if i := strings.IndexByte(kv, '='); i > 0 {
			e.Set(kv[:i], kv[i+1:])
		}
	}
}

// LoadFile merges the variables from a .env-style file into the override
// layer. Later loads win over earlier ones.
func (e *Env) LoadFile(path string) error {
	vars, err := ParseFile(path)
	if err != nil {
		return err
	}
	for k, v := range vars {
		e.overrides[k] = v
	}
	return nil
}

// Get returns the effective value for a key and whether it is set and
// non-empty.
func (e *Env) Get(k string) (string, bool) {
	if v, ok := e.overrides[k]; ok {
		return v, v != ""
	}
	if e.base == nil {
		e.FromOS()
	}
	v, ok := e.base[k]
	return v, ok && v != ""
}

// Merge composes the final environment slice for one service: base OS env,
// then the override layer, then the per-service "K=V" pairs. ${VAR} references
// are expanded against the composed map (single pass, no recursion).
func (e *Env) Merge(perService []string) []string {
	if e.base == nil {
		e.FromOS()
	}
	m := make(Vars, len(e.base)+len(e.overrides)+len(perService))
	for k, v := range e.base {
		m[k] = v
	}
	for k, v := range e.overrides {
		m[k] = v
	}
	for _, kv := range perService {
		if i := strings.IndexByte(kv, '='); i > 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+expand(v, m))
	}
	return out
}

func expand(s string, m Vars) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, func(k string) string {
		if v, ok := m[k]; ok {
			return v
		}
		return ""
	})
}

// ParseFile reads a .env-style file: KEY=VALUE per line, blank lines and
// #-comments ignored, whitespace trimmed around keys and values.
func ParseFile(path string) (Vars, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read env file %s: %w", path, err)
	}
	m := make(Vars)
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		i := strings.IndexByte(line, '=')
		if i <= 0 {
			continue
		}
		k := strings.TrimSpace(line[:i])
		v := strings.TrimSpace(line[i+1:])
		if k == "" {
			continue
		}
		m[k] = v
	}
	return m, nil
}
