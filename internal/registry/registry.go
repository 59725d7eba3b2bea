package registry

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Registry persists the pid of each managed service as a plain-text marker
// file, so a later invocation can find and stop processes it did not spawn.
// A marker is only a hint: the referenced process may have exited, so callers
// must verify liveness before acting on a pid.
type Registry struct {
	dir string
}

func New(dir string) Registry {
	return Registry{dir: dir}
}

// Dir returns the directory holding the marker files.
func (r Registry) Dir() string { return r.dir }

// Path returns the marker file path for a service name.
func (r Registry) Path(name string) string {
	return filepath.Join(r.dir, name+".pid")
}

// Record overwrites the marker for name with pid, creating parent directories
// as needed.
func (r Registry) Record(name string, pid int) error {
	if err := os.MkdirAll(r.dir, 0o750); err != nil {
		return err
	}
	return os.WriteFile(r.Path(name), []byte(strconv.Itoa(pid)), 0o600)
}

// Read returns the recorded pid for name. A missing, malformed, or
// non-positive marker reads as absent, never as an error.
func (r Registry) Read(name string) (int, bool) {
	b, err := os.ReadFile(r.Path(name))
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// Clear removes the marker for name. Removing an absent marker is a no-op.
func (r Registry) Clear(name string) error {
	err := os.Remove(r.Path(name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
