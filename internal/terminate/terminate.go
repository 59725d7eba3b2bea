package terminate

import (
	"log/slog"
	"time"

	"github.com/nullspacelabs/stackup/internal/registry"
)

// DefaultInterval is the liveness poll interval inside the graceful window.
const DefaultInterval = 100 * time.Millisecond

// Terminator stops processes by pid, stale registry marker, or command-line
// pattern. All operations are best-effort: a process that is already gone is
// never an error, and cleanup failures are logged at most.
type Terminator struct {
	// Interval between liveness probes while waiting for a graceful exit.
	// Exposed so tests can tighten the schedule.
	Interval time.Duration
}

func New() Terminator {
	return Terminator{Interval: DefaultInterval}
}

// Alive reports whether a process with the given pid exists. A probe that is
// denied permission counts as alive (the process exists, we just may not own
// it).
func (t Terminator) Alive(pid int) bool {
	return pidAlive(pid)
}

// Graceful asks pid to stop and escalates to a forced kill if it is still
// alive after timeout. Calling it on a dead pid returns immediately without
// sending anything.
func (t Terminator) Graceful(pid int, timeout time.Duration) {
	if !pidAlive(pid) {
		return
	}
	if err := sendStop(pid); err != nil {
		return // vanished between probe and signal
	}
	interval := t.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !pidAlive(pid) {
			return
		}
		time.Sleep(interval)
	}
	_ = sendKill(pid)
}

// ByRegistry reads the marker for name, terminates the referenced process if
// one is recorded, and always clears the marker: once a stop was attempted
// the record has no further use. It reports whether a live process had to be
// stopped.
func (t Terminator) ByRegistry(reg registry.Registry, name string, timeout time.Duration) bool {
	stopped := false
	if pid, ok := reg.Read(name); ok {
		if pidAlive(pid) {
			slog.Info("stopping process from previous run", "name", name, "pid", pid)
			stopped = true
		}
		t.Graceful(pid, timeout)
	}
	if err := reg.Clear(name); err != nil {
		slog.Warn("failed to clear pid marker", "name", name, "error", err)
	}
	return stopped
}

// ByPattern terminates every running process whose command line contains
// pattern. It covers orphans from a crashed earlier run that never made it
// into the registry. Substring matching is deliberately broad and can hit
// unrelated processes sharing the token; keep patterns specific. When no
// process listing capability is available the sweep silently finds nothing.
// It returns the number of processes it signalled.
func (t Terminator) ByPattern(pattern string, timeout time.Duration) int {
	pids := matchingPIDs(pattern)
	for _, pid := range pids {
		slog.Info("sweeping untracked process", "pattern", pattern, "pid", pid)
		t.Graceful(pid, timeout)
	}
	return len(pids)
}
