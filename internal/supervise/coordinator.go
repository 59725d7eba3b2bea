package supervise

import (
	"log/slog"
	"time"

	"github.com/nullspacelabs/stackup/internal/metrics"
)

const (
	// DefaultGrace is how long services get between the graceful stop
	// request and the forced kill.
	DefaultGrace = time.Second

	// reapWait bounds how long Shutdown waits for monitors to reap a child
	// after the forced kill.
	reapWait = 500 * time.Millisecond
)

// Coordinator drives the shutdown of everything a Supervisor started:
// graceful stop to all services at once, a bounded grace period, then a
// forced kill for stragglers. Safe to invoke more than once; a second call
// finds nothing left to stop.
type Coordinator struct {
	Grace    time.Duration // DefaultGrace when zero
	Interval time.Duration // exit poll interval inside the grace window
}

// Shutdown stops all procs. It returns once every service has been reaped or
// the bounded post-kill wait has elapsed.
func (c Coordinator) Shutdown(procs []*Managed) {
	grace := c.Grace
	if grace <= 0 {
		grace = DefaultGrace
	}
	interval := c.Interval
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}

	for _, m := range procs {
		m.SignalStop()
	}

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if allExited(procs) {
			return
		}
		time.Sleep(interval)
	}

	for _, m := range procs {
		if m.Running() {
			slog.Warn("service ignored graceful stop, killing", "name", m.Name(), "pid", m.PID())
			metrics.IncForcedKill(m.Name())
			m.Kill()
		}
	}
	for _, m := range procs {
		select {
		case <-m.Done():
		case <-time.After(reapWait):
		}
	}
}

func allExited(procs []*Managed) bool {
	for _, m := range procs {
		if m.Running() {
			return false
		}
	}
	return true
}
