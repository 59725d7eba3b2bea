package supervise

import (
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/nullspacelabs/stackup/internal/logger"
	"github.com/nullspacelabs/stackup/internal/metrics"
	"github.com/nullspacelabs/stackup/internal/registry"
)

// Supervisor spawns services, redirects their output to per-name log sinks,
// records their pids in the registry, and keeps handles to everything it
// started so the coordinator can tear the set down.
type Supervisor struct {
	reg   registry.Registry
	sinks logger.SinkConfig

	// OnStart and OnExit are optional observers (history persistence).
	OnStart func(name string, pid int)
	OnExit  func(name string, pid int, exitErr error)

	mu    sync.Mutex
	procs []*Managed
}

func New(reg registry.Registry, sinks logger.SinkConfig) *Supervisor {
	return &Supervisor{reg: reg, sinks: sinks}
}

// Start spawns spec in its own process group with stdout and stderr combined
// into the service's log sink, then records the pid. A spawn failure is
// returned to the caller; nothing is retried.
func (s *Supervisor) Start(spec Spec) (*Managed, error) {
	if len(spec.Command) == 0 {
		return nil, fmt.Errorf("service %s: empty command", spec.Name)
	}
	sink := s.sinks.Writer(spec.Name)
	cmd := exec.Command(spec.Command[0], spec.Command[1:]...) // #nosec G204 -- operator-provided stack config
	cmd.Dir = spec.WorkDir
	cmd.Env = spec.Env
	cmd.Stdout = sink
	cmd.Stderr = sink
	setSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		_ = sink.Close()
		return nil, fmt.Errorf("start %s: %w", spec.Name, err)
	}

	m := &Managed{name: spec.Name, cmd: cmd, sink: sink, done: make(chan struct{})}
	if err := s.reg.Record(spec.Name, m.PID()); err != nil {
		slog.Warn("failed to record pid marker", "name", spec.Name, "error", err)
	}
	metrics.IncStart(spec.Name)
	if s.OnStart != nil {
		s.OnStart(spec.Name, m.PID())
	}
	slog.Info("service started", "name", spec.Name, "pid", m.PID(), "log", s.sinks.Path(spec.Name))

	s.mu.Lock()
	s.procs = append(s.procs, m)
	s.mu.Unlock()

	go s.monitor(m)
	return m, nil
}

// monitor reaps the child and settles the handle. One goroutine per service,
// the single owner of cmd.Wait. Done is released only after the observers
// ran, so a Done waiter knows the exit has been recorded.
func (s *Supervisor) monitor(m *Managed) {
	err := m.cmd.Wait()
	pid := m.PID()
	m.markExited(err)
	metrics.IncStop(m.Name())
	if s.OnExit != nil {
		s.OnExit(m.Name(), pid, err)
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		slog.Warn("service wait failed", "name", m.Name(), "error", err)
	} else {
		slog.Debug("service exited", "name", m.Name(), "pid", pid)
	}
	close(m.done)
}

// Procs returns the handles of every service started by this run.
func (s *Supervisor) Procs() []*Managed {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Managed, len(s.procs))
	copy(out, s.procs)
	return out
}

// Statuses reports a snapshot of every started service.
func (s *Supervisor) Statuses() []Status {
	procs := s.Procs()
	out := make([]Status, 0, len(procs))
	for _, m := range procs {
		out = append(out, Status{Name: m.Name(), PID: m.PID(), Running: m.Running()})
	}
	return out
}

// SinkPath returns the log sink path for a service name.
func (s *Supervisor) SinkPath(name string) string { return s.sinks.Path(name) }

// ClearMarkers removes the pid markers of every exited service. Markers of
// still-running services are kept so a later run can find them.
func (s *Supervisor) ClearMarkers() {
	for _, m := range s.Procs() {
		if !m.Running() {
			_ = s.reg.Clear(m.Name())
		}
	}
}
