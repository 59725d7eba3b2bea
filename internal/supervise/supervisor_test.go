package supervise

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/nullspacelabs/stackup/internal/logger"
	"github.com/nullspacelabs/stackup/internal/registry"
)

func newSupervisor(t *testing.T) (*Supervisor, registry.Registry) {
	t.Helper()
	dir := t.TempDir()
	reg := registry.New(dir + "/run")
	return New(reg, logger.SinkConfig{Dir: dir + "/logs"}), reg
}

func stopAll(t *testing.T, s *Supervisor) {
	t.Helper()
	for _, m := range s.Procs() {
		m.Kill()
	}
	for _, m := range s.Procs() {
		select {
		case <-m.Done():
		case <-time.After(2 * time.Second):
			t.Errorf("service %s not reaped", m.Name())
		}
	}
}

func TestStartRecordsPidAndRedirectsOutput(t *testing.T) {
	requireUnix(t)
	s, reg := newSupervisor(t)
	defer stopAll(t, s)

	m, err := s.Start(Spec{Name: "auth", Command: []string{"/bin/sh", "-c", "echo hello; sleep 30"}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if pid, ok := reg.Read("auth"); !ok || pid != m.PID() {
		t.Fatalf("registry pid = %d, %v; want %d", pid, ok, m.PID())
	}
	if !m.Running() {
		t.Fatalf("fresh service reports exited")
	}
	sink := s.SinkPath("auth")
	if !waitUntil(2*time.Second, 20*time.Millisecond, func() bool {
		b, err := os.ReadFile(sink)
		return err == nil && strings.Contains(string(b), "hello")
	}) {
		t.Fatalf("service output never reached the sink %s", sink)
	}
}

func TestStartFailureIsPropagated(t *testing.T) {
	s, reg := newSupervisor(t)
	_, err := s.Start(Spec{Name: "ghost", Command: []string{"/no/such/binary"}})
	if err == nil {
		t.Fatalf("expected spawn failure")
	}
	if _, ok := reg.Read("ghost"); ok {
		t.Fatalf("failed spawn must not leave a pid marker")
	}
	if len(s.Procs()) != 0 {
		t.Fatalf("failed spawn must not be tracked")
	}
}

func TestStartEmptyCommand(t *testing.T) {
	s, _ := newSupervisor(t)
	if _, err := s.Start(Spec{Name: "empty"}); err == nil {
		t.Fatalf("expected error for empty command")
	}
}

func TestExitIsObservedNonBlocking(t *testing.T) {
	requireUnix(t)
	s, _ := newSupervisor(t)
	m, err := s.Start(Spec{Name: "oneshot", Command: []string{"true"}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !waitUntil(2*time.Second, 10*time.Millisecond, func() bool { return !m.Running() }) {
		t.Fatalf("exit never observed")
	}
	if m.ExitErr() != nil {
		t.Fatalf("clean exit reported error: %v", m.ExitErr())
	}
}

func TestStopAndKillAreIdempotent(t *testing.T) {
	requireUnix(t)
	s, _ := newSupervisor(t)
	m, err := s.Start(Spec{Name: "idem", Command: []string{"true"}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-m.Done()
	// None of these may panic or error on an already-exited service.
	m.SignalStop()
	m.SignalStop()
	m.Kill()
}

func TestSignalStopTerminatesService(t *testing.T) {
	requireUnix(t)
	s, _ := newSupervisor(t)
	defer stopAll(t, s)
	m, err := s.Start(Spec{Name: "web", Command: []string{"sleep", "30"}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	m.SignalStop()
	if !waitUntil(2*time.Second, 20*time.Millisecond, func() bool { return !m.Running() }) {
		t.Fatalf("service ignored graceful stop")
	}
}

func TestObserversAndClearMarkers(t *testing.T) {
	requireUnix(t)
	s, reg := newSupervisor(t)
	var started, exited []string
	s.OnStart = func(name string, pid int) { started = append(started, name) }
	done := make(chan struct{})
	s.OnExit = func(name string, pid int, err error) { exited = append(exited, name); close(done) }

	if _, err := s.Start(Spec{Name: "obs", Command: []string{"true"}}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("OnExit never fired")
	}
	if len(started) != 1 || started[0] != "obs" || len(exited) != 1 {
		t.Fatalf("observer calls: started=%v exited=%v", started, exited)
	}
	s.ClearMarkers()
	if _, ok := reg.Read("obs"); ok {
		t.Fatalf("marker of exited service must be cleared")
	}
}

func TestDoneWaitsForExitObserver(t *testing.T) {
	requireUnix(t)
	s, _ := newSupervisor(t)
	observed := make(chan struct{})
	release := make(chan struct{})
	s.OnExit = func(name string, pid int, err error) {
		close(observed)
		<-release
	}
	m, err := s.Start(Spec{Name: "slowobs", Command: []string{"true"}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-observed:
	case <-time.After(2 * time.Second):
		t.Fatalf("OnExit never fired")
	}
	select {
	case <-m.Done():
		t.Fatalf("Done released before the exit observer returned")
	case <-time.After(100 * time.Millisecond):
	}
	close(release)
	select {
	case <-m.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("Done never released")
	}
}

func TestStatusesSnapshot(t *testing.T) {
	requireUnix(t)
	s, _ := newSupervisor(t)
	defer stopAll(t, s)
	if _, err := s.Start(Spec{Name: "a", Command: []string{"sleep", "30"}}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	sts := s.Statuses()
	if len(sts) != 1 || sts[0].Name != "a" || !sts[0].Running || sts[0].PID <= 0 {
		t.Fatalf("unexpected statuses: %+v", sts)
	}
}
