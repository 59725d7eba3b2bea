package terminate

import (
	"fmt"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/nullspacelabs/stackup/internal/registry"
)

// spawn starts cmd and reaps it in the background so a killed child does not
// linger as a zombie and confuse liveness probes.
func spawn(t *testing.T, name string, args ...string) *exec.Cmd {
	t.Helper()
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		t.Fatalf("start %s: %v", name, err)
	}
	done := make(chan struct{})
	go func() { _ = cmd.Wait(); close(done) }()
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
	})
	return cmd
}

func TestAlive(t *testing.T) {
	requireUnix(t)
	term := New()
	if !term.Alive(os.Getpid()) {
		t.Fatalf("own pid must be alive")
	}
	if term.Alive(0) || term.Alive(-1) {
		t.Fatalf("non-positive pids must not be alive")
	}
	cmd := spawn(t, "true")
	pid := cmd.Process.Pid
	if !waitUntil(2*time.Second, 10*time.Millisecond, func() bool { return !term.Alive(pid) }) {
		t.Fatalf("exited pid still probes alive")
	}
}

func TestGracefulOnDeadPidReturnsImmediately(t *testing.T) {
	requireUnix(t)
	cmd := spawn(t, "true")
	pid := cmd.Process.Pid
	if !waitUntil(2*time.Second, 10*time.Millisecond, func() bool { return !New().Alive(pid) }) {
		t.Fatalf("child did not exit")
	}
	start := time.Now()
	New().Graceful(pid, 5*time.Second)
	if d := time.Since(start); d > 500*time.Millisecond {
		t.Fatalf("Graceful on dead pid took %v, want immediate return", d)
	}
}

func TestGracefulStopsCooperativeProcess(t *testing.T) {
	requireUnix(t)
	cmd := spawn(t, "sleep", "30")
	pid := cmd.Process.Pid
	term := Terminator{Interval: 20 * time.Millisecond}
	start := time.Now()
	term.Graceful(pid, 5*time.Second)
	if !waitUntil(2*time.Second, 20*time.Millisecond, func() bool { return !term.Alive(pid) }) {
		t.Fatalf("process still alive after graceful stop")
	}
	if d := time.Since(start); d > 2*time.Second {
		t.Fatalf("cooperative stop took %v", d)
	}
}

func TestGracefulEscalatesWhenTermIgnored(t *testing.T) {
	requireUnix(t)
	cmd := spawn(t, "/bin/sh", "-c", `trap '' TERM; while :; do sleep 0.05; done`)
	pid := cmd.Process.Pid
	term := Terminator{Interval: 20 * time.Millisecond}
	// Give the shell a moment to install its trap.
	time.Sleep(200 * time.Millisecond)
	timeout := 600 * time.Millisecond
	go term.Graceful(pid, timeout)
	// Still alive near the end of the graceful window.
	time.Sleep(timeout / 2)
	if !term.Alive(pid) {
		t.Fatalf("TERM-ignoring process died inside graceful window")
	}
	if !waitUntil(3*time.Second, 20*time.Millisecond, func() bool { return !term.Alive(pid) }) {
		t.Fatalf("forced kill never landed")
	}
}

func TestByRegistryClearsStaleMarker(t *testing.T) {
	requireUnix(t)
	reg := registry.New(t.TempDir())
	cmd := spawn(t, "true")
	pid := cmd.Process.Pid
	if !waitUntil(2*time.Second, 10*time.Millisecond, func() bool { return !New().Alive(pid) }) {
		t.Fatalf("child did not exit")
	}
	if err := reg.Record("network", pid); err != nil {
		t.Fatalf("Record: %v", err)
	}
	New().ByRegistry(reg, "network", time.Second)
	if _, err := os.Stat(reg.Path("network")); !os.IsNotExist(err) {
		t.Fatalf("stale marker must be removed, stat err = %v", err)
	}
}

func TestByRegistryStopsRecordedProcess(t *testing.T) {
	requireUnix(t)
	reg := registry.New(t.TempDir())
	cmd := spawn(t, "sleep", "30")
	pid := cmd.Process.Pid
	if err := reg.Record("auth", pid); err != nil {
		t.Fatalf("Record: %v", err)
	}
	term := Terminator{Interval: 20 * time.Millisecond}
	term.ByRegistry(reg, "auth", 2*time.Second)
	if !waitUntil(2*time.Second, 20*time.Millisecond, func() bool { return !term.Alive(pid) }) {
		t.Fatalf("recorded process survived ByRegistry")
	}
	if _, ok := reg.Read("auth"); ok {
		t.Fatalf("marker must be cleared after stop attempt")
	}
}

func TestByRegistryMissingMarkerIsNoop(t *testing.T) {
	reg := registry.New(t.TempDir())
	New().ByRegistry(reg, "ghost", time.Second) // must not panic or create files
	if _, ok := reg.Read("ghost"); ok {
		t.Fatalf("ByRegistry created a marker")
	}
}

func TestByPatternSweepsUntrackedProcess(t *testing.T) {
	requireUnix(t)
	if _, err := exec.LookPath("pgrep"); err != nil {
		t.Skip("pgrep not available")
	}
	token := fmt.Sprintf("stackup-sweep-%d", os.Getpid())
	// Compound command keeps the shell (and its tokened argv) alive instead
	// of exec-ing into sleep.
	cmd := spawn(t, "/bin/sh", "-c", "sleep 30; true # "+token)
	pid := cmd.Process.Pid
	term := Terminator{Interval: 20 * time.Millisecond}
	if !waitUntil(2*time.Second, 50*time.Millisecond, func() bool {
		return len(matchingPIDs(token)) > 0
	}) {
		t.Skip("pattern listing did not observe the child")
	}
	term.ByPattern(token, 2*time.Second)
	if !waitUntil(3*time.Second, 20*time.Millisecond, func() bool { return !term.Alive(pid) }) {
		t.Fatalf("pattern sweep missed the process")
	}
}

func TestByPatternWithoutListingCapability(t *testing.T) {
	t.Setenv("PATH", t.TempDir()) // no pgrep anywhere
	New().ByPattern("anything", time.Second)
}
