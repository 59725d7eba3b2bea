package supervise

import (
	"io"
	"os/exec"
	"sync"
)

// Spec describes one long-running service to spawn.
type Spec struct {
	Name    string
	Command []string // argv, Command[0] is the binary
	WorkDir string
	Env     []string // full environment in "K=V" form; nil inherits the parent's
}

// Managed is the capability handle for one spawned service: identity,
// non-blocking exit poll, graceful stop request, and forced kill. Stop and
// kill are idempotent; signalling an already-exited process is a no-op.
type Managed struct {
	name string
	cmd  *exec.Cmd
	sink io.WriteCloser

	mu      sync.Mutex
	exited  bool
	exitErr error
	done    chan struct{} // closed by the monitor once the child is reaped
}

func (m *Managed) Name() string { return m.name }

// PID returns the child's process id.
func (m *Managed) PID() int {
	if m.cmd == nil || m.cmd.Process == nil {
		return 0
	}
	return m.cmd.Process.Pid
}

// Running reports whether the child has not yet been reaped. Non-blocking.
func (m *Managed) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.exited
}

// ExitErr returns the wait error once the child has exited, nil otherwise.
func (m *Managed) ExitErr() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exitErr
}

// Done is closed once the monitor has reaped the child and the exit
// observers have run, so a Done waiter sees the exit fully recorded.
func (m *Managed) Done() <-chan struct{} { return m.done }

// SignalStop asks the service's process group to terminate gracefully.
func (m *Managed) SignalStop() {
	if !m.Running() {
		return
	}
	_ = signalGroupStop(m.PID())
}

// Kill forcibly terminates the service's process group.
func (m *Managed) Kill() {
	if !m.Running() {
		return
	}
	_ = signalGroupKill(m.PID())
}

// markExited records the wait result and closes the sink. Called exactly
// once, by the monitor, which closes done after the exit observers ran.
func (m *Managed) markExited(err error) {
	m.mu.Lock()
	m.exited = true
	m.exitErr = err
	m.mu.Unlock()
	if m.sink != nil {
		_ = m.sink.Close()
	}
}

// Status is a point-in-time view of one service, for the status command and
// the HTTP API.
type Status struct {
	Name    string `json:"name"`
	PID     int    `json:"pid"`
	Running bool   `json:"running"`
}
