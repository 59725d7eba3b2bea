//go:build !windows

package supervise

import (
	"os/exec"
	"syscall"
)

// setSysProcAttr puts the child in its own process group so stop signals
// reach the whole service tree (npm wrappers, shell launchers) at once.
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func signalGroupStop(pid int) error {
	return syscall.Kill(-pid, syscall.SIGTERM)
}

func signalGroupKill(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}
