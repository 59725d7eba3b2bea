//go:build !windows

package terminate

import (
	"errors"
	"syscall"
)

// pidAlive probes pid with the null signal. EPERM means the process exists
// but belongs to someone else; treat that as alive.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

func sendStop(pid int) error {
	return syscall.Kill(pid, syscall.SIGTERM)
}

func sendKill(pid int) error {
	return syscall.Kill(pid, syscall.SIGKILL)
}
