//go:build windows

package terminate

import (
	"os"
	"syscall"

	"golang.org/x/sys/windows"
)

// pidAlive reports whether a process with pid exists on Windows.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	h, err := syscall.OpenProcess(syscall.PROCESS_QUERY_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	defer func() { _ = syscall.CloseHandle(h) }()
	var code uint32
	if err := syscall.GetExitCodeProcess(h, &code); err != nil {
		return true
	}
	const stillActive = 259
	return code == stillActive
}

// sendStop delivers CTRL_BREAK to the process group rooted at pid; recorded
// pids point at group leaders this tool spawned. Processes without a console
// cannot receive the event and get a hard kill straight away.
func sendStop(pid int) error {
	if err := windows.GenerateConsoleCtrlEvent(windows.CTRL_BREAK_EVENT, uint32(pid)); err == nil {
		return nil
	}
	return sendKill(pid)
}

func sendKill(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}
