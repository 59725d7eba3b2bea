//go:build windows

package supervise

import (
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"
)

func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}

// signalGroupStop delivers CTRL_BREAK to the service's process group, the
// closest Windows analogue of SIGTERM. CREATE_NEW_PROCESS_GROUP above makes
// the service pid a valid group target. Services without a console cannot
// receive the event and are killed outright.
func signalGroupStop(pid int) error {
	if err := windows.GenerateConsoleCtrlEvent(windows.CTRL_BREAK_EVENT, uint32(pid)); err == nil {
		return nil
	}
	return signalGroupKill(pid)
}

func signalGroupKill(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}
