//go:build unix

package session

import (
	"os/exec"
	"syscall"
)

// detach places the daemon in its own session so it survives the parent
// exiting and is not reached by terminal signals aimed at the driver.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

// terminateProcess asks the daemon to shut down gracefully.
func terminateProcess(pid int) error {
	return syscall.Kill(pid, syscall.SIGTERM)
}
