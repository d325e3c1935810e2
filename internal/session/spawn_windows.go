//go:build windows

package session

import (
	"os"
	"os/exec"
)

func detach(cmd *exec.Cmd) {
	// Windows children are independent by default; nothing extra to do.
}

func terminateProcess(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}
