//go:build windows

package manager

import (
	"errors"
	"os"
)

// kill falls back to Process.Kill on Windows, where SIGKILL does not
// exist.
func kill(pid int) error {
	if pid <= 0 {
		return nil
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
