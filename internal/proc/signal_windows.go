//go:build windows

package proc

import (
	"errors"
	"os"
)

// terminateGroup asks the top-level process to stop. Windows has no
// process groups we can signal, so grandchildren are not covered.
func terminateGroup(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := proc.Signal(os.Interrupt); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return proc.Kill()
	}
	return nil
}

// killGroup terminates the top-level process, best effort.
func killGroup(pid int) {
	if proc, err := os.FindProcess(pid); err == nil {
		_ = proc.Kill()
	}
}
