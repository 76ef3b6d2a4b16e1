//go:build !windows

package proc

import (
	"errors"
	"syscall"
)

// terminateGroup delivers SIGTERM to the worker's process group so
// grandchildren are asked to stop too.
func terminateGroup(pid int) error {
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		return err
	}
	return nil
}

// killGroup delivers SIGKILL to the process group, best effort.
func killGroup(pid int) {
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}
