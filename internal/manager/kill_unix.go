//go:build !windows

package manager

import (
	"errors"
	"syscall"
)

// kill delivers the unmaskable termination signal. Failures for pids
// that are already gone are not errors worth surfacing; kill is a
// best-effort terminal operation.
func kill(pid int) error {
	if pid <= 0 {
		return nil
	}
	if err := syscall.Kill(pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return err
	}
	return nil
}
