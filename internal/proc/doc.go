// Package proc implements the exec-backed worker process consumed by the
// manager.
//
// Full process-group termination is only guaranteed on Linux, where the
// runtime can rely on the operating system's job-control semantics to
// deliver signals to every member of the child process group. On macOS
// and Windows the runtime offers best-effort semantics: signals are
// delivered to the direct child, but without kernel-enforced job control
// any grandchildren may remain running and must be cleaned up separately
// by the caller.
package proc
