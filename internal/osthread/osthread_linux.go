//go:build linux

package osthread

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// ID returns the kernel thread id of the calling OS thread. Only
// meaningful when the calling goroutine has called runtime.LockOSThread;
// otherwise the scheduler may migrate it to a different kernel thread
// between calls, same as the teacher's own caveat around its epoll fd
// registration being goroutine-affine.
func ID() uint64 {
	return uint64(unix.Gettid())
}

// SetName applies a best-effort OS thread name, truncated to 15 bytes
// (TASK_COMM_LEN - 1) as required by PR_SET_NAME. Errors are swallowed:
// the operation is diagnostic only.
func SetName(name string) {
	if len(name) > 15 {
		name = name[:15]
	}
	b := append([]byte(name), 0)
	_ = unix.Prctl(unix.PR_SET_NAME, uintptr(unsafe.Pointer(&b[0])), 0, 0, 0)
}

// RaisePriority makes a best-effort attempt to raise the scheduling
// priority (lower "nice" value) of the calling OS thread, used when
// draining a safe-quit to accelerate flushing pending messages. Silently
// ignored if unprivileged.
func RaisePriority() {
	_ = unix.Setpriority(unix.PRIO_PROCESS, 0, -5)
}
