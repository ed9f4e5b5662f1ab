// Package osthread provides best-effort OS-thread diagnostics: a
// numeric thread id for logging, a thread name syscall, and a priority
// bump used during safe-quit draining. Every operation here is
// best-effort by spec (§4.3, §9) — failures are swallowed, never
// surfaced as errors, following the teacher's own "best-effort, may be
// a no-op" poller/wakeup platform split (poller_linux.go / poller_darwin.go
// / poller_windows.go in the eventloop package).
package osthread

import "sync/atomic"

var fallbackCounter atomic.Uint64

// nextFallbackID hands out process-unique synthetic ids on platforms
// where a real kernel thread id isn't available.
func nextFallbackID() uint64 {
	return fallbackCounter.Add(1)
}
