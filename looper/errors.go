package looper

import (
	"errors"
	"fmt"
)

// Error kinds from spec §7. Each is a sentinel checkable with errors.Is;
// call sites wrap them with fmt.Errorf("...: %w", ...) to attach context,
// mirroring the teacher's errors.go cause-chain style (WrapError,
// PanicError.Unwrap).
var (
	// ErrContractViolation covers a null target on enqueue, enqueueing an
	// already-in-use message, recycling an in-use message, or dispatching
	// with no resolution. EnqueueMessage returns it wrapped with context
	// when it rejects a message; a dispatch with no resolution is logged
	// and the message is dropped.
	ErrContractViolation = errors.New("looper: contract violation")

	// ErrQueueClosed is returned by enqueue operations after a hard quit,
	// or during a safe-quit's drain-only window.
	ErrQueueClosed = errors.New("looper: queue closed")

	// ErrNoLooperOnThread is returned by MyLooper when Prepare was never
	// called on the current goroutine.
	ErrNoLooperOnThread = errors.New("looper: no looper on this goroutine")

	// ErrWaitTimeoutExit is the sentinel next() returns when the loop must
	// exit: after a hard quit, once a safe quit has drained the list, or
	// when the outTimeTest budget runs out with an empty list.
	ErrWaitTimeoutExit = errors.New("looper: wait timeout exit (test hook)")

	// ErrUserCallbackFault wraps a recovered panic from a user dispatch
	// callback. The queue has already unlinked the message by the time
	// this is raised; the dispatcher recycles it before this error is
	// logged, and the loop then continues.
	ErrUserCallbackFault = errors.New("looper: user callback fault")

	// ErrResourceExhaustion names a message allocation failure on the
	// obtain() path. No code path in this package returns it.
	ErrResourceExhaustion = errors.New("looper: resource exhaustion")
)

// wrapf wraps a sentinel with additional context, preserving errors.Is.
func wrapf(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), sentinel)
}
