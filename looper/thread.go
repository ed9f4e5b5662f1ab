package looper

import (
	"runtime"
	"sync"

	"github.com/Joe-Bi-2016/golooper/internal/osthread"
)

// ThreadMode selects how NewLooperThread acquires its owning thread.
type ThreadMode int

const (
	// SpawnThread creates a dedicated goroutine, locks it to its current
	// OS thread for its lifetime, and runs Loop on it (spec §4.5 default
	// path).
	SpawnThread ThreadMode = iota
	// InCurrentGoroutine calls Prepare immediately on the constructing
	// goroutine; running Loop is then the caller's own responsibility
	// (spec §4.5 "looperInCurrentThread").
	InCurrentGoroutine
)

// LooperThread owns either a freshly spawned goroutine or the calling
// goroutine, and the Looper prepared on it. It provides the one
// legitimate cross-goroutine handshake in this package: GetLooper blocks
// the caller until the spawned loop has called Prepare and is about to
// enter Loop.
type LooperThread struct {
	name        string
	poolMaxSize int
	mode        ThreadMode
	opts        []Option

	startOnce sync.Once
	ready     chan struct{} // closed once the spawned Looper is installed
	done      chan struct{} // closed once Loop returns

	mu           sync.Mutex
	looper       *Looper
	looperExited bool
}

// NewLooperThread constructs a LooperThread. For mode==InCurrentGoroutine
// it immediately prepares a Looper on the calling goroutine (the caller
// is then responsible for calling Loop itself); otherwise it only
// records intent — the OS-thread-backed goroutine is spawned lazily by
// the first GetLooper call, per spec §4.5.
func NewLooperThread(name string, poolMaxSize int, mode ThreadMode, opts ...Option) *LooperThread {
	lt := &LooperThread{
		name:        name,
		poolMaxSize: poolMaxSize,
		mode:        mode,
		opts:        opts,
		ready:       make(chan struct{}),
		done:        make(chan struct{}),
	}
	if mode == InCurrentGoroutine {
		l := Prepare(append(opts, WithPoolMaxSize(poolMaxSize))...)
		lt.looper = l
		close(lt.ready)
	}
	return lt
}

// GetLooper returns the owned Looper, spawning the backing goroutine on
// first call if this LooperThread was constructed with SpawnThread. It
// blocks until the spawned loop has called Prepare. For
// InCurrentGoroutine mode the Looper was already prepared synchronously
// by NewLooperThread, so this never spawns anything.
func (lt *LooperThread) GetLooper() *Looper {
	if lt.mode == SpawnThread {
		lt.startOnce.Do(lt.start)
	}
	<-lt.ready
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return lt.looper
}

func (lt *LooperThread) start() {
	go func() {
		lockOSThreadForLoop()
		defer runtime.UnlockOSThread()

		l := Prepare(append(lt.opts, WithPoolMaxSize(lt.poolMaxSize))...)
		osthread.SetName("thread-" + lt.name)

		lt.mu.Lock()
		lt.looper = l
		lt.mu.Unlock()
		close(lt.ready)

		l.Loop()

		lt.mu.Lock()
		lt.looperExited = true
		lt.mu.Unlock()
		close(lt.done)
	}()
}

// ThreadName returns the name this LooperThread was constructed with.
func (lt *LooperThread) ThreadName() string { return lt.name }

// Quit forwards a hard quit to the owned Looper. Idempotent: calling it
// before GetLooper has ever been invoked is a safe no-op (there is
// nothing running yet to quit).
func (lt *LooperThread) Quit() {
	lt.quit(false)
}

// QuitSafely forwards a cooperative quit and returns at once. The loop
// still dispatches every already-enqueued message before it exits, so a
// following Join can be slow.
func (lt *LooperThread) QuitSafely() {
	lt.quit(true)
}

func (lt *LooperThread) quit(safely bool) {
	lt.mu.Lock()
	l := lt.looper
	lt.mu.Unlock()
	if l == nil {
		return
	}
	l.Quit(safely)
}

// Join blocks until the owned Loop has returned (only meaningful for
// SpawnThread mode; InCurrentGoroutine mode has no separate goroutine to
// join, so Join returns immediately on a thread that never started).
func (lt *LooperThread) Join() {
	select {
	case <-lt.done:
	default:
		lt.mu.Lock()
		started := lt.looper != nil && lt.mode == SpawnThread
		lt.mu.Unlock()
		if started {
			<-lt.done
		}
	}
}

// Close performs the destructor contract from spec §4.5: quit then join.
// It must not detach before joining because pending messages may
// reference goroutine-stack-captured handler state.
func (lt *LooperThread) Close() {
	lt.Quit()
	lt.Join()
}
